package pipeline

import (
	"context"

	"github.com/Damenly/mpp/frame"
	"github.com/Damenly/mpp/logger"
	"github.com/Damenly/mpp/packet"
	"github.com/Damenly/mpp/task"
)

// AdvancedTask is the caller-supplied (input_packet, output_frame) pair
// of spec.md §4.6, keyed in the original interface as INPUT_PACKET /
// OUTPUT_FRAME (spec.md §6 "Data ports").
type AdvancedTask struct {
	InputPacket *packet.Packet
	OutputFrame *frame.Frame
}

// Advanced runs one buffer-supplied decode synchronously, bypassing
// pipelining, the task group, and the display queue (spec.md §4.6).
// It is safe to call concurrently with itself and with the pipelined
// input/output queues: it only ever borrows the two BufferSlots
// registries transiently, under sh.mu, and never touches the
// TaskGroup.
func (d *Decoder) Advanced(ctx context.Context, t *AdvancedTask) error {
	if t == nil || t.InputPacket == nil {
		return ErrNullPtr
	}
	sh := d.sh
	if sh.closed.Load() {
		return ErrClosed
	}

	if t.OutputFrame == nil {
		// spec.md §9 open question: the original re-initializes a fresh
		// frame here rather than failing, discarding whatever the caller
		// might have intended to pass. Preserved for parity; flagged in
		// DESIGN.md.
		if sh.warnedAdvancedNoBuffer.CompareAndSwap(false, true) {
			logger.Warnf(ctx, "advanced: no output frame supplied, synthesizing one (source behavior, see DESIGN.md)")
		}
		t.OutputFrame = frame.Pool.Get()
	}

	var dt task.DecTask
	prepRes, err := sh.parser.Prepare(ctx, t.InputPacket, &dt)
	if err != nil {
		t.OutputFrame.ErrInfo = true
		return err
	}
	if t.InputPacket.Consumed() {
		t.InputPacket.Done()
	}
	if prepRes.EOS {
		t.OutputFrame.EOS = true
	}
	if !prepRes.Valid {
		return nil
	}

	sh.mu.Lock()
	parseRes, err := sh.parser.Parse(ctx, &dt, sh.packetSlots, sh.frameSlots)
	sh.mu.Unlock()
	if err != nil {
		t.OutputFrame.ErrInfo = true
		return err
	}
	if !parseRes.Valid {
		if parseRes.EOS {
			t.OutputFrame.EOS = true
		}
		return nil
	}

	dt.Hal.Valid = true
	if err := sh.hardware.RegGen(ctx, &dt.Hal); err != nil {
		t.OutputFrame.ErrInfo = true
		return err
	}
	if err := sh.hardware.Start(ctx, &dt.Hal); err != nil {
		t.OutputFrame.ErrInfo = true
		return err
	}
	if err := sh.hardware.Wait(ctx, &dt.Hal); err != nil {
		t.OutputFrame.ErrInfo = true
		return err
	}

	sh.mu.Lock()
	if src := sh.frameSlots.Frame(dt.Hal.OutputSlot); src != nil {
		*t.OutputFrame = *src
	}
	if err := sh.frameSlots.Reset(ctx, dt.Hal.OutputSlot); err != nil {
		logger.Errorf(ctx, "advanced: releasing output slot %d: %v", dt.Hal.OutputSlot, err)
	}
	sh.mu.Unlock()

	if dt.Hal.Flags.HadError {
		t.OutputFrame.ErrInfo = true
	}
	return nil
}

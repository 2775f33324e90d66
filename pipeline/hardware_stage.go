package pipeline

import (
	"context"

	"github.com/Damenly/mpp/frame"
	"github.com/Damenly/mpp/logger"
	"github.com/Damenly/mpp/slot"
	"github.com/Damenly/mpp/task"
)

// HardwareStage drains PROCESSING handles, drives the hardware
// collaborator, and retires frames to the display path (spec.md §2.7,
// §4.4).
type HardwareStage struct {
	sh *shared

	closeCh chan struct{}
	doneCh  chan struct{}
}

func newHardwareStage(sh *shared) *HardwareStage {
	return &HardwareStage{sh: sh, closeCh: make(chan struct{}), doneCh: make(chan struct{})}
}

// Run is the stage's long-running loop (spec.md §4.4).
func (hs *HardwareStage) Run(ctx context.Context) {
	defer close(hs.doneCh)
	sh := hs.sh
	for {
		select {
		case <-hs.closeCh:
			return
		default:
		}

		sh.mu.Lock()
		hnd, ok := sh.tasks.NextProcessing()
		if !ok {
			if sh.resetRequested && sh.tasks.AllDone() {
				sh.control.Broadcast()
			}
			select {
			case <-hs.closeCh:
				sh.mu.Unlock()
				return
			default:
			}
			sh.hardwareWork.Wait()
			sh.mu.Unlock()
			continue
		}
		info := sh.tasks.HndGetInfo(hnd)
		sh.mu.Unlock()

		if info.IsBeacon() {
			hs.handleBeacon(ctx, hnd, info)
			continue
		}
		if err := hs.handleNormal(ctx, hnd, info); err != nil {
			logger.Errorf(ctx, "hardware stage: %v", err)
		}
	}
}

// Close asks the loop to stop and blocks until it has.
func (hs *HardwareStage) Close() {
	select {
	case <-hs.closeCh:
	default:
		close(hs.closeCh)
	}
	hs.sh.mu.Lock()
	hs.sh.wakeAll()
	hs.sh.mu.Unlock()
	<-hs.doneCh
}

// handleBeacon implements spec.md §4.4 step 3: an info-change or eos
// beacon flows through the same queue as data tasks but carries no
// image data.
func (hs *HardwareStage) handleBeacon(ctx context.Context, hnd *task.Handle, info task.HalDecTask) {
	sh := hs.sh

	switch {
	case info.Flags.InfoChange:
		if err := sh.hardware.Flush(ctx); err != nil {
			logger.Errorf(ctx, "hardware stage: flush on info-change: %v", err)
		}
		sh.display.Flush(ctx)
		beacon := frame.Pool.Get()
		beacon.InfoChange = true
		sh.display.Push(ctx, beacon)
		sh.mu.Lock()
		sh.frameSlots.Ready(ctx)
		sh.mu.Unlock()
	case info.Flags.EOS:
		sh.display.Flush(ctx)
		eos := hs.synthesizeEOSFrame(ctx)
		sh.display.Push(ctx, eos)
		if err := sh.parser.Flush(ctx); err != nil {
			logger.Errorf(ctx, "hardware stage: flush on eos: %v", err)
		}
	}

	sh.mu.Lock()
	sh.tasks.HndSetStatus(hnd, task.Idle)
	sh.wakeAll()
	sh.mu.Unlock()
}

// synthesizeEOSFrame builds the empty frame carrying eos=1 (spec.md
// §4.4 step 3 "emit a synthetic eos frame (may require synthesizing a
// slot when post-processing is active)"). No slot is bound: the
// pipeline never held real image data for this event.
func (hs *HardwareStage) synthesizeEOSFrame(ctx context.Context) *frame.Frame {
	f := frame.Pool.Get()
	f.EOS = true
	return f
}

// handleNormal implements spec.md §4.4 step 4.
func (hs *HardwareStage) handleNormal(ctx context.Context, hnd *task.Handle, info task.HalDecTask) error {
	sh := hs.sh

	if err := sh.hardware.Wait(ctx, &info); err != nil {
		return err
	}

	sh.mu.Lock()
	if err := sh.packetSlots.ClrFlag(ctx, info.InputSlot, slot.HALInput); err != nil {
		sh.mu.Unlock()
		return err
	}
	if sh.cfg.FastMode {
		sh.tasks.HndSetStatus(hnd, task.Idle)
	} else {
		sh.tasks.HndSetStatus(hnd, task.ProcDone)
	}
	if err := sh.frameSlots.ClrFlag(ctx, info.OutputSlot, slot.HALOutput); err != nil {
		sh.mu.Unlock()
		return err
	}
	for _, ref := range info.RefSlots {
		if err := sh.frameSlots.ClrFlag(ctx, ref, slot.HALInput); err != nil {
			sh.mu.Unlock()
			return err
		}
	}
	sh.wakeAll()
	sh.mu.Unlock()

	if info.Flags.EOS {
		if err := sh.hardware.Flush(ctx); err != nil {
			logger.Errorf(ctx, "hardware stage: flush on eos: %v", err)
		}
	}

	if err := sh.emit(ctx, info.OutputSlot, emitOptions{
		eos:        info.Flags.EOS,
		hadError:   info.Flags.HadError,
		usedForRef: info.Flags.UsedForRef,
	}); err != nil {
		return err
	}

	sh.display.Flush(ctx)
	return nil
}

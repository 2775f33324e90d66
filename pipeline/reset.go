package pipeline

import (
	"context"

	"github.com/Damenly/mpp/internal"
	"github.com/Damenly/mpp/logger"
	"github.com/Damenly/mpp/slot"
	"github.com/Damenly/mpp/task"
)

// runReset drives spec.md §4.5's twelve-step protocol from the parser
// side. Called by ParserStage.Run with sh.mu held whenever
// sh.resetRequested is observed; returns with sh.mu still held.
//
// Reset is triggered externally (Decoder.Reset), which sets
// resetRequested and then itself waits on sh.control for resetAck —
// the "ping-pong on a dedicated control condition variable" of §4.5(a)
// collapses to the shared sh.control cond var under this module's
// single-mutex simplification (see shared.go).
func (ps *ParserStage) runReset(ctx context.Context) {
	sh := ps.sh

	if sh.cfg.isStateless() {
		logger.Debugf(ctx, "reset: %s is stateless, skipping drain protocol", sh.cfg.Coding)
		sh.resetRequested = false
		sh.resetAck = true
		sh.control.Broadcast()
		return
	}

	logger.Infof(ctx, "reset: beginning")

	// (a) signal hardware stage, wait until PROCESSING has fully drained.
	sh.hardwareWork.Broadcast()
	for !sh.tasks.AllDone() {
		sh.control.Wait()
	}

	// (b) force PROC_DONE handles back to IDLE.
	handles := sh.tasks.Handles()
	for i := range handles {
		if handles[i].Status() == task.ProcDone {
			sh.tasks.HndSetStatus(&handles[i], task.Idle)
		}
	}

	// (c) PROCESSING must be empty now, or the hardware engine is hung.
	internal.Assert(ctx, sh.tasks.AllDone(), "reset: PROCESSING not empty after drain")

	// (d) reset the collaborators. Released unlocked: these are
	// external calls that may block, and holding sh.mu across them
	// would stall the hardware stage's own bookkeeping unnecessarily.
	sh.mu.Unlock()
	if err := sh.parser.Reset(ctx); err != nil {
		logger.Errorf(ctx, "reset: parser.Reset: %v", err)
	}
	if err := sh.hardware.Reset(ctx); err != nil {
		logger.Errorf(ctx, "reset: hardware.Reset: %v", err)
	}
	if sh.postproc != nil {
		if err := sh.postproc.Reset(ctx); err != nil {
			logger.Errorf(ctx, "reset: postproc.Reset: %v", err)
		}
	}
	sh.mu.Lock()

	// (e) if the in-flight DecTask was parked waiting on an
	// info-change latch, its output slot never made it to the display
	// path; force-clear it.
	if sh.cur.Wait.Has(task.WaitInfoChange) && sh.cur.Status.Has(task.StatusInfoTaskGenerated) {
		if err := sh.frameSlots.Reset(ctx, sh.cur.Hal.OutputSlot); err != nil {
			logger.Errorf(ctx, "reset: clearing info-change output slot: %v", err)
		}
	}

	// (f) if parse had completed (register program built and started)
	// without the handle ever reaching PROCESSING — reset arrived
	// between steps 13 and 14 — release its slot bindings.
	if sh.cur.Status.Has(task.StatusParseComplete) {
		if err := sh.frameSlots.Reset(ctx, sh.cur.Hal.OutputSlot); err != nil {
			logger.Errorf(ctx, "reset: clearing pending output slot: %v", err)
		}
		for _, ref := range sh.cur.Hal.RefSlots {
			if err := sh.frameSlots.Reset(ctx, ref); err != nil {
				logger.Errorf(ctx, "reset: clearing pending reference slot %d: %v", ref, err)
			}
		}
	}

	// (g) release the held input packet.
	if pkt := sh.heldPacket(); pkt != nil {
		pkt.Done()
		sh.cur.Packet = nil
	}

	// (h) drain the display path (its entries are already-detached
	// deep copies, so nothing to release there) and drop the extra
	// slot reference held by anything still queued for post-processing
	// (spec.md §4.7 "with QUEUE_USE set").
	sh.display.Drain(ctx)
	for {
		idx, err := sh.frameSlots.Dequeue(ctx, slot.QueueDeinterlace)
		if err != nil {
			break
		}
		if err := sh.frameSlots.ClrFlag(ctx, idx, slot.QueueUse); err != nil {
			logger.Errorf(ctx, "reset: releasing queued slot %d: %v", idx, err)
		}
	}

	// (i) flush the timestamp queue.
	sh.tsq.Flush(ctx)

	// (j) release whatever was held in the packet-slot registry for
	// the in-flight task. Reset (not just clearing HAL_INPUT) so the
	// slot returns to free regardless of which bits step 6 had reached
	// (P2 requires zero live slots post-reset).
	if sh.cur.Status.Has(task.StatusPacketIndexAllocated) {
		if err := sh.packetSlots.Reset(ctx, sh.cur.Hal.InputSlot); err != nil {
			logger.Errorf(ctx, "reset: releasing held packet slot: %v", err)
		}
	}

	// (k) reinitialize the DecTask.
	sh.cur = task.DecTask{}
	sh.prevWaitDone = false

	// (l) acknowledge the reset.
	sh.resetRequested = false
	sh.resetAck = true
	sh.control.Broadcast()
	logger.Infof(ctx, "reset: complete")
}

package pipeline

import (
	"context"

	"github.com/Damenly/mpp/logger"
	"github.com/Damenly/mpp/packet"
	"github.com/Damenly/mpp/slot"
	"github.com/Damenly/mpp/task"
	"github.com/Damenly/mpp/tsqueue"
)

// frameBufferPoolThreshold returns the minimum count of unused frame
// buffers step 9 requires before it lets a task proceed (spec.md §4.3
// step 9: "1 normally, 3 when post-processing active").
func frameBufferPoolThreshold(postprocActive bool) int {
	if postprocActive {
		return 3
	}
	return 1
}

// ParserStage is the cooperative task driver of spec.md §2.6, §4.3: it
// pulls packets, prepares and parses access units, and submits
// completed tasks to the hardware stage.
type ParserStage struct {
	sh *shared

	closeCh chan struct{}
	doneCh  chan struct{}
}

func newParserStage(sh *shared) *ParserStage {
	return &ParserStage{sh: sh, closeCh: make(chan struct{}), doneCh: make(chan struct{})}
}

// Run is the stage's long-running loop (spec.md §5 "two long-running
// OS threads"). It returns once closeCh is closed and the stage has
// settled at its outer wait point.
func (ps *ParserStage) Run(ctx context.Context) {
	defer close(ps.doneCh)
	sh := ps.sh
	for {
		select {
		case <-ps.closeCh:
			return
		default:
		}

		sh.mu.Lock()
		if sh.resetRequested {
			ps.runReset(ctx)
			sh.mu.Unlock()
			continue
		}

		progressed, err := ps.turn(ctx)
		if err != nil {
			logger.Errorf(ctx, "parser stage: %v", err)
			sh.mu.Unlock()
			return
		}
		if progressed {
			// spec.md §4.3 "Ordering and fairness": surrender the turn
			// after any step that published state the hardware stage
			// could consume.
			sh.mu.Unlock()
			continue
		}
		if sh.resetRequested {
			sh.mu.Unlock()
			continue
		}
		select {
		case <-ps.closeCh:
			sh.mu.Unlock()
			return
		default:
		}
		sh.parserWork.Wait()
		sh.mu.Unlock()
	}
}

// Close asks the loop to stop and blocks until it has. Idempotent-safe
// to call once (mirrors ClosureSignaler's single-shot contract used
// elsewhere in this module).
func (ps *ParserStage) Close() {
	select {
	case <-ps.closeCh:
	default:
		close(ps.closeCh)
	}
	ps.sh.mu.Lock()
	ps.sh.wakeAll()
	ps.sh.mu.Unlock()
	<-ps.doneCh
}

// turn attempts to advance the current DecTask through spec.md §4.3's
// fourteen steps, stopping at the first step that cannot make
// progress. Called with sh.mu held; may drop and reacquire it around
// collaborator calls that must not serialize against the hardware
// stage. Returns true if any step completed, signalling the caller to
// retry immediately rather than sleep.
func (ps *ParserStage) turn(ctx context.Context) (bool, error) {
	sh := ps.sh

	if !sh.cur.Status.Has(task.StatusHandleAcquired) {
		hnd, err := sh.tasks.GetHnd(task.Idle)
		if err != nil {
			sh.cur.Wait |= task.WaitTaskHandle
			return false, nil
		}
		sh.cur.Handle = hnd
		sh.cur.Status |= task.StatusHandleAcquired
		sh.cur.Wait &^= task.WaitTaskHandle
		return true, nil
	}

	if !sh.cur.Status.Has(task.StatusPacketAvailable) {
		if sh.cur.Packet == nil {
			select {
			case pkt, ok := <-sh.inputQueue:
				if !ok {
					sh.cur.Wait |= task.WaitInputPacket
					return false, nil
				}
				sh.cur.Packet = pkt
				if sh.presetTimeOrder.Load() {
					sh.mu.Unlock()
					sh.tsq.Push(ctx, tsPair(pkt))
					sh.mu.Lock()
				}
			default:
				sh.cur.Wait |= task.WaitInputPacket
				return false, nil
			}
		}
		sh.cur.Status |= task.StatusPacketAvailable
		sh.cur.Wait &^= task.WaitInputPacket
		return true, nil
	}

	if !sh.cur.Status.Has(task.StatusParseValid) {
		pkt := sh.heldPacket()
		sh.mu.Unlock()
		res, err := sh.parser.Prepare(ctx, pkt, &sh.cur)
		sh.mu.Lock()
		if err != nil {
			return false, err
		}
		if pkt.Consumed() {
			pkt.Done()
			sh.cur.Packet = nil
		}
		if res.EOS {
			sh.cur.Hal.Flags.EOS = true
		}
		if !res.Valid {
			if res.EOS {
				if !ps.submitBeacon(ctx, task.HalDecTask{Flags: task.HalDecTaskFlags{EOS: true}}) {
					return false, nil
				}
				ps.beginFresh()
				return true, nil
			}
			// Nothing to prepare from this packet yet; drop back to
			// step 2 to pull the next one.
			sh.cur.Status &^= task.StatusPacketAvailable
			return true, nil
		}
		sh.cur.Status |= task.StatusParseValid
		return true, nil
	}

	if !sh.cur.Status.Has(task.StatusPacketIndexAllocated) {
		idx, err := sh.packetSlots.GetUnused(ctx)
		if err != nil {
			sh.cur.Wait |= task.WaitPacketIndex
			return false, nil
		}
		sh.cur.Hal.InputSlot = idx
		sh.cur.Status |= task.StatusPacketIndexAllocated
		sh.cur.Wait &^= task.WaitPacketIndex
		return true, nil
	}

	if !sh.cur.Status.Has(task.StatusPacketBufferAllocated) {
		pkt := sh.heldPacket()
		size := pkt.Remaining()
		if size <= 0 {
			size = 1
		}
		buf := &slot.Buffer{Ptr: make([]byte, size), Size: size}
		if err := sh.packetSlots.AttachBuffer(ctx, sh.cur.Hal.InputSlot, buf); err != nil {
			sh.cur.Wait |= task.WaitPacketBuffer
			return false, nil
		}
		sh.cur.Status |= task.StatusPacketBufferAllocated
		sh.cur.Wait &^= task.WaitPacketBuffer
		return true, nil
	}

	if !sh.cur.Status.Has(task.StatusPayloadCopied) {
		pkt := sh.heldPacket()
		buf := sh.packetSlots.Buffer(sh.cur.Hal.InputSlot)
		if dst, ok := buf.Ptr.([]byte); ok && pkt != nil {
			copy(dst, pkt.Data[pkt.Cursor:pkt.Size])
		}
		if err := sh.packetSlots.SetFlag(ctx, sh.cur.Hal.InputSlot, slot.CodecReady); err != nil {
			return false, err
		}
		if err := sh.packetSlots.SetFlag(ctx, sh.cur.Hal.InputSlot, slot.HALInput); err != nil {
			return false, err
		}
		sh.cur.Status |= task.StatusPayloadCopied
		return true, nil
	}

	if !sh.cur.Status.Has(task.StatusPreviousTaskRetired) {
		if ps.previousTaskBlocks() {
			sh.cur.Wait |= task.WaitPreviousTask
			return false, nil
		}
		sh.cur.Status |= task.StatusPreviousTaskRetired
		sh.cur.Wait &^= task.WaitPreviousTask
		return true, nil
	}

	if sh.display.IsFull(ctx) {
		sh.cur.Wait |= task.WaitDisplayQueueFull
		return false, nil
	}
	sh.cur.Wait &^= task.WaitDisplayQueueFull

	if sh.frameSlots.Size()-sh.frameSlots.LiveCount() < frameBufferPoolThreshold(sh.postproc != nil) {
		sh.cur.Wait |= task.WaitBufferPoolFull
		return false, nil
	}
	sh.cur.Wait &^= task.WaitBufferPoolFull

	if !sh.cur.Status.Has(task.StatusInfoTaskGenerated) {
		// A previous turn already submitted the info-change beacon for
		// this geometry transition (via this same DecTask's handle,
		// reused by submitBeacon); wait for the hardware stage to
		// acknowledge it (frameSlots.Ready) before calling Parse again,
		// rather than resubmitting the beacon on every retry.
		if sh.cur.Wait.Has(task.WaitInfoChange) {
			if sh.frameSlots.IsChanged() {
				return false, nil
			}
			sh.cur.Wait &^= task.WaitInfoChange
			return true, nil
		}

		if sh.frameSlots.LiveCount() >= sh.frameSlots.Size() {
			sh.cur.Wait |= task.WaitFrameSlot
			return false, nil
		}
		sh.cur.Wait &^= task.WaitFrameSlot

		// Parse binds slots directly against sh.packetSlots/sh.frameSlots
		// (registry methods require the enclosing stage lock held by the
		// caller), so unlike Prepare this call must not drop sh.mu.
		res, err := sh.parser.Parse(ctx, &sh.cur, sh.packetSlots, sh.frameSlots)
		if err != nil {
			return false, err
		}
		if sh.frameSlots.IsChanged() {
			if !ps.submitBeacon(ctx, task.HalDecTask{Flags: task.HalDecTaskFlags{InfoChange: true}}) {
				return false, nil
			}
			sh.cur.Wait |= task.WaitInfoChange
			return true, nil
		}
		if !res.Valid {
			if res.EOS {
				if !ps.submitBeacon(ctx, task.HalDecTask{Flags: task.HalDecTaskFlags{EOS: true}}) {
					return false, nil
				}
				ps.beginFresh()
				return true, nil
			}
			ps.releaseCurrentHandle(ctx)
			ps.beginFresh()
			return true, nil
		}
		sh.cur.Status |= task.StatusInfoTaskGenerated
		return true, nil
	}

	// Step 12: allocate the output frame buffer if the parser didn't
	// already bind one during Parse.
	if sh.frameSlots.Buffer(sh.cur.Hal.OutputSlot) == nil {
		size := sh.frameSlots.GetSize(1)
		if size <= 0 {
			size = 1
		}
		buf := &slot.Buffer{Ptr: make([]byte, size), Size: size}
		if err := sh.frameSlots.AttachBuffer(ctx, sh.cur.Hal.OutputSlot, buf); err != nil {
			return false, err
		}
	}

	if err := sh.frameSlots.SetFlag(ctx, sh.cur.Hal.OutputSlot, slot.HALOutput); err != nil {
		return false, err
	}
	for _, ref := range sh.cur.Hal.RefSlots {
		if err := sh.frameSlots.SetFlag(ctx, ref, slot.HALInput); err != nil {
			return false, err
		}
	}
	sh.cur.Hal.Valid = true

	sh.mu.Unlock()
	if err := sh.hardware.RegGen(ctx, &sh.cur.Hal); err != nil {
		sh.mu.Lock()
		return false, err
	}
	if err := sh.hardware.Start(ctx, &sh.cur.Hal); err != nil {
		sh.mu.Lock()
		return false, err
	}
	sh.mu.Lock()
	sh.cur.Status |= task.StatusParseComplete

	sh.tasks.HndSetInfo(sh.cur.Handle, sh.cur.Hal)
	sh.tasks.HndSetStatus(sh.cur.Handle, task.Processing)
	sh.prevWaitDone = sh.cur.Hal.Flags.WaitDone
	sh.hardwareWork.Broadcast()
	ps.beginFresh()
	return true, nil
}

// previousTaskBlocks implements spec.md §4.3 step 7's two variants: in
// non-fast mode, wait for every other handle to leave PROCESSING,
// recycling any that have reached PROC_DONE back to IDLE along the
// way; in fast-mode, wait only when wait_done was latched on the
// previous submission and the PROCESSING queue has not fully drained.
func (ps *ParserStage) previousTaskBlocks() bool {
	sh := ps.sh
	if !sh.cfg.FastMode {
		blocked := false
		handles := sh.tasks.Handles()
		for i := range handles {
			h := &handles[i]
			if sh.cur.Handle != nil && h.Index == sh.cur.Handle.Index {
				continue
			}
			switch h.Status() {
			case task.Processing:
				blocked = true
			case task.ProcDone:
				sh.tasks.HndSetStatus(h, task.Idle)
			}
		}
		return blocked
	}
	return sh.prevWaitDone && !sh.tasks.AllDone()
}

// submitBeacon submits the in-flight DecTask's own handle carrying
// only a protocol event through the same PROCESSING queue as data
// tasks (spec.md §4.3 step 3/11 "submit the task ... as an eos beacon",
// glossary "Beacon task"). Called with sh.mu held; by construction the
// handle-acquired step always precedes both call sites, so cur.Handle
// is never nil here. Returns false, leaving the DecTask untouched,
// only in the defensive case that invariant does not hold.
func (ps *ParserStage) submitBeacon(ctx context.Context, hal task.HalDecTask) bool {
	sh := ps.sh
	if sh.cur.Handle == nil {
		sh.cur.Wait |= task.WaitTaskHandle
		return false
	}
	sh.tasks.HndSetInfo(sh.cur.Handle, hal)
	sh.tasks.HndSetStatus(sh.cur.Handle, task.Processing)
	sh.hardwareWork.Broadcast()
	return true
}

// releaseCurrentHandle returns the handle held by the in-flight DecTask
// to IDLE without submitting it (spec.md §4.3 step 11 "release the
// handle to IDLE and retry").
func (ps *ParserStage) releaseCurrentHandle(ctx context.Context) {
	sh := ps.sh
	if sh.cur.Handle != nil {
		sh.tasks.HndSetStatus(sh.cur.Handle, task.Idle)
	}
}

// beginFresh starts a new DecTask, per spec.md §4.3 step 14 / §3
// "Lifecycle: ... a fresh DecTask is started".
func (ps *ParserStage) beginFresh() {
	ps.sh.cur = task.DecTask{}
}

func tsPair(pkt *packet.Packet) tsqueue.TimePair {
	return tsqueue.TimePair{PTS: pkt.PTS, DTS: pkt.DTS}
}

package pipeline

import (
	"context"

	"github.com/Damenly/mpp/frame"
	"github.com/Damenly/mpp/logger"
	"github.com/Damenly/mpp/slot"
	"github.com/xaionaro-go/xsync"
)

// DisplayPath is the output queue of spec.md §2.8: frames the hardware
// stage has finished with, drained into the external output frame
// queue, optionally by way of a post-processor. It is a small
// independent leaf object carrying its own lock (spec.md §5 "the
// display queue has its own lock"), grounded on the teacher's
// xsync.Mutex leaf-locking convention (codec/decoder.go).
type DisplayPath struct {
	locker xsync.Mutex

	limit   int
	pending []*frame.Frame
	outCh   chan *frame.Frame
}

func newDisplayPath(limit int, outCh chan *frame.Frame) *DisplayPath {
	return &DisplayPath{limit: limit, outCh: outCh}
}

// Len returns the number of frames currently held in the pending list
// (spec.md P7).
func (d *DisplayPath) Len(ctx context.Context) int {
	return xsync.DoR1(ctx, &d.locker, func() int {
		return len(d.pending)
	})
}

// IsFull reports whether the pending list has reached the backpressure
// threshold (spec.md §4.3 step 8 "fail if the output frame list holds
// more than four pending frames").
func (d *DisplayPath) IsFull(ctx context.Context) bool {
	return xsync.DoR1(ctx, &d.locker, func() bool {
		return len(d.pending) > d.limit
	})
}

// Push appends a frame to the pending list and opportunistically drains
// whatever the external consumer is ready to accept. Frames that do not
// fit yet stay queued: draining is retried by Flush, and by every later
// Push, so a consumer that resumes reading unblocks the backlog without
// the producer having to notice on its own (spec.md §8 scenario 5).
func (d *DisplayPath) Push(ctx context.Context, f *frame.Frame) {
	d.locker.Do(ctx, func() {
		d.pending = append(d.pending, f)
		d.drainLocked()
	})
}

// Flush attempts to hand off as many pending frames as the external
// consumer will currently accept, without blocking. The hardware stage
// calls this after every state change (spec.md §4.4 step 4 "Drain the
// display queue into the external output").
func (d *DisplayPath) Flush(ctx context.Context) {
	d.locker.Do(ctx, func() {
		d.drainLocked()
	})
}

// Drain unconditionally empties the pending list into the external
// output, blocking if necessary. Reserved for the reset protocol
// (spec.md §4.5h), which must guarantee the list is empty afterward
// regardless of whether a consumer is currently reading.
func (d *DisplayPath) Drain(ctx context.Context) []*frame.Frame {
	return xsync.DoR1(ctx, &d.locker, func() []*frame.Frame {
		leftover := d.pending
		d.pending = nil
		return leftover
	})
}

func (d *DisplayPath) drainLocked() {
	for len(d.pending) > 0 {
		select {
		case d.outCh <- d.pending[0]:
			d.pending = d.pending[1:]
		default:
			return
		}
	}
}

// emitOptions carries the "flags" argument of spec.md §4.7's
// `(slot_index, flags)` emission call.
type emitOptions struct {
	infoChange bool
	eos        bool
	hadError   bool
	usedForRef bool
}

// emit implements spec.md §4.7 "Output frame emission": given a frame
// slot and flags, decide whether the frame is routed to the
// post-processor or appended (deep-copied) directly to the display
// path, applying disable_error suppression, info-change slot marking,
// and preset-time-order PTS/DTS substitution along the way.
func (sh *shared) emit(ctx context.Context, slotIndex int, opts emitOptions) error {
	sh.mu.Lock()
	f := sh.frameSlots.Frame(slotIndex)
	if f == nil {
		sh.mu.Unlock()
		return ErrNullPtr
	}

	if sh.disableError.Load() {
		f.ErrInfo = false
		f.Discard = false
	}

	if opts.infoChange {
		if err := sh.frameSlots.SetFlag(ctx, slotIndex, slot.CodecReady); err != nil {
			sh.mu.Unlock()
			return err
		}
	} else if sh.presetTimeOrder.Load() {
		sh.mu.Unlock()
		pair := sh.tsq.Pop(ctx)
		sh.mu.Lock()
		if pair.IsSet() {
			v := pair.Get()
			f.PTS, f.DTS = v.PTS, v.DTS
		}
	}

	if opts.eos {
		f.EOS = true
		if opts.hadError {
			if opts.usedForRef {
				f.ErrInfo = true
			} else {
				f.Discard = true
			}
		}
	}

	toPostproc := sh.postproc != nil && f.Interlace != frame.InterlaceNone && sh.deinterlace.Load()
	if toPostproc {
		if err := sh.frameSlots.SetFlag(ctx, slotIndex, slot.QueueUse); err != nil {
			sh.mu.Unlock()
			return err
		}
	}
	needStart := f.Interlace != frame.InterlaceNone && sh.deinterlace.Load()
	cloned := f.Clone()
	sh.mu.Unlock()

	if needStart {
		if err := sh.ensurePostproc(ctx, f); err != nil {
			return err
		}
	}

	if toPostproc {
		if err := sh.postproc.Submit(ctx, slotIndex, f); err != nil {
			logger.Errorf(ctx, "postproc submit failed for slot %d: %v", slotIndex, err)
			return err
		}
		return nil
	}

	sh.display.Push(ctx, cloned)
	return nil
}

// ensurePostproc lazily starts the post-processor the first time
// interlaced content with deinterlacing enabled is seen (spec.md §4.7
// "lazily initialize and start the post-processor").
func (sh *shared) ensurePostproc(ctx context.Context, f *frame.Frame) error {
	if sh.postproc == nil {
		if sh.warnedNoPostproc.CompareAndSwap(false, true) {
			logger.Warnf(ctx, "deinterlacing enabled but no post-processor collaborator configured; interlaced frames pass through unmodified")
		}
		return nil
	}
	return sh.postproc.Start(ctx, f, func(ctx context.Context, out *frame.Frame) error {
		sh.display.Push(ctx, out)
		return nil
	})
}

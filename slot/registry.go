// Package slot implements the BufferSlots registries of spec.md §4.1:
// two independent, fixed-size pools of slots that track a compressed
// packet buffer's or a decoded frame's lifetime through the pipeline
// via a reference-counted-like flag bitmask.
//
// A Registry carries no lock of its own (spec.md §5): callers must
// hold the enclosing stage's work lock before calling any method here.
package slot

import (
	"context"
	"fmt"

	"github.com/Damenly/mpp/frame"
	"github.com/Damenly/mpp/internal"
	"github.com/Damenly/mpp/logger"
	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"
)

// QueueName identifies one of a registry's output-queue memberships
// (spec.md §4.1 "one or more output queues (e.g. DISPLAY, DEINTERLACE)").
type QueueName string

const (
	QueueDisplay     QueueName = "DISPLAY"
	QueueDeinterlace QueueName = "DEINTERLACE"
)

// Buffer is an opaque, reference-counted-by-flags backing memory
// buffer. Allocation itself is an ambient concern (spec.md §1
// "memory-allocation primitives" are out of scope) — Registry only
// needs to know how to drop a reference when a slot dies.
type Buffer struct {
	// Ptr is opaque to this package; the hardware/parser collaborators
	// interpret it.
	Ptr any
	// Size is the buffer's capacity in bytes, used by GetSize/backpressure.
	Size int
	// Release is called exactly once, when the owning slot's flags all
	// clear.
	Release func()
}

type entry struct {
	index   int
	flags   Flags
	buffer  *Buffer
	frame   *frame.Frame
	queues  map[QueueName]struct{}
	setSeen [4]bool // debug-only: which bits have been Set without a matching Clr yet
}

func bitPos(bit Flags) int {
	switch bit {
	case CodecReady:
		return 0
	case HALInput:
		return 1
	case HALOutput:
		return 2
	case QueueUse:
		return 3
	default:
		panic(fmt.Sprintf("slot: unknown flag bit %d", bit))
	}
}

// Registry is one of the two BufferSlots pools of spec.md §4.1.
type Registry struct {
	Name string

	entries []entry
	free    []int // stack of free slot indices, LIFO for cache locality

	changed atomic.Bool // "geometry changed" latch (spec.md §3)
	geoW    int
	geoH    int
}

// NewRegistry allocates a fixed-size registry of size slots.
func NewRegistry(name string, size int) *Registry {
	r := &Registry{
		Name:    name,
		entries: make([]entry, size),
		free:    make([]int, size),
	}
	for i := 0; i < size; i++ {
		r.entries[i].index = i
		r.entries[i].queues = make(map[QueueName]struct{})
		r.free[size-1-i] = i
	}
	return r
}

// Size returns the fixed slot count of the registry.
func (r *Registry) Size() int {
	return len(r.entries)
}

func (r *Registry) checkIndex(index int) error {
	if index < 0 || index >= len(r.entries) {
		return ErrInvalidIndex{Registry: r.Name, Index: index, Size: len(r.entries)}
	}
	return nil
}

// GetUnused returns an unused slot index, or ErrNoSlot if the registry
// is fully allocated (spec.md §4.1).
func (r *Registry) GetUnused(ctx context.Context) (int, error) {
	if len(r.free) == 0 {
		return 0, ErrNoSlot{Registry: r.Name}
	}
	idx := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	logger.Tracef(ctx, "slot[%s]: allocated slot %d", r.Name, idx)
	return idx, nil
}

// SetFlag sets a reason-to-live bit on the slot. Setting an
// already-set bit is a debug-build assertion failure: spec.md §3 (I1)
// requires each bit be cleared exactly once per set, which implies
// callers must not set it twice without an intervening clear.
func (r *Registry) SetFlag(ctx context.Context, index int, bit Flags) error {
	if err := r.checkIndex(index); err != nil {
		return err
	}
	e := &r.entries[index]
	pos := bitPos(bit)
	internal.Assert(ctx, !e.setSeen[pos], r.Name, index, bit, "flag set twice without an intervening clear")
	e.setSeen[pos] = true
	e.flags |= bit
	logger.Tracef(ctx, "slot[%s][%d]: set %s -> %s", r.Name, index, bit, e.flags)
	return nil
}

// ClrFlag clears a reason-to-live bit. When the last bit clears, the
// slot's buffer reference is released and the slot returns to the free
// pool (spec.md §3).
func (r *Registry) ClrFlag(ctx context.Context, index int, bit Flags) error {
	if err := r.checkIndex(index); err != nil {
		return err
	}
	e := &r.entries[index]
	pos := bitPos(bit)
	internal.Assert(ctx, e.setSeen[pos], r.Name, index, bit, "flag cleared without having been set")
	e.setSeen[pos] = false
	e.flags &^= bit
	logger.Tracef(ctx, "slot[%s][%d]: clr %s -> %s", r.Name, index, bit, e.flags)
	if !e.flags.IsAlive() {
		r.freeSlot(ctx, e)
	}
	return nil
}

func (r *Registry) freeSlot(ctx context.Context, e *entry) {
	if e.buffer != nil {
		if e.buffer.Release != nil {
			e.buffer.Release()
		}
		e.buffer = nil
	}
	if e.frame != nil {
		frame.Pool.Put(e.frame)
		e.frame = nil
	}
	for q := range e.queues {
		delete(e.queues, q)
	}
	logger.Tracef(ctx, "slot[%s][%d]: all flags clear, returning to free pool", r.Name, e.index)
	r.free = append(r.free, e.index)
}

// Reset unconditionally clears every flag on a slot, bypassing the
// normal balance assertion. Reserved for the reset path (spec.md
// §4.5), where the pipeline is being forced back to a clean state and
// balanced set/clr pairing can no longer be assumed.
func (r *Registry) Reset(ctx context.Context, index int) error {
	if err := r.checkIndex(index); err != nil {
		return err
	}
	e := &r.entries[index]
	if !e.flags.IsAlive() {
		return nil
	}
	logger.Debugf(ctx, "slot[%s][%d]: force reset (was %s)", r.Name, index, e.flags)
	e.flags = 0
	e.setSeen = [4]bool{}
	r.freeSlot(ctx, e)
	return nil
}

// Flags returns the current flag bitmask of a slot.
func (r *Registry) Flags(index int) Flags {
	if index < 0 || index >= len(r.entries) {
		return 0
	}
	return r.entries[index].flags
}

// AttachBuffer binds a backing buffer to a slot (spec.md §4.1
// "attach/detach buffers").
func (r *Registry) AttachBuffer(ctx context.Context, index int, buf *Buffer) error {
	if err := r.checkIndex(index); err != nil {
		return err
	}
	e := &r.entries[index]
	if e.buffer != nil && e.buffer.Release != nil {
		e.buffer.Release()
	}
	e.buffer = buf
	logger.Tracef(ctx, "slot[%s][%d]: attached buffer (size=%s)", r.Name, index, humanize.Bytes(uint64(bufferSize(buf))))
	return nil
}

func bufferSize(b *Buffer) int {
	if b == nil {
		return 0
	}
	return b.Size
}

// Buffer returns the buffer currently attached to a slot, or nil.
func (r *Registry) Buffer(index int) *Buffer {
	if index < 0 || index >= len(r.entries) {
		return nil
	}
	return r.entries[index].buffer
}

// SetFrame records the descriptive frame for a slot (spec.md §3, §4.1
// "get_prop/set_prop ... frame pointer").
func (r *Registry) SetFrame(index int, f *frame.Frame) error {
	if err := r.checkIndex(index); err != nil {
		return err
	}
	r.entries[index].frame = f
	return nil
}

// Frame returns the descriptive frame recorded for a slot, or nil.
func (r *Registry) Frame(index int) *frame.Frame {
	if index < 0 || index >= len(r.entries) {
		return nil
	}
	return r.entries[index].frame
}

// Enqueue adds a slot to the membership of an output queue (spec.md
// §4.1). A slot may belong to more than one queue at once (e.g.
// DISPLAY and DEINTERLACE).
func (r *Registry) Enqueue(ctx context.Context, index int, queue QueueName) error {
	if err := r.checkIndex(index); err != nil {
		return err
	}
	r.entries[index].queues[queue] = struct{}{}
	logger.Tracef(ctx, "slot[%s][%d]: enqueued to %s", r.Name, index, queue)
	return nil
}

// Dequeue removes and returns one member of queue, in slot-index
// order, or ErrQueueEmpty. Slot-index order is a simplification over a
// true FIFO timestamp order; callers that need strict FIFO membership
// order track it themselves (see pipeline.DisplayPath), which already
// must serialize enqueue/dequeue under its own lock.
func (r *Registry) Dequeue(ctx context.Context, queue QueueName) (int, error) {
	for i := range r.entries {
		e := &r.entries[i]
		if _, ok := e.queues[queue]; ok {
			delete(e.queues, queue)
			logger.Tracef(ctx, "slot[%s][%d]: dequeued from %s", r.Name, e.index, queue)
			return e.index, nil
		}
	}
	return 0, ErrQueueEmpty{Registry: r.Name, Queue: queue}
}

// InQueue reports whether a slot currently belongs to queue.
func (r *Registry) InQueue(index int, queue QueueName) bool {
	if index < 0 || index >= len(r.entries) {
		return false
	}
	_, ok := r.entries[index].queues[queue]
	return ok
}

// SetGeometry records the frame geometry seen by the parser. If it
// differs from the previously recorded geometry, the "geometry
// changed" latch is set (spec.md §3, §4.1 "report 'geometry changed'
// condition").
func (r *Registry) SetGeometry(ctx context.Context, width, height int) {
	if width == r.geoW && height == r.geoH {
		return
	}
	logger.Infof(ctx, "slot[%s]: geometry changed %dx%d -> %dx%d", r.Name, r.geoW, r.geoH, width, height)
	r.geoW, r.geoH = width, height
	r.changed.Store(true)
}

// IsChanged reports whether the geometry-changed latch is set.
func (r *Registry) IsChanged() bool {
	return r.changed.Load()
}

// Ready acknowledges and clears the geometry-changed latch (spec.md
// §4.1 "ready()").
func (r *Registry) Ready(ctx context.Context) {
	if r.changed.CompareAndSwap(true, false) {
		logger.Debugf(ctx, "slot[%s]: geometry-changed latch cleared", r.Name)
	}
}

// GetSize returns the byte size currently required per buffer, derived
// from the latest recorded geometry. The concrete pixel-format-aware
// calculation belongs to the parser collaborator; a registry only
// knows the geometry it was told about (spec.md §4.1 "get_size()").
func (r *Registry) GetSize(bytesPerPixel int) int {
	if bytesPerPixel <= 0 {
		bytesPerPixel = 1
	}
	return r.geoW * r.geoH * bytesPerPixel
}

// LiveCount returns the number of slots currently alive (any flag
// set). Wired to the MPP_DEC_GET_VPUMEM_USED_COUNT control command
// (spec.md §6; see DESIGN.md).
func (r *Registry) LiveCount() int {
	return len(r.entries) - len(r.free)
}

// Package task implements the TaskGroup of spec.md §4.2: a fixed-size
// ring of task handles cycling through IDLE -> PROCESSING -> PROC_DONE
// -> IDLE, each carrying one HalDecTask payload.
//
// Like slot.Registry, Group carries no lock of its own (spec.md §5):
// callers must hold the enclosing stage's work lock.
package task

import "fmt"

// Handle is one element of a Group's ring (spec.md glossary "Task
// handle").
type Handle struct {
	Index  int
	status HandleStatus
	info   HalDecTask
}

// Status returns the handle's current state.
func (h *Handle) Status() HandleStatus {
	return h.status
}

// ErrNoHandle is returned by GetHnd when no handle is currently in the
// requested state.
type ErrNoHandle struct {
	State HandleStatus
}

func (e ErrNoHandle) Error() string {
	return fmt.Sprintf("no task handle in state %s", e.State)
}

// Group is the TaskGroup of spec.md §4.2.
type Group struct {
	handles []Handle
	cursor  int // round-robin start point, preserves FIFO tie-break across calls

	submitOrder     []int // FIFO order of handles currently PROCESSING (I6)
	processingCount int
}

// NewGroup allocates a ring of size handles, all starting IDLE. size is
// 2 in the non-fast-mode configuration and 3 in fast-mode (spec.md §6
// "init(cfg)").
func NewGroup(size int) *Group {
	g := &Group{handles: make([]Handle, size)}
	for i := range g.handles {
		g.handles[i].Index = i
	}
	return g
}

// Size returns the fixed handle count.
func (g *Group) Size() int {
	return len(g.handles)
}

// GetHnd returns a handle currently in state, breaking ties in FIFO
// (ring) order starting after the last handle returned, or ErrNoHandle
// (spec.md §4.2).
func (g *Group) GetHnd(state HandleStatus) (*Handle, error) {
	n := len(g.handles)
	for i := 0; i < n; i++ {
		idx := (g.cursor + i) % n
		if g.handles[idx].status == state {
			g.cursor = (idx + 1) % n
			return &g.handles[idx], nil
		}
	}
	return nil, ErrNoHandle{State: state}
}

// CheckEmpty reports whether any handle is currently in state (spec.md
// §4.2 "check_empty" — named for its use-site, which checks "is
// PROCESSING empty", i.e. it returns true iff at least one handle is
// in state, and callers negate it for the emptiness check).
func (g *Group) CheckEmpty(state HandleStatus) bool {
	for i := range g.handles {
		if g.handles[i].status == state {
			return true
		}
	}
	return false
}

// HndSetStatus transitions a handle's status, maintaining the FIFO
// PROCESSING submission order (I6) and the AllDone bookkeeping
// counter used by the fast-mode previous-task gate (spec.md §4.3 step
// 7, SPEC_FULL.md §9).
func (g *Group) HndSetStatus(h *Handle, status HandleStatus) {
	if h.status == Processing && status != Processing {
		g.processingCount--
		g.removeFromSubmitOrder(h.Index)
	}
	if h.status != Processing && status == Processing {
		g.processingCount++
		g.submitOrder = append(g.submitOrder, h.Index)
	}
	h.status = status
}

func (g *Group) removeFromSubmitOrder(index int) {
	for i, v := range g.submitOrder {
		if v == index {
			g.submitOrder = append(g.submitOrder[:i], g.submitOrder[i+1:]...)
			return
		}
	}
}

// HndSetInfo stores the HalDecTask payload for a handle (spec.md §4.2).
func (g *Group) HndSetInfo(h *Handle, info HalDecTask) {
	h.info = info
}

// HndGetInfo returns the HalDecTask payload stored for a handle.
func (g *Group) HndGetInfo(h *Handle) HalDecTask {
	return h.info
}

// NextProcessing returns the oldest handle currently PROCESSING,
// preserving submission order (I6, spec.md §5 "the hardware stage
// FIFO-drains PROCESSING").
func (g *Group) NextProcessing() (*Handle, bool) {
	if len(g.submitOrder) == 0 {
		return nil, false
	}
	return &g.handles[g.submitOrder[0]], true
}

// AllDone reports whether the PROCESSING queue has fully drained, i.e.
// no handle is currently PROCESSING. This is the `dec_all_done`
// bookkeeping of the original decoder (SPEC_FULL.md §9), kept as an
// O(1) counter rather than a re-scan of the ring on every parser turn.
func (g *Group) AllDone() bool {
	return g.processingCount == 0
}

// Handles exposes the underlying ring for iteration by callers that
// need to inspect every handle at once (e.g. the reset protocol,
// spec.md §4.5b "forces all PROC_DONE handles back to IDLE").
func (g *Group) Handles() []Handle {
	return g.handles
}

// ForceIdle transitions every handle not already IDLE back to IDLE,
// clearing its payload. Reserved for the reset path.
func (g *Group) ForceIdle() {
	for i := range g.handles {
		if g.handles[i].status != Idle {
			g.HndSetStatus(&g.handles[i], Idle)
		}
		g.handles[i].info = HalDecTask{}
	}
}

// Package postproc declares the interface to the optional
// post-processing / deinterlacing stage, kept interface-only per
// spec.md §1: "no deinterlacer algorithm".
package postproc

import (
	"context"

	"github.com/Damenly/mpp/frame"
)

// OutputFunc is how a post-processor hands a (possibly transformed)
// frame back to the display path once it is ready to be shown.
type OutputFunc func(ctx context.Context, f *frame.Frame) error

// Collaborator is the post-processor seam of spec.md §2.8, §4.7.
// The hardware stage lazily initializes and starts one when it first
// sees interlaced content while deinterlacing is enabled
// (spec.md §4.7).
type Collaborator interface {
	// Start lazily initializes the post-processor against the geometry
	// of the first frame routed to it, and records the callback it must
	// use to deliver finished frames onward to the display path.
	Start(ctx context.Context, f *frame.Frame, output OutputFunc) error

	// Submit routes one slot's frame through the post-processor. The
	// post-processor is responsible for eventually delivering the
	// (possibly transformed) frame to the display path itself.
	Submit(ctx context.Context, slotIndex int, f *frame.Frame) error

	// Reset forwards the control-surface reset call (spec.md §4.5d
	// "post-processor reset").
	Reset(ctx context.Context) error

	// Close releases any resources held by the post-processor.
	Close(ctx context.Context) error
}

// Package parser declares the interface to the concrete bitstream
// parser (H.264/H.265/VP9/MJPEG), an external collaborator kept
// interface-only per spec.md §1: "no specification of bitstream
// syntax".
package parser

import (
	"context"

	"github.com/Damenly/mpp/packet"
	"github.com/Damenly/mpp/slot"
	"github.com/Damenly/mpp/task"
)

// PrepareResult carries what Prepare learned about the packet it was
// given (spec.md §4 "Parser collaborator").
type PrepareResult struct {
	// Valid is true when one access unit is ready in t.
	Valid bool
	// EOS is true at end of stream, independent of Valid: a packet may
	// signal EOS with or without a trailing access unit (spec.md §4.3
	// step 3).
	EOS bool
}

// ParseResult carries what Parse learned after binding slots.
type ParseResult struct {
	Valid bool
	EOS   bool
	// GeometryChanged is true when this call caused the registry's
	// geometry-changed latch to fire (spec.md §4.3 step 11).
	GeometryChanged bool
}

// Collaborator is the parser-side seam of spec.md §2.4.
//
// Implementations are expected to be codec-specific (H.264, H.265,
// VP9, MJPEG, ...); this module only depends on the interface.
type Collaborator interface {
	// Prepare extracts one access unit from pkt into t, advancing
	// pkt.Cursor (spec.md §4 "prepare(packet, task)").
	Prepare(ctx context.Context, pkt *packet.Packet, t *task.DecTask) (PrepareResult, error)

	// Parse populates t.Hal's reference-slot indices and output slot
	// index against the given registries, and may flip the frame
	// registry's geometry-changed latch (spec.md §4 "parse(task)").
	Parse(ctx context.Context, t *task.DecTask, packetSlots, frameSlots *slot.Registry) (ParseResult, error)

	// Flush and Reset forward the corresponding control-surface calls
	// (spec.md §6 "flush", §4.5d "parser.reset()"). Reset is a no-op
	// for stateless codecs (e.g. MJPEG, spec.md §4.5).
	Flush(ctx context.Context) error
	Reset(ctx context.Context) error

	// Control forwards an unrecognized control command verbatim
	// (spec.md §6 "Unknown commands are forwarded to parser and
	// hardware collaborators").
	Control(ctx context.Context, name string, payload any) error
}

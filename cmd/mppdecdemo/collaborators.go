package main

import (
	"context"

	"github.com/Damenly/mpp/frame"
	"github.com/Damenly/mpp/packet"
	"github.com/Damenly/mpp/parser"
	"github.com/Damenly/mpp/slot"
	"github.com/Damenly/mpp/task"
)

// demoParser treats every non-empty packet as exactly one access unit
// against a fixed geometry. It stands in for a concrete bitstream
// parser, which is out of scope for this module (see
// parser.Collaborator's doc comment).
type demoParser struct {
	width, height int
}

func newDemoParser(width, height int) *demoParser {
	return &demoParser{width: width, height: height}
}

var _ parser.Collaborator = (*demoParser)(nil)

func (p *demoParser) Prepare(ctx context.Context, pkt *packet.Packet, t *task.DecTask) (parser.PrepareResult, error) {
	valid := pkt.Remaining() > 0
	if valid {
		pkt.Cursor = pkt.Size
	}
	return parser.PrepareResult{Valid: valid, EOS: pkt.EOS}, nil
}

func (p *demoParser) Parse(ctx context.Context, t *task.DecTask, packetSlots, frameSlots *slot.Registry) (parser.ParseResult, error) {
	frameSlots.SetGeometry(ctx, p.width, p.height)
	if frameSlots.IsChanged() {
		return parser.ParseResult{GeometryChanged: true}, nil
	}

	idx, err := frameSlots.GetUnused(ctx)
	if err != nil {
		return parser.ParseResult{}, err
	}
	t.Hal.OutputSlot = idx

	f := frame.Pool.Get()
	f.Width, f.Height = p.width, p.height
	frameSlots.SetFrame(idx, f)
	return parser.ParseResult{Valid: true}, nil
}

func (p *demoParser) Flush(ctx context.Context) error { return nil }
func (p *demoParser) Reset(ctx context.Context) error { return nil }
func (p *demoParser) Control(ctx context.Context, name string, payload any) error {
	return nil
}

// demoHal completes every task immediately, standing in for a concrete
// hardware register-generation/submission layer (see hal.Collaborator's
// doc comment).
type demoHal struct{}

func newDemoHal() *demoHal { return &demoHal{} }

func (h *demoHal) RegGen(ctx context.Context, t *task.HalDecTask) error { return nil }
func (h *demoHal) Start(ctx context.Context, t *task.HalDecTask) error  { return nil }
func (h *demoHal) Wait(ctx context.Context, t *task.HalDecTask) error   { return nil }
func (h *demoHal) Flush(ctx context.Context) error                     { return nil }
func (h *demoHal) Reset(ctx context.Context) error                     { return nil }
func (h *demoHal) Control(ctx context.Context, name string, payload any) error {
	return nil
}

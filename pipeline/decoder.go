// Package pipeline implements the decoder pipeline scheduler: the
// two-stage parser/hardware scheduler, its shared buffer-slot and
// task-group bookkeeping, and the control surface described by the
// mppdec design (see SPEC_FULL.md).
package pipeline

import (
	"context"

	"github.com/Damenly/mpp/frame"
	"github.com/Damenly/mpp/hal"
	"github.com/Damenly/mpp/helpers/closuresignaler"
	"github.com/Damenly/mpp/logger"
	"github.com/Damenly/mpp/packet"
	"github.com/Damenly/mpp/parser"
	"github.com/Damenly/mpp/postproc"
	"github.com/Damenly/mpp/types"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/xcontext"
)

// Decoder is the composition root of spec.md §6: it owns the two
// scheduler stages, the shared registries and task group, and exposes
// the lifecycle/control/data-port surface.
type Decoder struct {
	sh *shared

	parserStage   *ParserStage
	hardwareStage *HardwareStage

	closer *closuresignaler.ClosureSignaler
}

// GetObjectID identifies this decoder instance by pointer identity, for
// logging keys that must distinguish two decoders even if their
// correlation IDs are ever reused (mirrors the teacher's node-graph
// convention of tagging goroutines with `%s:%p:%d`, node_serve.go).
func (d *Decoder) GetObjectID() types.ObjectID {
	return types.GetObjectID(d)
}

// New allocates and starts a decoder instance (spec.md §6 "init(cfg)").
// p and h are mandatory external collaborators; pp is the optional
// post-processor, nil if deinterlacing is never going to be enabled.
func New(ctx context.Context, cfg Config, p parser.Collaborator, h hal.Collaborator, pp postproc.Collaborator) (*Decoder, error) {
	if p == nil || h == nil {
		return nil, ErrNullPtr
	}

	inputQueue := make(chan *packet.Packet, cfg.packetSlotCount())
	outputQueue := make(chan *frame.Frame, cfg.frameSlotCount())

	sh := newShared(cfg, p, h, inputQueue, outputQueue)
	sh.postproc = pp

	d := &Decoder{
		sh:            sh,
		parserStage:   newParserStage(sh),
		hardwareStage: newHardwareStage(sh),
		closer:        closuresignaler.New(),
	}

	runCtx := xcontext.DetachDone(ctx)
	runCtx = belt.WithField(runCtx, "decoder_id", sh.id.String())

	if err := p.Control(ctx, "set-notify", NotifyFunc(sh.notify)); err != nil {
		logger.Debugf(ctx, "init: parser does not accept a notify callback: %v", err)
	}
	if err := h.Control(ctx, "set-notify", NotifyFunc(sh.notify)); err != nil {
		logger.Debugf(ctx, "init: hardware does not accept a notify callback: %v", err)
	}

	go d.parserStage.Run(runCtx)
	go d.hardwareStage.Run(runCtx)

	logger.Infof(ctx, "decoder[%s:%d]: initialized (coding=%s fast_mode=%t task_handles=%d)",
		sh.id, d.GetObjectID(), cfg.Coding, cfg.FastMode, cfg.taskHandleCount())
	return d, nil
}

// Deinit tears down both stages, the collaborators, and the slot
// registries (spec.md §6 "deinit").
func (d *Decoder) Deinit(ctx context.Context) error {
	if !d.sh.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.parserStage.Close()
	d.hardwareStage.Close()

	if err := d.sh.parser.Flush(ctx); err != nil {
		logger.Errorf(ctx, "deinit: parser flush: %v", err)
	}
	if err := d.sh.hardware.Flush(ctx); err != nil {
		logger.Errorf(ctx, "deinit: hardware flush: %v", err)
	}
	if d.sh.postproc != nil {
		if err := d.sh.postproc.Close(ctx); err != nil {
			logger.Errorf(ctx, "deinit: postproc close: %v", err)
		}
	}
	d.closer.Close(ctx)
	return nil
}

// Done returns a channel that closes once Deinit has completed.
func (d *Decoder) Done() <-chan struct{} {
	return d.closer.CloseChan()
}

// Reset drives spec.md §4.5's protocol to completion and blocks until
// the pipeline has settled back to a clean state (P2, P9).
func (d *Decoder) Reset(ctx context.Context) error {
	sh := d.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.closed.Load() {
		return ErrClosed
	}
	sh.resetRequested = true
	sh.resetAck = false
	sh.wakeAll()
	for !sh.resetAck {
		sh.control.Wait()
	}
	return nil
}

// Flush forwards to the parser and hardware collaborators without
// draining the pipeline (spec.md §6 "flush": "no pipeline drain").
// A flush on an already-empty pipeline is a no-op by construction
// (P10): the collaborators own idempotence of their own flush.
func (d *Decoder) Flush(ctx context.Context) error {
	sh := d.sh
	if sh.closed.Load() {
		return ErrClosed
	}
	if err := sh.parser.Flush(ctx); err != nil {
		return err
	}
	return sh.hardware.Flush(ctx)
}

// InputPackets returns the send side of the input packet queue
// (spec.md §6 "Data ports: input packet queue (MPSC)").
func (d *Decoder) InputPackets() chan<- *packet.Packet {
	return d.sh.inputQueue
}

// OutputFrames returns the receive side of the output frame queue.
func (d *Decoder) OutputFrames() <-chan *frame.Frame {
	return d.sh.display.outCh
}

// Control dispatches one control command (spec.md §6 "Control
// commands").
func (d *Decoder) Control(ctx context.Context, cmd ControlCommand) error {
	sh := d.sh
	if sh.closed.Load() {
		return ErrClosed
	}
	switch cmd.kind {
	case controlSetFrameInfo:
		wh := cmd.payload.([2]int)
		sh.mu.Lock()
		sh.frameSlots.SetGeometry(ctx, wh[0], wh[1])
		sh.mu.Unlock()
		return nil
	case controlGetVPUMemUsedCount:
		out, ok := cmd.payload.(*int)
		if !ok || out == nil {
			return ErrNullPtr
		}
		sh.mu.Lock()
		*out = sh.frameSlots.LiveCount()
		sh.mu.Unlock()
		return nil
	case controlSetDisableError:
		sh.disableError.Store(cmd.payload.(bool))
		return nil
	case controlSetPresentTimeOrder:
		sh.presetTimeOrder.Store(cmd.payload.(bool))
		return nil
	case controlSetEnableDeinterlace:
		sh.deinterlace.Store(cmd.payload.(bool))
		return nil
	default:
		var firstErr error
		if err := sh.parser.Control(ctx, cmd.name, cmd.payload); err != nil {
			firstErr = err
		}
		if err := sh.hardware.Control(ctx, cmd.name, cmd.payload); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
}

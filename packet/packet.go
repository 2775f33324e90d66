// Package packet defines the compressed-bytes carrier the pipeline reads
// from the input queue and writes into packet-slot buffers.
package packet

import (
	"context"
	"sync"

	"github.com/Damenly/mpp/internal"
	"github.com/Damenly/mpp/logger"
)

// Packet is an opaque carrier of compressed bytes plus timing metadata.
// It is not owned by the core: the caller who enqueued it retains
// ownership and gets it back via Release when the pipeline is done
// reading from it.
type Packet struct {
	Data   []byte
	PTS    int64
	DTS    int64
	Size   int
	Cursor int
	EOS    bool

	// Release, if set, is called exactly once when the pipeline has
	// consumed the packet down to Cursor == Size (or discarded it).
	Release func()
}

// Remaining reports how many bytes of the packet have not yet been
// consumed by Parser.Prepare.
func (p *Packet) Remaining() int {
	if p == nil {
		return 0
	}
	return p.Size - p.Cursor
}

// Consumed reports whether the packet has been fully read.
func (p *Packet) Consumed() bool {
	return p.Remaining() <= 0
}

func (p *Packet) release() {
	if p == nil || p.Release == nil {
		return
	}
	release := p.Release
	p.Release = nil
	release()
}

// Done hands the packet back to whoever enqueued it, exactly once
// (spec.md §4.3 step 3 "If this consumes the packet entirely ...
// release it"). Safe to call on an already-released packet.
func (p *Packet) Done() {
	p.release()
}

// Pool recycles Packet structs (not their backing Data, which is owned
// by the caller of the input queue). Grounded on the teacher's
// frame.Pool convention (sync.Pool wrapped for reuse of the small
// carrier struct, not the underlying buffer memory).
var Pool = pool{Pool: &sync.Pool{New: func() any { return &Packet{} }}}

type pool struct {
	*sync.Pool
}

// Get returns a Packet from the pool and arms a finalizer that warns if
// it is ever garbage-collected with its Release callback still set —
// a caller-side leak, since Done()/release() always clears it first.
func (p pool) Get(ctx context.Context) *Packet {
	pkt := p.Pool.Get().(*Packet)
	internal.SetFinalizer(ctx, pkt, func(pkt *Packet) {
		if pkt.Release != nil {
			logger.Warnf(ctx, "packet garbage-collected with Release still pending (leaked before Done)")
		}
	})
	return pkt
}

func (p pool) Put(pkt *Packet) {
	if pkt == nil {
		return
	}
	pkt.release()
	*pkt = Packet{}
	p.Pool.Put(pkt)
}

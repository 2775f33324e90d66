package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Damenly/mpp/frame"
)

// Each fixture below first runs one ordinary decode through the
// pipelined path so the frame registry's geometry-changed latch is
// already cleared before Advanced is exercised: like every other
// fixture's first packet, Advanced's own first Parse call would
// otherwise trip the latch and never populate a slot (see
// TestGeometryChangeEmitsInfoChangeFrame).

// TestAdvancedDecodesIntoSuppliedFrame covers the normal path of
// spec.md §4.6: a caller-supplied output frame is filled in place from
// the buffer-supplied one-shot decode, bypassing the task group and
// display queue entirely.
func TestAdvancedDecodesIntoSuppliedFrame(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 32, height: 24}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})

	d.InputPackets() <- newTestPacket(ctx, []byte{0x01}, false)
	drainFrames(t, d, 1)

	out := frame.Pool.Get()
	pkt := newTestPacket(ctx, []byte{0x02}, false)
	err := d.Advanced(ctx, &AdvancedTask{InputPacket: pkt, OutputFrame: out})
	require.NoError(t, err)
	require.Equal(t, 32, out.Width)
	require.Equal(t, 24, out.Height)
	require.False(t, out.ErrInfo)
}

// TestAdvancedSynthesizesFrameWhenOutputFrameNil covers spec.md §9's
// open question, resolved per original_source/: calling Advanced with
// a nil OutputFrame synthesizes a fresh one rather than failing, and
// warns exactly once per decoder instance (advanced.go's
// warnedAdvancedNoBuffer latch).
func TestAdvancedSynthesizesFrameWhenOutputFrameNil(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 16, height: 16}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})

	d.InputPackets() <- newTestPacket(ctx, []byte{0x01}, false)
	drainFrames(t, d, 1)

	require.False(t, d.sh.warnedAdvancedNoBuffer.Load())

	task := &AdvancedTask{InputPacket: newTestPacket(ctx, []byte{0x02}, false)}
	err := d.Advanced(ctx, task)
	require.NoError(t, err)
	require.NotNil(t, task.OutputFrame)
	require.Equal(t, 16, task.OutputFrame.Width)
	require.True(t, d.sh.warnedAdvancedNoBuffer.Load())

	// A second call must not warn again (CompareAndSwap latch), and
	// must still synthesize a frame every time OutputFrame is nil.
	task2 := &AdvancedTask{InputPacket: newTestPacket(ctx, []byte{0x03}, false)}
	require.NoError(t, d.Advanced(ctx, task2))
	require.NotNil(t, task2.OutputFrame)
}

// TestAdvancedNullInputPacketErrors covers the ErrNullPtr guard.
func TestAdvancedNullInputPacketErrors(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 8, height: 8}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})

	err := d.Advanced(ctx, &AdvancedTask{})
	require.ErrorIs(t, err, ErrNullPtr)

	err = d.Advanced(ctx, nil)
	require.ErrorIs(t, err, ErrNullPtr)
}

// TestAdvancedOnClosedDecoderErrors covers the ErrClosed guard.
func TestAdvancedOnClosedDecoderErrors(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 8, height: 8}
	d, err := New(ctx, Config{Coding: CodingH264}, p, &fakeHal{}, nil)
	require.NoError(t, err)
	require.NoError(t, d.Deinit(ctx))

	err = d.Advanced(ctx, &AdvancedTask{InputPacket: newTestPacket(ctx, []byte{0x01}, false)})
	require.ErrorIs(t, err, ErrClosed)
}

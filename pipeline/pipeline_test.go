package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Damenly/mpp/frame"
	"github.com/Damenly/mpp/logger"
	"github.com/Damenly/mpp/packet"
	"github.com/Damenly/mpp/parser"
	"github.com/Damenly/mpp/slot"
	"github.com/Damenly/mpp/task"
)

func testContext(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelTrace)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.SetDefault(func() logger.Logger { return l })
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

// fakeParser treats every non-empty packet as exactly one access unit
// against a fixed, caller-supplied geometry: it never splits a packet
// and never changes geometry on its own, so tests that pre-seed
// geometry via SetFrameInfoCmd never see a spurious info-change beacon.
type fakeParser struct {
	width, height int
}

var _ parser.Collaborator = (*fakeParser)(nil)

func (p *fakeParser) Prepare(ctx context.Context, pkt *packet.Packet, t *task.DecTask) (parser.PrepareResult, error) {
	valid := pkt.Remaining() > 0
	if valid {
		pkt.Cursor = pkt.Size
	}
	return parser.PrepareResult{Valid: valid, EOS: pkt.EOS}, nil
}

func (p *fakeParser) Parse(ctx context.Context, t *task.DecTask, packetSlots, frameSlots *slot.Registry) (parser.ParseResult, error) {
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

func (p *fakeParser) Flush(ctx context.Context) error { return nil }
func (p *fakeParser) Reset(ctx context.Context) error { return nil }
func (p *fakeParser) Control(ctx context.Context, name string, payload any) error {
	return nil
}

// fakeHal completes every task immediately, as if the hardware engine
// had zero latency, unless gate is set: then Wait blocks on it until
// closed, standing in for a hardware engine that takes visible time to
// process one task while others queue up behind it.
type fakeHal struct {
	gate chan struct{}
}

func (h *fakeHal) RegGen(ctx context.Context, t *task.HalDecTask) error { return nil }
func (h *fakeHal) Start(ctx context.Context, t *task.HalDecTask) error  { return nil }
func (h *fakeHal) Wait(ctx context.Context, t *task.HalDecTask) error {
	if h.gate != nil {
		<-h.gate
	}
	return nil
}
func (h *fakeHal) Flush(ctx context.Context) error { return nil }
func (h *fakeHal) Reset(ctx context.Context) error { return nil }
func (h *fakeHal) Control(ctx context.Context, name string, payload any) error {
	return nil
}

// processingCount returns how many task handles currently sit in
// PROCESSING, under the stage lock.
func processingCount(d *Decoder) int {
	d.sh.mu.Lock()
	defer d.sh.mu.Unlock()
	n := 0
	for _, h := range d.sh.tasks.Handles() {
		if h.Status() == task.Processing {
			n++
		}
	}
	return n
}

func newTestPacket(ctx context.Context, data []byte, eos bool) *packet.Packet {
	pkt := packet.Pool.Get(ctx)
	pkt.Data = data
	pkt.Size = len(data)
	pkt.EOS = eos
	return pkt
}

// drainFrames collects n real (non-info-change) frames, silently
// skipping the sequence-header-style info-change frame every stream
// emits once, the first time it establishes geometry.
func drainFrames(t *testing.T, d *Decoder, n int) []*frame.Frame {
	t.Helper()
	out := make([]*frame.Frame, 0, n)
	deadline := time.After(3 * time.Second)
	for len(out) < n {
		select {
		case f := <-d.OutputFrames():
			if f.InfoChange {
				continue
			}
			out = append(out, f)
		case <-deadline:
			t.Fatalf("timed out waiting for %d frames, got %d", n, len(out))
		}
	}
	return out
}

func newTestDecoder(t *testing.T, ctx context.Context, cfg Config, p parser.Collaborator, h *fakeHal) *Decoder {
	t.Helper()
	d, err := New(ctx, cfg, p, h, nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Deinit(ctx) })
	return d
}

func TestDecodeSingleFrame(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 64, height: 64}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})
	require.NoError(t, d.Control(ctx, SetFrameInfoCmd(64, 64)))

	d.InputPackets() <- newTestPacket(ctx, []byte{0x01, 0x02}, false)

	frames := drainFrames(t, d, 1)
	require.False(t, frames[0].EOS)
	require.Equal(t, 64, frames[0].Width)
}

// TestEOSOnValidTaskProducesEOSFrame covers the case spec.md §8
// scenario 1 describes: the packet that carries eos still yields a
// valid, non-beacon access unit, and the frame decoded from it must
// itself carry eos=1 (see DESIGN.md, "shared.emit never set Frame.EOS").
func TestEOSOnValidTaskProducesEOSFrame(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 32, height: 32}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})
	require.NoError(t, d.Control(ctx, SetFrameInfoCmd(32, 32)))

	d.InputPackets() <- newTestPacket(ctx, []byte{0xAA}, false)
	d.InputPackets() <- newTestPacket(ctx, []byte{0xBB}, true)

	frames := drainFrames(t, d, 2)
	require.False(t, frames[0].EOS)
	require.True(t, frames[1].EOS)
}

// TestPureEOSBeaconProducesSyntheticFrame covers an eos packet with no
// trailing access unit: it must flow through as a beacon, producing an
// empty synthetic frame rather than a real decoded one.
func TestPureEOSBeaconProducesSyntheticFrame(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 16, height: 16}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})
	require.NoError(t, d.Control(ctx, SetFrameInfoCmd(16, 16)))

	d.InputPackets() <- newTestPacket(ctx, nil, true)

	frames := drainFrames(t, d, 1)
	require.True(t, frames[0].EOS)
	require.Zero(t, frames[0].Width)
}

func TestResetDrainsAndIsIdempotent(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 8, height: 8}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})
	require.NoError(t, d.Control(ctx, SetFrameInfoCmd(8, 8)))

	d.InputPackets() <- newTestPacket(ctx, []byte{0x01}, false)
	drainFrames(t, d, 1)

	require.NoError(t, d.Reset(ctx))
	require.Equal(t, 0, d.sh.frameSlots.LiveCount())
	require.Equal(t, 0, d.sh.packetSlots.LiveCount())

	require.NoError(t, d.Reset(ctx), "reset on an already-clean pipeline must not hang or error")

	d.InputPackets() <- newTestPacket(ctx, []byte{0x02}, false)
	frames := drainFrames(t, d, 1)
	require.False(t, frames[0].EOS)
}

// TestGeometryChangeEmitsInfoChangeFrame exercises the fix to the
// WaitInfoChange retry ordering (DESIGN.md): a geometry transition must
// submit exactly one info-change beacon and then hold the DecTask
// parked until the hardware stage acknowledges it, rather than
// resubmitting the beacon on every parser turn while parked.
func TestGeometryChangeEmitsInfoChangeFrame(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 64, height: 64}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})

	d.InputPackets() <- newTestPacket(ctx, []byte{0x01}, false)

	f := <-d.OutputFrames()
	require.True(t, f.InfoChange)

	f2 := <-d.OutputFrames()
	require.False(t, f2.InfoChange)
	require.Equal(t, 64, f2.Width)
}

// TestFastModePipelinesMultipleTasks covers spec.md §8 scenario 6:
// fast mode's third task handle must let a second task reach
// PROCESSING while the hardware collaborator is still busy with the
// first, rather than the parser stalling on previousTaskBlocks until
// the first retires (the non-fast-mode behavior).
func TestFastModePipelinesMultipleTasks(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 4, height: 4}
	h := &fakeHal{gate: make(chan struct{})}
	cfg := Config{Coding: CodingH264, FastMode: true, PacketSlotCount: 4, FrameSlotCount: 4}
	d := newTestDecoder(t, ctx, cfg, p, h)

	// The very first Parse call always trips the geometry-changed latch
	// (see TestGeometryChangeEmitsInfoChangeFrame); its beacon retires
	// through handleBeacon, which never calls hardware.Wait, so it
	// drains before the gate matters.
	f := <-d.OutputFrames()
	require.True(t, f.InfoChange)

	d.InputPackets() <- newTestPacket(ctx, []byte{0x01}, false)
	d.InputPackets() <- newTestPacket(ctx, []byte{0x02}, false)

	require.Eventually(t, func() bool {
		return processingCount(d) >= 2
	}, 3*time.Second, time.Millisecond, "fast mode should let a second task reach PROCESSING before the first is retired")

	close(h.gate)
	frames := drainFrames(t, d, 2)
	require.Len(t, frames, 2)
}

// TestNonFastModeSerializesTasks is the counterpart to
// TestFastModePipelinesMultipleTasks: with only two handles and no
// fast-mode pipelining, previousTaskBlocks forces the parser to wait
// for the in-flight task to leave PROCESSING before a second one can
// join it there.
func TestNonFastModeSerializesTasks(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 4, height: 4}
	h := &fakeHal{gate: make(chan struct{})}
	cfg := Config{Coding: CodingH264, PacketSlotCount: 4, FrameSlotCount: 4}
	d := newTestDecoder(t, ctx, cfg, p, h)

	f := <-d.OutputFrames()
	require.True(t, f.InfoChange)

	d.InputPackets() <- newTestPacket(ctx, []byte{0x01}, false)
	d.InputPackets() <- newTestPacket(ctx, []byte{0x02}, false)

	require.Never(t, func() bool {
		return processingCount(d) >= 2
	}, 200*time.Millisecond, 10*time.Millisecond, "non-fast mode must never let two tasks be PROCESSING at once")

	close(h.gate)
	frames := drainFrames(t, d, 2)
	require.Len(t, frames, 2)
}

func TestResetSkipsDrainForStatelessCoding(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 8, height: 8}
	d := newTestDecoder(t, ctx, Config{Coding: CodingMJPEG}, p, &fakeHal{})
	require.NoError(t, d.Control(ctx, SetFrameInfoCmd(8, 8)))

	require.NoError(t, d.Reset(ctx))
}

// TestBackpressureDoesNotDropFrames pushes more packets than the
// configured slot counts can hold live at once, exercising the
// WaitBufferPoolFull/WaitDisplayQueueFull gates: every packet must
// still eventually surface as a frame, none silently dropped.
func TestBackpressureDoesNotDropFrames(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 4, height: 4}
	cfg := Config{Coding: CodingH264, PacketSlotCount: 2, FrameSlotCount: 2, DisplayQueueLimit: 1}
	d := newTestDecoder(t, ctx, cfg, p, &fakeHal{})
	require.NoError(t, d.Control(ctx, SetFrameInfoCmd(4, 4)))

	const n = 6
	go func() {
		for i := 0; i < n; i++ {
			d.InputPackets() <- newTestPacket(ctx, []byte{byte(i)}, i == n-1)
		}
	}()

	frames := drainFrames(t, d, n)
	require.Len(t, frames, n)
	require.True(t, frames[n-1].EOS)
}

func TestControlSetDisableErrorSuppressesFlags(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 4, height: 4}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})
	require.NoError(t, d.Control(ctx, SetFrameInfoCmd(4, 4)))
	require.NoError(t, d.Control(ctx, SetDisableErrorCmd(true)))

	d.InputPackets() <- newTestPacket(ctx, []byte{0x01}, false)
	frames := drainFrames(t, d, 1)
	require.False(t, frames[0].ErrInfo)
	require.False(t, frames[0].Discard)
}

func TestGetVPUMemUsedCountReflectsLiveFrameSlots(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 4, height: 4}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})
	require.NoError(t, d.Control(ctx, SetFrameInfoCmd(4, 4)))

	var before int
	require.NoError(t, d.Control(ctx, GetVPUMemUsedCountCmd(&before)))
	require.Equal(t, 0, before)

	d.InputPackets() <- newTestPacket(ctx, []byte{0x01}, false)
	drainFrames(t, d, 1)
}

func TestDeinitIsIdempotent(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 4, height: 4}
	d, err := New(ctx, Config{Coding: CodingH264}, p, &fakeHal{}, nil)
	require.NoError(t, err)

	require.NoError(t, d.Deinit(ctx))
	require.NoError(t, d.Deinit(ctx))
	select {
	case <-d.Done():
	default:
		t.Fatal("Done() channel should be closed after Deinit")
	}

	err = d.Reset(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestGetObjectIDIsStablePerInstance(t *testing.T) {
	ctx := testContext(t)
	p := &fakeParser{width: 4, height: 4}
	d := newTestDecoder(t, ctx, Config{Coding: CodingH264}, p, &fakeHal{})
	require.Equal(t, d.GetObjectID(), d.GetObjectID())
	require.NotZero(t, d.GetObjectID())
}

package slot

import (
	"context"
	"testing"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Damenly/mpp/logger"
)

func testContext(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelTrace)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.SetDefault(func() logger.Logger { return l })
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

func TestGetUnusedExhaustion(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry("packet", 2)

	idx0, err := r.GetUnused(ctx)
	require.NoError(t, err)
	idx1, err := r.GetUnused(ctx)
	require.NoError(t, err)
	require.NotEqual(t, idx0, idx1)

	_, err = r.GetUnused(ctx)
	require.ErrorAs(t, err, &ErrNoSlot{})
}

func TestSetFlagTwiceAsserts(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry("packet", 1)
	idx, err := r.GetUnused(ctx)
	require.NoError(t, err)

	require.NoError(t, r.SetFlag(ctx, idx, HALInput))
	require.Panics(t, func() {
		_ = r.SetFlag(ctx, idx, HALInput)
	})
}

func TestClrFlagWithoutSetAsserts(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry("packet", 1)
	idx, err := r.GetUnused(ctx)
	require.NoError(t, err)

	require.Panics(t, func() {
		_ = r.ClrFlag(ctx, idx, HALInput)
	})
}

func TestSlotReturnsToFreePoolOnceEveryFlagClears(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry("packet", 1)
	idx, err := r.GetUnused(ctx)
	require.NoError(t, err)

	require.NoError(t, r.SetFlag(ctx, idx, HALInput))
	require.NoError(t, r.SetFlag(ctx, idx, CodecReady))
	require.Equal(t, 1, r.LiveCount())

	require.NoError(t, r.ClrFlag(ctx, idx, HALInput))
	require.Equal(t, 1, r.LiveCount(), "still alive: CodecReady not cleared yet")

	require.NoError(t, r.ClrFlag(ctx, idx, CodecReady))
	require.Equal(t, 0, r.LiveCount())

	idx2, err := r.GetUnused(ctx)
	require.NoError(t, err)
	require.Equal(t, idx, idx2)
}

func TestAttachBufferReleasesPrevious(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry("frame", 1)
	idx, err := r.GetUnused(ctx)
	require.NoError(t, err)

	released := false
	require.NoError(t, r.AttachBuffer(ctx, idx, &Buffer{Size: 4, Release: func() { released = true }}))
	require.NoError(t, r.AttachBuffer(ctx, idx, &Buffer{Size: 8}))
	require.True(t, released)
}

func TestResetBypassesBalanceAssertion(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry("frame", 1)
	idx, err := r.GetUnused(ctx)
	require.NoError(t, err)
	require.NoError(t, r.SetFlag(ctx, idx, HALOutput))

	require.NoError(t, r.Reset(ctx, idx))
	require.Equal(t, 0, r.LiveCount())

	// the slot is fully free again, including its per-bit "set without
	// clear" bookkeeping, so a normal set/clear cycle works afterward.
	idx2, err := r.GetUnused(ctx)
	require.NoError(t, err)
	require.Equal(t, idx, idx2)
	require.NoError(t, r.SetFlag(ctx, idx2, HALOutput))
	require.NoError(t, r.ClrFlag(ctx, idx2, HALOutput))
}

func TestGeometryChangedLatch(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry("frame", 1)
	require.False(t, r.IsChanged())

	r.SetGeometry(ctx, 1920, 1080)
	require.True(t, r.IsChanged())

	r.Ready(ctx)
	require.False(t, r.IsChanged())

	r.SetGeometry(ctx, 1920, 1080)
	require.False(t, r.IsChanged(), "identical geometry must not re-trip the latch")

	r.SetGeometry(ctx, 1280, 720)
	require.True(t, r.IsChanged())
}

func TestEnqueueDequeue(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry("frame", 2)
	idxA, _ := r.GetUnused(ctx)
	idxB, _ := r.GetUnused(ctx)

	require.NoError(t, r.Enqueue(ctx, idxA, QueueDisplay))
	require.NoError(t, r.Enqueue(ctx, idxB, QueueDisplay))
	require.True(t, r.InQueue(idxA, QueueDisplay))

	got, err := r.Dequeue(ctx, QueueDisplay)
	require.NoError(t, err)
	require.Equal(t, idxA, got)
	require.False(t, r.InQueue(idxA, QueueDisplay))

	got, err = r.Dequeue(ctx, QueueDisplay)
	require.NoError(t, err)
	require.Equal(t, idxB, got)

	_, err = r.Dequeue(ctx, QueueDisplay)
	require.ErrorAs(t, err, &ErrQueueEmpty{})
}

func TestInvalidIndex(t *testing.T) {
	ctx := testContext(t)
	r := NewRegistry("packet", 1)
	err := r.SetFlag(ctx, 5, HALInput)
	require.ErrorAs(t, err, &ErrInvalidIndex{})
}

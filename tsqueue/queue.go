// Package tsqueue implements the optional TimestampQueue of spec.md
// §2.3: a FIFO preserving input packet PTS/DTS pairs for later
// attachment to output frames when set-present-time-order is enabled
// (spec.md §6).
package tsqueue

import (
	"context"

	"github.com/Damenly/mpp/logger"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xsync"
)

// TimePair is one PTS/DTS pair recorded at prepare time (spec.md §5
// "Packet PTS/DTS are attached to the corresponding decoded frame ...
// in FIFO order of prepare calls").
type TimePair struct {
	PTS int64
	DTS int64
}

// Queue is a small independent leaf object; it carries its own lock
// (spec.md §5), grounded on the teacher's xsync.Mutex leaf-locking
// convention (codec/decoder.go).
type Queue struct {
	locker xsync.Mutex
	items  []TimePair
}

// New returns an empty TimestampQueue.
func New() *Queue {
	return &Queue{}
}

// Push appends a PTS/DTS pair, mirroring one Parser.Prepare call
// (spec.md §4.3 step 2).
func (q *Queue) Push(ctx context.Context, pair TimePair) {
	q.locker.Do(ctx, func() {
		q.items = append(q.items, pair)
		logger.Tracef(ctx, "tsqueue: pushed pts=%d dts=%d (len=%d)", pair.PTS, pair.DTS, len(q.items))
	})
}

// Pop removes and returns the oldest pair, or an unset Optional if the
// queue is empty (spec.md §4.7 "overwrite PTS/DTS from the
// TimestampQueue").
func (q *Queue) Pop(ctx context.Context) typing.Optional[TimePair] {
	return xsync.DoR1(ctx, &q.locker, func() typing.Optional[TimePair] {
		if len(q.items) == 0 {
			return typing.Optional[TimePair]{}
		}
		pair := q.items[0]
		q.items = q.items[1:]
		logger.Tracef(ctx, "tsqueue: popped pts=%d dts=%d (len=%d)", pair.PTS, pair.DTS, len(q.items))
		return typing.Opt(pair)
	})
}

// Len returns the number of pending pairs.
func (q *Queue) Len(ctx context.Context) int {
	return xsync.DoR1(ctx, &q.locker, func() int {
		return len(q.items)
	})
}

// Flush discards every pending pair (spec.md §4.5i "Flushes the
// TimestampQueue").
func (q *Queue) Flush(ctx context.Context) {
	q.locker.Do(ctx, func() {
		if len(q.items) > 0 {
			logger.Debugf(ctx, "tsqueue: flushing %d pending pair(s)", len(q.items))
		}
		q.items = nil
	})
}

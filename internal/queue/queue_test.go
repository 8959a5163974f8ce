package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueueFullAfterCapacityEnqueues(t *testing.T) {
	q := New(4, 8)
	p, c := q.Views()

	for i := 0; i < 4; i++ {
		slot, ok := p.GetFreeSlot()
		require.True(t, ok)
		slot[0] = byte(i)
		require.True(t, p.CommitEnqueue())
	}

	require.True(t, q.IsFull())
	_, ok := p.GetFreeSlot()
	require.False(t, ok, "GetFreeSlot must return false once full")

	for i := 0; i < 4; i++ {
		slot, ok := c.PeekFront()
		require.True(t, ok)
		require.Equal(t, byte(i), slot[0])
		require.True(t, c.CommitDequeue())
	}
	require.True(t, q.IsEmpty())
}

// TestQueueSizeNeverExceedsCapacity is invariant #1 of spec §8, exercised
// with randomized enqueue/dequeue interleavings via rapid.
func TestQueueSizeNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(rt, "capacity")
		q := New(capacity, 4)
		p, c := q.Views()

		enqueued, dequeued := 0, 0
		ops := rapid.IntRange(0, 200).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			if rapid.Bool().Draw(rt, "doEnqueue") {
				if slot, ok := p.GetFreeSlot(); ok {
					slot[0] = byte(enqueued)
					require.True(rt, p.CommitEnqueue())
					enqueued++
				} else {
					require.True(rt, q.IsFull())
				}
			} else {
				if _, ok := c.PeekFront(); ok {
					require.True(rt, c.CommitDequeue())
					dequeued++
				} else {
					require.True(rt, q.IsEmpty())
				}
			}
			require.LessOrEqual(rt, q.Size(), q.Capacity())
			require.Equal(rt, enqueued-dequeued, q.Size())
		}
		if enqueued == dequeued {
			require.True(rt, q.IsEmpty())
		}
	})
}

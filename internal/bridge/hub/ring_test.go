package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	r := newRing(3)
	for i := int64(1); i <= 5; i++ {
		r.append(entry{TimestampMs: i, TurnID: i})
	}
	snap := r.snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].TurnID, snap[1].TurnID, snap[2].TurnID})
}

func TestRingNeverExceedsBound(t *testing.T) {
	r := newRing(5)
	for i := 0; i < 100; i++ {
		r.append(entry{TimestampMs: int64(i)})
		assert.LessOrEqual(t, r.len(), 5)
	}
}

func TestRingPreservesInsertionOrder(t *testing.T) {
	r := newRing(10)
	for i := int64(1); i <= 4; i++ {
		r.append(entry{TimestampMs: i * 10, TurnID: i})
	}
	snap := r.snapshot()
	for i := 1; i < len(snap); i++ {
		assert.LessOrEqual(t, snap[i-1].TimestampMs, snap[i].TimestampMs)
		assert.LessOrEqual(t, snap[i-1].TurnID, snap[i].TurnID)
	}
}

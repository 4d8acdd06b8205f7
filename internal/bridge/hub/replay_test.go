package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkEntries(spec ...[2]int64) []entry {
	out := make([]entry, len(spec))
	for i, s := range spec {
		out[i] = entry{TimestampMs: s[0], TurnID: s[1], Data: json.RawMessage(`{}`)}
	}
	return out
}

func TestComputeReplayNoParamsReturnsFullRing(t *testing.T) {
	entries := mkEntries([2]int64{10, 1}, [2]int64{20, 1}, [2]int64{30, 2})
	out := computeReplay(entries, ReplayQuery{})
	assert.Equal(t, entries, out)
}

func TestComputeReplaySinceExclusive(t *testing.T) {
	entries := mkEntries([2]int64{10, 1}, [2]int64{20, 1}, [2]int64{30, 2})
	out := computeReplay(entries, ReplayQuery{Since: 20, HasSince: true})
	require.Len(t, out, 1)
	assert.Equal(t, int64(30), out[0].TimestampMs)
}

func TestComputeReplayBeforeExclusive(t *testing.T) {
	entries := mkEntries([2]int64{10, 1}, [2]int64{20, 1}, [2]int64{30, 2})
	out := computeReplay(entries, ReplayQuery{Before: 30, HasBefore: true})
	require.Len(t, out, 2)
	assert.Equal(t, int64(10), out[0].TimestampMs)
	assert.Equal(t, int64(20), out[1].TimestampMs)
}

func TestComputeReplayLimitKeepsLastNDistinctTurns(t *testing.T) {
	entries := mkEntries(
		[2]int64{10, 1}, [2]int64{20, 1},
		[2]int64{30, 2},
		[2]int64{40, 3}, [2]int64{50, 3},
	)
	out := computeReplay(entries, ReplayQuery{Limit: 2, HasLimit: true})

	turns := map[int64]bool{}
	for _, e := range out {
		turns[e.TurnID] = true
	}
	assert.Len(t, turns, 2)
	assert.True(t, turns[2])
	assert.True(t, turns[3])
	assert.False(t, turns[1])

	// within-turn order preserved
	require.Len(t, out, 3)
	assert.Equal(t, []int64{30, 40, 50}, []int64{out[0].TimestampMs, out[1].TimestampMs, out[2].TimestampMs})
}

func TestComputeReplayLimitGreaterThanAvailableTurnsReturnsAll(t *testing.T) {
	entries := mkEntries([2]int64{10, 1}, [2]int64{20, 2})
	out := computeReplay(entries, ReplayQuery{Limit: 50, HasLimit: true})
	assert.Len(t, out, 2)
}

func TestBuildEnvelopeCarriesTimestampAndData(t *testing.T) {
	e := entry{TimestampMs: 123, TurnID: 1, Data: json.RawMessage(`{"x":1}`)}
	f, err := buildEnvelope(e, 0)
	require.NoError(t, err)
	assert.Equal(t, "bridge/replay", f.Method)

	var env ReplayEnvelope
	require.NoError(t, json.Unmarshal(f.Params, &env))
	assert.Equal(t, int64(123), env.Timestamp)
	assert.JSONEq(t, `{"x":1,"_turnId":1,"_hidden":""}`, string(env.Data))
	assert.Equal(t, "123-0", env.ReplayID)
}

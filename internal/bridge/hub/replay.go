package hub

import (
	"encoding/json"
	"strconv"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

// ReplayQuery carries the connection-time query parameters from spec §4.4
// "Replay on connection" / §6 "Replay query".
type ReplayQuery struct {
	Limit  int   // turn count; 0 means unset
	Since  int64 // ms, exclusive lower bound; 0 means unset
	Before int64 // ms, exclusive upper bound; 0 means unset

	HasLimit  bool
	HasSince  bool
	HasBefore bool
}

// ReplayEnvelope is the bridge/replay wire payload: a stored frame plus its
// original timestamp, turn id, hidden mode, and a replay identifier.
type ReplayEnvelope struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ReplayID  string          `json:"replayId"`
}

// computeReplay runs the five-step algorithm from spec §4.4 against a ring
// snapshot, returning the entries to replay in order.
func computeReplay(entries []entry, q ReplayQuery) []entry {
	// Step 1: take the whole ring (entries is already that).
	filtered := entries

	// Step 2: drop entries with timestamp <= since.
	if q.HasSince {
		out := filtered[:0:0]
		for _, e := range filtered {
			if e.TimestampMs > q.Since {
				out = append(out, e)
			}
		}
		filtered = out
	}

	// Step 3: drop entries with timestamp >= before.
	if q.HasBefore {
		out := filtered[:0:0]
		for _, e := range filtered {
			if e.TimestampMs < q.Before {
				out = append(out, e)
			}
		}
		filtered = out
	}

	// Step 4: if limit provided, keep only entries whose turn id is among
	// the last `limit` distinct turn ids, in the order they first appear.
	if q.HasLimit && q.Limit > 0 {
		seen := map[int64]bool{}
		var order []int64
		for _, e := range filtered {
			if !seen[e.TurnID] {
				seen[e.TurnID] = true
				order = append(order, e.TurnID)
			}
		}
		keep := map[int64]bool{}
		start := len(order) - q.Limit
		if start < 0 {
			start = 0
		}
		for _, t := range order[start:] {
			keep[t] = true
		}
		out := filtered[:0:0]
		for _, e := range filtered {
			if keep[e.TurnID] {
				out = append(out, e)
			}
		}
		filtered = out
	}

	return filtered
}

// buildEnvelope wraps an entry as a bridge/replay frame (step 5). replayID
// follows the "timestamp-index" scheme named in spec §4.4. The original
// turn id and hidden mode are carried inside Data via the non-protocol
// "_turnId"/"_hidden" fields so a reconnecting client can reconstitute
// per-turn hidden behavior (spec §4.4 "Broadcast envelope").
func buildEnvelope(e entry, index int) (*wire.Frame, error) {
	env := ReplayEnvelope{
		Timestamp: e.TimestampMs,
		Data:      augmentWithTurnMetadata(e.Data, e.TurnID, e.Hidden),
		ReplayID:  replayID(e.TimestampMs, index),
	}
	return wire.NewNotification(wire.MethodBridgeReplay, env)
}

func augmentWithTurnMetadata(data json.RawMessage, turnID int64, hidden string) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return data
	}
	turnIDJSON, _ := json.Marshal(turnID)
	hiddenJSON, _ := json.Marshal(hidden)
	fields["_turnId"] = turnIDJSON
	fields["_hidden"] = hiddenJSON
	out, err := json.Marshal(fields)
	if err != nil {
		return data
	}
	return out
}

func replayID(timestampMs int64, index int) string {
	return strconv.FormatInt(timestampMs, 10) + "-" + strconv.Itoa(index)
}

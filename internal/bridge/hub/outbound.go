package hub

import (
	"encoding/json"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/tagparser"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

// transformOutbound feeds a single outbound frame through C2, returning the
// resulting ordered sequence of frames to record/broadcast (spec §4.2
// "Parts are re-serialized into wire frames" and §4.4 "Outbound frame
// policy" step 0). Frames that don't carry agent_message_chunk/
// agent_thought_chunk text pass through untouched; a stop-of-turn frame
// triggers a flush of any held parser state first.
func (h *Hub) transformOutbound(f *wire.Frame) []*wire.Frame {
	if h.tp == nil {
		return []*wire.Frame{f}
	}

	if isStopOfTurn(f) {
		// Flushed text goes out as ordinary agent_message_chunk updates ahead
		// of the stop frame itself, not inside the stop frame's envelope.
		var payload wire.SessionUpdatePayload
		_ = json.Unmarshal(f.Params, &payload)
		var out []*wire.Frame
		for _, p := range h.tp.Flush() {
			payload.Update = wire.SessionUpdate{Type: wire.UpdateAgentMessageChunk, Content: &wire.ContentItem{Type: "text", Text: p.Text}}
			if chunk, err := wire.NewNotification(wire.MethodSessionUpdate, payload); err == nil {
				out = append(out, chunk)
			}
		}
		return append(out, f)
	}

	text, isChunk := chunkText(f)
	if !isChunk || text == "" {
		return []*wire.Frame{f}
	}

	parts := h.tp.Feed(text)
	return h.reserializeParts(f, parts)
}

// isStopOfTurn reports whether f is an end_of_turn session update or a
// JSON-RPC response carrying a stop reason (spec §4.2 "Flushing").
func isStopOfTurn(f *wire.Frame) bool {
	if f.Method == wire.MethodSessionUpdate {
		var payload wire.SessionUpdatePayload
		if err := json.Unmarshal(f.Params, &payload); err == nil {
			return payload.Update.Type == wire.UpdateEndOfTurn
		}
		return false
	}
	if f.IsResponse() && len(f.Result) > 0 {
		var probe struct {
			StopReason string `json:"stopReason"`
		}
		if err := json.Unmarshal(f.Result, &probe); err == nil {
			return probe.StopReason != ""
		}
	}
	return false
}

// chunkText extracts the text delta from an agent_message_chunk or
// agent_thought_chunk update, if f is one.
func chunkText(f *wire.Frame) (string, bool) {
	if f.Method != wire.MethodSessionUpdate {
		return "", false
	}
	var payload wire.SessionUpdatePayload
	if err := json.Unmarshal(f.Params, &payload); err != nil {
		return "", false
	}
	switch payload.Update.Type {
	case wire.UpdateAgentMessageChunk, wire.UpdateAgentThoughtChunk:
		if payload.Update.Content != nil {
			return payload.Update.Content.Text, true
		}
	}
	return "", false
}

// reserializeParts turns C2's Part sequence back into wire frames: the
// first text part replaces original's text content (reusing its envelope
// so sessionId/update-kind survive); any further parts are emitted as
// additional frames immediately following, matching spec §4.2's "first
// text part ... replaces the original frame; subsequent parts are emitted
// as additional frames".
func (h *Hub) reserializeParts(original *wire.Frame, parts []tagparser.Part) []*wire.Frame {
	if len(parts) == 0 {
		return nil
	}

	var out []*wire.Frame
	usedOriginal := false
	for _, p := range parts {
		switch p.Kind {
		case tagparser.PartText:
			if p.Text == "" {
				continue
			}
			if !usedOriginal && original.Method == wire.MethodSessionUpdate {
				out = append(out, withChunkText(original, p.Text))
				usedOriginal = true
				continue
			}
			out = append(out, textChunkFrame(original, p.Text))
		case tagparser.PartEvent:
			out = append(out, structuredEventFrame(p))
		}
	}
	return out
}

// withChunkText clones a session/update frame with its content text
// replaced.
func withChunkText(original *wire.Frame, text string) *wire.Frame {
	var payload wire.SessionUpdatePayload
	_ = json.Unmarshal(original.Params, &payload)
	if payload.Update.Content == nil {
		payload.Update.Content = &wire.ContentItem{Type: "text"}
	}
	payload.Update.Content.Text = text
	params, _ := json.Marshal(payload)
	clone := *original
	clone.Params = params
	return &clone
}

// textChunkFrame builds a fresh session/update carrying a plain text chunk
// of the same kind (message vs thought) as original.
func textChunkFrame(original *wire.Frame, text string) *wire.Frame {
	var payload wire.SessionUpdatePayload
	_ = json.Unmarshal(original.Params, &payload)
	payload.Update.Content = &wire.ContentItem{Type: "text", Text: text}
	f, _ := wire.NewNotification(wire.MethodSessionUpdate, payload)
	return f
}

// structuredEventFrame builds a bridge/structured_event notification from
// an extracted tag (spec §4.2, §6).
func structuredEventFrame(p tagparser.Part) *wire.Frame {
	body := map[string]interface{}{
		"type": p.EventType,
		"raw":  p.Raw,
	}
	if p.Err != "" {
		body["error"] = p.Err
	} else {
		body["payload"] = p.Payload
	}
	f, _ := wire.NewNotification(wire.MethodStructuredEvt, body)
	return f
}

// isRecordable reports whether f belongs on the stream-of-record ring
// (spec §4.4 "Outbound frame policy" step 1): a session update, a
// permission request, an auth-URL announcement, or a structured event.
func isRecordable(f *wire.Frame) bool {
	switch f.Method {
	case wire.MethodSessionUpdate, wire.MethodRequestPerm, wire.MethodAuthURL, wire.MethodStructuredEvt:
		return true
	default:
		return false
	}
}

// endsTurn reports whether f marks end-of-turn or turn-completion, the
// trigger for the checkpoint hook (spec §4.4 step 3).
func endsTurn(f *wire.Frame) bool {
	return isStopOfTurn(f)
}

// newAuthURLFrame builds the gemini/authUrl announcement re-sent to a
// newly connected client when authentication is still pending (spec §4.4
// "After replay, if an auth URL is pending, re-send it.").
func newAuthURLFrame(url string) (*wire.Frame, error) {
	return wire.NewNotification(wire.MethodAuthURL, map[string]string{"url": url})
}

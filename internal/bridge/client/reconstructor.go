package client

import (
	"encoding/json"
	"time"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/diff"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

// SendPrompt transitions the client into in-turn state, opening a new
// assistant message with a generated id, and emits the prompt as a
// user_message event without waiting for the server to echo it (spec §4.5
// "Turn lifecycle"). The prompt itself is not stored and gets no id.
func (r *Reconstructor) SendPrompt(text string, hidden HiddenMode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hidden != "" {
		r.hidden = hidden
	}
	r.current = &Message{ID: r.mintID("msg"), InTurn: true}

	if emissionAllowed(r.hidden, "user") {
		r.emitLocked(Event{Type: "user_message", Delta: text})
	}
}

// HandleFrame processes one inbound wire frame. resp is used for the one
// case that requires a reply: permission requests, live or replayed.
func (r *Reconstructor) HandleFrame(resp Responder, f *wire.Frame) {
	if f.Method == wire.MethodBridgeReplay {
		r.handleReplay(resp, f)
		return
	}

	switch f.Method {
	case wire.MethodSessionUpdate:
		r.handleSessionUpdate(f)
	case wire.MethodRequestPerm:
		r.handleRequestPermission(resp, f)
	case wire.MethodAuthURL:
		r.handleAuthURL(f)
	case wire.MethodStructuredEvt:
		r.handleStructuredEvent(f)
	default:
		if f.IsResponse() {
			r.handleResponse(f)
		}
	}
}

// handleReplay unwraps a bridge/replay envelope, temporarily substitutes
// the time source with the envelope's original timestamp, and re-dispatches
// the inner frame so every handler below sees a reproducible clock (spec
// §4.5 "Replay intake").
func (r *Reconstructor) handleReplay(resp Responder, f *wire.Frame) {
	var env struct {
		Timestamp int64           `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
		ReplayID  string          `json:"replayId"`
	}
	if err := json.Unmarshal(f.Params, &env); err != nil {
		return
	}

	var inner wire.Frame
	if err := json.Unmarshal(env.Data, &inner); err != nil {
		return
	}
	var meta struct {
		Hidden string `json:"_hidden"`
	}
	_ = json.Unmarshal(env.Data, &meta)

	r.mu.Lock()
	prevNow := r.now
	prevHidden := r.hidden
	ts := time.UnixMilli(env.Timestamp)
	r.now = func() time.Time { return ts }
	if meta.Hidden != "" {
		r.hidden = HiddenMode(meta.Hidden)
	}
	r.mu.Unlock()

	if inner.Method == wire.MethodSessionPrompt {
		r.synthesizeReplayedPrompt(&inner, env.ReplayID)
	} else {
		r.HandleFrame(resp, &inner)
	}

	r.mu.Lock()
	r.now = prevNow
	r.hidden = prevHidden
	r.mu.Unlock()
}

// synthesizeReplayedPrompt builds a local user message for a replayed
// prompt frame (spec "A replayed prompt synthesizes a user message
// locally.").
func (r *Reconstructor) synthesizeReplayedPrompt(f *wire.Frame, replayID string) {
	var params wire.SessionPromptParams
	if err := json.Unmarshal(f.Params, &params); err != nil {
		return
	}
	text := ""
	if len(params.Prompt) > 0 {
		text = params.Prompt[0].Text
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if emissionAllowed(r.hidden, "user") {
		r.emitLocked(Event{Type: "user_message", Delta: text, ReplayID: replayID})
	}
}

func (r *Reconstructor) handleAuthURL(f *wire.Frame) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(f.Params, &params); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(Event{Type: "auth_url", Delta: params.URL})
}

func (r *Reconstructor) handleStructuredEvent(f *wire.Frame) {
	var body map[string]interface{}
	if err := json.Unmarshal(f.Params, &body); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(Event{Type: "structured_event", Structured: body})
}

// handleResponse checks for a stopReason, which ends the in-turn state per
// spec §4.5 path (b).
func (r *Reconstructor) handleResponse(f *wire.Frame) {
	var probe struct {
		StopReason string `json:"stopReason"`
	}
	if err := json.Unmarshal(f.Result, &probe); err != nil || probe.StopReason == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	r.finalizeTurnLocked("stop")
}

func (r *Reconstructor) handleSessionUpdate(f *wire.Frame) {
	var payload wire.SessionUpdatePayload
	if err := json.Unmarshal(f.Params, &payload); err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		r.current = &Message{ID: r.mintID("msg"), InTurn: true}
	}

	switch payload.Update.Type {
	case wire.UpdateAgentMessageChunk:
		r.appendContentLocked(PartText, chunkText(payload.Update.Content), "text_delta")
	case wire.UpdateAgentThoughtChunk:
		r.appendContentLocked(PartThought, chunkText(payload.Update.Content), "thought_delta")
	case wire.UpdateToolCall:
		r.openToolCallLocked(payload.Update)
	case wire.UpdateToolCallUpdate:
		r.updateToolCallLocked(payload.Update)
	case wire.UpdateEndOfTurn:
		r.finalizeTurnLocked("stop")
	}
}

func chunkText(c *wire.ContentItem) string {
	if c == nil {
		return ""
	}
	return c.Text
}

// appendContentLocked implements "current means the last part of the same
// kind" plus chunk-overlap rectification scoped to that part (spec §4.5
// "Handling assistant content updates" / "Stream rectification").
func (r *Reconstructor) appendContentLocked(kind PartKind, incoming string, deltaEventType string) {
	msg := r.current
	var last *Part
	if n := len(msg.Content); n > 0 && msg.Content[n-1].Kind == kind {
		last = &msg.Content[n-1]
	} else {
		msg.Content = append(msg.Content, Part{Kind: kind})
		last = &msg.Content[len(msg.Content)-1]
	}

	n := rectify(last.Text, incoming)
	last.Text += n

	switch kind {
	case PartText:
		msg.Text += n
	case PartThought:
		msg.Thought += n
	}

	side := "assistant"
	if emissionAllowed(r.hidden, side) {
		r.emitLocked(Event{Type: deltaEventType, Delta: n, Message: msg})
	}
}

func (r *Reconstructor) openToolCallLocked(u wire.SessionUpdate) {
	tc := &ToolCall{ID: u.ToolCallID, Title: u.Title, Status: ToolStatusRunning}
	if u.Status != "" {
		tc.Status = mapToolStatus(u.Status)
	}
	parseTitle(tc)

	r.current.Content = append(r.current.Content, Part{Kind: PartToolCall, Tool: tc})
	r.toolByID[tc.ID] = tc

	if emissionAllowed(r.hidden, "assistant") {
		r.emitLocked(Event{Type: "tool_call", Tool: tc, Message: r.current})
	}
}

func (r *Reconstructor) updateToolCallLocked(u wire.SessionUpdate) {
	tc, ok := r.toolByID[u.ToolCallID]
	if !ok {
		return
	}
	if u.Status != "" {
		tc.Status = mapToolStatus(u.Status)
	}
	for _, item := range u.Items {
		tc.Items = append(tc.Items, r.normalizeItemLocked(item))
	}

	if emissionAllowed(r.hidden, "assistant") {
		r.emitLocked(Event{Type: "tool_call_update", Tool: tc, Message: r.current})
	}

	switch tc.Status {
	case ToolStatusCompleted, ToolStatusFailed, ToolStatusCanceled:
		if emissionAllowed(r.hidden, "assistant") {
			r.emitLocked(Event{Type: "tool_completed", Tool: tc, Message: r.current})
		}
	}
}

// mapToolStatus maps the wire's "in_progress" to the reconstructor's
// "running" (spec §4.5 "Tool-call lifecycle").
func mapToolStatus(wireStatus string) ToolCallStatus {
	if wireStatus == "in_progress" {
		return ToolStatusRunning
	}
	return ToolCallStatus(wireStatus)
}

// normalizeItemLocked converts a raw wire content item into a ToolCallItem,
// normalizing any diff shape via the diff package (spec §4.5 "Diff
// payloads may appear under several shapes...").
func (r *Reconstructor) normalizeItemLocked(item wire.ContentItem) ToolCallItem {
	if item.Type != "diff" && item.Diff == nil && item.Unified == "" && item.OldText == "" && item.Patch == "" {
		return ToolCallItem{Text: item.Text}
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return ToolCallItem{Text: item.Text}
	}
	d, err := diff.Normalize(raw, r.diffCtxLines)
	if err != nil {
		return ToolCallItem{Text: item.Text}
	}
	return ToolCallItem{Diff: d}
}

// finalizeTurnLocked ends in-turn state, emits the final-text event exactly
// once, and emits turn_completed (spec §4.5 "Turn lifecycle").
func (r *Reconstructor) finalizeTurnLocked(reason string) {
	msg := r.current
	if msg == nil {
		return
	}
	msg.InTurn = false
	r.current = nil

	if emissionAllowed(r.hidden, "assistant") {
		r.emitLocked(Event{Type: "final_text", Message: msg})
		r.emitLocked(Event{Type: "turn_completed", Reason: reason, Message: msg})
	}
}

// Cancel optimistically ends the in-turn state with reason "canceled"
// (spec §5 "Cancellation and timeouts").
func (r *Reconstructor) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalizeTurnLocked("canceled")
}

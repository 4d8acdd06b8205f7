package client

import (
	"encoding/json"
	"strings"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

// Responder sends frames back to the bridge (the reply to a
// session/request_permission plus the provide_permission mirror).
type Responder interface {
	Respond(f *wire.Frame) error
}

// handleRequestPermission implements spec §4.5 "Permission handling". When
// the current hidden mode suppresses assistant-side visibility, it
// auto-resolves without exposing the request; otherwise it publishes a
// pending-approval record.
func (r *Reconstructor) handleRequestPermission(resp Responder, f *wire.Frame) {
	var params wire.RequestPermissionParams
	if err := json.Unmarshal(f.Params, &params); err != nil {
		return
	}

	r.mu.Lock()
	hidden := r.hidden
	r.mu.Unlock()

	if hidden == HiddenAssistant || hidden == HiddenTurn {
		r.autoResolve(resp, f.ID, params)
		return
	}

	tc := ToolCall{Title: params.Title, ID: params.ToolCallID}
	parseTitle(&tc)

	pending := &PendingPermission{
		RequestID:  f.ID,
		SessionID:  params.SessionID,
		ToolCallID: params.ToolCallID,
		Title:      params.Title,
		Options:    params.Options,
		Parsed:     tc,
	}

	r.mu.Lock()
	r.pendingPerm = pending
	allowed := emissionAllowed(r.hidden, "assistant")
	r.mu.Unlock()

	if allowed {
		r.mu.Lock()
		r.emitLocked(Event{Type: "permission_request", Permission: pending})
		r.mu.Unlock()
	}
}

// autoResolve selects the first deny/reject-prefixed option and replies
// with it, without ever publishing the request to the host.
func (r *Reconstructor) autoResolve(resp Responder, reqID wire.ID, params wire.RequestPermissionParams) {
	optionID := firstDenyOption(params.Options)
	r.sendPermissionOutcome(resp, reqID, params.SessionID, optionID)
}

func firstDenyOption(options []wire.PermissionOption) string {
	for _, o := range options {
		k := strings.ToLower(o.Kind)
		if strings.HasPrefix(k, "deny") || strings.HasPrefix(k, "reject") {
			return o.OptionID
		}
	}
	if len(options) > 0 {
		return options[0].OptionID
	}
	return ""
}

// ResolvePermission is called by the host to answer a published pending
// permission request with the chosen option id.
func (r *Reconstructor) ResolvePermission(resp Responder, optionID string) {
	r.mu.Lock()
	pending := r.pendingPerm
	r.pendingPerm = nil
	r.mu.Unlock()
	if pending == nil {
		return
	}
	r.sendPermissionOutcome(resp, pending.RequestID, pending.SessionID, optionID)

	r.mu.Lock()
	if emissionAllowed(r.hidden, "assistant") {
		r.emitLocked(Event{Type: "permission_resolved", Permission: pending})
	}
	r.mu.Unlock()
}

// sendPermissionOutcome replies to the original request and additionally
// sends the session/provide_permission mirror notification, per spec's
// "some agents require the double signal."
func (r *Reconstructor) sendPermissionOutcome(resp Responder, reqID wire.ID, sessionID, optionID string) {
	var outcome wire.PermissionOutcome
	outcome.Outcome.Outcome = "selected"
	outcome.Outcome.OptionID = optionID

	result, _ := wire.NewResult(reqID, outcome)
	_ = resp.Respond(result)

	notifParams := map[string]interface{}{
		"sessionId": sessionID,
		"outcome":   outcome.Outcome,
	}
	notif, _ := wire.NewNotification(wire.MethodProvidePerm, notifParams)
	_ = resp.Respond(notif)
}

package hub

import (
	"context"
	"encoding/json"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/frame"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

// HandleSubprocessFrame adapts a supervisor.Supervisor OnOutput callback into
// the outbound frame policy: a JSON-RPC line unmarshals directly, while an
// auth-URL line (which never carries its own JSON-RPC envelope) is wrapped
// into a gemini/authUrl notification first (spec §4.1, §4.4).
func (h *Hub) HandleSubprocessFrame(ctx context.Context, f *frame.Frame) {
	switch f.Kind {
	case frame.KindJSONRPC:
		var rpc wire.Frame
		if err := json.Unmarshal(f.JSON, &rpc); err != nil {
			h.logger.Warn("hub: malformed subprocess JSON-RPC frame", "error", err)
			return
		}
		h.HandleOutbound(ctx, &rpc)
	case frame.KindAuthURL:
		wf, err := newAuthURLFrame(f.URL)
		if err != nil {
			h.logger.Warn("hub: build auth-url frame failed", "error", err)
			return
		}
		h.HandleOutbound(ctx, wf)
	case frame.KindLog:
		// Plain subprocess chatter never reaches the wire; supervisor already
		// logs it.
	}
}

// ResetOnRestart clears the turn counter and hidden-mode table after the
// supervisor restarts the subprocess (spec §4.3 "A restart begins a fresh
// session identifier and resets the turn counter"). The ring buffer is left
// intact so replay still covers the session before the restart.
func (h *Hub) ResetOnRestart(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turnCounter = 0
	h.hiddenByTurn = make(map[int64]string)
}

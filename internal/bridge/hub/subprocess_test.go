package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/frame"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

func TestHandleSubprocessFrameJSONRPCReachesRing(t *testing.T) {
	sup := &fakeSupervisor{}
	h := New(sup, Options{Logger: discardLogger()})

	update := wire.SessionUpdatePayload{SessionID: "s1", Update: wire.SessionUpdate{Type: wire.UpdateAgentMessageChunk, Content: &wire.ContentItem{Type: "text", Text: "hi"}}}
	f, _ := wire.NewNotification(wire.MethodSessionUpdate, update)
	raw, _ := json.Marshal(f)

	h.HandleSubprocessFrame(context.Background(), &frame.Frame{Kind: frame.KindJSONRPC, JSON: raw})

	h.mu.Lock()
	n := h.ring.len()
	h.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestHandleSubprocessFrameAuthURLBroadcastsNotification(t *testing.T) {
	sup := &fakeSupervisor{}
	h := New(sup, Options{Logger: discardLogger()})

	clientA := &client{id: 1, out: make(chan []byte, 8), done: make(chan struct{})}
	h.clientMu.Lock()
	h.clients[1] = clientA
	h.clientMu.Unlock()

	h.HandleSubprocessFrame(context.Background(), &frame.Frame{Kind: frame.KindAuthURL, URL: "https://accounts.google.com/o/oauth2/v2/auth?x=1"})

	select {
	case msg := <-clientA.out:
		var f wire.Frame
		require.NoError(t, json.Unmarshal(msg, &f))
		assert.Equal(t, wire.MethodAuthURL, f.Method)
	default:
		t.Fatal("expected auth-url notification to be broadcast")
	}
}

func TestHandleSubprocessFrameLogKindIsDropped(t *testing.T) {
	sup := &fakeSupervisor{}
	h := New(sup, Options{Logger: discardLogger()})

	h.HandleSubprocessFrame(context.Background(), &frame.Frame{Kind: frame.KindLog, Raw: "some chatter"})

	h.mu.Lock()
	n := h.ring.len()
	h.mu.Unlock()
	assert.Equal(t, 0, n)
}

func TestResetOnRestartClearsTurnCounterAndHiddenTable(t *testing.T) {
	sup := &fakeSupervisor{}
	h := New(sup, Options{Logger: discardLogger()})

	raw, _ := json.Marshal(promptFrame("user"))
	h.HandleInbound(context.Background(), 1, raw)

	h.mu.Lock()
	assert.Equal(t, int64(1), h.turnCounter)
	h.mu.Unlock()

	h.ResetOnRestart("new-session")

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, int64(0), h.turnCounter)
	assert.Empty(t, h.hiddenByTurn)
}

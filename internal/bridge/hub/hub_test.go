package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

type fakeSupervisor struct {
	authPending   bool
	authURL       string
	written       []*wire.Frame
	turnsSet      []int64
	endedTurns    []int64
	submittedAuth string
}

func (f *fakeSupervisor) WriteFrame(fr *wire.Frame) error  { f.written = append(f.written, fr); return nil }
func (f *fakeSupervisor) AuthPending() bool                { return f.authPending }
func (f *fakeSupervisor) AuthURL() string                  { return f.authURL }
func (f *fakeSupervisor) SubmitAuthCode(code string) error { f.submittedAuth = code; return nil }
func (f *fakeSupervisor) SetCurrentTurn(turnID int64)       { f.turnsSet = append(f.turnsSet, turnID) }
func (f *fakeSupervisor) EndTurn(_ context.Context, turnID int64) {
	f.endedTurns = append(f.endedTurns, turnID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func promptFrame(hidden string) *wire.Frame {
	meta := (*wire.PromptItemMeta)(nil)
	if hidden != "" {
		meta = &wire.PromptItemMeta{Hidden: hidden}
	}
	params := wire.SessionPromptParams{
		SessionID: "s1",
		Prompt:    []wire.PromptItem{{Type: "text", Text: "hi", Meta: meta}},
	}
	f, _ := wire.NewRequest(json.RawMessage(`1`), wire.MethodSessionPrompt, params)
	return f
}

func TestHandleInboundPromptBumpsTurnAndStripsHiddenMeta(t *testing.T) {
	sup := &fakeSupervisor{}
	h := New(sup, Options{Logger: discardLogger()})

	raw, _ := json.Marshal(promptFrame("user"))
	h.HandleInbound(context.Background(), 1, raw)

	require.Len(t, sup.turnsSet, 1)
	assert.Equal(t, int64(1), sup.turnsSet[0])

	require.Len(t, sup.written, 1)
	var params wire.SessionPromptParams
	require.NoError(t, json.Unmarshal(sup.written[0].Params, &params))
	require.Len(t, params.Prompt, 1)
	assert.Nil(t, params.Prompt[0].Meta)
}

func TestHandleInboundDropsFramesWhileAuthPending(t *testing.T) {
	sup := &fakeSupervisor{authPending: true}
	h := New(sup, Options{Logger: discardLogger()})

	f, _ := wire.NewNotification(wire.MethodSessionCancel, nil)
	raw, _ := json.Marshal(f)
	h.HandleInbound(context.Background(), 1, raw)

	assert.Empty(t, sup.written)
}

func TestHandleInboundAuthCodeAlwaysForwardedEvenWhilePending(t *testing.T) {
	sup := &fakeSupervisor{authPending: true}
	h := New(sup, Options{Logger: discardLogger()})

	f, _ := wire.NewNotification(wire.MethodSubmitAuthCode, map[string]string{"code": "abc123"})
	raw, _ := json.Marshal(f)
	h.HandleInbound(context.Background(), 1, raw)

	assert.Equal(t, "abc123", sup.submittedAuth)
}

func TestHandleOutboundRecordsSessionUpdateAndTriggersCheckpointOnEndOfTurn(t *testing.T) {
	sup := &fakeSupervisor{}
	h := New(sup, Options{Logger: discardLogger()})

	// Establish a turn first.
	raw, _ := json.Marshal(promptFrame(""))
	h.HandleInbound(context.Background(), 1, raw)

	endUpdate := wire.SessionUpdatePayload{SessionID: "s1", Update: wire.SessionUpdate{Type: wire.UpdateEndOfTurn}}
	f, _ := wire.NewNotification(wire.MethodSessionUpdate, endUpdate)

	h.HandleOutbound(context.Background(), f)

	h.mu.Lock()
	n := h.ring.len()
	h.mu.Unlock()
	assert.Greater(t, n, 0)
	assert.Equal(t, []int64{1}, sup.endedTurns)
}

// TestPeerEchoExcludesSender is the multi-client scenario from spec §8.6:
// client A's prompt is broadcast to client B but not echoed back to A.
func TestPeerEchoExcludesSender(t *testing.T) {
	sup := &fakeSupervisor{}
	h := New(sup, Options{Logger: discardLogger()})

	clientA := &client{id: 1, out: make(chan []byte, 8), done: make(chan struct{})}
	clientB := &client{id: 2, out: make(chan []byte, 8), done: make(chan struct{})}
	h.clientMu.Lock()
	h.clients[1] = clientA
	h.clients[2] = clientB
	h.clientMu.Unlock()

	raw, _ := json.Marshal(promptFrame("user"))
	h.HandleInbound(context.Background(), 1, raw)

	select {
	case <-clientA.out:
		t.Fatal("sender should not receive its own peer echo")
	default:
	}

	select {
	case msg := <-clientB.out:
		var f wire.Frame
		require.NoError(t, json.Unmarshal(msg, &f))
		assert.Equal(t, wire.MethodBridgeReplay, f.Method)

		var env ReplayEnvelope
		require.NoError(t, json.Unmarshal(f.Params, &env))
		var inner wire.Frame
		require.NoError(t, json.Unmarshal(env.Data, &inner))
		assert.Equal(t, wire.MethodSessionPrompt, inner.Method)
	default:
		t.Fatal("other client should receive the peer echo")
	}
}

func TestHandleOutboundNonRecordableFrameNotAppendedToRing(t *testing.T) {
	sup := &fakeSupervisor{}
	h := New(sup, Options{Logger: discardLogger()})

	f, _ := wire.NewNotification(wire.MethodFsReadTextFile, nil)
	h.HandleOutbound(context.Background(), f)

	h.mu.Lock()
	n := h.ring.len()
	h.mu.Unlock()
	assert.Equal(t, 0, n)
}

// Package hub implements the session/turn multiplexer (C4): the wire
// listener's shared state (ring buffer, turn counter, hidden-mode table),
// the inbound/outbound frame policies, and per-client broadcast fan-out.
// It is grounded on bramble/remote's EventBroadcaster for backpressure and
// bramble/sessionmodel's OutputBuffer for the ring.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/tagparser"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

const defaultRingCapacity = 2000

// clientBufferSize is the per-subscriber broadcast channel depth; a slow
// client beyond this drops its oldest queued frame (spec §9 "cap broadcast
// backpressure by ... coalescing per client or dropping the slowest client
// with a diagnostic" — here realized as drop-oldest-then-retry, grounded on
// bramble/remote/broadcaster.go's EventBroadcaster.broadcast).
const clientBufferSize = 256

// Supervisor is the subset of supervisor.Supervisor the hub depends on,
// kept as an interface so the hub package does not import supervisor
// (avoiding an import cycle, since supervisor's OnOutput callback is what
// drives the hub).
type Supervisor interface {
	WriteFrame(f *wire.Frame) error
	AuthPending() bool
	AuthURL() string
	SubmitAuthCode(code string) error
	SetCurrentTurn(turnID int64)
	EndTurn(ctx context.Context, turnID int64)
}

// Hub owns the shared mutable state described in spec §5 "A single mutex...
// protects the turn counter, the hidden-mode table, the ring buffer, the
// auth-pending flag, the session id, and the modified-file set."
// (The auth-pending flag and session id live in Supervisor; the hub guards
// its own slice of that shared state under its own mutex.)
type Hub struct {
	sup    Supervisor
	tp     *tagparser.Parser
	logger *slog.Logger

	mu           sync.Mutex
	turnCounter  int64
	hiddenByTurn map[int64]string
	ring         *ring

	clientMu     sync.Mutex
	clients      map[int]*client
	nextClientID int
}

// Options configures a new Hub.
type Options struct {
	TagMode      tagparser.Mode
	RingCapacity int
	Logger       *slog.Logger
}

// New creates a Hub wired to sup for subprocess I/O.
func New(sup Supervisor, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var tp *tagparser.Parser
	if opts.TagMode != "" {
		tp = tagparser.New(opts.TagMode)
	}
	return &Hub{
		sup:          sup,
		tp:           tp,
		logger:       opts.Logger,
		hiddenByTurn: make(map[int64]string),
		ring:         newRing(opts.RingCapacity),
		clients:      make(map[int]*client),
	}
}

// HandleInbound implements the inbound frame policy (spec §4.4). senderID
// identifies the client connection the frame arrived on, so the peer echo
// can exclude it.
func (h *Hub) HandleInbound(ctx context.Context, senderID int, raw []byte) {
	var f wire.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		h.logger.Warn("hub: dropping malformed inbound frame", "error", err)
		return
	}

	if f.Method == wire.MethodSubmitAuthCode {
		h.handleAuthCode(&f)
		return
	}

	if h.sup.AuthPending() {
		h.logger.Warn("hub: dropping frame while auth pending", "method", f.Method)
		return
	}

	if f.Method == wire.MethodSessionPrompt {
		h.handlePrompt(ctx, senderID, &f)
		return
	}

	if err := h.sup.WriteFrame(&f); err != nil {
		h.logger.Warn("hub: write to subprocess failed", "error", err)
	}
}

func (h *Hub) handleAuthCode(f *wire.Frame) {
	var params struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(f.Params, &params); err != nil {
		h.logger.Warn("hub: malformed auth-code submission", "error", err)
		return
	}
	if err := h.sup.SubmitAuthCode(params.Code); err != nil {
		h.logger.Warn("hub: submit auth code failed", "error", err)
	}
}

// handlePrompt bumps the turn counter, records and peer-echoes the frame,
// strips hidden-mode metadata, and forwards it to the subprocess (spec
// §4.4 "Prompt frame").
func (h *Hub) handlePrompt(ctx context.Context, senderID int, f *wire.Frame) {
	var params wire.SessionPromptParams
	if err := json.Unmarshal(f.Params, &params); err != nil {
		h.logger.Warn("hub: malformed session/prompt", "error", err)
		return
	}

	hidden := ""
	if len(params.Prompt) > 0 && params.Prompt[0].Meta != nil {
		hidden = params.Prompt[0].Meta.Hidden
	}

	h.mu.Lock()
	h.turnCounter++
	turnID := h.turnCounter
	h.hiddenByTurn[turnID] = hidden
	h.mu.Unlock()

	h.sup.SetCurrentTurn(turnID)

	echoData, _ := json.Marshal(f)
	h.appendAndBroadcastExcept(senderID, turnID, hidden, echoData)

	for i := range params.Prompt {
		params.Prompt[i].Meta = nil
	}
	stripped := *f
	stripped.Params, _ = json.Marshal(params)

	if err := h.sup.WriteFrame(&stripped); err != nil {
		h.logger.Warn("hub: write prompt to subprocess failed", "error", err)
	}
}

// HandleOutbound implements the outbound frame policy (spec §4.4): feeds f
// through C2, then for each resulting frame appends to the ring if
// recordable, broadcasts to all clients, and fires the checkpoint hook on
// turn completion.
func (h *Hub) HandleOutbound(ctx context.Context, f *wire.Frame) {
	for _, out := range h.transformOutbound(f) {
		h.mu.Lock()
		turnID := h.turnCounter
		hidden := h.hiddenByTurn[turnID]
		h.mu.Unlock()

		data, err := json.Marshal(out)
		if err != nil {
			h.logger.Warn("hub: marshal outbound frame failed", "error", err)
			continue
		}

		if isRecordable(out) {
			h.appendEntry(turnID, hidden, data)
		}
		h.broadcastExcept(-1, data)

		if endsTurn(out) {
			h.sup.EndTurn(ctx, turnID)
		}
	}
}

func (h *Hub) appendEntry(turnID int64, hidden string, data json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring.append(entry{TimestampMs: nowMs(), TurnID: turnID, Hidden: hidden, Data: data})
}

// appendAndBroadcastExcept records the peer-echo entry and broadcasts it to
// every client except excludeID (spec "broadcast a replay-envelope copy of
// the frame to all other connected clients").
func (h *Hub) appendAndBroadcastExcept(excludeID int, turnID int64, hidden string, data json.RawMessage) {
	e := entry{TimestampMs: nowMs(), TurnID: turnID, Hidden: hidden, Data: data}

	h.mu.Lock()
	h.ring.append(e)
	h.mu.Unlock()

	env, err := buildEnvelope(e, 0)
	if err != nil {
		h.logger.Warn("hub: build peer-echo envelope failed", "error", err)
		return
	}
	envData, err := json.Marshal(env)
	if err != nil {
		h.logger.Warn("hub: marshal peer-echo envelope failed", "error", err)
		return
	}
	h.broadcastExcept(excludeID, envData)
}

func (h *Hub) broadcastExcept(excludeID int, data []byte) {
	h.clientMu.Lock()
	defer h.clientMu.Unlock()
	for id, c := range h.clients {
		if id == excludeID {
			continue
		}
		c.send(data, h.logger)
	}
}

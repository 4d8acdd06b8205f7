// Package client implements the client-side assistant-state reconstructor
// (C5): the ordered conversation model, stream rectification, tool-call
// lifecycle, diff normalization, title parsing, and hidden-mode gated
// permission handling (spec §4.5). It is grounded on
// agent-cli-wrapper/acp/session.go's Session (text/thinking accumulators,
// state machine, turnDone signaling), generalized from ACP's flat
// text+thinking accumulator to the spec's ordered content model.
package client

import (
	"strconv"
	"sync"
	"time"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/diff"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

// PartKind discriminates an element of a Message's ordered Content.
type PartKind int

const (
	PartText PartKind = iota
	PartThought
	PartToolCall
)

// Part is one element of a Message's ordered content sequence.
type Part struct {
	Kind PartKind
	Text string    // PartText / PartThought
	Tool *ToolCall // PartToolCall
}

// ToolCallStatus mirrors the wire's tool_call status vocabulary, with the
// wire's "in_progress" mapped to "running" (spec §4.5).
type ToolCallStatus string

const (
	ToolStatusPending   ToolCallStatus = "pending"
	ToolStatusRunning   ToolCallStatus = "running"
	ToolStatusCompleted ToolCallStatus = "completed"
	ToolStatusFailed    ToolCallStatus = "failed"
	ToolStatusCanceled  ToolCallStatus = "cancelled"
)

// ToolCall is a single tool invocation's lifecycle state.
type ToolCall struct {
	ID     string
	Title  string
	Status ToolCallStatus

	// Title-parsing results (spec §4.5 "Title parsing").
	WorkingDir  string
	Description string
	Input       string
	Args        interface{}

	// Content items: strings, text containers, or normalized diffs.
	Items []ToolCallItem
}

// ToolCallItem is one content item attached to a tool call.
type ToolCallItem struct {
	Text string
	Diff *diff.Diff
}

// Message is one assistant turn's reconstructed content.
type Message struct {
	ID      string
	Content []Part

	// Flat accumulators, kept for compatibility (spec §9 design note: the
	// spec canonicalizes on Content but keeps the flat fields too).
	Text    string
	Thought string

	InTurn bool
}

// PendingPermission is a published, not-yet-resolved permission request.
type PendingPermission struct {
	RequestID  wire.ID
	SessionID  string
	ToolCallID string
	Title      string
	Options    []wire.PermissionOption
	Parsed     ToolCall
}

// HiddenMode controls emission gating (spec §4.5 "Hidden-mode emission
// gating").
type HiddenMode string

const (
	HiddenNone      HiddenMode = "none"
	HiddenUser      HiddenMode = "user"
	HiddenAssistant HiddenMode = "assistant"
	HiddenTurn      HiddenMode = "turn"
)

// Event is what Reconstructor emits to the host application. Type decides
// which payload fields are populated; assistant-side events carry Message
// alongside their Delta, Tool or Reason.
type Event struct {
	Seq       int64
	Timestamp time.Time
	ReplayID  string

	Type string // "user_message", "text_delta", "thought_delta", "tool_call", "tool_call_update", "tool_completed", "final_text", "turn_completed", "auth_url", "permission_request", "permission_resolved", "structured_event"

	Message    *Message
	Delta      string
	Tool       *ToolCall
	Reason     string // turn_completed reason: "stop", "canceled"
	Permission *PendingPermission
	Structured map[string]interface{}
}

// Sink receives emitted events. The host implements this to drive its UI.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Reconstructor drives one conversation from a stream of wire frames. It
// must tolerate either single-threaded use or shared-state use guarded by
// its own mutex (spec §5 "C5 runs client-side... must tolerate either a
// single-thread cooperative loop ... or a shared-state model with a
// mutex").
type Reconstructor struct {
	mu   sync.Mutex
	sink Sink

	seq int64

	current      *Message
	toolByID     map[string]*ToolCall
	pendingPerm  *PendingPermission
	hidden       HiddenMode
	diffCtxLines int

	// now is the time source; overridden during replay intake so emitted
	// event timestamps reflect the envelope's original time rather than
	// wall-clock (spec §4.5 "Replay intake"). Minted ids come from nextID
	// and do not depend on it.
	now func() time.Time

	nextID int
}

// New creates a Reconstructor. diffCtxLines is the default context-line
// count for computed unified diffs (spec §6, default 3).
func New(sink Sink, diffCtxLines int) *Reconstructor {
	if diffCtxLines < 0 {
		diffCtxLines = 0
	}
	return &Reconstructor{
		sink:         sink,
		toolByID:     make(map[string]*ToolCall),
		hidden:       HiddenNone,
		diffCtxLines: diffCtxLines,
		now:          time.Now,
	}
}

// SetHiddenMode updates the gating mode applied to subsequently emitted
// events (internal state is always updated regardless; see spec §4.5's
// closing paragraph).
func (r *Reconstructor) SetHiddenMode(m HiddenMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hidden = m
}

func (r *Reconstructor) nextSeq() int64 {
	r.seq++
	return r.seq
}

func (r *Reconstructor) mintID(prefix string) string {
	r.nextID++
	return prefix + "-" + strconv.Itoa(r.nextID)
}

func (r *Reconstructor) emitLocked(e Event) {
	e.Seq = r.nextSeq()
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	if r.sink != nil {
		r.sink.Emit(e)
	}
}

// emissionAllowed implements the hidden-mode gating table (spec §4.5).
// side is "user" or "assistant"; permission requests are always treated as
// assistant-side for gating purposes.
func emissionAllowed(mode HiddenMode, side string) bool {
	switch mode {
	case HiddenUser:
		return side == "assistant"
	case HiddenAssistant:
		return side == "user"
	case HiddenTurn:
		return false
	default:
		return true
	}
}

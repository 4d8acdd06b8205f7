// Package wire defines the JSON-RPC 2.0 envelope and the bridge's method and
// update-type vocabulary.
package wire

import "encoding/json"

// Bridge JSON-RPC method names (see spec §6 for the canonical table).
const (
	MethodSessionNew     = "session/new"
	MethodSessionPrompt  = "session/prompt"
	MethodSessionCancel  = "session/cancel"
	MethodSessionUpdate  = "session/update"
	MethodRequestPerm    = "session/request_permission"
	MethodProvidePerm    = "session/provide_permission"
	MethodSubmitAuthCode = "gemini/submitAuthCode"
	MethodAuthURL        = "gemini/authUrl"
	MethodFsReadTextFile = "fs/read_text_file"
	MethodFsWriteText    = "fs/write_text_file"
	MethodBridgeReplay   = "bridge/replay"
	MethodStructuredEvt  = "bridge/structured_event"
)

// Session update kinds carried in session/update params.
const (
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdateEndOfTurn         = "end_of_turn"
)

// Standard JSON-RPC 2.0 error codes plus the bridge-local choices from spec §6.
const (
	ErrCodeParseError      = -32700
	ErrCodeInvalidRequest  = -32600
	ErrCodeMethodNotFound  = -32601
	ErrCodeInvalidParams   = -32602
	ErrCodeInternalError   = -32603
	ErrCodeInvalidToolPath = -32602
	ErrCodeFileToolIO      = -32000
)

// ID is a JSON-RPC request/response identifier; the wire allows either a
// string or a number, so it is carried as a raw value.
type ID = json.RawMessage

// Frame is a single JSON-RPC 2.0 object crossing the wire, one per transport
// datagram. Requests carry ID and Method; notifications omit ID; responses
// carry ID and either Result or Error.
type Frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// IsRequest reports whether the frame is a request (has both id and method).
func (f *Frame) IsRequest() bool {
	return len(f.ID) > 0 && f.Method != ""
}

// IsNotification reports whether the frame is a notification (method, no id).
func (f *Frame) IsNotification() bool {
	return len(f.ID) == 0 && f.Method != ""
}

// IsResponse reports whether the frame is a response (id, no method).
func (f *Frame) IsResponse() bool {
	return len(f.ID) > 0 && f.Method == ""
}

// NewRequest builds a request frame with the given id and params.
func NewRequest(id ID, method string, params interface{}) (*Frame, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Frame{JSONRPC: "2.0", ID: id, Method: method, Params: p}, nil
}

// NewNotification builds a notification frame.
func NewNotification(method string, params interface{}) (*Frame, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Frame{JSONRPC: "2.0", Method: method, Params: p}, nil
}

// NewResult builds a success response frame.
func NewResult(id ID, result interface{}) (*Frame, error) {
	r, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Frame{JSONRPC: "2.0", ID: id, Result: r}, nil
}

// NewError builds an error response frame.
func NewError(id ID, code int, message string) *Frame {
	return &Frame{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
}

// SessionUpdatePayload is the params shape of a session/update notification
// (spec §6); Update.Type discriminates the variant, following the wire
// shape agent-cli-wrapper/acp/protocol.go's SessionUpdate models for the
// same subprocess family ("sessionUpdate" as the discriminator field name).
type SessionUpdatePayload struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// ContentItem is a single item of tool_call/tool_call_update content: plain
// text, a text container, or a diff payload in one of several raw shapes
// (spec §4.5 "Tool-call lifecycle").
type ContentItem struct {
	Type string          `json:"type,omitempty"`
	Text string          `json:"text,omitempty"`
	Diff json.RawMessage `json:"diff,omitempty"`

	// Diff fields that may appear inline on the item itself rather than
	// nested under "diff" (spec's {type:'diff', oldText, newText, path}).
	Path    string `json:"path,omitempty"`
	OldText string `json:"oldText,omitempty"`
	NewText string `json:"newText,omitempty"`
	Unified string `json:"unified,omitempty"`
	Patch   string `json:"patch,omitempty"`
}

// UnmarshalJSON accepts a bare JSON string as shorthand for a text item, in
// addition to the full object shape, since the subprocess's tool_call_update
// content array mixes both forms (spec §4.5 "items may be strings, text
// containers, or diff payloads").
func (c *ContentItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ContentItem{Type: "text", Text: s}
		return nil
	}

	type contentItemFields ContentItem
	var fields contentItemFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = ContentItem(fields)
	return nil
}

// SessionUpdate is the discriminated union carried in session/update.
type SessionUpdate struct {
	Type string `json:"sessionUpdate"`

	// agent_message_chunk / agent_thought_chunk
	Content *ContentItem `json:"content,omitempty"`

	// tool_call / tool_call_update
	ToolCallID string        `json:"toolCallId,omitempty"`
	Title      string        `json:"title,omitempty"`
	Status     string        `json:"status,omitempty"`
	Items      []ContentItem `json:"contentItems,omitempty"`

	Meta json.RawMessage `json:"_meta,omitempty"`
}

// PromptItem is one element of a session/prompt's prompt array.
type PromptItem struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Meta *PromptItemMeta `json:"meta,omitempty"`
}

// PromptItemMeta carries the hidden-mode hint (spec §4.4 "Prompt frame").
type PromptItemMeta struct {
	Hidden string `json:"hidden,omitempty"`
}

// SessionPromptParams is the params shape of a session/prompt request.
type SessionPromptParams struct {
	SessionID string       `json:"sessionId"`
	Prompt    []PromptItem `json:"prompt"`
}

// PermissionOption is one choice offered by a session/request_permission.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
}

// RequestPermissionParams is the params shape of session/request_permission.
type RequestPermissionParams struct {
	SessionID  string             `json:"sessionId"`
	ToolCallID string             `json:"toolCallId,omitempty"`
	Title      string             `json:"title,omitempty"`
	Options    []PermissionOption `json:"options"`
}

// PermissionOutcome is the {outcome:{outcome, optionId}} shape used both as
// the response to session/request_permission and as the body of the mirror
// session/provide_permission notification (spec §4.5 "Permission handling").
type PermissionOutcome struct {
	Outcome struct {
		Outcome  string `json:"outcome"`
		OptionID string `json:"optionId"`
	} `json:"outcome"`
}

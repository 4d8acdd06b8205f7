package client

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

type collectingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *collectingSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *collectingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func messageChunkFrame(text string) *wire.Frame {
	f, _ := wire.NewNotification(wire.MethodSessionUpdate, wire.SessionUpdatePayload{
		SessionID: "s1",
		Update:    wire.SessionUpdate{Type: wire.UpdateAgentMessageChunk, Content: &wire.ContentItem{Type: "text", Text: text}},
	})
	return f
}

func thoughtChunkFrame(text string) *wire.Frame {
	f, _ := wire.NewNotification(wire.MethodSessionUpdate, wire.SessionUpdatePayload{
		SessionID: "s1",
		Update:    wire.SessionUpdate{Type: wire.UpdateAgentThoughtChunk, Content: &wire.ContentItem{Type: "text", Text: text}},
	})
	return f
}

func toolCallFrame(id, title, status string) *wire.Frame {
	f, _ := wire.NewNotification(wire.MethodSessionUpdate, wire.SessionUpdatePayload{
		SessionID: "s1",
		Update:    wire.SessionUpdate{Type: wire.UpdateToolCall, ToolCallID: id, Title: title, Status: status},
	})
	return f
}

func endOfTurnFrame() *wire.Frame {
	f, _ := wire.NewNotification(wire.MethodSessionUpdate, wire.SessionUpdatePayload{
		SessionID: "s1",
		Update:    wire.SessionUpdate{Type: wire.UpdateEndOfTurn},
	})
	return f
}

// Scenario 3: interleaved text and tool (spec §8.3).
func TestScenarioInterleavedTextAndTool(t *testing.T) {
	sink := &collectingSink{}
	r := New(sink, 3)

	r.HandleFrame(nil, messageChunkFrame("Starting analysis..."))
	r.HandleFrame(nil, toolCallFrame("ls-1", "ls", "running"))
	r.HandleFrame(nil, messageChunkFrame("Found files."))
	r.HandleFrame(nil, endOfTurnFrame())

	events := sink.snapshot()
	var finalText *Message
	for _, e := range events {
		if e.Type == "final_text" {
			finalText = e.Message
		}
	}
	require.NotNil(t, finalText)
	require.Len(t, finalText.Content, 3)
	assert.Equal(t, PartText, finalText.Content[0].Kind)
	assert.Equal(t, "Starting analysis...", finalText.Content[0].Text)
	assert.Equal(t, PartToolCall, finalText.Content[1].Kind)
	assert.Equal(t, "ls-1", finalText.Content[1].Tool.ID)
	assert.Equal(t, PartText, finalText.Content[2].Kind)
	assert.Equal(t, "Found files.", finalText.Content[2].Text)
	assert.Equal(t, "Starting analysis...Found files.", finalText.Text)
}

// Scenario 4: overlapping resend within one part (spec §8.4).
func TestScenarioOverlappingResendWithinOnePart(t *testing.T) {
	sink := &collectingSink{}
	r := New(sink, 3)

	r.HandleFrame(nil, messageChunkFrame("Hello"))
	r.HandleFrame(nil, messageChunkFrame("lo world"))
	r.HandleFrame(nil, endOfTurnFrame())

	events := sink.snapshot()
	var finalText *Message
	for _, e := range events {
		if e.Type == "final_text" {
			finalText = e.Message
		}
	}
	require.NotNil(t, finalText)
	require.Len(t, finalText.Content, 1)
	assert.Equal(t, "Hello world", finalText.Content[0].Text)
}

// Scenario 5: scoped rectification after tool (spec §8.5).
func TestScenarioScopedRectificationAfterTool(t *testing.T) {
	sink := &collectingSink{}
	r := New(sink, 3)

	r.HandleFrame(nil, thoughtChunkFrame("Thinking about files..."))
	r.HandleFrame(nil, toolCallFrame("ls-2", "ls", "running"))
	r.HandleFrame(nil, thoughtChunkFrame("Found"))
	r.HandleFrame(nil, thoughtChunkFrame("Found it"))
	r.HandleFrame(nil, endOfTurnFrame())

	events := sink.snapshot()
	var finalText *Message
	for _, e := range events {
		if e.Type == "final_text" {
			finalText = e.Message
		}
	}
	require.NotNil(t, finalText)
	require.Len(t, finalText.Content, 3)
	assert.Equal(t, PartThought, finalText.Content[0].Kind)
	assert.Equal(t, "Thinking about files...", finalText.Content[0].Text)
	assert.Equal(t, PartToolCall, finalText.Content[1].Kind)
	assert.Equal(t, PartThought, finalText.Content[2].Kind)
	assert.Equal(t, "Found it", finalText.Content[2].Text)
	assert.Equal(t, "Thinking about files...Found it", finalText.Thought)
}

func TestSeqIsStrictlyMonotonic(t *testing.T) {
	sink := &collectingSink{}
	r := New(sink, 3)

	r.HandleFrame(nil, messageChunkFrame("a"))
	r.HandleFrame(nil, messageChunkFrame("ab"))
	r.HandleFrame(nil, endOfTurnFrame())

	events := sink.snapshot()
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestHiddenAssistantModeSuppressesAssistantEventsButNotUser(t *testing.T) {
	sink := &collectingSink{}
	r := New(sink, 3)
	r.SetHiddenMode(HiddenAssistant)

	r.SendPrompt("hi", "")
	r.HandleFrame(nil, messageChunkFrame("reply"))
	r.HandleFrame(nil, endOfTurnFrame())

	var sawAssistantDelta, sawUser bool
	for _, e := range sink.snapshot() {
		if e.Type == "text_delta" {
			sawAssistantDelta = true
		}
		if e.Type == "user_message" {
			sawUser = true
		}
	}
	assert.False(t, sawAssistantDelta)
	assert.True(t, sawUser)
}

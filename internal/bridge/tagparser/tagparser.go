// Package tagparser implements the stateful streaming filter that extracts
// <SYS_JSON>...</SYS_JSON> and <SYS_BLOCK>...</SYS_BLOCK> tagged regions from
// outgoing assistant text chunks as structured side-channel events (spec
// §4.2). It is a pull-based transform: each call to Feed on a chunk returns
// a bounded slice of output Parts, per the "coroutine-shaped control flow"
// design note rather than an unbounded shared queue.
package tagparser

import (
	"encoding/json"
	"strings"
)

// Mode controls how recognized tag regions are treated.
type Mode string

const (
	// ModeEvent strips tag regions from the text stream and emits structured
	// events in their place.
	ModeEvent Mode = "event"
	// ModeRaw passes chunks through untouched; no tag recognition occurs.
	ModeRaw Mode = "raw"
	// ModeBoth emits structured events AND keeps the raw tagged text inline.
	ModeBoth Mode = "both"
)

// PartKind discriminates an output Part.
type PartKind int

const (
	// PartText is an ordinary chunk of assistant-facing text.
	PartText PartKind = iota
	// PartEvent is a structured side-channel event extracted from a tag.
	PartEvent
)

// Part is one element of the ordered output of a Feed/Flush call.
type Part struct {
	Kind PartKind

	// Text is populated when Kind == PartText.
	Text string

	// EventType, Payload, Err, Raw are populated when Kind == PartEvent.
	// EventType is the lowercased tag name ("sys_json" or "sys_block").
	// Payload holds the trimmed JSON payload on successful parse.
	// Err holds the parser's error message on a failed parse; Payload is
	// then nil and Raw preserves the captured (unparsed) text.
	EventType string
	Payload   json.RawMessage
	Err       string
	Raw       string
}

type tagDef struct {
	Name  string
	Start string
	End   string
}

var defaultTags = []tagDef{
	{Name: "SYS_JSON", Start: "<SYS_JSON>", End: "</SYS_JSON>"},
	{Name: "SYS_BLOCK", Start: "<SYS_BLOCK>", End: "</SYS_BLOCK>"},
}

type parserState int

const (
	stateOutside parserState = iota
	stateInside
)

// Parser is a stateful streaming tag extractor. Not safe for concurrent use;
// one Parser is owned by a single outgoing stream.
type Parser struct {
	mode Mode
	tags []tagDef

	state   parserState
	active  *tagDef
	pending string // bytes held across Feed calls: a partial start or end delimiter
	payload strings.Builder
}

// New creates a Parser for the given mode using the default SYS_JSON/SYS_BLOCK
// tag pair. Tag names are configurable via NewWithTags.
func New(mode Mode) *Parser {
	return &Parser{mode: mode, tags: defaultTags}
}

// NewWithTags creates a Parser recognizing a custom set of tag names (each
// rendered as <NAME>...</NAME>).
func NewWithTags(mode Mode, names ...string) *Parser {
	tags := make([]tagDef, 0, len(names))
	for _, n := range names {
		tags = append(tags, tagDef{Name: n, Start: "<" + n + ">", End: "</" + n + ">"})
	}
	return &Parser{mode: mode, tags: tags}
}

// Feed processes the next chunk in arrival order, returning the ordered
// parts it produces. Chunks must be fed in order; a tag's delimiters may
// straddle chunk boundaries (spec "Chunk boundary discipline").
func (p *Parser) Feed(chunk string) []Part {
	if p.mode == ModeRaw {
		if chunk == "" {
			return nil
		}
		return []Part{{Kind: PartText, Text: chunk}}
	}

	buf := p.pending + chunk
	p.pending = ""

	var out []Part
	for {
		if p.state == stateOutside {
			idx, which, found := earliestDelim(buf, p.startDelims())
			if found {
				if idx > 0 {
					out = append(out, Part{Kind: PartText, Text: buf[:idx]})
				}
				p.active = &p.tags[which]
				p.state = stateInside
				p.payload.Reset()
				buf = buf[idx+len(p.active.Start):]
				continue
			}

			partial := trailingPartialPrefix(buf, p.startDelims())
			textLen := len(buf) - len(partial)
			if textLen > 0 {
				out = append(out, Part{Kind: PartText, Text: buf[:textLen]})
			}
			p.pending = partial
			break
		}

		// Inside a tag: look for its specific end delimiter.
		end := p.active.End
		j := strings.Index(buf, end)
		if j >= 0 {
			p.payload.WriteString(buf[:j])
			out = append(out, p.closeTag()...)
			buf = buf[j+len(end):]
			continue
		}

		partial := trailingPartialPrefix(buf, []string{end})
		capLen := len(buf) - len(partial)
		if capLen > 0 {
			p.payload.WriteString(buf[:capLen])
		}
		p.pending = partial
		break
	}
	return out
}

// Flush emits any in-flight state as plain text, called on a stop-of-turn
// signal. If a tag was left open, its opened start-tag plus captured
// contents are re-emitted as text (no phantom structured event); if only a
// text suffix was held, it is emitted as text.
func (p *Parser) Flush() []Part {
	if p.mode == ModeRaw {
		return nil
	}

	var out []Part
	if p.state == stateInside {
		text := p.active.Start + p.payload.String() + p.pending
		if text != "" {
			out = append(out, Part{Kind: PartText, Text: text})
		}
		p.state = stateOutside
		p.active = nil
		p.payload.Reset()
		p.pending = ""
		return out
	}

	if p.pending != "" {
		out = append(out, Part{Kind: PartText, Text: p.pending})
		p.pending = ""
	}
	return out
}

// closeTag finalizes the currently active tag (state must be stateInside and
// p.payload holds the fully captured raw content) and returns the parts to
// emit for it, per the mode's re-inlining rule.
func (p *Parser) closeTag() []Part {
	raw := p.payload.String()
	payload, parseErr := parsePayload(raw)
	tagSpan := p.active.Start + raw + p.active.End
	eventType := strings.ToLower(p.active.Name)

	var out []Part
	switch p.mode {
	case ModeEvent:
		part := Part{Kind: PartEvent, EventType: eventType, Raw: raw}
		if parseErr != nil {
			part.Err = parseErr.Error()
			out = append(out, part, Part{Kind: PartText, Text: tagSpan})
		} else {
			part.Payload = payload
			out = append(out, part)
		}
	case ModeBoth:
		part := Part{Kind: PartEvent, EventType: eventType, Raw: raw}
		if parseErr != nil {
			part.Err = parseErr.Error()
		} else {
			part.Payload = payload
		}
		out = append(out, part, Part{Kind: PartText, Text: tagSpan})
	}

	p.state = stateOutside
	p.active = nil
	p.payload.Reset()
	return out
}

func (p *Parser) startDelims() []string {
	d := make([]string, len(p.tags))
	for i, t := range p.tags {
		d[i] = t.Start
	}
	return d
}

// parsePayload trims raw and JSON-parses it; on success the trimmed text is
// returned verbatim as the payload (callers only need it valid, not
// re-marshaled).
func parsePayload(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	var v interface{}
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, err
	}
	return json.RawMessage(trimmed), nil
}

// earliestDelim returns the index and slice position of whichever delimiter
// in delims occurs earliest in buf.
func earliestDelim(buf string, delims []string) (idx int, which int, found bool) {
	idx, which = -1, -1
	for i, d := range delims {
		if j := strings.Index(buf, d); j >= 0 && (idx == -1 || j < idx) {
			idx, which = j, i
		}
	}
	return idx, which, idx >= 0
}

// trailingPartialPrefix returns the longest suffix of buf that is a strict,
// non-empty prefix of one of delims — i.e. bytes that might complete into a
// recognized delimiter once more input arrives, and so must be held rather
// than emitted as text.
func trailingPartialPrefix(buf string, delims []string) string {
	best := ""
	for _, d := range delims {
		maxLen := len(d) - 1
		if maxLen > len(buf) {
			maxLen = len(buf)
		}
		for l := maxLen; l > 0; l-- {
			suffix := buf[len(buf)-l:]
			if strings.HasPrefix(d, suffix) {
				if len(suffix) > len(best) {
					best = suffix
				}
				break
			}
		}
	}
	return best
}

// Package frame splits a subprocess's standard output into line-oriented
// frames and classifies each one (spec §4.1).
package frame

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Kind discriminates a classified frame.
type Kind int

const (
	// KindJSONRPC is a line that parsed as a JSON object.
	KindJSONRPC Kind = iota
	// KindAuthURL is a log line carrying a Google OAuth authorization URL.
	KindAuthURL
	// KindLog is ordinary, uninteresting subprocess chatter.
	KindLog
)

// Frame is one classified line of subprocess output.
type Frame struct {
	Kind Kind
	// Raw is the original line, with the trailing newline stripped.
	Raw string
	// JSON is populated when Kind == KindJSONRPC.
	JSON json.RawMessage
	// URL is populated when Kind == KindAuthURL.
	URL string
}

// googleOAuthURL matches the fixed authority Google's accounts OAuth v2 flow
// announces its consent URL under.
var googleOAuthURL = regexp.MustCompile(`https://accounts\.google\.com/o/oauth2/v2/auth[^\s"'<>]*`)

// Reader incrementally classifies lines read from a subprocess's stdout.
type Reader struct {
	r      *bufio.Reader
	logger *slog.Logger
}

// NewReader wraps r, classifying frames as they are read.
func NewReader(r io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{r: bufio.NewReaderSize(r, 64*1024), logger: logger}
}

// Next reads and classifies the next line. It returns io.EOF when the
// underlying stream is exhausted. Blank lines are skipped and never
// returned; callers should loop until a non-nil Frame or an error.
func (fr *Reader) Next() (*Frame, error) {
	for {
		line, err := fr.r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			f := Classify(trimmed, fr.logger)
			if err != nil {
				return f, nil
			}
			return f, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Classify inspects a single trimmed line and decides its Kind.
//
// A leading '{' is attempted as JSON first; a parse failure is logged and
// downgraded to KindLog rather than propagated, so malformed JSON-looking
// subprocess chatter never kills the stream (spec §4.1).
func Classify(line string, logger *slog.Logger) *Frame {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var probe json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &probe); err == nil {
			return &Frame{Kind: KindJSONRPC, Raw: line, JSON: probe}
		}
		if logger != nil {
			logger.Warn("frame: line looked like JSON but failed to parse", "line", trimmed)
		}
	}

	stripped := ansi.Strip(trimmed)
	if m := googleOAuthURL.FindString(stripped); m != "" {
		return &Frame{Kind: KindAuthURL, Raw: line, URL: m}
	}

	return &Frame{Kind: KindLog, Raw: line}
}

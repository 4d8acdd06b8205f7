package client

import (
	"encoding/json"
	"strings"
)

// parseTitle recovers workingDir/description/input/args from a free-text
// tool title of the form "command [current working directory PATH]
// (description with possibly (nested) parens)" (spec §4.5 "Title
// parsing"). It mutates the passed ToolCall in place.
func parseTitle(tc *ToolCall) {
	rest := tc.Title

	if start := strings.Index(rest, "[current working directory "); start >= 0 {
		end := strings.Index(rest[start:], "]")
		if end >= 0 {
			inner := rest[start+len("[current working directory ") : start+end]
			tc.WorkingDir = inner
			rest = rest[:start] + rest[start+end+1:]
		}
	}

	desc, remainder := extractTrailingParenGroup(rest)
	tc.Description = desc
	rest = strings.TrimSpace(remainder)

	if idx := strings.Index(rest, "input(s): "); idx >= 0 {
		jsonPart := rest[idx+len("input(s): "):]
		var parsed interface{}
		if err := json.Unmarshal([]byte(jsonPart), &parsed); err == nil {
			tc.Args = parsed
		} else {
			tc.Args = jsonPart
		}
		rest = strings.TrimSpace(rest[:idx])
	}

	tc.Input = rest
}

// extractTrailingParenGroup locates the last balanced parenthesized group
// at the very end of s, via right-to-left bracket balancing, and returns
// its inner content plus s with that group removed.
func extractTrailingParenGroup(s string) (group string, remainder string) {
	trimmed := strings.TrimRight(s, " ")
	if !strings.HasSuffix(trimmed, ")") {
		return "", s
	}

	depth := 0
	for i := len(trimmed) - 1; i >= 0; i-- {
		switch trimmed[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return trimmed[i+1 : len(trimmed)-1], trimmed[:i]
			}
		}
	}
	return "", s
}

// Package diff normalizes the several tool-call diff payload shapes a
// downstream agent may emit into the bridge's canonical Diff value, computing
// a unified diff when only before/after text is supplied (spec §4.5).
//
// No diffing library appears anywhere in the retrieval pack this module was
// grounded on, so the unified-diff computation below is a small
// standard-library line-diff (see DESIGN.md for the justification).
package diff

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Diff is the bridge's canonical normalized tool-call diff.
type Diff struct {
	Path          string `json:"path,omitempty"`
	Unified       string `json:"unified"`
	OldTextLength int    `json:"oldTextLength,omitempty"`
	NewTextLength int    `json:"newTextLength,omitempty"`
}

// Normalize accepts a raw JSON value in any of the shapes a tool_call_update
// may carry a diff under and returns the canonical Diff. ctxLines is the
// number of context lines to compute when a unified string is not already
// supplied (default 3, per spec §6).
func Normalize(raw json.RawMessage, ctxLines int) (*Diff, error) {
	var shape struct {
		Type     string `json:"type"`
		Path     string `json:"path"`
		OldText  string `json:"oldText"`
		NewText  string `json:"newText"`
		Before   string `json:"before"`
		After    string `json:"after"`
		Unified  string `json:"unified"`
		Patch    string `json:"patch"`
		DiffText string `json:"-"`
		Diff     *struct {
			Path    string `json:"path"`
			Unified string `json:"unified"`
			Patch   string `json:"patch"`
			Diff    string `json:"diff"`
			Before  string `json:"before"`
			After   string `json:"after"`
			OldText string `json:"oldText"`
			NewText string `json:"newText"`
		} `json:"diff"`
		Content *struct {
			Diff *struct {
				Path    string `json:"path"`
				Unified string `json:"unified"`
				Patch   string `json:"patch"`
				Diff    string `json:"diff"`
				Before  string `json:"before"`
				After   string `json:"after"`
				OldText string `json:"oldText"`
				NewText string `json:"newText"`
			} `json:"diff"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		// A string under "diff" is unified text rather than the embedded
		// sub-object; every other field still decodes, so read it separately.
		var typeErr *json.UnmarshalTypeError
		var asText struct {
			Diff string `json:"diff"`
		}
		if !errors.As(err, &typeErr) || typeErr.Field != "diff" || json.Unmarshal(raw, &asText) != nil {
			return nil, fmt.Errorf("diff: unmarshal: %w", err)
		}
		shape.DiffText = asText.Diff
	}

	// Flatten the nested shapes (embedded diff, or content.diff) down to the
	// same field set as the top level, preferring the most specific source.
	path := shape.Path
	oldText, newText := firstNonEmpty(shape.OldText, shape.Before), firstNonEmpty(shape.NewText, shape.After)
	unified := firstNonEmpty(shape.Unified, shape.Patch, shape.DiffText)

	if shape.Diff != nil {
		path = firstNonEmpty(path, shape.Diff.Path)
		unified = firstNonEmpty(unified, shape.Diff.Unified, shape.Diff.Patch, shape.Diff.Diff)
		oldText = firstNonEmpty(oldText, shape.Diff.OldText, shape.Diff.Before)
		newText = firstNonEmpty(newText, shape.Diff.NewText, shape.Diff.After)
	}
	if shape.Content != nil && shape.Content.Diff != nil {
		d := shape.Content.Diff
		path = firstNonEmpty(path, d.Path)
		unified = firstNonEmpty(unified, d.Unified, d.Patch, d.Diff)
		oldText = firstNonEmpty(oldText, d.OldText, d.Before)
		newText = firstNonEmpty(newText, d.NewText, d.After)
	}

	result := &Diff{Path: path}
	if oldText != "" {
		result.OldTextLength = len(oldText)
	}
	if newText != "" {
		result.NewTextLength = len(newText)
	}

	if unified != "" {
		result.Unified = unified
		return result, nil
	}
	if oldText == "" && newText == "" {
		return nil, fmt.Errorf("diff: no unified, before/after, or oldText/newText supplied")
	}
	result.Unified = computeUnified(oldText, newText, ctxLines)
	return result, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// computeUnified produces a minimal unified-diff-style text between old and
// new, with ctxLines lines of context around each changed hunk. It uses a
// classic longest-common-subsequence line matcher; callers needing
// production-grade diffing for very large files should prefer a dedicated
// library, but none is available in the dependency set this module draws on.
func computeUnified(oldText, newText string, ctxLines int) string {
	if ctxLines < 0 {
		ctxLines = 0
	}
	a := splitLines(oldText)
	b := splitLines(newText)
	ops := lcsDiff(a, b)

	var sb strings.Builder
	sb.WriteString("--- old\n+++ new\n")

	i := 0
	printed := 0
	for i < len(ops) {
		if ops[i].kind == opEqual {
			i++
			continue
		}
		// Start of a changed hunk: back up ctxLines of leading context, but
		// not into lines the previous hunk already printed.
		start := i
		for c := 0; c < ctxLines && start > printed && ops[start-1].kind == opEqual; c++ {
			start--
		}
		end := i
		for end < len(ops) && ops[end].kind != opEqual {
			end++
		}
		trail := end
		for c := 0; c < ctxLines && trail < len(ops) && ops[trail].kind == opEqual; c++ {
			trail++
		}
		for _, op := range ops[start:trail] {
			switch op.kind {
			case opEqual:
				sb.WriteString(" " + op.line + "\n")
			case opDelete:
				sb.WriteString("-" + op.line + "\n")
			case opInsert:
				sb.WriteString("+" + op.line + "\n")
			}
		}
		i = trail
		printed = trail
	}
	return sb.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type lineOp struct {
	kind opKind
	line string
}

// lcsDiff computes a line-level diff between a and b using dynamic-
// programming longest-common-subsequence backtracking.
func lcsDiff(a, b []string) []lineOp {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var ops []lineOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, lineOp{opEqual, a[i]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			ops = append(ops, lineOp{opDelete, a[i]})
			i++
		default:
			ops = append(ops, lineOp{opInsert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, lineOp{opDelete, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, lineOp{opInsert, b[j]})
	}
	return ops
}

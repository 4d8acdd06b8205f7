package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

// readTextFileParams and writeTextFileParams mirror the fs/read_text_file and
// fs/write_text_file request shapes the subprocess sends (spec §6).
type readTextFileParams struct {
	Path string `json:"path"`
}

type writeTextFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// resolveInRoot resolves path against the project root, refusing any path
// whose canonical form escapes the root (spec §4.3, §7 "Tool path escaping
// the project root"). It also refuses a path that stays inside root
// lexically but resolves, through a symlink, to somewhere outside it (spec
// §4.3 "never follow symlinks outside the project root").
func resolveInRoot(root, path string) (string, error) {
	joined := path
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(root, joined)
	}
	resolved, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	resolved = filepath.Clean(resolved)

	if err := checkContained(root, resolved); err != nil {
		return "", err
	}

	// Resolve symlinks on whichever of the target or its parent directory
	// exists: a write target's file need not exist yet, but its directory
	// must, and a symlinked directory can still smuggle the final path
	// outside root.
	real, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		real, err = filepath.EvalSymlinks(filepath.Dir(resolved))
		if err != nil {
			return resolved, nil
		}
	}
	if err := checkContained(root, filepath.Clean(real)); err != nil {
		return "", err
	}

	return resolved, nil
}

func checkContained(root, resolved string) error {
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errPathEscapesRoot
	}
	return nil
}

var errPathEscapesRoot = fmt.Errorf("path escapes project root")

// handleFSRequest answers fs/read_text_file and fs/write_text_file requests
// coming from the subprocess directly over stdin, bypassing the ring/fan-out
// entirely since these are internal tool plumbing, not conversation state.
// It reports whether the frame was a recognized fs-tool request.
func (s *Supervisor) handleFSRequest(f *wire.Frame) bool {
	switch f.Method {
	case wire.MethodFsReadTextFile:
		s.respondReadTextFile(f)
		return true
	case wire.MethodFsWriteText:
		s.respondWriteTextFile(f)
		return true
	default:
		return false
	}
}

func (s *Supervisor) respondReadTextFile(f *wire.Frame) {
	var params readTextFileParams
	if err := json.Unmarshal(f.Params, &params); err != nil {
		s.writeStdinFrame(wire.NewError(f.ID, wire.ErrCodeInvalidParams, err.Error()))
		return
	}

	resolved, err := resolveInRoot(s.projectRoot, params.Path)
	if err != nil {
		s.writeStdinFrame(wire.NewError(f.ID, wire.ErrCodeInvalidToolPath, err.Error()))
		return
	}

	data, err := os.ReadFile(resolved)
	switch {
	case os.IsNotExist(err):
		// A read of a non-existent file returns empty content, not an error.
		resp, _ := wire.NewResult(f.ID, map[string]string{"content": ""})
		s.writeStdinFrame(resp)
	case err != nil:
		s.writeStdinFrame(wire.NewError(f.ID, wire.ErrCodeFileToolIO, err.Error()))
	default:
		resp, _ := wire.NewResult(f.ID, map[string]string{"content": string(data)})
		s.writeStdinFrame(resp)
	}
}

func (s *Supervisor) respondWriteTextFile(f *wire.Frame) {
	var params writeTextFileParams
	if err := json.Unmarshal(f.Params, &params); err != nil {
		s.writeStdinFrame(wire.NewError(f.ID, wire.ErrCodeInvalidParams, err.Error()))
		return
	}

	resolved, err := resolveInRoot(s.projectRoot, params.Path)
	if err != nil {
		s.writeStdinFrame(wire.NewError(f.ID, wire.ErrCodeInvalidToolPath, err.Error()))
		return
	}

	if err := os.WriteFile(resolved, []byte(params.Content), 0o644); err != nil {
		s.writeStdinFrame(wire.NewError(f.ID, wire.ErrCodeFileToolIO, err.Error()))
		return
	}

	s.recordWrite(resolved)
	resp, _ := wire.NewResult(f.ID, nil)
	s.writeStdinFrame(resp)
}

// Package supervisor owns the subprocess: its stdio framing, authentication
// gate, emulated filesystem tools, crash recovery, and rolling log (spec
// §4.3). It is grounded on agent-cli-wrapper/acp's processManager and Client
// read loop, generalized from ACP's fixed method set to the bridge's own
// auth-gate and checkpoint concerns.
package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/frame"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/procattr"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

// restartDelay is the fixed crash-recovery backoff (spec §4.3).
const restartDelay = 2 * time.Second

// maxLogSize is the rolling log rotation threshold (spec §4.3, §6).
const maxLogSize = 2 * 1024 * 1024

var (
	// ErrNotStarted is returned by operations requiring a running subprocess.
	ErrNotStarted = fmt.Errorf("supervisor: not started")
	// ErrAuthPending is returned when a caller tries to write through the
	// auth gate without using SubmitAuthCode.
	ErrAuthPending = fmt.Errorf("supervisor: authentication pending")
)

// Config configures a Supervisor.
type Config struct {
	BinaryPath  string
	PackageName string
	ProjectRoot string
	LogPath     string
	Logger      *slog.Logger
	Checkpoint  Checkpointer

	// OnOutput is called for every frame the subprocess emits that is not
	// internally handled (fs tool requests are intercepted and never reach
	// this callback).
	OnOutput func(*frame.Frame)
	// OnAuthURL is called when an auth URL announcement is detected.
	OnAuthURL func(url string)
	// OnRestart is called after a crash-triggered restart completes, with
	// the freshly minted session id; the caller (the hub) resets its turn
	// counter in response (spec §4.3 "A restart begins a fresh session
	// identifier and resets the turn counter").
	OnRestart func(sessionID string)
}

// Supervisor owns one subprocess lifetime, including transparent restarts.
type Supervisor struct {
	cfg         Config
	projectRoot string
	logger      *slog.Logger
	checkpoint  Checkpointer

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	sessionID   string
	authPending bool
	authURL     string
	stopped     bool

	writeMu sync.Mutex

	turnMu        sync.Mutex
	currentTurn   int64
	modifiedFiles map[string]struct{}

	// stdinSink, when set, intercepts writeStdinFrame instead of writing to
	// the real subprocess stdin; used by tests exercising fs-tool handlers
	// in isolation from a running process.
	stdinSink func(*wire.Frame) error
}

// New creates a Supervisor. ProjectRoot is canonicalized (symlinks are not
// followed outside of it; resolveInRoot enforces that per-request).
func New(cfg Config) (*Supervisor, error) {
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("supervisor: resolve project root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Checkpoint == nil {
		cfg.Checkpoint = NoopCheckpointer{}
	}
	return &Supervisor{
		cfg:           cfg,
		projectRoot:   root,
		logger:        cfg.Logger,
		checkpoint:    cfg.Checkpoint,
		modifiedFiles: make(map[string]struct{}),
	}, nil
}

// Start resolves and spawns the subprocess and begins its read/stderr
// pumps. It returns once the process has been spawned; crash recovery
// happens in the background.
func (s *Supervisor) Start(ctx context.Context) error {
	return s.spawn(ctx)
}

func (s *Supervisor) spawn(ctx context.Context) error {
	command, args, viaPackageRunner, err := resolveLaunch(s.cfg.BinaryPath, s.cfg.PackageName, s.projectRoot)
	if err != nil {
		return fmt.Errorf("supervisor: resolve launch: %w", err)
	}
	s.logger.Info("supervisor: resolved launch command", "command", command, "args", args, "viaPackageRunner", viaPackageRunner)
	s.logger.Info("supervisor: version probe", "version", versionProbe(ctx, command, args))

	cmd := exec.Command(command, args...)
	cmd.Dir = s.projectRoot
	env := append(os.Environ(), "FORCE_COLOR=0")
	if viaPackageRunner {
		env = packageRunnerEnv(env)
	}
	cmd.Env = env
	procattr.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("supervisor: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("supervisor: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: start: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.sessionID = uuid.NewString()
	s.authPending = false
	s.authURL = ""
	s.mu.Unlock()

	go s.readLoop(stdout)
	go s.drainStderr(stderr)
	go s.waitAndRecover(cmd)

	return nil
}

// readLoop classifies each line of subprocess stdout and routes it: fs-tool
// requests are answered inline, auth URLs update the gate, everything else
// is forwarded to OnOutput.
func (s *Supervisor) readLoop(stdout io.Reader) {
	r := frame.NewReader(stdout, s.logger)
	for {
		f, err := r.Next()
		if f != nil {
			s.routeFrame(f)
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("supervisor: stdout read error", "error", err)
			}
			return
		}
	}
}

func (s *Supervisor) routeFrame(f *frame.Frame) {
	switch f.Kind {
	case frame.KindJSONRPC:
		var rpc wire.Frame
		if err := json.Unmarshal(f.JSON, &rpc); err != nil {
			s.logger.Warn("supervisor: malformed JSON-RPC frame", "error", err)
			return
		}
		if rpc.IsRequest() && s.handleFSRequest(&rpc) {
			return
		}
		if s.cfg.OnOutput != nil {
			s.cfg.OnOutput(f)
		}
	case frame.KindAuthURL:
		s.mu.Lock()
		s.authPending = true
		s.authURL = f.URL
		s.mu.Unlock()
		if s.cfg.OnAuthURL != nil {
			s.cfg.OnAuthURL(f.URL)
		}
		if s.cfg.OnOutput != nil {
			s.cfg.OnOutput(f)
		}
	case frame.KindLog:
		s.logger.Info("subprocess", "line", f.Raw)
	}
}

func (s *Supervisor) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.logger.Warn("subprocess stderr", "line", scanner.Text())
	}
}

// waitAndRecover blocks until the subprocess exits, clears session/auth
// state, and schedules a restart after the fixed delay unless Stop was
// called first (spec §4.3 "Crash recovery").
func (s *Supervisor) waitAndRecover(cmd *exec.Cmd) {
	_ = cmd.Wait()

	s.mu.Lock()
	s.sessionID = ""
	s.authPending = false
	s.authURL = ""
	stopped := s.stopped
	s.mu.Unlock()

	s.turnMu.Lock()
	s.currentTurn = 0
	s.modifiedFiles = make(map[string]struct{})
	s.turnMu.Unlock()

	if stopped {
		return
	}

	s.logger.Warn("supervisor: subprocess exited, scheduling restart", "delay", restartDelay)
	time.AfterFunc(restartDelay, func() {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		if err := s.spawn(context.Background()); err != nil {
			s.logger.Error("supervisor: restart failed", "error", err)
			return
		}
		s.mu.Lock()
		sid := s.sessionID
		s.mu.Unlock()
		if s.cfg.OnRestart != nil {
			s.cfg.OnRestart(sid)
		}
	})
}

// Stop terminates the subprocess, escalating from SIGINT to SIGKILL across
// the process group (spec §4.3, grounded on acp/process.go's staged
// escalation), and suppresses further automatic restarts.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	s.stopped = true
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }()

	select {
	case <-done:
		return nil
	case <-time.After(500 * time.Millisecond):
	}

	_ = procattr.SignalGroup(cmd.Process, syscall.SIGINT)
	select {
	case <-done:
		return nil
	case <-time.After(500 * time.Millisecond):
	}

	_ = procattr.KillGroup(cmd.Process)
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
	}
	return nil
}

// WriteFrame serializes a JSON-RPC frame and writes it to the subprocess's
// stdin, one write at a time. It is the client-facing entry point and is
// gated by AuthPending; fs-tool responses go directly through
// writeStdinFrame instead, since they answer the subprocess's own requests
// and are not subject to the client-facing auth gate.
func (s *Supervisor) WriteFrame(f *wire.Frame) error {
	s.mu.Lock()
	authPending := s.authPending
	s.mu.Unlock()
	if authPending {
		return ErrAuthPending
	}
	return s.writeStdinFrame(f)
}

func (s *Supervisor) writeStdinFrame(f *wire.Frame) error {
	if s.stdinSink != nil {
		return s.stdinSink(f)
	}

	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return ErrNotStarted
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("supervisor: marshal frame: %w", err)
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = stdin.Write(data)
	return err
}

// SubmitAuthCode writes the trimmed code plus a newline to stdin and clears
// the auth gate (spec §4.3).
func (s *Supervisor) SubmitAuthCode(code string) error {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return ErrNotStarted
	}

	s.writeMu.Lock()
	_, err := stdin.Write([]byte(code + "\n"))
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.authPending = false
	s.authURL = ""
	s.mu.Unlock()
	return nil
}

// AuthPending reports whether the auth gate is currently closed.
func (s *Supervisor) AuthPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authPending
}

// AuthURL returns the pending auth URL, if any.
func (s *Supervisor) AuthURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authURL
}

// SessionID returns the current subprocess session id, or "" if not running.
func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// SetCurrentTurn records the turn id that subsequent writes should be
// attributed to. Called by the hub whenever it bumps its turn counter.
func (s *Supervisor) SetCurrentTurn(turnID int64) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if turnID != s.currentTurn {
		s.currentTurn = turnID
		s.modifiedFiles = make(map[string]struct{})
	}
}

func (s *Supervisor) recordWrite(path string) {
	s.turnMu.Lock()
	s.modifiedFiles[path] = struct{}{}
	s.turnMu.Unlock()
}

// EndTurn emits the checkpoint hook if the turn's modified-file set is
// non-empty (spec §4.3, §4.4 step 3), then clears the set.
func (s *Supervisor) EndTurn(ctx context.Context, turnID int64) {
	s.turnMu.Lock()
	if turnID != s.currentTurn || len(s.modifiedFiles) == 0 {
		s.turnMu.Unlock()
		return
	}
	files := make([]string, 0, len(s.modifiedFiles))
	for f := range s.modifiedFiles {
		files = append(files, f)
	}
	s.modifiedFiles = make(map[string]struct{})
	s.turnMu.Unlock()

	sid := s.SessionID()
	if err := s.checkpoint.Notify(ctx, turnID, sid, files); err != nil {
		s.logger.Warn("supervisor: checkpoint hook failed", "error", err)
	}
}

// RotateLog renames path to a ".old" sibling if it exceeds maxLogSize (spec
// §4.3 "Log rotation"). Callers must rotate before opening path for writing
// — rotating a path that is already open for writes just renames the file
// out from under the open descriptor, leaving the old file growing under
// its new name instead of starting fresh.
func RotateLog(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= maxLogSize {
		return
	}
	_ = os.Rename(path, path+".old")
}

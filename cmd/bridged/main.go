// Command bridged runs the bridge server: it launches and supervises the
// downstream agent subprocess, multiplexes its stdio against any number of
// connected websocket clients, and serves replay history on reconnect.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/config"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/frame"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/hub"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/supervisor"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/tagparser"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bridged",
	Short: "Bidirectional bridge server fronting a gemini-cli subprocess",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "bridge.yaml", "path to server config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger opens the rolling log file described by SPEC_FULL.md's ambient
// logging section, rotating it first if it is already oversized (spec §4.3
// "Log rotation" — rotation must happen before the file is opened for
// writing, or the rename just relocates the open descriptor's target). Log
// lines go to both the file and stderr via io.MultiWriter. An empty path
// logs to stderr only.
func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil)), func() {}, nil
	}

	supervisor.RotateLog(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	w := io.MultiWriter(f, os.Stderr)
	logger := slog.New(slog.NewTextHandler(w, nil))
	return logger, func() { _ = f.Close() }, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.LoadServer(configPath)
	if err != nil {
		return fmt.Errorf("bridged: load config: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("bridged: open log: %w", err)
	}
	defer closeLog()

	var checkpointer supervisor.Checkpointer = supervisor.NoopCheckpointer{}
	if cfg.Checkpoint.HostURL != "" {
		checkpointer = &supervisor.HTTPCheckpointer{
			HostURL:      cfg.Checkpoint.HostURL,
			SessionID:    cfg.Checkpoint.SessionID,
			SharedSecret: cfg.Checkpoint.SharedSecret,
		}
	}

	projectRoot := cfg.ProjectRoot
	if projectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			projectRoot = wd
		}
	}

	var h *hub.Hub
	sup, err := supervisor.New(supervisor.Config{
		BinaryPath:  cfg.BinaryPath,
		PackageName: cfg.PackageName,
		ProjectRoot: projectRoot,
		LogPath:     cfg.LogPath,
		Logger:      logger,
		Checkpoint:  checkpointer,
		OnOutput: func(f *frame.Frame) {
			h.HandleSubprocessFrame(ctx, f)
		},
		OnAuthURL: func(url string) {
			logger.Info("bridged: authentication required", "url", url)
		},
		OnRestart: func(sessionID string) {
			h.ResetOnRestart(sessionID)
		},
	})
	if err != nil {
		return fmt.Errorf("bridged: create supervisor: %w", err)
	}

	h = hub.New(sup, hub.Options{
		TagMode:      tagparser.Mode(cfg.TagMode),
		RingCapacity: cfg.RingCapacity,
		Logger:       logger,
	})

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("bridged: start subprocess: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeHTTP)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = sup.Stop()
		_ = srv.Close()
	}()

	logger.Info("bridged: listening", "addr", addr, "model", cfg.Model, "approvalMode", cfg.ApprovalMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("bridged: serve: %w", err)
	}
	return nil
}

// Package config loads the bridge server's and client's configuration,
// following the default-on-absence convention in wt's .wt.yaml loader:
// a missing file is not an error, it just yields defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the bridge server's default listen port (spec §6).
const DefaultPort = 4444

// DefaultDiffContextLines is the default unified-diff context window.
const DefaultDiffContextLines = 3

// Checkpoint holds the optional downstream checkpoint-hook target.
type Checkpoint struct {
	HostURL      string `yaml:"host_url"`
	SessionID    string `yaml:"session_id"`
	SharedSecret string `yaml:"shared_secret"`
}

// Server is the bridge server's recognized configuration options (spec §6).
type Server struct {
	Model        string     `yaml:"model"`
	Port         int        `yaml:"port"`
	ApprovalMode string     `yaml:"approval_mode"`
	BinaryPath   string     `yaml:"binary_path"`
	PackageName  string     `yaml:"package_name"`
	ProjectRoot  string     `yaml:"project_root"`
	TagMode      string     `yaml:"tag_mode"`
	Checkpoint   Checkpoint `yaml:"checkpoint"`
	RingCapacity int        `yaml:"ring_capacity"`
	LogPath      string     `yaml:"log_path"`
}

// LoadServer reads a YAML server config from path, applying defaults for
// zero-valued fields. A missing file yields an all-default configuration.
func LoadServer(path string) (*Server, error) {
	cfg := &Server{
		Port:         DefaultPort,
		ApprovalMode: "default",
		TagMode:      "event",
		RingCapacity: 2000,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read server config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ApprovalMode == "" {
		cfg.ApprovalMode = "default"
	}
	if cfg.TagMode == "" {
		cfg.TagMode = "event"
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = 2000
	}
	return cfg, nil
}

// Client is the bridge client's recognized configuration options (spec §6).
type Client struct {
	URL              string `yaml:"url"`
	CWD              string `yaml:"cwd"`
	Model            string `yaml:"model"`
	DiffContextLines int    `yaml:"diff_context_lines"`
	SessionID        string `yaml:"session_id"`
	ReplayLimit      int    `yaml:"replay_limit"`
	ReplaySinceMs    int64  `yaml:"replay_since_ms"`
	ReplayBeforeMs   int64  `yaml:"replay_before_ms"`
}

// LoadClient reads a YAML client config from path, applying defaults.
func LoadClient(path string) (*Client, error) {
	cfg := &Client{DiffContextLines: DefaultDiffContextLines}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read client config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}

	if cfg.DiffContextLines < 0 {
		cfg.DiffContextLines = 0
	}
	return cfg, nil
}

// Package config holds the small set of tunables the engine and its CLI
// front-end share: where state lives on disk, and the timing constants
// that default sensibly but remain operator-overridable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds engine-wide tunables.
type Config struct {
	// DataRoot is the directory holding state.json, the per-loop journal
	// directory, and the control socket. Default: ".vc".
	DataRoot string `yaml:"dataRoot"`

	// PollInterval is how often the journal tailer checks a loop's log
	// file for new bytes. Default: 250ms.
	PollInterval time.Duration `yaml:"pollInterval"`

	// StopGracePeriod is the configured wait after SIGTERM before
	// escalating to SIGKILL. Default: 2s. The supervisor does not read
	// this field; it always uses its fixed supervisor.StopGracePeriod (2s).
	StopGracePeriod time.Duration `yaml:"stopGracePeriod"`

	// MaxResumeSummaryChars is the configured bound on the resume summary
	// handed to an adapter's resume prompt. Default: 2000. The engine does
	// not read this field; it always summarizes with resume.DefaultMaxChars
	// (2000).
	MaxResumeSummaryChars int `yaml:"maxResumeSummaryChars"`

	// IssueFetchTimeout is the configured bound on issue tracker calls.
	// Default: 30s. The engine does not read this field; its tracker calls
	// use the fixed engine.IssueCallTimeout (30s).
	IssueFetchTimeout time.Duration `yaml:"issueFetchTimeout"`
}

// DefaultConfig returns the engine's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DataRoot:              ".vc",
		PollInterval:          getEnvDuration("VC_POLL_INTERVAL", 250*time.Millisecond),
		StopGracePeriod:       getEnvDuration("VC_STOP_GRACE_PERIOD", 2*time.Second),
		MaxResumeSummaryChars: getEnvInt("VC_MAX_RESUME_SUMMARY_CHARS", 2000),
		IssueFetchTimeout:     getEnvDuration("VC_ISSUE_FETCH_TIMEOUT", 30*time.Second),
	}
}

// SocketPath is the Unix domain socket the engine process listens on and
// CLI subcommands dial.
func (c *Config) SocketPath() string {
	return filepath.Join(c.DataRoot, "control.sock")
}

// Load starts from DefaultConfig and overlays path (typically
// ".vc/config.yaml") if it exists. A missing file is not an error; a
// malformed one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

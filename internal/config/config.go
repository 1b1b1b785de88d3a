package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied to a session table.
const (
	DefaultApp               = "pongo"
	DefaultWindowSize        = 100
	DefaultSearchTimeoutSecs = 30
	DefaultInviteTimeoutSecs = 15
	DefaultRemoteTimeoutSecs = 60
	DefaultSnapshotVersion   = 1
)

var ErrUnknownSession = errors.New("config: unknown session")

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string                   `toml:"default_session"`
	Sessions       map[string]SessionConfig `toml:"sessions"`
}

// SessionConfig describes one backend account.
type SessionConfig struct {
	Ship              string `toml:"ship"`
	URL               string `toml:"url"`
	Code              string `toml:"code"`
	App               string `toml:"app,omitempty"`
	WindowSize        int    `toml:"window_size,omitempty"`
	SearchTimeoutSecs int    `toml:"search_timeout_secs,omitempty"`
	InviteTimeoutSecs int    `toml:"invite_timeout_secs,omitempty"`
	RemoteTimeoutSecs int    `toml:"remote_timeout_secs,omitempty"`
	SnapshotVersion   int    `toml:"snapshot_version,omitempty"`
	MetricsAddr       string `toml:"metrics_addr,omitempty"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Session returns the named session with defaults filled in.
func (c *Config) Session(name string) (SessionConfig, error) {
	sc, ok := c.Sessions[name]
	if !ok {
		return SessionConfig{}, fmt.Errorf("%w: %s", ErrUnknownSession, name)
	}
	if sc.Ship == "" || sc.URL == "" {
		return SessionConfig{}, fmt.Errorf("config: session %s needs ship and url", name)
	}
	sc.applyDefaults()
	return sc, nil
}

func (sc *SessionConfig) applyDefaults() {
	if sc.App == "" {
		sc.App = DefaultApp
	}
	if sc.WindowSize <= 0 {
		sc.WindowSize = DefaultWindowSize
	}
	if sc.SearchTimeoutSecs <= 0 {
		sc.SearchTimeoutSecs = DefaultSearchTimeoutSecs
	}
	if sc.InviteTimeoutSecs <= 0 {
		sc.InviteTimeoutSecs = DefaultInviteTimeoutSecs
	}
	if sc.RemoteTimeoutSecs <= 0 {
		sc.RemoteTimeoutSecs = DefaultRemoteTimeoutSecs
	}
	if sc.SnapshotVersion <= 0 {
		sc.SnapshotVersion = DefaultSnapshotVersion
	}
}

func (sc SessionConfig) SearchTimeout() time.Duration {
	return time.Duration(sc.SearchTimeoutSecs) * time.Second
}

func (sc SessionConfig) InviteTimeout() time.Duration {
	return time.Duration(sc.InviteTimeoutSecs) * time.Second
}

func (sc SessionConfig) RemoteTimeout() time.Duration {
	return time.Duration(sc.RemoteTimeoutSecs) * time.Second
}

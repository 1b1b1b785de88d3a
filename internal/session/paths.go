package session

import (
	"os"
	"path/filepath"
)

// Layout places session files under Root.
type Layout struct {
	Root string
}

// DefaultLayout is rooted at ~/.chatsync.
func DefaultLayout() Layout {
	home, _ := os.UserHomeDir()
	return Layout{Root: filepath.Join(home, ".chatsync")}
}

// Dir returns the session-specific directory.
func (l Layout) Dir(name string) string {
	return filepath.Join(l.Root, "sessions", name)
}

// SocketPath returns the UDS socket path for a session.
func (l Layout) SocketPath(name string) string {
	return filepath.Join(l.Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a session.
func (l Layout) LockPath(name string) string {
	return filepath.Join(l.Dir(name), "LOCK")
}

// SnapshotDBPath returns the SQLite file holding directory snapshots.
func (l Layout) SnapshotDBPath(name string) string {
	return filepath.Join(l.Dir(name), "snapshot.db")
}

func (l Layout) LogDir(name string) string {
	return filepath.Join(l.Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func (l Layout) LogPath(name string) string {
	return filepath.Join(l.LogDir(name), "chatsyncd.log")
}

// ConfigPath returns the global config file path.
func (l Layout) ConfigPath() string {
	return filepath.Join(l.Root, "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func (l Layout) EnsureDir(name string) error {
	for _, d := range []string{l.Dir(name), l.LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// Package lock keeps two daemons from syncing the same session.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID   int
	Ship  string
	Since time.Time
}

func (h Holder) encode() string {
	return fmt.Sprintf("pid=%d\nship=%s\nsince=%s\n", h.PID, h.Ship, h.Since.UTC().Format(time.RFC3339))
}

func decode(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch k {
		case "pid":
			h.PID, _ = strconv.Atoi(v)
		case "ship":
			h.Ship = v
		case "since":
			h.Since, _ = time.Parse(time.RFC3339, v)
		}
	}
	return h
}

// LockHeldError is returned when another process holds the session lock.
type LockHeldError struct {
	Holder
	Path string
}

func (e *LockHeldError) Error() string {
	if e.Ship == "" {
		return fmt.Sprintf("session lock held by PID %d (%s)", e.PID, e.Path)
	}
	return fmt.Sprintf("session lock held by PID %d syncing %s (%s)", e.PID, e.Ship, e.Path)
}

// Lock is an acquired lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on path for ship.
func Acquire(path, ship string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(path)
		_ = f.Close()
		return nil, &LockHeldError{Holder: decode(string(data)), Path: path}
	}

	h := Holder{PID: os.Getpid(), Ship: ship, Since: time.Now()}
	if err := write(f, h); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

func write(f *os.File, h Holder) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := f.WriteString(h.encode())
	return err
}

// Inspect reports who holds the lock at path. It returns nil when no live
// process holds it.
func Inspect(path string) (*Holder, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inspect lock: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inspect lock: %w", err)
	}
	h := decode(string(data))
	return &h, nil
}

// Release drops the lock and removes the file. Safe on a nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

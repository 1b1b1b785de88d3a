package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/status"
)

// Clearer drops all session state.
type Clearer interface {
	Clear()
}

// Session drives the lifecycle: restore the snapshot, subscribe, refresh,
// then keep the snapshot current until Stop or SignOut.
type Session struct {
	machine    *status.Machine
	engine     *Engine
	reconciler *Reconciler
	dir        Clearer
	logger     *zap.Logger

	mu      stdsync.Mutex
	running bool
}

func NewSession(machine *status.Machine, engine *Engine, reconciler *Reconciler, dir Clearer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{machine: machine, engine: engine, reconciler: reconciler, dir: dir, logger: logger}
}

// Start boots the session. A damaged snapshot is logged and skipped.
func (s *Session) Start(ctx context.Context) error {
	switch s.machine.Current() {
	case status.SignedOut, status.Error:
		if err := s.machine.Transition(status.Booting); err != nil {
			return err
		}
	}
	if err := s.machine.Transition(status.Loading); err != nil {
		return err
	}

	if _, err := s.reconciler.Restore(ctx); err != nil {
		s.logger.Warn("snapshot restore failed", zap.Error(err))
	}
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	if err := s.reconciler.Save(ctx); err != nil {
		s.logger.Warn("snapshot save failed", zap.Error(err))
	}
	s.reconciler.Start(ctx)
	return nil
}

// Stop closes the stream and writes a final snapshot. A session that never
// came up leaves the stored snapshot untouched.
func (s *Session) Stop(ctx context.Context) error {
	s.engine.Stop()
	s.reconciler.Stop()
	if !s.stopped() {
		return nil
	}
	return s.reconciler.Save(ctx)
}

// stopped clears the running flag and reports whether it was set.
func (s *Session) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.running
	s.running = false
	return was
}

// SignOut tears the session down and deletes its snapshot.
func (s *Session) SignOut(ctx context.Context) error {
	s.engine.Stop()
	s.reconciler.Stop()
	s.stopped()
	s.dir.Clear()
	err := s.reconciler.Forget(ctx)
	return errors.Join(err, s.machine.Transition(status.SignedOut))
}

// Status returns the current lifecycle state.
func (s *Session) Status() status.State {
	return s.machine.Current()
}

// Live reports whether the push stream is subscribed.
func (s *Session) Live() bool {
	return s.engine.Live()
}

// Package optimistic runs user actions as "apply locally, call remote,
// then commit or undo".
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/patch"
	"github.com/matheus3301/chatsync/internal/state"
)

// Action describes one optimistic action.
//
// Apply runs inside Store.Dispatch and must route every mutation it wants
// undone through tx. Remote runs on its own goroutine. When Compensate is set
// it replaces the generic rollback on remote failure.
type Action struct {
	Name       string
	Convo      string
	Apply      func(tx *patch.Tx, st *state.State) error
	Remote     func(ctx context.Context) error
	Compensate func(st *state.State) error
}

// Outcome is the bus payload for action.* events.
type Outcome struct {
	ID    string
	Name  string
	Convo string
	Err   string
}

// Engine executes Actions against a Store and a patch Log.
type Engine struct {
	store   *state.Store
	log     *patch.Log
	bus     *bus.Bus
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *zap.Logger

	wg sync.WaitGroup
}

// NewEngine creates an engine. timeout bounds each remote call; zero means
// no bound beyond the caller's.
func NewEngine(store *state.Store, log *patch.Log, b *bus.Bus, m *metrics.Metrics, timeout time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		log:     log,
		bus:     b,
		metrics: m,
		timeout: timeout,
		logger:  logger,
	}
}

// Do applies a locally and returns its action id without waiting for the
// remote call. The returned error only reports a failed local apply, in which
// case nothing was changed and the remote call is never made.
func (e *Engine) Do(ctx context.Context, a Action) (string, error) {
	id := uuid.NewString()

	var applyErr error
	e.store.Update(func(st *state.State) bool {
		_, applyErr = e.log.Record(id, st, func(tx *patch.Tx) error {
			if a.Apply == nil {
				return nil
			}
			return a.Apply(tx, st)
		})
		return applyErr == nil
	})
	if applyErr != nil {
		e.metrics.ActionFinished(a.Name, metrics.OutcomeRejected)
		return "", fmt.Errorf("apply %s: %w", a.Name, applyErr)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.confirm(context.WithoutCancel(ctx), id, a)
	}()
	return id, nil
}

// Wait blocks until every in-flight remote call has resolved.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Pending reports whether action id is still awaiting its remote call.
func (e *Engine) Pending(id string) bool {
	return e.log.Pending(id)
}

func (e *Engine) confirm(ctx context.Context, id string, a Action) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var err error
	if a.Remote != nil {
		err = a.Remote(ctx)
	}
	out := Outcome{ID: id, Name: a.Name, Convo: a.Convo}
	log := e.logger.With(zap.String("action", a.Name), zap.String("action_id", id), zap.String("convo", a.Convo))

	if err == nil {
		e.discard(id, log)
		e.metrics.ActionFinished(a.Name, metrics.OutcomeCommitted)
		e.bus.Emit(bus.ActionCommitted, out)
		return
	}

	out.Err = err.Error()
	log.Warn("remote call failed", zap.Error(err))

	if a.Compensate != nil {
		e.discard(id, log)
		var cErr error
		e.store.Dispatch(func(st *state.State) {
			cErr = a.Compensate(st)
		})
		if cErr != nil {
			log.Warn("compensation incomplete", zap.Error(cErr))
		}
		e.metrics.ActionFinished(a.Name, metrics.OutcomeCompensated)
		e.bus.Emit(bus.ActionCompensated, out)
		return
	}

	var rbErr error
	e.store.Dispatch(func(st *state.State) {
		rbErr = e.log.Rollback(id, st)
	})
	switch {
	case errors.Is(rbErr, patch.ErrUnknownAction):
		log.Debug("patch set already dropped")
	case rbErr != nil:
		log.Error("rollback incomplete", zap.Error(rbErr))
	}
	e.metrics.ActionFinished(a.Name, metrics.OutcomeRolledBack)
	e.bus.Emit(bus.ActionRolledBack, out)
}

func (e *Engine) discard(id string, log *zap.Logger) {
	if err := e.log.Commit(id); err != nil {
		log.Debug("patch set already dropped", zap.Error(err))
	}
}

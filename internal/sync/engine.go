package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/link"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/status"
)

// UpdatesPath is the push stream every session listens on.
const UpdatesPath = "/updates"

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// Refresher reloads the conversation directory from the backend.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// EngineOptions tunes the push subscription.
type EngineOptions struct {
	App        string
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Engine keeps the push subscription open and hands every frame to the
// router in arrival order. When the stream drops it resubscribes with
// exponential backoff and refreshes the directory to catch up.
type Engine struct {
	sub     link.Subscriber
	router  *event.Router
	dir     Refresher
	machine *status.Machine
	metrics *metrics.Metrics
	logger  *zap.Logger

	app        string
	minBackoff time.Duration
	maxBackoff time.Duration

	quit chan error

	mu     stdsync.Mutex
	gen    int
	subID  int
	live   bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(sub link.Subscriber, router *event.Router, dir Refresher, machine *status.Machine, m *metrics.Metrics, opts EngineOptions, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}
	return &Engine{
		sub:        sub,
		router:     router,
		dir:        dir,
		machine:    machine,
		metrics:    m,
		logger:     logger,
		app:        opts.App,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		quit:       make(chan error, 1),
	}
}

// Start subscribes to the push stream and refreshes the directory. The
// session is Ready once it returns nil.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.machine.Transition(status.Subscribing); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := e.connect(ctx); err != nil {
		cancel()
		_ = e.machine.Transition(status.Error)
		return err
	}
	if err := e.machine.Transition(status.Ready); err != nil {
		e.logger.Warn("status transition failed", zap.Error(err))
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go e.supervise(ctx, done)
	return nil
}

// Stop cancels the subscription and waits for the supervisor to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	id, live := e.subID, e.live
	e.cancel, e.done = nil, nil
	e.live = false
	e.gen++
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if live {
		if err := e.sub.Unsubscribe(id); err != nil {
			e.logger.Debug("unsubscribe on stop", zap.Int("sub", id), zap.Error(err))
		}
	}
	if done != nil {
		<-done
	}
}

// Live reports whether the push stream is currently subscribed.
func (e *Engine) Live() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

func (e *Engine) connect(ctx context.Context) error {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	onEvent := func(data json.RawMessage) { e.router.Route(ctx, data) }
	onQuit := func(err error) {
		e.mu.Lock()
		stale := gen != e.gen
		if !stale {
			e.live = false
		}
		e.mu.Unlock()
		if stale {
			return
		}
		select {
		case e.quit <- err:
		default:
		}
	}

	id, err := e.sub.Subscribe(ctx, e.app, UpdatesPath, onEvent, onQuit)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", UpdatesPath, err)
	}
	e.mu.Lock()
	e.subID, e.live = id, true
	e.mu.Unlock()

	if err := e.dir.Refresh(ctx); err != nil {
		e.mu.Lock()
		e.gen++
		e.live = false
		e.mu.Unlock()
		_ = e.sub.Unsubscribe(id)
		return err
	}
	e.logger.Info("update stream subscribed", zap.Int("sub", id))
	return nil
}

func (e *Engine) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-e.quit:
			e.logger.Warn("update stream ended", zap.Error(err))
			e.reconnect(ctx)
		}
	}
}

func (e *Engine) reconnect(ctx context.Context) {
	backoff := e.minBackoff
	for attempt := 1; ; attempt++ {
		if err := e.machine.Transition(status.Reconnecting); err != nil {
			e.logger.Warn("not reconnecting", zap.Error(err))
			return
		}
		e.metrics.Reconnected()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if err := e.machine.Transition(status.Subscribing); err != nil {
			e.logger.Warn("not reconnecting", zap.Error(err))
			return
		}
		err := e.connect(ctx)
		if err == nil {
			_ = e.machine.Transition(status.Ready)
			e.logger.Info("update stream restored", zap.Int("attempt", attempt))
			return
		}
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn("resubscribe failed",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		backoff = min(backoff*2, e.maxBackoff)
	}
}

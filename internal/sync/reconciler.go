package sync

import (
	"context"
	"strings"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/state"
)

const defaultDebounce = 2 * time.Second

// SnapshotStore persists one directory snapshot per ship.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error
	LoadSnapshot(ctx context.Context, ship string, version int) (*domain.Snapshot, error)
	DeleteSnapshot(ctx context.Context, ship string) error
}

// Reconciler keeps the on-disk snapshot in step with the state.
type Reconciler struct {
	db       SnapshotStore
	store    *state.Store
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger
	version  int
	debounce time.Duration

	mu     stdsync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconciler creates a new reconciler. Snapshots written with a version
// other than version are ignored on restore.
func NewReconciler(db SnapshotStore, store *state.Store, b *bus.Bus, m *metrics.Metrics, version int, debounce time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Reconciler{db: db, store: store, bus: b, metrics: m, version: version, debounce: debounce, logger: logger}
}

// Restore seeds the state from the stored snapshot. It reports whether one
// was found.
func (r *Reconciler) Restore(ctx context.Context) (bool, error) {
	snap, err := r.db.LoadSnapshot(ctx, r.store.Self(), r.version)
	r.metrics.Snapshot("load", err)
	if err != nil {
		return false, err
	}
	if snap == nil {
		r.logger.Info("no usable snapshot", zap.Int("version", r.version))
		return false, nil
	}
	r.store.Load(snap.Chats)
	r.logger.Info("snapshot restored",
		zap.Int("conversations", len(snap.Chats)),
		zap.Time("saved_at", time.UnixMilli(snap.SavedAt)),
	)
	return true, nil
}

// Save writes the current directory.
func (r *Reconciler) Save(ctx context.Context) error {
	snap := domain.Snapshot{
		Ship:    r.store.Self(),
		Version: r.version,
		SavedAt: time.Now().UnixMilli(),
		Chats:   r.store.Snapshot(),
	}
	err := r.db.SaveSnapshot(ctx, snap)
	r.metrics.Snapshot("save", err)
	if err != nil {
		return err
	}
	r.logger.Debug("snapshot saved", zap.Int("conversations", len(snap.Chats)))
	return nil
}

// Forget deletes the stored snapshot.
func (r *Reconciler) Forget(ctx context.Context) error {
	err := r.db.DeleteSnapshot(ctx, r.store.Self())
	r.metrics.Snapshot("delete", err)
	return err
}

// Start saves a snapshot shortly after directory or window changes settle.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	ch, unsub := r.bus.Subscribe("", 256)
	go r.watch(ctx, ch, unsub, r.done)
}

// Stop ends the watcher without saving.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *Reconciler) watch(ctx context.Context, ch <-chan bus.Event, unsub func(), done chan struct{}) {
	defer close(done)
	defer unsub()

	timer := time.NewTimer(r.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			if !persistable(evt.Kind) {
				continue
			}
			timer.Reset(r.debounce)
		case <-timer.C:
			if err := r.Save(ctx); err != nil {
				r.logger.Warn("snapshot save failed", zap.Error(err))
			}
		}
	}
}

func persistable(kind string) bool {
	switch {
	case kind == bus.DirectoryCleared:
		return false
	case strings.HasPrefix(kind, "directory."), strings.HasPrefix(kind, "chat."):
		return true
	case kind == bus.ActionCommitted, kind == bus.ActionRolledBack, kind == bus.ActionCompensated:
		return true
	}
	return false
}

// Package sync pushes the local changelog to a remote peer and applies
// remote-confirmed changes back. The engine never waits on it; a broken link
// only makes the replica stale.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
)

// Entry is one committed changelog row awaiting push.
type Entry struct {
	Seq         int64     `json:"seq"`
	EntryID     string    `json:"entry_id"`
	Kinds       []string  `json:"kinds"`
	CommittedAt time.Time `json:"committed_at"`
}

// RemoteChange is one remote-confirmed change pulled from the peer.
type RemoteChange struct {
	Kind    bus.EntityKind  `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Checkpoint records how far reconciliation has progressed.
type Checkpoint struct {
	LocalSeq     int64     `json:"local_seq"`
	RemoteCursor int64     `json:"remote_cursor"`
	SyncedAt     time.Time `json:"synced_at"`
}

// ChangelogPort reads committed changelog rows. Reads run outside any
// transaction; the rows are immutable once committed.
type ChangelogPort interface {
	EntriesSince(ctx context.Context, seq int64, limit int) ([]Entry, error)
}

// CheckpointPort persists reconciliation progress.
type CheckpointPort interface {
	Load(ctx context.Context) (Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
}

// ApplyPort applies pulled changes in one short store transaction so they
// flow through the change bus like any local write.
type ApplyPort interface {
	ApplyRemote(ctx context.Context, changes []RemoteChange) error
}

// RemoteClient is the transport to the peer. Implementations live outside
// the engine.
type RemoteClient interface {
	Push(ctx context.Context, entries []Entry) error
	Pull(ctx context.Context, cursor int64) ([]RemoteChange, int64, error)
}

// Status is the staleness view exposed to operators.
type Status struct {
	LastSync time.Time `json:"last_sync"`
	Stale    bool      `json:"stale"`
	LastErr  string    `json:"last_err,omitempty"`
}

// Config bounds each reconciliation run.
type Config struct {
	Interval    time.Duration
	PushTimeout time.Duration
	PullTimeout time.Duration
	StaleAfter  time.Duration
	BatchSize   int
	LockTTL     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = 10 * time.Second
	}
	if c.PullTimeout <= 0 {
		c.PullTimeout = 10 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	return c
}

const lockKey = "kamba:sync:reconcile"

// Reconciler drives the push/pull cycle.
type Reconciler struct {
	changelog   ChangelogPort
	checkpoints CheckpointPort
	apply       ApplyPort
	remote      RemoteClient
	locker      *redislock.Client
	cfg         Config
	logger      *slog.Logger

	mu       sync.Mutex
	lastSync time.Time
	lastErr  string
	now      func() time.Time
}

// NewReconciler builds Reconciler. The locker is optional; without it runs
// are only guarded by the caller.
func NewReconciler(changelog ChangelogPort, checkpoints CheckpointPort, apply ApplyPort, remote RemoteClient, locker *redislock.Client, cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		changelog:   changelog,
		checkpoints: checkpoints,
		apply:       apply,
		remote:      remote,
		locker:      locker,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		now:         time.Now,
	}
}

// Run reconciles on an interval until the context ends. Failures are logged
// and absorbed into the staleness state, never returned.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := r.ReconcileOnce(ctx); err != nil {
			r.logger.Warn("sync cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ReconcileOnce runs one push/pull cycle. A held lock means another instance
// is reconciling and this call is a no-op.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	if r.remote == nil {
		return nil
	}
	if r.locker != nil {
		lock, err := r.locker.Obtain(ctx, lockKey, r.cfg.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil
		}
		if err != nil {
			return r.fail(fmt.Errorf("sync: obtain lock: %w", err))
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	cp, err := r.checkpoints.Load(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("sync: load checkpoint: %w", err))
	}

	entries, err := r.changelog.EntriesSince(ctx, cp.LocalSeq, r.cfg.BatchSize)
	if err != nil {
		return r.fail(fmt.Errorf("sync: read changelog: %w", err))
	}

	if len(entries) > 0 {
		pushCtx, cancel := context.WithTimeout(ctx, r.cfg.PushTimeout)
		err := r.remote.Push(pushCtx, entries)
		cancel()
		if err != nil {
			return r.fail(fmt.Errorf("sync: push: %w", err))
		}
		cp.LocalSeq = entries[len(entries)-1].Seq
	}

	pullCtx, cancel := context.WithTimeout(ctx, r.cfg.PullTimeout)
	changes, cursor, err := r.remote.Pull(pullCtx, cp.RemoteCursor)
	cancel()
	if err != nil {
		return r.fail(fmt.Errorf("sync: pull: %w", err))
	}

	if len(changes) > 0 {
		if err := r.apply.ApplyRemote(ctx, changes); err != nil {
			return r.fail(fmt.Errorf("sync: apply remote: %w", err))
		}
	}

	cp.RemoteCursor = cursor
	cp.SyncedAt = r.now().UTC()
	if err := r.checkpoints.Save(ctx, cp); err != nil {
		return r.fail(fmt.Errorf("sync: save checkpoint: %w", err))
	}

	r.mu.Lock()
	r.lastSync = cp.SyncedAt
	r.lastErr = ""
	r.mu.Unlock()
	return nil
}

// Status reports staleness relative to the configured threshold.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		LastSync: r.lastSync,
		Stale:    r.lastSync.IsZero() || r.now().Sub(r.lastSync) > r.cfg.StaleAfter,
		LastErr:  r.lastErr,
	}
}

func (r *Reconciler) fail(err error) error {
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
	return err
}

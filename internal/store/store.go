// Package store wraps the engine database and guarantees the write contract:
// every mutation runs inside a transaction, commits append one changelog row,
// and exactly one change-bus publish fires per committed transaction, after
// commit, never before.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// Store owns the on-disk representation of all engine state.
type Store struct {
	pool   *pgxpool.Pool
	bus    *bus.Bus
	logger *slog.Logger
	begin  func(ctx context.Context) (pgx.Tx, error)
}

// New constructs a Store over an established pool.
func New(pool *pgxpool.Pool, changeBus *bus.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:   pool,
		bus:    changeBus,
		logger: logger,
		begin: func(ctx context.Context) (pgx.Tx, error) {
			return pool.BeginTx(ctx, pgx.TxOptions{})
		},
	}
}

// Pool exposes the underlying pool for read-only queries outside transactions.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Bus exposes the change bus for subscribe_to_changes consumers.
func (s *Store) Bus() *bus.Bus {
	return s.bus
}

// Tx is a write transaction. Mutating repositories call Touch with the entity
// kinds they modified; the store publishes them once the commit succeeds.
type Tx struct {
	pgx.Tx
	kinds map[bus.EntityKind]struct{}
}

// Touch records that the transaction modified the given entity kinds.
func (t *Tx) Touch(kinds ...bus.EntityKind) {
	for _, k := range kinds {
		t.kinds[k] = struct{}{}
	}
}

func (t *Tx) touched() []bus.EntityKind {
	out := make([]bus.EntityKind, 0, len(t.kinds))
	for _, k := range bus.AllKinds() {
		if _, ok := t.kinds[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// WithTx runs fn inside a write transaction. Any error from fn rolls the
// transaction back fully and is surfaced unchanged; commit errors surface as
// storage failures. Transactions that touched entity kinds append a changelog
// entry before commit and publish on the change bus after commit.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	return s.withTx(ctx, fn, true)
}

// WithRemoteTx runs fn like WithTx but never appends a changelog entry.
// Replication uses it to apply peer-confirmed changes: the bus still fires so
// caches and listeners refresh, while the write stays out of the push feed
// instead of echoing back to the peer it came from.
func (s *Store) WithRemoteTx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	return s.withTx(ctx, fn, false)
}

func (s *Store) withTx(ctx context.Context, fn func(context.Context, *Tx) error, logged bool) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", shared.ErrStorage, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	wrapped := &Tx{Tx: tx, kinds: make(map[bus.EntityKind]struct{})}
	if err := fn(ctx, wrapped); err != nil {
		return err
	}

	touched := wrapped.touched()
	if logged && len(touched) > 0 {
		if err := appendChangelog(ctx, tx, touched); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", shared.ErrStorage, err)
	}

	if s.bus != nil && len(touched) > 0 {
		s.bus.PublishKinds(touched...)
	}
	return nil
}

func appendChangelog(ctx context.Context, tx pgx.Tx, kinds []bus.EntityKind) error {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO sync_changelog (entry_id, kinds, committed_at)
		VALUES ($1, $2, NOW())
	`, uuid.New(), names)
	if err != nil {
		return fmt.Errorf("%w: append changelog: %v", shared.ErrStorage, err)
	}
	return nil
}

// MapError classifies driver errors into the engine taxonomy. Repositories
// route every pgx error through here so callers only see taxonomy errors.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", shared.ErrConflict, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%w: %v", shared.ErrStorage, err)
}

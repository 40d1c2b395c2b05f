package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

func TestMapErrorClassifiesDriverErrors(t *testing.T) {
	require.NoError(t, MapError(nil))

	require.ErrorIs(t, MapError(pgx.ErrNoRows), shared.ErrNotFound)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "uq_invoices_series"}
	err := MapError(dup)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Contains(t, err.Error(), "uq_invoices_series")

	err = MapError(errors.New("connection refused"))
	require.ErrorIs(t, err, shared.ErrStorage)
	require.NotErrorIs(t, err, shared.ErrConflict)
}

func TestTouchDeduplicatesKinds(t *testing.T) {
	tx := &Tx{kinds: make(map[bus.EntityKind]struct{})}

	tx.Touch(bus.KindInvoice, bus.KindMovement)
	tx.Touch(bus.KindInvoice, bus.KindProduct)

	touched := tx.touched()
	require.Len(t, touched, 3)
	require.ElementsMatch(t, []bus.EntityKind{bus.KindProduct, bus.KindMovement, bus.KindInvoice}, touched)
}

func TestTouchedOrderFollowsKindTable(t *testing.T) {
	tx := &Tx{kinds: make(map[bus.EntityKind]struct{})}
	tx.Touch(bus.KindSubscription, bus.KindProduct)

	touched := tx.touched()
	require.Equal(t, []bus.EntityKind{bus.KindProduct, bus.KindSubscription}, touched)
}

func TestUntouchedTransactionReportsNothing(t *testing.T) {
	tx := &Tx{kinds: make(map[bus.EntityKind]struct{})}
	require.Empty(t, tx.touched())
}

// fakeTx stands in for a driver transaction so the commit and publish
// ordering can be observed without a database.
type fakeTx struct {
	pgx.Tx

	execs      []string
	execArgs   [][]any
	copied     []string
	committed  bool
	rolledBack bool
	execErr    error
	commitErr  error
}

func (f *fakeTx) Commit(ctx context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	f.execs = append(f.execs, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	f.copied = append(f.copied, table.Sanitize())
	return 0, nil
}

func (f *fakeTx) changelogAppends() int {
	n := 0
	for _, sql := range f.execs {
		if strings.Contains(sql, "sync_changelog") {
			n++
		}
	}
	return n
}

func newFakeStore(t *testing.T) (*Store, *fakeTx, *bus.Bus) {
	t.Helper()
	ftx := &fakeTx{}
	changeBus := bus.New()
	st := New(nil, changeBus, nil)
	st.begin = func(ctx context.Context) (pgx.Tx, error) { return ftx, nil }
	return st, ftx, changeBus
}

func TestWithTxErrorRollsBackWithoutPublish(t *testing.T) {
	st, ftx, changeBus := newFakeStore(t)

	published := 0
	defer changeBus.Subscribe(func(bus.Event) { published++ })()

	boom := errors.New("boom")
	err := st.WithTx(context.Background(), func(ctx context.Context, tx *Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock_qty = 0`); err != nil {
			return err
		}
		tx.Touch(bus.KindProduct)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.True(t, ftx.rolledBack)
	require.False(t, ftx.committed)
	require.Zero(t, ftx.changelogAppends())
	require.Zero(t, published)
}

func TestWithTxPublishesOnceAfterCommit(t *testing.T) {
	st, ftx, changeBus := newFakeStore(t)

	var events []bus.Event
	committedAtPublish := false
	defer changeBus.Subscribe(func(ev bus.Event) {
		events = append(events, ev)
		committedAtPublish = ftx.committed
	})()

	err := st.WithTx(context.Background(), func(ctx context.Context, tx *Tx) error {
		tx.Touch(bus.KindInvoice, bus.KindProduct, bus.KindInvoice)
		return nil
	})
	require.NoError(t, err)

	require.True(t, ftx.committed)
	require.Equal(t, 1, ftx.changelogAppends())
	require.Len(t, events, 1)
	require.True(t, committedAtPublish)
	require.Equal(t, []bus.EntityKind{bus.KindProduct, bus.KindInvoice}, events[0].Kinds)
	require.False(t, events[0].Reset)
}

func TestWithTxCommitFailureSurfacesStorageError(t *testing.T) {
	st, ftx, changeBus := newFakeStore(t)
	ftx.commitErr = errors.New("disk full")

	published := 0
	defer changeBus.Subscribe(func(bus.Event) { published++ })()

	err := st.WithTx(context.Background(), func(ctx context.Context, tx *Tx) error {
		tx.Touch(bus.KindCustomer)
		return nil
	})
	require.ErrorIs(t, err, shared.ErrStorage)
	require.Zero(t, published)
}

func TestWithRemoteTxPublishesWithoutChangelog(t *testing.T) {
	st, ftx, changeBus := newFakeStore(t)

	published := 0
	defer changeBus.Subscribe(func(bus.Event) { published++ })()

	err := st.WithRemoteTx(context.Background(), func(ctx context.Context, tx *Tx) error {
		tx.Touch(bus.KindProduct)
		return nil
	})
	require.NoError(t, err)

	require.True(t, ftx.committed)
	require.Zero(t, ftx.changelogAppends())
	require.Equal(t, 1, published)
}

func TestImportSwapsStateAndPublishesReset(t *testing.T) {
	st, ftx, changeBus := newFakeStore(t)

	var events []bus.Event
	defer changeBus.Subscribe(func(ev bus.Event) { events = append(events, ev) })()

	snap := Snapshot{
		TakenAt:  time.Now().UTC(),
		Products: []ProductRow{{ID: 1, OrgID: 1, Name: "Fuba de milho", UnitPrice: 1200}},
	}
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(snap))

	require.NoError(t, st.Import(context.Background(), &buf))

	require.True(t, ftx.committed)
	require.Contains(t, ftx.execs[0], "TRUNCATE")
	require.Contains(t, ftx.copied, `"products"`)
	require.Len(t, events, 1)
	require.True(t, events[0].Reset)
	require.Equal(t, bus.AllKinds(), events[0].Kinds)
}

func TestImportRejectsGarbageSnapshots(t *testing.T) {
	st, ftx, _ := newFakeStore(t)

	err := st.Import(context.Background(), strings.NewReader("not a snapshot"))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, ftx.execs)
}

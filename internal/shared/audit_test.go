package shared

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.CommandTag{}, f.err
}

func TestRecordInsertsIntoOccurredAt(t *testing.T) {
	db := &fakeExecer{}
	logger := &AuditLogger{db: db}

	err := logger.Record(context.Background(), AuditLog{
		ActorID:  7,
		Action:   "invoice.issue",
		Entity:   "invoice",
		EntityID: "42",
		Meta:     map[string]any{"doc_number": "FT A/1"},
	})
	require.NoError(t, err)

	require.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Contains(t, db.sql, "occurred_at")
	require.NotContains(t, db.sql, "created_at")
	require.Len(t, db.args, 6)
	require.Equal(t, int64(7), db.args[0])
	require.Equal(t, "invoice.issue", db.args[1])
	// A zero timestamp defers to the database clock.
	require.Nil(t, db.args[5])
}

func TestRecordPassesExplicitTimestamp(t *testing.T) {
	db := &fakeExecer{}
	logger := &AuditLogger{db: db}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := logger.Record(context.Background(), AuditLog{
		Action:   "license.activate",
		Entity:   "subscription",
		EntityID: "9",
		At:       at,
	})
	require.NoError(t, err)
	require.Equal(t, at, db.args[5])
}

func TestRecordRejectsIncompleteEntries(t *testing.T) {
	db := &fakeExecer{}
	logger := &AuditLogger{db: db}

	err := logger.Record(context.Background(), AuditLog{Action: "x"})
	require.Error(t, err)
	require.Empty(t, db.sql)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "x", Entity: "y", EntityID: "1"}))
}

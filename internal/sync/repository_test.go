package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

type fakeApplyTx struct {
	execs   []string
	args    [][]any
	tags    []pgconn.CommandTag
	touched []bus.EntityKind
}

func (f *fakeApplyTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	if len(f.tags) > 0 {
		tag := f.tags[0]
		f.tags = f.tags[1:]
		return tag, nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeApplyTx) Touch(kinds ...bus.EntityKind) {
	f.touched = append(f.touched, kinds...)
}

func rawChange(t *testing.T, kind bus.EntityKind, payload any) RemoteChange {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return RemoteChange{Kind: kind, Payload: body}
}

func TestApplyChangeUpsertsProduct(t *testing.T) {
	tx := &fakeApplyTx{}
	change := rawChange(t, bus.KindProduct, productChange{ID: 3, OrgID: 1, Name: "Fuba de milho", UnitPrice: 1200, StockQty: 40})

	require.NoError(t, applyChange(context.Background(), tx, change))
	require.Len(t, tx.execs, 1)
	require.Contains(t, tx.execs[0], "INSERT INTO products")
	require.Contains(t, tx.execs[0], "ON CONFLICT (id) DO UPDATE")
	require.Equal(t, int64(3), tx.args[0][0])
}

func TestApplyMovementUpdatesProjectionOnce(t *testing.T) {
	mv := movementChange{RefID: "8e9c2c0e-46e5-4b36-a4f3-20b7b7f9d001", OrgID: 1, ProductID: 3, Kind: "SALE", Qty: -2}

	tx := &fakeApplyTx{}
	require.NoError(t, applyChange(context.Background(), tx, rawChange(t, bus.KindMovement, mv)))
	require.Len(t, tx.execs, 2)
	require.Contains(t, tx.execs[0], "ON CONFLICT (ref_id) DO NOTHING")
	require.Contains(t, tx.execs[1], "stock_qty = stock_qty + $2")
	require.Equal(t, int64(-2), tx.args[1][1])
	require.Equal(t, []bus.EntityKind{bus.KindProduct}, tx.touched)

	// A ref id the ledger already holds leaves the projection untouched.
	replay := &fakeApplyTx{tags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 0")}}
	require.NoError(t, applyChange(context.Background(), replay, rawChange(t, bus.KindMovement, mv)))
	require.Len(t, replay.execs, 1)
	require.Empty(t, replay.touched)
}

func TestApplyInvoiceReplacesLines(t *testing.T) {
	number := int64(7)
	inv := invoiceChange{
		ID: 11, OrgID: 1, DocType: "FT", Status: "ISSUED", Number: &number,
		Lines: []lineChange{
			{ProductID: 3, ProductName: "Fuba de milho", UnitPrice: 1200, Qty: 2, LineTotal: 2400},
			{ProductID: 4, ProductName: "Oleo alimentar", UnitPrice: 900, Qty: 1, LineTotal: 900},
		},
	}

	tx := &fakeApplyTx{}
	require.NoError(t, applyChange(context.Background(), tx, rawChange(t, bus.KindInvoice, inv)))
	require.Len(t, tx.execs, 4)
	require.Contains(t, tx.execs[0], "INSERT INTO invoices")
	require.Contains(t, tx.execs[1], "DELETE FROM invoice_lines")
	require.Contains(t, tx.execs[2], "INSERT INTO invoice_lines")
	require.Contains(t, tx.execs[3], "INSERT INTO invoice_lines")
}

func TestApplyChangeRejectsBadInput(t *testing.T) {
	tx := &fakeApplyTx{}

	err := applyChange(context.Background(), tx, RemoteChange{Kind: "warehouse", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = applyChange(context.Background(), tx, RemoteChange{Kind: bus.KindCustomer, Payload: []byte(`{broken`)})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, tx.execs)
}

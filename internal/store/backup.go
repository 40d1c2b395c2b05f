package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// Snapshot is the whole-store backup payload. Consumers treat it as an opaque
// blob; the layout is an implementation detail of this package.
type Snapshot struct {
	TakenAt       time.Time
	Products      []ProductRow
	Customers     []CustomerRow
	Movements     []MovementRow
	Series        []SeriesRow
	Invoices      []InvoiceRow
	InvoiceLines  []InvoiceLineRow
	Subscriptions []SubscriptionRow
	Activations   []ActivationRow
}

// ProductRow mirrors the products table.
type ProductRow struct {
	ID        int64
	OrgID     int64
	Name      string
	UnitPrice float64
	TaxRate   float64
	StockQty  int64
	MinStock  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CustomerRow mirrors the customers table.
type CustomerRow struct {
	ID        int64
	OrgID     int64
	Name      string
	TaxID     string
	Address   string
	CreatedAt time.Time
}

// MovementRow mirrors the stock_movements table.
type MovementRow struct {
	ID         int64
	RefID      string
	OrgID      int64
	ProductID  int64
	Kind       string
	Qty        int64
	UnitCost   *float64
	Note       string
	ActorID    *int64
	OccurredAt time.Time
}

// SeriesRow mirrors the document_series table.
type SeriesRow struct {
	OrgID   int64
	DocType string
	Seq     int64
}

// InvoiceRow mirrors the invoices table.
type InvoiceRow struct {
	ID            int64
	OrgID         int64
	DocType       string
	Status        string
	Number        *int64
	DocNumber     *string
	CustomerID    *int64
	CustomerName  string
	CustomerTaxID string
	Subtotal      float64
	TaxTotal      float64
	Total         float64
	Fiscal        bool
	StatusReason  string
	IssuedAt      *time.Time
	CreatedBy     *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InvoiceLineRow mirrors the invoice_lines table.
type InvoiceLineRow struct {
	ID          int64
	InvoiceID   int64
	ProductID   int64
	ProductName string
	UnitPrice   float64
	TaxRate     float64
	Qty         int64
	DiscountPct float64
	LineTotal   float64
}

// SubscriptionRow mirrors the subscriptions table.
type SubscriptionRow struct {
	ID        int64
	OrgID     int64
	Plan      string
	Status    string
	StartsAt  time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActivationRow mirrors the activation_requests table.
type ActivationRow struct {
	ID        int64
	OrgID     int64
	RefCode   string
	Plan      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Export writes the whole engine state to w as a gob blob. Reads run on the
// pool outside a transaction and therefore observe the latest committed state.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	snap := Snapshot{TakenAt: time.Now().UTC()}

	if err := collectRows(ctx, s.pool, &snap.Products, `
		SELECT id, org_id, name, unit_price, tax_rate, stock_qty, min_stock, created_at, updated_at
		FROM products ORDER BY id`,
		func(r pgx.Rows, row *ProductRow) error {
			return r.Scan(&row.ID, &row.OrgID, &row.Name, &row.UnitPrice, &row.TaxRate, &row.StockQty, &row.MinStock, &row.CreatedAt, &row.UpdatedAt)
		}); err != nil {
		return err
	}
	if err := collectRows(ctx, s.pool, &snap.Customers, `
		SELECT id, org_id, name, tax_id, address, created_at
		FROM customers ORDER BY id`,
		func(r pgx.Rows, row *CustomerRow) error {
			return r.Scan(&row.ID, &row.OrgID, &row.Name, &row.TaxID, &row.Address, &row.CreatedAt)
		}); err != nil {
		return err
	}
	if err := collectRows(ctx, s.pool, &snap.Movements, `
		SELECT id, ref_id::text, org_id, product_id, kind, qty, unit_cost, note, actor_id, occurred_at
		FROM stock_movements ORDER BY id`,
		func(r pgx.Rows, row *MovementRow) error {
			return r.Scan(&row.ID, &row.RefID, &row.OrgID, &row.ProductID, &row.Kind, &row.Qty, &row.UnitCost, &row.Note, &row.ActorID, &row.OccurredAt)
		}); err != nil {
		return err
	}
	if err := collectRows(ctx, s.pool, &snap.Series, `
		SELECT org_id, doc_type, seq FROM document_series ORDER BY org_id, doc_type`,
		func(r pgx.Rows, row *SeriesRow) error {
			return r.Scan(&row.OrgID, &row.DocType, &row.Seq)
		}); err != nil {
		return err
	}
	if err := collectRows(ctx, s.pool, &snap.Invoices, `
		SELECT id, org_id, doc_type, status, number, doc_number, customer_id, customer_name, customer_tax_id,
		       subtotal, tax_total, total, fiscal, status_reason, issued_at, created_by, created_at, updated_at
		FROM invoices ORDER BY id`,
		func(r pgx.Rows, row *InvoiceRow) error {
			return r.Scan(&row.ID, &row.OrgID, &row.DocType, &row.Status, &row.Number, &row.DocNumber, &row.CustomerID,
				&row.CustomerName, &row.CustomerTaxID, &row.Subtotal, &row.TaxTotal, &row.Total, &row.Fiscal,
				&row.StatusReason, &row.IssuedAt, &row.CreatedBy, &row.CreatedAt, &row.UpdatedAt)
		}); err != nil {
		return err
	}
	if err := collectRows(ctx, s.pool, &snap.InvoiceLines, `
		SELECT id, invoice_id, product_id, product_name, unit_price, tax_rate, qty, discount_pct, line_total
		FROM invoice_lines ORDER BY id`,
		func(r pgx.Rows, row *InvoiceLineRow) error {
			return r.Scan(&row.ID, &row.InvoiceID, &row.ProductID, &row.ProductName, &row.UnitPrice, &row.TaxRate, &row.Qty, &row.DiscountPct, &row.LineTotal)
		}); err != nil {
		return err
	}
	if err := collectRows(ctx, s.pool, &snap.Subscriptions, `
		SELECT id, org_id, plan, status, starts_at, expires_at, created_at, updated_at
		FROM subscriptions ORDER BY id`,
		func(r pgx.Rows, row *SubscriptionRow) error {
			return r.Scan(&row.ID, &row.OrgID, &row.Plan, &row.Status, &row.StartsAt, &row.ExpiresAt, &row.CreatedAt, &row.UpdatedAt)
		}); err != nil {
		return err
	}
	if err := collectRows(ctx, s.pool, &snap.Activations, `
		SELECT id, org_id, ref_code, plan, status, created_at, updated_at
		FROM activation_requests ORDER BY id`,
		func(r pgx.Rows, row *ActivationRow) error {
			return r.Scan(&row.ID, &row.OrgID, &row.RefCode, &row.Plan, &row.Status, &row.CreatedAt, &row.UpdatedAt)
		}); err != nil {
		return err
	}

	if err := gob.NewEncoder(w).Encode(&snap); err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", shared.ErrStorage, err)
	}
	return nil
}

// Import replaces the whole store with the snapshot read from r. The swap
// happens in a single transaction; observers receive one full-reset publish
// after commit so every read-side view refetches.
func (s *Store) Import(ctx context.Context, r io.Reader) error {
	var snap Snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return shared.Validationf("decode snapshot: %v", err)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", shared.ErrStorage, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		TRUNCATE activation_requests, subscriptions, invoice_lines, invoices,
		         document_series, stock_movements, customers, products
		RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("%w: truncate: %v", shared.ErrStorage, err)
	}

	if err := restoreSnapshot(ctx, tx, snap); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", shared.ErrStorage, err)
	}

	if s.bus != nil {
		s.bus.PublishReset()
	}
	return nil
}

func restoreSnapshot(ctx context.Context, tx pgx.Tx, snap Snapshot) error {
	copies := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"products",
			[]string{"id", "org_id", "name", "unit_price", "tax_rate", "stock_qty", "min_stock", "created_at", "updated_at"},
			rowsOf(snap.Products, func(p ProductRow) []any {
				return []any{p.ID, p.OrgID, p.Name, p.UnitPrice, p.TaxRate, p.StockQty, p.MinStock, p.CreatedAt, p.UpdatedAt}
			})},
		{"customers",
			[]string{"id", "org_id", "name", "tax_id", "address", "created_at"},
			rowsOf(snap.Customers, func(c CustomerRow) []any {
				return []any{c.ID, c.OrgID, c.Name, c.TaxID, c.Address, c.CreatedAt}
			})},
		{"stock_movements",
			[]string{"id", "ref_id", "org_id", "product_id", "kind", "qty", "unit_cost", "note", "actor_id", "occurred_at"},
			rowsOf(snap.Movements, func(m MovementRow) []any {
				return []any{m.ID, m.RefID, m.OrgID, m.ProductID, m.Kind, m.Qty, m.UnitCost, m.Note, m.ActorID, m.OccurredAt}
			})},
		{"document_series",
			[]string{"org_id", "doc_type", "seq"},
			rowsOf(snap.Series, func(sr SeriesRow) []any {
				return []any{sr.OrgID, sr.DocType, sr.Seq}
			})},
		{"invoices",
			[]string{"id", "org_id", "doc_type", "status", "number", "doc_number", "customer_id", "customer_name", "customer_tax_id", "subtotal", "tax_total", "total", "fiscal", "status_reason", "issued_at", "created_by", "created_at", "updated_at"},
			rowsOf(snap.Invoices, func(iv InvoiceRow) []any {
				return []any{iv.ID, iv.OrgID, iv.DocType, iv.Status, iv.Number, iv.DocNumber, iv.CustomerID, iv.CustomerName, iv.CustomerTaxID, iv.Subtotal, iv.TaxTotal, iv.Total, iv.Fiscal, iv.StatusReason, iv.IssuedAt, iv.CreatedBy, iv.CreatedAt, iv.UpdatedAt}
			})},
		{"invoice_lines",
			[]string{"id", "invoice_id", "product_id", "product_name", "unit_price", "tax_rate", "qty", "discount_pct", "line_total"},
			rowsOf(snap.InvoiceLines, func(l InvoiceLineRow) []any {
				return []any{l.ID, l.InvoiceID, l.ProductID, l.ProductName, l.UnitPrice, l.TaxRate, l.Qty, l.DiscountPct, l.LineTotal}
			})},
		{"subscriptions",
			[]string{"id", "org_id", "plan", "status", "starts_at", "expires_at", "created_at", "updated_at"},
			rowsOf(snap.Subscriptions, func(sub SubscriptionRow) []any {
				return []any{sub.ID, sub.OrgID, sub.Plan, sub.Status, sub.StartsAt, sub.ExpiresAt, sub.CreatedAt, sub.UpdatedAt}
			})},
		{"activation_requests",
			[]string{"id", "org_id", "ref_code", "plan", "status", "created_at", "updated_at"},
			rowsOf(snap.Activations, func(a ActivationRow) []any {
				return []any{a.ID, a.OrgID, a.RefCode, a.Plan, a.Status, a.CreatedAt, a.UpdatedAt}
			})},
	}

	for _, c := range copies {
		if len(c.rows) == 0 {
			continue
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{c.table}, c.columns, pgx.CopyFromRows(c.rows))
		if err != nil {
			return fmt.Errorf("%w: restore %s: %v", shared.ErrStorage, c.table, err)
		}
		if err := resetSequence(ctx, tx, c.table); err != nil {
			return err
		}
	}
	return nil
}

func resetSequence(ctx context.Context, tx pgx.Tx, table string) error {
	switch table {
	case "document_series":
		return nil
	}
	_, err := tx.Exec(ctx, fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s','id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)`,
		table, table))
	if err != nil {
		return fmt.Errorf("%w: reset sequence %s: %v", shared.ErrStorage, table, err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func collectRows[T any](ctx context.Context, q querier, dest *[]T, sql string, scan func(pgx.Rows, *T) error) error {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return fmt.Errorf("%w: export query: %v", shared.ErrStorage, err)
	}
	defer rows.Close()
	for rows.Next() {
		var row T
		if err := scan(rows, &row); err != nil {
			return fmt.Errorf("%w: export scan: %v", shared.ErrStorage, err)
		}
		*dest = append(*dest, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: export rows: %v", shared.ErrStorage, err)
	}
	return nil
}

func rowsOf[T any](items []T, fields func(T) []any) [][]any {
	out := make([][]any, len(items))
	for i, item := range items {
		out[i] = fields(item)
	}
	return out
}

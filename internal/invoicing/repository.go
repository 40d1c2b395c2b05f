package invoicing

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/catalog"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/stock"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/store"
)

// Repository persists fiscal documents in the record store.
type Repository struct {
	store *store.Store
}

// NewRepository constructs Repository.
func NewRepository(st *store.Store) *Repository {
	return &Repository{store: st}
}

// WithTx executes the callback inside a store transaction. Concurrent issue
// calls serialize on the series row lock taken by NextNumber.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx *store.Tx
}

const invoiceColumns = `id, org_id, doc_type, status, number, COALESCE(doc_number, ''), customer_id,
	customer_name, customer_tax_id, subtotal, tax_total, total, fiscal, status_reason,
	issued_at, COALESCE(created_by, 0), created_at, updated_at`

func (r *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO invoices (org_id, doc_type, status, customer_id, customer_name, customer_tax_id,
		                      subtotal, tax_total, total, fiscal, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, 0))
		RETURNING id, created_at, updated_at`,
		inv.OrgID, string(inv.DocType), string(inv.Status), inv.CustomerID, inv.CustomerName, inv.CustomerTaxID,
		inv.Subtotal, inv.TaxTotal, inv.Total, inv.Fiscal, inv.CreatedBy)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, store.MapError(err)
	}
	r.tx.Touch(bus.KindInvoice)
	return inv, nil
}

func (r *txRepo) ReplaceLines(ctx context.Context, invoiceID int64, lines []Line) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, invoiceID); err != nil {
		return store.MapError(err)
	}
	for i := range lines {
		line := &lines[i]
		row := r.tx.QueryRow(ctx, `
			INSERT INTO invoice_lines (invoice_id, product_id, product_name, unit_price, tax_rate, qty, discount_pct, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			invoiceID, line.ProductID, line.ProductName, line.UnitPrice, line.TaxRate, line.Qty, line.DiscountPct, line.LineTotal)
		if err := row.Scan(&line.ID); err != nil {
			return store.MapError(err)
		}
		line.InvoiceID = invoiceID
	}
	r.tx.Touch(bus.KindInvoice)
	return nil
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, store.MapError(err)
	}
	lines, err := loadLines(ctx, r.tx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Lines = lines
	return inv, nil
}

func (r *txRepo) UpdateDraftTotals(ctx context.Context, id int64, subtotal, taxTotal, total float64) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE invoices SET subtotal = $2, tax_total = $3, total = $4, updated_at = NOW()
		WHERE id = $1`, id, subtotal, taxTotal, total)
	if err != nil {
		return store.MapError(err)
	}
	r.tx.Touch(bus.KindInvoice)
	return nil
}

// NextNumber advances the (organization, document type) series. The upsert
// locks the series row, which is what serializes concurrent issue calls;
// numbers are strictly increasing and never reused.
func (r *txRepo) NextNumber(ctx context.Context, orgID int64, docType DocumentType) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO document_series (org_id, doc_type, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (org_id, doc_type)
		DO UPDATE SET seq = document_series.seq + 1
		RETURNING seq`, orgID, string(docType)).Scan(&seq)
	if err != nil {
		return 0, store.MapError(err)
	}
	return seq, nil
}

func (r *txRepo) MarkIssued(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE invoices
		SET status = $2, number = $3, doc_number = $4, customer_name = $5, customer_tax_id = $6,
		    subtotal = $7, tax_total = $8, total = $9, issued_at = $10, updated_at = NOW()
		WHERE id = $1`,
		inv.ID, string(inv.Status), inv.Number, inv.DocNumber, inv.CustomerName, inv.CustomerTaxID,
		inv.Subtotal, inv.TaxTotal, inv.Total, inv.IssuedAt)
	if err != nil {
		return store.MapError(err)
	}
	r.tx.Touch(bus.KindInvoice)
	return nil
}

func (r *txRepo) MarkTerminal(ctx context.Context, id int64, status Status, reason string) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE invoices SET status = $2, status_reason = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), reason)
	if err != nil {
		return store.MapError(err)
	}
	r.tx.Touch(bus.KindInvoice)
	return nil
}

func (r *txRepo) ProductByID(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product
	row := r.tx.QueryRow(ctx, `
		SELECT id, org_id, name, unit_price, tax_rate, stock_qty, min_stock, created_at, updated_at
		FROM products WHERE id = $1`, id)
	if err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.UnitPrice, &p.TaxRate, &p.StockQty, &p.MinStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return catalog.Product{}, store.MapError(err)
	}
	return p, nil
}

func (r *txRepo) CustomerByID(ctx context.Context, id int64) (catalog.Customer, error) {
	var c catalog.Customer
	row := r.tx.QueryRow(ctx, `SELECT id, org_id, name, tax_id, address, created_at FROM customers WHERE id = $1`, id)
	if err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.TaxID, &c.Address, &c.CreatedAt); err != nil {
		return catalog.Customer{}, store.MapError(err)
	}
	return c, nil
}

func (r *txRepo) Stock() stock.TxRepository {
	return stock.NewTxRepository(r.tx)
}

// Get loads one document with lines from committed state.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	row := r.store.Pool().QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, store.MapError(err)
	}
	lines, err := loadLines(ctx, r.store.Pool(), id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Lines = lines
	return inv, nil
}

// List returns documents matching the filter, newest first, with lines.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.store.Pool().Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE ($1 = 0 OR org_id = $1)
		  AND ($2 = '' OR doc_type = $2)
		  AND ($3 = '' OR status = $3)
		  AND ($4::timestamptz IS NULL OR issued_at >= $4)
		  AND ($5::timestamptz IS NULL OR issued_at <= $5)
		ORDER BY id DESC
		LIMIT $6`,
		filter.OrgID, string(filter.DocType), string(filter.Status), nullableTime(filter.From), nullableTime(filter.To), limit)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, store.MapError(err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, store.MapError(err)
	}

	for i := range invoices {
		lines, err := loadLines(ctx, r.store.Pool(), invoices[i].ID)
		if err != nil {
			return nil, err
		}
		invoices[i].Lines = lines
	}
	return invoices, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, invoiceID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, product_id, product_name, unit_price, tax_rate, qty, discount_pct, line_total
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ProductID, &line.ProductName, &line.UnitPrice, &line.TaxRate, &line.Qty, &line.DiscountPct, &line.LineTotal); err != nil {
			return nil, store.MapError(err)
		}
		lines = append(lines, line)
	}
	return lines, store.MapError(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (Invoice, error) {
	var (
		inv     Invoice
		docType string
		status  string
	)
	err := row.Scan(&inv.ID, &inv.OrgID, &docType, &status, &inv.Number, &inv.DocNumber, &inv.CustomerID,
		&inv.CustomerName, &inv.CustomerTaxID, &inv.Subtotal, &inv.TaxTotal, &inv.Total, &inv.Fiscal,
		&inv.StatusReason, &inv.IssuedAt, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	inv.DocType = DocumentType(docType)
	inv.Status = Status(status)
	return inv, nil
}

func nullableTime(t interface{ IsZero() bool }) any {
	if t.IsZero() {
		return nil
	}
	return t
}

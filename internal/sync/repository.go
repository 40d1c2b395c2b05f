package sync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/store"
)

// Change payloads mirror the peer's domain rows. Both sides run the same
// schema, so identifiers transfer as-is; movements dedupe on their ref id.
type productChange struct {
	ID        int64   `json:"id"`
	OrgID     int64   `json:"org_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	TaxRate   float64 `json:"tax_rate"`
	StockQty  int64   `json:"stock_qty"`
	MinStock  int64   `json:"min_stock"`
}

type customerChange struct {
	ID      int64  `json:"id"`
	OrgID   int64  `json:"org_id"`
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
}

type movementChange struct {
	RefID      string    `json:"ref_id"`
	OrgID      int64     `json:"org_id"`
	ProductID  int64     `json:"product_id"`
	Kind       string    `json:"kind"`
	Qty        int64     `json:"qty"`
	UnitCost   *float64  `json:"unit_cost,omitempty"`
	Note       string    `json:"note"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type lineChange struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	TaxRate     float64 `json:"tax_rate"`
	Qty         int64   `json:"qty"`
	DiscountPct float64 `json:"discount_pct"`
	LineTotal   float64 `json:"line_total"`
}

type invoiceChange struct {
	ID            int64        `json:"id"`
	OrgID         int64        `json:"org_id"`
	DocType       string       `json:"doc_type"`
	Status        string       `json:"status"`
	Number        *int64       `json:"number,omitempty"`
	DocNumber     *string      `json:"doc_number,omitempty"`
	CustomerID    *int64       `json:"customer_id,omitempty"`
	CustomerName  string       `json:"customer_name"`
	CustomerTaxID string       `json:"customer_tax_id"`
	Subtotal      float64      `json:"subtotal"`
	TaxTotal      float64      `json:"tax_total"`
	Total         float64      `json:"total"`
	Fiscal        bool         `json:"fiscal"`
	StatusReason  string       `json:"status_reason"`
	IssuedAt      *time.Time   `json:"issued_at,omitempty"`
	CreatedBy     *int64       `json:"created_by,omitempty"`
	Lines         []lineChange `json:"lines"`
}

type subscriptionChange struct {
	ID        int64      `json:"id"`
	OrgID     int64      `json:"org_id"`
	Plan      string     `json:"plan"`
	Status    string     `json:"status"`
	StartsAt  time.Time  `json:"starts_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Repository backs the reconciler ports with the record store.
type Repository struct {
	store *store.Store
}

// NewRepository constructs Repository.
func NewRepository(st *store.Store) *Repository {
	return &Repository{store: st}
}

// EntriesSince reads committed changelog rows after the given sequence.
func (r *Repository) EntriesSince(ctx context.Context, seq int64, limit int) ([]Entry, error) {
	rows, err := r.store.Pool().Query(ctx, `
		SELECT seq, entry_id, kinds, committed_at
		FROM sync_changelog
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2`, seq, limit)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.EntryID, &e.Kinds, &e.CommittedAt); err != nil {
			return nil, store.MapError(err)
		}
		entries = append(entries, e)
	}
	return entries, store.MapError(rows.Err())
}

// Load returns the single checkpoint row, or a zero checkpoint before the
// first successful cycle.
func (r *Repository) Load(ctx context.Context) (Checkpoint, error) {
	var cp Checkpoint
	err := r.store.Pool().QueryRow(ctx, `
		SELECT local_seq, remote_cursor, synced_at FROM sync_checkpoint WHERE id = 1`).
		Scan(&cp.LocalSeq, &cp.RemoteCursor, &cp.SyncedAt)
	if err != nil {
		if errors.Is(store.MapError(err), shared.ErrNotFound) {
			return Checkpoint{}, nil
		}
		return Checkpoint{}, store.MapError(err)
	}
	return cp, nil
}

// Save upserts the checkpoint row. Checkpoint writes stay outside the change
// bus; they describe replication progress, not domain state.
func (r *Repository) Save(ctx context.Context, cp Checkpoint) error {
	_, err := r.store.Pool().Exec(ctx, `
		INSERT INTO sync_checkpoint (id, local_seq, remote_cursor, synced_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET local_seq = EXCLUDED.local_seq,
		    remote_cursor = EXCLUDED.remote_cursor,
		    synced_at = EXCLUDED.synced_at`,
		cp.LocalSeq, cp.RemoteCursor, cp.SyncedAt)
	return store.MapError(err)
}

// ApplyRemote writes pulled changes into their domain tables in one
// transaction and touches their kinds, so caches and listeners refresh
// exactly as for local writes. The transaction skips the changelog; a
// peer-confirmed change must not re-enter the push feed.
func (r *Repository) ApplyRemote(ctx context.Context, changes []RemoteChange) error {
	return r.store.WithRemoteTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, change := range changes {
			if err := applyChange(ctx, tx, change); err != nil {
				return err
			}
			tx.Touch(change.Kind)
		}
		return nil
	})
}

// applyTx is the slice of the store transaction the apply path uses.
type applyTx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Touch(kinds ...bus.EntityKind)
}

func applyChange(ctx context.Context, tx applyTx, change RemoteChange) error {
	switch change.Kind {
	case bus.KindProduct:
		return applyProduct(ctx, tx, change.Payload)
	case bus.KindCustomer:
		return applyCustomer(ctx, tx, change.Payload)
	case bus.KindMovement:
		return applyMovement(ctx, tx, change.Payload)
	case bus.KindInvoice:
		return applyInvoice(ctx, tx, change.Payload)
	case bus.KindSubscription:
		return applySubscription(ctx, tx, change.Payload)
	default:
		return shared.Validationf("unsupported change kind %q", change.Kind)
	}
}

func applyProduct(ctx context.Context, tx applyTx, payload json.RawMessage) error {
	var p productChange
	if err := json.Unmarshal(payload, &p); err != nil {
		return shared.Validationf("decode product change: %v", err)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO products (id, org_id, name, unit_price, tax_rate, stock_qty, min_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    unit_price = EXCLUDED.unit_price,
		    tax_rate = EXCLUDED.tax_rate,
		    stock_qty = EXCLUDED.stock_qty,
		    min_stock = EXCLUDED.min_stock,
		    updated_at = NOW()`,
		p.ID, p.OrgID, p.Name, p.UnitPrice, p.TaxRate, p.StockQty, p.MinStock)
	return store.MapError(err)
}

func applyCustomer(ctx context.Context, tx applyTx, payload json.RawMessage) error {
	var c customerChange
	if err := json.Unmarshal(payload, &c); err != nil {
		return shared.Validationf("decode customer change: %v", err)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO customers (id, org_id, name, tax_id, address)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    tax_id = EXCLUDED.tax_id,
		    address = EXCLUDED.address`,
		c.ID, c.OrgID, c.Name, c.TaxID, c.Address)
	return store.MapError(err)
}

// applyMovement dedupes on the movement ref id. A movement already seen
// changes nothing, including the stock projection.
func applyMovement(ctx context.Context, tx applyTx, payload json.RawMessage) error {
	var m movementChange
	if err := json.Unmarshal(payload, &m); err != nil {
		return shared.Validationf("decode movement change: %v", err)
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (ref_id, org_id, product_id, kind, qty, unit_cost, note, actor_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ref_id) DO NOTHING`,
		m.RefID, m.OrgID, m.ProductID, m.Kind, m.Qty, m.UnitCost, m.Note, m.ActorID, m.OccurredAt)
	if err != nil {
		return store.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	// Ledger rows carry the signed effect, so the projection is a plain add.
	_, err = tx.Exec(ctx, `
		UPDATE products SET stock_qty = stock_qty + $2, updated_at = NOW() WHERE id = $1`,
		m.ProductID, m.Qty)
	if err != nil {
		return store.MapError(err)
	}
	tx.Touch(bus.KindProduct)
	return nil
}

func applyInvoice(ctx context.Context, tx applyTx, payload json.RawMessage) error {
	var inv invoiceChange
	if err := json.Unmarshal(payload, &inv); err != nil {
		return shared.Validationf("decode invoice change: %v", err)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO invoices (id, org_id, doc_type, status, number, doc_number,
		                      customer_id, customer_name, customer_tax_id,
		                      subtotal, tax_total, total, fiscal, status_reason,
		                      issued_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    number = EXCLUDED.number,
		    doc_number = EXCLUDED.doc_number,
		    customer_id = EXCLUDED.customer_id,
		    customer_name = EXCLUDED.customer_name,
		    customer_tax_id = EXCLUDED.customer_tax_id,
		    subtotal = EXCLUDED.subtotal,
		    tax_total = EXCLUDED.tax_total,
		    total = EXCLUDED.total,
		    status_reason = EXCLUDED.status_reason,
		    issued_at = EXCLUDED.issued_at,
		    updated_at = NOW()`,
		inv.ID, inv.OrgID, inv.DocType, inv.Status, inv.Number, inv.DocNumber,
		inv.CustomerID, inv.CustomerName, inv.CustomerTaxID,
		inv.Subtotal, inv.TaxTotal, inv.Total, inv.Fiscal, inv.StatusReason,
		inv.IssuedAt, inv.CreatedBy)
	if err != nil {
		return store.MapError(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, inv.ID); err != nil {
		return store.MapError(err)
	}
	for _, line := range inv.Lines {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, product_id, product_name, unit_price, tax_rate, qty, discount_pct, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			inv.ID, line.ProductID, line.ProductName, line.UnitPrice, line.TaxRate, line.Qty, line.DiscountPct, line.LineTotal)
		if err != nil {
			return store.MapError(err)
		}
	}
	return nil
}

func applySubscription(ctx context.Context, tx applyTx, payload json.RawMessage) error {
	var s subscriptionChange
	if err := json.Unmarshal(payload, &s); err != nil {
		return shared.Validationf("decode subscription change: %v", err)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (id, org_id, plan, status, starts_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET plan = EXCLUDED.plan,
		    status = EXCLUDED.status,
		    starts_at = EXCLUDED.starts_at,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()`,
		s.ID, s.OrgID, s.Plan, s.Status, s.StartsAt, s.ExpiresAt)
	return store.MapError(err)
}

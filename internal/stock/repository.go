package stock

import (
	"context"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/store"
)

// Repository persists the ledger in the record store.
type Repository struct {
	store *store.Store
}

// NewRepository constructs Repository.
func NewRepository(st *store.Store) *Repository {
	return &Repository{store: st}
}

// WithTx executes the callback inside a store transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds ledger operations to an open store transaction. The
// invoicing repository uses it to post SALE movements inside its own commit.
func NewTxRepository(tx *store.Tx) TxRepository {
	return &txRepo{tx: tx}
}

type txRepo struct {
	tx *store.Tx
}

func (r *txRepo) ProductForUpdate(ctx context.Context, productID int64) (ProductState, error) {
	var state ProductState
	row := r.tx.QueryRow(ctx, `
		SELECT id, org_id, stock_qty, min_stock
		FROM products
		WHERE id = $1
		FOR UPDATE`, productID)
	if err := row.Scan(&state.ID, &state.OrgID, &state.StockQty, &state.MinStock); err != nil {
		return ProductState{}, store.MapError(err)
	}
	return state, nil
}

func (r *txRepo) InsertMovement(ctx context.Context, mv Movement) (Movement, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO stock_movements (ref_id, org_id, product_id, kind, qty, unit_cost, note, actor_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, 0), $9)
		RETURNING id`,
		mv.RefID, mv.OrgID, mv.ProductID, string(mv.Kind), mv.Qty, mv.UnitCost, mv.Note, mv.ActorID, mv.OccurredAt)
	if err := row.Scan(&mv.ID); err != nil {
		return Movement{}, store.MapError(err)
	}
	r.tx.Touch(bus.KindMovement)
	return mv, nil
}

func (r *txRepo) SetProductQuantity(ctx context.Context, productID, qty int64) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE products SET stock_qty = $2, updated_at = NOW() WHERE id = $1`,
		productID, qty)
	if err != nil {
		return store.MapError(err)
	}
	r.tx.Touch(bus.KindProduct)
	return nil
}

// ProductQuantity reads the projection in O(1).
func (r *Repository) ProductQuantity(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	row := r.store.Pool().QueryRow(ctx, `SELECT stock_qty FROM products WHERE id = $1`, productID)
	if err := row.Scan(&qty); err != nil {
		return 0, store.MapError(err)
	}
	return qty, nil
}

// LowStock lists products at or below their minimum threshold.
func (r *Repository) LowStock(ctx context.Context, orgID int64) ([]LowStockItem, error) {
	rows, err := r.store.Pool().Query(ctx, `
		SELECT id, name, stock_qty, min_stock
		FROM products
		WHERE org_id = $1 AND stock_qty <= min_stock
		ORDER BY name`, orgID)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	var items []LowStockItem
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.StockQty, &item.MinStock); err != nil {
			return nil, store.MapError(err)
		}
		items = append(items, item)
	}
	return items, store.MapError(rows.Err())
}

// Movements lists ledger entries matching the filter, newest first.
func (r *Repository) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.store.Pool().Query(ctx, `
		SELECT id, ref_id::text, org_id, product_id, kind, qty, unit_cost, note, COALESCE(actor_id, 0), occurred_at
		FROM stock_movements
		WHERE ($1 = 0 OR org_id = $1)
		  AND ($2 = 0 OR product_id = $2)
		  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
		  AND ($4::timestamptz IS NULL OR occurred_at <= $4)
		ORDER BY id DESC
		LIMIT $5`,
		filter.OrgID, filter.ProductID, nullableTime(filter.From), nullableTime(filter.To), limit)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var mv Movement
		var kind string
		if err := rows.Scan(&mv.ID, &mv.RefID, &mv.OrgID, &mv.ProductID, &kind, &mv.Qty, &mv.UnitCost, &mv.Note, &mv.ActorID, &mv.OccurredAt); err != nil {
			return nil, store.MapError(err)
		}
		mv.Kind = MovementKind(kind)
		movements = append(movements, mv)
	}
	return movements, store.MapError(rows.Err())
}

// MovementSum re-derives the quantity from the full history.
func (r *Repository) MovementSum(ctx context.Context, productID int64) (int64, error) {
	var sum int64
	row := r.store.Pool().QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM stock_movements WHERE product_id = $1`, productID)
	if err := row.Scan(&sum); err != nil {
		return 0, store.MapError(err)
	}
	return sum, nil
}

func nullableTime(t interface{ IsZero() bool }) any {
	if t.IsZero() {
		return nil
	}
	return t
}

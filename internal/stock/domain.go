// Package stock implements the append-only movement ledger and the derived
// current-quantity projection.
package stock

import (
	"fmt"
	"time"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// KindEntry represents goods received into stock; requires a unit cost.
	KindEntry MovementKind = "ENTRY"
	// KindExit represents goods leaving stock outside a sale.
	KindExit MovementKind = "EXIT"
	// KindAdjustment carries an explicit signed delta.
	KindAdjustment MovementKind = "ADJUSTMENT"
	// KindReturn represents goods returned into stock.
	KindReturn MovementKind = "RETURN"
	// KindSale represents goods consumed by an issued fiscal document.
	KindSale MovementKind = "SALE"
)

// Valid reports whether the kind is known.
func (k MovementKind) Valid() bool {
	switch k {
	case KindEntry, KindExit, KindAdjustment, KindReturn, KindSale:
		return true
	}
	return false
}

// SignedEffect converts a caller quantity into the ledger's signed effect.
// ENTRY and RETURN add stock, EXIT and SALE remove it, ADJUSTMENT passes the
// delta through unchanged.
func (k MovementKind) SignedEffect(qty int64) int64 {
	switch k {
	case KindExit, KindSale:
		return -qty
	default:
		return qty
	}
}

// Movement is one immutable ledger entry. Corrections are new movements,
// never edits.
type Movement struct {
	ID         int64        `json:"id"`
	RefID      string       `json:"ref_id"`
	OrgID      int64        `json:"org_id"`
	ProductID  int64        `json:"product_id"`
	Kind       MovementKind `json:"kind"`
	Qty        int64        `json:"qty"`
	UnitCost   *float64     `json:"unit_cost,omitempty"`
	Note       string       `json:"note"`
	ActorID    int64        `json:"actor_id"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// MovementInput describes a movement to record. Quantity is the caller-facing
// magnitude except for ADJUSTMENT, where it is the signed delta itself.
type MovementInput struct {
	ProductID      int64        `json:"product_id" validate:"required"`
	Kind           MovementKind `json:"kind" validate:"required"`
	Quantity       int64        `json:"quantity"`
	UnitCost       *float64     `json:"unit_cost,omitempty"`
	Note           string       `json:"note"`
	ActorID        int64        `json:"actor_id"`
	IdempotencyKey string       `json:"-"`
}

// ProductState is the locked product row a movement mutates.
type ProductState struct {
	ID       int64
	OrgID    int64
	StockQty int64
	MinStock int64
}

// LowStockItem is a product at or below its minimum threshold.
type LowStockItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	StockQty  int64  `json:"stock_qty"`
	MinStock  int64  `json:"min_stock"`
}

// MovementFilter selects ledger entries for audit and export reads.
type MovementFilter struct {
	OrgID     int64
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}

// Recomputation compares the projection with the sum re-derived from history.
type Recomputation struct {
	ProductID int64 `json:"product_id"`
	Projected int64 `json:"projected"`
	Derived   int64 `json:"derived"`
	Drift     bool  `json:"drift"`
}

var (
	// ErrInvalidKind indicates an unknown movement kind.
	ErrInvalidKind = fmt.Errorf("%w: unknown movement kind", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive quantity (or a zero adjustment).
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	// ErrUnitCostRequired indicates an ENTRY without a unit cost.
	ErrUnitCostRequired = fmt.Errorf("%w: unit cost required for entry", shared.ErrValidation)
	// ErrUnitCostForbidden indicates a unit cost on a non-ENTRY movement.
	ErrUnitCostForbidden = fmt.Errorf("%w: unit cost only valid for entry", shared.ErrValidation)
	// ErrNegativeStock is returned when negative stock is disabled and the
	// movement would drive the quantity below zero.
	ErrNegativeStock = fmt.Errorf("%w: insufficient stock", shared.ErrInvalidState)
)

func (in MovementInput) validate() error {
	if in.ProductID == 0 {
		return shared.Validationf("stock: product required")
	}
	if !in.Kind.Valid() {
		return ErrInvalidKind
	}
	if in.Kind == KindAdjustment {
		if in.Quantity == 0 {
			return fmt.Errorf("%w: adjustment delta must be non zero", shared.ErrValidation)
		}
	} else if in.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if in.Kind == KindEntry {
		if in.UnitCost == nil {
			return ErrUnitCostRequired
		}
		if *in.UnitCost < 0 {
			return shared.Validationf("stock: unit cost must be >= 0")
		}
	} else if in.UnitCost != nil {
		return ErrUnitCostForbidden
	}
	return nil
}

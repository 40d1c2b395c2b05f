package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// TxRepository exposes the transactional operations a movement needs.
type TxRepository interface {
	ProductForUpdate(ctx context.Context, productID int64) (ProductState, error)
	InsertMovement(ctx context.Context, mv Movement) (Movement, error)
	SetProductQuantity(ctx context.Context, productID, qty int64) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ProductQuantity(ctx context.Context, productID int64) (int64, error)
	LowStock(ctx context.Context, orgID int64) ([]LowStockItem, error)
	Movements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	MovementSum(ctx context.Context, productID int64) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups policy settings.
type ServiceConfig struct {
	// AllowNegativeStock lets EXIT/SALE drive quantities below zero. The
	// register trusts operators; this is a policy choice, on by default.
	AllowNegativeStock bool
}

// Service coordinates ledger operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	cache       *LowStockCache
	allowNeg    bool
	logger      *slog.Logger
}

// NewService builds Service. Audit, idempotency and cache are optional.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cache *LowStockCache, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, cache: cache, allowNeg: cfg.AllowNegativeStock, logger: logger}
}

// RecordMovement validates and appends one movement, updating the projection
// atomically in the same transaction.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if err := input.validate(); err != nil {
		return Movement{}, err
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "stock"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	var mv Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		recorded, err := s.RecordMovementTx(ctx, tx, input)
		if err != nil {
			return err
		}
		mv = recorded
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Movement{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("stock:%s", input.Kind),
			Entity:   "stock_movement",
			EntityID: mv.RefID,
			Meta: map[string]any{
				"product_id": input.ProductID,
				"qty":        mv.Qty,
				"note":       input.Note,
			},
		})
	}
	return mv, nil
}

// RecordMovementTx appends a movement inside a caller-owned transaction. The
// invoicing workflow uses it so issuing a document and decrementing stock are
// one atomic commit.
func (s *Service) RecordMovementTx(ctx context.Context, tx TxRepository, input MovementInput) (Movement, error) {
	if err := input.validate(); err != nil {
		return Movement{}, err
	}

	state, err := tx.ProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return Movement{}, err
	}

	effect := input.Kind.SignedEffect(input.Quantity)
	newQty := state.StockQty + effect
	if newQty < 0 && !s.allowNeg {
		return Movement{}, ErrNegativeStock
	}

	mv := Movement{
		RefID:      uuid.NewString(),
		OrgID:      state.OrgID,
		ProductID:  input.ProductID,
		Kind:       input.Kind,
		Qty:        effect,
		UnitCost:   input.UnitCost,
		Note:       input.Note,
		ActorID:    input.ActorID,
		OccurredAt: time.Now().UTC(),
	}
	mv, err = tx.InsertMovement(ctx, mv)
	if err != nil {
		return Movement{}, err
	}
	if err := tx.SetProductQuantity(ctx, input.ProductID, newQty); err != nil {
		return Movement{}, err
	}
	return mv, nil
}

// CurrentQuantity reads the maintained projection. History is never replayed
// on this path.
func (s *Service) CurrentQuantity(ctx context.Context, productID int64) (int64, error) {
	return s.repo.ProductQuantity(ctx, productID)
}

// LowStock lists products at or below their minimum threshold, through the
// read cache when configured.
func (s *Service) LowStock(ctx context.Context, orgID int64) ([]LowStockItem, error) {
	if s.cache == nil {
		return s.repo.LowStock(ctx, orgID)
	}
	return s.cache.Fetch(ctx, orgID, func(ctx context.Context) ([]LowStockItem, error) {
		return s.repo.LowStock(ctx, orgID)
	})
}

// Movements lists ledger entries for audit and export.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.Movements(ctx, filter)
}

// Recompute re-derives the quantity from history and compares it with the
// projection. The background audit job calls this; a drift is a bug, never
// silently repaired here.
func (s *Service) Recompute(ctx context.Context, productID int64) (Recomputation, error) {
	projected, err := s.repo.ProductQuantity(ctx, productID)
	if err != nil {
		return Recomputation{}, err
	}
	derived, err := s.repo.MovementSum(ctx, productID)
	if err != nil {
		return Recomputation{}, err
	}
	rec := Recomputation{ProductID: productID, Projected: projected, Derived: derived, Drift: projected != derived}
	if rec.Drift {
		s.logger.Error("stock projection drift",
			slog.Int64("product_id", productID),
			slog.Int64("projected", projected),
			slog.Int64("derived", derived))
	}
	return rec, nil
}

package licensing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// TxRepository exposes the transactional operations activation needs.
type TxRepository interface {
	RequestByRefForUpdate(ctx context.Context, refCode string) (ActivationRequest, error)
	MarkRequest(ctx context.Context, id int64, status RequestStatus) error
	SupersedeActive(ctx context.Context, orgID int64) error
	InsertSubscription(ctx context.Context, sub Subscription) (Subscription, error)
	ExpireOverdueSubscriptions(ctx context.Context, now time.Time) (int64, error)
	ExpireStaleRequests(ctx context.Context, cutoff time.Time) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertRequest(ctx context.Context, req ActivationRequest) (ActivationRequest, error)
	ActiveSubscription(ctx context.Context, orgID int64) (Subscription, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates activation and evaluation.
type Service struct {
	repo   RepositoryPort
	codes  *CodeGenerator
	audit  AuditPort
	logger *slog.Logger

	// requestTTL bounds how long a pending request stays claimable.
	requestTTL time.Duration
	now        func() time.Time
}

// NewService builds Service. Audit is optional.
func NewService(repo RepositoryPort, codes *CodeGenerator, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		codes:      codes,
		audit:      audit,
		logger:     logger,
		requestTTL: 30 * 24 * time.Hour,
		now:        time.Now,
	}
}

// CreateRequest opens a pending activation request with a fresh reference
// code the operator reads to the vendor.
func (s *Service) CreateRequest(ctx context.Context, orgID int64, plan Plan) (ActivationRequest, error) {
	if orgID <= 0 {
		return ActivationRequest{}, shared.Validationf("licensing: organization required")
	}
	if !plan.Valid() {
		return ActivationRequest{}, ErrUnknownPlan
	}
	ref, err := NewReferenceCode()
	if err != nil {
		return ActivationRequest{}, err
	}
	return s.repo.InsertRequest(ctx, ActivationRequest{
		OrgID:   orgID,
		RefCode: ref,
		Plan:    plan,
		Status:  RequestPending,
	})
}

// Activate verifies the vendor code against the pending request and, in one
// transaction, activates the subscription and supersedes any previous ACTIVE
// one. Exactly one ACTIVE subscription per organization survives.
func (s *Service) Activate(ctx context.Context, refCode, code string, actorID int64) (Subscription, error) {
	var sub Subscription
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.RequestByRefForUpdate(ctx, refCode)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return ErrRequestNotPending
		}
		if !s.codes.Validate(req.RefCode, req.Plan, code) {
			return ErrInvalidCode
		}

		if err := tx.SupersedeActive(ctx, req.OrgID); err != nil {
			return err
		}
		start := s.now().UTC()
		created, err := tx.InsertSubscription(ctx, Subscription{
			OrgID:     req.OrgID,
			Plan:      req.Plan,
			Status:    SubActive,
			StartsAt:  start,
			ExpiresAt: req.Plan.ExpiryFrom(start),
		})
		if err != nil {
			return err
		}
		if err := tx.MarkRequest(ctx, req.ID, RequestActivated); err != nil {
			return err
		}
		sub = created
		return nil
	})
	if err != nil {
		return Subscription{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "licensing:activate",
			Entity:   "subscription",
			EntityID: refCode,
			Meta:     map[string]any{"org_id": sub.OrgID, "plan": sub.Plan},
		})
	}
	return sub, nil
}

// Reject marks a pending request rejected so its reference code cannot be
// claimed later.
func (s *Service) Reject(ctx context.Context, refCode string, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.RequestByRefForUpdate(ctx, refCode)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return ErrRequestNotPending
		}
		return tx.MarkRequest(ctx, req.ID, RequestRejected)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "licensing:reject",
			Entity:   "activation_request",
			EntityID: refCode,
		})
	}
	return nil
}

// Evaluate reports the current licensing state for an organization. It never
// writes; a storage failure surfaces as an error so callers fail closed
// instead of treating the license as absent or present.
func (s *Service) Evaluate(ctx context.Context, orgID int64) (Status, error) {
	sub, err := s.repo.ActiveSubscription(ctx, orgID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Status{}, nil
		}
		return Status{}, err
	}

	now := s.now().UTC()
	if sub.ExpiresAt == nil {
		return Status{Active: true, Plan: sub.Plan}, nil
	}
	// The end date is inclusive; the subscription lapses only once now has
	// passed it.
	if now.After(*sub.ExpiresAt) {
		// Overdue row the sweep has not visited yet. Report inactive; the
		// row itself is the sweep's to flip.
		return Status{}, nil
	}
	days := int(sub.ExpiresAt.Sub(now).Hours() / 24)
	return Status{Active: true, Plan: sub.Plan, DaysRemaining: days, ExpiresAt: sub.ExpiresAt}, nil
}

// Sweep expires overdue ACTIVE subscriptions and stale pending requests.
// The worker runs it on a schedule.
func (s *Service) Sweep(ctx context.Context) (subscriptions, requests int64, err error) {
	now := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if subscriptions, err = tx.ExpireOverdueSubscriptions(ctx, now); err != nil {
			return err
		}
		requests, err = tx.ExpireStaleRequests(ctx, now.Add(-s.requestTTL))
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	if subscriptions > 0 || requests > 0 {
		s.logger.Info("license sweep",
			slog.Int64("subscriptions_expired", subscriptions),
			slog.Int64("requests_expired", requests))
	}
	return subscriptions, requests, nil
}

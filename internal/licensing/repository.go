package licensing

import (
	"context"
	"time"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/store"
)

// Repository persists subscriptions and activation requests.
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
		return fn(ctx, &txRepo{tx: tx})
	})
}

// InsertRequest stores a new pending activation request.
func (r *Repository) InsertRequest(ctx context.Context, req ActivationRequest) (ActivationRequest, error) {
	err := r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO activation_requests (org_id, ref_code, plan, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at`,
			req.OrgID, req.RefCode, string(req.Plan), string(req.Status))
		if err := row.Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return store.MapError(err)
		}
		tx.Touch(bus.KindSubscription)
		return nil
	})
	if err != nil {
		return ActivationRequest{}, err
	}
	return req, nil
}

// ActiveSubscription returns the single ACTIVE row for an organization.
func (r *Repository) ActiveSubscription(ctx context.Context, orgID int64) (Subscription, error) {
	row := r.store.Pool().QueryRow(ctx, `
		SELECT id, org_id, plan, status, starts_at, expires_at, created_at, updated_at
		FROM subscriptions
		WHERE org_id = $1 AND status = 'ACTIVE'
		ORDER BY starts_at DESC
		LIMIT 1`, orgID)
	return scanSubscription(row)
}

type txRepo struct {
	tx *store.Tx
}

func (r *txRepo) RequestByRefForUpdate(ctx context.Context, refCode string) (ActivationRequest, error) {
	var (
		req    ActivationRequest
		plan   string
		status string
	)
	row := r.tx.QueryRow(ctx, `
		SELECT id, org_id, ref_code, plan, status, created_at, updated_at
		FROM activation_requests WHERE ref_code = $1 FOR UPDATE`, refCode)
	if err := row.Scan(&req.ID, &req.OrgID, &req.RefCode, &plan, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return ActivationRequest{}, store.MapError(err)
	}
	req.Plan = Plan(plan)
	req.Status = RequestStatus(status)
	return req, nil
}

func (r *txRepo) MarkRequest(ctx context.Context, id int64, status RequestStatus) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE activation_requests SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return store.MapError(err)
	}
	r.tx.Touch(bus.KindSubscription)
	return nil
}

func (r *txRepo) SupersedeActive(ctx context.Context, orgID int64) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE subscriptions SET status = 'CANCELLED', updated_at = NOW()
		WHERE org_id = $1 AND status = 'ACTIVE'`, orgID)
	if err != nil {
		return store.MapError(err)
	}
	r.tx.Touch(bus.KindSubscription)
	return nil
}

func (r *txRepo) InsertSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO subscriptions (org_id, plan, status, starts_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		sub.OrgID, string(sub.Plan), string(sub.Status), sub.StartsAt, sub.ExpiresAt)
	if err := row.Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return Subscription{}, store.MapError(err)
	}
	r.tx.Touch(bus.KindSubscription)
	return sub, nil
}

func (r *txRepo) ExpireOverdueSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE subscriptions SET status = 'EXPIRED', updated_at = NOW()
		WHERE status = 'ACTIVE' AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, store.MapError(err)
	}
	if tag.RowsAffected() > 0 {
		r.tx.Touch(bus.KindSubscription)
	}
	return tag.RowsAffected(), nil
}

func (r *txRepo) ExpireStaleRequests(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE activation_requests SET status = 'EXPIRED', updated_at = NOW()
		WHERE status = 'PENDING' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, store.MapError(err)
	}
	if tag.RowsAffected() > 0 {
		r.tx.Touch(bus.KindSubscription)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (Subscription, error) {
	var (
		sub    Subscription
		plan   string
		status string
	)
	err := row.Scan(&sub.ID, &sub.OrgID, &plan, &status, &sub.StartsAt, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return Subscription{}, store.MapError(err)
	}
	sub.Plan = Plan(plan)
	sub.Status = SubscriptionStatus(status)
	return sub, nil
}

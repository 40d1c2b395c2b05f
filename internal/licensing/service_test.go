package licensing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

type memoryRepo struct {
	mu            sync.Mutex
	requests      map[string]*ActivationRequest
	subscriptions []*Subscription
	nextID        int64
	readErr       error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{requests: make(map[string]*ActivationRequest)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Writes apply directly; a failing callback in these tests never follows
	// a partial write.
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) InsertRequest(ctx context.Context, req ActivationRequest) (ActivationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	req.ID = r.nextID
	req.CreatedAt = time.Now().UTC()
	copied := req
	r.requests[req.RefCode] = &copied
	return req, nil
}

func (r *memoryRepo) ActiveSubscription(ctx context.Context, orgID int64) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return Subscription{}, r.readErr
	}
	for i := len(r.subscriptions) - 1; i >= 0; i-- {
		sub := r.subscriptions[i]
		if sub.OrgID == orgID && sub.Status == SubActive {
			return *sub, nil
		}
	}
	return Subscription{}, shared.ErrNotFound
}

func (r *memoryRepo) activeCount(orgID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, sub := range r.subscriptions {
		if sub.OrgID == orgID && sub.Status == SubActive {
			count++
		}
	}
	return count
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) RequestByRefForUpdate(ctx context.Context, refCode string) (ActivationRequest, error) {
	req, ok := t.repo.requests[refCode]
	if !ok {
		return ActivationRequest{}, shared.ErrNotFound
	}
	return *req, nil
}

func (t *memoryTx) MarkRequest(ctx context.Context, id int64, status RequestStatus) error {
	for _, req := range t.repo.requests {
		if req.ID == id {
			req.Status = status
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *memoryTx) SupersedeActive(ctx context.Context, orgID int64) error {
	for _, sub := range t.repo.subscriptions {
		if sub.OrgID == orgID && sub.Status == SubActive {
			sub.Status = SubCancelled
		}
	}
	return nil
}

func (t *memoryTx) InsertSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	t.repo.nextID++
	sub.ID = t.repo.nextID
	copied := sub
	t.repo.subscriptions = append(t.repo.subscriptions, &copied)
	return sub, nil
}

func (t *memoryTx) ExpireOverdueSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, sub := range t.repo.subscriptions {
		if sub.Status == SubActive && sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
			sub.Status = SubExpired
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) ExpireStaleRequests(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, req := range t.repo.requests {
		if req.Status == RequestPending && req.CreatedAt.Before(cutoff) {
			req.Status = RequestExpired
			n++
		}
	}
	return n, nil
}

func newFixture(t *testing.T) (*memoryRepo, *Service, *CodeGenerator) {
	t.Helper()
	gen, err := NewCodeGenerator("correia-e-filhos")
	require.NoError(t, err)
	repo := newMemoryRepo()
	return repo, NewService(repo, gen, nil, nil), gen
}

func TestActivateHappyPath(t *testing.T) {
	repo, svc, gen := newFixture(t)

	req, err := svc.CreateRequest(context.Background(), 1, PlanYearly)
	require.NoError(t, err)
	require.Equal(t, RequestPending, req.Status)

	sub, err := svc.Activate(context.Background(), req.RefCode, gen.Generate(req.RefCode, PlanYearly), 7)
	require.NoError(t, err)
	require.Equal(t, SubActive, sub.Status)
	require.Equal(t, PlanYearly, sub.Plan)
	require.NotNil(t, sub.ExpiresAt)
	require.WithinDuration(t, sub.StartsAt.AddDate(1, 0, 0), *sub.ExpiresAt, time.Second)

	require.Equal(t, RequestActivated, repo.requests[req.RefCode].Status)
}

func TestActivateRejectsWrongCode(t *testing.T) {
	repo, svc, gen := newFixture(t)

	req, err := svc.CreateRequest(context.Background(), 1, PlanMonthly)
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), req.RefCode, gen.Generate(req.RefCode, PlanYearly), 0)
	require.ErrorIs(t, err, ErrInvalidCode)
	require.Equal(t, RequestPending, repo.requests[req.RefCode].Status)
	require.Zero(t, repo.activeCount(1))
}

func TestActivateSupersedesPreviousActive(t *testing.T) {
	repo, svc, gen := newFixture(t)

	first, err := svc.CreateRequest(context.Background(), 1, PlanMonthly)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), first.RefCode, gen.Generate(first.RefCode, PlanMonthly), 0)
	require.NoError(t, err)

	second, err := svc.CreateRequest(context.Background(), 1, PlanYearly)
	require.NoError(t, err)
	sub, err := svc.Activate(context.Background(), second.RefCode, gen.Generate(second.RefCode, PlanYearly), 0)
	require.NoError(t, err)

	require.Equal(t, 1, repo.activeCount(1))
	require.Equal(t, PlanYearly, sub.Plan)
	require.Equal(t, SubCancelled, repo.subscriptions[0].Status)
}

func TestActivateRequiresPendingRequest(t *testing.T) {
	_, svc, gen := newFixture(t)

	req, err := svc.CreateRequest(context.Background(), 1, PlanMonthly)
	require.NoError(t, err)
	code := gen.Generate(req.RefCode, PlanMonthly)
	_, err = svc.Activate(context.Background(), req.RefCode, code, 0)
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), req.RefCode, code, 0)
	require.ErrorIs(t, err, ErrRequestNotPending)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.Activate(context.Background(), "REF-UNKNOWN", code, 0)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRejectClosesRequest(t *testing.T) {
	repo, svc, gen := newFixture(t)

	req, err := svc.CreateRequest(context.Background(), 1, PlanMonthly)
	require.NoError(t, err)
	require.NoError(t, svc.Reject(context.Background(), req.RefCode, 0))
	require.Equal(t, RequestRejected, repo.requests[req.RefCode].Status)

	_, err = svc.Activate(context.Background(), req.RefCode, gen.Generate(req.RefCode, PlanMonthly), 0)
	require.ErrorIs(t, err, ErrRequestNotPending)
}

func TestCreateRequestValidation(t *testing.T) {
	_, svc, _ := newFixture(t)

	_, err := svc.CreateRequest(context.Background(), 0, PlanMonthly)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRequest(context.Background(), 1, "WEEKLY")
	require.ErrorIs(t, err, ErrUnknownPlan)
}

func TestEvaluateScenarios(t *testing.T) {
	repo, svc, _ := newFixture(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	status, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, status.Active)
	require.Zero(t, status.DaysRemaining)

	tomorrow := now.Add(36 * time.Hour)
	repo.subscriptions = append(repo.subscriptions, &Subscription{
		ID: 1, OrgID: 1, Plan: PlanMonthly, Status: SubActive, StartsAt: now.AddDate(0, -1, 0), ExpiresAt: &tomorrow,
	})
	status, err = svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, status.Active)
	require.Equal(t, 1, status.DaysRemaining)

	// The end date itself still counts; the license lapses the instant after.
	exactly := now
	repo.subscriptions[0].ExpiresAt = &exactly
	status, err = svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, status.Active)
	require.Zero(t, status.DaysRemaining)

	past := now.Add(-time.Hour)
	repo.subscriptions[0].ExpiresAt = &past
	status, err = svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, status.Active)
	// The overdue row stays ACTIVE until the sweep runs; evaluation reads only.
	require.Equal(t, SubActive, repo.subscriptions[0].Status)
}

func TestEvaluateLifetimeNeverExpires(t *testing.T) {
	repo, svc, _ := newFixture(t)
	repo.subscriptions = append(repo.subscriptions, &Subscription{
		ID: 1, OrgID: 1, Plan: PlanLifetime, Status: SubActive, StartsAt: time.Now().AddDate(-5, 0, 0),
	})

	status, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, status.Active)
	require.Nil(t, status.ExpiresAt)
}

func TestEvaluateFailsClosedOnStorageError(t *testing.T) {
	repo, svc, _ := newFixture(t)
	repo.readErr = shared.ErrStorage

	_, err := svc.Evaluate(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrStorage)
}

func TestSweepExpiresOverdueRows(t *testing.T) {
	repo, svc, _ := newFixture(t)
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)
	repo.subscriptions = append(repo.subscriptions,
		&Subscription{ID: 1, OrgID: 1, Status: SubActive, Plan: PlanMonthly, ExpiresAt: &past},
		&Subscription{ID: 2, OrgID: 2, Status: SubActive, Plan: PlanMonthly, ExpiresAt: &future},
		&Subscription{ID: 3, OrgID: 3, Status: SubActive, Plan: PlanLifetime},
		&Subscription{ID: 4, OrgID: 5, Status: SubActive, Plan: PlanMonthly, ExpiresAt: &now},
	)
	repo.requests["REF-OLDOLD"] = &ActivationRequest{ID: 9, OrgID: 4, RefCode: "REF-OLDOLD", Plan: PlanMonthly, Status: RequestPending, CreatedAt: now.AddDate(0, -2, 0)}

	subs, reqs, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, subs)
	require.EqualValues(t, 1, reqs)
	require.Equal(t, SubExpired, repo.subscriptions[0].Status)
	require.Equal(t, SubActive, repo.subscriptions[1].Status)
	require.Equal(t, SubActive, repo.subscriptions[2].Status)
	// Expiring exactly at the sweep instant is not yet overdue.
	require.Equal(t, SubActive, repo.subscriptions[3].Status)
	require.Equal(t, RequestExpired, repo.requests["REF-OLDOLD"].Status)
}

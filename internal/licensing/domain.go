// Package licensing gates the register behind activation codes and
// subscription windows.
package licensing

import (
	"fmt"
	"time"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// Plan enumerates subscription plans.
type Plan string

const (
	PlanMonthly   Plan = "MONTHLY"
	PlanQuarterly Plan = "QUARTERLY"
	PlanYearly    Plan = "YEARLY"
	PlanLifetime  Plan = "LIFETIME"
)

// Valid reports whether the plan is known.
func (p Plan) Valid() bool {
	switch p {
	case PlanMonthly, PlanQuarterly, PlanYearly, PlanLifetime:
		return true
	}
	return false
}

// ExpiryFrom computes the subscription end for a start instant. Lifetime
// plans never expire and return nil.
func (p Plan) ExpiryFrom(start time.Time) *time.Time {
	var end time.Time
	switch p {
	case PlanMonthly:
		end = start.AddDate(0, 1, 0)
	case PlanQuarterly:
		end = start.AddDate(0, 3, 0)
	case PlanYearly:
		end = start.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &end
}

// SubscriptionStatus enumerates subscription lifecycle states.
type SubscriptionStatus string

const (
	SubPending   SubscriptionStatus = "PENDING"
	SubActive    SubscriptionStatus = "ACTIVE"
	SubExpired   SubscriptionStatus = "EXPIRED"
	SubCancelled SubscriptionStatus = "CANCELLED"
)

// RequestStatus enumerates activation request states.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestActivated RequestStatus = "ACTIVATED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestExpired   RequestStatus = "EXPIRED"
)

// Subscription is one licensing window for an organization. At most one
// ACTIVE row exists per organization.
type Subscription struct {
	ID        int64              `json:"id"`
	OrgID     int64              `json:"org_id"`
	Plan      Plan               `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	StartsAt  time.Time          `json:"starts_at"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ActivationRequest is a pending claim awaiting an activation code from the
// vendor. The reference code identifies the request out of band.
type ActivationRequest struct {
	ID        int64         `json:"id"`
	OrgID     int64         `json:"org_id"`
	RefCode   string        `json:"ref_code"`
	Plan      Plan          `json:"plan"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Status is the evaluation result the rest of the system consults. For
// lifetime plans DaysRemaining is zero and ExpiresAt nil while Active holds.
type Status struct {
	Active        bool       `json:"active"`
	Plan          Plan       `json:"plan,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

var (
	// ErrInvalidCode indicates an activation code that fails verification.
	ErrInvalidCode = fmt.Errorf("%w: activation code is not valid", shared.ErrValidation)
	// ErrUnknownPlan indicates a plan outside the catalog.
	ErrUnknownPlan = fmt.Errorf("%w: unknown plan", shared.ErrValidation)
	// ErrRequestNotPending indicates an activation attempt on a request that
	// already reached a terminal state.
	ErrRequestNotPending = fmt.Errorf("%w: activation request is not pending", shared.ErrInvalidState)
)

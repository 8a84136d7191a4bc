package billing

import (
	"errors"
	"time"
)

// Status is a subscription lifecycle state as reported by RuStore.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusTrial     Status = "TRIAL"
	StatusGrace     Status = "GRACE"
	StatusPaused    Status = "PAUSED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"

	// StatusNone is reported for users with no subscription at all.
	StatusNone Status = "NONE"
)

// Entitled reports whether the status still grants Pro access.
// GRACE covers the payment-retry window after a failed renewal.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrial || s == StatusGrace
}

// Subscription is a stored RuStore subscription record.
type Subscription struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	ProductID     string     `json:"product_id"`
	OrderID       string     `json:"order_id"`
	PurchaseToken string     `json:"-"` // never serialised
	Status        Status     `json:"status"`
	PeriodEndAt   *time.Time `json:"period_end_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Plan is the logical plan derived from a subscription record.
type Plan struct {
	Name              string `json:"plan"` // "free" or "pro"
	UntilEpochSeconds *int64 `json:"planUntilEpochSeconds"`
}

// DerivePlan maps a subscription (possibly nil) to the user's plan.
// Any entitled subscription means Pro; everything else is free.
func DerivePlan(sub *Subscription) Plan {
	if sub == nil || !sub.Status.Entitled() {
		return Plan{Name: "free"}
	}

	p := Plan{Name: "pro"}
	if sub.PeriodEndAt != nil {
		until := sub.PeriodEndAt.Unix()
		p.UntilEpochSeconds = &until
	}
	return p
}

// Sentinel errors for billing operations.
var (
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrInvalidPurchase      = errors.New("purchase rejected by store")
	ErrStoreUnavailable     = errors.New("store verification unavailable")
)

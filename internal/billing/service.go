package billing

import (
	"context"
	"errors"
)

// Service ties purchase verification to subscription storage.
type Service struct {
	subs     Repository
	verifier Verifier
}

// NewService creates a billing service.
func NewService(subs Repository, verifier Verifier) *Service {
	return &Service{subs: subs, verifier: verifier}
}

// Confirm verifies a purchase with the store and upserts the resulting
// subscription. The order id is the idempotency key: confirming the
// same order twice updates one record.
func (s *Service) Confirm(ctx context.Context, userID, productID, orderID, purchaseToken string) (*Subscription, error) {
	verification, err := s.verifier.Verify(ctx, productID, purchaseToken)
	if err != nil {
		return nil, err
	}

	return s.subs.Upsert(ctx, &Subscription{
		UserID:        userID,
		ProductID:     productID,
		OrderID:       orderID,
		PurchaseToken: purchaseToken,
		Status:        verification.Status,
		PeriodEndAt:   verification.PeriodEndAt,
	})
}

// Status returns the user's current plan and the subscription backing
// it, if any. A user with no entitled subscription is simply free; that
// is not an error.
func (s *Service) Status(ctx context.Context, userID string) (Plan, *Subscription, error) {
	sub, err := s.subs.GetActiveForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveSubscription) {
			return DerivePlan(nil), nil, nil
		}
		return DerivePlan(nil), nil, err
	}
	return DerivePlan(sub), sub, nil
}

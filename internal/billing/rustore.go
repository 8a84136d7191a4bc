package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/volthome/volt-core/internal/infrastructure/config"
)

const (
	defaultVerifyTimeout = 10 * time.Second

	// stubPeriod is the entitlement granted per purchase when
	// verification is disabled (development and self-hosted installs).
	stubPeriod = 30 * 24 * time.Hour
)

// Verification is the outcome of checking a purchase with the store.
type Verification struct {
	Status      Status
	PeriodEndAt *time.Time
}

// Verifier checks a purchase against the store backend.
type Verifier interface {
	Verify(ctx context.Context, productID, purchaseToken string) (*Verification, error)
}

// RuStoreVerifier verifies subscription purchases against the RuStore
// public API.
type RuStoreVerifier struct {
	cfg    config.BillingConfig
	client *http.Client
}

// NewVerifier creates a verifier from billing configuration. When
// billing is disabled it returns a stub that accepts every purchase
// with a fixed 30-day period, matching development behaviour.
func NewVerifier(cfg config.BillingConfig) Verifier {
	if !cfg.Enabled {
		return stubVerifier{}
	}

	timeout := defaultVerifyTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &RuStoreVerifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// rustoreSubscriptionResponse mirrors the RuStore public API envelope.
type rustoreSubscriptionResponse struct {
	Code string `json:"code"`
	Body struct {
		SubscriptionState string `json:"subscriptionState"`
		ExpiryTimeMillis  string `json:"expiryTimeMillis"`
	} `json:"body"`
}

// Verify asks RuStore for the current state of a subscription purchase.
func (v *RuStoreVerifier) Verify(ctx context.Context, productID, purchaseToken string) (*Verification, error) {
	url := fmt.Sprintf("%s/public/v3/subscription/%s/%s", v.cfg.BaseURL, productID, purchaseToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building verification request: %w", err)
	}
	req.Header.Set("Public-Token", v.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decoding
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return nil, ErrInvalidPurchase
	default:
		return nil, fmt.Errorf("%w: status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	var payload rustoreSubscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrStoreUnavailable, err)
	}

	status, ok := mapSubscriptionState(payload.Body.SubscriptionState)
	if !ok {
		return nil, ErrInvalidPurchase
	}

	result := &Verification{Status: status}
	if millis, err := strconv.ParseInt(payload.Body.ExpiryTimeMillis, 10, 64); err == nil && millis > 0 {
		t := time.UnixMilli(millis).UTC()
		result.PeriodEndAt = &t
	}
	return result, nil
}

// mapSubscriptionState translates RuStore subscription states into
// stored statuses. Unknown states are rejected rather than guessed at.
func mapSubscriptionState(state string) (Status, bool) {
	switch state {
	case "ACTIVE":
		return StatusActive, true
	case "TRIAL":
		return StatusTrial, true
	case "GRACE_PERIOD":
		return StatusGrace, true
	case "ON_HOLD", "PAUSED":
		return StatusPaused, true
	case "EXPIRED":
		return StatusExpired, true
	case "CANCELLED":
		return StatusCancelled, true
	default:
		return "", false
	}
}

// stubVerifier accepts every purchase. Used when billing is disabled.
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, _, _ string) (*Verification, error) {
	end := time.Now().Add(stubPeriod).UTC()
	return &Verification{Status: StatusActive, PeriodEndAt: &end}, nil
}

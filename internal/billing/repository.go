package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for subscription persistence.
type Repository interface {
	GetActiveForUser(ctx context.Context, userID string) (*Subscription, error)
	Upsert(ctx context.Context, sub *Subscription) (*Subscription, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed subscription repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const subscriptionColumns = `id, user_id, product_id, order_id, purchase_token, status, period_end_at, created_at, updated_at`

// GetActiveForUser returns the user's freshest entitled subscription.
// Subscriptions with a NULL period_end_at (open-ended) sort first.
// Returns ErrNoActiveSubscription when the user has none.
func (r *SQLiteRepository) GetActiveForUser(ctx context.Context, userID string) (*Subscription, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	sub, err := scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ?
		   AND status IN ('ACTIVE', 'TRIAL', 'GRACE')
		   AND (period_end_at IS NULL OR period_end_at > ?)
		 ORDER BY period_end_at IS NOT NULL, period_end_at DESC, created_at DESC
		 LIMIT 1`, userID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("getting active subscription: %w", err)
	}
	return sub, nil
}

// Upsert stores a subscription keyed by order id. A confirmation for a
// known order updates the record in place, so client retries are safe.
func (r *SQLiteRepository) Upsert(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if sub.UserID == "" {
		return nil, errors.New("upserting subscription: user id is required")
	}
	if sub.OrderID == "" {
		return nil, errors.New("upserting subscription: order id is required")
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var periodEnd any
	if sub.PeriodEndAt != nil {
		periodEnd = sub.PeriodEndAt.UTC().Format(time.RFC3339)
	}

	stored, err := scanSubscription(r.db.QueryRowContext(ctx,
		`INSERT INTO subscriptions (id, user_id, product_id, order_id, purchase_token, status, period_end_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(order_id) DO UPDATE SET
		     product_id     = excluded.product_id,
		     purchase_token = excluded.purchase_token,
		     status         = excluded.status,
		     period_end_at  = excluded.period_end_at,
		     updated_at     = excluded.updated_at
		 RETURNING `+subscriptionColumns,
		sub.ID, sub.UserID, sub.ProductID, sub.OrderID, sub.PurchaseToken,
		string(sub.Status), periodEnd, now, now))
	if err != nil {
		return nil, fmt.Errorf("upserting subscription: %w", err)
	}
	return stored, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var s Subscription
	var status string
	var periodEnd sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&s.ID, &s.UserID, &s.ProductID, &s.OrderID, &s.PurchaseToken,
		&status, &periodEnd, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	s.Status = Status(status)
	if periodEnd.Valid {
		t, _ := time.Parse(time.RFC3339, periodEnd.String) //nolint:errcheck // format is controlled
		s.PeriodEndAt = &t
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &s, nil
}

package billing

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/volthome/volt-core/internal/infrastructure/config"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE subscriptions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			order_id TEXT NOT NULL UNIQUE,
			purchase_token TEXT NOT NULL,
			status TEXT NOT NULL,
			period_end_at TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX ix_subscriptions_user_status ON subscriptions(user_id, status);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	return db
}

func timePtr(t time.Time) *time.Time { return &t }

func TestDerivePlan(t *testing.T) {
	end := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	tests := []struct {
		name      string
		sub       *Subscription
		wantPlan  string
		wantUntil bool
	}{
		{"nil subscription", nil, "free", false},
		{"active with period", &Subscription{Status: StatusActive, PeriodEndAt: timePtr(end)}, "pro", true},
		{"trial", &Subscription{Status: StatusTrial}, "pro", false},
		{"grace", &Subscription{Status: StatusGrace, PeriodEndAt: timePtr(end)}, "pro", true},
		{"expired", &Subscription{Status: StatusExpired, PeriodEndAt: timePtr(end)}, "free", false},
		{"cancelled", &Subscription{Status: StatusCancelled}, "free", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := DerivePlan(tt.sub)
			if plan.Name != tt.wantPlan {
				t.Errorf("plan = %q, want %q", plan.Name, tt.wantPlan)
			}
			if (plan.UntilEpochSeconds != nil) != tt.wantUntil {
				t.Errorf("until set = %v, want %v", plan.UntilEpochSeconds != nil, tt.wantUntil)
			}
			if tt.wantUntil && *plan.UntilEpochSeconds != end.Unix() {
				t.Errorf("until = %d, want %d", *plan.UntilEpochSeconds, end.Unix())
			}
		})
	}
}

func TestRepository_UpsertByOrderID(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	first, err := repo.Upsert(ctx, &Subscription{
		UserID:        "user-1",
		ProductID:     "volthome_pro_monthly",
		OrderID:       "order-001",
		PurchaseToken: "token-a",
		Status:        StatusTrial,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Re-confirming the same order updates in place.
	second, err := repo.Upsert(ctx, &Subscription{
		UserID:        "user-1",
		ProductID:     "volthome_pro_monthly",
		OrderID:       "order-001",
		PurchaseToken: "token-b",
		Status:        StatusActive,
		PeriodEndAt:   timePtr(time.Now().Add(30 * 24 * time.Hour)),
	})
	if err != nil {
		t.Fatalf("Upsert() second error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("upsert minted a new row: %q != %q", second.ID, first.ID)
	}
	if second.Status != StatusActive {
		t.Errorf("Status = %q, want ACTIVE", second.Status)
	}
	if second.PurchaseToken != "token-b" {
		t.Errorf("PurchaseToken = %q, want token-b", second.PurchaseToken)
	}

	var count int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM subscriptions`).Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestRepository_Upsert_RequiresKeys(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, &Subscription{OrderID: "order-001"}); err == nil {
		t.Error("Upsert() without user id should fail")
	}
	if _, err := repo.Upsert(ctx, &Subscription{UserID: "user-1"}); err == nil {
		t.Error("Upsert() without order id should fail")
	}
}

func TestRepository_GetActiveForUser(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	if _, err := repo.GetActiveForUser(ctx, "user-1"); !errors.Is(err, ErrNoActiveSubscription) {
		t.Errorf("GetActiveForUser() error = %v, want ErrNoActiveSubscription", err)
	}

	// An expired subscription does not count.
	if _, err := repo.Upsert(ctx, &Subscription{
		UserID: "user-1", ProductID: "p", OrderID: "order-expired", PurchaseToken: "t",
		Status: StatusActive, PeriodEndAt: timePtr(time.Now().Add(-time.Hour)),
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := repo.GetActiveForUser(ctx, "user-1"); !errors.Is(err, ErrNoActiveSubscription) {
		t.Errorf("expired subscription should not be active, got err = %v", err)
	}

	// A live one does.
	if _, err := repo.Upsert(ctx, &Subscription{
		UserID: "user-1", ProductID: "p", OrderID: "order-live", PurchaseToken: "t",
		Status: StatusActive, PeriodEndAt: timePtr(time.Now().Add(24 * time.Hour)),
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetActiveForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetActiveForUser() error = %v", err)
	}
	if got.OrderID != "order-live" {
		t.Errorf("OrderID = %q, want order-live", got.OrderID)
	}

	// Open-ended subscriptions sort before dated ones.
	if _, err := repo.Upsert(ctx, &Subscription{
		UserID: "user-1", ProductID: "p", OrderID: "order-open", PurchaseToken: "t",
		Status: StatusActive,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, err = repo.GetActiveForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetActiveForUser() error = %v", err)
	}
	if got.OrderID != "order-open" {
		t.Errorf("OrderID = %q, want order-open", got.OrderID)
	}
}

func TestService_Confirm_StubVerifier(t *testing.T) {
	repo := NewRepository(testDB(t))
	svc := NewService(repo, NewVerifier(config.BillingConfig{Enabled: false}))
	ctx := context.Background()

	sub, err := svc.Confirm(ctx, "user-1", "volthome_pro_monthly", "order-001", "token")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if sub.Status != StatusActive {
		t.Errorf("Status = %q, want ACTIVE", sub.Status)
	}
	if sub.PeriodEndAt == nil || time.Until(*sub.PeriodEndAt) < 29*24*time.Hour {
		t.Errorf("PeriodEndAt = %v, want ~30 days out", sub.PeriodEndAt)
	}

	plan, active, err := svc.Status(ctx, "user-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if plan.Name != "pro" {
		t.Errorf("plan = %q, want pro", plan.Name)
	}
	if active == nil || active.OrderID != "order-001" {
		t.Errorf("active subscription = %+v, want order-001", active)
	}
}

func TestService_Status_NoSubscriptionIsFree(t *testing.T) {
	repo := NewRepository(testDB(t))
	svc := NewService(repo, NewVerifier(config.BillingConfig{Enabled: false}))

	plan, active, err := svc.Status(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if plan.Name != "free" || active != nil {
		t.Errorf("plan = %q, active = %+v, want free with no subscription", plan.Name, active)
	}
}

func TestRuStoreVerifier_Verify(t *testing.T) {
	t.Run("active subscription", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Public-Token") != "public-token" {
				t.Errorf("missing Public-Token header")
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"code":"OK","body":{"subscriptionState":"ACTIVE","expiryTimeMillis":"1767225600000"}}`)) //nolint:errcheck // test server
		}))
		defer srv.Close()

		v := NewVerifier(config.BillingConfig{
			Enabled: true,
			BaseURL: srv.URL,
			Token:   "public-token",
		})

		got, err := v.Verify(context.Background(), "volthome_pro_monthly", "purchase-token")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if got.Status != StatusActive {
			t.Errorf("Status = %q, want ACTIVE", got.Status)
		}
		if got.PeriodEndAt == nil || got.PeriodEndAt.Unix() != 1767225600 {
			t.Errorf("PeriodEndAt = %v, want 2026-01-01T00:00:00Z", got.PeriodEndAt)
		}
	})

	t.Run("unknown purchase", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		v := NewVerifier(config.BillingConfig{Enabled: true, BaseURL: srv.URL, Token: "t"})
		if _, err := v.Verify(context.Background(), "p", "t"); !errors.Is(err, ErrInvalidPurchase) {
			t.Errorf("Verify() error = %v, want ErrInvalidPurchase", err)
		}
	})

	t.Run("store outage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		v := NewVerifier(config.BillingConfig{Enabled: true, BaseURL: srv.URL, Token: "t"})
		if _, err := v.Verify(context.Background(), "p", "t"); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("Verify() error = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("unknown state rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"code":"OK","body":{"subscriptionState":"MYSTERY"}}`)) //nolint:errcheck // test server
		}))
		defer srv.Close()

		v := NewVerifier(config.BillingConfig{Enabled: true, BaseURL: srv.URL, Token: "t"})
		if _, err := v.Verify(context.Background(), "p", "t"); !errors.Is(err, ErrInvalidPurchase) {
			t.Errorf("Verify() error = %v, want ErrInvalidPurchase", err)
		}
	})
}

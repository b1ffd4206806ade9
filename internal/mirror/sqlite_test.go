package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"submirror/internal/config"
)

func newTestStore(t *testing.T, mutate func(*config.Config)) *SQLiteStore {
	t.Helper()
	in := config.Config{
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: "whsec_test_123",
	}
	if mutate != nil {
		mutate(&in)
	}
	cfg, err := config.New(in)
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	store, err := NewSQLiteStore(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestFindByIdentityMissing(t *testing.T) {
	store := newTestStore(t, nil)

	rec, err := store.FindByIdentity(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("FindByIdentity: %v", err)
	}
	if rec != nil {
		t.Fatalf("record = %+v, want nil", rec)
	}
}

func TestInsertAndFindRoundTrip(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	trialEnd := time.Unix(1750000000, 0).UTC()
	u := &Update{
		Status:        strPtr(StatusTrialing),
		Plan:          strPtr("price_pro"),
		Trial:         boolPtr(true),
		TrialEnd:      &trialEnd,
		PaymentMethod: strPtr("pm_123"),
	}
	if _, err := store.Insert(ctx, "alice@example.com", u); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec, err := store.FindByIdentity(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByIdentity: %v", err)
	}
	if rec == nil {
		t.Fatal("record not found after insert")
	}
	if rec.Status != StatusTrialing {
		t.Errorf("Status = %q, want trialing", rec.Status)
	}
	if rec.Plan == nil || *rec.Plan != "price_pro" {
		t.Errorf("Plan = %v, want price_pro", rec.Plan)
	}
	if rec.Trial == nil || !*rec.Trial {
		t.Errorf("Trial = %v, want true", rec.Trial)
	}
	if rec.TrialEnd == nil || !rec.TrialEnd.Equal(trialEnd) {
		t.Errorf("TrialEnd = %v, want %v", rec.TrialEnd, trialEnd)
	}
	if rec.PaymentMethod == nil || *rec.PaymentMethod != "pm_123" {
		t.Errorf("PaymentMethod = %v, want pm_123", rec.PaymentMethod)
	}
	if rec.TrialStart != nil {
		t.Errorf("TrialStart = %v, want nil", rec.TrialStart)
	}
}

func TestUpdateByIdentityNotFound(t *testing.T) {
	store := newTestStore(t, nil)

	_, err := store.UpdateByIdentity(context.Background(), "ghost@example.com", &Update{
		Status: strPtr(StatusActive),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateByIdentityAutoCreate(t *testing.T) {
	store := newTestStore(t, func(c *config.Config) { c.AutoCreateOnMiss = true })
	ctx := context.Background()

	rec, err := store.UpdateByIdentity(ctx, "new@example.com", &Update{
		Status: strPtr(StatusActive),
		Plan:   strPtr("price_basic"),
	})
	if err != nil {
		t.Fatalf("UpdateByIdentity: %v", err)
	}
	if rec == nil || rec.Status != StatusActive {
		t.Fatalf("record = %+v, want active", rec)
	}
	if rec.Plan == nil || *rec.Plan != "price_basic" {
		t.Errorf("Plan = %v, want price_basic", rec.Plan)
	}
}

func TestUpdateByIdentityPartial(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := store.Insert(ctx, "bob@example.com", &Update{
		Status: strPtr(StatusActive),
		Plan:   strPtr("price_pro"),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Status-only update must leave the plan alone.
	rec, err := store.UpdateByIdentity(ctx, "bob@example.com", &Update{
		Status: strPtr(StatusPastDue),
	})
	if err != nil {
		t.Fatalf("UpdateByIdentity: %v", err)
	}
	if rec.Status != StatusPastDue {
		t.Errorf("Status = %q, want past_due", rec.Status)
	}
	if rec.Plan == nil || *rec.Plan != "price_pro" {
		t.Errorf("Plan = %v, want price_pro untouched", rec.Plan)
	}
}

func TestUpdateByIdentityClearPlan(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := store.Insert(ctx, "carol@example.com", &Update{
		Status: strPtr(StatusActive),
		Plan:   strPtr("price_pro"),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec, err := store.UpdateByIdentity(ctx, "carol@example.com", &Update{
		Status:    strPtr(StatusInactive),
		ClearPlan: true,
	})
	if err != nil {
		t.Fatalf("UpdateByIdentity: %v", err)
	}
	if rec.Status != StatusInactive {
		t.Errorf("Status = %q, want inactive", rec.Status)
	}
	if rec.Plan != nil {
		t.Errorf("Plan = %v, want nil after clear", rec.Plan)
	}
}

func TestUpdateByIdentityEmptyUpdate(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := store.Insert(ctx, "dave@example.com", &Update{
		Status: strPtr(StatusActive),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	before, err := store.FindByIdentity(ctx, "dave@example.com")
	if err != nil {
		t.Fatalf("FindByIdentity: %v", err)
	}

	rec, err := store.UpdateByIdentity(ctx, "dave@example.com", &Update{})
	if err != nil {
		t.Fatalf("UpdateByIdentity: %v", err)
	}
	if rec.UpdatedAt != before.UpdatedAt {
		t.Error("empty update touched updated_at")
	}
}

func TestCustomColumnNames(t *testing.T) {
	store := newTestStore(t, func(c *config.Config) {
		c.Table = "accounts"
		c.IdentityField = "contact_email"
		c.StatusField = "billing_state"
		c.PlanField = "tier"
	})
	ctx := context.Background()

	if _, err := store.Insert(ctx, "eve@example.com", &Update{
		Status: strPtr(StatusActive),
		Plan:   strPtr("price_team"),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec, err := store.FindByIdentity(ctx, "eve@example.com")
	if err != nil {
		t.Fatalf("FindByIdentity: %v", err)
	}
	if rec == nil || rec.Email != "eve@example.com" {
		t.Fatalf("record = %+v, want eve@example.com", rec)
	}
	if rec.Plan == nil || *rec.Plan != "price_team" {
		t.Errorf("Plan = %v, want price_team", rec.Plan)
	}
}

func TestUpdateEmpty(t *testing.T) {
	if !(&Update{}).Empty() {
		t.Error("zero Update should be empty")
	}
	if (&Update{ClearPlan: true}).Empty() {
		t.Error("ClearPlan update should not be empty")
	}
	if (&Update{Status: strPtr(StatusActive)}).Empty() {
		t.Error("status update should not be empty")
	}
}

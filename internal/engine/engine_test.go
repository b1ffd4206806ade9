package engine

import (
	"context"
	"testing"
	"time"

	"submirror/internal/config"
	"submirror/internal/mirror"
	"submirror/internal/provider"
)

// fakeProvider is an in-memory provider.Client recording every mutation.
type fakeProvider struct {
	verifyFn func(payload []byte, sigHeader string) (*provider.Event, error)

	customersByEmail map[string]*provider.Customer
	customersByID    map[string]*provider.Customer
	activeSubs       map[string][]*provider.Subscription
	prices           map[string]*provider.Price

	updateFn func(id string, u *provider.SubscriptionUpdate) (*provider.Subscription, error)

	listErr   error
	cancelErr error

	updateCalls []updateCall
	cancelCalls []cancelCall
}

type updateCall struct {
	id     string
	update *provider.SubscriptionUpdate
}

type cancelCall struct {
	id      string
	prorate bool
}

func (f *fakeProvider) VerifySignature(payload []byte, sigHeader string) (*provider.Event, error) {
	return f.verifyFn(payload, sigHeader)
}

func (f *fakeProvider) FindCustomerByEmail(ctx context.Context, email string) (*provider.Customer, error) {
	return f.customersByEmail[email], nil
}

func (f *fakeProvider) GetCustomer(ctx context.Context, id string) (*provider.Customer, error) {
	return f.customersByID[id], nil
}

func (f *fakeProvider) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*provider.Subscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.activeSubs[customerID], nil
}

func (f *fakeProvider) UpdateSubscription(ctx context.Context, id string, u *provider.SubscriptionUpdate) (*provider.Subscription, error) {
	f.updateCalls = append(f.updateCalls, updateCall{id: id, update: u})
	if f.updateFn != nil {
		return f.updateFn(id, u)
	}
	return &provider.Subscription{ID: id, Status: "active"}, nil
}

func (f *fakeProvider) CancelSubscription(ctx context.Context, id string, prorate bool) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelCalls = append(f.cancelCalls, cancelCall{id: id, prorate: prorate})
	return nil
}

func (f *fakeProvider) RetrievePrice(ctx context.Context, id string) (*provider.Price, error) {
	return f.prices[id], nil
}

// fakeStore is an in-memory mirror.Store recording every write.
type fakeStore struct {
	records    map[string]*mirror.Record
	autoCreate bool

	findErr   error
	updateErr error

	writes []storeWrite
}

type storeWrite struct {
	email  string
	update *mirror.Update
}

func (f *fakeStore) FindByIdentity(ctx context.Context, email string) (*mirror.Record, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.records[email], nil
}

func (f *fakeStore) UpdateByIdentity(ctx context.Context, email string, u *mirror.Update) (*mirror.Record, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.writes = append(f.writes, storeWrite{email: email, update: u})

	rec, ok := f.records[email]
	if !ok {
		if !f.autoCreate {
			return nil, mirror.ErrNotFound
		}
		rec = &mirror.Record{Email: email, Status: mirror.StatusInactive}
		if f.records == nil {
			f.records = make(map[string]*mirror.Record)
		}
		f.records[email] = rec
	}
	f.apply(rec, u)
	return rec, nil
}

func (f *fakeStore) Insert(ctx context.Context, email string, u *mirror.Update) (*mirror.Record, error) {
	rec := &mirror.Record{Email: email, Status: mirror.StatusInactive}
	if f.records == nil {
		f.records = make(map[string]*mirror.Record)
	}
	f.records[email] = rec
	f.apply(rec, u)
	return rec, nil
}

func (f *fakeStore) apply(rec *mirror.Record, u *mirror.Update) {
	if u.Status != nil {
		rec.Status = *u.Status
	}
	switch {
	case u.ClearPlan:
		rec.Plan = nil
	case u.Plan != nil:
		rec.Plan = u.Plan
	}
	if u.Trial != nil {
		rec.Trial = u.Trial
	}
	if u.TrialEnd != nil {
		rec.TrialEnd = u.TrialEnd
	}
	if u.CancelAtPeriodEnd != nil {
		rec.CancelAtPeriodEnd = u.CancelAtPeriodEnd
	}
}

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
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
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, fp *fakeProvider, fs *fakeStore) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t, nil)
	}
	eng := New(cfg, fp, fs)
	eng.now = func() time.Time { return time.Unix(1750000000, 0).UTC() }
	return eng
}

func str(s string) *string { return &s }

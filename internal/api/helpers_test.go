package api

import (
	"context"

	"submirror/internal/mirror"
	"submirror/internal/provider"
)

// memStore is an in-memory mirror.Store for handler tests.
type memStore struct {
	records map[string]*mirror.Record
}

func (m *memStore) FindByIdentity(ctx context.Context, email string) (*mirror.Record, error) {
	return m.records[email], nil
}

func (m *memStore) UpdateByIdentity(ctx context.Context, email string, u *mirror.Update) (*mirror.Record, error) {
	rec, ok := m.records[email]
	if !ok {
		return nil, mirror.ErrNotFound
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	switch {
	case u.ClearPlan:
		rec.Plan = nil
	case u.Plan != nil:
		rec.Plan = u.Plan
	}
	return rec, nil
}

func (m *memStore) Insert(ctx context.Context, email string, u *mirror.Update) (*mirror.Record, error) {
	rec := &mirror.Record{Email: email, Status: mirror.StatusInactive}
	if m.records == nil {
		m.records = make(map[string]*mirror.Record)
	}
	m.records[email] = rec
	return m.UpdateByIdentity(ctx, email, u)
}

// stubClient is a canned provider.Client for the ops endpoints.
type stubClient struct {
	customersByEmail map[string]*provider.Customer
	activeSubs       map[string][]*provider.Subscription
	prices           map[string]*provider.Price
}

func (s *stubClient) VerifySignature(payload []byte, sigHeader string) (*provider.Event, error) {
	return &provider.Event{Type: provider.EventIgnored}, nil
}

func (s *stubClient) FindCustomerByEmail(ctx context.Context, email string) (*provider.Customer, error) {
	return s.customersByEmail[email], nil
}

func (s *stubClient) GetCustomer(ctx context.Context, id string) (*provider.Customer, error) {
	return nil, nil
}

func (s *stubClient) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*provider.Subscription, error) {
	return s.activeSubs[customerID], nil
}

func (s *stubClient) UpdateSubscription(ctx context.Context, id string, u *provider.SubscriptionUpdate) (*provider.Subscription, error) {
	return &provider.Subscription{ID: id, Status: "active"}, nil
}

func (s *stubClient) CancelSubscription(ctx context.Context, id string, prorate bool) error {
	return nil
}

func (s *stubClient) RetrievePrice(ctx context.Context, id string) (*provider.Price, error) {
	return s.prices[id], nil
}

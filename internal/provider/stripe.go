package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"submirror/internal/config"
)

// Client is the billing-provider capability surface the engine consumes.
type Client interface {
	// VerifySignature authenticates a raw webhook payload against its
	// signature header and decodes it into a typed event.
	VerifySignature(payload []byte, sigHeader string) (*Event, error)

	// FindCustomerByEmail returns the customer for email, or (nil, nil)
	// when none exists.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)

	// GetCustomer retrieves a customer by provider-assigned ID.
	GetCustomer(ctx context.Context, id string) (*Customer, error)

	// ListActiveSubscriptions returns the customer's subscriptions with
	// status "active".
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error)

	// UpdateSubscription applies the mutation and returns the fresh
	// subscription state.
	UpdateSubscription(ctx context.Context, id string, u *SubscriptionUpdate) (*Subscription, error)

	// CancelSubscription cancels the subscription immediately, optionally
	// prorating the unused period.
	CancelSubscription(ctx context.Context, id string, prorate bool) error

	// RetrievePrice fetches a price by ID.
	RetrievePrice(ctx context.Context, id string) (*Price, error)
}

// StripeClient implements Client on stripe-go. The API calls are held as
// function fields so tests can substitute them without a network.
type StripeClient struct {
	webhookSecret string

	constructEvent func(payload []byte, header, secret string) (stripe.Event, error)
	listCustomers  func(params *stripe.CustomerListParams) ([]*stripe.Customer, error)
	getCustomer    func(id string, params *stripe.CustomerParams) (*stripe.Customer, error)
	listSubs       func(params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error)
	updateSub      func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	cancelSub      func(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	getPrice       func(id string, params *stripe.PriceParams) (*stripe.Price, error)
}

// NewStripeClient creates a StripeClient from the engine config.
//
// This sets the global Stripe API key; embed one engine per process unless
// every engine shares credentials.
func NewStripeClient(cfg *config.Config) *StripeClient {
	stripe.Key = cfg.StripeSecretKey
	return &StripeClient{
		webhookSecret: cfg.StripeWebhookSecret,
		constructEvent: func(payload []byte, header, secret string) (stripe.Event, error) {
			return webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
				IgnoreAPIVersionMismatch: true,
			})
		},
		listCustomers: func(params *stripe.CustomerListParams) ([]*stripe.Customer, error) {
			iter := customer.List(params)
			var out []*stripe.Customer
			for iter.Next() {
				out = append(out, iter.Customer())
			}
			return out, iter.Err()
		},
		getCustomer: customer.Get,
		listSubs: func(params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error) {
			iter := subscription.List(params)
			var out []*stripe.Subscription
			for iter.Next() {
				out = append(out, iter.Subscription())
			}
			return out, iter.Err()
		},
		updateSub: subscription.Update,
		cancelSub: subscription.Cancel,
		getPrice:  price.Get,
	}
}

// VerifySignature authenticates the payload with the provider's HMAC scheme
// and decodes the verified body. Trust decisions never parse the body
// locally; only the already-verified event is decoded.
func (c *StripeClient) VerifySignature(payload []byte, sigHeader string) (*Event, error) {
	event, err := c.constructEvent(payload, sigHeader, c.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}
	return decodeEvent(&event, payload)
}

func decodeEvent(event *stripe.Event, payload []byte) (*Event, error) {
	out := &Event{
		ID:      event.ID,
		RawType: string(event.Type),
		Payload: payload,
	}

	switch string(event.Type) {
	case string(EventSubscriptionCreated),
		string(EventSubscriptionUpdated),
		string(EventSubscriptionDeleted),
		string(EventSubscriptionCanceled):
		out.Type = EventType(event.Type)
		var sub Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription event: %w", err)
		}
		out.Subscription = &sub
	default:
		out.Type = EventIgnored
	}
	return out, nil
}

// FindCustomerByEmail looks up the customer by exact email match.
func (c *StripeClient) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
			Limit:   stripe.Int64(1),
		},
		Email: stripe.String(email),
	}
	customers, err := c.listCustomers(params)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return &Customer{ID: customers[0].ID, Email: customers[0].Email}, nil
}

// GetCustomer retrieves a customer by ID.
func (c *StripeClient) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	if !IsSafeProviderID(id) {
		return nil, fmt.Errorf("invalid customer id: %q", id)
	}
	cust, err := c.getCustomer(id, &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve customer: %w", err)
	}
	return &Customer{ID: cust.ID, Email: cust.Email}, nil
}

// ListActiveSubscriptions returns the customer's active subscriptions.
func (c *StripeClient) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Customer:   stripe.String(customerID),
		Status:     stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	subs, err := c.listSubs(params)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	out := make([]*Subscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, fromAPISubscription(s))
	}
	return out, nil
}

// UpdateSubscription applies the mutation via the provider API.
func (c *StripeClient) UpdateSubscription(ctx context.Context, id string, u *SubscriptionUpdate) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	}
	if u.PriceID != "" {
		item := &stripe.SubscriptionItemsParams{Price: stripe.String(u.PriceID)}
		if u.ItemID != "" {
			item.ID = stripe.String(u.ItemID)
		}
		params.Items = []*stripe.SubscriptionItemsParams{item}
	}
	if u.ProrationBehavior != "" {
		params.ProrationBehavior = stripe.String(u.ProrationBehavior)
	}
	if u.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(u.TrialDays)
	}
	if u.CancelAtPeriodEnd != nil {
		params.CancelAtPeriodEnd = stripe.Bool(*u.CancelAtPeriodEnd)
	}

	sub, err := c.updateSub(id, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return fromAPISubscription(sub), nil
}

// CancelSubscription cancels the subscription immediately.
func (c *StripeClient) CancelSubscription(ctx context.Context, id string, prorate bool) error {
	params := &stripe.SubscriptionCancelParams{
		Params:  stripe.Params{Context: ctx},
		Prorate: stripe.Bool(prorate),
	}
	if _, err := c.cancelSub(id, params); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

// RetrievePrice fetches a price by ID.
func (c *StripeClient) RetrievePrice(ctx context.Context, id string) (*Price, error) {
	p, err := c.getPrice(id, &stripe.PriceParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve price: %w", err)
	}
	return &Price{ID: p.ID, UnitAmount: p.UnitAmount}, nil
}

// fromAPISubscription maps a stripe-go subscription object onto the shared
// wire representation used by the engine. Period boundaries live on the
// items in current API versions.
func fromAPISubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialStart:        s.TrialStart,
		TrialEnd:          s.TrialEnd,
		CanceledAt:        s.CanceledAt,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.Customer = s.Customer.ID
		out.CustomerEmail = strings.TrimSpace(s.Customer.Email)
	}
	if s.DefaultPaymentMethod != nil {
		out.PaymentMethod = s.DefaultPaymentMethod.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item == nil {
				continue
			}
			wireItem := SubscriptionItem{ID: item.ID}
			if item.Price != nil {
				wireItem.Price.ID = item.Price.ID
				wireItem.Price.Metadata = item.Price.Metadata
			}
			out.Items.Data = append(out.Items.Data, wireItem)
			if out.PeriodStart == 0 {
				out.PeriodStart = item.CurrentPeriodStart
				out.PeriodEnd = item.CurrentPeriodEnd
			}
		}
	}
	return out
}

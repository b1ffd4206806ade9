// Package provider wraps the billing provider (Stripe): signature
// verification for inbound events and the handful of API calls the engine
// needs. Provider objects are never cached beyond a single operation.
package provider

import (
	"strings"
	"time"
)

// EventType identifies the billing events the engine cares about. Unhandled
// provider event types are preserved as EventIgnored so the dispatcher can
// no-op them explicitly.
type EventType string

const (
	EventSubscriptionCreated  EventType = "customer.subscription.created"
	EventSubscriptionUpdated  EventType = "customer.subscription.updated"
	EventSubscriptionDeleted  EventType = "customer.subscription.deleted"
	EventSubscriptionCanceled EventType = "customer.subscription.cancelled"
	EventIgnored              EventType = "ignored"
)

// Event is a verified, decoded billing change notification. It lives only
// for the duration of one ingestion call.
type Event struct {
	ID   string
	Type EventType
	// RawType preserves the provider's type string for ignored events.
	RawType string
	// Subscription is the embedded snapshot for subscription events,
	// nil for ignored events.
	Subscription *Subscription
	// Payload is the verified raw body, kept for diagnostics.
	Payload []byte
}

// Subscription is a minimal representation of a provider subscription
// object, shared between webhook payload decoding and API responses.
type Subscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	CustomerEmail     string `json:"customer_email"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	TrialStart        int64  `json:"trial_start"`
	TrialEnd          int64  `json:"trial_end"`
	PeriodStart       int64  `json:"current_period_start"`
	PeriodEnd         int64  `json:"current_period_end"`
	CanceledAt        int64  `json:"canceled_at"`
	PaymentMethod     string `json:"default_payment_method"`
	Items             struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// SubscriptionItem is one priced line of a subscription.
type SubscriptionItem struct {
	ID    string `json:"id"`
	Price struct {
		ID       string            `json:"id"`
		Metadata map[string]string `json:"metadata"`
	} `json:"price"`
}

// FirstPriceID returns the price ID from the first subscription item.
func (s *Subscription) FirstPriceID() string {
	for _, item := range s.Items.Data {
		if priceID := strings.TrimSpace(item.Price.ID); priceID != "" {
			return priceID
		}
	}
	return ""
}

// FirstItemID returns the ID of the first subscription item.
func (s *Subscription) FirstItemID() string {
	for _, item := range s.Items.Data {
		if itemID := strings.TrimSpace(item.ID); itemID != "" {
			return itemID
		}
	}
	return ""
}

// TrialEndTime returns the trial end as a time, or nil when no trial exists.
func (s *Subscription) TrialEndTime() *time.Time {
	if s.TrialEnd <= 0 {
		return nil
	}
	t := time.Unix(s.TrialEnd, 0).UTC()
	return &t
}

// Customer is the provider-side identity record.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Price carries the amount used to classify a plan change as an upgrade.
type Price struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
}

// SubscriptionUpdate describes a provider-side subscription mutation.
// Zero-valued fields are omitted from the request.
type SubscriptionUpdate struct {
	// ItemID and PriceID swap the first item's price.
	ItemID  string
	PriceID string

	ProrationBehavior string
	TrialDays         int64
	CancelAtPeriodEnd *bool
}

// IsSafeProviderID validates that a provider ID (cus_..., sub_...) is safe
// for use as a lookup key.
func IsSafeProviderID(id string) bool {
	if len(id) < 5 || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}

package engine

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"submirror/internal/provider"
)

// CancelOptions selects between cancellation at the period boundary and
// immediate cancellation.
type CancelOptions struct {
	AtPeriodEnd bool
	// Prorate credits the unused period on immediate cancellation. Ignored
	// when AtPeriodEnd is set.
	Prorate bool
}

// CancelResult reports the cancelled subscription.
type CancelResult struct {
	SubscriptionID string `json:"subscriptionId"`
	AtPeriodEnd    bool   `json:"atPeriodEnd"`
}

// Cancel ends the customer's active subscription. The mirror is not written
// here; the provider emits a subscription event for the cancellation and the
// dispatcher applies it like any other.
func (e *Engine) Cancel(ctx context.Context, email string, opts CancelOptions) (*CancelResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	cust, err := e.provider.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		return nil, ErrCustomerNotFound
	}

	active, err := e.provider.ListActiveSubscriptions(ctx, cust.ID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, ErrSubscriptionNotFound
	}
	sub := active[0]

	if opts.AtPeriodEnd {
		cape := true
		update := &provider.SubscriptionUpdate{CancelAtPeriodEnd: &cape}
		if _, err := e.provider.UpdateSubscription(ctx, sub.ID, update); err != nil {
			return nil, err
		}
	} else if err := e.provider.CancelSubscription(ctx, sub.ID, opts.Prorate); err != nil {
		return nil, err
	}

	log.Info().
		Str("email", email).
		Str("subscription_id", sub.ID).
		Bool("at_period_end", opts.AtPeriodEnd).
		Msg("subscription cancelled")

	return &CancelResult{SubscriptionID: sub.ID, AtPeriodEnd: opts.AtPeriodEnd}, nil
}

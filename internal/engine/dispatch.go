package engine

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"submirror/internal/metrics"
	"submirror/internal/provider"
)

// Dispatch routes a verified event to the correct mutation. Unhandled event
// types are explicitly no-oped and reported as ignored.
func (e *Engine) Dispatch(ctx context.Context, event *provider.Event) Result {
	res := e.dispatch(ctx, event)

	outcome := "success"
	switch {
	case !res.Success:
		outcome = "error"
	case res.Ignored:
		outcome = "ignored"
	}
	metrics.EventsTotal.WithLabelValues(event.RawType, outcome).Inc()
	return res
}

func (e *Engine) dispatch(ctx context.Context, event *provider.Event) Result {
	switch event.Type {
	case provider.EventSubscriptionCreated:
		if err := e.enforceSingleSubscription(ctx, event.Subscription); err != nil {
			return Result{Success: false, Error: err.Error()}
		}
		return Result{Success: true}

	case provider.EventSubscriptionUpdated,
		provider.EventSubscriptionDeleted,
		provider.EventSubscriptionCanceled:
		if err := e.applyToMirror(ctx, event); err != nil {
			return Result{Success: false, Error: err.Error()}
		}
		return Result{Success: true}

	default:
		log.Info().
			Str("event_id", event.ID).
			Str("type", event.RawType).
			Msg("billing event ignored (unhandled type)")
		return Result{Success: true, Ignored: true}
	}
}

// enforceSingleSubscription keeps "exactly one active subscription per
// customer": when a new subscription appears, every other active
// subscription for the customer is cancelled with proration. This is a
// compensating action against the provider, not a mirror write.
func (e *Engine) enforceSingleSubscription(ctx context.Context, sub *provider.Subscription) error {
	customerID := strings.TrimSpace(sub.Customer)
	if customerID == "" {
		return ErrIdentityUnresolved
	}

	active, err := e.provider.ListActiveSubscriptions(ctx, customerID)
	if err != nil {
		return err
	}
	for _, other := range active {
		if other.ID == sub.ID {
			continue
		}
		if err := e.provider.CancelSubscription(ctx, other.ID, true); err != nil {
			return err
		}
		log.Info().
			Str("customer_id", customerID).
			Str("subscription_id", other.ID).
			Str("kept_subscription_id", sub.ID).
			Msg("cancelled redundant active subscription")
	}
	return nil
}

// applyToMirror maps the event onto mirror fields and writes them through
// the mirror adapter's update-by-identity operation.
func (e *Engine) applyToMirror(ctx context.Context, event *provider.Event) error {
	email, err := e.resolveIdentity(ctx, event.Subscription)
	if err != nil {
		return err
	}

	update := mapFields(e.cfg, event.Type, event.Subscription)
	if _, err := e.mirror.UpdateByIdentity(ctx, email, update); err != nil {
		return err
	}

	log.Info().
		Str("email", email).
		Str("event_id", event.ID).
		Str("type", event.RawType).
		Str("status", deref(update.Status)).
		Msg("mirror record updated from billing event")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

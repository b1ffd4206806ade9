package engine

import (
	"context"
	"strings"
	"time"

	"submirror/internal/config"
	"submirror/internal/mirror"
	"submirror/internal/provider"
)

// normalizeStatus maps a provider subscription status onto the mirror's
// closed status set. Unknown statuses fail closed (inactive).
func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case mirror.StatusActive:
		return mirror.StatusActive
	case mirror.StatusTrialing:
		return mirror.StatusTrialing
	case mirror.StatusPastDue:
		return mirror.StatusPastDue
	case mirror.StatusCanceled:
		return mirror.StatusCanceled
	case mirror.StatusUnpaid:
		return mirror.StatusUnpaid
	default:
		return mirror.StatusInactive
	}
}

// effectiveStatus is the status the mirror should carry for a non-delete
// event: a subscription queued for cancellation reads as canceled even while
// the provider still reports it active.
func effectiveStatus(sub *provider.Subscription) string {
	if sub.CancelAtPeriodEnd {
		return mirror.StatusCanceled
	}
	return normalizeStatus(sub.Status)
}

// mapFields is the pure state mapper: provider subscription + event type in,
// mirror field update out. It never touches either adapter.
func mapFields(cfg *config.Config, eventType provider.EventType, sub *provider.Subscription) *mirror.Update {
	u := &mirror.Update{}

	if eventType == provider.EventSubscriptionDeleted {
		// Hard reset regardless of the provider's reported status at
		// deletion time.
		status := mirror.StatusInactive
		u.Status = &status
		u.ClearPlan = true
	} else {
		status := effectiveStatus(sub)
		u.Status = &status
		if plan := sub.FirstPriceID(); plan != "" {
			u.Plan = &plan
		}
	}

	if cfg.SyncField(config.FieldTrial) {
		trial := sub.TrialEnd > 0
		u.Trial = &trial
		// Timestamps are copied verbatim when present and omitted when
		// absent; clearing stale values is reconciliation's job.
		if sub.TrialEnd > 0 {
			u.TrialEnd = unixPtr(sub.TrialEnd)
		}
	}
	if cfg.SyncField(config.FieldTrialStart) && sub.TrialStart > 0 {
		u.TrialStart = unixPtr(sub.TrialStart)
	}
	if cfg.SyncField(config.FieldPaymentMethod) && sub.PaymentMethod != "" {
		pm := sub.PaymentMethod
		u.PaymentMethod = &pm
	}
	if cfg.SyncField(config.FieldPeriodStart) && sub.PeriodStart > 0 {
		u.PeriodStart = unixPtr(sub.PeriodStart)
	}
	if cfg.SyncField(config.FieldPeriodEnd) && sub.PeriodEnd > 0 {
		u.PeriodEnd = unixPtr(sub.PeriodEnd)
	}
	if cfg.SyncField(config.FieldCanceledAt) && sub.CanceledAt > 0 {
		u.CanceledAt = unixPtr(sub.CanceledAt)
	}

	if eventType != provider.EventSubscriptionDeleted {
		cape := sub.CancelAtPeriodEnd
		u.CancelAtPeriodEnd = &cape
	}

	return u
}

// resolveIdentity finds the email for a subscription event: the payload's
// explicit email wins, then the customer record fetched by provider ID.
func (e *Engine) resolveIdentity(ctx context.Context, sub *provider.Subscription) (string, error) {
	if email := strings.TrimSpace(sub.CustomerEmail); email != "" {
		return strings.ToLower(email), nil
	}
	customerID := strings.TrimSpace(sub.Customer)
	if customerID == "" {
		return "", ErrIdentityUnresolved
	}
	cust, err := e.provider.GetCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if cust == nil || strings.TrimSpace(cust.Email) == "" {
		return "", ErrIdentityUnresolved
	}
	return strings.ToLower(strings.TrimSpace(cust.Email)), nil
}

func unixPtr(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

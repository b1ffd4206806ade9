package engine

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"submirror/internal/config"
	"submirror/internal/metrics"
	"submirror/internal/mirror"
	"submirror/internal/provider"
)

// PlanChangeAction tags the outcome of a plan change request.
type PlanChangeAction string

const (
	// ActionPlanChanged means the provider subscription was moved to the
	// target plan.
	ActionPlanChanged PlanChangeAction = "PLAN_CHANGED"
	// ActionAlreadyOnPlan means the subscription already carries the target
	// plan; no provider mutation was issued.
	ActionAlreadyOnPlan PlanChangeAction = "ALREADY_ON_PLAN"
	// ActionUsePaymentLink means the customer has no active subscription;
	// the caller must route them through an external checkout flow.
	ActionUsePaymentLink PlanChangeAction = "USE_PAYMENT_LINK"
)

// PlanChangeOptions carries per-call overrides.
type PlanChangeOptions struct {
	// ProrationBehavior, when set, wins over both the config default and the
	// upgrade/downgrade defaults.
	ProrationBehavior config.ProrationBehavior
}

// PlanChangeResult reports what happened and, for PLAN_CHANGED, the
// proration mode used and the new period end as the effective date.
type PlanChangeResult struct {
	Action         PlanChangeAction `json:"action"`
	SubscriptionID string           `json:"subscriptionId,omitempty"`
	CustomerID     string           `json:"customerId,omitempty"`
	Proration      string           `json:"proration,omitempty"`
	EffectiveDate  *time.Time       `json:"effectiveDate,omitempty"`
}

// ChangePlan transitions the customer's active subscription to newPlanID.
//
// The mirror, not the provider, is authoritative for "does this identity
// exist in our system", so an unknown email fails ErrUserNotFound before any
// provider call. Adapter errors propagate unchanged; no retries are issued
// here because replaying a plan-change mutation risks duplicate billing.
func (e *Engine) ChangePlan(ctx context.Context, email, newPlanID string, opts PlanChangeOptions) (*PlanChangeResult, error) {
	res, err := e.changePlan(ctx, email, newPlanID, opts)
	if err != nil {
		metrics.PlanChangesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PlanChangesTotal.WithLabelValues(string(res.Action)).Inc()
	return res, nil
}

func (e *Engine) changePlan(ctx context.Context, email, newPlanID string, opts PlanChangeOptions) (*PlanChangeResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	record, err := e.mirror.FindByIdentity(ctx, email)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrUserNotFound
	}

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
		// Not an error: the caller redirects to external checkout.
		return &PlanChangeResult{Action: ActionUsePaymentLink, CustomerID: cust.ID}, nil
	}

	current := active[0]
	currentPlanID := current.FirstPriceID()

	if currentPlanID == newPlanID {
		// Idempotence guard against duplicate requests.
		return &PlanChangeResult{Action: ActionAlreadyOnPlan, SubscriptionID: current.ID}, nil
	}

	currentPrice, err := e.provider.RetrievePrice(ctx, currentPlanID)
	if err != nil {
		return nil, err
	}
	targetPrice, err := e.provider.RetrievePrice(ctx, newPlanID)
	if err != nil {
		return nil, err
	}
	isUpgrade := targetPrice.UnitAmount > currentPrice.UnitAmount

	proration := e.resolveProration(opts, isUpgrade)

	update := &provider.SubscriptionUpdate{
		ItemID:            current.FirstItemID(),
		PriceID:           newPlanID,
		ProrationBehavior: string(proration),
	}

	if e.cfg.PreserveTrialPeriods && current.TrialEnd > 0 {
		if days := remainingTrialDays(current.TrialEnd, e.now()); days > 0 {
			update.TrialDays = days
			if e.cfg.SyncField(config.FieldTrial) {
				trial := true
				if _, err := e.mirror.UpdateByIdentity(ctx, email, &mirror.Update{
					Trial:    &trial,
					TrialEnd: current.TrialEndTime(),
				}); err != nil {
					return nil, err
				}
			}
		}
	}

	updated, err := e.provider.UpdateSubscription(ctx, current.ID, update)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("email", email).
		Str("subscription_id", updated.ID).
		Str("from_plan", currentPlanID).
		Str("to_plan", newPlanID).
		Str("proration", string(proration)).
		Bool("upgrade", isUpgrade).
		Msg("plan changed")

	result := &PlanChangeResult{
		Action:         ActionPlanChanged,
		SubscriptionID: updated.ID,
		Proration:      string(proration),
	}
	if updated.PeriodEnd > 0 {
		result.EffectiveDate = unixPtr(updated.PeriodEnd)
	}
	return result, nil
}

// resolveProration picks the proration mode: the per-call override wins,
// then the config default, then the direction default. Upgrades invoice
// immediately to avoid under-billing; downgrades defer to the next period to
// avoid surprise mid-cycle charges.
func (e *Engine) resolveProration(opts PlanChangeOptions, isUpgrade bool) config.ProrationBehavior {
	if opts.ProrationBehavior != "" {
		return opts.ProrationBehavior
	}
	if e.cfg.ProrationDefault != "" {
		return e.cfg.ProrationDefault
	}
	if isUpgrade {
		return config.ProrationImmediate
	}
	return config.ProrationDeferred
}

// remainingTrialDays returns the whole days left on a trial, rounding any
// partial day up.
func remainingTrialDays(trialEnd int64, now time.Time) int64 {
	remaining := trialEnd - now.Unix()
	if remaining <= 0 {
		return 0
	}
	return (remaining + 86399) / 86400
}

package engine

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"submirror/internal/metrics"
	"submirror/internal/mirror"
	"submirror/internal/provider"
)

// StatePair is the status/plan pair reconciliation compares.
type StatePair struct {
	Status string  `json:"status"`
	Plan   *string `json:"plan"`
}

func (p StatePair) equal(other StatePair) bool {
	if p.Status != other.Status {
		return false
	}
	if (p.Plan == nil) != (other.Plan == nil) {
		return false
	}
	return p.Plan == nil || *p.Plan == *other.Plan
}

// SyncResult reports a reconciliation run. Synced is true when drift was
// found and repaired; Previous is set only in that case.
type SyncResult struct {
	Success  bool       `json:"success"`
	Synced   bool       `json:"synced"`
	Previous *StatePair `json:"previous,omitempty"`
	Current  StatePair  `json:"current"`
}

// Sync pulls current truth from the provider and repairs the mirror when
// the two disagree. It is idempotent: a second call with no intervening
// provider change always reports synced:false.
//
// Reconciliation never creates identities; a missing mirror record fails
// ErrUserNotFound regardless of the auto-create setting.
func (e *Engine) Sync(ctx context.Context, email string) (*SyncResult, error) {
	res, err := e.sync(ctx, email)
	if err != nil {
		metrics.SyncsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if res.Synced {
		metrics.SyncsTotal.WithLabelValues("repaired").Inc()
	} else {
		metrics.SyncsTotal.WithLabelValues("in_sync").Inc()
	}
	return res, nil
}

func (e *Engine) sync(ctx context.Context, email string) (*SyncResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	// The two reads are independent; run them concurrently.
	var (
		record *mirror.Record
		sub    *provider.Subscription
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, err = e.mirror.FindByIdentity(gctx, email)
		return err
	})
	g.Go(func() error {
		var err error
		sub, err = e.fetchActiveSubscription(gctx, email)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if record == nil {
		return nil, ErrUserNotFound
	}

	// Current truth: the provider's state, or inactive/no-plan when the
	// provider has nothing for this identity.
	truth := StatePair{Status: mirror.StatusInactive}
	if sub != nil {
		truth.Status = effectiveStatus(sub)
		if plan := sub.FirstPriceID(); plan != "" {
			truth.Plan = &plan
		}
	}

	mirrored := StatePair{Status: record.Status, Plan: record.Plan}
	if mirrored.equal(truth) {
		return &SyncResult{Success: true, Synced: false, Current: truth}, nil
	}

	update := &mirror.Update{Status: &truth.Status}
	if truth.Plan != nil {
		update.Plan = truth.Plan
	} else {
		update.ClearPlan = true
	}
	if _, err := e.mirror.UpdateByIdentity(ctx, email, update); err != nil {
		return nil, err
	}

	log.Info().
		Str("email", email).
		Str("previous_status", mirrored.Status).
		Str("current_status", truth.Status).
		Msg("mirror drift repaired")

	return &SyncResult{
		Success:  true,
		Synced:   true,
		Previous: &mirrored,
		Current:  truth,
	}, nil
}

// fetchActiveSubscription resolves the provider's active subscription for
// email, or nil when the customer or subscription does not exist.
func (e *Engine) fetchActiveSubscription(ctx context.Context, email string) (*provider.Subscription, error) {
	cust, err := e.provider.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		return nil, nil
	}
	active, err := e.provider.ListActiveSubscriptions(ctx, cust.ID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	return active[0], nil
}

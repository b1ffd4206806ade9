// Package config holds the validated, immutable settings for the
// subscription mirror engine: Stripe credentials, mirror field names,
// and sync policy flags.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ProrationBehavior selects how Stripe applies billing adjustments when a
// subscription price changes mid-period. The wire values are Stripe's own.
type ProrationBehavior string

const (
	// ProrationImmediate creates prorated line items for the change right away.
	ProrationImmediate ProrationBehavior = "create_prorations"
	// ProrationDeferred settles the change on the next invoice.
	ProrationDeferred ProrationBehavior = "always_invoice"
)

// Default mirror field names, matching the most common entitlement schema.
const (
	DefaultTable         = "users"
	DefaultIdentityField = "email"
	DefaultStatusField   = "subscription_status"
	DefaultPlanField     = "plan"
)

// Optional provider-derived fields that may be mirrored alongside status/plan.
const (
	FieldTrial         = "trial"
	FieldTrialStart    = "trial_start"
	FieldTrialEnd      = "trial_end"
	FieldPaymentMethod = "payment_method"
	FieldPeriodStart   = "period_start"
	FieldPeriodEnd     = "period_end"
	FieldCanceledAt    = "canceled_at"
)

var recognizedSyncedFields = map[string]struct{}{
	FieldTrial:         {},
	FieldTrialStart:    {},
	FieldTrialEnd:      {},
	FieldPaymentMethod: {},
	FieldPeriodStart:   {},
	FieldPeriodEnd:     {},
	FieldCanceledAt:    {},
}

// Column names end up interpolated into SQL, so they are restricted to
// lowercase identifiers.
var safeColumnName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// InvalidError reports a construction-time configuration failure. The engine
// refuses to start on any InvalidError.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("config: invalid field %q: %s", e.Field, e.Reason)
}

// Config describes everything the engine needs: provider credentials, which
// mirror columns to write, and how plan changes behave. Treat it as immutable
// after New returns.
type Config struct {
	StripeSecretKey     string
	StripeWebhookSecret string

	// Mirror schema mapping.
	Table         string
	IdentityField string
	StatusField   string
	PlanField     string

	// SyncedFields is the set of optional provider-derived fields mirrored
	// in addition to status and plan. Only recognized names are accepted.
	SyncedFields map[string]bool

	// ProrationDefault overrides the per-direction proration default for
	// plan changes when non-empty.
	ProrationDefault ProrationBehavior

	PreserveTrialPeriods bool
	AutoCreateOnMiss     bool
	Debug                bool
}

// New validates cfg, applies defaults for empty optional fields, and returns
// the finished value. The input is not mutated.
func New(cfg Config) (*Config, error) {
	out := cfg

	if strings.TrimSpace(out.StripeSecretKey) == "" {
		return nil, &InvalidError{Field: "StripeSecretKey", Reason: "required"}
	}
	if strings.TrimSpace(out.StripeWebhookSecret) == "" {
		return nil, &InvalidError{Field: "StripeWebhookSecret", Reason: "required"}
	}

	if out.Table == "" {
		out.Table = DefaultTable
	}
	if out.IdentityField == "" {
		out.IdentityField = DefaultIdentityField
	}
	if out.StatusField == "" {
		out.StatusField = DefaultStatusField
	}
	if out.PlanField == "" {
		out.PlanField = DefaultPlanField
	}

	for field, name := range map[string]string{
		"Table":         out.Table,
		"IdentityField": out.IdentityField,
		"StatusField":   out.StatusField,
		"PlanField":     out.PlanField,
	} {
		if !safeColumnName.MatchString(name) {
			return nil, &InvalidError{Field: field, Reason: fmt.Sprintf("unsafe column name %q", name)}
		}
	}

	if out.SyncedFields != nil {
		synced := make(map[string]bool, len(out.SyncedFields))
		for name, enabled := range out.SyncedFields {
			if _, ok := recognizedSyncedFields[name]; !ok {
				return nil, &InvalidError{Field: "SyncedFields", Reason: fmt.Sprintf("unrecognized field %q", name)}
			}
			synced[name] = enabled
		}
		out.SyncedFields = synced
	}

	switch out.ProrationDefault {
	case "", ProrationImmediate, ProrationDeferred:
	default:
		return nil, &InvalidError{Field: "ProrationDefault", Reason: fmt.Sprintf("unknown behavior %q", out.ProrationDefault)}
	}

	return &out, nil
}

// SyncField reports whether the named optional field should be mirrored.
func (c *Config) SyncField(name string) bool {
	return c.SyncedFields[name]
}

// FromEnv builds a Config from environment variables. The CLI loads .env via
// godotenv before calling this in development.
func FromEnv() (*Config, error) {
	cfg := Config{
		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Table:                os.Getenv("MIRROR_TABLE"),
		IdentityField:        os.Getenv("MIRROR_IDENTITY_FIELD"),
		StatusField:          os.Getenv("MIRROR_STATUS_FIELD"),
		PlanField:            os.Getenv("MIRROR_PLAN_FIELD"),
		ProrationDefault:     parseProrationEnv(os.Getenv("PRORATION_DEFAULT")),
		PreserveTrialPeriods: envBool("PRESERVE_TRIAL_PERIODS"),
		AutoCreateOnMiss:     envBool("AUTO_CREATE_ON_MISS"),
		Debug:                envBool("DEBUG"),
	}

	if raw := strings.TrimSpace(os.Getenv("MIRROR_SYNCED_FIELDS")); raw != "" {
		cfg.SyncedFields = make(map[string]bool)
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.SyncedFields[name] = true
			}
		}
	}

	return New(cfg)
}

func parseProrationEnv(raw string) ProrationBehavior {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "immediate", string(ProrationImmediate):
		return ProrationImmediate
	case "deferred", string(ProrationDeferred):
		return ProrationDeferred
	default:
		return ProrationBehavior(strings.TrimSpace(raw))
	}
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

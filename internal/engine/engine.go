// Package engine implements the subscription state synchronization core:
// verified webhook ingestion, the provider-to-mirror state mapping, plan
// change orchestration, and drift reconciliation.
package engine

import (
	"errors"
	"time"

	"submirror/internal/config"
	"submirror/internal/mirror"
	"submirror/internal/provider"
)

// Failure taxonomy. Ingestion-time failures (body/signature) are reported to
// the transport as rejected events; the rest surface from the operation that
// hit them. Adapter errors propagate with their original message preserved.
var (
	ErrBodyMissing          = errors.New("no request body found")
	ErrSignatureMissing     = errors.New("no signature found in request")
	ErrSignatureInvalid     = errors.New("signature verification failed")
	ErrIdentityUnresolved   = errors.New("no email found in event data")
	ErrUserNotFound         = errors.New("user not found in mirror")
	ErrCustomerNotFound     = errors.New("no billing customer found for email")
	ErrSubscriptionNotFound = errors.New("active subscription not found")
)

// Engine ties the two adapters together. Each operation is request-scoped
// and stateless between invocations; provider state is always fetched fresh
// within a call, never cached across calls.
type Engine struct {
	cfg      *config.Config
	provider provider.Client
	mirror   mirror.Store

	now func() time.Time
}

// New constructs an Engine from a validated config and its two adapters.
func New(cfg *config.Config, pc provider.Client, ms mirror.Store) *Engine {
	return &Engine{
		cfg:      cfg,
		provider: pc,
		mirror:   ms,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

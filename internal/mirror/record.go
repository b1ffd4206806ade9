// Package mirror owns the persisted entitlement mirror: one record per
// customer identity, kept eventually consistent with the billing provider.
package mirror

import (
	"errors"
	"fmt"
	"time"
)

// Subscription statuses stored on a mirror record. The set is closed; the
// provider's raw status is normalized before it reaches the store.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusInactive = "inactive"
	StatusUnpaid   = "unpaid"
)

// ErrNotFound is returned by UpdateByIdentity when no record exists for the
// identity and auto-create is disabled.
var ErrNotFound = errors.New("mirror: record not found")

// StoreError wraps a storage-level failure, preserving the underlying
// message for operators.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("mirror: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Record is the mirror-side view of a customer's entitlement.
type Record struct {
	Email  string
	Status string
	// Plan is nil when the customer has no plan (e.g. after deletion).
	Plan *string

	Trial         *bool
	TrialStart    *time.Time
	TrialEnd      *time.Time
	PaymentMethod *string
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	CanceledAt    *time.Time

	CancelAtPeriodEnd *bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Update carries the field values a single mutation wants to write. Nil
// pointers mean "leave unchanged"; ClearPlan resets the plan to null, which a
// nil Plan alone cannot express.
type Update struct {
	Status *string

	Plan      *string
	ClearPlan bool

	Trial         *bool
	TrialStart    *time.Time
	TrialEnd      *time.Time
	PaymentMethod *string
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	CanceledAt    *time.Time

	CancelAtPeriodEnd *bool
}

// Empty reports whether the update would write nothing.
func (u *Update) Empty() bool {
	if u == nil {
		return true
	}
	return u.Status == nil && u.Plan == nil && !u.ClearPlan &&
		u.Trial == nil && u.TrialStart == nil && u.TrialEnd == nil &&
		u.PaymentMethod == nil && u.PeriodStart == nil && u.PeriodEnd == nil &&
		u.CanceledAt == nil && u.CancelAtPeriodEnd == nil
}

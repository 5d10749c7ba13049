/*
Package policy implements the policy lifecycle state machine.

PURPOSE:
  Governs what mutations a policy may undergo over its life. A policy is
  created already ACTIVE by a successful premium calculation plus date
  validation; afterward the only explicit transition is ACTIVE -> CANCELED.
  EXPIRED is derived on read (strictly past the end date) and is never
  persisted, so reads and writes can never disagree about it.

STATE MACHINE:
  ACTIVE   --cancel-->          CANCELED   (terminal)
  ACTIVE   --(date > endDate)-> EXPIRED    (derived, terminal)

  Terminal states are immutable: any attempted mutation fails with
  ErrPolicyImmutable; a second cancel fails with ErrInvalidTransition so a
  double-cancel bug is never masked as a no-op.

SEE ALSO:
  - lifecycle.go: Manager with issue/cancel/amend operations
  - errors.go: transition and validation errors
*/
package policy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rating-engine/rating"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is a policy's lifecycle state.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusCanceled Status = "CANCELED"
	// StatusExpired is derived on read, never stored. The persisted status
	// of a policy past its end date remains ACTIVE.
	StatusExpired Status = "EXPIRED"
)

// Terminal reports whether no transition out of the status is permitted.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// =============================================================================
// POLICY
// =============================================================================

// Policy is one issued insurance policy. The premium and its breakdown are
// fixed at issuance; the lifecycle manager owns all later transitions.
type Policy struct {
	Number            string // unique, immutable once assigned
	Type              rating.InsuranceType
	IssueDate         rating.Date
	StartDate         rating.Date
	EndDate           rating.Date
	Premium           decimal.Decimal
	DiscountSurcharge decimal.Decimal
	ClientID          string
	VehicleID         string

	// status is the persisted state, ACTIVE or CANCELED only.
	// External reads go through StatusOn.
	status Status

	// Version backs optimistic locking in the store, so two concurrent
	// transitions on the same policy cannot both win.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusOn returns the externally observable status on a given day.
// A still-ACTIVE policy evaluated strictly after its end date reports
// EXPIRED; on the end date itself it is still ACTIVE.
func (p *Policy) StatusOn(on rating.Date) Status {
	if p.status == StatusActive && on.After(p.EndDate) {
		return StatusExpired
	}
	return p.status
}

// StoredStatus exposes the persisted state for storage implementations.
func (p *Policy) StoredStatus() Status { return p.status }

// Restore rebuilds the in-memory state from storage. EXPIRED is rejected:
// it must never have been persisted.
func (p *Policy) Restore(stored Status) error {
	if stored != StatusActive && stored != StatusCanceled {
		return &InvalidStatusError{Status: stored}
	}
	p.status = stored
	return nil
}

// =============================================================================
// STORE - Persistence interface (technology-agnostic)
// =============================================================================

// Store persists policies and their premium breakdowns.
//
// Save must compare-and-bump Version so concurrent transitions on one
// policy serialize: the loser observes ErrVersionConflict. Create persists
// the policy and its breakdown atomically; no partial policy is ever
// visible. Breakdowns are retained indefinitely for audit.
type Store interface {
	// Create persists a new policy together with its premium breakdown,
	// atomically. Returns ErrPolicyExists if the number is taken.
	Create(ctx context.Context, p *Policy, breakdown rating.PremiumBreakdown) error

	// Save persists a mutation of an existing policy. Fails with
	// ErrVersionConflict if p.Version does not match the stored row;
	// on success the stored and in-memory Version are incremented.
	Save(ctx context.Context, p *Policy) error

	// Load returns a policy by number, or ErrPolicyNotFound.
	Load(ctx context.Context, number string) (*Policy, error)

	// LoadBreakdown returns the premium breakdown retained at issuance,
	// or ErrPolicyNotFound.
	LoadBreakdown(ctx context.Context, number string) (rating.PremiumBreakdown, error)
}

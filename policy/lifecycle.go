/*
lifecycle.go - Policy lifecycle manager

PURPOSE:
  The single owner of policy state transitions. Issuance consults the
  premium calculator exactly once, validates the date and premium
  invariants, and persists the policy together with its breakdown
  atomically. After that the manager applies stored values only.

CONCURRENCY:
  Transitions on one policy serialize through the store's optimistic
  versioning: load, mutate, Save-with-version-check. Two concurrent
  cancels cannot both succeed; the loser sees ErrVersionConflict (and on
  retry, ErrInvalidTransition).

SEE ALSO:
  - types.go: Policy, Status, Store
  - rating/calculator.go: premium composition consulted at issuance
*/
package policy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/rating-engine/rating"
)

// Manager enforces the lifecycle state machine.
type Manager struct {
	Store Store
	Calc  *rating.Calculator
}

// NewManager creates a lifecycle manager.
func NewManager(store Store, calc *rating.Calculator) *Manager {
	return &Manager{Store: store, Calc: calc}
}

// =============================================================================
// ISSUANCE
// =============================================================================

// IssueRequest is everything the issuing workflow supplies.
type IssueRequest struct {
	Number            string
	Type              rating.InsuranceType
	IssueDate         rating.Date
	StartDate         rating.Date
	EndDate           rating.Date
	Vehicle           rating.VehicleAttributes
	Client            rating.ClientAttributes
	ClientID          string
	VehicleID         string
	DiscountSurcharge decimal.Decimal
}

// Issue creates a policy in ACTIVE state.
//
// Order of checks matters: dates first (cheap, no I/O), then the premium
// calculation (which may fail with a recoverable CalculationError), then
// the non-negative premium guard. Nothing is persisted unless every check
// passes; policy and breakdown are written in one atomic step.
//
// Rating factors are resolved as of the cover start date: the tariff in
// force when cover begins governs the whole term.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (*Policy, rating.PremiumBreakdown, error) {
	if err := validateDates(req.IssueDate, req.StartDate, req.EndDate); err != nil {
		return nil, rating.PremiumBreakdown{}, err
	}

	breakdown, err := m.Calc.Calculate(ctx, rating.Input{
		Type:              req.Type,
		AsOf:              req.StartDate,
		Vehicle:           req.Vehicle,
		Client:            req.Client,
		DiscountSurcharge: req.DiscountSurcharge,
	})
	if err != nil {
		return nil, rating.PremiumBreakdown{}, err
	}

	if breakdown.FinalPremium.IsNegative() {
		return nil, rating.PremiumBreakdown{}, &PremiumError{
			Number:  req.Number,
			Premium: breakdown.FinalPremium.String(),
		}
	}

	p := &Policy{
		Number:            req.Number,
		Type:              req.Type,
		IssueDate:         req.IssueDate,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		Premium:           breakdown.FinalPremium,
		DiscountSurcharge: req.DiscountSurcharge,
		ClientID:          req.ClientID,
		VehicleID:         req.VehicleID,
		status:            StatusActive,
	}

	if err := m.Store.Create(ctx, p, breakdown); err != nil {
		return nil, rating.PremiumBreakdown{}, err
	}
	return p, breakdown, nil
}

func validateDates(issue, start, end rating.Date) error {
	if issue.After(start) || !start.Before(end) {
		return &DateError{Issue: issue, Start: start, End: end}
	}
	return nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Cancel moves an ACTIVE policy to CANCELED, effective on the given day.
//
// Canceling an already-CANCELED policy fails with ErrInvalidTransition;
// canceling past the end date fails with ErrPolicyImmutable (the policy is
// EXPIRED by derivation). Neither is a silent no-op: a duplicate cancel
// request may be masking a real double-cancel bug upstream.
func (m *Manager) Cancel(ctx context.Context, number string, on rating.Date) (*Policy, error) {
	p, err := m.Store.Load(ctx, number)
	if err != nil {
		return nil, err
	}

	if current := p.StatusOn(on); current != StatusActive {
		return nil, &TransitionError{Number: number, From: current, To: StatusCanceled}
	}

	p.status = StatusCanceled
	if err := m.Store.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("cancel policy %s: %w", number, err)
	}
	return p, nil
}

// AmendDates changes the cover period of an ACTIVE policy. Terminal
// policies are immutable; the date invariants are re-validated against
// the unchanged issue date.
func (m *Manager) AmendDates(ctx context.Context, number string, on rating.Date, newStart, newEnd rating.Date) (*Policy, error) {
	p, err := m.Store.Load(ctx, number)
	if err != nil {
		return nil, err
	}

	if current := p.StatusOn(on); current.Terminal() {
		return nil, &ImmutableError{Number: number, Status: current, Op: "date amendment"}
	}
	if err := validateDates(p.IssueDate, newStart, newEnd); err != nil {
		return nil, err
	}

	p.StartDate = newStart
	p.EndDate = newEnd
	if err := m.Store.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("amend policy %s: %w", number, err)
	}
	return p, nil
}

// =============================================================================
// READS
// =============================================================================

// Get loads a policy; callers read the observable status via StatusOn.
func (m *Manager) Get(ctx context.Context, number string) (*Policy, error) {
	return m.Store.Load(ctx, number)
}

// Status returns the externally observable status on a given day.
func (m *Manager) Status(ctx context.Context, number string, on rating.Date) (Status, error) {
	p, err := m.Store.Load(ctx, number)
	if err != nil {
		return "", err
	}
	return p.StatusOn(on), nil
}

// Breakdown returns the premium breakdown retained at issuance.
func (m *Manager) Breakdown(ctx context.Context, number string) (rating.PremiumBreakdown, error) {
	return m.Store.LoadBreakdown(ctx, number)
}

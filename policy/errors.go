package policy

import (
	"errors"
	"fmt"

	"github.com/warp/rating-engine/rating"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTransition is returned for an illegal status change, e.g.
	// canceling an already-canceled policy. Surfaced as a user error, not
	// retried and never downgraded to a silent no-op.
	ErrInvalidTransition = errors.New("invalid policy transition")

	// ErrPolicyImmutable is returned for any mutation attempted on a
	// policy in a terminal state. Always a caller bug or stale UI.
	ErrPolicyImmutable = errors.New("policy is in a terminal state")

	// ErrInvalidPremium is returned when the premium would be negative
	// after the discount/surcharge is applied. The policy is rejected,
	// never clamped to zero.
	ErrInvalidPremium = errors.New("premium negative after discount")

	// ErrInvalidDates is returned when issueDate <= startDate < endDate
	// does not hold at issuance or amendment.
	ErrInvalidDates = errors.New("policy dates out of order")

	// ErrPolicyNotFound is returned when a policy number is unknown.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyExists is returned when issuing under a taken number.
	ErrPolicyExists = errors.New("policy number already exists")

	// ErrVersionConflict is returned when optimistic locking detects a
	// concurrent transition on the same policy.
	ErrVersionConflict = errors.New("concurrent policy modification detected")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// TransitionError reports an illegal transition attempt with both states.
type TransitionError struct {
	Number string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("policy %s: cannot transition %s -> %s", e.Number, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	if e.From.Terminal() && e.From != e.To {
		return ErrPolicyImmutable
	}
	return ErrInvalidTransition
}

// ImmutableError reports a non-status mutation attempt on a terminal policy.
type ImmutableError struct {
	Number string
	Status Status
	Op     string
}

func (e *ImmutableError) Error() string {
	return fmt.Sprintf("policy %s is %s: %s not permitted", e.Number, e.Status, e.Op)
}

func (e *ImmutableError) Unwrap() error { return ErrPolicyImmutable }

// PremiumError reports the rejected negative premium.
type PremiumError struct {
	Number  string
	Premium string // decimal string, avoids importing decimal just for display
}

func (e *PremiumError) Error() string {
	return fmt.Sprintf("policy %s: final premium %s is negative", e.Number, e.Premium)
}

func (e *PremiumError) Unwrap() error { return ErrInvalidPremium }

// DateError reports which date invariant failed.
type DateError struct {
	Issue rating.Date
	Start rating.Date
	End   rating.Date
}

func (e *DateError) Error() string {
	return fmt.Sprintf("require issue <= start < end, got issue=%s start=%s end=%s",
		e.Issue, e.Start, e.End)
}

func (e *DateError) Unwrap() error { return ErrInvalidDates }

// InvalidStatusError reports a persisted status outside the storable set.
type InvalidStatusError struct {
	Status Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("status %q is not storable (EXPIRED is derived on read)", e.Status)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is a user-correctable outcome.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPolicyImmutable) ||
		errors.Is(err, ErrInvalidPremium) ||
		errors.Is(err, ErrInvalidDates) ||
		errors.Is(err, ErrPolicyExists)
}

// IsRetryable reports whether the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

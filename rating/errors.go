/*
errors.go - Centralized error types for the rating engine

PURPOSE:
  All rating error types in one place for consistency and discoverability.
  Callers match with errors.Is/errors.As; the structured types carry the
  context an administrator needs to act on the failure.

ERROR CATEGORIES:
  1. Table maintenance errors - overlap, not found, immutable history
  2. Resolution outcomes - missing rating data (expected, recoverable)
  3. Calculation errors - aggregated missing-data gaps
  4. Internal faults - ambiguous matches (invariant bypassed)

PROPAGATION POLICY:
  Everything except ErrAmbiguousRating is an expected, named outcome that
  calling code handles explicitly. ErrAmbiguousRating means the no-overlap
  invariant was bypassed and is the only case warranting alerting.

SEE ALSO:
  - entry.go: raises overlap and maintenance errors
  - resolver.go: raises missing/ambiguous outcomes
  - calculator.go: aggregates CalculationError
*/
package rating

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOverlap is returned when a rating-table write would create two
	// entries for the same (type, key) with intersecting validity windows.
	// Always recoverable by the administrator adjusting dates.
	ErrOverlap = errors.New("rating interval overlap")

	// ErrMissingRating is returned when no entry is valid for a
	// (type, key, date) triple. This is an expected outcome signaling
	// missing rating data, never silently defaulted to a 1.0 factor.
	ErrMissingRating = errors.New("missing rating data")

	// ErrAmbiguousRating is returned when more than one entry matches a
	// (type, key, date) triple. The overlap invariant makes this
	// unreachable through the normal write path; seeing it means the
	// table was modified out of band. Internal-consistency fault.
	ErrAmbiguousRating = errors.New("ambiguous rating data: overlap invariant violated")

	// ErrCalculation is returned when a premium calculation cannot
	// complete because one or more required rating keys are missing.
	ErrCalculation = errors.New("premium calculation failed")

	// ErrEntryNotFound is returned when a referenced rating entry does not exist.
	ErrEntryNotFound = errors.New("rating entry not found")

	// ErrEntryNotFuture is returned when deleting an entry whose validity
	// window has already started. Historical entries back premium audits
	// and may only be closed, never removed.
	ErrEntryNotFuture = errors.New("rating entry validity is not entirely in the future")

	// ErrEntryClosed is returned when closing an entry that already has a
	// ValidTo before the requested close date.
	ErrEntryClosed = errors.New("rating entry already closed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OverlapError reports which existing entries conflict with a candidate
// interval. Surfaced verbatim to the administrator.
type OverlapError struct {
	Type      InsuranceType
	Key       RatingKey
	From      Date
	To        *Date // nil = open-ended candidate
	Conflicts []RatingEntry
}

func (e *OverlapError) Error() string {
	to := "open"
	if e.To != nil {
		to = e.To.String()
	}
	return fmt.Sprintf("%s/%s: candidate [%s, %s] overlaps %d existing entries",
		e.Type, e.Key, e.From, to, len(e.Conflicts))
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// MissingRatingError identifies the exact gap in the rating table.
type MissingRatingError struct {
	Type InsuranceType
	Key  RatingKey
	AsOf Date
}

func (e *MissingRatingError) Error() string {
	return fmt.Sprintf("no %s rating for %s valid on %s", e.Type, e.Key, e.AsOf)
}

func (e *MissingRatingError) Unwrap() error { return ErrMissingRating }

// AmbiguousRatingError reports an invariant violation: multiple entries
// valid for the same key on the same day.
type AmbiguousRatingError struct {
	Type    InsuranceType
	Key     RatingKey
	AsOf    Date
	Matches []RatingEntry
}

func (e *AmbiguousRatingError) Error() string {
	return fmt.Sprintf("%d %s ratings for %s valid on %s", len(e.Matches), e.Type, e.Key, e.AsOf)
}

func (e *AmbiguousRatingError) Unwrap() error { return ErrAmbiguousRating }

// CalculationError aggregates every missing rating key found during a
// premium calculation, so the operator can fix all gaps in one pass.
type CalculationError struct {
	Type        InsuranceType
	AsOf        Date
	MissingKeys []RatingKey
}

func (e *CalculationError) Error() string {
	keys := make([]string, len(e.MissingKeys))
	for i, k := range e.MissingKeys {
		keys[i] = string(k)
	}
	return fmt.Sprintf("cannot rate %s on %s: missing rating data for [%s]",
		e.Type, e.AsOf, strings.Join(keys, ", "))
}

func (e *CalculationError) Unwrap() error { return ErrCalculation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is correctable by the caller
// (administrator or issuing operator) rather than a system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrOverlap) ||
		errors.Is(err, ErrMissingRating) ||
		errors.Is(err, ErrCalculation) ||
		errors.Is(err, ErrEntryNotFuture) ||
		errors.Is(err, ErrEntryClosed)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}

// IsInternalFault reports whether the error indicates the overlap
// invariant was bypassed. These should be alerted on, not retried.
func IsInternalFault(err error) bool {
	return errors.Is(err, ErrAmbiguousRating)
}

package rating

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESOLVER - (type, key, date) -> multiplier
// =============================================================================

// Resolver translates a rating lookup into a single multiplier, with the
// "no data" case surfaced explicitly. A gap in the table must never be
// papered over with a neutral 1.0 factor: that would silently mis-rate
// policies whenever an administrator forgets to extend a tariff.
type Resolver struct {
	Store EntryStore
}

// NewResolver creates a resolver over the given store.
func NewResolver(store EntryStore) *Resolver {
	return &Resolver{Store: store}
}

// Resolve returns the multiplier valid for (t, key) on asOf.
//
// Outcomes:
//   - exactly one entry valid: its multiplier
//   - no entry valid: *MissingRatingError (expected, recoverable)
//   - multiple entries valid: *AmbiguousRatingError (internal fault; the
//     overlap invariant was bypassed, distinct from missing data)
//
// The read path is pure: repeated calls over an unchanged table return the
// same result.
func (r *Resolver) Resolve(ctx context.Context, t InsuranceType, key RatingKey, asOf Date) (decimal.Decimal, error) {
	matches, err := r.Store.FindValid(ctx, t, key, asOf)
	if err != nil {
		return decimal.Zero, err
	}

	switch len(matches) {
	case 0:
		return decimal.Zero, &MissingRatingError{Type: t, Key: key, AsOf: asOf}
	case 1:
		return matches[0].Multiplier, nil
	default:
		return decimal.Zero, &AmbiguousRatingError{Type: t, Key: key, AsOf: asOf, Matches: matches}
	}
}

/*
calculator.go - Premium composition

PURPOSE:
  Composes a final premium for one product at a calculation date:

    final = basePremium * product(multipliers) + discountSurcharge

  rounded to 2 decimal places, half-up, exactly once at the end. Every
  required rating key is resolved through the Resolver; if any key has no
  valid entry the whole calculation fails with a CalculationError listing
  ALL gaps found, so the operator fixes the table in one pass instead of
  replaying the calculation key by key.

AUDIT:
  The returned PremiumBreakdown carries the base premium and every applied
  factor, not just the scalar result. It is persisted alongside the policy
  and stays retrievable by policy number indefinitely.

NUMERIC SEMANTICS:
  decimal.Decimal throughout. decimal.Round rounds half away from zero,
  which is half-up for the non-negative values premiums take. No per-factor
  rounding: repeated calculations with identical inputs yield identical
  results with no drift.
*/
package rating

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BASE PREMIUMS - Business configuration, not rating-table-driven
// =============================================================================

// DefaultBasePremiums returns the flat per-product base premiums. The
// factory package can override these from the product catalog JSON.
func DefaultBasePremiums() map[InsuranceType]decimal.Decimal {
	return map[InsuranceType]decimal.Decimal{
		TypeOC:  decimal.NewFromInt(800),
		TypeAC:  decimal.NewFromInt(1200),
		TypeNNW: decimal.NewFromInt(150),
	}
}

// =============================================================================
// CALCULATION INPUT / OUTPUT
// =============================================================================

// Input is everything a premium calculation consumes. Vehicle and client
// attributes are read-only facts supplied by the surrounding application.
type Input struct {
	Type              InsuranceType
	AsOf              Date
	Vehicle           VehicleAttributes
	Client            ClientAttributes
	DiscountSurcharge decimal.Decimal // additive after rating, may be negative
}

// AppliedFactor is one resolved rating factor, in dimension order.
type AppliedFactor struct {
	Key        RatingKey
	Multiplier decimal.Decimal
}

// PremiumBreakdown explains how a premium was computed. Retained for
// audit and human-readable rating explanations.
type PremiumBreakdown struct {
	Type              InsuranceType
	AsOf              Date
	BasePremium       decimal.Decimal
	Factors           []AppliedFactor
	DiscountSurcharge decimal.Decimal
	FinalPremium      decimal.Decimal // rounded to 2 dp, half-up
}

// Factor returns the multiplier applied for a key, for reporting.
func (b PremiumBreakdown) Factor(key RatingKey) (decimal.Decimal, bool) {
	for _, f := range b.Factors {
		if f.Key == key {
			return f.Multiplier, true
		}
	}
	return decimal.Zero, false
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator composes premiums. Read-only with respect to rating data;
// safe for unlimited concurrent use. Base premiums may be updated at
// runtime (catalog seeding), so access goes through the locked accessors.
type Calculator struct {
	Resolver *Resolver

	mu           sync.RWMutex
	basePremiums map[InsuranceType]decimal.Decimal
}

// NewCalculator creates a calculator with the default base premiums.
func NewCalculator(resolver *Resolver) *Calculator {
	return &Calculator{Resolver: resolver, basePremiums: DefaultBasePremiums()}
}

// BasePremium returns the configured base premium for a product.
func (c *Calculator) BasePremium(t InsuranceType) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	base, ok := c.basePremiums[t]
	return base, ok
}

// SetBasePremium overrides one product's base premium. Callers may do
// this on a live calculator; in-flight calculations see either the old
// or the new value, never a torn read.
func (c *Calculator) SetBasePremium(t InsuranceType, base decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.basePremiums[t] = base
}

// Calculate resolves every required rating key for the product and
// composes the final premium.
//
// Failure modes:
//   - *CalculationError listing every missing key (recoverable: the
//     operator adds the missing table rows and retries)
//   - *AmbiguousRatingError passed through unchanged (internal fault)
func (c *Calculator) Calculate(ctx context.Context, in Input) (PremiumBreakdown, error) {
	base, ok := c.BasePremium(in.Type)
	if !ok {
		return PremiumBreakdown{}, fmt.Errorf("no base premium configured for product %q", in.Type)
	}

	keys := RequiredKeys(in.Type, in.AsOf, in.Vehicle, in.Client)

	var (
		factors []AppliedFactor
		missing []RatingKey
	)
	for _, key := range keys {
		mult, err := c.Resolver.Resolve(ctx, in.Type, key, in.AsOf)
		if err != nil {
			if errors.Is(err, ErrMissingRating) {
				// Keep scanning: the error must list every gap, not
				// just the first one hit.
				missing = append(missing, key)
				continue
			}
			return PremiumBreakdown{}, err
		}
		factors = append(factors, AppliedFactor{Key: key, Multiplier: mult})
	}

	if len(missing) > 0 {
		return PremiumBreakdown{}, &CalculationError{Type: in.Type, AsOf: in.AsOf, MissingKeys: missing}
	}

	final := base
	for _, f := range factors {
		final = final.Mul(f.Multiplier)
	}
	final = final.Add(in.DiscountSurcharge).Round(2)

	return PremiumBreakdown{
		Type:              in.Type,
		AsOf:              in.AsOf,
		BasePremium:       base,
		Factors:           factors,
		DiscountSurcharge: in.DiscountSurcharge,
		FinalPremium:      final,
	}, nil
}

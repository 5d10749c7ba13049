/*
Package rating provides the motor insurance rating engine.

PURPOSE:
  This package contains the temporal rating-table model and the premium
  calculation pipeline. Rating factors are versioned over date intervals,
  resolved for a calculation date, and composed multiplicatively on top of
  a flat per-product base premium.

KEY CONCEPTS IN THIS FILE (types.go):
  - InsuranceType: the three motor products (OC, AC, NNW)
  - RatingKey: a named risk dimension (e.g. vehicle-age band)
  - Date: a day-granularity point in time used for all validity checks
  - Open intervals: a missing ValidTo means "valid indefinitely"

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, no binary floating point
  2. Explicit gaps: a missing rating factor is a named outcome, never 1.0
  3. Immutability: rating entries are corrected by closing + re-adding,
     never edited in place

SEE ALSO:
  - entry.go: RatingEntry and the EntryStore interface
  - resolver.go: (type, key, date) -> multiplier resolution
  - calculator.go: premium composition and breakdowns
*/
package rating

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INSURANCE PRODUCTS
// =============================================================================

// InsuranceType identifies one of the three motor products.
type InsuranceType string

const (
	// TypeOC is third-party liability cover.
	TypeOC InsuranceType = "OC"
	// TypeAC is own-damage comprehensive cover.
	TypeAC InsuranceType = "AC"
	// TypeNNW is personal accident cover.
	TypeNNW InsuranceType = "NNW"
)

// AllTypes lists every product, in catalog order.
func AllTypes() []InsuranceType {
	return []InsuranceType{TypeOC, TypeAC, TypeNNW}
}

// ParseInsuranceType validates a product code from external input.
func ParseInsuranceType(s string) (InsuranceType, error) {
	switch InsuranceType(s) {
	case TypeOC, TypeAC, TypeNNW:
		return InsuranceType(s), nil
	}
	return "", fmt.Errorf("unknown insurance type %q", s)
}

// =============================================================================
// RATING KEYS
// =============================================================================

// RatingKey names a single risk dimension value, e.g. "VEHICLE_AGE_0_3".
// The full key vocabulary is defined in bands.go; keys are product-specific.
type RatingKey string

// =============================================================================
// DATE - Day-granularity time point
// =============================================================================

// Date is a calendar day in UTC. All rating validity and policy lifecycle
// comparisons happen at day granularity; hours never matter in this system.
type Date struct {
	t time.Time
}

// NewDate constructs a Date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// Today returns the current UTC calendar day.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals in configuration and tests.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }
func (d Date) IsZero() bool              { return d.t.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date  { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddYears(n int) Date { return Date{t: d.t.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Time() time.Time   { return d.t }
func (d Date) String() string    { return d.t.Format("2006-01-02") }

// YearsSince returns full calendar years elapsed from "from" to d.
// Used for client age: a birthday on d itself already counts.
func (d Date) YearsSince(from Date) int {
	years := d.Year() - from.Year()
	if from.AddYears(years).After(d) {
		years--
	}
	return years
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustParseDecimal parses a decimal literal, for configuration and tests.
func MustParseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

/*
Package factory provides JSON to Go product catalog conversion.

PURPOSE:
  Converts JSON product catalog definitions into calculator configuration
  (base premiums) and seed rating-table entries. This enables tariff
  configuration without code changes - the actuarial team defines a catalog
  in JSON, and the factory loads it into the store.

JSON SCHEMA:
  {
    "base_premiums": {"OC": "800", "AC": "1200", "NNW": "150"},
    "entries": [
      {
        "insurance_type": "OC",
        "rating_key": "VEHICLE_AGE_0_3",
        "multiplier": "0.90",
        "valid_from": "2024-01-01",
        "valid_to": "2024-12-31"
      }
    ]
  }

  Decimal values are JSON strings so the catalog round-trips exactly;
  valid_to may be omitted for an open-ended window.

USAGE:
  catalog, err := factory.ParseCatalog(jsonString)
  if err != nil { ... }
  calc := catalog.Calculator(rating.NewResolver(store))
  n, err := catalog.Seed(ctx, store)   // inserts seed entries

SEE ALSO:
  - rating/calculator.go: consumes the base premiums
  - rating/entry.go: EntryStore receiving the seed entries
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/rating-engine/rating"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a product catalog.
type CatalogJSON struct {
	BasePremiums map[string]string `json:"base_premiums"`
	Entries      []EntryJSON       `json:"entries"`
}

// EntryJSON is one seed rating-table row.
type EntryJSON struct {
	InsuranceType string `json:"insurance_type"`
	RatingKey     string `json:"rating_key"`
	Multiplier    string `json:"multiplier"`
	ValidFrom     string `json:"valid_from"`
	ValidTo       string `json:"valid_to,omitempty"` // empty = open-ended
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is a validated product catalog ready to configure the engine.
type Catalog struct {
	BasePremiums map[rating.InsuranceType]decimal.Decimal
	Entries      []rating.RatingEntry
}

// ParseCatalog validates and converts a catalog JSON document.
func ParseCatalog(raw string) (*Catalog, error) {
	var doc CatalogJSON
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}

	catalog := &Catalog{BasePremiums: make(map[rating.InsuranceType]decimal.Decimal)}

	for code, amount := range doc.BasePremiums {
		t, err := rating.ParseInsuranceType(code)
		if err != nil {
			return nil, fmt.Errorf("base premium: %w", err)
		}
		base, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("base premium for %s: %w", t, err)
		}
		if base.IsNegative() {
			return nil, fmt.Errorf("base premium for %s is negative", t)
		}
		catalog.BasePremiums[t] = base
	}

	for i, e := range doc.Entries {
		entry, err := parseEntry(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		catalog.Entries = append(catalog.Entries, entry)
	}

	return catalog, nil
}

func parseEntry(e EntryJSON) (rating.RatingEntry, error) {
	t, err := rating.ParseInsuranceType(e.InsuranceType)
	if err != nil {
		return rating.RatingEntry{}, err
	}
	mult, err := decimal.NewFromString(e.Multiplier)
	if err != nil {
		return rating.RatingEntry{}, fmt.Errorf("multiplier: %w", err)
	}
	from, err := rating.ParseDate(e.ValidFrom)
	if err != nil {
		return rating.RatingEntry{}, err
	}

	entry := rating.RatingEntry{
		Type:       t,
		Key:        rating.RatingKey(e.RatingKey),
		Multiplier: mult,
		ValidFrom:  from,
	}
	if e.ValidTo != "" {
		to, err := rating.ParseDate(e.ValidTo)
		if err != nil {
			return rating.RatingEntry{}, err
		}
		entry.ValidTo = &to
	}
	return entry, entry.Validate()
}

// Calculator builds a premium calculator using the catalog's base
// premiums, falling back to the built-in defaults for any product the
// catalog leaves out.
func (c *Catalog) Calculator(resolver *rating.Resolver) *rating.Calculator {
	calc := rating.NewCalculator(resolver)
	for t, base := range c.BasePremiums {
		calc.SetBasePremium(t, base)
	}
	return calc
}

// Seed inserts the catalog's entries through the store's guarded write
// path, so a malformed catalog cannot smuggle an overlap in. Returns the
// number of entries inserted; stops at the first failure.
func (c *Catalog) Seed(ctx context.Context, store rating.EntryStore) (int, error) {
	for i, entry := range c.Entries {
		if _, err := store.Add(ctx, entry); err != nil {
			return i, fmt.Errorf("seed entry %d (%s/%s): %w", i, entry.Type, entry.Key, err)
		}
	}
	return len(c.Entries), nil
}

// =============================================================================
// DEFAULT CATALOG - Demo/dev tariff covering every product dimension
// =============================================================================

// DefaultCatalogJSON returns a complete 2024+ tariff: every band of every
// dimension for all three products, open-ended from 2024-01-01. Handy for
// dev servers and scenario tests.
func DefaultCatalogJSON() string {
	type row struct{ t, k, m string }
	rows := []row{
		// Shared vehicle dimensions (OC and AC carry separate rows so
		// each product's tariff can diverge independently).
		{"OC", "VEHICLE_AGE_0_3", "0.90"}, {"OC", "VEHICLE_AGE_4_10", "1.00"}, {"OC", "VEHICLE_AGE_OVER_10", "1.20"},
		{"OC", "ENGINE_TO_1000", "0.85"}, {"OC", "ENGINE_1000_1400", "0.95"}, {"OC", "ENGINE_1400_1800", "1.00"},
		{"OC", "ENGINE_1800_2500", "1.15"}, {"OC", "ENGINE_OVER_2500", "1.35"},
		{"OC", "POWER_TO_50", "0.90"}, {"OC", "POWER_50_100", "1.00"}, {"OC", "POWER_100_150", "1.00"}, {"OC", "POWER_OVER_150", "1.25"},
		{"OC", "OC_COVERAGE", "1.00"},

		{"AC", "VEHICLE_AGE_0_3", "0.95"}, {"AC", "VEHICLE_AGE_4_10", "1.05"}, {"AC", "VEHICLE_AGE_OVER_10", "1.30"},
		{"AC", "ENGINE_TO_1000", "0.90"}, {"AC", "ENGINE_1000_1400", "0.95"}, {"AC", "ENGINE_1400_1800", "1.00"},
		{"AC", "ENGINE_1800_2500", "1.10"}, {"AC", "ENGINE_OVER_2500", "1.30"},
		{"AC", "POWER_TO_50", "0.95"}, {"AC", "POWER_50_100", "1.00"}, {"AC", "POWER_100_150", "1.05"}, {"AC", "POWER_OVER_150", "1.20"},
		{"AC", "DRIVER_AGE_TO_25", "1.40"}, {"AC", "DRIVER_AGE_25_60", "1.00"}, {"AC", "DRIVER_AGE_OVER_60", "1.10"},
		{"AC", "AC_COVERAGE", "1.00"},

		{"NNW", "NNW_COVERAGE", "1.00"},
	}

	doc := CatalogJSON{
		BasePremiums: map[string]string{"OC": "800", "AC": "1200", "NNW": "150"},
	}
	for _, r := range rows {
		doc.Entries = append(doc.Entries, EntryJSON{
			InsuranceType: r.t,
			RatingKey:     r.k,
			Multiplier:    r.m,
			ValidFrom:     "2024-01-01",
		})
	}

	raw, _ := json.Marshal(doc)
	return string(raw)
}

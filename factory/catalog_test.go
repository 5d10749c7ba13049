package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rating-engine/factory"
	"github.com/warp/rating-engine/rating"
	"github.com/warp/rating-engine/rating/store"
)

func TestParseCatalog(t *testing.T) {
	raw := `{
		"base_premiums": {"OC": "850"},
		"entries": [
			{"insurance_type": "OC", "rating_key": "VEHICLE_AGE_0_3", "multiplier": "0.90",
			 "valid_from": "2024-01-01", "valid_to": "2024-12-31"},
			{"insurance_type": "OC", "rating_key": "OC_COVERAGE", "multiplier": "1.00",
			 "valid_from": "2024-01-01"}
		]
	}`

	catalog, err := factory.ParseCatalog(raw)
	require.NoError(t, err)

	assert.True(t, catalog.BasePremiums[rating.TypeOC].Equal(rating.MustParseDecimal("850")))
	require.Len(t, catalog.Entries, 2)

	first := catalog.Entries[0]
	assert.Equal(t, rating.TypeOC, first.Type)
	assert.Equal(t, rating.RatingKey("VEHICLE_AGE_0_3"), first.Key)
	require.NotNil(t, first.ValidTo)
	assert.True(t, first.ValidTo.Equal(rating.NewDate(2024, time.December, 31)))

	assert.Nil(t, catalog.Entries[1].ValidTo, "omitted valid_to means open-ended")
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{`},
		{"unknown product", `{"base_premiums": {"XX": "100"}}`},
		{"negative base premium", `{"base_premiums": {"OC": "-1"}}`},
		{"bad multiplier", `{"entries": [{"insurance_type": "OC", "rating_key": "K",
			"multiplier": "abc", "valid_from": "2024-01-01"}]}`},
		{"bad date", `{"entries": [{"insurance_type": "OC", "rating_key": "K",
			"multiplier": "1.0", "valid_from": "01/01/2024"}]}`},
		{"zero multiplier", `{"entries": [{"insurance_type": "OC", "rating_key": "K",
			"multiplier": "0", "valid_from": "2024-01-01"}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := factory.ParseCatalog(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestCatalog_Calculator_OverlaysBasePremiums(t *testing.T) {
	catalog, err := factory.ParseCatalog(`{"base_premiums": {"OC": "850"}}`)
	require.NoError(t, err)

	calc := catalog.Calculator(rating.NewResolver(store.NewMemory()))

	// OC overridden, the rest keep their defaults.
	for typ, want := range map[rating.InsuranceType]string{
		rating.TypeOC:  "850",
		rating.TypeAC:  "1200",
		rating.TypeNNW: "150",
	} {
		base, ok := calc.BasePremium(typ)
		require.True(t, ok)
		assert.Equal(t, want, base.String(), "product %s", typ)
	}
}

func TestCatalog_Seed(t *testing.T) {
	catalog, err := factory.ParseCatalog(factory.DefaultCatalogJSON())
	require.NoError(t, err)

	s := store.NewMemory()
	n, err := catalog.Seed(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, len(catalog.Entries), n)
}

func TestCatalog_Seed_StopsOnOverlap(t *testing.T) {
	// The seed path goes through the guarded Add: a catalog carrying two
	// intersecting windows for one key fails instead of corrupting the table.
	raw := `{"entries": [
		{"insurance_type": "OC", "rating_key": "K", "multiplier": "0.90", "valid_from": "2024-01-01"},
		{"insurance_type": "OC", "rating_key": "K", "multiplier": "0.95", "valid_from": "2024-06-01"}
	]}`
	catalog, err := factory.ParseCatalog(raw)
	require.NoError(t, err)

	n, err := catalog.Seed(context.Background(), store.NewMemory())
	require.Error(t, err)
	assert.ErrorIs(t, err, rating.ErrOverlap)
	assert.Equal(t, 1, n, "entries before the conflict were inserted")
}

func TestDefaultCatalog_CoversEveryDimension(t *testing.T) {
	// GIVEN: the built-in demo tariff
	// THEN: every product quotes without missing-data errors for a
	// representative input
	catalog, err := factory.ParseCatalog(factory.DefaultCatalogJSON())
	require.NoError(t, err)

	s := store.NewMemory()
	_, err = catalog.Seed(context.Background(), s)
	require.NoError(t, err)

	calc := catalog.Calculator(rating.NewResolver(s))
	vehicle := rating.VehicleAttributes{ManufactureYear: 2022, EngineCapacityCC: 1600, PowerKW: 85}
	client := rating.ClientAttributes{BirthDate: rating.NewDate(1990, time.March, 1)}

	for _, typ := range rating.AllTypes() {
		breakdown, err := calc.Calculate(context.Background(), rating.Input{
			Type:    typ,
			AsOf:    rating.NewDate(2024, time.June, 15),
			Vehicle: vehicle,
			Client:  client,
		})
		require.NoError(t, err, "product %s", typ)
		assert.True(t, breakdown.FinalPremium.IsPositive())
	}
}

package rating_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rating-engine/rating"
	"github.com/warp/rating-engine/rating/store"
)

// seedOC populates every OC key a standard test vehicle resolves to:
// a 2022 car (age 2 in 2024), 1600cc, 85kW.
func seedOC(t *testing.T, s rating.EntryStore, from rating.Date) {
	t.Helper()
	ctx := context.Background()
	for key, mult := range map[string]string{
		"VEHICLE_AGE_0_3":  "0.90",
		"ENGINE_1400_1800": "1.00",
		"POWER_50_100":     "1.00",
		"OC_COVERAGE":      "1.00",
	} {
		_, err := s.Add(ctx, entry(rating.TypeOC, key, mult, from, nil))
		require.NoError(t, err)
	}
}

func testVehicle() rating.VehicleAttributes {
	return rating.VehicleAttributes{ManufactureYear: 2022, EngineCapacityCC: 1600, PowerKW: 85}
}

func TestCalculator_Calculate_OC(t *testing.T) {
	// GIVEN: OC base 800 and a single non-neutral factor 0.90
	// THEN: 800 * 0.90 = 720.00
	s := store.NewMemory()
	seedOC(t, s, date(2024, time.January, 1))
	calc := rating.NewCalculator(rating.NewResolver(s))

	breakdown, err := calc.Calculate(context.Background(), rating.Input{
		Type:    rating.TypeOC,
		AsOf:    date(2024, time.June, 15),
		Vehicle: testVehicle(),
	})
	require.NoError(t, err)

	assert.Equal(t, "720", breakdown.FinalPremium.String())
	assert.Equal(t, "800", breakdown.BasePremium.String())
	require.Len(t, breakdown.Factors, 4)

	mult, ok := breakdown.Factor("VEHICLE_AGE_0_3")
	require.True(t, ok)
	assert.True(t, mult.Equal(rating.MustParseDecimal("0.90")))
}

func TestCalculator_Calculate_DiscountSurcharge(t *testing.T) {
	s := store.NewMemory()
	seedOC(t, s, date(2024, time.January, 1))
	calc := rating.NewCalculator(rating.NewResolver(s))

	tests := []struct {
		name       string
		adjustment string
		want       string
	}{
		{"surcharge", "50", "770"},
		{"discount", "-100", "620"},
		{"none", "0", "720"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			breakdown, err := calc.Calculate(context.Background(), rating.Input{
				Type:              rating.TypeOC,
				AsOf:              date(2024, time.June, 15),
				Vehicle:           testVehicle(),
				DiscountSurcharge: rating.MustParseDecimal(tc.adjustment),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, breakdown.FinalPremium.String())
		})
	}
}

func TestCalculator_Calculate_RoundsOnceAtEnd(t *testing.T) {
	// GIVEN: NNW base 150 with factor 0.8883 (exact product 133.245)
	// THEN: a single final half-up rounding yields 133.25
	s := store.NewMemory()
	ctx := context.Background()
	_, err := s.Add(ctx, entry(rating.TypeNNW, "NNW_COVERAGE", "0.8883",
		date(2024, time.January, 1), nil))
	require.NoError(t, err)

	calc := rating.NewCalculator(rating.NewResolver(s))
	breakdown, err := calc.Calculate(ctx, rating.Input{
		Type: rating.TypeNNW,
		AsOf: date(2024, time.June, 15),
	})
	require.NoError(t, err)
	assert.Equal(t, "133.25", breakdown.FinalPremium.String())
}

func TestCalculator_Calculate_MissingKeys_AllReported(t *testing.T) {
	// GIVEN: an OC table missing two of the four required keys
	// THEN: the failure lists BOTH gaps so the table is fixed in one pass
	s := store.NewMemory()
	ctx := context.Background()
	for _, key := range []string{"VEHICLE_AGE_0_3", "POWER_50_100"} {
		_, err := s.Add(ctx, entry(rating.TypeOC, key, "1.00", date(2024, time.January, 1), nil))
		require.NoError(t, err)
	}

	calc := rating.NewCalculator(rating.NewResolver(s))
	_, err := calc.Calculate(ctx, rating.Input{
		Type:    rating.TypeOC,
		AsOf:    date(2024, time.June, 15),
		Vehicle: testVehicle(),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, rating.ErrCalculation)
	assert.True(t, rating.IsClientError(err))

	var calcErr *rating.CalculationError
	require.ErrorAs(t, err, &calcErr)
	assert.ElementsMatch(t,
		[]rating.RatingKey{"ENGINE_1400_1800", "OC_COVERAGE"},
		calcErr.MissingKeys)
}

func TestCalculator_Calculate_SingleMissingKey(t *testing.T) {
	// GIVEN: every OC key present except the coverage flag
	// THEN: exactly that key is reported
	s := store.NewMemory()
	ctx := context.Background()
	for _, key := range []string{"VEHICLE_AGE_0_3", "ENGINE_1400_1800", "POWER_50_100"} {
		_, err := s.Add(ctx, entry(rating.TypeOC, key, "1.00", date(2024, time.January, 1), nil))
		require.NoError(t, err)
	}

	calc := rating.NewCalculator(rating.NewResolver(s))
	_, err := calc.Calculate(ctx, rating.Input{
		Type:    rating.TypeOC,
		AsOf:    date(2024, time.June, 15),
		Vehicle: testVehicle(),
	})

	var calcErr *rating.CalculationError
	require.ErrorAs(t, err, &calcErr)
	assert.Equal(t, []rating.RatingKey{"OC_COVERAGE"}, calcErr.MissingKeys)
}

func TestCalculator_Calculate_RepeatableResult(t *testing.T) {
	// No rounding drift: identical inputs always produce the identical
	// final premium.
	s := store.NewMemory()
	seedOC(t, s, date(2024, time.January, 1))
	calc := rating.NewCalculator(rating.NewResolver(s))

	in := rating.Input{
		Type:              rating.TypeOC,
		AsOf:              date(2024, time.June, 15),
		Vehicle:           testVehicle(),
		DiscountSurcharge: rating.MustParseDecimal("13.37"),
	}

	first, err := calc.Calculate(context.Background(), in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := calc.Calculate(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, first.FinalPremium.Equal(again.FinalPremium))
	}
}

func TestCalculator_Calculate_EmptyTable_ReportsEveryKey(t *testing.T) {
	calc := rating.NewCalculator(rating.NewResolver(store.NewMemory()))
	_, err := calc.Calculate(context.Background(), rating.Input{
		Type:    rating.TypeOC,
		AsOf:    date(2024, time.June, 15),
		Vehicle: testVehicle(),
	})

	var calcErr *rating.CalculationError
	require.ErrorAs(t, err, &calcErr)
	assert.Len(t, calcErr.MissingKeys, 4, "every OC dimension is a gap")
}

func TestCalculator_Calculate_TemporalSensitivity(t *testing.T) {
	// GIVEN: the vehicle-age factor changes between tariff generations
	// THEN: the calculation date picks the generation, everything else equal
	s := store.NewMemory()
	ctx := context.Background()
	_, err := s.Add(ctx, entry(rating.TypeOC, "VEHICLE_AGE_0_3", "0.90",
		date(2024, time.January, 1), datePtr(2024, time.December, 31)))
	require.NoError(t, err)
	_, err = s.Add(ctx, entry(rating.TypeOC, "VEHICLE_AGE_0_3", "0.95",
		date(2025, time.January, 1), nil))
	require.NoError(t, err)
	for _, key := range []string{"ENGINE_1400_1800", "POWER_50_100", "OC_COVERAGE"} {
		_, err := s.Add(ctx, entry(rating.TypeOC, key, "1.00", date(2024, time.January, 1), nil))
		require.NoError(t, err)
	}

	calc := rating.NewCalculator(rating.NewResolver(s))

	in2024, err := calc.Calculate(ctx, rating.Input{
		Type: rating.TypeOC, AsOf: date(2024, time.June, 15), Vehicle: testVehicle(),
	})
	require.NoError(t, err)
	assert.Equal(t, "720", in2024.FinalPremium.String())

	in2025, err := calc.Calculate(ctx, rating.Input{
		Type: rating.TypeOC, AsOf: date(2025, time.June, 15), Vehicle: testVehicle(),
	})
	require.NoError(t, err)
	assert.Equal(t, "760", in2025.FinalPremium.String())
}

func TestCalculator_Calculate_UnknownProduct(t *testing.T) {
	calc := rating.NewCalculator(rating.NewResolver(store.NewMemory()))

	_, err := calc.Calculate(context.Background(), rating.Input{
		Type: rating.InsuranceType("TRAVEL"),
		AsOf: date(2024, time.June, 15),
	})
	assert.Error(t, err)
}

func TestCalculator_SetBasePremium(t *testing.T) {
	s := store.NewMemory()
	seedOC(t, s, date(2024, time.January, 1))
	calc := rating.NewCalculator(rating.NewResolver(s))

	calc.SetBasePremium(rating.TypeOC, decimal.NewFromInt(1000))

	base, ok := calc.BasePremium(rating.TypeOC)
	require.True(t, ok)
	assert.Equal(t, "1000", base.String())

	breakdown, err := calc.Calculate(context.Background(), rating.Input{
		Type:    rating.TypeOC,
		AsOf:    date(2024, time.June, 15),
		Vehicle: testVehicle(),
	})
	require.NoError(t, err)
	assert.Equal(t, "900", breakdown.FinalPremium.String())
}

func TestCalculator_SetBasePremium_ConcurrentWithCalculate(t *testing.T) {
	// GIVEN: quotes running while a catalog seed rewrites base premiums
	// THEN: no race; every result reflects one of the two tariffs
	s := store.NewMemory()
	seedOC(t, s, date(2024, time.January, 1))
	calc := rating.NewCalculator(rating.NewResolver(s))

	in := rating.Input{
		Type:    rating.TypeOC,
		AsOf:    date(2024, time.June, 15),
		Vehicle: testVehicle(),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			calc.SetBasePremium(rating.TypeOC, decimal.NewFromInt(int64(800+i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			breakdown, err := calc.Calculate(context.Background(), in)
			require.NoError(t, err)
			assert.True(t, breakdown.FinalPremium.IsPositive())
		}
	}()
	wg.Wait()
}

func TestDefaultBasePremiums(t *testing.T) {
	base := rating.DefaultBasePremiums()
	assert.Equal(t, "800", base[rating.TypeOC].String())
	assert.Equal(t, "1200", base[rating.TypeAC].String())
	assert.Equal(t, "150", base[rating.TypeNNW].String())
}

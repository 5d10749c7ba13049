package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rating-engine/policy"
	"github.com/warp/rating-engine/rating"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(y int, m time.Month, d int) rating.Date {
	return rating.NewDate(y, m, d)
}

func datePtr(y int, m time.Month, d int) *rating.Date {
	dt := date(y, m, d)
	return &dt
}

func entry(t rating.InsuranceType, key string, mult string, from rating.Date, to *rating.Date) rating.RatingEntry {
	return rating.RatingEntry{
		Type:       t,
		Key:        rating.RatingKey(key),
		Multiplier: rating.MustParseDecimal(mult),
		ValidFrom:  from,
		ValidTo:    to,
	}
}

func testBreakdown() rating.PremiumBreakdown {
	return rating.PremiumBreakdown{
		Type:        rating.TypeOC,
		AsOf:        date(2024, time.June, 1),
		BasePremium: rating.MustParseDecimal("800"),
		Factors: []rating.AppliedFactor{
			{Key: "VEHICLE_AGE_0_3", Multiplier: rating.MustParseDecimal("0.90")},
			{Key: "OC_COVERAGE", Multiplier: rating.MustParseDecimal("1.00")},
		},
		DiscountSurcharge: rating.MustParseDecimal("0"),
		FinalPremium:      rating.MustParseDecimal("720.00"),
	}
}

func testPolicy(t *testing.T, number string) *policy.Policy {
	t.Helper()
	p := &policy.Policy{
		Number:            number,
		Type:              rating.TypeOC,
		IssueDate:         date(2024, time.May, 20),
		StartDate:         date(2024, time.June, 1),
		EndDate:           date(2025, time.May, 31),
		Premium:           rating.MustParseDecimal("720.00"),
		DiscountSurcharge: rating.MustParseDecimal("0"),
		ClientID:          "C-1",
		VehicleID:         "V-1",
	}
	require.NoError(t, p.Restore(policy.StatusActive))
	return p
}

// =============================================================================
// RATING ENTRIES
// =============================================================================

func TestStore_Add_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.Add(ctx, entry(rating.TypeOC, "VEHICLE_AGE_0_3", "0.90",
		date(2024, time.January, 1), datePtr(2024, time.December, 31)))
	require.NoError(t, err)
	assert.NotZero(t, added.ID)

	found, err := s.FindValid(ctx, rating.TypeOC, "VEHICLE_AGE_0_3", date(2024, time.June, 15))
	require.NoError(t, err)
	require.Len(t, found, 1)

	got := found[0]
	assert.Equal(t, added.ID, got.ID)
	assert.Equal(t, rating.TypeOC, got.Type)
	assert.Equal(t, rating.RatingKey("VEHICLE_AGE_0_3"), got.Key)
	assert.True(t, got.Multiplier.Equal(rating.MustParseDecimal("0.90")))
	assert.True(t, got.ValidFrom.Equal(date(2024, time.January, 1)))
	require.NotNil(t, got.ValidTo)
	assert.True(t, got.ValidTo.Equal(date(2024, time.December, 31)))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_Add_OpenEnded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, entry(rating.TypeAC, "AC_COVERAGE", "1.00",
		date(2024, time.January, 1), nil))
	require.NoError(t, err)

	// An open window matches arbitrarily far in the future.
	found, err := s.FindValid(ctx, rating.TypeAC, "AC_COVERAGE", date(2099, time.December, 31))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Nil(t, found[0].ValidTo)
}

func TestStore_Add_Overlap_Rejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	existing, err := s.Add(ctx, entry(rating.TypeOC, "K", "0.90",
		date(2024, time.January, 1), nil))
	require.NoError(t, err)

	_, err = s.Add(ctx, entry(rating.TypeOC, "K", "0.95",
		date(2024, time.June, 1), datePtr(2024, time.June, 30)))

	require.Error(t, err)
	var overlap *rating.OverlapError
	require.ErrorAs(t, err, &overlap)
	require.Len(t, overlap.Conflicts, 1)
	assert.Equal(t, existing.ID, overlap.Conflicts[0].ID)

	// The failed write left nothing behind.
	all, err := s.FindAllValid(ctx, rating.TypeOC, date(2024, time.June, 15))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_Add_TouchingBoundary_Rejected(t *testing.T) {
	// Inclusive bounds: a window starting on the day another ends overlaps.
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, entry(rating.TypeOC, "K", "0.90",
		date(2024, time.January, 1), datePtr(2024, time.June, 30)))
	require.NoError(t, err)

	_, err = s.Add(ctx, entry(rating.TypeOC, "K", "0.95",
		date(2024, time.June, 30), nil))
	assert.ErrorIs(t, err, rating.ErrOverlap)

	_, err = s.Add(ctx, entry(rating.TypeOC, "K", "0.95",
		date(2024, time.July, 1), nil))
	assert.NoError(t, err, "starting the day after the close is legal")
}

func TestStore_Add_Invalid_Rejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, entry(rating.TypeOC, "K", "0",
		date(2024, time.January, 1), nil))
	assert.Error(t, err, "non-positive multiplier")

	_, err = s.Add(ctx, entry(rating.TypeOC, "K", "1.00",
		date(2024, time.June, 1), datePtr(2024, time.January, 1)))
	assert.Error(t, err, "inverted interval")
}

func TestStore_Correct(t *testing.T) {
	// GIVEN: an open 0.90 entry from 2024-01-01
	// WHEN: closing it at 2024-06-30 with an 0.85 replacement from 07-01
	// THEN: each date resolves to exactly one generation
	s := newTestStore(t)
	ctx := context.Background()

	old, err := s.Add(ctx, entry(rating.TypeOC, "K", "0.90",
		date(2024, time.January, 1), nil))
	require.NoError(t, err)

	replacement, err := s.Correct(ctx, old.ID, date(2024, time.June, 30),
		entry(rating.TypeOC, "K", "0.85", date(2024, time.July, 1), nil))
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, replacement.ID)

	before, err := s.FindValid(ctx, rating.TypeOC, "K", date(2024, time.June, 30))
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.True(t, before[0].Multiplier.Equal(rating.MustParseDecimal("0.90")))
	require.NotNil(t, before[0].ValidTo)
	assert.True(t, before[0].ValidTo.Equal(date(2024, time.June, 30)))

	after, err := s.FindValid(ctx, rating.TypeOC, "K", date(2024, time.July, 1))
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.True(t, after[0].Multiplier.Equal(rating.MustParseDecimal("0.85")))
}

func TestStore_Correct_ConflictingReplacement_RollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old, err := s.Add(ctx, entry(rating.TypeOC, "K", "0.90",
		date(2024, time.January, 1), datePtr(2024, time.June, 30)))
	require.NoError(t, err)
	_, err = s.Add(ctx, entry(rating.TypeOC, "K", "1.10",
		date(2024, time.July, 1), nil))
	require.NoError(t, err)

	_, err = s.Correct(ctx, old.ID, date(2024, time.March, 31),
		entry(rating.TypeOC, "K", "0.80", date(2024, time.April, 1), nil))
	require.ErrorIs(t, err, rating.ErrOverlap)

	// The transaction rolled back: the old window is unchanged.
	matches, err := s.FindValid(ctx, rating.TypeOC, "K", date(2024, time.May, 1))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NotNil(t, matches[0].ValidTo)
	assert.True(t, matches[0].ValidTo.Equal(date(2024, time.June, 30)))
}

func TestStore_Correct_UnknownID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Correct(context.Background(), 999, date(2024, time.June, 30),
		entry(rating.TypeOC, "K", "0.85", date(2024, time.July, 1), nil))
	assert.ErrorIs(t, err, rating.ErrEntryNotFound)
}

func TestStore_Delete_FutureOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	today := date(2024, time.June, 15)

	inForce, err := s.Add(ctx, entry(rating.TypeOC, "K", "0.90",
		date(2024, time.January, 1), nil))
	require.NoError(t, err)
	future, err := s.Add(ctx, entry(rating.TypeAC, "K", "0.95",
		date(2025, time.January, 1), nil))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, inForce.ID, today), rating.ErrEntryNotFuture)
	assert.NoError(t, s.Delete(ctx, future.ID, today))
	assert.ErrorIs(t, s.Delete(ctx, future.ID, today), rating.ErrEntryNotFound)
}

func TestStore_FindExpiredAndFuture(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	today := date(2024, time.June, 15)

	_, err := s.Add(ctx, entry(rating.TypeOC, "K", "0.90",
		date(2023, time.January, 1), datePtr(2023, time.December, 31)))
	require.NoError(t, err)
	_, err = s.Add(ctx, entry(rating.TypeOC, "K", "1.00",
		date(2024, time.January, 1), datePtr(2024, time.December, 31)))
	require.NoError(t, err)
	_, err = s.Add(ctx, entry(rating.TypeOC, "K", "1.10",
		date(2025, time.January, 1), nil))
	require.NoError(t, err)

	expired, err := s.FindExpired(ctx, today)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.True(t, expired[0].Multiplier.Equal(rating.MustParseDecimal("0.90")))

	future, err := s.FindFutureEffective(ctx, today)
	require.NoError(t, err)
	require.Len(t, future, 1)
	assert.True(t, future[0].Multiplier.Equal(rating.MustParseDecimal("1.10")))
}

func TestStore_Persistence_AcrossReopen(t *testing.T) {
	// Data written by one store instance is visible to a fresh one over
	// the same file.
	dir := t.TempDir()
	path := dir + "/persist.db"

	s1, err := New(path)
	require.NoError(t, err)
	_, err = s1.Add(context.Background(), entry(rating.TypeOC, "K", "0.90",
		date(2024, time.January, 1), nil))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := New(path)
	require.NoError(t, err)
	defer s2.Close()

	found, err := s2.FindValid(context.Background(), rating.TypeOC, "K", date(2024, time.June, 1))
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

// =============================================================================
// POLICIES
// =============================================================================

func TestStore_Policy_CreateAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testPolicy(t, "POL-001")
	require.NoError(t, s.Create(ctx, p, testBreakdown()))
	assert.Equal(t, 1, p.Version)

	loaded, err := s.Load(ctx, "POL-001")
	require.NoError(t, err)
	assert.Equal(t, "POL-001", loaded.Number)
	assert.Equal(t, rating.TypeOC, loaded.Type)
	assert.True(t, loaded.Premium.Equal(rating.MustParseDecimal("720.00")))
	assert.Equal(t, policy.StatusActive, loaded.StoredStatus())
	assert.Equal(t, 1, loaded.Version)
	assert.True(t, loaded.StartDate.Equal(date(2024, time.June, 1)))
}

func TestStore_Policy_DuplicateNumber(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testPolicy(t, "POL-DUP"), testBreakdown()))
	err := s.Create(ctx, testPolicy(t, "POL-DUP"), testBreakdown())
	assert.ErrorIs(t, err, policy.ErrPolicyExists)
}

func TestStore_Policy_LoadUnknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "NOPE")
	assert.ErrorIs(t, err, policy.ErrPolicyNotFound)
}

func TestStore_Policy_Save_BumpsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testPolicy(t, "POL-V")
	require.NoError(t, s.Create(ctx, p, testBreakdown()))

	p.EndDate = date(2025, time.June, 30)
	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, 2, p.Version)

	loaded, err := s.Load(ctx, "POL-V")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)
	assert.True(t, loaded.EndDate.Equal(date(2025, time.June, 30)))
}

func TestStore_Policy_Save_VersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testPolicy(t, "POL-V2"), testBreakdown()))

	first, err := s.Load(ctx, "POL-V2")
	require.NoError(t, err)
	second, err := s.Load(ctx, "POL-V2")
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, first))
	assert.ErrorIs(t, s.Save(ctx, second), policy.ErrVersionConflict)
}

func TestStore_Policy_Save_Unknown(t *testing.T) {
	s := newTestStore(t)
	err := s.Save(context.Background(), testPolicy(t, "GHOST"))
	assert.ErrorIs(t, err, policy.ErrPolicyNotFound)
}

func TestStore_Policy_StatusRoundTrip(t *testing.T) {
	// A canceled policy survives storage as CANCELED; EXPIRED never hits
	// the database (the CHECK constraint would reject it anyway).
	s := newTestStore(t)
	ctx := context.Background()

	p := testPolicy(t, "POL-S")
	require.NoError(t, s.Create(ctx, p, testBreakdown()))

	require.NoError(t, p.Restore(policy.StatusCanceled))
	require.NoError(t, s.Save(ctx, p))

	loaded, err := s.Load(ctx, "POL-S")
	require.NoError(t, err)
	assert.Equal(t, policy.StatusCanceled, loaded.StoredStatus())
	assert.Equal(t, policy.StatusCanceled, loaded.StatusOn(date(2026, time.January, 1)))
}

func TestStore_Breakdown_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testPolicy(t, "POL-B"), testBreakdown()))

	b, err := s.LoadBreakdown(ctx, "POL-B")
	require.NoError(t, err)
	assert.Equal(t, rating.TypeOC, b.Type)
	assert.True(t, b.AsOf.Equal(date(2024, time.June, 1)))
	assert.True(t, b.BasePremium.Equal(rating.MustParseDecimal("800")))
	assert.True(t, b.FinalPremium.Equal(rating.MustParseDecimal("720.00")))
	require.Len(t, b.Factors, 2)

	mult, ok := b.Factor("VEHICLE_AGE_0_3")
	require.True(t, ok)
	assert.True(t, mult.Equal(rating.MustParseDecimal("0.90")))
}

func TestStore_Breakdown_Unknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadBreakdown(context.Background(), "NOPE")
	assert.ErrorIs(t, err, policy.ErrPolicyNotFound)
}

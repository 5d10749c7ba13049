/*
entry.go - Rating entries and the table store interface

PURPOSE:
  Defines RatingEntry (one versioned multiplicative factor) and EntryStore,
  the persistence interface for the rating table. The store's write path
  owns the no-overlap invariant: for a fixed (type, key) no two entries may
  have intersecting validity windows.

INTERVAL SEMANTICS:
  Both bounds are inclusive. A nil ValidTo means open-ended. An entry with
  ValidFrom == ValidTo is a legal single-day window. Two intervals overlap
  iff a.From <= (b.To or +inf) AND b.From <= (a.To or +inf).

CORRECTION FLOW:
  Entries are never mutated in place. A correction closes the old entry's
  interval and inserts a replacement atomically (Correct). Deletion is
  permitted only for entries whose window lies entirely in the future.

CONCURRENCY CONTRACT:
  Add/Correct/Delete must serialize the overlap check with the write so two
  concurrent writers for the same (type, key) cannot both pass the check
  against a stale view. Read operations take no locks beyond what the
  implementation needs for memory safety.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: durable store, check-then-insert inside one
    database transaction under a write lock
  - rating/store/memory.go: in-memory store for tests and dev

SEE ALSO:
  - resolver.go: read-side consumer of FindValid
  - errors.go: OverlapError and maintenance errors
*/
package rating

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EntryID identifies a stored rating entry.
type EntryID int64

// RatingEntry is one (type, key, multiplier, validity interval) record.
type RatingEntry struct {
	ID         EntryID
	Type       InsuranceType
	Key        RatingKey
	Multiplier decimal.Decimal
	ValidFrom  Date
	ValidTo    *Date // nil = valid indefinitely from ValidFrom
	CreatedAt  time.Time
}

// Contains reports whether the entry's validity window covers day d.
// Bounds are inclusive on both ends.
func (e RatingEntry) Contains(d Date) bool {
	if d.Before(e.ValidFrom) {
		return false
	}
	return e.ValidTo == nil || d.BeforeOrEqual(*e.ValidTo)
}

// Overlaps reports whether the entry's window intersects [from, to],
// treating a nil "to" (and a nil e.ValidTo) as +infinity.
func (e RatingEntry) Overlaps(from Date, to *Date) bool {
	if to != nil && to.Before(e.ValidFrom) {
		return false
	}
	if e.ValidTo != nil && e.ValidTo.Before(from) {
		return false
	}
	return true
}

// Expired reports whether the window ended strictly before asOf.
func (e RatingEntry) Expired(asOf Date) bool {
	return e.ValidTo != nil && e.ValidTo.Before(asOf)
}

// FutureEffective reports whether the window starts strictly after asOf.
func (e RatingEntry) FutureEffective(asOf Date) bool {
	return e.ValidFrom.After(asOf)
}

// Validate checks structural invariants of a candidate entry before it
// reaches a store: positive multiplier, ordered interval.
func (e RatingEntry) Validate() error {
	if _, err := ParseInsuranceType(string(e.Type)); err != nil {
		return err
	}
	if e.Key == "" {
		return errEmptyKey
	}
	if !e.Multiplier.IsPositive() {
		return errNonPositiveMultiplier
	}
	if e.ValidFrom.IsZero() {
		return errMissingValidFrom
	}
	if e.ValidTo != nil && e.ValidTo.Before(e.ValidFrom) {
		return errInvertedInterval
	}
	return nil
}

// Structural validation failures for candidate entries. These are caller
// input errors, distinct from the invariant errors in errors.go.
var (
	errEmptyKey              = &entryValidationError{"rating key must not be empty"}
	errNonPositiveMultiplier = &entryValidationError{"multiplier must be positive"}
	errMissingValidFrom      = &entryValidationError{"valid_from is mandatory"}
	errInvertedInterval      = &entryValidationError{"valid_to before valid_from"}
)

type entryValidationError struct{ msg string }

func (e *entryValidationError) Error() string { return "invalid rating entry: " + e.msg }

// =============================================================================
// ENTRY STORE - Persistence interface for the rating table
// =============================================================================

// EntryStore is the durable rating table.
//
// The write path (Add, Correct, Delete) owns the no-overlap invariant and
// must execute check-then-write atomically per (type, key). Reads are
// lock-free from the caller's perspective and may run with unlimited
// concurrency.
type EntryStore interface {
	// Add persists a new entry, assigning its identity. Returns
	// *OverlapError if the candidate window intersects any existing entry
	// for the same (type, key).
	Add(ctx context.Context, entry RatingEntry) (RatingEntry, error)

	// Correct atomically closes an existing entry at closeTo (inclusive)
	// and inserts replacement. The overlap check for the replacement sees
	// the closed view of the old entry, so a replacement starting the day
	// after closeTo is legal. Returns ErrEntryNotFound or ErrEntryClosed
	// for a bad target, *OverlapError if the replacement conflicts.
	Correct(ctx context.Context, id EntryID, closeTo Date, replacement RatingEntry) (RatingEntry, error)

	// Delete removes an entry whose window lies entirely after asOf.
	// Returns ErrEntryNotFuture otherwise: historical entries back
	// premium audits and may only be closed.
	Delete(ctx context.Context, id EntryID, asOf Date) error

	// FindValid returns the entries for (t, key) whose window contains
	// asOf. When the overlap invariant holds this is zero or one entry;
	// the resolver treats more than one as an internal fault.
	FindValid(ctx context.Context, t InsuranceType, key RatingKey, asOf Date) ([]RatingEntry, error)

	// FindAllValid returns every entry for product t valid on asOf,
	// one per distinct key when the invariant holds.
	FindAllValid(ctx context.Context, t InsuranceType, asOf Date) ([]RatingEntry, error)

	// FindOverlapping returns existing (t, key) entries intersecting the
	// candidate interval. Diagnostic pre-validation for admin tooling;
	// Add performs its own atomic check regardless.
	FindOverlapping(ctx context.Context, t InsuranceType, key RatingKey, from Date, to *Date) ([]RatingEntry, error)

	// FindExpired returns entries whose window ended strictly before asOf.
	FindExpired(ctx context.Context, asOf Date) ([]RatingEntry, error)

	// FindFutureEffective returns entries whose window starts strictly
	// after asOf.
	FindFutureEffective(ctx context.Context, asOf Date) ([]RatingEntry, error)
}

// Package store provides EntryStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/rating-engine/rating"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds the rating table in process memory. The single write lock
// serializes check-then-insert, which satisfies the overlap invariant's
// atomicity requirement (coarser than per-(type,key), but correct).
type Memory struct {
	mu      sync.RWMutex
	entries map[tableKey][]rating.RatingEntry
	nextID  rating.EntryID
}

type tableKey struct {
	Type rating.InsuranceType
	Key  rating.RatingKey
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[tableKey][]rating.RatingEntry), nextID: 1}
}

// Add persists a new entry after the atomic overlap check.
func (m *Memory) Add(_ context.Context, entry rating.RatingEntry) (rating.RatingEntry, error) {
	if err := entry.Validate(); err != nil {
		return rating.RatingEntry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(entry)
}

func (m *Memory) addLocked(entry rating.RatingEntry) (rating.RatingEntry, error) {
	k := tableKey{Type: entry.Type, Key: entry.Key}

	var conflicts []rating.RatingEntry
	for _, existing := range m.entries[k] {
		if existing.Overlaps(entry.ValidFrom, entry.ValidTo) {
			conflicts = append(conflicts, existing)
		}
	}
	if len(conflicts) > 0 {
		return rating.RatingEntry{}, &rating.OverlapError{
			Type:      entry.Type,
			Key:       entry.Key,
			From:      entry.ValidFrom,
			To:        entry.ValidTo,
			Conflicts: conflicts,
		}
	}

	entry.ID = m.nextID
	m.nextID++
	entry.CreatedAt = time.Now().UTC()

	rows := append(m.entries[k], entry)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ValidFrom.Before(rows[j].ValidFrom) })
	m.entries[k] = rows
	return entry, nil
}

// Correct closes an entry at closeTo and inserts its replacement under the
// same lock, so the replacement's overlap check sees the closed view.
func (m *Memory) Correct(_ context.Context, id rating.EntryID, closeTo rating.Date, replacement rating.RatingEntry) (rating.RatingEntry, error) {
	if err := replacement.Validate(); err != nil {
		return rating.RatingEntry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k, idx, found := m.locate(id)
	if !found {
		return rating.RatingEntry{}, rating.ErrEntryNotFound
	}
	old := m.entries[k][idx]
	if closeTo.Before(old.ValidFrom) {
		return rating.RatingEntry{}, rating.ErrEntryClosed
	}
	if old.ValidTo != nil && old.ValidTo.Before(closeTo) {
		return rating.RatingEntry{}, rating.ErrEntryClosed
	}

	closed := old
	closedTo := closeTo
	closed.ValidTo = &closedTo
	m.entries[k][idx] = closed

	added, err := m.addLocked(replacement)
	if err != nil {
		// Roll the close back; Correct is all-or-nothing.
		m.entries[k][idx] = old
		return rating.RatingEntry{}, err
	}
	return added, nil
}

// Delete removes a future-only entry.
func (m *Memory) Delete(_ context.Context, id rating.EntryID, asOf rating.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, idx, found := m.locate(id)
	if !found {
		return rating.ErrEntryNotFound
	}
	if !m.entries[k][idx].FutureEffective(asOf) {
		return rating.ErrEntryNotFuture
	}
	m.entries[k] = append(m.entries[k][:idx], m.entries[k][idx+1:]...)
	return nil
}

func (m *Memory) locate(id rating.EntryID) (tableKey, int, bool) {
	for k, rows := range m.entries {
		for i, e := range rows {
			if e.ID == id {
				return k, i, true
			}
		}
	}
	return tableKey{}, 0, false
}

// =============================================================================
// READ PATH
// =============================================================================

func (m *Memory) FindValid(_ context.Context, t rating.InsuranceType, key rating.RatingKey, asOf rating.Date) ([]rating.RatingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []rating.RatingEntry
	for _, e := range m.entries[tableKey{Type: t, Key: key}] {
		if e.Contains(asOf) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) FindAllValid(_ context.Context, t rating.InsuranceType, asOf rating.Date) ([]rating.RatingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []rating.RatingEntry
	for k, rows := range m.entries {
		if k.Type != t {
			continue
		}
		for _, e := range rows {
			if e.Contains(asOf) {
				result = append(result, e)
			}
		}
	}
	sortByKeyThenFrom(result)
	return result, nil
}

func (m *Memory) FindOverlapping(_ context.Context, t rating.InsuranceType, key rating.RatingKey, from rating.Date, to *rating.Date) ([]rating.RatingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []rating.RatingEntry
	for _, e := range m.entries[tableKey{Type: t, Key: key}] {
		if e.Overlaps(from, to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) FindExpired(_ context.Context, asOf rating.Date) ([]rating.RatingEntry, error) {
	return m.filterAll(func(e rating.RatingEntry) bool { return e.Expired(asOf) }), nil
}

func (m *Memory) FindFutureEffective(_ context.Context, asOf rating.Date) ([]rating.RatingEntry, error) {
	return m.filterAll(func(e rating.RatingEntry) bool { return e.FutureEffective(asOf) }), nil
}

func (m *Memory) filterAll(keep func(rating.RatingEntry) bool) []rating.RatingEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []rating.RatingEntry
	for _, rows := range m.entries {
		for _, e := range rows {
			if keep(e) {
				result = append(result, e)
			}
		}
	}
	sortByKeyThenFrom(result)
	return result
}

func sortByKeyThenFrom(entries []rating.RatingEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type < entries[j].Type
		}
		if entries[i].Key != entries[j].Key {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].ValidFrom.Before(entries[j].ValidFrom)
	})
}

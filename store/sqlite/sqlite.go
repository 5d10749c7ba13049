/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements rating.EntryStore and policy.Store using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences
  (an exclusion constraint over the validity range would replace the locked
  check-then-insert).

INTERFACES IMPLEMENTED:
  rating.EntryStore: rating-table persistence and validity queries
  policy.Store:      policy rows with optimistic versioning + breakdowns

OVERLAP INVARIANT:
  Add and Correct run their overlap check and the insert inside a single
  database transaction, under the store's write lock. Two concurrent
  writers for the same (type, key) cannot both pass the check against a
  stale pre-insert view and then both commit.

KEY TABLES:
  rating_entries:     versioned factors with [valid_from, valid_to] windows
  policies:           policy rows with a version column (optimistic locking)
  premium_breakdowns: issuance breakdowns, retained indefinitely for audit

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): multiple readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/rating.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - rating/entry.go: EntryStore contract
  - policy/types.go: policy Store contract
  - rating/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/rating-engine/policy"
	"github.com/warp/rating-engine/rating"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database, so pin the pool to a single connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Rating entries (versioned multiplicative factors)
	CREATE TABLE IF NOT EXISTS rating_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		insurance_type TEXT NOT NULL,
		rating_key TEXT NOT NULL,
		multiplier TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_to TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: validity lookups for one (type, key) on a date
	CREATE INDEX IF NOT EXISTS idx_rating_entries_validity
		ON rating_entries(insurance_type, rating_key, valid_from);

	-- Diagnostic queries over closed windows
	CREATE INDEX IF NOT EXISTS idx_rating_entries_valid_to
		ON rating_entries(valid_to) WHERE valid_to IS NOT NULL;

	-- Policies (status stores ACTIVE/CANCELED only; EXPIRED is derived on read)
	CREATE TABLE IF NOT EXISTS policies (
		number TEXT PRIMARY KEY,
		insurance_type TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		premium TEXT NOT NULL,
		discount_surcharge TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'CANCELED')),
		client_id TEXT NOT NULL,
		vehicle_id TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_status
		ON policies(status);
	CREATE INDEX IF NOT EXISTS idx_policies_end_date
		ON policies(end_date);

	-- Premium breakdowns (append-once, retained indefinitely for audit)
	CREATE TABLE IF NOT EXISTS premium_breakdowns (
		policy_number TEXT PRIMARY KEY REFERENCES policies(number),
		breakdown_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RATING ENTRY STORE (rating.EntryStore interface)
// =============================================================================

// Add persists a new entry. Overlap check and insert run in one database
// transaction under the write lock.
func (s *Store) Add(ctx context.Context, entry rating.RatingEntry) (rating.RatingEntry, error) {
	if err := entry.Validate(); err != nil {
		return rating.RatingEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added rating.RatingEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		added, err = s.addInTx(ctx, tx, entry)
		return err
	})
	return added, err
}

func (s *Store) addInTx(ctx context.Context, tx *sql.Tx, entry rating.RatingEntry) (rating.RatingEntry, error) {
	conflicts, err := s.overlapping(ctx, tx, entry.Type, entry.Key, entry.ValidFrom, entry.ValidTo)
	if err != nil {
		return rating.RatingEntry{}, err
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

	entry.CreatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO rating_entries
		(insurance_type, rating_key, multiplier, valid_from, valid_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Type,
		entry.Key,
		entry.Multiplier.String(),
		entry.ValidFrom.String(),
		nullDate(entry.ValidTo),
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return rating.RatingEntry{}, fmt.Errorf("failed to insert rating entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return rating.RatingEntry{}, err
	}
	entry.ID = rating.EntryID(id)
	return entry, nil
}

// Correct closes the old entry and inserts the replacement in the same
// transaction, so the replacement's overlap check sees the closed window.
func (s *Store) Correct(ctx context.Context, id rating.EntryID, closeTo rating.Date, replacement rating.RatingEntry) (rating.RatingEntry, error) {
	if err := replacement.Validate(); err != nil {
		return rating.RatingEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added rating.RatingEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := s.entryByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if closeTo.Before(old.ValidFrom) {
			return rating.ErrEntryClosed
		}
		if old.ValidTo != nil && old.ValidTo.Before(closeTo) {
			return rating.ErrEntryClosed
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE rating_entries SET valid_to = ? WHERE id = ?`,
			closeTo.String(), int64(id),
		); err != nil {
			return fmt.Errorf("failed to close rating entry: %w", err)
		}

		added, err = s.addInTx(ctx, tx, replacement)
		return err
	})
	return added, err
}

// Delete removes a future-only entry.
func (s *Store) Delete(ctx context.Context, id rating.EntryID, asOf rating.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := s.entryByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !entry.FutureEffective(asOf) {
			return rating.ErrEntryNotFuture
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM rating_entries WHERE id = ?`, int64(id))
		return err
	})
}

func (s *Store) entryByID(ctx context.Context, tx *sql.Tx, id rating.EntryID) (rating.RatingEntry, error) {
	row := tx.QueryRowContext(ctx, selectEntries+` WHERE id = ?`, int64(id))
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return rating.RatingEntry{}, rating.ErrEntryNotFound
	}
	return entry, err
}

// FindValid returns entries for (t, key) whose window contains asOf.
func (s *Store) FindValid(ctx context.Context, t rating.InsuranceType, key rating.RatingKey, asOf rating.Date) ([]rating.RatingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectEntries + `
		WHERE insurance_type = ? AND rating_key = ?
		  AND valid_from <= ?
		  AND (valid_to IS NULL OR valid_to >= ?)
		ORDER BY valid_from ASC`
	return s.queryEntries(ctx, s.db, query, t, key, asOf.String(), asOf.String())
}

// FindAllValid returns every entry for product t valid on asOf.
func (s *Store) FindAllValid(ctx context.Context, t rating.InsuranceType, asOf rating.Date) ([]rating.RatingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectEntries + `
		WHERE insurance_type = ?
		  AND valid_from <= ?
		  AND (valid_to IS NULL OR valid_to >= ?)
		ORDER BY rating_key ASC, valid_from ASC`
	return s.queryEntries(ctx, s.db, query, t, asOf.String(), asOf.String())
}

// FindOverlapping returns entries for (t, key) intersecting [from, to].
func (s *Store) FindOverlapping(ctx context.Context, t rating.InsuranceType, key rating.RatingKey, from rating.Date, to *rating.Date) ([]rating.RatingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.overlapping(ctx, s.db, t, key, from, to)
}

// overlapping runs the interval intersection query. The test mirrors
// rating.RatingEntry.Overlaps: dates are ISO strings, so lexicographic
// comparison in SQL matches chronological comparison in Go.
func (s *Store) overlapping(ctx context.Context, q queryer, t rating.InsuranceType, key rating.RatingKey, from rating.Date, to *rating.Date) ([]rating.RatingEntry, error) {
	query := selectEntries + `
		WHERE insurance_type = ? AND rating_key = ?
		  AND (valid_to IS NULL OR valid_to >= ?)
		  AND (? IS NULL OR valid_from <= ?)
		ORDER BY valid_from ASC`
	return s.queryEntries(ctx, q, query, t, key, from.String(), nullDate(to), nullDate(to))
}

// FindExpired returns entries whose window ended strictly before asOf.
func (s *Store) FindExpired(ctx context.Context, asOf rating.Date) ([]rating.RatingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectEntries + `
		WHERE valid_to IS NOT NULL AND valid_to < ?
		ORDER BY insurance_type ASC, rating_key ASC, valid_from ASC`
	return s.queryEntries(ctx, s.db, query, asOf.String())
}

// FindFutureEffective returns entries whose window starts strictly after asOf.
func (s *Store) FindFutureEffective(ctx context.Context, asOf rating.Date) ([]rating.RatingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectEntries + `
		WHERE valid_from > ?
		ORDER BY insurance_type ASC, rating_key ASC, valid_from ASC`
	return s.queryEntries(ctx, s.db, query, asOf.String())
}

const selectEntries = `
	SELECT id, insurance_type, rating_key, multiplier, valid_from, valid_to, created_at
	FROM rating_entries`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) queryEntries(ctx context.Context, q queryer, query string, args ...any) ([]rating.RatingEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating entries: %w", err)
	}
	defer rows.Close()

	var entries []rating.RatingEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (rating.RatingEntry, error) {
	var (
		entry      rating.RatingEntry
		id         int64
		multiplier string
		validFrom  string
		validTo    sql.NullString
		createdAt  string
	)

	err := row.Scan(&id, &entry.Type, &entry.Key, &multiplier, &validFrom, &validTo, &createdAt)
	if err != nil {
		return entry, err
	}

	entry.ID = rating.EntryID(id)
	entry.Multiplier, err = decimal.NewFromString(multiplier)
	if err != nil {
		return entry, fmt.Errorf("failed to parse multiplier %q: %w", multiplier, err)
	}
	entry.ValidFrom, err = rating.ParseDate(validFrom)
	if err != nil {
		return entry, err
	}
	if validTo.Valid {
		to, err := rating.ParseDate(validTo.String)
		if err != nil {
			return entry, err
		}
		entry.ValidTo = &to
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return entry, nil
}

// =============================================================================
// POLICY STORE (policy.Store interface)
// =============================================================================

// Create persists a new policy together with its breakdown, atomically.
func (s *Store) Create(ctx context.Context, p *policy.Policy, breakdown rating.PremiumBreakdown) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	breakdownJSON, err := marshalBreakdown(breakdown)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO policies
			(number, insurance_type, issue_date, start_date, end_date, premium,
			 discount_surcharge, status, client_id, vehicle_id, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			p.Number,
			p.Type,
			p.IssueDate.String(),
			p.StartDate.String(),
			p.EndDate.String(),
			p.Premium.String(),
			p.DiscountSurcharge.String(),
			string(p.StoredStatus()),
			p.ClientID,
			p.VehicleID,
			now.Format(time.RFC3339),
			now.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return policy.ErrPolicyExists
			}
			return fmt.Errorf("failed to insert policy: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO premium_breakdowns (policy_number, breakdown_json, created_at)
			VALUES (?, ?, ?)`,
			p.Number, breakdownJSON, now.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("failed to insert breakdown: %w", err)
		}

		p.Version = 1
		p.CreatedAt = now
		p.UpdatedAt = now
		return nil
	})
}

// Save applies a mutation under the compare-and-bump version rule.
func (s *Store) Save(ctx context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE policies
		SET start_date = ?, end_date = ?, status = ?, version = version + 1, updated_at = ?
		WHERE number = ? AND version = ?`,
		p.StartDate.String(),
		p.EndDate.String(),
		string(p.StoredStatus()),
		now.Format(time.RFC3339),
		p.Number,
		p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the number is unknown or another writer bumped the
		// version first. Distinguish for the caller.
		var count int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM policies WHERE number = ?", p.Number,
		).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return policy.ErrPolicyNotFound
		}
		return policy.ErrVersionConflict
	}

	p.Version++
	p.UpdatedAt = now
	return nil
}

// Load returns a policy by number.
func (s *Store) Load(ctx context.Context, number string) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT number, insurance_type, issue_date, start_date, end_date, premium,
		       discount_surcharge, status, client_id, vehicle_id, version, created_at, updated_at
		FROM policies WHERE number = ?`, number)

	var (
		p                             policy.Policy
		issueDate, startDate, endDate string
		premium, discount             string
		status                        string
		createdAt, updatedAt          string
	)
	err := row.Scan(&p.Number, &p.Type, &issueDate, &startDate, &endDate, &premium,
		&discount, &status, &p.ClientID, &p.VehicleID, &p.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, policy.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}

	if p.IssueDate, err = rating.ParseDate(issueDate); err != nil {
		return nil, err
	}
	if p.StartDate, err = rating.ParseDate(startDate); err != nil {
		return nil, err
	}
	if p.EndDate, err = rating.ParseDate(endDate); err != nil {
		return nil, err
	}
	if p.Premium, err = decimal.NewFromString(premium); err != nil {
		return nil, fmt.Errorf("failed to parse premium %q: %w", premium, err)
	}
	if p.DiscountSurcharge, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("failed to parse discount %q: %w", discount, err)
	}
	if err := p.Restore(policy.Status(status)); err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// LoadBreakdown returns the breakdown retained at issuance.
func (s *Store) LoadBreakdown(ctx context.Context, number string) (rating.PremiumBreakdown, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var breakdownJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT breakdown_json FROM premium_breakdowns WHERE policy_number = ?", number,
	).Scan(&breakdownJSON)
	if err == sql.ErrNoRows {
		return rating.PremiumBreakdown{}, policy.ErrPolicyNotFound
	}
	if err != nil {
		return rating.PremiumBreakdown{}, err
	}
	return unmarshalBreakdown(breakdownJSON)
}

// =============================================================================
// BREAKDOWN SERIALIZATION
// =============================================================================

// Stored as JSON with decimal values as strings, so the audit record is
// exact and human-readable straight out of the database.
type breakdownJSON struct {
	Type              string       `json:"insurance_type"`
	AsOf              string       `json:"as_of"`
	BasePremium       string       `json:"base_premium"`
	Factors           []factorJSON `json:"factors"`
	DiscountSurcharge string       `json:"discount_surcharge"`
	FinalPremium      string       `json:"final_premium"`
}

type factorJSON struct {
	Key        string `json:"key"`
	Multiplier string `json:"multiplier"`
}

func marshalBreakdown(b rating.PremiumBreakdown) (string, error) {
	out := breakdownJSON{
		Type:              string(b.Type),
		AsOf:              b.AsOf.String(),
		BasePremium:       b.BasePremium.String(),
		DiscountSurcharge: b.DiscountSurcharge.String(),
		FinalPremium:      b.FinalPremium.String(),
	}
	for _, f := range b.Factors {
		out.Factors = append(out.Factors, factorJSON{Key: string(f.Key), Multiplier: f.Multiplier.String()})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal breakdown: %w", err)
	}
	return string(raw), nil
}

func unmarshalBreakdown(raw string) (rating.PremiumBreakdown, error) {
	var in breakdownJSON
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return rating.PremiumBreakdown{}, fmt.Errorf("failed to unmarshal breakdown: %w", err)
	}

	b := rating.PremiumBreakdown{Type: rating.InsuranceType(in.Type)}
	var err error
	if b.AsOf, err = rating.ParseDate(in.AsOf); err != nil {
		return b, err
	}
	if b.BasePremium, err = decimal.NewFromString(in.BasePremium); err != nil {
		return b, err
	}
	if b.DiscountSurcharge, err = decimal.NewFromString(in.DiscountSurcharge); err != nil {
		return b, err
	}
	if b.FinalPremium, err = decimal.NewFromString(in.FinalPremium); err != nil {
		return b, err
	}
	for _, f := range in.Factors {
		mult, err := decimal.NewFromString(f.Multiplier)
		if err != nil {
			return b, err
		}
		b.Factors = append(b.Factors, rating.AppliedFactor{Key: rating.RatingKey(f.Key), Multiplier: mult})
	}
	return b, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullDate(d *rating.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements lease.Store and lease.AdminStore using SQLite, plus the
  run-history table the API and CLI use for the audit trail. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  amendments:  The lease-amendment ledger
  charges:     Charge-schedule entries
  backups:     Pre-images of every record touched by purge/remediation,
               keyed by backup reference (rollback requirement)
  runs:        One row per reconcile run (run ID, as-of, counts)

MUTATION CONTRACT:
  The ledger tables are read-only during a reconcile run. The only
  mutations are the two operator-invoked commands, and both:
  1. Require a backup reference (lease.ErrBackupRequired otherwise)
  2. Write the pre-image of every touched row to backups FIRST,
     in the same transaction as the mutation
  3. Hold the store's write lock for the duration (single writer)

DATE ENCODING:
  Dates are TEXT in YYYY-MM-DD. The empty string is the open-ended
  date (month-to-month leases, open charge windows).

WAL MODE:
  SQLite is opened with WAL for better concurrency: parallel readers
  during the reconcile fan-out never block each other.

USAGE:
  store, err := sqlite.New("./data/rentroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - lease/store.go: Interface definitions
  - lease/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/rentroll-engine/lease"
)

// Store implements lease.AdminStore using SQLite.
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
	if dbPath == ":memory:" {
		// each pooled connection would otherwise get its own empty database
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
	-- Lease-amendment ledger
	CREATE TABLE IF NOT EXISTS amendments (
		id TEXT PRIMARY KEY,
		property_key TEXT NOT NULL,
		tenant_key TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		status TEXT NOT NULL,
		amendment_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL DEFAULT '',
		leased_area TEXT NOT NULL,
		superseded_note TEXT NOT NULL DEFAULT ''
	);

	-- Hot path: resolution loads every amendment for one tenancy
	CREATE INDEX IF NOT EXISTS idx_amendments_key
		ON amendments(property_key, tenant_key);
	CREATE INDEX IF NOT EXISTS idx_amendments_key_sequence
		ON amendments(property_key, tenant_key, sequence DESC);

	-- Charge schedules
	CREATE TABLE IF NOT EXISTS charges (
		id TEXT PRIMARY KEY,
		amendment_id TEXT NOT NULL,
		charge_code TEXT NOT NULL,
		monthly_amount TEXT NOT NULL,
		from_date TEXT NOT NULL DEFAULT '',
		to_date TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_charges_amendment
		ON charges(amendment_id);
	CREATE INDEX IF NOT EXISTS idx_charges_code
		ON charges(charge_code);

	-- Pre-images for rollback, keyed by backup reference
	CREATE TABLE IF NOT EXISTS backups (
		backup_ref TEXT NOT NULL,
		record_type TEXT NOT NULL,
		record_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_backups_ref
		ON backups(backup_ref);

	-- Reconcile run history (audit trail)
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		as_of TEXT NOT NULL,
		pairs_examined INTEGER NOT NULL,
		rent_roll_rows INTEGER NOT NULL,
		findings INTEGER NOT NULL,
		by_kind_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD ENCODING
// =============================================================================
// Flat JSON shapes for backup payloads: stable, human-readable, and
// independent of the Go struct layout.

type amendmentRecord struct {
	ID             string `json:"id"`
	PropertyKey    string `json:"property_key"`
	TenantKey      string `json:"tenant_key"`
	Sequence       int    `json:"sequence"`
	Status         string `json:"status"`
	Type           string `json:"amendment_type"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	LeasedArea     string `json:"leased_area"`
	SupersededNote string `json:"superseded_note,omitempty"`
}

type chargeRecord struct {
	ID            string `json:"id"`
	AmendmentID   string `json:"amendment_id"`
	ChargeCode    string `json:"charge_code"`
	MonthlyAmount string `json:"monthly_amount"`
	FromDate      string `json:"from_date"`
	ToDate        string `json:"to_date"`
}

func toAmendmentRecord(a lease.Amendment) amendmentRecord {
	return amendmentRecord{
		ID:             string(a.ID),
		PropertyKey:    string(a.Property),
		TenantKey:      string(a.Tenant),
		Sequence:       a.Sequence,
		Status:         string(a.Status),
		Type:           string(a.Type),
		StartDate:      a.Start.String(),
		EndDate:        a.End.String(),
		LeasedArea:     a.LeasedArea.String(),
		SupersededNote: a.SupersededNote,
	}
}

func (r amendmentRecord) toAmendment() (lease.Amendment, error) {
	start, err := lease.ParseDate(r.StartDate)
	if err != nil {
		return lease.Amendment{}, err
	}
	end, err := lease.ParseDate(r.EndDate)
	if err != nil {
		return lease.Amendment{}, err
	}
	area, err := decimal.NewFromString(r.LeasedArea)
	if err != nil {
		return lease.Amendment{}, fmt.Errorf("leased area %q: %w", r.LeasedArea, err)
	}
	return lease.Amendment{
		ID:             lease.AmendmentID(r.ID),
		Property:       lease.PropertyKey(r.PropertyKey),
		Tenant:         lease.TenantKey(r.TenantKey),
		Sequence:       r.Sequence,
		Status:         lease.Status(r.Status),
		Type:           lease.AmendmentType(r.Type),
		Start:          start,
		End:            end,
		LeasedArea:     area,
		SupersededNote: r.SupersededNote,
	}, nil
}

func toChargeRecord(c lease.ChargeScheduleEntry) chargeRecord {
	return chargeRecord{
		ID:            string(c.ID),
		AmendmentID:   string(c.AmendmentID),
		ChargeCode:    string(c.Code),
		MonthlyAmount: c.MonthlyAmount.String(),
		FromDate:      c.From.String(),
		ToDate:        c.To.String(),
	}
}

func (r chargeRecord) toCharge() (lease.ChargeScheduleEntry, error) {
	amount, err := decimal.NewFromString(r.MonthlyAmount)
	if err != nil {
		return lease.ChargeScheduleEntry{}, fmt.Errorf("monthly amount %q: %w", r.MonthlyAmount, err)
	}
	from, err := lease.ParseDate(r.FromDate)
	if err != nil {
		return lease.ChargeScheduleEntry{}, err
	}
	to, err := lease.ParseDate(r.ToDate)
	if err != nil {
		return lease.ChargeScheduleEntry{}, err
	}
	return lease.ChargeScheduleEntry{
		ID:            lease.ChargeID(r.ID),
		AmendmentID:   lease.AmendmentID(r.AmendmentID),
		Code:          lease.ChargeCode(r.ChargeCode),
		MonthlyAmount: amount,
		From:          from,
		To:            to,
	}, nil
}

// =============================================================================
// STORE - Read interface
// =============================================================================

// Load replaces the ledger snapshot atomically. Malformed and duplicate
// records are skipped and reported, never fatal.
func (s *Store) Load(ctx context.Context, amendments []lease.Amendment, charges []lease.ChargeScheduleEntry) (lease.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report lease.LoadReport

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM amendments`); err != nil {
		return report, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM charges`); err != nil {
		return report, err
	}

	seenAmendments := make(map[lease.AmendmentID]bool, len(amendments))
	for _, a := range amendments {
		if err := a.Validate(); err != nil {
			report.AmendmentsSkipped++
			report.Skipped = append(report.Skipped, err.(*lease.MalformedRecordError))
			continue
		}
		if seenAmendments[a.ID] {
			report.AmendmentsSkipped++
			report.Skipped = append(report.Skipped, &lease.MalformedRecordError{
				Record: "amendment", Field: "id", Cause: "duplicate", ID: string(a.ID),
			})
			continue
		}
		seenAmendments[a.ID] = true

		r := toAmendmentRecord(a)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO amendments
				(id, property_key, tenant_key, sequence, status, amendment_type,
				 start_date, end_date, leased_area, superseded_note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.PropertyKey, r.TenantKey, r.Sequence, r.Status, r.Type,
			r.StartDate, r.EndDate, r.LeasedArea, r.SupersededNote)
		if err != nil {
			return report, err
		}
		report.AmendmentsLoaded++
	}

	seenCharges := make(map[lease.ChargeID]bool, len(charges))
	for _, c := range charges {
		if err := c.Validate(); err != nil {
			report.ChargesSkipped++
			report.Skipped = append(report.Skipped, err.(*lease.MalformedRecordError))
			continue
		}
		if seenCharges[c.ID] {
			report.ChargesSkipped++
			report.Skipped = append(report.Skipped, &lease.MalformedRecordError{
				Record: "charge", Field: "id", Cause: "duplicate", ID: string(c.ID),
			})
			continue
		}
		seenCharges[c.ID] = true

		r := toChargeRecord(c)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO charges
				(id, amendment_id, charge_code, monthly_amount, from_date, to_date)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.AmendmentID, r.ChargeCode, r.MonthlyAmount, r.FromDate, r.ToDate)
		if err != nil {
			return report, err
		}
		report.ChargesLoaded++
	}

	if err := tx.Commit(); err != nil {
		return report, err
	}
	return report, nil
}

const amendmentColumns = `id, property_key, tenant_key, sequence, status, amendment_type,
	start_date, end_date, leased_area, superseded_note`

func scanAmendment(scanner interface{ Scan(...any) error }) (lease.Amendment, error) {
	var r amendmentRecord
	if err := scanner.Scan(&r.ID, &r.PropertyKey, &r.TenantKey, &r.Sequence,
		&r.Status, &r.Type, &r.StartDate, &r.EndDate, &r.LeasedArea, &r.SupersededNote); err != nil {
		return lease.Amendment{}, err
	}
	return r.toAmendment()
}

func (s *Store) queryAmendments(ctx context.Context, query string, args ...any) ([]lease.Amendment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lease.Amendment
	for rows.Next() {
		a, err := scanAmendment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) AmendmentsFor(ctx context.Context, property lease.PropertyKey, tenant lease.TenantKey) ([]lease.Amendment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryAmendments(ctx,
		`SELECT `+amendmentColumns+` FROM amendments WHERE property_key = ? AND tenant_key = ?`,
		string(property), string(tenant))
}

func (s *Store) Amendment(ctx context.Context, id lease.AmendmentID) (lease.Amendment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+amendmentColumns+` FROM amendments WHERE id = ?`, string(id))
	a, err := scanAmendment(row)
	if err == sql.ErrNoRows {
		return lease.Amendment{}, lease.ErrAmendmentNotFound
	}
	return a, err
}

func (s *Store) Amendments(ctx context.Context) ([]lease.Amendment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryAmendments(ctx,
		`SELECT `+amendmentColumns+` FROM amendments ORDER BY property_key, tenant_key, sequence`)
}

func (s *Store) Keys(ctx context.Context) ([]lease.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT property_key, tenant_key FROM amendments ORDER BY property_key, tenant_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []lease.Key
	for rows.Next() {
		var property, tenant string
		if err := rows.Scan(&property, &tenant); err != nil {
			return nil, err
		}
		keys = append(keys, lease.Key{
			Property: lease.PropertyKey(property),
			Tenant:   lease.TenantKey(tenant),
		})
	}
	return keys, rows.Err()
}

const chargeColumns = `id, amendment_id, charge_code, monthly_amount, from_date, to_date`

func (s *Store) queryCharges(ctx context.Context, query string, args ...any) ([]lease.ChargeScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lease.ChargeScheduleEntry
	for rows.Next() {
		var r chargeRecord
		if err := rows.Scan(&r.ID, &r.AmendmentID, &r.ChargeCode,
			&r.MonthlyAmount, &r.FromDate, &r.ToDate); err != nil {
			return nil, err
		}
		c, err := r.toCharge()
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) ChargesFor(ctx context.Context, id lease.AmendmentID) ([]lease.ChargeScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCharges(ctx,
		`SELECT `+chargeColumns+` FROM charges WHERE amendment_id = ?`, string(id))
}

func (s *Store) Charges(ctx context.Context) ([]lease.ChargeScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCharges(ctx,
		`SELECT `+chargeColumns+` FROM charges ORDER BY id`)
}

// =============================================================================
// ADMIN OPERATIONS - backup-gated mutations
// =============================================================================

// PurgeOrphans removes charge rows whose amendment is absent. The
// pre-image of every removed row is written to the backups table in the
// same transaction as the delete.
func (s *Store) PurgeOrphans(ctx context.Context, backupRef string) (lease.PurgeReport, error) {
	if backupRef == "" {
		return lease.PurgeReport{}, lease.ErrBackupRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lease.PurgeReport{}, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+chargeColumns+`
		FROM charges c
		WHERE NOT EXISTS (SELECT 1 FROM amendments a WHERE a.id = c.amendment_id)
		ORDER BY c.id`)
	if err != nil {
		return lease.PurgeReport{}, err
	}

	var orphans []chargeRecord
	for rows.Next() {
		var r chargeRecord
		if err := rows.Scan(&r.ID, &r.AmendmentID, &r.ChargeCode,
			&r.MonthlyAmount, &r.FromDate, &r.ToDate); err != nil {
			rows.Close()
			return lease.PurgeReport{}, err
		}
		orphans = append(orphans, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return lease.PurgeReport{}, err
	}

	report := lease.PurgeReport{BackupRef: backupRef}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range orphans {
		payload, err := json.Marshal(r)
		if err != nil {
			return lease.PurgeReport{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backups (backup_ref, record_type, record_id, payload_json, created_at)
			VALUES (?, 'charge', ?, ?, ?)`,
			backupRef, r.ID, string(payload), now); err != nil {
			return lease.PurgeReport{}, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM charges WHERE id = ?`, r.ID); err != nil {
			return lease.PurgeReport{}, err
		}
		report.Purged = append(report.Purged, lease.ChargeID(r.ID))
	}

	if err := tx.Commit(); err != nil {
		return lease.PurgeReport{}, err
	}
	return report, nil
}

// RemediateDateSequence clears the end date of an amendment whose End
// precedes its Start, attaching note as the audit annotation. Pre-image
// first, same transaction.
func (s *Store) RemediateDateSequence(ctx context.Context, id lease.AmendmentID, backupRef, note string) error {
	if backupRef == "" {
		return lease.ErrBackupRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+amendmentColumns+` FROM amendments WHERE id = ?`, string(id))
	a, err := scanAmendment(row)
	if err == sql.ErrNoRows {
		return lease.ErrAmendmentNotFound
	}
	if err != nil {
		return err
	}
	if a.HasValidDates() {
		return &lease.MalformedRecordError{Record: "amendment", Field: "end_date", Cause: "already valid", ID: string(id)}
	}

	payload, err := json.Marshal(toAmendmentRecord(a))
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backups (backup_ref, record_type, record_id, payload_json, created_at)
		VALUES (?, 'amendment', ?, ?, ?)`,
		backupRef, string(id), string(payload), now); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE amendments SET end_date = '', superseded_note = ? WHERE id = ?`,
		note, string(id)); err != nil {
		return err
	}

	return tx.Commit()
}

// Backup returns the pre-images captured under a backup reference.
func (s *Store) Backup(ctx context.Context, backupRef string) (lease.BackupSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_type, payload_json FROM backups WHERE backup_ref = ? ORDER BY rowid`,
		backupRef)
	if err != nil {
		return lease.BackupSet{}, err
	}
	defer rows.Close()

	set := lease.BackupSet{Ref: backupRef}
	for rows.Next() {
		var recordType, payload string
		if err := rows.Scan(&recordType, &payload); err != nil {
			return lease.BackupSet{}, err
		}
		switch recordType {
		case "amendment":
			var r amendmentRecord
			if err := json.Unmarshal([]byte(payload), &r); err != nil {
				return lease.BackupSet{}, err
			}
			a, err := r.toAmendment()
			if err != nil {
				return lease.BackupSet{}, err
			}
			set.Amendments = append(set.Amendments, a)
		case "charge":
			var r chargeRecord
			if err := json.Unmarshal([]byte(payload), &r); err != nil {
				return lease.BackupSet{}, err
			}
			c, err := r.toCharge()
			if err != nil {
				return lease.BackupSet{}, err
			}
			set.Charges = append(set.Charges, c)
		}
	}
	return set, rows.Err()
}

var _ lease.AdminStore = (*Store)(nil)

// =============================================================================
// RUN HISTORY
// =============================================================================

// RunRecord is one reconcile run in the audit trail.
type RunRecord struct {
	ID            string
	AsOf          string
	PairsExamined int
	RentRollRows  int
	Findings      int
	ByKind        map[string]int
	CreatedAt     time.Time
}

// SaveRun records a completed reconcile run.
func (s *Store) SaveRun(ctx context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind, err := json.Marshal(run.ByKind)
	if err != nil {
		return err
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, as_of, pairs_examined, rent_roll_rows, findings, by_kind_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AsOf, run.PairsExamined, run.RentRollRows, run.Findings,
		string(byKind), createdAt.Format(time.RFC3339))
	return err
}

// ListRuns returns run history, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, as_of, pairs_examined, rent_roll_rows, findings, by_kind_json, created_at
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run       RunRecord
			byKind    string
			createdAt string
		)
		if err := rows.Scan(&run.ID, &run.AsOf, &run.PairsExamined,
			&run.RentRollRows, &run.Findings, &byKind, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(byKind), &run.ByKind); err != nil {
			return nil, err
		}
		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

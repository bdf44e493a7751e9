package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rentroll-engine/lease"
	"github.com/warp/rentroll-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedStore(t *testing.T, s *sqlite.Store) {
	t.Helper()
	amendments := []lease.Amendment{
		{
			ID: "AMD-1", Property: "PROP-A", Tenant: "TEN-1", Sequence: 0,
			Status: lease.StatusSuperseded, Type: lease.TypeOriginalLease,
			Start: lease.NewDate(2023, time.January, 1), End: lease.NewDate(2023, time.December, 31),
			LeasedArea: decimal.NewFromInt(1000),
		},
		{
			ID: "AMD-2", Property: "PROP-A", Tenant: "TEN-1", Sequence: 1,
			Status: lease.StatusActivated, Type: lease.TypeRenewal,
			Start:      lease.NewDate(2024, time.January, 1),
			LeasedArea: decimal.NewFromInt(1000),
		},
		{
			ID: "AMD-3", Property: "PROP-B", Tenant: "TEN-2", Sequence: 0,
			Status: lease.StatusActivated, Type: lease.TypeOriginalLease,
			Start:      lease.NewDate(2024, time.June, 1),
			End:        lease.NewDate(2024, time.January, 1),
			LeasedArea: decimal.NewFromInt(750),
		},
	}
	charges := []lease.ChargeScheduleEntry{
		{
			ID: "CHG-1", AmendmentID: "AMD-2", Code: lease.ChargeRent,
			MonthlyAmount: decimal.RequireFromString("1850.50"),
			From:          lease.NewDate(2024, time.January, 1),
		},
		{
			ID: "CHG-ORPHAN", AmendmentID: "AMD-GONE", Code: lease.ChargeRent,
			MonthlyAmount: decimal.NewFromInt(400),
			From:          lease.NewDate(2024, time.January, 1),
		},
	}
	_, err := s.Load(context.Background(), amendments, charges)
	require.NoError(t, err)
}

// =============================================================================
// LOAD AND LOOKUPS
// =============================================================================

func TestSQLite_LoadAndQuery(t *testing.T) {
	s := newStore(t)
	seedStore(t, s)

	// Round trip preserves dates and decimal precision.
	a, err := s.Amendment(context.Background(), "AMD-1")
	require.NoError(t, err)
	assert.Equal(t, lease.NewDate(2023, time.December, 31), a.End)
	assert.Equal(t, "1000", a.LeasedArea.String())

	open, err := s.Amendment(context.Background(), "AMD-2")
	require.NoError(t, err)
	assert.True(t, open.OpenEnded())

	_, err = s.Amendment(context.Background(), "AMD-NOPE")
	assert.ErrorIs(t, err, lease.ErrAmendmentNotFound)

	forKey, err := s.AmendmentsFor(context.Background(), "PROP-A", "TEN-1")
	require.NoError(t, err)
	assert.Len(t, forKey, 2)

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, lease.PropertyKey("PROP-A"), keys[0].Property)

	charges, err := s.ChargesFor(context.Background(), "AMD-2")
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, "1850.5", charges[0].MonthlyAmount.String())
}

func TestSQLite_Load_SkipsMalformedAndDuplicates(t *testing.T) {
	s := newStore(t)

	good := lease.Amendment{
		ID: "AMD-1", Property: "PROP-A", Tenant: "TEN-1", Sequence: 0,
		Status: lease.StatusActivated, Type: lease.TypeOriginalLease,
		Start: lease.NewDate(2024, time.January, 1), LeasedArea: decimal.NewFromInt(100),
	}
	noProperty := good
	noProperty.ID = "AMD-2"
	noProperty.Property = ""

	report, err := s.Load(context.Background(), []lease.Amendment{good, noProperty, good}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AmendmentsLoaded)
	assert.Equal(t, 2, report.AmendmentsSkipped)
	require.Len(t, report.Skipped, 2)
	assert.ErrorIs(t, report.Skipped[1], lease.ErrMalformedRecord)
}

func TestSQLite_Load_ReplacesSnapshot(t *testing.T) {
	s := newStore(t)
	seedStore(t, s)
	seedStore(t, s)

	all, err := s.Amendments(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

func TestSQLite_PurgeOrphans(t *testing.T) {
	// GIVEN: One orphaned charge
	// WHEN: Purging with a backup reference
	// THEN: The orphan is gone, its pre-image is retrievable, non-orphans stay

	s := newStore(t)
	seedStore(t, s)

	report, err := s.PurgeOrphans(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", report.BackupRef)
	assert.Equal(t, []lease.ChargeID{"CHG-ORPHAN"}, report.Purged)

	charges, err := s.Charges(context.Background())
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, lease.ChargeID("CHG-1"), charges[0].ID)

	backup, err := s.Backup(context.Background(), "ref-1")
	require.NoError(t, err)
	require.Len(t, backup.Charges, 1)
	assert.Equal(t, lease.ChargeID("CHG-ORPHAN"), backup.Charges[0].ID)
	assert.Equal(t, "400", backup.Charges[0].MonthlyAmount.String())
}

func TestSQLite_PurgeOrphans_RequiresBackupRef(t *testing.T) {
	s := newStore(t)
	seedStore(t, s)

	_, err := s.PurgeOrphans(context.Background(), "")
	assert.ErrorIs(t, err, lease.ErrBackupRequired)
}

func TestSQLite_RemediateDateSequence(t *testing.T) {
	// AMD-3 ends 2024-01-01 but starts 2024-06-01.
	s := newStore(t)
	seedStore(t, s)

	err := s.RemediateDateSequence(context.Background(), "AMD-3", "ref-2", "per portfolio review")
	require.NoError(t, err)

	fixed, err := s.Amendment(context.Background(), "AMD-3")
	require.NoError(t, err)
	assert.True(t, fixed.End.IsZero())
	assert.Equal(t, "per portfolio review", fixed.SupersededNote)

	backup, err := s.Backup(context.Background(), "ref-2")
	require.NoError(t, err)
	require.Len(t, backup.Amendments, 1)
	assert.Equal(t, lease.NewDate(2024, time.January, 1), backup.Amendments[0].End)

	// Valid dates are refused, unknown IDs reported as such.
	err = s.RemediateDateSequence(context.Background(), "AMD-1", "ref-3", "note")
	assert.ErrorIs(t, err, lease.ErrMalformedRecord)
	err = s.RemediateDateSequence(context.Background(), "AMD-NOPE", "ref-3", "note")
	assert.ErrorIs(t, err, lease.ErrAmendmentNotFound)
	err = s.RemediateDateSequence(context.Background(), "AMD-3", "", "note")
	assert.ErrorIs(t, err, lease.ErrBackupRequired)
}

// =============================================================================
// RUN HISTORY
// =============================================================================

func TestSQLite_RunHistory(t *testing.T) {
	s := newStore(t)

	first := sqlite.RunRecord{
		ID: "run-1", AsOf: "2024-06-01", PairsExamined: 10, RentRollRows: 8,
		Findings: 3, ByKind: map[string]int{"OrphanedCharge": 3},
		CreatedAt: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC),
	}
	second := sqlite.RunRecord{
		ID: "run-2", AsOf: "2024-07-01", PairsExamined: 10, RentRollRows: 9,
		Findings: 0, ByKind: map[string]int{},
		CreatedAt: time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveRun(context.Background(), first))
	require.NoError(t, s.SaveRun(context.Background(), second))

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)
	assert.Equal(t, 3, runs[1].ByKind["OrphanedCharge"])
	assert.Equal(t, first.CreatedAt, runs[1].CreatedAt)
}

/*
store.go - Persistence interface for the amendment ledger

PURPOSE:
  Defines the interface between the resolution engine and storage.
  Different implementations can use SQLite or in-memory storage; the
  engine only ever sees this interface.

KEY INTERFACES:
  Store:      Read side - bulk load once, indexed lookups thereafter
  AdminStore: Store plus the two operator-invoked mutations (purge
              orphans, remediate dates), both backup-gated

READ-MOSTLY CONTRACT:
  A store is populated by Load and is read-only for the duration of a
  reconcile run. The ONLY mutations are:
  - PurgeOrphans: removes charge rows whose amendment does not exist
  - RemediateDateSequence: clears an invalid end date, attaches a note
  Both require a backup reference; implementations capture a pre-image
  of every touched row under that reference before mutating, and must
  hold exclusive writer access for the duration.

LOAD SEMANTICS:
  Load validates each record individually. A malformed record is
  skipped and reported in the LoadReport - it never aborts the load.
  Duplicate IDs are malformed (last write would otherwise win silently).

IMPLEMENTATIONS:
  - lease/store/memory.go: In-memory, for tests and one-shot CLI runs
  - store/sqlite/sqlite.go: SQLite with backup and audit tables

SEE ALSO:
  - reconcile/: Drives a full portfolio through the store
  - ingest/: Produces the record slices Load consumes
*/
package lease

import "context"

// =============================================================================
// STORE - Read interface over the amendment ledger
// =============================================================================

type Store interface {
	// Load bulk-loads the ledger. Malformed records are skipped and
	// reported, never fatal. Calling Load again replaces the snapshot.
	Load(ctx context.Context, amendments []Amendment, charges []ChargeScheduleEntry) (LoadReport, error)

	// AmendmentsFor returns every amendment for a tenancy, in no
	// guaranteed order. Callers must not assume sequence order.
	AmendmentsFor(ctx context.Context, property PropertyKey, tenant TenantKey) ([]Amendment, error)

	// ChargesFor returns every charge-schedule entry tied to an
	// amendment, including entries whose windows are closed.
	ChargesFor(ctx context.Context, id AmendmentID) ([]ChargeScheduleEntry, error)

	// Amendment returns a single amendment by ID, or ErrAmendmentNotFound.
	Amendment(ctx context.Context, id AmendmentID) (Amendment, error)

	// Keys returns every distinct (property, tenant) pair in the store.
	Keys(ctx context.Context) ([]Key, error)

	// Amendments returns the full amendment ledger (date-integrity scan).
	Amendments(ctx context.Context) ([]Amendment, error)

	// Charges returns the full charge table (orphan scan).
	Charges(ctx context.Context) ([]ChargeScheduleEntry, error)
}

// LoadReport summarizes a bulk load. Skipped records are data defects
// already logged by the caller; they are carried here so a load summary
// can reach the findings export.
type LoadReport struct {
	AmendmentsLoaded  int
	AmendmentsSkipped int
	ChargesLoaded     int
	ChargesSkipped    int
	Skipped           []*MalformedRecordError
}

// =============================================================================
// ADMIN STORE - Operator-invoked, backup-gated mutations
// =============================================================================

// AdminStore extends Store with the two remediation commands. Both are
// explicit operator actions: never called by the reconciler, always
// preceded by a pre-image backup keyed by backupRef, reversible from
// that backup.
type AdminStore interface {
	Store

	// PurgeOrphans removes every charge entry whose amendment is absent
	// from the store. Returns ErrBackupRequired if backupRef is empty.
	PurgeOrphans(ctx context.Context, backupRef string) (PurgeReport, error)

	// RemediateDateSequence clears the end date of an amendment whose
	// End precedes its Start, attaching note as the audit annotation.
	// Returns ErrAmendmentNotFound for unknown IDs and ErrBackupRequired
	// if backupRef is empty. Refuses amendments whose dates are valid.
	RemediateDateSequence(ctx context.Context, id AmendmentID, backupRef, note string) error

	// Backup returns the pre-images captured under a backup reference.
	Backup(ctx context.Context, backupRef string) (BackupSet, error)
}

// PurgeReport summarizes an orphan purge.
type PurgeReport struct {
	BackupRef string
	Purged    []ChargeID
}

// BackupSet is the full pre-image of every record touched by one
// remediation or purge invocation, sufficient for rollback.
type BackupSet struct {
	Ref        string
	Amendments []Amendment
	Charges    []ChargeScheduleEntry
}

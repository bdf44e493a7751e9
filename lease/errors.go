/*
errors.go - Centralized error types for the rent-roll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers distinguish outcomes with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Load errors - Per-record ingestion failures (never abort a run)
  2. Resolution errors - Eligibility / ambiguity outcomes
  3. Store errors - Structural failures (empty store, missing rows)

THE TWO OUTCOMES THAT ARE NOT DEFECTS:
  - ErrNoEligibleAmendment: a vacant or fully terminated tenancy.
    Normal. The rent roll simply has no row for that key.
  - A skipped malformed record during load: the record is logged and
    dropped; the rest of the dataset loads.

THE OUTCOME THAT IS A DEFECT BUT NOT A CRASH:
  - ErrResolutionAmbiguous: two amendments tie at the maximum sequence.
    The resolver refuses to guess; the reconciler turns this into a
    DuplicateActiveAmendment finding and excludes the key.

SEE ALSO:
  - resolver.go: Returns resolution errors
  - reconcile/: Converts resolution errors into findings
*/
package lease

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoEligibleAmendment is returned when no amendment governs a key
	// as of the requested date. Vacancy is a normal outcome, not a defect.
	ErrNoEligibleAmendment = errors.New("no eligible amendment")

	// ErrResolutionAmbiguous is returned when two or more eligible
	// amendments share the maximum sequence number. The resolver never
	// picks a winner; the condition is a data defect to be reviewed.
	ErrResolutionAmbiguous = errors.New("ambiguous resolution: duplicate max sequence")

	// ErrMalformedRecord is the sentinel wrapped by MalformedRecordError.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrEmptyStore is returned by a reconcile run against a store with
	// no amendments at all. The only structural failure a run can have.
	ErrEmptyStore = errors.New("amendment store is empty")

	// ErrAmendmentNotFound is returned by store lookups and remediation
	// commands that reference an unknown amendment ID.
	ErrAmendmentNotFound = errors.New("amendment not found")

	// ErrBackupRequired is returned when a purge or remediation command
	// is invoked without a backup reference. Mutations are auditable and
	// reversible or they do not happen.
	ErrBackupRequired = errors.New("mutation requires a backup reference")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedRecordError describes why a single input record was rejected
// during load. The record is skipped; the load continues.
type MalformedRecordError struct {
	Record string // "amendment" or "charge"
	Field  string
	Cause  string
	ID     string // record identifier when one parsed
	Line   int    // source line for file-based ingestion, 0 if unknown
}

func (e *MalformedRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed %s record (line %d): %s %s", e.Record, e.Line, e.Field, e.Cause)
	}
	if e.ID != "" {
		return fmt.Sprintf("malformed %s record %s: %s %s", e.Record, e.ID, e.Field, e.Cause)
	}
	return fmt.Sprintf("malformed %s record: %s %s", e.Record, e.Field, e.Cause)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }

// AmbiguousResolutionError reports a duplicate-max-sequence tie.
type AmbiguousResolutionError struct {
	Key        Key
	Sequence   int
	Amendments []AmendmentID // every amendment tied at Sequence
}

func (e *AmbiguousResolutionError) Error() string {
	return fmt.Sprintf("ambiguous resolution for %s: %d amendments at sequence %d",
		e.Key, len(e.Amendments), e.Sequence)
}

func (e *AmbiguousResolutionError) Unwrap() error { return ErrResolutionAmbiguous }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsVacancy reports whether the error is the normal empty outcome.
func IsVacancy(err error) bool {
	return errors.Is(err, ErrNoEligibleAmendment)
}

// IsDataDefect reports whether the error should become a finding rather
// than abort anything.
func IsDataDefect(err error) bool {
	return errors.Is(err, ErrResolutionAmbiguous) ||
		errors.Is(err, ErrMalformedRecord)
}

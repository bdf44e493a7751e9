/*
Package lease provides the core rent-roll resolution engine.

PURPOSE:
  This package contains the domain types and algorithms for deriving a
  point-in-time rent roll from a lease-amendment ledger. Given the full
  history of amendments for a portfolio (original leases, renewals,
  terminations, supersessions) and their recurring charge schedules, the
  engine answers: "who occupies what, and at what rent, as of a date?"

KEY CONCEPTS IN THIS FILE (types.go):
  - Amendment: One lease-amendment event, immutable once ingested
  - ChargeScheduleEntry: One recurring charge tied to an amendment
  - Key: The (property, tenant) pair that identifies a tenancy
  - ResolvedLeaseState: The derived rent-roll row for one tenancy

DESIGN PRINCIPLES:
  1. Immutability: Amendments are never edited by this engine, only
     annotated; cleanup is a separate, operator-invoked step
  2. Precision: Uses decimal.Decimal for rent and area, never float64
  3. Surfacing over fixing: Bad data becomes a finding, never a guess
  4. Determinism: Resolution is a pure function of the ledger snapshot

USAGE:
  a := lease.Amendment{
      ID:       "AMD-001",
      Property: "PROP-A",
      Tenant:   "TEN-42",
      Sequence: 1,
      Status:   lease.StatusActivated,
      Type:     lease.TypeRenewal,
      Start:    lease.NewDate(2024, time.January, 1),
  }

SEE ALSO:
  - resolver.go: Governing-amendment selection
  - aggregate.go: Charge aggregation and rent-roll rows
  - ruleset.go: Tunable business rules (eligibility, charge codes)
*/
package lease

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PropertyKey string
type TenantKey string
type AmendmentID string
type ChargeID string

// Key identifies a single tenancy: one tenant at one property.
// All resolution happens per Key.
type Key struct {
	Property PropertyKey
	Tenant   TenantKey
}

func (k Key) String() string {
	return string(k.Property) + "/" + string(k.Tenant)
}

// =============================================================================
// STATUS / TYPE ENUMERATIONS
// =============================================================================

// Status is the lifecycle state of an amendment as recorded by the
// upstream lease-administration system.
type Status string

const (
	StatusActivated  Status = "activated"
	StatusSuperseded Status = "superseded"
	StatusInProcess  Status = "in_process"
	StatusOther      Status = "other"
)

// AmendmentType records what kind of lease event the amendment is.
type AmendmentType string

const (
	TypeOriginalLease AmendmentType = "original_lease"
	TypeRenewal       AmendmentType = "renewal"
	TypeTermination   AmendmentType = "termination"
	TypeOther         AmendmentType = "other"
)

// ChargeCode classifies a recurring charge ("rent", "cam", "tax", ...).
// Open-ended on purpose: upstream systems invent codes freely.
type ChargeCode string

const (
	ChargeRent ChargeCode = "rent"
	ChargeCAM  ChargeCode = "cam"
	ChargeTax  ChargeCode = "tax"
)

// =============================================================================
// AMENDMENT - One lease-amendment event
// =============================================================================

// Amendment is one row of the lease-amendment ledger.
//
// INVARIANTS (enforced by Validate and the reconciler, not by construction):
//   - Sequence is non-negative; 0 is the original lease
//   - For a fixed Key, at most one amendment holds the maximum Sequence.
//     A duplicate max is a data defect the resolver refuses to break.
//   - End, when set, is on or after Start. A violation is surfaced as an
//     InvalidDateSequence finding, never silently repaired.
//
// A zero End date means month-to-month / open-ended: the amendment stays
// in force no matter how far in the future the as-of date is.
type Amendment struct {
	ID       AmendmentID
	Property PropertyKey
	Tenant   TenantKey

	// Sequence increases per Key; the highest eligible sequence governs.
	Sequence int

	Status Status
	Type   AmendmentType

	Start Date
	End   Date // zero = open-ended

	// LeasedArea is the square footage under this amendment.
	// Taken from the amendment directly, never derived from charges.
	LeasedArea decimal.Decimal

	// SupersededNote is the only mutable field: the remediation workflow
	// may attach an audit annotation. The engine never deletes amendments.
	SupersededNote string
}

// Key returns the tenancy this amendment belongs to.
func (a Amendment) Key() Key {
	return Key{Property: a.Property, Tenant: a.Tenant}
}

// OpenEnded reports whether the amendment has no end date.
func (a Amendment) OpenEnded() bool {
	return a.End.IsZero()
}

// HasValidDates reports whether Start <= End (or End is open).
func (a Amendment) HasValidDates() bool {
	if a.OpenEnded() {
		return true
	}
	return a.Start.BeforeOrEqual(a.End)
}

// Validate checks the fields that must be present and well-formed for
// the amendment to enter the store at all. Date-sequence violations are
// NOT load failures: they load and get flagged by the reconciler.
func (a Amendment) Validate() error {
	switch {
	case a.ID == "":
		return &MalformedRecordError{Record: "amendment", Field: "id", Cause: "empty"}
	case a.Property == "":
		return &MalformedRecordError{Record: "amendment", Field: "property", Cause: "empty", ID: string(a.ID)}
	case a.Tenant == "":
		return &MalformedRecordError{Record: "amendment", Field: "tenant", Cause: "empty", ID: string(a.ID)}
	case a.Sequence < 0:
		return &MalformedRecordError{Record: "amendment", Field: "sequence", Cause: "negative", ID: string(a.ID)}
	case a.Start.IsZero():
		return &MalformedRecordError{Record: "amendment", Field: "start_date", Cause: "missing", ID: string(a.ID)}
	case a.LeasedArea.IsNegative():
		return &MalformedRecordError{Record: "amendment", Field: "leased_area", Cause: "negative", ID: string(a.ID)}
	}
	return nil
}

// =============================================================================
// CHARGE SCHEDULE ENTRY - One recurring charge
// =============================================================================

// ChargeScheduleEntry is one recurring monthly charge tied to an
// amendment. An entry whose AmendmentID does not exist in the store is
// "orphaned" - reported as a finding and purgeable only via the
// explicit, backed-up purge command.
type ChargeScheduleEntry struct {
	ID          ChargeID
	AmendmentID AmendmentID

	Code          ChargeCode
	MonthlyAmount decimal.Decimal

	From Date
	To   Date // zero = open-ended
}

// ActiveAt reports whether the charge window covers the given date.
func (c ChargeScheduleEntry) ActiveAt(asOf Date) bool {
	if asOf.Before(c.From) {
		return false
	}
	return c.To.IsZero() || asOf.BeforeOrEqual(c.To)
}

// Validate checks the fields required for the entry to enter the store.
// Rent charges must not be negative; other codes may carry credits.
func (c ChargeScheduleEntry) Validate() error {
	switch {
	case c.ID == "":
		return &MalformedRecordError{Record: "charge", Field: "id", Cause: "empty"}
	case c.AmendmentID == "":
		return &MalformedRecordError{Record: "charge", Field: "amendment_id", Cause: "empty", ID: string(c.ID)}
	case c.Code == "":
		return &MalformedRecordError{Record: "charge", Field: "charge_code", Cause: "empty", ID: string(c.ID)}
	case c.Code == ChargeRent && c.MonthlyAmount.IsNegative():
		return &MalformedRecordError{Record: "charge", Field: "monthly_amount", Cause: "negative rent", ID: string(c.ID)}
	}
	return nil
}

// =============================================================================
// RESOLVED LEASE STATE - Derived rent-roll row (never stored)
// =============================================================================

// ResolvedLeaseState is the rent-roll row for one tenancy as of a date:
// the single governing amendment plus the aggregate of its active rent
// charges. Derived, never persisted.
type ResolvedLeaseState struct {
	Property    PropertyKey
	Tenant      TenantKey
	AmendmentID AmendmentID
	Sequence    int
	AsOf        Date

	MonthlyRent decimal.Decimal
	LeasedArea  decimal.Decimal

	// Charges holds the rent entries active at AsOf that produced
	// MonthlyRent. Useful for drill-down exports.
	Charges []ChargeScheduleEntry
}

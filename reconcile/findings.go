/*
findings.go - Validation findings and run summary

PURPOSE:
  Defines the anomaly report a reconcile run produces alongside the
  rent roll. Findings are created here, consumed by the business-review
  export, and never auto-resolved: every remediation is a separate,
  operator-invoked command.

FINDING KINDS:
  DuplicateActiveAmendment  Two amendments tie at the max sequence.
                            The key is excluded from the rent roll.
  OrphanedCharge            A charge row references a missing amendment.
  InvalidDateSequence       An amendment ends before it starts.
  MissingExpectedCharge     A resolved amendment has area but no rent.
                            Severity follows the business classification.
  NegativeRentCharge        The governing amendment's rent charges sum to
                            a negative monthly rent. The row is withheld
                            from the rent roll.
  AreaToleranceExceeded     A property's summed leased area exceeds its
                            rentable area beyond the configured tolerance.

SEE ALSO:
  - reconciler.go: Emits findings
  - report.go: Exports them for business review
*/
package reconcile

import (
	"fmt"

	"github.com/warp/rentroll-engine/lease"
)

// =============================================================================
// FINDINGS
// =============================================================================

type FindingKind string

const (
	KindDuplicateActiveAmendment FindingKind = "DuplicateActiveAmendment"
	KindOrphanedCharge           FindingKind = "OrphanedCharge"
	KindInvalidDateSequence      FindingKind = "InvalidDateSequence"
	KindMissingExpectedCharge    FindingKind = "MissingExpectedCharge"
	KindNegativeRentCharge       FindingKind = "NegativeRentCharge"
	KindAreaToleranceExceeded    FindingKind = "AreaToleranceExceeded"
)

// Finding is one detected anomaly. Affected-key fields are filled as
// applicable: an orphaned charge has no tenancy, a duplicate-active has
// no single amendment.
type Finding struct {
	Kind     FindingKind
	Severity lease.Severity

	Property    lease.PropertyKey
	Tenant      lease.TenantKey
	AmendmentID lease.AmendmentID
	ChargeID    lease.ChargeID

	// Class is set for MissingExpectedCharge findings only.
	Class lease.ChargeClass

	Detail string
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s/%s] %s", f.Kind, f.Severity, f.Detail)
}

// =============================================================================
// RESULT AND SUMMARY
// =============================================================================

// Result is the complete output of one reconcile run. The rent roll and
// the findings always travel together so callers cannot take the
// numbers and ignore the data-quality problems behind them.
type Result struct {
	RunID    string
	AsOf     lease.Date
	RentRoll []lease.ResolvedLeaseState
	Findings []Finding
	Summary  Summary
}

// Summary aggregates a run for the one-line report.
type Summary struct {
	PairsExamined int
	RentRollRows  int
	VacantPairs   int
	ExcludedPairs int // keys withheld from the rent roll (ambiguous, negative rent)

	ByKind     map[FindingKind]int
	BySeverity map[lease.Severity]int
}

func newSummary() Summary {
	return Summary{
		ByKind:     make(map[FindingKind]int),
		BySeverity: make(map[lease.Severity]int),
	}
}

func (s *Summary) count(f Finding) {
	s.ByKind[f.Kind]++
	s.BySeverity[f.Severity]++
}

// Total returns the total number of findings.
func (s Summary) Total() int {
	n := 0
	for _, c := range s.ByKind {
		n += c
	}
	return n
}

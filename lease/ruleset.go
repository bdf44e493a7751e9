/*
ruleset.go - Tunable business rules

PURPOSE:
  Every business rule the resolution pipeline depends on lives here as
  injected configuration, never as a hard-coded constant. Analysts tune
  these per portfolio without code changes:

  - Which amendment statuses are eligible to govern a rent roll
  - Which charge code counts as rent
  - How a missing rent charge is classified and scored
  - Per-property rentable area and the tolerance for the leased-area
    sanity check

CLASSIFICATION:
  A resolved amendment with leased area but no active rent charge falls
  into one of four business classes, mirrored from the review workflow:

    RENT_EXPECTED    active, non-terminated  -> CRITICAL
    HISTORICAL_RENT  superseded              -> HIGH
    REVIEW_REQUIRED  in-process / other      -> MEDIUM
    TERMINATION_OK   terminated              -> OK (no rent expected)

  The class-to-severity mapping is itself a tunable: the defaults match
  the observed review report, overrides come in via the RuleSet.

SEE ALSO:
  - resolver.go: Uses EligibleStatuses
  - aggregate.go: Uses RentChargeCode and ClassifyMissingRent
  - factory/: Parses a RuleSet from JSON config
*/
package lease

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MISSING-RENT CLASSIFICATION
// =============================================================================

// ChargeClass is the business classification of a zero-rent amendment.
type ChargeClass string

const (
	ClassRentExpected   ChargeClass = "RENT_EXPECTED"
	ClassHistoricalRent ChargeClass = "HISTORICAL_RENT"
	ClassReviewRequired ChargeClass = "REVIEW_REQUIRED"
	ClassTerminationOK  ChargeClass = "TERMINATION_OK"
)

// Severity scores a finding for the business-review export.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityOK       Severity = "OK"
)

// =============================================================================
// RULE SET
// =============================================================================

// RuleSet bundles every tunable rule. Treat as immutable once built;
// a reconcile run captures one RuleSet for its whole lifetime.
type RuleSet struct {
	// EligibleStatuses are the statuses an amendment may hold and still
	// govern a rent roll. Default: activated and superseded (a superseded
	// amendment still governs dates before its successor took over).
	EligibleStatuses map[Status]bool

	// RentChargeCode is the charge code aggregated as monthly rent.
	RentChargeCode ChargeCode

	// ClassSeverity maps the missing-rent business classes to severities.
	ClassSeverity map[ChargeClass]Severity

	// RentableArea is injected reference data: total rentable square
	// footage per property, used for the leased-area sanity check.
	// Properties absent from the map are not checked.
	RentableArea map[PropertyKey]decimal.Decimal

	// AreaTolerance is the fraction by which the summed leased area may
	// exceed a property's rentable area before a finding is raised.
	// 0.05 = 5%. A data-quality check, not a hard constraint.
	AreaTolerance decimal.Decimal
}

// DefaultRuleSet returns the rules matching the documented business
// defaults. Callers copy-and-modify rather than mutate shared state.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		EligibleStatuses: map[Status]bool{
			StatusActivated:  true,
			StatusSuperseded: true,
		},
		RentChargeCode: ChargeRent,
		ClassSeverity: map[ChargeClass]Severity{
			ClassRentExpected:   SeverityCritical,
			ClassHistoricalRent: SeverityHigh,
			ClassReviewRequired: SeverityMedium,
			ClassTerminationOK:  SeverityOK,
		},
		AreaTolerance: decimal.NewFromFloat(0.05),
	}
}

// Eligible applies the governing-amendment eligibility predicate:
// status in the configured set, not a termination, and the amendment's
// date window covers asOf. A zero End means open-ended and always
// covers any future asOf.
func (r RuleSet) Eligible(a Amendment, asOf Date) bool {
	if !r.EligibleStatuses[a.Status] {
		return false
	}
	if a.Type == TypeTermination {
		return false
	}
	if asOf.Before(a.Start) {
		return false
	}
	return a.OpenEnded() || a.End.AfterOrEqual(asOf)
}

// ClassifyMissingRent classifies an amendment that resolved with
// leased area but no active rent charge.
func (r RuleSet) ClassifyMissingRent(a Amendment) (ChargeClass, Severity) {
	var class ChargeClass
	switch {
	case a.Type == TypeTermination:
		class = ClassTerminationOK
	case a.Status == StatusActivated:
		class = ClassRentExpected
	case a.Status == StatusSuperseded:
		class = ClassHistoricalRent
	default:
		class = ClassReviewRequired
	}

	sev, ok := r.ClassSeverity[class]
	if !ok {
		sev = SeverityMedium
	}
	return class, sev
}

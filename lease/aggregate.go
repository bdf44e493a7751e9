/*
aggregate.go - Charge aggregation for a resolved amendment

PURPOSE:
  Turns the resolver's winner into rent-roll numbers: monthly rent is
  the sum of the amendment's rent charges active at the as-of date;
  leased area comes straight off the amendment.

WHAT THIS DELIBERATELY DOES NOT DO:
  - Impute a rent when no charge matches. An active amendment with
    square footage and zero rent charges is a data problem for humans,
    not a number for the engine to invent. The aggregator leaves the
    active-charge list empty and the reconciler classifies the gap
    (RENT_EXPECTED / HISTORICAL_RENT / REVIEW_REQUIRED / TERMINATION_OK).
  - Sum non-rent codes. CAM, tax and friends ride along in the store
    but the rent roll is rent.

SEE ALSO:
  - resolver.go: Produces the amendment this consumes
  - ruleset.go: RentChargeCode and missing-rent classification
*/
package lease

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	Store Store
	Rules RuleSet
}

func NewAggregator(store Store, rules RuleSet) *Aggregator {
	return &Aggregator{Store: store, Rules: rules}
}

// Aggregate computes the rent-roll row for a resolved amendment as of a
// date. Pure read: same snapshot + inputs, same output.
func (g *Aggregator) Aggregate(ctx context.Context, a Amendment, asOf Date) (ResolvedLeaseState, error) {
	charges, err := g.Store.ChargesFor(ctx, a.ID)
	if err != nil {
		return ResolvedLeaseState{}, err
	}

	rent := decimal.Zero
	var active []ChargeScheduleEntry
	for _, c := range charges {
		if c.Code != g.Rules.RentChargeCode {
			continue
		}
		if !c.ActiveAt(asOf) {
			continue
		}
		rent = rent.Add(c.MonthlyAmount)
		active = append(active, c)
	}

	return ResolvedLeaseState{
		Property:    a.Property,
		Tenant:      a.Tenant,
		AmendmentID: a.ID,
		Sequence:    a.Sequence,
		AsOf:        asOf,
		MonthlyRent: rent,
		LeasedArea:  a.LeasedArea,
		Charges:     active,
	}, nil
}

// MissingRent reports whether a resolved state should be flagged:
// positive leased area with no active rent charge.
func (s ResolvedLeaseState) MissingRent() bool {
	return s.LeasedArea.IsPositive() && len(s.Charges) == 0
}

/*
resolver.go - Governing-amendment selection

PURPOSE:
  Implements the single rule everything else hangs off: given every
  amendment for one tenancy and an as-of date, which ONE amendment
  governs? The amendment ledger repeats the answer all over the upstream
  reporting stack; here it exists exactly once.

THE RULE:
  1. Filter to eligible amendments (RuleSet.Eligible): status in the
     configured set, not a termination, date window covers asOf.
  2. The maximum sequence number among the eligible set wins.
  3. A tie at the maximum is NEVER broken. Two rows both claiming to be
     the latest amendment is a ledger defect; picking one at random
     would make the rent roll quietly wrong. The resolver returns an
     AmbiguousResolutionError and the reconciler reports the key.

OUTCOMES:
  Resolved   - exactly one governing amendment
  NotFound   - ErrNoEligibleAmendment (vacant / terminated; not an error
               in any meaningful sense, callers branch on IsVacancy)
  Ambiguous  - AmbiguousResolutionError wrapping ErrResolutionAmbiguous

PURITY:
  Resolve is a pure function of the store snapshot and asOf. Same
  inputs, same output, every time. No retries, no side effects.

SEE ALSO:
  - ruleset.go: The eligibility predicate
  - aggregate.go: What happens to the winner
*/
package lease

import "context"

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	Store Store
	Rules RuleSet
}

func NewResolver(store Store, rules RuleSet) *Resolver {
	return &Resolver{Store: store, Rules: rules}
}

// Resolve selects the governing amendment for a tenancy as of a date.
//
// Returns:
//   - the amendment, nil error on success
//   - ErrNoEligibleAmendment when the tenancy is vacant/terminated
//   - *AmbiguousResolutionError on a duplicate max-sequence tie
func (r *Resolver) Resolve(ctx context.Context, property PropertyKey, tenant TenantKey, asOf Date) (Amendment, error) {
	amendments, err := r.Store.AmendmentsFor(ctx, property, tenant)
	if err != nil {
		return Amendment{}, err
	}

	// Collect eligible candidates and track the max sequence in one pass.
	// The store gives no ordering guarantee, so we never early-exit.
	var (
		best    Amendment
		found   bool
		tiedIDs []AmendmentID
	)
	for _, a := range amendments {
		if !r.Rules.Eligible(a, asOf) {
			continue
		}
		switch {
		case !found || a.Sequence > best.Sequence:
			best = a
			found = true
			tiedIDs = tiedIDs[:0]
		case a.Sequence == best.Sequence:
			if len(tiedIDs) == 0 {
				tiedIDs = append(tiedIDs, best.ID)
			}
			tiedIDs = append(tiedIDs, a.ID)
		}
	}

	if !found {
		return Amendment{}, ErrNoEligibleAmendment
	}
	if len(tiedIDs) > 0 {
		return Amendment{}, &AmbiguousResolutionError{
			Key:        Key{Property: property, Tenant: tenant},
			Sequence:   best.Sequence,
			Amendments: tiedIDs,
		}
	}
	return best, nil
}

// ResolveKey is Resolve for a Key value.
func (r *Resolver) ResolveKey(ctx context.Context, k Key, asOf Date) (Amendment, error) {
	return r.Resolve(ctx, k.Property, k.Tenant, asOf)
}

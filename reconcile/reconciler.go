/*
reconciler.go - Full-portfolio reconciliation

PURPOSE:
  Drives every tenancy in the store through the resolver and the
  aggregator, producing the rent roll and the complete findings report
  in one pass. This is the batch entry point the reporting layer calls.

PIPELINE (per run):
  1. Per distinct (property, tenant) key: resolve, then aggregate.
     - Ambiguous resolution -> DuplicateActiveAmendment finding, key
       excluded from the rent roll. Conservative: never guess.
     - Vacancy -> no row, no finding.
     - Resolved with area but no rent -> MissingExpectedCharge finding,
       classified by the rule set; the row still makes the rent roll.
     - Aggregated rent below zero -> NegativeRentCharge finding, key
       excluded. Load validation rejects negative charges on the default
       rent code, but the rent code is tunable; this guard holds the
       rent-roll invariant (monthly rent never negative) for any code.
  2. Full charge scan: entries referencing absent amendments ->
     OrphanedCharge findings.
  3. Full amendment scan: end date before start date ->
     InvalidDateSequence findings.
  4. Per-property leased-area total vs. rentable area ->
     AreaToleranceExceeded findings when beyond tolerance.
  5. Counts per kind and severity into the Summary.

CONCURRENCY:
  Step 1 is embarrassingly parallel: keys share no mutable state. An
  errgroup with a bounded worker count fans out over the key list; each
  worker writes to its own slot in a pre-sized slice, so the merge is a
  race-free flatten. Output is sorted afterwards, which also makes runs
  deterministic regardless of scheduling.

RUN SEMANTICS:
  A run always completes with a Result. Data-quality problems become
  findings, never errors. The only structural failure is an empty store
  (ErrEmptyStore) or a store I/O error.

SEE ALSO:
  - lease/resolver.go, lease/aggregate.go: The per-key computation
  - report.go: CSV export of the Result
*/
package reconcile

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/rentroll-engine/lease"
)

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	Store lease.Store
	Rules lease.RuleSet

	// Workers bounds the resolution pool. Zero means GOMAXPROCS.
	Workers int
}

func New(store lease.Store, rules lease.RuleSet) *Reconciler {
	return &Reconciler{Store: store, Rules: rules}
}

// keyResult is one worker's output. Each worker owns exactly one slot.
type keyResult struct {
	row      *lease.ResolvedLeaseState
	findings []Finding
	vacant   bool
	excluded bool
}

// Reconcile runs the full portfolio as of a date.
func (r *Reconciler) Reconcile(ctx context.Context, asOf lease.Date) (*Result, error) {
	keys, err := r.Store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, lease.ErrEmptyStore
	}

	// Stable key order in, stable result out.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Property != keys[j].Property {
			return keys[i].Property < keys[j].Property
		}
		return keys[i].Tenant < keys[j].Tenant
	})

	resolver := lease.NewResolver(r.Store, r.Rules)
	aggregator := lease.NewAggregator(r.Store, r.Rules)

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]keyResult, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			res, err := r.resolveKey(gctx, resolver, aggregator, k, asOf)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:   uuid.NewString(),
		AsOf:    asOf,
		Summary: newSummary(),
	}
	result.Summary.PairsExamined = len(keys)

	for _, res := range results {
		if res.row != nil {
			result.RentRoll = append(result.RentRoll, *res.row)
		}
		result.Findings = append(result.Findings, res.findings...)
		if res.vacant {
			result.Summary.VacantPairs++
		}
		if res.excluded {
			result.Summary.ExcludedPairs++
		}
	}

	orphans, err := r.scanOrphans(ctx)
	if err != nil {
		return nil, err
	}
	result.Findings = append(result.Findings, orphans...)

	dates, err := r.scanDateSequences(ctx)
	if err != nil {
		return nil, err
	}
	result.Findings = append(result.Findings, dates...)

	result.Findings = append(result.Findings, r.checkAreaTolerance(result.RentRoll)...)

	sortFindings(result.Findings)
	for _, f := range result.Findings {
		result.Summary.count(f)
	}
	result.Summary.RentRollRows = len(result.RentRoll)

	return result, nil
}

// resolveKey is the per-worker unit: one tenancy, terminal in all three
// outcomes (resolved, vacant, ambiguous). No retries - this is pure
// computation, not I/O.
func (r *Reconciler) resolveKey(ctx context.Context, resolver *lease.Resolver, aggregator *lease.Aggregator, k lease.Key, asOf lease.Date) (keyResult, error) {
	a, err := resolver.ResolveKey(ctx, k, asOf)
	if err != nil {
		if lease.IsVacancy(err) {
			return keyResult{vacant: true}, nil
		}
		if amb, ok := err.(*lease.AmbiguousResolutionError); ok {
			return keyResult{
				excluded: true,
				findings: []Finding{{
					Kind:     KindDuplicateActiveAmendment,
					Severity: lease.SeverityCritical,
					Property: k.Property,
					Tenant:   k.Tenant,
					Detail: fmt.Sprintf("%d amendments tied at sequence %d (%v); excluded from rent roll",
						len(amb.Amendments), amb.Sequence, amb.Amendments),
				}},
			}, nil
		}
		return keyResult{}, err
	}

	state, err := aggregator.Aggregate(ctx, a, asOf)
	if err != nil {
		return keyResult{}, err
	}

	if state.MonthlyRent.IsNegative() {
		return keyResult{
			excluded: true,
			findings: []Finding{{
				Kind:        KindNegativeRentCharge,
				Severity:    lease.SeverityCritical,
				Property:    k.Property,
				Tenant:      k.Tenant,
				AmendmentID: a.ID,
				Detail: fmt.Sprintf("amendment %s aggregates to %s monthly %q; row withheld from rent roll",
					a.ID, state.MonthlyRent, r.Rules.RentChargeCode),
			}},
		}, nil
	}

	res := keyResult{row: &state}
	if state.MissingRent() {
		class, sev := r.Rules.ClassifyMissingRent(a)
		res.findings = append(res.findings, Finding{
			Kind:        KindMissingExpectedCharge,
			Severity:    sev,
			Class:       class,
			Property:    k.Property,
			Tenant:      k.Tenant,
			AmendmentID: a.ID,
			Detail: fmt.Sprintf("amendment %s has %s SF leased and no active %q charge as of %s (%s)",
				a.ID, state.LeasedArea, r.Rules.RentChargeCode, asOf, class),
		})
	}
	return res, nil
}

// scanOrphans flags charge entries whose amendment is absent. Reported
// only; purging is the operator's explicit, backed-up call.
func (r *Reconciler) scanOrphans(ctx context.Context) ([]Finding, error) {
	charges, err := r.Store.Charges(ctx)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, c := range charges {
		if _, err := r.Store.Amendment(ctx, c.AmendmentID); err == nil {
			continue
		}
		findings = append(findings, Finding{
			Kind:        KindOrphanedCharge,
			Severity:    lease.SeverityHigh,
			AmendmentID: c.AmendmentID,
			ChargeID:    c.ID,
			Detail: fmt.Sprintf("charge %s references amendment %s which does not exist",
				c.ID, c.AmendmentID),
		})
	}
	return findings, nil
}

// scanDateSequences flags amendments whose end date precedes their
// start date. Remediation is a separate, audited command.
func (r *Reconciler) scanDateSequences(ctx context.Context) ([]Finding, error) {
	amendments, err := r.Store.Amendments(ctx)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, a := range amendments {
		if a.HasValidDates() {
			continue
		}
		findings = append(findings, Finding{
			Kind:        KindInvalidDateSequence,
			Severity:    lease.SeverityHigh,
			Property:    a.Property,
			Tenant:      a.Tenant,
			AmendmentID: a.ID,
			Detail: fmt.Sprintf("amendment %s ends %s before it starts %s",
				a.ID, a.End, a.Start),
		})
	}
	return findings, nil
}

// checkAreaTolerance compares each property's summed leased area against
// its rentable area. Properties without reference data are skipped.
func (r *Reconciler) checkAreaTolerance(rentRoll []lease.ResolvedLeaseState) []Finding {
	if len(r.Rules.RentableArea) == 0 {
		return nil
	}

	totals := make(map[lease.PropertyKey]decimal.Decimal)
	for _, row := range rentRoll {
		totals[row.Property] = totals[row.Property].Add(row.LeasedArea)
	}

	var findings []Finding
	for property, leased := range totals {
		rentable, ok := r.Rules.RentableArea[property]
		if !ok || !rentable.IsPositive() {
			continue
		}
		limit := rentable.Mul(decimal.NewFromInt(1).Add(r.Rules.AreaTolerance))
		if leased.LessThanOrEqual(limit) {
			continue
		}
		findings = append(findings, Finding{
			Kind:     KindAreaToleranceExceeded,
			Severity: lease.SeverityMedium,
			Property: property,
			Detail: fmt.Sprintf("leased area %s exceeds rentable area %s beyond %s tolerance",
				leased, rentable, r.Rules.AreaTolerance),
		})
	}
	return findings
}

// sortFindings orders findings for deterministic output: kind, then
// affected keys, then record IDs.
func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Property != b.Property {
			return a.Property < b.Property
		}
		if a.Tenant != b.Tenant {
			return a.Tenant < b.Tenant
		}
		if a.AmendmentID != b.AmendmentID {
			return a.AmendmentID < b.AmendmentID
		}
		return a.ChargeID < b.ChargeID
	})
}

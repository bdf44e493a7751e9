/*
report.go - Business-review exports

PURPOSE:
  Renders a reconcile Result for the consumers downstream of this
  engine: the rent-roll CSV the reporting layer loads, the findings CSV
  the business-review workflow walks, and a plain-text run summary for
  logs and CLI output.

FORMAT NOTES:
  - Dates are YYYY-MM-DD; open-ended dates are empty cells.
  - Amounts use decimal string rendering - no float rounding noise.
  - Findings are pre-sorted by the reconciler, so the export is stable
    across identical runs (diff-friendly).
*/
package reconcile

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/warp/rentroll-engine/lease"
)

// =============================================================================
// RENT ROLL CSV
// =============================================================================

var rentRollHeader = []string{
	"property_key", "tenant_key", "amendment_id", "sequence",
	"as_of", "monthly_rent", "leased_area",
}

// WriteRentRollCSV writes the rent roll, one row per resolved tenancy.
func WriteRentRollCSV(w io.Writer, rentRoll []lease.ResolvedLeaseState) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rentRollHeader); err != nil {
		return err
	}
	for _, row := range rentRoll {
		record := []string{
			string(row.Property),
			string(row.Tenant),
			string(row.AmendmentID),
			strconv.Itoa(row.Sequence),
			row.AsOf.String(),
			row.MonthlyRent.String(),
			row.LeasedArea.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// FINDINGS CSV
// =============================================================================

var findingsHeader = []string{
	"kind", "severity", "class", "property_key", "tenant_key",
	"amendment_id", "charge_id", "detail",
}

// WriteFindingsCSV writes the findings report for business review.
func WriteFindingsCSV(w io.Writer, findings []Finding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(findingsHeader); err != nil {
		return err
	}
	for _, f := range findings {
		record := []string{
			string(f.Kind),
			string(f.Severity),
			string(f.Class),
			string(f.Property),
			string(f.Tenant),
			string(f.AmendmentID),
			string(f.ChargeID),
			f.Detail,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// TEXT SUMMARY
// =============================================================================

// WriteSummary writes the per-kind / per-severity counts as text.
func WriteSummary(w io.Writer, result *Result) error {
	s := result.Summary
	if _, err := fmt.Fprintf(w, "run %s as of %s\n", result.RunID, result.AsOf); err != nil {
		return err
	}
	fmt.Fprintf(w, "  pairs examined: %d\n", s.PairsExamined)
	fmt.Fprintf(w, "  rent roll rows: %d\n", s.RentRollRows)
	fmt.Fprintf(w, "  vacant:         %d\n", s.VacantPairs)
	fmt.Fprintf(w, "  excluded:       %d\n", s.ExcludedPairs)
	fmt.Fprintf(w, "  findings:       %d\n", s.Total())

	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "    %-26s %d\n", k, s.ByKind[FindingKind(k)])
	}

	severities := []lease.Severity{
		lease.SeverityCritical, lease.SeverityHigh, lease.SeverityMedium, lease.SeverityOK,
	}
	for _, sev := range severities {
		if n, ok := s.BySeverity[sev]; ok {
			fmt.Fprintf(w, "    severity %-8s %d\n", sev, n)
		}
	}
	return nil
}

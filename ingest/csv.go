/*
Package ingest adapts tabular sources into the amendment ledger.

PURPOSE:
  The engine consumes two datasets - amendments and charge schedules -
  as plain record slices. This package turns external tabular sources
  into those slices. CSV is the reference format; anything tabular can
  implement RecordSource.

MALFORMED RECORDS:
  A row with an unparseable required field is skipped, reported as a
  RecordError with its line number, and the read continues. A bad row
  never aborts an import. Rows that parse but violate business
  invariants (negative rent, duplicate IDs) are caught one layer down
  by the store's Load.

CSV COLUMNS:
  amendments: amendment_id, property_key, tenant_key, sequence,
              status, amendment_type, start_date, end_date, leased_area
  charges:    charge_id, amendment_id, charge_code, monthly_amount,
              from_date, to_date

  Header row required. Column order is taken from the header, so
  upstream exports may reorder columns freely. Dates are YYYY-MM-DD;
  empty end_date / to_date means open-ended.

SEE ALSO:
  - lease/store.go: Load consumes the output
  - reconcile/report.go: The mirror-image export side
*/
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/rentroll-engine/lease"
)

// =============================================================================
// RECORD SOURCE
// =============================================================================

// RecordSource is any tabular source of ledger records. Implementations
// return parse-level failures per record; only structural failures
// (unreadable source, missing header) surface as the error.
type RecordSource interface {
	ReadAmendments() ([]lease.Amendment, []RecordError, error)
	ReadCharges() ([]lease.ChargeScheduleEntry, []RecordError, error)
}

// RecordError is one skipped row.
type RecordError struct {
	Line  int
	Cause error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Cause)
}

// =============================================================================
// CSV SOURCE
// =============================================================================

// CSVSource reads the two reference CSV datasets.
type CSVSource struct {
	AmendmentsR io.Reader
	ChargesR    io.Reader
}

func NewCSVSource(amendments, charges io.Reader) *CSVSource {
	return &CSVSource{AmendmentsR: amendments, ChargesR: charges}
}

var _ RecordSource = (*CSVSource)(nil)

// ReadAmendments parses the amendment dataset.
func (s *CSVSource) ReadAmendments() ([]lease.Amendment, []RecordError, error) {
	rows, header, err := readAll(s.AmendmentsR)
	if err != nil {
		return nil, nil, err
	}

	required := []string{
		"amendment_id", "property_key", "tenant_key", "sequence",
		"status", "amendment_type", "start_date",
	}
	if err := checkHeader(header, required); err != nil {
		return nil, nil, err
	}

	var (
		amendments []lease.Amendment
		skipped    []RecordError
	)
	for _, row := range rows {
		a, err := parseAmendment(header, row.fields)
		if err != nil {
			skipped = append(skipped, RecordError{Line: row.line, Cause: err})
			continue
		}
		amendments = append(amendments, a)
	}
	return amendments, skipped, nil
}

// ReadCharges parses the charge-schedule dataset.
func (s *CSVSource) ReadCharges() ([]lease.ChargeScheduleEntry, []RecordError, error) {
	rows, header, err := readAll(s.ChargesR)
	if err != nil {
		return nil, nil, err
	}

	required := []string{"charge_id", "amendment_id", "charge_code", "monthly_amount"}
	if err := checkHeader(header, required); err != nil {
		return nil, nil, err
	}

	var (
		charges []lease.ChargeScheduleEntry
		skipped []RecordError
	)
	for _, row := range rows {
		c, err := parseCharge(header, row.fields)
		if err != nil {
			skipped = append(skipped, RecordError{Line: row.line, Cause: err})
			continue
		}
		charges = append(charges, c)
	}
	return charges, skipped, nil
}

// =============================================================================
// PARSING
// =============================================================================

type csvRow struct {
	line   int
	fields []string
}

// readAll reads header + rows, mapping column names to indexes.
// Variable field counts are tolerated per row and caught during lookup.
func readAll(r io.Reader) ([]csvRow, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	headerFields, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	header := make(map[string]int, len(headerFields))
	for i, name := range headerFields {
		header[name] = i
	}

	var rows []csvRow
	line := 1
	for {
		fields, err := cr.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read line %d: %w", line, err)
		}
		rows = append(rows, csvRow{line: line, fields: fields})
	}
	return rows, header, nil
}

func checkHeader(header map[string]int, required []string) error {
	for _, name := range required {
		if _, ok := header[name]; !ok {
			return fmt.Errorf("missing required column %q", name)
		}
	}
	return nil
}

func field(header map[string]int, fields []string, name string) string {
	i, ok := header[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func parseAmendment(header map[string]int, fields []string) (lease.Amendment, error) {
	seq, err := strconv.Atoi(field(header, fields, "sequence"))
	if err != nil {
		return lease.Amendment{}, fmt.Errorf("sequence: %w", err)
	}

	start, err := lease.ParseDate(field(header, fields, "start_date"))
	if err != nil {
		return lease.Amendment{}, fmt.Errorf("start_date: %w", err)
	}
	if start.IsZero() {
		return lease.Amendment{}, fmt.Errorf("start_date: missing")
	}

	end, err := lease.ParseDate(field(header, fields, "end_date"))
	if err != nil {
		return lease.Amendment{}, fmt.Errorf("end_date: %w", err)
	}

	area := decimal.Zero
	if s := field(header, fields, "leased_area"); s != "" {
		area, err = decimal.NewFromString(s)
		if err != nil {
			return lease.Amendment{}, fmt.Errorf("leased_area: %w", err)
		}
	}

	return lease.Amendment{
		ID:         lease.AmendmentID(field(header, fields, "amendment_id")),
		Property:   lease.PropertyKey(field(header, fields, "property_key")),
		Tenant:     lease.TenantKey(field(header, fields, "tenant_key")),
		Sequence:   seq,
		Status:     ParseStatus(field(header, fields, "status")),
		Type:       ParseType(field(header, fields, "amendment_type")),
		Start:      start,
		End:        end,
		LeasedArea: area,
	}, nil
}

func parseCharge(header map[string]int, fields []string) (lease.ChargeScheduleEntry, error) {
	amount, err := decimal.NewFromString(field(header, fields, "monthly_amount"))
	if err != nil {
		return lease.ChargeScheduleEntry{}, fmt.Errorf("monthly_amount: %w", err)
	}

	from, err := lease.ParseDate(field(header, fields, "from_date"))
	if err != nil {
		return lease.ChargeScheduleEntry{}, fmt.Errorf("from_date: %w", err)
	}
	to, err := lease.ParseDate(field(header, fields, "to_date"))
	if err != nil {
		return lease.ChargeScheduleEntry{}, fmt.Errorf("to_date: %w", err)
	}

	return lease.ChargeScheduleEntry{
		ID:            lease.ChargeID(field(header, fields, "charge_id")),
		AmendmentID:   lease.AmendmentID(field(header, fields, "amendment_id")),
		Code:          lease.ChargeCode(field(header, fields, "charge_code")),
		MonthlyAmount: amount,
		From:          from,
		To:            to,
	}, nil
}

// ParseStatus normalizes the upstream status vocabulary. Yardi exports
// use mixed casing; anything unrecognized maps to StatusOther so the
// record loads and the eligibility rules exclude it. Shared by every
// ingestion surface so a status spelled "Activated" governs the same
// way regardless of how it arrived.
func ParseStatus(s string) lease.Status {
	switch normalize(s) {
	case "activated", "active":
		return lease.StatusActivated
	case "superseded":
		return lease.StatusSuperseded
	case "in_process", "inprocess", "in process":
		return lease.StatusInProcess
	default:
		return lease.StatusOther
	}
}

// ParseType normalizes the upstream amendment-type vocabulary.
func ParseType(s string) lease.AmendmentType {
	switch normalize(s) {
	case "original_lease", "originallease", "original lease":
		return lease.TypeOriginalLease
	case "renewal":
		return lease.TypeRenewal
	case "termination":
		return lease.TypeTermination
	default:
		return lease.TypeOther
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

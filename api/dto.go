/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Monetary amounts and areas are JSON strings (decimal rendering, no
  float rounding); dates are YYYY-MM-DD strings, empty for open-ended.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/rentroll-engine/lease"
	"github.com/warp/rentroll-engine/reconcile"
	"github.com/warp/rentroll-engine/store/sqlite"
)

// =============================================================================
// LEDGER RECORDS
// =============================================================================

// AmendmentDTO represents one amendment row in load requests and
// drill-down responses.
type AmendmentDTO struct {
	ID             string `json:"id"`
	PropertyKey    string `json:"property_key"`
	TenantKey      string `json:"tenant_key"`
	Sequence       int    `json:"sequence"`
	Status         string `json:"status"`
	AmendmentType  string `json:"amendment_type"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date,omitempty"`
	LeasedArea     string `json:"leased_area"`
	SupersededNote string `json:"superseded_note,omitempty"`
}

// ChargeDTO represents one charge-schedule entry.
type ChargeDTO struct {
	ID            string `json:"id"`
	AmendmentID   string `json:"amendment_id"`
	ChargeCode    string `json:"charge_code"`
	MonthlyAmount string `json:"monthly_amount"`
	FromDate      string `json:"from_date,omitempty"`
	ToDate        string `json:"to_date,omitempty"`
}

// LoadRequest bulk-loads the ledger over the API.
type LoadRequest struct {
	Amendments []AmendmentDTO `json:"amendments"`
	Charges    []ChargeDTO    `json:"charges"`
}

// LoadResponse reports what the store accepted.
type LoadResponse struct {
	AmendmentsLoaded  int      `json:"amendments_loaded"`
	AmendmentsSkipped int      `json:"amendments_skipped"`
	ChargesLoaded     int      `json:"charges_loaded"`
	ChargesSkipped    int      `json:"charges_skipped"`
	Skipped           []string `json:"skipped,omitempty"`
}

// =============================================================================
// RECONCILE
// =============================================================================

// ReconcileRequest triggers a run. AsOf defaults to today.
type ReconcileRequest struct {
	AsOf string `json:"as_of,omitempty"`
}

// RentRollRowDTO is one resolved tenancy.
type RentRollRowDTO struct {
	PropertyKey string `json:"property_key"`
	TenantKey   string `json:"tenant_key"`
	AmendmentID string `json:"amendment_id"`
	Sequence    int    `json:"sequence"`
	AsOf        string `json:"as_of"`
	MonthlyRent string `json:"monthly_rent"`
	LeasedArea  string `json:"leased_area"`
}

// FindingDTO is one detected anomaly.
type FindingDTO struct {
	Kind        string `json:"kind"`
	Severity    string `json:"severity"`
	Class       string `json:"class,omitempty"`
	PropertyKey string `json:"property_key,omitempty"`
	TenantKey   string `json:"tenant_key,omitempty"`
	AmendmentID string `json:"amendment_id,omitempty"`
	ChargeID    string `json:"charge_id,omitempty"`
	Detail      string `json:"detail"`
}

// SummaryDTO aggregates one run.
type SummaryDTO struct {
	RunID         string         `json:"run_id"`
	AsOf          string         `json:"as_of"`
	PairsExamined int            `json:"pairs_examined"`
	RentRollRows  int            `json:"rent_roll_rows"`
	VacantPairs   int            `json:"vacant_pairs"`
	ExcludedPairs int            `json:"excluded_pairs"`
	Findings      int            `json:"findings"`
	ByKind        map[string]int `json:"by_kind"`
	BySeverity    map[string]int `json:"by_severity"`
}

// ReconcileResponse is the full result of a run.
type ReconcileResponse struct {
	Summary  SummaryDTO       `json:"summary"`
	RentRoll []RentRollRowDTO `json:"rent_roll"`
	Findings []FindingDTO     `json:"findings"`
}

// =============================================================================
// ADMIN
// =============================================================================

// RemediateRequest clears an invalid end date with an audit note.
type RemediateRequest struct {
	AmendmentID string `json:"amendment_id"`
	Note        string `json:"note"`
}

// AdminResponse reports a completed mutation and its backup reference.
type AdminResponse struct {
	BackupRef string   `json:"backup_ref"`
	Purged    []string `json:"purged,omitempty"`
}

// RunDTO is one historical reconcile run.
type RunDTO struct {
	ID            string         `json:"id"`
	AsOf          string         `json:"as_of"`
	PairsExamined int            `json:"pairs_examined"`
	RentRollRows  int            `json:"rent_roll_rows"`
	Findings      int            `json:"findings"`
	ByKind        map[string]int `json:"by_kind"`
	CreatedAt     string         `json:"created_at"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRentRollRowDTO(row lease.ResolvedLeaseState) RentRollRowDTO {
	return RentRollRowDTO{
		PropertyKey: string(row.Property),
		TenantKey:   string(row.Tenant),
		AmendmentID: string(row.AmendmentID),
		Sequence:    row.Sequence,
		AsOf:        row.AsOf.String(),
		MonthlyRent: row.MonthlyRent.String(),
		LeasedArea:  row.LeasedArea.String(),
	}
}

func toFindingDTO(f reconcile.Finding) FindingDTO {
	return FindingDTO{
		Kind:        string(f.Kind),
		Severity:    string(f.Severity),
		Class:       string(f.Class),
		PropertyKey: string(f.Property),
		TenantKey:   string(f.Tenant),
		AmendmentID: string(f.AmendmentID),
		ChargeID:    string(f.ChargeID),
		Detail:      f.Detail,
	}
}

func toSummaryDTO(result *reconcile.Result) SummaryDTO {
	byKind := make(map[string]int, len(result.Summary.ByKind))
	for k, n := range result.Summary.ByKind {
		byKind[string(k)] = n
	}
	bySeverity := make(map[string]int, len(result.Summary.BySeverity))
	for s, n := range result.Summary.BySeverity {
		bySeverity[string(s)] = n
	}
	return SummaryDTO{
		RunID:         result.RunID,
		AsOf:          result.AsOf.String(),
		PairsExamined: result.Summary.PairsExamined,
		RentRollRows:  result.Summary.RentRollRows,
		VacantPairs:   result.Summary.VacantPairs,
		ExcludedPairs: result.Summary.ExcludedPairs,
		Findings:      result.Summary.Total(),
		ByKind:        byKind,
		BySeverity:    bySeverity,
	}
}

func toRunDTO(run sqlite.RunRecord) RunDTO {
	return RunDTO{
		ID:            run.ID,
		AsOf:          run.AsOf,
		PairsExamined: run.PairsExamined,
		RentRollRows:  run.RentRollRows,
		Findings:      run.Findings,
		ByKind:        run.ByKind,
		CreatedAt:     run.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

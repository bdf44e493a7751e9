/*
handlers.go - HTTP API handlers for the rent-roll engine

PURPOSE:
  Exposes the reconciliation engine via REST API for the reporting
  layer. Handles HTTP request/response, JSON serialization, and
  delegates to the domain logic.

ENDPOINTS:
  Ledger:
    POST   /api/load                     Bulk-load amendments + charges

  Reconciliation:
    POST   /api/reconcile                Run reconcile, record the run
    GET    /api/rentroll?as_of=          Rent roll as of a date
    GET    /api/findings?as_of=          Findings as of a date
    GET    /api/export/rentroll.csv      Rent-roll CSV export
    GET    /api/export/findings.csv      Findings CSV export
    GET    /api/runs                     Run history

  Admin (operator-invoked, backup-gated):
    POST   /api/admin/purge-orphans      Purge orphaned charges
    POST   /api/admin/remediate-dates    Clear an invalid end date
    GET    /api/backups/{ref}            Pre-images under a backup ref

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Empty store, remediation preconditions
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/rentroll-engine/ingest"
	"github.com/warp/rentroll-engine/lease"
	"github.com/warp/rentroll-engine/reconcile"
	"github.com/warp/rentroll-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Rules   lease.RuleSet
	Metrics *Metrics

	// Workers bounds the reconcile pool; zero means GOMAXPROCS.
	Workers int
}

// NewHandler creates a new handler with the given store and rules.
func NewHandler(store *sqlite.Store, rules lease.RuleSet) *Handler {
	return &Handler{
		Store:   store,
		Rules:   rules,
		Metrics: NewMetrics(),
	}
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// LoadLedger bulk-loads amendment and charge records.
func (h *Handler) LoadLedger(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		amendments []lease.Amendment
		charges    []lease.ChargeScheduleEntry
		skipped    []string
	)
	for _, dto := range req.Amendments {
		a, err := parseAmendmentDTO(dto)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("amendment %s: %v", dto.ID, err))
			continue
		}
		amendments = append(amendments, a)
	}
	for _, dto := range req.Charges {
		c, err := parseChargeDTO(dto)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("charge %s: %v", dto.ID, err))
			continue
		}
		charges = append(charges, c)
	}

	report, err := h.Store.Load(r.Context(), amendments, charges)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	for _, rec := range report.Skipped {
		skipped = append(skipped, rec.Error())
	}
	if len(skipped) > 0 {
		log.Printf("load: skipped %d malformed records", len(skipped))
	}

	writeJSON(w, http.StatusOK, LoadResponse{
		AmendmentsLoaded:  report.AmendmentsLoaded,
		AmendmentsSkipped: report.AmendmentsSkipped + (len(req.Amendments) - len(amendments)),
		ChargesLoaded:     report.ChargesLoaded,
		ChargesSkipped:    report.ChargesSkipped + (len(req.Charges) - len(charges)),
		Skipped:           skipped,
	})
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// Reconcile runs a full reconciliation and records the run.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	result, status, err := h.run(r, req.AsOf)
	if err != nil {
		writeError(w, status, "Reconcile failed", err)
		return
	}

	resp := ReconcileResponse{Summary: toSummaryDTO(result)}
	for _, row := range result.RentRoll {
		resp.RentRoll = append(resp.RentRoll, toRentRollRowDTO(row))
	}
	for _, f := range result.Findings {
		resp.Findings = append(resp.Findings, toFindingDTO(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RentRoll returns the rent roll as of a date.
func (h *Handler) RentRoll(w http.ResponseWriter, r *http.Request) {
	result, status, err := h.run(r, r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, status, "Failed to compute rent roll", err)
		return
	}

	rows := make([]RentRollRowDTO, 0, len(result.RentRoll))
	for _, row := range result.RentRoll {
		rows = append(rows, toRentRollRowDTO(row))
	}
	writeJSON(w, http.StatusOK, rows)
}

// Findings returns the findings report as of a date.
func (h *Handler) Findings(w http.ResponseWriter, r *http.Request) {
	result, status, err := h.run(r, r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, status, "Failed to compute findings", err)
		return
	}

	findings := make([]FindingDTO, 0, len(result.Findings))
	for _, f := range result.Findings {
		findings = append(findings, toFindingDTO(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":  toSummaryDTO(result),
		"findings": findings,
	})
}

// ExportRentRoll streams the rent-roll CSV.
func (h *Handler) ExportRentRoll(w http.ResponseWriter, r *http.Request) {
	result, status, err := h.run(r, r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, status, "Failed to compute rent roll", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="rentroll.csv"`)
	if err := reconcile.WriteRentRollCSV(w, result.RentRoll); err != nil {
		log.Printf("export rentroll: %v", err)
	}
}

// ExportFindings streams the findings CSV.
func (h *Handler) ExportFindings(w http.ResponseWriter, r *http.Request) {
	result, status, err := h.run(r, r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, status, "Failed to compute findings", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="findings.csv"`)
	if err := reconcile.WriteFindingsCSV(w, result.Findings); err != nil {
		log.Printf("export findings: %v", err)
	}
}

// ListRuns returns reconcile run history, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// run executes one reconcile: parse as-of, reconcile, record, observe.
func (h *Handler) run(r *http.Request, asOfStr string) (*reconcile.Result, int, error) {
	asOf := lease.Today()
	if asOfStr != "" {
		parsed, err := lease.ParseDate(asOfStr)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		asOf = parsed
	}

	rec := reconcile.New(h.Store, h.Rules)
	rec.Workers = h.Workers

	start := time.Now()
	result, err := rec.Reconcile(r.Context(), asOf)
	if err != nil {
		if errors.Is(err, lease.ErrEmptyStore) {
			return nil, http.StatusConflict, err
		}
		return nil, http.StatusInternalServerError, err
	}

	h.Metrics.ObserveRun(result, time.Since(start).Seconds())

	byKind := make(map[string]int, len(result.Summary.ByKind))
	for k, n := range result.Summary.ByKind {
		byKind[string(k)] = n
	}
	if err := h.Store.SaveRun(r.Context(), sqlite.RunRecord{
		ID:            result.RunID,
		AsOf:          result.AsOf.String(),
		PairsExamined: result.Summary.PairsExamined,
		RentRollRows:  result.Summary.RentRollRows,
		Findings:      result.Summary.Total(),
		ByKind:        byKind,
	}); err != nil {
		log.Printf("save run %s: %v", result.RunID, err)
	}

	return result, http.StatusOK, nil
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// PurgeOrphans removes orphaned charges after capturing pre-images.
func (h *Handler) PurgeOrphans(w http.ResponseWriter, r *http.Request) {
	backupRef := uuid.NewString()
	report, err := h.Store.PurgeOrphans(r.Context(), backupRef)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Purge failed", err)
		return
	}

	purged := make([]string, 0, len(report.Purged))
	for _, id := range report.Purged {
		purged = append(purged, string(id))
	}
	log.Printf("purged %d orphaned charges (backup %s)", len(purged), backupRef)
	writeJSON(w, http.StatusOK, AdminResponse{BackupRef: backupRef, Purged: purged})
}

// RemediateDates clears an invalid end date with an audit note.
func (h *Handler) RemediateDates(w http.ResponseWriter, r *http.Request) {
	var req RemediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AmendmentID == "" {
		writeError(w, http.StatusBadRequest, "amendment_id is required", nil)
		return
	}

	backupRef := uuid.NewString()
	err := h.Store.RemediateDateSequence(r.Context(), lease.AmendmentID(req.AmendmentID), backupRef, req.Note)
	switch {
	case errors.Is(err, lease.ErrAmendmentNotFound):
		writeError(w, http.StatusNotFound, "Amendment not found", err)
		return
	case errors.Is(err, lease.ErrMalformedRecord):
		writeError(w, http.StatusConflict, "Amendment dates are already valid", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Remediation failed", err)
		return
	}

	log.Printf("remediated dates on %s (backup %s)", req.AmendmentID, backupRef)
	writeJSON(w, http.StatusOK, AdminResponse{BackupRef: backupRef})
}

// GetBackup returns the pre-images captured under a backup reference.
func (h *Handler) GetBackup(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	set, err := h.Store.Backup(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read backup", err)
		return
	}

	resp := struct {
		Ref        string         `json:"ref"`
		Amendments []AmendmentDTO `json:"amendments"`
		Charges    []ChargeDTO    `json:"charges"`
	}{Ref: set.Ref, Amendments: []AmendmentDTO{}, Charges: []ChargeDTO{}}

	for _, a := range set.Amendments {
		resp.Amendments = append(resp.Amendments, AmendmentDTO{
			ID:             string(a.ID),
			PropertyKey:    string(a.Property),
			TenantKey:      string(a.Tenant),
			Sequence:       a.Sequence,
			Status:         string(a.Status),
			AmendmentType:  string(a.Type),
			StartDate:      a.Start.String(),
			EndDate:        a.End.String(),
			LeasedArea:     a.LeasedArea.String(),
			SupersededNote: a.SupersededNote,
		})
	}
	for _, c := range set.Charges {
		resp.Charges = append(resp.Charges, ChargeDTO{
			ID:            string(c.ID),
			AmendmentID:   string(c.AmendmentID),
			ChargeCode:    string(c.Code),
			MonthlyAmount: c.MonthlyAmount.String(),
			FromDate:      c.From.String(),
			ToDate:        c.To.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// DTO PARSING
// =============================================================================

func parseAmendmentDTO(dto AmendmentDTO) (lease.Amendment, error) {
	start, err := lease.ParseDate(dto.StartDate)
	if err != nil {
		return lease.Amendment{}, err
	}
	end, err := lease.ParseDate(dto.EndDate)
	if err != nil {
		return lease.Amendment{}, err
	}
	area := decimal.Zero
	if dto.LeasedArea != "" {
		area, err = decimal.NewFromString(dto.LeasedArea)
		if err != nil {
			return lease.Amendment{}, fmt.Errorf("leased_area: %w", err)
		}
	}
	return lease.Amendment{
		ID:       lease.AmendmentID(dto.ID),
		Property: lease.PropertyKey(dto.PropertyKey),
		Tenant:   lease.TenantKey(dto.TenantKey),
		Sequence: dto.Sequence,
		// same vocabulary normalization as the CSV path: a status spelled
		// "Activated" must govern, not silently fall off the rent roll
		Status:         ingest.ParseStatus(dto.Status),
		Type:           ingest.ParseType(dto.AmendmentType),
		Start:          start,
		End:            end,
		LeasedArea:     area,
		SupersededNote: dto.SupersededNote,
	}, nil
}

func parseChargeDTO(dto ChargeDTO) (lease.ChargeScheduleEntry, error) {
	amount, err := decimal.NewFromString(dto.MonthlyAmount)
	if err != nil {
		return lease.ChargeScheduleEntry{}, fmt.Errorf("monthly_amount: %w", err)
	}
	from, err := lease.ParseDate(dto.FromDate)
	if err != nil {
		return lease.ChargeScheduleEntry{}, err
	}
	to, err := lease.ParseDate(dto.ToDate)
	if err != nil {
		return lease.ChargeScheduleEntry{}, err
	}
	return lease.ChargeScheduleEntry{
		ID:            lease.ChargeID(dto.ID),
		AmendmentID:   lease.AmendmentID(dto.AmendmentID),
		Code:          lease.ChargeCode(dto.ChargeCode),
		MonthlyAmount: amount,
		From:          from,
		To:            to,
	}, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

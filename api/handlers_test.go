package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rentroll-engine/api"
	"github.com/warp/rentroll-engine/lease"
	"github.com/warp/rentroll-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := api.NewHandler(store, lease.DefaultRuleSet())
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func loadFixture(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp := postJSON(t, srv, "/api/load", api.LoadRequest{
		Amendments: []api.AmendmentDTO{
			{
				ID: "AMD-1", PropertyKey: "PROP-A", TenantKey: "TEN-1", Sequence: 0,
				Status: "activated", AmendmentType: "original_lease",
				StartDate: "2024-01-01", LeasedArea: "1200",
			},
			{
				ID: "AMD-2", PropertyKey: "PROP-B", TenantKey: "TEN-2", Sequence: 0,
				Status: "activated", AmendmentType: "original_lease",
				StartDate: "2024-06-01", EndDate: "2024-01-01", LeasedArea: "800",
			},
		},
		Charges: []api.ChargeDTO{
			{
				ID: "CHG-1", AmendmentID: "AMD-1", ChargeCode: "rent",
				MonthlyAmount: "2400", FromDate: "2024-01-01",
			},
			{
				ID: "CHG-GHOST", AmendmentID: "AMD-GONE", ChargeCode: "rent",
				MonthlyAmount: "300", FromDate: "2024-01-01",
			},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded api.LoadResponse
	decodeJSON(t, resp, &loaded)
	require.Equal(t, 2, loaded.AmendmentsLoaded)
	require.Equal(t, 2, loaded.ChargesLoaded)
}

// =============================================================================
// LOAD AND RECONCILE
// =============================================================================

func TestAPI_LoadThenReconcile(t *testing.T) {
	// GIVEN: A loaded ledger with one orphan and one bad date sequence
	// WHEN: POSTing a reconcile for 2024-06-15
	// THEN: The rent roll and findings come back with the run summary

	srv := newServer(t)
	loadFixture(t, srv)

	resp := postJSON(t, srv, "/api/reconcile", api.ReconcileRequest{AsOf: "2024-06-15"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result api.ReconcileResponse
	decodeJSON(t, resp, &result)

	require.Len(t, result.RentRoll, 1)
	assert.Equal(t, "PROP-A", result.RentRoll[0].PropertyKey)
	assert.Equal(t, "2400", result.RentRoll[0].MonthlyRent)
	assert.Equal(t, "2024-06-15", result.RentRoll[0].AsOf)

	assert.Equal(t, 2, result.Summary.PairsExamined)
	assert.NotEmpty(t, result.Summary.RunID)
	assert.Equal(t, 1, result.Summary.ByKind["OrphanedCharge"])
	assert.Equal(t, 1, result.Summary.ByKind["InvalidDateSequence"])
}

func TestAPI_Load_ReportsSkippedRecords(t *testing.T) {
	srv := newServer(t)

	resp := postJSON(t, srv, "/api/load", api.LoadRequest{
		Amendments: []api.AmendmentDTO{
			{
				ID: "AMD-1", PropertyKey: "PROP-A", TenantKey: "TEN-1", Sequence: 0,
				Status: "activated", AmendmentType: "renewal",
				StartDate: "not-a-date", LeasedArea: "100",
			},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded api.LoadResponse
	decodeJSON(t, resp, &loaded)
	assert.Equal(t, 0, loaded.AmendmentsLoaded)
	assert.Equal(t, 1, loaded.AmendmentsSkipped)
	require.Len(t, loaded.Skipped, 1)
	assert.Contains(t, loaded.Skipped[0], "AMD-1")
}

func TestAPI_Load_NormalizesUpstreamVocabulary(t *testing.T) {
	// GIVEN: A load request spelling status and type the way the
	//        upstream system exports them ("Activated", "Original Lease")
	// WHEN: Reconciling afterwards
	// THEN: The record governs; the casing does not drop the tenancy
	//       off the rent roll

	srv := newServer(t)

	resp := postJSON(t, srv, "/api/load", api.LoadRequest{
		Amendments: []api.AmendmentDTO{
			{
				ID: "AMD-1", PropertyKey: "PROP-A", TenantKey: "TEN-1", Sequence: 0,
				Status: "Activated", AmendmentType: "Original Lease",
				StartDate: "2024-01-01", LeasedArea: "1000",
			},
		},
		Charges: []api.ChargeDTO{
			{
				ID: "CHG-1", AmendmentID: "AMD-1", ChargeCode: "rent",
				MonthlyAmount: "1200", FromDate: "2024-01-01",
			},
		},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv, "/api/reconcile", api.ReconcileRequest{AsOf: "2024-06-15"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result api.ReconcileResponse
	decodeJSON(t, resp, &result)
	require.Len(t, result.RentRoll, 1)
	assert.Equal(t, "1200", result.RentRoll[0].MonthlyRent)
	assert.Empty(t, result.Findings)
}

func TestAPI_Reconcile_EmptyStore(t *testing.T) {
	srv := newServer(t)
	resp := postJSON(t, srv, "/api/reconcile", api.ReconcileRequest{AsOf: "2024-06-15"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_RentRoll_BadAsOf(t *testing.T) {
	srv := newServer(t)
	loadFixture(t, srv)

	resp, err := http.Get(srv.URL + "/api/rentroll?as_of=June")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ExportRentRollCSV(t *testing.T) {
	srv := newServer(t)
	loadFixture(t, srv)

	resp, err := http.Get(srv.URL + "/api/export/rentroll.csv?as_of=2024-06-15")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "PROP-A,TEN-1,AMD-1")
}

func TestAPI_RunHistory(t *testing.T) {
	srv := newServer(t)
	loadFixture(t, srv)

	resp := postJSON(t, srv, "/api/reconcile", api.ReconcileRequest{AsOf: "2024-06-15"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []api.RunDTO
	decodeJSON(t, resp, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "2024-06-15", runs[0].AsOf)
	assert.Equal(t, 2, runs[0].PairsExamined)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func TestAPI_PurgeOrphansAndFetchBackup(t *testing.T) {
	// GIVEN: A ledger with one orphaned charge
	// WHEN: Purging, then fetching the backup reference
	// THEN: The purge names the charge and the backup holds its pre-image

	srv := newServer(t)
	loadFixture(t, srv)

	resp := postJSON(t, srv, "/api/admin/purge-orphans", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var admin api.AdminResponse
	decodeJSON(t, resp, &admin)
	require.NotEmpty(t, admin.BackupRef)
	assert.Equal(t, []string{"CHG-GHOST"}, admin.Purged)

	resp, err := http.Get(srv.URL + "/api/backups/" + admin.BackupRef)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var backup struct {
		Ref        string             `json:"ref"`
		Amendments []api.AmendmentDTO `json:"amendments"`
		Charges    []api.ChargeDTO    `json:"charges"`
	}
	decodeJSON(t, resp, &backup)
	assert.Equal(t, admin.BackupRef, backup.Ref)
	require.Len(t, backup.Charges, 1)
	assert.Equal(t, "CHG-GHOST", backup.Charges[0].ID)
}

func TestAPI_RemediateDates(t *testing.T) {
	srv := newServer(t)
	loadFixture(t, srv)

	// AMD-2 ends before it starts.
	resp := postJSON(t, srv, "/api/admin/remediate-dates", api.RemediateRequest{
		AmendmentID: "AMD-2", Note: "cleared after review",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var admin api.AdminResponse
	decodeJSON(t, resp, &admin)
	assert.NotEmpty(t, admin.BackupRef)

	// Remediating again conflicts: the dates are now valid.
	resp = postJSON(t, srv, "/api/admin/remediate-dates", api.RemediateRequest{
		AmendmentID: "AMD-2", Note: "again",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, srv, "/api/admin/remediate-dates", api.RemediateRequest{
		AmendmentID: "AMD-NOPE", Note: "missing",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Health(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

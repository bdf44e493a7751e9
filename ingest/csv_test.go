package ingest_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rentroll-engine/ingest"
	"github.com/warp/rentroll-engine/lease"
)

// =============================================================================
// AMENDMENTS
// =============================================================================

func TestReadAmendments_ParsesVocabulary(t *testing.T) {
	// GIVEN: A Yardi-style export with mixed-case statuses and types
	// WHEN: Reading
	// THEN: Vocabulary is normalized; unknown values map to Other

	csvData := strings.Join([]string{
		"amendment_id,property_key,tenant_key,sequence,status,amendment_type,start_date,end_date,leased_area",
		"AMD-1,PROP-A,TEN-1,0,Activated,Original Lease,2024-01-01,,1200.5",
		"AMD-2,PROP-A,TEN-1,1,SUPERSEDED,Renewal,2024-06-01,2025-05-31,1200.5",
		"AMD-3,PROP-B,TEN-2,0,holdover,Termination,2024-01-01,,0",
	}, "\n")

	src := ingest.NewCSVSource(strings.NewReader(csvData), nil)
	amendments, skipped, err := src.ReadAmendments()
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, amendments, 3)

	assert.Equal(t, lease.StatusActivated, amendments[0].Status)
	assert.Equal(t, lease.TypeOriginalLease, amendments[0].Type)
	assert.Equal(t, "1200.5", amendments[0].LeasedArea.String())
	assert.True(t, amendments[0].OpenEnded())

	assert.Equal(t, lease.StatusSuperseded, amendments[1].Status)
	assert.Equal(t, lease.NewDate(2025, time.May, 31), amendments[1].End)

	assert.Equal(t, lease.StatusOther, amendments[2].Status)
	assert.Equal(t, lease.TypeTermination, amendments[2].Type)
}

func TestReadAmendments_SkipsBadRowsWithLineNumbers(t *testing.T) {
	// GIVEN: Rows with an unparseable sequence and a missing start date
	// WHEN: Reading
	// THEN: Bad rows are skipped with their line numbers; good rows load

	csvData := strings.Join([]string{
		"amendment_id,property_key,tenant_key,sequence,status,amendment_type,start_date,end_date,leased_area",
		"AMD-1,PROP-A,TEN-1,zero,activated,renewal,2024-01-01,,100",
		"AMD-2,PROP-A,TEN-1,1,activated,renewal,2024-01-01,,100",
		"AMD-3,PROP-A,TEN-2,0,activated,renewal,,,100",
	}, "\n")

	src := ingest.NewCSVSource(strings.NewReader(csvData), nil)
	amendments, skipped, err := src.ReadAmendments()
	require.NoError(t, err)

	require.Len(t, amendments, 1)
	assert.Equal(t, lease.AmendmentID("AMD-2"), amendments[0].ID)

	require.Len(t, skipped, 2)
	assert.Equal(t, 2, skipped[0].Line)
	assert.Contains(t, skipped[0].Cause.Error(), "sequence")
	assert.Equal(t, 4, skipped[1].Line)
	assert.Contains(t, skipped[1].Cause.Error(), "start_date")
}

func TestReadAmendments_HeaderOrderIrrelevant(t *testing.T) {
	csvData := strings.Join([]string{
		"status,start_date,amendment_id,tenant_key,property_key,amendment_type,sequence",
		"activated,2024-01-01,AMD-1,TEN-1,PROP-A,renewal,3",
	}, "\n")

	src := ingest.NewCSVSource(strings.NewReader(csvData), nil)
	amendments, skipped, err := src.ReadAmendments()
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, amendments, 1)
	assert.Equal(t, lease.AmendmentID("AMD-1"), amendments[0].ID)
	assert.Equal(t, 3, amendments[0].Sequence)
	assert.True(t, amendments[0].LeasedArea.IsZero())
}

func TestReadAmendments_MissingRequiredColumn(t *testing.T) {
	csvData := "amendment_id,property_key,tenant_key,status,amendment_type,start_date\n"

	src := ingest.NewCSVSource(strings.NewReader(csvData), nil)
	_, _, err := src.ReadAmendments()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence")
}

// =============================================================================
// CHARGES
// =============================================================================

func TestReadCharges_ParsesWindows(t *testing.T) {
	csvData := strings.Join([]string{
		"charge_id,amendment_id,charge_code,monthly_amount,from_date,to_date",
		"CHG-1,AMD-1,rent,1500.25,2024-01-01,2024-12-31",
		"CHG-2,AMD-1,cam,300,2024-01-01,",
	}, "\n")

	src := ingest.NewCSVSource(nil, strings.NewReader(csvData))
	charges, skipped, err := src.ReadCharges()
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, charges, 2)

	assert.Equal(t, "1500.25", charges[0].MonthlyAmount.String())
	assert.Equal(t, lease.NewDate(2024, time.December, 31), charges[0].To)
	assert.True(t, charges[1].To.IsZero())
}

func TestReadCharges_SkipsUnparseableAmount(t *testing.T) {
	csvData := strings.Join([]string{
		"charge_id,amendment_id,charge_code,monthly_amount,from_date,to_date",
		"CHG-1,AMD-1,rent,n/a,2024-01-01,",
		"CHG-2,AMD-1,rent,1000,2024-01-01,",
	}, "\n")

	src := ingest.NewCSVSource(nil, strings.NewReader(csvData))
	charges, skipped, err := src.ReadCharges()
	require.NoError(t, err)

	require.Len(t, charges, 1)
	assert.Equal(t, lease.ChargeID("CHG-2"), charges[0].ID)
	require.Len(t, skipped, 1)
	assert.Equal(t, 2, skipped[0].Line)
	assert.Contains(t, skipped[0].Cause.Error(), "monthly_amount")
}

package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rentroll-engine/lease"
	"github.com/warp/rentroll-engine/lease/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func charge(id, amendmentID string, code lease.ChargeCode, amount float64, from, to lease.Date) lease.ChargeScheduleEntry {
	return lease.ChargeScheduleEntry{
		ID:            lease.ChargeID(id),
		AmendmentID:   lease.AmendmentID(amendmentID),
		Code:          code,
		MonthlyAmount: decimal.NewFromFloat(amount),
		From:          from,
		To:            to,
	}
}

func newAggregator(t *testing.T, amendments []lease.Amendment, charges []lease.ChargeScheduleEntry) *lease.Aggregator {
	t.Helper()
	mem := store.NewMemory()
	_, err := mem.Load(context.Background(), amendments, charges)
	require.NoError(t, err)
	return lease.NewAggregator(mem, lease.DefaultRuleSet())
}

// =============================================================================
// MONTHLY RENT AGGREGATION
// =============================================================================

func TestAggregate_SumsActiveRentCharges(t *testing.T) {
	// GIVEN: An amendment with two active rent charges and one CAM charge
	// WHEN: Aggregating
	// THEN: Monthly rent is the sum of the rent charges only

	a := amendment("AMD-1", 1, lease.StatusActivated, lease.TypeRenewal, date(2024, time.January, 1), lease.Date{})
	g := newAggregator(t, []lease.Amendment{a}, []lease.ChargeScheduleEntry{
		charge("CHG-1", "AMD-1", lease.ChargeRent, 1000, date(2024, time.January, 1), lease.Date{}),
		charge("CHG-2", "AMD-1", lease.ChargeRent, 250, date(2024, time.January, 1), lease.Date{}),
		charge("CHG-3", "AMD-1", lease.ChargeCAM, 400, date(2024, time.January, 1), lease.Date{}),
	})

	state, err := g.Aggregate(context.Background(), a, date(2024, time.June, 15))
	require.NoError(t, err)
	assert.True(t, state.MonthlyRent.Equal(decimal.NewFromInt(1250)),
		"expected 1250, got %s", state.MonthlyRent)
	assert.True(t, state.LeasedArea.Equal(decimal.NewFromInt(1000)))
	assert.Len(t, state.Charges, 2)
}

func TestAggregate_ChargeWindowFiltering(t *testing.T) {
	// Expired and not-yet-started rent steps are excluded; the current
	// step alone makes the monthly rent.
	a := amendment("AMD-1", 1, lease.StatusActivated, lease.TypeRenewal, date(2023, time.January, 1), lease.Date{})
	g := newAggregator(t, []lease.Amendment{a}, []lease.ChargeScheduleEntry{
		charge("CHG-old", "AMD-1", lease.ChargeRent, 900, date(2023, time.January, 1), date(2023, time.December, 31)),
		charge("CHG-now", "AMD-1", lease.ChargeRent, 1000, date(2024, time.January, 1), date(2024, time.December, 31)),
		charge("CHG-next", "AMD-1", lease.ChargeRent, 1100, date(2025, time.January, 1), lease.Date{}),
	})

	state, err := g.Aggregate(context.Background(), a, date(2024, time.June, 15))
	require.NoError(t, err)
	assert.True(t, state.MonthlyRent.Equal(decimal.NewFromInt(1000)),
		"expected the 2024 step only, got %s", state.MonthlyRent)
}

func TestAggregate_OpenEndedChargeWindow(t *testing.T) {
	a := amendment("AMD-1", 1, lease.StatusActivated, lease.TypeRenewal, date(2024, time.January, 1), lease.Date{})
	g := newAggregator(t, []lease.Amendment{a}, []lease.ChargeScheduleEntry{
		charge("CHG-1", "AMD-1", lease.ChargeRent, 1000, date(2024, time.January, 1), lease.Date{}),
	})

	state, err := g.Aggregate(context.Background(), a, date(2050, time.July, 1))
	require.NoError(t, err)
	assert.True(t, state.MonthlyRent.Equal(decimal.NewFromInt(1000)))
}

func TestAggregate_NoRentCharges_NothingFabricated(t *testing.T) {
	// GIVEN: 5,000 SF leased, no rent charge at all
	// THEN: Monthly rent is zero and MissingRent reports true -
	//       absence is surfaced, never imputed

	a := amendment("AMD-1", 0, lease.StatusActivated, lease.TypeOriginalLease, date(2024, time.January, 1), lease.Date{})
	a.LeasedArea = decimal.NewFromInt(5000)
	g := newAggregator(t, []lease.Amendment{a}, nil)

	state, err := g.Aggregate(context.Background(), a, date(2024, time.June, 15))
	require.NoError(t, err)
	assert.True(t, state.MonthlyRent.IsZero())
	assert.True(t, state.MissingRent())
}

func TestAggregate_ZeroArea_NotMissingRent(t *testing.T) {
	a := amendment("AMD-1", 0, lease.StatusActivated, lease.TypeOriginalLease, date(2024, time.January, 1), lease.Date{})
	a.LeasedArea = decimal.Zero
	g := newAggregator(t, []lease.Amendment{a}, nil)

	state, err := g.Aggregate(context.Background(), a, date(2024, time.June, 15))
	require.NoError(t, err)
	assert.False(t, state.MissingRent())
}

func TestAggregate_CustomRentChargeCode(t *testing.T) {
	// The rent code is a business rule, not a constant.
	a := amendment("AMD-1", 1, lease.StatusActivated, lease.TypeRenewal, date(2024, time.January, 1), lease.Date{})
	mem := store.NewMemory()
	_, err := mem.Load(context.Background(), []lease.Amendment{a}, []lease.ChargeScheduleEntry{
		charge("CHG-1", "AMD-1", "base_rent", 1500, date(2024, time.January, 1), lease.Date{}),
		charge("CHG-2", "AMD-1", lease.ChargeRent, 99, date(2024, time.January, 1), lease.Date{}),
	})
	require.NoError(t, err)

	rules := lease.DefaultRuleSet()
	rules.RentChargeCode = "base_rent"
	g := lease.NewAggregator(mem, rules)

	state, err := g.Aggregate(context.Background(), a, date(2024, time.June, 15))
	require.NoError(t, err)
	assert.True(t, state.MonthlyRent.Equal(decimal.NewFromInt(1500)))
}

// =============================================================================
// MISSING-RENT CLASSIFICATION
// =============================================================================

func TestClassifyMissingRent_FourTiers(t *testing.T) {
	rules := lease.DefaultRuleSet()

	cases := []struct {
		name     string
		status   lease.Status
		amType   lease.AmendmentType
		class    lease.ChargeClass
		severity lease.Severity
	}{
		{"active lease", lease.StatusActivated, lease.TypeOriginalLease, lease.ClassRentExpected, lease.SeverityCritical},
		{"superseded lease", lease.StatusSuperseded, lease.TypeRenewal, lease.ClassHistoricalRent, lease.SeverityHigh},
		{"in-process lease", lease.StatusInProcess, lease.TypeOriginalLease, lease.ClassReviewRequired, lease.SeverityMedium},
		{"other status", lease.StatusOther, lease.TypeOther, lease.ClassReviewRequired, lease.SeverityMedium},
		{"termination", lease.StatusActivated, lease.TypeTermination, lease.ClassTerminationOK, lease.SeverityOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := amendment("AMD-1", 1, tc.status, tc.amType, date(2024, time.January, 1), lease.Date{})
			class, severity := rules.ClassifyMissingRent(a)
			assert.Equal(t, tc.class, class)
			assert.Equal(t, tc.severity, severity)
		})
	}
}

func TestClassifyMissingRent_SeverityOverride(t *testing.T) {
	rules := lease.DefaultRuleSet()
	rules.ClassSeverity[lease.ClassHistoricalRent] = lease.SeverityMedium

	a := amendment("AMD-1", 1, lease.StatusSuperseded, lease.TypeRenewal, date(2024, time.January, 1), lease.Date{})
	class, severity := rules.ClassifyMissingRent(a)
	assert.Equal(t, lease.ClassHistoricalRent, class)
	assert.Equal(t, lease.SeverityMedium, severity)
}

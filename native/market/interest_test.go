package market

import (
	"testing"

	sdkmath "cosmossdk.io/math"
)

func dec(t *testing.T, s string) sdkmath.LegacyDec {
	t.Helper()
	d, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func testModel(t *testing.T) InterestModel {
	return InterestModel{
		Base:               dec(t, "0"),
		Slope1:             dec(t, "0.1"),
		Slope2:             dec(t, "3"),
		OptimalUtilization: dec(t, "0.8"),
	}
}

func TestBorrowRateKink(t *testing.T) {
	model := testModel(t)
	cases := []struct {
		utilization string
		want        string
	}{
		{"0", "0"},
		{"0.4", "0.05"},
		{"0.8", "0.1"},
		{"0.9", "1.6"},
		{"1", "3.1"},
	}
	for _, tc := range cases {
		got := model.BorrowRate(dec(t, tc.utilization))
		if !got.Equal(dec(t, tc.want)) {
			t.Fatalf("rate(%s): got %s want %s", tc.utilization, got, tc.want)
		}
	}
	// Above one clamps to the full-utilization rate.
	if got := model.BorrowRate(dec(t, "1.5")); !got.Equal(dec(t, "3.1")) {
		t.Fatalf("rate above 1 should clamp: got %s", got)
	}
}

func TestBorrowRateDegenerateKinks(t *testing.T) {
	zeroOptimal := InterestModel{
		Base:               dec(t, "0.01"),
		Slope1:             dec(t, "0.04"),
		Slope2:             dec(t, "2"),
		OptimalUtilization: dec(t, "0"),
	}
	// Whole curve is the steep segment: 0.01 + 0.04 + 2*0.5.
	if got := zeroOptimal.BorrowRate(dec(t, "0.5")); !got.Equal(dec(t, "1.05")) {
		t.Fatalf("zero-optimal rate: got %s", got)
	}

	fullOptimal := InterestModel{
		Base:               dec(t, "0.01"),
		Slope1:             dec(t, "0.04"),
		Slope2:             dec(t, "2"),
		OptimalUtilization: dec(t, "1"),
	}
	if got := fullOptimal.BorrowRate(dec(t, "1")); !got.Equal(dec(t, "0.05")) {
		t.Fatalf("full-optimal rate at 1: got %s", got)
	}
}

func TestAccrueAdvancesIndices(t *testing.T) {
	m := NewMarket("uatom", InterestModel{
		Base:               dec(t, "0"),
		Slope1:             dec(t, "0.2"),
		Slope2:             dec(t, "1"),
		OptimalUtilization: dec(t, "1"),
	}, dec(t, "0.2"), 0)
	m.TotalLendScaled = sdkmath.NewInt(1000)
	m.TotalDebtScaled = sdkmath.NewInt(500)

	// Half a year at utilization 0.5: borrow rate 0.1, liquidity rate
	// 0.1 * 0.5 * 0.8 = 0.04.
	rate := m.Accrue(SecondsPerYear / 2)
	if !rate.Equal(dec(t, "0.1")) {
		t.Fatalf("borrow rate: got %s want 0.1", rate)
	}
	if !m.BorrowIndex.Equal(dec(t, "1.05")) {
		t.Fatalf("borrow index: got %s want 1.05", m.BorrowIndex)
	}
	if !m.LiquidityIndex.Equal(dec(t, "1.02")) {
		t.Fatalf("liquidity index: got %s want 1.02", m.LiquidityIndex)
	}
	if m.LastUpdated != SecondsPerYear/2 {
		t.Fatalf("last updated: got %d", m.LastUpdated)
	}
}

func TestAccrueNeverRewinds(t *testing.T) {
	m := NewMarket("uatom", testModel(t), dec(t, "0"), 1000)
	m.TotalLendScaled = sdkmath.NewInt(100)
	m.TotalDebtScaled = sdkmath.NewInt(50)
	m.Accrue(2000)
	borrowIdx := m.BorrowIndex
	liqIdx := m.LiquidityIndex

	// A stale clock must not move anything.
	m.Accrue(1500)
	if !m.BorrowIndex.Equal(borrowIdx) || !m.LiquidityIndex.Equal(liqIdx) || m.LastUpdated != 2000 {
		t.Fatalf("stale accrue mutated market: %+v", m)
	}

	// Indices are monotone across repeated accruals.
	for now := uint64(3000); now <= 10000; now += 1000 {
		m.Accrue(now)
		if m.BorrowIndex.LT(borrowIdx) || m.LiquidityIndex.LT(liqIdx) {
			t.Fatalf("index decreased at %d", now)
		}
		borrowIdx = m.BorrowIndex
		liqIdx = m.LiquidityIndex
	}
}

func TestScaledNominalRounding(t *testing.T) {
	idx := dec(t, "1.05")

	// Liquidity truncates in both directions.
	if got := ScaledFromNominalDown(sdkmath.NewInt(105), idx); !got.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("scaled down: got %s", got)
	}
	if got := ScaledFromNominalDown(sdkmath.NewInt(100), idx); !got.Equal(sdkmath.NewInt(95)) {
		t.Fatalf("scaled down inexact: got %s", got)
	}
	if got := NominalFromScaledDown(sdkmath.NewInt(95), idx); !got.Equal(sdkmath.NewInt(99)) {
		t.Fatalf("nominal down: got %s", got)
	}

	// Debt rounds up in both directions.
	if got := ScaledFromNominalUp(sdkmath.NewInt(100), idx); !got.Equal(sdkmath.NewInt(96)) {
		t.Fatalf("scaled up: got %s", got)
	}
	if got := NominalFromScaledUp(sdkmath.NewInt(96), idx); !got.Equal(sdkmath.NewInt(101)) {
		t.Fatalf("nominal up: got %s", got)
	}
}

func TestUtilizationEdges(t *testing.T) {
	m := NewMarket("uatom", testModel(t), dec(t, "0"), 0)
	if !m.Utilization().IsZero() {
		t.Fatalf("empty market utilization should be zero")
	}
	m.TotalDebtScaled = sdkmath.NewInt(10)
	if !m.Utilization().Equal(sdkmath.LegacyOneDec()) {
		t.Fatalf("debt without liquidity should report full utilization")
	}
	m.TotalLendScaled = sdkmath.NewInt(40)
	if !m.Utilization().Equal(dec(t, "0.25")) {
		t.Fatalf("utilization: got %s want 0.25", m.Utilization())
	}
}

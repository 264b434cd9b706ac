package market

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// InterestModel is the two-slope interest rate curve. Below the optimal
// utilization the rate climbs from Base along Slope1; beyond it the rate
// climbs along the steeper Slope2. All rates are annualised decimals.
type InterestModel struct {
	Base               sdkmath.LegacyDec `json:"base"`
	Slope1             sdkmath.LegacyDec `json:"slope1"`
	Slope2             sdkmath.LegacyDec `json:"slope2"`
	OptimalUtilization sdkmath.LegacyDec `json:"optimalUtilization"`
}

// Validate checks the curve parameters.
func (m InterestModel) Validate() error {
	for _, field := range []struct {
		name  string
		value sdkmath.LegacyDec
	}{
		{"base", m.Base},
		{"slope1", m.Slope1},
		{"slope2", m.Slope2},
		{"optimalUtilization", m.OptimalUtilization},
	} {
		if field.value.IsNil() || field.value.IsNegative() {
			return fmt.Errorf("%w: interest model %s must be a non-negative decimal", ErrInvalidMarket, field.name)
		}
	}
	if m.OptimalUtilization.GT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: optimal utilization must not exceed 1", ErrInvalidMarket)
	}
	return nil
}

// BorrowRate evaluates the curve at the given utilization. Utilization is
// clamped to [0, 1] before evaluation.
func (m InterestModel) BorrowRate(utilization sdkmath.LegacyDec) sdkmath.LegacyDec {
	u := utilization
	if u.IsNil() || u.IsNegative() {
		u = sdkmath.LegacyZeroDec()
	}
	if u.GT(sdkmath.LegacyOneDec()) {
		u = sdkmath.LegacyOneDec()
	}
	optimal := m.OptimalUtilization
	if optimal.IsZero() {
		// Degenerate kink at zero: the whole curve is the steep segment.
		return m.Base.Add(m.Slope1).Add(m.Slope2.Mul(u))
	}
	if u.LTE(optimal) {
		return m.Base.Add(m.Slope1.Mul(u).Quo(optimal))
	}
	excess := u.Sub(optimal)
	span := sdkmath.LegacyOneDec().Sub(optimal)
	if span.IsZero() {
		return m.Base.Add(m.Slope1)
	}
	return m.Base.Add(m.Slope1).Add(m.Slope2.Mul(excess).Quo(span))
}

// Market is the per-denom money market record. Totals are stored in scaled
// form; nominal amounts are derived with the current indices.
type Market struct {
	Denom           string            `json:"denom"`
	TotalLendScaled sdkmath.Int       `json:"totalLendScaled"`
	TotalDebtScaled sdkmath.Int       `json:"totalDebtScaled"`
	LiquidityIndex  sdkmath.LegacyDec `json:"liquidityIndex"`
	BorrowIndex     sdkmath.LegacyDec `json:"borrowIndex"`
	LastUpdated     uint64            `json:"lastUpdated"`
	ReserveFactor   sdkmath.LegacyDec `json:"reserveFactor"`
	Model           InterestModel     `json:"model"`
}

// NewMarket returns a market for the denom with unit indices and the given
// curve, stamped at now.
func NewMarket(denom string, model InterestModel, reserveFactor sdkmath.LegacyDec, now uint64) *Market {
	return &Market{
		Denom:           denom,
		TotalLendScaled: sdkmath.ZeroInt(),
		TotalDebtScaled: sdkmath.ZeroInt(),
		LiquidityIndex:  sdkmath.LegacyOneDec(),
		BorrowIndex:     sdkmath.LegacyOneDec(),
		LastUpdated:     now,
		ReserveFactor:   reserveFactor,
		Model:           model,
	}
}

// Validate checks the record invariants.
func (m *Market) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil market", ErrInvalidMarket)
	}
	if err := sdk.ValidateDenom(m.Denom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMarket, err)
	}
	if m.ReserveFactor.IsNil() || m.ReserveFactor.IsNegative() || m.ReserveFactor.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: reserve factor must be in [0, 1)", ErrInvalidMarket)
	}
	if m.LiquidityIndex.IsNil() || m.LiquidityIndex.LT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: liquidity index below 1", ErrInvalidMarket)
	}
	if m.BorrowIndex.IsNil() || m.BorrowIndex.LT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: borrow index below 1", ErrInvalidMarket)
	}
	if m.TotalLendScaled.IsNil() || m.TotalLendScaled.IsNegative() || m.TotalDebtScaled.IsNil() || m.TotalDebtScaled.IsNegative() {
		return fmt.Errorf("%w: scaled totals must be non-negative", ErrInvalidMarket)
	}
	return m.Model.Validate()
}

// Clone returns a deep copy. sdkmath values are copy-on-write so a shallow
// struct copy is sufficient.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

// Utilization is total nominal debt over total nominal liquidity. A market
// with debt but no liquidity reports full utilization.
func (m *Market) Utilization() sdkmath.LegacyDec {
	debt := NominalFromScaledUp(m.TotalDebtScaled, m.BorrowIndex)
	lend := NominalFromScaledDown(m.TotalLendScaled, m.LiquidityIndex)
	if lend.IsZero() {
		if debt.IsZero() {
			return sdkmath.LegacyZeroDec()
		}
		return sdkmath.LegacyOneDec()
	}
	u := sdkmath.LegacyNewDecFromInt(debt).Quo(sdkmath.LegacyNewDecFromInt(lend))
	if u.GT(sdkmath.LegacyOneDec()) {
		return sdkmath.LegacyOneDec()
	}
	return u
}

// CollateralRecord is a per-(account, denom) scaled lend position, reported
// with its nominal value at read time.
type CollateralRecord struct {
	AccountID    uint64      `json:"accountId"`
	Denom        string      `json:"denom"`
	AmountScaled sdkmath.Int `json:"amountScaled"`
	Amount       sdkmath.Int `json:"amount"`
}

// DebtRecord is a per-(account, denom) scaled debt position, reported with
// its nominal value at read time.
type DebtRecord struct {
	AccountID    uint64      `json:"accountId"`
	Denom        string      `json:"denom"`
	AmountScaled sdkmath.Int `json:"amountScaled"`
	Amount       sdkmath.Int `json:"amount"`
}

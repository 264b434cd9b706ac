package market

import (
	sdkmath "cosmossdk.io/math"
)

// SecondsPerYear is the accrual year used by the rate model.
const SecondsPerYear = 31_536_000

// Accrue advances the market indices from LastUpdated to now. Indices never
// decrease; a stale clock (now before LastUpdated) leaves the market
// untouched. Returns the borrow rate applied over the elapsed span.
func (m *Market) Accrue(now uint64) sdkmath.LegacyDec {
	if now <= m.LastUpdated {
		return sdkmath.LegacyZeroDec()
	}
	dt := now - m.LastUpdated
	m.LastUpdated = now

	utilization := m.Utilization()
	borrowRate := m.Model.BorrowRate(utilization)
	liqRate := borrowRate.Mul(utilization).Mul(sdkmath.LegacyOneDec().Sub(m.ReserveFactor))

	factor := sdkmath.LegacyNewDec(int64(dt)).QuoInt64(SecondsPerYear)
	m.BorrowIndex = m.BorrowIndex.Mul(sdkmath.LegacyOneDec().Add(borrowRate.Mul(factor)))
	m.LiquidityIndex = m.LiquidityIndex.Mul(sdkmath.LegacyOneDec().Add(liqRate.Mul(factor)))
	return borrowRate
}

// Scaled/nominal conversions. Liquidity rounds against the depositor and
// debt rounds against the borrower, so interest dust always accrues to the
// protocol side.

// ScaledFromNominalDown converts a nominal deposit into scaled units,
// truncating.
func ScaledFromNominalDown(nominal sdkmath.Int, index sdkmath.LegacyDec) sdkmath.Int {
	return sdkmath.LegacyNewDecFromInt(nominal).QuoTruncate(index).TruncateInt()
}

// ScaledFromNominalUp converts a nominal debt into scaled units, rounding
// up.
func ScaledFromNominalUp(nominal sdkmath.Int, index sdkmath.LegacyDec) sdkmath.Int {
	return sdkmath.LegacyNewDecFromInt(nominal).QuoRoundUp(index).Ceil().TruncateInt()
}

// NominalFromScaledDown converts scaled liquidity into nominal units,
// truncating.
func NominalFromScaledDown(scaled sdkmath.Int, index sdkmath.LegacyDec) sdkmath.Int {
	return sdkmath.LegacyNewDecFromInt(scaled).Mul(index).TruncateInt()
}

// NominalFromScaledUp converts scaled debt into nominal units, rounding up.
func NominalFromScaledUp(scaled sdkmath.Int, index sdkmath.LegacyDec) sdkmath.Int {
	return sdkmath.LegacyNewDecFromInt(scaled).Mul(index).Ceil().TruncateInt()
}

package health

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// headroom is the value gap the account can still spend before hitting its
// borrowing limit.
func (c *Computer) headroom() sdkmath.LegacyDec {
	gap := c.values.MaxLTVAdjCollateral.Sub(c.values.DebtValue)
	if gap.IsNegative() {
		return sdkmath.LegacyZeroDec()
	}
	return gap
}

func (c *Computer) held(denom string) sdkmath.Int {
	return c.in.Positions.Deposits.AmountOf(denom).Add(c.in.Positions.Lends.AmountOf(denom))
}

// MaxBorrow returns the largest new debt in denom that keeps the account at
// its borrowing limit. Under the deposit target the borrowed coins land in
// the account and count as collateral; under the wallet target they leave.
// Closed form, no iteration: with headroom H, price p and weight w,
//
//	deposit: d <= H / (p * (1 - w))
//	wallet:  d <= H / p
//
// Max LTV is validated below one, so the divisor stays positive.
func (c *Computer) MaxBorrow(denom string, target BorrowTarget) (sdkmath.Int, error) {
	switch target {
	case BorrowTargetDeposit, BorrowTargetWallet:
	default:
		return sdkmath.ZeroInt(), fmt.Errorf("health: unknown borrow target %q", target)
	}
	price, err := c.price(denom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	headroom := c.headroom()
	if headroom.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	divisor := price
	if target == BorrowTargetDeposit {
		maxLTV, _, _ := c.weights(denom)
		divisor = price.Mul(sdkmath.LegacyOneDec().Sub(maxLTV))
	}
	return headroom.QuoTruncate(divisor).TruncateInt(), nil
}

// MaxWithdraw returns the largest amount of denom removable from deposits
// and lends without crossing the borrowing limit, capped at what is held.
func (c *Computer) MaxWithdraw(denom string) (sdkmath.Int, error) {
	held := c.held(denom)
	if held.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if !c.values.DebtValue.IsPositive() {
		return held, nil
	}
	maxLTV, _, ok := c.weights(denom)
	if !ok || maxLTV.IsZero() {
		// the asset carries no borrowing power, so removing it cannot
		// break the limit
		return held, nil
	}
	price, err := c.price(denom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	limit := c.headroom().QuoTruncate(price.Mul(maxLTV)).TruncateInt()
	if limit.LT(held) {
		return limit, nil
	}
	return held, nil
}

// MaxSwap returns the largest amount of denomIn swappable into denomOut
// without crossing the borrowing limit. Sizing assumes a fair swap at oracle
// prices: value out equals value in, only the weights change. The default
// kind spends held collateral; the margin kind borrows denomIn and deposits
// the proceeds.
func (c *Computer) MaxSwap(denomIn, denomOut string, kind SwapKind) (sdkmath.Int, error) {
	priceIn, err := c.price(denomIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	ltvIn, _, _ := c.weights(denomIn)
	ltvOut, _, _ := c.weights(denomOut)

	switch kind {
	case SwapKindDefault:
		held := c.held(denomIn)
		if held.IsZero() {
			return sdkmath.ZeroInt(), nil
		}
		// Swapping into an equal or higher weight never hurts health.
		if !ltvIn.GT(ltvOut) || !c.values.DebtValue.IsPositive() {
			return held, nil
		}
		limit := c.headroom().QuoTruncate(priceIn.Mul(ltvIn.Sub(ltvOut))).TruncateInt()
		if limit.LT(held) {
			return limit, nil
		}
		return held, nil
	case SwapKindMargin:
		divisor := priceIn.Mul(sdkmath.LegacyOneDec().Sub(ltvOut))
		return c.headroom().QuoTruncate(divisor).TruncateInt(), nil
	default:
		return sdkmath.ZeroInt(), fmt.Errorf("health: unknown swap kind %q", kind)
	}
}

package credit

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/core/events"
	"creditcore/native/health"
	"creditcore/native/market"
	"creditcore/native/params"
)

// runLiquidateDebt repays part of an unhealthy account's debt from the
// liquidator's deposits and seizes discounted collateral in return. Sizing
// is one-shot: the maximum repayable amount is solved in closed form from
// the target health factor, never iterated.
func (b *batchState) runLiquidateDebt(a *LiquidateDebtAction) error {
	if err := requireCoin(a.DebtCoin); err != nil {
		return err
	}
	if err := sdk.ValidateDenom(a.RequestDenom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDenom, err)
	}
	if a.AccountID == b.account.ID {
		return fmt.Errorf("%w: cannot liquidate own account", ErrInvalidAction)
	}
	liquidatee, err := b.s.state.Account(a.AccountID)
	if err != nil {
		return err
	}
	values, err := b.s.healthValues(liquidatee)
	if err != nil {
		return err
	}
	if !values.Liquidatable {
		return fmt.Errorf("%w: account %d", ErrNotLiquidatable, a.AccountID)
	}
	hf := *values.LiqHealthFactor

	// The bonus curve and the protocol fee belong to the seized asset.
	// Delisted assets stay liquidatable, so only presence is required.
	requestParams, ok, err := b.s.params.AssetParams(a.RequestDenom)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, a.RequestDenom)
	}
	requestLiqThreshold := requestParams.LiquidationThreshold
	if liquidatee.Kind == health.AccountKindHLS && requestParams.HLS != nil {
		requestLiqThreshold = requestParams.HLS.LiquidationThreshold
	}

	thf, err := b.s.params.TargetHealthFactor()
	if err != nil {
		return err
	}
	debtPrice, err := b.s.oracle.Price(a.DebtCoin.Denom)
	if err != nil {
		return err
	}
	requestPrice, err := b.s.oracle.Price(a.RequestDenom)
	if err != nil {
		return err
	}

	owed, err := b.s.market.UserDebt(a.AccountID, a.DebtCoin.Denom)
	if err != nil {
		return err
	}
	if !owed.Amount.IsPositive() {
		return fmt.Errorf("%w: account %d owes no %s", ErrInvalidAction, a.AccountID, a.DebtCoin.Denom)
	}

	bonus := liquidationBonus(requestParams.LiquidationBonus, hf, values.CollateralValue, values.DebtValue)

	// Repaying value x and seizing (1+lb)·x solves
	//   (LTC − (1+lb)·clt·x) / (D − x) = thf
	// for the repayment that lands the account exactly on the target. A
	// non-positive denominator means every repaid unit improves health, so
	// the full debt may close.
	maxRepayTokens := owed.Amount
	numerator := thf.Mul(values.DebtValue).Sub(values.LiqThresholdAdjCollateral)
	denominator := thf.Sub(sdkmath.LegacyOneDec().Add(bonus).Mul(requestLiqThreshold))
	if denominator.IsPositive() {
		tokens := numerator.QuoTruncate(denominator).QuoTruncate(debtPrice).TruncateInt()
		if tokens.LT(maxRepayTokens) {
			maxRepayTokens = tokens
		}
	}
	debtToRepay := a.DebtCoin.Amount
	if maxRepayTokens.LT(debtToRepay) {
		debtToRepay = maxRepayTokens
	}
	if !debtToRepay.IsPositive() {
		return fmt.Errorf("%w: nothing repayable at the target health factor", ErrNoAmount)
	}

	// Seized tokens truncate down; clamping to the liquidatee's holdings
	// forfeits whatever part of the bonus the balance cannot cover.
	repaidValue := debtPrice.MulInt(debtToRepay)
	seizedTokens := repaidValue.Mul(sdkmath.LegacyOneDec().Add(bonus)).QuoTruncate(requestPrice).TruncateInt()

	depositHeld, err := b.s.state.DepositAmount(a.AccountID, a.RequestDenom)
	if err != nil {
		return err
	}
	lendHeld := sdkmath.ZeroInt()
	if coin, err := b.s.market.UserCollateral(a.AccountID, a.RequestDenom); err == nil {
		lendHeld = coin.Amount
	} else if !errors.Is(err, market.ErrMarketNotFound) {
		return err
	}
	available := depositHeld.Add(lendHeld)
	if !available.IsPositive() {
		return fmt.Errorf("%w: account %d holds no %s", ErrInvalidAction, a.AccountID, a.RequestDenom)
	}
	if seizedTokens.GT(available) {
		seizedTokens = available
	}
	if !seizedTokens.IsPositive() {
		return fmt.Errorf("%w: seized amount rounds to zero", ErrNoAmount)
	}

	baseTokens := repaidValue.QuoTruncate(requestPrice).TruncateInt()
	bonusTokens := seizedTokens.Sub(baseTokens)
	if bonusTokens.IsNegative() {
		bonusTokens = sdkmath.ZeroInt()
	}
	feeTokens := requestParams.ProtocolLiquidationFee.MulInt(bonusTokens).TruncateInt()

	// Repay out of the liquidator's deposits.
	repayCoin := sdk.NewCoin(a.DebtCoin.Denom, debtToRepay)
	if err := b.s.state.SubDeposit(b.account.ID, repayCoin); err != nil {
		return err
	}
	repaid, refund, err := b.s.market.Repay(a.AccountID, repayCoin)
	if err != nil {
		return err
	}
	if refund.IsPositive() {
		if err := b.s.state.AddDeposit(b.account.ID, refund); err != nil {
			return err
		}
	}
	if err := b.s.ledger.Send(b.s.creditAddr, b.s.marketAddr, sdk.NewCoins(repaid)); err != nil {
		return err
	}

	// Seize deposits first, lends for the remainder.
	depositCut := seizedTokens
	if depositCut.GT(depositHeld) {
		depositCut = depositHeld
	}
	if depositCut.IsPositive() {
		if err := b.s.state.SubDeposit(a.AccountID, sdk.NewCoin(a.RequestDenom, depositCut)); err != nil {
			return err
		}
	}
	if lendCut := seizedTokens.Sub(depositCut); lendCut.IsPositive() {
		coin, err := b.s.market.Withdraw(a.AccountID, a.RequestDenom, lendCut, false)
		if err != nil {
			return err
		}
		if err := b.s.ledger.Send(b.s.marketAddr, b.s.creditAddr, sdk.NewCoins(coin)); err != nil {
			return err
		}
	}

	if liquidatorCut := seizedTokens.Sub(feeTokens); liquidatorCut.IsPositive() {
		if err := b.s.state.AddDeposit(b.account.ID, sdk.NewCoin(a.RequestDenom, liquidatorCut)); err != nil {
			return err
		}
	}
	feeCoin := sdk.NewCoin(a.RequestDenom, feeTokens)
	if feeTokens.IsPositive() {
		if err := b.s.ledger.Send(b.s.creditAddr, b.s.rewardsAddr, sdk.NewCoins(feeCoin)); err != nil {
			return err
		}
	}

	b.s.recorder.Emit(events.Liquidated{
		LiquidatorID: b.account.ID,
		LiquidateeID: a.AccountID,
		Repaid:       repaid,
		Seized:       sdk.NewCoin(a.RequestDenom, seizedTokens),
		ProtocolFee:  feeCoin,
		Bonus:        bonus,
	})
	return nil
}

// liquidationBonus evaluates the piecewise-linear bonus curve at the current
// liquidation health factor. The raw value is clamped to the configured
// bounds and to the collateralization overhead actually available, so seized
// value can never exceed what the account holds above its debt.
func liquidationBonus(curve params.LiquidationBonus, hf, collateralValue, debtValue sdkmath.LegacyDec) sdkmath.LegacyDec {
	raw := curve.Starting.Add(curve.Slope.Mul(sdkmath.LegacyOneDec().Sub(hf)))
	maxLB := curve.MaxLB
	if debtValue.IsPositive() {
		overhead := collateralValue.Quo(debtValue).Sub(sdkmath.LegacyOneDec())
		if overhead.LT(maxLB) {
			maxLB = overhead
		}
	}
	if maxLB.LT(curve.MinLB) {
		maxLB = curve.MinLB
	}
	if raw.LT(curve.MinLB) {
		return curve.MinLB
	}
	if raw.GT(maxLB) {
		return maxLB
	}
	return raw
}

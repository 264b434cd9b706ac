package health

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/native/params"
)

func dec(t *testing.T, value string) sdkmath.LegacyDec {
	t.Helper()
	parsed, err := sdkmath.LegacyNewDecFromStr(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return parsed
}

func asset(t *testing.T, denom, maxLTV, liqThreshold string) params.AssetParams {
	t.Helper()
	return params.AssetParams{
		Denom:                denom,
		MaxLoanToValue:       dec(t, maxLTV),
		LiquidationThreshold: dec(t, liqThreshold),
		Whitelisted:          true,
	}
}

func coin(denom string, amount int64) sdk.Coin {
	return sdk.NewCoin(denom, sdkmath.NewInt(amount))
}

func borrowFixture(t *testing.T) Inputs {
	t.Helper()
	return Inputs{
		Positions: Positions{
			AccountID: 1,
			Kind:      AccountKindDefault,
			Deposits:  sdk.NewCoins(coin("uatom", 100)),
			Debts:     sdk.NewCoins(coin("uosmo", 500)),
		},
		Prices: map[string]sdkmath.LegacyDec{
			"uatom": dec(t, "10"),
			"uosmo": dec(t, "0.25"),
		},
		AssetParams: map[string]params.AssetParams{
			"uatom": asset(t, "uatom", "0.82", "0.9"),
			"uosmo": asset(t, "uosmo", "0.7", "0.78"),
		},
	}
}

func mustCompute(t *testing.T, in Inputs) *Computer {
	t.Helper()
	computer, err := NewComputer(in)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	return computer
}

func TestComputeBorrowScenario(t *testing.T) {
	values := mustCompute(t, borrowFixture(t)).Values()

	if !values.CollateralValue.Equal(dec(t, "1000")) {
		t.Fatalf("collateral value: %s", values.CollateralValue)
	}
	if !values.MaxLTVAdjCollateral.Equal(dec(t, "820")) {
		t.Fatalf("max-ltv adjusted: %s", values.MaxLTVAdjCollateral)
	}
	if !values.LiqThresholdAdjCollateral.Equal(dec(t, "900")) {
		t.Fatalf("liq-threshold adjusted: %s", values.LiqThresholdAdjCollateral)
	}
	if !values.DebtValue.Equal(dec(t, "125")) {
		t.Fatalf("debt value: %s", values.DebtValue)
	}
	if values.MaxLTVHealthFactor == nil || !values.MaxLTVHealthFactor.Equal(dec(t, "6.56")) {
		t.Fatalf("max-ltv health factor: %v", values.MaxLTVHealthFactor)
	}
	if values.LiqHealthFactor == nil || !values.LiqHealthFactor.Equal(dec(t, "7.2")) {
		t.Fatalf("liq health factor: %v", values.LiqHealthFactor)
	}
	if values.AboveMaxLTV || values.Liquidatable {
		t.Fatalf("expected healthy account, got aboveMaxLTV=%v liquidatable=%v", values.AboveMaxLTV, values.Liquidatable)
	}
	if len(values.Breakdown) != 2 {
		t.Fatalf("expected 2 breakdown entries, got %d", len(values.Breakdown))
	}
}

func TestComputeNoDebtLeavesFactorsNil(t *testing.T) {
	in := borrowFixture(t)
	in.Positions.Debts = nil

	values := mustCompute(t, in).Values()
	if values.MaxLTVHealthFactor != nil || values.LiqHealthFactor != nil {
		t.Fatalf("expected nil health factors without debt")
	}
	if !values.IsHealthy() || values.Liquidatable {
		t.Fatalf("debt-free account must be healthy")
	}
	if values.HasDebt() {
		t.Fatalf("HasDebt on empty debt set")
	}
}

func TestComputeOverBorrowCrossesBothLimits(t *testing.T) {
	in := borrowFixture(t)
	in.Positions.Debts = sdk.NewCoins(coin("uosmo", 4000))

	values := mustCompute(t, in).Values()
	if !values.DebtValue.Equal(dec(t, "1000")) {
		t.Fatalf("debt value: %s", values.DebtValue)
	}
	if !values.MaxLTVHealthFactor.Equal(dec(t, "0.82")) {
		t.Fatalf("max-ltv health factor: %s", values.MaxLTVHealthFactor)
	}
	if !values.AboveMaxLTV {
		t.Fatalf("expected account above max LTV")
	}
	if !values.LiqHealthFactor.Equal(dec(t, "0.9")) {
		t.Fatalf("liq health factor: %s", values.LiqHealthFactor)
	}
	if !values.Liquidatable {
		t.Fatalf("expected liquidatable account")
	}
}

func TestLiquidationFlipsOnPriceDrop(t *testing.T) {
	in := borrowFixture(t)
	in.Positions.Debts = sdk.NewCoins(coin("uosmo", 3500))

	values := mustCompute(t, in).Values()
	if !values.DebtValue.Equal(dec(t, "875")) {
		t.Fatalf("debt value: %s", values.DebtValue)
	}
	if values.Liquidatable {
		t.Fatalf("account should survive at price 10")
	}
	// 820 < 875: over the borrowing limit, yet not seizable.
	if !values.AboveMaxLTV {
		t.Fatalf("expected account above max LTV at price 10")
	}

	in.Prices["uatom"] = dec(t, "8.5")
	values = mustCompute(t, in).Values()
	if !values.LiqThresholdAdjCollateral.Equal(dec(t, "765")) {
		t.Fatalf("liq-threshold adjusted: %s", values.LiqThresholdAdjCollateral)
	}
	if !values.Liquidatable {
		t.Fatalf("expected liquidatable account at price 8.5")
	}
}

func TestUnparameterisedAssetIgnoredAsCollateral(t *testing.T) {
	in := borrowFixture(t)
	in.Positions.Deposits = sdk.NewCoins(coin("uatom", 100), coin("ujunk", 9999))

	values := mustCompute(t, in).Values()
	if !values.CollateralValue.Equal(dec(t, "1000")) {
		t.Fatalf("collateral value should skip ujunk: %s", values.CollateralValue)
	}

	in.Positions.Debts = sdk.NewCoins(coin("ujunk", 1))
	if _, err := NewComputer(in); !errors.Is(err, ErrMissingPrice) {
		t.Fatalf("unpriced debt must fail valuation, got %v", err)
	}
}

func TestDelistedAssetKeepsLiquidationThreshold(t *testing.T) {
	in := borrowFixture(t)
	uatom := in.AssetParams["uatom"]
	uatom.Whitelisted = false
	in.AssetParams["uatom"] = uatom

	values := mustCompute(t, in).Values()
	if !values.MaxLTVAdjCollateral.IsZero() {
		t.Fatalf("delisted asset still adds borrowing power: %s", values.MaxLTVAdjCollateral)
	}
	if !values.LiqThresholdAdjCollateral.Equal(dec(t, "900")) {
		t.Fatalf("liq-threshold adjusted: %s", values.LiqThresholdAdjCollateral)
	}
	if !values.AboveMaxLTV || values.Liquidatable {
		t.Fatalf("expected above max LTV but not liquidatable")
	}
}

func TestVaultValuationUsesShareRate(t *testing.T) {
	in := Inputs{
		Positions: Positions{
			AccountID: 7,
			Kind:      AccountKindDefault,
			Vaults: []VaultPosition{{
				Addr:           "cred1vaultaddr",
				BaseDenom:      "uatom",
				Unlocked:       sdkmath.NewInt(60),
				Locked:         sdkmath.NewInt(30),
				Unlocking:      sdkmath.NewInt(10),
				AssetsPerShare: dec(t, "1.1"),
			}},
		},
		Prices: map[string]sdkmath.LegacyDec{"uatom": dec(t, "10")},
		VaultConfigs: map[string]params.VaultConfig{
			"cred1vaultaddr": {
				Addr:                 "cred1vaultaddr",
				MaxLoanToValue:       dec(t, "0.75"),
				LiquidationThreshold: dec(t, "0.8"),
				Whitelisted:          true,
			},
		},
	}

	values := mustCompute(t, in).Values()
	if !values.CollateralValue.Equal(dec(t, "1100")) {
		t.Fatalf("vault collateral value: %s", values.CollateralValue)
	}
	if !values.MaxLTVAdjCollateral.Equal(dec(t, "825")) {
		t.Fatalf("vault max-ltv adjusted: %s", values.MaxLTVAdjCollateral)
	}
	if !values.LiqThresholdAdjCollateral.Equal(dec(t, "880")) {
		t.Fatalf("vault liq-threshold adjusted: %s", values.LiqThresholdAdjCollateral)
	}

	if len(values.Breakdown) != 1 {
		t.Fatalf("expected one breakdown entry, got %d", len(values.Breakdown))
	}
	entry := values.Breakdown[0]
	if entry.Kind != ComponentVault || !entry.Amount.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("unexpected vault entry: %+v", entry)
	}
	if !entry.Unlocked.Equal(sdkmath.NewInt(60)) || !entry.Locked.Equal(sdkmath.NewInt(30)) || !entry.Unlocking.Equal(sdkmath.NewInt(10)) {
		t.Fatalf("unexpected lockup split: %+v", entry)
	}
}

func TestHLSOverridesReplaceWeights(t *testing.T) {
	in := borrowFixture(t)
	in.Positions.Kind = AccountKindHLS
	uatom := in.AssetParams["uatom"]
	uatom.HLS = &params.HLSParams{
		MaxLoanToValue:       dec(t, "0.9"),
		LiquidationThreshold: dec(t, "0.95"),
		CorrelatedDenoms:     []string{"uosmo"},
	}
	in.AssetParams["uatom"] = uatom

	values := mustCompute(t, in).Values()
	if !values.MaxLTVAdjCollateral.Equal(dec(t, "900")) {
		t.Fatalf("max-ltv adjusted under HLS: %s", values.MaxLTVAdjCollateral)
	}
	if !values.LiqThresholdAdjCollateral.Equal(dec(t, "950")) {
		t.Fatalf("liq-threshold adjusted under HLS: %s", values.LiqThresholdAdjCollateral)
	}
	if !values.MaxLTVHealthFactor.Equal(dec(t, "7.2")) {
		t.Fatalf("max-ltv health factor under HLS: %s", values.MaxLTVHealthFactor)
	}
}

func TestHLSCompositionRejected(t *testing.T) {
	t.Run("second debt denom", func(t *testing.T) {
		in := borrowFixture(t)
		in.Positions.Kind = AccountKindHLS
		in.Positions.Debts = sdk.NewCoins(coin("uosmo", 500), coin("stETH", 1))
		if _, err := NewComputer(in); !errors.Is(err, ErrHLSMismatch) {
			t.Fatalf("expected ErrHLSMismatch, got %v", err)
		}
	})

	t.Run("second collateral denom", func(t *testing.T) {
		in := borrowFixture(t)
		in.Positions.Kind = AccountKindHLS
		in.Positions.Deposits = sdk.NewCoins(coin("uatom", 100), coin("ueth", 5))
		in.Positions.Debts = sdk.NewCoins(coin("stETH", 10))
		if _, err := NewComputer(in); !errors.Is(err, ErrHLSMismatch) {
			t.Fatalf("expected ErrHLSMismatch, got %v", err)
		}
	})

	t.Run("uncorrelated debt", func(t *testing.T) {
		in := borrowFixture(t)
		in.Positions.Kind = AccountKindHLS
		uatom := in.AssetParams["uatom"]
		uatom.HLS = &params.HLSParams{
			MaxLoanToValue:       dec(t, "0.9"),
			LiquidationThreshold: dec(t, "0.95"),
			CorrelatedDenoms:     []string{"uosmo"},
		}
		in.AssetParams["uatom"] = uatom
		in.Positions.Debts = sdk.NewCoins(coin("ueth", 1))
		in.Prices["ueth"] = dec(t, "100")
		if _, err := NewComputer(in); !errors.Is(err, ErrHLSMismatch) {
			t.Fatalf("expected ErrHLSMismatch, got %v", err)
		}
	})
}

func TestMaxBorrowClosedForm(t *testing.T) {
	computer := mustCompute(t, borrowFixture(t))

	deposit, err := computer.MaxBorrow("uosmo", BorrowTargetDeposit)
	if err != nil {
		t.Fatalf("max borrow deposit: %v", err)
	}
	if !deposit.Equal(sdkmath.NewInt(9266)) {
		t.Fatalf("deposit target: expected 9266, got %s", deposit)
	}

	wallet, err := computer.MaxBorrow("uosmo", BorrowTargetWallet)
	if err != nil {
		t.Fatalf("max borrow wallet: %v", err)
	}
	if !wallet.Equal(sdkmath.NewInt(2780)) {
		t.Fatalf("wallet target: expected 2780, got %s", wallet)
	}

	// Borrowing the wallet maximum lands the account exactly on the limit.
	in := borrowFixture(t)
	in.Positions.Debts = sdk.NewCoins(coin("uosmo", 500+2780))
	values := mustCompute(t, in).Values()
	if !values.MaxLTVHealthFactor.Equal(dec(t, "1")) {
		t.Fatalf("post-borrow health factor: %s", values.MaxLTVHealthFactor)
	}
	if values.AboveMaxLTV {
		t.Fatalf("maximum borrow must stay healthy")
	}
}

func TestMaxWithdrawRespectsHoldingsAndHeadroom(t *testing.T) {
	computer := mustCompute(t, borrowFixture(t))
	amount, err := computer.MaxWithdraw("uatom")
	if err != nil {
		t.Fatalf("max withdraw: %v", err)
	}
	if !amount.Equal(sdkmath.NewInt(84)) {
		t.Fatalf("expected 84, got %s", amount)
	}

	in := borrowFixture(t)
	in.Positions.Debts = nil
	amount, err = mustCompute(t, in).MaxWithdraw("uatom")
	if err != nil {
		t.Fatalf("max withdraw without debt: %v", err)
	}
	if !amount.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("debt-free account withdraws everything, got %s", amount)
	}

	in = borrowFixture(t)
	in.Positions.Deposits = sdk.NewCoins(coin("uatom", 100), coin("ujunk", 5))
	amount, err = mustCompute(t, in).MaxWithdraw("ujunk")
	if err != nil {
		t.Fatalf("max withdraw zero-weight: %v", err)
	}
	if !amount.Equal(sdkmath.NewInt(5)) {
		t.Fatalf("zero-weight asset withdraws fully, got %s", amount)
	}
}

func TestMaxSwapSizing(t *testing.T) {
	in := borrowFixture(t)
	in.Positions.Deposits = sdk.NewCoins(coin("uatom", 100), coin("uosmo", 200))
	in.Positions.Debts = sdk.NewCoins(coin("uosmo", 3000))
	computer := mustCompute(t, in)

	// Dropping from weight 0.82 to 0.7 burns headroom 105 at 1.2 per coin.
	amount, err := computer.MaxSwap("uatom", "uosmo", SwapKindDefault)
	if err != nil {
		t.Fatalf("max swap down-weight: %v", err)
	}
	if !amount.Equal(sdkmath.NewInt(87)) {
		t.Fatalf("expected 87, got %s", amount)
	}

	// Swapping into a higher weight is capped only by the holding.
	amount, err = computer.MaxSwap("uosmo", "uatom", SwapKindDefault)
	if err != nil {
		t.Fatalf("max swap up-weight: %v", err)
	}
	if !amount.Equal(sdkmath.NewInt(200)) {
		t.Fatalf("expected 200, got %s", amount)
	}

	amount, err = computer.MaxSwap("uosmo", "uatom", SwapKindMargin)
	if err != nil {
		t.Fatalf("max swap margin: %v", err)
	}
	if !amount.Equal(sdkmath.NewInt(2333)) {
		t.Fatalf("expected 2333, got %s", amount)
	}
}

package credit

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/core/events"
	"creditcore/crypto"
	"creditcore/native/health"
	"creditcore/native/market"
	"creditcore/native/params"
	"creditcore/native/swapper"
	"creditcore/native/vault"
	"creditcore/native/zapper"
	"creditcore/storage"
)

func TestDepositAndBorrowValuation(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))

	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
		{Borrow: &BorrowAction{Coin: coin(t, "uosmo", 500)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	pos := h.positions(t, id)
	if !pos.Deposits.AmountOf("uatom").Equal(sdkmath.NewInt(100)) || !pos.Deposits.AmountOf("uosmo").Equal(sdkmath.NewInt(500)) {
		t.Fatalf("deposits: %s", pos.Deposits)
	}
	if len(pos.Debts) != 1 || !pos.Debts.AmountOf("uosmo").Equal(sdkmath.NewInt(500)) {
		t.Fatalf("debts: %s", pos.Debts)
	}

	values, err := h.engine.Health(id)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	// Borrowed uosmo sits in deposits but has no asset params, so it adds
	// nothing to collateral.
	if !values.CollateralValue.Equal(dec(t, "1000")) {
		t.Fatalf("collateral value: %s", values.CollateralValue)
	}
	if !values.DebtValue.Equal(dec(t, "125")) {
		t.Fatalf("debt value: %s", values.DebtValue)
	}
	if !values.MaxLTVAdjCollateral.Equal(dec(t, "820")) || !values.LiqThresholdAdjCollateral.Equal(dec(t, "900")) {
		t.Fatalf("adjusted collateral: %s / %s", values.MaxLTVAdjCollateral, values.LiqThresholdAdjCollateral)
	}
	if values.MaxLTVHealthFactor == nil || !values.MaxLTVHealthFactor.Equal(dec(t, "6.56")) {
		t.Fatalf("max ltv health factor: %v", values.MaxLTVHealthFactor)
	}
	if values.LiqHealthFactor == nil || !values.LiqHealthFactor.Equal(dec(t, "7.2")) {
		t.Fatalf("liquidation health factor: %v", values.LiqHealthFactor)
	}
	if values.AboveMaxLTV || values.Liquidatable {
		t.Fatalf("healthy account flagged: %+v", values)
	}
}

func TestFailedActionRollsBackEverything(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))

	// 3500 uosmo is 875 against 820 of borrowing power.
	err := h.engine.UpdateCreditAccount(alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
		{Borrow: &BorrowAction{Coin: coin(t, "uosmo", 3500)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))
	if !errors.Is(err, ErrAboveMaxLTV) {
		t.Fatalf("expected borrow limit rejection, got %v", err)
	}

	balance, _ := h.ledger.Balance(alice, "uatom")
	if !balance.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("wallet not restored: %s", balance)
	}
	pos := h.positions(t, id)
	if len(pos.Deposits) != 0 || len(pos.Debts) != 0 {
		t.Fatalf("position not rolled back: %+v", pos)
	}
	if got := h.emitted.ByType(events.TypePositionUpdated); len(got) != 0 {
		t.Fatalf("aborted batch leaked %d events", len(got))
	}
}

func TestActionsRequireMatchingFunds(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))

	err := h.engine.UpdateCreditAccount(alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 50)}},
	}, nil)
	if !errors.Is(err, ErrFundsMismatch) {
		t.Fatalf("deposit without funds: %v", err)
	}

	err = h.engine.UpdateCreditAccount(alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 60)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))
	if !errors.Is(err, ErrExtraFundsReceived) {
		t.Fatalf("unmatched funds: %v", err)
	}
	balance, _ := h.ledger.Balance(alice, "uatom")
	if !balance.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("wallet not restored: %s", balance)
	}

	err = h.engine.UpdateCreditAccount(alice, id, []Action{
		{Deposit: &DepositAction{Coin: sdk.NewCoin("uatom", sdkmath.ZeroInt())}},
	}, nil)
	if !errors.Is(err, ErrNoAmount) {
		t.Fatalf("zero deposit: %v", err)
	}

	if err := h.engine.UpdateCreditAccount(alice, id, []Action{{}}, nil); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("empty action: %v", err)
	}
}

func TestDepositCap(t *testing.T) {
	h := newHarness(t)
	h.setPrice(t, "ucap", "1")
	capped := assetParams(t, "ucap", "0.5", "0.6")
	capped.DepositCap = sdkmath.NewInt(150)
	h.listAsset(t, capped)

	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "ucap", 210))

	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "ucap", 100)}},
	}, sdk.NewCoins(coin(t, "ucap", 100)))

	err := h.engine.UpdateCreditAccount(alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "ucap", 60)}},
	}, sdk.NewCoins(coin(t, "ucap", 60)))
	if !errors.Is(err, ErrDepositCapExceeded) {
		t.Fatalf("expected cap rejection, got %v", err)
	}
	if got := h.positions(t, id).Deposits.AmountOf("ucap"); !got.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("rejected deposit leaked: %s", got)
	}

	// Landing exactly on the cap is allowed.
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "ucap", 50)}},
	}, sdk.NewCoins(coin(t, "ucap", 50)))
	if got := h.positions(t, id).Deposits.AmountOf("ucap"); !got.Equal(sdkmath.NewInt(150)) {
		t.Fatalf("deposits after cap fill: %s", got)
	}
}

func TestWithdrawDeposits(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	alice := testAddress(t, 1)
	bob := testAddress(t, 2)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	h.update(t, alice, id, []Action{
		{Withdraw: &WithdrawAction{Coin: coin(t, "uatom", 30), Recipient: bob.String()}},
	}, nil)
	balance, _ := h.ledger.Balance(bob, "uatom")
	if !balance.Equal(sdkmath.NewInt(30)) {
		t.Fatalf("recipient balance: %s", balance)
	}
	if got := h.positions(t, id).Deposits.AmountOf("uatom"); !got.Equal(sdkmath.NewInt(70)) {
		t.Fatalf("deposits after withdraw: %s", got)
	}

	err := h.engine.UpdateCreditAccount(alice, id, []Action{
		{Withdraw: &WithdrawAction{Coin: coin(t, "uatom", 200)}},
	}, nil)
	if !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("expected deposit shortfall, got %v", err)
	}
}

func TestRepayFromWalletIsPermissionless(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	alice := testAddress(t, 1)
	bob := testAddress(t, 2)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
		{Borrow: &BorrowAction{Coin: coin(t, "uosmo", 300)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	// Bob holds no account and never asked for permission; the surplus over
	// the outstanding debt flows back to him.
	h.fund(t, bob, coin(t, "uosmo", 400))
	if err := h.engine.RepayFromWallet(bob, id, coin(t, "uosmo", 400)); err != nil {
		t.Fatalf("repay from wallet: %v", err)
	}
	balance, _ := h.ledger.Balance(bob, "uosmo")
	if !balance.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("refund not returned: %s", balance)
	}
	pos := h.positions(t, id)
	if len(pos.Debts) != 0 {
		t.Fatalf("debt not cleared: %s", pos.Debts)
	}
	if !pos.Deposits.AmountOf("uosmo").Equal(sdkmath.NewInt(300)) {
		t.Fatalf("deposits disturbed: %s", pos.Deposits)
	}

	err := h.engine.RepayFromWallet(bob, id, coin(t, "uosmo", 50))
	if !errors.Is(err, market.ErrNoDebt) {
		t.Fatalf("repay without debt: %v", err)
	}
}

func TestLendAndReclaim(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
		{Lend: &LendAction{Coin: coin(t, "uatom", 60)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	pos := h.positions(t, id)
	if !pos.Deposits.AmountOf("uatom").Equal(sdkmath.NewInt(40)) || !pos.Lends.AmountOf("uatom").Equal(sdkmath.NewInt(60)) {
		t.Fatalf("after lend: deposits %s lends %s", pos.Deposits, pos.Lends)
	}

	h.update(t, alice, id, []Action{
		{Reclaim: &ReclaimAction{Coin: coin(t, "uatom", 25)}},
	}, nil)
	pos = h.positions(t, id)
	if !pos.Deposits.AmountOf("uatom").Equal(sdkmath.NewInt(65)) || !pos.Lends.AmountOf("uatom").Equal(sdkmath.NewInt(35)) {
		t.Fatalf("after reclaim: deposits %s lends %s", pos.Deposits, pos.Lends)
	}

	h.update(t, alice, id, []Action{
		{Reclaim: &ReclaimAction{Coin: coin(t, "uatom", 35)}},
	}, nil)
	pos = h.positions(t, id)
	if !pos.Deposits.AmountOf("uatom").Equal(sdkmath.NewInt(100)) || len(pos.Lends) != 0 {
		t.Fatalf("after full reclaim: deposits %s lends %s", pos.Deposits, pos.Lends)
	}
}

func TestSwapThroughConfiguredRoute(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	routes := swapper.NewEngine(h.db)
	if err := routes.SetRoute(swapper.Route{DenomIn: "uatom", DenomOut: "uosmo", Rate: dec(t, "4"), Fee: dec(t, "0.0025")}); err != nil {
		t.Fatalf("set route: %v", err)
	}
	h.fund(t, crypto.ModuleAddress("swapper"), coin(t, "uosmo", 1000))

	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	// 100 * 4 shaved by the 0.25% route fee.
	h.update(t, alice, id, []Action{
		{SwapExactIn: &SwapExactInAction{CoinIn: coin(t, "uatom", 100), DenomOut: "uosmo", Slippage: dec(t, "0.01")}},
	}, nil)
	pos := h.positions(t, id)
	if !pos.Deposits.AmountOf("uatom").IsZero() || !pos.Deposits.AmountOf("uosmo").Equal(sdkmath.NewInt(399)) {
		t.Fatalf("deposits after swap: %s", pos.Deposits)
	}
	swapBal, _ := h.ledger.Balance(crypto.ModuleAddress("swapper"), "uatom")
	if !swapBal.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("swapper inventory: %s", swapBal)
	}
}

func TestSwapGuards(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)

	err := h.engine.UpdateCreditAccount(alice, id, []Action{
		{SwapExactIn: &SwapExactInAction{CoinIn: coin(t, "uatom", 10), DenomOut: "uosmo", Slippage: dec(t, "0.06")}},
	}, nil)
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("slippage above configured maximum: %v", err)
	}

	err = h.engine.UpdateCreditAccount(alice, id, []Action{
		{SwapExactIn: &SwapExactInAction{CoinIn: coin(t, "uatom", 10), DenomOut: "uosmo"}},
	}, nil)
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("unset slippage: %v", err)
	}

	err = h.engine.UpdateCreditAccount(alice, id, []Action{
		{SwapExactIn: &SwapExactInAction{CoinIn: coin(t, "uatom", 10), DenomOut: "uatom", Slippage: dec(t, "0.01")}},
	}, nil)
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("identical denoms: %v", err)
	}
}

// scriptedSwapper quotes and fills fixed amounts regardless of input, standing
// in for a venue whose execution diverges from its own estimate.
type scriptedSwapper struct {
	quote sdkmath.Int
	fill  sdkmath.Int
}

func (s scriptedSwapper) EstimateExactInSwap(coinIn sdk.Coin, denomOut string) (sdk.Coin, error) {
	return sdk.NewCoin(denomOut, s.quote), nil
}

func (s scriptedSwapper) SwapExactIn(coinIn sdk.Coin, denomOut string, minReceive sdkmath.Int) (sdk.Coin, error) {
	if s.fill.LT(minReceive) {
		return sdk.Coin{}, fmt.Errorf("%w: filled %s, needed %s", swapper.ErrBelowMinReceive, s.fill, minReceive)
	}
	return sdk.NewCoin(denomOut, s.fill), nil
}

func TestSwapBackendMinReceive(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	h.fund(t, crypto.ModuleAddress("swapper"), coin(t, "uosmo", 1000))
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	// Quote 400 at 1% slippage floors the fill at 396; 399 clears it.
	h.engine.SetSwapperFactory(func(storage.Database) Swapper {
		return scriptedSwapper{quote: sdkmath.NewInt(400), fill: sdkmath.NewInt(399)}
	})
	h.update(t, alice, id, []Action{
		{SwapExactIn: &SwapExactInAction{CoinIn: coin(t, "uatom", 100), DenomOut: "uosmo", Slippage: dec(t, "0.01")}},
	}, nil)
	if got := h.positions(t, id).Deposits.AmountOf("uosmo"); !got.Equal(sdkmath.NewInt(399)) {
		t.Fatalf("deposits after swap: %s", got)
	}

	h.engine.SetSwapperFactory(func(storage.Database) Swapper {
		return scriptedSwapper{quote: sdkmath.NewInt(400), fill: sdkmath.NewInt(390)}
	})
	err := h.engine.UpdateCreditAccount(alice, id, []Action{
		{SwapExactIn: &SwapExactInAction{CoinIn: coin(t, "uosmo", 399), DenomOut: "uatom", Slippage: dec(t, "0.01")}},
	}, nil)
	if !errors.Is(err, swapper.ErrBelowMinReceive) {
		t.Fatalf("expected short fill rejection, got %v", err)
	}
	if got := h.positions(t, id).Deposits.AmountOf("uosmo"); !got.Equal(sdkmath.NewInt(399)) {
		t.Fatalf("failed swap moved deposits: %s", got)
	}
}

func TestHighLeveredAccountComposition(t *testing.T) {
	h := newHarness(t)
	h.setPrice(t, "usteth", "1")
	h.setPrice(t, "ueth", "1")
	h.setPrice(t, "uosmo", "0.25")
	steth := assetParams(t, "usteth", "0.7", "0.75")
	steth.HLS = &params.HLSParams{
		MaxLoanToValue:       dec(t, "0.85"),
		LiquidationThreshold: dec(t, "0.9"),
		CorrelatedDenoms:     []string{"ueth"},
	}
	h.listAsset(t, steth)
	h.createMarket(t, "ueth")
	h.createMarket(t, "uosmo")
	h.seedMarketLiquidity(t, coin(t, "ueth", 10_000), coin(t, "uosmo", 10_000))

	alice := testAddress(t, 1)
	id, err := h.engine.CreateCreditAccount(alice, health.AccountKindHLS)
	if err != nil {
		t.Fatalf("create hls account: %v", err)
	}
	h.fund(t, alice, coin(t, "usteth", 1000))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "usteth", 1000)}},
		{Borrow: &BorrowAction{Coin: coin(t, "ueth", 500)}},
	}, sdk.NewCoins(coin(t, "usteth", 1000)))

	// The HLS overrides apply: 850 and 900 against 500 of debt.
	values, err := h.engine.Health(id)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if values.MaxLTVHealthFactor == nil || !values.MaxLTVHealthFactor.Equal(dec(t, "1.7")) {
		t.Fatalf("max ltv health factor: %v", values.MaxLTVHealthFactor)
	}
	if values.LiqHealthFactor == nil || !values.LiqHealthFactor.Equal(dec(t, "1.8")) {
		t.Fatalf("liquidation health factor: %v", values.LiqHealthFactor)
	}

	// A second debt denom breaks the strategy shape.
	err = h.engine.UpdateCreditAccount(alice, id, []Action{
		{Borrow: &BorrowAction{Coin: coin(t, "uosmo", 100)}},
	}, nil)
	if !errors.Is(err, ErrHLSMismatch) {
		t.Fatalf("expected composition rejection, got %v", err)
	}
	pos := h.positions(t, id)
	if len(pos.Debts) != 1 || !pos.Debts.AmountOf("ueth").Equal(sdkmath.NewInt(500)) {
		t.Fatalf("rejected borrow leaked: %s", pos.Debts)
	}
}

func (h *harness) registerVault(t *testing.T, suffix byte, lockupSeconds uint64, depositCap int64) string {
	t.Helper()
	addr := testAddress(t, suffix).String()
	if err := h.vaults.Register(addr, "uatom", lockupSeconds); err != nil {
		t.Fatalf("register vault: %v", err)
	}
	if err := h.params.SetVaultConfig(params.VaultConfig{
		Addr:                 addr,
		DepositCap:           sdkmath.NewInt(depositCap),
		MaxLoanToValue:       dec(t, "0.5"),
		LiquidationThreshold: dec(t, "0.6"),
		Whitelisted:          true,
	}); err != nil {
		t.Fatalf("set vault config: %v", err)
	}
	return addr
}

func TestVaultUnlockedRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	vaultAddr := h.registerVault(t, 0x50, 0, 0)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
		{EnterVault: &EnterVaultAction{Vault: vaultAddr, Coin: coin(t, "uatom", 40)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	pos := h.positions(t, id)
	if !pos.Deposits.AmountOf("uatom").Equal(sdkmath.NewInt(60)) {
		t.Fatalf("deposits after enter: %s", pos.Deposits)
	}
	if len(pos.Vaults) != 1 || pos.Vaults[0].Addr != vaultAddr || pos.Vaults[0].Kind != vault.PositionUnlocked {
		t.Fatalf("vault position: %+v", pos.Vaults)
	}
	if !pos.Vaults[0].Unlocked.Equal(sdkmath.NewInt(40)) {
		t.Fatalf("unlocked shares: %s", pos.Vaults[0].Unlocked)
	}

	h.update(t, alice, id, []Action{
		{ExitVault: &ExitVaultAction{Vault: vaultAddr, Shares: sdkmath.NewInt(40)}},
	}, nil)
	pos = h.positions(t, id)
	if !pos.Deposits.AmountOf("uatom").Equal(sdkmath.NewInt(100)) || len(pos.Vaults) != 0 {
		t.Fatalf("after exit: deposits %s vaults %+v", pos.Deposits, pos.Vaults)
	}
}

func TestVaultLockupLifecycle(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	vaultAddr := h.registerVault(t, 0x51, 3600, 0)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
		{EnterVault: &EnterVaultAction{Vault: vaultAddr, Coin: coin(t, "uatom", 100)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	pos := h.positions(t, id)
	if len(pos.Vaults) != 1 || pos.Vaults[0].Kind != vault.PositionLocking || !pos.Vaults[0].Locked.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("vault position: %+v", pos.Vaults)
	}

	err := h.engine.UpdateCreditAccount(alice, id, []Action{
		{ExitVault: &ExitVaultAction{Vault: vaultAddr, Shares: sdkmath.NewInt(100)}},
	}, nil)
	if !errors.Is(err, ErrUnlockRequired) {
		t.Fatalf("direct exit from locked shares: %v", err)
	}

	h.update(t, alice, id, []Action{
		{RequestUnlock: &RequestUnlockAction{Vault: vaultAddr, Shares: sdkmath.NewInt(100)}},
	}, nil)
	release := uint64(h.now.Unix()) + 3600
	unlocks := h.emitted.ByType(events.TypeVaultUnlockRequested)
	if len(unlocks) != 1 {
		t.Fatalf("expected one unlock event, got %d", len(unlocks))
	}
	attrs := unlocks[0].Attributes
	if attrs["unlockId"] != "1" || attrs["shares"] != "100" || attrs["releaseTime"] != strconv.FormatUint(release, 10) {
		t.Fatalf("unlock event attributes: %v", attrs)
	}
	pos = h.positions(t, id)
	if len(pos.Vaults) != 1 || len(pos.Vaults[0].Unlocking) != 1 {
		t.Fatalf("cooldown entry missing: %+v", pos.Vaults)
	}
	if entry := pos.Vaults[0].Unlocking[0]; entry.ID != 1 || entry.CooldownEnd != release {
		t.Fatalf("cooldown entry: %+v", entry)
	}

	err = h.engine.UpdateCreditAccount(alice, id, []Action{
		{ExitUnlocked: &ExitUnlockedAction{ID: 1}},
	}, nil)
	if !errors.Is(err, ErrUnlockNotReady) {
		t.Fatalf("exit before maturity: %v", err)
	}
	err = h.engine.UpdateCreditAccount(alice, id, []Action{
		{ExitUnlocked: &ExitUnlockedAction{ID: 99}},
	}, nil)
	if !errors.Is(err, ErrLockupPositionNotFound) {
		t.Fatalf("unknown unlock id: %v", err)
	}

	// Maturity is inclusive.
	h.advance(3600 * time.Second)
	h.update(t, alice, id, []Action{
		{ExitUnlocked: &ExitUnlockedAction{ID: 1}},
	}, nil)
	pos = h.positions(t, id)
	if !pos.Deposits.AmountOf("uatom").Equal(sdkmath.NewInt(100)) || len(pos.Vaults) != 0 {
		t.Fatalf("after matured exit: deposits %s vaults %+v", pos.Deposits, pos.Vaults)
	}
}

func TestVaultDepositCap(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	vaultAddr := h.registerVault(t, 0x52, 0, 50)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	err := h.engine.UpdateCreditAccount(alice, id, []Action{
		{EnterVault: &EnterVaultAction{Vault: vaultAddr, Coin: coin(t, "uatom", 60)}},
	}, nil)
	if !errors.Is(err, ErrDepositCapExceeded) {
		t.Fatalf("expected vault cap rejection, got %v", err)
	}

	h.update(t, alice, id, []Action{
		{EnterVault: &EnterVaultAction{Vault: vaultAddr, Coin: coin(t, "uatom", 50)}},
	}, nil)
	if got := h.positions(t, id).Vaults; len(got) != 1 || !got[0].Unlocked.Equal(sdkmath.NewInt(50)) {
		t.Fatalf("vault position: %+v", got)
	}
}

func TestProvideAndWithdrawLiquidity(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	h.listAsset(t, assetParams(t, "uosmo", "0.5", "0.6"))
	pools := zapper.NewEngine(h.db)
	if err := pools.CreatePool("ulp", "uatom", "uosmo"); err != nil {
		t.Fatalf("create pool: %v", err)
	}

	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 50), coin(t, "uosmo", 500))
	pair := sdk.NewCoins(coin(t, "uatom", 50), coin(t, "uosmo", 500))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 50)}},
		{Deposit: &DepositAction{Coin: coin(t, "uosmo", 500)}},
		{ProvideLiquidity: &ProvideLiquidityAction{LPDenom: "ulp", CoinsIn: pair}},
	}, pair)

	// Bootstrap mints floor(sqrt(50*500)) shares.
	pos := h.positions(t, id)
	if !pos.Deposits.AmountOf("ulp").Equal(sdkmath.NewInt(158)) {
		t.Fatalf("lp deposits: %s", pos.Deposits)
	}
	if !pos.Deposits.AmountOf("uatom").IsZero() || !pos.Deposits.AmountOf("uosmo").IsZero() {
		t.Fatalf("pair not consumed: %s", pos.Deposits)
	}
	supply, _ := h.ledger.Supply("ulp")
	if !supply.Equal(sdkmath.NewInt(158)) {
		t.Fatalf("lp supply: %s", supply)
	}

	h.update(t, alice, id, []Action{
		{WithdrawLiquidity: &WithdrawLiquidityAction{LPCoin: coin(t, "ulp", 158)}},
	}, nil)
	pos = h.positions(t, id)
	if !pos.Deposits.AmountOf("uatom").Equal(sdkmath.NewInt(50)) || !pos.Deposits.AmountOf("uosmo").Equal(sdkmath.NewInt(500)) {
		t.Fatalf("pair not returned: %s", pos.Deposits)
	}
	supply, _ = h.ledger.Supply("ulp")
	if !supply.IsZero() {
		t.Fatalf("lp supply after burn: %s", supply)
	}

	// The emptied pool bootstraps again, now against the minimum.
	err := h.engine.UpdateCreditAccount(alice, id, []Action{
		{ProvideLiquidity: &ProvideLiquidityAction{LPDenom: "ulp", CoinsIn: pair, MinOut: sdkmath.NewInt(200)}},
	}, nil)
	if !errors.Is(err, zapper.ErrBelowMinOut) {
		t.Fatalf("expected min out rejection, got %v", err)
	}
	if got := h.positions(t, id).Deposits.AmountOf("uatom"); !got.Equal(sdkmath.NewInt(50)) {
		t.Fatalf("failed zap moved deposits: %s", got)
	}
}

func TestClaimRewards(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	if err := h.incentives.Award(id, sdk.NewCoins(coin(t, "uosmo", 25))); err != nil {
		t.Fatalf("award: %v", err)
	}
	h.fund(t, crypto.ModuleAddress("incentives"), coin(t, "uosmo", 25))

	h.update(t, alice, id, []Action{
		{ClaimRewards: &ClaimRewardsAction{}},
	}, nil)
	if got := h.positions(t, id).Deposits.AmountOf("uosmo"); !got.Equal(sdkmath.NewInt(25)) {
		t.Fatalf("rewards not deposited: %s", got)
	}

	// Claiming again is a no-op and emits nothing.
	h.update(t, alice, id, []Action{
		{ClaimRewards: &ClaimRewardsAction{}},
	}, nil)
	claims := 0
	for _, evt := range h.emitted.ByType(events.TypePositionUpdated) {
		if evt.Attributes["action"] == "claimRewards" {
			claims++
		}
	}
	if claims != 1 {
		t.Fatalf("expected one claim event, got %d", claims)
	}
}

func TestRefundBalances(t *testing.T) {
	h := newHarness(t)
	h.borrowFixture(t)
	alice := testAddress(t, 1)
	id := h.createAccount(t, alice)
	h.fund(t, alice, coin(t, "uatom", 100))
	h.update(t, alice, id, []Action{
		{Deposit: &DepositAction{Coin: coin(t, "uatom", 100)}},
	}, sdk.NewCoins(coin(t, "uatom", 100)))

	h.update(t, alice, id, []Action{
		{RefundBalances: &RefundBalancesAction{}},
	}, nil)
	if got := h.positions(t, id).Deposits; len(got) != 0 {
		t.Fatalf("deposits not swept: %s", got)
	}
	balance, _ := h.ledger.Balance(alice, "uatom")
	if !balance.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("owner wallet: %s", balance)
	}
}

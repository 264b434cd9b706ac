package credit

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/core/events"
	"creditcore/crypto"
	"creditcore/native/health"
	"creditcore/native/vault"
)

// callback is one self-contained pipeline step. Callbacks run strictly in
// submitted order; the first failure aborts the whole transaction.
type callback struct {
	name string
	run  func() error
}

// batchState is shared by every callback of one account update: the acting
// account, its owner, and the attached funds not yet matched by an action.
type batchState struct {
	s       *session
	account Account
	owner   crypto.Address
	sender  crypto.Address

	remaining sdk.Coins
}

// update authorizes the batch, credits attached funds, expands actions into
// the callback queue, and drains it.
func (s *session) update(sender crypto.Address, accountID uint64, actions []Action, funds sdk.Coins) error {
	account, err := s.state.Account(accountID)
	if err != nil {
		return err
	}
	owner, err := s.registry.OwnerOf(accountID)
	if err != nil {
		return err
	}
	if !owner.Equal(sender) {
		return fmt.Errorf("%w: %s does not own account %d", ErrUnauthorized, sender, accountID)
	}
	batch, err := s.newBatch(account, owner, sender, funds)
	if err != nil {
		return err
	}
	queue, err := batch.plan(actions)
	if err != nil {
		return err
	}
	for _, cb := range queue {
		if err := cb.run(); err != nil {
			return fmt.Errorf("%s: %w", cb.name, err)
		}
	}
	return nil
}

// repayFromWallet is the permissionless single-purpose flow: anyone may pay
// down any account's debt with their own coins. No health check runs since
// repaying can only improve the account.
func (s *session) repayFromWallet(sender crypto.Address, accountID uint64, coin sdk.Coin) error {
	if err := requireCoin(coin); err != nil {
		return err
	}
	account, err := s.state.Account(accountID)
	if err != nil {
		return err
	}
	owner, err := s.registry.OwnerOf(accountID)
	if err != nil {
		return err
	}
	batch, err := s.newBatch(account, owner, sender, sdk.Coins{coin})
	if err != nil {
		return err
	}
	if err := batch.runRepay(&RepayAction{Coin: coin, FromWallet: true}); err != nil {
		return fmt.Errorf("repay: %w", err)
	}
	return batch.assertSpentFunds()
}

// newBatch moves the attached funds into module custody and credits them to
// the account deposits before any action executes.
func (s *session) newBatch(account Account, owner, sender crypto.Address, funds sdk.Coins) (*batchState, error) {
	normalized, err := normalizeFunds(funds)
	if err != nil {
		return nil, err
	}
	if len(normalized) > 0 {
		if err := s.ledger.Send(sender, s.creditAddr, normalized); err != nil {
			return nil, err
		}
		for _, coin := range normalized {
			if err := s.state.AddDeposit(account.ID, coin); err != nil {
				return nil, err
			}
		}
	}
	return &batchState{
		s:         s,
		account:   account,
		owner:     owner,
		sender:    sender,
		remaining: normalized,
	}, nil
}

// normalizeFunds sums duplicate attached denoms and validates every entry.
func normalizeFunds(funds sdk.Coins) (sdk.Coins, error) {
	totals := make(map[string]sdkmath.Int, len(funds))
	for _, coin := range funds {
		if err := requireCoin(coin); err != nil {
			return nil, err
		}
		if have, ok := totals[coin.Denom]; ok {
			totals[coin.Denom] = have.Add(coin.Amount)
		} else {
			totals[coin.Denom] = coin.Amount
		}
	}
	denoms := make([]string, 0, len(totals))
	for denom := range totals {
		denoms = append(denoms, denom)
	}
	sort.Strings(denoms)
	out := make(sdk.Coins, 0, len(denoms))
	for _, denom := range denoms {
		out = append(out, sdk.NewCoin(denom, totals[denom]))
	}
	return out, nil
}

// plan expands the actions into the callback queue. Liquidatee health is
// snapshot here, at transaction entry, so the improvement assertion compares
// against the state the liquidator acted on. The funds check and the health
// assertions always run last, in that order.
func (b *batchState) plan(actions []Action) ([]callback, error) {
	queue := make([]callback, 0, len(actions)+2)
	var liquidatees []uint64
	pre := make(map[uint64]health.Values)
	for i := range actions {
		action := actions[i]
		if err := action.validate(); err != nil {
			return nil, err
		}
		if a := action.LiquidateDebt; a != nil {
			if _, seen := pre[a.AccountID]; !seen {
				target, err := b.s.state.Account(a.AccountID)
				if err != nil {
					return nil, err
				}
				values, err := b.s.healthValues(target)
				if err != nil {
					return nil, err
				}
				pre[a.AccountID] = values
				liquidatees = append(liquidatees, a.AccountID)
			}
		}
		queue = append(queue, b.callbackFor(action))
	}
	queue = append(queue, callback{name: "assertSpentFunds", run: b.assertSpentFunds})
	for _, id := range liquidatees {
		id := id
		snapshot := pre[id]
		queue = append(queue, callback{name: "assertHealthFactorImproved", run: func() error {
			return b.assertImproved(id, snapshot)
		}})
	}
	queue = append(queue, callback{name: "assertHealthy", run: b.assertHealthy})
	return queue, nil
}

func (b *batchState) callbackFor(action Action) callback {
	cb := callback{name: action.name()}
	switch {
	case action.Deposit != nil:
		a := action.Deposit
		cb.run = func() error { return b.runDeposit(a) }
	case action.Withdraw != nil:
		a := action.Withdraw
		cb.run = func() error { return b.runWithdraw(a) }
	case action.Borrow != nil:
		a := action.Borrow
		cb.run = func() error { return b.runBorrow(a) }
	case action.Repay != nil:
		a := action.Repay
		cb.run = func() error { return b.runRepay(a) }
	case action.Lend != nil:
		a := action.Lend
		cb.run = func() error { return b.runLend(a) }
	case action.Reclaim != nil:
		a := action.Reclaim
		cb.run = func() error { return b.runReclaim(a) }
	case action.SwapExactIn != nil:
		a := action.SwapExactIn
		cb.run = func() error { return b.runSwap(a) }
	case action.EnterVault != nil:
		a := action.EnterVault
		cb.run = func() error { return b.runEnterVault(a) }
	case action.ExitVault != nil:
		a := action.ExitVault
		cb.run = func() error { return b.runExitVault(a) }
	case action.RequestUnlock != nil:
		a := action.RequestUnlock
		cb.run = func() error { return b.runRequestUnlock(a) }
	case action.ExitUnlocked != nil:
		a := action.ExitUnlocked
		cb.run = func() error { return b.runExitUnlocked(a) }
	case action.ProvideLiquidity != nil:
		a := action.ProvideLiquidity
		cb.run = func() error { return b.runProvideLiquidity(a) }
	case action.WithdrawLiquidity != nil:
		a := action.WithdrawLiquidity
		cb.run = func() error { return b.runWithdrawLiquidity(a) }
	case action.LiquidateDebt != nil:
		a := action.LiquidateDebt
		cb.run = func() error { return b.runLiquidateDebt(a) }
	case action.ClaimRewards != nil:
		cb.run = b.runClaimRewards
	case action.RefundBalances != nil:
		cb.run = b.runRefundBalances
	}
	return cb
}

// consumeFunds matches an action against the attached funds.
func (b *batchState) consumeFunds(coin sdk.Coin) error {
	have := b.remaining.AmountOf(coin.Denom)
	if have.LT(coin.Amount) {
		return fmt.Errorf("%w: action needs %s, attached %s%s", ErrFundsMismatch, coin, have, coin.Denom)
	}
	b.remaining = b.remaining.Sub(coin)
	return nil
}

func (b *batchState) emit(action string, coins sdk.Coins, counterparty string) {
	b.s.recorder.Emit(events.PositionUpdated{
		AccountID:    b.account.ID,
		Action:       action,
		Coins:        coins,
		Counterparty: counterparty,
	})
}

// runDeposit validates the whitelist and cap for a coin that intake already
// credited, and marks the matching attached funds as consumed.
func (b *batchState) runDeposit(a *DepositAction) error {
	if err := requireCoin(a.Coin); err != nil {
		return err
	}
	if err := b.consumeFunds(a.Coin); err != nil {
		return err
	}
	p, ok, err := b.s.params.AssetParams(a.Coin.Denom)
	if err != nil {
		return err
	}
	if !ok || !p.Whitelisted {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, a.Coin.Denom)
	}
	// A zero cap disables the limit. The intake credit is already counted,
	// so a plain threshold comparison covers this action's contribution.
	if p.DepositCap.IsPositive() {
		total, err := b.s.state.TotalDeposited(a.Coin.Denom)
		if err != nil {
			return err
		}
		if total.GT(p.DepositCap) {
			return fmt.Errorf("%w: %s deposits at %s, cap %s", ErrDepositCapExceeded, a.Coin.Denom, total, p.DepositCap)
		}
	}
	b.emit("deposit", sdk.NewCoins(a.Coin), "")
	return nil
}

func (b *batchState) runWithdraw(a *WithdrawAction) error {
	if err := requireCoin(a.Coin); err != nil {
		return err
	}
	recipient := b.owner
	if a.Recipient != "" {
		parsed, err := crypto.ParseAddress(a.Recipient)
		if err != nil {
			return fmt.Errorf("%w: recipient: %v", ErrInvalidAction, err)
		}
		recipient = parsed
	}
	if err := b.s.state.SubDeposit(b.account.ID, a.Coin); err != nil {
		return err
	}
	if err := b.s.ledger.Send(b.s.creditAddr, recipient, sdk.NewCoins(a.Coin)); err != nil {
		return err
	}
	b.emit("withdraw", sdk.NewCoins(a.Coin), recipient.String())
	return nil
}

func (b *batchState) runBorrow(a *BorrowAction) error {
	if err := requireCoin(a.Coin); err != nil {
		return err
	}
	if err := b.s.market.Borrow(b.account.ID, a.Coin); err != nil {
		return err
	}
	if err := b.s.ledger.Send(b.s.marketAddr, b.s.creditAddr, sdk.NewCoins(a.Coin)); err != nil {
		return err
	}
	if err := b.s.state.AddDeposit(b.account.ID, a.Coin); err != nil {
		return err
	}
	b.emit("borrow", sdk.NewCoins(a.Coin), b.s.cfg.MarketAddr)
	return nil
}

// runRepay pays down debt from deposits. Intake has already credited wallet
// funds to deposits, so both paths debit deposits; the wallet path returns
// any excess over the outstanding debt to the sender instead of leaving it
// in the account.
func (b *batchState) runRepay(a *RepayAction) error {
	if err := requireCoin(a.Coin); err != nil {
		return err
	}
	if a.FromWallet {
		if err := b.consumeFunds(a.Coin); err != nil {
			return err
		}
	}
	repaid, refund, err := b.s.market.Repay(b.account.ID, a.Coin)
	if err != nil {
		return err
	}
	if err := b.s.state.SubDeposit(b.account.ID, repaid); err != nil {
		return err
	}
	if err := b.s.ledger.Send(b.s.creditAddr, b.s.marketAddr, sdk.NewCoins(repaid)); err != nil {
		return err
	}
	if a.FromWallet && refund.IsPositive() {
		if err := b.s.state.SubDeposit(b.account.ID, refund); err != nil {
			return err
		}
		if err := b.s.ledger.Send(b.s.creditAddr, b.sender, sdk.NewCoins(refund)); err != nil {
			return err
		}
	}
	b.emit("repay", sdk.NewCoins(repaid), b.s.cfg.MarketAddr)
	return nil
}

func (b *batchState) runLend(a *LendAction) error {
	if err := requireCoin(a.Coin); err != nil {
		return err
	}
	if err := b.s.state.SubDeposit(b.account.ID, a.Coin); err != nil {
		return err
	}
	if _, err := b.s.market.Deposit(b.account.ID, a.Coin); err != nil {
		return err
	}
	if err := b.s.ledger.Send(b.s.creditAddr, b.s.marketAddr, sdk.NewCoins(a.Coin)); err != nil {
		return err
	}
	b.emit("lend", sdk.NewCoins(a.Coin), b.s.cfg.MarketAddr)
	return nil
}

func (b *batchState) runReclaim(a *ReclaimAction) error {
	if err := requireCoin(a.Coin); err != nil {
		return err
	}
	coin, err := b.s.market.Withdraw(b.account.ID, a.Coin.Denom, a.Coin.Amount, false)
	if err != nil {
		return err
	}
	if err := b.s.ledger.Send(b.s.marketAddr, b.s.creditAddr, sdk.NewCoins(coin)); err != nil {
		return err
	}
	if err := b.s.state.AddDeposit(b.account.ID, coin); err != nil {
		return err
	}
	b.emit("reclaim", sdk.NewCoins(coin), b.s.cfg.MarketAddr)
	return nil
}

// runSwap trades deposits through the swapper. The minimum received is the
// quote shaved by the action's slippage, which itself must not exceed the
// configured maximum.
func (b *batchState) runSwap(a *SwapExactInAction) error {
	if err := requireCoin(a.CoinIn); err != nil {
		return err
	}
	if err := sdk.ValidateDenom(a.DenomOut); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDenom, err)
	}
	if a.DenomOut == a.CoinIn.Denom {
		return fmt.Errorf("%w: swap between identical denoms", ErrInvalidAction)
	}
	if a.Slippage.IsNil() || a.Slippage.IsNegative() || a.Slippage.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: slippage must be in [0, 1)", ErrInvalidAction)
	}
	if a.Slippage.GT(b.s.cfg.MaxSlippage) {
		return fmt.Errorf("%w: %s requested, at most %s allowed", ErrSlippageExceeded, a.Slippage, b.s.cfg.MaxSlippage)
	}
	if err := b.s.state.SubDeposit(b.account.ID, a.CoinIn); err != nil {
		return err
	}
	estimate, err := b.s.swapper.EstimateExactInSwap(a.CoinIn, a.DenomOut)
	if err != nil {
		return err
	}
	minReceive := sdkmath.LegacyOneDec().Sub(a.Slippage).MulInt(estimate.Amount).TruncateInt()
	if err := b.s.ledger.Send(b.s.creditAddr, b.s.swapperAddr, sdk.NewCoins(a.CoinIn)); err != nil {
		return err
	}
	received, err := b.s.swapper.SwapExactIn(a.CoinIn, a.DenomOut, minReceive)
	if err != nil {
		return err
	}
	if received.Denom != a.DenomOut {
		return fmt.Errorf("%w: swapper returned %s, wanted %s", ErrInvalidDenom, received.Denom, a.DenomOut)
	}
	if received.Amount.IsNil() || !received.Amount.IsPositive() {
		return fmt.Errorf("%w: swap returned no %s", ErrNoAmount, a.DenomOut)
	}
	if err := b.s.ledger.Send(b.s.swapperAddr, b.s.creditAddr, sdk.NewCoins(received)); err != nil {
		return err
	}
	if err := b.s.state.AddDeposit(b.account.ID, received); err != nil {
		return err
	}
	b.emit("swapExactIn", sdk.NewCoins(a.CoinIn, received), b.s.cfg.SwapperAddr)
	return nil
}

func (b *batchState) runEnterVault(a *EnterVaultAction) error {
	if err := requireCoin(a.Coin); err != nil {
		return err
	}
	vaultAddr, err := crypto.ParseAddress(a.Vault)
	if err != nil {
		return fmt.Errorf("%w: vault: %v", ErrInvalidAction, err)
	}
	vcfg, ok, err := b.s.params.VaultConfig(a.Vault)
	if err != nil {
		return err
	}
	if !ok || !vcfg.Whitelisted {
		return fmt.Errorf("%w: vault %s", ErrNotWhitelisted, a.Vault)
	}
	record, err := b.s.vaults.Vault(a.Vault)
	if err != nil {
		return err
	}
	if record.BaseDenom != a.Coin.Denom {
		return fmt.Errorf("%w: vault %s accepts %s", ErrInvalidDenom, a.Vault, record.BaseDenom)
	}
	if vcfg.DepositCap.IsPositive() && record.TotalAssets.Add(a.Coin.Amount).GT(vcfg.DepositCap) {
		return fmt.Errorf("%w: vault %s holds %s, cap %s", ErrDepositCapExceeded, a.Vault, record.TotalAssets, vcfg.DepositCap)
	}
	if err := b.s.state.SubDeposit(b.account.ID, a.Coin); err != nil {
		return err
	}
	if err := b.s.ledger.Send(b.s.creditAddr, vaultAddr, sdk.NewCoins(a.Coin)); err != nil {
		return err
	}
	shares, err := b.s.vaults.Deposit(a.Vault, a.Coin.Amount)
	if err != nil {
		return err
	}
	position, found, err := b.s.state.VaultPosition(b.account.ID, a.Vault)
	if err != nil {
		return err
	}
	if !found {
		position = vault.NewPosition(record.Kind())
	}
	position.Credit(shares)
	if err := b.s.state.PutVaultPosition(b.account.ID, a.Vault, position); err != nil {
		return err
	}
	b.emit("enterVault", sdk.NewCoins(a.Coin), a.Vault)
	return nil
}

func (b *batchState) runExitVault(a *ExitVaultAction) error {
	if a.Shares.IsNil() || !a.Shares.IsPositive() {
		return fmt.Errorf("%w: shares", ErrNoAmount)
	}
	vaultAddr, err := crypto.ParseAddress(a.Vault)
	if err != nil {
		return fmt.Errorf("%w: vault: %v", ErrInvalidAction, err)
	}
	record, err := b.s.vaults.Vault(a.Vault)
	if err != nil {
		return err
	}
	position, found, err := b.s.state.VaultPosition(b.account.ID, a.Vault)
	if err != nil {
		return err
	}
	if !found {
		position = vault.NewPosition(record.Kind())
	}
	if err := position.TakeUnlocked(a.Shares); err != nil {
		return err
	}
	assets, err := b.s.vaults.Redeem(a.Vault, a.Shares)
	if err != nil {
		return err
	}
	coin := sdk.NewCoin(record.BaseDenom, assets)
	if err := b.s.ledger.Send(vaultAddr, b.s.creditAddr, sdk.NewCoins(coin)); err != nil {
		return err
	}
	if err := b.s.state.AddDeposit(b.account.ID, coin); err != nil {
		return err
	}
	if err := b.s.state.PutVaultPosition(b.account.ID, a.Vault, position); err != nil {
		return err
	}
	b.emit("exitVault", sdk.NewCoins(coin), a.Vault)
	return nil
}

func (b *batchState) runRequestUnlock(a *RequestUnlockAction) error {
	if a.Shares.IsNil() || !a.Shares.IsPositive() {
		return fmt.Errorf("%w: shares", ErrNoAmount)
	}
	vaultAddr, err := crypto.ParseAddress(a.Vault)
	if err != nil {
		return fmt.Errorf("%w: vault: %v", ErrInvalidAction, err)
	}
	record, err := b.s.vaults.Vault(a.Vault)
	if err != nil {
		return err
	}
	position, found, err := b.s.state.VaultPosition(b.account.ID, a.Vault)
	if err != nil {
		return err
	}
	if !found {
		position = vault.NewPosition(record.Kind())
	}
	id, err := b.s.state.NextUnlockID()
	if err != nil {
		return err
	}
	cooldownEnd := uint64(b.s.now().Unix()) + record.LockupSeconds
	if err := position.RequestUnlock(id, a.Shares, cooldownEnd); err != nil {
		return err
	}
	if err := b.s.state.PutVaultPosition(b.account.ID, a.Vault, position); err != nil {
		return err
	}
	b.s.recorder.Emit(events.VaultUnlockRequested{
		AccountID:   b.account.ID,
		Vault:       vaultAddr,
		UnlockID:    id,
		Shares:      a.Shares,
		ReleaseTime: cooldownEnd,
	})
	return nil
}

// runExitUnlocked redeems one matured cooldown entry, located by id across
// the account's vault positions.
func (b *batchState) runExitUnlocked(a *ExitUnlockedAction) error {
	entries, err := b.s.state.VaultPositions(b.account.ID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		holds := false
		for _, pending := range entry.Position.Unlocking {
			if pending.ID == a.ID {
				holds = true
				break
			}
		}
		if !holds {
			continue
		}
		position := entry.Position
		shares, err := position.ExitUnlocked(a.ID, uint64(b.s.now().Unix()))
		if err != nil {
			return err
		}
		record, err := b.s.vaults.Vault(entry.Addr)
		if err != nil {
			return err
		}
		vaultAddr, err := crypto.ParseAddress(entry.Addr)
		if err != nil {
			return fmt.Errorf("%w: vault: %v", ErrInvalidAction, err)
		}
		assets, err := b.s.vaults.Redeem(entry.Addr, shares)
		if err != nil {
			return err
		}
		coin := sdk.NewCoin(record.BaseDenom, assets)
		if err := b.s.ledger.Send(vaultAddr, b.s.creditAddr, sdk.NewCoins(coin)); err != nil {
			return err
		}
		if err := b.s.state.AddDeposit(b.account.ID, coin); err != nil {
			return err
		}
		if err := b.s.state.PutVaultPosition(b.account.ID, entry.Addr, position); err != nil {
			return err
		}
		b.emit("exitUnlocked", sdk.NewCoins(coin), entry.Addr)
		return nil
	}
	return fmt.Errorf("%w: id %d", vault.ErrLockupPositionNotFound, a.ID)
}

func (b *batchState) runProvideLiquidity(a *ProvideLiquidityAction) error {
	if err := sdk.ValidateDenom(a.LPDenom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDenom, err)
	}
	coins, err := normalizeFunds(a.CoinsIn)
	if err != nil {
		return err
	}
	if coins.IsZero() {
		return fmt.Errorf("%w: coins in", ErrNoAmount)
	}
	minOut := a.MinOut
	if minOut.IsNil() {
		minOut = sdkmath.ZeroInt()
	}
	for _, coin := range coins {
		if err := b.s.state.SubDeposit(b.account.ID, coin); err != nil {
			return err
		}
	}
	if err := b.s.ledger.Send(b.s.creditAddr, b.s.zapperAddr, coins); err != nil {
		return err
	}
	lp, err := b.s.zapper.ProvideLiquidity(a.LPDenom, coins, minOut)
	if err != nil {
		return err
	}
	// LP coins enter circulation here; withdraw burns them again, keeping
	// supply in step with pool shares.
	if err := b.s.ledger.Mint(b.s.creditAddr, sdk.NewCoins(lp)); err != nil {
		return err
	}
	if err := b.s.state.AddDeposit(b.account.ID, lp); err != nil {
		return err
	}
	b.emit("provideLiquidity", sdk.NewCoins(lp), b.s.cfg.ZapperAddr)
	return nil
}

func (b *batchState) runWithdrawLiquidity(a *WithdrawLiquidityAction) error {
	if err := requireCoin(a.LPCoin); err != nil {
		return err
	}
	if err := b.s.state.SubDeposit(b.account.ID, a.LPCoin); err != nil {
		return err
	}
	if err := b.s.ledger.Burn(b.s.creditAddr, sdk.NewCoins(a.LPCoin)); err != nil {
		return err
	}
	out, err := b.s.zapper.WithdrawLiquidity(a.LPCoin)
	if err != nil {
		return err
	}
	if err := b.s.ledger.Send(b.s.zapperAddr, b.s.creditAddr, out); err != nil {
		return err
	}
	for _, coin := range out {
		if err := b.s.state.AddDeposit(b.account.ID, coin); err != nil {
			return err
		}
	}
	b.emit("withdrawLiquidity", out, b.s.cfg.ZapperAddr)
	return nil
}

func (b *batchState) runClaimRewards() error {
	coins, err := b.s.incentives.Claim(b.account.ID)
	if err != nil {
		return err
	}
	if coins.IsZero() {
		return nil
	}
	if err := b.s.ledger.Send(b.s.incentivesAddr, b.s.creditAddr, coins); err != nil {
		return err
	}
	for _, coin := range coins {
		if err := b.s.state.AddDeposit(b.account.ID, coin); err != nil {
			return err
		}
	}
	b.emit("claimRewards", coins, b.s.cfg.IncentivesAddr)
	return nil
}

func (b *batchState) runRefundBalances() error {
	deposits, err := b.s.state.Deposits(b.account.ID)
	if err != nil {
		return err
	}
	if deposits.IsZero() {
		return nil
	}
	for _, coin := range deposits {
		if err := b.s.state.SubDeposit(b.account.ID, coin); err != nil {
			return err
		}
	}
	if err := b.s.ledger.Send(b.s.creditAddr, b.owner, deposits); err != nil {
		return err
	}
	b.emit("refundBalances", deposits, b.owner.String())
	return nil
}

func (b *batchState) assertSpentFunds() error {
	if !b.remaining.IsZero() {
		return fmt.Errorf("%w: %s unmatched by any action", ErrExtraFundsReceived, b.remaining)
	}
	return nil
}

// assertHealthy is the terminal check of the default flow.
func (b *batchState) assertHealthy() error {
	values, err := b.s.healthValues(b.account)
	if err != nil {
		return err
	}
	if !values.IsHealthy() {
		return fmt.Errorf("%w: account %d max-LTV-adjusted collateral %s against debt %s",
			ErrAboveMaxLTV, b.account.ID, values.MaxLTVAdjCollateral, values.DebtValue)
	}
	return nil
}

// assertImproved is the terminal check applied to each liquidatee: debt-free,
// a higher liquidation health factor, or a strictly smaller shortfall between
// debt and threshold-adjusted collateral. Deep underwater positions cannot
// raise the ratio with a partial close, but every sound one narrows the
// shortfall; only over-seizure widens it.
func (b *batchState) assertImproved(liquidateeID uint64, pre health.Values) error {
	target, err := b.s.state.Account(liquidateeID)
	if err != nil {
		return err
	}
	post, err := b.s.healthValues(target)
	if err != nil {
		return err
	}
	if !post.HasDebt() {
		return nil
	}
	if pre.LiqHealthFactor == nil || post.LiqHealthFactor == nil {
		return fmt.Errorf("%w: health factor unavailable", ErrHealthNotImproved)
	}
	if post.LiqHealthFactor.GT(*pre.LiqHealthFactor) {
		return nil
	}
	preGap := pre.DebtValue.Sub(pre.LiqThresholdAdjCollateral)
	postGap := post.DebtValue.Sub(post.LiqThresholdAdjCollateral)
	if postGap.LT(preGap) {
		return nil
	}
	return fmt.Errorf("%w: account %d went from %s to %s",
		ErrHealthNotImproved, liquidateeID, pre.LiqHealthFactor, post.LiqHealthFactor)
}

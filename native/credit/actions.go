package credit

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Action is one step of an account update batch. The variant set is closed:
// exactly one field is set per action, and a batch executes its actions
// strictly in order inside a single atomic transaction.
type Action struct {
	Deposit           *DepositAction           `json:"deposit,omitempty"`
	Withdraw          *WithdrawAction          `json:"withdraw,omitempty"`
	Borrow            *BorrowAction            `json:"borrow,omitempty"`
	Repay             *RepayAction             `json:"repay,omitempty"`
	Lend              *LendAction              `json:"lend,omitempty"`
	Reclaim           *ReclaimAction           `json:"reclaim,omitempty"`
	SwapExactIn       *SwapExactInAction       `json:"swapExactIn,omitempty"`
	EnterVault        *EnterVaultAction        `json:"enterVault,omitempty"`
	ExitVault         *ExitVaultAction         `json:"exitVault,omitempty"`
	RequestUnlock     *RequestUnlockAction     `json:"requestUnlock,omitempty"`
	ExitUnlocked      *ExitUnlockedAction      `json:"exitUnlocked,omitempty"`
	ProvideLiquidity  *ProvideLiquidityAction  `json:"provideLiquidity,omitempty"`
	WithdrawLiquidity *WithdrawLiquidityAction `json:"withdrawLiquidity,omitempty"`
	LiquidateDebt     *LiquidateDebtAction     `json:"liquidateDebt,omitempty"`
	ClaimRewards      *ClaimRewardsAction      `json:"claimRewards,omitempty"`
	RefundBalances    *RefundBalancesAction    `json:"refundBalances,omitempty"`
}

// DepositAction credits an attached coin to the account deposits.
type DepositAction struct {
	Coin sdk.Coin `json:"coin"`
}

// WithdrawAction debits deposits and bank-sends the coin out. An empty
// recipient defaults to the account owner.
type WithdrawAction struct {
	Coin      sdk.Coin `json:"coin"`
	Recipient string   `json:"recipient,omitempty"`
}

// BorrowAction draws a loan from the money market into deposits.
type BorrowAction struct {
	Coin sdk.Coin `json:"coin"`
}

// RepayAction pays down money-market debt from deposits. With FromWallet the
// repayment is funded by attached coins and any surplus returns to the
// caller's wallet.
type RepayAction struct {
	Coin       sdk.Coin `json:"coin"`
	FromWallet bool     `json:"fromWallet,omitempty"`
}

// LendAction moves a deposit into interest-bearing money-market collateral.
type LendAction struct {
	Coin sdk.Coin `json:"coin"`
}

// ReclaimAction pulls lent coins back into deposits.
type ReclaimAction struct {
	Coin sdk.Coin `json:"coin"`
}

// SwapExactInAction trades a deposit for another denom through the swapper.
// Slippage bounds how far below the quote the execution may land.
type SwapExactInAction struct {
	CoinIn   sdk.Coin          `json:"coinIn"`
	DenomOut string            `json:"denomOut"`
	Slippage sdkmath.LegacyDec `json:"slippage"`
}

// EnterVaultAction deposits base tokens into a vault for shares.
type EnterVaultAction struct {
	Vault string   `json:"vault"`
	Coin  sdk.Coin `json:"coin"`
}

// ExitVaultAction redeems unlocked shares back to base tokens.
type ExitVaultAction struct {
	Vault  string      `json:"vault"`
	Shares sdkmath.Int `json:"shares"`
}

// RequestUnlockAction starts the cooldown on locked shares.
type RequestUnlockAction struct {
	Vault  string      `json:"vault"`
	Shares sdkmath.Int `json:"shares"`
}

// ExitUnlockedAction redeems a matured cooldown entry by its id.
type ExitUnlockedAction struct {
	ID uint64 `json:"id"`
}

// ProvideLiquidityAction zaps deposits into an LP position.
type ProvideLiquidityAction struct {
	LPDenom string      `json:"lpDenom"`
	CoinsIn sdk.Coins   `json:"coinsIn"`
	MinOut  sdkmath.Int `json:"minOut"`
}

// WithdrawLiquidityAction unzaps an LP deposit back to the underlying pair.
type WithdrawLiquidityAction struct {
	LPCoin sdk.Coin `json:"lpCoin"`
}

// LiquidateDebtAction repays part of an unhealthy account's debt and seizes
// discounted collateral into the acting account.
type LiquidateDebtAction struct {
	AccountID    uint64   `json:"accountId"`
	DebtCoin     sdk.Coin `json:"debtCoin"`
	RequestDenom string   `json:"requestDenom"`
}

// ClaimRewardsAction pulls unclaimed incentives into deposits.
type ClaimRewardsAction struct{}

// RefundBalancesAction sweeps every residual deposit to the account owner.
type RefundBalancesAction struct{}

// name returns the variant tag used in errors and events.
func (a Action) name() string {
	switch {
	case a.Deposit != nil:
		return "deposit"
	case a.Withdraw != nil:
		return "withdraw"
	case a.Borrow != nil:
		return "borrow"
	case a.Repay != nil:
		return "repay"
	case a.Lend != nil:
		return "lend"
	case a.Reclaim != nil:
		return "reclaim"
	case a.SwapExactIn != nil:
		return "swapExactIn"
	case a.EnterVault != nil:
		return "enterVault"
	case a.ExitVault != nil:
		return "exitVault"
	case a.RequestUnlock != nil:
		return "requestUnlock"
	case a.ExitUnlocked != nil:
		return "exitUnlocked"
	case a.ProvideLiquidity != nil:
		return "provideLiquidity"
	case a.WithdrawLiquidity != nil:
		return "withdrawLiquidity"
	case a.LiquidateDebt != nil:
		return "liquidateDebt"
	case a.ClaimRewards != nil:
		return "claimRewards"
	case a.RefundBalances != nil:
		return "refundBalances"
	}
	return ""
}

func (a Action) validate() error {
	set := 0
	for _, present := range []bool{
		a.Deposit != nil, a.Withdraw != nil, a.Borrow != nil, a.Repay != nil,
		a.Lend != nil, a.Reclaim != nil, a.SwapExactIn != nil, a.EnterVault != nil,
		a.ExitVault != nil, a.RequestUnlock != nil, a.ExitUnlocked != nil,
		a.ProvideLiquidity != nil, a.WithdrawLiquidity != nil, a.LiquidateDebt != nil,
		a.ClaimRewards != nil, a.RefundBalances != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one variant must be set, got %d", ErrInvalidAction, set)
	}
	return nil
}

// requireCoin rejects malformed or zero coins before any state is touched.
func requireCoin(coin sdk.Coin) error {
	if err := sdk.ValidateDenom(coin.Denom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDenom, err)
	}
	if coin.Amount.IsNil() || !coin.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrNoAmount, coin.Denom)
	}
	return nil
}

package market

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/core/events"
	"creditcore/native/common"
)

var (
	ErrNotConfigured  = errors.New("market: engine state not configured")
	ErrInvalidMarket  = errors.New("market: invalid market")
	ErrMarketNotFound = errors.New("market: market not found")
	ErrMarketExists   = errors.New("market: market already exists")
	ErrInvalidAmount  = errors.New("market: invalid amount")
	ErrNoLiquidity    = errors.New("market: insufficient liquidity")
	ErrNoCollateral   = errors.New("market: no collateral position")
	ErrNoDebt         = errors.New("market: no outstanding debt")
)

// DefaultPageLimit bounds paginated listings when no limit is supplied.
const DefaultPageLimit = 50

// Engine is the money-market state machine: per-denom markets with scaled
// lend and debt positions held on behalf of credit account ids. The engine
// never touches coins; the caller moves them and treats the amounts
// reported here as authoritative.
type Engine struct {
	state   State
	nowFn   func() time.Time
	emitter events.Emitter
	pauses  common.PauseView
}

func NewEngine() *Engine {
	return &Engine{
		nowFn:   time.Now,
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the persistence backend. Engines are constructed per
// transaction against the transaction's overlay.
func (e *Engine) SetState(state State) {
	e.state = state
}

// SetNowFunc overrides the accrual clock. Tests use this for determinism.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now != nil {
		e.nowFn = now
	}
}

// SetEmitter wires the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		e.emitter = emitter
	}
}

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p common.PauseView) {
	e.pauses = p
}

func (e *Engine) requireState() (State, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotConfigured
	}
	return e.state, nil
}

func (e *Engine) now() uint64 {
	return uint64(e.nowFn().Unix())
}

// CreateMarket registers a money market for the denom.
func (e *Engine) CreateMarket(denom string, model InterestModel, reserveFactor sdkmath.LegacyDec) (*Market, error) {
	if err := common.Guard(e.pauses, common.ModuleMarket); err != nil {
		return nil, err
	}
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	existing, err := state.GetMarket(denom)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketExists, denom)
	}
	m := NewMarket(denom, model, reserveFactor, e.now())
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := state.PutMarket(m); err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// UpdateModel accrues the market at the old curve, then swaps in the new
// one so past interest is never recomputed.
func (e *Engine) UpdateModel(denom string, model InterestModel, reserveFactor sdkmath.LegacyDec) (*Market, error) {
	if err := common.Guard(e.pauses, common.ModuleMarket); err != nil {
		return nil, err
	}
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	m, err := e.accrueMarket(state, denom)
	if err != nil {
		return nil, err
	}
	m.Model = model
	m.ReserveFactor = reserveFactor
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := state.PutMarket(m); err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// Accrue advances the denom's indices to now.
func (e *Engine) Accrue(denom string) (*Market, error) {
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	m, err := e.accrueMarket(state, denom)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (e *Engine) accrueMarket(state State, denom string) (*Market, error) {
	m, err := state.GetMarket(denom)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, denom)
	}
	before := m.LastUpdated
	rate := m.Accrue(e.now())
	if m.LastUpdated != before {
		if err := state.PutMarket(m); err != nil {
			return nil, err
		}
		e.emitter.Emit(events.MarketAccrued{
			Denom:          m.Denom,
			BorrowIndex:    m.BorrowIndex,
			LiquidityIndex: m.LiquidityIndex,
			BorrowRate:     rate,
			AccruedAt:      m.LastUpdated,
		})
	}
	return m, nil
}

// Deposit records a nominal amount as scaled collateral for the account.
// Returns the scaled units credited.
func (e *Engine) Deposit(accountID uint64, coin sdk.Coin) (sdkmath.Int, error) {
	if err := common.Guard(e.pauses, common.ModuleMarket); err != nil {
		return sdkmath.Int{}, err
	}
	state, err := e.requireState()
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := validateCoin(coin); err != nil {
		return sdkmath.Int{}, err
	}
	m, err := e.accrueMarket(state, coin.Denom)
	if err != nil {
		return sdkmath.Int{}, err
	}

	scaled := ScaledFromNominalDown(coin.Amount, m.LiquidityIndex)
	if scaled.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("%w: %s scales to zero", ErrInvalidAmount, coin)
	}
	existing, err := state.GetCollateral(accountID, coin.Denom)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := state.PutCollateral(accountID, coin.Denom, existing.Add(scaled)); err != nil {
		return sdkmath.Int{}, err
	}
	m.TotalLendScaled = m.TotalLendScaled.Add(scaled)
	if err := state.PutMarket(m); err != nil {
		return sdkmath.Int{}, err
	}
	return scaled, nil
}

// Withdraw removes up to amount nominal units of the account's collateral.
// withdrawAll ignores amount and drains the position. Returns the coin the
// caller must pay out.
func (e *Engine) Withdraw(accountID uint64, denom string, amount sdkmath.Int, withdrawAll bool) (sdk.Coin, error) {
	if err := common.Guard(e.pauses, common.ModuleMarket); err != nil {
		return sdk.Coin{}, err
	}
	state, err := e.requireState()
	if err != nil {
		return sdk.Coin{}, err
	}
	if !withdrawAll {
		if amount.IsNil() || !amount.IsPositive() {
			return sdk.Coin{}, fmt.Errorf("%w: withdraw amount must be positive", ErrInvalidAmount)
		}
	}
	m, err := e.accrueMarket(state, denom)
	if err != nil {
		return sdk.Coin{}, err
	}
	have, err := state.GetCollateral(accountID, denom)
	if err != nil {
		return sdk.Coin{}, err
	}
	if have.IsZero() {
		return sdk.Coin{}, fmt.Errorf("%w: account %d has no %s", ErrNoCollateral, accountID, denom)
	}

	nominalHave := NominalFromScaledDown(have, m.LiquidityIndex)
	var out sdkmath.Int
	var scaledRemoved sdkmath.Int
	if withdrawAll || amount.GTE(nominalHave) {
		out = nominalHave
		scaledRemoved = have
	} else {
		out = amount
		scaledRemoved = ScaledFromNominalUp(amount, m.LiquidityIndex)
		if scaledRemoved.GT(have) {
			scaledRemoved = have
		}
	}

	// Lent coins may be out on loan; only the un-borrowed remainder can leave.
	if out.GT(e.availableLiquidity(m)) {
		return sdk.Coin{}, fmt.Errorf("%w: %s %s requested", ErrNoLiquidity, out, denom)
	}

	if err := state.PutCollateral(accountID, denom, have.Sub(scaledRemoved)); err != nil {
		return sdk.Coin{}, err
	}
	m.TotalLendScaled = m.TotalLendScaled.Sub(scaledRemoved)
	if err := state.PutMarket(m); err != nil {
		return sdk.Coin{}, err
	}
	return sdk.NewCoin(denom, out), nil
}

// Borrow records new scaled debt for the account. The caller pays the coin
// out of the market treasury after this returns.
func (e *Engine) Borrow(accountID uint64, coin sdk.Coin) error {
	if err := common.Guard(e.pauses, common.ModuleMarket); err != nil {
		return err
	}
	state, err := e.requireState()
	if err != nil {
		return err
	}
	if err := validateCoin(coin); err != nil {
		return err
	}
	m, err := e.accrueMarket(state, coin.Denom)
	if err != nil {
		return err
	}
	if coin.Amount.GT(e.availableLiquidity(m)) {
		return fmt.Errorf("%w: %s requested", ErrNoLiquidity, coin)
	}

	scaled := ScaledFromNominalUp(coin.Amount, m.BorrowIndex)
	existing, err := state.GetDebt(accountID, coin.Denom)
	if err != nil {
		return err
	}
	if err := state.PutDebt(accountID, coin.Denom, existing.Add(scaled)); err != nil {
		return err
	}
	m.TotalDebtScaled = m.TotalDebtScaled.Add(scaled)
	return state.PutMarket(m)
}

// Repay pays down the account's debt. Returns the amount actually applied
// and any excess to refund to the payer.
func (e *Engine) Repay(accountID uint64, coin sdk.Coin) (repaid sdk.Coin, refund sdk.Coin, err error) {
	if err := common.Guard(e.pauses, common.ModuleMarket); err != nil {
		return sdk.Coin{}, sdk.Coin{}, err
	}
	state, err := e.requireState()
	if err != nil {
		return sdk.Coin{}, sdk.Coin{}, err
	}
	if err := validateCoin(coin); err != nil {
		return sdk.Coin{}, sdk.Coin{}, err
	}
	m, err := e.accrueMarket(state, coin.Denom)
	if err != nil {
		return sdk.Coin{}, sdk.Coin{}, err
	}
	scaledOwed, err := state.GetDebt(accountID, coin.Denom)
	if err != nil {
		return sdk.Coin{}, sdk.Coin{}, err
	}
	if scaledOwed.IsZero() {
		return sdk.Coin{}, sdk.Coin{}, fmt.Errorf("%w: account %d owes no %s", ErrNoDebt, accountID, coin.Denom)
	}

	owed := NominalFromScaledUp(scaledOwed, m.BorrowIndex)
	var scaledRemoved sdkmath.Int
	if coin.Amount.GTE(owed) {
		repaid = sdk.NewCoin(coin.Denom, owed)
		refund = sdk.NewCoin(coin.Denom, coin.Amount.Sub(owed))
		scaledRemoved = scaledOwed
	} else {
		repaid = coin
		refund = sdk.NewCoin(coin.Denom, sdkmath.ZeroInt())
		scaledRemoved = ScaledFromNominalDown(coin.Amount, m.BorrowIndex)
		if scaledRemoved.GT(scaledOwed) {
			scaledRemoved = scaledOwed
		}
	}

	if err := state.PutDebt(accountID, coin.Denom, scaledOwed.Sub(scaledRemoved)); err != nil {
		return sdk.Coin{}, sdk.Coin{}, err
	}
	m.TotalDebtScaled = m.TotalDebtScaled.Sub(scaledRemoved)
	if err := state.PutMarket(m); err != nil {
		return sdk.Coin{}, sdk.Coin{}, err
	}
	return repaid, refund, nil
}

// availableLiquidity is the nominal amount not currently out on loan.
func (e *Engine) availableLiquidity(m *Market) sdkmath.Int {
	lend := NominalFromScaledDown(m.TotalLendScaled, m.LiquidityIndex)
	debt := NominalFromScaledUp(m.TotalDebtScaled, m.BorrowIndex)
	available := lend.Sub(debt)
	if available.IsNegative() {
		return sdkmath.ZeroInt()
	}
	return available
}

// Market returns the stored record for the denom without accruing.
func (e *Engine) Market(denom string) (*Market, error) {
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	m, err := state.GetMarket(denom)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, denom)
	}
	return m.Clone(), nil
}

// AllMarkets returns every market in denom order.
func (e *Engine) AllMarkets() ([]*Market, error) {
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	var out []*Market
	err = state.IterateMarkets(func(m *Market) bool {
		out = append(out, m.Clone())
		return true
	})
	return out, err
}

// UserCollateral reports the account's nominal collateral in the denom at
// the stored index.
func (e *Engine) UserCollateral(accountID uint64, denom string) (sdk.Coin, error) {
	state, err := e.requireState()
	if err != nil {
		return sdk.Coin{}, err
	}
	m, err := state.GetMarket(denom)
	if err != nil {
		return sdk.Coin{}, err
	}
	if m == nil {
		return sdk.Coin{}, fmt.Errorf("%w: %s", ErrMarketNotFound, denom)
	}
	scaled, err := state.GetCollateral(accountID, denom)
	if err != nil {
		return sdk.Coin{}, err
	}
	return sdk.NewCoin(denom, NominalFromScaledDown(scaled, m.LiquidityIndex)), nil
}

// UserDebt reports the account's nominal debt in the denom at the stored
// index. Debt always rounds up.
func (e *Engine) UserDebt(accountID uint64, denom string) (sdk.Coin, error) {
	state, err := e.requireState()
	if err != nil {
		return sdk.Coin{}, err
	}
	m, err := state.GetMarket(denom)
	if err != nil {
		return sdk.Coin{}, err
	}
	if m == nil {
		return sdk.Coin{}, fmt.Errorf("%w: %s", ErrMarketNotFound, denom)
	}
	scaled, err := state.GetDebt(accountID, denom)
	if err != nil {
		return sdk.Coin{}, err
	}
	return sdk.NewCoin(denom, NominalFromScaledUp(scaled, m.BorrowIndex)), nil
}

// AccountCollaterals lists the account's lend positions in denom order.
func (e *Engine) AccountCollaterals(accountID uint64) ([]CollateralRecord, error) {
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	indexes, err := e.liquidityIndexes(state)
	if err != nil {
		return nil, err
	}
	var out []CollateralRecord
	err = state.IterateAccountCollateral(accountID, func(denom string, scaled sdkmath.Int) bool {
		out = append(out, CollateralRecord{
			AccountID:    accountID,
			Denom:        denom,
			AmountScaled: scaled,
			Amount:       NominalFromScaledDown(scaled, indexes[denom]),
		})
		return true
	})
	return out, err
}

// AccountDebts lists the account's debt positions in denom order.
func (e *Engine) AccountDebts(accountID uint64) ([]DebtRecord, error) {
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	indexes, err := e.borrowIndexes(state)
	if err != nil {
		return nil, err
	}
	var out []DebtRecord
	err = state.IterateAccountDebt(accountID, func(denom string, scaled sdkmath.Int) bool {
		out = append(out, DebtRecord{
			AccountID:    accountID,
			Denom:        denom,
			AmountScaled: scaled,
			Amount:       NominalFromScaledUp(scaled, indexes[denom]),
		})
		return true
	})
	return out, err
}

// PositionCursor marks where a paginated listing resumes.
type PositionCursor struct {
	AccountID uint64 `json:"accountId"`
	Denom     string `json:"denom"`
}

func (c *PositionCursor) after(accountID uint64, denom string) bool {
	if c == nil {
		return true
	}
	if accountID != c.AccountID {
		return accountID > c.AccountID
	}
	return denom > c.Denom
}

// CollateralsPage lists lend positions across all accounts in (account,
// denom) order, resuming after the cursor.
func (e *Engine) CollateralsPage(startAfter *PositionCursor, limit int) ([]CollateralRecord, *PositionCursor, error) {
	state, err := e.requireState()
	if err != nil {
		return nil, nil, err
	}
	indexes, err := e.liquidityIndexes(state)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	var out []CollateralRecord
	var next *PositionCursor
	err = state.IterateCollateral(func(accountID uint64, denom string, scaled sdkmath.Int) bool {
		if !startAfter.after(accountID, denom) {
			return true
		}
		if len(out) == limit {
			next = &PositionCursor{AccountID: out[limit-1].AccountID, Denom: out[limit-1].Denom}
			return false
		}
		out = append(out, CollateralRecord{
			AccountID:    accountID,
			Denom:        denom,
			AmountScaled: scaled,
			Amount:       NominalFromScaledDown(scaled, indexes[denom]),
		})
		return true
	})
	return out, next, err
}

// DebtsPage lists debt positions across all accounts in (account, denom)
// order, resuming after the cursor.
func (e *Engine) DebtsPage(startAfter *PositionCursor, limit int) ([]DebtRecord, *PositionCursor, error) {
	state, err := e.requireState()
	if err != nil {
		return nil, nil, err
	}
	indexes, err := e.borrowIndexes(state)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	var out []DebtRecord
	var next *PositionCursor
	err = state.IterateDebt(func(accountID uint64, denom string, scaled sdkmath.Int) bool {
		if !startAfter.after(accountID, denom) {
			return true
		}
		if len(out) == limit {
			next = &PositionCursor{AccountID: out[limit-1].AccountID, Denom: out[limit-1].Denom}
			return false
		}
		out = append(out, DebtRecord{
			AccountID:    accountID,
			Denom:        denom,
			AmountScaled: scaled,
			Amount:       NominalFromScaledUp(scaled, indexes[denom]),
		})
		return true
	})
	return out, next, err
}

func (e *Engine) liquidityIndexes(state State) (map[string]sdkmath.LegacyDec, error) {
	out := make(map[string]sdkmath.LegacyDec)
	err := state.IterateMarkets(func(m *Market) bool {
		out[m.Denom] = m.LiquidityIndex
		return true
	})
	return out, err
}

func (e *Engine) borrowIndexes(state State) (map[string]sdkmath.LegacyDec, error) {
	out := make(map[string]sdkmath.LegacyDec)
	err := state.IterateMarkets(func(m *Market) bool {
		out[m.Denom] = m.BorrowIndex
		return true
	})
	return out, err
}

func validateCoin(coin sdk.Coin) error {
	if err := coin.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if coin.Amount.IsZero() {
		return fmt.Errorf("%w: zero amount", ErrInvalidAmount)
	}
	return nil
}

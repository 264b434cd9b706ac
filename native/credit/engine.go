package credit

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/core/events"
	"creditcore/crypto"
	"creditcore/native/bank"
	"creditcore/native/common"
	"creditcore/native/health"
	"creditcore/native/incentives"
	"creditcore/native/market"
	"creditcore/native/nft"
	"creditcore/native/oracle"
	"creditcore/native/params"
	"creditcore/native/swapper"
	"creditcore/native/vault"
	"creditcore/native/zapper"
	"creditcore/storage"
)

// DefaultPageLimit bounds paginated listings when no limit is supplied.
const DefaultPageLimit = 50

// Swapper executes exact-in trades on behalf of the pipeline. The production
// implementation is native/swapper; tests substitute their own.
type Swapper interface {
	EstimateExactInSwap(coinIn sdk.Coin, denomOut string) (sdk.Coin, error)
	SwapExactIn(coinIn sdk.Coin, denomOut string, minReceive sdkmath.Int) (sdk.Coin, error)
}

// Zapper turns paired deposits into LP coins and back.
type Zapper interface {
	EstimateProvide(lpDenom string, coins sdk.Coins) (sdk.Coin, error)
	ProvideLiquidity(lpDenom string, coins sdk.Coins, minOut sdkmath.Int) (sdk.Coin, error)
	WithdrawLiquidity(lpCoin sdk.Coin) (sdk.Coins, error)
}

// Engine executes credit account transactions. Every public operation runs
// over a fresh write-buffering overlay wiring all collaborator modules; the
// overlay commits only when the whole operation succeeds, so a batch of
// actions either lands completely or not at all.
type Engine struct {
	db      storage.Database
	nowFn   func() time.Time
	emitter events.Emitter

	newSwapper func(storage.Database) Swapper
	newZapper  func(storage.Database) Zapper
}

// NewEngine constructs an engine over the given database with the reference
// swapper and zapper wired in.
func NewEngine(db storage.Database) *Engine {
	return &Engine{
		db:      db,
		nowFn:   time.Now,
		emitter: events.NoopEmitter{},
		newSwapper: func(db storage.Database) Swapper {
			return swapper.NewEngine(db)
		},
		newZapper: func(db storage.Database) Zapper {
			return zapper.NewEngine(db)
		},
	}
}

// SetNowFunc overrides the time source used for accrual and cooldowns.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now != nil {
		e.nowFn = now
	}
}

// SetEmitter wires the destination for committed transaction events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		e.emitter = emitter
	}
}

// SetSwapperFactory replaces the swap backend. The factory is invoked per
// transaction with the transaction's overlay.
func (e *Engine) SetSwapperFactory(fn func(storage.Database) Swapper) {
	if fn != nil {
		e.newSwapper = fn
	}
}

// SetZapperFactory replaces the liquidity backend.
func (e *Engine) SetZapperFactory(fn func(storage.Database) Zapper) {
	if fn != nil {
		e.newZapper = fn
	}
}

// session wires every collaborator over one overlay so that a transaction
// sees its own intermediate writes and nothing escapes on failure. Events
// are buffered in the recorder and replayed only after commit.
type session struct {
	overlay  *storage.Overlay
	recorder *events.Recorder
	now      func() time.Time
	cfg      Config

	state      *State
	params     *params.Store
	market     *market.Engine
	oracle     *oracle.Engine
	registry   *nft.Registry
	ledger     *bank.Ledger
	vaults     *vault.Engine
	incentives *incentives.Engine
	swapper    Swapper
	zapper     Zapper

	creditAddr     crypto.Address
	marketAddr     crypto.Address
	swapperAddr    crypto.Address
	zapperAddr     crypto.Address
	incentivesAddr crypto.Address
	rewardsAddr    crypto.Address
}

func (e *Engine) begin() (*session, error) {
	overlay := storage.NewOverlay(e.db)
	state := NewState(overlay)
	cfg, err := state.Config()
	if err != nil {
		overlay.Discard()
		return nil, err
	}

	s := &session{
		overlay:  overlay,
		recorder: &events.Recorder{},
		now:      e.nowFn,
		cfg:      cfg,
		state:    state,
	}
	s.params = params.NewStore(params.NewKVState(overlay))
	s.registry = nft.NewRegistry(overlay)
	s.ledger = bank.NewLedger(overlay)
	s.incentives = incentives.NewEngine(overlay)

	s.market = market.NewEngine()
	s.market.SetState(market.NewKVState(overlay))
	s.market.SetNowFunc(e.nowFn)
	s.market.SetEmitter(s.recorder)
	s.market.SetPauses(s.params)

	s.oracle = oracle.NewEngine(overlay, cfg.BaseDenom)
	s.oracle.SetNowFunc(e.nowFn)
	s.oracle.SetEmitter(s.recorder)
	s.oracle.SetPauses(s.params)

	s.vaults = vault.NewEngine(overlay)
	s.vaults.SetPauses(s.params)

	s.swapper = e.newSwapper(overlay)
	s.zapper = e.newZapper(overlay)

	s.creditAddr = crypto.ModuleAddress(common.ModuleCredit)
	for _, wire := range []struct {
		raw    string
		target *crypto.Address
	}{
		{cfg.MarketAddr, &s.marketAddr},
		{cfg.SwapperAddr, &s.swapperAddr},
		{cfg.ZapperAddr, &s.zapperAddr},
		{cfg.IncentivesAddr, &s.incentivesAddr},
		{cfg.RewardsCollector, &s.rewardsAddr},
	} {
		addr, err := crypto.ParseAddress(wire.raw)
		if err != nil {
			overlay.Discard()
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		*wire.target = addr
	}
	return s, nil
}

// withSession runs a mutating operation. Arithmetic panics from the
// fixed-point stack become errors at this boundary, so a poisoned batch
// rolls back like any other failure.
func (e *Engine) withSession(fn func(*session) error) (err error) {
	defer recoverNumeric(&err)
	s, err := e.begin()
	if err != nil {
		return err
	}
	if err := common.Guard(s.params, common.ModuleCredit); err != nil {
		s.overlay.Discard()
		return err
	}
	if err := fn(s); err != nil {
		s.overlay.Discard()
		return err
	}
	if err := s.overlay.Commit(); err != nil {
		return err
	}
	s.recorder.Replay(e.emitter)
	return nil
}

// viewSession runs a read-only operation; the overlay is always discarded.
// Queries stay available while the module is paused.
func (e *Engine) viewSession(fn func(*session) error) (err error) {
	defer recoverNumeric(&err)
	s, err := e.begin()
	if err != nil {
		return err
	}
	defer s.overlay.Discard()
	return fn(s)
}

// Initialize writes the engine configuration. It refuses to overwrite an
// existing one; later changes go through UpdateConfig.
func (e *Engine) Initialize(cfg Config) (err error) {
	defer recoverNumeric(&err)
	if err := cfg.Validate(); err != nil {
		return err
	}
	state := NewState(e.db)
	if _, err := state.Config(); err == nil {
		return fmt.Errorf("%w: already initialised", ErrInvalidConfig)
	} else if !errors.Is(err, ErrNotConfigured) {
		return err
	}
	return state.PutConfig(cfg)
}

// CreateCreditAccount mints a fresh account token owned by the sender and
// returns its id.
func (e *Engine) CreateCreditAccount(sender crypto.Address, kind health.AccountKind) (uint64, error) {
	switch kind {
	case health.AccountKindDefault, health.AccountKindHLS:
	default:
		return 0, fmt.Errorf("%w: unknown account kind %q", ErrInvalidAction, kind)
	}
	var id uint64
	err := e.withSession(func(s *session) error {
		minted, err := s.registry.Mint(sender)
		if err != nil {
			return err
		}
		if err := s.state.PutAccount(Account{ID: minted, Kind: kind}); err != nil {
			return err
		}
		s.recorder.Emit(events.AccountCreated{AccountID: minted, Owner: sender, Kind: string(kind)})
		id = minted
		return nil
	})
	return id, err
}

// UpdateCreditAccount executes an ordered batch of actions against the
// account. Attached funds are credited to the account deposits before the
// first action; every action either succeeds or the whole batch rolls back.
func (e *Engine) UpdateCreditAccount(sender crypto.Address, accountID uint64, actions []Action, funds sdk.Coins) error {
	return e.withSession(func(s *session) error {
		return s.update(sender, accountID, actions, funds)
	})
}

// RepayFromWallet pays down the account's debt with the caller's own coins.
// Anyone may repay any account; excess over the outstanding debt returns to
// the caller's wallet.
func (e *Engine) RepayFromWallet(sender crypto.Address, accountID uint64, coin sdk.Coin) error {
	return e.withSession(func(s *session) error {
		return s.repayFromWallet(sender, accountID, coin)
	})
}

// Liquidate runs a single-action liquidation batch on the caller's own
// account. Attached funds cover the debt coin; funds may be empty when the
// debt coin already sits in the liquidator's deposits.
func (e *Engine) Liquidate(sender crypto.Address, liquidatorID, liquidateeID uint64, debtCoin sdk.Coin, requestDenom string, funds sdk.Coins) error {
	actions := make([]Action, 0, len(funds)+1)
	for _, coin := range funds {
		actions = append(actions, Action{Deposit: &DepositAction{Coin: coin}})
	}
	actions = append(actions, Action{LiquidateDebt: &LiquidateDebtAction{
		AccountID:    liquidateeID,
		DebtCoin:     debtCoin,
		RequestDenom: requestDenom,
	}})
	return e.UpdateCreditAccount(sender, liquidatorID, actions, funds)
}

// BurnAccount retires an account token. The account must be debt-free, hold
// no vault positions, and the value of anything left behind must not exceed
// the configured burn limit. Residual deposits are swept to the owner.
func (e *Engine) BurnAccount(sender crypto.Address, accountID uint64) error {
	return e.withSession(func(s *session) error {
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

		debts, err := s.market.AccountDebts(accountID)
		if err != nil {
			return err
		}
		if len(debts) > 0 {
			return fmt.Errorf("%w: account %d still owes %s%s", ErrBurnNotAllowed, accountID, debts[0].Amount, debts[0].Denom)
		}
		entries, err := s.state.VaultPositions(accountID)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return fmt.Errorf("%w: account %d still holds vault shares in %s", ErrBurnNotAllowed, accountID, entries[0].Addr)
		}

		values, err := s.healthValues(account)
		if err != nil {
			return err
		}
		if values.CollateralValue.GT(s.cfg.MaxValueForBurn) {
			return fmt.Errorf("%w: account %d holds %s in value, burn limit is %s",
				ErrBurnNotAllowed, accountID, values.CollateralValue, s.cfg.MaxValueForBurn)
		}

		// Anything under the limit goes back to the owner rather than being
		// orphaned in the module treasury.
		deposits, err := s.state.Deposits(accountID)
		if err != nil {
			return err
		}
		for _, coin := range deposits {
			if err := s.state.SubDeposit(accountID, coin); err != nil {
				return err
			}
		}
		if !deposits.IsZero() {
			if err := s.ledger.Send(s.creditAddr, owner, deposits); err != nil {
				return err
			}
		}
		lends, err := s.market.AccountCollaterals(accountID)
		if err != nil {
			return err
		}
		for _, record := range lends {
			coin, err := s.market.Withdraw(accountID, record.Denom, sdkmath.Int{}, true)
			if err != nil {
				return err
			}
			if err := s.ledger.Send(s.marketAddr, owner, sdk.NewCoins(coin)); err != nil {
				return err
			}
		}

		if err := s.state.DeleteAccount(accountID); err != nil {
			return err
		}
		if err := s.registry.Burn(accountID); err != nil {
			return err
		}
		s.recorder.Emit(events.AccountBurned{AccountID: accountID, Owner: owner})
		return nil
	})
}

// TransferAccount hands the account token, and with it every position the
// account holds, to a new owner. Debts move with the token; the recipient
// takes the account as it stands.
func (e *Engine) TransferAccount(sender crypto.Address, accountID uint64, to crypto.Address) error {
	return e.withSession(func(s *session) error {
		if _, err := s.state.Account(accountID); err != nil {
			return err
		}
		owner, err := s.registry.OwnerOf(accountID)
		if err != nil {
			return err
		}
		if !owner.Equal(sender) {
			return fmt.Errorf("%w: %s does not own account %d", ErrUnauthorized, sender, accountID)
		}
		if err := s.registry.Transfer(accountID, owner, to); err != nil {
			return err
		}
		s.recorder.Emit(events.AccountTransferred{AccountID: accountID, From: owner, To: to})
		return nil
	})
}

// UpdateConfig applies an owner-gated partial configuration update.
func (e *Engine) UpdateConfig(sender crypto.Address, update ConfigUpdate) error {
	return e.withSession(func(s *session) error {
		if err := s.requireOwner(sender); err != nil {
			return err
		}
		next := s.cfg.apply(update)
		if err := next.Validate(); err != nil {
			return err
		}
		if err := s.state.PutConfig(next); err != nil {
			return err
		}
		s.recorder.Emit(events.ConfigUpdated{Owner: sender})
		return nil
	})
}

// ProposeOwner starts the two-step ownership handover.
func (e *Engine) ProposeOwner(sender, proposed crypto.Address) error {
	return e.withSession(func(s *session) error {
		if err := s.requireOwner(sender); err != nil {
			return err
		}
		next := s.cfg
		next.ProposedOwner = proposed.String()
		if err := next.Validate(); err != nil {
			return err
		}
		if err := s.state.PutConfig(next); err != nil {
			return err
		}
		s.recorder.Emit(events.OwnerProposed{Current: sender, Proposed: proposed})
		return nil
	})
}

// AcceptOwner completes the handover; only the proposed owner may call it.
func (e *Engine) AcceptOwner(sender crypto.Address) error {
	return e.withSession(func(s *session) error {
		if s.cfg.ProposedOwner == "" || s.cfg.ProposedOwner != sender.String() {
			return fmt.Errorf("%w: %s is not the proposed owner", ErrUnauthorized, sender)
		}
		previous, err := crypto.ParseAddress(s.cfg.Owner)
		if err != nil {
			return fmt.Errorf("%w: owner: %v", ErrInvalidConfig, err)
		}
		next := s.cfg
		next.Owner = s.cfg.ProposedOwner
		next.ProposedOwner = ""
		if err := next.Validate(); err != nil {
			return err
		}
		if err := s.state.PutConfig(next); err != nil {
			return err
		}
		s.recorder.Emit(events.OwnerAccepted{Previous: previous, Owner: sender})
		return nil
	})
}

func (s *session) requireOwner(sender crypto.Address) error {
	if s.cfg.Owner != sender.String() {
		return fmt.Errorf("%w: %s is not the engine owner", ErrUnauthorized, sender)
	}
	return nil
}

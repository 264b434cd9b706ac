package credit

import (
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/crypto"
	"creditcore/native/health"
	"creditcore/native/market"
	"creditcore/native/vault"
)

// AccountSummary pairs an account with its current owner for listings.
type AccountSummary struct {
	ID    uint64             `json:"id"`
	Kind  health.AccountKind `json:"kind"`
	Owner string             `json:"owner"`
}

// VaultPositionView is the query shape of one vault holding, including the
// pending cooldown entries.
type VaultPositionView struct {
	Addr      string                    `json:"addr"`
	Kind      vault.PositionKind        `json:"kind"`
	Unlocked  sdkmath.Int               `json:"unlocked"`
	Locked    sdkmath.Int               `json:"locked"`
	Unlocking []vault.UnlockingPosition `json:"unlocking,omitempty"`
}

// PositionsResponse is the full position snapshot of one account.
type PositionsResponse struct {
	AccountID uint64              `json:"accountId"`
	Kind      health.AccountKind  `json:"kind"`
	Deposits  sdk.Coins           `json:"deposits"`
	Lends     sdk.Coins           `json:"lends"`
	Debts     sdk.Coins           `json:"debts"`
	Vaults    []VaultPositionView `json:"vaults,omitempty"`
}

// Positions reports the account's deposits, lends, debts, and vault shares.
func (e *Engine) Positions(accountID uint64) (PositionsResponse, error) {
	var out PositionsResponse
	err := e.viewSession(func(s *session) error {
		account, err := s.state.Account(accountID)
		if err != nil {
			return err
		}
		positions, err := s.positions(account)
		if err != nil {
			return err
		}
		out = PositionsResponse{
			AccountID: account.ID,
			Kind:      account.Kind,
			Deposits:  positions.Deposits,
			Lends:     positions.Lends,
			Debts:     positions.Debts,
		}
		entries, err := s.state.VaultPositions(accountID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			out.Vaults = append(out.Vaults, VaultPositionView{
				Addr:      entry.Addr,
				Kind:      entry.Position.Kind,
				Unlocked:  entry.Position.Unlocked,
				Locked:    entry.Position.Locked,
				Unlocking: entry.Position.Unlocking,
			})
		}
		return nil
	})
	return out, err
}

// Health values the account as the terminal pipeline check would.
func (e *Engine) Health(accountID uint64) (health.Values, error) {
	var out health.Values
	err := e.viewSession(func(s *session) error {
		account, err := s.state.Account(accountID)
		if err != nil {
			return err
		}
		values, err := s.healthValues(account)
		if err != nil {
			return err
		}
		out = values
		return nil
	})
	return out, err
}

// Config returns the engine configuration.
func (e *Engine) Config() (Config, error) {
	var out Config
	err := e.viewSession(func(s *session) error {
		out = s.cfg
		return nil
	})
	return out, err
}

// AccountOwner resolves the current holder of the account token.
func (e *Engine) AccountOwner(accountID uint64) (crypto.Address, error) {
	var out crypto.Address
	err := e.viewSession(func(s *session) error {
		owner, err := s.registry.OwnerOf(accountID)
		if err != nil {
			return err
		}
		out = owner
		return nil
	})
	return out, err
}

// Accounts pages through every account in id order.
func (e *Engine) Accounts(startAfter uint64, limit int) ([]AccountSummary, error) {
	var out []AccountSummary
	err := e.viewSession(func(s *session) error {
		accounts, err := s.state.AccountsPage(startAfter, limit)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			owner, err := s.registry.OwnerOf(account.ID)
			if err != nil {
				return err
			}
			out = append(out, AccountSummary{ID: account.ID, Kind: account.Kind, Owner: owner.String()})
		}
		return nil
	})
	return out, err
}

// AccountsByOwner lists the ids of every account the owner holds.
func (e *Engine) AccountsByOwner(owner crypto.Address, startAfter uint64, limit int) ([]uint64, error) {
	var out []uint64
	err := e.viewSession(func(s *session) error {
		ids, err := s.registry.TokensByOwner(owner, startAfter, limit)
		if err != nil {
			return err
		}
		out = ids
		return nil
	})
	return out, err
}

// AllCollateral pages through every lend position across accounts.
func (e *Engine) AllCollateral(startAfter *market.PositionCursor, limit int) ([]market.CollateralRecord, *market.PositionCursor, error) {
	var (
		out  []market.CollateralRecord
		next *market.PositionCursor
	)
	err := e.viewSession(func(s *session) error {
		records, cursor, err := s.market.CollateralsPage(startAfter, limit)
		if err != nil {
			return err
		}
		out, next = records, cursor
		return nil
	})
	return out, next, err
}

// AllDebtShares pages through every debt position across accounts.
func (e *Engine) AllDebtShares(startAfter *market.PositionCursor, limit int) ([]market.DebtRecord, *market.PositionCursor, error) {
	var (
		out  []market.DebtRecord
		next *market.PositionCursor
	)
	err := e.viewSession(func(s *session) error {
		records, cursor, err := s.market.DebtsPage(startAfter, limit)
		if err != nil {
			return err
		}
		out, next = records, cursor
		return nil
	})
	return out, next, err
}

// MaxBorrow sizes the largest loan that keeps the account healthy.
func (e *Engine) MaxBorrow(accountID uint64, denom string, target health.BorrowTarget) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := e.viewSession(func(s *session) error {
		account, err := s.state.Account(accountID)
		if err != nil {
			return err
		}
		computer, err := s.computer(account)
		if err != nil {
			return err
		}
		amount, err := computer.MaxBorrow(denom, target)
		if err != nil {
			return err
		}
		out = amount
		return nil
	})
	return out, err
}

// MaxWithdraw sizes the largest withdrawal that keeps the account healthy.
func (e *Engine) MaxWithdraw(accountID uint64, denom string) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := e.viewSession(func(s *session) error {
		account, err := s.state.Account(accountID)
		if err != nil {
			return err
		}
		computer, err := s.computer(account)
		if err != nil {
			return err
		}
		amount, err := computer.MaxWithdraw(denom)
		if err != nil {
			return err
		}
		out = amount
		return nil
	})
	return out, err
}

// MaxSwap sizes the largest input that keeps the account healthy post-swap.
func (e *Engine) MaxSwap(accountID uint64, denomIn, denomOut string, kind health.SwapKind) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := e.viewSession(func(s *session) error {
		account, err := s.state.Account(accountID)
		if err != nil {
			return err
		}
		computer, err := s.computer(account)
		if err != nil {
			return err
		}
		amount, err := computer.MaxSwap(denomIn, denomOut, kind)
		if err != nil {
			return err
		}
		out = amount
		return nil
	})
	return out, err
}

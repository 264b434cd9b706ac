package bank

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/crypto"
	"creditcore/storage"
)

var (
	// ErrInsufficientFunds is returned when a transfer would overdraw the
	// sender's balance.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrInvalidCoins is returned when a coin set fails validation.
	ErrInvalidCoins = errors.New("bank: invalid coins")
)

const (
	balanceKeyPrefix = "bank/balances/"
	supplyKeyPrefix  = "bank/supply/"
)

func balanceKey(addr crypto.Address, denom string) []byte {
	return []byte(balanceKeyPrefix + addr.String() + "/" + denom)
}

func balancePrefix(addr crypto.Address) []byte {
	return []byte(balanceKeyPrefix + addr.String() + "/")
}

func supplyKey(denom string) []byte {
	return []byte(supplyKeyPrefix + denom)
}

// Ledger is the single source of truth for coin custody. Every coin held by a
// module or user lives here; engines track positions and ask the ledger to
// move the underlying funds. Constructed per transaction over the active
// database or overlay.
type Ledger struct {
	db storage.Database
}

func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

// Balance returns the held amount of a single denom, zero when absent.
func (l *Ledger) Balance(addr crypto.Address, denom string) (sdkmath.Int, error) {
	if err := sdk.ValidateDenom(denom); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %v", ErrInvalidCoins, err)
	}
	return l.loadAmount(balanceKey(addr, denom))
}

// Balances returns every positive balance held by the address, sorted by denom.
func (l *Ledger) Balances(addr crypto.Address) (sdk.Coins, error) {
	prefix := balancePrefix(addr)
	it := l.db.NewIterator(prefix)
	defer it.Release()

	coins := sdk.Coins{}
	for it.Next() {
		denom := strings.TrimPrefix(string(it.Key()), string(prefix))
		var amount sdkmath.Int
		if err := json.Unmarshal(it.Value(), &amount); err != nil {
			return nil, fmt.Errorf("bank: decode balance %q: %w", denom, err)
		}
		if amount.IsPositive() {
			coins = append(coins, sdk.NewCoin(denom, amount))
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i].Denom < coins[j].Denom })
	return coins, nil
}

// Send moves coins between two addresses. The whole set moves or none of it.
func (l *Ledger) Send(from, to crypto.Address, coins sdk.Coins) error {
	if err := validateCoins(coins); err != nil {
		return err
	}
	if from.Equal(to) {
		return nil
	}
	for _, coin := range coins {
		if err := l.debit(from, coin); err != nil {
			return err
		}
		if err := l.credit(to, coin); err != nil {
			return err
		}
	}
	return nil
}

// Mint creates coins out of thin air and credits them to the address. Only
// bootstrap and faucet paths call it; the supply tally keeps conservation
// checkable afterwards.
func (l *Ledger) Mint(to crypto.Address, coins sdk.Coins) error {
	if err := validateCoins(coins); err != nil {
		return err
	}
	for _, coin := range coins {
		if err := l.credit(to, coin); err != nil {
			return err
		}
		if err := l.adjustSupply(coin.Denom, coin.Amount); err != nil {
			return err
		}
	}
	return nil
}

// Burn destroys coins held by the address and shrinks the supply tally.
func (l *Ledger) Burn(from crypto.Address, coins sdk.Coins) error {
	if err := validateCoins(coins); err != nil {
		return err
	}
	for _, coin := range coins {
		if err := l.debit(from, coin); err != nil {
			return err
		}
		if err := l.adjustSupply(coin.Denom, coin.Amount.Neg()); err != nil {
			return err
		}
	}
	return nil
}

// Supply returns the total minted amount of a denom, net of burns.
func (l *Ledger) Supply(denom string) (sdkmath.Int, error) {
	if err := sdk.ValidateDenom(denom); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %v", ErrInvalidCoins, err)
	}
	return l.loadAmount(supplyKey(denom))
}

func (l *Ledger) credit(addr crypto.Address, coin sdk.Coin) error {
	key := balanceKey(addr, coin.Denom)
	current, err := l.loadAmount(key)
	if err != nil {
		return err
	}
	return l.storeAmount(key, current.Add(coin.Amount))
}

func (l *Ledger) debit(addr crypto.Address, coin sdk.Coin) error {
	key := balanceKey(addr, coin.Denom)
	current, err := l.loadAmount(key)
	if err != nil {
		return err
	}
	if current.LT(coin.Amount) {
		return fmt.Errorf("%w: %s has %s%s, need %s", ErrInsufficientFunds, addr, current, coin.Denom, coin)
	}
	return l.storeAmount(key, current.Sub(coin.Amount))
}

func (l *Ledger) adjustSupply(denom string, delta sdkmath.Int) error {
	key := supplyKey(denom)
	current, err := l.loadAmount(key)
	if err != nil {
		return err
	}
	next := current.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("bank: supply of %s would go negative", denom)
	}
	return l.storeAmount(key, next)
}

func (l *Ledger) loadAmount(key []byte) (sdkmath.Int, error) {
	raw, err := l.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return sdkmath.ZeroInt(), nil
		}
		return sdkmath.ZeroInt(), err
	}
	var amount sdkmath.Int
	if err := json.Unmarshal(raw, &amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("bank: decode amount: %w", err)
	}
	return amount, nil
}

func (l *Ledger) storeAmount(key []byte, amount sdkmath.Int) error {
	if amount.IsZero() {
		return l.db.Delete(key)
	}
	raw, err := json.Marshal(amount)
	if err != nil {
		return err
	}
	return l.db.Put(key, raw)
}

func validateCoins(coins sdk.Coins) error {
	if len(coins) == 0 {
		return fmt.Errorf("%w: empty coin set", ErrInvalidCoins)
	}
	for _, coin := range coins {
		if err := sdk.ValidateDenom(coin.Denom); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCoins, err)
		}
		if coin.Amount.IsNil() || !coin.Amount.IsPositive() {
			return fmt.Errorf("%w: amount for %s must be positive", ErrInvalidCoins, coin.Denom)
		}
	}
	return nil
}

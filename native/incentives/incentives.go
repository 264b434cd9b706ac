package incentives

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/storage"
)

// ErrInvalidCoins is returned when an award fails validation.
var ErrInvalidCoins = errors.New("incentives: invalid coins")

const rewardKeyPrefix = "incentives/rewards/"

func rewardKey(accountID uint64, denom string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", rewardKeyPrefix, accountID, denom))
}

func rewardPrefix(accountID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", rewardKeyPrefix, accountID))
}

// Engine keeps the unclaimed reward balance per credit account. Awards are
// booked by the protocol; claiming zeroes the balance and hands the coins to
// the caller, who pays them out of the incentives module address.
// Constructed per transaction over the active database or overlay.
type Engine struct {
	db storage.Database
}

func NewEngine(db storage.Database) *Engine {
	return &Engine{db: db}
}

// Award adds coins to an account's unclaimed rewards.
func (e *Engine) Award(accountID uint64, coins sdk.Coins) error {
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
		key := rewardKey(accountID, coin.Denom)
		current, err := e.loadAmount(key)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(current.Add(coin.Amount))
		if err != nil {
			return err
		}
		if err := e.db.Put(key, raw); err != nil {
			return err
		}
	}
	return nil
}

// Rewards returns an account's unclaimed rewards sorted by denom.
func (e *Engine) Rewards(accountID uint64) (sdk.Coins, error) {
	prefix := rewardPrefix(accountID)
	it := e.db.NewIterator(prefix)
	defer it.Release()

	coins := sdk.Coins{}
	for it.Next() {
		denom := strings.TrimPrefix(string(it.Key()), string(prefix))
		var amount sdkmath.Int
		if err := json.Unmarshal(it.Value(), &amount); err != nil {
			return nil, fmt.Errorf("incentives: decode reward %q: %w", denom, err)
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

// Claim empties the account's reward balance and returns what was owed. An
// account with nothing to claim gets an empty set, not an error.
func (e *Engine) Claim(accountID uint64) (sdk.Coins, error) {
	coins, err := e.Rewards(accountID)
	if err != nil {
		return nil, err
	}
	for _, coin := range coins {
		if err := e.db.Delete(rewardKey(accountID, coin.Denom)); err != nil {
			return nil, err
		}
	}
	return coins, nil
}

func (e *Engine) loadAmount(key []byte) (sdkmath.Int, error) {
	raw, err := e.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return sdkmath.ZeroInt(), nil
		}
		return sdkmath.ZeroInt(), err
	}
	var amount sdkmath.Int
	if err := json.Unmarshal(raw, &amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("incentives: decode amount: %w", err)
	}
	return amount, nil
}

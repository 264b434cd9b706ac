package zapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/storage"
)

var (
	// ErrPoolNotFound is returned when the LP denom has no pool.
	ErrPoolNotFound = errors.New("zapper: pool not found")
	// ErrPoolExists is returned when creating the same pool twice.
	ErrPoolExists = errors.New("zapper: pool already exists")
	// ErrInvalidPool is returned when a pool definition fails validation.
	ErrInvalidPool = errors.New("zapper: invalid pool")
	// ErrInvalidCoins is returned when the provided coin set does not match
	// the pool's pair.
	ErrInvalidCoins = errors.New("zapper: invalid coins")
	// ErrBelowMinOut is returned when minted shares fall under the floor.
	ErrBelowMinOut = errors.New("zapper: shares below minimum out")
	// ErrInsufficientShares is returned when burning more shares than exist.
	ErrInsufficientShares = errors.New("zapper: insufficient shares")
)

const poolKeyPrefix = "zapper/pools/"

func poolKey(lpDenom string) []byte {
	return []byte(poolKeyPrefix + lpDenom)
}

// Pool is a two-asset constant-product pool identified by its LP denom.
type Pool struct {
	LPDenom     string      `json:"lpDenom"`
	DenomA      string      `json:"denomA"`
	DenomB      string      `json:"denomB"`
	ReserveA    sdkmath.Int `json:"reserveA"`
	ReserveB    sdkmath.Int `json:"reserveB"`
	TotalShares sdkmath.Int `json:"totalShares"`
}

// Engine mints and burns LP shares against administered pools. Coins move
// through the bank ledger at the caller's hand; the engine only accounts.
// Constructed per transaction over the active database or overlay.
type Engine struct {
	db storage.Database
}

func NewEngine(db storage.Database) *Engine {
	return &Engine{db: db}
}

// CreatePool registers an empty pool for a pair.
func (e *Engine) CreatePool(lpDenom, denomA, denomB string) error {
	for _, denom := range []string{lpDenom, denomA, denomB} {
		if err := sdk.ValidateDenom(denom); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPool, err)
		}
	}
	if denomA == denomB {
		return fmt.Errorf("%w: identical pair denoms", ErrInvalidPool)
	}
	if denomA > denomB {
		denomA, denomB = denomB, denomA
	}
	if ok, err := e.db.Has(poolKey(lpDenom)); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrPoolExists, lpDenom)
	}
	return e.put(Pool{
		LPDenom:     lpDenom,
		DenomA:      denomA,
		DenomB:      denomB,
		ReserveA:    sdkmath.ZeroInt(),
		ReserveB:    sdkmath.ZeroInt(),
		TotalShares: sdkmath.ZeroInt(),
	})
}

// Pool loads one pool record.
func (e *Engine) Pool(lpDenom string) (Pool, error) {
	raw, err := e.db.Get(poolKey(lpDenom))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, lpDenom)
		}
		return Pool{}, err
	}
	var pool Pool
	if err := json.Unmarshal(raw, &pool); err != nil {
		return Pool{}, fmt.Errorf("zapper: decode pool %s: %w", lpDenom, err)
	}
	return pool, nil
}

// AllPools lists every pool sorted by LP denom.
func (e *Engine) AllPools() ([]Pool, error) {
	it := e.db.NewIterator([]byte(poolKeyPrefix))
	defer it.Release()

	var pools []Pool
	for it.Next() {
		var pool Pool
		if err := json.Unmarshal(it.Value(), &pool); err != nil {
			return nil, fmt.Errorf("zapper: decode pool %s: %w", it.Key(), err)
		}
		pools = append(pools, pool)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].LPDenom < pools[j].LPDenom })
	return pools, nil
}

// ProvideLiquidity pulls both pair amounts in full and mints shares. The
// bootstrap mint takes the geometric mean of the amounts; afterwards the
// smaller pro-rata side wins and any excess accrues to the pool.
func (e *Engine) ProvideLiquidity(lpDenom string, coins sdk.Coins, minOut sdkmath.Int) (sdk.Coin, error) {
	pool, err := e.Pool(lpDenom)
	if err != nil {
		return sdk.Coin{}, err
	}
	amountA, amountB, err := pairAmounts(pool, coins)
	if err != nil {
		return sdk.Coin{}, err
	}

	shares, err := previewProvide(pool, amountA, amountB)
	if err != nil {
		return sdk.Coin{}, err
	}
	if !minOut.IsNil() && shares.LT(minOut) {
		return sdk.Coin{}, fmt.Errorf("%w: minted %s, want at least %s", ErrBelowMinOut, shares, minOut)
	}

	pool.ReserveA = pool.ReserveA.Add(amountA)
	pool.ReserveB = pool.ReserveB.Add(amountB)
	pool.TotalShares = pool.TotalShares.Add(shares)
	if err := e.put(pool); err != nil {
		return sdk.Coin{}, err
	}
	return sdk.NewCoin(pool.LPDenom, shares), nil
}

// EstimateProvide quotes the share mint without touching state.
func (e *Engine) EstimateProvide(lpDenom string, coins sdk.Coins) (sdk.Coin, error) {
	pool, err := e.Pool(lpDenom)
	if err != nil {
		return sdk.Coin{}, err
	}
	amountA, amountB, err := pairAmounts(pool, coins)
	if err != nil {
		return sdk.Coin{}, err
	}
	shares, err := previewProvide(pool, amountA, amountB)
	if err != nil {
		return sdk.Coin{}, err
	}
	return sdk.NewCoin(pool.LPDenom, shares), nil
}

// WithdrawLiquidity burns LP shares and returns the pro-rata share of both
// reserves, rounded down.
func (e *Engine) WithdrawLiquidity(lpCoin sdk.Coin) (sdk.Coins, error) {
	pool, err := e.Pool(lpCoin.Denom)
	if err != nil {
		return nil, err
	}
	if lpCoin.Amount.IsNil() || !lpCoin.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: share amount must be positive", ErrInvalidCoins)
	}
	if pool.TotalShares.LT(lpCoin.Amount) {
		return nil, fmt.Errorf("%w: pool holds %s shares, want %s", ErrInsufficientShares, pool.TotalShares, lpCoin.Amount)
	}

	outA := lpCoin.Amount.Mul(pool.ReserveA).Quo(pool.TotalShares)
	outB := lpCoin.Amount.Mul(pool.ReserveB).Quo(pool.TotalShares)

	pool.ReserveA = pool.ReserveA.Sub(outA)
	pool.ReserveB = pool.ReserveB.Sub(outB)
	pool.TotalShares = pool.TotalShares.Sub(lpCoin.Amount)
	if err := e.put(pool); err != nil {
		return nil, err
	}
	return sdk.NewCoins(sdk.NewCoin(pool.DenomA, outA), sdk.NewCoin(pool.DenomB, outB)), nil
}

func previewProvide(pool Pool, amountA, amountB sdkmath.Int) (sdkmath.Int, error) {
	if pool.TotalShares.IsZero() {
		product := sdkmath.LegacyNewDecFromInt(amountA.Mul(amountB))
		root, err := product.ApproxSqrt()
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("zapper: bootstrap mint: %w", err)
		}
		return root.TruncateInt(), nil
	}
	byA := amountA.Mul(pool.TotalShares).Quo(pool.ReserveA)
	byB := amountB.Mul(pool.TotalShares).Quo(pool.ReserveB)
	if byA.LT(byB) {
		return byA, nil
	}
	return byB, nil
}

func pairAmounts(pool Pool, coins sdk.Coins) (sdkmath.Int, sdkmath.Int, error) {
	if len(coins) != 2 {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: pool %s wants exactly %s and %s", ErrInvalidCoins, pool.LPDenom, pool.DenomA, pool.DenomB)
	}
	amountA := coins.AmountOf(pool.DenomA)
	amountB := coins.AmountOf(pool.DenomB)
	if !amountA.IsPositive() || !amountB.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: pool %s wants positive %s and %s", ErrInvalidCoins, pool.LPDenom, pool.DenomA, pool.DenomB)
	}
	return amountA, amountB, nil
}

func (e *Engine) put(pool Pool) error {
	raw, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	return e.db.Put(poolKey(pool.LPDenom), raw)
}

package swapper

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
	// ErrRouteNotFound is returned when no route covers the denom pair.
	ErrRouteNotFound = errors.New("swapper: route not found")
	// ErrInvalidRoute is returned when a route definition fails validation.
	ErrInvalidRoute = errors.New("swapper: invalid route")
	// ErrInvalidCoin is returned for empty or non-positive swap inputs.
	ErrInvalidCoin = errors.New("swapper: invalid coin")
	// ErrBelowMinReceive is returned when the executed output is under the
	// caller's floor.
	ErrBelowMinReceive = errors.New("swapper: output below minimum receive")
)

const routeKeyPrefix = "swapper/routes/"

func routeKey(denomIn, denomOut string) []byte {
	return []byte(routeKeyPrefix + denomIn + "/" + denomOut)
}

// Route prices one direction of a pair. Rate is output per unit of input
// before the fee comes off.
type Route struct {
	DenomIn  string            `json:"denomIn"`
	DenomOut string            `json:"denomOut"`
	Rate     sdkmath.LegacyDec `json:"rate"`
	Fee      sdkmath.LegacyDec `json:"fee"`
}

func (r Route) validate() error {
	if err := sdk.ValidateDenom(r.DenomIn); err != nil {
		return fmt.Errorf("%w: denom in: %v", ErrInvalidRoute, err)
	}
	if err := sdk.ValidateDenom(r.DenomOut); err != nil {
		return fmt.Errorf("%w: denom out: %v", ErrInvalidRoute, err)
	}
	if r.DenomIn == r.DenomOut {
		return fmt.Errorf("%w: identical denoms", ErrInvalidRoute)
	}
	if r.Rate.IsNil() || !r.Rate.IsPositive() {
		return fmt.Errorf("%w: rate must be positive", ErrInvalidRoute)
	}
	if r.Fee.IsNil() || r.Fee.IsNegative() || r.Fee.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: fee must be in [0, 1)", ErrInvalidRoute)
	}
	return nil
}

// Engine executes swaps over administered fixed-rate routes. It only does
// the arithmetic; the caller moves the coins through the bank ledger.
// Constructed per transaction over the active database or overlay.
type Engine struct {
	db storage.Database
}

func NewEngine(db storage.Database) *Engine {
	return &Engine{db: db}
}

// SetRoute creates or replaces the route for a pair.
func (e *Engine) SetRoute(route Route) error {
	if err := route.validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(route)
	if err != nil {
		return err
	}
	return e.db.Put(routeKey(route.DenomIn, route.DenomOut), raw)
}

// Route loads the route for a pair.
func (e *Engine) Route(denomIn, denomOut string) (Route, error) {
	raw, err := e.db.Get(routeKey(denomIn, denomOut))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return Route{}, fmt.Errorf("%w: %s->%s", ErrRouteNotFound, denomIn, denomOut)
		}
		return Route{}, err
	}
	var route Route
	if err := json.Unmarshal(raw, &route); err != nil {
		return Route{}, fmt.Errorf("swapper: decode route: %w", err)
	}
	return route, nil
}

// AllRoutes lists every configured route sorted by pair.
func (e *Engine) AllRoutes() ([]Route, error) {
	it := e.db.NewIterator([]byte(routeKeyPrefix))
	defer it.Release()

	var routes []Route
	for it.Next() {
		var route Route
		if err := json.Unmarshal(it.Value(), &route); err != nil {
			return nil, fmt.Errorf("swapper: decode route %s: %w", it.Key(), err)
		}
		routes = append(routes, route)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].DenomIn != routes[j].DenomIn {
			return routes[i].DenomIn < routes[j].DenomIn
		}
		return routes[i].DenomOut < routes[j].DenomOut
	})
	return routes, nil
}

// EstimateExactInSwap quotes the output for an exact input without moving
// anything.
func (e *Engine) EstimateExactInSwap(coinIn sdk.Coin, denomOut string) (sdk.Coin, error) {
	if err := validateCoinIn(coinIn); err != nil {
		return sdk.Coin{}, err
	}
	route, err := e.Route(coinIn.Denom, denomOut)
	if err != nil {
		return sdk.Coin{}, err
	}
	return sdk.NewCoin(denomOut, executeRate(route, coinIn.Amount)), nil
}

// SwapExactIn executes at the configured route and enforces the caller's
// minimum receive. The fee stays in the pool behind the route.
func (e *Engine) SwapExactIn(coinIn sdk.Coin, denomOut string, minReceive sdkmath.Int) (sdk.Coin, error) {
	out, err := e.EstimateExactInSwap(coinIn, denomOut)
	if err != nil {
		return sdk.Coin{}, err
	}
	if !minReceive.IsNil() && out.Amount.LT(minReceive) {
		return sdk.Coin{}, fmt.Errorf("%w: got %s, want at least %s%s", ErrBelowMinReceive, out, minReceive, denomOut)
	}
	return out, nil
}

func executeRate(route Route, amountIn sdkmath.Int) sdkmath.Int {
	gross := sdkmath.LegacyNewDecFromInt(amountIn).Mul(route.Rate)
	net := gross.Mul(sdkmath.LegacyOneDec().Sub(route.Fee))
	return net.TruncateInt()
}

func validateCoinIn(coinIn sdk.Coin) error {
	if err := sdk.ValidateDenom(coinIn.Denom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCoin, err)
	}
	if coinIn.Amount.IsNil() || !coinIn.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidCoin)
	}
	return nil
}

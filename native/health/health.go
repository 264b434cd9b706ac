package health

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/native/params"
)

var (
	// ErrHLSMismatch is returned when a high-levered account holds a
	// position mix its strategy does not allow.
	ErrHLSMismatch = errors.New("health: high-levered account composition invalid")
	// ErrMissingPrice is returned when a denom that must be valued has no
	// usable price.
	ErrMissingPrice = errors.New("health: price not found")
)

// AccountKind selects the risk-parameter set used during valuation.
type AccountKind string

const (
	AccountKindDefault AccountKind = "default"
	AccountKindHLS     AccountKind = "high_levered_strategy"
)

// BorrowTarget states where borrowed coins land when sizing a borrow.
type BorrowTarget string

const (
	BorrowTargetDeposit BorrowTarget = "deposit"
	BorrowTargetWallet  BorrowTarget = "wallet"
)

// SwapKind selects how a swap is funded when sizing it.
type SwapKind string

const (
	SwapKindDefault SwapKind = "default"
	SwapKindMargin  SwapKind = "margin"
)

// VaultPosition is an account's share holding in a single vault, split by
// lockup state. AssetsPerShare converts shares into the vault's base denom.
type VaultPosition struct {
	Addr           string
	BaseDenom      string
	Unlocked       sdkmath.Int
	Locked         sdkmath.Int
	Unlocking      sdkmath.Int
	AssetsPerShare sdkmath.LegacyDec
}

func (v VaultPosition) totalShares() sdkmath.Int {
	return v.Unlocked.Add(v.Locked).Add(v.Unlocking)
}

// Positions is the snapshot an account is valued from. Lend and debt amounts
// are nominal: the caller applies the market indices before handing them
// over, so valuation matches what the ledger would actually move.
type Positions struct {
	AccountID uint64
	Kind      AccountKind
	Deposits  sdk.Coins
	Lends     sdk.Coins
	Debts     sdk.Coins
	Vaults    []VaultPosition
}

// Inputs carries everything valuation needs. The computer never reaches out
// to stores, so identical inputs always produce identical values.
type Inputs struct {
	Positions    Positions
	Prices       map[string]sdkmath.LegacyDec
	AssetParams  map[string]params.AssetParams
	VaultConfigs map[string]params.VaultConfig
}

// ComponentKind tags one entry of the account breakdown.
type ComponentKind string

const (
	ComponentDeposit ComponentKind = "deposit"
	ComponentLend    ComponentKind = "lend"
	ComponentVault   ComponentKind = "vault"
	ComponentDebt    ComponentKind = "debt"
)

// ComponentValue is one valued entry of the account breakdown. For vaults,
// Name is the vault address, Amount is the total share count, and the lockup
// sub-amounts are populated; they stay zero for every other kind.
type ComponentValue struct {
	Kind         ComponentKind
	Name         string
	Amount       sdkmath.Int
	Value        sdkmath.LegacyDec
	MaxLTV       sdkmath.LegacyDec
	LiqThreshold sdkmath.LegacyDec

	Unlocked  sdkmath.Int
	Locked    sdkmath.Int
	Unlocking sdkmath.Int
}

// Values is the result of valuing an account at a point in time.
type Values struct {
	CollateralValue           sdkmath.LegacyDec
	DebtValue                 sdkmath.LegacyDec
	MaxLTVAdjCollateral       sdkmath.LegacyDec
	LiqThresholdAdjCollateral sdkmath.LegacyDec

	// Both factors are nil when the account carries no debt; such an
	// account is healthy no matter what it holds.
	MaxLTVHealthFactor *sdkmath.LegacyDec
	LiqHealthFactor    *sdkmath.LegacyDec

	AboveMaxLTV  bool
	Liquidatable bool

	Breakdown []ComponentValue
}

// HasDebt reports whether any debt value was found.
func (v Values) HasDebt() bool { return v.DebtValue.IsPositive() }

// IsHealthy reports whether the account clears its borrowing limit.
func (v Values) IsHealthy() bool { return !v.AboveMaxLTV }

// Computer values one account snapshot and sizes actions against it.
type Computer struct {
	in     Inputs
	values Values
}

// NewComputer validates the snapshot and computes its values once.
// High-levered accounts are checked for composition before any math runs.
func NewComputer(in Inputs) (*Computer, error) {
	c := &Computer{in: in}
	if err := c.checkComposition(); err != nil {
		return nil, err
	}
	values, err := c.compute()
	if err != nil {
		return nil, err
	}
	c.values = values
	return c, nil
}

// Values returns the computed account values.
func (c *Computer) Values() Values { return c.values }

// A high-levered account may carry one debt denom and, beyond that denom,
// one further collateral denom. When the collateral's override pins
// correlated denoms, the debt must be one of them.
func (c *Computer) checkComposition() error {
	if c.in.Positions.Kind != AccountKindHLS {
		return nil
	}
	debts := c.in.Positions.Debts
	if len(debts) > 1 {
		return fmt.Errorf("%w: %d debt denoms", ErrHLSMismatch, len(debts))
	}
	debtDenom := ""
	if len(debts) == 1 {
		debtDenom = debts[0].Denom
	}

	extra := map[string]struct{}{}
	collect := func(name string) {
		if name != debtDenom {
			extra[name] = struct{}{}
		}
	}
	for _, coin := range c.in.Positions.Deposits {
		collect(coin.Denom)
	}
	for _, coin := range c.in.Positions.Lends {
		collect(coin.Denom)
	}
	for _, vault := range c.in.Positions.Vaults {
		collect(vault.Addr)
	}
	if len(extra) > 1 {
		return fmt.Errorf("%w: %d collateral denoms beyond the debt", ErrHLSMismatch, len(extra))
	}
	if debtDenom == "" {
		return nil
	}

	for name := range extra {
		var hls *params.HLSParams
		if vault, ok := c.in.VaultConfigs[name]; ok {
			hls = vault.HLS
		} else if asset, ok := c.in.AssetParams[name]; ok {
			hls = asset.HLS
		}
		if hls == nil || len(hls.CorrelatedDenoms) == 0 {
			continue
		}
		allowed := false
		for _, denom := range hls.CorrelatedDenoms {
			if denom == debtDenom {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s is not correlated with debt denom %s", ErrHLSMismatch, name, debtDenom)
		}
	}
	return nil
}

func (c *Computer) compute() (Values, error) {
	values := Values{
		CollateralValue:           sdkmath.LegacyZeroDec(),
		DebtValue:                 sdkmath.LegacyZeroDec(),
		MaxLTVAdjCollateral:       sdkmath.LegacyZeroDec(),
		LiqThresholdAdjCollateral: sdkmath.LegacyZeroDec(),
	}

	for _, coin := range c.in.Positions.Deposits {
		if err := c.addCoin(&values, ComponentDeposit, coin); err != nil {
			return Values{}, err
		}
	}
	for _, coin := range c.in.Positions.Lends {
		if err := c.addCoin(&values, ComponentLend, coin); err != nil {
			return Values{}, err
		}
	}

	vaults := append([]VaultPosition(nil), c.in.Positions.Vaults...)
	sort.Slice(vaults, func(i, j int) bool { return vaults[i].Addr < vaults[j].Addr })
	for _, vault := range vaults {
		if err := c.addVault(&values, vault); err != nil {
			return Values{}, err
		}
	}

	for _, coin := range c.in.Positions.Debts {
		price, err := c.price(coin.Denom)
		if err != nil {
			return Values{}, err
		}
		value := sdkmath.LegacyNewDecFromInt(coin.Amount).Mul(price)
		values.DebtValue = values.DebtValue.Add(value)
		values.Breakdown = append(values.Breakdown, ComponentValue{
			Kind:         ComponentDebt,
			Name:         coin.Denom,
			Amount:       coin.Amount,
			Value:        value,
			MaxLTV:       sdkmath.LegacyZeroDec(),
			LiqThreshold: sdkmath.LegacyZeroDec(),
			Unlocked:     sdkmath.ZeroInt(),
			Locked:       sdkmath.ZeroInt(),
			Unlocking:    sdkmath.ZeroInt(),
		})
	}

	if values.DebtValue.IsPositive() {
		maxHF := values.MaxLTVAdjCollateral.Quo(values.DebtValue)
		liqHF := values.LiqThresholdAdjCollateral.Quo(values.DebtValue)
		values.MaxLTVHealthFactor = &maxHF
		values.LiqHealthFactor = &liqHF
		values.AboveMaxLTV = maxHF.LT(sdkmath.LegacyOneDec())
		values.Liquidatable = liqHF.LT(sdkmath.LegacyOneDec())
	}
	return values, nil
}

// Assets without registered params add nothing to collateral. Debt always
// counts, so an unparameterised asset can only hurt the account.
func (c *Computer) addCoin(values *Values, kind ComponentKind, coin sdk.Coin) error {
	maxLTV, liqThreshold, ok := c.weights(coin.Denom)
	if !ok {
		return nil
	}
	price, err := c.price(coin.Denom)
	if err != nil {
		return err
	}
	value := sdkmath.LegacyNewDecFromInt(coin.Amount).Mul(price)
	values.CollateralValue = values.CollateralValue.Add(value)
	values.MaxLTVAdjCollateral = values.MaxLTVAdjCollateral.Add(value.Mul(maxLTV))
	values.LiqThresholdAdjCollateral = values.LiqThresholdAdjCollateral.Add(value.Mul(liqThreshold))
	values.Breakdown = append(values.Breakdown, ComponentValue{
		Kind:         kind,
		Name:         coin.Denom,
		Amount:       coin.Amount,
		Value:        value,
		MaxLTV:       maxLTV,
		LiqThreshold: liqThreshold,
		Unlocked:     sdkmath.ZeroInt(),
		Locked:       sdkmath.ZeroInt(),
		Unlocking:    sdkmath.ZeroInt(),
	})
	return nil
}

// Vault shares are valued through the vault's own share rate against its
// base denom, never through per-underlying prices. All lockup states carry
// the same weights.
func (c *Computer) addVault(values *Values, position VaultPosition) error {
	config, ok := c.in.VaultConfigs[position.Addr]
	if !ok {
		return nil
	}
	maxLTV, liqThreshold := c.vaultWeights(config)
	price, err := c.price(position.BaseDenom)
	if err != nil {
		return err
	}
	shares := position.totalShares()
	value := sdkmath.LegacyNewDecFromInt(shares).Mul(position.AssetsPerShare).Mul(price)
	values.CollateralValue = values.CollateralValue.Add(value)
	values.MaxLTVAdjCollateral = values.MaxLTVAdjCollateral.Add(value.Mul(maxLTV))
	values.LiqThresholdAdjCollateral = values.LiqThresholdAdjCollateral.Add(value.Mul(liqThreshold))
	values.Breakdown = append(values.Breakdown, ComponentValue{
		Kind:         ComponentVault,
		Name:         position.Addr,
		Amount:       shares,
		Value:        value,
		MaxLTV:       maxLTV,
		LiqThreshold: liqThreshold,
		Unlocked:     position.Unlocked,
		Locked:       position.Locked,
		Unlocking:    position.Unlocking,
	})
	return nil
}

// weights resolves the effective risk weights for a denom. High-levered
// accounts take the HLS overrides when present. A delisted asset stops
// counting toward borrowing power but keeps its liquidation threshold.
func (c *Computer) weights(denom string) (maxLTV, liqThreshold sdkmath.LegacyDec, ok bool) {
	asset, found := c.in.AssetParams[denom]
	if !found {
		return sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec(), false
	}
	maxLTV, liqThreshold = asset.MaxLoanToValue, asset.LiquidationThreshold
	if c.in.Positions.Kind == AccountKindHLS && asset.HLS != nil {
		maxLTV, liqThreshold = asset.HLS.MaxLoanToValue, asset.HLS.LiquidationThreshold
	}
	if !asset.Whitelisted {
		maxLTV = sdkmath.LegacyZeroDec()
	}
	return maxLTV, liqThreshold, true
}

func (c *Computer) vaultWeights(config params.VaultConfig) (maxLTV, liqThreshold sdkmath.LegacyDec) {
	maxLTV, liqThreshold = config.MaxLoanToValue, config.LiquidationThreshold
	if c.in.Positions.Kind == AccountKindHLS && config.HLS != nil {
		maxLTV, liqThreshold = config.HLS.MaxLoanToValue, config.HLS.LiquidationThreshold
	}
	if !config.Whitelisted {
		maxLTV = sdkmath.LegacyZeroDec()
	}
	return maxLTV, liqThreshold
}

func (c *Computer) price(denom string) (sdkmath.LegacyDec, error) {
	price, ok := c.in.Prices[denom]
	if !ok || price.IsNil() || !price.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrMissingPrice, denom)
	}
	return price, nil
}

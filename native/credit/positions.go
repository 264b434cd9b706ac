package credit

import (
	"errors"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/native/health"
	"creditcore/native/oracle"
	"creditcore/native/params"
)

// positions assembles the nominal snapshot the health computer consumes.
// Lends and debts come from the money market at its read-time rounding, so
// liquidity rounds down and debt rounds up before valuation.
func (s *session) positions(account Account) (health.Positions, error) {
	out := health.Positions{AccountID: account.ID, Kind: account.Kind}

	deposits, err := s.state.Deposits(account.ID)
	if err != nil {
		return health.Positions{}, err
	}
	out.Deposits = deposits

	collaterals, err := s.market.AccountCollaterals(account.ID)
	if err != nil {
		return health.Positions{}, err
	}
	lends := sdk.Coins{}
	for _, record := range collaterals {
		if record.Amount.IsPositive() {
			lends = append(lends, sdk.NewCoin(record.Denom, record.Amount))
		}
	}
	out.Lends = lends

	debtRecords, err := s.market.AccountDebts(account.ID)
	if err != nil {
		return health.Positions{}, err
	}
	debts := sdk.Coins{}
	for _, record := range debtRecords {
		if record.Amount.IsPositive() {
			debts = append(debts, sdk.NewCoin(record.Denom, record.Amount))
		}
	}
	out.Debts = debts

	entries, err := s.state.VaultPositions(account.ID)
	if err != nil {
		return health.Positions{}, err
	}
	for _, entry := range entries {
		record, err := s.vaults.Vault(entry.Addr)
		if err != nil {
			return health.Positions{}, err
		}
		rate, err := s.vaults.AssetsPerShare(entry.Addr)
		if err != nil {
			return health.Positions{}, err
		}
		out.Vaults = append(out.Vaults, health.VaultPosition{
			Addr:           entry.Addr,
			BaseDenom:      record.BaseDenom,
			Unlocked:       entry.Position.Unlocked,
			Locked:         entry.Position.Locked,
			Unlocking:      entry.Position.UnlockingShares(),
			AssetsPerShare: rate,
		})
	}
	return out, nil
}

// healthInputs gathers positions, prices, and risk parameters for one
// account. Unpriced denoms are left out of the price map; denoms without
// params then drop out of collateral, while parameterised holdings and any
// debt fail valuation until a price returns.
func (s *session) healthInputs(account Account) (health.Inputs, error) {
	positions, err := s.positions(account)
	if err != nil {
		return health.Inputs{}, err
	}
	in := health.Inputs{
		Positions:    positions,
		Prices:       make(map[string]sdkmath.LegacyDec),
		AssetParams:  make(map[string]params.AssetParams),
		VaultConfigs: make(map[string]params.VaultConfig),
	}

	denoms := make(map[string]struct{})
	for _, coin := range positions.Deposits {
		denoms[coin.Denom] = struct{}{}
	}
	for _, coin := range positions.Lends {
		denoms[coin.Denom] = struct{}{}
	}
	for _, coin := range positions.Debts {
		denoms[coin.Denom] = struct{}{}
	}
	for _, position := range positions.Vaults {
		denoms[position.BaseDenom] = struct{}{}
		cfg, ok, err := s.params.VaultConfig(position.Addr)
		if err != nil {
			return health.Inputs{}, err
		}
		if ok {
			in.VaultConfigs[position.Addr] = cfg
		}
	}

	for denom := range denoms {
		p, ok, err := s.params.AssetParams(denom)
		if err != nil {
			return health.Inputs{}, err
		}
		if ok {
			in.AssetParams[denom] = p
		}
		price, err := s.oracle.Price(denom)
		if err != nil {
			if errors.Is(err, oracle.ErrPriceNotFound) {
				continue
			}
			return health.Inputs{}, err
		}
		in.Prices[denom] = price
	}
	return in, nil
}

func (s *session) computer(account Account) (*health.Computer, error) {
	in, err := s.healthInputs(account)
	if err != nil {
		return nil, err
	}
	return health.NewComputer(in)
}

func (s *session) healthValues(account Account) (health.Values, error) {
	c, err := s.computer(account)
	if err != nil {
		return health.Values{}, err
	}
	return c.Values(), nil
}

package credit

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/crypto"
	"creditcore/native/common"
)

// Config is the engine's singleton configuration. Collaborators are wired by
// address so the engine, the money market, and the accessory modules can
// reference each other without hard links.
type Config struct {
	Owner            string            `json:"owner"`
	ProposedOwner    string            `json:"proposedOwner,omitempty"`
	BaseDenom        string            `json:"baseDenom"`
	RewardsCollector string            `json:"rewardsCollector"`
	MarketAddr       string            `json:"marketAddr"`
	SwapperAddr      string            `json:"swapperAddr"`
	ZapperAddr       string            `json:"zapperAddr"`
	IncentivesAddr   string            `json:"incentivesAddr"`
	MaxSlippage      sdkmath.LegacyDec `json:"maxSlippage"`
	MaxValueForBurn  sdkmath.LegacyDec `json:"maxValueForBurn"`
}

// DefaultConfig assembles a configuration with the standard module address
// book and conservative limits. Burns start disabled for any account that
// still holds value.
func DefaultConfig(owner crypto.Address, baseDenom string) Config {
	return Config{
		Owner:            owner.String(),
		BaseDenom:        baseDenom,
		RewardsCollector: crypto.ModuleAddress("rewards_collector").String(),
		MarketAddr:       crypto.ModuleAddress(common.ModuleMarket).String(),
		SwapperAddr:      crypto.ModuleAddress("swapper").String(),
		ZapperAddr:       crypto.ModuleAddress("zapper").String(),
		IncentivesAddr:   crypto.ModuleAddress("incentives").String(),
		MaxSlippage:      sdkmath.LegacyMustNewDecFromStr("0.05"),
		MaxValueForBurn:  sdkmath.LegacyZeroDec(),
	}
}

// Validate checks addresses, the base denom, and the numeric limits.
func (c Config) Validate() error {
	named := map[string]string{
		"owner":            c.Owner,
		"rewardsCollector": c.RewardsCollector,
		"marketAddr":       c.MarketAddr,
		"swapperAddr":      c.SwapperAddr,
		"zapperAddr":       c.ZapperAddr,
		"incentivesAddr":   c.IncentivesAddr,
	}
	for field, addr := range named {
		if _, err := crypto.ParseAddress(addr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, field, err)
		}
	}
	if c.ProposedOwner != "" {
		if _, err := crypto.ParseAddress(c.ProposedOwner); err != nil {
			return fmt.Errorf("%w: proposedOwner: %v", ErrInvalidConfig, err)
		}
	}
	if err := sdk.ValidateDenom(c.BaseDenom); err != nil {
		return fmt.Errorf("%w: baseDenom: %v", ErrInvalidConfig, err)
	}
	if c.MaxSlippage.IsNil() || c.MaxSlippage.IsNegative() || c.MaxSlippage.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: maxSlippage must be in [0, 1)", ErrInvalidConfig)
	}
	if c.MaxValueForBurn.IsNil() || c.MaxValueForBurn.IsNegative() {
		return fmt.Errorf("%w: maxValueForBurn must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ConfigUpdate carries the owner-gated partial update; nil fields keep their
// current values. Ownership changes go through the propose/accept handshake
// instead.
type ConfigUpdate struct {
	RewardsCollector *string            `json:"rewardsCollector,omitempty"`
	MarketAddr       *string            `json:"marketAddr,omitempty"`
	SwapperAddr      *string            `json:"swapperAddr,omitempty"`
	ZapperAddr       *string            `json:"zapperAddr,omitempty"`
	IncentivesAddr   *string            `json:"incentivesAddr,omitempty"`
	MaxSlippage      *sdkmath.LegacyDec `json:"maxSlippage,omitempty"`
	MaxValueForBurn  *sdkmath.LegacyDec `json:"maxValueForBurn,omitempty"`
}

func (c Config) apply(update ConfigUpdate) Config {
	next := c
	if update.RewardsCollector != nil {
		next.RewardsCollector = *update.RewardsCollector
	}
	if update.MarketAddr != nil {
		next.MarketAddr = *update.MarketAddr
	}
	if update.SwapperAddr != nil {
		next.SwapperAddr = *update.SwapperAddr
	}
	if update.ZapperAddr != nil {
		next.ZapperAddr = *update.ZapperAddr
	}
	if update.IncentivesAddr != nil {
		next.IncentivesAddr = *update.IncentivesAddr
	}
	if update.MaxSlippage != nil {
		next.MaxSlippage = *update.MaxSlippage
	}
	if update.MaxValueForBurn != nil {
		next.MaxValueForBurn = *update.MaxValueForBurn
	}
	return next
}

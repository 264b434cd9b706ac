package params

import (
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// LiquidationBonus describes the piecewise-linear incentive paid to a
// liquidator. The realised bonus starts at Starting when the account first
// crosses the liquidation threshold and grows with Slope as the health
// factor falls, clamped to [MinLB, MaxLB].
type LiquidationBonus struct {
	Starting sdkmath.LegacyDec `json:"starting"`
	Slope    sdkmath.LegacyDec `json:"slope"`
	MinLB    sdkmath.LegacyDec `json:"minLb"`
	MaxLB    sdkmath.LegacyDec `json:"maxLb"`
}

// Validate checks the bonus curve is well formed.
func (b LiquidationBonus) Validate() error {
	for _, field := range []struct {
		name  string
		value sdkmath.LegacyDec
	}{
		{"starting", b.Starting},
		{"slope", b.Slope},
		{"minLb", b.MinLB},
		{"maxLb", b.MaxLB},
	} {
		if field.value.IsNil() || field.value.IsNegative() {
			return fmt.Errorf("%w: liquidation bonus %s must be a non-negative decimal", ErrInvalidParams, field.name)
		}
	}
	if b.MaxLB.GT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: liquidation bonus maxLb must not exceed 1", ErrInvalidParams)
	}
	if b.MinLB.GT(b.MaxLB) {
		return fmt.Errorf("%w: liquidation bonus minLb exceeds maxLb", ErrInvalidParams)
	}
	return nil
}

// HLSParams carries the risk overrides applied to high-leverage strategy
// accounts. CorrelatedDenoms lists the collateral denoms allowed alongside
// the single debt denom.
type HLSParams struct {
	MaxLoanToValue       sdkmath.LegacyDec `json:"maxLoanToValue"`
	LiquidationThreshold sdkmath.LegacyDec `json:"liquidationThreshold"`
	CorrelatedDenoms     []string          `json:"correlatedDenoms,omitempty"`
}

// Validate checks the override thresholds keep their required ordering.
func (h HLSParams) Validate() error {
	return validateThresholds(h.MaxLoanToValue, h.LiquidationThreshold)
}

// Clone returns a deep copy.
func (h *HLSParams) Clone() *HLSParams {
	if h == nil {
		return nil
	}
	cp := *h
	if len(h.CorrelatedDenoms) > 0 {
		cp.CorrelatedDenoms = append([]string(nil), h.CorrelatedDenoms...)
	}
	return &cp
}

// AssetParams is the per-denom risk configuration consumed by the credit
// engine and the health computer.
type AssetParams struct {
	Denom                  string            `json:"denom"`
	MaxLoanToValue         sdkmath.LegacyDec `json:"maxLoanToValue"`
	LiquidationThreshold   sdkmath.LegacyDec `json:"liquidationThreshold"`
	LiquidationBonus       LiquidationBonus  `json:"liquidationBonus"`
	ProtocolLiquidationFee sdkmath.LegacyDec `json:"protocolLiquidationFee"`
	DepositCap             sdkmath.Int       `json:"depositCap"`
	Whitelisted            bool              `json:"whitelisted"`
	HLS                    *HLSParams        `json:"hls,omitempty"`
}

// Validate checks every field against the registry invariants.
func (p AssetParams) Validate() error {
	if err := sdk.ValidateDenom(p.Denom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := validateThresholds(p.MaxLoanToValue, p.LiquidationThreshold); err != nil {
		return err
	}
	if err := p.LiquidationBonus.Validate(); err != nil {
		return err
	}
	if p.ProtocolLiquidationFee.IsNil() || p.ProtocolLiquidationFee.IsNegative() || p.ProtocolLiquidationFee.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: protocol liquidation fee must be in [0, 1)", ErrInvalidParams)
	}
	if p.DepositCap.IsNil() || p.DepositCap.IsNegative() {
		return fmt.Errorf("%w: deposit cap must be non-negative", ErrInvalidParams)
	}
	if p.HLS != nil {
		if err := p.HLS.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p AssetParams) Clone() AssetParams {
	cp := p
	cp.HLS = p.HLS.Clone()
	return cp
}

// VaultConfig is the per-vault risk configuration. Addr is the vault's
// bech32 address.
type VaultConfig struct {
	Addr                 string            `json:"addr"`
	DepositCap           sdkmath.Int       `json:"depositCap"`
	MaxLoanToValue       sdkmath.LegacyDec `json:"maxLoanToValue"`
	LiquidationThreshold sdkmath.LegacyDec `json:"liquidationThreshold"`
	Whitelisted          bool              `json:"whitelisted"`
	HLS                  *HLSParams        `json:"hls,omitempty"`
}

// Validate checks every field against the registry invariants.
func (v VaultConfig) Validate() error {
	if strings.TrimSpace(v.Addr) == "" {
		return fmt.Errorf("%w: vault address required", ErrInvalidParams)
	}
	if err := validateThresholds(v.MaxLoanToValue, v.LiquidationThreshold); err != nil {
		return err
	}
	if v.DepositCap.IsNil() || v.DepositCap.IsNegative() {
		return fmt.Errorf("%w: deposit cap must be non-negative", ErrInvalidParams)
	}
	if v.HLS != nil {
		if err := v.HLS.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (v VaultConfig) Clone() VaultConfig {
	cp := v
	cp.HLS = v.HLS.Clone()
	return cp
}

// Pauses toggles mutations per module. The zero value pauses nothing.
type Pauses struct {
	Credit bool `json:"credit,omitempty"`
	Market bool `json:"market,omitempty"`
	Oracle bool `json:"oracle,omitempty"`
	Vault  bool `json:"vault,omitempty"`
}

// IsPaused implements the pause switchboard lookup by module name.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case "credit":
		return p.Credit
	case "market":
		return p.Market
	case "oracle":
		return p.Oracle
	case "vault":
		return p.Vault
	default:
		return false
	}
}

// A max-LTV of zero is allowed (asset contributes no borrowing power) but
// the liquidation threshold must stay strictly above it and within (0, 1].
func validateThresholds(maxLTV, liqThreshold sdkmath.LegacyDec) error {
	if maxLTV.IsNil() || maxLTV.IsNegative() || maxLTV.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: max loan-to-value must be in [0, 1)", ErrInvalidParams)
	}
	if liqThreshold.IsNil() || liqThreshold.GT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: liquidation threshold must not exceed 1", ErrInvalidParams)
	}
	if liqThreshold.LTE(maxLTV) {
		return fmt.Errorf("%w: liquidation threshold must exceed max loan-to-value", ErrInvalidParams)
	}
	return nil
}

package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// ErrInvalidParams flags a registry record that failed validation.
var ErrInvalidParams = errors.New("params: invalid parameters")

// DefaultTargetHealthFactor applies until governance stores an override.
// Liquidations are sized to restore accounts to this health factor.
var DefaultTargetHealthFactor = sdkmath.LegacyMustNewDecFromStr("1.05")

// StoreState captures the subset of state capabilities required by the
// parameter registry.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
	ParamStoreDelete(name string) error
	// ParamStoreIterate visits every record under prefix in key order until
	// fn returns false.
	ParamStoreIterate(prefix string, fn func(name string, value []byte) bool) error
}

// Store provides typed accessors for governance-controlled risk parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetAssetParams validates and persists the risk parameters for a denom.
func (s *Store) SetAssetParams(p AssetParams) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("params: encode asset params: %w", err)
	}
	return state.ParamStoreSet(KeyAssetPrefix+p.Denom, encoded)
}

// AssetParams loads the risk parameters for a denom. The boolean reports
// whether the denom is known to the registry.
func (s *Store) AssetParams(denom string) (AssetParams, bool, error) {
	state, err := s.withState()
	if err != nil {
		return AssetParams{}, false, err
	}
	raw, ok, err := state.ParamStoreGet(KeyAssetPrefix + denom)
	if err != nil {
		return AssetParams{}, false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return AssetParams{}, false, nil
	}
	var p AssetParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return AssetParams{}, false, fmt.Errorf("params: decode asset params: %w", err)
	}
	return p, true, nil
}

// DeleteAssetParams removes a denom from the registry.
func (s *Store) DeleteAssetParams(denom string) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	return state.ParamStoreDelete(KeyAssetPrefix + denom)
}

// AllAssetParams returns every registered denom in key order.
func (s *Store) AllAssetParams() ([]AssetParams, error) {
	state, err := s.withState()
	if err != nil {
		return nil, err
	}
	var out []AssetParams
	var decodeErr error
	err = state.ParamStoreIterate(KeyAssetPrefix, func(name string, value []byte) bool {
		var p AssetParams
		if decodeErr = json.Unmarshal(value, &p); decodeErr != nil {
			decodeErr = fmt.Errorf("params: decode asset params %q: %w", name, decodeErr)
			return false
		}
		out = append(out, p)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// SetVaultConfig validates and persists the risk configuration for a vault.
func (s *Store) SetVaultConfig(v VaultConfig) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("params: encode vault config: %w", err)
	}
	return state.ParamStoreSet(KeyVaultPrefix+v.Addr, encoded)
}

// VaultConfig loads the risk configuration for a vault address.
func (s *Store) VaultConfig(addr string) (VaultConfig, bool, error) {
	state, err := s.withState()
	if err != nil {
		return VaultConfig{}, false, err
	}
	raw, ok, err := state.ParamStoreGet(KeyVaultPrefix + addr)
	if err != nil {
		return VaultConfig{}, false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return VaultConfig{}, false, nil
	}
	var v VaultConfig
	if err := json.Unmarshal(raw, &v); err != nil {
		return VaultConfig{}, false, fmt.Errorf("params: decode vault config: %w", err)
	}
	return v, true, nil
}

// DeleteVaultConfig removes a vault from the registry.
func (s *Store) DeleteVaultConfig(addr string) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	return state.ParamStoreDelete(KeyVaultPrefix + addr)
}

// AllVaultConfigs returns every registered vault in key order.
func (s *Store) AllVaultConfigs() ([]VaultConfig, error) {
	state, err := s.withState()
	if err != nil {
		return nil, err
	}
	var out []VaultConfig
	var decodeErr error
	err = state.ParamStoreIterate(KeyVaultPrefix, func(name string, value []byte) bool {
		var v VaultConfig
		if decodeErr = json.Unmarshal(value, &v); decodeErr != nil {
			decodeErr = fmt.Errorf("params: decode vault config %q: %w", name, decodeErr)
			return false
		}
		out = append(out, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// SetTargetHealthFactor persists the liquidation sizing target. Values below
// one would size liquidations to leave accounts unhealthy and are rejected.
func (s *Store) SetTargetHealthFactor(thf sdkmath.LegacyDec) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if thf.IsNil() || thf.LT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: target health factor must be at least 1", ErrInvalidParams)
	}
	encoded, err := json.Marshal(thf)
	if err != nil {
		return fmt.Errorf("params: encode target health factor: %w", err)
	}
	return state.ParamStoreSet(KeyTargetHealthFactor, encoded)
}

// TargetHealthFactor loads the liquidation sizing target, falling back to
// DefaultTargetHealthFactor when unset.
func (s *Store) TargetHealthFactor() (sdkmath.LegacyDec, error) {
	state, err := s.withState()
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	raw, ok, err := state.ParamStoreGet(KeyTargetHealthFactor)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return DefaultTargetHealthFactor, nil
	}
	var thf sdkmath.LegacyDec
	if err := json.Unmarshal(raw, &thf); err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("params: decode target health factor: %w", err)
	}
	return thf, nil
}

// SetPauses persists the module pause configuration.
func (s *Store) SetPauses(p Pauses) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("params: encode pauses: %w", err)
	}
	return state.ParamStoreSet(KeyPauses, encoded)
}

// Pauses loads the persisted pause configuration. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (Pauses, error) {
	state, err := s.withState()
	if err != nil {
		return Pauses{}, err
	}
	raw, ok, err := state.ParamStoreGet(KeyPauses)
	if err != nil {
		return Pauses{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return Pauses{}, nil
	}
	var p Pauses
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pauses{}, fmt.Errorf("params: decode pauses: %w", err)
	}
	return p, nil
}

// IsPaused implements the pause switchboard over the persisted toggles.
// Lookup failures fail open so a corrupt record cannot freeze the ledger.
func (s *Store) IsPaused(module string) bool {
	p, err := s.Pauses()
	if err != nil {
		return false
	}
	return p.IsPaused(strings.TrimSpace(module))
}

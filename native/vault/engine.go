package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/crypto"
	"creditcore/native/common"
	"creditcore/storage"
)

const vaultKeyPrefix = "vault/vaults/"

func vaultKey(addr string) []byte {
	return []byte(vaultKeyPrefix + addr)
}

// Vault is the operational record of one registered vault: what it is
// denominated in, how long its cooldown runs, and the share supply against
// the assets it manages. The coins themselves sit at the vault's address in
// the bank ledger.
type Vault struct {
	Addr          string      `json:"addr"`
	BaseDenom     string      `json:"baseDenom"`
	LockupSeconds uint64      `json:"lockupSeconds"`
	TotalShares   sdkmath.Int `json:"totalShares"`
	TotalAssets   sdkmath.Int `json:"totalAssets"`
}

// Kind returns the position kind the vault's lockup dictates.
func (v Vault) Kind() PositionKind {
	if v.LockupSeconds > 0 {
		return PositionLocking
	}
	return PositionUnlocked
}

// Engine does share accounting for registered vaults. It never holds coins;
// the caller moves them through the bank ledger and reports the amounts.
// Constructed per transaction over the active database or overlay.
type Engine struct {
	db     storage.Database
	pauses common.PauseView
}

func NewEngine(db storage.Database) *Engine {
	return &Engine{db: db}
}

// SetPauses wires the pause switchboard consulted before share movements.
func (e *Engine) SetPauses(pauses common.PauseView) {
	e.pauses = pauses
}

func (e *Engine) guard() error {
	return common.Guard(e.pauses, common.ModuleVault)
}

// Register adds a vault. The lockup is fixed at registration; depositors
// rely on it never changing.
func (e *Engine) Register(addr, baseDenom string, lockupSeconds uint64) error {
	if _, err := crypto.ParseAddress(addr); err != nil {
		return fmt.Errorf("%w: address: %v", ErrInvalidVault, err)
	}
	if err := sdk.ValidateDenom(baseDenom); err != nil {
		return fmt.Errorf("%w: base denom: %v", ErrInvalidVault, err)
	}
	if ok, err := e.db.Has(vaultKey(addr)); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrVaultExists, addr)
	}
	return e.put(Vault{
		Addr:          addr,
		BaseDenom:     baseDenom,
		LockupSeconds: lockupSeconds,
		TotalShares:   sdkmath.ZeroInt(),
		TotalAssets:   sdkmath.ZeroInt(),
	})
}

// Vault loads one vault record.
func (e *Engine) Vault(addr string) (Vault, error) {
	raw, err := e.db.Get(vaultKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return Vault{}, fmt.Errorf("%w: %s", ErrVaultNotFound, addr)
		}
		return Vault{}, err
	}
	var vault Vault
	if err := json.Unmarshal(raw, &vault); err != nil {
		return Vault{}, fmt.Errorf("vault: decode %s: %w", addr, err)
	}
	return vault, nil
}

// AllVaults lists every registered vault sorted by address.
func (e *Engine) AllVaults() ([]Vault, error) {
	it := e.db.NewIterator([]byte(vaultKeyPrefix))
	defer it.Release()

	var vaults []Vault
	for it.Next() {
		var vault Vault
		if err := json.Unmarshal(it.Value(), &vault); err != nil {
			return nil, fmt.Errorf("vault: decode %s: %w", it.Key(), err)
		}
		vaults = append(vaults, vault)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(vaults, func(i, j int) bool { return vaults[i].Addr < vaults[j].Addr })
	return vaults, nil
}

// Deposit mints shares against newly arrived assets. The first deposit
// mints one share per asset; afterwards the going rate applies, rounded
// down so the mint can never dilute existing holders.
func (e *Engine) Deposit(addr string, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := e.guard(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	vault, err := e.Vault(addr)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	var shares sdkmath.Int
	if vault.TotalShares.IsZero() || vault.TotalAssets.IsZero() {
		shares = amount
	} else {
		shares = amount.Mul(vault.TotalShares).Quo(vault.TotalAssets)
	}
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deposit too small for share rate", ErrInvalidAmount)
	}

	vault.TotalShares = vault.TotalShares.Add(shares)
	vault.TotalAssets = vault.TotalAssets.Add(amount)
	if err := e.put(vault); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

// Redeem burns shares and returns the assets they are worth, rounded down.
// The caller pays those assets out of the vault's bank balance.
func (e *Engine) Redeem(addr string, shares sdkmath.Int) (sdkmath.Int, error) {
	if err := e.guard(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	vault, err := e.Vault(addr)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	assets, err := previewRedeem(vault, shares)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	vault.TotalShares = vault.TotalShares.Sub(shares)
	vault.TotalAssets = vault.TotalAssets.Sub(assets)
	if err := e.put(vault); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return assets, nil
}

// PreviewRedeem quotes a redemption without touching state.
func (e *Engine) PreviewRedeem(addr string, shares sdkmath.Int) (sdkmath.Int, error) {
	vault, err := e.Vault(addr)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return previewRedeem(vault, shares)
}

func previewRedeem(vault Vault, shares sdkmath.Int) (sdkmath.Int, error) {
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	if vault.TotalShares.LT(shares) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: vault holds %s shares, want %s", ErrInsufficientShares, vault.TotalShares, shares)
	}
	return shares.Mul(vault.TotalAssets).Quo(vault.TotalShares), nil
}

// Donate adds assets without minting shares, raising the share rate. Yield
// paid into the vault arrives this way.
func (e *Engine) Donate(addr string, amount sdkmath.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	vault, err := e.Vault(addr)
	if err != nil {
		return err
	}
	vault.TotalAssets = vault.TotalAssets.Add(amount)
	return e.put(vault)
}

// AssetsPerShare returns the current share rate, one for an empty vault.
func (e *Engine) AssetsPerShare(addr string) (sdkmath.LegacyDec, error) {
	vault, err := e.Vault(addr)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if vault.TotalShares.IsZero() {
		return sdkmath.LegacyOneDec(), nil
	}
	return sdkmath.LegacyNewDecFromInt(vault.TotalAssets).QuoTruncate(sdkmath.LegacyNewDecFromInt(vault.TotalShares)), nil
}

func (e *Engine) put(vault Vault) error {
	raw, err := json.Marshal(vault)
	if err != nil {
		return err
	}
	return e.db.Put(vaultKey(vault.Addr), raw)
}

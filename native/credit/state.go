package credit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/native/health"
	"creditcore/native/vault"
	"creditcore/storage"
)

const (
	accountKeyPrefix      = "credit/accounts/"
	depositKeyPrefix      = "credit/deposits/"
	vaultKeyPrefix        = "credit/vaults/"
	totalDepositKeyPrefix = "credit/totalDeposits/"
	nextUnlockIDKey       = "credit/nextUnlockId"
	configKey             = "credit/config"
)

func accountKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", accountKeyPrefix, id))
}

func depositKey(id uint64, denom string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", depositKeyPrefix, id, denom))
}

func depositPrefix(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", depositKeyPrefix, id))
}

func vaultPositionKey(id uint64, addr string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", vaultKeyPrefix, id, addr))
}

func vaultPositionPrefix(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", vaultKeyPrefix, id))
}

// Account is the persistent record behind one credit account token. The
// owner lives in the NFT registry; everything else hangs off the id.
type Account struct {
	ID   uint64             `json:"id"`
	Kind health.AccountKind `json:"kind"`
}

// VaultEntry pairs a vault address with the account's position in it.
type VaultEntry struct {
	Addr     string         `json:"addr"`
	Position vault.Position `json:"position"`
}

// State stores accounts, deposits, and vault positions. Like the engines it
// serves, it is constructed per transaction over the committed database or
// an overlay.
type State struct {
	db storage.Database
}

func NewState(db storage.Database) *State {
	return &State{db: db}
}

func (s *State) PutAccount(account Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return s.db.Put(accountKey(account.ID), raw)
}

func (s *State) Account(id uint64) (Account, error) {
	raw, err := s.db.Get(accountKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return Account{}, fmt.Errorf("%w: %d", ErrAccountNotFound, id)
		}
		return Account{}, err
	}
	var account Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return Account{}, fmt.Errorf("credit: decode account %d: %w", id, err)
	}
	return account, nil
}

func (s *State) DeleteAccount(id uint64) error {
	return s.db.Delete(accountKey(id))
}

// AccountsPage walks account records in id order, returning up to limit
// entries after the cursor.
func (s *State) AccountsPage(startAfter uint64, limit int) ([]Account, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	it := s.db.NewIterator([]byte(accountKeyPrefix))
	defer it.Release()

	var accounts []Account
	for it.Next() {
		var account Account
		if err := json.Unmarshal(it.Value(), &account); err != nil {
			return nil, fmt.Errorf("credit: decode account %s: %w", it.Key(), err)
		}
		if account.ID <= startAfter {
			continue
		}
		accounts = append(accounts, account)
		if len(accounts) == limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Deposits returns the account's deposit balances sorted by denom.
func (s *State) Deposits(id uint64) (sdk.Coins, error) {
	prefix := depositPrefix(id)
	it := s.db.NewIterator(prefix)
	defer it.Release()

	coins := sdk.Coins{}
	for it.Next() {
		denom := strings.TrimPrefix(string(it.Key()), string(prefix))
		amount, err := decodeInt(it.Value())
		if err != nil {
			return nil, fmt.Errorf("credit: decode deposit %q: %w", denom, err)
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

// DepositAmount returns a single deposit balance, zero when absent.
func (s *State) DepositAmount(id uint64, denom string) (sdkmath.Int, error) {
	return s.loadInt(depositKey(id, denom))
}

// AddDeposit credits a coin to the account and the per-denom running total.
func (s *State) AddDeposit(id uint64, coin sdk.Coin) error {
	current, err := s.loadInt(depositKey(id, coin.Denom))
	if err != nil {
		return err
	}
	if err := s.storeInt(depositKey(id, coin.Denom), current.Add(coin.Amount)); err != nil {
		return err
	}
	return s.adjustTotal(coin.Denom, coin.Amount)
}

// SubDeposit debits a coin, failing when the balance is short.
func (s *State) SubDeposit(id uint64, coin sdk.Coin) error {
	current, err := s.loadInt(depositKey(id, coin.Denom))
	if err != nil {
		return err
	}
	if current.LT(coin.Amount) {
		return fmt.Errorf("%w: account %d holds %s%s, needs %s", ErrInsufficientDeposit, id, current, coin.Denom, coin)
	}
	if err := s.storeInt(depositKey(id, coin.Denom), current.Sub(coin.Amount)); err != nil {
		return err
	}
	return s.adjustTotal(coin.Denom, coin.Amount.Neg())
}

// TotalDeposited returns how much of a denom all accounts hold in deposits.
func (s *State) TotalDeposited(denom string) (sdkmath.Int, error) {
	return s.loadInt([]byte(totalDepositKeyPrefix + denom))
}

func (s *State) adjustTotal(denom string, delta sdkmath.Int) error {
	key := []byte(totalDepositKeyPrefix + denom)
	current, err := s.loadInt(key)
	if err != nil {
		return err
	}
	next := current.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("credit: total deposits of %s would go negative", denom)
	}
	return s.storeInt(key, next)
}

// VaultPosition loads the account's position in one vault.
func (s *State) VaultPosition(id uint64, addr string) (vault.Position, bool, error) {
	raw, err := s.db.Get(vaultPositionKey(id, addr))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return vault.Position{}, false, nil
		}
		return vault.Position{}, false, err
	}
	var position vault.Position
	if err := json.Unmarshal(raw, &position); err != nil {
		return vault.Position{}, false, fmt.Errorf("credit: decode vault position: %w", err)
	}
	return position, true, nil
}

// PutVaultPosition stores a position, deleting the record once it empties.
func (s *State) PutVaultPosition(id uint64, addr string, position vault.Position) error {
	if position.IsEmpty() {
		return s.db.Delete(vaultPositionKey(id, addr))
	}
	raw, err := json.Marshal(position)
	if err != nil {
		return err
	}
	return s.db.Put(vaultPositionKey(id, addr), raw)
}

// VaultPositions lists the account's vault entries sorted by address.
func (s *State) VaultPositions(id uint64) ([]VaultEntry, error) {
	prefix := vaultPositionPrefix(id)
	it := s.db.NewIterator(prefix)
	defer it.Release()

	var entries []VaultEntry
	for it.Next() {
		addr := strings.TrimPrefix(string(it.Key()), string(prefix))
		var position vault.Position
		if err := json.Unmarshal(it.Value(), &position); err != nil {
			return nil, fmt.Errorf("credit: decode vault position %q: %w", addr, err)
		}
		entries = append(entries, VaultEntry{Addr: addr, Position: position})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Addr < entries[j].Addr })
	return entries, nil
}

// NextUnlockID increments and returns the global cooldown id counter. Ids
// start at one and are never reused.
func (s *State) NextUnlockID() (uint64, error) {
	raw, err := s.db.Get([]byte(nextUnlockIDKey))
	next := uint64(1)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			return 0, err
		}
	} else {
		parsed, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("credit: decode unlock id: %w", err)
		}
		next = parsed
	}
	if err := s.db.Put([]byte(nextUnlockIDKey), []byte(strconv.FormatUint(next+1, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

// Config loads the singleton engine configuration.
func (s *State) Config() (Config, error) {
	raw, err := s.db.Get([]byte(configKey))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return Config{}, ErrNotConfigured
		}
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("credit: decode config: %w", err)
	}
	return cfg, nil
}

func (s *State) PutConfig(cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(configKey), raw)
}

func (s *State) loadInt(key []byte) (sdkmath.Int, error) {
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return sdkmath.ZeroInt(), nil
		}
		return sdkmath.ZeroInt(), err
	}
	return decodeInt(raw)
}

func (s *State) storeInt(key []byte, amount sdkmath.Int) error {
	if amount.IsZero() {
		return s.db.Delete(key)
	}
	raw, err := json.Marshal(amount)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func decodeInt(raw []byte) (sdkmath.Int, error) {
	var amount sdkmath.Int
	if err := json.Unmarshal(raw, &amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

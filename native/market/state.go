package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"

	"creditcore/storage"
)

// State captures the persistence hooks the market engine needs. Positions
// are stored scaled; a zero scaled amount removes the record.
type State interface {
	GetMarket(denom string) (*Market, error)
	PutMarket(m *Market) error
	IterateMarkets(fn func(m *Market) bool) error

	GetCollateral(accountID uint64, denom string) (sdkmath.Int, error)
	PutCollateral(accountID uint64, denom string, scaled sdkmath.Int) error
	IterateCollateral(fn func(accountID uint64, denom string, scaled sdkmath.Int) bool) error
	IterateAccountCollateral(accountID uint64, fn func(denom string, scaled sdkmath.Int) bool) error

	GetDebt(accountID uint64, denom string) (sdkmath.Int, error)
	PutDebt(accountID uint64, denom string, scaled sdkmath.Int) error
	IterateDebt(fn func(accountID uint64, denom string, scaled sdkmath.Int) bool) error
	IterateAccountDebt(accountID uint64, fn func(denom string, scaled sdkmath.Int) bool) error
}

const (
	marketKeyPrefix     = "market/markets/"
	collateralKeyPrefix = "market/collateral/"
	debtKeyPrefix       = "market/debt/"
)

// positionKey builds "<prefix><zero-padded account id>/<denom>" so prefix
// scans page in (account, denom) order.
func positionKey(prefix string, accountID uint64, denom string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefix, accountID, denom))
}

func accountPrefix(prefix string, accountID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", prefix, accountID))
}

func parsePositionKey(prefix string, key []byte) (uint64, string, error) {
	rest := strings.TrimPrefix(string(key), prefix)
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return 0, "", fmt.Errorf("market: malformed position key %q", key)
	}
	id, err := strconv.ParseUint(rest[:idx], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("market: malformed position key %q: %w", key, err)
	}
	return id, rest[idx+1:], nil
}

// KVState implements State over a key-value database, committed or overlay.
type KVState struct {
	db storage.Database
}

func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

func (s *KVState) GetMarket(denom string) (*Market, error) {
	raw, err := s.db.Get([]byte(marketKeyPrefix + denom))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Market
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("market: decode market %q: %w", denom, err)
	}
	return &m, nil
}

func (s *KVState) PutMarket(m *Market) error {
	if m == nil {
		return fmt.Errorf("%w: nil market", ErrInvalidMarket)
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("market: encode market %q: %w", m.Denom, err)
	}
	return s.db.Put([]byte(marketKeyPrefix+m.Denom), encoded)
}

func (s *KVState) IterateMarkets(fn func(m *Market) bool) error {
	it := s.db.NewIterator([]byte(marketKeyPrefix))
	defer it.Release()
	for it.Next() {
		var m Market
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			return fmt.Errorf("market: decode market %q: %w", it.Key(), err)
		}
		if !fn(&m) {
			break
		}
	}
	return it.Error()
}

func (s *KVState) GetCollateral(accountID uint64, denom string) (sdkmath.Int, error) {
	return s.getScaled(positionKey(collateralKeyPrefix, accountID, denom))
}

func (s *KVState) PutCollateral(accountID uint64, denom string, scaled sdkmath.Int) error {
	return s.putScaled(positionKey(collateralKeyPrefix, accountID, denom), scaled)
}

func (s *KVState) IterateCollateral(fn func(accountID uint64, denom string, scaled sdkmath.Int) bool) error {
	return s.iteratePositions(collateralKeyPrefix, []byte(collateralKeyPrefix), fn)
}

func (s *KVState) IterateAccountCollateral(accountID uint64, fn func(denom string, scaled sdkmath.Int) bool) error {
	return s.iteratePositions(collateralKeyPrefix, accountPrefix(collateralKeyPrefix, accountID), func(_ uint64, denom string, scaled sdkmath.Int) bool {
		return fn(denom, scaled)
	})
}

func (s *KVState) GetDebt(accountID uint64, denom string) (sdkmath.Int, error) {
	return s.getScaled(positionKey(debtKeyPrefix, accountID, denom))
}

func (s *KVState) PutDebt(accountID uint64, denom string, scaled sdkmath.Int) error {
	return s.putScaled(positionKey(debtKeyPrefix, accountID, denom), scaled)
}

func (s *KVState) IterateDebt(fn func(accountID uint64, denom string, scaled sdkmath.Int) bool) error {
	return s.iteratePositions(debtKeyPrefix, []byte(debtKeyPrefix), fn)
}

func (s *KVState) IterateAccountDebt(accountID uint64, fn func(denom string, scaled sdkmath.Int) bool) error {
	return s.iteratePositions(debtKeyPrefix, accountPrefix(debtKeyPrefix, accountID), func(_ uint64, denom string, scaled sdkmath.Int) bool {
		return fn(denom, scaled)
	})
}

func (s *KVState) getScaled(key []byte) (sdkmath.Int, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return sdkmath.ZeroInt(), nil
	}
	if err != nil {
		return sdkmath.Int{}, err
	}
	var scaled sdkmath.Int
	if err := json.Unmarshal(raw, &scaled); err != nil {
		return sdkmath.Int{}, fmt.Errorf("market: decode position %q: %w", key, err)
	}
	return scaled, nil
}

func (s *KVState) putScaled(key []byte, scaled sdkmath.Int) error {
	if scaled.IsNil() || scaled.IsNegative() {
		return fmt.Errorf("%w: scaled amount must be non-negative", ErrInvalidMarket)
	}
	if scaled.IsZero() {
		return s.db.Delete(key)
	}
	encoded, err := json.Marshal(scaled)
	if err != nil {
		return fmt.Errorf("market: encode position %q: %w", key, err)
	}
	return s.db.Put(key, encoded)
}

func (s *KVState) iteratePositions(keyPrefix string, scanPrefix []byte, fn func(accountID uint64, denom string, scaled sdkmath.Int) bool) error {
	it := s.db.NewIterator(scanPrefix)
	defer it.Release()
	for it.Next() {
		accountID, denom, err := parsePositionKey(keyPrefix, it.Key())
		if err != nil {
			return err
		}
		var scaled sdkmath.Int
		if err := json.Unmarshal(it.Value(), &scaled); err != nil {
			return fmt.Errorf("market: decode position %q: %w", it.Key(), err)
		}
		if !fn(accountID, denom, scaled) {
			break
		}
	}
	return it.Error()
}

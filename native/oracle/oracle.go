package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/core/events"
	"creditcore/native/common"
	"creditcore/storage"
)

var (
	// ErrInvalidSource flags a source definition rejected at registration.
	ErrInvalidSource = errors.New("oracle: invalid price source")
	// ErrPriceNotFound is returned when no source covers the denom.
	ErrPriceNotFound = errors.New("oracle: price not found")
	// ErrStalePrice is returned when a TWAP window holds no usable samples.
	ErrStalePrice = errors.New("oracle: stale price")
)

// SourceKind tags the pricing strategy fixed for a denom at registration.
type SourceKind string

const (
	// SourceFixed prices the denom at a constant decimal.
	SourceFixed SourceKind = "fixed"
	// SourceSpot prices the denom through a recorded rate against a route
	// denom which must itself be priced.
	SourceSpot SourceKind = "spot"
	// SourceTwap prices the denom as the time-weighted average of recorded
	// observations inside a sliding window.
	SourceTwap SourceKind = "twap"
)

// FixedSource is a constant price in base denom.
type FixedSource struct {
	Price sdkmath.LegacyDec `json:"price"`
}

// SpotSource chains through another priced denom:
// price(denom) = Rate · price(RouteDenom).
type SpotSource struct {
	RouteDenom string            `json:"routeDenom"`
	Rate       sdkmath.LegacyDec `json:"rate"`
}

// TwapSource averages observations recorded over WindowSeconds.
type TwapSource struct {
	WindowSeconds uint64 `json:"windowSeconds"`
}

// Source is the tagged price-source variant. Exactly one member matching
// Kind must be populated.
type Source struct {
	Kind  SourceKind   `json:"kind"`
	Fixed *FixedSource `json:"fixed,omitempty"`
	Spot  *SpotSource  `json:"spot,omitempty"`
	Twap  *TwapSource  `json:"twap,omitempty"`
}

// observation is one recorded TWAP sample.
type observation struct {
	Price     sdkmath.LegacyDec `json:"price"`
	Timestamp uint64            `json:"timestamp"`
}

const (
	sourceKeyPrefix = "oracle/sources/"
	obsKeyPrefix    = "oracle/observations/"
)

// spotDepthLimit caps route chains so a mis-registered cycle cannot loop.
const spotDepthLimit = 8

// Engine registers price sources and answers price queries in base denom.
type Engine struct {
	mu        sync.RWMutex
	db        storage.Database
	baseDenom string
	nowFn     func() time.Time
	emitter   events.Emitter
	pauses    common.PauseView
}

// NewEngine constructs an oracle over the supplied database. Prices are
// quoted in baseDenom; the base denom itself is always worth exactly one.
func NewEngine(db storage.Database, baseDenom string) *Engine {
	return &Engine{
		db:        db,
		baseDenom: strings.TrimSpace(baseDenom),
		nowFn:     time.Now,
		emitter:   events.NoopEmitter{},
	}
}

// SetNowFunc overrides the time source. Tests use this for determinism.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now != nil {
		e.nowFn = now
	}
}

// SetEmitter wires the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		e.emitter = emitter
	}
}

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p common.PauseView) {
	e.pauses = p
}

// BaseDenom returns the denom every price is quoted in.
func (e *Engine) BaseDenom() string {
	return e.baseDenom
}

// SetSource validates and registers the pricing strategy for a denom.
// The variant is fixed here; queries never re-validate.
func (e *Engine) SetSource(denom string, src Source) error {
	if err := common.Guard(e.pauses, common.ModuleOracle); err != nil {
		return err
	}
	if err := sdk.ValidateDenom(denom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if denom == e.baseDenom {
		return fmt.Errorf("%w: base denom %q is implicitly priced at one", ErrInvalidSource, denom)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.validateSource(denom, src); err != nil {
		return err
	}
	encoded, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("oracle: encode source: %w", err)
	}
	if err := e.db.Put([]byte(sourceKeyPrefix+denom), encoded); err != nil {
		return err
	}
	e.emitter.Emit(events.PriceUpdated{Denom: denom, Source: string(src.Kind)})
	return nil
}

func (e *Engine) validateSource(denom string, src Source) error {
	switch src.Kind {
	case SourceFixed:
		if src.Fixed == nil || src.Fixed.Price.IsNil() || !src.Fixed.Price.IsPositive() {
			return fmt.Errorf("%w: fixed source requires a positive price", ErrInvalidSource)
		}
	case SourceSpot:
		if src.Spot == nil || src.Spot.Rate.IsNil() || !src.Spot.Rate.IsPositive() {
			return fmt.Errorf("%w: spot source requires a positive rate", ErrInvalidSource)
		}
		route := strings.TrimSpace(src.Spot.RouteDenom)
		if route == "" || route == denom {
			return fmt.Errorf("%w: spot source requires a distinct route denom", ErrInvalidSource)
		}
		if route != e.baseDenom {
			if _, err := e.loadSource(route); err != nil {
				return fmt.Errorf("%w: route denom %q is not priced", ErrInvalidSource, route)
			}
		}
	case SourceTwap:
		if src.Twap == nil || src.Twap.WindowSeconds == 0 {
			return fmt.Errorf("%w: twap source requires a positive window", ErrInvalidSource)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSource, src.Kind)
	}
	return nil
}

// RemoveSource deletes the denom's source and any recorded observations.
func (e *Engine) RemoveSource(denom string) error {
	if err := common.Guard(e.pauses, common.ModuleOracle); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.db.Delete([]byte(sourceKeyPrefix + denom)); err != nil {
		return err
	}
	return e.db.Delete([]byte(obsKeyPrefix + denom))
}

// RecordObservation appends a TWAP sample for the denom and prunes samples
// that fell out of the window. Rejected for non-TWAP sources.
func (e *Engine) RecordObservation(denom string, price sdkmath.LegacyDec) error {
	if err := common.Guard(e.pauses, common.ModuleOracle); err != nil {
		return err
	}
	if price.IsNil() || !price.IsPositive() {
		return fmt.Errorf("%w: observation price must be positive", ErrInvalidSource)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	src, err := e.loadSource(denom)
	if err != nil {
		return err
	}
	if src.Kind != SourceTwap {
		return fmt.Errorf("%w: denom %q does not use a twap source", ErrInvalidSource, denom)
	}

	now := uint64(e.nowFn().Unix())
	obs, err := e.loadObservations(denom)
	if err != nil {
		return err
	}
	obs = append(obs, observation{Price: price, Timestamp: now})
	obs = pruneObservations(obs, now, src.Twap.WindowSeconds)
	encoded, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("oracle: encode observations: %w", err)
	}
	return e.db.Put([]byte(obsKeyPrefix+denom), encoded)
}

// Price resolves the denom's price in base denom.
func (e *Engine) Price(denom string) (sdkmath.LegacyDec, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.price(denom, 0)
}

// PriceMap resolves a batch of denoms in one call. Duplicate denoms are
// resolved once.
func (e *Engine) PriceMap(denoms []string) (map[string]sdkmath.LegacyDec, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]sdkmath.LegacyDec, len(denoms))
	for _, denom := range denoms {
		if _, ok := out[denom]; ok {
			continue
		}
		price, err := e.price(denom, 0)
		if err != nil {
			return nil, err
		}
		out[denom] = price
	}
	return out, nil
}

func (e *Engine) price(denom string, depth int) (sdkmath.LegacyDec, error) {
	if denom == e.baseDenom {
		return sdkmath.LegacyOneDec(), nil
	}
	if depth >= spotDepthLimit {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: route depth exceeded for %q", ErrPriceNotFound, denom)
	}
	src, err := e.loadSource(denom)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	switch src.Kind {
	case SourceFixed:
		return src.Fixed.Price, nil
	case SourceSpot:
		routePrice, err := e.price(src.Spot.RouteDenom, depth+1)
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		return src.Spot.Rate.Mul(routePrice), nil
	case SourceTwap:
		return e.twapPrice(denom, src.Twap)
	default:
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %q", ErrPriceNotFound, denom)
	}
}

// twapPrice computes the time-weighted mean over the window. Each sample
// holds until the next one; the newest sample extends to now.
func (e *Engine) twapPrice(denom string, src *TwapSource) (sdkmath.LegacyDec, error) {
	obs, err := e.loadObservations(denom)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	now := uint64(e.nowFn().Unix())
	obs = pruneObservations(obs, now, src.WindowSeconds)
	if len(obs) == 0 {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: no observations for %q", ErrStalePrice, denom)
	}
	if len(obs) == 1 {
		return obs[0].Price, nil
	}

	weighted := sdkmath.LegacyZeroDec()
	var total uint64
	for i := 0; i < len(obs); i++ {
		end := now
		if i+1 < len(obs) {
			end = obs[i+1].Timestamp
		}
		span := end - obs[i].Timestamp
		if span == 0 {
			continue
		}
		weighted = weighted.Add(obs[i].Price.MulInt64(int64(span)))
		total += span
	}
	if total == 0 {
		return obs[len(obs)-1].Price, nil
	}
	return weighted.QuoInt64(int64(total)), nil
}

// Sources lists every registered denom with its kind, in denom order.
func (e *Engine) Sources() (map[string]SourceKind, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]SourceKind)
	it := e.db.NewIterator([]byte(sourceKeyPrefix))
	defer it.Release()
	for it.Next() {
		var src Source
		if err := json.Unmarshal(it.Value(), &src); err != nil {
			return nil, fmt.Errorf("oracle: decode source %q: %w", it.Key(), err)
		}
		denom := strings.TrimPrefix(string(it.Key()), sourceKeyPrefix)
		out[denom] = src.Kind
	}
	return out, it.Error()
}

func (e *Engine) loadSource(denom string) (Source, error) {
	raw, err := e.db.Get([]byte(sourceKeyPrefix + denom))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return Source{}, fmt.Errorf("%w: %q", ErrPriceNotFound, denom)
	}
	if err != nil {
		return Source{}, err
	}
	var src Source
	if err := json.Unmarshal(raw, &src); err != nil {
		return Source{}, fmt.Errorf("oracle: decode source %q: %w", denom, err)
	}
	return src, nil
}

func (e *Engine) loadObservations(denom string) ([]observation, error) {
	raw, err := e.db.Get([]byte(obsKeyPrefix + denom))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var obs []observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return nil, fmt.Errorf("oracle: decode observations %q: %w", denom, err)
	}
	return obs, nil
}

func pruneObservations(obs []observation, now, window uint64) []observation {
	cutoff := uint64(0)
	if now > window {
		cutoff = now - window
	}
	kept := obs[:0]
	for _, o := range obs {
		if o.Timestamp >= cutoff {
			kept = append(kept, o)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Timestamp < kept[j].Timestamp })
	return kept
}

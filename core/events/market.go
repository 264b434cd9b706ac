package events

import (
	"strconv"

	sdkmath "cosmossdk.io/math"
)

const (
	// TypeMarketAccrued is emitted whenever a money-market index advances.
	TypeMarketAccrued = "market.accrued"
	// TypePriceUpdated is emitted when a price source is set or replaced.
	TypePriceUpdated = "oracle.price.updated"
)

// MarketAccrued captures an interest accrual on a single denom market.
type MarketAccrued struct {
	Denom          string
	BorrowIndex    sdkmath.LegacyDec
	LiquidityIndex sdkmath.LegacyDec
	BorrowRate     sdkmath.LegacyDec
	AccruedAt      uint64
}

// EventType satisfies the Payload interface.
func (MarketAccrued) EventType() string { return TypeMarketAccrued }

// Event converts the structured payload into a broadcastable event.
func (e MarketAccrued) Event() *Event {
	attrs := map[string]string{
		"denom":          e.Denom,
		"borrowIndex":    e.BorrowIndex.String(),
		"liquidityIndex": e.LiquidityIndex.String(),
		"accruedAt":      strconv.FormatUint(e.AccruedAt, 10),
	}
	if !e.BorrowRate.IsNil() {
		attrs["borrowRate"] = e.BorrowRate.String()
	}
	return &Event{Type: TypeMarketAccrued, Attributes: attrs}
}

// PriceUpdated captures the registration of a price source for a denom.
type PriceUpdated struct {
	Denom  string
	Source string
}

// EventType satisfies the Payload interface.
func (PriceUpdated) EventType() string { return TypePriceUpdated }

// Event converts the structured payload into a broadcastable event.
func (e PriceUpdated) Event() *Event {
	return &Event{Type: TypePriceUpdated, Attributes: map[string]string{
		"denom":  e.Denom,
		"source": e.Source,
	}}
}

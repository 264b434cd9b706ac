package events

import (
	"strconv"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"creditcore/crypto"
)

const (
	// TypeAccountCreated is emitted when a credit account token is minted.
	TypeAccountCreated = "credit.account.created"
	// TypeAccountBurned is emitted when an empty credit account is burned.
	TypeAccountBurned = "credit.account.burned"
	// TypeAccountTransferred is emitted when an account token changes hands.
	TypeAccountTransferred = "credit.account.transferred"
	// TypePositionUpdated captures a single pipeline step applied to an account.
	TypePositionUpdated = "credit.position.updated"
	// TypeVaultUnlockRequested is emitted when locked vault shares start cooling down.
	TypeVaultUnlockRequested = "credit.vault.unlockRequested"
	// TypeLiquidated is emitted once per successful liquidation.
	TypeLiquidated = "credit.liquidated"
	// TypeConfigUpdated is emitted when the engine configuration changes.
	TypeConfigUpdated = "credit.config.updated"
	// TypeOwnerProposed is emitted when an ownership transfer is proposed.
	TypeOwnerProposed = "credit.owner.proposed"
	// TypeOwnerAccepted is emitted when a proposed owner accepts.
	TypeOwnerAccepted = "credit.owner.accepted"
)

// AccountCreated captures a freshly minted credit account.
type AccountCreated struct {
	AccountID uint64
	Owner     crypto.Address
	Kind      string
}

// EventType satisfies the Payload interface.
func (AccountCreated) EventType() string { return TypeAccountCreated }

// Event converts the structured payload into a broadcastable event.
func (e AccountCreated) Event() *Event {
	return &Event{Type: TypeAccountCreated, Attributes: map[string]string{
		"accountId": strconv.FormatUint(e.AccountID, 10),
		"owner":     e.Owner.String(),
		"kind":      e.Kind,
	}}
}

// AccountBurned captures the burn of an emptied credit account.
type AccountBurned struct {
	AccountID uint64
	Owner     crypto.Address
}

// EventType satisfies the Payload interface.
func (AccountBurned) EventType() string { return TypeAccountBurned }

// Event converts the structured payload into a broadcastable event.
func (e AccountBurned) Event() *Event {
	return &Event{Type: TypeAccountBurned, Attributes: map[string]string{
		"accountId": strconv.FormatUint(e.AccountID, 10),
		"owner":     e.Owner.String(),
	}}
}

// AccountTransferred captures an account token moving to a new owner.
type AccountTransferred struct {
	AccountID uint64
	From      crypto.Address
	To        crypto.Address
}

// EventType satisfies the Payload interface.
func (AccountTransferred) EventType() string { return TypeAccountTransferred }

// Event converts the structured payload into a broadcastable event.
func (e AccountTransferred) Event() *Event {
	return &Event{Type: TypeAccountTransferred, Attributes: map[string]string{
		"accountId": strconv.FormatUint(e.AccountID, 10),
		"from":      e.From.String(),
		"to":        e.To.String(),
	}}
}

// PositionUpdated captures one executed action inside an account update.
type PositionUpdated struct {
	AccountID    uint64
	Action       string
	Coins        sdk.Coins
	Counterparty string
}

// EventType satisfies the Payload interface.
func (PositionUpdated) EventType() string { return TypePositionUpdated }

// Event converts the structured payload into a broadcastable event.
func (e PositionUpdated) Event() *Event {
	attrs := map[string]string{
		"accountId": strconv.FormatUint(e.AccountID, 10),
		"action":    e.Action,
	}
	if !e.Coins.IsZero() {
		attrs["coins"] = e.Coins.String()
	}
	if e.Counterparty != "" {
		attrs["counterparty"] = e.Counterparty
	}
	return &Event{Type: TypePositionUpdated, Attributes: attrs}
}

// VaultUnlockRequested captures locked shares entering their cooldown.
type VaultUnlockRequested struct {
	AccountID   uint64
	Vault       crypto.Address
	UnlockID    uint64
	Shares      sdkmath.Int
	ReleaseTime uint64
}

// EventType satisfies the Payload interface.
func (VaultUnlockRequested) EventType() string { return TypeVaultUnlockRequested }

// Event converts the structured payload into a broadcastable event.
func (e VaultUnlockRequested) Event() *Event {
	return &Event{Type: TypeVaultUnlockRequested, Attributes: map[string]string{
		"accountId":   strconv.FormatUint(e.AccountID, 10),
		"vault":       e.Vault.String(),
		"unlockId":    strconv.FormatUint(e.UnlockID, 10),
		"shares":      e.Shares.String(),
		"releaseTime": strconv.FormatUint(e.ReleaseTime, 10),
	}}
}

// Liquidated captures the transfer of collateral from an unhealthy account.
type Liquidated struct {
	LiquidatorID uint64
	LiquidateeID uint64
	Repaid       sdk.Coin
	Seized       sdk.Coin
	ProtocolFee  sdk.Coin
	Bonus        sdkmath.LegacyDec
}

// EventType satisfies the Payload interface.
func (Liquidated) EventType() string { return TypeLiquidated }

// Event converts the structured payload into a broadcastable event.
func (e Liquidated) Event() *Event {
	attrs := map[string]string{
		"liquidatorId": strconv.FormatUint(e.LiquidatorID, 10),
		"liquidateeId": strconv.FormatUint(e.LiquidateeID, 10),
		"repaid":       e.Repaid.String(),
		"seized":       e.Seized.String(),
	}
	if !e.ProtocolFee.IsNil() && e.ProtocolFee.IsPositive() {
		attrs["protocolFee"] = e.ProtocolFee.String()
	}
	if !e.Bonus.IsNil() {
		attrs["bonus"] = e.Bonus.String()
	}
	return &Event{Type: TypeLiquidated, Attributes: attrs}
}

// ConfigUpdated signals a change to the engine configuration.
type ConfigUpdated struct {
	Owner crypto.Address
}

// EventType satisfies the Payload interface.
func (ConfigUpdated) EventType() string { return TypeConfigUpdated }

// Event converts the structured payload into a broadcastable event.
func (e ConfigUpdated) Event() *Event {
	return &Event{Type: TypeConfigUpdated, Attributes: map[string]string{
		"owner": e.Owner.String(),
	}}
}

// OwnerProposed signals the first half of an ownership handover.
type OwnerProposed struct {
	Current  crypto.Address
	Proposed crypto.Address
}

// EventType satisfies the Payload interface.
func (OwnerProposed) EventType() string { return TypeOwnerProposed }

// Event converts the structured payload into a broadcastable event.
func (e OwnerProposed) Event() *Event {
	return &Event{Type: TypeOwnerProposed, Attributes: map[string]string{
		"current":  e.Current.String(),
		"proposed": e.Proposed.String(),
	}}
}

// OwnerAccepted signals the completion of an ownership handover.
type OwnerAccepted struct {
	Previous crypto.Address
	Owner    crypto.Address
}

// EventType satisfies the Payload interface.
func (OwnerAccepted) EventType() string { return TypeOwnerAccepted }

// Event converts the structured payload into a broadcastable event.
func (e OwnerAccepted) Event() *Event {
	return &Event{Type: TypeOwnerAccepted, Attributes: map[string]string{
		"previous": e.Previous.String(),
		"owner":    e.Owner.String(),
	}}
}

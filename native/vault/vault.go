package vault

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrVaultNotFound is returned when the referenced vault is not registered.
	ErrVaultNotFound = errors.New("vault: not found")
	// ErrVaultExists is returned when registering an address twice.
	ErrVaultExists = errors.New("vault: already registered")
	// ErrInvalidVault is returned when a vault definition fails validation.
	ErrInvalidVault = errors.New("vault: invalid definition")
	// ErrInvalidAmount is returned for non-positive deposits or redemptions.
	ErrInvalidAmount = errors.New("vault: amount must be positive")
	// ErrInsufficientShares is returned when a position or vault holds fewer
	// shares than requested.
	ErrInsufficientShares = errors.New("vault: insufficient shares")
	// ErrUnlockRequired is returned when shares of a locking vault are
	// redeemed without running the cooldown.
	ErrUnlockRequired = errors.New("vault: unlock required")
	// ErrUnlockNotReady is returned when a cooldown entry has not matured.
	ErrUnlockNotReady = errors.New("vault: unlock not ready")
	// ErrLockupPositionNotFound is returned when no cooldown entry carries
	// the requested id.
	ErrLockupPositionNotFound = errors.New("vault: lockup position not found")
	// ErrNoLockup is returned when a cooldown is requested on a vault
	// without one.
	ErrNoLockup = errors.New("vault: no lockup configured")
)

// PositionKind tags how an account holds shares in one vault. The kind is
// fixed by the vault's lockup configuration at first deposit and never
// changes afterwards.
type PositionKind string

const (
	PositionUnlocked PositionKind = "unlocked"
	PositionLocking  PositionKind = "locking"
)

// UnlockingPosition is one pending cooldown entry of a locking position.
type UnlockingPosition struct {
	ID          uint64      `json:"id"`
	Shares      sdkmath.Int `json:"shares"`
	CooldownEnd uint64      `json:"cooldownEnd"`
}

// Position is an account's share holding in one vault. A position is either
// purely unlocked or purely locking, never both.
type Position struct {
	Kind      PositionKind        `json:"kind"`
	Unlocked  sdkmath.Int         `json:"unlocked"`
	Locked    sdkmath.Int         `json:"locked"`
	Unlocking []UnlockingPosition `json:"unlocking,omitempty"`
}

func NewPosition(kind PositionKind) Position {
	return Position{Kind: kind, Unlocked: sdkmath.ZeroInt(), Locked: sdkmath.ZeroInt()}
}

// Total returns every share the position holds across lockup states.
func (p Position) Total() sdkmath.Int {
	total := p.Unlocked.Add(p.Locked)
	for _, entry := range p.Unlocking {
		total = total.Add(entry.Shares)
	}
	return total
}

// UnlockingShares sums the cooldown entries.
func (p Position) UnlockingShares() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, entry := range p.Unlocking {
		total = total.Add(entry.Shares)
	}
	return total
}

// IsEmpty reports whether the position holds no shares at all.
func (p Position) IsEmpty() bool { return p.Total().IsZero() }

// Credit adds freshly minted shares to the side the kind dictates.
func (p *Position) Credit(shares sdkmath.Int) {
	if p.Kind == PositionLocking {
		p.Locked = p.Locked.Add(shares)
		return
	}
	p.Unlocked = p.Unlocked.Add(shares)
}

// TakeUnlocked removes shares for immediate redemption. Locking positions
// must run the cooldown instead.
func (p *Position) TakeUnlocked(shares sdkmath.Int) error {
	if p.Kind == PositionLocking {
		return ErrUnlockRequired
	}
	if p.Unlocked.LT(shares) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientShares, p.Unlocked, shares)
	}
	p.Unlocked = p.Unlocked.Sub(shares)
	return nil
}

// RequestUnlock moves locked shares into a new cooldown entry. The caller
// assigns the id and the maturity time.
func (p *Position) RequestUnlock(id uint64, shares sdkmath.Int, cooldownEnd uint64) error {
	if p.Kind != PositionLocking {
		return ErrNoLockup
	}
	if !shares.IsPositive() {
		return ErrInvalidAmount
	}
	if p.Locked.LT(shares) {
		return fmt.Errorf("%w: have %s locked, want %s", ErrInsufficientShares, p.Locked, shares)
	}
	p.Locked = p.Locked.Sub(shares)
	p.Unlocking = append(p.Unlocking, UnlockingPosition{ID: id, Shares: shares, CooldownEnd: cooldownEnd})
	return nil
}

// ExitUnlocked removes a matured cooldown entry and returns its shares.
func (p *Position) ExitUnlocked(id uint64, now uint64) (sdkmath.Int, error) {
	for i, entry := range p.Unlocking {
		if entry.ID != id {
			continue
		}
		if now < entry.CooldownEnd {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: matures at %d, now %d", ErrUnlockNotReady, entry.CooldownEnd, now)
		}
		p.Unlocking = append(p.Unlocking[:i], p.Unlocking[i+1:]...)
		return entry.Shares, nil
	}
	return sdkmath.ZeroInt(), ErrLockupPositionNotFound
}

package credit

import (
	"errors"
	"fmt"
	"strings"

	"creditcore/native/health"
	"creditcore/native/oracle"
	"creditcore/native/vault"
)

var (
	// ErrNotConfigured is returned when the engine runs before Initialize.
	ErrNotConfigured = errors.New("credit: engine not initialised")
	// ErrUnauthorized is returned when the caller neither owns the account
	// nor holds the role the operation demands.
	ErrUnauthorized = errors.New("credit: unauthorized")
	// ErrAccountNotFound is returned for unknown account ids.
	ErrAccountNotFound = errors.New("credit: account not found")
	// ErrNotWhitelisted is returned when a denom or vault is not enabled as
	// collateral.
	ErrNotWhitelisted = errors.New("credit: not whitelisted")
	// ErrFundsMismatch is returned when a deposit action has no matching
	// attached funds.
	ErrFundsMismatch = errors.New("credit: attached funds mismatch")
	// ErrNoAmount is returned for actions with a zero or missing amount.
	ErrNoAmount = errors.New("credit: amount must be positive")
	// ErrExtraFundsReceived is returned when attached funds are left over
	// after every action consumed its share.
	ErrExtraFundsReceived = errors.New("credit: extra attached funds")
	// ErrInsufficientDeposit is returned when an action spends more of a
	// denom than the account deposits hold.
	ErrInsufficientDeposit = errors.New("credit: insufficient deposit balance")
	// ErrAboveMaxLTV is the terminal health failure of the default flow.
	ErrAboveMaxLTV = errors.New("credit: account above max loan-to-value")
	// ErrHealthNotImproved is the terminal health failure of liquidations.
	ErrHealthNotImproved = errors.New("credit: health factor did not improve")
	// ErrNotLiquidatable is returned when liquidating a healthy account.
	ErrNotLiquidatable = errors.New("credit: account not liquidatable")
	// ErrSlippageExceeded is returned when an action asks for more slippage
	// than the configuration permits.
	ErrSlippageExceeded = errors.New("credit: slippage above configured maximum")
	// ErrDepositCapExceeded is returned when an inflow would push a denom or
	// vault past its configured cap.
	ErrDepositCapExceeded = errors.New("credit: deposit cap exceeded")
	// ErrBurnNotAllowed is returned when burning an account that still
	// carries debt or too much value.
	ErrBurnNotAllowed = errors.New("credit: account not burnable")
	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("credit: invalid config")
	// ErrInvalidDenom is returned for malformed denominations.
	ErrInvalidDenom = errors.New("credit: invalid denom")
	// ErrInvalidAction is returned for malformed action variants.
	ErrInvalidAction = errors.New("credit: invalid action")
	// ErrOverflow is returned when integer arithmetic leaves the supported
	// range mid-transaction.
	ErrOverflow = errors.New("credit: integer overflow")
	// ErrDecimalRange is returned when decimal arithmetic leaves the
	// 18-digit fixed-point range mid-transaction.
	ErrDecimalRange = errors.New("credit: decimal out of range")
)

// Collaborator errors surface unchanged so callers can match the whole
// closed set against this package.
var (
	ErrHLSMismatch            = health.ErrHLSMismatch
	ErrUnlockNotReady         = vault.ErrUnlockNotReady
	ErrUnlockRequired         = vault.ErrUnlockRequired
	ErrLockupPositionNotFound = vault.ErrLockupPositionNotFound
	ErrInvalidPriceSource     = oracle.ErrInvalidSource
)

// recoverNumeric converts arithmetic panics from the fixed-point stack into
// errors at the transaction boundary, so a poisoned batch rolls back like
// any other failure.
func recoverNumeric(err *error) {
	r := recover()
	if r == nil {
		return
	}
	msg := fmt.Sprint(r)
	if strings.Contains(strings.ToLower(msg), "decimal") {
		*err = fmt.Errorf("%w: %s", ErrDecimalRange, msg)
		return
	}
	*err = fmt.Errorf("%w: %s", ErrOverflow, msg)
}

package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"creditcore/native/bank"
	"creditcore/native/common"
	"creditcore/native/credit"
	"creditcore/native/incentives"
	"creditcore/native/market"
	"creditcore/native/oracle"
	"creditcore/native/params"
	"creditcore/native/swapper"
	"creditcore/native/vault"
	"creditcore/native/zapper"
)

// statusForError translates engine sentinels into HTTP status codes. Unknown
// errors surface as 500.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, credit.ErrAccountNotFound),
		errors.Is(err, market.ErrMarketNotFound),
		errors.Is(err, vault.ErrVaultNotFound),
		errors.Is(err, vault.ErrLockupPositionNotFound),
		errors.Is(err, swapper.ErrRouteNotFound),
		errors.Is(err, zapper.ErrPoolNotFound),
		errors.Is(err, oracle.ErrPriceNotFound):
		return http.StatusNotFound
	case errors.Is(err, credit.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, market.ErrMarketExists),
		errors.Is(err, vault.ErrVaultExists),
		errors.Is(err, zapper.ErrPoolExists),
		errors.Is(err, credit.ErrBurnNotAllowed):
		return http.StatusConflict
	case errors.Is(err, common.ErrModulePaused),
		errors.Is(err, credit.ErrNotConfigured),
		errors.Is(err, market.ErrNotConfigured),
		errors.Is(err, oracle.ErrStalePrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, credit.ErrNotWhitelisted),
		errors.Is(err, credit.ErrFundsMismatch),
		errors.Is(err, credit.ErrNoAmount),
		errors.Is(err, credit.ErrExtraFundsReceived),
		errors.Is(err, credit.ErrInsufficientDeposit),
		errors.Is(err, credit.ErrAboveMaxLTV),
		errors.Is(err, credit.ErrHealthNotImproved),
		errors.Is(err, credit.ErrNotLiquidatable),
		errors.Is(err, credit.ErrSlippageExceeded),
		errors.Is(err, credit.ErrDepositCapExceeded),
		errors.Is(err, credit.ErrInvalidConfig),
		errors.Is(err, credit.ErrInvalidDenom),
		errors.Is(err, credit.ErrInvalidAction),
		errors.Is(err, credit.ErrOverflow),
		errors.Is(err, credit.ErrDecimalRange),
		errors.Is(err, credit.ErrHLSMismatch),
		errors.Is(err, vault.ErrUnlockRequired),
		errors.Is(err, vault.ErrUnlockNotReady),
		errors.Is(err, vault.ErrInvalidVault),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInsufficientShares),
		errors.Is(err, vault.ErrNoLockup),
		errors.Is(err, market.ErrInvalidMarket),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrNoLiquidity),
		errors.Is(err, market.ErrNoCollateral),
		errors.Is(err, market.ErrNoDebt),
		errors.Is(err, oracle.ErrInvalidSource),
		errors.Is(err, params.ErrInvalidParams),
		errors.Is(err, swapper.ErrInvalidRoute),
		errors.Is(err, swapper.ErrInvalidCoin),
		errors.Is(err, swapper.ErrBelowMinReceive),
		errors.Is(err, zapper.ErrInvalidPool),
		errors.Is(err, zapper.ErrInvalidCoins),
		errors.Is(err, zapper.ErrBelowMinOut),
		errors.Is(err, zapper.ErrInsufficientShares),
		errors.Is(err, incentives.ErrInvalidCoins),
		errors.Is(err, bank.ErrInvalidCoins),
		errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		replacer := strings.NewReplacer(
			"\\", "\\\\",
			"\"", "\\\"",
			"\n", "\\n",
			"\r", "\\r",
			"\t", "\\t",
		)
		payload = []byte(fmt.Sprintf("{\"error\":\"%s\"}", replacer.Replace(message)))
	}
	_, _ = w.Write(payload)
}

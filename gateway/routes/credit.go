package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/go-chi/chi/v5"

	"creditcore/crypto"
	"creditcore/native/credit"
	"creditcore/native/health"
	"creditcore/native/market"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// creditRoutes wires HTTP handlers to the in-process credit engine. Mutating
// handlers share writeLock so overlay commits never interleave.
type creditRoutes struct {
	engine    *credit.Engine
	writeLock *sync.Mutex
}

func newCreditRoutes(engine *credit.Engine, writeLock *sync.Mutex) (*creditRoutes, error) {
	if engine == nil {
		return nil, fmt.Errorf("nil credit engine")
	}
	if writeLock == nil {
		writeLock = &sync.Mutex{}
	}
	return &creditRoutes{engine: engine, writeLock: writeLock}, nil
}

func (cr *creditRoutes) mountQueries(r chi.Router) {
	r.Get("/config", cr.getConfig)
	r.Get("/accounts", cr.listAccounts)
	r.Get("/accounts/{id}/positions", cr.getPositions)
	r.Get("/accounts/{id}/health", cr.getHealth)
	r.Get("/accounts/{id}/max-borrow", cr.getMaxBorrow)
	r.Get("/accounts/{id}/max-withdraw", cr.getMaxWithdraw)
	r.Get("/accounts/{id}/max-swap", cr.getMaxSwap)
	r.Get("/owners/{address}/accounts", cr.listOwnerAccounts)
	r.Get("/collateral", cr.listCollateral)
	r.Get("/debts", cr.listDebts)
}

func (cr *creditRoutes) mountTransactions(r chi.Router) {
	r.Post("/accounts", cr.createAccount)
	r.Post("/accounts/{id}/execute", cr.executeActions)
	r.Post("/accounts/{id}/repay", cr.repayFromWallet)
	r.Post("/accounts/{id}/burn", cr.burnAccount)
	r.Post("/accounts/{id}/transfer", cr.transferAccount)
	r.Post("/liquidations", cr.liquidate)
	r.Post("/config", cr.updateConfig)
	r.Post("/owner/propose", cr.proposeOwner)
	r.Post("/owner/accept", cr.acceptOwner)
}

func (cr *creditRoutes) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := cr.engine.Config()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type accountsResponse struct {
	Accounts []credit.AccountSummary `json:"accounts"`
}

func (cr *creditRoutes) listAccounts(w http.ResponseWriter, r *http.Request) {
	startAfter, err := queryUint(r, "start_after")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	accounts, err := cr.engine.Accounts(startAfter, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if accounts == nil {
		accounts = []credit.AccountSummary{}
	}
	writeJSON(w, http.StatusOK, accountsResponse{Accounts: accounts})
}

func (cr *creditRoutes) getPositions(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	positions, err := cr.engine.Positions(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

type healthResponse struct {
	AccountID                 uint64             `json:"accountId"`
	CollateralValue           sdkmath.LegacyDec  `json:"collateralValue"`
	DebtValue                 sdkmath.LegacyDec  `json:"debtValue"`
	MaxLTVAdjCollateral       sdkmath.LegacyDec  `json:"maxLtvAdjustedCollateral"`
	LiqThresholdAdjCollateral sdkmath.LegacyDec  `json:"liqThresholdAdjustedCollateral"`
	MaxLTVHealthFactor        *sdkmath.LegacyDec `json:"maxLtvHealthFactor,omitempty"`
	LiqHealthFactor           *sdkmath.LegacyDec `json:"liqHealthFactor,omitempty"`
	AboveMaxLTV               bool               `json:"aboveMaxLtv"`
	Liquidatable              bool               `json:"liquidatable"`
}

func (cr *creditRoutes) getHealth(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	values, err := cr.engine.Health(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		AccountID:                 id,
		CollateralValue:           values.CollateralValue,
		DebtValue:                 values.DebtValue,
		MaxLTVAdjCollateral:       values.MaxLTVAdjCollateral,
		LiqThresholdAdjCollateral: values.LiqThresholdAdjCollateral,
		MaxLTVHealthFactor:        values.MaxLTVHealthFactor,
		LiqHealthFactor:           values.LiqHealthFactor,
		AboveMaxLTV:               values.AboveMaxLTV,
		Liquidatable:              values.Liquidatable,
	})
}

type amountResponse struct {
	Denom  string      `json:"denom"`
	Amount sdkmath.Int `json:"amount"`
}

func (cr *creditRoutes) getMaxBorrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	denom := strings.TrimSpace(r.URL.Query().Get("denom"))
	if denom == "" {
		writeBadRequest(w, errors.New("denom query parameter required"))
		return
	}
	target := health.BorrowTarget(r.URL.Query().Get("target"))
	if target == "" {
		target = health.BorrowTargetWallet
	}
	switch target {
	case health.BorrowTargetDeposit, health.BorrowTargetWallet:
	default:
		writeBadRequest(w, fmt.Errorf("unknown borrow target %q", target))
		return
	}
	amount, err := cr.engine.MaxBorrow(id, denom, target)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Denom: denom, Amount: amount})
}

func (cr *creditRoutes) getMaxWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	denom := strings.TrimSpace(r.URL.Query().Get("denom"))
	if denom == "" {
		writeBadRequest(w, errors.New("denom query parameter required"))
		return
	}
	amount, err := cr.engine.MaxWithdraw(id, denom)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Denom: denom, Amount: amount})
}

func (cr *creditRoutes) getMaxSwap(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	denomIn := strings.TrimSpace(r.URL.Query().Get("denom_in"))
	denomOut := strings.TrimSpace(r.URL.Query().Get("denom_out"))
	if denomIn == "" || denomOut == "" {
		writeBadRequest(w, errors.New("denom_in and denom_out query parameters required"))
		return
	}
	kind := health.SwapKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = health.SwapKindDefault
	}
	switch kind {
	case health.SwapKindDefault, health.SwapKindMargin:
	default:
		writeBadRequest(w, fmt.Errorf("unknown swap kind %q", kind))
		return
	}
	amount, err := cr.engine.MaxSwap(id, denomIn, denomOut, kind)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Denom: denomIn, Amount: amount})
}

type ownerAccountsResponse struct {
	Owner      string   `json:"owner"`
	AccountIDs []uint64 `json:"accountIds"`
}

func (cr *creditRoutes) listOwnerAccounts(w http.ResponseWriter, r *http.Request) {
	owner, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse owner address: %w", err))
		return
	}
	startAfter, err := queryUint(r, "start_after")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ids, err := cr.engine.AccountsByOwner(owner, startAfter, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, ownerAccountsResponse{Owner: owner.String(), AccountIDs: ids})
}

type collateralResponse struct {
	Records []market.CollateralRecord `json:"records"`
	Next    *market.PositionCursor    `json:"next,omitempty"`
}

func (cr *creditRoutes) listCollateral(w http.ResponseWriter, r *http.Request) {
	cursor, err := queryCursor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	records, next, err := cr.engine.AllCollateral(cursor, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if records == nil {
		records = []market.CollateralRecord{}
	}
	writeJSON(w, http.StatusOK, collateralResponse{Records: records, Next: next})
}

type debtsResponse struct {
	Records []market.DebtRecord    `json:"records"`
	Next    *market.PositionCursor `json:"next,omitempty"`
}

func (cr *creditRoutes) listDebts(w http.ResponseWriter, r *http.Request) {
	cursor, err := queryCursor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	records, next, err := cr.engine.AllDebtShares(cursor, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if records == nil {
		records = []market.DebtRecord{}
	}
	writeJSON(w, http.StatusOK, debtsResponse{Records: records, Next: next})
}

type createAccountRequest struct {
	Sender string `json:"sender"`
	Kind   string `json:"kind,omitempty"`
}

type createAccountResponse struct {
	AccountID uint64 `json:"accountId"`
}

func (cr *creditRoutes) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse sender: %w", err))
		return
	}
	kind := health.AccountKind(req.Kind)
	if kind == "" {
		kind = health.AccountKindDefault
	}
	cr.writeLock.Lock()
	id, err := cr.engine.CreateCreditAccount(sender, kind)
	cr.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createAccountResponse{AccountID: id})
}

type executeRequest struct {
	Sender  string          `json:"sender"`
	Actions []credit.Action `json:"actions"`
	Funds   sdk.Coins       `json:"funds,omitempty"`
}

func (cr *creditRoutes) executeActions(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req executeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse sender: %w", err))
		return
	}
	if len(req.Actions) == 0 {
		writeBadRequest(w, errors.New("actions must not be empty"))
		return
	}
	cr.writeLock.Lock()
	err = cr.engine.UpdateCreditAccount(sender, id, req.Actions, req.Funds)
	cr.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "executed"})
}

type repayRequest struct {
	Sender string   `json:"sender"`
	Coin   sdk.Coin `json:"coin"`
}

func (cr *creditRoutes) repayFromWallet(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req repayRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse sender: %w", err))
		return
	}
	cr.writeLock.Lock()
	err = cr.engine.RepayFromWallet(sender, id, req.Coin)
	cr.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "repaid"})
}

type burnRequest struct {
	Sender string `json:"sender"`
}

func (cr *creditRoutes) burnAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req burnRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse sender: %w", err))
		return
	}
	cr.writeLock.Lock()
	err = cr.engine.BurnAccount(sender, id)
	cr.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "burned"})
}

type transferRequest struct {
	Sender string `json:"sender"`
	To     string `json:"to"`
}

func (cr *creditRoutes) transferAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req transferRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse sender: %w", err))
		return
	}
	to, err := crypto.ParseAddress(req.To)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse recipient: %w", err))
		return
	}
	cr.writeLock.Lock()
	err = cr.engine.TransferAccount(sender, id, to)
	cr.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

type liquidateRequest struct {
	Sender       string    `json:"sender"`
	LiquidatorID uint64    `json:"liquidatorId"`
	LiquidateeID uint64    `json:"liquidateeId"`
	DebtCoin     sdk.Coin  `json:"debtCoin"`
	RequestDenom string    `json:"requestDenom"`
	Funds        sdk.Coins `json:"funds,omitempty"`
}

func (cr *creditRoutes) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse sender: %w", err))
		return
	}
	cr.writeLock.Lock()
	err = cr.engine.Liquidate(sender, req.LiquidatorID, req.LiquidateeID, req.DebtCoin, req.RequestDenom, req.Funds)
	cr.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "liquidated"})
}

type updateConfigRequest struct {
	Sender string              `json:"sender"`
	Update credit.ConfigUpdate `json:"update"`
}

func (cr *creditRoutes) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse sender: %w", err))
		return
	}
	cr.writeLock.Lock()
	err = cr.engine.UpdateConfig(sender, req.Update)
	cr.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type proposeOwnerRequest struct {
	Sender   string `json:"sender"`
	Proposed string `json:"proposed"`
}

func (cr *creditRoutes) proposeOwner(w http.ResponseWriter, r *http.Request) {
	var req proposeOwnerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse sender: %w", err))
		return
	}
	proposed, err := crypto.ParseAddress(req.Proposed)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse proposed owner: %w", err))
		return
	}
	cr.writeLock.Lock()
	err = cr.engine.ProposeOwner(sender, proposed)
	cr.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "proposed"})
}

type acceptOwnerRequest struct {
	Sender string `json:"sender"`
}

func (cr *creditRoutes) acceptOwner(w http.ResponseWriter, r *http.Request) {
	var req acceptOwnerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse sender: %w", err))
		return
	}
	cr.writeLock.Lock()
	err = cr.engine.AcceptOwner(sender)
	cr.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func decodeRequest(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	reader := io.LimitReader(r.Body, requestBodyLimit)
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func pathAccountID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse account id %q: %w", raw, err)
	}
	return id, nil
}

func queryUint(r *http.Request, name string) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	return value, nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("parse limit %q", raw)
	}
	return limit, nil
}

// queryCursor reconstructs the pagination cursor for position scans. Both
// parts must be supplied together.
func queryCursor(r *http.Request) (*market.PositionCursor, error) {
	rawAccount := strings.TrimSpace(r.URL.Query().Get("after_account"))
	rawDenom := strings.TrimSpace(r.URL.Query().Get("after_denom"))
	if rawAccount == "" && rawDenom == "" {
		return nil, nil
	}
	if rawAccount == "" || rawDenom == "" {
		return nil, errors.New("after_account and after_denom must be supplied together")
	}
	accountID, err := strconv.ParseUint(rawAccount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse after_account %q: %w", rawAccount, err)
	}
	return &market.PositionCursor{AccountID: accountID, Denom: rawDenom}, nil
}

package routes

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/go-chi/chi/v5"

	"creditcore/crypto"
	"creditcore/native/bank"
	"creditcore/native/incentives"
	"creditcore/native/market"
	"creditcore/native/oracle"
	"creditcore/native/params"
	"creditcore/native/swapper"
	"creditcore/native/vault"
	"creditcore/native/zapper"
)

// adminRoutes exposes protocol administration: risk parameters, price
// sources, market listing, vault and swap-venue registration, reward
// emission and the treasury faucet. Everything here mutates state directly,
// so the router mounts it behind the admin scope.
type adminRoutes struct {
	params     *params.Store
	prices     *oracle.Engine
	markets    *market.Engine
	vaults     *vault.Engine
	swaps      *swapper.Engine
	pools      *zapper.Engine
	incentives *incentives.Engine
	ledger     *bank.Ledger

	// incentivesAddr is where freshly emitted rewards are minted; claims pay
	// out of this address.
	incentivesAddr crypto.Address
	writeLock      *sync.Mutex
}

func newAdminRoutes(store *params.Store, prices *oracle.Engine, markets *market.Engine, vaults *vault.Engine, swaps *swapper.Engine, pools *zapper.Engine, inc *incentives.Engine, ledger *bank.Ledger, incentivesAddr crypto.Address, writeLock *sync.Mutex) (*adminRoutes, error) {
	if store == nil || prices == nil || markets == nil || vaults == nil || swaps == nil || pools == nil || inc == nil || ledger == nil {
		return nil, fmt.Errorf("nil admin engine")
	}
	if writeLock == nil {
		writeLock = &sync.Mutex{}
	}
	return &adminRoutes{
		params:         store,
		prices:         prices,
		markets:        markets,
		vaults:         vaults,
		swaps:          swaps,
		pools:          pools,
		incentives:     inc,
		ledger:         ledger,
		incentivesAddr: incentivesAddr,
		writeLock:      writeLock,
	}, nil
}

func (ar *adminRoutes) mount(r chi.Router) {
	r.Post("/assets", ar.setAssetParams)
	r.Delete("/assets/{denom}", ar.deleteAssetParams)
	r.Post("/vault-configs", ar.setVaultConfig)
	r.Delete("/vault-configs/{addr}", ar.deleteVaultConfig)
	r.Post("/target-health-factor", ar.setTargetHealthFactor)
	r.Post("/pauses", ar.setPauses)
	r.Post("/oracle/sources", ar.setOracleSource)
	r.Delete("/oracle/sources/{denom}", ar.removeOracleSource)
	r.Post("/oracle/observations", ar.recordObservation)
	r.Post("/markets", ar.createMarket)
	r.Post("/markets/{denom}/model", ar.updateMarketModel)
	r.Post("/vaults", ar.registerVault)
	r.Post("/swap-routes", ar.setSwapRoute)
	r.Post("/pools", ar.createPool)
	r.Post("/incentives/awards", ar.awardIncentives)
	r.Post("/fund", ar.fund)
}

func (ar *adminRoutes) setAssetParams(w http.ResponseWriter, r *http.Request) {
	var req params.AssetParams
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.params.SetAssetParams(req)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (ar *adminRoutes) deleteAssetParams(w http.ResponseWriter, r *http.Request) {
	denom := chi.URLParam(r, "denom")
	ar.writeLock.Lock()
	err := ar.params.DeleteAssetParams(denom)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (ar *adminRoutes) setVaultConfig(w http.ResponseWriter, r *http.Request) {
	var req params.VaultConfig
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.params.SetVaultConfig(req)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (ar *adminRoutes) deleteVaultConfig(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	ar.writeLock.Lock()
	err := ar.params.DeleteVaultConfig(addr)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type targetHealthFactorRequest struct {
	TargetHealthFactor sdkmath.LegacyDec `json:"targetHealthFactor"`
}

func (ar *adminRoutes) setTargetHealthFactor(w http.ResponseWriter, r *http.Request) {
	var req targetHealthFactorRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.params.SetTargetHealthFactor(req.TargetHealthFactor)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (ar *adminRoutes) setPauses(w http.ResponseWriter, r *http.Request) {
	var req params.Pauses
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.params.SetPauses(req)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type setSourceRequest struct {
	Denom  string        `json:"denom"`
	Source oracle.Source `json:"source"`
}

func (ar *adminRoutes) setOracleSource(w http.ResponseWriter, r *http.Request) {
	var req setSourceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.prices.SetSource(req.Denom, req.Source)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

func (ar *adminRoutes) removeOracleSource(w http.ResponseWriter, r *http.Request) {
	denom := chi.URLParam(r, "denom")
	ar.writeLock.Lock()
	err := ar.prices.RemoveSource(denom)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type observationRequest struct {
	Denom string            `json:"denom"`
	Price sdkmath.LegacyDec `json:"price"`
}

func (ar *adminRoutes) recordObservation(w http.ResponseWriter, r *http.Request) {
	var req observationRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.prices.RecordObservation(req.Denom, req.Price)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type createMarketRequest struct {
	Denom         string               `json:"denom"`
	Model         market.InterestModel `json:"model"`
	ReserveFactor sdkmath.LegacyDec    `json:"reserveFactor"`
}

func (ar *adminRoutes) createMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	created, err := ar.markets.CreateMarket(req.Denom, req.Model, req.ReserveFactor)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type updateModelRequest struct {
	Model         market.InterestModel `json:"model"`
	ReserveFactor sdkmath.LegacyDec    `json:"reserveFactor"`
}

func (ar *adminRoutes) updateMarketModel(w http.ResponseWriter, r *http.Request) {
	denom := strings.TrimSpace(chi.URLParam(r, "denom"))
	var req updateModelRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	updated, err := ar.markets.UpdateModel(denom, req.Model, req.ReserveFactor)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type registerVaultRequest struct {
	Addr          string `json:"addr"`
	BaseDenom     string `json:"baseDenom"`
	LockupSeconds uint64 `json:"lockupSeconds,omitempty"`
}

func (ar *adminRoutes) registerVault(w http.ResponseWriter, r *http.Request) {
	var req registerVaultRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.vaults.Register(req.Addr, req.BaseDenom, req.LockupSeconds)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (ar *adminRoutes) setSwapRoute(w http.ResponseWriter, r *http.Request) {
	var req swapper.Route
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.swaps.SetRoute(req)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type createPoolRequest struct {
	LPDenom string `json:"lpDenom"`
	DenomA  string `json:"denomA"`
	DenomB  string `json:"denomB"`
}

func (ar *adminRoutes) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.pools.CreatePool(req.LPDenom, req.DenomA, req.DenomB)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

type awardRequest struct {
	AccountID uint64    `json:"accountId"`
	Coins     sdk.Coins `json:"coins"`
}

// awardIncentives books new rewards for an account and mints the backing
// coins at the incentives module address, so a later claim is always funded.
func (ar *adminRoutes) awardIncentives(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ar.writeLock.Lock()
	err := ar.ledger.Mint(ar.incentivesAddr, req.Coins)
	if err == nil {
		err = ar.incentives.Award(req.AccountID, req.Coins)
	}
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "awarded"})
}

type fundRequest struct {
	Address string    `json:"address"`
	Coins   sdk.Coins `json:"coins"`
}

// fund mints coins to an address: wallets during bootstrap, swap and pool
// module inventory afterwards. The supply tally tracks every mint.
func (ar *adminRoutes) fund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	addr, err := crypto.ParseAddress(req.Address)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("parse address: %w", err))
		return
	}
	ar.writeLock.Lock()
	err = ar.ledger.Mint(addr, req.Coins)
	ar.writeLock.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "funded"})
}

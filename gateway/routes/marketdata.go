package routes

import (
	"fmt"
	"net/http"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"

	"creditcore/native/market"
	"creditcore/native/oracle"
	"creditcore/native/params"
	"creditcore/native/swapper"
	"creditcore/native/vault"
	"creditcore/native/zapper"
)

// marketDataRoutes serves the read-only protocol surface: listed markets,
// oracle prices, risk parameters, registered vaults, swap routes and pools.
type marketDataRoutes struct {
	params  *params.Store
	prices  *oracle.Engine
	markets *market.Engine
	vaults  *vault.Engine
	swaps   *swapper.Engine
	pools   *zapper.Engine
}

func newMarketDataRoutes(store *params.Store, prices *oracle.Engine, markets *market.Engine, vaults *vault.Engine, swaps *swapper.Engine, pools *zapper.Engine) (*marketDataRoutes, error) {
	if store == nil || prices == nil || markets == nil || vaults == nil || swaps == nil || pools == nil {
		return nil, fmt.Errorf("nil market data engine")
	}
	return &marketDataRoutes{
		params:  store,
		prices:  prices,
		markets: markets,
		vaults:  vaults,
		swaps:   swaps,
		pools:   pools,
	}, nil
}

func (md *marketDataRoutes) mount(r chi.Router) {
	r.Get("/markets", md.listMarkets)
	r.Get("/markets/{denom}", md.getMarket)
	r.Get("/prices", md.listPrices)
	r.Get("/prices/{denom}", md.getPrice)
	r.Get("/params/assets", md.listAssetParams)
	r.Get("/params/assets/{denom}", md.getAssetParams)
	r.Get("/params/vault-configs", md.listVaultConfigs)
	r.Get("/params/target-health-factor", md.getTargetHealthFactor)
	r.Get("/params/pauses", md.getPauses)
	r.Get("/vaults", md.listVaults)
	r.Get("/vaults/{addr}", md.getVault)
	r.Get("/swap-routes", md.listSwapRoutes)
	r.Get("/pools", md.listPools)
	r.Get("/pools/{lpDenom}", md.getPool)
}

type marketsResponse struct {
	Markets []*market.Market `json:"markets"`
}

func (md *marketDataRoutes) listMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := md.markets.AllMarkets()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if markets == nil {
		markets = []*market.Market{}
	}
	writeJSON(w, http.StatusOK, marketsResponse{Markets: markets})
}

func (md *marketDataRoutes) getMarket(w http.ResponseWriter, r *http.Request) {
	m, err := md.markets.Market(chi.URLParam(r, "denom"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type pricesResponse struct {
	Base   string                       `json:"base"`
	Prices map[string]sdkmath.LegacyDec `json:"prices"`
}

func (md *marketDataRoutes) listPrices(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("denoms"))
	var denoms []string
	if raw != "" {
		for _, denom := range strings.Split(raw, ",") {
			if denom = strings.TrimSpace(denom); denom != "" {
				denoms = append(denoms, denom)
			}
		}
	} else {
		sources, err := md.prices.Sources()
		if err != nil {
			writeEngineError(w, err)
			return
		}
		for denom := range sources {
			denoms = append(denoms, denom)
		}
	}
	priceMap, err := md.prices.PriceMap(denoms)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pricesResponse{Base: md.prices.BaseDenom(), Prices: priceMap})
}

type priceResponse struct {
	Denom string            `json:"denom"`
	Base  string            `json:"base"`
	Price sdkmath.LegacyDec `json:"price"`
}

func (md *marketDataRoutes) getPrice(w http.ResponseWriter, r *http.Request) {
	denom := chi.URLParam(r, "denom")
	price, err := md.prices.Price(denom)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Denom: denom, Base: md.prices.BaseDenom(), Price: price})
}

type assetParamsResponse struct {
	Assets []params.AssetParams `json:"assets"`
}

func (md *marketDataRoutes) listAssetParams(w http.ResponseWriter, r *http.Request) {
	assets, err := md.params.AllAssetParams()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if assets == nil {
		assets = []params.AssetParams{}
	}
	writeJSON(w, http.StatusOK, assetParamsResponse{Assets: assets})
}

func (md *marketDataRoutes) getAssetParams(w http.ResponseWriter, r *http.Request) {
	denom := chi.URLParam(r, "denom")
	asset, found, err := md.params.AssetParams(denom)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("no parameters for denom %q", denom))
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

type vaultConfigsResponse struct {
	Vaults []params.VaultConfig `json:"vaults"`
}

func (md *marketDataRoutes) listVaultConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := md.params.AllVaultConfigs()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if configs == nil {
		configs = []params.VaultConfig{}
	}
	writeJSON(w, http.StatusOK, vaultConfigsResponse{Vaults: configs})
}

func (md *marketDataRoutes) getTargetHealthFactor(w http.ResponseWriter, r *http.Request) {
	thf, err := md.params.TargetHealthFactor()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, targetHealthFactorRequest{TargetHealthFactor: thf})
}

func (md *marketDataRoutes) getPauses(w http.ResponseWriter, r *http.Request) {
	pauses, err := md.params.Pauses()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pauses)
}

type vaultsResponse struct {
	Vaults []vault.Vault `json:"vaults"`
}

func (md *marketDataRoutes) listVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := md.vaults.AllVaults()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if vaults == nil {
		vaults = []vault.Vault{}
	}
	writeJSON(w, http.StatusOK, vaultsResponse{Vaults: vaults})
}

func (md *marketDataRoutes) getVault(w http.ResponseWriter, r *http.Request) {
	v, err := md.vaults.Vault(chi.URLParam(r, "addr"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type swapRoutesResponse struct {
	Routes []swapper.Route `json:"routes"`
}

func (md *marketDataRoutes) listSwapRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := md.swaps.AllRoutes()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if routes == nil {
		routes = []swapper.Route{}
	}
	writeJSON(w, http.StatusOK, swapRoutesResponse{Routes: routes})
}

type poolsResponse struct {
	Pools []zapper.Pool `json:"pools"`
}

func (md *marketDataRoutes) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := md.pools.AllPools()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if pools == nil {
		pools = []zapper.Pool{}
	}
	writeJSON(w, http.StatusOK, poolsResponse{Pools: pools})
}

func (md *marketDataRoutes) getPool(w http.ResponseWriter, r *http.Request) {
	pool, err := md.pools.Pool(chi.URLParam(r, "lpDenom"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

package routes

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"creditcore/crypto"
	"creditcore/gateway/middleware"
	"creditcore/native/bank"
	"creditcore/native/credit"
	"creditcore/native/incentives"
	"creditcore/native/market"
	"creditcore/native/oracle"
	"creditcore/native/params"
	"creditcore/native/swapper"
	"creditcore/native/vault"
	"creditcore/native/zapper"
)

// Config assembles the gateway router. The engines all share one database;
// New serializes their writes behind a single lock.
type Config struct {
	Engine     *credit.Engine
	Params     *params.Store
	Prices     *oracle.Engine
	Markets    *market.Engine
	Vaults     *vault.Engine
	Swaps      *swapper.Engine
	Pools      *zapper.Engine
	Incentives *incentives.Engine
	Ledger     *bank.Ledger

	// IncentivesAddr is the module address reward emissions are minted to.
	IncentivesAddr crypto.Address

	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Quota         *middleware.QuotaGuard
	Observability *middleware.Observability
	CORS          middleware.CORSConfig

	// WriteScopes protect transaction routes, AdminScopes the parameter and
	// listing routes. Both only apply when an authenticator is configured.
	WriteScopes []string
	AdminScopes []string
}

func New(cfg Config) (http.Handler, error) {
	writeLock := &sync.Mutex{}

	creditBridge, err := newCreditRoutes(cfg.Engine, writeLock)
	if err != nil {
		return nil, fmt.Errorf("configure credit routes: %w", err)
	}
	marketData, err := newMarketDataRoutes(cfg.Params, cfg.Prices, cfg.Markets, cfg.Vaults, cfg.Swaps, cfg.Pools)
	if err != nil {
		return nil, fmt.Errorf("configure market data routes: %w", err)
	}
	adminBridge, err := newAdminRoutes(cfg.Params, cfg.Prices, cfg.Markets, cfg.Vaults, cfg.Swaps, cfg.Pools, cfg.Incentives, cfg.Ledger, cfg.IncentivesAddr, writeLock)
	if err != nil {
		return nil, fmt.Errorf("configure admin routes: %w", err)
	}

	writeScopes := cfg.WriteScopes
	if len(writeScopes) == 0 {
		writeScopes = []string{"credit.write"}
	}
	adminScopes := cfg.AdminScopes
	if len(adminScopes) == 0 {
		adminScopes = []string{"credit.admin"}
	}

	r := chi.NewRouter()
	r.Use(middleware.WithRequestID)
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	obs := cfg.Observability
	instrument := func(route string) func(http.Handler) http.Handler {
		if obs == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return obs.Middleware(route)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(public chi.Router) {
			public.Use(instrument("market_data"))
			marketData.mount(public)
		})

		v1.Route("/credit", func(cr chi.Router) {
			cr.Group(func(queries chi.Router) {
				queries.Use(instrument("credit_query"))
				creditBridge.mountQueries(queries)
			})
			cr.Group(func(txs chi.Router) {
				if cfg.Authenticator != nil {
					txs.Use(cfg.Authenticator.Middleware(writeScopes...))
				}
				if cfg.Quota != nil {
					txs.Use(cfg.Quota.Middleware)
				}
				txs.Use(instrument("credit_tx"))
				creditBridge.mountTransactions(txs)
			})
		})

		v1.Route("/admin", func(admin chi.Router) {
			if cfg.Authenticator != nil {
				admin.Use(cfg.Authenticator.Middleware(adminScopes...))
			}
			if cfg.Quota != nil {
				admin.Use(cfg.Quota.Middleware)
			}
			admin.Use(instrument("admin"))
			adminBridge.mount(admin)
		})
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r, nil
}

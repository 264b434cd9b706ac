package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"creditcore/cmd/internal/passphrase"
	"creditcore/config"
	"creditcore/crypto"
	"creditcore/gateway/middleware"
	"creditcore/gateway/routes"
	"creditcore/native/bank"
	"creditcore/native/credit"
	"creditcore/native/incentives"
	"creditcore/native/market"
	"creditcore/native/oracle"
	"creditcore/native/params"
	"creditcore/native/swapper"
	"creditcore/native/vault"
	"creditcore/native/zapper"
	"creditcore/observability/logging"
	"creditcore/observability/metrics"
	telemetry "creditcore/observability/otel"
	"creditcore/storage"
)

const (
	ownerPassEnv = "CREDIT_OWNER_PASS"
	envVar       = "CREDIT_ENV"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("creditd", env)

	passSource := passphrase.NewSource(ownerPassEnv)

	cfg, err := config.Load(*configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Environment
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	ownerKey, err := loadOwnerKey(cfg, passSource.Get)
	if err != nil {
		panic(fmt.Sprintf("Failed to load owner key: %v", err))
	}
	owner := ownerKey.PubKey().Address()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var telemetryShutdown func(context.Context) error
	if cfg.Telemetry.Enabled {
		telemetryShutdown, err = telemetry.Init(ctx, telemetry.Config{
			ServiceName: "creditd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   "creditd",
		MetricsPrefix: cfg.Gateway.MetricsPrefix,
		LogRequests:   cfg.Gateway.LogRequests,
		Enabled:       true,
	}, logger)

	engine := credit.NewEngine(db)
	engine.SetEmitter(metrics.NewSink(obs.Registry(), nil))

	paramsStore := params.NewStore(params.NewKVState(db))
	prices := oracle.NewEngine(db, cfg.BaseDenom)
	markets := market.NewEngine()
	markets.SetState(market.NewKVState(db))
	vaults := vault.NewEngine(db)
	swaps := swapper.NewEngine(db)
	pools := zapper.NewEngine(db)
	rewards := incentives.NewEngine(db)
	ledger := bank.NewLedger(db)

	if _, err := engine.Config(); err != nil {
		if !errors.Is(err, credit.ErrNotConfigured) {
			logger.Error("Failed to read engine config", slog.Any("error", err))
			os.Exit(1)
		}
		if err := engine.Initialize(credit.DefaultConfig(owner, cfg.BaseDenom)); err != nil {
			logger.Error("Failed to initialise credit engine", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Credit engine initialised",
			slog.String("owner", owner.String()),
			slog.String("base_denom", cfg.BaseDenom))
	}

	engineCfg, err := engine.Config()
	if err != nil {
		logger.Error("Failed to read engine config", slog.Any("error", err))
		os.Exit(1)
	}
	incentivesAddr, err := crypto.ParseAddress(engineCfg.IncentivesAddr)
	if err != nil {
		logger.Error("Invalid incentives address in engine config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := paramsStore.SetPauses(cfg.Global.ModulePauses()); err != nil {
		logger.Error("Failed to apply module pauses", slog.Any("error", err))
		os.Exit(1)
	}

	var authenticator *middleware.Authenticator
	if cfg.Gateway.Auth.Enabled {
		secret := strings.TrimSpace(os.Getenv(cfg.Gateway.Auth.SecretEnv))
		if secret == "" {
			logger.Error("Gateway auth enabled but secret is empty",
				slog.String("secret_env", cfg.Gateway.Auth.SecretEnv))
			os.Exit(1)
		}
		authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: secret,
			Issuer:     cfg.Gateway.Auth.Issuer,
			Audience:   cfg.Gateway.Auth.Audience,
			ScopeClaim: cfg.Gateway.Auth.ScopeClaim,
			ClockSkew:  time.Duration(cfg.Gateway.Auth.ClockSkewSeconds) * time.Second,
		}, logger)
	}

	var limiter *middleware.RateLimiter
	if cfg.Gateway.RateLimit.RatePerSecond > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimit{
			RatePerSecond: cfg.Gateway.RateLimit.RatePerSecond,
			Burst:         cfg.Gateway.RateLimit.Burst,
			DefaultTokens: cfg.Gateway.RateLimit.DefaultTokens,
			Tokens:        cfg.Gateway.RateLimit.Tokens,
		})
	}

	var quota *middleware.QuotaGuard
	if writeQuota := cfg.Global.WriteQuota(); writeQuota.Enabled() {
		quota = middleware.NewQuotaGuard(writeQuota)
	}

	handler, err := routes.New(routes.Config{
		Engine:         engine,
		Params:         paramsStore,
		Prices:         prices,
		Markets:        markets,
		Vaults:         vaults,
		Swaps:          swaps,
		Pools:          pools,
		Incentives:     rewards,
		Ledger:         ledger,
		IncentivesAddr: incentivesAddr,
		Authenticator:  authenticator,
		RateLimiter:    limiter,
		Quota:          quota,
		Observability:  obs,
		CORS:           middleware.CORSConfig{AllowedOrigins: cfg.Gateway.CORSOrigins},
	})
	if err != nil {
		logger.Error("Failed to build gateway router", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	logger.Info("Credit gateway listening",
		slog.String("address", cfg.ListenAddress),
		slog.String("env", env))

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Gateway server terminated", slog.Any("error", err))
		}
	case <-ctx.Done():
		stop()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if telemetryShutdown != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := telemetryShutdown(flushCtx); err != nil {
			logger.Error("Telemetry shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	logger.Info("Credit gateway stopped")
}

func loadOwnerKey(cfg *config.Config, resolvePassphrase func() (string, error)) (*crypto.PrivateKey, error) {
	if cfg.OwnerKeystorePath == "" {
		return nil, fmt.Errorf("owner keystore path not configured")
	}
	if resolvePassphrase == nil {
		return nil, fmt.Errorf("owner keystore passphrase required; set %s or run interactively", ownerPassEnv)
	}
	pass, err := resolvePassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain owner keystore passphrase: %w", err)
	}
	key, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt keystore %s: %w", cfg.OwnerKeystorePath, err)
	}
	return key, nil
}

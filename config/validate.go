package config

import (
	"fmt"
	"strings"
)

func ValidateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if strings.TrimSpace(cfg.BaseDenom) == "" {
		return fmt.Errorf("BaseDenom must not be empty")
	}
	if cfg.Gateway.Auth.Enabled && strings.TrimSpace(cfg.Gateway.Auth.SecretEnv) == "" {
		return fmt.Errorf("gateway.auth: SecretEnv required when auth is enabled")
	}
	if cfg.Gateway.RateLimit.RatePerSecond < 0 {
		return fmt.Errorf("gateway.ratelimit: RatePerSecond < 0")
	}
	if cfg.Gateway.RateLimit.Burst < 0 {
		return fmt.Errorf("gateway.ratelimit: Burst < 0")
	}
	for route, tokens := range cfg.Gateway.RateLimit.Tokens {
		if tokens <= 0 {
			return fmt.Errorf("gateway.ratelimit: token cost for %q must be positive", route)
		}
	}
	quota := cfg.Global.WriteQuota()
	if quota.Enabled() && quota.WindowSeconds == 0 {
		return fmt.Errorf("global.quota: WindowSeconds required when limits are set")
	}
	if cfg.Telemetry.Enabled && !cfg.Telemetry.Metrics && !cfg.Telemetry.Traces {
		return fmt.Errorf("telemetry: enable at least one of Metrics or Traces")
	}
	return nil
}

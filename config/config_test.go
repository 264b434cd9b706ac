package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"creditcore/crypto"
)

const testKeystorePassphrase = "test-passphrase"

func testPassphraseSource() (string, error) {
	return testKeystorePassphrase, nil
}

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path, WithKeystorePassphraseSource(testPassphraseSource))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8440" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.BaseDenom != "uusd" {
		t.Fatalf("unexpected base denom %q", cfg.BaseDenom)
	}
	if cfg.OwnerKeystorePath == "" {
		t.Fatal("expected keystore path to be set")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	if _, err := os.Stat(cfg.OwnerKeystorePath); err != nil {
		t.Fatalf("expected keystore to be written: %v", err)
	}
	if _, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, testKeystorePassphrase); err != nil {
		t.Fatalf("expected keystore to unlock with the supplied passphrase: %v", err)
	}

	// A second load round-trips the persisted file.
	again, err := Load(path, WithKeystorePassphraseSource(testPassphraseSource))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.OwnerKeystorePath != cfg.OwnerKeystorePath {
		t.Fatalf("keystore path changed across loads: %q vs %q", again.OwnerKeystorePath, cfg.OwnerKeystorePath)
	}
}

func TestLoadParsesGatewaySettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "owner.keystore")
	contents := fmt.Sprintf(`ListenAddress = "0.0.0.0:9440"
DataDir = "./data"
Environment = "staging"
BaseDenom = "uusd"
OwnerKeystorePath = "%s"

[gateway]
LogRequests = true
MetricsPrefix = "creditd_staging"
CORSOrigins = ["https://console.example.com"]

[gateway.auth]
Enabled = true
SecretEnv = "CREDIT_GATEWAY_SECRET"
Issuer = "credit-identity"
Audience = "credit-gateway"
ClockSkewSeconds = 90

[gateway.ratelimit]
RatePerSecond = 25.0
Burst = 50
DefaultTokens = 1

[gateway.ratelimit.Tokens]
"/v1/credit/liquidations" = 5

[telemetry]
Enabled = true
Endpoint = "otel-collector:4318"
Insecure = true
Metrics = true
Traces = true
Headers = "authorization=Bearer abc"

[global.pauses]
Market = true

[global.quota]
MaxRequestsPerWindow = 120
WindowSeconds = 60
`, keystorePath)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, WithKeystorePassphraseSource(testPassphraseSource))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9440" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("unexpected environment %q", cfg.Environment)
	}
	if !cfg.Gateway.Auth.Enabled || cfg.Gateway.Auth.SecretEnv != "CREDIT_GATEWAY_SECRET" {
		t.Fatalf("unexpected auth config %+v", cfg.Gateway.Auth)
	}
	if cfg.Gateway.Auth.ScopeClaim != "scope" {
		t.Fatalf("expected scope claim default, got %q", cfg.Gateway.Auth.ScopeClaim)
	}
	if cfg.Gateway.RateLimit.RatePerSecond != 25.0 || cfg.Gateway.RateLimit.Burst != 50 {
		t.Fatalf("unexpected rate limit %+v", cfg.Gateway.RateLimit)
	}
	if got := cfg.Gateway.RateLimit.Tokens["/v1/credit/liquidations"]; got != 5 {
		t.Fatalf("unexpected token cost %d", got)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "otel-collector:4318" {
		t.Fatalf("unexpected telemetry %+v", cfg.Telemetry)
	}
	if !cfg.Global.Pauses.Market || cfg.Global.Pauses.Credit {
		t.Fatalf("unexpected pauses %+v", cfg.Global.Pauses)
	}
	if cfg.Global.Quota.MaxRequestsPerWindow != 120 || cfg.Global.Quota.WindowSeconds != 60 {
		t.Fatalf("unexpected quota %+v", cfg.Global.Quota)
	}
	if _, err := os.Stat(keystorePath); err != nil {
		t.Fatalf("expected keystore to be generated at the configured path: %v", err)
	}
}

func TestLoadRejectsDeprecatedOwnerKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = ":8440"
OwnerKey = "0xdeadbeef"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(path, WithKeystorePassphraseSource(testPassphraseSource))
	if err == nil || !strings.Contains(err.Error(), "deprecated OwnerKey") {
		t.Fatalf("expected deprecated key error, got %v", err)
	}
}

func TestValidateConfigRejections(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	cfg := base()
	cfg.Gateway.Auth.Enabled = true
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected auth without SecretEnv to be rejected")
	}

	cfg = base()
	cfg.Global.Quota.MaxRequestsPerWindow = 10
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected quota without window to be rejected")
	}

	cfg = base()
	cfg.Gateway.RateLimit.Tokens = map[string]int{"/v1/credit/accounts": 0}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected zero token cost to be rejected")
	}

	cfg = base()
	cfg.Telemetry.Enabled = true
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected telemetry without signals to be rejected")
	}

	cfg = base()
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestGlobalConversions(t *testing.T) {
	g := Global{
		Pauses: Pauses{Credit: true, Oracle: true},
		Quota:  Quota{MaxRequestsPerWindow: 30, MaxValuePerWindow: 1000, WindowSeconds: 120},
	}

	pauses := g.ModulePauses()
	if !pauses.Credit || pauses.Market || !pauses.Oracle || pauses.Vault {
		t.Fatalf("unexpected pause mapping %+v", pauses)
	}

	quota := g.WriteQuota()
	if !quota.Enabled() {
		t.Fatal("expected quota to be enabled")
	}
	if quota.MaxRequestsPerWindow != 30 || quota.MaxValuePerWindow != 1000 || quota.WindowSeconds != 120 {
		t.Fatalf("unexpected quota mapping %+v", quota)
	}
}

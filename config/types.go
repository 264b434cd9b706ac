package config

// Auth configures bearer-token verification on the gateway. The HMAC secret
// is never stored in the file; SecretEnv names the environment variable that
// carries it.
type Auth struct {
	Enabled          bool   `toml:"Enabled"`
	SecretEnv        string `toml:"SecretEnv"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ScopeClaim       string `toml:"ScopeClaim"`
	ClockSkewSeconds uint64 `toml:"ClockSkewSeconds"`
}

// RateLimit throttles gateway clients. Tokens maps route prefixes to token
// costs; unmatched routes cost DefaultTokens.
type RateLimit struct {
	RatePerSecond float64        `toml:"RatePerSecond"`
	Burst         int            `toml:"Burst"`
	DefaultTokens int            `toml:"DefaultTokens"`
	Tokens        map[string]int `toml:"Tokens"`
}

// Gateway bundles the HTTP surface knobs.
type Gateway struct {
	Auth          Auth      `toml:"auth"`
	RateLimit     RateLimit `toml:"ratelimit"`
	LogRequests   bool      `toml:"LogRequests"`
	MetricsPrefix string    `toml:"MetricsPrefix"`
	CORSOrigins   []string  `toml:"CORSOrigins"`
}

// Telemetry selects the OTLP exporters wired at startup.
type Telemetry struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
	Headers  string `toml:"Headers"`
}

// Pauses mirrors the on-store module switches applied at startup.
type Pauses struct {
	Credit bool `toml:"Credit"`
	Market bool `toml:"Market"`
	Oracle bool `toml:"Oracle"`
	Vault  bool `toml:"Vault"`
}

// Quota caps per-caller transaction submissions inside one window. Zero
// limits disable the guard.
type Quota struct {
	MaxRequestsPerWindow uint32 `toml:"MaxRequestsPerWindow"`
	MaxValuePerWindow    uint64 `toml:"MaxValuePerWindow"`
	WindowSeconds        uint32 `toml:"WindowSeconds"`
}

// Global bundles the runtime policy applied when the node boots.
type Global struct {
	Pauses Pauses `toml:"pauses"`
	Quota  Quota  `toml:"quota"`
}

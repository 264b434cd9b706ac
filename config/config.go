package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"creditcore/crypto"
)

// Config is the creditd node configuration. Missing files are created with
// defaults on first load, including a fresh owner keystore.
type Config struct {
	ListenAddress     string `toml:"ListenAddress"`
	DataDir           string `toml:"DataDir"`
	Environment       string `toml:"Environment"`
	BaseDenom         string `toml:"BaseDenom"`
	OwnerKeystorePath string `toml:"OwnerKeystorePath"`

	Gateway   Gateway   `toml:"gateway"`
	Telemetry Telemetry `toml:"telemetry"`
	Global    Global    `toml:"global"`
}

type loader struct {
	passphrase func() (string, error)
}

// Option customises Load behaviour.
type Option func(*loader)

// WithKeystorePassphraseSource supplies the passphrase used when creating or
// unlocking the owner keystore. Without it an empty passphrase is assumed.
func WithKeystorePassphraseSource(fn func() (string, error)) Option {
	return func(l *loader) {
		if fn != nil {
			l.passphrase = fn
		}
	}
}

// Load reads the configuration at path, creating a default file and owner
// keystore when none exists yet.
func Load(path string, opts ...Option) (*Config, error) {
	l := &loader{passphrase: func() (string, error) { return "", nil }}
	for _, opt := range opts {
		opt(l)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return l.createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	for _, undecoded := range meta.Undecoded() {
		if len(undecoded) == 1 && undecoded[0] == "OwnerKey" {
			return nil, fmt.Errorf("config file %s uses deprecated OwnerKey field; move the key into a keystore", path)
		}
	}

	applyDefaults(cfg)
	if err := l.ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8440"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./credit-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.BaseDenom) == "" {
		cfg.BaseDenom = "uusd"
	}
	if strings.TrimSpace(cfg.Gateway.Auth.ScopeClaim) == "" {
		cfg.Gateway.Auth.ScopeClaim = "scope"
	}
	if cfg.Gateway.MetricsPrefix == "" {
		cfg.Gateway.MetricsPrefix = "creditd"
	}
}

// ensureKeystore guarantees the owner keystore exists, generating one next to
// the config file when the path is unset.
func (l *loader) ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		passphrase, passErr := l.passphrase()
		if passErr != nil {
			return passErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

func (l *loader) createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	passphrase, err := l.passphrase()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}

	cfg := &Config{
		OwnerKeystorePath: keystorePath,
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}

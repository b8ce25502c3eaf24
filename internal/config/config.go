package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Provider ProviderConfig `mapstructure:"provider"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SyncConfig bounds one sync run. These are process-level constants, not
// per-call overrides, so the safety envelope stays uniform.
type SyncConfig struct {
	PageCap         int           `mapstructure:"page_cap"`
	MaxTransactions int           `mapstructure:"max_transactions"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	ChunkSize       int           `mapstructure:"chunk_size"`
}

// ProviderConfig holds remote ledger provider settings. The client secret is
// read from the named env var; it is never written back to the config file.
type ProviderConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	ClientID  string `mapstructure:"client_id"`
	SecretEnv string `mapstructure:"secret_env"`
	Secret    string `mapstructure:"-"`
}

// Load reads configuration from file and env. Env var overrides use prefix LEDGERSYNC_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "ledgersync", "ledgersync.db"))
	v.SetDefault("sync.page_cap", 50)
	v.SetDefault("sync.max_transactions", 10000)
	v.SetDefault("sync.cooldown", "5m")
	v.SetDefault("sync.chunk_size", 100)
	v.SetDefault("provider.base_url", "https://sandbox.plaid.com")
	v.SetDefault("provider.client_id", "")
	v.SetDefault("provider.secret_env", "LEDGERSYNC_PROVIDER_SECRET")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEDGERSYNC_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledgersync"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if env := strings.TrimSpace(c.Provider.SecretEnv); env != "" {
		c.Provider.Secret = os.Getenv(env)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects malformed configuration. Unlike run-time sync failures,
// these are contract violations and surface as hard errors.
func (c Config) Validate() error {
	if c.Sync.PageCap <= 0 {
		return fmt.Errorf("sync.page_cap must be positive, got %d", c.Sync.PageCap)
	}
	if c.Sync.MaxTransactions <= 0 {
		return fmt.Errorf("sync.max_transactions must be positive, got %d", c.Sync.MaxTransactions)
	}
	if c.Sync.Cooldown < 0 {
		return fmt.Errorf("sync.cooldown must not be negative, got %s", c.Sync.Cooldown)
	}
	if c.Sync.ChunkSize <= 0 {
		return fmt.Errorf("sync.chunk_size must be positive, got %d", c.Sync.ChunkSize)
	}
	return nil
}

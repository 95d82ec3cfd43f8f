// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	GRPCEndpoint   string  `mapstructure:"grpc_endpoint"`
	GRPCToken      string  `mapstructure:"grpc_token"`
	GRPCChunkSize  int     `mapstructure:"grpc_chunk_size"`
	RPCURL         string  `mapstructure:"rpc_url"`
	PostgresURL    string  `mapstructure:"postgres_url"`
	RedisURL       string  `mapstructure:"redis_url"`
	PriceURL       string  `mapstructure:"price_url"`
	BuyThreshold   float64 `mapstructure:"sol_buy_threshold"`
	SellThreshold  float64 `mapstructure:"sol_sell_threshold"`
	BatchSize      int     `mapstructure:"batch_size"`
	BatchTimeoutMs int     `mapstructure:"batch_timeout_ms"`
	Workers        int     `mapstructure:"workers"`
	MetadataTTLh   int     `mapstructure:"metadata_ttl_hours"`
	WalletTTLm     int     `mapstructure:"wallet_ttl_minutes"`
	DebugLogging   bool    `mapstructure:"debug_logging"`
}

const (
	DefaultGRPCChunkSize  = 1000
	DefaultBuyThreshold   = 0.01
	DefaultSellThreshold  = 0.001
	DefaultBatchSize      = 50
	DefaultBatchTimeoutMs = 200
	DefaultWorkers        = 10
	DefaultMetadataTTLh   = 24
	DefaultWalletTTLm     = 5
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"grpc_chunk_size":    DefaultGRPCChunkSize,
		"sol_buy_threshold":  DefaultBuyThreshold,
		"sol_sell_threshold": DefaultSellThreshold,
		"batch_size":         DefaultBatchSize,
		"batch_timeout_ms":   DefaultBatchTimeoutMs,
		"workers":            DefaultWorkers,
		"metadata_ttl_hours": DefaultMetadataTTLh,
		"wallet_ttl_minutes": DefaultWalletTTLm,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	bindEnvironmentVariables(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

// bindEnvironmentVariables maps the conventional env names onto config keys.
func bindEnvironmentVariables(v *viper.Viper) {
	bindings := map[string]string{
		"grpc_endpoint":      "GRPC_ENDPOINT",
		"grpc_token":         "GRPC_TOKEN",
		"grpc_chunk_size":    "GRPC_CHUNK_SIZE",
		"rpc_url":            "RPC_URL",
		"postgres_url":       "POSTGRES_URL",
		"redis_url":          "REDIS_URL",
		"price_url":          "PRICE_URL",
		"sol_buy_threshold":  "SOL_BUY_THRESHOLD",
		"sol_sell_threshold": "SOL_SELL_THRESHOLD",
		"batch_size":         "BATCH_SIZE",
		"batch_timeout_ms":   "BATCH_TIMEOUT_MS",
		"workers":            "WORKERS",
		"metadata_ttl_hours": "METADATA_TTL_HOURS",
		"wallet_ttl_minutes": "WALLET_TTL_MINUTES",
		"debug_logging":      "DEBUG_LOGGING",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.GRPCEndpoint == "" {
		return errors.New("missing grpc_endpoint in configuration")
	}
	if cfg.RPCURL == "" {
		return errors.New("missing rpc_url in configuration")
	}
	if err := validateURL(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if cfg.PostgresURL == "" {
		return errors.New("missing postgres_url in configuration")
	}
	if cfg.RedisURL == "" {
		return errors.New("missing redis_url in configuration")
	}
	if cfg.PriceURL != "" {
		if err := validateURL(cfg.PriceURL, "http"); err != nil {
			return errors.New("invalid price URL protocol")
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.GRPCChunkSize <= 0 {
		return errors.New("invalid grpc_chunk_size")
	}
	if cfg.BuyThreshold <= 0 {
		return errors.New("invalid sol_buy_threshold")
	}
	if cfg.SellThreshold <= 0 {
		return errors.New("invalid sol_sell_threshold")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("invalid batch_size")
	}
	if cfg.BatchTimeoutMs <= 0 {
		return errors.New("invalid batch_timeout_ms")
	}
	if cfg.Workers <= 0 {
		return errors.New("invalid workers count")
	}
	if cfg.MetadataTTLh <= 0 {
		return errors.New("invalid metadata_ttl_hours")
	}
	if cfg.WalletTTLm <= 0 {
		return errors.New("invalid wallet_ttl_minutes")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// BatchTimeout returns the batch flush timeout as a duration.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutMs) * time.Millisecond
}

// MetadataTTL returns the metadata cache TTL as a duration.
func (c *Config) MetadataTTL() time.Duration {
	return time.Duration(c.MetadataTTLh) * time.Hour
}

// WalletTTL returns the wallet record cache TTL as a duration.
func (c *Config) WalletTTL() time.Duration {
	return time.Duration(c.WalletTTLm) * time.Minute
}

// Package config loads the ledger configuration from file, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"solana-trade-ledger/internal/cache"
	"solana-trade-ledger/internal/ingestion"
	"solana-trade-ledger/internal/logging"
	"solana-trade-ledger/internal/pricing"
	"solana-trade-ledger/internal/resilience"
)

// EnvPrefix prefixes every environment override, e.g. TRADELEDGER_RPC_HTTP_ENDPOINT.
const EnvPrefix = "TRADELEDGER"

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Trade store backends.
const (
	TradesPostgres   = "postgres"
	TradesClickHouse = "clickhouse"
)

// Config materialises application configuration.
type Config struct {
	RPC        RPCConfig        `mapstructure:"rpc"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Harvester  HarvesterConfig  `mapstructure:"harvester"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    logging.Config   `mapstructure:"logging"`
}

// RPCConfig covers Solana node access.
type RPCConfig struct {
	HTTPEndpoint string        `mapstructure:"http_endpoint" validate:"required,url"`
	WSEndpoint   string        `mapstructure:"ws_endpoint" validate:"omitempty,url"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Commitment   string        `mapstructure:"commitment" validate:"oneof=processed confirmed finalized"`
	// Programs overrides the token programs queried during full discovery.
	Programs []string `mapstructure:"programs"`
}

// RetryConfig mirrors resilience.Config.
type RetryConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts" validate:"gte=1"`
	NetworkBaseDelay time.Duration `mapstructure:"network_base_delay" validate:"gte=0"`
	BaseDelay        time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay         time.Duration `mapstructure:"max_delay" validate:"gte=0"`
	MaxJitter        time.Duration `mapstructure:"max_jitter" validate:"gte=0"`
}

// BreakerConfig mirrors resilience.BreakerConfig.
type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures" validate:"gte=1"`
	Cooldown    time.Duration `mapstructure:"cooldown" validate:"gt=0"`
}

// ResilienceConfig holds the retry policy and one breaker per endpoint.
type ResilienceConfig struct {
	Retry        RetryConfig   `mapstructure:"retry"`
	RPCBreaker   BreakerConfig `mapstructure:"rpc_breaker"`
	PriceBreaker BreakerConfig `mapstructure:"price_breaker"`
	TokenBreaker BreakerConfig `mapstructure:"token_breaker"`

	// MetadataBreaker guards on-chain metadata lookups, kept apart from the
	// scan's RPC circuit.
	MetadataBreaker BreakerConfig `mapstructure:"metadata_breaker"`
}

// HarvesterConfig configures signature paging.
type HarvesterConfig struct {
	RootPageSize   int           `mapstructure:"root_page_size" validate:"gte=1,lte=1000"`
	AuxPageSize    int           `mapstructure:"aux_page_size" validate:"gte=1,lte=1000"`
	PageDelay      time.Duration `mapstructure:"page_delay" validate:"gte=0"`
	MinNativeDelta float64       `mapstructure:"min_native_delta" validate:"gt=0"`
}

// ClassifierConfig holds the trade thresholds.
type ClassifierConfig struct {
	Dust            float64 `mapstructure:"dust" validate:"gt=0"`
	MinNativeChange float64 `mapstructure:"min_native_change" validate:"gt=0"`
}

// PricingConfig covers the price history and token metadata endpoints.
type PricingConfig struct {
	Native  pricing.NativePriceConfig `mapstructure:"native"`
	Token   pricing.TokenInfoConfig   `mapstructure:"token"`
	Timeout time.Duration             `mapstructure:"timeout" validate:"gt=0"`
	// OnChainMetadata enables the Metaplex fallback for unknown mints.
	OnChainMetadata bool `mapstructure:"onchain_metadata"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend string            `mapstructure:"backend" validate:"oneof=memory redis"`
	Redis   cache.RedisConfig `mapstructure:"redis"`
}

// StorageConfig selects where watermarks and trades are persisted.
type StorageConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
	// Trades selects the trade store; watermarks always live in Postgres.
	Trades string `mapstructure:"trades" validate:"oneof=postgres clickhouse"`
}

// WatchConfig governs the watch command.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds configuration from .env, file, environment, and defaults.
// A missing .env or config file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v, path != ""); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfig(v *viper.Viper, explicit bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && !explicit {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	retry := resilience.DefaultConfig()
	breaker := resilience.DefaultBreakerConfig()
	harvester := ingestion.DefaultHarvesterConfig()
	native := pricing.DefaultNativePriceConfig()

	v.SetDefault("rpc.http_endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.ws_endpoint", "wss://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.timeout", "30s")
	v.SetDefault("rpc.commitment", "confirmed")
	v.SetDefault("rpc.programs", []string{})

	v.SetDefault("resilience.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("resilience.retry.network_base_delay", retry.NetworkBaseDelay)
	v.SetDefault("resilience.retry.base_delay", retry.BaseDelay)
	v.SetDefault("resilience.retry.max_delay", retry.MaxDelay)
	v.SetDefault("resilience.retry.max_jitter", retry.MaxJitter)
	for _, name := range []string{"rpc_breaker", "price_breaker", "token_breaker", "metadata_breaker"} {
		v.SetDefault("resilience."+name+".max_failures", breaker.MaxFailures)
		v.SetDefault("resilience."+name+".cooldown", breaker.Cooldown)
	}

	v.SetDefault("harvester.root_page_size", harvester.RootPageSize)
	v.SetDefault("harvester.aux_page_size", harvester.AuxPageSize)
	v.SetDefault("harvester.page_delay", harvester.PageDelay)
	v.SetDefault("harvester.min_native_delta", harvester.MinNativeDelta.InexactFloat64())

	v.SetDefault("classifier.dust", 0.001)
	v.SetDefault("classifier.min_native_change", 0.0001)

	v.SetDefault("pricing.native.base_url", native.BaseURL)
	v.SetDefault("pricing.native.coin_id", native.CoinID)
	v.SetDefault("pricing.native.vs_currency", native.VsCurrency)
	v.SetDefault("pricing.native.default_price_usd", native.DefaultPriceUSD)
	v.SetDefault("pricing.token.base_url", pricing.DefaultTokenInfoConfig().BaseURL)
	v.SetDefault("pricing.timeout", pricing.DefaultTimeout)
	v.SetDefault("pricing.onchain_metadata", true)

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "tradeledger:")
	v.SetDefault("cache.redis.use_tls", false)

	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.trades", TradesPostgres)

	v.SetDefault("watch.debounce", "2s")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var validate = validator.New()

// Validate checks field ranges and the cross-section rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.Redis.Address == "" {
		return errors.New("cache.redis.address is required for the redis cache backend")
	}
	if c.Storage.Trades == TradesClickHouse && c.Storage.ClickHouseDSN == "" {
		return errors.New("storage.clickhouse_dsn is required when storage.trades is clickhouse")
	}
	return nil
}

// ExecutorConfig converts the retry section.
func (c *Config) ExecutorConfig() resilience.Config {
	r := c.Resilience.Retry
	return resilience.Config{
		MaxAttempts:      r.MaxAttempts,
		NetworkBaseDelay: r.NetworkBaseDelay,
		BaseDelay:        r.BaseDelay,
		MaxDelay:         r.MaxDelay,
		MaxJitter:        r.MaxJitter,
	}
}

// Breaker converts one breaker section.
func (b BreakerConfig) Breaker() resilience.BreakerConfig {
	return resilience.BreakerConfig{MaxFailures: b.MaxFailures, Cooldown: b.Cooldown}
}

// HarvesterSettings converts the harvester section.
func (c *Config) HarvesterSettings() ingestion.HarvesterConfig {
	h := c.Harvester
	return ingestion.HarvesterConfig{
		RootPageSize:   h.RootPageSize,
		AuxPageSize:    h.AuxPageSize,
		PageDelay:      h.PageDelay,
		MinNativeDelta: decimal.NewFromFloat(h.MinNativeDelta),
	}
}

package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderConfig holds the transport settings of one upstream data provider.
type ProviderConfig struct {
	APIKey     string            `mapstructure:"api_key"`
	BaseURL    string            `mapstructure:"base_url"`
	RateLimit  float64           `mapstructure:"rate_limit"`
	Burst      int               `mapstructure:"burst"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	MaxRetries int               `mapstructure:"max_retries"`
	PageSize   int               `mapstructure:"page_size"`
	URLs       map[string]string `mapstructure:"urls"`
}

type TelegramConfig struct {
	BotToken       string  `mapstructure:"bot_token"`
	OpsChatID      int64   `mapstructure:"ops_chat_id"`
	EnableCommands bool    `mapstructure:"enable_commands"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	Burst          int     `mapstructure:"burst"`
}

// Config defines the global configuration structure
type Config struct {
	App struct {
		Port        string `mapstructure:"port"`
		Environment string `mapstructure:"environment"`
		OwnerHeader string `mapstructure:"owner_header"`
	} `mapstructure:"app"`

	Logging struct {
		Level    string `mapstructure:"level"`
		Telegram bool   `mapstructure:"telegram"`
	} `mapstructure:"logging"`

	Database struct {
		URL             string        `mapstructure:"url"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	} `mapstructure:"database"`

	Monitor struct {
		Secret          string        `mapstructure:"secret"`
		Concurrency     int           `mapstructure:"concurrency"`
		JobTimeout      time.Duration `mapstructure:"job_timeout"`
		ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
		DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	} `mapstructure:"monitor"`

	Providers struct {
		Order     map[string][]string `mapstructure:"order"`
		Alchemy   ProviderConfig      `mapstructure:"alchemy"`
		Moralis   ProviderConfig      `mapstructure:"moralis"`
		Etherscan ProviderConfig      `mapstructure:"etherscan"`
		Helius    ProviderConfig      `mapstructure:"helius"`
		SolanaRPC ProviderConfig      `mapstructure:"solana_rpc"`
	} `mapstructure:"providers"`

	Classification struct {
		WhaleUSD          float64             `mapstructure:"whale_usd"`
		ExchangeAddresses map[string][]string `mapstructure:"exchange_addresses"`
	} `mapstructure:"classification"`

	Pricing struct {
		CoinGeckoURL string        `mapstructure:"coingecko_url"`
		BinanceURL   string        `mapstructure:"binance_url"`
		CacheTTL     time.Duration `mapstructure:"cache_ttl"`
		RedisURL     string        `mapstructure:"redis_url"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"pricing"`

	Dispatch struct {
		WhaleFeedChatIDs []int64       `mapstructure:"whale_feed_chat_ids"`
		WebhookTimeout   time.Duration `mapstructure:"webhook_timeout"`
	} `mapstructure:"dispatch"`

	Tracing struct {
		Endpoint    string `mapstructure:"endpoint"`
		Insecure    bool   `mapstructure:"insecure"`
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"tracing"`

	Telegram TelegramConfig `mapstructure:"telegram"`
}

var knownProviders = map[string]bool{
	"alchemy":    true,
	"moralis":    true,
	"etherscan":  true,
	"helius":     true,
	"solana_rpc": true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.owner_header", "X-Owner-ID")
	v.SetDefault("logging.level", "info")

	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("monitor.concurrency", 5)
	v.SetDefault("monitor.job_timeout", "4m")
	v.SetDefault("monitor.provider_timeout", "15s")
	v.SetDefault("monitor.dispatch_timeout", "20s")

	v.SetDefault("providers.order", map[string][]string{
		"ethereum":  {"alchemy", "moralis", "etherscan"},
		"base":      {"alchemy", "moralis", "etherscan"},
		"bsc":       {"moralis", "etherscan", "alchemy"},
		"polygon":   {"alchemy", "moralis", "etherscan"},
		"arbitrum":  {"alchemy", "moralis", "etherscan"},
		"optimism":  {"alchemy", "moralis", "etherscan"},
		"avalanche": {"moralis", "alchemy", "etherscan"},
		"solana":    {"helius", "solana_rpc"},
	})
	v.SetDefault("providers.alchemy.rate_limit", 10.0)
	v.SetDefault("providers.alchemy.burst", 5)
	v.SetDefault("providers.alchemy.max_retries", 2)
	v.SetDefault("providers.alchemy.page_size", 50)
	v.SetDefault("providers.moralis.base_url", "https://deep-index.moralis.io/api/v2.2")
	v.SetDefault("providers.moralis.rate_limit", 5.0)
	v.SetDefault("providers.moralis.burst", 3)
	v.SetDefault("providers.moralis.max_retries", 2)
	v.SetDefault("providers.moralis.page_size", 50)
	v.SetDefault("providers.etherscan.rate_limit", 4.5)
	v.SetDefault("providers.etherscan.burst", 1)
	v.SetDefault("providers.etherscan.max_retries", 2)
	v.SetDefault("providers.etherscan.page_size", 50)
	v.SetDefault("providers.helius.base_url", "https://api.helius.xyz/v0")
	v.SetDefault("providers.helius.rate_limit", 8.0)
	v.SetDefault("providers.helius.burst", 4)
	v.SetDefault("providers.helius.max_retries", 2)
	v.SetDefault("providers.helius.page_size", 50)
	v.SetDefault("providers.solana_rpc.rate_limit", 8.0)
	v.SetDefault("providers.solana_rpc.burst", 4)
	v.SetDefault("providers.solana_rpc.page_size", 20)

	v.SetDefault("classification.whale_usd", 1000000.0)

	v.SetDefault("pricing.coingecko_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricing.binance_url", "https://api.binance.com/api/v3")
	v.SetDefault("pricing.cache_ttl", "2m")
	v.SetDefault("pricing.timeout", "5s")

	v.SetDefault("dispatch.webhook_timeout", "10s")

	v.SetDefault("tracing.service_name", "wallet-watch")
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("telegram.enable_commands", true)
	v.SetDefault("telegram.rate_limit", 25.0)
	v.SetDefault("telegram.burst", 5)
}

// LoadConfig loads configuration from the specified file path and merges it with environment variables
func LoadConfig(path string) (*Config, error) {
	log.Printf("Starting to load configuration from file: %s", path)

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets and deployment knobs keep their conventional, unprefixed names.
	v.BindEnv("app.port", "PORT")
	v.BindEnv("app.environment", "APP_ENV")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("monitor.secret", "MONITOR_SECRET")
	v.BindEnv("providers.alchemy.api_key", "ALCHEMY_API_KEY")
	v.BindEnv("providers.moralis.api_key", "MORALIS_API_KEY")
	v.BindEnv("providers.etherscan.api_key", "ETHERSCAN_API_KEY")
	v.BindEnv("providers.helius.api_key", "HELIUS_API_KEY")
	v.BindEnv("providers.solana_rpc.base_url", "HELIUS_RPC_URL")
	v.BindEnv("pricing.redis_url", "REDIS_URL")
	v.BindEnv("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.ops_chat_id", "TELEGRAM_OPS_CHAT_ID")

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file %s, using defaults and environment: %v", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Printf("Error unmarshalling configuration: %v", err)
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Loaded configuration (env=%s, concurrency=%d, job_timeout=%s)",
		cfg.App.Environment, cfg.Monitor.Concurrency, cfg.Monitor.JobTimeout)
	return &cfg, nil
}

// Validate rejects configurations the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Monitor.Concurrency <= 0 {
		return fmt.Errorf("monitor.concurrency must be positive, got %d", c.Monitor.Concurrency)
	}
	if c.Monitor.ProviderTimeout <= 0 {
		return fmt.Errorf("monitor.provider_timeout must be positive")
	}
	if c.Monitor.JobTimeout <= 0 {
		return fmt.Errorf("monitor.job_timeout must be positive")
	}
	if c.Classification.WhaleUSD < 0 {
		return fmt.Errorf("classification.whale_usd must not be negative")
	}
	for chain, names := range c.Providers.Order {
		for _, name := range names {
			if !knownProviders[name] {
				return fmt.Errorf("providers.order.%s: unknown provider %q", chain, name)
			}
		}
	}
	return nil
}

// ProviderTimeout returns the per-call deadline for a provider, falling back to
// the monitor-wide default.
func (c *Config) ProviderTimeout(name string) time.Duration {
	var pc ProviderConfig
	switch name {
	case "alchemy":
		pc = c.Providers.Alchemy
	case "moralis":
		pc = c.Providers.Moralis
	case "etherscan":
		pc = c.Providers.Etherscan
	case "helius":
		pc = c.Providers.Helius
	case "solana_rpc":
		pc = c.Providers.SolanaRPC
	}
	if pc.Timeout > 0 {
		return pc.Timeout
	}
	return c.Monitor.ProviderTimeout
}

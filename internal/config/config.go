// Package config loads service configuration and bootstraps logging.
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Governor  GovernorConfig  `yaml:"governor" mapstructure:"governor"`
	Reasoning ReasoningConfig `yaml:"reasoning" mapstructure:"reasoning"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	ShutdownSecs       int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the listing and audit store.
type StoreConfig struct {
	Driver           string `yaml:"driver" mapstructure:"driver"` // postgres | sqlite
	DatabaseURL      string `yaml:"database_url" mapstructure:"database_url"`
	AuditTimeoutSecs int    `yaml:"audit_timeout_secs" mapstructure:"audit_timeout_secs"`
}

// RedisConfig configures the shared bucket store.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// GovernorConfig configures the fixed-window request governor.
type GovernorConfig struct {
	Capacity   int64  `yaml:"capacity" mapstructure:"capacity"`
	WindowSecs int    `yaml:"window_secs" mapstructure:"window_secs"`
	Backend    string `yaml:"backend" mapstructure:"backend"` // memory | redis
}

// ReasoningConfig selects and guards the external reasoning service.
type ReasoningConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"` // anthropic | openai | gemini
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	MaxTokens        int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds settings for any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ScorerConfig configures the heuristic scorer.
type ScorerConfig struct {
	SigningKey string `yaml:"signing_key" mapstructure:"signing_key"`
	// ConfigFile is an optional YAML file of heuristic weight and lexicon
	// overrides.
	ConfigFile string `yaml:"config_file" mapstructure:"config_file"`
}

// ExtractConfig configures free-text field extraction.
type ExtractConfig struct {
	BaseCurrency string `yaml:"base_currency" mapstructure:"base_currency"`
	AIFallback   bool   `yaml:"ai_fallback" mapstructure:"ai_fallback"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LISTING_TRUST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so every
	// key gets a default, secrets included.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("server.shutdown_secs", 15)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "listing-trust.db")
	v.SetDefault("store.audit_timeout_secs", 5)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.key_prefix", "listing-trust:ratelimit:")
	v.SetDefault("governor.capacity", 10)
	v.SetDefault("governor.window_secs", 600)
	v.SetDefault("governor.backend", "memory")
	v.SetDefault("reasoning.provider", "anthropic")
	v.SetDefault("reasoning.timeout_secs", 8)
	v.SetDefault("reasoning.rate_per_sec", 5.0)
	v.SetDefault("reasoning.burst", 10)
	v.SetDefault("reasoning.breaker_threshold", 5)
	v.SetDefault("reasoning.breaker_reset_secs", 30)
	v.SetDefault("reasoning.max_tokens", 1024)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("scorer.signing_key", "")
	v.SetDefault("scorer.config_file", "")
	v.SetDefault("extract.base_currency", "EUR")
	v.SetDefault("extract.ai_fallback", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Governor.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return eris.New("config: governor backend redis requires redis.addr")
		}
	default:
		return eris.Errorf("config: unknown governor backend %q", c.Governor.Backend)
	}
	switch c.Reasoning.Provider {
	case "anthropic", "openai", "gemini":
	default:
		return eris.Errorf("config: unknown reasoning provider %q", c.Reasoning.Provider)
	}
	if c.Governor.Capacity <= 0 {
		return eris.New("config: governor.capacity must be positive")
	}
	if c.Governor.WindowSecs <= 0 {
		return eris.New("config: governor.window_secs must be positive")
	}
	if len(c.Extract.BaseCurrency) != 3 {
		return eris.Errorf("config: base currency %q is not an ISO code", c.Extract.BaseCurrency)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Package config loads broker configuration from the environment.
// Priority: ENV vars > .env file > defaults.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config holds all broker configuration.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Server basics
	Addr string `env:"CS_ADDR" envDefault:":3010"`

	// Pricing mode. Trial mode forces price-per-alert to zero and
	// disables the charge side effect.
	TrialMode     bool   `env:"CS_TRIAL_MODE" envDefault:"true"`
	PricePerAlert string `env:"CS_PRICE_PER_ALERT" envDefault:"0.01"` // USDC
	QueryPrice    string `env:"CS_QUERY_PRICE" envDefault:"0.001"`    // USDC per charged historical query

	// Alert store
	StoreMaxAlerts int           `env:"CS_STORE_MAX_ALERTS" envDefault:"10000"`
	DedupeHashTTL  time.Duration `env:"CS_DEDUPE_HASH_TTL" envDefault:"168h"` // 7 days

	// Distribution fabric
	StreamBufferFrames   int           `env:"CS_STREAM_BUFFER_FRAMES" envDefault:"64"`
	BackpressureInterval time.Duration `env:"CS_BACKPRESSURE_INTERVAL" envDefault:"5s"`
	MaxStreams           int           `env:"CS_MAX_STREAMS" envDefault:"5000"`

	// Ingestion
	FetchTimeout  time.Duration `env:"CS_FETCH_TIMEOUT" envDefault:"10s"`
	UserAgent     string        `env:"CS_USER_AGENT" envDefault:"chainsignal-bot/1.0"`
	MockSources   bool          `env:"CS_MOCK_SOURCES" envDefault:"false"`
	SourcesConfig string        `env:"CS_SOURCES" envDefault:""` // comma list of adapter keys to enable; empty = all

	// Source feed endpoints
	RegulatoryFeedURL string `env:"CS_FEED_REGULATORY_URL" envDefault:"https://feeds.chainsignal.dev/regulatory"`
	NewsFeedURL       string `env:"CS_FEED_NEWS_URL" envDefault:"https://feeds.chainsignal.dev/news"`
	YieldsFeedURL     string `env:"CS_FEED_YIELDS_URL" envDefault:"https://feeds.chainsignal.dev/yields"`
	SolanaBlogURL     string `env:"CS_FEED_SOLANA_BLOG_URL" envDefault:"https://feeds.chainsignal.dev/blogs/solana"`
	EthereumBlogURL   string `env:"CS_FEED_ETHEREUM_BLOG_URL" envDefault:"https://feeds.chainsignal.dev/blogs/ethereum"`

	// Per-source cadences (regulatory 10-15m, market/news 5m, chain blogs 10m)
	CadenceRegulatory time.Duration `env:"CS_CADENCE_REGULATORY" envDefault:"10m"`
	CadenceNews       time.Duration `env:"CS_CADENCE_NEWS" envDefault:"5m"`
	CadenceYields     time.Duration `env:"CS_CADENCE_YIELDS" envDefault:"5m"`
	CadenceChainBlogs time.Duration `env:"CS_CADENCE_CHAIN_BLOGS" envDefault:"10m"`

	// External authoritative balance state (optional)
	ChainStateURL     string        `env:"CS_CHAIN_STATE_URL" envDefault:""`
	ChainStateTimeout time.Duration `env:"CS_CHAIN_STATE_TIMEOUT" envDefault:"5s"`

	// Bus mirror (optional): republish accepted alerts to NATS
	NATSURL string `env:"CS_NATS_URL" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from .env file and environment variables.
func Load(logger *zerolog.Logger) (*Config, error) {
	// .env is a development convenience; absence is fine.
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("CS_ADDR is required")
	}
	if c.StoreMaxAlerts < 1 {
		return fmt.Errorf("CS_STORE_MAX_ALERTS must be > 0, got %d", c.StoreMaxAlerts)
	}
	if c.DedupeHashTTL <= 0 {
		return fmt.Errorf("CS_DEDUPE_HASH_TTL must be positive, got %s", c.DedupeHashTTL)
	}
	if c.StreamBufferFrames < 1 {
		return fmt.Errorf("CS_STREAM_BUFFER_FRAMES must be > 0, got %d", c.StreamBufferFrames)
	}
	if c.MaxStreams < 1 {
		return fmt.Errorf("CS_MAX_STREAMS must be > 0, got %d", c.MaxStreams)
	}

	if _, err := c.Price(); err != nil {
		return fmt.Errorf("CS_PRICE_PER_ALERT invalid: %w", err)
	}
	price, _ := c.Price()
	if price.IsNegative() {
		return fmt.Errorf("CS_PRICE_PER_ALERT must be >= 0, got %s", price)
	}
	if _, err := decimal.NewFromString(c.QueryPrice); err != nil {
		return fmt.Errorf("CS_QUERY_PRICE invalid: %w", err)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// Price returns the per-alert delivery price. Zero in trial mode
// regardless of CS_PRICE_PER_ALERT.
func (c *Config) Price() (decimal.Decimal, error) {
	if c.TrialMode {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(c.PricePerAlert)
}

// QueryCharge returns the price of a charged historical query.
// Zero in trial mode.
func (c *Config) QueryCharge() decimal.Decimal {
	if c.TrialMode {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(c.QueryPrice)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// LogConfig logs configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Bool("trial_mode", c.TrialMode).
		Str("price_per_alert", c.PricePerAlert).
		Int("store_max_alerts", c.StoreMaxAlerts).
		Dur("dedupe_hash_ttl", c.DedupeHashTTL).
		Int("stream_buffer_frames", c.StreamBufferFrames).
		Int("max_streams", c.MaxStreams).
		Dur("fetch_timeout", c.FetchTimeout).
		Bool("mock_sources", c.MockSources).
		Dur("cadence_regulatory", c.CadenceRegulatory).
		Dur("cadence_news", c.CadenceNews).
		Dur("cadence_yields", c.CadenceYields).
		Dur("cadence_chain_blogs", c.CadenceChainBlogs).
		Str("chain_state_url", c.ChainStateURL).
		Str("nats_url", c.NATSURL).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Broker configuration loaded")
}

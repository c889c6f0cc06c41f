package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"checkerminer/internal/logging"

	"gopkg.in/yaml.v3"
)

// Config holds all miner configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// CheckerChain product API
	CheckerChain CheckerChainConfig `yaml:"checkerchain"`

	// Forward pass behaviour
	Miner MinerConfig `yaml:"miner"`

	// Prediction cache
	Cache CacheConfig `yaml:"cache"`

	// SQLite prediction history
	Store StoreConfig `yaml:"store"`

	// HTTP ingress
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the review model.
type LLMConfig struct {
	Provider         string   `yaml:"provider"` // openai, gemini
	APIKey           string   `yaml:"api_key"`
	Model            string   `yaml:"model"`
	BaseURL          string   `yaml:"base_url"`
	Timeout          string   `yaml:"timeout"`
	MaxTokens        int      `yaml:"max_tokens"`
	Temperature      float64  `yaml:"temperature"`
	TopP             float64  `yaml:"top_p"`
	FrequencyPenalty float64  `yaml:"frequency_penalty"`
	PresencePenalty  float64  `yaml:"presence_penalty"`
	Stop             []string `yaml:"stop"`
	MaxRetries       int      `yaml:"max_retries"`
	RequestsPerSec   float64  `yaml:"requests_per_second"`
}

// CheckerChainConfig configures the product API client.
type CheckerChainConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Timeout        string  `yaml:"timeout"`
	MaxRetries     int     `yaml:"max_retries"`
	RequestsPerSec float64 `yaml:"requests_per_second"`
}

// MinerConfig configures the forward pass.
type MinerConfig struct {
	MaxConcurrency int     `yaml:"max_concurrency"`
	RetryRounds    int     `yaml:"retry_rounds"`
	FallbackScore  float64 `yaml:"fallback_score"`
}

// CacheConfig configures the prediction cache.
type CacheConfig struct {
	Backend         string      `yaml:"backend"` // memory, redis, none
	TTL             string      `yaml:"ttl"`     // 0 keeps predictions for the process lifetime
	CleanupInterval string      `yaml:"cleanup_interval"`
	Redis           RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StoreConfig configures the prediction history database.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
	WarmOnStart  bool   `yaml:"warm_on_start"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Listen          string `yaml:"listen"`
	RateLimit       int    `yaml:"rate_limit"` // requests per minute per IP, 0 disables
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "checkerminer",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			BaseURL:        "https://api.openai.com/v1",
			Timeout:        "120s",
			MaxTokens:      1000,
			Temperature:    0.5,
			TopP:           1.0,
			Stop:           []string{"\n\n"},
			MaxRetries:     3,
			RequestsPerSec: 10,
		},

		CheckerChain: CheckerChainConfig{
			BaseURL:        "https://api.checkerchain.com/api/v1",
			Timeout:        "30s",
			MaxRetries:     2,
			RequestsPerSec: 5,
		},

		Miner: MinerConfig{
			MaxConcurrency: 8,
			RetryRounds:    1,
			FallbackScore:  50.0,
		},

		Cache: CacheConfig{
			Backend:         "memory",
			TTL:             "0s",
			CleanupInterval: "5m",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},

		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: "data/miner.db",
			WarmOnStart:  true,
		},

		Server: ServerConfig{
			Listen:          ":8091",
			RateLimit:       120,
			ShutdownTimeout: "10s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults (with env overrides applied).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// An API key from the environment only applies to its own provider, so a
	// stray GEMINI_API_KEY never hijacks an openai config.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && (c.LLM.Provider == "" || c.LLM.Provider == "openai") {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && (c.LLM.Provider == "" || c.LLM.Provider == "gemini") {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if model := os.Getenv("MINER_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if url := os.Getenv("CHECKERCHAIN_API_URL"); url != "" {
		c.CheckerChain.BaseURL = url
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.Redis.Addr = addr
		c.Cache.Backend = "redis"
	}

	if path := os.Getenv("MINER_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if listen := os.Getenv("MINER_LISTEN"); listen != "" {
		c.Server.Listen = listen
	}
	if level := os.Getenv("MINER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetCheckerChainTimeout returns the product API timeout as a duration.
func (c *Config) GetCheckerChainTimeout() time.Duration {
	return parseDuration(c.CheckerChain.Timeout, 30*time.Second)
}

// GetCacheTTL returns the prediction TTL; zero means no expiry.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, 0)
}

// GetCacheCleanupInterval returns how often the memory cache drops expired entries.
func (c *Config) GetCacheCleanupInterval() time.Duration {
	return parseDuration(c.Cache.CleanupInterval, 5*time.Minute)
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// LoggingOptions converts the logging section for the logging package.
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		Categories: c.Logging.Categories,
	}
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "gemini"}

// ValidCacheBackends lists the supported cache backends.
var ValidCacheBackends = []string{"memory", "redis", "none"}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
	}
	if c.CheckerChain.BaseURL == "" {
		return fmt.Errorf("checkerchain.base_url is required")
	}
	if c.Miner.MaxConcurrency < 1 {
		return fmt.Errorf("miner.max_concurrency must be >= 1, got %d", c.Miner.MaxConcurrency)
	}
	if c.Miner.RetryRounds < 0 {
		return fmt.Errorf("miner.retry_rounds must be >= 0, got %d", c.Miner.RetryRounds)
	}
	if c.Miner.FallbackScore < 0 || c.Miner.FallbackScore > 100 {
		return fmt.Errorf("miner.fallback_score must be within 0-100, got %v", c.Miner.FallbackScore)
	}
	if !contains(ValidCacheBackends, c.Cache.Backend) {
		return fmt.Errorf("invalid cache backend: %s (valid: %v)", c.Cache.Backend, ValidCacheBackends)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis backend")
	}
	if c.Store.Enabled && c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required when the store is enabled")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

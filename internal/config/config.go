package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/credentials"
	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// Config holds all application configuration.
//
// Values are resolved in order: built-in defaults, then the TOML file named
// by CONFIG_FILE (if any), then environment variables, then Options.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: one key, or a comma separated list rotated per batch
// - LLM_KEY_ROTATION: per-batch (default) or fixed
// - LLM_API_URL: OpenAI compatible endpoint (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: model name (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT (seconds), LLM_RETRIES
// - LLM_SITE_URL, LLM_APP_NAME: optional attribution headers
//
// Fallback Configuration:
// - FALLBACK_PROVIDER: "deepl" enables the bulk fallback backend
// - FALLBACK_API_URL, FALLBACK_API_KEY, FALLBACK_TIMEOUT
//
// Translate Configuration:
// - TARGET_LANGUAGE (default: zh), FORMAT_MODE (plain, timestamp, tagged)
// - TRANSLATE_INSTRUCTIONS, BATCH_SIZE, TOKEN_CEILING, SINGLE_UNIT
// - CONCURRENCY (1-5), STREAMING, CONTEXT_WINDOW, MISMATCH_RETRIES (0-3)
//
// Cache, Schedule, HTTP and System:
// - CACHE_SIZE, CACHE_PERSISTENT
// - CRON_EXPR, INBOX_DIR, OUTPUT_DIR
// - HTTP_ADDR, CORS_ORIGINS
// - DATA_DIR, LOG_LEVEL, LOG_FILE
type Config struct {
	LLM       LLMConfig       `toml:"llm" json:"llm"`
	Fallback  FallbackConfig  `toml:"fallback" json:"fallback"`
	Translate TranslateConfig `toml:"translate" json:"translate"`
	Cache     CacheConfig     `toml:"cache" json:"cache"`
	Schedule  ScheduleConfig  `toml:"schedule" json:"schedule"`
	HTTP      HTTPConfig      `toml:"http" json:"http"`
	System    SystemConfig    `toml:"system" json:"system"`
}

// LLMConfig configures the primary chat completion backend.
type LLMConfig struct {
	APIKeys     []string `toml:"api_keys" json:"-"`
	KeyRotation string   `toml:"key_rotation" json:"key_rotation"`
	APIURL      string   `toml:"api_url" json:"api_url"`
	Model       string   `toml:"model" json:"model"`
	MaxTokens   int      `toml:"max_tokens" json:"max_tokens"`
	Temperature float64  `toml:"temperature" json:"temperature"`
	Timeout     int      `toml:"timeout" json:"timeout"`
	Retries     int      `toml:"retries" json:"retries"`
	SiteURL     string   `toml:"site_url" json:"site_url"`
	AppName     string   `toml:"app_name" json:"app_name"`
}

// FallbackConfig configures the secondary backend. An empty Provider
// disables fallback.
type FallbackConfig struct {
	Provider string `toml:"provider" json:"provider"`
	APIURL   string `toml:"api_url" json:"api_url"`
	APIKey   string `toml:"api_key" json:"-"`
	Timeout  int    `toml:"timeout" json:"timeout"`
}

// Enabled reports whether a fallback backend is configured.
func (c FallbackConfig) Enabled() bool {
	return c.Provider != ""
}

type TranslateConfig struct {
	Language        string       `toml:"target_language" json:"-"`
	TargetLanguage  language.Tag `toml:"-" json:"target_language"`
	Mode            string       `toml:"mode" json:"mode"`
	Instructions    string       `toml:"instructions" json:"instructions,omitempty"`
	BatchSize       int          `toml:"batch_size" json:"batch_size"`
	TokenCeiling    int          `toml:"token_ceiling" json:"token_ceiling"`
	SingleUnit      bool         `toml:"single_unit" json:"single_unit"`
	Concurrency     int          `toml:"concurrency" json:"concurrency"`
	Streaming       bool         `toml:"streaming" json:"streaming"`
	ContextWindow   int          `toml:"context_window" json:"context_window"`
	MismatchRetries int          `toml:"mismatch_retries" json:"mismatch_retries"`
}

// FormatMode returns the parsed format mode. Validated configs never fail.
func (c TranslateConfig) FormatMode() format.Mode {
	m, err := format.ParseMode(c.Mode)
	if err != nil {
		return format.ModePlain
	}
	return m
}

type CacheConfig struct {
	Size       int  `toml:"size" json:"size"`
	Persistent bool `toml:"persistent" json:"persistent"`
}

// ScheduleConfig drives the periodic inbox scan of the serve command.
type ScheduleConfig struct {
	CronExpr  string `toml:"cron_expr" json:"cron_expr"`
	InboxDir  string `toml:"inbox_dir" json:"inbox_dir"`
	OutputDir string `toml:"output_dir" json:"output_dir"`
}

type HTTPConfig struct {
	Addr        string   `toml:"addr" json:"addr"`
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`
}

type SystemConfig struct {
	DataDir  string `toml:"data_dir" json:"data_dir"`
	LogLevel string `toml:"log_level" json:"log_level"`
	LogFile  string `toml:"log_file" json:"log_file,omitempty"`
}

// DBPath is the SQLite database inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "subbatch.db")
}

// LockPath is the lock file that keeps one daemon per data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.System.DataDir, "subbatch.lock")
}

// Credentials returns the primary backend's key set.
func (c *Config) Credentials() *credentials.Store {
	mode, err := credentials.ParseRotationMode(c.LLM.KeyRotation)
	if err != nil {
		mode = credentials.RotatePerBatch
	}
	return credentials.NewStore(c.LLM.APIKeys, mode)
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithTargetLanguage(tag language.Tag) Option {
	return func(c *Config) {
		c.Translate.TargetLanguage = tag
		c.Translate.Language = tag.String()
	}
}

func WithFormatMode(mode format.Mode) Option {
	return func(c *Config) { c.Translate.Mode = string(mode) }
}

func WithConcurrency(n int) Option {
	return func(c *Config) { c.Translate.Concurrency = n }
}

func WithStreaming(enabled bool) Option {
	return func(c *Config) { c.Translate.Streaming = enabled }
}

func WithDataDir(dir string) Option {
	return func(c *Config) { c.System.DataDir = dir }
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			KeyRotation: string(credentials.RotatePerBatch),
			APIURL:      "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-4o-mini",
			MaxTokens:   8000,
			Temperature: 0.3,
			Timeout:     120,
			Retries:     2,
		},
		Fallback: FallbackConfig{
			Timeout: 60,
		},
		Translate: TranslateConfig{
			Language:        "zh",
			Mode:            string(format.ModePlain),
			Concurrency:     1,
			ContextWindow:   5,
			MismatchRetries: 2,
		},
		Cache: CacheConfig{
			Size:       10000,
			Persistent: true,
		},
		Schedule: ScheduleConfig{
			CronExpr: "0 */10 * * * *",
			InboxDir: "/app/inbox",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		System: SystemConfig{
			DataDir:  "/app/data",
			LogLevel: "info",
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// NewFromEnv creates a new Config instance with values from the optional
// config file, environment variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}
	config.applyEnv()

	// Apply custom options
	for _, opt := range opts {
		opt(&config)
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}
	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: llm=%s model=%s keys=%d target=%s mode=%s concurrency=%d fallback=%q",
		config.LLM.APIURL, config.LLM.Model, len(config.LLM.APIKeys),
		config.Translate.TargetLanguage, config.Translate.Mode, config.Translate.Concurrency, config.Fallback.Provider)

	return &config, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LLM.APIKeys = getEnvList("LLM_API_KEY", c.LLM.APIKeys)
	c.LLM.KeyRotation = getEnvString("LLM_KEY_ROTATION", c.LLM.KeyRotation)
	c.LLM.APIURL = getEnvString("LLM_API_URL", c.LLM.APIURL)
	c.LLM.Model = getEnvString("LLM_MODEL", c.LLM.Model)
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvInt("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.Retries = getEnvInt("LLM_RETRIES", c.LLM.Retries)
	c.LLM.SiteURL = getEnvString("LLM_SITE_URL", c.LLM.SiteURL)
	c.LLM.AppName = getEnvString("LLM_APP_NAME", c.LLM.AppName)

	c.Fallback.Provider = getEnvString("FALLBACK_PROVIDER", c.Fallback.Provider)
	c.Fallback.APIURL = getEnvString("FALLBACK_API_URL", c.Fallback.APIURL)
	c.Fallback.APIKey = getEnvString("FALLBACK_API_KEY", c.Fallback.APIKey)
	c.Fallback.Timeout = getEnvInt("FALLBACK_TIMEOUT", c.Fallback.Timeout)

	c.Translate.Language = getEnvString("TARGET_LANGUAGE", c.Translate.Language)
	c.Translate.Mode = getEnvString("FORMAT_MODE", c.Translate.Mode)
	c.Translate.Instructions = getEnvString("TRANSLATE_INSTRUCTIONS", c.Translate.Instructions)
	c.Translate.BatchSize = getEnvInt("BATCH_SIZE", c.Translate.BatchSize)
	c.Translate.TokenCeiling = getEnvInt("TOKEN_CEILING", c.Translate.TokenCeiling)
	c.Translate.SingleUnit = getEnvBool("SINGLE_UNIT", c.Translate.SingleUnit)
	c.Translate.Concurrency = getEnvInt("CONCURRENCY", c.Translate.Concurrency)
	c.Translate.Streaming = getEnvBool("STREAMING", c.Translate.Streaming)
	c.Translate.ContextWindow = getEnvInt("CONTEXT_WINDOW", c.Translate.ContextWindow)
	c.Translate.MismatchRetries = getEnvInt("MISMATCH_RETRIES", c.Translate.MismatchRetries)

	c.Cache.Size = getEnvInt("CACHE_SIZE", c.Cache.Size)
	c.Cache.Persistent = getEnvBool("CACHE_PERSISTENT", c.Cache.Persistent)

	c.Schedule.CronExpr = getEnvString("CRON_EXPR", c.Schedule.CronExpr)
	c.Schedule.InboxDir = getEnvString("INBOX_DIR", c.Schedule.InboxDir)
	c.Schedule.OutputDir = getEnvString("OUTPUT_DIR", c.Schedule.OutputDir)

	c.HTTP.Addr = getEnvString("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.CORSOrigins = getEnvList("CORS_ORIGINS", c.HTTP.CORSOrigins)

	c.System.DataDir = getEnvString("DATA_DIR", c.System.DataDir)
	c.System.LogLevel = getEnvString("LOG_LEVEL", c.System.LogLevel)
	c.System.LogFile = getEnvString("LOG_FILE", c.System.LogFile)
}

// normalize parses derived fields.
func (c *Config) normalize() error {
	if c.Translate.TargetLanguage == language.Und || c.Translate.TargetLanguage.String() != c.Translate.Language {
		tag, err := language.Parse(strings.TrimSpace(c.Translate.Language))
		if err != nil {
			return fmt.Errorf("invalid TARGET_LANGUAGE %q: %w", c.Translate.Language, err)
		}
		c.Translate.TargetLanguage = tag
	}
	c.Translate.Mode = strings.ToLower(strings.TrimSpace(c.Translate.Mode))
	c.LLM.APIURL = strings.TrimRight(c.LLM.APIURL, "/")
	c.Fallback.Provider = strings.ToLower(strings.TrimSpace(c.Fallback.Provider))
	return nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if len(c.LLM.APIKeys) == 0 {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.LLM.APIURL == "" {
		return fmt.Errorf("LLM_API_URL is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}
	if c.LLM.Timeout < 1 {
		return fmt.Errorf("LLM_TIMEOUT must be at least 1 second")
	}
	if c.LLM.Retries < 0 {
		return fmt.Errorf("LLM_RETRIES must not be negative")
	}
	if _, err := credentials.ParseRotationMode(c.LLM.KeyRotation); err != nil {
		return err
	}
	if _, err := format.ParseMode(c.Translate.Mode); err != nil {
		return err
	}
	if c.Translate.Concurrency < 1 || c.Translate.Concurrency > 5 {
		return fmt.Errorf("CONCURRENCY must be between 1 and 5, got %d", c.Translate.Concurrency)
	}
	if c.Translate.MismatchRetries < 0 || c.Translate.MismatchRetries > 3 {
		return fmt.Errorf("MISMATCH_RETRIES must be between 0 and 3, got %d", c.Translate.MismatchRetries)
	}
	if c.Translate.BatchSize < 0 || c.Translate.TokenCeiling < 0 || c.Translate.ContextWindow < 0 {
		return fmt.Errorf("BATCH_SIZE, TOKEN_CEILING and CONTEXT_WINDOW must not be negative")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("CACHE_SIZE must not be negative")
	}
	switch c.Fallback.Provider {
	case "", "deepl":
	default:
		return fmt.Errorf("unsupported FALLBACK_PROVIDER %q", c.Fallback.Provider)
	}
	if c.Fallback.Enabled() && c.Fallback.APIKey == "" {
		return fmt.Errorf("FALLBACK_API_KEY is required when FALLBACK_PROVIDER is set")
	}
	if c.System.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var ret []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			ret = append(ret, item)
		}
	}
	if len(ret) == 0 {
		return defaultValue
	}
	return ret
}

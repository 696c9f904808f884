// Package config loads the AURA orchestrator's process-wide configuration.
// Precedence, highest to lowest, is: CLI flag > environment variable >
// YAML config file > documented default. The layering itself is handled
// by github.com/spf13/viper; this package only declares the shape of the
// Config struct, binds the environment/flag names, and validates the
// result.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the top-level configuration structure for one AURA host
// process.
type Config struct {
	Intent      IntentConfig      `mapstructure:"intent"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Deferred    DeferredConfig    `mapstructure:"deferred"`
	FastPath    FastPathConfig    `mapstructure:"fast_path"`
	GUI         GUIConfig         `mapstructure:"gui"`
	QA          QAConfig          `mapstructure:"qa"`
	Content     ContentConfig     `mapstructure:"content"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Introspect  IntrospectConfig  `mapstructure:"introspect"`
	Store       StoreConfig       `mapstructure:"store"`
}

// IntentConfig governs intent recognition thresholds.
type IntentConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	LockTimeoutSeconds  int     `mapstructure:"lock_timeout_seconds"`
}

// ConcurrencyConfig governs the process-wide execution lock.
type ConcurrencyConfig struct {
	ExecutionLockTimeoutSeconds int `mapstructure:"execution_lock_timeout_seconds"`
}

// DeferredConfig governs the deferred-action state machine.
type DeferredConfig struct {
	ReAcquireTimeoutSeconds int `mapstructure:"re_acquire_timeout_seconds"`
	TimeoutDefaultSeconds   int `mapstructure:"timeout_default_seconds"`
	TimeoutMinSeconds       int `mapstructure:"timeout_min_seconds"`
	TimeoutMaxSeconds       int `mapstructure:"timeout_max_seconds"`
	PasteThresholdChars     int `mapstructure:"paste_threshold_chars"`
}

// FastPathConfig governs the GUI handler's fast-path retry policy.
type FastPathConfig struct {
	RetryMax     int `mapstructure:"retry_max"`
	BackoffBaseMs int `mapstructure:"backoff_base_ms"`
}

// GUIConfig governs GUI-handler element matching.
type GUIConfig struct {
	FuzzyMatchThreshold int               `mapstructure:"fuzzy_match_threshold"`
	RoleOverrides       map[string]string `mapstructure:"role_overrides"`
}

// QAConfig governs the question-answering handler's time budgets and its
// choice of BrowserExtractor strategy.
type QAConfig struct {
	ExtractionBudgetMs int `mapstructure:"extraction_budget_ms"`
	SummarizeBudgetMs  int `mapstructure:"summarize_budget_ms"`
	TotalBudgetMs      int `mapstructure:"total_budget_ms"`

	// BrowserStrategy selects the BrowserExtractor wired into the Q&A
	// handler: "http" (goquery over a plain HTTP fetch, the default) or
	// "cdp" (go-rod reading an already-open tab's DOM over the Chrome
	// DevTools protocol, needed for JavaScript-rendered pages).
	BrowserStrategy string `mapstructure:"browser_strategy"`
	// CDPControlURL is the ws:// DevTools debugger URL to connect to
	// when BrowserStrategy is "cdp".
	CDPControlURL string `mapstructure:"cdp_control_url"`
}

// ContentConfig governs content post-processing limits.
type ContentConfig struct {
	MaxBytes int `mapstructure:"max_bytes"`
}

// ConversationConfig governs the conversational handler's bounded history.
type ConversationConfig struct {
	HistoryMax int `mapstructure:"history_max"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level            string `mapstructure:"level"`
	Format           string `mapstructure:"format"`
	Output           string `mapstructure:"output"`
	ErrorLogDir      string `mapstructure:"error_log_dir"`
	ErrorLogFilename string `mapstructure:"error_log_filename"`
}

// IntrospectConfig governs the debug/introspection HTTP surface.
type IntrospectConfig struct {
	Bind                   string `mapstructure:"bind"`
	Port                   int    `mapstructure:"port"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// StoreConfig governs the audit ledger and conversation-history cache.
type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
	RedisAddr  string `mapstructure:"redis_addr"`
	RedisDB    int    `mapstructure:"redis_db"`
}

const envPrefix = "AURA"

// Load builds a Config by layering, highest precedence first: flags bound
// into fs, environment variables prefixed AURA_, the YAML file at path (if
// non-empty and present), and documented defaults. It returns an error if
// the file is present but malformed, or if the merged result fails
// Validate.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: reading file %q: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return &cfg, nil
}

// applyDefaults registers the documented default for every configuration
// key named in the external-interfaces surface.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("intent.confidence_threshold", 0.7)
	v.SetDefault("intent.lock_timeout_seconds", 10)

	v.SetDefault("concurrency.execution_lock_timeout_seconds", 30)

	v.SetDefault("deferred.re_acquire_timeout_seconds", 15)
	v.SetDefault("deferred.timeout_default_seconds", 600)
	v.SetDefault("deferred.timeout_min_seconds", 60)
	v.SetDefault("deferred.timeout_max_seconds", 900)
	v.SetDefault("deferred.paste_threshold_chars", 1)

	v.SetDefault("fast_path.retry_max", 2)
	v.SetDefault("fast_path.backoff_base_ms", 50)

	v.SetDefault("gui.fuzzy_match_threshold", 85)

	v.SetDefault("qa.extraction_budget_ms", 2000)
	v.SetDefault("qa.summarize_budget_ms", 3000)
	v.SetDefault("qa.total_budget_ms", 5000)
	v.SetDefault("qa.browser_strategy", "http")
	v.SetDefault("qa.cdp_control_url", "")

	v.SetDefault("content.max_bytes", 50*1024)

	v.SetDefault("conversation.history_max", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.error_log_dir", "./logs")
	v.SetDefault("logging.error_log_filename", "YYYY-MM-DD-errors.md")

	v.SetDefault("introspect.bind", "127.0.0.1")
	v.SetDefault("introspect.port", 8077)
	v.SetDefault("introspect.shutdown_timeout_seconds", 5)

	v.SetDefault("store.sqlite_path", "./aura-ledger.db")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_db", 0)
}

// Validate returns an error if required fields are missing or values are
// out of range.
func (c *Config) Validate() error {
	if c.Intent.ConfidenceThreshold <= 0 || c.Intent.ConfidenceThreshold > 1 {
		return fmt.Errorf("intent.confidence_threshold must be in (0, 1], got %v", c.Intent.ConfidenceThreshold)
	}
	if c.Concurrency.ExecutionLockTimeoutSeconds < 1 {
		return fmt.Errorf("concurrency.execution_lock_timeout_seconds must be >= 1, got %d", c.Concurrency.ExecutionLockTimeoutSeconds)
	}
	if c.Deferred.TimeoutMinSeconds > c.Deferred.TimeoutMaxSeconds {
		return fmt.Errorf("deferred.timeout_min_seconds (%d) must be <= timeout_max_seconds (%d)",
			c.Deferred.TimeoutMinSeconds, c.Deferred.TimeoutMaxSeconds)
	}
	if c.Deferred.TimeoutDefaultSeconds < c.Deferred.TimeoutMinSeconds || c.Deferred.TimeoutDefaultSeconds > c.Deferred.TimeoutMaxSeconds {
		return fmt.Errorf("deferred.timeout_default_seconds (%d) must fall within [%d, %d]",
			c.Deferred.TimeoutDefaultSeconds, c.Deferred.TimeoutMinSeconds, c.Deferred.TimeoutMaxSeconds)
	}
	if c.Deferred.PasteThresholdChars < 0 {
		return fmt.Errorf("deferred.paste_threshold_chars must be >= 0, got %d", c.Deferred.PasteThresholdChars)
	}
	if c.FastPath.RetryMax < 0 {
		return fmt.Errorf("fast_path.retry_max must be >= 0, got %d", c.FastPath.RetryMax)
	}
	if c.GUI.FuzzyMatchThreshold < 0 || c.GUI.FuzzyMatchThreshold > 100 {
		return fmt.Errorf("gui.fuzzy_match_threshold must be in [0, 100], got %d", c.GUI.FuzzyMatchThreshold)
	}
	switch c.QA.BrowserStrategy {
	case "http", "cdp":
	default:
		return fmt.Errorf(`qa.browser_strategy must be "http" or "cdp", got %q`, c.QA.BrowserStrategy)
	}
	if c.QA.BrowserStrategy == "cdp" && c.QA.CDPControlURL == "" {
		return fmt.Errorf("qa.cdp_control_url is required when qa.browser_strategy is \"cdp\"")
	}
	if c.Content.MaxBytes < 1 {
		return fmt.Errorf("content.max_bytes must be >= 1, got %d", c.Content.MaxBytes)
	}
	if c.Conversation.HistoryMax < 1 {
		return fmt.Errorf("conversation.history_max must be >= 1, got %d", c.Conversation.HistoryMax)
	}
	return nil
}

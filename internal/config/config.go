// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Agent() AgentConfig
	Gates() GatesConfig
	Scheduler() SchedulerConfig
	Patterns() PatternsConfig
	Platform() PlatformConfig

	SetPlatformDryRun(bool)
	SetDatabaseType(string)
}

// Config holds the entire application configuration.
// It uses private fields to enforce access through the Interface's getter methods.
type Config struct {
	logger    LoggerConfig
	database  DatabaseConfig
	agent     AgentConfig
	gates     GatesConfig
	scheduler SchedulerConfig
	patterns  PatternsConfig
	platform  PlatformConfig
}

// rawConfig mirrors Config with exported fields so viper can decode into it.
type rawConfig struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Gates     GatesConfig     `mapstructure:"gates" yaml:"gates"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Patterns  PatternsConfig  `mapstructure:"patterns" yaml:"patterns"`
	Platform  PlatformConfig  `mapstructure:"platform" yaml:"platform"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.logger }
func (c *Config) Database() DatabaseConfig   { return c.database }
func (c *Config) Agent() AgentConfig         { return c.agent }
func (c *Config) Gates() GatesConfig         { return c.gates }
func (c *Config) Scheduler() SchedulerConfig { return c.scheduler }
func (c *Config) Patterns() PatternsConfig   { return c.patterns }
func (c *Config) Platform() PlatformConfig   { return c.platform }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetPlatformDryRun(b bool)  { c.platform.DryRun = b }
func (c *Config) SetDatabaseType(t string) { c.database.Type = t }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Database backends.
const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
	DatabaseMemory   = "memory"
)

// DatabaseConfig selects and configures the relational store.
type DatabaseConfig struct {
	Type       string `mapstructure:"type" yaml:"type"`
	URL        string `mapstructure:"url" yaml:"url"`
	Password   string `mapstructure:"password" yaml:"-"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MaxConns   int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// ResolvedSQLitePath expands a leading ~ in the sqlite path.
func (d DatabaseConfig) ResolvedSQLitePath() (string, error) {
	p, err := homedir.Expand(d.SQLitePath)
	if err != nil {
		return "", fmt.Errorf("failed to expand sqlite path %q: %w", d.SQLitePath, err)
	}
	return p, nil
}

// AgentConfig holds settings for the stimulus-processing cycle and its LLM.
type AgentConfig struct {
	LLM             LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	CycleInterval   time.Duration   `mapstructure:"cycle_interval" yaml:"cycle_interval"`
	StimuliPerCycle int             `mapstructure:"stimuli_per_cycle" yaml:"stimuli_per_cycle"`
	SeenCacheSize   int             `mapstructure:"seen_cache_size" yaml:"seen_cache_size"`
	SeenCacheTTL    time.Duration   `mapstructure:"seen_cache_ttl" yaml:"seen_cache_ttl"`
	// CallTimeout bounds every external call made during a cycle.
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// GatesConfig tunes the approval chain.
type GatesConfig struct {
	SparkThreshold   float64  `mapstructure:"spark_threshold" yaml:"spark_threshold"`
	MaxContentLength int      `mapstructure:"max_content_length" yaml:"max_content_length"`
	BlockedPhrases   []string `mapstructure:"blocked_phrases" yaml:"blocked_phrases"`
}

// SchedulerConfig tunes deferred outcome evaluation.
type SchedulerConfig struct {
	CheckDelay   time.Duration `mapstructure:"check_delay" yaml:"check_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	DrainLimit   int           `mapstructure:"drain_limit" yaml:"drain_limit"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	ClaimLease   time.Duration `mapstructure:"claim_lease" yaml:"claim_lease"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// PatternsConfig tunes the pattern aggregator.
type PatternsConfig struct {
	MinSamples        int     `mapstructure:"min_samples" yaml:"min_samples"`
	SuccessThreshold  float64 `mapstructure:"success_threshold" yaml:"success_threshold"`
	ContinueThreshold float64 `mapstructure:"continue_threshold" yaml:"continue_threshold"`
}

// PlatformConfig configures the social platform client.
type PlatformConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	Token          string        `mapstructure:"token" yaml:"-"`
	ActionsPerHour float64       `mapstructure:"actions_per_hour" yaml:"actions_per_hour"`
	Burst          int           `mapstructure:"burst" yaml:"burst"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ProxyURL       string        `mapstructure:"proxy_url" yaml:"proxy_url"`
	DryRun         bool          `mapstructure:"dry_run" yaml:"dry_run"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	APIKey               string                    `mapstructure:"api_key" yaml:"-"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := decode(v)
	if err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "resonance")
	v.SetDefault("logger.log_file", "resonance.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.type", DatabaseSQLite)
	v.SetDefault("database.sqlite_path", "~/.resonance/resonance.db")
	v.SetDefault("database.max_conns", 10)

	// -- Agent --
	v.SetDefault("agent.llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("agent.cycle_interval", "10m")
	v.SetDefault("agent.stimuli_per_cycle", 20)
	v.SetDefault("agent.seen_cache_size", 5000)
	v.SetDefault("agent.seen_cache_ttl", "72h")
	v.SetDefault("agent.call_timeout", "45s")

	// -- Gates --
	v.SetDefault("gates.spark_threshold", 5.0)
	v.SetDefault("gates.max_content_length", 280)
	v.SetDefault("gates.blocked_phrases", []string{"as an ai", "dm me", "guaranteed returns", "not financial advice"})

	// -- Scheduler --
	v.SetDefault("scheduler.check_delay", "24h")
	v.SetDefault("scheduler.poll_interval", "15m")
	v.SetDefault("scheduler.drain_limit", 25)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.retry_delay", "1h")
	v.SetDefault("scheduler.claim_lease", "15m")
	v.SetDefault("scheduler.fetch_timeout", "30s")

	// -- Patterns --
	v.SetDefault("patterns.min_samples", 3)
	v.SetDefault("patterns.success_threshold", 0.5)
	v.SetDefault("patterns.continue_threshold", 0.4)

	// -- Platform --
	v.SetDefault("platform.actions_per_hour", 12.0)
	v.SetDefault("platform.burst", 3)
	v.SetDefault("platform.timeout", "20s")
	v.SetDefault("platform.dry_run", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data
	_ = v.BindEnv("agent.llm.api_key", "RESONANCE_LLM_API_KEY")
	_ = v.BindEnv("database.password", "RESONANCE_DB_PASSWORD")
	_ = v.BindEnv("platform.token", "RESONANCE_PLATFORM_TOKEN")

	cfg, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.agent.LLM.APIKey == "" {
		cfg.agent.LLM.APIKey = os.Getenv("RESONANCE_LLM_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, err
	}
	return &Config{
		logger:    raw.Logger,
		database:  raw.Database,
		agent:     raw.Agent,
		gates:     raw.Gates,
		scheduler: raw.Scheduler,
		patterns:  raw.Patterns,
		platform:  raw.Platform,
	}, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.database.Validate(); err != nil {
		return fmt.Errorf("database configuration invalid: %w", err)
	}
	if c.agent.StimuliPerCycle <= 0 {
		return fmt.Errorf("agent.stimuli_per_cycle must be a positive integer")
	}
	if c.agent.CycleInterval <= 0 {
		return fmt.Errorf("agent.cycle_interval must be a positive duration")
	}
	if err := c.gates.Validate(); err != nil {
		return fmt.Errorf("gates configuration invalid: %w", err)
	}
	if err := c.scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler configuration invalid: %w", err)
	}
	if err := c.patterns.Validate(); err != nil {
		return fmt.Errorf("patterns configuration invalid: %w", err)
	}
	if err := c.platform.Validate(); err != nil {
		return fmt.Errorf("platform configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the database settings.
func (d *DatabaseConfig) Validate() error {
	switch d.Type {
	case DatabasePostgres:
		if d.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	case DatabaseSQLite:
		if d.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for sqlite")
		}
	case DatabaseMemory:
	default:
		return fmt.Errorf("unsupported database type: %q", d.Type)
	}
	return nil
}

// Validate checks the gate settings.
func (g *GatesConfig) Validate() error {
	if g.SparkThreshold < 0 || g.SparkThreshold > 10 {
		return fmt.Errorf("spark_threshold must be between 0 and 10")
	}
	if g.MaxContentLength <= 0 {
		return fmt.Errorf("max_content_length must be a positive integer")
	}
	return nil
}

// Validate checks the scheduler settings.
func (s *SchedulerConfig) Validate() error {
	if s.CheckDelay <= 0 {
		return fmt.Errorf("check_delay must be a positive duration")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if s.DrainLimit <= 0 {
		return fmt.Errorf("drain_limit must be a positive integer")
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if s.MaxAttempts > 1 && s.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be a positive duration when retries are enabled")
	}
	return nil
}

// Validate checks the pattern settings.
func (p *PatternsConfig) Validate() error {
	if p.MinSamples < 1 {
		return fmt.Errorf("min_samples must be at least 1")
	}
	if p.SuccessThreshold < 0 || p.SuccessThreshold > 1 {
		return fmt.Errorf("success_threshold must be between 0.0 and 1.0")
	}
	if p.ContinueThreshold < 0 || p.ContinueThreshold > 1 {
		return fmt.Errorf("continue_threshold must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the platform settings.
func (p *PlatformConfig) Validate() error {
	if p.DryRun {
		return nil
	}
	if p.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required unless dry_run is set")
	}
	if p.ActionsPerHour <= 0 {
		return fmt.Errorf("actions_per_hour must be positive")
	}
	if p.Burst < 1 {
		return fmt.Errorf("burst must be at least 1")
	}
	return nil
}

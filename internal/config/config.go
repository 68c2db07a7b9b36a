// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Scan() ScanConfig
	Report() ReportConfig
	Agent() AgentConfig
	Retention() RetentionConfig
	Metrics() MetricsConfig
	Tracing() TracingConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	ServerCfg    ServerConfig    `mapstructure:"server" yaml:"server"`
	ScanCfg      ScanConfig      `mapstructure:"scan" yaml:"scan"`
	ReportCfg    ReportConfig    `mapstructure:"report" yaml:"report"`
	AgentCfg     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	RetentionCfg RetentionConfig `mapstructure:"retention" yaml:"retention"`
	MetricsCfg   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	TracingCfg   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }
func (c *Config) Scan() ScanConfig           { return c.ScanCfg }
func (c *Config) Report() ReportConfig       { return c.ReportCfg }
func (c *Config) Agent() AgentConfig         { return c.AgentCfg }
func (c *Config) Retention() RetentionConfig { return c.RetentionCfg }
func (c *Config) Metrics() MetricsConfig     { return c.MetricsCfg }
func (c *Config) Tracing() TracingConfig     { return c.TracingCfg }

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

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	Compression     bool          `mapstructure:"compression" yaml:"compression"`
}

// Finding source kinds.
const (
	SourceCatalog = "catalog"
	SourceNmap    = "nmap"
)

// ScanConfig drives the scan state machine and its finding source.
type ScanConfig struct {
	Source        string              `mapstructure:"source" yaml:"source"`
	NmapDir       string              `mapstructure:"nmap_dir" yaml:"nmap_dir"`
	Phases        []PhaseConfig       `mapstructure:"phases" yaml:"phases"`
	FindingCounts FindingCountsConfig `mapstructure:"finding_counts" yaml:"finding_counts"`
}

// PhaseConfig is one step of the scan phase table.
type PhaseConfig struct {
	Step     string        `mapstructure:"step" yaml:"step"`
	Progress int           `mapstructure:"progress" yaml:"progress"`
	Delay    time.Duration `mapstructure:"delay" yaml:"delay"`
}

// FindingCountsConfig sets how many findings each scan type yields.
type FindingCountsConfig struct {
	Comprehensive int `mapstructure:"comprehensive" yaml:"comprehensive"`
	Basic         int `mapstructure:"basic" yaml:"basic"`
	Stealth       int `mapstructure:"stealth" yaml:"stealth"`
}

// ReportConfig tunes report synthesis.
type ReportConfig struct {
	MinSummaryLength int           `mapstructure:"min_summary_length" yaml:"min_summary_length"`
	ProviderTimeout  time.Duration `mapstructure:"provider_timeout" yaml:"provider_timeout"`
	ToolsUsed        []string      `mapstructure:"tools_used" yaml:"tools_used"`
}

type AgentConfig struct {
	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerSecond    float64                   `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst                int                       `mapstructure:"burst" yaml:"burst"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"-"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// RetentionConfig controls the periodic sweep of old scans and reports.
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// apiKeyEnv maps a provider to the conventional environment variable holding its key.
var apiKeyEnv = map[LLMProvider]string{
	ProviderGemini: "GEMINI_API_KEY",
	ProviderOpenAI: "OPENAI_API_KEY",
}

func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pentestd")
	v.SetDefault("logger.log_file", "pentestd.log")
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

	// -- Server --
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "2m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.compression", true)

	// -- Scan --
	v.SetDefault("scan.source", SourceCatalog)
	v.SetDefault("scan.phases", []map[string]interface{}{
		{"step": "Performing network discovery...", "progress": 10, "delay": "0s"},
		{"step": "Port scanning...", "progress": 30, "delay": "2s"},
		{"step": "Service detection...", "progress": 50, "delay": "3s"},
		{"step": "Vulnerability assessment...", "progress": 70, "delay": "4s"},
		{"step": "Analyzing results with AI...", "progress": 90, "delay": "2s"},
		{"step": "Generating findings...", "progress": 100, "delay": "1s"},
	})
	v.SetDefault("scan.finding_counts.comprehensive", 4)
	v.SetDefault("scan.finding_counts.basic", 2)
	v.SetDefault("scan.finding_counts.stealth", 1)

	// -- Report --
	v.SetDefault("report.min_summary_length", 10)
	v.SetDefault("report.provider_timeout", "60s")
	v.SetDefault("report.tools_used", []string{"Nmap", "Custom Vulnerability Scanner", "AI Analysis Engine"})

	// -- Agent --
	v.SetDefault("agent.llm.default_fast_model", "gemini-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-pro")
	v.SetDefault("agent.llm.requests_per_second", 1.0)
	v.SetDefault("agent.llm.burst", 2)
	v.SetDefault("agent.llm.models", map[string]interface{}{
		"gemini-flash": map[string]interface{}{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-flash",
			"api_timeout": "30s",
			"temperature": 0.3,
			"max_tokens":  300,
		},
		"gemini-pro": map[string]interface{}{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-pro",
			"api_timeout": "60s",
			"temperature": 0.3,
			"max_tokens":  1500,
		},
	})

	// -- Retention --
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.window", "24h")
	v.SetDefault("retention.interval", "1h")

	// -- Observability --
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("tracing.endpoint", "PENTESTD_TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Model keys live under a map, so AutomaticEnv cannot reach them.
	for name, m := range cfg.AgentCfg.LLM.Models {
		if m.APIKey != "" {
			continue
		}
		if envName, ok := apiKeyEnv[m.Provider]; ok {
			m.APIKey = os.Getenv(envName)
			cfg.AgentCfg.LLM.Models[name] = m
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ServerCfg.Addr == "" {
		return fmt.Errorf("server.addr is a required configuration field")
	}
	if err := c.ScanCfg.Validate(); err != nil {
		return fmt.Errorf("scan configuration invalid: %w", err)
	}
	if c.ReportCfg.MinSummaryLength <= 0 {
		return fmt.Errorf("report.min_summary_length must be a positive integer")
	}
	if c.ReportCfg.ProviderTimeout <= 0 {
		return fmt.Errorf("report.provider_timeout must be a positive duration")
	}
	if err := c.AgentCfg.LLM.Validate(); err != nil {
		return fmt.Errorf("agent.llm configuration invalid: %w", err)
	}
	if err := c.RetentionCfg.Validate(); err != nil {
		return fmt.Errorf("retention configuration invalid: %w", err)
	}
	if c.TracingCfg.Enabled {
		if c.TracingCfg.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if c.TracingCfg.SampleRatio < 0 || c.TracingCfg.SampleRatio > 1 {
			return fmt.Errorf("tracing.sample_ratio must be between 0.0 and 1.0")
		}
	}
	return nil
}

// Validate checks the phase table and finding counts.
func (s *ScanConfig) Validate() error {
	switch s.Source {
	case SourceCatalog:
	case SourceNmap:
		if s.NmapDir == "" {
			return fmt.Errorf("nmap_dir is required when source is %q", SourceNmap)
		}
	default:
		return fmt.Errorf("unknown finding source %q", s.Source)
	}

	if len(s.Phases) == 0 {
		return fmt.Errorf("at least one phase is required")
	}
	last := 0
	for i, p := range s.Phases {
		if p.Step == "" {
			return fmt.Errorf("phases[%d].step must not be empty", i)
		}
		if p.Progress <= last || p.Progress > 100 {
			return fmt.Errorf("phases[%d].progress must be strictly increasing within 1..100", i)
		}
		if p.Delay < 0 {
			return fmt.Errorf("phases[%d].delay must not be negative", i)
		}
		last = p.Progress
	}
	if last != 100 {
		return fmt.Errorf("the final phase must reach progress 100")
	}

	fc := s.FindingCounts
	if fc.Stealth < 0 {
		return fmt.Errorf("finding_counts must not be negative")
	}
	if fc.Comprehensive < fc.Basic || fc.Basic < fc.Stealth {
		return fmt.Errorf("finding_counts must satisfy comprehensive >= basic >= stealth")
	}
	return nil
}

// Validate checks that tier defaults point at defined models.
func (l *LLMRouterConfig) Validate() error {
	for name, m := range l.Models {
		if _, ok := apiKeyEnv[m.Provider]; !ok {
			return fmt.Errorf("models.%s: unsupported provider %q", name, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("models.%s: model name is required", name)
		}
	}
	for _, key := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		if key == "" {
			continue
		}
		if _, ok := l.Models[key]; !ok {
			return fmt.Errorf("default model %q is not defined under models", key)
		}
	}
	if l.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}

// Validate checks the retention settings.
func (r *RetentionConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Window <= 0 {
		return fmt.Errorf("window must be a positive duration")
	}
	if r.Interval <= 0 {
		return fmt.Errorf("interval must be a positive duration")
	}
	return nil
}

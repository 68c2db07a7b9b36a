// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "pentestd", cfg.Logger().ServiceName)
	assert.Equal(t, ":5000", cfg.Server().Addr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server().AllowedOrigins)
	assert.Equal(t, SourceCatalog, cfg.Scan().Source)
	assert.Equal(t, 10, cfg.Report().MinSummaryLength)
	assert.Equal(t, 24*time.Hour, cfg.Retention().Window)
	assert.Equal(t, time.Hour, cfg.Retention().Interval)
	assert.Equal(t, "gemini-pro", cfg.Agent().LLM.DefaultPowerfulModel)
	assert.False(t, cfg.Tracing().Enabled)

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

func TestDefaultPhaseTable(t *testing.T) {
	phases := NewDefaultConfig().Scan().Phases
	require.Len(t, phases, 6)

	assert.Equal(t, "Performing network discovery...", phases[0].Step)
	assert.Equal(t, 10, phases[0].Progress)
	assert.Zero(t, phases[0].Delay)

	assert.Equal(t, "Vulnerability assessment...", phases[3].Step)
	assert.Equal(t, 4*time.Second, phases[3].Delay)

	assert.Equal(t, 100, phases[5].Progress)
}

func TestDefaultModels(t *testing.T) {
	models := NewDefaultConfig().Agent().LLM.Models
	require.Contains(t, models, "gemini-pro")
	require.Contains(t, models, "gemini-flash")

	pro := models["gemini-pro"]
	assert.Equal(t, ProviderGemini, pro.Provider)
	assert.Equal(t, 1500, pro.MaxTokens)
	assert.InDelta(t, 0.3, pro.Temperature, 0.0001)
	assert.Equal(t, 60*time.Second, pro.APITimeout)
	assert.Equal(t, 300, models["gemini-flash"].MaxTokens)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())

		noAddr := *cfg
		noAddr.ServerCfg.Addr = ""
		err := noAddr.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.addr is a required configuration field")

		badSummary := *cfg
		badSummary.ReportCfg.MinSummaryLength = 0
		err = badSummary.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report.min_summary_length must be a positive integer")

		badTimeout := *cfg
		badTimeout.ReportCfg.ProviderTimeout = 0
		err = badTimeout.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report.provider_timeout must be a positive duration")

		tracing := *cfg
		tracing.TracingCfg.Enabled = true
		err = tracing.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tracing.endpoint is required")
	})

	t.Run("Scan Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Scan()
		assert.NoError(t, valid.Validate())

		tests := []struct {
			name    string
			mutate  func(s *ScanConfig)
			wantErr string
		}{
			{"unknown source", func(s *ScanConfig) { s.Source = "shodan" }, "unknown finding source"},
			{"nmap without dir", func(s *ScanConfig) { s.Source = SourceNmap }, "nmap_dir is required"},
			{"no phases", func(s *ScanConfig) { s.Phases = nil }, "at least one phase is required"},
			{"non increasing", func(s *ScanConfig) { s.Phases[2].Progress = 30 }, "strictly increasing"},
			{"empty step", func(s *ScanConfig) { s.Phases[1].Step = "" }, "phases[1].step must not be empty"},
			{"negative delay", func(s *ScanConfig) { s.Phases[1].Delay = -time.Second }, "must not be negative"},
			{"final below 100", func(s *ScanConfig) { s.Phases = s.Phases[:5] }, "final phase must reach progress 100"},
			{"count ordering", func(s *ScanConfig) { s.FindingCounts.Stealth = 3 }, "comprehensive >= basic >= stealth"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s := NewDefaultConfig().Scan()
				tt.mutate(&s)
				err := s.Validate()
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			})
		}
	})

	t.Run("LLM Validation", func(t *testing.T) {
		l := NewDefaultConfig().Agent().LLM
		assert.NoError(t, l.Validate())

		l.DefaultFastModel = "missing"
		err := l.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `default model "missing" is not defined`)

		bad := LLMRouterConfig{Models: map[string]LLMModelConfig{"x": {Provider: "anthropic", Model: "m"}}}
		err = bad.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})

	t.Run("Retention Validation", func(t *testing.T) {
		r := RetentionConfig{Enabled: true, Window: time.Hour, Interval: time.Minute}
		assert.NoError(t, r.Validate())

		disabled := RetentionConfig{}
		assert.NoError(t, disabled.Validate(), "disabled retention config should always be valid")

		r.Window = 0
		err := r.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "window must be a positive duration")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
server:
  addr: "127.0.0.1:8080"
scan:
  finding_counts:
    comprehensive: 5
report:
  provider_timeout: 5s
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:8080", cfg.Server().Addr)
		assert.Equal(t, 5, cfg.Scan().FindingCounts.Comprehensive)
		assert.Equal(t, 2, cfg.Scan().FindingCounts.Basic, "defaults must survive partial YAML")
		assert.Equal(t, 5*time.Second, cfg.Report().ProviderTimeout)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("report.min_summary_length", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("API Key From Environment", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key-123")

		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "gem-key-123", cfg.Agent().LLM.Models["gemini-pro"].APIKey)
		assert.Equal(t, "gem-key-123", cfg.Agent().LLM.Models["gemini-flash"].APIKey)
	})
}

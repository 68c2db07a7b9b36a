// -- internal/llmclient/factory.go --
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/config"
)

// NewModelClient creates the client for a single model configuration.
func NewModelClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	var (
		client schemas.LLMClient
		err    error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		client, err = NewGoogleClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		client, err = NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]", cfg.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewClient builds a tiered router from the agent configuration. It returns a
// nil client and no error when either tier has no API key, which leaves
// report synthesis on the local path.
func NewClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	fastCfg, fastOK := cfg.LLM.Models[cfg.LLM.DefaultFastModel]
	powerfulCfg, powerfulOK := cfg.LLM.Models[cfg.LLM.DefaultPowerfulModel]
	if !fastOK || !powerfulOK {
		logger.Info("No LLM models configured for both tiers, using local synthesis")
		return nil, nil
	}
	if fastCfg.APIKey == "" || powerfulCfg.APIKey == "" {
		logger.Info("No LLM API key configured, using local synthesis",
			zap.String("fast_model", cfg.LLM.DefaultFastModel),
			zap.String("powerful_model", cfg.LLM.DefaultPowerfulModel))
		return nil, nil
	}

	fast, err := NewModelClient(ctx, fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast tier client %q: %w", cfg.LLM.DefaultFastModel, err)
	}
	powerful := fast
	if cfg.LLM.DefaultPowerfulModel != cfg.LLM.DefaultFastModel {
		powerful, err = NewModelClient(ctx, powerfulCfg, logger)
		if err != nil {
			_ = fast.Close()
			return nil, fmt.Errorf("failed to create powerful tier client %q: %w", cfg.LLM.DefaultPowerfulModel, err)
		}
	}

	logger.Info("LLM router initialized",
		zap.String("fast_model", fastCfg.Model),
		zap.String("powerful_model", powerfulCfg.Model))
	router, err := NewLLMRouter(logger, fast, powerful)
	if err != nil {
		return nil, err
	}
	return router, nil
}

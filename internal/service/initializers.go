// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/analyst"
	"github.com/xkilldash9x/pentestd/internal/config"
	"github.com/xkilldash9x/pentestd/internal/llmclient"
	"github.com/xkilldash9x/pentestd/internal/observability"
)

// InitializeLLMClient creates the tiered LLM client from the configuration. A
// nil client with a nil error means no provider keys are configured.
func InitializeLLMClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	llmClient, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. Reports will use local synthesis only.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llmClient, nil
}

// InitializeProvider wraps an LLM client in the rate-limited text analysis
// provider. It returns a nil interface for a nil client.
func InitializeProvider(client schemas.LLMClient, cfg config.LLMRouterConfig, logger *zap.Logger) schemas.TextAnalysisProvider {
	if client == nil {
		return nil
	}
	return analyst.New(client, cfg.RequestsPerSecond, cfg.Burst, logger)
}

// InitializeTracing installs the OTLP tracer provider when tracing is enabled.
func InitializeTracing(ctx context.Context, cfg config.TracingConfig, serviceName, version string, logger *zap.Logger) (observability.ShutdownFunc, error) {
	shutdown, err := observability.InitTracing(ctx, cfg, serviceName, version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return shutdown, nil
}

// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/config"
	"github.com/xkilldash9x/pentestd/internal/findings"
	"github.com/xkilldash9x/pentestd/internal/observability"
	"github.com/xkilldash9x/pentestd/internal/results"
	"github.com/xkilldash9x/pentestd/internal/retention"
	"github.com/xkilldash9x/pentestd/internal/scanner"
	"github.com/xkilldash9x/pentestd/internal/store"
)

// ComponentFactory creates the set of components a command needs. Commands
// depend on the interface so tests can substitute their own wiring.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, version string, logger *zap.Logger) (*Components, error)
}

// Option customizes the production factory.
type Option func(*concreteFactory)

// WithSource replaces the configured finding source.
func WithSource(source schemas.FindingSource) Option {
	return func(f *concreteFactory) { f.source = source }
}

// WithLLMClient replaces the configured LLM client.
func WithLLMClient(client schemas.LLMClient) Option {
	return func(f *concreteFactory) { f.llmClient = client }
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	source    schemas.FindingSource
	llmClient schemas.LLMClient
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory(opts ...Option) ComponentFactory {
	f := &concreteFactory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create handles the full dependency injection and initialization of components.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, version string, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	// Release anything already created if a later step fails.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			_ = components.Shutdown(context.Background())
		}
	}()

	// 1. Tracing, so every later component picks up the global provider.
	shutdownTracing, err := InitializeTracing(ctx, cfg.Tracing(), cfg.Logger().ServiceName, version, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.shutdownTracing = shutdownTracing

	// 2. Metrics
	if cfg.Metrics().Enabled {
		components.Metrics = observability.NewMetrics()
		logger.Debug("Metrics registry initialized.")
	}

	// 3. Store
	components.Store = store.New(logger)
	logger.Debug("Store initialized.")

	// 4. Finding source
	source := f.source
	if source == nil {
		source, err = findings.NewSource(cfg.Scan(), logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize finding source: %w", err)
			return nil, initializationErr
		}
	}
	components.Source = source
	logger.Debug("Finding source initialized.", zap.String("source", cfg.Scan().Source))

	// 5. LLM client and provider (optional)
	client := f.llmClient
	if client == nil {
		client, err = InitializeLLMClient(ctx, cfg.Agent(), logger)
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
	}
	components.LLMClient = client
	components.Provider = InitializeProvider(client, cfg.Agent().LLM, logger)
	if components.Provider == nil {
		logger.Info("No text analysis provider configured. Reports will use local synthesis.")
	}

	// 6. Scanner
	components.Scanner = scanner.New(components.Store, source, cfg.Scan().Phases, components.Metrics, logger)
	logger.Debug("Scan state machine initialized.", zap.Int("phases", len(cfg.Scan().Phases)))

	// 7. Synthesizer
	reportCfg := cfg.Report()
	components.Synthesizer = results.NewSynthesizer(components.Store, components.Provider, results.Options{
		MinSummaryLength: reportCfg.MinSummaryLength,
		ProviderTimeout:  reportCfg.ProviderTimeout,
		ToolsUsed:        reportCfg.ToolsUsed,
	}, components.Metrics, logger)
	logger.Debug("Report synthesizer initialized.")

	// 8. Retention sweeper
	if cfg.Retention().Enabled {
		components.Sweeper = retention.New(components.Store, cfg.Retention(), components.Metrics, logger)
		logger.Debug("Retention sweeper initialized.")
	}

	logger.Info("All components initialized successfully.")
	return components, nil
}

// File: internal/service/components.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/observability"
	"github.com/xkilldash9x/pentestd/internal/results"
	"github.com/xkilldash9x/pentestd/internal/retention"
	"github.com/xkilldash9x/pentestd/internal/scanner"
	"github.com/xkilldash9x/pentestd/internal/store"
)

// Components holds every initialized service of a pentestd process and owns
// their shutdown order.
type Components struct {
	Store       *store.Store
	Source      schemas.FindingSource
	LLMClient   schemas.LLMClient
	Provider    schemas.TextAnalysisProvider
	Scanner     *scanner.Machine
	Synthesizer *results.Synthesizer
	Sweeper     *retention.Sweeper
	Metrics     *observability.Metrics

	shutdownTracing observability.ShutdownFunc
	shutdownOnce    sync.Once
	shutdownErr     error
}

// Shutdown gracefully closes all components. It is safe to call more than once.
func (c *Components) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		logger := observability.GetLogger()
		logger.Debug("Beginning components shutdown sequence.")

		var errs []error

		// 1. Stop the scanner first so no scan is left running.
		if c.Scanner != nil {
			if err := c.Scanner.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("scanner shutdown: %w", err))
			} else {
				logger.Debug("Scanner stopped.")
			}
		}

		// 2. Release provider connections.
		if c.LLMClient != nil {
			if err := c.LLMClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("LLM client close: %w", err))
			} else {
				logger.Debug("LLM client closed.")
			}
		}

		// 3. Flush pending spans last so shutdown work is still traced.
		if c.shutdownTracing != nil {
			if err := c.shutdownTracing(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
			}
		}

		c.shutdownErr = errors.Join(errs...)
		if c.shutdownErr != nil {
			logger.Warn("Components shut down with errors.", zap.Error(c.shutdownErr))
			return
		}
		logger.Info("All components shut down successfully.")
	})
	return c.shutdownErr
}

// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pentestd/internal/observability"
	"github.com/xkilldash9x/pentestd/internal/server"
)

const componentShutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the retention sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a, observability.GetLogger())
		},
	}

	serveCmd.Flags().String("addr", "", "Listen address for the HTTP API. (Overrides config/env)")
	_ = a.v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	return serveCmd
}

// runServe builds the components and serves until ctx is cancelled.
func runServe(ctx context.Context, a *app, logger *zap.Logger) error {
	components, err := a.factory.Create(ctx, a.cfg, Version, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), componentShutdownTimeout)
		defer cancel()
		if err := components.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Component shutdown reported errors", zap.Error(err))
		}
		observability.Sync()
	}()

	srv, err := server.New(a.cfg.Server(), a.cfg.Metrics(), server.Deps{
		Scans:   components.Scanner,
		Reports: components.Synthesizer,
		Metrics: components.Metrics,
		Version: Version,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if components.Sweeper != nil {
		g.Go(func() error { return components.Sweeper.Run(gctx) })
	}

	logger.Info("pentestd serving",
		zap.String("addr", a.cfg.Server().Addr),
		zap.Bool("provider_configured", components.Synthesizer.ProviderConfigured()),
		zap.String("version", Version))

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("pentestd stopped.")
	return nil
}

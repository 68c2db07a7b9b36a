// File: cmd/scan.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/observability"
	"github.com/xkilldash9x/pentestd/internal/reporting"
	"github.com/xkilldash9x/pentestd/internal/service"
)

const progressInterval = 200 * time.Millisecond

type scanOptions struct {
	scanType    string
	description string
	report      bool
	output      string
	format      string
}

// newScanCmd creates and configures the `scan` command.
func newScanCmd(a *app) *cobra.Command {
	opts := &scanOptions{}
	scanCmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Runs a single scan against a target and optionally writes its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// An output path implies a report.
			if cmd.Flags().Changed("output") {
				opts.report = true
			}
			return runScan(cmd.Context(), a, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr(), observability.GetLogger())
		},
	}

	scanCmd.Flags().StringVarP(&opts.scanType, "type", "t", string(schemas.ScanTypeBasic), "Scan type: basic, comprehensive or stealth.")
	scanCmd.Flags().StringVar(&opts.description, "description", "", "Free-form description stored with the scan.")
	scanCmd.Flags().BoolVar(&opts.report, "report", false, "Synthesize a report once the scan completes.")
	scanCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file path for the report. Defaults to stdout.")
	scanCmd.Flags().StringVarP(&opts.format, "format", "f", reporting.FormatJSON, "Format for the output report ('json' or 'sarif').")

	return scanCmd
}

// runScan drives one scan to a terminal status, printing progress to progress
// and the optional report to out.
func runScan(ctx context.Context, a *app, target string, opts *scanOptions, out, progress io.Writer, logger *zap.Logger) error {
	if opts.report && opts.format != reporting.FormatJSON && opts.format != reporting.FormatSARIF {
		return fmt.Errorf("unsupported output format: %s", opts.format)
	}

	components, err := a.factory.Create(ctx, a.cfg, Version, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scan components: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), componentShutdownTimeout)
		defer cancel()
		if err := components.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Component shutdown reported errors", zap.Error(err))
		}
	}()

	scan, err := components.Scanner.CreateScan(ctx, target, schemas.ScanType(opts.scanType), opts.description)
	if err != nil {
		return err
	}
	fmt.Fprintf(progress, "Scan %s started against %s (%s)\n", scan.ID, scan.Target, scan.ScanType)

	scan, err = advanceWithProgress(ctx, components, scan.ID, progress)
	if err != nil {
		return err
	}

	switch scan.Status {
	case schemas.ScanStatusCompleted:
	case schemas.ScanStatusFailed:
		if ctx.Err() != nil {
			logger.Warn("Scan aborted gracefully", zap.String("scan_id", scan.ID))
			return fmt.Errorf("scan aborted by user signal: %w", ctx.Err())
		}
		return fmt.Errorf("scan %s failed: %s", scan.ID, scan.Error)
	default:
		return fmt.Errorf("scan %s ended as %s: %s", scan.ID, scan.Status, scan.Error)
	}

	fmt.Fprintf(progress, "\nScan Complete. Scan ID: %s (%d vulnerabilities)\n", scan.ID, len(scan.Vulnerabilities))
	if !opts.report {
		return nil
	}
	return writeReport(ctx, components, scan.ID, opts, out, logger)
}

// advanceWithProgress advances the scan while polling its step for display.
func advanceWithProgress(ctx context.Context, components *service.Components, id string, progress io.Writer) (schemas.Scan, error) {
	done := make(chan struct{})
	last := ""
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		return components.Scanner.Advance(ctx, id)
	})
	g.Go(func() error {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			scan, err := components.Scanner.GetScan(gctx, id)
			if err == nil && scan.CurrentStep != last {
				last = scan.CurrentStep
				fmt.Fprintf(progress, "[%3d%%] %s\n", scan.Progress, scan.CurrentStep)
			}
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if err := g.Wait(); err != nil {
		return schemas.Scan{}, fmt.Errorf("scan %s could not be advanced: %w", id, err)
	}
	final, err := components.Scanner.GetScan(ctx, id)
	if err != nil {
		return schemas.Scan{}, err
	}
	if final.CurrentStep != last {
		fmt.Fprintf(progress, "[%3d%%] %s\n", final.Progress, final.CurrentStep)
	}
	return final, nil
}

// writeReport synthesizes the report and writes it to the output path, or to
// out when no path is set.
func writeReport(ctx context.Context, components *service.Components, scanID string, opts *scanOptions, out io.Writer, logger *zap.Logger) error {
	report, err := components.Synthesizer.Synthesize(ctx, scanID)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	var reporter reporting.Reporter
	if opts.output == "" {
		reporter, err = reporting.NewWriter(opts.format, reporting.NopCloser(out), Version, logger)
	} else {
		reporter, err = reporting.New(opts.format, opts.output, Version, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}

	writeErr := reporter.Write(&report)
	closeErr := reporter.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Info("Report generated successfully.",
		zap.String("report_id", report.ID),
		zap.String("format", opts.format),
		zap.String("risk_level", string(report.RiskLevel)))
	return nil
}

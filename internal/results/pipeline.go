// File: internal/results/pipeline.go
package results

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/llmutil"
	"github.com/xkilldash9x/pentestd/internal/observability"
)

const (
	defaultMinSummaryLength = 10
	defaultProviderTimeout  = 60 * time.Second
)

// Synthesizer turns completed scans into reports. The provider is optional;
// any provider failure degrades to local synthesis instead of failing the call.
type Synthesizer struct {
	store    ReportStore
	provider schemas.TextAnalysisProvider
	opts     Options
	metrics  *observability.Metrics
	logger   *zap.Logger

	inflight singleflight.Group
	now      func() time.Time
	newID    func() string
}

// NewSynthesizer creates a synthesizer. A nil provider selects local synthesis
// for every report.
func NewSynthesizer(store ReportStore, provider schemas.TextAnalysisProvider, opts Options, metrics *observability.Metrics, logger *zap.Logger) *Synthesizer {
	if opts.MinSummaryLength <= 0 {
		opts.MinSummaryLength = defaultMinSummaryLength
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = defaultProviderTimeout
	}
	return &Synthesizer{
		store:    store,
		provider: provider,
		opts:     opts,
		metrics:  metrics,
		logger:   logger.Named("synthesizer"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ProviderConfigured reports whether a text analysis provider is wired in.
func (s *Synthesizer) ProviderConfigured() bool {
	return s.provider != nil
}

// Synthesize builds, stores and returns the report for a completed scan.
// Concurrent calls for the same scan share a single report. The shared call
// is detached from the first caller's cancellation; the provider timeout
// still bounds it.
func (s *Synthesizer) Synthesize(ctx context.Context, scanID string) (schemas.Report, error) {
	shared := context.WithoutCancel(ctx)
	v, err, joined := s.inflight.Do(scanID, func() (any, error) {
		return s.synthesize(shared, scanID)
	})
	if err != nil {
		return schemas.Report{}, err
	}
	report := v.(schemas.Report)
	if joined {
		s.logger.Debug("Shared in-flight report", zap.String("scan_id", scanID), zap.String("report_id", report.ID))
	}
	return report.Clone(), nil
}

func (s *Synthesizer) synthesize(ctx context.Context, scanID string) (schemas.Report, error) {
	ctx, span := observability.Tracer().Start(ctx, "results.Synthesize",
		trace.WithAttributes(attribute.String("scan.id", scanID)))
	defer span.End()
	start := time.Now()

	scan, err := s.store.GetScan(scanID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan lookup failed")
		return schemas.Report{}, err
	}
	if scan.Status != schemas.ScanStatusCompleted {
		return schemas.Report{}, &schemas.InvalidStateError{
			ID:     scanID,
			Status: scan.Status,
			Reason: "scan must be completed to generate report",
		}
	}
	if err := validateFindings(scan.Vulnerabilities); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed findings")
		return schemas.Report{}, err
	}

	prose := s.compose(ctx, scan)
	report := GenerateReport(s.newID(), scan, prose, s.opts.ToolsUsed, s.now().UTC())
	if err := s.store.AppendReport(report); err != nil {
		span.RecordError(err)
		return schemas.Report{}, fmt.Errorf("failed to store report for scan %s: %w", scanID, err)
	}

	elapsed := time.Since(start)
	s.metrics.ReportSynthesized(string(report.Provenance), elapsed)
	span.SetAttributes(
		attribute.String("report.id", report.ID),
		attribute.String("report.provenance", string(report.Provenance)),
		attribute.Int("report.vulnerabilities", len(report.Vulnerabilities)),
	)
	s.logger.Info("Report generated",
		zap.String("scan_id", scanID),
		zap.String("report_id", report.ID),
		zap.String("provenance", string(report.Provenance)),
		zap.String("risk_level", string(report.RiskLevel)),
		zap.Duration("elapsed", elapsed))
	return report, nil
}

func validateFindings(findings []schemas.Finding) error {
	for i, f := range findings {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: finding %d has no name", schemas.ErrInvariant, i)
		}
		if f.Port < 0 || f.Port > 65535 {
			return fmt.Errorf("%w: finding %q has port %d outside 0..65535", schemas.ErrInvariant, f.Name, f.Port)
		}
	}
	return nil
}

// compose returns provider prose when the provider answers plausibly, and
// local prose otherwise.
func (s *Synthesizer) compose(ctx context.Context, scan schemas.Scan) Prose {
	local := LocalProse(scan.Vulnerabilities, scan.Target, scan.ScanType)
	if s.provider == nil {
		return local
	}
	logger := s.logger.With(zap.String("scan_id", scan.ID))

	analysis, summary, err := s.callProvider(ctx, scan)
	if err != nil {
		logger.Warn("Text analysis provider failed, using local synthesis", zap.Error(err))
		return local
	}

	extracted := llmutil.ExtractSection(analysis, SectionExecutiveSummary)
	summary = strings.TrimSpace(summary)
	if utf8.RuneCountInString(extracted) < s.opts.MinSummaryLength || utf8.RuneCountInString(summary) < s.opts.MinSummaryLength {
		logger.Warn("Provider response failed plausibility check, using local synthesis",
			zap.Int("summary_section_runes", utf8.RuneCountInString(extracted)),
			zap.Int("executive_summary_runes", utf8.RuneCountInString(summary)),
			zap.String("analysis_head", llmutil.Truncate(analysis, 200)))
		return local
	}

	prose := Prose{
		ExecutiveSummary: summary,
		Summary:          extracted,
		RiskAssessment:   llmutil.ExtractSection(analysis, SectionRiskAssessment),
		DetailedAnalysis: llmutil.ExtractSection(analysis, SectionDetailedAnalysis),
		RemediationSteps: llmutil.ExtractList(analysis, SectionRemediationSteps),
		Recommendations:  llmutil.ExtractList(analysis, SectionRecommendations),
		Provenance:       schemas.ProvenanceProvider,
	}
	if prose.RiskAssessment == "" {
		prose.RiskAssessment = local.RiskAssessment
	}
	if prose.DetailedAnalysis == "" {
		prose.DetailedAnalysis = local.DetailedAnalysis
	}
	if len(prose.RemediationSteps) == 0 {
		prose.RemediationSteps = local.RemediationSteps
	}
	if len(prose.Recommendations) == 0 {
		prose.Recommendations = local.Recommendations
	}
	return prose
}

type providerResult struct {
	analysis, summary string
	err               error
}

// callProvider runs the analysis and executive summary calls concurrently
// under the provider timeout. A provider that outlives the timeout is
// abandoned and its late result dropped.
func (s *Synthesizer) callProvider(ctx context.Context, scan schemas.Scan) (analysis, summary string, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	digest := schemas.ScanDigest{
		Target:          scan.Target,
		ScanType:        scan.ScanType,
		Vulnerabilities: schemas.CloneFindings(scan.Vulnerabilities),
	}
	if d := scan.Duration(); d > 0 {
		digest.Duration = d.Round(time.Millisecond).String()
	}
	findings := schemas.CloneFindings(scan.Vulnerabilities)

	done := make(chan providerResult, 1)
	go func() {
		var res providerResult
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			defer s.recoverProvider("analyze", &err)
			text, callErr := s.provider.Analyze(gctx, findings, scan.Target)
			s.metrics.ProviderCall("analyze", outcome(callErr))
			if callErr != nil {
				return fmt.Errorf("%w: analyze: %w", schemas.ErrProvider, callErr)
			}
			res.analysis = text
			return nil
		})
		g.Go(func() (err error) {
			defer s.recoverProvider("summarize", &err)
			text, callErr := s.provider.Summarize(gctx, digest)
			s.metrics.ProviderCall("summarize", outcome(callErr))
			if callErr != nil {
				return fmt.Errorf("%w: summarize: %w", schemas.ErrProvider, callErr)
			}
			res.summary = text
			return nil
		})
		res.err = g.Wait()
		done <- res
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", "", res.err
		}
		return res.analysis, res.summary, nil
	case <-ctx.Done():
		return "", "", fmt.Errorf("%w: no response within %s: %w", schemas.ErrProvider, s.opts.ProviderTimeout, ctx.Err())
	}
}

// recoverProvider converts a provider panic into an ErrProvider failure.
func (s *Synthesizer) recoverProvider(call string, err *error) {
	if r := recover(); r != nil {
		s.metrics.ProviderCall(call, "error")
		s.logger.Error("Text analysis provider panicked",
			zap.String("call", call),
			zap.Any("panic", r),
			zap.Stack("stack"))
		*err = fmt.Errorf("%w: %s: panic: %v", schemas.ErrProvider, call, r)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// GetReport returns a stored report.
func (s *Synthesizer) GetReport(id string) (schemas.Report, error) {
	return s.store.GetReport(id)
}

// ListReports returns all stored reports in creation order.
func (s *Synthesizer) ListReports() []schemas.Report {
	return s.store.ListReports()
}

// TestProvider sends a trivial prompt to the provider and returns its reply.
func (s *Synthesizer) TestProvider(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("%w: no text analysis provider configured", schemas.ErrProvider)
	}
	return s.provider.TestConnection(ctx)
}

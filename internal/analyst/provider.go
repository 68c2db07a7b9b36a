// Package analyst adapts a tiered LLM client to the text analysis provider
// consumed by report synthesis.
package analyst

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

const (
	systemPrompt = "You are a cybersecurity expert specializing in penetration testing and vulnerability assessment. Provide detailed, actionable security analysis."

	testPrompt = "Hello, this is a test connection."

	analysisMaxTokens = 1500
	summaryMaxTokens  = 300
	testMaxTokens     = 50
	temperature       = 0.3
)

// Provider implements schemas.TextAnalysisProvider over an LLM client.
type Provider struct {
	client  schemas.LLMClient
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New wraps client. A non-positive requestsPerSecond disables rate limiting.
func New(client schemas.LLMClient, requestsPerSecond float64, burst int, logger *zap.Logger) *Provider {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Provider{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("analyst"),
	}
}

// Analyze asks the powerful tier for the sectioned analysis of the findings.
func (p *Provider) Analyze(ctx context.Context, vulnerabilities []schemas.Finding, target string) (string, error) {
	return p.generate(ctx, "analyze", schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   AnalysisPrompt(vulnerabilities, target),
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: temperature, MaxTokens: analysisMaxTokens},
	})
}

// Summarize asks the fast tier for a short executive summary.
func (p *Provider) Summarize(ctx context.Context, digest schemas.ScanDigest) (string, error) {
	return p.generate(ctx, "summarize", schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   SummaryPrompt(digest),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: temperature, MaxTokens: summaryMaxTokens},
	})
}

// TestConnection sends a trivial prompt on the fast tier.
func (p *Provider) TestConnection(ctx context.Context) (string, error) {
	return p.generate(ctx, "test", schemas.GenerationRequest{
		UserPrompt: testPrompt,
		Tier:       schemas.TierFast,
		Options:    schemas.GenerationOptions{Temperature: temperature, MaxTokens: testMaxTokens},
	})
}

func (p *Provider) generate(ctx context.Context, call string, req schemas.GenerationRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: rate limiter: %w", call, err)
	}
	text, err := p.client.Generate(ctx, req)
	if err != nil {
		p.logger.Warn("LLM call failed", zap.String("call", call), zap.String("tier", string(req.Tier)), zap.Error(err))
		return "", fmt.Errorf("%s: %w", call, err)
	}
	p.logger.Debug("LLM call complete", zap.String("call", call), zap.Int("response_len", len(text)))
	return text, nil
}

// AnalysisPrompt lists the findings and asks for the five report sections.
func AnalysisPrompt(vulnerabilities []schemas.Finding, target string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a cybersecurity expert analyzing penetration test results. Please analyze the following vulnerabilities found on %s:\n\n", target)
	for _, v := range vulnerabilities {
		fmt.Fprintf(&b, "- %s (%s): %s [Port: %d, Service: %s]\n", v.Name, v.Severity, v.Description, v.Port, v.Service)
	}
	b.WriteString(`
Please provide a structured analysis with:

1. EXECUTIVE_SUMMARY: A brief 2-3 sentence summary for management
2. RISK_ASSESSMENT: Overall risk level (Critical/High/Medium/Low) and detailed explanation
3. DETAILED_ANALYSIS: Technical analysis of each vulnerability
4. REMEDIATION_STEPS: Prioritized list of specific remediation actions
5. RECOMMENDATIONS: Long-term security recommendations

Format your response clearly with these section headers.`)
	return b.String()
}

// SummaryPrompt asks for a C-level summary from the scan's severity counts.
func SummaryPrompt(digest schemas.ScanDigest) string {
	counts := make(map[schemas.Severity]int, 4)
	for _, v := range digest.Vulnerabilities {
		sev := v.Severity.Normalize()
		if !sev.IsDeclared() {
			sev = schemas.SeverityLow
		}
		counts[sev]++
	}

	var b strings.Builder
	b.WriteString("Generate a professional executive summary for a penetration testing report:\n\n")
	fmt.Fprintf(&b, "Target: %s\n", digest.Target)
	fmt.Fprintf(&b, "Scan Type: %s\n", digest.ScanType)
	if digest.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", digest.Duration)
	}
	fmt.Fprintf(&b, "Total Vulnerabilities: %d\n", len(digest.Vulnerabilities))
	fmt.Fprintf(&b, "Critical: %d\n", counts[schemas.SeverityCritical])
	fmt.Fprintf(&b, "High: %d\n", counts[schemas.SeverityHigh])
	fmt.Fprintf(&b, "Medium: %d\n", counts[schemas.SeverityMedium])
	fmt.Fprintf(&b, "Low: %d\n", counts[schemas.SeverityLow])
	b.WriteString("\nWrite a concise, business-focused executive summary (3-4 sentences) suitable for C-level executives.")
	return b.String()
}

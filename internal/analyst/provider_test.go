package analyst

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLMClient) Close() error {
	return m.Called().Error(0)
}

func sampleFindings() []schemas.Finding {
	return []schemas.Finding{
		{Name: "Open SSH Port", Description: "SSH service is running on default port 22", Severity: schemas.SeverityMedium, Port: 22, Service: "ssh"},
		{Name: "Default Credentials", Description: "Service using default username/password combination", Severity: schemas.SeverityCritical, Port: 23, Service: "telnet"},
		{Name: "Odd Finding", Description: "Unrated", Severity: "informational", Port: 8080, Service: "http-alt"},
	}
}

func TestAnalysisPrompt(t *testing.T) {
	prompt := AnalysisPrompt(sampleFindings(), "example.com")

	assert.Contains(t, prompt, "vulnerabilities found on example.com:\n\n")
	assert.Contains(t, prompt, "- Open SSH Port (medium): SSH service is running on default port 22 [Port: 22, Service: ssh]\n")
	assert.Contains(t, prompt, "- Default Credentials (critical): Service using default username/password combination [Port: 23, Service: telnet]\n")
	for _, section := range []string{"EXECUTIVE_SUMMARY:", "RISK_ASSESSMENT:", "DETAILED_ANALYSIS:", "REMEDIATION_STEPS:", "RECOMMENDATIONS:"} {
		assert.Contains(t, prompt, section)
	}
	assert.True(t, len(prompt) > 0 && prompt[len(prompt)-1] == '.')
}

func TestSummaryPrompt(t *testing.T) {
	prompt := SummaryPrompt(schemas.ScanDigest{
		Target:          "10.0.0.1",
		ScanType:        schemas.ScanTypeComprehensive,
		Vulnerabilities: sampleFindings(),
		Duration:        "12s",
	})

	want := "Generate a professional executive summary for a penetration testing report:\n\n" +
		"Target: 10.0.0.1\n" +
		"Scan Type: comprehensive\n" +
		"Duration: 12s\n" +
		"Total Vulnerabilities: 3\n" +
		"Critical: 1\n" +
		"High: 0\n" +
		"Medium: 1\n" +
		"Low: 1\n" +
		"\nWrite a concise, business-focused executive summary (3-4 sentences) suitable for C-level executives."
	assert.Equal(t, want, prompt)
}

func TestProvider_RoutesByTier(t *testing.T) {
	client := new(mockLLMClient)
	p := New(client, 0, 0, zap.NewNop())
	ctx := context.Background()

	client.On("Generate", ctx, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierPowerful && req.Options.MaxTokens == analysisMaxTokens && req.SystemPrompt == systemPrompt
	})).Return("EXECUTIVE_SUMMARY: all good here", nil).Once()
	client.On("Generate", ctx, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierFast && req.Options.MaxTokens == summaryMaxTokens
	})).Return("Short summary for executives.", nil).Once()
	client.On("Generate", ctx, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.UserPrompt == testPrompt
	})).Return("pong", nil).Once()

	analysis, err := p.Analyze(ctx, sampleFindings(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "EXECUTIVE_SUMMARY: all good here", analysis)

	summary, err := p.Summarize(ctx, schemas.ScanDigest{Target: "example.com", ScanType: schemas.ScanTypeBasic})
	require.NoError(t, err)
	assert.Equal(t, "Short summary for executives.", summary)

	reply, err := p.TestConnection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)

	client.AssertExpectations(t)
}

func TestProvider_ErrorIsWrappedAndLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	client := new(mockLLMClient)
	p := New(client, 0, 0, zap.New(core))
	cause := errors.New("quota exceeded")
	client.On("Generate", mock.Anything, mock.Anything).Return("", cause)

	_, err := p.Analyze(context.Background(), sampleFindings(), "example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "analyze")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "LLM call failed", logs.All()[0].Message)
	assert.Equal(t, "powerful", logs.All()[0].ContextMap()["tier"])
}

func TestProvider_RateLimitHonoursContext(t *testing.T) {
	client := new(mockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).Return("ok", nil)
	// One token per minute: the second call must wait far beyond the deadline.
	p := New(client, 1.0/60, 1, zap.NewNop())

	_, err := p.TestConnection(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.TestConnection(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	client.AssertNumberOfCalls(t, "Generate", 1)
}

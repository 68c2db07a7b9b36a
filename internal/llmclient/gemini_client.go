// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/config"
)

// GoogleClient implements schemas.LLMClient on top of the Gemini API SDK.
type GoogleClient struct {
	client *genai.Client
	config config.LLMModelConfig
	logger *zap.Logger

	// backoffFactory is swapped in tests for faster retry schedules.
	backoffFactory func() backoff.BackOff
}

// NewGoogleClient initializes the SDK client for a single model.
func NewGoogleClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Google/Gemini API Key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini SDK client: %w", err)
	}

	return &GoogleClient{
		client:         client,
		config:         cfg,
		logger:         logger.Named("llm_client.gemini").With(zap.String("model", cfg.Model)),
		backoffFactory: defaultBackoff,
	}, nil
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second
	return b
}

// Generate sends the prompts to Gemini and returns the generated text, retrying
// transient failures.
func (c *GoogleClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents := genai.Text(req.UserPrompt)
	genCfg := c.buildConfig(req)

	var responseContent string
	operation := func() error {
		startTime := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, genCfg)
		duration := time.Since(startTime)
		if err != nil {
			return c.classifyError(ctx, err)
		}

		if len(resp.Candidates) == 0 {
			if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the prompt (Reason: %s)", resp.PromptFeedback.BlockReason))
			}
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := resp.Candidates[0]
		text := resp.Text()
		if text == "" {
			switch reason := string(candidate.FinishReason); reason {
			case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", reason))
			default:
				return fmt.Errorf("gemini API returned empty content (Reason: %s)", reason)
			}
		}

		fields := []zap.Field{zap.Duration("duration", duration)}
		if usage := resp.UsageMetadata; usage != nil {
			fields = append(fields,
				zap.Int("prompt_tokens", int(usage.PromptTokenCount)),
				zap.Int("completion_tokens", int(usage.CandidatesTokenCount)),
				zap.Int("total_tokens", int(usage.TotalTokenCount)),
			)
		}
		c.logger.Info("LLM generation complete (Gemini)", fields...)

		responseContent = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (c *GoogleClient) buildConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Options.Temperature)),
		MaxOutputTokens: int32(c.config.MaxTokens),
		SafetySettings:  c.safetySettings(),
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if c.config.TopP > 0 {
		cfg.TopP = genai.Ptr(c.config.TopP)
	}
	if c.config.TopK > 0 {
		cfg.TopK = genai.Ptr(float32(c.config.TopK))
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return cfg
}

func (c *GoogleClient) safetySettings() []*genai.SafetySetting {
	if len(c.config.SafetyFilters) == 0 {
		return nil
	}
	settings := make([]*genai.SafetySetting, 0, len(c.config.SafetyFilters))
	for category, threshold := range c.config.SafetyFilters {
		settings = append(settings, &genai.SafetySetting{
			Category:  genai.HarmCategory(category),
			Threshold: genai.HarmBlockThreshold(threshold),
		})
	}
	return settings
}

// classifyError marks API errors permanent unless the status is retryable.
func (c *GoogleClient) classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	if code, ok := apiStatus(err); ok {
		c.logger.Error("Gemini API returned error status", zap.Int("status", code), zap.Error(err))
		if retryableStatus(code) {
			return err
		}
		return backoff.Permanent(err)
	}
	c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
	return err
}

func apiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// Close releases client resources. The SDK client holds none.
func (c *GoogleClient) Close() error {
	return nil
}

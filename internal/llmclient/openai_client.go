// internal/llmclient/openai_client.go
package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient implements schemas.LLMClient against an OpenAI compatible
// chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.LLMModelConfig

	backoffFactory func() backoff.BackOff
}

// -- Chat Completions Request/Response Structures --

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequestPayload struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float32       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type ChatChoice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponsePayload struct {
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model name is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}

	return &OpenAIClient{
		apiKey:         cfg.APIKey,
		endpoint:       endpoint,
		config:         cfg,
		httpClient:     &http.Client{Timeout: cfg.APITimeout},
		logger:         logger.Named("llm_client.openai").With(zap.String("model", cfg.Model)),
		backoffFactory: defaultBackoff,
	}, nil
}

// Generate sends the prompts to the chat completions endpoint with retries.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	body, err := json.Marshal(c.buildRequestPayload(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var responseContent string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var payload ChatResponsePayload
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(payload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("openai API returned no choices"))
		}

		choice := payload.Choices[0]
		if choice.Message.Content == "" {
			if choice.FinishReason == "content_filter" {
				return backoff.Permanent(fmt.Errorf("openai API blocked the request (Reason: %s)", choice.FinishReason))
			}
			return fmt.Errorf("openai API returned empty content (Reason: %s)", choice.FinishReason)
		}

		c.logger.Info("LLM generation complete (OpenAI)",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", payload.Usage.PromptTokens),
			zap.Int("completion_tokens", payload.Usage.CompletionTokens),
			zap.Int("total_tokens", payload.Usage.TotalTokens),
		)
		responseContent = choice.Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (c *OpenAIClient) buildRequestPayload(req schemas.GenerationRequest) ChatRequestPayload {
	payload := ChatRequestPayload{
		Model:       c.config.Model,
		Temperature: req.Options.Temperature,
		TopP:        c.config.TopP,
		MaxTokens:   c.config.MaxTokens,
	}
	if req.Options.MaxTokens > 0 {
		payload.MaxTokens = req.Options.MaxTokens
	}
	if req.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, ChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	payload.Messages = append(payload.Messages, ChatMessage{Role: "user", Content: req.UserPrompt})
	return payload
}

func (c *OpenAIClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("OpenAI API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("openai API error: status %d, body: %s", statusCode, string(body))
	if retryableStatus(statusCode) {
		return err
	}
	return backoff.Permanent(err)
}

// Close releases idle connections.
func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

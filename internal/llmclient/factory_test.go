package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/config"
)

func routerConfig(fast, powerful config.LLMModelConfig) config.AgentConfig {
	return config.AgentConfig{
		LLM: config.LLMRouterConfig{
			DefaultFastModel:     "fast-alias",
			DefaultPowerfulModel: "powerful-alias",
			Models: map[string]config.LLMModelConfig{
				"fast-alias":     fast,
				"powerful-alias": powerful,
			},
		},
	}
}

// -- Test Cases: Factory Initialization (NewClient) --

func TestNewClient_RouterInitialization(t *testing.T) {
	fastConfig := getValidLLMConfig()
	fastConfig.Model = "gemini-flash"
	fastConfig.APIKey = "key-fast"

	powerfulConfig := getValidLLMConfig()
	powerfulConfig.Provider = config.ProviderOpenAI
	powerfulConfig.Model = "gpt-4o"
	powerfulConfig.APIKey = "key-powerful"

	client, err := NewClient(context.Background(), routerConfig(fastConfig, powerfulConfig), setupTestLogger(t))
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	router, ok := client.(*LLMRouter)
	require.True(t, ok, "The created client should be of type *LLMRouter")

	fast, ok := router.clients[schemas.TierFast].(*GoogleClient)
	require.True(t, ok, "Fast client should be an instance of *GoogleClient")
	assert.Equal(t, "gemini-flash", fast.config.Model)
	assert.Equal(t, "key-fast", fast.config.APIKey)

	powerful, ok := router.clients[schemas.TierPowerful].(*OpenAIClient)
	require.True(t, ok, "Powerful client should be an instance of *OpenAIClient")
	assert.Equal(t, "gpt-4o", powerful.config.Model)
	assert.Equal(t, "key-powerful", powerful.apiKey)
}

func TestNewClient_SharedModel(t *testing.T) {
	cfg := config.AgentConfig{LLM: config.LLMRouterConfig{
		DefaultFastModel:     "only",
		DefaultPowerfulModel: "only",
		Models:               map[string]config.LLMModelConfig{"only": getValidLLMConfig()},
	}}

	client, err := NewClient(context.Background(), cfg, setupTestLogger(t))
	require.NoError(t, err)
	router := client.(*LLMRouter)
	assert.Same(t, router.clients[schemas.TierFast], router.clients[schemas.TierPowerful])
}

func TestNewClient_NoKeysMeansNoClient(t *testing.T) {
	withKey := getValidLLMConfig()
	noKey := getValidLLMConfig()
	noKey.APIKey = ""

	tests := []struct {
		name string
		cfg  config.AgentConfig
	}{
		{name: "missing fast key", cfg: routerConfig(noKey, withKey)},
		{name: "missing powerful key", cfg: routerConfig(withKey, noKey)},
		{name: "no models", cfg: config.AgentConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tt.cfg, setupTestLogger(t))
			require.NoError(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestNewModelClient_UnsupportedProvider(t *testing.T) {
	cfg := getValidLLMConfig()
	cfg.Provider = "anthropic-on-prem"

	client, err := NewModelClient(context.Background(), cfg, setupTestLogger(t))
	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown or unsupported LLM provider")
}

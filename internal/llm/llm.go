package llm

import (
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pcnpilot/pcnpilot/internal/common"
	"github.com/pcnpilot/pcnpilot/internal/llm/providers"
)

type Provider = providers.Provider

// NewProvider selects the generative text capability from the environment:
// OpenAI when OPENAI_API_KEY is set, the deterministic local provider
// otherwise. OPENAI_ENDPOINT and OPENAI_HTTP_TIMEOUT override the client
// defaults.
func NewProvider() Provider {
	logger := common.Logger()
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		logger.Warn("llm: OPENAI_API_KEY not set; falling back to local provider")
		return providers.NewLocalProvider()
	}
	cfg := openai.DefaultConfig(apiKey)
	if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
		logger.Info("llm: using custom endpoint", "endpoint", endpoint)
		cfg.BaseURL = endpoint
	}
	if timeoutStr := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			logger.Warn("llm: invalid OPENAI_HTTP_TIMEOUT, using default", "value", timeoutStr, "error", err)
		} else if httpClient, ok := cfg.HTTPClient.(*http.Client); ok {
			httpClient.Timeout = timeout
		}
	}
	logger.Info("llm: OpenAI provider selected")
	return providers.NewOpenAIProvider(openai.NewClientWithConfig(cfg))
}

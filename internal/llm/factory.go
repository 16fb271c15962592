package llm

import (
	"fmt"
	"os"
)

const defaultOllamaHost = "http://localhost:11434"

// Options configures NewProvider.
type Options struct {
	// BaseURL overrides the endpoint (OpenAI-compatible servers, remote Ollama).
	BaseURL string
	// RequestsPerMinute wraps the provider in a RateLimitedProvider when > 0.
	RequestsPerMinute int
}

// NewProvider creates a new LLM provider based on the given provider type and model.
// Supported provider types: "openai", "ollama".
func NewProvider(providerType string, model string, opts Options) (Provider, error) {
	var p Provider
	switch providerType {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" && opts.BaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		p = NewOpenAIProvider(apiKey, model, opts.BaseURL)

	case "ollama":
		host := opts.BaseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = defaultOllamaHost
		}
		p = NewOllamaProvider(host, model)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}

	if opts.RequestsPerMinute > 0 {
		p = NewRateLimitedProvider(p, opts.RequestsPerMinute)
	}
	return p, nil
}

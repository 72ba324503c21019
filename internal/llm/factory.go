package llm

import (
	"fmt"
	"strings"
	"time"
)

// Provider names accepted by NewTextGenerator.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Defaults for the completion provider.
const (
	DefaultModel         = "deepseek-ai/DeepSeek-V3.1"
	DefaultOllamaBaseURL = "http://localhost:11434/v1"
	DefaultOllamaModel   = "qwen2.5:7b"
)

// ProviderConfig selects and configures a completion provider.
type ProviderConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// NewTextGenerator creates the TextGenerator for cfg.Provider.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}), nil
	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = DefaultOllamaModel
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama" // ignored by the server
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: baseURL,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

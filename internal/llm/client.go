// Package llm provides a unified interface for LLM providers using
// CloudWeGo Eino.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Provider identifies the LLM provider to use.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// DefaultOllamaURL is the default URL for a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider Provider
	Model    string
	APIKey   string // Required for OpenAI, Anthropic, Gemini
	BaseURL  string // Ollama server URL (default: http://localhost:11434)
}

// NewChatModel creates a ChatModel instance based on the provider
// configuration.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
		})

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})

	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		// The Gemini extension reads its key from the environment.
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)

		return gemini.NewChatModel(ctx, &gemini.Config{
			Model: cfg.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, ollama, anthropic, gemini)", cfg.Provider)
	}
}

// Completer is the minimal chat surface the planner backend needs; it
// is satisfied by eino chat models and by fakes in tests.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatCompleter adapts an eino BaseChatModel to the Completer interface.
type ChatCompleter struct {
	model model.BaseChatModel
}

// NewChatCompleter wraps an already-constructed chat model.
func NewChatCompleter(m model.BaseChatModel) *ChatCompleter {
	return &ChatCompleter{model: m}
}

// NewCompleter builds the provider-specific chat model and wraps it.
func NewCompleter(ctx context.Context, cfg Config) (*ChatCompleter, error) {
	m, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return &ChatCompleter{model: m}, nil
}

// Complete sends a single user message and returns the response content.
func (c *ChatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("LLM generate: %w", err)
	}
	return resp.Content, nil
}

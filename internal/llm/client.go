package llm

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/config"
)

// ErrDisabled is returned by NewClient when no provider is configured.
var ErrDisabled = errors.New("llm provider disabled")

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// NewClient creates an LLM client based on the config provider setting.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, ErrDisabled
	case "claude-cli":
		model := cfg.Model
		if model == "" {
			model = "haiku"
		}
		return NewClaudeCLI(model), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, errors.WithHint(
				errors.New("anthropic provider requires an API key"),
				"set ANTHROPIC_API_KEY or llm.anthropic_key")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(cfg.AnthropicKey, model), nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434/v1"
		}
		model := cfg.Model
		if model == "" {
			model = "qwen2.5:7b"
		}
		return NewOllama(url, model), nil
	default:
		return nil, errors.Newf("unknown LLM provider: %q", cfg.Provider)
	}
}

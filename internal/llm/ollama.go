package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Ollama calls a local model through Ollama's OpenAI-compatible chat
// completions endpoint. Any server speaking that API works.
type Ollama struct {
	url    string
	model  string
	client *http.Client
}

// NewOllama creates a new client. url is the API base, e.g.
// http://localhost:11434/v1.
func NewOllama(url, model string) *Ollama {
	return &Ollama{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends a single user message and returns the first choice.
func (o *Ollama) Complete(ctx context.Context, prompt string) (*Response, error) {
	reqBody := map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.3,
		"stream":      false,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	headers := map[string]string{"Authorization": "Bearer ollama"}
	if err := postJSON(ctx, o.client, o.url+"/chat/completions", headers, reqBody, &result); err != nil {
		return nil, errors.Wrap(err, "ollama api")
	}
	if len(result.Choices) == 0 {
		return nil, errors.New("ollama api: no choices in response")
	}

	return &Response{
		Content:    result.Choices[0].Message.Content,
		Provider:   "ollama",
		TokensUsed: result.Usage.TotalTokens,
	}, nil
}

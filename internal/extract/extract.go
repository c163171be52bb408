package extract

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/llm"
)

// Extractor produces a checkpoint plan from recent conversation.
type Extractor interface {
	Extract(ctx context.Context, in llm.CheckpointInput) (*Plan, error)
}

// LLM asks a language model for the plan. Each call is bounded by Timeout
// and never retried.
type LLM struct {
	Client  llm.Client
	Timeout time.Duration
}

// NewLLM returns an extractor over client.
func NewLLM(client llm.Client, timeout time.Duration) *LLM {
	return &LLM{Client: client, Timeout: timeout}
}

func (e *LLM) Extract(ctx context.Context, in llm.CheckpointInput) (*Plan, error) {
	if e.Client == nil {
		return nil, llm.ErrDisabled
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	resp, err := e.Client.Complete(ctx, llm.CheckpointPrompt(in))
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint extraction")
	}
	if resp == nil {
		return nil, errors.New("checkpoint extraction: empty response")
	}
	return ParseResponse(resp.Content)
}

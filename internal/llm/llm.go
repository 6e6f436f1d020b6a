// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is the boundary to the language model. A Client turns one
// prompt into one reply and reports token usage; the concrete clients wrap
// the Anthropic Messages API and the OpenAI Responses API. Usage is summed by
// an Accumulator owned by the caller.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/trial-extractor/pkg/types"
)

// systemPrompt is sent as the system message by every client.
const systemPrompt = "You extract clinical trial data from publications. Respond with a single raw JSON object only."

var (
	// ErrNoAPIKey is returned when a client is built without credentials.
	ErrNoAPIKey = errors.New("API key not configured")
	// ErrUnknownProvider is returned for a provider name New does not know.
	ErrUnknownProvider = errors.New("unknown LLM provider")
)

// Usage is the token count of one call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens" yaml:"completion_tokens"`
}

// Response is a model reply.
type Response struct {
	Text  string
	Usage Usage
}

// Client completes prompts. Implementations return an error only for
// transport failures; an empty reply is still a reply.
type Client interface {
	Complete(ctx context.Context, prompt string) (Response, error)
}

// New builds the client selected by cfg.Provider, wrapped with retries.
func New(cfg types.AIConfig) (Client, error) {
	var (
		c   Client
		err error
	)
	switch cfg.Provider {
	case types.ProviderAnthropic:
		c, err = NewAnthropic(cfg)
	case types.ProviderOpenAI, "":
		c, err = NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(c, cfg.MaxRetries), nil
}

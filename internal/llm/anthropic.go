// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pdiddy/trial-extractor/pkg/types"
)

// AnthropicMessager is the part of the Anthropic SDK the client uses.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// newAnthropicMessager builds the SDK service with its own retries off;
// WithRetry owns the retry policy. Tests replace it.
var newAnthropicMessager = func(apiKey string, opts ...option.RequestOption) AnthropicMessager {
	c := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)...)
	return &c.Messages
}

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	messages  AnthropicMessager
	model     string
	maxTokens int64
}

// NewAnthropic returns a client for cfg.Model.
func NewAnthropic(cfg types.AIConfig) (*AnthropicClient, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrNoAPIKey
	}
	return &AnthropicClient{
		messages:  newAnthropicMessager(key),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxOutputTokens),
	}, nil
}

// Complete sends prompt as a single user message at temperature zero.
func (a *AnthropicClient) Complete(ctx context.Context, prompt string) (Response, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return Response{}, err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return Response{
		Text: sb.String(),
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/pdiddy/trial-extractor/pkg/types"
)

// OpenAIResponder is the part of the OpenAI SDK the client uses.
type OpenAIResponder interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
}

// newOpenAIResponder builds the SDK service with its own retries off;
// WithRetry owns the retry policy. Tests replace it.
var newOpenAIResponder = func(apiKey string, opts ...option.RequestOption) OpenAIResponder {
	c := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)...)
	return &c.Responses
}

// OpenAIClient calls the OpenAI Responses API.
type OpenAIClient struct {
	responses OpenAIResponder
	model     string
	maxTokens int64
}

// NewOpenAI returns a client for cfg.Model.
func NewOpenAI(cfg types.AIConfig) (*OpenAIClient, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrNoAPIKey
	}
	return &OpenAIClient{
		responses: newOpenAIResponder(key),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxOutputTokens),
	}, nil
}

// Complete sends prompt as one user input item at temperature zero.
func (o *OpenAIClient) Complete(ctx context.Context, prompt string) (Response, error) {
	resp, err := o.responses.New(ctx, responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(o.maxTokens),
		Instructions:    openai.String(systemPrompt),
		Temperature:     openai.Float(0),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
	})
	if err != nil {
		return Response{}, err
	}
	return Response{
		Text: resp.OutputText(),
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements ChatProvider over the OpenAI chat completions
// API. This is the default production provider.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a provider authenticated with the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

// usesCompletionTokensParam reports whether the model family requires
// max_completion_tokens instead of the legacy max_tokens parameter.
func usesCompletionTokensParam(model string) bool {
	return strings.HasPrefix(model, "gpt-5") || strings.HasPrefix(model, "o1")
}

// Complete performs one chat completion call.
func (p *OpenAIProvider) Complete(ctx context.Context, model string, messages []Message, maxOutputTokens int, jsonMode bool) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: buildOpenAIMessages(messages),
	}

	if usesCompletionTokensParam(model) {
		params.MaxCompletionTokens = openai.Int(int64(maxOutputTokens))
	} else {
		params.MaxTokens = openai.Int(int64(maxOutputTokens))
	}

	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	completion := &Completion{
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) > 0 {
		completion.Text = resp.Choices[0].Message.Content
	}

	return completion, nil
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.Role == RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text))
		case len(msg.Image) > 0:
			dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(msg.Image)
			out = append(out, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(msg.Text),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}))
		default:
			out = append(out, openai.UserMessage(msg.Text))
		}
	}
	return out
}

package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements ChatProvider over the Gemini API. It exists for
// deployments without OpenAI access; model candidate lists then name Gemini
// models instead.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Complete performs one generateContent call. System messages map to the
// system instruction; jsonMode requests an application/json response.
func (p *GeminiProvider) Complete(ctx context.Context, model string, messages []Message, maxOutputTokens int, jsonMode bool) (*Completion, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxOutputTokens),
	}
	if jsonMode {
		config.ResponseMIMEType = "application/json"
	}

	var contents []*genai.Content
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			config.SystemInstruction = genai.NewContentFromParts(
				[]*genai.Part{genai.NewPartFromText(msg.Text)}, genai.RoleUser)
			continue
		}

		parts := []*genai.Part{genai.NewPartFromText(msg.Text)}
		if len(msg.Image) > 0 {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{Data: msg.Image, MIMEType: "image/jpeg"},
			})
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	result, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	completion := &Completion{}
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil && len(result.Candidates[0].Content.Parts) > 0 {
		completion.Text = result.Text()
	}
	if result.UsageMetadata != nil {
		completion.Usage = Usage{
			InputTokens:  int64(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	return completion, nil
}

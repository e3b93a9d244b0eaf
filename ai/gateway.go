package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/backtrue/fbaudai/cost"
	"github.com/rs/zerolog/log"
)

// ErrAllModelsFailed is returned when every candidate model either errored
// or produced empty content.
var ErrAllModelsFailed = errors.New("all chat completion model attempts failed")

// Gateway routes a chat call through an ordered list of candidate models,
// returning the first non-empty response. Token usage of every attempt is
// added to the run's cost metrics, whether or not the attempt produced
// usable content.
type Gateway struct {
	provider ChatProvider
}

// NewGateway creates a gateway over the given provider.
func NewGateway(provider ChatProvider) *Gateway {
	return &Gateway{provider: provider}
}

// Complete tries each candidate in order and returns the first non-empty
// text. A failing or empty candidate is logged and skipped; candidate order
// is the only fallback policy, there is no quality comparison. Usage is
// accumulated into metrics additively.
func (g *Gateway) Complete(ctx context.Context, candidates []string, messages []Message, maxOutputTokens int, jsonMode bool, metrics *cost.Metrics) (string, error) {
	for _, model := range candidates {
		completion, err := g.provider.Complete(ctx, model, messages, maxOutputTokens, jsonMode)
		if err != nil {
			log.Error().Err(err).Str("model", model).Msg("model attempt failed")
			continue
		}

		if metrics != nil {
			metrics.OpenAIInputTokens += completion.Usage.InputTokens
			metrics.OpenAIOutputTokens += completion.Usage.OutputTokens
		}

		if completion.Text != "" {
			log.Info().
				Str("model", model).
				Int64("inputTokens", completion.Usage.InputTokens).
				Int64("outputTokens", completion.Usage.OutputTokens).
				Float64("costUSD", cost.OpenAICost(completion.Usage.InputTokens, completion.Usage.OutputTokens)).
				Msg("chat completion call")
			return completion.Text, nil
		}

		log.Warn().Str("model", model).Msg("model returned empty content")
	}

	return "", ErrAllModelsFailed
}

// decodeStageJSON parses structured stage output. A parse failure is a
// distinct fatal error from model exhaustion and carries the stage name for
// diagnostics.
func decodeStageJSON[T any](content, stage string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		log.Error().Str("stage", stage).Str("content", content).Msg("failed to parse stage JSON")
		return out, fmt.Errorf("invalid JSON response for %s: %w", stage, err)
	}
	return out, nil
}

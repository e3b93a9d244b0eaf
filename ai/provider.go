// Package ai implements the multi-stage creative analysis pipeline: per-image
// vision analysis, clustering, persona and creative-brief generation, and the
// shared chat gateway with model fallback and cost accounting.
package ai

import "context"

// Message roles understood by chat providers.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn. Image carries an optional inline JPEG attached
// to the text content (used by the per-image vision call only).
type Message struct {
	Role  string
	Text  string
	Image []byte
}

// Usage is the provider-reported token consumption of one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Completion is the raw result of one chat call.
type Completion struct {
	Text  string
	Usage Usage
}

// ChatProvider is the boundary to an LLM chat/completion service. jsonMode
// requests a single well-formed JSON object as the response body.
type ChatProvider interface {
	Complete(ctx context.Context, model string, messages []Message, maxOutputTokens int, jsonMode bool) (*Completion, error)
}

// Package vision wraps the image annotation provider used as the
// deterministic companion to LLM vision analysis.
package vision

import "context"

const (
	// MaxTextFragments caps how many OCR fragments are kept per image.
	MaxTextFragments = 5
	// MaxColors caps how many dominant colors are kept per image.
	MaxColors = 3
)

// Insights holds the annotation results for one image. A zero Insights is
// valid; annotation failure degrades to empty slices, never nil semantics
// that callers must guard against.
type Insights struct {
	Objects []string `json:"objects"`
	Labels  []string `json:"labels"`
	Text    []string `json:"text"`
	Colors  []string `json:"colors"`
}

// Annotator exposes the four independent annotation calls the analyzer
// makes per image. Implementations take raw image bytes and return
// human-readable strings.
type Annotator interface {
	DetectObjects(ctx context.Context, image []byte) ([]string, error)
	DetectLabels(ctx context.Context, image []byte) ([]string, error)
	DetectText(ctx context.Context, image []byte) ([]string, error)
	DetectDominantColors(ctx context.Context, image []byte) ([]string, error)
}

// EmptyInsights returns the degraded-but-valid value used when annotation
// calls fail.
func EmptyInsights() Insights {
	return Insights{
		Objects: []string{},
		Labels:  []string{},
		Text:    []string{},
		Colors:  []string{},
	}
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/backtrue/fbaudai/cost"
	"github.com/backtrue/fbaudai/vision"
	"github.com/rs/zerolog/log"
)

// ErrNoImages is the precondition failure for an empty input batch. It is
// raised before any external call is made.
var ErrNoImages = errors.New("at least one image is required for analysis")

// Pipeline orchestrates the multi-stage creative diversity analysis. One
// invocation owns one cost.Metrics accumulator; stages run strictly in
// dependency order and any stage failure aborts the whole run.
type Pipeline struct {
	gateway   *Gateway
	annotator vision.Annotator
	models    ModelConfig
}

// NewPipeline wires the pipeline to its collaborators.
func NewPipeline(gateway *Gateway, annotator vision.Annotator, models ModelConfig) *Pipeline {
	return &Pipeline{gateway: gateway, annotator: annotator, models: models}
}

type clusterStageResponse struct {
	Clusters []ClusterSummary `json:"clusters"`
}

type personaStageResponse struct {
	Personas []PersonaInsight `json:"personas"`
}

type creativeStageResponse struct {
	CreativeBriefs []CreativeBrief `json:"creativeBriefs"`
}

type fallbackStageResponse struct {
	Summary    string   `json:"summary"`
	Confidence *float64 `json:"confidence"`
}

// AnalyzeCreativeDiversity runs the full pipeline over the input batch.
//
// The per-image loop is sequential on purpose: each image's analysis is
// independent and could run concurrently with a bounded worker pool, but the
// reference behavior is one image at a time and sequential accumulation into
// the shared metrics keeps provider back-pressure trivial to reason about.
// Parallelizing it is a performance opportunity, not a correctness change,
// as long as result ordering and metrics accumulation stay intact.
func (p *Pipeline) AnalyzeCreativeDiversity(ctx context.Context, images [][]byte, opts Options) (*CreativeDiversityResult, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	bufferPercentage := float64(DefaultBufferPercentage)
	if opts.BufferPercentage != nil {
		bufferPercentage = *opts.BufferPercentage
	}

	metrics := &cost.Metrics{}

	analyses := make([]*SingleImageAnalysis, 0, len(images))
	for i, image := range images {
		analysis, err := p.analyzeSingleImage(ctx, image, i, metrics, opts.ProductNameHint)
		if err != nil {
			return nil, fmt.Errorf("image %d analysis failed: %w", i, err)
		}
		analyses = append(analyses, analysis)
	}

	clusters, err := p.generateClusterSummaries(ctx, analyses, metrics)
	if err != nil {
		return nil, err
	}

	personas := []PersonaInsight{}
	if opts.GeneratePersonas {
		personas, err = p.generatePersonaInsights(ctx, analyses, clusters, metrics)
		if err != nil {
			return nil, err
		}
	}

	// Creative briefs are persona-dependent: an empty persona set skips the
	// stage silently even when the flag is set.
	creativeBriefs := []CreativeBrief{}
	if opts.GenerateCreativeBriefs && len(personas) > 0 {
		creativeBriefs, err = p.generateCreativeBriefs(ctx, analyses, personas, metrics)
		if err != nil {
			return nil, err
		}
	}

	var fallbackSummary *FallbackSummaryResult
	if opts.RunFallbackSummary {
		fallbackSummary, err = p.generateFallbackSummary(ctx, analyses, metrics)
		if err != nil {
			return nil, err
		}
	}

	breakdown := cost.CalculateBreakdown(*metrics)
	buffered := cost.AddBuffer(breakdown, bufferPercentage)

	productAnalyses := make([]ProductAnalysis, len(analyses))
	visionInsights := make([]vision.Insights, len(analyses))
	for i, analysis := range analyses {
		productAnalyses[i] = analysis.Product
		visionInsights[i] = analysis.Vision
	}

	return &CreativeDiversityResult{
		Clusters:        clusters,
		Personas:        personas,
		CreativeBriefs:  creativeBriefs,
		ProductAnalyses: productAnalyses,
		VisionInsights:  visionInsights,
		FallbackSummary: fallbackSummary,
		Cost: CostSummary{
			Metrics:   *metrics,
			Breakdown: breakdown,
			Buffered:  buffered,
		},
	}, nil
}

// serializedImage is what the text stages see per image: the analysis
// without the raw image payload.
type serializedImage struct {
	Index   int             `json:"index"`
	Product ProductAnalysis `json:"product"`
	Vision  vision.Insights `json:"vision"`
}

func formatForLLM(analyses []*SingleImageAnalysis) []serializedImage {
	out := make([]serializedImage, len(analyses))
	for i, analysis := range analyses {
		out[i] = serializedImage{Index: analysis.Index, Product: analysis.Product, Vision: analysis.Vision}
	}
	return out
}

func serializeAnalyses(analyses []*SingleImageAnalysis) string {
	payload, _ := json.MarshalIndent(map[string]any{"images": formatForLLM(analyses)}, "", "  ")
	return string(payload)
}

// generateClusterSummaries asks for 2-4 creative clusters. The count is a
// prompt-level request: the provider decides the actual cardinality and the
// result is passed through unvalidated.
func (p *Pipeline) generateClusterSummaries(ctx context.Context, analyses []*SingleImageAnalysis, metrics *cost.Metrics) ([]ClusterSummary, error) {
	userPrompt := "以下是素材分析結果，請產生 2-4 個創意集群：\n" + serializeAnalyses(analyses)

	content, err := p.gateway.Complete(ctx, p.models.Cluster, []Message{
		{Role: RoleSystem, Text: clusterSystemPrompt},
		{Role: RoleUser, Text: userPrompt},
	}, 900, true, metrics)
	if err != nil {
		return nil, err
	}

	parsed, err := decodeStageJSON[clusterStageResponse](content, "cluster summaries")
	if err != nil {
		return nil, err
	}
	if parsed.Clusters == nil {
		return []ClusterSummary{}, nil
	}
	return parsed.Clusters, nil
}

func (p *Pipeline) generatePersonaInsights(ctx context.Context, analyses []*SingleImageAnalysis, clusters []ClusterSummary, metrics *cost.Metrics) ([]PersonaInsight, error) {
	payload, _ := json.MarshalIndent(map[string]any{
		"images":   formatForLLM(analyses),
		"clusters": clusters,
	}, "", "  ")

	content, err := p.gateway.Complete(ctx, p.models.Persona, []Message{
		{Role: RoleSystem, Text: personaSystemPrompt},
		{Role: RoleUser, Text: "請輸出 JSON：\n" + string(payload)},
	}, 1000, true, metrics)
	if err != nil {
		return nil, err
	}

	parsed, err := decodeStageJSON[personaStageResponse](content, "persona insights")
	if err != nil {
		return nil, err
	}
	if parsed.Personas == nil {
		return []PersonaInsight{}, nil
	}
	return parsed.Personas, nil
}

func (p *Pipeline) generateCreativeBriefs(ctx context.Context, analyses []*SingleImageAnalysis, personas []PersonaInsight, metrics *cost.Metrics) ([]CreativeBrief, error) {
	payload, _ := json.MarshalIndent(map[string]any{
		"personas": personas,
		"analyses": formatForLLM(analyses),
	}, "", "  ")

	content, err := p.gateway.Complete(ctx, p.models.Creative, []Message{
		{Role: RoleSystem, Text: creativeSystemPrompt},
		{Role: RoleUser, Text: "請依 Persona 產出 JSON：\n" + string(payload)},
	}, 1200, true, metrics)
	if err != nil {
		return nil, err
	}

	parsed, err := decodeStageJSON[creativeStageResponse](content, "creative briefs")
	if err != nil {
		return nil, err
	}
	if parsed.CreativeBriefs == nil {
		return []CreativeBrief{}, nil
	}
	return parsed.CreativeBriefs, nil
}

// generateFallbackSummary produces the whole-batch product summary. A
// missing confidence defaults to 0.7; an out-of-range one is clamped.
func (p *Pipeline) generateFallbackSummary(ctx context.Context, analyses []*SingleImageAnalysis, metrics *cost.Metrics) (*FallbackSummaryResult, error) {
	content, err := p.gateway.Complete(ctx, p.models.Fallback, []Message{
		{Role: RoleSystem, Text: fallbackSystemPrompt},
		{Role: RoleUser, Text: "素材資訊如下：\n" + serializeAnalyses(analyses)},
	}, 600, true, metrics)
	if err != nil {
		return nil, err
	}

	parsed, err := decodeStageJSON[fallbackStageResponse](content, "fallback summary")
	if err != nil {
		return nil, err
	}

	confidence := 0.7
	if parsed.Confidence != nil {
		confidence = clampConfidence(*parsed.Confidence)
	}

	log.Info().Float64("confidence", confidence).Msg("fallback summary generated")

	return &FallbackSummaryResult{Summary: parsed.Summary, Confidence: confidence}, nil
}

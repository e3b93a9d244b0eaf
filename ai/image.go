package ai

import (
	"context"
	"strings"

	"github.com/backtrue/fbaudai/cost"
	"github.com/backtrue/fbaudai/vision"
	"github.com/rs/zerolog/log"
)

// llmProductAnalysis is the loosely-typed shape parsed from the vision
// model. Confidence is a pointer so a missing value is distinguishable from
// an explicit zero.
type llmProductAnalysis struct {
	ProductName     string   `json:"productName"`
	ProductCategory []string `json:"productCategory"`
	TargetAudience  []string `json:"targetAudience"`
	Keywords        []string `json:"keywords"`
	Confidence      *float64 `json:"confidence"`
}

// analyzeSingleImage produces the per-image analysis: LLM vision attributes
// merged with annotation-derived classifier fallbacks. The image is never
// failed outright because the LLM stage failed; it degrades to heuristic
// output instead.
func (p *Pipeline) analyzeSingleImage(ctx context.Context, image []byte, index int, metrics *cost.Metrics, productNameHint string) (*SingleImageAnalysis, error) {
	log.Info().Int("index", index).Msg("analyzing image")

	userText := "Please analyze this product image for Facebook advertising insights."
	if productNameHint != "" {
		userText = "Use this context when relevant: " + productNameHint
	}

	var llmResult llmProductAnalysis
	content, err := p.gateway.Complete(ctx, p.models.Vision, []Message{
		{Role: RoleSystem, Text: singleImageSystemPrompt},
		{Role: RoleUser, Text: userText, Image: image},
	}, 900, true, metrics)
	if err != nil {
		log.Warn().Err(err).Int("index", index).Msg("vision model unavailable, falling back to rule-based classification")
	} else if llmResult, err = decodeStageJSON[llmProductAnalysis](content, "single image analysis"); err != nil {
		return nil, err
	}

	insights := p.collectInsights(ctx, image, metrics)
	classified := classifyProduct(insights.Objects, strings.Join(insights.Text, " "))

	product := mergeProductAnalysis(llmResult, classified, insights.Objects)

	return &SingleImageAnalysis{
		Index:   index,
		Image:   image,
		Product: product,
		Vision:  insights,
	}, nil
}

// collectInsights runs the four annotation sub-calls. Each call increments
// the vision-call counter; a failing facet degrades to empty rather than
// failing the image.
func (p *Pipeline) collectInsights(ctx context.Context, image []byte, metrics *cost.Metrics) vision.Insights {
	insights := vision.EmptyInsights()

	objects, err := p.annotator.DetectObjects(ctx, image)
	metrics.GoogleVisionCalls++
	if err != nil {
		log.Warn().Err(err).Msg("object localization failed")
	} else if objects != nil {
		insights.Objects = objects
	}

	labels, err := p.annotator.DetectLabels(ctx, image)
	metrics.GoogleVisionCalls++
	if err != nil {
		log.Warn().Err(err).Msg("label detection failed")
	} else if labels != nil {
		insights.Labels = labels
	}

	text, err := p.annotator.DetectText(ctx, image)
	metrics.GoogleVisionCalls++
	if err != nil {
		log.Warn().Err(err).Msg("text detection failed")
	} else if text != nil {
		insights.Text = text
	}

	colors, err := p.annotator.DetectDominantColors(ctx, image)
	metrics.GoogleVisionCalls++
	if err != nil {
		log.Warn().Err(err).Msg("dominant color extraction failed")
	} else if colors != nil {
		insights.Colors = colors
	}

	return insights
}

// mergeProductAnalysis prefers LLM values and substitutes classifier output
// for any missing field. Confidence is clamped to [0.1, 0.99] regardless of
// source.
func mergeProductAnalysis(llm llmProductAnalysis, classified classification, detectedObjects []string) ProductAnalysis {
	product := ProductAnalysis{
		ProductName:     strings.TrimSpace(llm.ProductName),
		ProductCategory: llm.ProductCategory,
		TargetAudience:  llm.TargetAudience,
		Keywords:        llm.Keywords,
	}

	if product.ProductName == "" {
		product.ProductName = classified.ProductName
	}
	if len(product.ProductCategory) == 0 {
		product.ProductCategory = []string{classified.Category}
	}
	if len(product.TargetAudience) == 0 {
		product.TargetAudience = generateTargetAudience(classified.Category, classified.ProductName)
	}
	if len(product.Keywords) == 0 {
		product.Keywords = generateAdKeywords(classified.Category, classified.ProductName, detectedObjects)
	}

	if llm.Confidence != nil {
		product.Confidence = clampConfidence(*llm.Confidence)
	} else {
		product.Confidence = clampConfidence(float64(classified.Confidence) / 100)
	}

	return product
}

// clampConfidence keeps confidence inside [0.1, 0.99] so neither over- nor
// under-confident extremes reach downstream consumers.
func clampConfidence(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}

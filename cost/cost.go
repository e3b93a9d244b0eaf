// Package cost converts raw API usage counters into a monetary breakdown.
//
// Pricing assumptions (as of 2025.11):
//   - OpenAI GPT-4o Vision: $5 / 1M input tokens, $15 / 1M output tokens
//   - Google Vision APIs: $1.5-$2 / 1,000 calls per API type
//   - Exchange rate: 1 USD = 150 JPY
//   - Credit value: 1 credit = 10 JPY
package cost

import "math"

// Pricing constants
const (
	openAIInputPricePerMillion  = 5.0  // USD
	openAIOutputPricePerMillion = 15.0 // USD
	googleVisionPricePer1000    = 1.75 // USD (average of $1.5-$2)
	usdToJPYRate                = 150.0
	jpyPerCredit                = 10.0
)

// Metrics accumulates API usage for a single analysis run. Each pipeline
// invocation owns exactly one Metrics value; external-call sites add to it
// in place.
type Metrics struct {
	OpenAIInputTokens  int64 `json:"openaiInputTokens"`
	OpenAIOutputTokens int64 `json:"openaiOutputTokens"`
	GoogleVisionCalls  int64 `json:"googleVisionCalls"`
	MetaQueries        int64 `json:"metaQueries"`
}

// Breakdown is a derived cost snapshot in USD, JPY and internal credits.
type Breakdown struct {
	OpenAICostUSD       float64 `json:"openaiCostUsd"`
	GoogleVisionCostUSD float64 `json:"googleVisionCostUsd"`
	TotalCostUSD        float64 `json:"totalCostUsd"`
	TotalCostJPY        float64 `json:"totalCostJpy"`
	EstimatedCredits    float64 `json:"estimatedCredits"`
}

// OpenAICost returns the USD cost of the given token counts.
func OpenAICost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * openAIInputPricePerMillion
	outputCost := float64(outputTokens) / 1_000_000 * openAIOutputPricePerMillion
	return inputCost + outputCost
}

// GoogleVisionCost returns the USD cost of the given number of annotation
// API calls. Each image analysis makes 4 calls (objects, labels, text,
// image properties).
func GoogleVisionCost(totalCalls int64) float64 {
	return float64(totalCalls) / 1000 * googleVisionPricePer1000
}

// USDToJPY converts USD to JPY, rounded to 2 decimal places.
func USDToJPY(usd float64) float64 {
	return round2(usd * usdToJPYRate)
}

// JPYToCredits converts JPY to internal credits, rounded to 2 decimal places.
func JPYToCredits(jpy float64) float64 {
	return round2(jpy / jpyPerCredit)
}

// CalculateBreakdown derives the full cost breakdown from usage metrics.
// USD sub-totals are rounded to 4 decimal places independently so repeated
// derivations cannot accumulate floating point drift.
func CalculateBreakdown(m Metrics) Breakdown {
	openAICost := OpenAICost(m.OpenAIInputTokens, m.OpenAIOutputTokens)
	visionCost := GoogleVisionCost(m.GoogleVisionCalls)
	totalUSD := openAICost + visionCost
	totalJPY := USDToJPY(totalUSD)

	return Breakdown{
		OpenAICostUSD:       round4(openAICost),
		GoogleVisionCostUSD: round4(visionCost),
		TotalCostUSD:        round4(totalUSD),
		TotalCostJPY:        totalJPY,
		EstimatedCredits:    JPYToCredits(totalJPY),
	}
}

// AddBuffer scales every field of a breakdown by (1 + pct/100) to produce a
// safety-margin estimate. The input breakdown is not modified; callers keep
// the metered breakdown and the buffered one side by side.
func AddBuffer(b Breakdown, bufferPercentage float64) Breakdown {
	multiplier := 1 + bufferPercentage/100

	return Breakdown{
		OpenAICostUSD:       round4(b.OpenAICostUSD * multiplier),
		GoogleVisionCostUSD: round4(b.GoogleVisionCostUSD * multiplier),
		TotalCostUSD:        round4(b.TotalCostUSD * multiplier),
		TotalCostJPY:        round2(b.TotalCostJPY * multiplier),
		EstimatedCredits:    round2(b.EstimatedCredits * multiplier),
	}
}

// EstimateSingleImage estimates the cost of analyzing one image:
// ~1,500 input tokens + ~250 output tokens + 4 Google Vision calls.
func EstimateSingleImage() Breakdown {
	return CalculateBreakdown(Metrics{
		OpenAIInputTokens:  1500,
		OpenAIOutputTokens: 250,
		GoogleVisionCalls:  4,
	})
}

// EstimateFreeTask estimates a multi-image run with clustering only.
func EstimateFreeTask(imageCount int64) Breakdown {
	if imageCount <= 0 {
		imageCount = 10
	}
	return CalculateBreakdown(Metrics{
		OpenAIInputTokens:  imageCount*1500 + 2000,
		OpenAIOutputTokens: imageCount*250 + 500,
		GoogleVisionCalls:  imageCount * 4,
	})
}

// EstimateProTask estimates a multi-image run with the persona and creative
// stages on top of the free task.
func EstimateProTask(imageCount int64) Breakdown {
	free := EstimateFreeTask(imageCount)

	extra := CalculateBreakdown(Metrics{
		OpenAIInputTokens:  1500 + 2000, // persona + creative
		OpenAIOutputTokens: 800 + 1200,
		MetaQueries:        5,
	})

	return Breakdown{
		OpenAICostUSD:       free.OpenAICostUSD + extra.OpenAICostUSD,
		GoogleVisionCostUSD: free.GoogleVisionCostUSD,
		TotalCostUSD:        free.TotalCostUSD + extra.TotalCostUSD,
		TotalCostJPY:        free.TotalCostJPY + extra.TotalCostJPY,
		EstimatedCredits:    free.EstimatedCredits + extra.EstimatedCredits,
	}
}

// EstimateFallbackSummary estimates the whole-batch summary stage, which
// grows with the number of images serialized into the prompt.
func EstimateFallbackSummary(imageCount int64) Breakdown {
	if imageCount <= 0 {
		imageCount = 10
	}
	return CalculateBreakdown(Metrics{
		OpenAIInputTokens:  3000 + imageCount*500,
		OpenAIOutputTokens: 1500,
	})
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package ai

import (
	"github.com/backtrue/fbaudai/cost"
	"github.com/backtrue/fbaudai/vision"
)

// ProductAnalysis is the merged attribute set for one product image. The
// LLM vision call is the primary source; any missing field is filled from
// the rule-based classifier.
type ProductAnalysis struct {
	ProductName     string   `json:"productName"`
	ProductCategory []string `json:"productCategory"`
	TargetAudience  []string `json:"targetAudience"`
	Keywords        []string `json:"keywords"`
	Confidence      float64  `json:"confidence"`
}

// SingleImageAnalysis is the immutable per-image result consumed by every
// downstream stage. Index equals the image's position in the uploaded batch;
// cluster output references images through these indices.
type SingleImageAnalysis struct {
	Index   int             `json:"index"`
	Image   []byte          `json:"-"`
	Product ProductAnalysis `json:"product"`
	Vision  vision.Insights `json:"vision"`
}

// ClusterSummary is one creative cluster produced by the clustering stage.
// The prompt asks for 2-4 clusters but the count is provider-determined and
// deliberately not validated here.
type ClusterSummary struct {
	ClusterID           string   `json:"clusterId"`
	ClusterName         string   `json:"clusterName"`
	CoreMessage         string   `json:"coreMessage"`
	SupportingAssets    []int    `json:"supportingAssets"`
	HeadlineExample     string   `json:"headlineExample"`
	RecommendedKeywords []string `json:"recommendedKeywords"`
	Confidence          float64  `json:"confidence"`
}

// Persona coverage states.
const (
	CoverageCovered = "covered"
	CoverageGap     = "gap"
)

// PersonaInsight is one audience persona derived from the clusters.
type PersonaInsight struct {
	PersonaName    string   `json:"personaName"`
	CoreNeed       string   `json:"coreNeed"`
	KeyMotivation  []string `json:"keyMotivation"`
	CoverageStatus string   `json:"coverageStatus"`
	LinkedClusters []string `json:"linkedClusters"`
}

// CreativeBrief is an ad creative suggestion for one persona.
type CreativeBrief struct {
	PersonaName     string   `json:"personaName"`
	HeadlineHook    string   `json:"headlineHook"`
	CoreMessage     string   `json:"coreMessage"`
	CopyIdeas       []string `json:"copyIdeas"`
	VisualDirection []string `json:"visualDirection"`
	CTASuggestion   string   `json:"ctaSuggestion"`
}

// FallbackSummaryResult is the optional whole-batch product summary.
type FallbackSummaryResult struct {
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// CostSummary pairs the accumulated metrics with the derived breakdown and
// its buffered (safety margin) variant.
type CostSummary struct {
	Metrics   cost.Metrics   `json:"metrics"`
	Breakdown cost.Breakdown `json:"breakdown"`
	Buffered  cost.Breakdown `json:"buffered"`
}

// CreativeDiversityResult is the single return value of one pipeline run.
// ProductAnalyses and VisionInsights are index-aligned with the input batch.
type CreativeDiversityResult struct {
	Clusters        []ClusterSummary       `json:"clusters"`
	Personas        []PersonaInsight       `json:"personas"`
	CreativeBriefs  []CreativeBrief        `json:"creativeBriefs"`
	ProductAnalyses []ProductAnalysis      `json:"productAnalyses"`
	VisionInsights  []vision.Insights      `json:"visionInsights"`
	FallbackSummary *FallbackSummaryResult `json:"fallbackSummary,omitempty"`
	Cost            CostSummary            `json:"cost"`
}

// DefaultBufferPercentage is applied when Options.BufferPercentage is nil.
const DefaultBufferPercentage = 30

// Options controls the optional pipeline stages. The pipeline knows nothing
// about subscription tiers; the caller translates entitlements into these
// flags. BufferPercentage is a pointer so an explicit 0 (no safety margin)
// stays distinguishable from "use the default".
type Options struct {
	GeneratePersonas       bool
	GenerateCreativeBriefs bool
	RunFallbackSummary     bool
	BufferPercentage       *float64
	ProductNameHint        string
}

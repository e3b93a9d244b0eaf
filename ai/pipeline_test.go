package ai

import (
	"context"
	"testing"

	"github.com/backtrue/fbaudai/cost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const imageAnalysisJSON = `{
	"productName": "Trail Sneaker",
	"productCategory": ["fashion"],
	"targetAudience": ["16-40歲時尚青年"],
	"keywords": ["footwear", "sneakers"],
	"confidence": 0.9
}`

func TestAnalyzeCreativeDiversityFullRun(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		// Three per-image vision calls.
		{text: imageAnalysisJSON, usage: Usage{InputTokens: 2000, OutputTokens: 500}},
		{text: imageAnalysisJSON, usage: Usage{InputTokens: 2000, OutputTokens: 500}},
		{text: imageAnalysisJSON, usage: Usage{InputTokens: 2000, OutputTokens: 500}},
		// Clustering.
		{text: `{"clusters":[
			{"clusterId":"c1","clusterName":"戶外機能","coreMessage":"耐用","supportingAssets":[0,1],"confidence":0.8},
			{"clusterId":"c2","clusterName":"都會休閒","coreMessage":"百搭","supportingAssets":[2],"confidence":0.75}
		]}`, usage: Usage{InputTokens: 1500, OutputTokens: 400}},
		// Personas.
		{text: `{"personas":[
			{"personaName":"山系青年","coreNeed":"耐用好走","coverageStatus":"covered","linkedClusters":["c1"]},
			{"personaName":"通勤族","coreNeed":"舒適百搭","coverageStatus":"gap","linkedClusters":["c2"]}
		]}`, usage: Usage{InputTokens: 1200, OutputTokens: 400}},
		// Creative briefs.
		{text: `{"creativeBriefs":[
			{"personaName":"山系青年","headlineHook":"越野更自在"},
			{"personaName":"通勤族","headlineHook":"天天好走"}
		]}`, usage: Usage{InputTokens: 1300, OutputTokens: 450}},
	}}
	annotator := &fakeAnnotator{objects: []string{"Sneaker"}, labels: []string{"Footwear"}}
	p := newTestPipeline(provider, annotator)

	images := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	result, err := p.AnalyzeCreativeDiversity(context.Background(), images, Options{
		GeneratePersonas:       true,
		GenerateCreativeBriefs: true,
	})
	require.NoError(t, err)

	require.Len(t, result.Clusters, 2)
	assert.Equal(t, "c1", result.Clusters[0].ClusterID)
	require.Len(t, result.Personas, 2)
	assert.Equal(t, CoverageGap, result.Personas[1].CoverageStatus)
	require.Len(t, result.CreativeBriefs, 2)
	assert.Nil(t, result.FallbackSummary)

	// Index-aligned per-image outputs.
	require.Len(t, result.ProductAnalyses, 3)
	require.Len(t, result.VisionInsights, 3)
	assert.Equal(t, "Trail Sneaker", result.ProductAnalyses[2].ProductName)
	assert.Equal(t, []string{"Sneaker"}, result.VisionInsights[0].Objects)

	// 6 chat calls and 4 annotation calls per image.
	metrics := result.Cost.Metrics
	assert.Equal(t, int64(10000), metrics.OpenAIInputTokens)
	assert.Equal(t, int64(2750), metrics.OpenAIOutputTokens)
	assert.Equal(t, int64(12), metrics.GoogleVisionCalls)
	assert.Zero(t, metrics.MetaQueries)

	breakdown := result.Cost.Breakdown
	assert.Equal(t, cost.CalculateBreakdown(metrics), breakdown)
	assert.Equal(t, 0.0913, breakdown.OpenAICostUSD)
	assert.Equal(t, 0.021, breakdown.GoogleVisionCostUSD)
	assert.Equal(t, 0.1123, breakdown.TotalCostUSD)
	assert.Equal(t, 16.84, breakdown.TotalCostJPY)
	assert.Equal(t, 1.68, breakdown.EstimatedCredits)

	// Default safety buffer of 30% applies when none is requested.
	assert.Equal(t, cost.AddBuffer(breakdown, DefaultBufferPercentage), result.Cost.Buffered)
}

func TestAnalyzeCreativeDiversityEmptyInput(t *testing.T) {
	provider := &fakeProvider{}
	annotator := &fakeAnnotator{}
	p := newTestPipeline(provider, annotator)

	_, err := p.AnalyzeCreativeDiversity(context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrNoImages)

	// Precondition fires before any external call.
	assert.Empty(t, provider.calls)
	assert.Zero(t, annotator.calls)
}

func TestAnalyzeCreativeDiversityBaseRun(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{text: imageAnalysisJSON, usage: Usage{InputTokens: 100, OutputTokens: 20}},
		{text: `{"clusters":[{"clusterId":"c1"}]}`, usage: Usage{InputTokens: 80, OutputTokens: 30}},
	}}
	p := newTestPipeline(provider, &fakeAnnotator{})

	result, err := p.AnalyzeCreativeDiversity(context.Background(), [][]byte{[]byte("a")}, Options{})
	require.NoError(t, err)

	// Optional stages never ran: one vision call plus clustering only.
	require.Len(t, provider.calls, 2)
	assert.NotNil(t, result.Personas)
	assert.Empty(t, result.Personas)
	assert.NotNil(t, result.CreativeBriefs)
	assert.Empty(t, result.CreativeBriefs)
	assert.Nil(t, result.FallbackSummary)
}

func TestAnalyzeCreativeDiversitySkipsBriefsWithoutPersonas(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{text: imageAnalysisJSON},
		{text: `{"clusters":[{"clusterId":"c1"}]}`},
		{text: `{"personas":[]}`},
	}}
	p := newTestPipeline(provider, &fakeAnnotator{})

	result, err := p.AnalyzeCreativeDiversity(context.Background(), [][]byte{[]byte("a")}, Options{
		GeneratePersonas:       true,
		GenerateCreativeBriefs: true,
	})
	require.NoError(t, err)

	// No personas means the brief stage is skipped silently, not failed.
	require.Len(t, provider.calls, 3)
	assert.Empty(t, result.Personas)
	assert.Empty(t, result.CreativeBriefs)
}

func TestAnalyzeCreativeDiversityFallbackSummary(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{text: imageAnalysisJSON},
		{text: `{"clusters":[]}`},
		{text: `{"summary":"多用途運動鞋，適合日常與戶外。"}`, usage: Usage{InputTokens: 300, OutputTokens: 60}},
	}}
	p := newTestPipeline(provider, &fakeAnnotator{})

	result, err := p.AnalyzeCreativeDiversity(context.Background(), [][]byte{[]byte("a")}, Options{
		RunFallbackSummary: true,
	})
	require.NoError(t, err)

	require.NotNil(t, result.FallbackSummary)
	assert.Equal(t, "多用途運動鞋，適合日常與戶外。", result.FallbackSummary.Summary)
	// Missing confidence defaults, it is not treated as zero.
	assert.Equal(t, 0.7, result.FallbackSummary.Confidence)
}

func TestAnalyzeCreativeDiversityClampsFallbackConfidence(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{text: imageAnalysisJSON},
		{text: `{"clusters":[]}`},
		{text: `{"summary":"摘要","confidence":1.4}`},
	}}
	p := newTestPipeline(provider, &fakeAnnotator{})

	result, err := p.AnalyzeCreativeDiversity(context.Background(), [][]byte{[]byte("a")}, Options{
		RunFallbackSummary: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.99, result.FallbackSummary.Confidence)
}

func TestAnalyzeCreativeDiversityStageFailureAborts(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{text: imageAnalysisJSON},
		{text: `not json at all`},
	}}
	p := newTestPipeline(provider, &fakeAnnotator{})

	_, err := p.AnalyzeCreativeDiversity(context.Background(), [][]byte{[]byte("a")}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster summaries")
}

func TestAnalyzeCreativeDiversityCustomBuffer(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{text: imageAnalysisJSON, usage: Usage{InputTokens: 1000, OutputTokens: 100}},
		{text: `{"clusters":[]}`, usage: Usage{InputTokens: 500, OutputTokens: 50}},
	}}
	p := newTestPipeline(provider, &fakeAnnotator{})

	buffer := 10.0
	result, err := p.AnalyzeCreativeDiversity(context.Background(), [][]byte{[]byte("a")}, Options{
		BufferPercentage: &buffer,
	})
	require.NoError(t, err)
	assert.Equal(t, cost.AddBuffer(result.Cost.Breakdown, 10), result.Cost.Buffered)
}

func TestAnalyzeCreativeDiversityExplicitZeroBuffer(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{text: imageAnalysisJSON, usage: Usage{InputTokens: 1000, OutputTokens: 100}},
		{text: `{"clusters":[]}`, usage: Usage{InputTokens: 500, OutputTokens: 50}},
	}}
	p := newTestPipeline(provider, &fakeAnnotator{})

	// An explicit zero means no safety margin, not the default.
	buffer := 0.0
	result, err := p.AnalyzeCreativeDiversity(context.Background(), [][]byte{[]byte("a")}, Options{
		BufferPercentage: &buffer,
	})
	require.NoError(t, err)
	assert.Equal(t, result.Cost.Breakdown, result.Cost.Buffered)
}

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/backtrue/fbaudai/ai"
	"github.com/backtrue/fbaudai/storage"
)

const (
	maxImagesPerAnalysis = 10
	maxUploadBytes       = 32 << 20
)

type analyzeResponse struct {
	AnalysisID  string                      `json:"analysisId"`
	ProductName string                      `json:"productName"`
	Result      *ai.CreativeDiversityResult `json:"result"`
}

// handleAnalyze accepts a multipart upload of product images, runs the
// analysis pipeline and persists the run. Optional stages are gated by the
// user's plan, never by request parameters alone.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one image is required")
		return
	}
	if len(files) > maxImagesPerAnalysis {
		writeError(w, http.StatusBadRequest, "too many images, maximum is 10")
		return
	}

	images := make([][]byte, 0, len(files))
	imageMeta := make([]storage.ImageMeta, 0, len(files))
	for i, header := range files {
		contentType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			writeError(w, http.StatusBadRequest, "only image uploads are accepted")
			return
		}

		file, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}

		images = append(images, data)
		imageMeta = append(imageMeta, storage.ImageMeta{
			Position:    i,
			Filename:    header.Filename,
			ContentType: contentType,
			SizeBytes:   int64(len(data)),
		})
	}

	isPro := user.Plan == PlanPro
	opts := ai.Options{
		GeneratePersonas:       isPro,
		GenerateCreativeBriefs: isPro,
		RunFallbackSummary:     isPro && r.FormValue("enableFallback") == "true",
		ProductNameHint:        r.FormValue("productNameHint"),
	}

	result, err := s.pipeline.AnalyzeCreativeDiversity(r.Context(), images, opts)
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("analysis failed")
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	productName := resolveProductName(r, result)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	analysis := &storage.Analysis{
		ID:          newID(),
		UserID:      user.ID,
		ProductName: productName,
		PriceRange:  strings.TrimSpace(r.FormValue("priceRange")),
		SalesRegion: strings.TrimSpace(r.FormValue("salesRegion")),
		Status:      storage.AnalysisStatusCompleted,
		Result:      resultJSON,
	}
	if err := s.store.SaveAnalysis(analysis); err != nil {
		log.Error().Err(err).Msg("failed to persist analysis")
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	if err := s.store.AddAnalysisImages(analysis.ID, imageMeta); err != nil {
		log.Error().Err(err).Msg("failed to persist analysis images")
	}
	if err := s.store.SaveAnalysisCost(analysis.ID, storage.AnalysisCost{
		InputTokens:      result.Cost.Metrics.OpenAIInputTokens,
		OutputTokens:     result.Cost.Metrics.OpenAIOutputTokens,
		VisionCalls:      result.Cost.Metrics.GoogleVisionCalls,
		MetaQueries:      result.Cost.Metrics.MetaQueries,
		TotalCostUSD:     result.Cost.Breakdown.TotalCostUSD,
		TotalCostJPY:     result.Cost.Breakdown.TotalCostJPY,
		EstimatedCredits: result.Cost.Breakdown.EstimatedCredits,
		BufferedCredits:  result.Cost.Buffered.EstimatedCredits,
	}); err != nil {
		log.Error().Err(err).Msg("failed to persist analysis cost")
	}
	if err := s.store.RecordUsage(user.ID, time.Now().Format("2006-01"), int64(len(images)), result.Cost.Buffered.EstimatedCredits); err != nil {
		log.Error().Err(err).Msg("failed to record usage")
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		AnalysisID:  analysis.ID,
		ProductName: productName,
		Result:      result,
	})
}

// resolveProductName prefers a user-confirmed name over the model's guess.
func resolveProductName(r *http.Request, result *ai.CreativeDiversityResult) string {
	if r.FormValue("isConfirmed") == "true" {
		if confirmed := strings.TrimSpace(r.FormValue("confirmedProductName")); confirmed != "" {
			return confirmed
		}
	}
	if len(result.ProductAnalyses) > 0 && result.ProductAnalyses[0].ProductName != "" {
		return result.ProductAnalyses[0].ProductName
	}
	return "Unknown Product"
}

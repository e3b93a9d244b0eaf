package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/backtrue/fbaudai/cost"
)

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	analyses, err := s.store.ListAnalyses(user.ID, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list analyses")
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"analyses": analyses})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id := chi.URLParam(r, "id")

	analysis, err := s.store.GetAnalysis(id, user.ID)
	if err != nil {
		log.Error().Err(err).Str("analysisId", id).Msg("failed to load analysis")
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	if analysis == nil {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}

	images, err := s.store.GetAnalysisImages(id)
	if err != nil {
		log.Error().Err(err).Str("analysisId", id).Msg("failed to load analysis images")
	}
	analysisCost, err := s.store.GetAnalysisCost(id)
	if err != nil {
		log.Error().Err(err).Str("analysisId", id).Msg("failed to load analysis cost")
	}
	recommendations, err := s.store.ListRecommendations(id)
	if err != nil {
		log.Error().Err(err).Str("analysisId", id).Msg("failed to load recommendations")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analysis":        analysis,
		"images":          images,
		"cost":            analysisCost,
		"recommendations": recommendations,
	})
}

type generateAudiencesRequest struct {
	AnalysisID  string   `json:"analysisId"`
	Keywords    []string `json:"keywords"`
	PriceRange  string   `json:"priceRange"`
	SalesRegion string   `json:"salesRegion"`
}

// productContext is the pricing/market framing attached to a generated
// audience set.
type productContext struct {
	ProductName string `json:"productName"`
	PriceRange  string `json:"priceRange,omitempty"`
	SalesRegion string `json:"salesRegion,omitempty"`
}

// handleGenerateAudiences resolves an analysis' keywords to verified ad
// interests. Keywords in the request win; otherwise they are pulled from
// the stored analysis result. Price range and sales region likewise fall
// back to what the analysis was submitted with.
func (s *Server) handleGenerateAudiences(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req generateAudiencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AnalysisID == "" {
		writeError(w, http.StatusBadRequest, "analysisId is required")
		return
	}

	analysis, err := s.store.GetAnalysis(req.AnalysisID, user.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load analysis")
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	if analysis == nil {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}

	keywords := req.Keywords
	if len(keywords) == 0 {
		keywords = keywordsFromResult(analysis.Result)
	}
	if len(keywords) == 0 {
		writeError(w, http.StatusBadRequest, "no keywords available for this analysis")
		return
	}

	product := productContext{
		ProductName: analysis.ProductName,
		PriceRange:  req.PriceRange,
		SalesRegion: req.SalesRegion,
	}
	if product.PriceRange == "" {
		product.PriceRange = analysis.PriceRange
	}
	if product.SalesRegion == "" {
		product.SalesRegion = analysis.SalesRegion
	}

	metrics := &cost.Metrics{}
	recommendations, err := s.audiences.VerifyAndGenerateAudiences(r.Context(), keywords, metrics)
	if err != nil {
		log.Error().Err(err).Msg("audience generation failed")
		writeError(w, http.StatusBadGateway, "audience generation failed")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"productContext":  product,
		"recommendations": recommendations,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audience generation failed")
		return
	}
	if _, err := s.store.SaveRecommendation(req.AnalysisID, payload); err != nil {
		log.Error().Err(err).Msg("failed to persist recommendations")
	}
	if err := s.store.RecordAudienceUsage(user.ID, time.Now().Format("2006-01")); err != nil {
		log.Error().Err(err).Msg("failed to record audience usage")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"productContext":  product,
		"recommendations": recommendations,
		"metaQueries":     metrics.MetaQueries,
	})
}

// keywordsFromResult extracts the per-image keyword union from a stored
// pipeline result, deduplicated in first-seen order.
func keywordsFromResult(result json.RawMessage) []string {
	if result == nil {
		return nil
	}

	var parsed struct {
		ProductAnalyses []struct {
			Keywords []string `json:"keywords"`
		} `json:"productAnalyses"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var keywords []string
	for _, analysis := range parsed.ProductAnalyses {
		for _, keyword := range analysis.Keywords {
			if keyword == "" || seen[keyword] {
				continue
			}
			seen[keyword] = true
			keywords = append(keywords, keyword)
		}
	}
	return keywords
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	month := time.Now().Format("2006-01")
	stats, err := s.store.GetUsageStats(user.ID, month)
	if err != nil {
		log.Error().Err(err).Msg("failed to load usage stats")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	totals, err := s.store.GetUserTotals(user.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load user totals")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	recent, err := s.store.ListAnalyses(user.ID, 5)
	if err != nil {
		log.Error().Err(err).Msg("failed to list recent analyses")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"usage":          stats,
		"totals":         totals,
		"recentAnalyses": recent,
		"plan":           user.Plan,
	})
}

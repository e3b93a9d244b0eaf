package meta

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/backtrue/fbaudai/cost"
)

// Interest is one targetable ad interest as returned by the Graph search.
type Interest struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	AudienceSizeLower int64    `json:"audienceSizeLower"`
	AudienceSizeUpper int64    `json:"audienceSizeUpper"`
	Path              []string `json:"path,omitempty"`
	Topic             string   `json:"topic,omitempty"`
}

// AudienceRecommendation pairs a source keyword with the verified interests
// it resolved to. Keywords that resolve to nothing still appear, so the
// caller can tell "unverifiable" apart from "not attempted".
type AudienceRecommendation struct {
	Keyword   string     `json:"keyword"`
	Interests []Interest `json:"interests"`
}

// Client is the Marketing API audience-search client. Metrics is optional;
// when set, every Graph query bumps the MetaQueries counter of the run it
// belongs to.
type Client struct {
	http   *resty.Client
	tokens *TokenManager
}

// NewClient creates a Graph API client backed by the given token manager.
func NewClient(baseURL string, tokens *TokenManager) *Client {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second),
		tokens: tokens,
	}
}

type interestSearchResponse struct {
	Data []struct {
		ID                string   `json:"id"`
		Name              string   `json:"name"`
		AudienceSizeLower int64    `json:"audience_size_lower_bound"`
		AudienceSizeUpper int64    `json:"audience_size_upper_bound"`
		Path              []string `json:"path"`
		Topic             string   `json:"topic"`
	} `json:"data"`
}

// SearchInterests queries the adinterest search for one keyword. limit caps
// the returned candidates; non-positive means the API default.
func (c *Client) SearchInterests(ctx context.Context, query string, limit int, metrics *cost.Metrics) ([]Interest, error) {
	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	if metrics != nil {
		metrics.MetaQueries++
	}

	params := map[string]string{
		"type":         "adinterest",
		"q":            query,
		"access_token": token,
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	var parsed interestSearchResponse
	var apiErr graphError

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&parsed).
		SetError(&apiErr).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("interest search failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("interest search failed: %s", apiErr.Error.Message)
	}

	interests := make([]Interest, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		interests = append(interests, Interest{
			ID:                entry.ID,
			Name:              entry.Name,
			AudienceSizeLower: entry.AudienceSizeLower,
			AudienceSizeUpper: entry.AudienceSizeUpper,
			Path:              entry.Path,
			Topic:             entry.Topic,
		})
	}
	return interests, nil
}

// VerifyAndGenerateAudiences resolves each keyword to targetable interests.
// One failing keyword degrades to an empty interest list instead of failing
// the batch; a fully failed batch still returns per-keyword entries.
func (c *Client) VerifyAndGenerateAudiences(ctx context.Context, keywords []string, metrics *cost.Metrics) ([]AudienceRecommendation, error) {
	if len(keywords) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}

	recommendations := make([]AudienceRecommendation, 0, len(keywords))
	for _, keyword := range keywords {
		interests, err := c.SearchInterests(ctx, keyword, 10, metrics)
		if err != nil {
			log.Warn().Err(err).Str("keyword", keyword).Msg("interest search failed for keyword")
			interests = []Interest{}
		}
		recommendations = append(recommendations, AudienceRecommendation{
			Keyword:   keyword,
			Interests: interests,
		})
	}
	return recommendations, nil
}

package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/go-resty/resty/v2"
)

const googleVisionBaseURL = "https://vision.googleapis.com/v1"

// GoogleAnnotator implements Annotator against the Google Vision REST API
// using an API key.
type GoogleAnnotator struct {
	httpClient *resty.Client
	apiKey     string
}

// GoogleAnnotatorOpts configures a GoogleAnnotator. BaseURL is overridable
// for tests.
type GoogleAnnotatorOpts struct {
	BaseURL string
	APIKey  string
}

// NewGoogleAnnotator creates an annotator talking to the Google Vision API.
func NewGoogleAnnotator(opts GoogleAnnotatorOpts) *GoogleAnnotator {
	baseURL := googleVisionBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")

	return &GoogleAnnotator{httpClient: client, apiKey: opts.APIKey}
}

type annotateRequest struct {
	Requests []annotateRequestEntry `json:"requests"`
}

type annotateRequestEntry struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type annotateResponse struct {
	Responses []struct {
		LocalizedObjectAnnotations []struct {
			Name string `json:"name"`
		} `json:"localizedObjectAnnotations"`
		LabelAnnotations []struct {
			Description string `json:"description"`
		} `json:"labelAnnotations"`
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		ImagePropertiesAnnotation struct {
			DominantColors struct {
				Colors []struct {
					Color struct {
						Red   float64 `json:"red"`
						Green float64 `json:"green"`
						Blue  float64 `json:"blue"`
					} `json:"color"`
				} `json:"colors"`
			} `json:"dominantColors"`
		} `json:"imagePropertiesAnnotation"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (g *GoogleAnnotator) annotate(ctx context.Context, image []byte, featureType string) (*annotateResponse, error) {
	body := annotateRequest{
		Requests: []annotateRequestEntry{{
			Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []annotateFeature{{Type: featureType, MaxResults: 10}},
		}},
	}

	result := &annotateResponse{}
	res, err := g.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(body).
		SetResult(result).
		Post("/images:annotate")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("vision api request failed: %s (status: %d)", featureType, res.StatusCode())
	}
	if len(result.Responses) == 0 {
		return nil, fmt.Errorf("vision api returned no responses for %s", featureType)
	}
	if apiErr := result.Responses[0].Error; apiErr != nil {
		return nil, fmt.Errorf("vision api error for %s: %s", featureType, apiErr.Message)
	}

	return result, nil
}

// DetectObjects returns the names of localized objects in the image.
func (g *GoogleAnnotator) DetectObjects(ctx context.Context, image []byte) ([]string, error) {
	resp, err := g.annotate(ctx, image, "OBJECT_LOCALIZATION")
	if err != nil {
		return nil, err
	}
	var objects []string
	for _, obj := range resp.Responses[0].LocalizedObjectAnnotations {
		if obj.Name != "" {
			objects = append(objects, obj.Name)
		}
	}
	return objects, nil
}

// DetectLabels returns label descriptions for the image.
func (g *GoogleAnnotator) DetectLabels(ctx context.Context, image []byte) ([]string, error) {
	resp, err := g.annotate(ctx, image, "LABEL_DETECTION")
	if err != nil {
		return nil, err
	}
	var labels []string
	for _, label := range resp.Responses[0].LabelAnnotations {
		if label.Description != "" {
			labels = append(labels, label.Description)
		}
	}
	return labels, nil
}

// DetectText returns up to MaxTextFragments OCR fragments.
func (g *GoogleAnnotator) DetectText(ctx context.Context, image []byte) ([]string, error) {
	resp, err := g.annotate(ctx, image, "TEXT_DETECTION")
	if err != nil {
		return nil, err
	}
	var text []string
	for _, annotation := range resp.Responses[0].TextAnnotations {
		if annotation.Description == "" {
			continue
		}
		text = append(text, annotation.Description)
		if len(text) == MaxTextFragments {
			break
		}
	}
	return text, nil
}

// DetectDominantColors returns up to MaxColors dominant colors rendered as
// rgb(r, g, b) strings.
func (g *GoogleAnnotator) DetectDominantColors(ctx context.Context, image []byte) ([]string, error) {
	resp, err := g.annotate(ctx, image, "IMAGE_PROPERTIES")
	if err != nil {
		return nil, err
	}
	var colors []string
	for _, info := range resp.Responses[0].ImagePropertiesAnnotation.DominantColors.Colors {
		rgb := info.Color
		colors = append(colors, fmt.Sprintf("rgb(%d, %d, %d)",
			int(math.Round(rgb.Red)), int(math.Round(rgb.Green)), int(math.Round(rgb.Blue))))
		if len(colors) == MaxColors {
			break
		}
	}
	return colors, nil
}

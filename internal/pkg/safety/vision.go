package safety

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// VisionConfig configures the SafeSearch annotator.
type VisionConfig struct {
	Endpoint string // e.g. https://vision.googleapis.com/v1/images:annotate
	APIKey   string
	MaxSide  int
	Timeout  time.Duration
}

// Vision classifies images with a SafeSearch images:annotate endpoint.
type Vision struct {
	config VisionConfig
	source ImageSource
	client *http.Client
}

// NewVision creates a Vision classifier reading image bytes from source.
func NewVision(config VisionConfig, source ImageSource) *Vision {
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	return &Vision{
		config: config,
		source: source,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		SafeSearchAnnotation *Result `json:"safeSearchAnnotation"`
		Error                *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (v *Vision) Classify(ctx context.Context, loc Locator) (Result, error) {
	data, err := loadImage(ctx, v.source, loc, v.config.MaxSide)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	body, err := json.Marshal(annotateRequest{
		Requests: []annotateImageRequest{{
			Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(data)},
			Features: []annotateFeature{{Type: "SAFE_SEARCH_DETECTION"}},
		}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	endpoint := v.config.Endpoint
	if v.config.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(v.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: annotate returned %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(respBody), 256))
	}

	var parsed annotateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(parsed.Responses) == 0 {
		return Result{}, fmt.Errorf("%w: empty annotate response", ErrUnavailable)
	}

	first := parsed.Responses[0]
	if first.Error != nil {
		return Result{}, fmt.Errorf("%w: annotate error %d: %s", ErrUnavailable, first.Error.Code, first.Error.Message)
	}
	if first.SafeSearchAnnotation == nil {
		return Result{}, fmt.Errorf("%w: response has no safe search annotation", ErrUnavailable)
	}
	return *first.SafeSearchAnnotation, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "...<truncated>"
	}
	return s
}

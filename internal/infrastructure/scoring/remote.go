package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	appanomaly "github.com/globegenius/backend/internal/application/anomaly"
	"github.com/globegenius/backend/internal/domain/anomaly"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/globegenius/backend/internal/infrastructure/config"
)

const (
	scoreEndpoint = "/score"

	// maxResponseSize bounds the scorer response body
	maxResponseSize = 1 * 1024 * 1024
)

// RemoteScorer calls the external ML scoring service. Any failure to get a
// well-formed answer within the timeout maps to shared.ErrScorerUnavailable,
// which the detector treats as a signal to fall back, never as a detection
// failure.
type RemoteScorer struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemoteScorer creates a scorer client for the ML service
func NewRemoteScorer(cfg config.MLConfig) *RemoteScorer {
	return &RemoteScorer{
		baseURL: cfg.ServiceURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type scoreRequest struct {
	Features anomaly.FeatureVector `json:"features"`
}

// Score posts the feature vector and returns the service's judgment
func (s *RemoteScorer) Score(ctx context.Context, fv anomaly.FeatureVector) (anomaly.ScoringResult, error) {
	payload, err := json.Marshal(scoreRequest{Features: fv})
	if err != nil {
		return anomaly.ScoringResult{}, fmt.Errorf("encoding score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+scoreEndpoint, bytes.NewReader(payload))
	if err != nil {
		return anomaly.ScoringResult{}, fmt.Errorf("building score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return anomaly.ScoringResult{}, fmt.Errorf("%w: %v", shared.ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return anomaly.ScoringResult{}, fmt.Errorf("%w: reading response: %v", shared.ErrScorerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return anomaly.ScoringResult{}, fmt.Errorf("%w: status %d", shared.ErrScorerUnavailable, resp.StatusCode)
	}

	var result anomaly.ScoringResult
	if err := json.Unmarshal(body, &result); err != nil {
		return anomaly.ScoringResult{}, fmt.Errorf("%w: decoding response: %v", shared.ErrScorerUnavailable, err)
	}
	return result, nil
}

var _ appanomaly.Scorer = (*RemoteScorer)(nil)

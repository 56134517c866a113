// Package scorer provides the boundary to the external scoring models.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"forex-scanner/internal/models"
)

// Score is the scorer's verdict for a symbol. A zero ConfluenceScore with
// direction unset means "no signal".
type Score struct {
	Direction       models.Direction `json:"direction"`
	ConfluenceScore int              `json:"confluence_score"`
	MLProbability   float64          `json:"ml_probability"`
	Regime          models.RegimeTag `json:"regime"`
}

// MultiTimeframeData is the candle input handed to the scorer, keyed by
// timeframe.
type MultiTimeframeData map[string][]models.Candle

// Scorer scores a symbol from multi-timeframe data. Implementations are pure
// from the orchestrator's perspective: failures surface as scan rejections,
// never crashes.
type Scorer interface {
	Score(ctx context.Context, symbol string, data MultiTimeframeData) (*Score, error)
}

// HTTPScorer calls an external model service over HTTP.
type HTTPScorer struct {
	url    string
	client *http.Client
}

// NewHTTPScorer creates a scorer client for the given endpoint.
func NewHTTPScorer(url string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	Symbol string             `json:"symbol"`
	Data   MultiTimeframeData `json:"data"`
}

// Score implements Scorer.
func (s *HTTPScorer) Score(ctx context.Context, symbol string, data MultiTimeframeData) (*Score, error) {
	body, err := json.Marshal(scoreRequest{Symbol: symbol, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encoding score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scorer returned status %d", resp.StatusCode)
	}

	var score Score
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return nil, fmt.Errorf("decoding score response: %w", err)
	}
	return &score, nil
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, symbol string, data MultiTimeframeData) (*Score, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, symbol string, data MultiTimeframeData) (*Score, error) {
	return f(ctx, symbol, data)
}

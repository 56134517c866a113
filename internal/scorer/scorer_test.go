package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-scanner/internal/models"
)

func TestHTTPScorerRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "EURUSD", req.Symbol)
		assert.Contains(t, req.Data, "M15")

		json.NewEncoder(w).Encode(Score{
			Direction:       models.DirectionLong,
			ConfluenceScore: 7,
			MLProbability:   0.72,
			Regime:          models.RegimeTrending,
		})
	}))
	defer server.Close()

	s := NewHTTPScorer(server.URL, 5*time.Second)
	score, err := s.Score(context.Background(), "EURUSD", MultiTimeframeData{
		"M15": {{Close: 1.1}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionLong, score.Direction)
	assert.Equal(t, 7, score.ConfluenceScore)
	assert.InDelta(t, 0.72, score.MLProbability, 1e-9)
}

func TestHTTPScorerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model warming up", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewHTTPScorer(server.URL, 5*time.Second)
	_, err := s.Score(context.Background(), "EURUSD", nil)
	assert.Error(t, err)
}

func TestHTTPScorerUnreachable(t *testing.T) {
	s := NewHTTPScorer("http://127.0.0.1:1", time.Second)
	_, err := s.Score(context.Background(), "EURUSD", nil)
	assert.Error(t, err)
}

package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NeuralTrade/internal/domain/models"
	domsvc "NeuralTrade/internal/domain/service"
)

func newRemote(url string) *RemoteClassifier {
	return NewRemoteClassifier(url,
		models.ModelInfo{Role: RolePrimary, Name: "lstm", Version: "v1"},
		time.Second,
		BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute},
	)
}

var twoRows = domsvc.FeatureMatrix{{0, 0, 0, 0, 0}, {1, 1, 1, 1, 1}}

func TestRemoteClassifierInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, inferPath, r.URL.Path)
		var req inferRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "lstm", req.Model)
		assert.Len(t, req.Features, 2)
		assert.Len(t, req.Columns, 5)
		_ = json.NewEncoder(w).Encode(inferResponse{Probabilities: []float64{0.1, 0.2, 0.7}})
	}))
	defer srv.Close()

	c := newRemote(srv.URL)
	p, err := c.Infer(context.Background(), twoRows)
	require.NoError(t, err)
	assert.Equal(t, models.ClassBuy, p.Argmax())
	assert.True(t, c.Info().Loaded)
}

func TestRemoteClassifierRejectsBadVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(inferResponse{Probabilities: []float64{0.5, 0.5, 0.5}})
	}))
	defer srv.Close()

	_, err := newRemote(srv.URL).Infer(context.Background(), twoRows)
	assert.ErrorIs(t, err, models.ErrInvalidProbabilities)
}

func TestRemoteClassifierBreakerOpens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newRemote(srv.URL)
	for i := 0; i < 2; i++ {
		_, err := c.Infer(context.Background(), twoRows)
		require.Error(t, err)
	}
	_, err := c.Infer(context.Background(), twoRows)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "open", c.BreakerState())
}

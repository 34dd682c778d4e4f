package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"NeuralTrade/internal/domain/models"
	domsvc "NeuralTrade/internal/domain/service"
	"NeuralTrade/internal/services/features"
	xhttp "NeuralTrade/pkg/http"
)

const inferPath = "/v1/infer"

// BreakerSettings controls when the remote classifier stops being called.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	Interval            time.Duration
	OpenTimeout         time.Duration
}

// RemoteClassifier calls an external model-serving process over HTTP.
// Calls go through a circuit breaker so a dead model server fails fast.
type RemoteClassifier struct {
	baseURL string
	client  *xhttp.Client
	breaker *gobreaker.CircuitBreaker
	info    models.ModelInfo
}

func NewRemoteClassifier(baseURL string, info models.ModelInfo, timeout time.Duration, bs BreakerSettings) *RemoteClassifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if bs.ConsecutiveFailures == 0 {
		bs.ConsecutiveFailures = 3
	}
	info.Loaded = true

	st := gobreaker.Settings{
		Name:     "classifier-" + info.Role,
		Interval: bs.Interval,
		Timeout:  bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
	}

	return &RemoteClassifier{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithHeader("X-Model-Role", info.Role)),
		breaker: gobreaker.NewCircuitBreaker(st),
		info:    info,
	}
}

type inferRequest struct {
	Model    string      `json:"model"`
	Version  string      `json:"version"`
	Columns  []string    `json:"columns"`
	Features [][]float64 `json:"features"`
}

type inferResponse struct {
	Probabilities []float64 `json:"probabilities"` // sell, hold, buy
}

func (c *RemoteClassifier) Infer(ctx context.Context, fm domsvc.FeatureMatrix) (models.ProbabilityVector, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var out inferResponse
		err := c.client.PostJSON(ctx, c.baseURL+inferPath, inferRequest{
			Model:    c.info.Name,
			Version:  c.info.Version,
			Columns:  features.FeatureColumns,
			Features: fm,
		}, &out)
		if err != nil {
			return nil, err
		}
		return out.Probabilities, nil
	})
	if err != nil {
		return models.ProbabilityVector{}, fmt.Errorf("%s classifier: %w", c.info.Role, err)
	}

	pv, err := models.ProbabilityVectorFromSlice(res.([]float64))
	if err != nil {
		return models.ProbabilityVector{}, fmt.Errorf("%s classifier response: %w", c.info.Role, err)
	}
	return pv, nil
}

func (c *RemoteClassifier) Info() models.ModelInfo { return c.info }

// BreakerState reports the circuit state (closed, half-open, open).
func (c *RemoteClassifier) BreakerState() string { return c.breaker.State().String() }

var _ domsvc.Classifier = (*RemoteClassifier)(nil)

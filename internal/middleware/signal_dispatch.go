package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"NeuralTrade/internal/domain/models"
	domrepo "NeuralTrade/internal/domain/repository"
	"NeuralTrade/internal/service/ratelimit"
	"NeuralTrade/pkg/logger"
)

// ErrThrottled is returned when a market key exceeds its dispatch rate.
var ErrThrottled = errors.New("signal throttled")

type pending struct {
	sink   domrepo.SignalPublisher
	signal *models.SignalPrediction
}

// SignalDispatcher sits between the predictor and the sinks (Kafka, WebSocket).
// It validates, throttles per market, and buffers sends that failed so they
// can be retried once the sink recovers.
type SignalDispatcher struct {
	sinks         []domrepo.SignalPublisher
	metrics       domrepo.Metrics
	logger        *logger.Logger
	limiter       *ratelimit.Limiter
	ratePerSec    float64
	burst         int
	bufSize       int
	flushInterval time.Duration

	mu      sync.Mutex
	buf     []pending
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type DispatchOption func(*SignalDispatcher)

// WithRate sets the per-market token bucket. Zero rate disables throttling.
func WithRate(perSec float64, burst int) DispatchOption {
	return func(d *SignalDispatcher) {
		d.ratePerSec = perSec
		d.burst = burst
	}
}

// WithBufferSize bounds the retry buffer; the oldest entry is dropped when full.
func WithBufferSize(n int) DispatchOption {
	return func(d *SignalDispatcher) {
		if n > 0 {
			d.bufSize = n
		}
	}
}

func WithFlushInterval(iv time.Duration) DispatchOption {
	return func(d *SignalDispatcher) {
		if iv > 0 {
			d.flushInterval = iv
		}
	}
}

func WithDispatchLogger(l *logger.Logger) DispatchOption {
	return func(d *SignalDispatcher) { d.logger = l }
}

func NewSignalDispatcher(sinks []domrepo.SignalPublisher, metrics domrepo.Metrics, opts ...DispatchOption) *SignalDispatcher {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	d := &SignalDispatcher{
		sinks:         sinks,
		metrics:       metrics,
		logger:        logger.NewNop(),
		ratePerSec:    5,
		burst:         5,
		bufSize:       1000,
		flushInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.ratePerSec > 0 {
		d.limiter = ratelimit.New(d.burst, d.ratePerSec)
	}
	return d
}

// Dispatch forwards s to every sink. Sink failures are buffered and joined into the returned error.
func (d *SignalDispatcher) Dispatch(ctx context.Context, s *models.SignalPrediction) error {
	start := time.Now()
	if err := validateSignal(s); err != nil {
		d.metrics.RecordError("dispatch_validate")
		return err
	}
	if d.limiter != nil && !d.limiter.Allow(s.Key()) {
		d.metrics.RecordError("dispatch_throttle")
		d.logger.Debug("signal throttled", logger.String("market", s.Key()), logger.String("id", s.ID))
		return ErrThrottled
	}

	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, s); err != nil {
			d.metrics.RecordError("dispatch_" + sink.Name())
			d.enqueue(pending{sink: sink, signal: s})
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("dispatch downstream: %w", errors.Join(errs...))
	}

	d.metrics.RecordLatency("dispatch", time.Since(start).Seconds())
	if d.Buffered() > 0 {
		d.Flush(ctx)
	}
	return nil
}

// Flush retries buffered sends once and returns how many were delivered.
func (d *SignalDispatcher) Flush(ctx context.Context) int {
	d.mu.Lock()
	batch := d.buf
	d.buf = nil
	d.mu.Unlock()

	delivered := 0
	for i, p := range batch {
		if ctx.Err() != nil {
			d.requeue(batch[i:])
			break
		}
		if err := p.sink.Publish(ctx, p.signal); err != nil {
			d.enqueue(p)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		d.logger.Info("flushed buffered signals", logger.Int("delivered", delivered), logger.Int("remaining", d.Buffered()))
	}
	return delivered
}

// Buffered reports how many sends wait for retry.
func (d *SignalDispatcher) Buffered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}

// Start launches periodic flushing of the retry buffer.
func (d *SignalDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(d.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if d.Buffered() > 0 {
					d.Flush(ctx)
				}
			}
		}
	}()
}

// Stop ends background flushing and waits for it to exit.
func (d *SignalDispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	close(d.stopCh)
	doneCh := d.doneCh
	d.mu.Unlock()
	<-doneCh
}

func (d *SignalDispatcher) enqueue(p pending) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.buf) >= d.bufSize {
		d.buf = d.buf[1:]
		d.metrics.RecordError("dispatch_buffer_drop")
	}
	d.buf = append(d.buf, p)
}

func (d *SignalDispatcher) requeue(ps []pending) {
	for _, p := range ps {
		d.enqueue(p)
	}
}

func validateSignal(s *models.SignalPrediction) error {
	if s == nil {
		return fmt.Errorf("signal nil")
	}
	if s.ID == "" {
		return fmt.Errorf("signal id empty")
	}
	if s.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	lv := s.Levels
	if !finite(lv.Entry) || !finite(lv.StopLoss) || !finite(lv.RiskReward) {
		return fmt.Errorf("levels not finite")
	}
	for _, tp := range lv.TakeProfits {
		if !finite(tp) {
			return fmt.Errorf("take profit not finite")
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

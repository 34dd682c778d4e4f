package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer publishes keyed JSON records. The trace id carried by the publish
// context travels as the trace_id header so consumers can pick it up with TraceHook.
type Producer struct {
	writer      *kafka.Writer
	compression string
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		HashByKey:    true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	initProducerMetrics()

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancerFor(cfg.HashByKey),
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodec(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	if cfg.Async {
		// WriteMessages returns before delivery in async mode; count results here instead.
		w.Completion = func(msgs []kafka.Message, err error) {
			for _, m := range msgs {
				producerMsgsTotal.WithLabelValues(m.Topic, resultLabel(err)).Inc()
			}
		}
	}

	return &Producer{writer: w, compression: cfg.Compression}, nil
}

// Publish sends one record. Values other than []byte are JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	payload, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", topic, err)
	}

	msg := kafka.Message{Topic: topic, Key: key, Value: payload, Time: time.Now()}
	if id := TraceID(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: traceHeader, Value: []byte(id)})
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	producerBytesTotal.WithLabelValues(topic, p.compression).Add(float64(len(payload)))
	if !p.writer.Async {
		producerMsgsTotal.WithLabelValues(topic, resultLabel(err)).Inc()
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending batches and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case json.RawMessage:
		return val, nil
	default:
		return json.Marshal(v)
	}
}

// balancerFor keeps every record of one market on one partition when hashing by key.
func balancerFor(hashByKey bool) kafka.Balancer {
	if hashByKey {
		return &kafka.Hash{}
	}
	return &kafka.LeastBytes{}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "none":
		return 0
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var (
	producerMsgsTotal  *prometheus.CounterVec
	producerBytesTotal *prometheus.CounterVec
	producerLatency    *prometheus.HistogramVec
	producerOnce       sync.Once
)

func initProducerMetrics() {
	producerOnce.Do(func() {
		producerMsgsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neuraltrade",
			Subsystem: "kafka_producer",
			Name:      "messages_total",
			Help:      "Records published by result (ok, error)",
		}, []string{"topic", "result"})
		producerBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neuraltrade",
			Subsystem: "kafka_producer",
			Name:      "bytes_total",
			Help:      "Uncompressed payload bytes handed to the writer",
		}, []string{"topic", "compression"})
		producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "neuraltrade",
			Subsystem: "kafka_producer",
			Name:      "write_seconds",
			Help:      "Time spent in WriteMessages",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}, []string{"topic"})
	})
}

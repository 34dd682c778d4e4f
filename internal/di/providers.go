package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"NeuralTrade/internal/domain/models"
	"NeuralTrade/internal/domain/repository"
	domsvc "NeuralTrade/internal/domain/service"
	"NeuralTrade/internal/handler/api"
	mid "NeuralTrade/internal/middleware"
	internalrepo "NeuralTrade/internal/repository"
	"NeuralTrade/internal/service/cache"
	"NeuralTrade/internal/service/ratelimit"
	"NeuralTrade/internal/service/stream"
	"NeuralTrade/internal/services/inference"
	"NeuralTrade/internal/services/levels"
	"NeuralTrade/internal/services/risk"
	"NeuralTrade/internal/usecase"
	pkgch "NeuralTrade/pkg/clickhouse"
	"NeuralTrade/pkg/config"
	xhttp "NeuralTrade/pkg/http"
	pkgkafka "NeuralTrade/pkg/kafka"
	"NeuralTrade/pkg/logger"
	"NeuralTrade/pkg/metrics"
	"NeuralTrade/pkg/queue"
	"NeuralTrade/pkg/server"
)

const defaultModelVersion = "0.1.0"

// Optional backends (ClickHouse, Kafka, Redis) are returned as nil when disabled;
// downstream providers check for nil before wiring them.

// ProvideLogger builds the root logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("service", "neuraltrade"), logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideEngine binds the primary and shadow classifiers. An endpoint without
// a URL gets the fallback classifier.
func ProvideEngine(cfg *config.Config, l *logger.Logger, m repository.Metrics) *inference.Engine {
	bs := inference.BreakerSettings{
		ConsecutiveFailures: cfg.Inference.Breaker.ConsecutiveFailures,
		Interval:            cfg.Inference.Breaker.Interval,
		OpenTimeout:         cfg.Inference.Breaker.OpenTimeout,
	}

	primaryEP := cfg.Inference.Primary
	shadowEP := cfg.Inference.Shadow
	if primaryEP.Version == "" {
		primaryEP.Version = defaultModelVersion
	}
	if shadowEP.Version == "" {
		shadowEP.Version = primaryEP.Version + "-shadow"
	}

	primary := newClassifier(inference.RolePrimary, primaryEP, cfg.Inference.Timeout, bs)
	shadow := newClassifier(inference.RoleShadow, shadowEP, cfg.Inference.Timeout, bs)
	for _, c := range []domsvc.Classifier{primary, shadow} {
		info := c.Info()
		l.Info("classifier bound",
			logger.String("role", info.Role),
			logger.String("model", info.Name),
			logger.String("version", info.Version),
			logger.Bool("loaded", info.Loaded),
		)
	}

	return inference.NewEngine(primary, shadow,
		inference.WithTimeout(cfg.Inference.Timeout),
		inference.WithParallel(cfg.Inference.Parallel),
		inference.WithLogger(l.With(logger.String("component", "inference"))),
		inference.WithMetrics(m),
	)
}

func newClassifier(role string, ep config.ModelEndpoint, timeout time.Duration, bs inference.BreakerSettings) domsvc.Classifier {
	name := ep.Name
	if name == "" {
		name = "lstm-" + role
	}
	info := models.ModelInfo{Role: role, Name: name, Version: ep.Version, Loaded: true}
	if ep.URL == "" {
		return inference.NewFallbackClassifier(info)
	}
	return inference.NewRemoteClassifier(ep.URL, info, timeout, bs)
}

func ProvideCalculator(cfg *config.Config) *levels.Calculator {
	return levels.NewCalculator(cfg.Window.ATRPeriod)
}

func ProvideAssessor(cfg *config.Config, l *logger.Logger) *risk.Assessor {
	return risk.NewAssessor(RiskConfig(cfg), risk.WithLogger(l.With(logger.String("component", "risk"))))
}

// RiskConfig maps the risk config section onto the assessor config.
func RiskConfig(cfg *config.Config) risk.Config {
	rc := risk.DefaultConfig()
	rc.MaxDataAge = cfg.Risk.MaxDataAge
	rc.MinConfidence = cfg.Risk.MinConfidence
	rc.DriftThreshold = cfg.Risk.DriftThreshold
	rc.DriftWindow = cfg.Risk.DriftWindow
	rc.HistoryCapacity = cfg.Risk.HistoryCapacity
	rc.VolatilityCandles = cfg.Window.ATRPeriod
	rc.Bands = risk.Bands{Low: cfg.Risk.Bands.Low, Medium: cfg.Risk.Bands.Medium, High: cfg.Risk.Bands.High}
	return rc
}

// WindowBounds maps the window config section.
func WindowBounds(cfg *config.Config) models.WindowBounds {
	return models.WindowBounds{MinLen: cfg.Window.MinCandles, MaxLen: cfg.Window.MaxCandles}
}

// ProvideClickHouseClient connects to ClickHouse when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 5*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, true),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSignalStore creates the ClickHouse signal store and its tables.
func ProvideSignalStore(ch *pkgch.Client, cfg *config.Config) (*internalrepo.CHSignalStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHSignalStore(ch, cfg.ClickHouse.CandleTable)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

func ProvideCandleStore(ch *pkgch.Client, cfg *config.Config, l *logger.Logger) *internalrepo.CHCandleStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.CandleTable, l.With(logger.String("component", "candle_store")))
}

// ProvideRedisClient opens the shared Redis client for the cache and the outcome queue.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func ProvidePredictionCache(rc *redis.Client, cfg *config.Config, l *logger.Logger) *cache.PredictionCache {
	var shared cache.BytesCache
	if rc != nil {
		shared = cache.NewRedisCache(rc)
	}
	return cache.NewPredictionCache(shared, cfg.Redis.CacheTTL, cfg.Redis.KeyPrefix, l.With(logger.String("component", "cache")))
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the candle consumer when Kafka is enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l.With(logger.String("component", "kafka_consumer")),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideHub(cfg *config.Config, l *logger.Logger) *stream.Hub {
	return stream.NewHub(l.With(logger.String("component", "stream")), cfg.Server.CORSOrigins)
}

// ProvideDispatcher fans predictions out to the WebSocket hub and, when enabled, the Kafka signal topic.
func ProvideDispatcher(cfg *config.Config, producer *pkgkafka.Producer, hub *stream.Hub, m repository.Metrics, l *logger.Logger) *mid.SignalDispatcher {
	sinks := []repository.SignalPublisher{hub}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalTopic))
	}
	return mid.NewSignalDispatcher(sinks, m,
		mid.WithRate(cfg.Dispatch.RatePerSecond, cfg.Dispatch.Burst),
		mid.WithBufferSize(cfg.Dispatch.BufferSize),
		mid.WithDispatchLogger(l.With(logger.String("component", "dispatch"))),
	)
}

func ProvidePredictor(
	cfg *config.Config,
	engine *inference.Engine,
	calc *levels.Calculator,
	assessor *risk.Assessor,
	pc *cache.PredictionCache,
	store *internalrepo.CHSignalStore,
	candles *internalrepo.CHCandleStore,
	dispatcher *mid.SignalDispatcher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.SignalPredictor {
	opts := []usecase.PredictorOption{
		usecase.WithPredictionCache(pc),
		usecase.WithDispatcher(dispatcher),
		usecase.WithPredictorMetrics(m),
		usecase.WithPredictorLogger(l.With(logger.String("component", "predictor"))),
	}
	if store != nil {
		opts = append(opts, usecase.WithSignalStore(store))
	}
	if candles != nil {
		opts = append(opts, usecase.WithCandleStore(candles))
	}
	return usecase.NewSignalPredictor(engine, calc, assessor, WindowBounds(cfg), opts...)
}

func ProvideOutcomeRecorder(assessor *risk.Assessor, store *internalrepo.CHSignalStore, m repository.Metrics, l *logger.Logger) *usecase.OutcomeRecorder {
	var s repository.SignalStore
	if store != nil {
		s = store
	}
	return usecase.NewOutcomeRecorder(assessor, s, m, l.With(logger.String("component", "outcomes")))
}

// ProvideOutcomeQueue creates the Redis outcome queue with the outcome job registered.
func ProvideOutcomeQueue(cfg *config.Config, rc *redis.Client, recorder *usecase.OutcomeRecorder, l *logger.Logger) *queue.RedisQueue {
	q := newOutcomeQueue(cfg, rc, l)
	if q == nil {
		return nil
	}
	q.RegisterJob(usecase.NewOutcomeJob(recorder))
	return q
}

func newOutcomeQueue(cfg *config.Config, rc *redis.Client, l *logger.Logger) *queue.RedisQueue {
	if rc == nil || !cfg.Redis.OutcomeQueue.Enabled {
		return nil
	}
	qc := &queue.QueueConfig{
		Workers:    cfg.Redis.OutcomeQueue.Workers,
		RetryLimit: cfg.Redis.OutcomeQueue.MaxRetries,
		RetryDelay: cfg.Redis.OutcomeQueue.RetryDelay,
	}
	return queue.NewRedisQueue(l.With(logger.String("component", "outcome_queue")), qc, rc,
		queue.WithKeyPrefix(cfg.Redis.KeyPrefix+":queue:"+cfg.Redis.OutcomeQueue.Name))
}

// ProvideOutcomePublisher builds a publish-only outcome queue (no jobs registered) for the CLI.
func ProvideOutcomePublisher(cfg *config.Config, rc *redis.Client, l *logger.Logger) (*queue.RedisQueue, error) {
	q := newOutcomeQueue(cfg, rc, l)
	if q == nil {
		return nil, fmt.Errorf("outcome queue requires redis.enabled and redis.outcome_queue.enabled")
	}
	return q, nil
}

func ProvideCandlesHandler(cfg *config.Config, predictor *usecase.SignalPredictor, candles *internalrepo.CHCandleStore, m repository.Metrics, l *logger.Logger) *usecase.KafkaCandlesHandler {
	var w repository.CandleWriter
	if candles != nil {
		w = candles
	}
	return usecase.NewKafkaCandlesHandler(cfg.Kafka.CandleTopic, predictor, w, m, l.With(logger.String("component", "candles_handler")))
}

func ProvideSignalsHandler(
	cfg *config.Config,
	l *logger.Logger,
	predictor *usecase.SignalPredictor,
	recorder *usecase.OutcomeRecorder,
	hub *stream.Hub,
	q *queue.RedisQueue,
) *api.SignalsEchoHandler {
	opts := []api.HandlerOption{
		api.WithVersion(cfg.Version),
		api.WithStream(hub),
		api.WithLimiter(ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)),
	}
	if q != nil {
		opts = append(opts, api.WithQueue(q))
	}
	return api.NewSignalsEchoHandler(l.With(logger.String("component", "api")), predictor, recorder, opts...)
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, h *api.SignalsEchoHandler) *xhttp.Server {
	return xhttp.NewServer(l.With(logger.String("component", "http")), []xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaCandlesHandler,
	q *queue.RedisQueue,
	dispatcher *mid.SignalDispatcher,
	hub *stream.Hub,
	producer *pkgkafka.Producer,
	rc *redis.Client,
	ch *pkgch.Client,
) *server.App {
	c := server.Components{
		HTTP:       srv,
		Dispatcher: dispatcher,
		Hub:        hub,
	}
	if consumer != nil {
		c.Consumer = consumer
		c.CandleHandler = kh
	}
	if q != nil {
		c.OutcomeQueue = q
	}
	var closers []io.Closer
	if producer != nil {
		closers = append(closers, producer)
	}
	if rc != nil {
		closers = append(closers, rc)
	}
	if ch != nil {
		closers = append(closers, ch)
	}
	c.Closers = closers
	return server.New(cfg, l, c)
}

// NewOfflinePredictor runs the full pipeline with no cache, store or sinks.
func NewOfflinePredictor(cfg *config.Config, l *logger.Logger) *usecase.SignalPredictor {
	m := repository.NopMetrics{}
	return usecase.NewSignalPredictor(
		ProvideEngine(cfg, l, m),
		ProvideCalculator(cfg),
		ProvideAssessor(cfg, l),
		WindowBounds(cfg),
		usecase.WithPredictorLogger(l),
	)
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"NeuralTrade/pkg/logger"
)

const (
	popTimeout    = time.Second
	retryTick     = time.Second
	pingTimeout   = 5 * time.Second
	defaultPrefix = "neuraltrade:queue"
)

// RedisQueue is a job queue over three Redis keys: a pending list, a ZSET of
// delayed retries scored by due time, and a dead-letter list.
// With no jobs registered it runs publish-only.
type RedisQueue struct {
	logger    *logger.Logger
	config    QueueConfig
	client    *redis.Client
	keyPrefix string
	now       func() time.Time

	mu        sync.RWMutex
	jobs      map[string]Job
	running   bool
	consuming bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.keyPrefix = prefix }
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	cfg := QueueConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}

	initQueueMetrics()
	r := &RedisQueue{
		logger:    lgr,
		config:    cfg,
		client:    client,
		keyPrefix: defaultPrefix,
		now:       time.Now,
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisQueue) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		r.RegisterJob(job)
	}
}

// RegisterJob binds a job to its message type. The first registration for a type wins.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.jobs[job.Type()]; ok {
		r.logger.Warn("job type already bound",
			logger.String("type", job.Type()),
			logger.String("kept", prev.Name()),
			logger.String("ignored", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis, then launches workers and the retry mover if any job is registered.
func (r *RedisQueue) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	err := r.client.Ping(ctx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}
	r.running = true
	r.consuming = len(r.jobs) > 0
	if !r.consuming {
		r.logger.Info("redis queue started publish-only", logger.String("prefix", r.keyPrefix))
		return nil
	}

	runCtx, stop := context.WithCancel(context.Background())
	r.cancel = stop
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.work(runCtx, i)
	}
	r.wg.Add(1)
	go r.moveDueRetries(runCtx)

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("prefix", r.keyPrefix))
	return nil
}

// Stop cancels workers and waits for in-flight jobs until ctx expires.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue workers still running: %w", ctx.Err())
	}
}

// Enqueue wraps payload in a Message and pushes it on the pending list.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running, consuming := r.running, r.consuming
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return fmt.Errorf("queue not running")
	}
	if consuming && !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", r.queueKey(), err)
	}
	queueMessages.WithLabelValues(msgType, "enqueued").Inc()
	return nil
}

// PublishMessage implements Publisher.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Depth reports pending, delayed and dead-lettered message counts.
func (r *RedisQueue) Depth(ctx context.Context) (pending, retrying, dead int64, err error) {
	pipe := r.client.Pipeline()
	p := pipe.LLen(ctx, r.queueKey())
	z := pipe.ZCard(ctx, r.retryKey())
	d := pipe.LLen(ctx, r.deadLetterKey())
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return p.Val(), z.Val(), d.Val(), nil
}

func (r *RedisQueue) work(ctx context.Context, id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, popTimeout, r.queueKey()).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		default:
			r.logger.Error("brpop failed", logger.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}
		// BRPOP returns [key, value]
		if len(res) != 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.logger.Error("drop undecodable message", logger.Error(err))
			continue
		}
		r.dispatch(ctx, msg)
	}
}

func (r *RedisQueue) dispatch(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.deadLetter(msg, fmt.Errorf("no job for type %s", msg.Type))
		return
	}

	start := time.Now()
	err := runJob(ctx, job, msg.Payload)
	switch {
	case err == nil:
		queueMessages.WithLabelValues(msg.Type, "done").Inc()
		r.logger.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed_ms", time.Since(start)))
	case errors.Is(err, context.Canceled):
		// shutdown mid-job; the next run will not see it again
		r.logger.Warn("message cancelled", logger.String("id", msg.ID), logger.String("job", job.Name()))
	case msg.Attempts >= r.config.RetryLimit:
		r.deadLetter(msg, err)
	default:
		r.retryLater(msg, err)
	}
}

func runJob(ctx context.Context, job Job, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panic: %v", rec)
		}
	}()
	return job.Handle(ctx, payload)
}

// retryLater schedules msg after RetryDelay doubled per previous attempt.
func (r *RedisQueue) retryLater(msg Message, cause error) {
	msg.Attempts++
	msg.LastError = cause.Error()
	due := r.now().Add(r.config.RetryDelay << uint(msg.Attempts-1))

	r.logger.Warn("message failed, retrying",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts),
		logger.Error(cause))

	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	z := redis.Z{Score: float64(due.Unix()), Member: data}
	if err := r.client.ZAdd(context.Background(), r.retryKey(), z).Err(); err != nil {
		r.logger.Error("schedule retry", logger.Error(err))
		return
	}
	queueMessages.WithLabelValues(msg.Type, "retried").Inc()
}

func (r *RedisQueue) deadLetter(msg Message, cause error) {
	msg.LastError = cause.Error()
	r.logger.Error("message dead-lettered",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempts", msg.Attempts),
		logger.Error(cause))

	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dead letter", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), data).Err(); err != nil {
		r.logger.Error("push dead letter", logger.Error(err))
		return
	}
	queueMessages.WithLabelValues(msg.Type, "dead").Inc()
}

func (r *RedisQueue) moveDueRetries(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(retryTick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.requeueDue(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("requeue due retries", logger.Error(err))
			}
		}
	}
}

// requeueDue moves every retry whose due time has passed back onto the pending list.
// ZREM decides the winner when several processes race for the same member.
func (r *RedisQueue) requeueDue(ctx context.Context) error {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range due {
		n, err := r.client.ZRem(ctx, r.retryKey(), member).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if err := r.client.LPush(ctx, r.queueKey(), member).Err(); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }

var (
	queueMessages *prometheus.CounterVec
	queueOnce     sync.Once
)

func initQueueMetrics() {
	queueOnce.Do(func() {
		queueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neuraltrade",
			Subsystem: "queue",
			Name:      "messages_total",
			Help:      "Queue messages by type and outcome (enqueued, done, retried, dead)",
		}, []string{"type", "outcome"})
	})
}

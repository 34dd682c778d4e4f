package queue

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NeuralTrade/pkg/logger"
)

type outcomePayload struct {
	PredictionID string `json:"prediction_id"`
	WasCorrect   bool   `json:"was_correct"`
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload[outcomePayload]([]byte(`{"prediction_id":"abc","was_correct":true}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", p.PredictionID)
	assert.True(t, p.WasCorrect)

	_, err = ParsePayload[outcomePayload](nil)
	assert.Error(t, err)

	_, err = ParsePayload[outcomePayload]([]byte(`{not json`))
	assert.Error(t, err)
}

func TestJobFunc(t *testing.T) {
	var got []byte
	job := JobFunc{
		JobName: "outcome-recorder",
		MsgType: "signal.outcome",
		Fn: func(_ context.Context, payload []byte) error {
			got = payload
			return nil
		},
	}

	assert.Equal(t, "outcome-recorder", job.Name())
	assert.Equal(t, "signal.outcome", job.Type())
	require.NoError(t, job.Handle(context.Background(), []byte(`{}`)))
	assert.Equal(t, []byte(`{}`), got)
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	q := NewRedisQueue(logger.NewNop(), nil, client, WithKeyPrefix("test"))
	err := q.Enqueue(context.Background(), "signal.outcome", outcomePayload{PredictionID: "x"})
	assert.EqualError(t, err, "queue not running")

	assert.Equal(t, "test:messages", q.queueKey())
	assert.Equal(t, "test:retry", q.retryKey())
	assert.Equal(t, "test:dlq", q.deadLetterKey())
}

func TestRegisterJobIgnoresDuplicates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	q := NewRedisQueue(nil, &QueueConfig{Workers: 2}, client)
	first := JobFunc{JobName: "a", MsgType: "t", Fn: func(context.Context, []byte) error { return nil }}
	second := JobFunc{JobName: "b", MsgType: "t", Fn: func(context.Context, []byte) error { return nil }}
	q.RegisterJobs([]Job{first, second})

	require.Len(t, q.jobs, 1)
	assert.Equal(t, "a", q.jobs["t"].Name())
	assert.NoError(t, q.Stop(context.Background()))
}

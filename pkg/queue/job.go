package queue

import "context"

// Job consumes one message type. Handle receives the raw JSON payload;
// a returned error schedules a retry until RetryLimit is spent.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload []byte) error
}

// JobFunc adapts a plain function into a Job.
type JobFunc struct {
	JobName string
	MsgType string
	Fn      func(ctx context.Context, payload []byte) error
}

func (j JobFunc) Name() string                                   { return j.JobName }
func (j JobFunc) Type() string                                   { return j.MsgType }
func (j JobFunc) Handle(ctx context.Context, payload []byte) error { return j.Fn(ctx, payload) }

package queue

import (
	"context"
	"time"

	"callbrief/internal/pipeline"
)

// InProc executes tasks synchronously through the same retry policy as the
// Redis consumer. It exists for tests and for running the API without a
// worker process.
type InProc struct {
	handler Handler

	// Delays records the retry delays that would have been slept.
	Delays []time.Duration
}

func NewInProc(handler Handler) *InProc {
	return &InProc{handler: handler}
}

func (q *InProc) Enqueue(ctx context.Context, t pipeline.Task) error {
	q.run(ctx, t)
	return nil
}

func (q *InProc) EnqueueAfter(ctx context.Context, t pipeline.Task, delay time.Duration) error {
	q.Delays = append(q.Delays, delay)
	q.run(ctx, t)
	return nil
}

func (q *InProc) run(ctx context.Context, t pipeline.Task) {
	err := q.handler.Process(ctx, t)
	if err == nil {
		return
	}
	maxAttempts, delay := pipeline.RetryPolicy(t.Stage)
	if t.Attempt >= maxAttempts {
		q.handler.RecordFailure(ctx, t, err)
		return
	}
	retry := t
	retry.Attempt++
	_ = q.EnqueueAfter(ctx, retry, delay)
}

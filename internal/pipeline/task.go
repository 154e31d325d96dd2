// Package pipeline drives a call through transcription, summarization and
// notification as durable queued stages.
package pipeline

import (
	"context"
	"time"
)

// Stage identifies one processing step.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageSummarize  Stage = "summarize"
	StageNotify     Stage = "notify"
)

// Task is one unit of queued work. Attempt starts at 1 and is incremented by
// the consumer on each redelivery.
type Task struct {
	ID       string `json:"id"`
	Stage    Stage  `json:"stage"`
	CallID   string `json:"call_id"`
	Language string `json:"language,omitempty"`
	Attempt  int    `json:"attempt"`
}

// Enqueuer hands tasks to the queue, immediately or after a delay.
type Enqueuer interface {
	Enqueue(ctx context.Context, t Task) error
	EnqueueAfter(ctx context.Context, t Task, delay time.Duration) error
}

// RetryPolicy returns how many attempts a stage gets and the delay between
// them. Transcription waits longer because provider backlogs clear slowly.
func RetryPolicy(stage Stage) (maxAttempts int, delay time.Duration) {
	switch stage {
	case StageTranscribe:
		return 3, 60 * time.Second
	default:
		return 3, 30 * time.Second
	}
}

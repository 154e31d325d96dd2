package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"callbrief/internal/pipeline"
)

type scriptedHandler struct {
	failures int

	processed []pipeline.Task
	exhausted []pipeline.Task
}

func (h *scriptedHandler) Process(_ context.Context, t pipeline.Task) error {
	h.processed = append(h.processed, t)
	if h.failures > 0 {
		h.failures--
		return errors.New("provider unavailable")
	}
	return nil
}

func (h *scriptedHandler) RecordFailure(_ context.Context, t pipeline.Task, _ error) {
	h.exhausted = append(h.exhausted, t)
}

func TestTaskCodec(t *testing.T) {
	in := pipeline.Task{ID: "t1", Stage: pipeline.StageSummarize, CallID: "c1", Language: "he", Attempt: 2}
	payload, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out pipeline.Task
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestInProcSuccess(t *testing.T) {
	h := &scriptedHandler{}
	q := NewInProc(h)

	task := pipeline.Task{ID: "t1", Stage: pipeline.StageTranscribe, CallID: "c1", Attempt: 1}
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if len(h.processed) != 1 || len(h.exhausted) != 0 {
		t.Fatalf("processed/exhausted = %d/%d", len(h.processed), len(h.exhausted))
	}
	if len(q.Delays) != 0 {
		t.Fatalf("delays = %v", q.Delays)
	}
}

func TestInProcRetriesThenSucceeds(t *testing.T) {
	h := &scriptedHandler{failures: 2}
	q := NewInProc(h)

	task := pipeline.Task{ID: "t1", Stage: pipeline.StageTranscribe, CallID: "c1", Attempt: 1}
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if len(h.processed) != 3 {
		t.Fatalf("attempts = %d, want 3", len(h.processed))
	}
	if len(h.exhausted) != 0 {
		t.Fatal("task should not have exhausted retries")
	}
	for i, attempt := range []int{1, 2, 3} {
		if h.processed[i].Attempt != attempt {
			t.Errorf("attempt %d recorded as %d", attempt, h.processed[i].Attempt)
		}
	}
	if len(q.Delays) != 2 || q.Delays[0] != 60*time.Second {
		t.Fatalf("delays = %v, want two 60s delays", q.Delays)
	}
}

func TestInProcExhaustion(t *testing.T) {
	h := &scriptedHandler{failures: 10}
	q := NewInProc(h)

	task := pipeline.Task{ID: "t1", Stage: pipeline.StageSummarize, CallID: "c1", Attempt: 1}
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if len(h.processed) != 3 {
		t.Fatalf("attempts = %d, want 3", len(h.processed))
	}
	if len(h.exhausted) != 1 || h.exhausted[0].Attempt != 3 {
		t.Fatalf("exhausted = %+v", h.exhausted)
	}
	if len(q.Delays) != 2 || q.Delays[0] != 30*time.Second {
		t.Fatalf("delays = %v, want two 30s delays", q.Delays)
	}
}

func TestRetryPolicy(t *testing.T) {
	if n, d := pipeline.RetryPolicy(pipeline.StageTranscribe); n != 3 || d != 60*time.Second {
		t.Errorf("transcribe policy = %d/%v", n, d)
	}
	if n, d := pipeline.RetryPolicy(pipeline.StageSummarize); n != 3 || d != 30*time.Second {
		t.Errorf("summarize policy = %d/%v", n, d)
	}
	if n, d := pipeline.RetryPolicy(pipeline.StageNotify); n != 3 || d != 30*time.Second {
		t.Errorf("notify policy = %d/%v", n, d)
	}
}

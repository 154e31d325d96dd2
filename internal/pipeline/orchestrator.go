package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"callbrief/internal/calls"
	"callbrief/internal/summarize"
	"callbrief/internal/transcribe"
	"callbrief/pkg/logger"
)

// audioURLTTL bounds how long the transcription provider can fetch the audio.
const audioURLTTL = 2 * time.Hour

// AudioSigner produces a time-limited read URL for a stored audio object.
type AudioSigner interface {
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Notifier fans a completed summary out to the user's channels.
type Notifier interface {
	DispatchForSummary(ctx context.Context, call calls.Call, summary calls.Summary) error
}

// Orchestrator executes pipeline stages. It is driven by a queue consumer:
// Process reports failure through its error so the consumer can schedule a
// retry, and RecordFailure runs once retries are exhausted.
type Orchestrator struct {
	store       calls.Store
	signer      AudioSigner
	transcriber transcribe.Transcriber
	summarizer  *summarize.Service
	notifier    Notifier
	queue       Enqueuer

	defaultLanguage string
	now             func() time.Time
}

func NewOrchestrator(store calls.Store, signer AudioSigner, transcriber transcribe.Transcriber,
	summarizer *summarize.Service, notifier Notifier, queue Enqueuer, defaultLanguage string) *Orchestrator {
	return &Orchestrator{
		store:           store,
		signer:          signer,
		transcriber:     transcriber,
		summarizer:      summarizer,
		notifier:        notifier,
		queue:           queue,
		defaultLanguage: defaultLanguage,
		now:             time.Now,
	}
}

// SetQueue wires the enqueuer after construction. The synchronous queue
// needs the orchestrator as its handler, so one side has to be set late.
func (o *Orchestrator) SetQueue(q Enqueuer) { o.queue = q }

// StartTranscription enqueues the first stage for a call.
func (o *Orchestrator) StartTranscription(ctx context.Context, callID, language string) error {
	return o.queue.Enqueue(ctx, Task{
		ID:       uuid.NewString(),
		Stage:    StageTranscribe,
		CallID:   callID,
		Language: language,
		Attempt:  1,
	})
}

// Process runs one task. A nil return means the task is finished, including
// the stale-redelivery case; an error asks the consumer to retry.
func (o *Orchestrator) Process(ctx context.Context, t Task) error {
	call, err := o.store.GetCall(ctx, t.CallID)
	if errors.Is(err, calls.ErrNotFound) {
		// The call was deleted while the task sat in the queue.
		logger.From(ctx).Warn("pipeline task for missing call", "call_id", t.CallID, "stage", t.Stage)
		return nil
	}
	if err != nil {
		return err
	}

	switch t.Stage {
	case StageTranscribe:
		return o.runTranscribe(ctx, call, t)
	case StageSummarize:
		return o.runSummarize(ctx, call, t)
	case StageNotify:
		return o.runNotify(ctx, call)
	default:
		logger.From(ctx).Error("unknown pipeline stage", "stage", t.Stage, "call_id", t.CallID)
		return nil
	}
}

// RecordFailure marks the call failed after the last attempt. Notification
// exhaustion is logged only: the call already completed and the per-channel
// notification rows carry their own failure state.
func (o *Orchestrator) RecordFailure(ctx context.Context, t Task, cause error) {
	logger.From(ctx).Error("pipeline stage exhausted retries",
		"stage", t.Stage, "call_id", t.CallID, "attempt", t.Attempt, "error", cause)
	if t.Stage == StageNotify {
		return
	}
	if err := o.store.SetCallFailed(ctx, t.CallID, cause.Error()); err != nil && !errors.Is(err, calls.ErrNotFound) {
		logger.From(ctx).Error("failed to mark call failed", "call_id", t.CallID, "error", err)
	}
}

func (o *Orchestrator) runTranscribe(ctx context.Context, call calls.Call, t Task) error {
	if !call.Status.CanTransitionTo(calls.CallStatusTranscribing) {
		logger.From(ctx).Warn("skipping stale transcribe task", "call_id", call.ID, "status", call.Status)
		return nil
	}
	if err := o.store.UpdateCallStatus(ctx, call.ID, calls.CallStatusTranscribing); err != nil {
		return err
	}

	audioURL, err := o.signer.SignedReadURL(ctx, call.StorageKey, audioURLTTL)
	if err != nil {
		return fmt.Errorf("sign audio url: %w", err)
	}
	res, err := o.transcriber.Transcribe(ctx, audioURL, requestedLanguage(t.Language))
	if err != nil {
		return err
	}

	now := o.now().UTC()
	tr := calls.Transcription{
		ID:              uuid.NewString(),
		CallID:          call.ID,
		Provider:        o.transcriber.Provider(),
		ExternalID:      res.ExternalID,
		Text:            res.Text,
		Confidence:      res.Confidence,
		Language:        res.Language,
		DurationSeconds: res.DurationSeconds,
		Segments:        res.Segments,
		WordCount:       res.WordCount,
		Status:          calls.JobStatusCompleted,
		CreatedAt:       now,
		CompletedAt:     now,
	}
	if err := o.store.CreateTranscription(ctx, tr); err != nil {
		return err
	}
	if err := o.store.MarkCallTranscribed(ctx, call.ID, res.Language, res.DurationSeconds); err != nil {
		return err
	}
	logger.From(ctx).Info("call transcribed",
		"call_id", call.ID, "language", res.Language, "words", res.WordCount)

	return o.queue.Enqueue(ctx, Task{
		ID:       uuid.NewString(),
		Stage:    StageSummarize,
		CallID:   call.ID,
		Language: t.Language,
		Attempt:  1,
	})
}

func (o *Orchestrator) runSummarize(ctx context.Context, call calls.Call, t Task) error {
	if !call.Status.CanTransitionTo(calls.CallStatusSummarizing) {
		logger.From(ctx).Warn("skipping stale summarize task", "call_id", call.ID, "status", call.Status)
		return nil
	}
	tr, err := o.store.GetTranscriptionByCall(ctx, call.ID)
	if errors.Is(err, calls.ErrNotFound) {
		// Reprocess wipes children; a redelivered task may race that.
		logger.From(ctx).Warn("summarize task without transcription", "call_id", call.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transcription: %w", err)
	}
	if err := o.store.UpdateCallStatus(ctx, call.ID, calls.CallStatusSummarizing); err != nil {
		return err
	}

	lang := summarize.ResolveLanguage(t.Language, call.LanguageDetected, o.defaultLanguage)
	res, err := o.summarizer.Summarize(ctx, tr.Text, tr.Segments, lang)
	if err != nil {
		return err
	}

	now := o.now().UTC()
	summary := calls.Summary{
		ID:                uuid.NewString(),
		CallID:            call.ID,
		TranscriptionID:   tr.ID,
		Provider:          res.Provider,
		Model:             res.Model,
		SummaryText:       res.SummaryText,
		KeyPoints:         res.KeyPoints,
		ActionItems:       res.ActionItems,
		Sentiment:         res.Sentiment,
		StructuredActions: res.StructuredActions,
		Participants:      res.Participants,
		Topics:            res.Topics,
		Language:          lang,
		TokensUsed:        res.TokensUsed,
		Status:            calls.JobStatusCompleted,
		CreatedAt:         now,
		CompletedAt:       now,
	}
	if err := o.store.CreateSummary(ctx, summary); err != nil {
		return err
	}
	if err := o.store.UpdateCallStatus(ctx, call.ID, calls.CallStatusCompleted); err != nil {
		return err
	}
	logger.From(ctx).Info("call summarized",
		"call_id", call.ID, "language", lang, "tokens", res.TokensUsed)

	return o.queue.Enqueue(ctx, Task{
		ID:      uuid.NewString(),
		Stage:   StageNotify,
		CallID:  call.ID,
		Attempt: 1,
	})
}

func (o *Orchestrator) runNotify(ctx context.Context, call calls.Call) error {
	summary, err := o.store.LatestSummaryByCall(ctx, call.ID)
	if errors.Is(err, calls.ErrNotFound) {
		logger.From(ctx).Warn("notify task without summary", "call_id", call.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}
	return o.notifier.DispatchForSummary(ctx, call, summary)
}

// requestedLanguage maps the "detect it for me" spellings to the empty string
// the transcriber expects.
func requestedLanguage(code string) string {
	if code == "auto" || code == "unknown" {
		return ""
	}
	return code
}

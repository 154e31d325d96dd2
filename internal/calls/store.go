package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrDuplicateKey    = errors.New("calls: storage key already registered")
	ErrNotFailed       = errors.New("calls: call is not in failed state")
)

// Store is the persistence contract for the call record tree.
//
// Rules for implementations:
// - GetCallByStorageKey backs idempotent upload registration; CreateCall must
//   reject a duplicate storage key with ErrDuplicateKey.
// - DeleteCallTree and ResetForReprocess delete children in FK order
//   (notifications -> summaries -> transcriptions) and must be atomic.
// - Stage jobs open their own short-lived connections; no method may assume
//   shared in-memory state between calls.
type Store interface {
	CreateCall(ctx context.Context, c Call) error
	GetCall(ctx context.Context, id string) (Call, error)
	GetCallByStorageKey(ctx context.Context, key string) (Call, error)
	ListCallsByUser(ctx context.Context, userID string, page, pageSize int) ([]Call, int, error)
	CountCallsCreatedBetween(ctx context.Context, userID string, from, to time.Time) (int, error)

	// UpdateCallStatus writes a new status; callers are responsible for
	// validating the transition against the loaded row first.
	UpdateCallStatus(ctx context.Context, id string, status CallStatus) error
	SetCallFailed(ctx context.Context, id, errorMessage string) error
	// MarkCallTranscribed advances the call and stamps what the transcript
	// detected, in one write.
	MarkCallTranscribed(ctx context.Context, id, language string, durationSeconds float64) error

	// ResetForReprocess deletes all children and resets the call to uploaded,
	// clearing error and detected language. Atomic.
	ResetForReprocess(ctx context.Context, id string) error
	// DeleteCallTree deletes children in FK order and then the call row. Atomic.
	DeleteCallTree(ctx context.Context, id string) error

	CreateTranscription(ctx context.Context, t Transcription) error
	GetTranscription(ctx context.Context, id string) (Transcription, error)
	GetTranscriptionByCall(ctx context.Context, callID string) (Transcription, error)

	CreateSummary(ctx context.Context, s Summary) error
	GetSummary(ctx context.Context, id string) (Summary, error)
	LatestSummaryByCall(ctx context.Context, callID string) (Summary, error)

	CreateNotification(ctx context.Context, n Notification) error
	GetNotification(ctx context.Context, id string) (Notification, error)
	UpdateNotification(ctx context.Context, n Notification) error
	ListNotificationsBySummary(ctx context.Context, summaryID string) ([]Notification, error)
	ListNotificationsByUser(ctx context.Context, userID string, page, pageSize int) ([]Notification, int, error)
}

package calls

import (
	"strings"
	"time"
)

// Call represents one uploaded phone-call recording and its pipeline state.
//
// Invariants:
// - StorageKey is globally unique (enforced by a UNIQUE constraint).
// - Status only moves forward (see CanTransitionTo); the explicit reprocess
//   operation is the single exception and resets the row wholesale.
// - Status and ErrorMessage are mutated only by the pipeline and the
//   reprocess operation.
type Call struct {
	ID               string       `json:"id" db:"id"`
	Filename         string       `json:"filename" db:"filename"`
	OriginalFilename string       `json:"original_filename" db:"original_filename"`
	StorageKey       string       `json:"storage_key" db:"storage_key"`
	StorageBucket    string       `json:"storage_bucket" db:"storage_bucket"`
	ContentType      string       `json:"content_type" db:"content_type"`
	FileSizeBytes    int64        `json:"file_size_bytes" db:"file_size_bytes"`
	DurationSeconds  float64      `json:"duration_seconds,omitempty" db:"duration_seconds"`
	UploadSource     UploadSource `json:"upload_source" db:"upload_source"`

	// UserID is empty for legacy/anonymous uploads.
	UserID      string `json:"user_id,omitempty" db:"user_id"`
	ContactID   string `json:"contact_id,omitempty" db:"contact_id"`
	CallerPhone string `json:"caller_phone,omitempty" db:"caller_phone"`

	Status           CallStatus `json:"status" db:"status"`
	LanguageDetected string     `json:"language_detected,omitempty" db:"language_detected"`
	ErrorMessage     string     `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusUploaded     CallStatus = "uploaded"
	CallStatusTranscribing CallStatus = "transcribing"
	CallStatusTranscribed  CallStatus = "transcribed"
	CallStatusSummarizing  CallStatus = "summarizing"
	CallStatusCompleted    CallStatus = "completed"
	CallStatusFailed       CallStatus = "failed"
)

// statusRank orders the happy path. Failed sits outside the ordering.
var statusRank = map[CallStatus]int{
	CallStatusUploaded:     0,
	CallStatusTranscribing: 1,
	CallStatusTranscribed:  2,
	CallStatusSummarizing:  3,
	CallStatusCompleted:    4,
}

// Terminal reports whether no further automatic transition occurs.
func (s CallStatus) Terminal() bool {
	return s == CallStatusCompleted || s == CallStatusFailed
}

// CanTransitionTo validates status progression: forward-only along the happy
// path, failed reachable from any non-terminal state, and same-state writes
// allowed so a redelivered stage job stays idempotent. Reprocess is not a
// transition; it resets the row explicitly.
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	if s == next {
		return !s.Terminal()
	}
	if next == CallStatusFailed {
		return !s.Terminal()
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	if !okFrom || !okTo {
		return false
	}
	return to > from
}

type UploadSource string

const (
	UploadSourceManual          UploadSource = "manual"
	UploadSourcePresignedClient UploadSource = "presigned_client"
	UploadSourceAutoAgent       UploadSource = "auto_agent"
	UploadSourceCloudSync       UploadSource = "cloud_sync"
)

// JobStatus is the lifecycle of a stage artifact (transcription, summary).
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// SpeakerSegment is one diarized utterance of the transcript.
type SpeakerSegment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

// Transcription is the speech-to-text artifact. At most one live row per Call;
// reprocess deletes it before a new attempt.
type Transcription struct {
	ID              string           `json:"id" db:"id"`
	CallID          string           `json:"call_id" db:"call_id"`
	Provider        string           `json:"provider" db:"provider"`
	ExternalID      string           `json:"external_id,omitempty" db:"external_id"`
	Text            string           `json:"text" db:"text"`
	Confidence      float64          `json:"confidence" db:"confidence"`
	Language        string           `json:"language,omitempty" db:"language"`
	DurationSeconds float64          `json:"duration_seconds" db:"duration_seconds"`
	Segments        []SpeakerSegment `json:"segments,omitempty" db:"segments"`
	WordCount       int              `json:"word_count" db:"word_count"`
	Status          JobStatus        `json:"status" db:"status"`
	ErrorMessage    string           `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	CompletedAt     time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// StructuredAction is a machine-parseable follow-up extracted from a summary.
// Type is always one of the closed set validated by internal/summarize;
// Confidence is always within [0,1].
type StructuredAction struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
	Confidence  float64        `json:"confidence"`
}

// Participant describes one speaker of the call as inferred by the model.
type Participant struct {
	SpeakerLabel string `json:"speaker_label"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// Legacy renders the flat "label - name - role" form older consumers expect.
// Empty name and role are omitted.
func (p Participant) Legacy() string {
	parts := []string{p.SpeakerLabel}
	if p.Name != "" {
		parts = append(parts, p.Name)
	}
	if p.Role != "" {
		parts = append(parts, p.Role)
	}
	return strings.Join(parts, " - ")
}

// LegacyParticipants flattens each participant via Legacy.
func LegacyParticipants(ps []Participant) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Legacy())
	}
	return out
}

// Summary is the summarization artifact. A Call may accumulate several rows
// over its history; the most recent by CreatedAt is authoritative.
type Summary struct {
	ID              string `json:"id" db:"id"`
	CallID          string `json:"call_id" db:"call_id"`
	TranscriptionID string `json:"transcription_id" db:"transcription_id"`
	Provider        string `json:"provider" db:"provider"`
	Model           string `json:"model" db:"model"`

	SummaryText       string             `json:"summary_text" db:"summary_text"`
	KeyPoints         []string           `json:"key_points" db:"key_points"`
	ActionItems       []string           `json:"action_items" db:"action_items"`
	Sentiment         string             `json:"sentiment" db:"sentiment"`
	StructuredActions []StructuredAction `json:"structured_actions" db:"structured_actions"`
	Participants      []Participant      `json:"participants" db:"participants"`
	Topics            []string           `json:"topics" db:"topics"`
	Language          string             `json:"language,omitempty" db:"language"`
	TokensUsed        int                `json:"tokens_used" db:"tokens_used"`

	Status       JobStatus `json:"status" db:"status"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "email"
	ChannelWhatsApp NotificationChannel = "whatsapp"
)

type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusFailed    NotificationStatus = "failed"
	NotificationStatusDelivered NotificationStatus = "delivered"
)

// Notification records one delivery attempt per (summary, channel).
// Manual retries mutate the same row rather than appending new ones.
type Notification struct {
	ID           string              `json:"id" db:"id"`
	SummaryID    string              `json:"summary_id" db:"summary_id"`
	Channel      NotificationChannel `json:"channel" db:"channel"`
	Recipient    string              `json:"recipient" db:"recipient"`
	Status       NotificationStatus  `json:"status" db:"status"`
	ExternalID   string              `json:"external_id,omitempty" db:"external_id"`
	ErrorMessage string              `json:"error_message,omitempty" db:"error_message"`
	SentAt       time.Time           `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
}

const maxErrorMessageLen = 2000

// TruncateError bounds stored error text to the column limit.
func TruncateError(msg string) string {
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	return msg[:maxErrorMessageLen]
}

// Package transcribe turns call audio into text with speaker segments.
package transcribe

import (
	"context"

	"callbrief/internal/calls"
)

// Result is the provider-independent transcription outcome.
type Result struct {
	Text            string
	Confidence      float64
	Language        string
	DurationSeconds float64
	ExternalID      string
	WordCount       int
	Segments        []calls.SpeakerSegment
}

// Transcriber converts an audio object, referenced by URL, into a Result.
// An empty languageCode asks the provider to detect the language.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL, languageCode string) (Result, error)
	Provider() string
}

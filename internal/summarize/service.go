// Package summarize produces structured call summaries from transcripts.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"callbrief/internal/calls"
)

// emptyTranscriptSummary is returned without calling the model when the
// transcript carries no content.
const emptyTranscriptSummary = "Empty transcription - no content to summarize."

// Result is one generated summary.
type Result struct {
	SummaryText       string
	KeyPoints         []string
	ActionItems       []string
	Sentiment         string
	StructuredActions []calls.StructuredAction
	Participants      []calls.Participant
	Topics            []string
	TokensUsed        int
	Model             string
	Provider          string
}

// Service drives prompt construction, generation and response validation.
type Service struct {
	gen Generator
}

func NewService(gen Generator) *Service {
	return &Service{gen: gen}
}

// Summarize generates a structured summary of the transcript in the given
// language. Segments, when present, give the model speaker attribution.
func (s *Service) Summarize(ctx context.Context, text string, segments []calls.SpeakerSegment, languageCode string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{
			SummaryText: emptyTranscriptSummary,
			Sentiment:   "neutral",
			Model:       s.gen.Model(),
			Provider:    s.gen.Provider(),
		}, nil
	}

	prompt := BuildPrompt(text, segments, languageCode)
	gen, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("summarize: %w", err)
	}

	p := parseResponse(ctx, gen.Text)
	return Result{
		SummaryText:       p.Summary,
		KeyPoints:         p.KeyPoints,
		ActionItems:       p.ActionItems,
		Sentiment:         p.Sentiment,
		StructuredActions: p.StructuredActions,
		Participants:      p.Participants,
		Topics:            p.Topics,
		TokensUsed:        gen.TokensUsed,
		Model:             s.gen.Model(),
		Provider:          s.gen.Provider(),
	}, nil
}

// ResolveLanguage picks the summary language: the caller's explicit request
// wins, then the detected transcript language, then the configured fallback.
// "auto" and "unknown" are treated as no request.
func ResolveLanguage(requested, detected, fallback string) string {
	if requested != "" && requested != "auto" && requested != "unknown" {
		return requested
	}
	if detected != "" {
		return detected
	}
	return fallback
}

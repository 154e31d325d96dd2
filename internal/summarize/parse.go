package summarize

import (
	"context"
	"encoding/json"
	"strings"

	"callbrief/internal/calls"
	"callbrief/pkg/logger"
)

var validActionTypes = map[string]struct{}{
	"calendar_event": {},
	"send_email":     {},
	"send_whatsapp":  {},
	"reminder":       {},
	"task":           {},
}

var validSentiments = map[string]struct{}{
	"positive": {},
	"neutral":  {},
	"negative": {},
	"mixed":    {},
}

// parsed is the validated model output. The model is untrusted: every field
// degrades independently so one malformed entry never discards the rest.
type parsed struct {
	Summary           string
	KeyPoints         []string
	ActionItems       []string
	Sentiment         string
	StructuredActions []calls.StructuredAction
	Participants      []calls.Participant
	Topics            []string
}

type rawPayload struct {
	Summary           json.RawMessage `json:"summary"`
	KeyPoints         json.RawMessage `json:"key_points"`
	ActionItems       json.RawMessage `json:"action_items"`
	Sentiment         json.RawMessage `json:"sentiment"`
	StructuredActions json.RawMessage `json:"structured_actions"`
	Participants      json.RawMessage `json:"participants"`
	Topics            json.RawMessage `json:"topics"`
}

// parseResponse extracts the structured summary from model text. When the
// text is not valid JSON at all, the whole response becomes the summary with
// neutral sentiment.
func parseResponse(ctx context.Context, text string) parsed {
	var raw rawPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		logger.From(ctx).Warn("model response is not JSON, using raw text")
		return parsed{Summary: text, Sentiment: "neutral"}
	}

	out := parsed{Sentiment: "neutral"}

	if err := json.Unmarshal(raw.Summary, &out.Summary); err != nil || out.Summary == "" {
		out.Summary = text
	}
	out.KeyPoints = stringList(raw.KeyPoints)
	out.ActionItems = stringList(raw.ActionItems)
	out.Topics = stringList(raw.Topics)

	var sentiment string
	if err := json.Unmarshal(raw.Sentiment, &sentiment); err == nil {
		if _, ok := validSentiments[sentiment]; ok {
			out.Sentiment = sentiment
		}
	}

	out.StructuredActions = parseActions(ctx, raw.StructuredActions)
	out.Participants = parseParticipants(raw.Participants)
	return out
}

// stripFences unwraps a markdown code block around the JSON body, with or
// without a json language tag.
func stripFences(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(text)
}

func stringList(raw json.RawMessage) []string {
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

type rawAction struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Details     map[string]any  `json:"details"`
	Confidence  json.RawMessage `json:"confidence"`
}

// parseActions keeps only actions with a known type. Confidence defaults to
// 0.5 when missing or non-numeric and is clamped to [0, 1].
func parseActions(ctx context.Context, raw json.RawMessage) []calls.StructuredAction {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	var out []calls.StructuredAction
	for _, entry := range entries {
		var a rawAction
		if err := json.Unmarshal(entry, &a); err != nil {
			continue
		}
		if _, ok := validActionTypes[a.Type]; !ok {
			logger.From(ctx).Warn("dropping action with unknown type", "type", a.Type)
			continue
		}
		confidence := 0.5
		var c float64
		if err := json.Unmarshal(a.Confidence, &c); err == nil {
			confidence = c
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		details := a.Details
		if details == nil {
			details = map[string]any{}
		}
		out = append(out, calls.StructuredAction{
			Type:        a.Type,
			Description: a.Description,
			Details:     details,
			Confidence:  confidence,
		})
	}
	return out
}

// parseParticipants accepts both object entries and bare strings. A string
// entry carries only the speaker label.
func parseParticipants(raw json.RawMessage) []calls.Participant {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	var out []calls.Participant
	for _, entry := range entries {
		var obj struct {
			SpeakerLabel string `json:"speaker_label"`
			Name         string `json:"name"`
			Role         string `json:"role"`
			Phone        string `json:"phone"`
		}
		if err := json.Unmarshal(entry, &obj); err == nil {
			label := obj.SpeakerLabel
			if label == "" {
				label = "Unknown"
			}
			out = append(out, calls.Participant{
				SpeakerLabel: label,
				Name:         obj.Name,
				Role:         obj.Role,
				Phone:        obj.Phone,
			})
			continue
		}
		var s string
		if err := json.Unmarshal(entry, &s); err == nil && s != "" {
			out = append(out, calls.Participant{SpeakerLabel: s})
		}
	}
	return out
}

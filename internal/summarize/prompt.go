package summarize

import (
	"fmt"
	"strings"

	"callbrief/internal/calls"
)

// languageInstruction tells the model which language the summary text should
// be in. Codes outside the known set pass through verbatim.
func languageInstruction(code string) string {
	switch code {
	case "", "auto":
		return "Write the summary in the same language as the conversation."
	case "he":
		return "Write the summary in Hebrew."
	case "en":
		return "Write the summary in English."
	default:
		return fmt.Sprintf("Write the summary in the language with ISO code %q.", code)
	}
}

const promptTemplate = `You are an assistant that summarizes phone call transcripts.

%s

Analyze the transcript below and respond with a single JSON object, no other
text, using exactly this schema:

{
  "summary": "2-4 sentence overview of the call",
  "key_points": ["important point", "..."],
  "action_items": ["follow-up the participants agreed on", "..."],
  "sentiment": "positive | neutral | negative | mixed",
  "structured_actions": [
    {
      "type": "calendar_event | send_email | send_whatsapp | reminder | task",
      "description": "what should happen",
      "details": {"free-form": "parameters such as date, recipient, subject"},
      "confidence": 0.0
    }
  ],
  "participants": [
    {"speaker_label": "Speaker 0", "name": "if mentioned", "role": "e.g. customer, agent", "phone": "if mentioned"}
  ],
  "topics": ["short topic tag", "..."]
}

Transcript:
%s`

// BuildPrompt renders the summarization prompt. When diarized segments exist
// they are laid out one utterance per line so the model can attribute
// statements to speakers; otherwise the flat transcript text is used.
func BuildPrompt(text string, segments []calls.SpeakerSegment, languageCode string) string {
	transcript := text
	if len(segments) > 0 {
		lines := make([]string, 0, len(segments))
		for _, seg := range segments {
			lines = append(lines, seg.Speaker+": "+seg.Text)
		}
		transcript = strings.Join(lines, "\n")
	}
	return fmt.Sprintf(promptTemplate, languageInstruction(languageCode), transcript)
}

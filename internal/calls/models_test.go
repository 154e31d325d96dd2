package calls

import (
	"strings"
	"testing"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to CallStatus
		want     bool
	}{
		{CallStatusUploaded, CallStatusTranscribing, true},
		{CallStatusTranscribing, CallStatusTranscribed, true},
		{CallStatusTranscribed, CallStatusSummarizing, true},
		{CallStatusSummarizing, CallStatusCompleted, true},
		{CallStatusUploaded, CallStatusCompleted, true},

		// failure is reachable from any non-terminal state
		{CallStatusUploaded, CallStatusFailed, true},
		{CallStatusTranscribing, CallStatusFailed, true},
		{CallStatusSummarizing, CallStatusFailed, true},
		{CallStatusCompleted, CallStatusFailed, false},
		{CallStatusFailed, CallStatusFailed, false},

		// no moving backwards
		{CallStatusTranscribed, CallStatusTranscribing, false},
		{CallStatusCompleted, CallStatusSummarizing, false},
		{CallStatusFailed, CallStatusUploaded, false},

		// redelivered job writing the same state is a no-op, not an error
		{CallStatusTranscribing, CallStatusTranscribing, true},
		{CallStatusCompleted, CallStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !CallStatusCompleted.Terminal() || !CallStatusFailed.Terminal() {
		t.Fatal("completed and failed must be terminal")
	}
	if CallStatusUploaded.Terminal() || CallStatusSummarizing.Terminal() {
		t.Fatal("in-flight statuses must not be terminal")
	}
}

func TestTruncateError(t *testing.T) {
	short := "deepgram: connection refused"
	if got := TruncateError(short); got != short {
		t.Fatalf("short message changed: %q", got)
	}
	long := strings.Repeat("x", 5000)
	got := TruncateError(long)
	if len(got) != maxErrorMessageLen {
		t.Fatalf("truncated length = %d, want %d", len(got), maxErrorMessageLen)
	}
}

func TestLegacyParticipants(t *testing.T) {
	cases := []struct {
		in   Participant
		want string
	}{
		{Participant{SpeakerLabel: "Speaker 0", Name: "Dana", Role: "customer"}, "Speaker 0 - Dana - customer"},
		{Participant{SpeakerLabel: "Speaker 1", Role: "technician"}, "Speaker 1 - technician"},
		{Participant{SpeakerLabel: "Speaker 2"}, "Speaker 2"},
	}
	for _, tc := range cases {
		if got := tc.in.Legacy(); got != tc.want {
			t.Errorf("Legacy(%+v) = %q, want %q", tc.in, got, tc.want)
		}
	}

	flat := LegacyParticipants([]Participant{cases[0].in, cases[2].in})
	if len(flat) != 2 || flat[0] != cases[0].want || flat[1] != cases[2].want {
		t.Fatalf("LegacyParticipants = %v", flat)
	}
}

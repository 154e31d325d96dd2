// Package notify delivers completed call summaries over email and WhatsApp.
package notify

import (
	"context"
	"strings"

	"callbrief/internal/calls"
)

// Message is the channel-independent notification content.
type Message struct {
	CallFilename string
	SummaryText  string
	KeyPoints    []string
	ActionItems  []string
}

// Subject is the email subject line for the message.
func (m Message) Subject() string {
	return "Call summary: " + m.CallFilename
}

// Body renders the plain-text notification.
func (m Message) Body() string {
	var b strings.Builder
	b.WriteString(m.SummaryText)
	if len(m.KeyPoints) > 0 {
		b.WriteString("\n\nKey points:\n")
		for _, p := range m.KeyPoints {
			b.WriteString("- " + p + "\n")
		}
	}
	if len(m.ActionItems) > 0 {
		b.WriteString("\nAction items:\n")
		for _, a := range m.ActionItems {
			b.WriteString("- " + a + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Channel is one delivery transport. Send returns the provider's message id.
type Channel interface {
	Name() calls.NotificationChannel
	Configured() bool
	Send(ctx context.Context, recipient string, msg Message) (externalID string, err error)
}

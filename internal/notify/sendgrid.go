package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"callbrief/internal/calls"
)

const defaultSendGridBaseURL = "https://api.sendgrid.com"

// SendGrid sends the summary as a plain-text email via the v3 mail API.
type SendGrid struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

func NewSendGrid(apiKey, fromAddress, baseURL string) *SendGrid {
	if baseURL == "" {
		baseURL = defaultSendGridBaseURL
	}
	return &SendGrid{
		apiKey:  apiKey,
		from:    fromAddress,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SendGrid) Name() calls.NotificationChannel { return calls.ChannelEmail }

func (s *SendGrid) Configured() bool { return s.apiKey != "" && s.from != "" }

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

func (s *SendGrid) Send(ctx context.Context, recipient string, msg Message) (string, error) {
	mail := sendGridMail{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: recipient}}}},
		From:             sgAddress{Email: s.from},
		Subject:          msg.Subject(),
		Content:          []sgContent{{Type: "text/plain", Value: msg.Body()}},
	}

	body, err := json.Marshal(mail)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sendgrid: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, raw)
	}
	return resp.Header.Get("X-Message-Id"), nil
}

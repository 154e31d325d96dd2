package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"callbrief/internal/calls"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// WhatsApp message bodies are capped by Twilio. Longer content is truncated
// with a trailing ellipsis.
const whatsAppMaxChars = 1600

// TwilioWhatsApp sends the summary over the Twilio messages API.
type TwilioWhatsApp struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

func NewTwilioWhatsApp(accountSID, authToken, fromNumber, baseURL string) *TwilioWhatsApp {
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	return &TwilioWhatsApp{
		accountSID: accountSID,
		authToken:  authToken,
		from:       fromNumber,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *TwilioWhatsApp) Name() calls.NotificationChannel { return calls.ChannelWhatsApp }

func (t *TwilioWhatsApp) Configured() bool {
	return t.accountSID != "" && t.authToken != "" && t.from != ""
}

func (t *TwilioWhatsApp) Send(ctx context.Context, recipient string, msg Message) (string, error) {
	body := "*" + msg.Subject() + "*\n\n" + msg.Body()
	if len(body) > whatsAppMaxChars {
		cut := whatsAppMaxChars - 23
		// Back up so the cut never lands inside a multibyte rune.
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}

	form := url.Values{}
	form.Set("To", "whatsapp:"+recipient)
	form.Set("From", "whatsapp:"+t.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("twilio: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("twilio: status %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("twilio: decode response: %w", err)
	}
	return out.SID, nil
}

package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callbrief/internal/calls"
)

const defaultDeepgramBaseURL = "https://api.deepgram.com"

// Deepgram calls the prerecorded transcription endpoint with diarization and
// utterance splitting enabled.
type Deepgram struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewDeepgram(apiKey, model, baseURL string) *Deepgram {
	if baseURL == "" {
		baseURL = defaultDeepgramBaseURL
	}
	return &Deepgram{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (d *Deepgram) Provider() string { return "deepgram" }

func (d *Deepgram) Transcribe(ctx context.Context, audioURL, languageCode string) (Result, error) {
	q := url.Values{}
	q.Set("model", d.model)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("diarize", "true")
	q.Set("utterances", "true")
	if languageCode != "" {
		q.Set("language", languageCode)
	} else {
		q.Set("detect_language", "true")
	}

	body, err := json.Marshal(map[string]string{"url": audioURL})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.baseURL+"/v1/listen?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var dg deepgramResponse
	if err := json.Unmarshal(raw, &dg); err != nil {
		return Result{}, fmt.Errorf("deepgram: decode response: %w", err)
	}
	return dg.toResult()
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}

type deepgramResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Speaker    int     `json:"speaker"`
			Transcript string  `json:"transcript"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
		} `json:"utterances"`
	} `json:"results"`
}

func (r deepgramResponse) toResult() (Result, error) {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return Result{}, fmt.Errorf("deepgram: response has no transcript")
	}
	ch := r.Results.Channels[0]
	alt := ch.Alternatives[0]

	out := Result{
		Text:            alt.Transcript,
		Confidence:      alt.Confidence,
		Language:        ch.DetectedLanguage,
		DurationSeconds: r.Metadata.Duration,
		ExternalID:      r.Metadata.RequestID,
		WordCount:       len(strings.Fields(alt.Transcript)),
	}
	for _, u := range r.Results.Utterances {
		out.Segments = append(out.Segments, calls.SpeakerSegment{
			Speaker: fmt.Sprintf("Speaker %d", u.Speaker),
			Text:    u.Transcript,
			StartMS: int64(u.Start * 1000),
			EndMS:   int64(u.End * 1000),
		})
	}
	return out, nil
}

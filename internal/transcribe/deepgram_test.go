package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const deepgramFixture = `{
  "metadata": {"request_id": "req-123", "duration": 42.5},
  "results": {
    "channels": [{
      "detected_language": "he",
      "alternatives": [{"transcript": "Hello there, how are you today", "confidence": 0.97}]
    }],
    "utterances": [
      {"speaker": 0, "transcript": "Hello there,", "start": 0.1, "end": 1.2},
      {"speaker": 1, "transcript": "how are you today", "start": 1.4, "end": 3.0}
    ]
  }
}`

func TestDeepgramTranscribe(t *testing.T) {
	var gotQuery map[string][]string
	var gotAuth, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		gotBody = payload["url"]
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(deepgramFixture)); err != nil {
			t.Error(err)
		}
	}))
	defer srv.Close()

	dg := NewDeepgram("dg-key", "nova-3", srv.URL)
	res, err := dg.Transcribe(context.Background(), "https://bucket.test/calls/a.mp3", "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotAuth != "Token dg-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody != "https://bucket.test/calls/a.mp3" {
		t.Errorf("audio url = %q", gotBody)
	}
	for k, want := range map[string]string{
		"model": "nova-3", "diarize": "true", "utterances": "true",
		"smart_format": "true", "punctuate": "true", "detect_language": "true",
	} {
		if got := gotQuery[k]; len(got) != 1 || got[0] != want {
			t.Errorf("query %s = %v, want %s", k, got, want)
		}
	}
	if _, ok := gotQuery["language"]; ok {
		t.Error("language param must be absent in detection mode")
	}

	if res.Text != "Hello there, how are you today" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Confidence != 0.97 || res.Language != "he" {
		t.Errorf("confidence/language = %v/%q", res.Confidence, res.Language)
	}
	if res.ExternalID != "req-123" || res.DurationSeconds != 42.5 {
		t.Errorf("metadata = %q/%v", res.ExternalID, res.DurationSeconds)
	}
	if res.WordCount != 6 {
		t.Errorf("word count = %d, want 6", res.WordCount)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(res.Segments))
	}
	if res.Segments[0].Speaker != "Speaker 0" || res.Segments[0].StartMS != 100 || res.Segments[0].EndMS != 1200 {
		t.Errorf("segment 0 = %+v", res.Segments[0])
	}
	if res.Segments[1].Speaker != "Speaker 1" {
		t.Errorf("segment 1 speaker = %q", res.Segments[1].Speaker)
	}
}

func TestDeepgramExplicitLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("language") != "en" {
			t.Errorf("language = %q, want en", q.Get("language"))
		}
		if _, ok := q["detect_language"]; ok {
			t.Error("detect_language must be absent when language is set")
		}
		if _, err := w.Write([]byte(deepgramFixture)); err != nil {
			t.Error(err)
		}
	}))
	defer srv.Close()

	dg := NewDeepgram("dg-key", "nova-3", srv.URL)
	if _, err := dg.Transcribe(context.Background(), "https://x.test/a.mp3", "en"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
}

func TestDeepgramErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"err_msg":"invalid audio"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	dg := NewDeepgram("dg-key", "nova-3", srv.URL)
	_, err := dg.Transcribe(context.Background(), "https://x.test/a.mp3", "")
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("err = %v, want status 400", err)
	}
}

func TestDeepgramEmptyChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(`{"metadata":{},"results":{"channels":[]}}`)); err != nil {
			t.Error(err)
		}
	}))
	defer srv.Close()

	dg := NewDeepgram("dg-key", "nova-3", srv.URL)
	if _, err := dg.Transcribe(context.Background(), "https://x.test/a.mp3", ""); err == nil {
		t.Fatal("want error for empty channels")
	}
}

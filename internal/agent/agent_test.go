package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
api_base_url: http://localhost:8080
token: tok-1
watch_dir: /recordings
settle_time: 2s
language: he
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8080" || cfg.Token != "tok-1" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.SettleTime != 2*time.Second {
		t.Fatalf("settle = %v", cfg.SettleTime)
	}
	if len(cfg.Extensions) == 0 {
		t.Fatal("extensions default missing")
	}
}

func TestLoadConfigRejectsMissingFields(t *testing.T) {
	for name, content := range map[string]string{
		"no url":   "token: t\nwatch_dir: /x\n",
		"no token": "api_base_url: http://x\nwatch_dir: /x\n",
		"no dir":   "api_base_url: http://x\ntoken: t\n",
	} {
		path := writeConfig(t, content)
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestUploaderFlow(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "call.mp3")
	if err := os.WriteFile(recording, []byte("audio-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	var putBody []byte
	var registered map[string]any

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/uploads/presign":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				t.Errorf("presign auth = %q", r.Header.Get("Authorization"))
			}
			if err := json.NewEncoder(w).Encode(map[string]string{
				"url": srv.URL + "/put/calls/abc.mp3", "storage_key": "calls/abc.mp3",
			}); err != nil {
				t.Error(err)
			}
		case "/put/calls/abc.mp3":
			if r.Method != http.MethodPut {
				t.Errorf("put method = %s", r.Method)
			}
			var err error
			putBody, err = io.ReadAll(r.Body)
			if err != nil {
				t.Error(err)
			}
			w.WriteHeader(http.StatusOK)
		case "/v1/uploads/register":
			if err := json.NewDecoder(r.Body).Decode(&registered); err != nil {
				t.Error(err)
			}
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	u := NewUploader(Config{APIBaseURL: srv.URL, Token: "tok-1", WatchDir: dir, Language: "he"})
	if err := u.Upload(context.Background(), recording); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if string(putBody) != "audio-bytes" {
		t.Errorf("put body = %q", putBody)
	}
	if registered["storage_key"] != "calls/abc.mp3" || registered["source"] != "auto_agent" {
		t.Errorf("register payload = %+v", registered)
	}
	if registered["language"] != "he" {
		t.Errorf("register language = %v", registered["language"])
	}
}

func TestUploaderStopsOnClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, `{"error":"unsupported content type"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	dir := t.TempDir()
	recording := filepath.Join(dir, "call.mp3")
	if err := os.WriteFile(recording, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	u := NewUploader(Config{APIBaseURL: srv.URL, Token: "t", WatchDir: dir})
	if err := u.Upload(context.Background(), recording); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, 4xx must not be retried", attempts)
	}
}

func TestWatcherWanted(t *testing.T) {
	w := NewWatcher(Config{Extensions: []string{".mp3", ".WAV"}}, nil)
	cases := map[string]bool{
		"/rec/a.mp3":     true,
		"/rec/a.MP3":     true,
		"/rec/a.wav":     true,
		"/rec/a.txt":     false,
		"/rec/a.mp3.tmp": false,
	}
	for path, want := range cases {
		if got := w.wanted(path); got != want {
			t.Errorf("wanted(%s) = %v, want %v", path, got, want)
		}
	}
}

func TestWatcherClaimOnce(t *testing.T) {
	w := NewWatcher(Config{}, nil)
	if !w.claim("/rec/a.mp3") {
		t.Fatal("first claim failed")
	}
	if w.claim("/rec/a.mp3") {
		t.Fatal("second claim must fail")
	}
	w.release("/rec/a.mp3")
	if !w.claim("/rec/a.mp3") {
		t.Fatal("claim after release failed")
	}
}

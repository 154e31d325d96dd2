package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("api key header = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "claude-test" || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("request = %+v", req)
		}
		if _, err := w.Write([]byte(`{
			"content": [{"type": "text", "text": "{\"summary\": \"ok\"}"}],
			"usage": {"input_tokens": 100, "output_tokens": 20}
		}`)); err != nil {
			t.Error(err)
		}
	}))
	defer srv.Close()

	a := NewAnthropic("sk-test", "claude-test", srv.URL)
	res, err := a.Generate(context.Background(), "summarize this")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != `{"summary": "ok"}` {
		t.Errorf("text = %q", res.Text)
	}
	if res.TokensUsed != 120 {
		t.Errorf("tokens = %d, want 120", res.TokensUsed)
	}
}

func TestAnthropicErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"type":"overloaded_error"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewAnthropic("sk-test", "claude-test", srv.URL)
	_, err := a.Generate(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Fatalf("err = %v, want status 429", err)
	}
}

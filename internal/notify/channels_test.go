package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSendGridSend(t *testing.T) {
	var got sendGridMail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sg-key" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("X-Message-Id", "msg-42")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sg := NewSendGrid("sg-key", "noreply@callbrief.io", srv.URL)
	id, err := sg.Send(context.Background(), "user@example.com", Message{
		CallFilename: "a.mp3", SummaryText: "hi",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "msg-42" {
		t.Errorf("external id = %q", id)
	}
	if got.From.Email != "noreply@callbrief.io" {
		t.Errorf("from = %q", got.From.Email)
	}
	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "user@example.com" {
		t.Errorf("to = %+v", got.Personalizations)
	}
	if got.Subject != "Call summary: a.mp3" {
		t.Errorf("subject = %q", got.Subject)
	}
}

func TestSendGridErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad key"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	sg := NewSendGrid("bad", "noreply@callbrief.io", srv.URL)
	if _, err := sg.Send(context.Background(), "user@example.com", Message{}); err == nil {
		t.Fatal("want error on 401")
	}
}

func TestTwilioSend(t *testing.T) {
	var gotTo, gotFrom, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotTo = r.PostFormValue("To")
		gotFrom = r.PostFormValue("From")
		gotBody = r.PostFormValue("Body")
		w.WriteHeader(http.StatusCreated)
		if _, err := w.Write([]byte(`{"sid": "SM99"}`)); err != nil {
			t.Error(err)
		}
	}))
	defer srv.Close()

	tw := NewTwilioWhatsApp("AC123", "token", "+14155550100", srv.URL)
	id, err := tw.Send(context.Background(), "+972501234567", Message{
		CallFilename: "a.mp3", SummaryText: "hi",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "SM99" {
		t.Errorf("sid = %q", id)
	}
	if gotTo != "whatsapp:+972501234567" || gotFrom != "whatsapp:+14155550100" {
		t.Errorf("to/from = %q/%q", gotTo, gotFrom)
	}
	if !strings.Contains(gotBody, "hi") {
		t.Errorf("body = %q", gotBody)
	}
}

func TestTwilioTruncatesLongBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotBody = r.PostFormValue("Body")
		if _, err := w.Write([]byte(`{"sid": "SM1"}`)); err != nil {
			t.Error(err)
		}
	}))
	defer srv.Close()

	tw := NewTwilioWhatsApp("AC123", "token", "+14155550100", srv.URL)
	long := strings.Repeat("w", 5000)
	if _, err := tw.Send(context.Background(), "+1555", Message{CallFilename: "a.mp3", SummaryText: long}); err != nil {
		t.Fatal(err)
	}
	if len(gotBody) > whatsAppMaxChars {
		t.Fatalf("body length = %d, cap is %d", len(gotBody), whatsAppMaxChars)
	}
	if !strings.HasSuffix(gotBody, "...") {
		t.Error("truncated body should end with ellipsis")
	}

	// Hebrew runes are two bytes; with this header length the byte cap lands
	// mid-rune, so the cut has to back up to a boundary.
	hebrew := strings.Repeat("ש", 2000)
	if _, err := tw.Send(context.Background(), "+1555", Message{CallFilename: "ab.mp3", SummaryText: hebrew}); err != nil {
		t.Fatal(err)
	}
	if len(gotBody) > whatsAppMaxChars {
		t.Fatalf("body length = %d, cap is %d", len(gotBody), whatsAppMaxChars)
	}
	if !utf8.ValidString(gotBody) {
		t.Error("truncated body split a rune")
	}
	if !strings.HasSuffix(gotBody, "...") {
		t.Error("truncated body should end with ellipsis")
	}
}

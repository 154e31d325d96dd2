package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"callbrief/internal/calls"
	"callbrief/internal/notify"
	"callbrief/internal/settings"
	"callbrief/internal/storage"
)

type noopStarter struct{ started []string }

func (n *noopStarter) StartTranscription(_ context.Context, callID, _ string) error {
	n.started = append(n.started, callID)
	return nil
}

type harness struct {
	router  *gin.Engine
	store   *calls.MemoryStore
	starter *noopStarter
}

// newHarness builds the router with the auth middleware replaced by a stub
// that marks every request as user-1.
func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := calls.NewMemoryStore()
	prefs := settings.NewMemoryStore()
	starter := &noopStarter{}
	svc := calls.NewService(store, storage.NewMemory("test"), starter,
		settings.LanguageSource{Store: prefs}, 10<<20, []string{"audio/mpeg", "audio/wav"})
	h := Handlers{
		Calls:    svc,
		Store:    store,
		Settings: prefs,
		Notify:   notify.NewDispatcher(store, prefs),
	}

	r := gin.New()
	asUser := func(c *gin.Context) { c.Set("user_id", "user-1"); c.Next() }
	v1 := r.Group("/v1", asUser)
	{
		v1.POST("/calls", h.UploadCall)
		v1.GET("/calls", h.ListCalls)
		v1.GET("/calls/:id", h.GetCall)
		v1.GET("/calls/:id/status", h.CallStatus)
		v1.GET("/calls/:id/summary", h.CallSummary)
		v1.POST("/calls/:id/reprocess", h.ReprocessCall)
		v1.DELETE("/calls/:id", h.DeleteCall)
		v1.POST("/uploads/presign", h.PresignUpload)
		v1.POST("/uploads/register", h.RegisterUpload)
		v1.GET("/settings", h.GetSettings)
		v1.PUT("/settings", h.UpdateSettings)
		v1.POST("/notifications/:id/retry", h.RetryNotification)
	}
	return &harness{router: r, store: store, starter: starter}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestUploadCall(t *testing.T) {
	h := newHarness(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="meeting.mp3"`)
	hdr.Set("Content-Type", "audio/mpeg")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("audio-bytes")); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("language", "en"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/calls", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var call calls.Call
	if err := json.Unmarshal(w.Body.Bytes(), &call); err != nil {
		t.Fatal(err)
	}
	if call.OriginalFilename != "meeting.mp3" || call.UserID != "user-1" {
		t.Fatalf("call = %+v", call)
	}
	if len(h.starter.started) != 1 {
		t.Fatalf("pipeline starts = %d", len(h.starter.started))
	}
}

func TestGetCallOwnership(t *testing.T) {
	h := newHarness(t)
	seed := func(id, user string) {
		if err := h.store.CreateCall(context.Background(), calls.Call{ID: id, StorageKey: "k-" + id, UserID: user, Status: calls.CallStatusCompleted}); err != nil {
			t.Fatal(err)
		}
	}
	seed("mine", "user-1")
	seed("theirs", "user-2")

	if w := h.do(t, http.MethodGet, "/v1/calls/mine", nil); w.Code != http.StatusOK {
		t.Fatalf("own call status = %d", w.Code)
	}
	if w := h.do(t, http.MethodGet, "/v1/calls/theirs", nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign call status = %d, want 404", w.Code)
	}
	if w := h.do(t, http.MethodGet, "/v1/calls/ghost", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing call status = %d, want 404", w.Code)
	}
}

func TestCallSummaryIncludesLegacyParticipants(t *testing.T) {
	h := newHarness(t)
	if err := h.store.CreateCall(context.Background(), calls.Call{
		ID: "c1", StorageKey: "k1", UserID: "user-1", Status: calls.CallStatusCompleted,
	}); err != nil {
		t.Fatal(err)
	}
	if err := h.store.CreateSummary(context.Background(), calls.Summary{
		ID: "s1", CallID: "c1", SummaryText: "Boiler fixed.",
		Participants: []calls.Participant{
			{SpeakerLabel: "Speaker 0", Name: "Dana", Role: "customer"},
			{SpeakerLabel: "Speaker 1"},
		},
	}); err != nil {
		t.Fatal(err)
	}

	w := h.do(t, http.MethodGet, "/v1/calls/c1/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got struct {
		SummaryText        string   `json:"summary_text"`
		ParticipantsLegacy []string `json:"participants_legacy"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.SummaryText != "Boiler fixed." {
		t.Errorf("summary_text = %q", got.SummaryText)
	}
	want := []string{"Speaker 0 - Dana - customer", "Speaker 1"}
	if len(got.ParticipantsLegacy) != 2 || got.ParticipantsLegacy[0] != want[0] || got.ParticipantsLegacy[1] != want[1] {
		t.Errorf("participants_legacy = %v, want %v", got.ParticipantsLegacy, want)
	}
}

func TestReprocessGate(t *testing.T) {
	h := newHarness(t)
	if err := h.store.CreateCall(context.Background(), calls.Call{ID: "c1", StorageKey: "k1", UserID: "user-1", Status: calls.CallStatusCompleted}); err != nil {
		t.Fatal(err)
	}

	w := h.do(t, http.MethodPost, "/v1/calls/c1/reprocess", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("reprocess completed call = %d, want 400", w.Code)
	}

	if err := h.store.UpdateCallStatus(context.Background(), "c1", calls.CallStatusFailed); err != nil {
		t.Fatal(err)
	}
	w = h.do(t, http.MethodPost, "/v1/calls/c1/reprocess", map[string]string{"language": "en"})
	if w.Code != http.StatusOK {
		t.Fatalf("reprocess failed call = %d, body %s", w.Code, w.Body.String())
	}
}

func TestRegisterUploadIdempotentStatus(t *testing.T) {
	h := newHarness(t)
	body := map[string]any{
		"storage_key": "calls/abc.mp3", "original_filename": "abc.mp3",
		"content_type": "audio/mpeg", "size": 100,
	}
	if w := h.do(t, http.MethodPost, "/v1/uploads/register", body); w.Code != http.StatusCreated {
		t.Fatalf("first register = %d", w.Code)
	}
	if w := h.do(t, http.MethodPost, "/v1/uploads/register", body); w.Code != http.StatusOK {
		t.Fatalf("second register = %d, want 200", w.Code)
	}
}

func TestPresignValidation(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/v1/uploads/presign", map[string]any{
		"filename": "doc.pdf", "content_type": "application/pdf", "size": 100,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("presign pdf = %d, want 400", w.Code)
	}

	w = h.do(t, http.MethodPost, "/v1/uploads/presign", map[string]any{
		"filename": "a.mp3", "content_type": "audio/mpeg", "size": 100,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("presign mp3 = %d, body %s", w.Code, w.Body.String())
	}
	var p calls.PresignedUpload
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.URL == "" || !strings.HasPrefix(p.StorageKey, "calls/") {
		t.Fatalf("presign payload = %+v", p)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get defaults = %d", w.Code)
	}
	var got settings.UserSettings
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.NotifyOnComplete || got.NotificationMethod != settings.MethodEmail {
		t.Fatalf("defaults = %+v", got)
	}

	w = h.do(t, http.MethodPut, "/v1/settings", settings.UserSettings{
		NotifyOnComplete:   true,
		NotificationMethod: settings.MethodWhatsApp,
		WhatsAppRecipient:  "+972501234567",
		SummaryLanguage:    "he",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodGet, "/v1/settings", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.NotificationMethod != settings.MethodWhatsApp || got.SummaryLanguage != "he" {
		t.Fatalf("after update = %+v", got)
	}
	if got.UserID != "user-1" {
		t.Fatalf("settings user = %q, must come from token", got.UserID)
	}
}

func TestRetryNotificationNotFound(t *testing.T) {
	h := newHarness(t)
	if w := h.do(t, http.MethodPost, "/v1/notifications/ghost/retry", nil); w.Code != http.StatusNotFound {
		t.Fatalf("retry missing notification = %d, want 404", w.Code)
	}
}

func TestDeleteCall(t *testing.T) {
	h := newHarness(t)
	if err := h.store.CreateCall(context.Background(), calls.Call{ID: "c1", StorageKey: "k1", UserID: "user-1", Status: calls.CallStatusFailed}); err != nil {
		t.Fatal(err)
	}
	if w := h.do(t, http.MethodDelete, "/v1/calls/c1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := h.do(t, http.MethodGet, "/v1/calls/c1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", w.Code)
	}
}

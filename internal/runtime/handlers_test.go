package runtime

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/voicecraftlabs/voicecraft-core/internal/backend"
	"github.com/voicecraftlabs/voicecraft-core/internal/config"
	"github.com/voicecraftlabs/voicecraft-core/internal/gallery"
	"github.com/voicecraftlabs/voicecraft-core/internal/history"
	"github.com/voicecraftlabs/voicecraft-core/internal/i18n"
	"github.com/voicecraftlabs/voicecraft-core/internal/speaker"
	"github.com/voicecraftlabs/voicecraft-core/internal/store"
	"github.com/voicecraftlabs/voicecraft-core/internal/workspace"
)

func newTestRuntime(t *testing.T, backendURL string) *Runtime {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "studio.db")
	cfg.Backend.URL = backendURL

	st, err := store.Open(context.Background(), cfg.Store, log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	be := backend.New(backendURL, log)
	gal := gallery.New()
	hist := history.NewService(st, gal, nil, log)
	ws, err := workspace.NewService(st, be, hist, log)
	if err != nil {
		t.Fatalf("workspace service: %v", err)
	}

	rt := &Runtime{
		cfg:       cfg,
		logger:    log,
		store:     st,
		backend:   be,
		speakers:  speaker.NewService(st, be, i18n.New("en", log), cfg.Backend.DefaultLanguage, log),
		history:   hist,
		gallery:   gal,
		workspace: ws,
	}
	rt.ready.Store(true)
	return rt
}

func newTestServer(t *testing.T, backendURL string) *httptest.Server {
	t.Helper()
	rt := newTestRuntime(t, backendURL)
	mux := http.NewServeMux()
	rt.routes(mux, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestSettingsRoundTrip(t *testing.T) {
	srv := newTestServer(t, "")

	var settings store.UserSettings
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/settings", nil, &settings); code != http.StatusOK {
		t.Fatalf("get settings status = %d", code)
	}
	if settings.TTSLanguage != "zh" || settings.TTSMode != "zero_shot" {
		t.Fatalf("unexpected defaults: %+v", settings)
	}

	speed := 1.5
	patch := map[string]any{"ttsSpeed": speed, "ttsLanguage": "en"}
	var updated store.UserSettings
	if code := doJSON(t, http.MethodPatch, srv.URL+"/api/settings", patch, &updated); code != http.StatusOK {
		t.Fatalf("patch settings status = %d", code)
	}
	if updated.TTSSpeed != speed || updated.TTSLanguage != "en" {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.TTSMode != "zero_shot" {
		t.Fatalf("untouched field changed: %+v", updated)
	}
}

func TestPatchSettingsRetargetsBackend(t *testing.T) {
	var called atomic.Bool
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called.Store(true)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy"})
			return
		}
		http.NotFound(w, r)
	}))
	defer stub.Close()

	srv := newTestServer(t, "http://127.0.0.1:1")

	patch := map[string]any{"backendUrl": stub.URL}
	if code := doJSON(t, http.MethodPatch, srv.URL+"/api/settings", patch, nil); code != http.StatusOK {
		t.Fatalf("patch status = %d", code)
	}

	var status backend.Status
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/backend/health", nil, &status); code != http.StatusOK {
		t.Fatalf("health status = %d", code)
	}
	if !called.Load() || status.Status != "healthy" {
		t.Fatalf("health did not reach new backend: called=%v status=%+v", called.Load(), status)
	}
}

func TestGenerateValidationReturns400(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:1")

	in := map[string]any{"text": "hello", "mode": "zero_shot"}
	var out map[string]string
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/generate", in, &out); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if !strings.Contains(out["error"], "no voice selected") {
		t.Fatalf("error = %q", out["error"])
	}
}

func TestGenerateRecordsHistory(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_data":  "QUJD",
			"sample_rate": 22050,
			"duration":    1.25,
		})
	}))
	defer stub.Close()

	srv := newTestServer(t, stub.URL)

	in := map[string]any{"text": "hello", "mode": "zero_shot", "speakerId": "narrator"}
	var out struct {
		Item       store.HistoryItem `json:"item"`
		SampleRate int               `json:"sampleRate"`
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/generate", in, &out); code != http.StatusOK {
		t.Fatalf("generate status = %d", code)
	}
	if out.Item.ID == "" || out.Item.AudioBase64 != "QUJD" || out.SampleRate != 22050 {
		t.Fatalf("unexpected result: %+v", out)
	}

	var listed struct {
		History []store.HistoryItem `json:"history"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/history", nil, &listed); code != http.StatusOK {
		t.Fatalf("history status = %d", code)
	}
	if len(listed.History) != 1 || listed.History[0].ID != out.Item.ID {
		t.Fatalf("history = %+v", listed.History)
	}
}

func TestPublishLifecycleOverHTTP(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"audio_data": "QUJD", "duration": 2.0})
	}))
	defer stub.Close()

	srv := newTestServer(t, stub.URL)

	in := map[string]any{"text": "publish me", "mode": "zero_shot", "speakerId": "narrator"}
	var gen struct {
		Item store.HistoryItem `json:"item"`
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/generate", in, &gen); code != http.StatusOK {
		t.Fatalf("generate status = %d", code)
	}

	publishURL := srv.URL + "/api/history/" + gen.Item.ID + "/publish"
	var work gallery.Work
	if code := doJSON(t, http.MethodPost, publishURL, map[string]string{"title": "My Work"}, &work); code != http.StatusCreated {
		t.Fatalf("publish status = %d", code)
	}
	if work.Title != "My Work" {
		t.Fatalf("work = %+v", work)
	}

	if code := doJSON(t, http.MethodPost, publishURL, map[string]string{}, nil); code != http.StatusConflict {
		t.Fatalf("second publish status = %d, want 409", code)
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/history/nope/publish", map[string]string{}, nil); code != http.StatusNotFound {
		t.Fatalf("missing id publish status = %d, want 404", code)
	}

	var listed struct {
		Works []gallery.Work `json:"works"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/gallery", nil, &listed); code != http.StatusOK {
		t.Fatalf("gallery status = %d", code)
	}
	if len(listed.Works) != 1 {
		t.Fatalf("gallery works = %d, want 1", len(listed.Works))
	}
}

func TestSpeakerListSurvivesBackendOutage(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:1")

	var out struct {
		Speakers     []speaker.Item `json:"speakers"`
		BackendError string         `json:"backendError"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/speakers", nil, &out); code != http.StatusOK {
		t.Fatalf("speakers status = %d", code)
	}
	if len(out.Speakers) != 5 {
		t.Fatalf("preset count = %d, want 5", len(out.Speakers))
	}
	if out.BackendError == "" {
		t.Fatal("expected backendError for unreachable backend")
	}
}

func TestBackendMetricsUnavailable(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:1")

	if code := doJSON(t, http.MethodGet, srv.URL+"/api/backend/metrics", nil, nil); code != http.StatusBadGateway {
		t.Fatalf("metrics status = %d, want 502", code)
	}
}

func TestReadyz(t *testing.T) {
	srv := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d", resp.StatusCode)
	}
}

func TestGenerateReturnsAudioWhenRecordFails(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"audio_data": "QUJD", "duration": 1.0})
	}))
	defer stub.Close()

	rt := newTestRuntime(t, stub.URL)
	mux := http.NewServeMux()
	rt.routes(mux, nil)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Settings must stay readable; only the history insert may fail.
	db, err := sql.Open("sqlite", "file:"+rt.cfg.Store.Path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec("DROP TABLE history"); err != nil {
		t.Fatalf("drop history table: %v", err)
	}

	in := map[string]any{"text": "hello", "mode": "zero_shot", "speakerId": "narrator"}
	var out struct {
		Item       store.HistoryItem `json:"item"`
		SampleRate int               `json:"sampleRate"`
		Warning    string            `json:"warning"`
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/generate", in, &out); code != http.StatusOK {
		t.Fatalf("generate status = %d, want 200", code)
	}
	if out.Item.AudioBase64 != "QUJD" || out.SampleRate != 24000 {
		t.Fatalf("audio lost: %+v", out)
	}
	if out.Warning == "" {
		t.Fatal("expected a warning for the failed history insert")
	}
	if out.Item.ID != "" {
		t.Fatalf("unrecorded item must carry no id, got %q", out.Item.ID)
	}
}

package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/voicecraftlabs/voicecraft-core/internal/backend"
	"github.com/voicecraftlabs/voicecraft-core/internal/config"
	"github.com/voicecraftlabs/voicecraft-core/internal/gallery"
	"github.com/voicecraftlabs/voicecraft-core/internal/history"
	"github.com/voicecraftlabs/voicecraft-core/internal/store"
	"github.com/voicecraftlabs/voicecraft-core/internal/tts"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *store.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "studio.db"), HistoryLimit: 50}
	st, err := store.Open(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	be := backend.New(srv.URL, log)
	hist := history.NewService(st, gallery.New(), nil, log)
	svc, err := NewService(st, be, hist, log)
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	return svc, st
}

func TestGenerateUsesAmbientSettings(t *testing.T) {
	var gotPayload map[string]any
	svc, st := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"audio_data":"UklGRg==","sample_rate":24000,"duration":1.8,"mode":"zero_shot"}`)
	})

	mode := "zero_shot"
	seed := 777
	speed := 1.5
	if _, err := st.SaveSettings(context.Background(), store.SettingsPatch{
		TTSMode: &mode, Seed: &seed, TTSSpeed: &speed,
	}); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	item, result, err := svc.Generate(context.Background(), GenerateInput{
		Text:      "hello world",
		SpeakerID: "narrator",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if gotPayload["seed"] != float64(777) || gotPayload["speed"] != 1.5 {
		t.Fatalf("ambient settings not applied: %v", gotPayload)
	}
	if result.Duration != 1.8 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if item.Text != "hello world" || item.Mode != "zero_shot" {
		t.Fatalf("unexpected history item: %+v", item)
	}

	if items := st.History(context.Background()); len(items) != 1 {
		t.Fatalf("expected one history item, got %d", len(items))
	}
}

func TestGenerateValidationSkipsNetworkAndHistory(t *testing.T) {
	var calls atomic.Int64
	svc, st := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, _, err := svc.Generate(context.Background(), GenerateInput{Text: "hello", Mode: "zero_shot"})
	if !errors.Is(err, tts.ErrNoVoiceSelected) {
		t.Fatalf("expected ErrNoVoiceSelected, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("validation failure must not reach the backend")
	}
	if items := st.History(context.Background()); len(items) != 0 {
		t.Fatal("failed generations must not be recorded")
	}
}

func TestGenerateBackendFailureNotRecorded(t *testing.T) {
	svc, st := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"inference OOM"}`)
	})

	_, _, err := svc.Generate(context.Background(), GenerateInput{Text: "hello", SpeakerID: "x"})
	if err == nil || err.Error() != "inference OOM" {
		t.Fatalf("expected backend detail, got %v", err)
	}
	if items := st.History(context.Background()); len(items) != 0 {
		t.Fatal("failed generations must not be recorded")
	}
}

func TestGenerateOverridesMode(t *testing.T) {
	var gotPayload map[string]any
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"audio_data":"UklGRg==","duration":1.0}`)
	})

	_, _, err := svc.Generate(context.Background(), GenerateInput{
		Text:        "bonjour",
		Mode:        "cross_lingual",
		PromptAudio: "AAAA",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gotPayload["mode"] != "cross_lingual" {
		t.Fatalf("mode override not applied: %v", gotPayload)
	}
	if _, present := gotPayload["prompt_text"]; present {
		t.Fatalf("cross-lingual payload must not carry prompt text: %v", gotPayload)
	}
}

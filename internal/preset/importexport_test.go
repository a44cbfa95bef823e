package preset

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/voicecraftlabs/voicecraft-core/internal/config"
	"github.com/voicecraftlabs/voicecraft-core/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "studio.db"), HistoryLimit: 50}
	st, err := store.Open(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := openTestStore(t)

	originals := map[string]store.PresetVoiceData{
		"1": {Language: "en", PromptText: "Welcome to the neon-lit streets.", AudioBase64: "AAAA"},
		"2": {Language: "jp", PromptText: "こんにちは！", AudioBase64: "BBBB"},
		"5": {Language: "en", PromptText: "Breaking news."},
	}
	for id, v := range originals {
		if _, err := source.SavePresetVoice(ctx, id, v); err != nil {
			t.Fatalf("save preset: %v", err)
		}
	}

	data, err := Export(ctx, source)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	target := openTestStore(t)
	report := Import(ctx, target, data)
	if !report.Success || report.Imported != len(originals) {
		t.Fatalf("unexpected report: %+v", report)
	}

	restored := target.PresetVoices(ctx)
	if len(restored) != len(originals) {
		t.Fatalf("expected %d voices, got %d", len(originals), len(restored))
	}
	for id, want := range originals {
		got, ok := restored[id]
		if !ok {
			t.Fatalf("voice %s missing after import", id)
		}
		// UpdatedAt is regenerated on import and excluded from the comparison.
		if got.Language != want.Language || got.PromptText != want.PromptText || got.AudioBase64 != want.AudioBase64 {
			t.Fatalf("voice %s mismatch: %+v vs %+v", id, got, want)
		}
	}
}

func TestImportCollectsPerEntryErrors(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	data := []byte(`{
		"version": "1.0.0",
		"voices": [
			{"language": "en", "promptText": "no id"},
			{"id": "3", "language": "en", "promptText": "good"},
			{"id": "4", "promptText": "defaults language"}
		]
	}`)

	report := Import(ctx, st, data)
	if report.Success {
		t.Fatal("expected partial failure")
	}
	if report.Imported != 2 {
		t.Fatalf("expected 2 imported, got %d", report.Imported)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", report.Errors)
	}

	voices := st.PresetVoices(ctx)
	if voices["4"].Language != "en" {
		t.Fatalf("expected defaulted language, got %q", voices["4"].Language)
	}
}

func TestImportRejectsBadEnvelope(t *testing.T) {
	st := openTestStore(t)

	if report := Import(context.Background(), st, []byte("{not json")); report.Success || report.Imported != 0 {
		t.Fatalf("expected parse failure, got %+v", report)
	}
	if report := Import(context.Background(), st, []byte(`{"version":"1.0.0"}`)); report.Success {
		t.Fatalf("expected missing voices error, got %+v", report)
	}
}

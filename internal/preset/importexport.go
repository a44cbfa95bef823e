// Package preset implements the JSON import/export format for locally
// configured preset voices.
package preset

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/voicecraftlabs/voicecraft-core/internal/store"
)

const formatVersion = "1.0.0"

// File is the interchange shape: {version, voices: [...]}.
type File struct {
	Version    string  `json:"version"`
	ExportedAt string  `json:"exportedAt,omitempty"`
	Voices     []Voice `json:"voices"`
}

// Voice is one exported preset configuration. UpdatedAt is deliberately not
// carried; the importing side regenerates it.
type Voice struct {
	ID          string `json:"id"`
	Language    string `json:"language"`
	PromptText  string `json:"promptText"`
	AudioBase64 string `json:"audioBase64,omitempty"`
}

// ImportReport collects the outcome of a batch import. Success means every
// entry applied; individual failures never abort the batch.
type ImportReport struct {
	Success  bool     `json:"success"`
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// Export serializes all locally-configured preset voices.
func Export(ctx context.Context, st *store.Store) ([]byte, error) {
	configs := st.PresetVoices(ctx)

	file := File{
		Version:    formatVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Voices:     make([]Voice, 0, len(configs)),
	}
	for id, cfg := range configs {
		file.Voices = append(file.Voices, Voice{
			ID:          id,
			Language:    cfg.Language,
			PromptText:  cfg.PromptText,
			AudioBase64: cfg.AudioBase64,
		})
	}
	sort.Slice(file.Voices, func(i, j int) bool { return file.Voices[i].ID < file.Voices[j].ID })

	return json.MarshalIndent(file, "", "  ")
}

// Import upserts each entry by id, collecting per-entry errors without
// aborting the whole batch. Entries without an id are skipped.
func Import(ctx context.Context, st *store.Store, data []byte) ImportReport {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return ImportReport{Errors: []string{fmt.Sprintf("parse error: %v", err)}}
	}
	if file.Voices == nil {
		return ImportReport{Errors: []string{"invalid format: voices array not found"}}
	}

	report := ImportReport{Errors: []string{}}
	for _, voice := range file.Voices {
		if voice.ID == "" {
			report.Errors = append(report.Errors, "voice missing id")
			continue
		}
		language := voice.Language
		if language == "" {
			language = "en"
		}
		_, err := st.SavePresetVoice(ctx, voice.ID, store.PresetVoiceData{
			Language:    language,
			PromptText:  voice.PromptText,
			AudioBase64: voice.AudioBase64,
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("failed to import voice %s: %v", voice.ID, err))
			continue
		}
		report.Imported++
	}
	report.Success = len(report.Errors) == 0
	return report
}

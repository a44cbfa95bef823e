// Package speaker produces the unified list of selectable voices: the static
// preset catalog overlaid with local per-preset configuration, merged with the
// backend's registered custom speakers.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/voicecraftlabs/voicecraft-core/internal/backend"
	"github.com/voicecraftlabs/voicecraft-core/internal/catalog"
	"github.com/voicecraftlabs/voicecraft-core/internal/i18n"
	"github.com/voicecraftlabs/voicecraft-core/internal/store"
)

// Source discriminates where a speaker item comes from.
const (
	SourcePreset = "preset"
	SourceCustom = "custom"
)

// ErrSpeakerExists rejects a duplicate custom speaker id before any network
// call is made.
var ErrSpeakerExists = errors.New("speaker already exists")

// ErrUnknownPreset rejects configuration writes for ids not in the catalog.
var ErrUnknownPreset = errors.New("unknown preset voice id")

// Item is one selectable voice as the workspace consumes it. Derived, never
// persisted.
type Item struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	HasAudio   bool   `json:"hasAudio"`
	Language   string `json:"language,omitempty"`
	PromptText string `json:"promptText,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Service reconciles the three speaker sources. It remembers the custom ids
// seen on the last backend fetch so duplicate creation can be rejected
// locally.
type Service struct {
	store           *store.Store
	backend         *backend.Client
	translator      *i18n.Translator
	log             *slog.Logger
	defaultLanguage string

	mu    sync.Mutex
	known map[string]bool
}

func NewService(st *store.Store, be *backend.Client, tr *i18n.Translator, defaultLanguage string, log *slog.Logger) *Service {
	return &Service{
		store:           st,
		backend:         be,
		translator:      tr,
		log:             log.With(slog.String("component", "speaker-service")),
		defaultLanguage: defaultLanguage,
		known:           make(map[string]bool),
	}
}

// Presets returns the catalog entries overlaid with any local configuration.
// A local record wholly replaces the catalog's language, prompt text and audio
// for that entry. Readiness for selection requires the merged audio; prompt
// text alone cannot drive synthesis.
func (s *Service) Presets(ctx context.Context) []Item {
	overrides := s.store.PresetVoices(ctx)

	var items []Item
	for _, preset := range catalog.Presets() {
		item := Item{
			ID:         preset.ID,
			Title:      s.translator.PresetTitle(preset.ID, preset.Title),
			Source:     SourcePreset,
			Language:   preset.Language,
			PromptText: preset.PromptText,
			ImageURL:   preset.ImageURL,
			Category:   preset.Category,
		}
		if override, ok := overrides[preset.ID]; ok {
			item.Language = override.Language
			item.PromptText = override.PromptText
			item.HasAudio = override.AudioBase64 != ""
		}
		items = append(items, item)
	}
	return items
}

// List returns presets followed by the backend's custom speakers. When the
// backend fetch fails the preset items are still returned alongside the
// error, so the workspace stays usable against a dead backend.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	items := s.Presets(ctx)

	remote, err := s.backend.ListSpeakers(ctx)
	if err != nil {
		return items, fmt.Errorf("list custom speakers: %w", err)
	}

	languages := s.store.SpeakerLanguages(ctx)

	s.mu.Lock()
	s.known = make(map[string]bool, len(remote.Speakers))
	for _, id := range remote.Speakers {
		s.known[id] = true
	}
	s.mu.Unlock()

	for _, id := range remote.Speakers {
		language, ok := languages[id]
		if !ok {
			language = s.defaultLanguage
		}
		items = append(items, Item{
			ID:       id,
			Title:    id,
			Source:   SourceCustom,
			HasAudio: true, // the backend does not register audio-less speakers
			Language: language,
		})
	}
	return items, nil
}

// GroupCustomByLanguage buckets custom speakers by resolved language for
// display. Preset items are shown as one flat group and are not bucketed.
func GroupCustomByLanguage(items []Item) map[string][]Item {
	groups := make(map[string][]Item)
	for _, item := range items {
		if item.Source != SourceCustom {
			continue
		}
		groups[item.Language] = append(groups[item.Language], item)
	}
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
	}
	return groups
}

// Create registers a custom speaker with the backend and caches its language
// tag locally. A duplicate id is rejected before the registration call; when
// no listing has populated the known set yet, one is fetched first so a fresh
// process cannot push a duplicate through.
func (s *Service) Create(ctx context.Context, id, promptText, audioBase64, language string) error {
	s.mu.Lock()
	unseen := len(s.known) == 0
	s.mu.Unlock()
	if unseen {
		if remote, err := s.backend.ListSpeakers(ctx); err != nil {
			// The backend still enforces its own duplicate rule on create.
			s.log.Warn("refresh speaker list failed",
				slog.String("error", err.Error()))
		} else {
			s.mu.Lock()
			s.known = make(map[string]bool, len(remote.Speakers))
			for _, remoteID := range remote.Speakers {
				s.known[remoteID] = true
			}
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	exists := s.known[id]
	s.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrSpeakerExists, id)
	}

	if _, err := s.backend.CreateSpeaker(ctx, id, promptText, audioBase64, language); err != nil {
		return err
	}

	s.mu.Lock()
	s.known[id] = true
	s.mu.Unlock()

	if err := s.store.SetSpeakerLanguage(ctx, id, language); err != nil {
		// The speaker exists remotely; a stale cache only costs a default
		// language tag on the next listing.
		s.log.Warn("cache speaker language failed",
			slog.String("speaker_id", id),
			slog.String("error", err.Error()))
	}
	return nil
}

// Delete removes a custom speaker from the backend, then purges it from the
// local id set and the language cache.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.backend.DeleteSpeaker(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.known, id)
	s.mu.Unlock()

	if err := s.store.DeleteSpeakerLanguage(ctx, id); err != nil {
		s.log.Warn("purge speaker language failed",
			slog.String("speaker_id", id),
			slog.String("error", err.Error()))
	}
	return nil
}

// ConfigurePreset writes a preset voice's reference configuration through the
// store and returns the updated merged item. No backend re-fetch is needed;
// the merge is recomputed from local state.
func (s *Service) ConfigurePreset(ctx context.Context, id, language, promptText, audioBase64 string) (Item, error) {
	preset, ok := catalog.Preset(id)
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownPreset, id)
	}

	saved, err := s.store.SavePresetVoice(ctx, id, store.PresetVoiceData{
		Language:    language,
		PromptText:  promptText,
		AudioBase64: audioBase64,
	})
	if err != nil {
		return Item{}, err
	}

	return Item{
		ID:         preset.ID,
		Title:      s.translator.PresetTitle(preset.ID, preset.Title),
		Source:     SourcePreset,
		HasAudio:   saved.AudioBase64 != "",
		Language:   saved.Language,
		PromptText: saved.PromptText,
		ImageURL:   preset.ImageURL,
		Category:   preset.Category,
	}, nil
}

// ResetPreset drops the local configuration for one catalog voice.
func (s *Service) ResetPreset(ctx context.Context, id string) error {
	if _, ok := catalog.Preset(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPreset, id)
	}
	return s.store.DeletePresetVoice(ctx, id)
}

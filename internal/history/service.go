// Package history records synthesis results and drives their one-way
// generated-to-published lifecycle.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicecraftlabs/voicecraft-core/internal/bus"
	"github.com/voicecraftlabs/voicecraft-core/internal/gallery"
	"github.com/voicecraftlabs/voicecraft-core/internal/protocol"
	"github.com/voicecraftlabs/voicecraft-core/internal/store"
	"github.com/voicecraftlabs/voicecraft-core/internal/tts"
)

// textPreviewLimit bounds the stored source text; history previews do not need
// the full composition.
const textPreviewLimit = 200

// ErrAlreadyPublished rejects a second publish of the same item.
var ErrAlreadyPublished = errors.New("history item is already published")

// Service owns the history log, the gallery hand-off and the exclusive
// playback slot.
type Service struct {
	store   *store.Store
	gallery *gallery.Gallery
	bus     *bus.Client
	log     *slog.Logger

	mu         sync.Mutex
	nowPlaying string
}

func NewService(st *store.Store, gal *gallery.Gallery, busClient *bus.Client, log *slog.Logger) *Service {
	return &Service{
		store:   st,
		gallery: gal,
		bus:     busClient,
		log:     log.With(slog.String("component", "history-service")),
	}
}

// Record persists a successful synthesis result and announces it on the bus.
func (s *Service) Record(ctx context.Context, text, language string, result tts.Result) (store.HistoryItem, error) {
	item, err := s.store.AddHistory(ctx, store.HistoryItem{
		Text:        truncate(text, textPreviewLimit),
		AudioBase64: result.AudioData,
		Duration:    result.Duration,
		Language:    language,
		Mode:        string(result.Mode),
	})
	if err != nil {
		return store.HistoryItem{}, fmt.Errorf("record generation: %w", err)
	}

	s.bus.Publish(protocol.SubjectGenerationRecorded, protocol.GenerationRecorded{
		ID:        item.ID,
		Mode:      item.Mode,
		Language:  item.Language,
		Duration:  item.Duration,
		Timestamp: time.Now().UTC(),
	})
	return item, nil
}

// List returns the recorded items, newest first.
func (s *Service) List(ctx context.Context) []store.HistoryItem {
	return s.store.History(ctx)
}

// Publish transitions one item to published and emits a gallery work. The
// transition is one-way; an already-published item is rejected.
func (s *Service) Publish(ctx context.Context, id, title, description string) (gallery.Work, error) {
	var target *store.HistoryItem
	for _, item := range s.store.History(ctx) {
		if item.ID == id {
			found := item
			target = &found
			break
		}
	}
	if target == nil {
		return gallery.Work{}, store.ErrNotFound
	}
	if target.IsPublished {
		return gallery.Work{}, ErrAlreadyPublished
	}

	if err := s.store.SetPublished(ctx, id); err != nil {
		return gallery.Work{}, err
	}

	if title == "" {
		title = truncate(target.Text, 40)
	}
	work := s.gallery.Publish(gallery.Work{
		Title:       title,
		Description: description,
		Duration:    target.Duration,
	})

	s.bus.Publish(protocol.SubjectWorkPublished, protocol.WorkPublished{
		ID:        work.ID,
		Title:     work.Title,
		Duration:  work.Duration,
		Timestamp: time.Now().UTC(),
	})
	return work, nil
}

// Clear drops the entire history log.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.nowPlaying = ""
	s.mu.Unlock()
	return s.store.ClearHistory(ctx)
}

// Delete removes one item, releasing the playback slot if it held it.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.nowPlaying == id {
		s.nowPlaying = ""
	}
	s.mu.Unlock()
	return s.store.DeleteHistory(ctx, id)
}

// Play claims the single playback slot for an item, displacing whatever was
// playing. Playback is exclusive, not queued.
func (s *Service) Play(id string) (stopped string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stopped = s.nowPlaying
	s.nowPlaying = id
	if stopped == id {
		stopped = ""
	}
	return stopped
}

// Stop releases the playback slot.
func (s *Service) Stop() {
	s.mu.Lock()
	s.nowPlaying = ""
	s.mu.Unlock()
}

// NowPlaying reports which item currently holds the playback slot.
func (s *Service) NowPlaying() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowPlaying, s.nowPlaying != ""
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

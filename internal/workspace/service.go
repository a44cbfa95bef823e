// Package workspace orchestrates a generation intent end to end: ambient
// settings are merged in, the request is validated and dispatched to the
// backend, and the result lands in the history log.
package workspace

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voicecraftlabs/voicecraft-core/internal/backend"
	"github.com/voicecraftlabs/voicecraft-core/internal/history"
	"github.com/voicecraftlabs/voicecraft-core/internal/store"
	"github.com/voicecraftlabs/voicecraft-core/internal/tts"
)

// GenerateInput is the UI-level generation intent. Unset mode, speed and seed
// fall back to the stored settings.
type GenerateInput struct {
	Text         string   `json:"text"`
	Mode         string   `json:"mode,omitempty"`
	Speed        *float64 `json:"speed,omitempty"`
	Seed         *int     `json:"seed,omitempty"`
	PromptText   string   `json:"promptText,omitempty"`
	PromptAudio  string   `json:"promptAudio,omitempty"`
	SpeakerID    string   `json:"speakerId,omitempty"`
	InstructText string   `json:"instructText,omitempty"`
}

// Service wires the request pipeline together.
type Service struct {
	store   *store.Store
	backend *backend.Client
	history *history.Service
	log     *slog.Logger

	generations metric.Int64Counter
	failures    metric.Int64Counter
}

func NewService(st *store.Store, be *backend.Client, hist *history.Service, log *slog.Logger) (*Service, error) {
	meter := otel.Meter("voicecraft/workspace")
	generations, err := meter.Int64Counter("voicecraft.generations.total",
		metric.WithDescription("Completed synthesis generations"))
	if err != nil {
		return nil, fmt.Errorf("create generations counter: %w", err)
	}
	failures, err := meter.Int64Counter("voicecraft.generations.failures",
		metric.WithDescription("Failed synthesis attempts"))
	if err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}

	return &Service{
		store:       st,
		backend:     be,
		history:     hist,
		log:         log.With(slog.String("component", "workspace")),
		generations: generations,
		failures:    failures,
	}, nil
}

// Generate runs one synthesis: settings merge, validation, backend call,
// history record. Validation failures surface before any network traffic.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (store.HistoryItem, tts.Result, error) {
	settings, err := s.store.EnsureSettings(ctx)
	if err != nil {
		return store.HistoryItem{}, tts.Result{}, err
	}

	mode := settings.TTSMode
	if in.Mode != "" {
		mode = in.Mode
	}
	speed := settings.TTSSpeed
	if in.Speed != nil {
		speed = *in.Speed
	}
	seed := settings.Seed
	if in.Seed != nil {
		seed = *in.Seed
	}

	req := tts.Request{
		Text:         in.Text,
		Mode:         tts.Mode(mode),
		Language:     settings.TTSLanguage,
		Speed:        speed,
		Seed:         seed,
		PromptText:   in.PromptText,
		PromptAudio:  in.PromptAudio,
		SpeakerID:    in.SpeakerID,
		InstructText: in.InstructText,
	}

	result, err := s.backend.Synthesize(ctx, req)
	if err != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
		return store.HistoryItem{}, tts.Result{}, err
	}

	item, err := s.history.Record(ctx, in.Text, settings.TTSLanguage, result)
	if err != nil {
		// The audio was produced; losing the history row is reported but the
		// result is still handed back to the caller.
		s.log.Warn("record history failed", slog.String("error", err.Error()))
		return store.HistoryItem{}, result, err
	}

	s.generations.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
	s.log.Info("generation complete",
		slog.String("mode", mode),
		slog.String("item_id", item.ID),
		slog.Float64("duration_s", result.Duration))
	return item, result, nil
}

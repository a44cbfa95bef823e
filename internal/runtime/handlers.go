package runtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/voicecraftlabs/voicecraft-core/internal/audio"
	"github.com/voicecraftlabs/voicecraft-core/internal/catalog"
	"github.com/voicecraftlabs/voicecraft-core/internal/history"
	"github.com/voicecraftlabs/voicecraft-core/internal/preset"
	"github.com/voicecraftlabs/voicecraft-core/internal/protocol"
	"github.com/voicecraftlabs/voicecraft-core/internal/speaker"
	"github.com/voicecraftlabs/voicecraft-core/internal/store"
	"github.com/voicecraftlabs/voicecraft-core/internal/tts"
	"github.com/voicecraftlabs/voicecraft-core/internal/workspace"
)

const maxRequestBody = 32 << 20 // generation payloads carry base64 reference audio

func (r *Runtime) routes(mux *http.ServeMux, metricsHandler http.Handler) {
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.HandleFunc("GET /readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	mux.HandleFunc("GET /api/settings", r.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", r.handlePatchSettings)
	mux.HandleFunc("GET /api/languages", r.handleLanguages)

	mux.HandleFunc("GET /api/speakers", r.handleListSpeakers)
	mux.HandleFunc("POST /api/speakers", r.handleCreateSpeaker)
	mux.HandleFunc("DELETE /api/speakers/{id}", r.handleDeleteSpeaker)

	mux.HandleFunc("GET /api/presets", r.handleListPresets)
	mux.HandleFunc("PUT /api/presets/{id}", r.handleConfigurePreset)
	mux.HandleFunc("DELETE /api/presets/{id}", r.handleResetPreset)
	mux.HandleFunc("DELETE /api/presets", r.handleClearPresets)
	mux.HandleFunc("GET /api/presets/export", r.handleExportPresets)
	mux.HandleFunc("POST /api/presets/import", r.handleImportPresets)

	mux.HandleFunc("POST /api/generate", r.handleGenerate)

	mux.HandleFunc("GET /api/history", r.handleListHistory)
	mux.HandleFunc("DELETE /api/history", r.handleClearHistory)
	mux.HandleFunc("DELETE /api/history/{id}", r.handleDeleteHistory)
	mux.HandleFunc("POST /api/history/{id}/publish", r.handlePublish)
	mux.HandleFunc("POST /api/history/{id}/play", r.handlePlay)
	mux.HandleFunc("POST /api/playback/stop", r.handleStopPlayback)
	mux.HandleFunc("GET /api/playback", r.handlePlayback)

	mux.HandleFunc("GET /api/gallery", r.handleGallery)

	mux.HandleFunc("GET /api/backend/health", r.handleBackendHealth)
	mux.HandleFunc("GET /api/backend/metrics", r.handleBackendMetrics)

	mux.HandleFunc("POST /api/uploads/audio", r.handleAudioUpload)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleGetSettings(w http.ResponseWriter, req *http.Request) {
	settings, err := r.store.EnsureSettings(req.Context())
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	r.writeJSON(w, http.StatusOK, settings)
}

func (r *Runtime) handlePatchSettings(w http.ResponseWriter, req *http.Request) {
	var patch store.SettingsPatch
	if !r.decodeJSON(w, req, &patch) {
		return
	}
	settings, err := r.store.SaveSettings(req.Context(), patch)
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if patch.BackendURL != nil {
		r.backend.SetBaseURL(*patch.BackendURL)
	}
	r.writeJSON(w, http.StatusOK, settings)
}

func (r *Runtime) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{"languages": catalog.Languages()})
}

func (r *Runtime) handleListSpeakers(w http.ResponseWriter, req *http.Request) {
	items, err := r.speakers.List(req.Context())
	resp := struct {
		Speakers     []speaker.Item `json:"speakers"`
		BackendError string         `json:"backendError,omitempty"`
	}{Speakers: items}
	if err != nil {
		// Presets are still usable when the backend is down; the partial list
		// ships with the error attached.
		resp.BackendError = err.Error()
	}
	r.writeJSON(w, http.StatusOK, resp)
}

func (r *Runtime) handleCreateSpeaker(w http.ResponseWriter, req *http.Request) {
	var in struct {
		ID          string `json:"id"`
		PromptText  string `json:"promptText"`
		AudioBase64 string `json:"audioBase64"`
		Language    string `json:"language"`
	}
	if !r.decodeJSON(w, req, &in) {
		return
	}
	if err := r.speakers.Create(req.Context(), in.ID, in.PromptText, in.AudioBase64, in.Language); err != nil {
		switch {
		case errors.Is(err, speaker.ErrSpeakerExists):
			r.writeError(w, http.StatusConflict, err.Error())
		default:
			r.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	r.bus.Publish(protocol.SubjectSpeakerCreated, protocol.SpeakerChanged{
		SpeakerID: in.ID,
		Language:  in.Language,
		Timestamp: time.Now(),
	})
	r.writeJSON(w, http.StatusCreated, map[string]string{"id": in.ID})
}

func (r *Runtime) handleDeleteSpeaker(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.speakers.Delete(req.Context(), id); err != nil {
		r.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	r.bus.Publish(protocol.SubjectSpeakerDeleted, protocol.SpeakerChanged{
		SpeakerID: id,
		Timestamp: time.Now(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handleListPresets(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{"presets": r.speakers.Presets(req.Context())})
}

func (r *Runtime) handleConfigurePreset(w http.ResponseWriter, req *http.Request) {
	var in struct {
		Language    string `json:"language"`
		PromptText  string `json:"promptText"`
		AudioBase64 string `json:"audioBase64"`
	}
	if !r.decodeJSON(w, req, &in) {
		return
	}
	item, err := r.speakers.ConfigurePreset(req.Context(), req.PathValue("id"), in.Language, in.PromptText, in.AudioBase64)
	if err != nil {
		if errors.Is(err, speaker.ErrUnknownPreset) {
			r.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		r.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	r.writeJSON(w, http.StatusOK, item)
}

func (r *Runtime) handleResetPreset(w http.ResponseWriter, req *http.Request) {
	if err := r.speakers.ResetPreset(req.Context(), req.PathValue("id")); err != nil {
		if errors.Is(err, speaker.ErrUnknownPreset) {
			r.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		r.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handleClearPresets(w http.ResponseWriter, req *http.Request) {
	if err := r.store.ClearPresetVoices(req.Context()); err != nil {
		r.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handleExportPresets(w http.ResponseWriter, req *http.Request) {
	data, err := preset.Export(req.Context(), r.store)
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="voicecraft-presets.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (r *Runtime) handleImportPresets(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxRequestBody))
	if err != nil {
		r.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	report := preset.Import(req.Context(), r.store, data)
	status := http.StatusOK
	if !report.Success {
		status = http.StatusBadRequest
	}
	r.writeJSON(w, status, report)
}

// generateResponse is the synthesis reply. Item carries no ID when the
// history insert failed; Warning explains why.
type generateResponse struct {
	Item       store.HistoryItem `json:"item"`
	SampleRate int               `json:"sampleRate"`
	Warning    string            `json:"warning,omitempty"`
}

func (r *Runtime) handleGenerate(w http.ResponseWriter, req *http.Request) {
	var in workspace.GenerateInput
	if !r.decodeJSON(w, req, &in) {
		return
	}
	item, result, err := r.workspace.Generate(req.Context(), in)
	if err != nil {
		switch {
		case isValidationError(err):
			r.writeError(w, http.StatusBadRequest, err.Error())
			return
		case result.AudioData != "":
			// Synthesis succeeded and only the history insert failed. The
			// audio is not thrown away; it ships unrecorded with a warning.
			r.writeJSON(w, http.StatusOK, generateResponse{
				Item: store.HistoryItem{
					Text:        in.Text,
					AudioBase64: result.AudioData,
					Duration:    result.Duration,
					Mode:        string(result.Mode),
				},
				SampleRate: result.SampleRate,
				Warning:    err.Error(),
			})
			return
		default:
			r.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	}
	r.writeJSON(w, http.StatusOK, generateResponse{Item: item, SampleRate: result.SampleRate})
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		tts.ErrUnknownMode,
		tts.ErrEmptyText,
		tts.ErrNoVoiceSelected,
		tts.ErrNoReferenceAudio,
		tts.ErrSpeakerIDRequired,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (r *Runtime) handleListHistory(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{"history": r.history.List(req.Context())})
}

func (r *Runtime) handleClearHistory(w http.ResponseWriter, req *http.Request) {
	if err := r.history.Clear(req.Context()); err != nil {
		r.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handleDeleteHistory(w http.ResponseWriter, req *http.Request) {
	if err := r.history.Delete(req.Context(), req.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		r.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handlePublish(w http.ResponseWriter, req *http.Request) {
	var in struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if !r.decodeJSON(w, req, &in) {
		return
	}
	work, err := r.history.Publish(req.Context(), req.PathValue("id"), in.Title, in.Description)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			r.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, history.ErrAlreadyPublished):
			r.writeError(w, http.StatusConflict, err.Error())
		default:
			r.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	r.writeJSON(w, http.StatusCreated, work)
}

func (r *Runtime) handlePlay(w http.ResponseWriter, req *http.Request) {
	stopped := r.history.Play(req.PathValue("id"))
	r.writeJSON(w, http.StatusOK, map[string]string{"stopped": stopped})
}

func (r *Runtime) handleStopPlayback(w http.ResponseWriter, _ *http.Request) {
	r.history.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handlePlayback(w http.ResponseWriter, _ *http.Request) {
	id, playing := r.history.NowPlaying()
	r.writeJSON(w, http.StatusOK, struct {
		Playing bool   `json:"playing"`
		ID      string `json:"id,omitempty"`
	}{Playing: playing, ID: id})
}

func (r *Runtime) handleGallery(w http.ResponseWriter, _ *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{"works": r.gallery.List()})
}

func (r *Runtime) handleBackendHealth(w http.ResponseWriter, req *http.Request) {
	status := r.backend.Health(req.Context())
	r.backendHealthy.Store(status.Healthy())
	r.writeJSON(w, http.StatusOK, status)
}

func (r *Runtime) handleBackendMetrics(w http.ResponseWriter, req *http.Request) {
	metrics := r.backend.SystemMetrics(req.Context())
	if metrics == nil {
		r.writeError(w, http.StatusBadGateway, "backend metrics unavailable")
		return
	}
	r.writeJSON(w, http.StatusOK, metrics)
}

func (r *Runtime) handleAudioUpload(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxRequestBody)
	file, header, err := req.FormFile("file")
	if err != nil {
		r.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		r.writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	encoded, err := audio.EncodeUpload(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		switch {
		case errors.Is(err, audio.ErrFileTooLarge):
			r.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, audio.ErrUnsupportedFormat):
			r.writeError(w, http.StatusUnsupportedMediaType, err.Error())
		default:
			r.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	r.writeJSON(w, http.StatusOK, struct {
		Filename    string `json:"filename"`
		Size        int    `json:"size"`
		AudioBase64 string `json:"audioBase64"`
	}{Filename: header.Filename, Size: len(data), AudioBase64: encoded})
}

func (r *Runtime) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		r.logger.Error("response encode failed", slog.String("error", err.Error()))
	}
}

func (r *Runtime) writeError(w http.ResponseWriter, status int, msg string) {
	r.writeJSON(w, status, map[string]string{"error": msg})
}

func (r *Runtime) decodeJSON(w http.ResponseWriter, req *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		r.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

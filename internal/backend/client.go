// Package backend implements the HTTP client for a CosyVoice-compatible
// inference service. Status and metrics reads degrade to sentinel values;
// mutating and synthesis calls return errors carrying the backend's detail
// message when one is available.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/voicecraftlabs/voicecraft-core/internal/tts"
)

const defaultSampleRate = 24000

// Status is the normalized health-check outcome. It is always well-formed;
// failures surface through the Error field with Status "unhealthy".
type Status struct {
	Status         string   `json:"status"`
	ModelLoaded    bool     `json:"modelLoaded"`
	ModelVersion   string   `json:"modelVersion,omitempty"`
	ModelName      string   `json:"modelName,omitempty"`
	SpeakersCount  int      `json:"speakersCount"`
	AvailableModes []string `json:"availableModes"`
	UptimeSeconds  float64  `json:"uptimeSeconds,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Healthy reports whether the backend answered its health probe positively.
func (s Status) Healthy() bool {
	return s.Status == "healthy"
}

// SystemMetrics mirrors the backend's /system/metrics response.
type SystemMetrics struct {
	CPU struct {
		UsagePercent float64 `json:"usage_percent"`
		Cores        int     `json:"cores"`
	} `json:"cpu"`
	Memory struct {
		TotalGB      float64 `json:"total_gb"`
		UsedGB       float64 `json:"used_gb"`
		AvailableGB  float64 `json:"available_gb"`
		UsagePercent float64 `json:"usage_percent"`
	} `json:"memory"`
	GPU struct {
		Available     bool    `json:"available"`
		Name          string  `json:"name,omitempty"`
		DriverVersion string  `json:"driver_version,omitempty"`
		MemoryTotalGB float64 `json:"memory_total_gb,omitempty"`
		MemoryUsedGB  float64 `json:"memory_used_gb,omitempty"`
		UsagePercent  float64 `json:"usage_percent,omitempty"`
		Temperature   float64 `json:"temperature,omitempty"`
	} `json:"gpu"`
	Disk struct {
		TotalGB      float64 `json:"total_gb"`
		UsedGB       float64 `json:"used_gb"`
		FreeGB       float64 `json:"free_gb"`
		UsagePercent float64 `json:"usage_percent"`
	} `json:"disk"`
	Network struct {
		BytesSent     int64 `json:"bytes_sent"`
		BytesReceived int64 `json:"bytes_received"`
	} `json:"network"`
	Timestamp float64 `json:"timestamp"`
}

// SpeakerList is the backend's registered speaker inventory.
type SpeakerList struct {
	Speakers []string `json:"speakers"`
	Mode     string   `json:"mode"`
}

// Client talks to one inference backend. Construct it with its base URL; there
// is no shared module-level instance. Changing the URL only affects calls made
// after SetBaseURL.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func New(baseURL string, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		log:     log.With(slog.String("component", "backend-client")),
	}
}

// SetBaseURL retargets subsequent calls. In-flight requests keep their target;
// the health poller and HTTP handlers read the URL from their own goroutines.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.mu.Unlock()
}

// BaseURL returns the currently configured backend address.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

type healthResponse struct {
	Status         string   `json:"status"`
	ModelLoaded    bool     `json:"model_loaded"`
	ModelVersion   string   `json:"model_version"`
	ModelName      string   `json:"model_name"`
	SpeakersCount  int      `json:"speakers_count"`
	AvailableModes []string `json:"available_modes"`
	UptimeSeconds  float64  `json:"uptime_seconds"`
}

// Health probes the backend and never returns an error: any failure (no URL
// configured, unreachable host, non-2xx, bad body) yields an unhealthy status
// carrying the error message.
func (c *Client) Health(ctx context.Context) Status {
	unhealthy := func(msg string) Status {
		return Status{Status: "unhealthy", AvailableModes: []string{}, Error: msg}
	}
	if c.BaseURL() == "" {
		return unhealthy("backend URL not configured")
	}

	var data healthResponse
	if err := c.getJSON(ctx, "/health", &data); err != nil {
		return unhealthy(err.Error())
	}

	status := "unhealthy"
	if data.Status == "healthy" {
		status = "healthy"
	}
	modes := data.AvailableModes
	if modes == nil {
		modes = []string{}
	}
	return Status{
		Status:         status,
		ModelLoaded:    data.ModelLoaded,
		ModelVersion:   data.ModelVersion,
		ModelName:      data.ModelName,
		SpeakersCount:  data.SpeakersCount,
		AvailableModes: modes,
		UptimeSeconds:  data.UptimeSeconds,
	}
}

// SystemMetrics fetches resource metrics, returning nil on any failure. The
// failure is logged, not propagated; the UI shows a gap instead of an error.
func (c *Client) SystemMetrics(ctx context.Context) *SystemMetrics {
	base := c.BaseURL()
	if base == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/system/metrics", nil)
	if err != nil {
		c.log.Warn("build metrics request failed", slog.String("error", err.Error()))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("fetch system metrics failed", slog.String("error", err.Error()))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.log.Warn("fetch system metrics failed", slog.String("status", resp.Status))
		return nil
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		c.log.Warn("system metrics response is not JSON", slog.String("content_type", ct))
		return nil
	}

	var metrics SystemMetrics
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		c.log.Warn("decode system metrics failed", slog.String("error", err.Error()))
		return nil
	}
	return &metrics
}

// ListSpeakers returns the backend's registered custom speakers.
func (c *Client) ListSpeakers(ctx context.Context) (SpeakerList, error) {
	var list SpeakerList
	if err := c.getJSONStrict(ctx, "/speakers", &list, "failed to list speakers"); err != nil {
		return SpeakerList{}, err
	}
	return list, nil
}

type createSpeakerRequest struct {
	SpeakerID   string `json:"speaker_id"`
	PromptText  string `json:"prompt_text"`
	PromptAudio string `json:"prompt_audio"`
	Language    string `json:"language"`
}

// CreateSpeakerResult mirrors the backend's speaker-creation response.
type CreateSpeakerResult struct {
	Success   bool   `json:"success"`
	SpeakerID string `json:"speaker_id"`
	Message   string `json:"message"`
}

// CreateSpeaker registers a custom speaker from a reference clip.
func (c *Client) CreateSpeaker(ctx context.Context, id, promptText, audioBase64, language string) (CreateSpeakerResult, error) {
	payload := createSpeakerRequest{SpeakerID: id, PromptText: promptText, PromptAudio: audioBase64, Language: language}
	var result CreateSpeakerResult
	if err := c.postJSON(ctx, "/speakers", payload, &result, "failed to create speaker"); err != nil {
		return CreateSpeakerResult{}, err
	}
	return result, nil
}

// DeleteSpeaker removes a registered speaker by id.
func (c *Client) DeleteSpeaker(ctx context.Context, id string) error {
	endpoint := c.BaseURL() + "/speakers/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete speaker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return backendError(resp, "failed to delete speaker")
	}
	return nil
}

type synthesizeResponse struct {
	AudioData  string  `json:"audio_data"`
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration"`
	Mode       string  `json:"mode"`
}

// Synthesize validates the request, shapes the mode-conditional payload and
// POSTs it to /tts. The result's sample rate defaults to 24000 and the mode is
// echoed from the request when the backend omits it.
func (c *Client) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	payload, err := tts.Build(req)
	if err != nil {
		return tts.Result{}, err
	}

	var data synthesizeResponse
	if err := c.postJSON(ctx, "/tts", payload, &data, "TTS generation failed"); err != nil {
		return tts.Result{}, err
	}

	result := tts.Result{
		AudioData:  data.AudioData,
		SampleRate: data.SampleRate,
		Duration:   data.Duration,
		Mode:       tts.Mode(data.Mode),
	}
	if result.SampleRate == 0 {
		result.SampleRate = defaultSampleRate
	}
	if result.Mode == "" {
		result.Mode = req.Mode
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSONStrict(ctx context.Context, path string, out any, fallback string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", fallback, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return backendError(resp, fallback)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any, fallback string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", fallback, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return backendError(resp, fallback)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// backendError extracts the backend's detail message from an error response,
// falling back to a generic per-operation message.
func backendError(resp *http.Response, fallback string) error {
	var detail struct {
		Detail string `json:"detail"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		return fmt.Errorf("%s", detail.Detail)
	}
	return fmt.Errorf("%s", fallback)
}

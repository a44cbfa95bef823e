// Package runtime assembles the studio daemon: persistence, backend client,
// speaker and history services, the HTTP API the UI consumes, and the
// telemetry pipeline.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicecraftlabs/voicecraft-core/internal/backend"
	"github.com/voicecraftlabs/voicecraft-core/internal/bus"
	"github.com/voicecraftlabs/voicecraft-core/internal/config"
	"github.com/voicecraftlabs/voicecraft-core/internal/gallery"
	"github.com/voicecraftlabs/voicecraft-core/internal/history"
	"github.com/voicecraftlabs/voicecraft-core/internal/i18n"
	"github.com/voicecraftlabs/voicecraft-core/internal/natsserver"
	"github.com/voicecraftlabs/voicecraft-core/internal/speaker"
	"github.com/voicecraftlabs/voicecraft-core/internal/store"
	"github.com/voicecraftlabs/voicecraft-core/internal/workspace"
)

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	backendHealthy atomic.Bool
	wg             sync.WaitGroup

	store     *store.Store
	backend   *backend.Client
	speakers  *speaker.Service
	history   *history.Service
	gallery   *gallery.Gallery
	workspace *workspace.Service
	bus       *bus.Client
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	if embedded != nil {
		defer embedded.Shutdown()
	}
	if r.cfg.Bus.Enabled {
		busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			// Event publishing is an optional feed; the studio works without it.
			r.logger.Warn("bus unavailable, events disabled", slog.String("error", err.Error()))
		} else {
			r.bus = busClient
			defer busClient.Close()
		}
	}

	st, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			r.logger.Error("store close error", slog.String("error", err.Error()))
		}
	}()
	r.store = st

	r.backend = backend.New(r.cfg.Backend.URL, r.logger)
	settings, err := st.EnsureSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize settings: %w", err)
	}
	if settings.BackendURL != "" {
		// The stored backend URL wins over the config file; the UI edits the
		// stored one.
		r.backend.SetBaseURL(settings.BackendURL)
	}

	translator := i18n.New(r.cfg.Locale, r.logger)
	r.gallery = gallery.New()
	r.speakers = speaker.NewService(st, r.backend, translator, r.cfg.Backend.DefaultLanguage, r.logger)
	r.history = history.NewService(st, r.gallery, r.bus, r.logger)
	r.workspace, err = workspace.NewService(st, r.backend, r.history, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build workspace service: %w", err)
	}

	r.wg.Add(1)
	go r.pollBackendHealth(ctx)

	mux := http.NewServeMux()
	r.routes(mux, metricsHandler)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("backend", r.backend.BaseURL()))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// pollBackendHealth keeps a cached availability flag fresh so /readyz and the
// UI status pill do not pay a backend round trip per request.
func (r *Runtime) pollBackendHealth(ctx context.Context) {
	defer r.wg.Done()

	interval := time.Duration(r.cfg.Backend.HealthIntervalS) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		status := r.backend.Health(checkCtx)
		healthy := status.Healthy()
		prev := r.backendHealthy.Swap(healthy)
		if prev != healthy {
			r.logger.Info("backend availability changed",
				slog.Bool("available", healthy),
				slog.String("url", r.backend.BaseURL()))
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pkordes/change-observer/internal/cache"
	"github.com/pkordes/change-observer/internal/config"
	"github.com/pkordes/change-observer/internal/logging"
	"github.com/pkordes/change-observer/internal/metrics"
	"github.com/pkordes/change-observer/internal/middleware"
	"github.com/pkordes/change-observer/internal/repo"
	"github.com/pkordes/change-observer/internal/schema"
	"github.com/pkordes/change-observer/internal/service"
	"github.com/pkordes/change-observer/internal/view"
)

// app is the wired client shared by every command.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	cache    *cache.Cache
	svc      *service.MarkerService
}

func newApp(stderr io.Writer) (*app, error) {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// --- Logger -----------------------------------------------------------
	// stdout carries command output, so logs go to stderr.
	log := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)

	// --- Metrics ----------------------------------------------------------
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	// --- Store client -----------------------------------------------------
	// Middleware is applied in order: RequestID → SlogLogger → Metrics → MaxBodySize.
	client := &http.Client{
		Timeout: cfg.Store.Timeout,
		Transport: middleware.Chain(http.DefaultTransport,
			middleware.RequestID,
			middleware.NewSlogLogger(log),
			middleware.NewMetrics(m),
			middleware.NewMaxBodySize(cfg.Store.MaxResponseBytes),
		),
	}
	r, err := repo.NewMarkerRepo(cfg.Store.URL, client)
	if err != nil {
		return nil, fmt.Errorf("store client: %w", err)
	}

	c := cache.New(
		cache.WithStaleTime(cfg.Cache.StaleTime),
		cache.WithLogger(log),
		cache.WithRecorder(m),
	)

	svc := service.NewMarkerService(r, c,
		service.WithLogger(log),
		service.WithNotifier(service.NotifierFunc(func(kind service.NotificationKind, msg string) {
			fmt.Fprintf(stderr, "%s: %s\n", kind, msg)
		})),
		service.WithNavigator(navigator{log: log}),
	)

	return &app{cfg: cfg, log: log, registry: reg, cache: c, svc: svc}, nil
}

// Close stops background cache refreshes.
func (a *app) Close() { a.cache.Close() }

func (a *app) policy() schema.Policy {
	return schema.Policy{CheckRange: a.cfg.Validation.CheckRange}
}

func (a *app) viewOptions(extra ...view.Option) []view.Option {
	return append([]view.Option{view.WithLogger(a.log), view.WithPolicy(a.policy())}, extra...)
}

// navigator has no page to leave; it records the deletion.
type navigator struct{ log *slog.Logger }

func (n navigator) MarkerDeleted(id string) {
	n.log.Info("marker page closed", "marker_id", id)
}

package main

import (
	"fmt"
	"net/http"

	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/config"
	"github.com/dj-oyu/screen-recorder/internal/logger"
	"github.com/dj-oyu/screen-recorder/internal/metrics"
	"github.com/dj-oyu/screen-recorder/internal/output"
	"github.com/dj-oyu/screen-recorder/internal/recorder"
	"github.com/dj-oyu/screen-recorder/internal/telemetry"
)

// app is everything a recording command needs, wired from the config
type app struct {
	metrics  *metrics.Metrics
	obs      telemetry.Observer
	backend  capture.Backend
	recorder *recorder.Recorder
}

func newApp(cfg *config.Config) (*app, error) {
	m := metrics.New()
	obs := telemetry.New(logger.Default(), m)

	backend, err := capture.Open(cfg.Backend, capture.Options{Observer: obs, Params: cfg.BackendParams})
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}

	namer := output.NewNamer(cfg.OutputDir)
	namer.Prefix = cfg.FilePrefix

	verifier := output.NewVerifier(obs)
	verifier.Tolerance = cfg.DurationTolerance()

	rec := recorder.New(cfg.Recorder(), backend, namer,
		recorder.WithObserver(obs),
		recorder.WithVerifier(verifier),
	)

	logger.Info("Main", "Backend: %s (available: %v)", backend.Name(), capture.Backends())
	logger.Info("Main", "Output: %s", cfg.OutputDir)
	return &app{metrics: m, obs: obs, backend: backend, recorder: rec}, nil
}

// serveMetrics starts the Prometheus endpoint when addr is set
func (rt *app) serveMetrics(addr string) {
	if addr == "" {
		return
	}
	go func() {
		logger.Info("Main", "Starting metrics server on %s", addr)
		if err := rt.metrics.StartServer(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("Main", "Metrics server error: %v", err)
		}
	}()
}

package main

import (
	"context"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dj-oyu/screen-recorder/internal/control"
	"github.com/dj-oyu/screen-recorder/internal/logger"
	"github.com/dj-oyu/screen-recorder/internal/recorder"
)

var pprofAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the recording control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&pprofAddr, "pprof", "", "pprof server address (disabled when empty)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	rt, err := newApp(cfg)
	if err != nil {
		return err
	}
	rt.serveMetrics(cfg.MetricsAddr)

	if pprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				logger.Error("Main", "pprof server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if split := cfg.AutoSplit(); split > 0 {
		go rt.recorder.AutoSplit(ctx, split)
	}

	srv := control.NewServer(control.Config{
		Screen:    cfg.ScreenMetrics(),
		Planner:   cfg.Planner(),
		AutoGrant: true,
	}, rt.recorder, rt.metrics, logger.Default())

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Main", "Control API listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info("Main", "Shutting down...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	cancel()
	if rt.recorder.State() != recorder.StateIdle {
		if _, err := rt.recorder.Stop(); err != nil {
			logger.Warn("Main", "Stop on shutdown: %v", err)
		}
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return httpServer.Shutdown(shutdownCtx)
}

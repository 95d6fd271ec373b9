// Entry point for the protest tracker service: HTTP API + WebSocket
// feed, background scrape loop, and the lifecycle scheduler, all in one
// process.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blanzp/protest-tracker/api"
	"github.com/blanzp/protest-tracker/broadcast"
	"github.com/blanzp/protest-tracker/config"
	"github.com/blanzp/protest-tracker/geocode"
	"github.com/blanzp/protest-tracker/ingest"
	"github.com/blanzp/protest-tracker/lifecycle"
	"github.com/blanzp/protest-tracker/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "debug|info|warn|error")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("store: open", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	st := store.NewStore(db)

	broadcaster := broadcast.New(cfg.BroadcastBuffer)

	var resolver *geocode.Resolver
	if cfg.Geocode.APIKey != "" {
		resolver = geocode.New(
			geocode.NewGoogleClient(cfg.Geocode.APIKey),
			cfg.ResolverConfig(),
			logger.With("component", "geocode"),
		)
	} else {
		logger.Warn("geocode: GOOGLE_MAPS_API_KEY not set, address resolution disabled")
	}

	deps := ingest.Deps{
		Store:       st,
		Geo:         resolver,
		Broadcaster: broadcaster,
		Logger:      logger.With("component", "ingest"),
	}
	adapters := []ingest.Adapter{
		ingest.NewPermitAdapter(cfg.Permits, deps),
		ingest.NewNewsAdapter(cfg.News, deps),
		ingest.NewSocialAdapter(cfg.Social, deps),
	}
	runner := ingest.NewRunner(st, adapters, cfg.Scrape.AdapterTimeout(), logger.With("component", "scrape"))

	scheduler := lifecycle.New(st, broadcaster, cfg.Lifecycle.SchedulerConfig(), logger.With("component", "lifecycle"))
	go scheduler.Run(ctx)

	go scrapeLoop(ctx, runner, cfg.Scrape.Interval(), logger)

	service := api.NewService(st, broadcaster, logger.With("component", "api"))
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           service.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http: listening", "addr", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http: serve", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http: shutdown", "error", err)
	}
}

// scrapeLoop runs the adapter set immediately and then on a fixed
// interval until ctx is cancelled.
func scrapeLoop(ctx context.Context, runner *ingest.Runner, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, runner, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, runner, logger)
		}
	}
}

func runOnce(ctx context.Context, runner *ingest.Runner, logger *slog.Logger) {
	report := runner.Run(ctx)
	logger.Info("scrape: cycle finished",
		"total", report.Total, "succeeded", report.Succeeded,
		"failed", report.Failed, "skipped", report.Skipped)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

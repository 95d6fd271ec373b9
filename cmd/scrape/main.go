// One-shot scrape: runs every configured adapter once, prints the run
// report as JSON, and exits non-zero iff any source failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/blanzp/protest-tracker/broadcast"
	"github.com/blanzp/protest-tracker/config"
	"github.com/blanzp/protest-tracker/geocode"
	"github.com/blanzp/protest-tracker/ingest"
	"github.com/blanzp/protest-tracker/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
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

	var resolver *geocode.Resolver
	if cfg.Geocode.APIKey != "" {
		resolver = geocode.New(
			geocode.NewGoogleClient(cfg.Geocode.APIKey),
			cfg.ResolverConfig(),
			logger.With("component", "geocode"),
		)
	}

	deps := ingest.Deps{
		Store:       st,
		Geo:         resolver,
		Broadcaster: broadcast.New(0),
		Logger:      logger.With("component", "ingest"),
	}
	adapters := []ingest.Adapter{
		ingest.NewPermitAdapter(cfg.Permits, deps),
		ingest.NewNewsAdapter(cfg.News, deps),
		ingest.NewSocialAdapter(cfg.Social, deps),
	}

	report := ingest.NewRunner(st, adapters, cfg.Scrape.AdapterTimeout(), logger).Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report)

	if report.Failed > 0 {
		os.Exit(1)
	}
}

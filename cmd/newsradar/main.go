package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"newsradar/internal/app"
	"newsradar/internal/config"
	"newsradar/internal/domain"
	"newsradar/internal/logging"
)

func main() {
	mode := "crawl"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		mode = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("newsradar", flag.ExitOnError)
	source := fs.String("source", "all", "source to crawl: crypto, hkstocks, or all")
	days := fs.Int("days", 1, "how many days back to collect")
	max := fs.Int("max", 0, "cap on candidates per run (0 = no cap)")
	workers := fs.Int("workers", 0, "worker pool size (0 = configured default)")
	extended := fs.Bool("extended", false, "use browser automation for listings that need scrolling")
	noAnalysis := fs.Bool("no-analysis", false, "skip keyword/category analysis")
	dryRun := fs.Bool("dry-run", false, "crawl into memory instead of the database")
	_ = fs.Parse(args)

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	sources, err := resolveSources(*source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, app.Options{
		Sources:      sources,
		Window:       time.Duration(*days) * 24 * time.Hour,
		Max:          *max,
		Workers:      *workers,
		Extended:     *extended,
		SkipAnalysis: *noAnalysis,
		DryRun:       *dryRun,
	}, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	switch mode {
	case "crawl":
		// Per-item failures are counted in the stats; only a run that
		// cannot proceed at all exits non-zero.
		stats, err := application.Crawl(ctx)
		if err != nil {
			logger.Error("crawl failed", "error", err)
			os.Exit(1)
		}
		logger.Info("crawl finished",
			"attempted", stats.Attempted,
			"saved", stats.Saved,
			"updated", stats.Updated,
			"skipped", stats.Skipped,
			"failed", stats.Failed)
	case "serve":
		if err := application.Serve(ctx); err != nil {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	case "push":
		if err := application.Push(ctx); err != nil {
			logger.Error("push loop stopped", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q: expected crawl, serve, or push\n", mode)
		os.Exit(2)
	}
}

func resolveSources(raw string) ([]domain.Source, error) {
	if raw == "all" || raw == "" {
		return []domain.Source{domain.SourceCrypto, domain.SourceHKStocks}, nil
	}

	var sources []domain.Source
	for _, part := range strings.Split(raw, ",") {
		source, ok := domain.ParseSource(strings.TrimSpace(part))
		if !ok {
			return nil, fmt.Errorf("unknown source %q: expected crypto, hkstocks, or all", part)
		}
		sources = append(sources, source)
	}
	return sources, nil
}

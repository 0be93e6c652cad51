package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"newsradar/internal/config"
	"newsradar/internal/domain"
	"newsradar/internal/infrastructure/analysis"
	"newsradar/internal/infrastructure/parser"
	"newsradar/internal/infrastructure/scheduler"
	"newsradar/internal/infrastructure/storage"
	"newsradar/internal/infrastructure/telegram"
	"newsradar/internal/logging"
	"newsradar/internal/ports"
	"newsradar/internal/scanner"
	"newsradar/internal/usecase"
	"newsradar/internal/web"
)

// Options select what one invocation does.
type Options struct {
	Sources      []domain.Source
	Window       time.Duration
	Max          int
	Workers      int
	Extended     bool
	SkipAnalysis bool
	DryRun       bool
}

// Application wires config to adapters and use cases.
type Application struct {
	cfg        config.Config
	opts       Options
	logger     *slog.Logger
	repository ports.NewsRepository
	db         *sql.DB
}

// New builds a runnable application instance. With DryRun the crawl writes to
// an in-memory store instead of Postgres, so a run can be inspected without
// touching the database.
func New(cfg config.Config, opts Options, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	app := &Application{cfg: cfg, opts: opts, logger: baseLogger}

	if opts.DryRun {
		app.repository = storage.NewMemoryRepository()
		return app, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.db = db
	app.repository = storage.NewPostgresRepository(db)
	return app, nil
}

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Crawl executes one bounded crawl run over the selected sources.
func (a *Application) Crawl(ctx context.Context) (usecase.RunStats, error) {
	if err := a.repository.EnsureSchema(ctx); err != nil {
		return usecase.RunStats{}, err
	}

	registry := scanner.NewRegistry()
	router := parser.NewDetailRouter()

	var browser *parser.BrowserLister
	if a.opts.Extended {
		browser = parser.NewBrowserLister(a.cfg.Sources.HKStocks, a.logger.With("component", "browser"))
	}
	aastocks := parser.NewAaStocksScanner(nil, a.cfg.Sources.HKStocks, browser,
		a.logger.With("component", "scanner.hkstocks"))
	registry.Register(aastocks)
	router.Register(domain.SourceHKStocks, aastocks)

	feeds := parser.NewFeedScanner(a.cfg.Sources.Crypto.FeedURLs,
		a.logger.With("component", "scanner.crypto"))
	registry.Register(feeds)
	router.Register(domain.SourceCrypto, feeds)

	lister := parser.NewStrategySource(registry, a.opts.Sources, a.opts.Extended,
		a.logger.With("component", "source"))

	var analyzer ports.Analyzer
	if !a.opts.SkipAnalysis {
		analyzer = analysis.NewClient(a.cfg.Analysis, a.logger.With("component", "analysis"))
	}

	coordinator := usecase.NewCoordinator(usecase.CoordinatorDeps{
		Lister:     lister,
		Details:    router,
		Analyzer:   analyzer,
		Repository: a.repository,
		Logger:     a.logger,
	})

	return coordinator.Run(ctx, usecase.RunOptions{
		Window:        a.opts.Window,
		Max:           a.opts.Max,
		Workers:       a.workers(),
		QueueCapacity: a.cfg.Pipeline.QueueCapacity,
		RequestDelay:  a.cfg.Pipeline.RequestDelay(),
		SkipAnalysis:  a.opts.SkipAnalysis,
	})
}

// Serve runs the HTTP API and dashboard until the listener fails.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.repository.EnsureSchema(ctx); err != nil {
		return err
	}

	server := web.NewServer(a.repository, a.cfg.Web.TemplateGlob, a.logger)
	return server.Run(a.cfg.Web.Addr)
}

// Push runs the subscription push loop until the context ends.
func (a *Application) Push(ctx context.Context) error {
	if err := a.repository.EnsureSchema(ctx); err != nil {
		return err
	}
	if a.cfg.Push.BotToken == "" {
		return fmt.Errorf("push mode needs a telegram bot token")
	}

	svc := usecase.NewPushService(usecase.PushDeps{
		Repository: a.repository,
		Notifier:   telegram.NewNotifier(a.cfg.Push.BotToken),
		Scheduler:  scheduler.NewIntervalScheduler(a.cfg.Push.Interval()),
		Logger:     a.logger,
	}, usecase.PushOptions{
		MaxPerUser: a.cfg.Push.MaxPerUser,
		Lookback:   a.cfg.Push.Interval(),
	})

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start push loop: %w", err)
	}
	<-ctx.Done()
	return svc.Stop(context.Background())
}

func (a *Application) workers() int {
	if a.opts.Workers > 0 {
		return a.opts.Workers
	}
	return a.cfg.Pipeline.Workers
}

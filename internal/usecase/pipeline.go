package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsradar/internal/domain"
	"newsradar/internal/ports"
)

// RunState tracks the lifecycle of one crawl run.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateDraining
	StateCompleted
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunStats counts per-item outcomes of one run. Attempted equals the number
// of candidates dequeued by workers, each candidate lands in exactly one of
// the other buckets.
type RunStats struct {
	Attempted int
	Saved     int
	Updated   int
	Skipped   int
	Failed    int
}

// RunOptions bound one crawl run.
type RunOptions struct {
	Window        time.Duration
	Max           int
	Workers       int
	QueueCapacity int
	RequestDelay  time.Duration
	SkipAnalysis  bool
}

// CoordinatorDeps wires the driven adapters into the crawl coordinator.
type CoordinatorDeps struct {
	Lister     ports.CandidateLister
	Details    ports.DetailFetcher
	Analyzer   ports.Analyzer
	Repository ports.NewsRepository
	Logger     *slog.Logger
}

// Coordinator runs the bounded producer/consumer crawl: one producer feeds a
// fixed-capacity queue from the candidate listing, a small pool of workers
// drains it through fetch, analyze, and upsert.
type Coordinator struct {
	lister     ports.CandidateLister
	details    ports.DetailFetcher
	analyzer   ports.Analyzer
	repository ports.NewsRepository
	logger     *slog.Logger

	mu    sync.Mutex
	state RunState
	stats RunStats
}

// NewCoordinator constructs the orchestration component.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		lister:     deps.Lister,
		details:    deps.Details,
		analyzer:   deps.Analyzer,
		repository: deps.Repository,
		logger:     logger.With("component", "coordinator"),
		state:      StateIdle,
	}
}

// State reports the coordinator's current lifecycle state.
func (c *Coordinator) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run executes one crawl to completion and returns the per-item counters.
// Individual item failures are counted, not propagated; Run errors only when
// the run itself cannot proceed, with every listed source fatal or the
// coordinator already busy.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions) (RunStats, error) {
	if err := c.transition(StateIdle, StateRunning); err != nil {
		return RunStats{}, err
	}
	c.resetStats()

	runID := uuid.NewString()[:8]
	logger := c.logger.With("run_id", runID)
	logger.Info("run started",
		"window", opts.Window.String(),
		"max", opts.Max,
		"workers", workerCount(opts))

	result := c.lister.ListCandidates(ctx, opts.Window, opts.Max)
	switch result.Outcome {
	case ports.ListFatal:
		c.setState(StateFailed)
		logger.Error("listing failed", "reason", result.Reason)
		return c.snapshot(), fmt.Errorf("list candidates: %w: %s", domain.ErrFatalSource, result.Reason)
	case ports.ListDegraded:
		logger.Warn("listing degraded", "reason", result.Reason, "candidates", len(result.Candidates))
	default:
		logger.Info("listing complete", "candidates", len(result.Candidates))
	}

	queue := make(chan domain.CandidateRef, queueCapacity(opts))

	var wg sync.WaitGroup
	for i := 0; i < workerCount(opts); i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for ref := range queue {
				c.process(ctx, logger.With("worker", worker), ref, opts)
			}
		}(i)
	}

	// The producer respects the queue bound: when workers fall behind, the
	// send blocks instead of growing a backlog. Closing the channel is the
	// drain signal, workers exit after the queue empties.
	go func() {
		defer close(queue)
		for _, ref := range result.Candidates {
			select {
			case queue <- ref:
			case <-ctx.Done():
				return
			}
			if opts.RequestDelay > 0 {
				select {
				case <-time.After(opts.RequestDelay):
				case <-ctx.Done():
					return
				}
			}
		}
		c.setState(StateDraining)
	}()

	wg.Wait()
	c.setState(StateCompleted)

	stats := c.snapshot()
	logger.Info("run complete",
		"attempted", stats.Attempted,
		"saved", stats.Saved,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"failed", stats.Failed)

	return stats, nil
}

func (c *Coordinator) process(ctx context.Context, logger *slog.Logger, ref domain.CandidateRef, opts RunOptions) {
	c.count(func(s *RunStats) { s.Attempted++ })

	body, publishedAt, err := c.details.FetchDetail(ctx, ref)
	if err != nil {
		c.count(func(s *RunStats) { s.Failed++ })
		logger.Warn("fetch detail failed", "url", ref.URL, "error", err)
		return
	}

	item := domain.NewsItem{
		Title:       ref.Title,
		Body:        body,
		URL:         ref.URL,
		Source:      ref.Source,
		Category:    domain.FallbackCategory,
		PublishedAt: publishedAt,
	}
	if item.PublishedAt.IsZero() {
		item.PublishedAt = ref.DiscoveredAt
	}

	// Candidates without a listing timestamp pass the window check only
	// now, once the detail page has revealed when they were published.
	if opts.Window > 0 && ref.PublishedAt.IsZero() &&
		item.PublishedAt.Before(time.Now().Add(-opts.Window)) {
		c.count(func(s *RunStats) { s.Skipped++ })
		logger.Debug("item outside window", "url", ref.URL, "published_at", item.PublishedAt)
		return
	}

	if !opts.SkipAnalysis && c.analyzer != nil {
		keywords, category := c.analyzer.Analyze(ctx, body)
		item.Keywords = keywords
		if category != "" {
			item.Category = category
		}
	}

	outcome, err := c.repository.Upsert(ctx, item)
	if err != nil {
		c.count(func(s *RunStats) { s.Failed++ })
		logger.Warn("upsert failed", "url", ref.URL, "error", err)
		return
	}

	c.count(func(s *RunStats) {
		switch outcome {
		case domain.OutcomeInserted:
			s.Saved++
		case domain.OutcomeUpdated:
			s.Updated++
		case domain.OutcomeSkippedDuplicate:
			s.Skipped++
		}
	})
	logger.Debug("item processed", "url", ref.URL, "outcome", outcome.String())
}

func (c *Coordinator) transition(from, to RunState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from && c.state != StateCompleted && c.state != StateFailed {
		return fmt.Errorf("coordinator busy: state %s", c.state)
	}
	c.state = to
	return nil
}

func (c *Coordinator) setState(state RunState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Draining never overrides a terminal state set by a fatal listing.
	if state == StateDraining && (c.state == StateCompleted || c.state == StateFailed) {
		return
	}
	c.state = state
}

func (c *Coordinator) resetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = RunStats{}
}

func (c *Coordinator) count(update func(*RunStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.stats)
}

func (c *Coordinator) snapshot() RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func workerCount(opts RunOptions) int {
	if opts.Workers > 0 {
		return opts.Workers
	}
	return 3
}

func queueCapacity(opts RunOptions) int {
	if opts.QueueCapacity > 0 {
		return opts.QueueCapacity
	}
	return 50
}

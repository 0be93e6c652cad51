package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"newsradar/internal/domain"
	"newsradar/internal/infrastructure/storage"
	"newsradar/internal/logging"
	"newsradar/internal/ports"
)

type stubLister struct {
	result ports.ListResult
}

func (s *stubLister) ListCandidates(ctx context.Context, window time.Duration, max int) ports.ListResult {
	return s.result
}

type stubDetails struct {
	mu          sync.Mutex
	failing     map[string]bool
	publishedAt time.Time
	calls       int
}

func (s *stubDetails) FetchDetail(ctx context.Context, ref domain.CandidateRef) (string, time.Time, error) {
	s.mu.Lock()
	s.calls++
	failing := s.failing[ref.URL]
	publishedAt := s.publishedAt
	s.mu.Unlock()

	if failing {
		return "", time.Time{}, fmt.Errorf("detail unreachable: %s", ref.URL)
	}
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}
	return "full body for " + ref.URL, publishedAt, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, text string) ([]string, string) {
	return []string{"bitcoin"}, "markets"
}

func candidates(n int) []domain.CandidateRef {
	refs := make([]domain.CandidateRef, 0, n)
	for i := 0; i < n; i++ {
		refs = append(refs, domain.CandidateRef{
			URL:          fmt.Sprintf("https://example.com/news/%d", i),
			Title:        fmt.Sprintf("Headline %d", i),
			Source:       domain.SourceCrypto,
			DiscoveredAt: time.Now(),
		})
	}
	return refs
}

func newCoordinator(t *testing.T, lister ports.CandidateLister, details ports.DetailFetcher, repo ports.NewsRepository) *Coordinator {
	t.Helper()
	return NewCoordinator(CoordinatorDeps{
		Lister:     lister,
		Details:    details,
		Analyzer:   stubAnalyzer{},
		Repository: repo,
		Logger:     logging.New("error"),
	})
}

func TestCoordinatorProcessesEveryCandidateExactlyOnce(t *testing.T) {
	t.Parallel()

	// More candidates than queue slots forces the producer to block on
	// backpressure; nothing may be lost or handled twice.
	const total = 20
	repo := storage.NewMemoryRepository()
	coord := newCoordinator(t,
		&stubLister{result: ports.ListResult{Candidates: candidates(total), Outcome: ports.ListOK}},
		&stubDetails{},
		repo,
	)

	stats, err := coord.Run(context.Background(), RunOptions{
		QueueCapacity: 3,
		Workers:       4,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Attempted != total {
		t.Fatalf("attempted = %d, want %d", stats.Attempted, total)
	}
	if stats.Saved != total {
		t.Fatalf("saved = %d, want %d", stats.Saved, total)
	}
	if stats.Failed != 0 || stats.Updated != 0 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if got := coord.State(); got != StateCompleted {
		t.Fatalf("state = %s, want completed", got)
	}

	stored, _, _, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("repo stats: %v", err)
	}
	if stored != total {
		t.Fatalf("stored = %d, want %d", stored, total)
	}
}

func TestCoordinatorIsolatesPerItemFailures(t *testing.T) {
	t.Parallel()

	refs := candidates(3)
	details := &stubDetails{failing: map[string]bool{refs[1].URL: true}}
	coord := newCoordinator(t,
		&stubLister{result: ports.ListResult{Candidates: refs, Outcome: ports.ListOK}},
		details,
		storage.NewMemoryRepository(),
	)

	stats, err := coord.Run(context.Background(), RunOptions{Workers: 1})
	if err != nil {
		t.Fatalf("run must not fail on item errors: %v", err)
	}
	if stats.Attempted != 3 || stats.Saved != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want attempted 3 saved 2 failed 1", stats)
	}
	if got := coord.State(); got != StateCompleted {
		t.Fatalf("state = %s, want completed", got)
	}
}

func TestCoordinatorFatalListingFailsRun(t *testing.T) {
	t.Parallel()

	coord := newCoordinator(t,
		&stubLister{result: ports.ListResult{Outcome: ports.ListFatal, Reason: "all sources unreachable"}},
		&stubDetails{},
		storage.NewMemoryRepository(),
	)

	_, err := coord.Run(context.Background(), RunOptions{})
	if err == nil {
		t.Fatal("expected error on fatal listing")
	}
	if !errors.Is(err, domain.ErrFatalSource) {
		t.Fatalf("error %v should classify as source unavailable", err)
	}
	if got := coord.State(); got != StateFailed {
		t.Fatalf("state = %s, want failed", got)
	}
}

func TestCoordinatorDegradedListingStillProcesses(t *testing.T) {
	t.Parallel()

	coord := newCoordinator(t,
		&stubLister{result: ports.ListResult{
			Candidates: candidates(2),
			Outcome:    ports.ListDegraded,
			Reason:     "browser navigation failed",
		}},
		&stubDetails{},
		storage.NewMemoryRepository(),
	)

	stats, err := coord.Run(context.Background(), RunOptions{Workers: 2})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Saved != 2 {
		t.Fatalf("saved = %d, want 2", stats.Saved)
	}
}

func TestCoordinatorSkipAnalysisUsesFallbackCategory(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	coord := newCoordinator(t,
		&stubLister{result: ports.ListResult{Candidates: candidates(1), Outcome: ports.ListOK}},
		&stubDetails{},
		repo,
	)

	if _, err := coord.Run(context.Background(), RunOptions{SkipAnalysis: true}); err != nil {
		t.Fatalf("run: %v", err)
	}

	items, err := repo.Search(context.Background(), "", "", time.Time{}, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Category != domain.FallbackCategory {
		t.Fatalf("category = %q, want fallback %q", items[0].Category, domain.FallbackCategory)
	}
	if len(items[0].Keywords) != 0 {
		t.Fatalf("keywords = %v, want none", items[0].Keywords)
	}
}

func TestCoordinatorSkipsDetailOutsideWindow(t *testing.T) {
	t.Parallel()

	// The candidates carry no listing timestamp, so the window check can
	// only happen after the detail page reveals the publish time.
	refs := candidates(2)
	repo := storage.NewMemoryRepository()
	details := &stubDetails{publishedAt: time.Now().Add(-72 * time.Hour)}
	coord := newCoordinator(t,
		&stubLister{result: ports.ListResult{Candidates: refs, Outcome: ports.ListOK}},
		details,
		repo,
	)

	stats, err := coord.Run(context.Background(), RunOptions{Window: 24 * time.Hour})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Attempted != 2 || stats.Skipped != 2 || stats.Saved != 0 {
		t.Fatalf("stats = %+v, want both items skipped as outside the window", stats)
	}

	stored, _, _, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("repo stats: %v", err)
	}
	if stored != 0 {
		t.Fatalf("stored = %d, want 0", stored)
	}
}

type emptyAnalyzer struct{}

func (emptyAnalyzer) Analyze(ctx context.Context, text string) ([]string, string) {
	return nil, ""
}

func TestCoordinatorKeepsFallbackCategoryOnEmptyAnalysis(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	coord := NewCoordinator(CoordinatorDeps{
		Lister:     &stubLister{result: ports.ListResult{Candidates: candidates(1), Outcome: ports.ListOK}},
		Details:    &stubDetails{},
		Analyzer:   emptyAnalyzer{},
		Repository: repo,
		Logger:     logging.New("error"),
	})

	if _, err := coord.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	items, err := repo.Search(context.Background(), "", "", time.Time{}, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Category != domain.FallbackCategory {
		t.Fatalf("category = %q, want fallback %q", items[0].Category, domain.FallbackCategory)
	}
}

func TestCoordinatorRunsAgainAfterCompletion(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	coord := newCoordinator(t,
		&stubLister{result: ports.ListResult{Candidates: candidates(2), Outcome: ports.ListOK}},
		&stubDetails{},
		repo,
	)

	if _, err := coord.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The second run sees the same candidates; the upsert layer resolves
	// them as duplicates instead of storing copies.
	stats, err := coord.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Skipped+stats.Updated != 2 {
		t.Fatalf("stats = %+v, want 2 resolved as duplicate or update", stats)
	}

	stored, _, _, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("repo stats: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}
}

func TestRunStateStrings(t *testing.T) {
	t.Parallel()

	cases := map[RunState]string{
		StateIdle:      "idle",
		StateRunning:   "running",
		StateDraining:  "draining",
		StateCompleted: "completed",
		StateFailed:    "failed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("state %d = %q, want %q", state, got, want)
		}
	}
	if !strings.Contains(StateRunning.String(), "run") {
		t.Fatal("running state string malformed")
	}
}

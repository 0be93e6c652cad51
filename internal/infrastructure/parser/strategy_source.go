package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsradar/internal/domain"
	"newsradar/internal/ports"
	"newsradar/internal/scanner"
)

// StrategySource implements CandidateLister across one or more registered
// source strategies. Per-source outcomes are folded: any Degraded taints the
// whole result, and the result is Fatal only when every source is.
type StrategySource struct {
	registry *scanner.Registry
	sources  []domain.Source
	extended bool
	logger   *slog.Logger
}

var _ ports.CandidateLister = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with the sources selected for
// this run.
func NewStrategySource(reg *scanner.Registry, sources []domain.Source, extended bool, logger *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sources:  sources,
		extended: extended,
		logger:   logger,
	}
}

// ListCandidates executes every selected strategy and aggregates candidates.
func (s *StrategySource) ListCandidates(ctx context.Context, window time.Duration, max int) ports.ListResult {
	if s.registry == nil || len(s.sources) == 0 {
		return ports.ListResult{Outcome: ports.ListFatal, Reason: "no sources configured"}
	}

	var (
		aggregated []domain.CandidateRef
		reasons    []string
		fatal      int
		degraded   int
	)

	for _, source := range s.sources {
		strategy, err := s.registry.Resolve(source)
		if err != nil {
			return ports.ListResult{Outcome: ports.ListFatal, Reason: err.Error()}
		}

		remaining := 0
		if max > 0 {
			remaining = max - len(aggregated)
			if remaining <= 0 {
				break
			}
		}

		result := strategy.List(ctx, scanner.Request{Window: window, Max: remaining, Extended: s.extended})
		s.debug("source listed", "source", source, "outcome", result.Outcome, "count", len(result.Candidates))

		switch result.Outcome {
		case ports.ListFatal:
			fatal++
			reasons = append(reasons, fmt.Sprintf("%s: %s", source, result.Reason))
		case ports.ListDegraded:
			degraded++
			reasons = append(reasons, fmt.Sprintf("%s: %s", source, result.Reason))
			aggregated = append(aggregated, result.Candidates...)
		default:
			aggregated = append(aggregated, result.Candidates...)
		}
	}

	reason := strings.Join(reasons, "; ")
	switch {
	case fatal == len(s.sources):
		return ports.ListResult{Outcome: ports.ListFatal, Reason: reason}
	case fatal > 0 || degraded > 0:
		return ports.ListResult{Candidates: aggregated, Outcome: ports.ListDegraded, Reason: reason}
	default:
		return ports.ListResult{Candidates: aggregated, Outcome: ports.ListOK}
	}
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// DetailRouter dispatches detail fetches to the strategy owning each
// candidate's source.
type DetailRouter struct {
	fetchers map[domain.Source]ports.DetailFetcher
}

var _ ports.DetailFetcher = (*DetailRouter)(nil)

// NewDetailRouter builds an empty router.
func NewDetailRouter() *DetailRouter {
	return &DetailRouter{fetchers: map[domain.Source]ports.DetailFetcher{}}
}

// Register binds a fetcher to a source.
func (d *DetailRouter) Register(source domain.Source, fetcher ports.DetailFetcher) {
	d.fetchers[source] = fetcher
}

// FetchDetail forwards to the fetcher registered for the candidate's source.
func (d *DetailRouter) FetchDetail(ctx context.Context, ref domain.CandidateRef) (string, time.Time, error) {
	fetcher, ok := d.fetchers[ref.Source]
	if !ok {
		return "", time.Time{}, fmt.Errorf("no detail fetcher for source %s", ref.Source)
	}
	return fetcher.FetchDetail(ctx, ref)
}

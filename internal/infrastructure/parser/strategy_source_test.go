package parser

import (
	"context"
	"testing"
	"time"

	"newsradar/internal/domain"
	"newsradar/internal/ports"
	"newsradar/internal/scanner"
)

type stubScanner struct {
	source domain.Source
	result ports.ListResult
}

func (s stubScanner) Source() domain.Source { return s.source }

func (s stubScanner) List(_ context.Context, req scanner.Request) ports.ListResult {
	result := s.result
	if req.Max > 0 && len(result.Candidates) > req.Max {
		result.Candidates = result.Candidates[:req.Max]
	}
	return result
}

func candidates(source domain.Source, n int) []domain.CandidateRef {
	refs := make([]domain.CandidateRef, n)
	for i := range refs {
		refs[i] = domain.CandidateRef{
			URL:    string(source) + "/item",
			Title:  "title",
			Source: source,
		}
	}
	return refs
}

func TestStrategySourceAggregates(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(stubScanner{domain.SourceCrypto, ports.ListResult{Candidates: candidates(domain.SourceCrypto, 2), Outcome: ports.ListOK}})
	reg.Register(stubScanner{domain.SourceHKStocks, ports.ListResult{Candidates: candidates(domain.SourceHKStocks, 3), Outcome: ports.ListOK}})

	src := NewStrategySource(reg, []domain.Source{domain.SourceCrypto, domain.SourceHKStocks}, false, nil)
	result := src.ListCandidates(context.Background(), time.Hour, 0)

	if result.Outcome != ports.ListOK {
		t.Fatalf("expected OK, got %v", result.Outcome)
	}
	if len(result.Candidates) != 5 {
		t.Fatalf("expected 5 aggregated candidates, got %d", len(result.Candidates))
	}
}

func TestStrategySourceRespectsMaxAcrossSources(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(stubScanner{domain.SourceCrypto, ports.ListResult{Candidates: candidates(domain.SourceCrypto, 4), Outcome: ports.ListOK}})
	reg.Register(stubScanner{domain.SourceHKStocks, ports.ListResult{Candidates: candidates(domain.SourceHKStocks, 4), Outcome: ports.ListOK}})

	src := NewStrategySource(reg, []domain.Source{domain.SourceCrypto, domain.SourceHKStocks}, false, nil)
	result := src.ListCandidates(context.Background(), time.Hour, 5)

	if len(result.Candidates) != 5 {
		t.Fatalf("expected cap at 5 candidates, got %d", len(result.Candidates))
	}
}

func TestStrategySourceFoldsOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		crypto   ports.ListResult
		hkstocks ports.ListResult
		want     ports.ListOutcome
		wantLen  int
	}{
		{
			name:     "one fatal one ok is degraded",
			crypto:   ports.ListResult{Outcome: ports.ListFatal, Reason: "down"},
			hkstocks: ports.ListResult{Candidates: candidates(domain.SourceHKStocks, 2), Outcome: ports.ListOK},
			want:     ports.ListDegraded,
			wantLen:  2,
		},
		{
			name:     "all fatal is fatal",
			crypto:   ports.ListResult{Outcome: ports.ListFatal, Reason: "down"},
			hkstocks: ports.ListResult{Outcome: ports.ListFatal, Reason: "down"},
			want:     ports.ListFatal,
			wantLen:  0,
		},
		{
			name:     "degraded taints",
			crypto:   ports.ListResult{Candidates: candidates(domain.SourceCrypto, 1), Outcome: ports.ListDegraded, Reason: "partial"},
			hkstocks: ports.ListResult{Candidates: candidates(domain.SourceHKStocks, 1), Outcome: ports.ListOK},
			want:     ports.ListDegraded,
			wantLen:  2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reg := scanner.NewRegistry()
			reg.Register(stubScanner{domain.SourceCrypto, tc.crypto})
			reg.Register(stubScanner{domain.SourceHKStocks, tc.hkstocks})

			src := NewStrategySource(reg, []domain.Source{domain.SourceCrypto, domain.SourceHKStocks}, false, nil)
			result := src.ListCandidates(context.Background(), time.Hour, 0)

			if result.Outcome != tc.want {
				t.Fatalf("outcome: got %v, want %v (%s)", result.Outcome, tc.want, result.Reason)
			}
			if len(result.Candidates) != tc.wantLen {
				t.Fatalf("candidates: got %d, want %d", len(result.Candidates), tc.wantLen)
			}
		})
	}
}

func TestDetailRouter(t *testing.T) {
	t.Parallel()

	router := NewDetailRouter()
	feed := NewFeedScanner(nil, nil)
	router.Register(domain.SourceCrypto, feed)

	_, _, err := router.FetchDetail(context.Background(), domain.CandidateRef{Source: domain.SourceHKStocks})
	if err == nil {
		t.Fatal("expected error for unregistered source")
	}
}

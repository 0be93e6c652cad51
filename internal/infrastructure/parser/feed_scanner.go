package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"newsradar/internal/domain"
	"newsradar/internal/ports"
	"newsradar/internal/scanner"
)

// FeedScanner lists crypto channel news through RSS bridge feeds. Feed items
// arrive with their bodies inline, so the detail step is served from a cache
// filled during listing.
type FeedScanner struct {
	parser   *gofeed.Parser
	feedURLs []string
	logger   *slog.Logger

	mu     sync.Mutex
	bodies map[string]cachedDetail
}

type cachedDetail struct {
	body        string
	publishedAt time.Time
}

var _ scanner.Scanner = (*FeedScanner)(nil)
var _ ports.DetailFetcher = (*FeedScanner)(nil)

// NewFeedScanner wires the feed bridge endpoints.
func NewFeedScanner(feedURLs []string, logger *slog.Logger) *FeedScanner {
	return &FeedScanner{
		parser:   gofeed.NewParser(),
		feedURLs: feedURLs,
		logger:   logger,
		bodies:   map[string]cachedDetail{},
	}
}

// Source identifies the strategy inside the registry.
func (f *FeedScanner) Source() domain.Source {
	return domain.SourceCrypto
}

// List walks every configured feed. One broken feed degrades the result; all
// feeds failing with nothing collected is fatal.
func (f *FeedScanner) List(ctx context.Context, req scanner.Request) ports.ListResult {
	if len(f.feedURLs) == 0 {
		return ports.ListResult{Outcome: ports.ListFatal, Reason: "no feed urls configured"}
	}

	cutoff := time.Time{}
	if req.Window > 0 {
		cutoff = time.Now().UTC().Add(-req.Window)
	}

	var (
		refs     []domain.CandidateRef
		failures []string
	)

	for _, feedURL := range f.feedURLs {
		feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			f.warn("feed fetch failed", "feed", feedURL, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", feedURL, err))
			continue
		}

		for _, item := range feed.Items {
			ref, ok := f.toCandidate(item)
			if !ok {
				continue
			}
			if !cutoff.IsZero() && !ref.PublishedAt.IsZero() && ref.PublishedAt.Before(cutoff) {
				continue
			}
			refs = append(refs, ref)
			if req.Max > 0 && len(refs) >= req.Max {
				return ports.ListResult{Candidates: refs, Outcome: ports.ListOK}
			}
		}
	}

	switch {
	case len(failures) == len(f.feedURLs):
		return ports.ListResult{Outcome: ports.ListFatal, Reason: strings.Join(failures, "; ")}
	case len(failures) > 0:
		return ports.ListResult{
			Candidates: refs,
			Outcome:    ports.ListDegraded,
			Reason:     strings.Join(failures, "; "),
		}
	default:
		return ports.ListResult{Candidates: refs, Outcome: ports.ListOK}
	}
}

func (f *FeedScanner) toCandidate(item *gofeed.Item) (domain.CandidateRef, bool) {
	link := strings.TrimSpace(item.Link)
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return domain.CandidateRef{}, false
	}

	publishedAt := time.Time{}
	if item.PublishedParsed != nil {
		publishedAt = item.PublishedParsed.UTC()
	}

	body := strings.TrimSpace(item.Content)
	if body == "" {
		body = strings.TrimSpace(item.Description)
	}

	f.mu.Lock()
	f.bodies[link] = cachedDetail{body: body, publishedAt: publishedAt}
	f.mu.Unlock()

	return domain.CandidateRef{
		URL:          link,
		Title:        title,
		Source:       domain.SourceCrypto,
		DiscoveredAt: time.Now().UTC(),
		PublishedAt:  publishedAt,
	}, true
}

// FetchDetail serves the body cached during listing. A miss (item seen in a
// previous process run, never this one) is a parse failure for that item.
func (f *FeedScanner) FetchDetail(_ context.Context, ref domain.CandidateRef) (string, time.Time, error) {
	f.mu.Lock()
	detail, ok := f.bodies[ref.URL]
	f.mu.Unlock()

	if !ok || detail.body == "" {
		return "", time.Time{}, fmt.Errorf("%s: %w", ref.URL, ErrNoContent)
	}

	publishedAt := detail.publishedAt
	if publishedAt.IsZero() {
		publishedAt = ref.DiscoveredAt
	}

	return detail.body, publishedAt, nil
}

func (f *FeedScanner) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}

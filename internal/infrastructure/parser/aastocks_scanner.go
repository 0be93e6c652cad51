package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsradar/internal/config"
	"newsradar/internal/domain"
	"newsradar/internal/ports"
	"newsradar/internal/scanner"
)

// ErrNoContent marks a detail page whose expected structure is missing. It
// wraps the shared parse sentinel so callers can classify it.
var ErrNoContent = fmt.Errorf("%w: detail page has no recognizable content", domain.ErrParse)

var (
	// AAStocks embeds timestamps in inline scripts as dt:'2025/11/12 23:45'.
	scriptTimeExpr = regexp.MustCompile(`dt:\s*['"](\d{4}/\d{1,2}/\d{1,2}\s+\d{1,2}:\d{2})['"]`)
	pageTimeExpr   = regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})\s+(\d{1,2}):(\d{2})`)
)

// AaStocksScanner lists and fetches Hong Kong stock-market news from an
// AAStocks-style summary page.
type AaStocksScanner struct {
	client  *http.Client
	cfg     config.HKStocksConfig
	browser *BrowserLister
	logger  *slog.Logger
}

var _ scanner.Scanner = (*AaStocksScanner)(nil)
var _ ports.DetailFetcher = (*AaStocksScanner)(nil)

// NewAaStocksScanner wires an HTTP client and an optional browser lister for
// the extended strategy. A nil client gets a 30s-timeout default.
func NewAaStocksScanner(client *http.Client, cfg config.HKStocksConfig, browser *BrowserLister, logger *slog.Logger) *AaStocksScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &AaStocksScanner{client: client, cfg: cfg, browser: browser, logger: logger}
}

// Source identifies the strategy inside the registry.
func (a *AaStocksScanner) Source() domain.Source {
	return domain.SourceHKStocks
}

// List returns candidate references from the summary page, bounded by the
// request window where the listing exposes timestamps. The extended strategy
// reveals more items via browser scrolling; when it fails it degrades to
// whatever the basic fetch can see instead of aborting.
func (a *AaStocksScanner) List(ctx context.Context, req scanner.Request) ports.ListResult {
	cutoff := windowCutoff(req.Window)

	if req.Extended && a.browser != nil {
		refs, err := a.browser.List(ctx, req.Max)
		if err == nil {
			return ports.ListResult{Candidates: capRefs(dropStale(refs, cutoff), req.Max), Outcome: ports.ListOK}
		}

		a.warn("browser listing failed, degrading to basic fetch", "error", err)
		basic, basicErr := a.listBasic(ctx)
		if basicErr != nil {
			return ports.ListResult{Outcome: ports.ListFatal, Reason: basicErr.Error()}
		}
		return ports.ListResult{
			Candidates: capRefs(dropStale(basic, cutoff), req.Max),
			Outcome:    ports.ListDegraded,
			Reason:     err.Error(),
		}
	}

	refs, err := a.listBasic(ctx)
	if err != nil {
		return ports.ListResult{Outcome: ports.ListFatal, Reason: err.Error()}
	}
	return ports.ListResult{Candidates: capRefs(dropStale(refs, cutoff), req.Max), Outcome: ports.ListOK}
}

func (a *AaStocksScanner) listBasic(ctx context.Context) ([]domain.CandidateRef, error) {
	doc, err := a.fetchDocument(ctx, a.cfg.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("listing page: %w", err)
	}
	return extractCandidates(doc, a.cfg.DetailHostBase), nil
}

// FetchDetail retrieves the full body and publish timestamp for one
// candidate. A page without the expected content containers is a parse
// failure for that single item.
func (a *AaStocksScanner) FetchDetail(ctx context.Context, ref domain.CandidateRef) (string, time.Time, error) {
	doc, err := a.fetchDocument(ctx, ref.URL)
	if err != nil {
		return "", time.Time{}, err
	}

	body := extractBody(doc)
	if body == "" {
		return "", time.Time{}, fmt.Errorf("%s: %w", ref.URL, ErrNoContent)
	}

	publishedAt := ref.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = extractPublishedAt(doc)
	}

	return body, publishedAt, nil
}

func (a *AaStocksScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "newsradar/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", errors.Join(domain.ErrTransientFetch, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: source returned %s", domain.ErrTransientFetch, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", errors.Join(domain.ErrParse, err))
	}

	return doc, nil
}

func (a *AaStocksScanner) warn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}

// extractCandidates pulls news anchors out of a rendered or static summary
// page. Shared by the basic fetch and the browser lister.
func extractCandidates(doc *goquery.Document, hostBase string) []domain.CandidateRef {
	now := time.Now().UTC()
	seen := map[string]struct{}{}
	var refs []domain.CandidateRef

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !strings.Contains(href, "/news/aafn-con/") {
			return
		}

		fullURL := href
		if !strings.HasPrefix(href, "http") {
			base := strings.TrimSuffix(hostBase, "/")
			if strings.HasPrefix(href, "/") {
				fullURL = base + href
			} else {
				fullURL = base + "/" + href
			}
		}

		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}
		if _, ok := seen[fullURL]; ok {
			return
		}
		seen[fullURL] = struct{}{}

		refs = append(refs, domain.CandidateRef{
			URL:          fullURL,
			Title:        title,
			Source:       domain.SourceHKStocks,
			DiscoveredAt: now,
			PublishedAt:  listingTimestamp(link),
		})
	})

	return refs
}

// listingTimestamp walks up from a news anchor looking for the inline script
// that carries the item's publish time.
func listingTimestamp(link *goquery.Selection) time.Time {
	node := link
	for depth := 0; depth < 10; depth++ {
		node = node.Parent()
		if node.Length() == 0 {
			break
		}
		script := node.Find("div.newstime4 script").First()
		if script.Length() == 0 {
			continue
		}
		if ts, ok := parseScriptTime(script.Text()); ok {
			return ts
		}
	}
	return time.Time{}
}

func parseScriptTime(text string) (time.Time, bool) {
	match := scriptTimeExpr.FindStringSubmatch(text)
	if match == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse("2006/1/2 15:04", match[1])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func extractBody(doc *goquery.Document) string {
	for _, id := range []string{"#spanContent", "#divContentContainer"} {
		el := doc.Find(id).First()
		if el.Length() == 0 {
			continue
		}
		var lines []string
		for _, line := range strings.Split(el.Text(), "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
		if body := strings.Join(lines, "\n"); body != "" {
			return body
		}
	}

	// Fall back to substantial paragraphs when the containers are absent.
	var paragraphs []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if len(text) > 20 {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n\n")
}

func extractPublishedAt(doc *goquery.Document) time.Time {
	var found time.Time

	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		if ts, ok := parseScriptTime(script.Text()); ok && plausible(ts) {
			found = ts
			return false
		}
		return true
	})
	if !found.IsZero() {
		return found
	}

	if content, ok := doc.Find(`meta[name="aa-update"]`).First().Attr("content"); ok {
		if ts, err := time.Parse("2006-01-02 15:04:05", content); err == nil && plausible(ts) {
			return ts
		}
	}

	if match := pageTimeExpr.FindString(doc.Text()); match != "" {
		for _, layout := range []string{"2006/1/2 15:04", "2006-1-2 15:04"} {
			if ts, err := time.Parse(layout, match); err == nil && plausible(ts) {
				return ts
			}
		}
	}

	return time.Now().UTC()
}

// plausible rejects future dates and pre-2020 garbage the regexes can match.
func plausible(ts time.Time) bool {
	return ts.Year() >= 2020 && !ts.After(time.Now().Add(time.Hour))
}

func windowCutoff(window time.Duration) time.Time {
	if window <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(-window)
}

// dropStale removes candidates whose listing timestamp falls before the
// cutoff. Candidates without a listing timestamp pass through; the pipeline
// re-checks them once the detail page reveals a publish time.
func dropStale(refs []domain.CandidateRef, cutoff time.Time) []domain.CandidateRef {
	if cutoff.IsZero() {
		return refs
	}
	var kept []domain.CandidateRef
	for _, ref := range refs {
		if !ref.PublishedAt.IsZero() && ref.PublishedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, ref)
	}
	return kept
}

func capRefs(refs []domain.CandidateRef, max int) []domain.CandidateRef {
	if max > 0 && len(refs) > max {
		return refs[:max]
	}
	return refs
}

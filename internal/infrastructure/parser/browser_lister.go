package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"newsradar/internal/config"
	"newsradar/internal/domain"
)

// BrowserLister reveals more listing items than a static fetch by scrolling
// a headless Chrome session to the bottom of the page until item growth
// stalls or limits are hit.
type BrowserLister struct {
	cfg    config.HKStocksConfig
	logger *slog.Logger

	// stepTimeout bounds every individual browser action.
	stepTimeout time.Duration
}

// NewBrowserLister builds the extended listing strategy.
func NewBrowserLister(cfg config.HKStocksConfig, logger *slog.Logger) *BrowserLister {
	return &BrowserLister{
		cfg:         cfg,
		logger:      logger,
		stepTimeout: 30 * time.Second,
	}
}

// List navigates to the summary page, then alternates between harvesting the
// rendered HTML and scrolling for more. Errors after the first harvest are
// not fatal: the caller gets whatever was gathered so far.
func (b *BrowserLister) List(ctx context.Context, max int) ([]domain.CandidateRef, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(
		ctx,
		append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("blink-settings", "imagesEnabled=false"),
			chromedp.UserAgent("newsradar/1.0"),
		)...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := b.run(browserCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("start browser session: %w", err)
	}

	if err := b.run(browserCtx, chromedp.Navigate(b.cfg.ListingURL)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", b.cfg.ListingURL, err)
	}

	maxScrolls := b.cfg.MaxScrolls
	if maxScrolls <= 0 {
		maxScrolls = 50
	}
	scrollPause := time.Duration(b.cfg.ScrollStepMs) * time.Millisecond
	if scrollPause <= 0 {
		scrollPause = 500 * time.Millisecond
	}

	var (
		refs      []domain.CandidateRef
		lastCount int
		stalled   int
	)

	for scroll := 0; scroll < maxScrolls; scroll++ {
		harvested, err := b.harvest(browserCtx)
		if err != nil {
			// A failed step mid-scroll still yields the items already seen.
			b.warn("harvest step failed, returning partial listing", "scroll", scroll, "error", err)
			if len(refs) > 0 {
				return refs, nil
			}
			return nil, err
		}
		refs = harvested

		if max > 0 && len(refs) >= max {
			return refs[:max], nil
		}

		if len(refs) == lastCount {
			stalled++
			if stalled >= 3 {
				break
			}
		} else {
			stalled = 0
		}
		lastCount = len(refs)

		err = b.run(browserCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(scrollPause),
		)
		if err != nil {
			b.warn("scroll step failed, returning partial listing", "scroll", scroll, "error", err)
			break
		}
	}

	return refs, nil
}

func (b *BrowserLister) harvest(browserCtx context.Context) ([]domain.CandidateRef, error) {
	var html string
	if err := b.run(browserCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return nil, fmt.Errorf("read rendered page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}

	return extractCandidates(doc, b.cfg.DetailHostBase), nil
}

func (b *BrowserLister) run(browserCtx context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(browserCtx, b.stepTimeout)
	defer cancel()
	return chromedp.Run(stepCtx, actions...)
}

func (b *BrowserLister) warn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

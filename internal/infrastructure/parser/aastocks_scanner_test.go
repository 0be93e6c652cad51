package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsradar/internal/config"
	"newsradar/internal/domain"
	"newsradar/internal/ports"
	"newsradar/internal/scanner"
)

const listingHTML = `
<div class="newshead4">
  <a href="/tc/stocks/news/aafn-con/NOW.1483265/latest">騰訊第三季業績勝預期</a>
  <div class="newstime4"><script>ts({dt:'2025/11/12 23:45'});</script></div>
</div>
<div class="newshead4">
  <a href="http://www.aastocks.com/tc/stocks/news/aafn-con/NOW.1483266/latest">港交所宣布新措施</a>
</div>
<a href="/tc/stocks/about">not news</a>
`

func TestExtractCandidates(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingHTML))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	refs := extractCandidates(doc, "http://www.aastocks.com")
	if len(refs) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(refs))
	}

	first := refs[0]
	if first.URL != "http://www.aastocks.com/tc/stocks/news/aafn-con/NOW.1483265/latest" {
		t.Errorf("unexpected url: %s", first.URL)
	}
	if first.Title != "騰訊第三季業績勝預期" {
		t.Errorf("unexpected title: %s", first.Title)
	}
	if first.Source != domain.SourceHKStocks {
		t.Errorf("unexpected source: %s", first.Source)
	}

	wantTime := time.Date(2025, time.November, 12, 23, 45, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(wantTime) {
		t.Errorf("listing timestamp: got %v, want %v", first.PublishedAt, wantTime)
	}

	if !refs[1].PublishedAt.IsZero() {
		t.Errorf("second candidate has no listing timestamp, got %v", refs[1].PublishedAt)
	}
}

func TestExtractCandidatesDedupes(t *testing.T) {
	t.Parallel()

	html := `
	<a href="/news/aafn-con/NOW.1/x">Same story</a>
	<a href="/news/aafn-con/NOW.1/x">Same story</a>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	refs := extractCandidates(doc, "http://www.aastocks.com")
	if len(refs) != 1 {
		t.Fatalf("expected dedup to 1 candidate, got %d", len(refs))
	}
}

func TestListBasic(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	sc := NewAaStocksScanner(server.Client(), config.HKStocksConfig{
		ListingURL:     server.URL,
		DetailHostBase: server.URL,
	}, nil, nil)

	result := sc.List(context.Background(), scanner.Request{Max: 1})
	if result.Outcome != ports.ListOK {
		t.Fatalf("expected OK outcome, got %v (%s)", result.Outcome, result.Reason)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("max=1 must cap candidates, got %d", len(result.Candidates))
	}
}

func TestListDropsCandidatesOutsideWindow(t *testing.T) {
	t.Parallel()

	fresh := time.Now().UTC().Add(-time.Hour).Format("2006/1/2 15:04")
	html := `
	<div class="newshead4">
	  <a href="/news/aafn-con/NOW.1/stale">Stale story</a>
	  <div class="newstime4"><script>ts({dt:'2024/1/2 9:00'});</script></div>
	</div>
	<div class="newshead4">
	  <a href="/news/aafn-con/NOW.2/fresh">Fresh story</a>
	  <div class="newstime4"><script>ts({dt:'` + fresh + `'});</script></div>
	</div>
	<div class="newshead4">
	  <a href="/news/aafn-con/NOW.3/undated">Undated story</a>
	</div>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(html))
	}))
	defer server.Close()

	sc := NewAaStocksScanner(server.Client(), config.HKStocksConfig{
		ListingURL:     server.URL,
		DetailHostBase: server.URL,
	}, nil, nil)

	result := sc.List(context.Background(), scanner.Request{Window: 24 * time.Hour})
	if result.Outcome != ports.ListOK {
		t.Fatalf("expected OK outcome, got %v (%s)", result.Outcome, result.Reason)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("24h window must drop the stale candidate, got %d candidates", len(result.Candidates))
	}
	for _, ref := range result.Candidates {
		if strings.Contains(ref.URL, "stale") {
			t.Fatalf("stale candidate %s returned despite 24h window", ref.URL)
		}
	}

	// Without a window everything passes through.
	result = sc.List(context.Background(), scanner.Request{})
	if len(result.Candidates) != 3 {
		t.Fatalf("unbounded listing returned %d candidates, want 3", len(result.Candidates))
	}
}

func TestListFatalWhenUnreachable(t *testing.T) {
	t.Parallel()

	sc := NewAaStocksScanner(&http.Client{Timeout: 100 * time.Millisecond}, config.HKStocksConfig{
		ListingURL:     "http://127.0.0.1:1/unreachable",
		DetailHostBase: "http://127.0.0.1:1",
	}, nil, nil)

	result := sc.List(context.Background(), scanner.Request{})
	if result.Outcome != ports.ListFatal {
		t.Fatalf("expected Fatal outcome, got %v", result.Outcome)
	}
	if result.Reason == "" {
		t.Fatal("fatal result must carry a reason")
	}
}

func TestFetchDetail(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`
		<html><head>
		  <script>var x = {dt:'2025/11/12 9:30'};</script>
		</head><body>
		  <div id="spanContent">
		    第一段內容。
		    第二段內容。
		  </div>
		</body></html>`))
	}))
	defer server.Close()

	sc := NewAaStocksScanner(server.Client(), config.HKStocksConfig{DetailHostBase: server.URL}, nil, nil)

	body, publishedAt, err := sc.FetchDetail(context.Background(), domain.CandidateRef{
		URL:    server.URL + "/news/aafn-con/NOW.1/x",
		Title:  "t",
		Source: domain.SourceHKStocks,
	})
	if err != nil {
		t.Fatalf("FetchDetail error: %v", err)
	}

	if !strings.Contains(body, "第一段內容。") || !strings.Contains(body, "第二段內容。") {
		t.Fatalf("unexpected body: %q", body)
	}

	want := time.Date(2025, time.November, 12, 9, 30, 0, 0, time.UTC)
	if !publishedAt.Equal(want) {
		t.Errorf("published at: got %v, want %v", publishedAt, want)
	}
}

func TestFetchDetailListingTimestampWins(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div id="spanContent">body text</div>
		<script>var x = {dt:'2025/11/12 9:30'};</script>`))
	}))
	defer server.Close()

	sc := NewAaStocksScanner(server.Client(), config.HKStocksConfig{}, nil, nil)

	listed := time.Date(2025, time.November, 11, 8, 0, 0, 0, time.UTC)
	_, publishedAt, err := sc.FetchDetail(context.Background(), domain.CandidateRef{
		URL:         server.URL,
		PublishedAt: listed,
	})
	if err != nil {
		t.Fatalf("FetchDetail error: %v", err)
	}
	if !publishedAt.Equal(listed) {
		t.Errorf("listing timestamp must win: got %v, want %v", publishedAt, listed)
	}
}

func TestFetchDetailParseError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><span>nav</span></body></html>`))
	}))
	defer server.Close()

	sc := NewAaStocksScanner(server.Client(), config.HKStocksConfig{}, nil, nil)

	_, _, err := sc.FetchDetail(context.Background(), domain.CandidateRef{URL: server.URL})
	if err == nil {
		t.Fatal("expected parse error for contentless page")
	}
	if !errors.Is(err, domain.ErrParse) {
		t.Fatalf("error %v should classify as parse failure", err)
	}
}

func TestParseScriptTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"single digit fields", `ts({dt:'2025/1/2 9:05'});`, true},
		{"double quotes", `ts({dt:"2025/11/12 23:45"});`, true},
		{"no timestamp", `ts({other:'x'});`, false},
	}

	for _, tc := range tests {
		if _, ok := parseScriptTime(tc.text); ok != tc.ok {
			t.Errorf("%s: got ok=%v, want %v", tc.name, ok, tc.ok)
		}
	}
}

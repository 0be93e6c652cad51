package ports

import (
	"context"
	"time"

	"newsradar/internal/domain"
)

// ListOutcome tags how a candidate listing ended.
type ListOutcome int

const (
	// ListOK means the source was read cleanly.
	ListOK ListOutcome = iota
	// ListDegraded means a partial result: some candidates were gathered but
	// the strategy hit a recoverable failure (e.g. browser automation died).
	ListDegraded
	// ListFatal means the source could not be reached at all.
	ListFatal
)

// ListResult carries candidates plus an outcome tag, so callers can tell
// "got partial data" apart from "got nothing and why".
type ListResult struct {
	Candidates []domain.CandidateRef
	Outcome    ListOutcome
	Reason     string
}

// CandidateLister pulls candidate references from an upstream source.
type CandidateLister interface {
	ListCandidates(ctx context.Context, window time.Duration, max int) ListResult
}

// DetailFetcher retrieves the full body and timestamp for one candidate.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, ref domain.CandidateRef) (body string, publishedAt time.Time, err error)
}

// Analyzer extracts keywords and a category label from item text. It is
// total: internal failures reduce to empty keywords and the fallback
// category, never an error.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (keywords []string, category string)
}

// NewsRepository persists items and answers the search/trend/subscription
// queries the web and push layers need.
type NewsRepository interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, item domain.NewsItem) (domain.UpsertOutcome, error)

	Search(ctx context.Context, keyword string, source domain.Source, since time.Time, limit int) ([]domain.NewsItem, error)
	Trend(ctx context.Context, keyword string, since time.Time) ([]domain.TrendPoint, error)
	HotDates(ctx context.Context, keyword string, topN int) ([]domain.TrendPoint, error)
	Stats(ctx context.Context) (total int64, bySource map[domain.Source]int64, categories int64, err error)

	CreateSubscription(ctx context.Context, sub domain.Subscription) (int64, error)
	Subscriptions(ctx context.Context, userID string) ([]domain.Subscription, error)
	ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	DeactivateSubscription(ctx context.Context, id int64) (bool, error)

	ItemsSince(ctx context.Context, since time.Time) ([]domain.NewsItem, error)
	AlreadyPushed(ctx context.Context, subscriptionID int64, identityKey string) (bool, error)
	RecordPush(ctx context.Context, subscriptionID int64, identityKey string) error
}

// Notifier delivers one push message to a chat.
type Notifier interface {
	Send(ctx context.Context, chatID, text string) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

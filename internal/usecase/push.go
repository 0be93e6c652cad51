package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"newsradar/internal/domain"
	"newsradar/internal/ports"
)

// PushDeps wires the adapters of the subscription push loop.
type PushDeps struct {
	Repository ports.NewsRepository
	Notifier   ports.Notifier
	Scheduler  ports.Scheduler
	Logger     *slog.Logger
}

// PushOptions tune one push service instance.
type PushOptions struct {
	// MaxPerUser caps how many messages a single user receives per cycle.
	MaxPerUser int
	// Lookback bounds the first cycle, before a previous check time exists.
	Lookback time.Duration
}

// PushService periodically matches freshly stored items against active
// keyword subscriptions and delivers the matches over Telegram. The push
// history table keeps redelivery out even across restarts.
type PushService struct {
	repository ports.NewsRepository
	notifier   ports.Notifier
	scheduler  ports.Scheduler
	logger     *slog.Logger
	opts       PushOptions

	mu        sync.Mutex
	lastCheck time.Time
}

// NewPushService constructs the push loop.
func NewPushService(deps PushDeps, opts PushOptions) *PushService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxPerUser <= 0 {
		opts.MaxPerUser = 50
	}
	if opts.Lookback <= 0 {
		opts.Lookback = time.Hour
	}
	return &PushService{
		repository: deps.Repository,
		notifier:   deps.Notifier,
		scheduler:  deps.Scheduler,
		logger:     logger.With("component", "push"),
		opts:       opts,
	}
}

// Start runs delivery cycles on the scheduler until the context ends.
func (p *PushService) Start(ctx context.Context) error {
	if p.scheduler == nil {
		return fmt.Errorf("push service has no scheduler")
	}
	return p.scheduler.Start(ctx, func(t time.Time) {
		if err := p.Deliver(ctx); err != nil {
			p.logger.Error("push cycle failed", "error", err)
		}
	})
}

// Stop halts the scheduler.
func (p *PushService) Stop(ctx context.Context) error {
	if p.scheduler == nil {
		return nil
	}
	return p.scheduler.Stop(ctx)
}

// Deliver runs one push cycle: collect items stored since the previous
// cycle, match them against active subscriptions, send what was not sent
// before. Send failures skip the history record so the item is retried on
// the next cycle.
func (p *PushService) Deliver(ctx context.Context) error {
	since := p.advanceCheckpoint()

	items, err := p.repository.ItemsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("load recent items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	subs, err := p.repository.ActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	sentPerUser := map[string]int{}
	for _, sub := range subs {
		for _, item := range items {
			if sentPerUser[sub.UserID] >= p.opts.MaxPerUser {
				break
			}
			if !matches(item, sub.Keyword) {
				continue
			}

			pushed, err := p.repository.AlreadyPushed(ctx, sub.ID, item.Key())
			if err != nil {
				return fmt.Errorf("check push history: %w", err)
			}
			if pushed {
				continue
			}

			if err := p.notifier.Send(ctx, sub.TelegramChatID, formatPush(sub.Keyword, item)); err != nil {
				p.logger.Warn("send failed",
					"user", sub.UserID,
					"keyword", sub.Keyword,
					"url", item.URL,
					"error", err)
				continue
			}
			if err := p.repository.RecordPush(ctx, sub.ID, item.Key()); err != nil {
				return fmt.Errorf("record push: %w", err)
			}
			sentPerUser[sub.UserID]++
		}
	}

	p.logger.Info("push cycle complete", "items", len(items), "subscriptions", len(subs))
	return nil
}

func (p *PushService) advanceCheckpoint() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	since := p.lastCheck
	if since.IsZero() {
		since = time.Now().Add(-p.opts.Lookback)
	}
	p.lastCheck = time.Now()
	return since
}

func matches(item domain.NewsItem, keyword string) bool {
	needle := strings.ToLower(keyword)
	if needle == "" {
		return false
	}
	if strings.Contains(strings.ToLower(item.Title), needle) ||
		strings.Contains(strings.ToLower(item.Body), needle) {
		return true
	}
	for _, kw := range item.Keywords {
		if strings.ToLower(kw) == needle {
			return true
		}
	}
	return false
}

func formatPush(keyword string, item domain.NewsItem) string {
	return fmt.Sprintf("*%s*\n%s\n\nmatched: %s", item.Title, item.URL, keyword)
}

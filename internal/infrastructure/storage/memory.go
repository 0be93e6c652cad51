package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"newsradar/internal/domain"
	"newsradar/internal/ports"
)

// MemoryRepository keeps everything in process memory. It backs dry runs and
// tests; nothing survives a restart.
type MemoryRepository struct {
	mu     sync.Mutex
	items  map[string]domain.NewsItem
	subs   []domain.Subscription
	nextID int64
	pushed map[int64]map[string]bool
}

var _ ports.NewsRepository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:  map[string]domain.NewsItem{},
		nextID: 1,
		pushed: map[int64]map[string]bool{},
	}
}

func (r *MemoryRepository) EnsureSchema(ctx context.Context) error {
	return nil
}

// Upsert applies the same resolution rules as the Postgres layer: new key
// inserts, a strictly longer body updates, everything else is a skip.
func (r *MemoryRepository) Upsert(ctx context.Context, item domain.NewsItem) (domain.UpsertOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := item.Key()
	now := time.Now()

	existing, ok := r.items[key]
	if !ok {
		item.CreatedAt = now
		item.UpdatedAt = now
		r.items[key] = item
		return domain.OutcomeInserted, nil
	}
	if len(item.Body) > len(existing.Body) {
		existing.Body = item.Body
		existing.Category = item.Category
		existing.Keywords = item.Keywords
		existing.UpdatedAt = now
		r.items[key] = existing
		return domain.OutcomeUpdated, nil
	}
	return domain.OutcomeSkippedDuplicate, nil
}

func (r *MemoryRepository) Search(ctx context.Context, keyword string, source domain.Source, since time.Time, limit int) ([]domain.NewsItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(keyword)
	var items []domain.NewsItem
	for _, item := range r.items {
		if needle != "" &&
			!strings.Contains(strings.ToLower(item.Title), needle) &&
			!strings.Contains(strings.ToLower(item.Body), needle) {
			continue
		}
		if source != "" && item.Source != source {
			continue
		}
		if !since.IsZero() && item.PublishedAt.Before(since) {
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *MemoryRepository) Trend(ctx context.Context, keyword string, since time.Time) ([]domain.TrendPoint, error) {
	points, err := r.countByDay(ctx, keyword, since)
	if err != nil {
		return nil, err
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Day.Before(points[j].Day) })
	return points, nil
}

func (r *MemoryRepository) HotDates(ctx context.Context, keyword string, topN int) ([]domain.TrendPoint, error) {
	points, err := r.countByDay(ctx, keyword, time.Time{})
	if err != nil {
		return nil, err
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Count != points[j].Count {
			return points[i].Count > points[j].Count
		}
		return points[i].Day.After(points[j].Day)
	})
	if topN > 0 && len(points) > topN {
		points = points[:topN]
	}
	return points, nil
}

func (r *MemoryRepository) countByDay(ctx context.Context, keyword string, since time.Time) ([]domain.TrendPoint, error) {
	items, err := r.Search(ctx, keyword, "", since, 0)
	if err != nil {
		return nil, err
	}

	byDay := map[time.Time]int64{}
	for _, item := range items {
		day := item.PublishedAt.Truncate(24 * time.Hour)
		byDay[day]++
	}

	points := make([]domain.TrendPoint, 0, len(byDay))
	for day, count := range byDay {
		points = append(points, domain.TrendPoint{Day: day, Count: count})
	}
	return points, nil
}

func (r *MemoryRepository) Stats(ctx context.Context) (int64, map[domain.Source]int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bySource := map[domain.Source]int64{}
	categories := map[string]bool{}
	for _, item := range r.items {
		bySource[item.Source]++
		if item.Category != "" {
			categories[item.Category] = true
		}
	}
	return int64(len(r.items)), bySource, int64(len(categories)), nil
}

func (r *MemoryRepository) CreateSubscription(ctx context.Context, sub domain.Subscription) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub.ID = r.nextID
	r.nextID++
	sub.IsActive = true
	sub.CreatedAt = time.Now()
	r.subs = append(r.subs, sub)
	return sub.ID, nil
}

func (r *MemoryRepository) Subscriptions(ctx context.Context, userID string) ([]domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var subs []domain.Subscription
	for _, sub := range r.subs {
		if sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (r *MemoryRepository) ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var subs []domain.Subscription
	for _, sub := range r.subs {
		if sub.IsActive {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (r *MemoryRepository) DeactivateSubscription(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.subs {
		if r.subs[i].ID == id && r.subs[i].IsActive {
			r.subs[i].IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) ItemsSince(ctx context.Context, since time.Time) ([]domain.NewsItem, error) {
	return r.Search(ctx, "", "", since, 0)
}

func (r *MemoryRepository) AlreadyPushed(ctx context.Context, subscriptionID int64, identityKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushed[subscriptionID][identityKey], nil
}

func (r *MemoryRepository) RecordPush(ctx context.Context, subscriptionID int64, identityKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pushed[subscriptionID] == nil {
		r.pushed[subscriptionID] = map[string]bool{}
	}
	r.pushed[subscriptionID][identityKey] = true
	return nil
}

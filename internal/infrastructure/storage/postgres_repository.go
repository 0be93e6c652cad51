package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"newsradar/internal/domain"
	"newsradar/internal/ports"
)

const keywordSeparator = ","

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS news_items (
		id BIGSERIAL PRIMARY KEY,
		identity_key TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		url TEXT NOT NULL,
		source TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_news_items_published_at ON news_items (published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_news_items_source ON news_items (source)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		keyword TEXT NOT NULL,
		telegram_chat_id TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, keyword)
	)`,
	`CREATE TABLE IF NOT EXISTS push_history (
		id BIGSERIAL PRIMARY KEY,
		subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
		identity_key TEXT NOT NULL,
		pushed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (subscription_id, identity_key)
	)`,
}

// PostgresRepository persists news items, subscriptions, and push history.
type PostgresRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.NewsRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert resolves one incoming item against storage: new key means insert, a
// strictly longer body means update, anything else is a duplicate skip. The
// lookup-then-write runs inside one transaction with the row locked, so two
// workers racing on the same key serialize at the storage layer. A losing
// insert race is retried once as an update.
func (r *PostgresRepository) Upsert(ctx context.Context, item domain.NewsItem) (domain.UpsertOutcome, error) {
	outcome, err := r.upsertTx(ctx, item)
	if err != nil && isUniqueViolation(err) {
		// Another worker inserted this key between our lookup and write.
		return r.updateIfLonger(ctx, item)
	}
	return outcome, err
}

func (r *PostgresRepository) upsertTx(ctx context.Context, item domain.NewsItem) (domain.UpsertOutcome, error) {
	key := item.Key()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingLen int
	err = tx.QueryRowContext(ctx,
		`SELECT length(body) FROM news_items WHERE identity_key = $1 FOR UPDATE`, key,
	).Scan(&existingLen)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		query, args, buildErr := r.sb.Insert("news_items").
			Columns("identity_key", "title", "body", "url", "source", "category", "keywords", "published_at").
			Values(key, item.Title, item.Body, item.URL, string(item.Source),
				item.Category, joinKeywords(item.Keywords), item.PublishedAt).
			ToSql()
		if buildErr != nil {
			return 0, fmt.Errorf("build insert: %w", buildErr)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("insert %s: %w", key, err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit insert: %w", err)
		}
		return domain.OutcomeInserted, nil

	case err != nil:
		return 0, fmt.Errorf("lookup %s: %w", key, err)

	case len(item.Body) > existingLen:
		query, args, buildErr := r.sb.Update("news_items").
			Set("body", item.Body).
			Set("category", item.Category).
			Set("keywords", joinKeywords(item.Keywords)).
			Set("updated_at", sq.Expr("NOW()")).
			Where(sq.Eq{"identity_key": key}).
			ToSql()
		if buildErr != nil {
			return 0, fmt.Errorf("build update: %w", buildErr)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("update %s: %w", key, err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit update: %w", err)
		}
		return domain.OutcomeUpdated, nil

	default:
		return domain.OutcomeSkippedDuplicate, nil
	}
}

func (r *PostgresRepository) updateIfLonger(ctx context.Context, item domain.NewsItem) (domain.UpsertOutcome, error) {
	query, args, err := r.sb.Update("news_items").
		Set("body", item.Body).
		Set("category", item.Category).
		Set("keywords", joinKeywords(item.Keywords)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"identity_key": item.Key()}).
		Where(sq.Expr("length(body) < ?", len(item.Body))).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build race update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("race update %s: %w", item.Key(), errors.Join(domain.ErrStorageConflict, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("race update rows: %w", err)
	}
	if affected > 0 {
		return domain.OutcomeUpdated, nil
	}
	return domain.OutcomeSkippedDuplicate, nil
}

// Search returns items whose title or body contain the keyword, newest first.
func (r *PostgresRepository) Search(ctx context.Context, keyword string, source domain.Source, since time.Time, limit int) ([]domain.NewsItem, error) {
	builder := r.sb.Select("identity_key", "title", "body", "url", "source", "category", "keywords", "published_at", "created_at", "updated_at").
		From("news_items").
		OrderBy("published_at DESC")

	if keyword != "" {
		pattern := "%" + keyword + "%"
		builder = builder.Where(sq.Or{
			sq.Expr("title ILIKE ?", pattern),
			sq.Expr("body ILIKE ?", pattern),
		})
	}
	if source != "" {
		builder = builder.Where(sq.Eq{"source": string(source)})
	}
	if !since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"published_at": since})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var items []domain.NewsItem
	for rows.Next() {
		var (
			item     domain.NewsItem
			src      string
			keywords string
		)
		if err := rows.Scan(&item.IdentityKey, &item.Title, &item.Body, &item.URL, &src,
			&item.Category, &keywords, &item.PublishedAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Source = domain.Source(src)
		item.Keywords = splitKeywords(keywords)
		items = append(items, item)
	}

	return items, rows.Err()
}

// Trend counts per-day mentions of a keyword since the given time.
func (r *PostgresRepository) Trend(ctx context.Context, keyword string, since time.Time) ([]domain.TrendPoint, error) {
	return r.trendQuery(ctx, keyword, since, "day ASC", 0)
}

// HotDates returns the topN days with the most mentions of a keyword.
func (r *PostgresRepository) HotDates(ctx context.Context, keyword string, topN int) ([]domain.TrendPoint, error) {
	return r.trendQuery(ctx, keyword, time.Time{}, "count DESC, day DESC", topN)
}

func (r *PostgresRepository) trendQuery(ctx context.Context, keyword string, since time.Time, order string, limit int) ([]domain.TrendPoint, error) {
	pattern := "%" + keyword + "%"
	builder := r.sb.Select("date_trunc('day', published_at) AS day", "COUNT(*) AS count").
		From("news_items").
		Where(sq.Or{
			sq.Expr("title ILIKE ?", pattern),
			sq.Expr("body ILIKE ?", pattern),
		}).
		GroupBy("day").
		OrderBy(order)

	if !since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"published_at": since})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build trend: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	defer rows.Close()

	var points []domain.TrendPoint
	for rows.Next() {
		var p domain.TrendPoint
		if err := rows.Scan(&p.Day, &p.Count); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// Stats reports aggregate counters for the dashboard.
func (r *PostgresRepository) Stats(ctx context.Context) (int64, map[domain.Source]int64, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news_items`).Scan(&total); err != nil {
		return 0, nil, 0, fmt.Errorf("stats total: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM news_items GROUP BY source`)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("stats by source: %w", err)
	}
	defer rows.Close()

	bySource := map[domain.Source]int64{}
	for rows.Next() {
		var (
			src   string
			count int64
		)
		if err := rows.Scan(&src, &count); err != nil {
			return 0, nil, 0, fmt.Errorf("scan source count: %w", err)
		}
		bySource[domain.Source(src)] = count
	}
	if err := rows.Err(); err != nil {
		return 0, nil, 0, fmt.Errorf("stats rows: %w", err)
	}

	var categories int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT category) FROM news_items WHERE category <> ''`).Scan(&categories); err != nil {
		return 0, nil, 0, fmt.Errorf("stats categories: %w", err)
	}

	return total, bySource, categories, nil
}

// CreateSubscription stores a new keyword subscription.
func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub domain.Subscription) (int64, error) {
	query, args, err := r.sb.Insert("subscriptions").
		Columns("user_id", "keyword", "telegram_chat_id", "is_active").
		Values(sub.UserID, sub.Keyword, sub.TelegramChatID, true).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build subscription insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("create subscription: %w", err)
	}
	return id, nil
}

// Subscriptions lists all subscriptions of a user, active or not.
func (r *PostgresRepository) Subscriptions(ctx context.Context, userID string) ([]domain.Subscription, error) {
	return r.subscriptionQuery(ctx, sq.Eq{"user_id": userID})
}

// ActiveSubscriptions lists every active subscription across users.
func (r *PostgresRepository) ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return r.subscriptionQuery(ctx, sq.Eq{"is_active": true})
}

func (r *PostgresRepository) subscriptionQuery(ctx context.Context, where any) ([]domain.Subscription, error) {
	query, args, err := r.sb.Select("id", "user_id", "keyword", "telegram_chat_id", "is_active", "created_at").
		From("subscriptions").
		Where(where).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build subscription query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Keyword, &sub.TelegramChatID, &sub.IsActive, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// DeactivateSubscription marks a subscription inactive; it reports whether a
// row was actually changed.
func (r *PostgresRepository) DeactivateSubscription(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET is_active = FALSE WHERE id = $1 AND is_active`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate subscription %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate rows: %w", err)
	}
	return affected > 0, nil
}

// ItemsSince returns items published at or after the given time, newest first.
func (r *PostgresRepository) ItemsSince(ctx context.Context, since time.Time) ([]domain.NewsItem, error) {
	return r.Search(ctx, "", "", since, 0)
}

// AlreadyPushed reports whether an item was pushed for a subscription before.
func (r *PostgresRepository) AlreadyPushed(ctx context.Context, subscriptionID int64, identityKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM push_history WHERE subscription_id = $1 AND identity_key = $2)`,
		subscriptionID, identityKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check push history: %w", err)
	}
	return exists, nil
}

// RecordPush remembers that an item was pushed for a subscription. Replaying
// the same pair is harmless.
func (r *PostgresRepository) RecordPush(ctx context.Context, subscriptionID int64, identityKey string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO push_history (subscription_id, identity_key) VALUES ($1, $2)
		 ON CONFLICT (subscription_id, identity_key) DO NOTHING`,
		subscriptionID, identityKey)
	if err != nil {
		return fmt.Errorf("record push: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, keywordSeparator)
}

func splitKeywords(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, keywordSeparator)
}

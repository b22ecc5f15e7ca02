// Package postgres provides the Postgres-backed Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists snapshots, review batches, and status rows as JSONB
// documents with denormalized columns for the analytics queries.
type Store struct {
	pool   pool
	prefix string
}

// New creates a Postgres-backed Store and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	prefix, err := tablePrefix(cfg.TablePrefix)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, prefix: prefix}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(p pool, tablePrefixName string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	prefix, err := tablePrefix(tablePrefixName)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, prefix: prefix}, nil
}

func tablePrefix(name string) (string, error) {
	if name == "" {
		return "scrape", nil
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("invalid table prefix %q", name)
	}
	return name, nil
}

func (s *Store) table(suffix string) string {
	return s.prefix + "_" + suffix
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	target_key TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table("targets")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	target_key TEXT NOT NULL,
	total_items INT NOT NULL,
	payload JSONB NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL
)`, s.table("menu_snapshots")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	target_key TEXT NOT NULL,
	source TEXT NOT NULL,
	review_count INT NOT NULL,
	avg_sentiment DOUBLE PRECISION NOT NULL,
	payload JSONB NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL
)`, s.table("review_batches")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	target_key TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table("statuses")),
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// SaveTarget upserts a target definition.
func (s *Store) SaveTarget(ctx context.Context, target scrape.Target) error {
	payload, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("marshal target: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (target_key, name, payload, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (target_key) DO UPDATE SET name = $2, payload = $3, updated_at = NOW()`, s.table("targets"))
	if _, err := s.pool.Exec(ctx, query, target.Key(), target.Name, payload); err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// SaveMenuSnapshot appends a snapshot row.
func (s *Store) SaveMenuSnapshot(ctx context.Context, snap scrape.MenuSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (target_key, total_items, payload, scraped_at)
VALUES ($1, $2, $3, $4)`, s.table("menu_snapshots"))
	if _, err := s.pool.Exec(ctx, query, targetKey(snap.Target), snap.TotalItems, payload, snap.ScrapedAt); err != nil {
		return fmt.Errorf("insert menu snapshot: %w", err)
	}
	return nil
}

// SaveReviewBatch appends a review batch row.
func (s *Store) SaveReviewBatch(ctx context.Context, batch scrape.ReviewBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal review batch: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (target_key, source, review_count, avg_sentiment, payload, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6)`, s.table("review_batches"))
	args := []any{
		targetKey(batch.Target),
		batch.Source,
		len(batch.Reviews),
		batch.Sentiment.AvgSentiment,
		payload,
		batch.ScrapedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert review batch: %w", err)
	}
	return nil
}

// SaveStatus upserts the status row for a target.
func (s *Store) SaveStatus(ctx context.Context, status scrape.Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (target_key, payload, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (target_key) DO UPDATE SET payload = $2, updated_at = NOW()`, s.table("statuses"))
	if _, err := s.pool.Exec(ctx, query, targetKey(status.Target), payload); err != nil {
		return fmt.Errorf("upsert status: %w", err)
	}
	return nil
}

// GetStatus returns the status row for a target.
func (s *Store) GetStatus(ctx context.Context, target string) (scrape.Status, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE target_key = $1`, s.table("statuses"))
	var payload []byte
	err := s.pool.QueryRow(ctx, query, targetKey(target)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Status{}, scrape.ErrNotFound
	}
	if err != nil {
		return scrape.Status{}, fmt.Errorf("query status: %w", err)
	}
	var status scrape.Status
	if err := json.Unmarshal(payload, &status); err != nil {
		return scrape.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

// LatestMenuSnapshot returns the most recent snapshot for a target.
func (s *Store) LatestMenuSnapshot(ctx context.Context, target string) (scrape.MenuSnapshot, error) {
	query := fmt.Sprintf(`
SELECT payload FROM %s WHERE target_key = $1 ORDER BY scraped_at DESC LIMIT 1`, s.table("menu_snapshots"))
	var payload []byte
	err := s.pool.QueryRow(ctx, query, targetKey(target)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.MenuSnapshot{}, scrape.ErrNotFound
	}
	if err != nil {
		return scrape.MenuSnapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	var snap scrape.MenuSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return scrape.MenuSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// ReviewBatches returns every stored batch for a target, oldest first.
func (s *Store) ReviewBatches(ctx context.Context, target string) ([]scrape.ReviewBatch, error) {
	query := fmt.Sprintf(`
SELECT payload FROM %s WHERE target_key = $1 ORDER BY scraped_at ASC`, s.table("review_batches"))
	rows, err := s.pool.Query(ctx, query, targetKey(target))
	if err != nil {
		return nil, fmt.Errorf("query review batches: %w", err)
	}
	defer rows.Close()

	var out []scrape.ReviewBatch
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan review batch: %w", err)
		}
		var batch scrape.ReviewBatch
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, fmt.Errorf("decode review batch: %w", err)
		}
		out = append(out, batch)
	}
	return out, rows.Err()
}

// RecentReviews flattens batches scraped at or after since into one slice.
func (s *Store) RecentReviews(ctx context.Context, target string, since time.Time) ([]scrape.Review, error) {
	query := fmt.Sprintf(`
SELECT payload FROM %s WHERE target_key = $1 AND scraped_at >= $2 ORDER BY scraped_at ASC`, s.table("review_batches"))
	rows, err := s.pool.Query(ctx, query, targetKey(target), since)
	if err != nil {
		return nil, fmt.Errorf("query recent reviews: %w", err)
	}
	defer rows.Close()

	var out []scrape.Review
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan review batch: %w", err)
		}
		var batch scrape.ReviewBatch
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, fmt.Errorf("decode review batch: %w", err)
		}
		out = append(out, batch.Reviews...)
	}
	return out, rows.Err()
}

// ListTargets returns all known targets sorted by name.
func (s *Store) ListTargets(ctx context.Context) ([]scrape.Target, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s ORDER BY name ASC`, s.table("targets"))
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var out []scrape.Target
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		var target scrape.Target
		if err := json.Unmarshal(payload, &target); err != nil {
			return nil, fmt.Errorf("decode target: %w", err)
		}
		out = append(out, target)
	}
	return out, rows.Err()
}

// AnalyticsSummary aggregates counts in SQL and derives the category
// leaderboard from each target's latest snapshot document.
func (s *Store) AnalyticsSummary(ctx context.Context, now time.Time) (scrape.Analytics, error) {
	summary := scrape.Analytics{GeneratedAt: now}
	cutoff := now.Add(-24 * time.Hour)

	countsQuery := fmt.Sprintf(`
SELECT
	(SELECT COUNT(*) FROM %s),
	(SELECT COUNT(*) FROM %s),
	(SELECT COUNT(*) FROM %s),
	(SELECT COUNT(DISTINCT target_key) FROM (
		SELECT target_key FROM %s WHERE scraped_at >= $1
		UNION
		SELECT target_key FROM %s WHERE scraped_at >= $1
	) recent)`,
		s.table("targets"), s.table("menu_snapshots"), s.table("review_batches"),
		s.table("menu_snapshots"), s.table("review_batches"))
	err := s.pool.QueryRow(ctx, countsQuery, cutoff).Scan(
		&summary.TotalTargets,
		&summary.TotalMenuScrapes,
		&summary.TotalReviewScrapes,
		&summary.ActiveLast24h,
	)
	if err != nil {
		return scrape.Analytics{}, fmt.Errorf("query analytics counts: %w", err)
	}

	latestQuery := fmt.Sprintf(`
SELECT DISTINCT ON (target_key) payload
FROM %s ORDER BY target_key, scraped_at DESC`, s.table("menu_snapshots"))
	rows, err := s.pool.Query(ctx, latestQuery)
	if err != nil {
		return scrape.Analytics{}, fmt.Errorf("query latest snapshots: %w", err)
	}
	defer rows.Close()

	categories := make(map[string]int)
	withMenu := 0
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return scrape.Analytics{}, fmt.Errorf("scan latest snapshot: %w", err)
		}
		var snap scrape.MenuSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return scrape.Analytics{}, fmt.Errorf("decode latest snapshot: %w", err)
		}
		summary.TotalMenuItems += snap.TotalItems
		withMenu++
		for category, items := range snap.Categorized {
			categories[category] += len(items)
		}
	}
	if err := rows.Err(); err != nil {
		return scrape.Analytics{}, err
	}
	if withMenu > 0 {
		summary.AvgMenuItems = float64(int(float64(summary.TotalMenuItems)/float64(withMenu)*100+0.5)) / 100
	}
	summary.TopCategories = topCategories(categories, 5)
	return summary, nil
}

// Trends builds the daily activity series plus the latest sentiment per
// target over the trailing window.
func (s *Store) Trends(ctx context.Context, now time.Time, days int) (scrape.TrendReport, error) {
	if days <= 0 {
		days = 7
	}
	report := scrape.TrendReport{GeneratedAt: now}
	start := now.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	byDay := make(map[string]*scrape.ActivityPoint, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		byDay[date] = &scrape.ActivityPoint{Date: date}
	}

	menuQuery := fmt.Sprintf(`
SELECT TO_CHAR(scraped_at, 'YYYY-MM-DD'), COUNT(*)
FROM %s WHERE scraped_at >= $1 GROUP BY 1`, s.table("menu_snapshots"))
	if err := s.scanDaily(ctx, menuQuery, start, func(point *scrape.ActivityPoint, count int) {
		point.MenuScrapes = count
	}, byDay); err != nil {
		return scrape.TrendReport{}, err
	}

	reviewQuery := fmt.Sprintf(`
SELECT TO_CHAR(scraped_at, 'YYYY-MM-DD'), COALESCE(SUM(review_count), 0)
FROM %s WHERE scraped_at >= $1 GROUP BY 1`, s.table("review_batches"))
	if err := s.scanDaily(ctx, reviewQuery, start, func(point *scrape.ActivityPoint, count int) {
		point.Reviews = count
	}, byDay); err != nil {
		return scrape.TrendReport{}, err
	}

	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		report.Activity = append(report.Activity, *byDay[date])
	}

	sentimentQuery := fmt.Sprintf(`
SELECT DISTINCT ON (b.target_key)
	COALESCE(t.name, b.target_key), b.avg_sentiment, b.scraped_at
FROM %s b LEFT JOIN %s t ON t.target_key = b.target_key
ORDER BY b.target_key, b.scraped_at DESC`, s.table("review_batches"), s.table("targets"))
	rows, err := s.pool.Query(ctx, sentimentQuery)
	if err != nil {
		return scrape.TrendReport{}, fmt.Errorf("query sentiment trends: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var point scrape.SentimentPoint
		if err := rows.Scan(&point.Target, &point.Sentiment, &point.Date); err != nil {
			return scrape.TrendReport{}, fmt.Errorf("scan sentiment trend: %w", err)
		}
		report.Sentiment = append(report.Sentiment, point)
	}
	if err := rows.Err(); err != nil {
		return scrape.TrendReport{}, err
	}
	sort.Slice(report.Sentiment, func(i, j int) bool {
		return report.Sentiment[i].Target < report.Sentiment[j].Target
	})
	return report, nil
}

func (s *Store) scanDaily(ctx context.Context, query string, start time.Time, apply func(*scrape.ActivityPoint, int), byDay map[string]*scrape.ActivityPoint) error {
	rows, err := s.pool.Query(ctx, query, start)
	if err != nil {
		return fmt.Errorf("query daily activity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var date string
		var count int
		if err := rows.Scan(&date, &count); err != nil {
			return fmt.Errorf("scan daily activity: %w", err)
		}
		if point, ok := byDay[date]; ok {
			apply(point, count)
		}
	}
	return rows.Err()
}

func targetKey(name string) string {
	return scrape.Target{Name: name}.Key()
}

func topCategories(counts map[string]int, n int) []scrape.CategoryCount {
	out := make([]scrape.CategoryCount, 0, len(counts))
	for category, count := range counts {
		out = append(out, scrape.CategoryCount{Category: category, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

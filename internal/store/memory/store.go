// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

// Store keeps everything in process. Snapshots and batches accumulate per
// target so analytics can be computed over history.
type Store struct {
	mu       sync.RWMutex
	targets  map[string]scrape.Target
	menus    map[string][]scrape.MenuSnapshot
	reviews  map[string][]scrape.ReviewBatch
	statuses map[string]scrape.Status
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		targets:  make(map[string]scrape.Target),
		menus:    make(map[string][]scrape.MenuSnapshot),
		reviews:  make(map[string][]scrape.ReviewBatch),
		statuses: make(map[string]scrape.Status),
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SaveTarget upserts a target definition.
func (s *Store) SaveTarget(_ context.Context, target scrape.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[target.Key()] = target
	return nil
}

// SaveMenuSnapshot appends a snapshot to the target's history.
func (s *Store) SaveMenuSnapshot(_ context.Context, snap scrape.MenuSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(snap.Target)
	s.menus[k] = append(s.menus[k], snap)
	return nil
}

// SaveReviewBatch appends a review batch to the target's history.
func (s *Store) SaveReviewBatch(_ context.Context, batch scrape.ReviewBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(batch.Target)
	s.reviews[k] = append(s.reviews[k], batch)
	return nil
}

// SaveStatus replaces the status row for a target.
func (s *Store) SaveStatus(_ context.Context, status scrape.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[key(status.Target)] = status
	return nil
}

// GetStatus returns the status row for a target.
func (s *Store) GetStatus(_ context.Context, target string) (scrape.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[key(target)]
	if !ok {
		return scrape.Status{}, scrape.ErrNotFound
	}
	return status, nil
}

// LatestMenuSnapshot returns the most recent snapshot for a target.
func (s *Store) LatestMenuSnapshot(_ context.Context, target string) (scrape.MenuSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.menus[key(target)]
	if len(snaps) == 0 {
		return scrape.MenuSnapshot{}, scrape.ErrNotFound
	}
	return snaps[len(snaps)-1], nil
}

// ReviewBatches returns every stored batch for a target, oldest first.
func (s *Store) ReviewBatches(_ context.Context, target string) ([]scrape.ReviewBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batches := s.reviews[key(target)]
	out := make([]scrape.ReviewBatch, len(batches))
	copy(out, batches)
	return out, nil
}

// RecentReviews flattens batches scraped at or after since into one slice.
func (s *Store) RecentReviews(_ context.Context, target string, since time.Time) ([]scrape.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scrape.Review
	for _, batch := range s.reviews[key(target)] {
		if batch.ScrapedAt.Before(since) {
			continue
		}
		out = append(out, batch.Reviews...)
	}
	return out, nil
}

// ListTargets returns all known targets sorted by name.
func (s *Store) ListTargets(_ context.Context) ([]scrape.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AnalyticsSummary aggregates over each target's latest snapshot plus the
// full scrape history.
func (s *Store) AnalyticsSummary(_ context.Context, now time.Time) (scrape.Analytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := scrape.Analytics{
		TotalTargets: len(s.targets),
		GeneratedAt:  now,
	}
	categories := make(map[string]int)
	cutoff := now.Add(-24 * time.Hour)
	active := make(map[string]struct{})
	withMenu := 0

	for k, snaps := range s.menus {
		summary.TotalMenuScrapes += len(snaps)
		latest := snaps[len(snaps)-1]
		summary.TotalMenuItems += latest.TotalItems
		withMenu++
		for category, items := range latest.Categorized {
			categories[category] += len(items)
		}
		for _, snap := range snaps {
			if !snap.ScrapedAt.Before(cutoff) {
				active[k] = struct{}{}
			}
		}
	}
	for k, batches := range s.reviews {
		summary.TotalReviewScrapes += len(batches)
		for _, batch := range batches {
			if !batch.ScrapedAt.Before(cutoff) {
				active[k] = struct{}{}
			}
		}
	}
	if withMenu > 0 {
		summary.AvgMenuItems = round2(float64(summary.TotalMenuItems) / float64(withMenu))
	}
	summary.ActiveLast24h = len(active)
	summary.TopCategories = topCategories(categories, 5)
	return summary, nil
}

// Trends builds the daily activity series plus the latest sentiment per
// target over the trailing window.
func (s *Store) Trends(_ context.Context, now time.Time, days int) (scrape.TrendReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

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
	for _, snaps := range s.menus {
		for _, snap := range snaps {
			if point, ok := byDay[snap.ScrapedAt.Format("2006-01-02")]; ok {
				point.MenuScrapes++
			}
		}
	}
	for _, batches := range s.reviews {
		for _, batch := range batches {
			if point, ok := byDay[batch.ScrapedAt.Format("2006-01-02")]; ok {
				point.Reviews += len(batch.Reviews)
			}
		}
	}
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		report.Activity = append(report.Activity, *byDay[date])
	}

	for k, batches := range s.reviews {
		latest := batches[len(batches)-1]
		target := k
		if t, ok := s.targets[k]; ok {
			target = t.Name
		}
		report.Sentiment = append(report.Sentiment, scrape.SentimentPoint{
			Target:    target,
			Sentiment: latest.Sentiment.AvgSentiment,
			Date:      latest.ScrapedAt,
		})
	}
	sort.Slice(report.Sentiment, func(i, j int) bool {
		return report.Sentiment[i].Target < report.Sentiment[j].Target
	})
	return report, nil
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

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

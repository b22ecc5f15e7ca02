package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

func TestLatestMenuSnapshot(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveMenuSnapshot(ctx, scrape.MenuSnapshot{Target: "India Quality", TotalItems: 3, ScrapedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.SaveMenuSnapshot(ctx, scrape.MenuSnapshot{Target: "India Quality", TotalItems: 5, ScrapedAt: now}))

	snap, err := s.LatestMenuSnapshot(ctx, "india quality")
	require.NoError(t, err)
	require.Equal(t, 5, snap.TotalItems)

	_, err = s.LatestMenuSnapshot(ctx, "unknown")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestGetStatusNotFound(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.GetStatus(context.Background(), "nope")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestRecentReviewsFiltersByScrapeTime(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	old := scrape.ReviewBatch{
		Target: "Mela", Source: "google", ScrapedAt: now.Add(-48 * time.Hour),
		Reviews: []scrape.Review{{Text: "old review"}},
	}
	fresh := scrape.ReviewBatch{
		Target: "Mela", Source: "yelp", ScrapedAt: now.Add(-time.Hour),
		Reviews: []scrape.Review{{Text: "fresh review"}, {Text: "another fresh"}},
	}
	require.NoError(t, s.SaveReviewBatch(ctx, old))
	require.NoError(t, s.SaveReviewBatch(ctx, fresh))

	reviews, err := s.RecentReviews(ctx, "Mela", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, reviews, 2)
}

func TestAnalyticsSummary(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveTarget(ctx, scrape.Target{Name: "India Quality"}))
	require.NoError(t, s.SaveTarget(ctx, scrape.Target{Name: "Mela"}))

	require.NoError(t, s.SaveMenuSnapshot(ctx, scrape.MenuSnapshot{
		Target: "India Quality", TotalItems: 10, ScrapedAt: now,
		Categorized: map[string][]scrape.MenuItem{
			"Chicken": make([]scrape.MenuItem, 6),
			"Breads":  make([]scrape.MenuItem, 4),
		},
	}))
	require.NoError(t, s.SaveReviewBatch(ctx, scrape.ReviewBatch{
		Target: "Mela", ScrapedAt: now.Add(-48 * time.Hour),
		Reviews: []scrape.Review{{Text: "x"}},
	}))

	summary, err := s.AnalyticsSummary(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalTargets)
	require.Equal(t, 10, summary.TotalMenuItems)
	require.Equal(t, 1, summary.TotalMenuScrapes)
	require.Equal(t, 1, summary.TotalReviewScrapes)
	require.Equal(t, 1, summary.ActiveLast24h)
	require.Equal(t, "Chicken", summary.TopCategories[0].Category)
}

func TestTrendsWindow(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveMenuSnapshot(ctx, scrape.MenuSnapshot{Target: "Mela", ScrapedAt: now}))
	require.NoError(t, s.SaveReviewBatch(ctx, scrape.ReviewBatch{
		Target: "Mela", ScrapedAt: now,
		Reviews:   []scrape.Review{{Text: "a"}, {Text: "b"}},
		Sentiment: scrape.SentimentSummary{AvgSentiment: 0.4},
	}))

	report, err := s.Trends(ctx, now, 7)
	require.NoError(t, err)
	require.Len(t, report.Activity, 7)

	today := report.Activity[len(report.Activity)-1]
	require.Equal(t, now.Format("2006-01-02"), today.Date)
	require.Equal(t, 1, today.MenuScrapes)
	require.Equal(t, 2, today.Reviews)

	require.Len(t, report.Sentiment, 1)
	require.Equal(t, 0.4, report.Sentiment[0].Sentiment)
}

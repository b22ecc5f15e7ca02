package enrich

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

func TestNormalizeItemsDedupesAndCleans(t *testing.T) {
	t.Parallel()

	candidates := []scrape.Candidate{
		{Name: "  Chicken Tikka Masala!! ", Price: 15.99},
		{Name: "chicken tikka masala", Price: 16.99},
		{Name: "ab", Price: 5},
		{Name: "Lamb Curry", Price: -3},
	}

	items := normalizeItems(candidates)
	require.Len(t, items, 2)
	require.Equal(t, "Chicken Tikka Masala", items[0].Name)
	require.Equal(t, 15.99, items[0].Price)
	require.Equal(t, "Lamb Curry", items[1].Name)
	require.Zero(t, items[1].Price)
}

func TestBuildMenuSnapshotCategorizes(t *testing.T) {
	t.Parallel()

	candidates := []scrape.Candidate{
		{Name: "Chicken Tikka Masala", Price: 15.99},
		{Name: "Vegetable Biryani", Price: 12.99},
		{Name: "Garlic Naan", Price: 3.99},
		{Name: "Mango Lassi", Price: 4.99},
		{Name: "Paneer Special", Price: 11.99, Category: "Chef Specials"},
	}

	snap := BuildMenuSnapshot("India Quality", candidates, "generic", time.Now().UTC())

	require.Equal(t, 5, snap.TotalItems)
	require.Len(t, snap.Categorized["Chicken"], 1)
	require.Len(t, snap.Categorized["Rice"], 1)
	require.Len(t, snap.Categorized["Breads"], 1)
	require.Len(t, snap.Categorized["General"], 1)
	// Extractor-supplied categories are preserved over keyword hits.
	require.Len(t, snap.Categorized["Chef Specials"], 1)
	require.Equal(t, 5, snap.Categories)
}

func TestComputePriceStats(t *testing.T) {
	t.Parallel()

	items := []scrape.MenuItem{
		{Name: "A", Price: 10},
		{Name: "B", Price: 20},
		{Name: "C", Price: 0},
	}

	stats := ComputePriceStats(items)
	require.Equal(t, 2, stats.Count)
	require.Equal(t, 10.0, stats.Min)
	require.Equal(t, 20.0, stats.Max)
	require.Equal(t, 15.0, stats.Mean)
	require.Equal(t, 15.0, stats.Median)
	require.Equal(t, 5.0, stats.StdDev)
}

func TestComputePriceStatsEmpty(t *testing.T) {
	t.Parallel()

	stats := ComputePriceStats([]scrape.MenuItem{{Name: "Unknown", Price: 0}})
	require.Zero(t, stats.Count)
	require.Zero(t, stats.Mean)
}

func TestBucketPrices(t *testing.T) {
	t.Parallel()

	items := []scrape.MenuItem{
		{Price: 4.99}, {Price: 9.99}, {Price: 10}, {Price: 17.99}, {Price: 18}, {Price: 0},
	}
	buckets := bucketPrices(items)
	require.Equal(t, 2, buckets.Budget)
	require.Equal(t, 2, buckets.Moderate)
	require.Equal(t, 1, buckets.Premium)
}

func TestNormalizationIsIdempotent(t *testing.T) {
	t.Parallel()

	candidates := []scrape.Candidate{
		{Name: "Chicken 65", Price: 9.99, Description: "Spicy fried chicken"},
		{Name: "Dal Makhani", Price: 11.49},
	}
	first := normalizeItems(candidates)

	again := make([]scrape.Candidate, len(first))
	for i, item := range first {
		again[i] = scrape.Candidate{Name: item.Name, Price: item.Price, Description: item.Description, Category: item.Category}
	}
	require.Equal(t, first, normalizeItems(again))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 199) + "é"
	cut := truncate(long, 200)
	require.True(t, utf8.ValidString(cut))
	require.Equal(t, strings.Repeat("a", 199), cut)

	require.Equal(t, "short", truncate("short", 200))
	require.Equal(t, "crème", truncate("crème brûlée", 6))
}

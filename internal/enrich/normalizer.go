// Package enrich normalizes extracted candidates into canonical records and
// computes derived statistics.
package enrich

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

var nameCleanRe = regexp.MustCompile(`[^\w\s\-&().]`)

// categoryKeywords maps keyword hits to a category, applied only when the
// extractor left the item in General.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"Chicken", []string{"chicken", "tikka"}},
	{"Rice", []string{"biryani", "rice", "pulao"}},
	{"Breads", []string{"naan", "roti", "bread"}},
	{"Appetizers", []string{"samosa", "pakora", "chaat"}},
	{"Lamb", []string{"lamb", "goat", "mutton"}},
	{"Vegetarian", []string{"paneer", "dal", "vegetable"}},
}

// Price bucket boundaries in dollars.
const (
	budgetCeiling   = 10.0
	moderateCeiling = 18.0
)

// BuildMenuSnapshot cleans, dedupes, categorizes, and summarizes candidates
// into an immutable snapshot. Normalization is idempotent: feeding a
// snapshot's items back through produces the same list.
func BuildMenuSnapshot(target string, candidates []scrape.Candidate, platform string, scrapedAt time.Time) scrape.MenuSnapshot {
	items := normalizeItems(candidates)
	categorized := categorize(items)

	snap := scrape.MenuSnapshot{
		Target:      target,
		Items:       items,
		Categorized: categorized,
		PriceStats:  ComputePriceStats(items),
		Buckets:     bucketPrices(items),
		TotalItems:  len(items),
		Categories:  len(categorized),
		Platform:    platform,
		ScrapedAt:   scrapedAt,
	}
	return snap
}

// normalizeItems trims and sanitizes names, drops names shorter than three
// runes, clamps negative prices to zero, and removes case-insensitive
// duplicates keeping the first occurrence.
func normalizeItems(candidates []scrape.Candidate) []scrape.MenuItem {
	seen := make(map[string]struct{}, len(candidates))
	items := make([]scrape.MenuItem, 0, len(candidates))

	for _, c := range candidates {
		name := cleanName(c.Name)
		if len([]rune(name)) < 3 {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		price := c.Price
		if price < 0 {
			price = 0
		}
		category := c.Category
		if category == "" {
			category = "General"
		}
		items = append(items, scrape.MenuItem{
			Name:        name,
			Price:       price,
			Description: truncate(strings.TrimSpace(c.Description), 200),
			Category:    category,
		})
	}
	return items
}

// categorize groups items by category, assigning one from the keyword table
// when the extractor did not supply anything beyond General.
func categorize(items []scrape.MenuItem) map[string][]scrape.MenuItem {
	categorized := make(map[string][]scrape.MenuItem)
	for i, item := range items {
		category := item.Category
		if category == "General" {
			if assigned := keywordCategory(item.Name); assigned != "" {
				category = assigned
			}
		}
		items[i].Category = category
		categorized[category] = append(categorized[category], items[i])
	}
	return categorized
}

func keywordCategory(name string) string {
	lower := strings.ToLower(name)
	for _, entry := range categoryKeywords {
		for _, word := range entry.words {
			if strings.Contains(lower, word) {
				return entry.category
			}
		}
	}
	return ""
}

// ComputePriceStats summarizes the positive known prices. Items with zero or
// unknown price are excluded from every statistic.
func ComputePriceStats(items []scrape.MenuItem) scrape.PriceStats {
	prices := make([]float64, 0, len(items))
	for _, item := range items {
		if item.Price > 0 {
			prices = append(prices, item.Price)
		}
	}
	if len(prices) == 0 {
		return scrape.PriceStats{}
	}
	sort.Float64s(prices)

	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))

	variance := 0.0
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices))

	return scrape.PriceStats{
		Min:    prices[0],
		Max:    prices[len(prices)-1],
		Mean:   round2(mean),
		Median: median(prices),
		StdDev: round2(math.Sqrt(variance)),
		Count:  len(prices),
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return round2((sorted[n/2-1] + sorted[n/2]) / 2)
}

func bucketPrices(items []scrape.MenuItem) scrape.PriceBuckets {
	var buckets scrape.PriceBuckets
	for _, item := range items {
		switch {
		case item.Price <= 0:
		case item.Price < budgetCeiling:
			buckets.Budget++
		case item.Price < moderateCeiling:
			buckets.Moderate++
		default:
			buckets.Premium++
		}
	}
	return buckets
}

func cleanName(raw string) string {
	cleaned := nameCleanRe.ReplaceAllString(strings.TrimSpace(raw), "")
	return strings.Join(strings.Fields(cleaned), " ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

package scrape

import (
	"context"
	"time"
)

// Fetcher retrieves one URL and returns the raw body plus metadata. Failures
// are *FetchError values.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// FetchResult is the raw content returned by a Fetcher.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// MenuExtractor turns raw HTML into candidate menu records. It returns the
// candidates plus the detected platform label.
type MenuExtractor interface {
	ExtractMenu(content []byte, pageURL string) ([]Candidate, string, error)
}

// ReviewExtractor turns raw HTML from a review source into raw reviews.
type ReviewExtractor interface {
	ExtractReviews(content []byte, source string) ([]Review, error)
}

// Scorer assigns a polarity in [-1, 1] to review text. Implementations must
// be safe for concurrent use.
type Scorer interface {
	Score(text string) float64
}

// Store is the single writer of record for snapshots, batches, and status.
type Store interface {
	SaveTarget(ctx context.Context, target Target) error
	SaveMenuSnapshot(ctx context.Context, snap MenuSnapshot) error
	SaveReviewBatch(ctx context.Context, batch ReviewBatch) error
	SaveStatus(ctx context.Context, status Status) error

	GetStatus(ctx context.Context, target string) (Status, error)
	LatestMenuSnapshot(ctx context.Context, target string) (MenuSnapshot, error)
	ReviewBatches(ctx context.Context, target string) ([]ReviewBatch, error)
	RecentReviews(ctx context.Context, target string, since time.Time) ([]Review, error)
	ListTargets(ctx context.Context) ([]Target, error)
	AnalyticsSummary(ctx context.Context, now time.Time) (Analytics, error)
	Trends(ctx context.Context, now time.Time, days int) (TrendReport, error)
}

// Cache is the derived, disposable read-layer in front of the Store.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte, ttl time.Duration)
	InvalidatePrefix(prefix string) int
}

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// CategoryCount pairs a category label with its item count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Analytics is the cross-target summary surfaced by the read API.
type Analytics struct {
	TotalTargets       int             `json:"total_targets"`
	TotalMenuItems     int             `json:"total_menu_items"`
	AvgMenuItems       float64         `json:"avg_menu_items"`
	TotalMenuScrapes   int             `json:"total_menu_scrapes"`
	TotalReviewScrapes int             `json:"total_review_scrapes"`
	ActiveLast24h      int             `json:"active_last_24h"`
	TopCategories      []CategoryCount `json:"top_categories"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

// ActivityPoint is one day of scrape activity.
type ActivityPoint struct {
	Date        string `json:"date"`
	MenuScrapes int    `json:"menu_scrapes"`
	Reviews     int    `json:"reviews"`
}

// SentimentPoint is one target's most recent sentiment reading.
type SentimentPoint struct {
	Target    string    `json:"target"`
	Sentiment float64   `json:"sentiment"`
	Date      time.Time `json:"date"`
}

// TrendReport carries the 7-day activity and sentiment series.
type TrendReport struct {
	Activity    []ActivityPoint  `json:"activity_trends"`
	Sentiment   []SentimentPoint `json:"sentiment_trends"`
	GeneratedAt time.Time        `json:"generated_at"`
}

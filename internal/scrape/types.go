// Package scrape defines core types shared across subsystems.
package scrape

import (
	"strings"
	"time"
)

// Kind identifies a scrape category.
type Kind string

// Scrape kinds tracked per target.
const (
	KindMenu    Kind = "menu"
	KindReviews Kind = "reviews"
)

// Target is one restaurant under scrape management. Targets are loaded from
// configuration at startup and never mutated afterwards.
type Target struct {
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	ReviewSources  []string `json:"review_sources"`
	MenuEnabled    bool     `json:"menu_enabled"`
	ReviewsEnabled bool     `json:"reviews_enabled"`
}

// Key returns the lowercase identity key for the target.
func (t Target) Key() string {
	return strings.ToLower(strings.TrimSpace(t.Name))
}

// Job is an ephemeral unit of scrape work. It is created by the scheduler,
// consumed exactly once by a worker, and never persisted.
type Job struct {
	ID         string    `json:"id"`
	Target     Target    `json:"target"`
	Kind       Kind      `json:"kind"`
	Source     string    `json:"source,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	OnDemand   bool      `json:"on_demand"`
}

// MenuItem is a single normalized dish entry.
type MenuItem struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category"`
}

// PriceStats summarizes the known positive prices of a snapshot.
type PriceStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// PriceBuckets splits items into coarse affordability ranges.
type PriceBuckets struct {
	Budget   int `json:"budget"`
	Moderate int `json:"moderate"`
	Premium  int `json:"premium"`
}

// MenuSnapshot is the immutable result of one successful menu scrape.
type MenuSnapshot struct {
	Target      string                `json:"target"`
	Items       []MenuItem            `json:"items"`
	Categorized map[string][]MenuItem `json:"categorized"`
	PriceStats  PriceStats            `json:"price_stats"`
	Buckets     PriceBuckets          `json:"price_buckets"`
	TotalItems  int                   `json:"total_items"`
	Categories  int                   `json:"categories"`
	Platform    string                `json:"platform,omitempty"`
	ScrapedAt   time.Time             `json:"scraped_at"`
}

// Review is one harvested customer review. Rating is 0..5 with 0 meaning
// unknown.
type Review struct {
	Author string    `json:"author"`
	Rating float64   `json:"rating,omitempty"`
	Text   string    `json:"text"`
	Date   time.Time `json:"date"`
	Source string    `json:"source"`
}

// SentimentDistribution holds the classified fractions of a review batch.
type SentimentDistribution struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// SentimentSummary aggregates scored reviews. Distribution fractions sum to
// 1 whenever Total > 0 and are all zero otherwise.
type SentimentSummary struct {
	AvgSentiment float64               `json:"avg_sentiment"`
	Positive     int                   `json:"positive"`
	Negative     int                   `json:"negative"`
	Neutral      int                   `json:"neutral"`
	Total        int                   `json:"total"`
	Distribution SentimentDistribution `json:"distribution"`
}

// ReviewBatch is the immutable result of one successful review scrape for a
// single (target, source) pair.
type ReviewBatch struct {
	Target    string           `json:"target"`
	Source    string           `json:"source"`
	Reviews   []Review         `json:"reviews"`
	Sentiment SentimentSummary `json:"sentiment_summary"`
	Themes    map[string]int   `json:"themes,omitempty"`
	TopWords  []WordCount      `json:"top_words,omitempty"`
	ScrapedAt time.Time        `json:"scraped_at"`
}

// WordCount is one entry of a review word frequency table.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Status tracks per-target scrape bookkeeping. Every completion stamps the
// attempt time; only success stamps the scrape time and resets the error
// count, failure increments it. Backoff windows anchor on the attempt time so
// a target that keeps failing is not retried every cycle.
type Status struct {
	Target             string     `json:"target"`
	LastMenuScrape     *time.Time `json:"last_menu_scrape,omitempty"`
	LastReviewsScrape  *time.Time `json:"last_reviews_scrape,omitempty"`
	LastMenuAttempt    *time.Time `json:"last_menu_attempt,omitempty"`
	LastReviewsAttempt *time.Time `json:"last_reviews_attempt,omitempty"`
	MenuErrors         int        `json:"menu_errors"`
	ReviewsErrors      int        `json:"reviews_errors"`
	LastError          string     `json:"last_error,omitempty"`
}

// LastScrape returns the last successful scrape time for the given kind, or
// nil.
func (s Status) LastScrape(kind Kind) *time.Time {
	if kind == KindMenu {
		return s.LastMenuScrape
	}
	return s.LastReviewsScrape
}

// LastAttempt returns the last completion time for the given kind regardless
// of outcome, or nil when the kind has never run.
func (s Status) LastAttempt(kind Kind) *time.Time {
	if kind == KindMenu {
		return s.LastMenuAttempt
	}
	return s.LastReviewsAttempt
}

// ErrorCount returns consecutive failures for the given kind.
func (s Status) ErrorCount(kind Kind) int {
	if kind == KindMenu {
		return s.MenuErrors
	}
	return s.ReviewsErrors
}

// Outcome reports the result of one executed job back to the scheduler and
// the event stream.
type Outcome struct {
	Job      Job
	Err      error
	Items    int
	Reviews  int
	Duration time.Duration
}

// Succeeded reports whether the job completed without error. A fetch that
// succeeded but yielded zero records still counts as a success; emptiness is
// data, not a fault.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Candidate is a raw extracted record before normalization.
type Candidate struct {
	Name        string
	Price       float64
	Description string
	Category    string
}

// Package worker implements the scrape pipeline execution loop.
package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/plateiq/restaurant-intel/internal/enrich"
	"github.com/plateiq/restaurant-intel/internal/events"
	"github.com/plateiq/restaurant-intel/internal/metrics"
	"github.com/plateiq/restaurant-intel/internal/scrape"
)

// Config controls Worker behavior.
type Config struct {
	CooldownMin time.Duration
	CooldownMax time.Duration
}

// CompletionFunc receives every job outcome, success or failure.
type CompletionFunc func(ctx context.Context, outcome scrape.Outcome)

// Worker consumes queue jobs and executes the fetch/extract/persist
// pipeline. Jobs for the same restaurant arrive back to back; switching to a
// different restaurant inserts a randomized cooldown so consecutive batches
// do not hammer the sites.
type Worker struct {
	queue      scrape.Queue
	fetcher    scrape.Fetcher
	menus      scrape.MenuExtractor
	reviews    scrape.ReviewExtractor
	scorer     scrape.Scorer
	store      scrape.Store
	cache      scrape.Cache
	events     *events.Broadcaster
	clock      scrape.Clock
	onComplete CompletionFunc
	cfg        Config
	logger     *zap.Logger

	lastTarget string
}

// New constructs a Worker.
func New(
	queue scrape.Queue,
	fetcher scrape.Fetcher,
	menus scrape.MenuExtractor,
	reviews scrape.ReviewExtractor,
	scorer scrape.Scorer,
	store scrape.Store,
	cache scrape.Cache,
	bc *events.Broadcaster,
	clock scrape.Clock,
	onComplete CompletionFunc,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.CooldownMin <= 0 {
		cfg.CooldownMin = 15 * time.Second
	}
	if cfg.CooldownMax < cfg.CooldownMin {
		cfg.CooldownMax = cfg.CooldownMin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:      queue,
		fetcher:    fetcher,
		menus:      menus,
		reviews:    reviews,
		scorer:     scorer,
		store:      store,
		cache:      cache,
		events:     bc,
		clock:      clock,
		onComplete: onComplete,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming queue jobs until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", job.ID),
			zap.String("target", job.Target.Name),
			zap.String("kind", string(job.Kind)))

		if w.lastTarget != "" && w.lastTarget != job.Target.Key() {
			if !w.cooldown(ctx) {
				return
			}
		}
		w.lastTarget = job.Target.Key()
		w.processJob(ctx, job)
	}
}

// cooldown sleeps a random duration in [CooldownMin, CooldownMax]. It
// returns false when the context ended first.
func (w *Worker) cooldown(ctx context.Context) bool {
	span := w.cfg.CooldownMax - w.cfg.CooldownMin
	d := w.cfg.CooldownMin
	if span > 0 {
		d += rand.N(span)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) processJob(ctx context.Context, job scrape.Job) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	w.events.Publish(events.Event{
		Kind: events.KindJobStarted,
		Payload: map[string]any{
			"job_id": job.ID,
			"target": job.Target.Name,
			"kind":   string(job.Kind),
			"source": job.Source,
		},
	})

	start := w.clock.Now()
	outcome := w.execute(ctx, job)
	outcome.Duration = w.clock.Now().Sub(start)

	if outcome.Succeeded() {
		metrics.ObserveJob(string(job.Kind), "ok")
		w.events.Publish(events.Event{
			Kind: events.KindJobSucceeded,
			Payload: map[string]any{
				"job_id":   job.ID,
				"target":   job.Target.Name,
				"kind":     string(job.Kind),
				"items":    outcome.Items,
				"reviews":  outcome.Reviews,
				"duration": outcome.Duration.Seconds(),
			},
		})
		w.logger.Info("job succeeded",
			zap.String("job_id", job.ID),
			zap.String("target", job.Target.Name),
			zap.String("kind", string(job.Kind)),
			zap.Int("items", outcome.Items),
			zap.Int("reviews", outcome.Reviews),
			zap.Duration("duration", outcome.Duration))
	} else {
		metrics.ObserveJob(string(job.Kind), scrape.ClassifyError(outcome.Err))
		w.events.Publish(events.Event{
			Kind: events.KindJobFailed,
			Payload: map[string]any{
				"job_id": job.ID,
				"target": job.Target.Name,
				"kind":   string(job.Kind),
				"error":  outcome.Err.Error(),
			},
		})
		w.logger.Warn("job failed",
			zap.String("job_id", job.ID),
			zap.String("target", job.Target.Name),
			zap.String("kind", string(job.Kind)),
			zap.Error(outcome.Err))
	}

	if w.onComplete != nil {
		w.onComplete(ctx, outcome)
	}
}

// execute runs the pipeline for one job. Cancellation at any stage discards
// partial results; nothing is persisted for a canceled job.
func (w *Worker) execute(ctx context.Context, job scrape.Job) scrape.Outcome {
	outcome := scrape.Outcome{Job: job}

	pageURL, err := w.jobURL(job)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	result, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		outcome.Err = fmt.Errorf("fetch %s: %w", pageURL, err)
		return outcome
	}
	if ctx.Err() != nil {
		outcome.Err = ctx.Err()
		return outcome
	}

	switch job.Kind {
	case scrape.KindMenu:
		outcome.Err = w.handleMenu(ctx, job, result, &outcome)
	case scrape.KindReviews:
		outcome.Err = w.handleReviews(ctx, job, result, &outcome)
	default:
		outcome.Err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	return outcome
}

func (w *Worker) handleMenu(ctx context.Context, job scrape.Job, result scrape.FetchResult, outcome *scrape.Outcome) error {
	candidates, platform, err := w.menus.ExtractMenu(result.Body, result.URL)
	if err != nil {
		return fmt.Errorf("extract menu: %w", err)
	}
	snap := enrich.BuildMenuSnapshot(job.Target.Name, candidates, platform, w.clock.Now())
	outcome.Items = snap.TotalItems

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := w.store.SaveMenuSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save menu snapshot: %w", err)
	}
	metrics.ObserveItems(string(scrape.KindMenu), snap.TotalItems)
	w.invalidate(job.Target)
	return nil
}

func (w *Worker) handleReviews(ctx context.Context, job scrape.Job, result scrape.FetchResult, outcome *scrape.Outcome) error {
	reviews, err := w.reviews.ExtractReviews(result.Body, job.Source)
	if err != nil {
		return fmt.Errorf("extract reviews: %w", err)
	}
	batch := enrich.BuildReviewBatch(w.scorer, job.Target.Name, job.Source, reviews, w.clock.Now())
	outcome.Reviews = len(batch.Reviews)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := w.store.SaveReviewBatch(ctx, batch); err != nil {
		return fmt.Errorf("save review batch: %w", err)
	}
	metrics.ObserveItems(string(scrape.KindReviews), len(batch.Reviews))
	w.invalidate(job.Target)
	return nil
}

// invalidate drops the target's cached responses, the restaurant list, and
// every analytics entry, since all are stale the moment new data lands.
func (w *Worker) invalidate(target scrape.Target) {
	if w.cache == nil {
		return
	}
	w.cache.InvalidatePrefix("restaurant_" + target.Key())
	w.cache.InvalidatePrefix("restaurants_list")
	w.cache.InvalidatePrefix("analytics")
}

// jobURL resolves the page to fetch for a job. Menu jobs hit the target's
// site directly; review jobs hit the configured source's search page.
func (w *Worker) jobURL(job scrape.Job) (string, error) {
	if job.Kind == scrape.KindMenu {
		return job.Target.URL, nil
	}
	q := url.QueryEscape(job.Target.Name + " boston")
	switch job.Source {
	case "google":
		return "https://www.google.com/search?q=" + q + "+reviews", nil
	case "yelp":
		return "https://www.yelp.com/search?find_desc=" + url.QueryEscape(job.Target.Name) + "&find_loc=Boston%2C+MA", nil
	case "tripadvisor":
		return "https://www.tripadvisor.com/Search?q=" + q, nil
	default:
		return "", fmt.Errorf("unknown review source %q", job.Source)
	}
}

// Package scheduler decides when each target is due for a scrape and feeds
// the job queue.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plateiq/restaurant-intel/internal/events"
	"github.com/plateiq/restaurant-intel/internal/scrape"
)

// Config carries the scheduling cadence knobs.
type Config struct {
	MenuInterval   time.Duration
	ReviewInterval time.Duration
	CyclePause     time.Duration
	ErrorPause     time.Duration
	BackoffCap     int
}

// Scheduler tracks per-target due times with exponential error backoff and
// guarantees at most one in-flight job per (target, kind).
type Scheduler struct {
	cfg     Config
	targets []scrape.Target
	store   scrape.Store
	queue   scrape.Queue
	events  *events.Broadcaster
	clock   scrape.Clock
	ids     scrape.IDGenerator
	logger  *zap.Logger

	mu             sync.Mutex
	inFlight       map[string]int
	statuses       map[string]scrape.Status
	cycleSuccesses int
	cycleFailures  int
}

// New constructs a Scheduler over the configured targets.
func New(cfg Config, targets []scrape.Target, store scrape.Store, queue scrape.Queue, bc *events.Broadcaster, clock scrape.Clock, ids scrape.IDGenerator, logger *zap.Logger) *Scheduler {
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		targets:  targets,
		store:    store,
		queue:    queue,
		events:   bc,
		clock:    clock,
		ids:      ids,
		logger:   logger.Named("scheduler"),
		inFlight: make(map[string]int),
		statuses: make(map[string]scrape.Status),
	}
}

func flightKey(target scrape.Target, kind scrape.Kind) string {
	return target.Key() + "|" + string(kind)
}

// Run drives scrape cycles until ctx is canceled. Each cycle enqueues every
// due job, announces completion, then sleeps the cycle pause. A cycle that
// fails to enqueue sleeps the shorter error pause instead.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		started := s.clock.Now()
		enqueued, err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		pause := s.cfg.CyclePause
		if err != nil {
			s.logger.Error("scrape cycle failed", zap.Error(err))
			pause = s.cfg.ErrorPause
		} else {
			s.publishCycleComplete(started, enqueued, pause)
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// publishCycleComplete announces one finished cycle with the completion
// counts accumulated since the previous announcement.
func (s *Scheduler) publishCycleComplete(started time.Time, enqueued int, pause time.Duration) {
	now := s.clock.Now()

	s.mu.Lock()
	successes, failures := s.cycleSuccesses, s.cycleFailures
	s.cycleSuccesses, s.cycleFailures = 0, 0
	s.mu.Unlock()

	s.events.Publish(events.Event{
		Kind: events.KindCycleComplete,
		Payload: map[string]any{
			"jobs_enqueued":    enqueued,
			"successes":        successes,
			"failures":         failures,
			"duration_seconds": now.Sub(started).Seconds(),
			"next_cycle_at":    now.Add(pause),
		},
	})
	s.logger.Info("scrape cycle complete",
		zap.Int("jobs_enqueued", enqueued),
		zap.Int("successes", successes),
		zap.Int("failures", failures),
		zap.Duration("pause", pause))
}

// RunCycle enqueues every currently due job and returns the count.
func (s *Scheduler) RunCycle(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due := s.DueJobs(ctx, now)
	enqueued := 0
	for _, job := range due {
		if err := s.enqueue(ctx, job); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// DueJobs returns the jobs due at now, honoring intervals, error backoff,
// and the no-overlap rule. Targets with no prior scrape are due immediately.
func (s *Scheduler) DueJobs(ctx context.Context, now time.Time) []scrape.Job {
	var due []scrape.Job
	for _, target := range s.targets {
		status := s.status(ctx, target)
		if target.MenuEnabled && s.kindDue(target, status, scrape.KindMenu, now) {
			due = append(due, scrape.Job{Target: target, Kind: scrape.KindMenu, EnqueuedAt: now})
		}
		if target.ReviewsEnabled && s.kindDue(target, status, scrape.KindReviews, now) {
			for _, source := range target.ReviewSources {
				due = append(due, scrape.Job{Target: target, Kind: scrape.KindReviews, Source: source, EnqueuedAt: now})
			}
		}
	}
	return due
}

func (s *Scheduler) kindDue(target scrape.Target, status scrape.Status, kind scrape.Kind, now time.Time) bool {
	s.mu.Lock()
	busy := s.inFlight[flightKey(target, kind)] > 0
	s.mu.Unlock()
	if busy {
		return false
	}
	// Anchor on the last attempt, not the last success: a target that only
	// ever fails still backs off instead of retrying every cycle.
	last := status.LastAttempt(kind)
	if last == nil {
		return true
	}
	interval := s.interval(kind) * time.Duration(s.backoffMultiplier(status.ErrorCount(kind)))
	return !now.Before(last.Add(interval))
}

func (s *Scheduler) interval(kind scrape.Kind) time.Duration {
	if kind == scrape.KindMenu {
		return s.cfg.MenuInterval
	}
	return s.cfg.ReviewInterval
}

// backoffMultiplier doubles per consecutive error up to the configured cap.
func (s *Scheduler) backoffMultiplier(errorCount int) int {
	multiplier := 1
	for i := 0; i < errorCount; i++ {
		multiplier *= 2
		if multiplier >= s.cfg.BackoffCap {
			return s.cfg.BackoffCap
		}
	}
	return multiplier
}

// Trigger enqueues on-demand jobs for one target, skipping the interval
// check but still refusing to overlap an in-flight job.
func (s *Scheduler) Trigger(ctx context.Context, target scrape.Target) (int, error) {
	now := s.clock.Now()
	var jobs []scrape.Job
	if target.MenuEnabled {
		jobs = append(jobs, scrape.Job{Target: target, Kind: scrape.KindMenu, EnqueuedAt: now, OnDemand: true})
	}
	if target.ReviewsEnabled {
		for _, source := range target.ReviewSources {
			jobs = append(jobs, scrape.Job{Target: target, Kind: scrape.KindReviews, Source: source, EnqueuedAt: now, OnDemand: true})
		}
	}
	enqueued := 0
	for _, job := range jobs {
		s.mu.Lock()
		busy := s.inFlight[flightKey(job.Target, job.Kind)] > 0
		s.mu.Unlock()
		if busy {
			continue
		}
		if err := s.enqueue(ctx, job); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

func (s *Scheduler) enqueue(ctx context.Context, job scrape.Job) error {
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate job id: %w", err)
	}
	job.ID = id

	key := flightKey(job.Target, job.Kind)
	s.mu.Lock()
	s.inFlight[key]++
	s.mu.Unlock()

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.mu.Lock()
		s.inFlight[key]--
		s.mu.Unlock()
		return fmt.Errorf("enqueue %s/%s: %w", job.Target.Name, job.Kind, err)
	}
	s.logger.Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("target", job.Target.Name),
		zap.String("kind", string(job.Kind)))
	return nil
}

// JobCompleted records the outcome of one job: it clears the in-flight slot
// and updates the target's status row. Success stamps the scrape time and
// resets the error count; failure increments it.
func (s *Scheduler) JobCompleted(ctx context.Context, outcome scrape.Outcome) {
	job := outcome.Job
	key := flightKey(job.Target, job.Kind)

	s.mu.Lock()
	if s.inFlight[key] > 0 {
		s.inFlight[key]--
	}
	status, ok := s.statuses[job.Target.Key()]
	if !ok {
		status = scrape.Status{Target: job.Target.Name}
	}
	now := s.clock.Now()
	switch job.Kind {
	case scrape.KindMenu:
		status.LastMenuAttempt = &now
	case scrape.KindReviews:
		status.LastReviewsAttempt = &now
	}
	if outcome.Succeeded() {
		s.cycleSuccesses++
		switch job.Kind {
		case scrape.KindMenu:
			status.LastMenuScrape = &now
			status.MenuErrors = 0
		case scrape.KindReviews:
			status.LastReviewsScrape = &now
			status.ReviewsErrors = 0
		}
		status.LastError = ""
	} else {
		s.cycleFailures++
		switch job.Kind {
		case scrape.KindMenu:
			status.MenuErrors++
		case scrape.KindReviews:
			status.ReviewsErrors++
		}
		status.LastError = outcome.Err.Error()
	}
	s.statuses[job.Target.Key()] = status
	s.mu.Unlock()

	if err := s.store.SaveStatus(ctx, status); err != nil {
		s.logger.Error("save status failed",
			zap.String("target", job.Target.Name),
			zap.Error(err))
	}
}

// status returns the cached status for a target, loading it from the store
// on first sight.
func (s *Scheduler) status(ctx context.Context, target scrape.Target) scrape.Status {
	s.mu.Lock()
	status, ok := s.statuses[target.Key()]
	s.mu.Unlock()
	if ok {
		return status
	}
	status, err := s.store.GetStatus(ctx, target.Name)
	if err != nil {
		return scrape.Status{Target: target.Name}
	}
	s.mu.Lock()
	s.statuses[target.Key()] = status
	s.mu.Unlock()
	return status
}

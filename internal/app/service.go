// Package app initializes and holds the long-lived services, acting as the
// dependency injection container and scrape lifecycle owner.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/plateiq/restaurant-intel/internal/api"
	"github.com/plateiq/restaurant-intel/internal/cache"
	"github.com/plateiq/restaurant-intel/internal/clock/system"
	"github.com/plateiq/restaurant-intel/internal/config"
	"github.com/plateiq/restaurant-intel/internal/enrich"
	"github.com/plateiq/restaurant-intel/internal/events"
	"github.com/plateiq/restaurant-intel/internal/extractor"
	collyfetcher "github.com/plateiq/restaurant-intel/internal/fetcher/colly"
	uuidgen "github.com/plateiq/restaurant-intel/internal/id/uuid"
	queuemem "github.com/plateiq/restaurant-intel/internal/queue/memory"
	"github.com/plateiq/restaurant-intel/internal/scheduler"
	"github.com/plateiq/restaurant-intel/internal/scrape"
	storemem "github.com/plateiq/restaurant-intel/internal/store/memory"
	storepg "github.com/plateiq/restaurant-intel/internal/store/postgres"
	"github.com/plateiq/restaurant-intel/internal/worker"
)

// Service owns every long-lived component and the scrape lifecycle.
type Service struct {
	cfg     config.Config
	logger  *zap.Logger
	store   scrape.Store
	cache   *cache.Cache
	queue   *queuemem.Queue
	events  *events.Broadcaster
	sched   *scheduler.Scheduler
	pool    *worker.Pool
	server  *api.Server
	targets map[string]scrape.Target
	closers []func()

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New wires the full service from configuration. It fails fast when a
// critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		targets: make(map[string]scrape.Target),
	}

	store, err := s.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	s.store = store

	targets := cfg.ScrapeTargets()
	for _, target := range targets {
		s.targets[target.Key()] = target
		if err := store.SaveTarget(ctx, target); err != nil {
			return nil, err
		}
	}

	s.cache = cache.New(cfg.Cache.Size, cfg.Cache.DetailTTL())
	s.queue = queuemem.NewQueue(cfg.Scraper.QueueDepth)
	s.events = events.NewBroadcaster(events.Config{
		HistorySize:      cfg.Events.HistorySize,
		SubscriberBuffer: cfg.Events.SubscriberBuffer,
		PingInterval:     cfg.Events.PingInterval(),
		Logger:           logger,
	})

	clk := system.New()
	ids := uuidgen.New()

	s.sched = scheduler.New(
		scheduler.Config{
			MenuInterval:   cfg.Scraper.MenuInterval(),
			ReviewInterval: cfg.Scraper.ReviewInterval(),
			CyclePause:     cfg.Scraper.CyclePause(),
			ErrorPause:     cfg.Scraper.ErrorPause(),
			BackoffCap:     cfg.Scraper.BackoffCap,
		},
		targets, store, s.queue, s.events, clk, ids, logger,
	)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgents:   cfg.Fetch.UserAgents,
		Timeout:      cfg.Fetch.Timeout(),
		HostInterval: cfg.Fetch.HostInterval(),
		PreDelayMin:  cfg.Fetch.PreDelayMin(),
		PreDelayMax:  cfg.Fetch.PreDelayMax(),
		Logger:       logger,
	})

	menuExtractor := extractor.New(extractor.WithLogger(logger))
	scorer := enrich.NewLexiconScorer()

	workers := make([]*worker.Worker, 0, cfg.Scraper.Concurrency)
	for i := 0; i < cfg.Scraper.Concurrency; i++ {
		workers = append(workers, worker.New(
			s.queue, fetcher, menuExtractor, menuExtractor, scorer,
			store, s.cache, s.events, clk, s.sched.JobCompleted,
			worker.Config{
				CooldownMin: cfg.Scraper.CooldownMin(),
				CooldownMax: cfg.Scraper.CooldownMax(),
			},
			logger.Named("worker"),
		))
	}
	s.pool = worker.NewPool(workers)

	s.server = api.NewServer(store, s.cache, s.events, s, clk, api.Config{
		ListTTL:   cfg.Cache.ListTTL(),
		DetailTTL: cfg.Cache.DetailTTL(),
	}, logger)

	return s, nil
}

func (s *Service) buildStore(ctx context.Context) (scrape.Store, error) {
	if s.cfg.DB.DSN == "" {
		s.logger.Info("using in-memory store")
		return storemem.New(), nil
	}
	s.logger.Info("connecting to postgres")
	store, err := storepg.New(ctx, storepg.Config{
		DSN:      s.cfg.DB.DSN,
		MaxConns: s.cfg.DB.MaxConns,
		MinConns: s.cfg.DB.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	s.closers = append(s.closers, store.Close)
	return store, nil
}

// Handler returns the HTTP surface for use with http.Server.
func (s *Service) Handler() http.Handler {
	return s.server.Handler()
}

// Run starts the event loop and the scrape pipeline, then blocks until ctx
// ends.
func (s *Service) Run(ctx context.Context) {
	go s.events.Run()
	if err := s.StartScraping(); err != nil {
		s.logger.Error("initial scrape start failed", zap.Error(err))
	}
	<-ctx.Done()
	s.Close()
}

// StartScraping launches the scheduler and worker pool. Starting while
// already running is a successful no-op.
func (s *Service) StartScraping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Debug("scraping already running")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go func() {
		defer close(s.done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.sched.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			s.pool.Run(ctx)
		}()
		wg.Wait()
	}()

	s.logger.Info("scraping started",
		zap.Int("targets", len(s.targets)),
		zap.Int("workers", s.cfg.Scraper.Concurrency))
	return nil
}

// StopScraping cancels the scheduler and waits for workers to drain.
func (s *Service) StopScraping() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return errors.New("scraping not running")
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scraping stopped")
	return nil
}

// Running reports whether the scrape pipeline is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerTarget enqueues on-demand jobs for one named restaurant.
func (s *Service) TriggerTarget(ctx context.Context, name string) (int, error) {
	target, ok := s.targets[scrape.Target{Name: name}.Key()]
	if !ok {
		return 0, scrape.ErrNotFound
	}
	return s.sched.Trigger(ctx, target)
}

// Close stops scraping and releases every held resource.
func (s *Service) Close() {
	if s.Running() {
		if err := s.StopScraping(); err != nil {
			s.logger.Warn("stop scraping during close", zap.Error(err))
		}
	}
	s.events.Close()
	s.queue.Close()
	for _, closeFn := range s.closers {
		closeFn()
	}
}

// Package api exposes the HTTP interface for the scrape service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/plateiq/restaurant-intel/internal/events"
	"github.com/plateiq/restaurant-intel/internal/metrics"
	"github.com/plateiq/restaurant-intel/internal/scrape"
)

// Control is the scrape lifecycle surface exposed over HTTP.
type Control interface {
	StartScraping() error
	StopScraping() error
	TriggerTarget(ctx context.Context, name string) (int, error)
	Running() bool
}

// Config carries the HTTP-layer knobs.
type Config struct {
	ListTTL        time.Duration
	DetailTTL      time.Duration
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the store, cache, and control plane.
type Server struct {
	router  chi.Router
	store   scrape.Store
	cache   scrape.Cache
	events  *events.Broadcaster
	control Control
	clock   scrape.Clock
	cfg     Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store scrape.Store,
	cache scrape.Cache,
	bc *events.Broadcaster,
	control Control,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = 3 * time.Minute
	}
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = 10 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:   store,
		cache:   cache,
		events:  bc,
		control: control,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/ws", s.websocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(metricsMiddleware)
		r.Use(timeoutMiddleware(cfg.RequestTimeout))

		r.Route("/restaurants", func(r chi.Router) {
			r.Get("/", s.listRestaurants)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.getRestaurant)
				r.Get("/reviews", s.getRestaurantReviews)
			})
		})
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/summary", s.analyticsSummary)
			r.Get("/trends", s.analyticsTrends)
		})
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/start", s.startScraping)
			r.Post("/stop", s.stopScraping)
			r.Post("/trigger/{name}", s.triggerTarget)
			r.Get("/status", s.scrapeStatus)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// cached serves the JSON payload under key from the cache, building and
// storing it on a miss.
func (s *Server) cached(w http.ResponseWriter, key string, ttl time.Duration, build func() (any, error)) {
	if body, ok := s.cache.Get(key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(body); err != nil {
			s.logger.Error("write cached response failed", zap.Error(err))
		}
		return
	}
	payload, err := build()
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.logger.Error("build response failed", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.cache.Put(key, body, ttl)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

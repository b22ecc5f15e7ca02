package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

func cacheKey(name string) string {
	return "restaurant_" + strings.ToLower(strings.TrimSpace(name))
}

type restaurantSummary struct {
	Name           string         `json:"name"`
	URL            string         `json:"url"`
	Status         *scrape.Status `json:"status,omitempty"`
	TotalMenuItems int            `json:"total_menu_items"`
	LastScrapedAt  *time.Time     `json:"last_scraped_at,omitempty"`
}

func (s *Server) listRestaurants(w http.ResponseWriter, r *http.Request) {
	s.cached(w, "restaurants_list", s.cfg.ListTTL, func() (any, error) {
		ctx := r.Context()
		targets, err := s.store.ListTargets(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]restaurantSummary, 0, len(targets))
		for _, target := range targets {
			summary := restaurantSummary{Name: target.Name, URL: target.URL}
			if status, err := s.store.GetStatus(ctx, target.Name); err == nil {
				summary.Status = &status
				summary.LastScrapedAt = status.LastMenuScrape
			}
			if snap, err := s.store.LatestMenuSnapshot(ctx, target.Name); err == nil {
				summary.TotalMenuItems = snap.TotalItems
			}
			out = append(out, summary)
		}
		return map[string]any{
			"restaurants": out,
			"count":       len(out),
		}, nil
	})
}

func (s *Server) getRestaurant(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.cached(w, cacheKey(name)+"_detail", s.cfg.DetailTTL, func() (any, error) {
		ctx := r.Context()
		snap, err := s.store.LatestMenuSnapshot(ctx, name)
		if err != nil {
			return nil, err
		}
		payload := map[string]any{
			"name": snap.Target,
			"menu": snap,
		}
		if status, err := s.store.GetStatus(ctx, name); err == nil {
			payload["status"] = status
		}
		return payload, nil
	})
}

func (s *Server) getRestaurantReviews(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 24*30 {
			writeError(w, http.StatusBadRequest, "hours must be between 1 and 720")
			return
		}
		hours = parsed
	}

	key := fmt.Sprintf("%s_reviews_%d", cacheKey(name), hours)
	s.cached(w, key, s.cfg.ListTTL, func() (any, error) {
		ctx := r.Context()
		since := s.clock.Now().Add(-time.Duration(hours) * time.Hour)
		reviews, err := s.store.RecentReviews(ctx, name, since)
		if err != nil {
			return nil, err
		}
		batches, err := s.store.ReviewBatches(ctx, name)
		if err != nil {
			return nil, err
		}
		payload := map[string]any{
			"name":    name,
			"hours":   hours,
			"reviews": reviews,
			"count":   len(reviews),
		}
		if len(batches) > 0 {
			latest := batches[len(batches)-1]
			payload["sentiment_summary"] = latest.Sentiment
			payload["themes"] = latest.Themes
			payload["top_words"] = latest.TopWords
		}
		return payload, nil
	})
}

func (s *Server) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	s.cached(w, "analytics_summary", s.cfg.ListTTL, func() (any, error) {
		return s.store.AnalyticsSummary(r.Context(), s.clock.Now())
	})
}

func (s *Server) analyticsTrends(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 90")
			return
		}
		days = parsed
	}
	key := fmt.Sprintf("analytics_trends_%d", days)
	s.cached(w, key, s.cfg.ListTTL, func() (any, error) {
		return s.store.Trends(r.Context(), s.clock.Now(), days)
	})
}

func (s *Server) startScraping(w http.ResponseWriter, _ *http.Request) {
	if err := s.control.StartScraping(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

func (s *Server) stopScraping(w http.ResponseWriter, _ *http.Request) {
	if err := s.control.StopScraping(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

func (s *Server) triggerTarget(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	enqueued, err := s.control.TriggerTarget(r.Context(), name)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown restaurant")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"name":          name,
		"jobs_enqueued": enqueued,
	})
}

func (s *Server) scrapeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targets, err := s.store.ListTargets(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	statuses := make([]scrape.Status, 0, len(targets))
	for _, target := range targets {
		if status, err := s.store.GetStatus(ctx, target.Name); err == nil {
			statuses = append(statuses, status)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":       s.control.Running(),
		"targets":       len(targets),
		"statuses":      statuses,
		"subscribers":   s.events.Subscribers(),
		"recent_events": s.events.Recent(),
	})
}

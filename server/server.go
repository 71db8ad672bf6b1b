// Package server exposes the listings core over HTTP for the UI layer.
// It is a thin facade: all caching, validation, and commute policy live
// in the components it wires together.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"swipehouse/cache"
	"swipehouse/commute"
	"swipehouse/models"
	"swipehouse/services"
	"swipehouse/utils"
)

// Server routes UI requests to the listings cache and commute engine.
type Server struct {
	cache    *cache.Cache
	pipeline *services.Pipeline
	commute  *commute.Engine
	insights *services.InsightService
	logger   *utils.Logger

	mu   sync.RWMutex
	last []*models.Listing // accepted set from the most recent query

	onResult func(services.PipelineResult)
}

// OnResult registers a hook invoked (on its own goroutine) after every
// pipeline pass, e.g. for snapshot persistence.
func (s *Server) OnResult(fn func(services.PipelineResult)) {
	s.onResult = fn
}

// Seed preloads the held listing set, e.g. from a persisted snapshot,
// so commute and insight queries work before the first live query.
func (s *Server) Seed(listings []*models.Listing) {
	if len(listings) == 0 {
		return
	}
	s.mu.Lock()
	s.last = listings
	s.mu.Unlock()
}

// New creates a Server over the given components.
func New(c *cache.Cache, p *services.Pipeline, e *commute.Engine, logger *utils.Logger) *Server {
	return &Server{cache: c, pipeline: p, commute: e, insights: services.NewInsightService(logger), logger: logger}
}

// Router builds the chi router for the API surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/api/listings", s.handleListings)
	r.Get("/api/commute", s.handleCommute)
	r.Get("/api/insights", s.handleInsights)
	r.Get("/api/cache/stats", s.handleCacheStats)
	r.Delete("/api/cache", s.handleCacheClear)

	return r
}

// listingsResponse is the envelope handed to the UI layer.
type listingsResponse struct {
	Listings   []*models.Listing    `json:"listings"`
	Stats      models.PipelineStats `json:"stats"`
	FromCache  bool                 `json:"fromCache"`
	Stale      bool                 `json:"stale"`
	Refreshing bool                 `json:"refreshing"`
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromQuery(r)

	result, err := s.cache.Fetch(r.Context(), filters)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nothing to report.
			return
		}
		s.logger.Error("[server] listings fetch failed: %v", err)
		writeError(w, http.StatusBadGateway, "listing query failed with no cached fallback")
		return
	}

	res := s.pipeline.ValidateAndFilter(services.ExtractRecords(result.Data), filters.Mode)

	s.mu.Lock()
	s.last = res.Accepted
	s.mu.Unlock()

	if s.onResult != nil {
		go s.onResult(res)
	}

	writeJSON(w, http.StatusOK, listingsResponse{
		Listings:   res.Accepted,
		Stats:      res.Stats,
		FromCache:  result.FromCache,
		Stale:      result.Stale,
		Refreshing: result.Refreshing,
	})
}

func (s *Server) handleCommute(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	mode := commute.Mode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = commute.ModeDriving
	}

	s.mu.RLock()
	listings := s.last
	s.mu.RUnlock()

	if address == "" || len(listings) == 0 {
		writeError(w, http.StatusBadRequest, "commute requires an address and a prior listing query")
		return
	}

	durations := s.commute.Durations(r.Context(), address, listings, mode)
	if durations == nil {
		writeJSON(w, http.StatusOK, map[string]any{"durations": nil})
		return
	}

	s.mu.Lock()
	commute.Apply(s.last, durations)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"durations": durations})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	listings := s.last
	s.mu.RUnlock()

	if len(listings) == 0 {
		writeError(w, http.StatusBadRequest, "no listings loaded; query /api/listings first")
		return
	}

	writeJSON(w, http.StatusOK, s.insights.Generate(listings))
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(); err != nil {
		s.logger.Error("[server] cache clear failed: %v", err)
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// filtersFromQuery maps URL query params onto the filter shape. Missing
// params stay zero-valued and drop out of the cache key.
func filtersFromQuery(r *http.Request) models.Filters {
	q := r.URL.Query()

	f := models.Filters{
		Mode:      models.Mode(q.Get("mode")),
		City:      q.Get("city"),
		State:     q.Get("state"),
		Latitude:  q.Get("latitude"),
		Longitude: q.Get("longitude"),
		Radius:    q.Get("radius"),
		Price:     q.Get("price"),
		Bedrooms:  q.Get("bedrooms"),
		Bathrooms: q.Get("bathrooms"),
	}
	if f.Mode == "" {
		f.Mode = models.ModeRent
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = v
	}
	return f
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("[server] %s %s (%v)", r.Method, r.URL.Path, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

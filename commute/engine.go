// Package commute computes travel times from each listing to a
// user-supplied address. It is a best-effort enhancement: every failure
// mode degrades to "no result" rather than an error the UI would have
// to handle.
package commute

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"swipehouse/mapbox"
	"swipehouse/models"
	"swipehouse/utils"
)

// Mode is the requested travel mode.
type Mode string

const (
	ModeDriving Mode = "driving"
	ModeWalking Mode = "walking"
	ModeCycling Mode = "cycling"
	ModeTransit Mode = "transit"
)

// profiles maps travel modes to upstream routing profiles. The matrix
// provider has no transit profile; driving is the closest approximation
// and is substituted silently.
var profiles = map[Mode]string{
	ModeDriving: "mapbox/driving",
	ModeWalking: "mapbox/walking",
	ModeCycling: "mapbox/cycling",
	ModeTransit: "mapbox/driving",
}

// Profile resolves a travel mode to its routing profile, defaulting to
// driving for unknown modes.
func Profile(m Mode) string {
	if p, ok := profiles[m]; ok {
		return p
	}
	return profiles[ModeDriving]
}

// DefaultChunkSize is the matrix provider's per-request origin limit.
const DefaultChunkSize = 25

// Geocoder resolves a free-text address to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (mapbox.Point, bool)
}

// MatrixAPI fetches an N×1 duration matrix in seconds.
type MatrixAPI interface {
	Durations(ctx context.Context, origins []mapbox.Point, dest mapbox.Point, profile string) ([]float64, error)
}

// Engine batches listings into provider-sized chunks and resolves
// commute minutes per listing, caching the most recent computation.
type Engine struct {
	geo    Geocoder
	matrix MatrixAPI
	slot   SlotStore
	logger *utils.Logger

	chunkSize   int
	concurrency int
	rateLimitMs int

	now func() time.Time
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithChunkSize overrides the per-request origin limit.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithConcurrency bounds parallel chunk requests and spaces them by the
// given interval.
func WithConcurrency(workers, rateLimitMs int) Option {
	return func(e *Engine) {
		if workers > 0 {
			e.concurrency = workers
		}
		e.rateLimitMs = rateLimitMs
	}
}

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine over the given collaborators.
func NewEngine(geo Geocoder, matrix MatrixAPI, slot SlotStore, logger *utils.Logger, opts ...Option) *Engine {
	e := &Engine{
		geo:         geo,
		matrix:      matrix,
		slot:        slot,
		logger:      logger,
		chunkSize:   DefaultChunkSize,
		concurrency: 3,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IDsHash is the listing-set identity: the ordered listing ids joined
// with "|". Any change to membership or order is a cache miss.
func IDsHash(listings []*models.Listing) string {
	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	return strings.Join(ids, "|")
}

// Durations resolves commute minutes per listing id for the given
// address and travel mode. A nil map means no result: blank address,
// no listings with usable coordinates, failed geocode, or every chunk
// request failing. A cache hit requires exact equality on address,
// listing-set identity, and mode.
func (e *Engine) Durations(ctx context.Context, address string, listings []*models.Listing, mode Mode) map[string]int {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" || len(listings) == 0 {
		return nil
	}

	idsHash := IDsHash(listings)
	if slot, ok, err := e.slot.Load(); err == nil && ok &&
		slot.Address == trimmed && slot.IDsHash == idsHash && slot.Profile == mode {
		e.logger.Debug("[commute] cache hit for %q (%d durations)", trimmed, len(slot.Durations))
		return slot.Durations
	}

	origins := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if finite(l.Lat) && finite(l.Lng) {
			origins = append(origins, l)
		}
	}
	if len(origins) == 0 {
		return nil
	}

	dest, ok := e.geo.Geocode(ctx, trimmed)
	if !ok {
		e.logger.Warn("[commute] geocode failed for %q, skipping commute computation", trimmed)
		return nil
	}

	durations := e.fetchChunked(ctx, origins, dest, Profile(mode))
	if len(durations) == 0 {
		return nil
	}

	if err := e.slot.Save(&Slot{
		Address:   trimmed,
		IDsHash:   idsHash,
		Profile:   mode,
		Durations: durations,
		Timestamp: e.now().UnixMilli(),
	}); err != nil {
		e.logger.Warn("[commute] cache write failed: %v", err)
	}
	return durations
}

// fetchChunked fans matrix requests out over provider-sized origin
// chunks. Chunks resolve independently and out of order; a failed chunk
// just leaves its listings without a duration. Assembly is keyed by
// listing id, never by position.
func (e *Engine) fetchChunked(ctx context.Context, origins []*models.Listing, dest mapbox.Point, profile string) map[string]int {
	var mu sync.Mutex
	durations := make(map[string]int)

	pool := utils.NewWorkerPool(e.concurrency, e.rateLimitMs)
	for start := 0; start < len(origins); start += e.chunkSize {
		end := min(start+e.chunkSize, len(origins))
		chunk := origins[start:end]

		pool.Submit(func() {
			points := make([]mapbox.Point, len(chunk))
			for i, l := range chunk {
				points[i] = mapbox.Point{Lat: l.Lat, Lng: l.Lng}
			}

			seconds, err := e.matrix.Durations(ctx, points, dest, profile)
			if err != nil {
				e.logger.Warn("[commute] matrix chunk of %d failed: %v", len(chunk), err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			for i, l := range chunk {
				if i >= len(seconds) || !finite(seconds[i]) {
					continue
				}
				durations[l.ID] = toMinutes(seconds[i])
			}
		})
	}
	pool.Wait()

	return durations
}

// toMinutes converts seconds to whole minutes with a 1-minute floor for
// any finite result.
func toMinutes(seconds float64) int {
	mins := int(math.Round(seconds / 60))
	if mins < 1 {
		return 1
	}
	return mins
}

// Apply copies computed durations onto the listings in place,
// returning how many were set.
func Apply(listings []*models.Listing, durations map[string]int) int {
	if len(durations) == 0 {
		return 0
	}
	applied := 0
	for _, l := range listings {
		if mins, ok := durations[l.ID]; ok {
			l.CommuteMins = mins
			applied++
		}
	}
	return applied
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

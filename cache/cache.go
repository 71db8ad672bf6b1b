package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"swipehouse/models"
	"swipehouse/utils"
)

// Default staleness policy. Fresh entries are served as-is, entries past
// the fresh TTL but within the stale TTL are served with a background
// refresh, and anything older forces a blocking fetch. The wide windows
// are deliberate: upstream quota is scarce, and serving week-old data
// beats failing closed.
const (
	DefaultFreshTTL     = 24 * time.Hour
	DefaultStaleTTL     = 7 * 24 * time.Hour
	DefaultRefreshAfter = 30 * time.Minute

	refreshTimeout = 45 * time.Second
)

// FetchFunc performs the blocking upstream listing query for a filter set.
type FetchFunc func(ctx context.Context, f models.Filters) (json.RawMessage, error)

// FetchResult is the envelope handed back to collaborators.
type FetchResult struct {
	Data       json.RawMessage `json:"data"`
	FromCache  bool            `json:"fromCache"`
	Stale      bool            `json:"stale"`
	Refreshing bool            `json:"refreshing"`
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries   int           `json:"entries"`
	OldestAge time.Duration `json:"oldestAge"`
	TotalSize int           `json:"totalSize"`
}

// Cache is the stale-while-revalidate response cache for listing
// queries, keyed by the canonical filter key. At most one fetch or
// background refresh is in flight per key at any time.
type Cache struct {
	store  Store
	fetch  FetchFunc
	logger *utils.Logger

	freshTTL     time.Duration
	staleTTL     time.Duration
	refreshAfter time.Duration

	inflight *utils.KeySet

	subMu sync.Mutex
	subs  map[string][]chan json.RawMessage

	now func() time.Time
}

// Option tweaks cache construction.
type Option func(*Cache)

// WithTTLs overrides the staleness policy.
func WithTTLs(fresh, stale, refreshAfter time.Duration) Option {
	return func(c *Cache) {
		c.freshTTL = fresh
		c.staleTTL = stale
		c.refreshAfter = refreshAfter
	}
}

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache over the given store and fetch function.
func New(store Store, fetch FetchFunc, logger *utils.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:        store,
		fetch:        fetch,
		logger:       logger,
		freshTTL:     DefaultFreshTTL,
		staleTTL:     DefaultStaleTTL,
		refreshAfter: DefaultRefreshAfter,
		inflight:     utils.NewKeySet(),
		subs:         make(map[string][]chan json.RawMessage),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch resolves a listing query through the cache:
//
//   - fresh entry: returned synchronously; if it is old enough, a
//     non-blocking refresh is kicked off opportunistically.
//   - stale entry: returned immediately with Stale set, refresh always
//     triggered in the background.
//   - no usable entry: blocking upstream call. On failure, any existing
//     entry (however old) is served as a stale fallback; with no entry
//     at all the error propagates.
//
// Context cancellation aborts the blocking call and is returned as-is:
// it is not a network failure and does not take the stale-fallback path.
func (c *Cache) Fetch(ctx context.Context, filters models.Filters) (*FetchResult, error) {
	key := StableKey(filters)

	entry, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("[cache] read failed for %s: %v", key, err)
		ok = false
	}

	now := c.now()
	if ok {
		age := now.Sub(time.UnixMilli(entry.Timestamp))

		if age < c.freshTTL {
			if age > c.refreshAfter {
				c.backgroundRefresh(filters, key)
			}
			return &FetchResult{Data: entry.Payload, FromCache: true}, nil
		}

		if age < c.staleTTL {
			c.backgroundRefresh(filters, key)
			return &FetchResult{Data: entry.Payload, FromCache: true, Stale: true, Refreshing: true}, nil
		}
	}

	payload, err := c.fetch(ctx, filters)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil, err
		}
		if ok {
			c.logger.Warn("[cache] fetch failed for %s, serving ancient entry: %v", key, err)
			return &FetchResult{Data: entry.Payload, FromCache: true, Stale: true}, nil
		}
		return nil, err
	}

	c.setWithEviction(key, &Entry{Timestamp: now.UnixMilli(), Payload: payload})
	return &FetchResult{Data: payload}, nil
}

// backgroundRefresh revalidates one key without blocking the caller.
// Concurrent triggers for the same key collapse into a single in-flight
// fetch; completion is announced to subscribers on success.
func (c *Cache) backgroundRefresh(filters models.Filters, key string) {
	if !c.inflight.Add(key) {
		return
	}

	if entry, ok, _ := c.store.Get(key); ok && !entry.Refreshing {
		entry.Refreshing = true
		c.setWithEviction(key, entry)
	}

	go func() {
		defer c.inflight.Remove(key)

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		payload, err := c.fetch(ctx, filters)
		if err != nil {
			c.logger.Warn("[cache] background refresh failed for %s: %v", key, err)
			if entry, ok, _ := c.store.Get(key); ok && entry.Refreshing {
				entry.Refreshing = false
				c.setWithEviction(key, entry)
			}
			return
		}

		c.setWithEviction(key, &Entry{Timestamp: c.now().UnixMilli(), Payload: payload})
		c.broadcast(key, payload)
	}()
}

// setWithEviction writes an entry, evicting oldest-first on storage
// failure until the write succeeds or the cache is empty. Exhaustion is
// absorbed here, never surfaced to the caller.
func (c *Cache) setWithEviction(key string, e *Entry) {
	for {
		err := c.store.Set(key, e)
		if err == nil {
			return
		}

		infos, kerr := c.store.Keys()
		if kerr != nil || len(infos) == 0 {
			c.logger.Error("[cache] write failed with nothing left to evict: %v", err)
			return
		}

		oldest := infos[0]
		for _, info := range infos[1:] {
			if info.Timestamp < oldest.Timestamp {
				oldest = info
			}
		}
		c.logger.Warn("[cache] write failed (%v), evicting oldest entry %s", err, oldest.Key)
		if derr := c.store.Delete(oldest.Key); derr != nil {
			c.logger.Error("[cache] eviction failed: %v", derr)
			return
		}
	}
}

// Subscribe registers interest in background-refresh completions for the
// canonical key of the given filters. The returned channel receives the
// new payload after each successful refresh; slow receivers miss updates
// rather than blocking the cache.
func (c *Cache) Subscribe(filters models.Filters) (<-chan json.RawMessage, func()) {
	key := StableKey(filters)
	ch := make(chan json.RawMessage, 1)

	c.subMu.Lock()
	c.subs[key] = append(c.subs[key], ch)
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		chans := c.subs[key]
		for i, existing := range chans {
			if existing == ch {
				c.subs[key] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		if len(c.subs[key]) == 0 {
			delete(c.subs, key)
		}
	}
	return ch, cancel
}

func (c *Cache) broadcast(key string, payload json.RawMessage) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subs[key] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Clear drops every cached entry.
func (c *Cache) Clear() error {
	return c.store.Clear()
}

// Stats reports entry count, oldest entry age, and total payload size.
func (c *Cache) Stats() Stats {
	infos, err := c.store.Keys()
	if err != nil {
		c.logger.Warn("[cache] stats read failed: %v", err)
		return Stats{}
	}

	s := Stats{Entries: len(infos)}
	now := c.now()
	for _, info := range infos {
		if age := now.Sub(time.UnixMilli(info.Timestamp)); age > s.OldestAge {
			s.OldestAge = age
		}
		s.TotalSize += info.Size
	}
	return s
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swipehouse/models"
	"swipehouse/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// fetchStub counts upstream calls and serves canned payloads or errors.
type fetchStub struct {
	calls   atomic.Int64
	payload json.RawMessage
	err     error
	gate    chan struct{} // if set, blocks until closed
}

func (f *fetchStub) fetch(ctx context.Context, _ models.Filters) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func testFilters() models.Filters {
	return models.Filters{Mode: models.ModeRent, Price: "2200-5200", Limit: 50}
}

func seedEntry(t *testing.T, store Store, filters models.Filters, age time.Duration, clock *fakeClock, payload string) {
	t.Helper()
	err := store.Set(StableKey(filters), &Entry{
		Timestamp: clock.Now().Add(-age).UnixMilli(),
		Payload:   json.RawMessage(payload),
	})
	require.NoError(t, err)
}

func TestFetchFreshHitNoNetwork(t *testing.T) {
	store := NewMemoryStore()
	stub := &fetchStub{payload: json.RawMessage(`{"listings":[]}`)}
	clock := newFakeClock()
	c := New(store, stub.fetch, utils.NewLogger(), WithClock(clock.Now))

	seedEntry(t, store, testFilters(), 10*time.Minute, clock, `{"cached":true}`)

	res, err := c.Fetch(context.Background(), testFilters())
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.False(t, res.Stale)
	assert.False(t, res.Refreshing)
	assert.JSONEq(t, `{"cached":true}`, string(res.Data))
	assert.EqualValues(t, 0, stub.calls.Load(), "a young fresh entry must not touch the network")
}

func TestFetchFreshOpportunisticRefresh(t *testing.T) {
	store := NewMemoryStore()
	stub := &fetchStub{payload: json.RawMessage(`{"v":2}`)}
	clock := newFakeClock()
	c := New(store, stub.fetch, utils.NewLogger(), WithClock(clock.Now))

	// Past the refresh threshold but well within the fresh TTL.
	seedEntry(t, store, testFilters(), 2*time.Hour, clock, `{"v":1}`)

	updates, cancel := c.Subscribe(testFilters())
	defer cancel()

	res, err := c.Fetch(context.Background(), testFilters())
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.False(t, res.Stale, "fresh data is returned as fresh even while revalidating")

	select {
	case payload := <-updates:
		assert.JSONEq(t, `{"v":2}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("background refresh never completed")
	}
	assert.EqualValues(t, 1, stub.calls.Load())
}

func TestFetchStaleServesAndRevalidates(t *testing.T) {
	store := NewMemoryStore()
	stub := &fetchStub{payload: json.RawMessage(`{"v":2}`), gate: make(chan struct{})}
	clock := newFakeClock()
	c := New(store, stub.fetch, utils.NewLogger(), WithClock(clock.Now))

	// 25h: past the 24h fresh TTL, inside the 7-day stale window.
	seedEntry(t, store, testFilters(), 25*time.Hour, clock, `{"v":1}`)

	updates, cancel := c.Subscribe(testFilters())
	defer cancel()

	res, err := c.Fetch(context.Background(), testFilters())
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.True(t, res.Stale)
	assert.True(t, res.Refreshing)
	assert.JSONEq(t, `{"v":1}`, string(res.Data))

	// Concurrent triggers while the refresh is in flight must collapse.
	for i := 0; i < 5; i++ {
		_, err := c.Fetch(context.Background(), testFilters())
		require.NoError(t, err)
	}
	close(stub.gate)

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("background refresh never completed")
	}
	assert.EqualValues(t, 1, stub.calls.Load(), "concurrent stale reads must share one in-flight refresh")
}

func TestFetchMustFetchPopulatesCache(t *testing.T) {
	store := NewMemoryStore()
	stub := &fetchStub{payload: json.RawMessage(`{"fresh":true}`)}
	clock := newFakeClock()
	c := New(store, stub.fetch, utils.NewLogger(), WithClock(clock.Now))

	res, err := c.Fetch(context.Background(), testFilters())
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.False(t, res.Stale)

	// Second query hits the cache.
	res2, err := c.Fetch(context.Background(), testFilters())
	require.NoError(t, err)
	assert.True(t, res2.FromCache)
	assert.EqualValues(t, 1, stub.calls.Load())
}

func TestFetchFailureNoCacheErrors(t *testing.T) {
	store := NewMemoryStore()
	stub := &fetchStub{err: errors.New("upstream down")}
	c := New(store, stub.fetch, utils.NewLogger())

	_, err := c.Fetch(context.Background(), testFilters())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestFetchFailureFallsBackToAncientEntry(t *testing.T) {
	store := NewMemoryStore()
	stub := &fetchStub{err: errors.New("upstream down")}
	clock := newFakeClock()
	c := New(store, stub.fetch, utils.NewLogger(), WithClock(clock.Now))

	// 8 days old: past even the stale TTL, usable only as a fallback.
	seedEntry(t, store, testFilters(), 8*24*time.Hour, clock, `{"ancient":true}`)

	res, err := c.Fetch(context.Background(), testFilters())
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.True(t, res.Stale)
	assert.False(t, res.Refreshing)
	assert.JSONEq(t, `{"ancient":true}`, string(res.Data))
}

func TestFetchCancellationIsNotAFailure(t *testing.T) {
	store := NewMemoryStore()
	stub := &fetchStub{payload: json.RawMessage(`{}`), gate: make(chan struct{})}
	clock := newFakeClock()
	c := New(store, stub.fetch, utils.NewLogger(), WithClock(clock.Now))

	// An ancient entry exists, but a cancelled call must NOT take the
	// stale-fallback path; cancellation is not a network failure.
	seedEntry(t, store, testFilters(), 8*24*time.Hour, clock, `{"ancient":true}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var fetchErr error
	go func() {
		_, fetchErr = c.Fetch(ctx, testFilters())
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled fetch never returned")
	}

	require.Error(t, fetchErr)
	assert.ErrorIs(t, fetchErr, context.Canceled)

	// Cache state must be intact.
	entry, ok, err := store.Get(StableKey(testFilters()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"ancient":true}`, string(entry.Payload))
}

// quotaStore fails writes of new keys once it holds max entries,
// imitating storage quota exhaustion.
type quotaStore struct {
	*MemoryStore
	max int
}

func (q *quotaStore) Set(key string, e *Entry) error {
	if _, ok, _ := q.MemoryStore.Get(key); !ok {
		if infos, _ := q.MemoryStore.Keys(); len(infos) >= q.max {
			return errors.New("storage quota exceeded")
		}
	}
	return q.MemoryStore.Set(key, e)
}

func TestSetEvictsOldestOnQuotaPressure(t *testing.T) {
	store := &quotaStore{MemoryStore: NewMemoryStore(), max: 2}
	stub := &fetchStub{payload: json.RawMessage(`{"new":true}`)}
	clock := newFakeClock()
	c := New(store, stub.fetch, utils.NewLogger(), WithClock(clock.Now))

	oldest := models.Filters{Mode: models.ModeRent, Price: "1-2"}
	newer := models.Filters{Mode: models.ModeRent, Price: "3-4"}
	seedEntry(t, store, oldest, 20*time.Hour, clock, `{"old":1}`)
	seedEntry(t, store, newer, 1*time.Hour, clock, `{"old":2}`)

	// Store is full; this must evict the oldest entry and retry.
	_, err := c.Fetch(context.Background(), testFilters())
	require.NoError(t, err)

	_, ok, _ := store.Get(StableKey(oldest))
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok, _ = store.Get(StableKey(newer))
	assert.True(t, ok, "newer entry should survive")
	entry, ok, _ := store.Get(StableKey(testFilters()))
	require.True(t, ok, "new entry should have been written after eviction")
	assert.JSONEq(t, `{"new":true}`, string(entry.Payload))
}

func TestSubscribeScopedToKey(t *testing.T) {
	store := NewMemoryStore()
	stub := &fetchStub{payload: json.RawMessage(`{"v":2}`)}
	clock := newFakeClock()
	c := New(store, stub.fetch, utils.NewLogger(), WithClock(clock.Now))

	other := models.Filters{Mode: models.ModeBuy}
	seedEntry(t, store, testFilters(), 25*time.Hour, clock, `{"v":1}`)

	matched, cancelMatched := c.Subscribe(testFilters())
	defer cancelMatched()
	unrelated, cancelUnrelated := c.Subscribe(other)
	defer cancelUnrelated()

	_, err := c.Fetch(context.Background(), testFilters())
	require.NoError(t, err)

	select {
	case <-matched:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber for the refreshed key never notified")
	}

	select {
	case <-unrelated:
		t.Fatal("subscriber for a different key must not be notified")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStats(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	c := New(store, (&fetchStub{}).fetch, utils.NewLogger(), WithClock(clock.Now))

	for i, age := range []time.Duration{time.Hour, 3 * time.Hour} {
		f := models.Filters{Mode: models.ModeRent, Price: fmt.Sprintf("%d-1000", i)}
		seedEntry(t, store, f, age, clock, `{"x":1}`)
	}

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 3*time.Hour, stats.OldestAge)
	assert.Equal(t, 2*len(`{"x":1}`), stats.TotalSize)

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Stats().Entries)
}

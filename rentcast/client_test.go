package rentcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swipehouse/models"
	"swipehouse/utils"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New("test-key", 1000, 1, utils.NewLogger())
	c.SetBaseURL(srv.URL)
	return c, srv
}

func TestSearchParamMapping(t *testing.T) {
	var captured *http.Request
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Write([]byte(`[]`))
	})
	defer srv.Close()

	_, err := c.Search(context.Background(), models.Filters{
		Mode:      models.ModeRent,
		Latitude:  "40.7128",
		Longitude: "-74.0060",
		Radius:    "15",
		Price:     "2200-5200",
		Bedrooms:  "1-3",
		Bathrooms: "1-2",
		Limit:     50,
	})
	require.NoError(t, err)
	require.NotNil(t, captured)

	assert.Equal(t, "/listings/rental/long-term", captured.URL.Path)
	assert.Equal(t, "test-key", captured.Header.Get("X-Api-Key"))

	q := captured.URL.Query()
	assert.Equal(t, "2200", q.Get("priceMin"))
	assert.Equal(t, "5200", q.Get("priceMax"))
	assert.Equal(t, "1", q.Get("bedroomsMin"))
	assert.Equal(t, "3", q.Get("bedroomsMax"))
	assert.Equal(t, "1", q.Get("bathroomsMin"))
	assert.Equal(t, "2", q.Get("bathroomsMax"))
	assert.Equal(t, "40.7128", q.Get("latitude"))
	assert.Equal(t, "15", q.Get("radius"))
	assert.Equal(t, "50", q.Get("limit"))
	assert.Empty(t, q.Get("price"), "raw range param must not leak upstream")
}

func TestSearchBuyModeEndpoint(t *testing.T) {
	var path string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"listings":[]}`))
	})
	defer srv.Close()

	_, err := c.Search(context.Background(), models.Filters{Mode: models.ModeBuy})
	require.NoError(t, err)
	assert.Equal(t, "/listings/sale", path)
}

func TestSearchRadiusRequiresCoordinates(t *testing.T) {
	var q map[string][]string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.Query()
		w.Write([]byte(`[]`))
	})
	defer srv.Close()

	_, err := c.Search(context.Background(), models.Filters{
		Mode: models.ModeRent, City: "New York", State: "NY", Radius: "15",
	})
	require.NoError(t, err)
	assert.NotContains(t, q, "radius", "radius without coordinates must be dropped")
	assert.Equal(t, []string{"New York"}, q["city"])
}

func TestSearchReturnsRawBody(t *testing.T) {
	body := `{"listings":[{"id":"x","price":2400}]}`
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	defer srv.Close()

	got, err := c.Search(context.Background(), models.Filters{Mode: models.ModeRent})
	require.NoError(t, err)
	assert.JSONEq(t, body, string(got))
}

func TestSearchNon200IsError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := c.Search(context.Background(), models.Filters{Mode: models.ModeRent})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New("test-key", 1000, 3, utils.NewLogger())
	c.SetBaseURL(srv.URL)
	c.retry.BaseDelay = 0

	_, err := c.Search(context.Background(), models.Filters{Mode: models.ModeRent})
	require.NoError(t, err)
	assert.EqualValues(t, 2, attempts.Load())
}

func TestSearchCancelledContext(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, models.Filters{Mode: models.ModeRent})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetRangeOpenEnded(t *testing.T) {
	var q map[string][]string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.Query()
		w.Write([]byte(`[]`))
	})
	defer srv.Close()

	_, err := c.Search(context.Background(), models.Filters{Mode: models.ModeRent, Price: "2200-"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2200"}, q["priceMin"])
	assert.NotContains(t, q, "priceMax")
}

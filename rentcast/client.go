// Package rentcast talks to the upstream listing-search API. The
// service is treated as an opaque boundary with scarce quota: requests
// are rate limited client-side and transient failures retried with
// backoff.
package rentcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"swipehouse/models"
	"swipehouse/utils"
)

const (
	defaultBaseURL = "https://api.rentcast.io/v1"

	endpointRent = "/listings/rental/long-term"
	endpointSale = "/listings/sale"
)

// Client queries the listing-search API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   *utils.RetryConfig
	logger  *utils.Logger
}

// New creates a Client. maxRPS bounds the request rate toward the
// upstream; zero means a conservative 1 req/s.
func New(apiKey string, maxRPS float64, retries int, logger *utils.Logger) *Client {
	if maxRPS <= 0 {
		maxRPS = 1
	}
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(maxRPS), 1),
		retry: &utils.RetryConfig{
			MaxAttempts: max(retries, 1),
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		logger: logger,
	}
}

// SetBaseURL points the client at a different endpoint (tests, proxies).
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// Search performs one listing query and returns the raw response body.
// The body is either a bare JSON array or an object wrapping a
// "listings" array; the validation pipeline handles both. The caller's
// context aborts the call.
func (c *Client) Search(ctx context.Context, f models.Filters) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.searchURL(f)

	var body []byte
	err := c.retry.Do(ctx, "rentcast search", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("rentcast: search returned %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("[rentcast] %s → %d bytes", reqURL, len(body))
	return json.RawMessage(body), nil
}

// searchURL maps the internal filter shape onto upstream query params.
// Range fields ("2200-5200") split into min/max pairs; radius only
// applies when coordinates are present.
func (c *Client) searchURL(f models.Filters) string {
	endpoint := endpointRent
	if f.Mode == models.ModeBuy {
		endpoint = endpointSale
	}

	q := url.Values{}
	setRange(q, "price", f.Price)
	setRange(q, "bedrooms", f.Bedrooms)
	setRange(q, "bathrooms", f.Bathrooms)

	if f.City != "" {
		q.Set("city", f.City)
	}
	if f.State != "" {
		q.Set("state", f.State)
	}

	hasCoords := f.Latitude != "" && f.Longitude != ""
	if hasCoords {
		q.Set("latitude", f.Latitude)
		q.Set("longitude", f.Longitude)
		if f.Radius != "" {
			q.Set("radius", f.Radius)
		}
	}

	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	return c.baseURL + endpoint + "?" + q.Encode()
}

// setRange splits a "min-max" range value into minKey/maxKey params.
// Open-ended ranges ("-5200", "2200-") set only the bounded side.
func setRange(q url.Values, key, val string) {
	if val == "" || !strings.Contains(val, "-") {
		if val != "" {
			q.Set(key+"Min", val)
		}
		return
	}
	parts := strings.SplitN(val, "-", 2)
	if parts[0] != "" {
		q.Set(key+"Min", parts[0])
	}
	if parts[1] != "" {
		q.Set(key+"Max", parts[1])
	}
}

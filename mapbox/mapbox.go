// Package mapbox wraps the geocoding and travel-time matrix endpoints.
// Both are best-effort collaborators: malformed or failed responses
// degrade to "no usable data", never to an error the commute engine
// would have to unwind.
package mapbox

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"swipehouse/utils"
)

// Point is a geographic coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// Client calls the Mapbox HTTP APIs.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *utils.Logger
}

// New creates a Client with the given access token.
func New(token string, logger *utils.Logger) *Client {
	return &Client{
		baseURL: "https://api.mapbox.com",
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// SetBaseURL points the client at a different host (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// Geocode resolves a free-text query to its single best coordinate.
// Returns ok=false for any failure: network error, empty result set, or
// a non-finite coordinate in the response.
func (c *Client) Geocode(ctx context.Context, query string) (Point, bool) {
	reqURL := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?limit=1&access_token=%s",
		c.baseURL, url.PathEscape(query), url.QueryEscape(c.token))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		c.logger.Debug("[mapbox] geocode %q failed: %v", query, err)
		return Point{}, false
	}

	center := gjson.GetBytes(body, "features.0.center")
	coords := center.Array()
	if !center.IsArray() || len(coords) < 2 {
		return Point{}, false
	}

	// Mapbox orders coordinates lng,lat.
	lng, lat := coords[0].Float(), coords[1].Float()
	if !finite(lat) || !finite(lng) {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

// Durations fetches an N×1 travel-time matrix from origins to dest,
// in seconds. Position i in the result corresponds to origins[i]; a
// missing or non-finite cell is reported as NaN. Returns an error for
// transport failures or unusable bodies so the engine can skip the
// chunk.
func (c *Client) Durations(ctx context.Context, origins []Point, dest Point, profile string) ([]float64, error) {
	if len(origins) == 0 {
		return nil, nil
	}

	coords := make([]string, 0, len(origins)+1)
	sources := make([]string, 0, len(origins))
	for i, o := range origins {
		coords = append(coords, formatCoord(o.Lng)+","+formatCoord(o.Lat))
		sources = append(sources, strconv.Itoa(i))
	}
	coords = append(coords, formatCoord(dest.Lng)+","+formatCoord(dest.Lat))
	destIndex := len(origins)

	reqURL := fmt.Sprintf("%s/directions-matrix/v1/%s/%s?sources=%s&destinations=%d&annotations=duration&access_token=%s",
		c.baseURL, profile, strings.Join(coords, ";"),
		strings.Join(sources, ";"), destIndex, url.QueryEscape(c.token))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	matrix := gjson.GetBytes(body, "durations")
	if !matrix.IsArray() {
		return nil, fmt.Errorf("mapbox: matrix response missing durations")
	}

	out := make([]float64, len(origins))
	rows := matrix.Array()
	for i := range out {
		out[i] = math.NaN()
		if i >= len(rows) {
			continue
		}
		cells := rows[i].Array()
		if len(cells) == 0 || cells[0].Type == gjson.Null {
			continue
		}
		if v := cells[0].Float(); finite(v) {
			out[i] = v
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("mapbox: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

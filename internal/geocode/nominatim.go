// Package geocode resolves coordinates to place names through a
// cascading reverse-geocode against Nominatim, with best-effort
// anonymization and batch resolution over the persistent cache.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/phototrack/phototrack/internal/model"
)

// Reverse-geocode zoom tiers, finest to coarsest.
const (
	ZoomStreet  = 18
	ZoomRegion  = 12
	ZoomCountry = 5
)

// cityFields are the address fields tried, in priority order, as the
// city value of a reverse-geocode response.
var cityFields = []string{
	"city", "town", "village", "municipality", "county",
	"state_district", "suburb", "neighbourhood", "hamlet", "locality",
}

// Client is a Nominatim API client. All outbound requests, reverse and
// forward alike, pass through one shared limiter so the provider's
// usage-policy rate limit is never violated regardless of call mix.
type Client struct {
	baseURL    string
	userAgent  string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithLanguage sets the accept-language parameter for reverse lookups.
func WithLanguage(lang string) ClientOption {
	return func(c *Client) { c.language = lang }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRequestInterval sets the minimum delay enforced between any two
// outbound requests.
func WithRequestInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// NewClient creates a Nominatim client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "phototrack/1.0",
		language:   "en",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reverse resolves a coordinate to a place at the given zoom tier. The
// returned record has Found set when a city-level name was present.
func (c *Client) Reverse(ctx context.Context, lat, lon float64, zoom int) (model.PlaceRecord, error) {
	params := url.Values{
		"lat":             {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":             {strconv.FormatFloat(lon, 'f', -1, 64)},
		"format":          {"json"},
		"accept-language": {c.language},
		"zoom":            {strconv.Itoa(zoom)},
	}

	var payload struct {
		Address map[string]string `json:"address"`
	}
	if err := c.get(ctx, "/reverse", params, &payload); err != nil {
		return model.PlaceRecord{Lat: lat, Lon: lon}, err
	}

	var city string
	for _, field := range cityFields {
		if v := payload.Address[field]; v != "" {
			city = v
			break
		}
	}

	return model.PlaceRecord{
		City:        clean(city),
		State:       clean(payload.Address["state"]),
		Country:     clean(payload.Address["country"]),
		CountryCode: strings.ToUpper(payload.Address["country_code"]),
		Found:       city != "",
		Lat:         lat,
		Lon:         lon,
	}, nil
}

// Forward resolves a free-text place query to a representative
// coordinate, taking the first search result.
func (c *Client) Forward(ctx context.Context, query string) (lat, lon float64, err error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := c.get(ctx, "/search", params, &results); err != nil {
		return 0, 0, err
	}
	if len(results) == 0 {
		return 0, 0, eris.Errorf("geocode: no forward result for %q", query)
	}

	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, eris.Errorf("geocode: malformed forward result for %q", query)
	}
	return lat, lon, nil
}

// get performs a rate-limited GET against the provider and decodes the
// JSON body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "geocode: rate limiter wait")
	}

	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return eris.Wrap(err, "geocode: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("geocode: http %d from %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "geocode: decode response")
	}
	return nil
}

// clean NFC-normalizes provider strings before they are persisted or
// written into photo tags; metadata consumers disagree on decomposition.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

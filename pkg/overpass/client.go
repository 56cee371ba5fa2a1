// Package overpass looks up OpenStreetMap amenities inside a bounding box via
// the Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultURL is the public Overpass interpreter endpoint.
const DefaultURL = "https://overpass-api.de/api/interpreter"

var amenityPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// BBox is a lat/lon bounding box in Overpass order.
type BBox struct {
	MinLat float64 `mapstructure:"min_lat" json:"min_lat"`
	MinLon float64 `mapstructure:"min_lon" json:"min_lon"`
	MaxLat float64 `mapstructure:"max_lat" json:"max_lat"`
	MaxLon float64 `mapstructure:"max_lon" json:"max_lon"`
}

// String renders the box as "minlat,minlon,maxlat,maxlon".
func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Valid reports whether the box has ordered, in-range corners.
func (b BBox) Valid() bool {
	return b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat < b.MaxLat && b.MinLon < b.MaxLon
}

// POI is a single amenity node.
type POI struct {
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
	Name string  `json:"name"`
}

// InvalidAmenityError is returned for amenity types that are not plain
// lowercase OSM tag values.
type InvalidAmenityError struct {
	Amenity string
}

func (e *InvalidAmenityError) Error() string {
	return fmt.Sprintf("overpass: invalid amenity type %q", e.Amenity)
}

// UnavailableError is returned when the upstream service cannot answer:
// the breaker is open, the request failed, or the response was unusable.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return "overpass: upstream unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) bool {
	var e *UnavailableError
	return errors.As(err, &e)
}

// Query builds the Overpass QL for all amenity nodes of one type in box.
func Query(amenity string, box BBox) (string, error) {
	if !amenityPattern.MatchString(amenity) {
		return "", &InvalidAmenityError{Amenity: amenity}
	}
	return fmt.Sprintf(`[out:json][timeout:25];node["amenity"="%s"](%s);out body;`, amenity, box), nil
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides the interpreter endpoint.
func WithURL(u string) Option {
	return func(c *Client) { c.url = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache serves repeated lookups from a response cache.
func WithCache(cache *Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[[]byte]) Option {
	return func(c *Client) { c.breaker = cb }
}

// Client queries the Overpass API.
type Client struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	retry   RetryPolicy
	cache   *Cache
}

// BreakerSettings returns the default breaker configuration: it opens after
// five consecutive failed lookups. A lookup abandoned by its caller is not a
// failure of the upstream.
func BreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "overpass",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

// NewClient creates a Client with a 30s timeout, one request per second,
// DefaultRetryPolicy and a breaker built from BreakerSettings.
func NewClient(opts ...Option) *Client {
	c := &Client{
		url:     DefaultURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(1, 1),
		breaker: gobreaker.NewCircuitBreaker[[]byte](BreakerSettings()),
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Elements []struct {
		Type string            `json:"type"`
		Lat  float64           `json:"lat"`
		Lon  float64           `json:"lon"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// Find returns every amenity node of the given type inside box.
func (c *Client) Find(ctx context.Context, amenity string, box BBox) ([]POI, error) {
	q, err := Query(amenity, box)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "overpass"), zap.String("amenity", amenity))

	if c.cache != nil {
		if pois, ok, err := c.cache.Get(ctx, amenity, box); err != nil {
			log.Warn("poi cache read failed", zap.Error(err))
		} else if ok {
			log.Debug("poi cache hit", zap.Int("count", len(pois)))
			return pois, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return withRetry(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
			return c.post(ctx, q)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UnavailableError{Err: err}
	}

	pois, err := Flatten(body)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	log.Debug("poi lookup", zap.Int("count", len(pois)))

	if c.cache != nil {
		if err := c.cache.Put(ctx, amenity, box, pois); err != nil {
			log.Warn("poi cache write failed", zap.Error(err))
		}
	}
	return pois, nil
}

func (c *Client) post(ctx context.Context, q string) ([]byte, error) {
	form := url.Values{"data": {q}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read body")
	}
	return body, nil
}

// Flatten converts an Overpass JSON response into POIs. Elements without
// coordinates are skipped; unnamed nodes keep an empty name.
func Flatten(body []byte) ([]POI, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, eris.Wrap(err, "overpass: parse response")
	}
	pois := make([]POI, 0, len(r.Elements))
	for _, e := range r.Elements {
		if e.Type != "" && e.Type != "node" {
			continue
		}
		if e.Lat == 0 && e.Lon == 0 {
			continue
		}
		pois = append(pois, POI{Lon: e.Lon, Lat: e.Lat, Name: e.Tags["name"]})
	}
	return pois, nil
}

// Package source implements the HTTP client for a station-data service that
// publishes station locations as GeoJSON and observations as long CSV.
// All methods are context-aware, respect the shared rate limiter, and retry
// on transient errors (429, 5xx).
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/derickschaefer/stationcube/internal/frame"
	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/pipeline"
	"github.com/derickschaefer/stationcube/internal/transform"
	"github.com/derickschaefer/stationcube/internal/util"
)

const (
	maxRetries     = 4
	defaultBackoff = 500 * time.Millisecond

	stationsEndpoint     = "stations"
	observationsEndpoint = "observations"
)

// Client is the station-data HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request and retry events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBackoff sets the base retry delay; attempt n waits base * 2^(n-1).
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// NewClient creates a Client for the service rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, ratePerSec float64, opts ...Option) *Client {
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logger:  zap.NewNop(),
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ─── Stations ─────────────────────────────────────────────────────────────────

// GetStations fetches the station catalogue. idProperty selects the feature
// property holding the station id; empty uses the feature id.
func (c *Client) GetStations(ctx context.Context, idProperty string) (*geo.GeoSeries, error) {
	body, err := c.get(ctx, stationsEndpoint, url.Values{}, "application/geo+json, application/json")
	if err != nil {
		return nil, fmt.Errorf("stations: %w", err)
	}
	stations, err := geo.ReadGeoJSON(bytes.NewReader(body), idProperty)
	if err != nil {
		return nil, fmt.Errorf("stations: %w", err)
	}
	c.logger.Debug("stations fetched", zap.Int("count", stations.Len()))
	return stations, nil
}

// ─── Observations ─────────────────────────────────────────────────────────────

// ObsOptions holds optional filters for GetObservations.
type ObsOptions struct {
	Start     time.Time // zero means unbounded
	End       time.Time // zero means unbounded
	Variables []string
	Stations  []string
}

// GetObservations fetches a long observation table. The response is CSV
// with a header naming the columns in cols.
func (c *Client) GetObservations(ctx context.Context, cols transform.Columns, opts ObsOptions) (*frame.Frame, error) {
	params := url.Values{}
	if !opts.Start.IsZero() {
		params.Set("start", util.FormatTime(opts.Start))
	}
	if !opts.End.IsZero() {
		params.Set("end", util.FormatTime(opts.End))
	}
	if len(opts.Variables) > 0 {
		params.Set("variables", strings.Join(opts.Variables, ","))
	}
	if len(opts.Stations) > 0 {
		params.Set("stations", strings.Join(opts.Stations, ","))
	}

	body, err := c.get(ctx, observationsEndpoint, params, "text/csv")
	if err != nil {
		return nil, fmt.Errorf("observations: %w", err)
	}
	long, err := pipeline.ReadCSV(bytes.NewReader(body), pipeline.Options{
		Strings: []string{cols.ID, cols.Variable},
		Times:   []string{cols.Time},
	})
	if err != nil {
		return nil, fmt.Errorf("observations: %w", err)
	}
	c.logger.Debug("observations fetched", zap.Int("rows", long.Len()))
	return long, nil
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// get performs a GET request against the service, handling rate limiting
// and retries, and returns the response body.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, accept string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("no source URL configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	c.logger.Debug("source request", zap.String("url", reqURL))

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.backoff
			c.logger.Debug("retrying after backoff",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", "stationcube-cli/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}

		c.logger.Debug("source response",
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(body)))

		// Retry on server errors and rate limiting
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return body, nil
	}
	c.logger.Warn("source request failed", zap.String("url", reqURL), zap.Error(lastErr))
	return nil, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}

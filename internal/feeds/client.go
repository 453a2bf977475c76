package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skywatch-data/skywatch/internal/httputil"
	"github.com/skywatch-data/skywatch/internal/monitoring"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// AuthMode selects how a provider authenticates requests.
type AuthMode string

const (
	AuthNone   AuthMode = ""
	AuthBearer AuthMode = "bearer"
	AuthBasic  AuthMode = "basic"
	AuthAPIKey AuthMode = "apikey" // marketplace style: key + host header
)

// ProviderConfig is captured at construction; credentials are not re-read
// per request.
type ProviderConfig struct {
	Name           string
	BaseURL        string
	MilitaryPath   string // empty when the provider has no bulk military endpoint
	SupportsPoint  bool
	Priority       int // higher wins for point-radius queries
	RequestsPerMin int
	Timeout        time.Duration
	Auth           AuthMode
	Username       string // basic auth
	Password       string
	Token          string // bearer or API key
	APIHost        string // host header for marketplace providers
}

// TransientError marks a retryable upstream failure (network error or 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Client talks to one `{ac: [...]}`-shaped ADS-B provider.
type Client struct {
	cfg     ProviderConfig
	http    httputil.Doer
	limiter *TokenBucket
	clock   timeutil.Clock
}

// NewClient builds a provider client. A nil doer uses a timeout-bounded
// http.Client.
func NewClient(cfg ProviderConfig, doer httputil.Doer, clock timeutil.Clock) *Client {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 10
	}
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		http:    doer,
		limiter: NewTokenBucket(cfg.RequestsPerMin, clock),
		clock:   clock,
	}
}

// Name returns the provider name used in Record.Sources.
func (c *Client) Name() string { return c.cfg.Name }

// Priority returns the provider's point-query priority.
func (c *Client) Priority() int { return c.cfg.Priority }

// SupportsPointQueries reports whether /point/{lat}/{lon}/{radius} works.
func (c *Client) SupportsPointQueries() bool { return c.cfg.SupportsPoint }

// HasMilitaryEndpoint reports whether the provider has a bulk military feed.
func (c *Client) HasMilitaryEndpoint() bool { return c.cfg.MilitaryPath != "" }

const (
	maxAttempts   = 3
	backoffBase   = 500 * time.Millisecond
	backoffFactor = 2
)

// get performs a rate-limited GET with retry on transient failures.
func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	var lastErr error
	backoff := backoffBase
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-c.clock.After(backoff):
			}
			backoff *= backoffFactor
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		body, status, err := c.doOnce(reqCtx, url)
		cancel()
		if err == nil {
			return body, status, nil
		}
		var transient *TransientError
		if !errors.As(err, &transient) {
			return nil, status, err
		}
		lastErr = err
		monitoring.Logf("feeds: %s attempt %d failed: %v", c.cfg.Name, attempt+1, err)
	}
	return nil, 0, fmt.Errorf("%s: exhausted retries: %w", c.cfg.Name, lastErr)
}

func (c *Client) doOnce(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	switch c.cfg.Auth {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	case AuthBasic:
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	case AuthAPIKey:
		req.Header.Set("x-rapidapi-key", c.cfg.Token)
		if c.cfg.APIHost != "" {
			req.Header.Set("x-rapidapi-host", c.cfg.APIHost)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &TransientError{Err: err}
	}
	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, &TransientError{Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, ErrRateLimited
	}
	return body, resp.StatusCode, nil
}

// decodeResponse parses an `{ac: [...]}` body, tagging each record with the
// provider name. Individual malformed records are logged and skipped; they
// never fail the batch.
func (c *Client) decodeResponse(body []byte) ([]Record, error) {
	var envelope struct {
		AC []json.RawMessage `json:"ac"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%s: bad payload: %w", c.cfg.Name, err)
	}

	records := make([]Record, 0, len(envelope.AC))
	for i, raw := range envelope.AC {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			monitoring.Logf("feeds: %s record %d unparseable, skipping: %v", c.cfg.Name, i, err)
			continue
		}
		if rec.Hex == "" {
			continue
		}
		rec.Sources = []string{c.cfg.Name}
		records = append(records, rec)
	}
	return records, nil
}

// Military fetches the provider's bulk military feed.
func (c *Client) Military(ctx context.Context) ([]Record, error) {
	if c.cfg.MilitaryPath == "" {
		return nil, fmt.Errorf("%s: no military endpoint", c.cfg.Name)
	}
	body, _, err := c.get(ctx, c.cfg.BaseURL+c.cfg.MilitaryPath)
	if err != nil {
		return nil, err
	}
	return c.decodeResponse(body)
}

// PointRadius fetches aircraft within radiusNM of a point.
func (c *Client) PointRadius(ctx context.Context, lat, lon, radiusNM float64) ([]Record, error) {
	url := fmt.Sprintf("%s/point/%g/%g/%g", c.cfg.BaseURL, lat, lon, radiusNM)
	body, _, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return c.decodeResponse(body)
}

// ByHex fetches a single aircraft. Returns (nil, nil) on 404.
func (c *Client) ByHex(ctx context.Context, hex string) (*Record, error) {
	url := fmt.Sprintf("%s/hex/%s", c.cfg.BaseURL, NormalizeHex(hex))
	body, status, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	records, err := c.decodeResponse(body)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

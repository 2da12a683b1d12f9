package apis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

// userAgent identifies this client to government APIs.
const userAgent = "GovernmentReporter/0.1.0"

// ClientConfig configures the shared HTTP core used by both adapters.
type ClientConfig struct {
	// UserAgent is sent on every request. Defaults to the package
	// user agent when empty.
	UserAgent string

	// Headers are added to every request (authorization, accept).
	Headers map[string]string

	// MinDelay is the minimum gap between successive outbound requests
	// from this client. Concurrent callers share the budget.
	MinDelay time.Duration

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is how many times a failed attempt is repeated on
	// transport errors and on HTTP 429/5xx.
	MaxRetries int

	// InitialDelay seeds the doubling backoff between retries.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration
}

// Client is a rate-limited, retrying HTTP GET client. It enforces a
// minimum inter-request delay across all callers and retries transient
// failures with jitter-free doubling backoff.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewClient builds a Client from cfg. Zero-valued fields get defaults:
// 30 s timeout, 3 retries, 1 s initial backoff capped at 16 s.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = userAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 1 * time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 16 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Get performs a rate-limited GET against rawURL with params merged into
// any query already present. The raw body is returned on any 2xx status.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	retryCfg := gverrors.RetryConfig{
		MaxRetries:   c.cfg.MaxRetries,
		InitialDelay: c.cfg.InitialDelay,
		MaxDelay:     c.cfg.MaxDelay,
		Multiplier:   2.0,
		RetryIf:      retryableAttempt,
	}

	body, err := gverrors.RetryWithResult(ctx, retryCfg, func() ([]byte, error) {
		return c.getOnce(ctx, rawURL, params)
	})
	if err != nil {
		return nil, mapTransportError(rawURL, err)
	}
	return body, nil
}

// GetJSON performs Get and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	body, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return gverrors.New(gverrors.ErrCodeMalformedResponse,
			fmt.Sprintf("decoding response from %s: %v", rawURL, err), err)
	}
	return nil
}

// GetText performs Get and returns the body as a string.
func (c *Client) GetText(ctx context.Context, rawURL string) (string, error) {
	body, err := c.Get(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// getOnce is a single rate-limited attempt.
func (c *Client) getOnce(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if err := c.waitTurn(ctx); err != nil {
		return nil, err
	}

	u := rawURL
	if len(params) > 0 {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, gverrors.ValidationError(fmt.Sprintf("invalid URL %q", rawURL), err)
		}
		q := parsed.Query()
		for key, values := range params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, gverrors.ValidationError(fmt.Sprintf("building request for %q", rawURL), err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}

	c.logger.Debug("http get", slog.String("url", rawURL))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{StatusCode: resp.StatusCode, URL: rawURL, Body: truncate(string(body), 200)}
	}
	return body, nil
}

// waitTurn blocks until MinDelay has elapsed since the previous request.
func (c *Client) waitTurn(ctx context.Context) error {
	if c.cfg.MinDelay <= 0 {
		return nil
	}

	c.mu.Lock()
	now := time.Now()
	next := c.last.Add(c.cfg.MinDelay)
	if next.Before(now) {
		next = now
	}
	c.last = next
	c.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// statusError reports a non-2xx HTTP response.
type statusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// retryableAttempt accepts transport errors and HTTP 429/5xx. Permanent
// 4xx responses and context cancellation fail fast.
func retryableAttempt(err error) bool {
	var se *statusError
	if stderrors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// mapTransportError converts the final failure from a Get into the
// structured error surface callers log and branch on.
func mapTransportError(rawURL string, err error) error {
	var se *statusError
	if stderrors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return gverrors.RateLimitError(fmt.Sprintf("rate limited by %s", rawURL), err)
		default:
			return gverrors.New(gverrors.ErrCodeUpstreamStatus,
				fmt.Sprintf("HTTP %d from %s", se.StatusCode, rawURL), err).
				WithDetail("status", fmt.Sprintf("%d", se.StatusCode)).
				WithDetail("body", se.Body)
		}
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return gverrors.New(gverrors.ErrCodeNetworkTimeout,
			fmt.Sprintf("timeout fetching %s", rawURL), err)
	}
	return gverrors.NetworkError(fmt.Sprintf("fetching %s", rawURL), err)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

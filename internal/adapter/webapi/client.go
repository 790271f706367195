// Package webapi is the shared HTTP client for the JSON data sources
// (geocoding, forecast, places). Every request passes a per-source rate
// limiter and circuit breaker before reaching the network.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/breaker"
	"weatherdine/internal/infra/config"
	"weatherdine/internal/infra/tracer"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 2 * 1024 * 1024 // 2 MB

const defaultTimeout = 15 * time.Second

// Client performs rate-limited, breaker-protected GET requests against one source.
type Client struct {
	subsystem string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for one data source. subsystem tags returned errors
// (e.g. "geocoding", "weather", "places") so ErrorCodeOf can classify them.
func New(subsystem string, cfg config.SourceConfig, logger *slog.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if burst <= 0 {
			burst = 1
		}
	}

	c := &Client{
		subsystem: subsystem,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
	// Only upstream trouble counts against the source.
	c.breaker = breaker.New[[]byte]("source:"+subsystem, cfg.Breaker, logger,
		domain.ErrNotFound, domain.ErrAuthInvalid, domain.ErrInvalidInput)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// GetJSON issues GET baseURL+path?query and decodes a 200 response into out.
// Non-200 statuses become domain errors tagged with the client's subsystem.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	const op = "webapi.GetJSON"

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	ctx, span := tracer.StartSpan(ctx, "webapi.get")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("source", c.subsystem),
		tracer.StringAttr("http.path", path),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, endpoint)
	})
	if err != nil {
		if breaker.Rejected(err) {
			err = domain.NewSubSystemError(c.subsystem, op, domain.ErrProviderError,
				fmt.Sprintf("%s circuit open: %v", c.subsystem, err))
		}
		tracer.RecordError(span, err)
		c.logger.Debug("source request failed",
			"source", c.subsystem, "url", Redact(endpoint), "error", err)
		return err
	}

	c.logger.Debug("source request completed",
		"source", c.subsystem,
		"url", Redact(endpoint),
		"bytes", len(body),
		"duration", time.Since(start),
	)

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			err = domain.NewSubSystemError(c.subsystem, op, domain.ErrProviderError, "parse response: "+err.Error())
			tracer.RecordError(span, err)
			return err
		}
	}
	tracer.SetOK(span)
	return nil
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewSubSystemError(c.subsystem, "webapi.GetJSON", domain.ErrProviderError,
			"request failed: "+redactError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.mapStatus(resp.StatusCode, body)
	}
	return body, nil
}

// mapStatus maps an HTTP status code + body to a subsystem-tagged domain error.
func (c *Client) mapStatus(status int, body []byte) error {
	const op = "webapi.GetJSON"
	detail := fmt.Sprintf("%s API error %d: %s", c.subsystem, status, truncate(string(body), 512))

	var sentinel error
	switch {
	case status == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = domain.ErrAuthInvalid
	case status == http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case status == http.StatusBadRequest:
		sentinel = domain.ErrInvalidInput
	case status >= 500:
		sentinel = domain.ErrProviderError
	default:
		return fmt.Errorf("%s: %s", op, detail)
	}
	return domain.NewSubSystemError(c.subsystem, op, sentinel, detail)
}

// Redact masks the apikey query parameter of a URL so it can be logged.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has("apikey") {
		return raw
	}
	q.Set("apikey", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}

// redactError strips credentials from transport errors, which embed the URL.
func redactError(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Sprintf("%s %q: %v", ue.Op, Redact(ue.URL), ue.Err)
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package sidecar talks to the local HTTP sidecar that owns the weather data
// sources, the language-model analyst and order signing.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "http://127.0.0.1:9090"
	maxRetries     = 2
	baseRetryWait  = time.Second
)

// Config configures the sidecar client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RatePerSec   float64
	AnalystModel string // reported as the cost provider
}

// Client is the HTTP client of the sidecar. Reads are retried on 5xx;
// analysis and order calls are not, since a retry could bill or trade twice.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	model   string
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.AnalystModel == "" {
		cfg.AnalystModel = "sidecar"
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 5),
		model:   cfg.AnalystModel,
	}
}

// statusError is a non-2xx answer. Body keeps the first bytes for logs and
// for the cost field of billed failures.
type statusError struct {
	Code int
	Body []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("sidecar status %d: %s", e.Code, strings.TrimSpace(string(e.Body)))
}

func statusCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/health", nil, &out); err != nil {
		return fmt.Errorf("sidecar.Health: %w", err)
	}
	if out.Status != "ok" {
		return fmt.Errorf("sidecar.Health: status %q", out.Status)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, attempt); err != nil {
				return err
			}
		}
		err := c.do(ctx, http.MethodGet, u, nil, out)
		if err == nil {
			return nil
		}
		lastErr = err
		code := statusCode(err)
		if code != 0 && code < 500 && code != http.StatusTooManyRequests {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		slog.Debug("sidecar request retry", "path", path, "attempt", attempt+1, "err", err)
	}
	return lastErr
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.base+path, payload, out)
}

func (c *Client) do(ctx context.Context, method, u string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{Code: resp.StatusCode, Body: b}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt-1))) * baseRetryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

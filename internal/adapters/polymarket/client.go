package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Limits at ~60% of the documented quotas.
	// CLOB /books: 500/10s -> 30/s
	booksRatePerSec = 30
	// Gamma /markets and /events: 300/10s -> 18/s
	gammaRatePerSec = 18

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Config configures the read-only market data client.
type Config struct {
	CLOBBase     string
	GammaBase    string
	Timeout      time.Duration
	MinLiquidity float64 // generic markets below this are dropped
	MinVolume    float64 // lifetime volume floor for generic markets
	MaxMarkets   int     // cap on generic markets per scan, 0 = no cap
	PageSize     int
	WeatherTagID int // Gamma tag of the daily temperature events, 0 disables
}

// Client talks to Gamma (discovery) and the CLOB (order books) with rate
// limiting and retries. It implements ports.MarketProvider and
// ports.QuoteProvider.
type Client struct {
	http         *http.Client
	cfg          Config
	gammaLimiter *rate.Limiter
	booksLimiter *rate.Limiter
	now          func() time.Time
}

// NewClient creates a Client. Empty base URLs fall back to production.
func NewClient(cfg Config) *Client {
	if cfg.CLOBBase == "" {
		cfg.CLOBBase = defaultCLOBBase
	}
	if cfg.GammaBase == "" {
		cfg.GammaBase = defaultGammaBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		cfg:          cfg,
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		booksLimiter: rate.NewLimiter(booksRatePerSec, 5),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry retries transport errors, 429 and 5xx with exponential
// backoff. Other 4xx fail at once.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
			}
			backoff(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			slog.Warn("rate limited by polymarket", "attempt", attempt+1)
			backoff(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d attempts", resp.StatusCode, attempt+1)
			}
			backoff(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// backoff waits 2^attempt * baseRetryWait or until ctx is done.
func backoff(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

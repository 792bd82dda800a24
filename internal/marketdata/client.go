package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 5
	DefaultRetryDelay  = 200 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// jitterPct spreads each backoff delay by +/-20% so workers that
	// hit a 429 together do not retry together.
	jitterPct = 0.20
)

// Client implements Port against the HTTP market data API.
type Client struct {
	baseURL     string
	client      *http.Client
	keys        *KeyRing
	budget      *Budget
	breaker     *gobreaker.CircuitBreaker
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithKeyRing sets the API key rotation ring.
func WithKeyRing(ring *KeyRing) ClientOption {
	return func(c *Client) {
		c.keys = ring
	}
}

// WithBudget sets the shared request budget.
func WithBudget(b *Budget) ClientOption {
	return func(c *Client) {
		c.budget = b
	}
}

// NewClient creates a new market data client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		keys:        NewKeyRing(nil),
		budget:      NewBudget(0, 0),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}

	st := gobreaker.Settings{Name: "marketdata"}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	c.breaker = gobreaker.NewCircuitBreaker(st)

	return c
}

// Compile-time interface check.
var _ Port = (*Client)(nil)

// apiCandle is the wire shape of one candle row.
type apiCandle struct {
	Ts     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type candlesResponse struct {
	Candles []apiCandle `json:"candles"`
}

type tokenMetaResponse struct {
	Symbol    string   `json:"symbol"`
	Supply    *float64 `json:"supply"`
	MarketCap *float64 `json:"market_cap"`
	PriceUSD  *float64 `json:"price_usd"`
}

// FetchCandles retrieves candles for (mint, chain, interval) with ts in
// [from, to], sorted by ts ASC.
func (c *Client) FetchCandles(ctx context.Context, mint string, chain domain.Chain, intervalSeconds, from, to int64) (domain.CandleSlice, error) {
	q := url.Values{}
	q.Set("address", mint)
	q.Set("chain", string(chain))
	q.Set("interval", strconv.FormatInt(intervalSeconds, 10))
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))

	var resp candlesResponse
	if err := c.get(ctx, "/v1/ohlcv", q, &resp); err != nil {
		return nil, err
	}

	out := make(domain.CandleSlice, 0, len(resp.Candles))
	for _, raw := range resp.Candles {
		out = append(out, &domain.Candle{
			TokenAddress:    mint,
			Chain:           chain,
			Ts:              raw.Ts,
			IntervalSeconds: intervalSeconds,
			Open:            raw.Open,
			High:            raw.High,
			Low:             raw.Low,
			Close:           raw.Close,
			Volume:          raw.Volume,
		})
	}
	out = out.SortAndDedup()

	observability.DefaultMetrics.CandlesFetched.Add(float64(len(out)))
	return out, nil
}

// FetchTokenMeta retrieves supply/mcap/price metadata for a mint.
func (c *Client) FetchTokenMeta(ctx context.Context, mint string, chain domain.Chain) (*domain.TokenMeta, error) {
	q := url.Values{}
	q.Set("address", mint)
	q.Set("chain", string(chain))

	var resp tokenMetaResponse
	if err := c.get(ctx, "/v1/token", q, &resp); err != nil {
		return nil, err
	}

	return &domain.TokenMeta{
		TokenAddress: mint,
		Chain:        chain,
		Symbol:       resp.Symbol,
		Supply:       resp.Supply,
		MarketCap:    resp.MarketCap,
		PriceUSD:     resp.PriceUSD,
	}, nil
}

// get performs a GET with budget, breaker, retries and backoff.
// 429 and 5xx responses retry; 400/401/403 are terminal.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	endpoint := c.baseURL + path + "?" + query.Encode()
	started := time.Now()

	delay := c.retryDelay
	var lastErr error
	rateLimited := false

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			observability.RecordAPIRetry()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter(delay)):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		body, err := c.breaker.Execute(func() (any, error) {
			return c.doOnce(ctx, endpoint)
		})
		if err == nil {
			observability.RecordAPICall(path, "ok", time.Since(started).Seconds())
			if err := json.Unmarshal(body.([]byte), result); err != nil {
				return fmt.Errorf("%w: unmarshal response: %v", ErrFetchFailed, err)
			}
			return nil
		}

		var re *responseError
		if errors.As(err, &re) {
			if re.terminal {
				observability.RecordAPICall(path, "terminal", time.Since(started).Seconds())
				return fmt.Errorf("%w: %v", ErrFetchFailed, err)
			}
			if re.status == http.StatusTooManyRequests {
				rateLimited = true
			}
		}
		lastErr = err
	}

	observability.RecordAPICall(path, "exhausted", time.Since(started).Seconds())
	if rateLimited {
		return fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
	}
	return fmt.Errorf("%w: max retries exceeded: %v", ErrFetchFailed, lastErr)
}

// doOnce performs a single HTTP attempt.
func (c *Client) doOnce(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.budget.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if key := c.keys.Next(); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read response: %w", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return nil, &responseError{status: resp.StatusCode, body: string(body), terminal: true}
	default:
		// 429 and 5xx retry through the backoff schedule.
		return nil, &responseError{status: resp.StatusCode, body: string(body)}
	}
}

// responseError carries a non-200 upstream status through the breaker.
type responseError struct {
	status   int
	body     string
	terminal bool
}

func (e *responseError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// jitter spreads d by +/-jitterPct.
func jitter(d time.Duration) time.Duration {
	spread := 1 - jitterPct + 2*jitterPct*rand.Float64()
	return time.Duration(float64(d) * spread)
}

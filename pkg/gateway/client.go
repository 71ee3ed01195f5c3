package gateway

import (
	"bytes"
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

	"github.com/dmitrymomot/billing/pkg/backoff"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/signature"
)

const (
	chargePath      = "/v1/charges"
	userAgent       = "billingd-gateway/1.0"
	maxResponseBody = 64 << 10
)

// Client charges stored payment methods through the processor's HTTP API.
// Every request carries the attempt's idempotency key, so the transport
// retries below can never charge twice.
type Client struct {
	endpoint      string
	apiKey        string
	signingSecret string
	maxRetries    int
	httpClient    *http.Client
	backoff       backoff.Strategy
	breaker       *CircuitBreaker
	logger        *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithBackoff(s backoff.Strategy) ClientOption {
	return func(cl *Client) {
		if s != nil {
			cl.backoff = s
		}
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) ClientOption {
	return func(cl *Client) {
		if cb != nil {
			cl.breaker = cb
		}
	}
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient validates cfg and builds a client for the HTTP driver.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: GATEWAY_URL must be an absolute http(s) URL", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GATEWAY_API_KEY is required", ErrInvalidConfig)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		endpoint:      strings.TrimRight(cfg.URL, "/") + chargePath,
		apiKey:        cfg.APIKey,
		signingSecret: cfg.SigningSecret,
		maxRetries:    max(cfg.MaxRetries, 0),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		backoff: backoff.Default(),
		breaker: NewCircuitBreaker(cfg.BreakerFailures, 0, cfg.BreakerRecovery),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("gateway"))
	return c, nil
}

// Charge implements payment.Gateway.
//
// 2xx responses carry the verdict. 402 and other 4xx responses, except 408,
// 425 and 429, are declines. Everything else is retried with the same key
// up to the configured number of times and then returned as an error.
func (c *Client) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	if req.IdempotencyKey == "" || req.Amount <= 0 || req.Currency == "" {
		return payment.ChargeResult{}, fmt.Errorf("%w: key, positive amount and currency are required", ErrInvalidRequest)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return payment.ChargeResult{}, errors.Join(ErrInvalidRequest, err)
	}

	if !c.breaker.Allow() {
		return payment.ChargeResult{}, ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return payment.ChargeResult{}, errors.Join(ErrUnavailable, lastErr, ctx.Err())
			case <-time.After(c.backoff.NextInterval(attempt)):
			}
		}

		res, retryable, err := c.send(ctx, req.IdempotencyKey, body)
		if err == nil {
			c.breaker.RecordSuccess()
			return res, nil
		}
		c.breaker.RecordFailure()
		lastErr = err

		c.logger.WarnContext(ctx, "charge request failed",
			logger.IdempotencyKey(req.IdempotencyKey),
			slog.Int("attempt", attempt+1),
			logger.Error(err))

		if !retryable || ctx.Err() != nil {
			break
		}
	}
	return payment.ChargeResult{}, errors.Join(ErrUnavailable, lastErr)
}

func (c *Client) send(ctx context.Context, key string, body []byte) (payment.ChargeResult, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return payment.ChargeResult{}, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", key)
	if c.signingSecret != "" {
		sig, err := signature.Sign(c.signingSecret, body)
		if err != nil {
			return payment.ChargeResult{}, false, err
		}
		sig.Apply(httpReq.Header)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return payment.ChargeResult{}, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return payment.ChargeResult{}, true, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var res payment.ChargeResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return payment.ChargeResult{}, false, errors.Join(ErrInvalidResponse, err)
		}
		if res.Success && res.TransactionID == "" {
			return payment.ChargeResult{}, false, fmt.Errorf("%w: approved charge without transaction id", ErrInvalidResponse)
		}
		return res, false, nil

	case isDecline(resp.StatusCode):
		res := payment.ChargeResult{DeclineReason: fmt.Sprintf("http_%d", resp.StatusCode)}
		var verdict payment.ChargeResult
		if json.Unmarshal(raw, &verdict) == nil && verdict.DeclineReason != "" {
			res.DeclineReason = verdict.DeclineReason
		}
		return res, false, nil

	default:
		return payment.ChargeResult{}, true, fmt.Errorf("processor returned status %d: %s", resp.StatusCode, snippet(raw))
	}
}

func isDecline(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}

func snippet(b []byte) string {
	s := strings.ReplaceAll(string(b), "\n", " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

package clients

import (
	"bytes"
	"context"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/tideway/tideway/pkg/errors"
	"github.com/tideway/tideway/pkg/json"
	"github.com/tideway/tideway/pkg/metrics"
)

// ClientConfig configures a per-provider resilient HTTP client.
type ClientConfig struct {
	// Provider is the provider id, used for logging and metric labels
	Provider string `json:"provider" yaml:"provider"`
	// BaseURL is prepended to relative request paths
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Timeouts
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`

	// Retry policy
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay         time.Duration `json:"base_delay" yaml:"base_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// Rate limiting
	RequestsPerSecond int `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`

	// Circuit breaker
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`

	// EnableHTTP2 configures the transport for HTTP/2
	EnableHTTP2 bool `json:"enable_http2" yaml:"enable_http2"`
}

// DefaultClientConfig returns the default outbound policy.
func DefaultClientConfig(provider string) ClientConfig {
	return ClientConfig{
		Provider:          provider,
		RequestTimeout:    15 * time.Second,
		ConnectTimeout:    10 * time.Second,
		MaxRetries:        3,
		BaseDelay:         time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
		RequestsPerSecond: 10,
		BurstSize:         10,
		CircuitBreaker:    DefaultCircuitBreakerConfig(),
		EnableHTTP2:       true,
	}
}

// Response is the outcome of one successful outbound call.
type Response struct {
	Status  int
	Headers http.Header
	Data    []byte
	URL     string
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to decode response body")
	}
	return nil
}

// ProviderClient wraps outbound calls to one provider with rate-limit
// admission, per-attempt timeout, circuit breaking, and exponential backoff
// with jitter. One instance is shared by all tenants of a provider, so the
// rate limiter protects the provider-wide quota; the retry budget is scoped
// to each call, never carried across callers.
type ProviderClient struct {
	config  ClientConfig
	logger  *zap.Logger
	client  *http.Client
	limiter RateLimiter
	breaker *CircuitBreaker

	totalRequests  int64
	failedRequests int64
	totalRetries   int64
}

// NewProviderClient creates a resilient client for one provider.
func NewProviderClient(config ClientConfig, logger *zap.Logger) *ProviderClient {
	def := DefaultClientConfig(config.Provider)
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = def.ConnectTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	} else if config.MaxRetries == 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = def.BaseDelay
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = config.RequestsPerSecond
	}

	clientLogger := logger.With(
		zap.String("component", "provider_client"),
		zap.String("provider", config.Provider))

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			clientLogger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	return &ProviderClient{
		config: config,
		logger: clientLogger,
		client: &http.Client{
			Transport: transport,
			// Per-attempt timeout is enforced via context in Request;
			// this is the hard upper bound.
			Timeout: config.RequestTimeout,
		},
		limiter: NewRateLimiter(config.RequestsPerSecond, config.BurstSize),
		breaker: NewCircuitBreaker(config.Provider, config.CircuitBreaker, logger),
	}
}

// Get performs an HTTP GET request
func (c *ProviderClient) Get(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, headers)
}

// Post performs an HTTP POST request
func (c *ProviderClient) Post(ctx context.Context, path string, body []byte, headers map[string]string) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body, headers)
}

// Put performs an HTTP PUT request
func (c *ProviderClient) Put(ctx context.Context, path string, body []byte, headers map[string]string) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body, headers)
}

// Patch performs an HTTP PATCH request
func (c *ProviderClient) Patch(ctx context.Context, path string, body []byte, headers map[string]string) (*Response, error) {
	return c.Request(ctx, http.MethodPatch, path, body, headers)
}

// Delete performs an HTTP DELETE request
func (c *ProviderClient) Delete(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, headers)
}

// Request performs one logical call: rate-limiter admission, the request
// itself with a per-attempt timeout, and automatic retries for transient
// failures (5xx, 429, transport errors) with exponential backoff and jitter.
// Failures exceeding the retry budget propagate to the caller.
func (c *ProviderClient) Request(ctx context.Context, method, path string, body []byte, headers map[string]string) (*Response, error) {
	url := c.resolveURL(path)

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries+1; attempt++ {
		if attempt > 1 {
			atomic.AddInt64(&c.totalRetries, 1)
			metrics.Retries.WithLabelValues(c.config.Provider).Inc()

			delay := c.retryDelay(attempt, lastErr)
			c.logger.Debug("retrying request",
				zap.String("method", method),
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request canceled during backoff")
			}
		}

		waitTimer := metrics.NewTimer()
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "rate limiter admission canceled")
		}
		metrics.RateLimitWait.WithLabelValues(c.config.Provider).Observe(waitTimer.Stop().Seconds())

		if err := c.breaker.Allow(); err != nil {
			atomic.AddInt64(&c.failedRequests, 1)
			metrics.OutboundRequests.WithLabelValues(c.config.Provider, method, "fatal").Inc()
			return nil, err
		}

		resp, err := c.attempt(ctx, method, url, body, headers)
		if err == nil {
			metrics.OutboundRequests.WithLabelValues(c.config.Provider, method, "success").Inc()
			return resp, nil
		}

		lastErr = err
		atomic.AddInt64(&c.failedRequests, 1)

		if !errors.IsRetryable(err) {
			metrics.OutboundRequests.WithLabelValues(c.config.Provider, method, "fatal").Inc()
			return nil, err
		}
		metrics.OutboundRequests.WithLabelValues(c.config.Provider, method, "retryable").Inc()
	}

	return nil, errors.Wrap(lastErr, errors.ErrorTypeTransient,
		"retry budget exhausted after "+strconv.Itoa(c.config.MaxRetries)+" retries")
}

// attempt issues a single request bounded by the per-attempt timeout.
func (c *ProviderClient) attempt(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	atomic.AddInt64(&c.totalRequests, 1)

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "tideway/1.0")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.RequestLatency.WithLabelValues(c.config.Provider).Observe(time.Since(start).Seconds())

	if err != nil {
		c.breaker.RecordFailure()
		if attemptCtx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request timed out")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.breaker.RecordSuccess()
		return &Response{
			Status:  resp.StatusCode,
			Headers: resp.Header,
			Data:    data,
			URL:     url,
		}, nil
	}

	c.breaker.RecordFailure()
	return nil, c.classifyStatus(resp, data, url)
}

// classifyStatus converts a non-2xx response into a typed error.
func (c *ProviderClient) classifyStatus(resp *http.Response, data []byte, url string) error {
	snippet := string(data)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err := errors.Newf(errors.ErrorTypeRateLimit, "provider throttled request to %s", url).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", snippet)
		if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
			err = err.WithRetryAfter(after)
		}
		return err

	case resp.StatusCode == http.StatusUnauthorized:
		return errors.Newf(errors.ErrorTypeTokenExpired, "unauthorized response from %s", url).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", snippet)

	case resp.StatusCode >= 500:
		return errors.Newf(errors.ErrorTypeTransient, "server error %d from %s", resp.StatusCode, url).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", snippet)

	default:
		return errors.Newf(errors.ErrorTypeValidation, "unexpected status %d from %s", resp.StatusCode, url).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", snippet)
	}
}

// retryDelay computes the wait before the given attempt (attempt >= 2):
// baseDelay * multiplier^(attempt-2) plus up to 10% jitter, capped at
// MaxBackoff. A provider Retry-After hint overrides the computed backoff.
func (c *ProviderClient) retryDelay(attempt int, lastErr error) time.Duration {
	if after := errors.RetryAfter(lastErr); after > 0 && errors.IsType(lastErr, errors.ErrorTypeRateLimit) {
		if after > c.config.MaxBackoff {
			return c.config.MaxBackoff
		}
		return after
	}

	delay := float64(c.config.BaseDelay) * math.Pow(c.config.BackoffMultiplier, float64(attempt-2))
	if delay > float64(c.config.MaxBackoff) {
		delay = float64(c.config.MaxBackoff)
	}
	delay += rand.Float64() * 0.1 * delay

	return time.Duration(delay)
}

// resolveURL joins the configured base URL with a relative path.
func (c *ProviderClient) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimSuffix(c.config.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// parseRetryAfter parses a Retry-After header value in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ClientStats represents cumulative client statistics.
type ClientStats struct {
	TotalRequests  int64               `json:"total_requests"`
	FailedRequests int64               `json:"failed_requests"`
	TotalRetries   int64               `json:"total_retries"`
	RateLimiter    RateLimiterStats    `json:"rate_limiter"`
	CircuitBreaker CircuitBreakerState `json:"circuit_breaker"`
}

// Stats returns cumulative statistics for this client.
func (c *ProviderClient) Stats() ClientStats {
	return ClientStats{
		TotalRequests:  atomic.LoadInt64(&c.totalRequests),
		FailedRequests: atomic.LoadInt64(&c.failedRequests),
		TotalRetries:   atomic.LoadInt64(&c.totalRetries),
		RateLimiter:    c.limiter.Stats(),
		CircuitBreaker: c.breaker.State(),
	}
}

// ResetRetryCount zeroes the cumulative retry counter before a fresh
// logical run. The retry budget itself is scoped per call, so this only
// affects reported statistics, never retry behaviour.
func (c *ProviderClient) ResetRetryCount() {
	atomic.StoreInt64(&c.totalRetries, 0)
}

// Config returns the client configuration.
func (c *ProviderClient) Config() ClientConfig {
	return c.config
}

// Close releases idle connections held by the transport.
func (c *ProviderClient) Close() {
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

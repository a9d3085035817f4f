// Package fakestore — HTTP-клиент REST API витрины (формат fakestoreapi.com).
package fakestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	DefaultBaseURL = "https://fakestoreapi.com"

	loginPath       = "/auth/login"
	headerRequestID = "X-Request-ID"
)

// TokenSource отдаёт bearer-токен текущей сессии.
type TokenSource interface {
	Token() string
	// OnUnauthorized вызывается, когда API отклонил токен (401 не на логине).
	OnUnauthorized()
}

// Config — параметры клиента.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit — запросов в секунду; 0 отключает ограничение.
	RateLimit float64
	RateBurst int
	Retry     RetryConfig
	// BreakerMaxFailures — подряд неудачных попыток до размыкания; 0 отключает breaker.
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	MaxResponseBytes    int64
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		BaseURL:             DefaultBaseURL,
		Timeout:             10 * time.Second,
		RateLimit:           10,
		RateBurst:           5,
		Retry:               DefaultRetryConfig(),
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 30 * time.Second,
		MaxResponseBytes:    4 << 20,
	}
}

// Client выполняет запросы к API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	retry      RetryConfig
	maxBytes   int64
	metrics    *metrics.APIMetrics
	logger     *log.Entry

	mu     sync.RWMutex
	tokens TokenSource
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет http.Client (например, в тестах).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSource задаёт источник токена.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics задаёт метрики запросов.
func WithMetrics(m *metrics.APIMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient создаёт клиент.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", base.Scheme)
	}

	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaults.MaxResponseBytes
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      cfg.Retry,
		maxBytes:   cfg.MaxResponseBytes,
		logger:     log.WithField("component", "fakestore-client"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, c.logger.WithField("subcomponent", "circuit-breaker"))
	c.breaker.onStateChange = func(state CircuitState) {
		c.metrics.SetCircuitOpen(state == CircuitOpen)
	}
	return c, nil
}

// SetTokenSource задаёт источник токена после создания клиента.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

func (c *Client) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// BreakerState возвращает состояние circuit breaker (для health-check).
func (c *Client) BreakerState() CircuitState {
	return c.breaker.State()
}

// request описывает один вызов API. endpoint — шаблон пути для метрик.
type request struct {
	method   string
	path     string
	endpoint string
	query    url.Values
	body     any
}

func (r request) idempotent() bool {
	return r.method == http.MethodGet || r.method == http.MethodPut
}

// do выполняет запрос с rate limit, повторами и circuit breaker и декодирует JSON в out.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("fakestore: encode %s %s body: %w", req.method, req.path, err)
		}
		payload = raw
	}

	attempts := 1
	if req.idempotent() {
		attempts = c.retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.metrics.RecordRetry(req.endpoint)
			if err := sleep(ctx, c.retry.delay(attempt-1)); err != nil {
				return err
			}
		}

		body, err := c.attempt(ctx, req, payload)
		if err == nil {
			return decode(body, out)
		}
		lastErr = err
		if !retryable(ctx, err) {
			return err
		}
		c.logger.WithError(err).WithFields(log.Fields{
			"endpoint": req.endpoint,
			"attempt":  attempt,
		}).Debug("request failed, will retry if attempts remain")
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, req request, payload []byte) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("fakestore: %s %s: %w", req.method, req.path, err)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fakestore: rate limit wait: %w", err)
		}
	}

	// req.path уже экранирован вызывающим; Path хранит декодированную форму.
	target := *c.baseURL
	rawPath := c.baseURL.EscapedPath() + req.path
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("fakestore: invalid request path %q: %w", req.path, err)
	}
	target.Path = decoded
	target.RawPath = rawPath
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("fakestore: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	httpReq.Header.Set(headerRequestID, requestID)

	tokens := c.tokenSource()
	if tokens != nil {
		if token := tokens.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(req.endpoint, 0, time.Since(started))
		if ctx.Err() == nil {
			c.breaker.Record(true)
		}
		return nil, fmt.Errorf("fakestore: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	c.metrics.ObserveRequest(req.endpoint, resp.StatusCode, time.Since(started))

	logger := c.logger.WithFields(log.Fields{
		"method":     req.method,
		"endpoint":   req.endpoint,
		"status":     resp.StatusCode,
		"request_id": requestID,
		"duration":   time.Since(started),
	})

	if readErr != nil {
		c.breaker.Record(true)
		return nil, fmt.Errorf("fakestore: read %s %s response: %w", req.method, req.path, readErr)
	}
	if int64(len(body)) > c.maxBytes {
		c.breaker.Record(false)
		return nil, fmt.Errorf("fakestore: %s %s response exceeds %d bytes", req.method, req.path, c.maxBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Method: req.method,
			Path:   req.path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
		c.breaker.Record(apiErr.Temporary())
		if resp.StatusCode == http.StatusUnauthorized && req.path != loginPath && tokens != nil {
			logger.Warn("token rejected by API, dropping session token")
			tokens.OnUnauthorized()
		}
		logger.Debug("request failed")
		return nil, apiErr
	}

	c.breaker.Record(false)
	logger.Debug("request completed")
	return body, nil
}

func decode(body []byte, out any) error {
	if out == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errEmptyBody
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("fakestore: decode response: %w", err)
	}
	return nil
}

// retryable — транспортные ошибки и временные статусы. Отмена контекста,
// открытый breaker и ошибки разбора ответа не повторяются.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, domain.ErrCircuitOpen) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && !errors.Is(err, context.Canceled)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

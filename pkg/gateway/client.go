// Package gateway is the HTTP client for the job-tracker REST API. It
// implements the repository contracts on top of net/http and adds bearer
// authentication with refresh, request correlation ids, retries for reads and
// a circuit breaker.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/garnizeh/jobsync/internal/config"
	"github.com/garnizeh/jobsync/pkg/repository"
)

var ErrCircuitOpen = errors.New("gateway circuit open")

// RequestIDHeader carries the correlation id of every request.
const RequestIDHeader = "X-Request-Id"

const (
	maxBodyBytes    = 4 << 20
	maxMessageBytes = 512
)

// Client talks to the API and adds retries, timeout, and circuit breaker.
type Client struct {
	cfg    config.GatewayConfig
	base   string
	client *http.Client

	sessMu    sync.Mutex
	token     string
	refresh   string
	onSession func(token, refreshToken string)
	refreshMu sync.Mutex

	// simple circuit breaker state
	failures  int32
	openUntil int64 // unix nano
	closed    int32 // atomic flag for Close()
}

var _ repository.Remote = (*Client)(nil)
var _ repository.AuthRepo = (*Client)(nil)

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg config.GatewayConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q", u.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultGateway().Timeout
	}
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = config.DefaultGateway().CircuitFailureThreshold
	}
	if err := loadSchemas(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		client: httpClient,
	}
	logger.Debug("gateway: client created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return c, nil
}

func NewDefaultClient(cfg config.GatewayConfig) (*Client, error) {
	defaultClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return NewClient(cfg, defaultClient)
}

// Close releases idle connections of the underlying transport. Close is
// idempotent and safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return nil
}

// package-level logger for pkg/gateway; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/gateway. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.failures) < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}

	if time.Now().UnixNano() < atomic.LoadInt64(&c.openUntil) {
		return true
	}

	// attempt half-open: reset failures and allow a request
	atomic.StoreInt32(&c.failures, 0)
	return false
}

func (c *Client) recordFailure() {
	v := atomic.AddInt32(&c.failures, 1)
	if v >= int32(c.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.cfg.CircuitReset).UnixNano())
	}
}

func (c *Client) resetFailures() {
	atomic.StoreInt32(&c.failures, 0)
}

// call describes one API request.
type call struct {
	method string
	path   string
	query  url.Values
	body   any
	// anonymous calls carry no bearer token and are never refreshed
	anonymous bool
	// schema names the contract a 2xx body is validated against
	schema string
}

func (r call) op() string { return r.method + " " + r.path }

type response struct {
	status    int
	body      []byte
	requestID string
}

// do runs r and decodes a 2xx body into out. Reads are retried on network
// failures; writes are sent once. A 401 triggers one token refresh and one
// more attempt.
func (c *Client) do(ctx context.Context, r call, out any) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return &repository.NetworkError{Op: r.op(), Err: errors.New("client closed")}
	}
	attempts := 1
	if r.method == http.MethodGet {
		attempts += max(c.cfg.Retries, 0)
	}
	if !r.anonymous {
		c.refreshIfExpiring(ctx)
	}

	var lastErr error
	refreshed, retryNow := false, false
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && !retryNow {
			if err := c.sleep(ctx, c.cfg.Backoff*time.Duration(attempt)); err != nil {
				break
			}
		}
		retryNow = false
		if c.isCircuitOpen() {
			return &repository.NetworkError{Op: r.op(), Err: ErrCircuitOpen}
		}

		token := c.Token()
		resp, err := c.send(ctx, r, token)
		if err != nil {
			c.recordFailure()
			lastErr = &repository.NetworkError{Op: r.op(), Err: err}
			logger.Debug("gateway: request failed", "op", r.op(), "attempt", attempt, "err", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if repository.AmbiguousStatus(resp.status) {
			c.recordFailure()
			lastErr = remoteError(r, resp)
			continue
		}
		c.resetFailures()

		if resp.status == http.StatusUnauthorized && !r.anonymous && !refreshed && c.RefreshToken() != "" {
			refreshed = true
			rerr := c.refreshSession(ctx, token)
			if rerr == nil {
				attempt--
				retryNow = true
				continue
			}
			logger.Info("gateway: token refresh failed", "err", rerr)
		}
		if resp.status < 200 || resp.status >= 300 {
			return remoteError(r, resp)
		}
		if out == nil || resp.status == http.StatusNoContent || len(resp.body) == 0 {
			return nil
		}
		if r.schema != "" {
			if err := validate(ctx, r.schema, resp.body); err != nil {
				return &repository.RemoteError{Status: resp.status, Code: "invalid_response", Message: err.Error(), Path: r.path, RequestID: resp.requestID}
			}
		}
		if err := json.Unmarshal(resp.body, out); err != nil {
			return &repository.RemoteError{Status: resp.status, Code: "invalid_response", Message: fmt.Sprintf("decode %s: %v", r.op(), err), Path: r.path, RequestID: resp.requestID}
		}
		return nil
	}
	if lastErr == nil {
		lastErr = &repository.NetworkError{Op: r.op(), Err: ctx.Err()}
	}
	return lastErr
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) send(ctx context.Context, r call, token string) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := c.base + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return response{}, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return response{}, err
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !r.anonymous && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}
	if id := resp.Header.Get(RequestIDHeader); id != "" {
		reqID = id
	}
	logger.Debug("gateway: request", "op", r.op(), "status", resp.StatusCode, "request_id", reqID, "latency_ms", time.Since(start).Milliseconds())
	return response{status: resp.StatusCode, body: b, requestID: reqID}, nil
}

// errorResponse is the server's error body.
type errorResponse struct {
	Status  int                     `json:"status"`
	Error   string                  `json:"error"`
	Message string                  `json:"message"`
	Path    string                  `json:"path"`
	Details []repository.FieldError `json:"details"`
}

func remoteError(r call, resp response) *repository.RemoteError {
	e := &repository.RemoteError{Status: resp.status, Path: r.path, RequestID: resp.requestID}
	var body errorResponse
	if err := json.Unmarshal(resp.body, &body); err == nil && (body.Message != "" || body.Error != "") {
		e.Code = body.Error
		e.Message = body.Message
		e.Details = body.Details
		if body.Path != "" {
			e.Path = body.Path
		}
		return e
	}
	text := strings.TrimSpace(string(resp.body))
	if len(text) > maxMessageBytes {
		cut := maxMessageBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	e.Message = text
	return e
}

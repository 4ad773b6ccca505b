package graph

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

// DefaultBaseURL is the production Microsoft Graph API v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Backoff defaults: base 1s, factor 2x, cap 120s, ±25% jitter.
// defaultMaxRetries is the ceiling used when a caller does not configure one
// explicitly. Long-running transfer callers should set a much higher ceiling
// (ClientConfig.MaxRetries passed to NewClient) — LongHorizonMaxRetries is sized so the
// 120s cap covers roughly a year of wall clock before giving up.
const (
	defaultMaxRetries     = 5
	LongHorizonMaxRetries = 175200
	baseBackoff           = 1 * time.Second
	maxBackoff            = 120 * time.Second
	backoffFactor         = 2.0
	jitterFraction        = 0.25
	defaultUserAgent      = "onedrive-transport/0.1"
	flatBackoff5xx        = 30 * time.Second
	// statusNoResponse is the synthetic status used when the HTTP transport
	// returns success but never populates a status code.
	statusNoResponse = 506
)

// isSuccess reports whether a status code falls in the classifier's success
// set: [100,300) plus the specific redirect codes 301/302/304/307/308, which
// upper layers treat as successful outcomes rather than errors to classify.
func isSuccess(code int) bool {
	if code >= http.StatusContinue && code < http.StatusMultipleChoices {
		return true
	}

	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusNotModified,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// TokenSource provides OAuth2 bearer tokens.
// Defined at the consumer (graph/) per "accept interfaces, return structs" —
// do not move this interface to the auth provider package.
type TokenSource interface {
	Token() (string, error)
}

// ClientConfig holds the HTTP engine's construction-time settings beyond the
// bare baseURL/httpClient/token/logger. Zero value is a fully usable default.
type ClientConfig struct {
	// UserAgent overrides the default "onedrive-transport/x.y" string.
	UserAgent string
	// MaxRetries caps retry attempts for a single call. Zero means
	// defaultMaxRetries (5); use LongHorizonMaxRetries for callers doing
	// unattended long-running transfers.
	MaxRetries int
	// RateLimitBytesPerSec throttles upload/download body streaming.
	// Zero means unlimited.
	RateLimitBytesPerSec int64
	// ForceHTTP1 disables HTTP/2 attempt negotiation. Only takes effect when
	// httpClient passed to NewClient is nil, since the engine builds its own
	// Transport in that case.
	ForceHTTP1 bool
	// IdleConnTimeout bounds how long an idle connection is kept for reuse.
	// Zero uses Go's http.Transport default (90s).
	IdleConnTimeout time.Duration
	// DialTimeout bounds DNS resolution + TCP connect. Zero uses 30s.
	DialTimeout time.Duration
}

// Client is an HTTP client for the Microsoft Graph API.
// It handles request construction, authentication, retry with
// exponential backoff, and error classification.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	token       TokenSource
	logger      *slog.Logger
	userAgent   string
	maxRetries  int
	rateLimiter *rateLimiter

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Graph API client.
// baseURL is typically one of the region-specific graph hosts from
// ResolveEndpoints. If httpClient is nil, one is built from cfg (honoring
// ForceHTTP1, IdleConnTimeout, DialTimeout); a caller-supplied httpClient is
// used as-is and those three fields are ignored.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, cfg ClientConfig) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = newHTTPClient(cfg)
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	var rl *rateLimiter
	if cfg.RateLimitBytesPerSec > 0 {
		rl = newRateLimiter(cfg.RateLimitBytesPerSec)
	}

	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		token:       token,
		logger:      logger,
		userAgent:   ua,
		maxRetries:  retries,
		rateLimiter: rl,
		sleepFunc:   timeSleep,
	}
}

// newHTTPClient builds the default *http.Client honoring ForceHTTP1,
// IdleConnTimeout, and DialTimeout from cfg.
func newHTTPClient(cfg ClientConfig) *http.Client {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}

	idleTimeout := cfg.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: dialTimeout,
		}).DialContext,
		IdleConnTimeout:     idleTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.ForceHTTP1 {
		// Clearing TLSNextProto prevents the transport from ever upgrading
		// to HTTP/2 over TLS (ALPN negotiation offers h2 only via this map).
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	return &http.Client{Transport: transport}
}

// Do executes an authenticated HTTP request against the Graph API with automatic
// retry on transient errors.
// The caller is responsible for closing the response body on success.
// On error, returns a *GraphError wrapping a sentinel (use errors.Is to classify),
// a *TimeoutError or *IntegritySSLError for those fatal classes, or the
// context's error on cancellation.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return c.doRetry(ctx, method, path, body, nil)
}

// DoWithHeaders executes an authenticated HTTP request with additional headers.
// It behaves identically to Do but merges extraHeaders into every request attempt.
// Use this for API calls that require special headers (e.g., Prefer for delta queries).
func (c *Client) DoWithHeaders(
	ctx context.Context, method, path string, body io.Reader, extraHeaders http.Header,
) (*http.Response, error) {
	return c.doRetry(ctx, method, path, body, extraHeaders)
}

// doRetry is the shared retry loop for Do and DoWithHeaders.
func (c *Client) doRetry(
	ctx context.Context, method, path string, body io.Reader, extraHeaders http.Header,
) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int
	for {
		// Rewind seekable bodies so retries send the full payload.
		if err := rewindBody(body); err != nil {
			return nil, err
		}

		// Retries bypass the connection pool: the pooled connection may be
		// the thing that died, and reusing it costs another failed attempt.
		resp, err := c.doOnce(ctx, method, url, body, extraHeaders, attempt > 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
			}

			if isFatalTLSError(err) {
				c.logger.Error("TLS/CA verification failed, not retrying",
					slog.String("method", method),
					slog.String("path", path),
					slog.String("error", err.Error()),
				)

				return nil, &IntegritySSLError{Err: err}
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				// Evict pooled connections before sleeping: after a transport
				// failure the pooled connection is the prime suspect, and the
				// next attempt must dial fresh rather than inherit it.
				c.httpClient.CloseIdleConnections()

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("graph: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, &TimeoutError{
				Attempts: attempt + 1,
				Err:      fmt.Errorf("graph: %s %s failed after %d retries: %w", method, path, c.maxRetries, err),
			}
		}

		if resp.StatusCode == 0 {
			resp.Body.Close()
			return nil, c.terminalError(method, path, statusNoResponse, resp.Header.Get("request-id"),
				[]byte("transport returned without populating status"), attempt)
		}

		if isSuccess(resp.StatusCode) {
			if attempt > 0 {
				c.logger.Info("Internet connectivity restored",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempts", attempt+1),
				)
			}

			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.String("request_id", resp.Header.Get("request-id")),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		reqID := resp.Header.Get("request-id")

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			c.httpClient.CloseIdleConnections()

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("graph: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, c.terminalError(method, path, resp.StatusCode, reqID, errBody, attempt)
	}
}

// doOnce executes a single HTTP request (no retry). freshConnect forces the
// attempt onto a new connection instead of a pooled one, and closes it after
// the response; retry attempts set it so a half-dead keep-alive connection
// can't eat a second attempt, and the success path clears it by never setting
// it on a first attempt.
func (c *Client) doOnce(
	ctx context.Context, method, url string, body io.Reader, extraHeaders http.Header, freshConnect bool,
) (*http.Response, error) {
	c.logger.Debug("preparing request",
		slog.String("method", method),
		slog.String("url", url),
	)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Close = freshConnect

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Merge caller-supplied headers (e.g., Prefer for delta queries).
	for key, vals := range extraHeaders {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed",
			slog.String("method", method),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	c.logger.Debug("HTTP response received",
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", resp.Header.Get("request-id")),
	)

	return resp, nil
}

// terminalError builds a GraphError (or, when the ceiling was exceeded on a
// retryable status, a *TimeoutError wrapping one) and logs the final failure.
// Extracted from doRetry to keep the retry loop under funlen limits.
func (c *Client) terminalError(
	method, path string, statusCode int, reqID string, body []byte, attempt int,
) error {
	graphErr := &GraphError{
		StatusCode: statusCode,
		RequestID:  reqID,
		Message:    string(body),
		Err:        classifyStatus(statusCode),
	}

	if attempt > 0 {
		c.logger.Error("request failed after retries",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", statusCode),
			slog.String("request_id", reqID),
			slog.Int("attempts", attempt+1),
		)

		// statusCode was retryable but the ceiling was exceeded before a
		// success or non-retryable status arrived; the transient condition
		// downgrades to a fatal timeout.
		if isRetryable(statusCode) {
			return &TimeoutError{Attempts: attempt + 1, Err: graphErr}
		}

		return graphErr
	}

	c.logger.Warn("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", statusCode),
		slog.String("request_id", reqID),
	)

	return graphErr
}

// doPreAuthRetry executes HTTP requests against pre-authenticated URLs with
// retry on transient failures (network errors, 408, 429, 503, 504). The makeReq function
// is called on each attempt to create a fresh request, enabling body re-reads.
// No Authorization header is added — the URL itself is pre-authenticated.
//
// On a success status (see isSuccess), returns the response for the caller to interpret.
// On non-retryable error or retry exhaustion, returns an error (matching doRetry):
// *GraphError, or *TimeoutError/*IntegritySSLError for the fatal taxonomy classes.
func (c *Client) doPreAuthRetry(
	ctx context.Context, desc string, makeReq func() (*http.Request, error),
) (*http.Response, error) {
	var attempt int

	for {
		req, err := makeReq()
		if err != nil {
			return nil, err
		}

		// Same fresh-connect discipline as doRetry: retries must not inherit
		// the pooled connection that may have just failed.
		req.Close = attempt > 0

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("graph: %s canceled: %w", desc, ctx.Err())
			}

			if isFatalTLSError(err) {
				c.logger.Error("TLS/CA verification failed, not retrying",
					slog.String("desc", desc),
					slog.String("error", err.Error()),
				)

				return nil, &IntegritySSLError{Err: err}
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying pre-auth request after network error",
					slog.String("desc", desc),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				c.httpClient.CloseIdleConnections()

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("graph: %s canceled: %w", desc, sleepErr)
				}

				attempt++

				continue
			}

			return nil, &TimeoutError{
				Attempts: attempt + 1,
				Err:      fmt.Errorf("graph: %s failed after %d retries: %w", desc, c.maxRetries, err),
			}
		}

		if resp.StatusCode == 0 {
			resp.Body.Close()
			return nil, c.preAuthTerminalError(desc, statusNoResponse, resp.Header.Get("request-id"),
				[]byte("transport returned without populating status"), attempt)
		}

		if isSuccess(resp.StatusCode) {
			if attempt > 0 {
				c.logger.Info("Internet connectivity restored",
					slog.String("desc", desc),
					slog.Int("attempts", attempt+1),
				)
			}

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		reqID := resp.Header.Get("request-id")

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying pre-auth request after HTTP error",
				slog.String("desc", desc),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			c.httpClient.CloseIdleConnections()

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("graph: %s canceled: %w", desc, sleepErr)
			}

			attempt++

			continue
		}

		return nil, c.preAuthTerminalError(desc, resp.StatusCode, reqID, errBody, attempt)
	}
}

// preAuthTerminalError builds a GraphError and logs the final failure for pre-auth URLs.
// Mirrors terminalError but uses desc instead of method+path.
func (c *Client) preAuthTerminalError(
	desc string, statusCode int, reqID string, body []byte, attempt int,
) error {
	graphErr := &GraphError{
		StatusCode: statusCode,
		RequestID:  reqID,
		Message:    string(body),
		Err:        classifyStatus(statusCode),
	}

	if attempt > 0 {
		c.logger.Error("pre-auth request failed after retries",
			slog.String("desc", desc),
			slog.Int("status", statusCode),
			slog.String("request_id", reqID),
			slog.Int("attempts", attempt+1),
		)

		if isRetryable(statusCode) {
			return &TimeoutError{Attempts: attempt + 1, Err: graphErr}
		}

		return graphErr
	}

	c.logger.Warn("pre-auth request failed",
		slog.String("desc", desc),
		slog.Int("status", statusCode),
		slog.String("request_id", reqID),
	)

	return graphErr
}

// retryBackoff returns the backoff duration for a retryable response.
// For 408 and 429, a Retry-After header takes precedence over calculated
// backoff — ignoring it risks extended throttling.
// 503/504 (transient server) get a flat 30s sleep rather than the
// exponential curve used elsewhere.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch resp.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return flatBackoff5xx
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
// delay = min(2^attempt · base, cap); negative results from overflow (only
// reachable at absurd attempt counts) clamp to cap rather than go negative.
// The jittered delay is clamped to cap again, so no delay exceeds cap.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) || backoff < 0 {
		backoff = float64(maxBackoff)
	}

	// Jitter prevents thundering herd when multiple workers hit rate limits simultaneously.
	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	return time.Duration(backoff)
}

// rewindBody seeks an io.Reader back to offset 0 if it implements io.Seeker.
// All callers use bytes.NewReader (which is an io.ReadSeeker), so the body
// is fully available on retry. Returns nil when body is nil or not seekable.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("graph: rewinding request body for retry: %w", err)
		}
	}

	return nil
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

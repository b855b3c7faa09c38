package httpx

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// ErrRetriesExhausted wraps the last failure once the retry budget is spent.
var ErrRetriesExhausted = errors.New("httpx: retries exhausted")

// HTTPError carries status/body for non-2xx responses.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Retryable  bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s %s status=%d body=%s", e.Method, e.URL, e.StatusCode, snippet(e.Body, 900))
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// RetryPolicy controls retry behavior. It holds no state, so one value can be
// shared by every request of a run.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// Jitter adds up to this much random delay to computed backoffs.
	Jitter time.Duration

	RetryStatuses map[int]bool
}

// DefaultRetryStatuses is the fixed set of statuses the catalog API is
// retried on. Anything else non-2xx is fatal.
func DefaultRetryStatuses() map[int]bool {
	return map[int]bool{
		http.StatusForbidden:           true, // 403, returned by the API's rate limiter
		http.StatusRequestTimeout:      true, // 408
		http.StatusConflict:            true, // 409
		http.StatusTooEarly:            true, // 425
		http.StatusTooManyRequests:     true, // 429
		http.StatusInternalServerError: true, // 500
		http.StatusBadGateway:          true, // 502
		http.StatusServiceUnavailable:  true, // 503
		http.StatusGatewayTimeout:      true, // 504
	}
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   6,
		BaseDelay:     500 * time.Millisecond,
		Multiplier:    2,
		MaxDelay:      30 * time.Second,
		Jitter:        250 * time.Millisecond,
		RetryStatuses: DefaultRetryStatuses(),
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.RetryStatuses == nil {
		p.RetryStatuses = def.RetryStatuses
	}
	return p
}

// IsRetryableStatus reports whether a response with code should be retried.
func (p RetryPolicy) IsRetryableStatus(code int) bool {
	return p.RetryStatuses[code]
}

// Backoff returns the delay before retry number attempt (1-based), without jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p RetryPolicy) sleep(ctx context.Context, attempt int, retryAfter time.Duration) error {
	d := retryAfter
	if d <= 0 {
		d = p.Backoff(attempt)
		if p.Jitter > 0 {
			d += time.Duration(rand.Int63n(int64(p.Jitter)))
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoWithRetry executes a request (built by buildReq) with retries.
// It always reads the full body (even on error) so the underlying TCP connection
// can be reused by http.Transport.
func DoWithRetry(
	ctx context.Context,
	client *http.Client,
	buildReq func(context.Context) (*http.Request, error),
	policy RetryPolicy,
) (*http.Response, []byte, error) {
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			var retryAfter time.Duration
			var herr *HTTPError
			if errors.As(lastErr, &herr) {
				retryAfter = parseRetryAfterHeader(herr.Header)
			}
			if err := policy.sleep(ctx, attempt-1, retryAfter); err != nil {
				return nil, nil, err
			}
		}

		req, err := buildReq(ctx)
		if err != nil {
			return nil, nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			if isRetryableNetErr(err) {
				lastErr = err
				continue
			}
			return nil, nil, err
		}

		body, readErr := readBody(resp)
		if readErr != nil {
			if isRetryableNetErr(readErr) {
				lastErr = readErr
				continue
			}
			return resp, body, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, body, nil
		}

		herr := &HTTPError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
			Retryable:  policy.IsRetryableStatus(resp.StatusCode),
		}
		if !herr.Retryable {
			return resp, body, herr
		}
		lastErr = herr
	}

	if lastErr == nil {
		lastErr = errors.New("httpx: request failed")
	}
	return nil, nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, policy.MaxAttempts, lastErr)
}

// readBody drains and closes the body, decoding br/gzip when the server
// honoured our Accept-Encoding.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("httpx: gzip body: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}

func isRetryableNetErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}

	// common transient I/O errors
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof") {
		return true
	}
	return false
}

// ParseRetryAfter parses Retry-After header (seconds or HTTP date).
// Returns 0 when header is missing/invalid.
func ParseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	return parseRetryAfterHeader(resp.Header)
}

func parseRetryAfterHeader(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

// DoJSON is a convenience wrapper over DoWithRetry that unmarshals JSON.
func DoJSON(
	ctx context.Context,
	client *http.Client,
	buildReq func(context.Context) (*http.Request, error),
	out any,
	policy RetryPolicy,
) error {
	_, body, err := DoWithRetry(ctx, client, buildReq, policy)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("json parse error: %w body=%s", err, snippet(body, 900))
	}
	return nil
}

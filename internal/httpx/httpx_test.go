package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestSnippet(t *testing.T) {
	testCases := []struct {
		input    string
		max      int
		expected string
	}{
		{"short text", 100, "short text"},
		{"", 100, ""},
		{"  trimmed  ", 100, "trimmed"},
		{"long text that should be truncated", 10, "long text ..."},
	}

	for _, tc := range testCases {
		result := snippet([]byte(tc.input), tc.max)
		if result != tc.expected {
			t.Errorf("snippet(%q, %d) = %q, want %q", tc.input, tc.max, result, tc.expected)
		}
	}
}

func TestHTTPError(t *testing.T) {
	err := &HTTPError{
		Method:     "GET",
		URL:        "https://example.com",
		StatusCode: 404,
		Body:       []byte("Not Found"),
	}

	expected := "http error: GET https://example.com status=404 body=Not Found"
	if err.Error() != expected {
		t.Errorf("HTTPError.Error() = %q, want %q", err.Error(), expected)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.MaxAttempts != 6 {
		t.Errorf("Expected MaxAttempts to be 6, got %d", p.MaxAttempts)
	}
	if p.BaseDelay != 500*time.Millisecond {
		t.Errorf("Expected BaseDelay to be 500ms, got %v", p.BaseDelay)
	}
	if p.Multiplier != 2 {
		t.Errorf("Expected Multiplier to be 2, got %v", p.Multiplier)
	}

	for _, status := range []int{403, 408, 409, 425, 429, 500, 502, 503, 504} {
		if !p.IsRetryableStatus(status) {
			t.Errorf("Expected status %d to be retryable", status)
		}
	}
	for _, status := range []int{200, 400, 401, 404, 410, 422, 501, 505} {
		if p.IsRetryableStatus(status) {
			t.Errorf("Expected status %d to be non-retryable", status)
		}
	}
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}

	cases := map[int]time.Duration{
		0: 100 * time.Millisecond,
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		4: 800 * time.Millisecond,
		5: time.Second,
		9: time.Second,
	}
	for attempt, want := range cases {
		if got := p.Backoff(attempt); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	if p.MaxAttempts != 6 || p.Multiplier != 2 || p.RetryStatuses == nil {
		t.Errorf("unexpected defaults: %+v", p)
	}

	custom := RetryPolicy{MaxAttempts: 2, RetryStatuses: map[int]bool{418: true}}.withDefaults()
	if custom.MaxAttempts != 2 || !custom.IsRetryableStatus(418) || custom.IsRetryableStatus(503) {
		t.Errorf("custom policy lost settings: %+v", custom)
	}
}

func TestIsRetryableNetErr(t *testing.T) {
	if isRetryableNetErr(context.Canceled) {
		t.Error("Expected context.Canceled to be non-retryable")
	}
	if !isRetryableNetErr(context.DeadlineExceeded) {
		t.Error("Expected DeadlineExceeded to be retryable")
	}
	if !isRetryableNetErr(errors.New("read: connection reset by peer")) {
		t.Error("Expected connection reset to be retryable")
	}
	if isRetryableNetErr(errors.New("dial tcp: no such host")) {
		t.Error("Expected DNS failure to be non-retryable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if d := ParseRetryAfter(resp); d != 0 {
		t.Errorf("Expected 0 for missing header, got %v", d)
	}

	resp.Header.Set("Retry-After", "3")
	if d := ParseRetryAfter(resp); d != 3*time.Second {
		t.Errorf("Expected 3s, got %v", d)
	}

	resp.Header.Set("Retry-After", "garbage")
	if d := ParseRetryAfter(resp); d != 0 {
		t.Errorf("Expected 0 for invalid header, got %v", d)
	}

	resp.Header.Set("Retry-After", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))
	if d := ParseRetryAfter(resp); d != 0 {
		t.Errorf("Expected 0 for past date, got %v", d)
	}

	if d := ParseRetryAfter(nil); d != 0 {
		t.Errorf("Expected 0 for nil response, got %v", d)
	}
}

package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

// Mock HTTP RoundTripper for testing
type mockRoundTripper struct {
	responses []*http.Response
	errors    []error
	index     int
	mux       sync.Mutex
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.index >= len(m.responses) {
		return nil, errors.New("no more responses")
	}

	resp := m.responses[m.index]
	err := m.errors[m.index]
	m.index++
	return resp, err
}

func (m *mockRoundTripper) calls() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.index
}

func newMockClient(responses []*http.Response, errs []error) (*http.Client, *mockRoundTripper) {
	for i := len(errs); i < len(responses); i++ {
		errs = append(errs, nil)
	}
	rt := &mockRoundTripper{responses: responses, errors: errs}
	return &http.Client{Transport: rt}, rt
}

func newMockResponse(statusCode int, body string, headers map[string]string) *http.Response {
	header := http.Header{}
	for k, v := range headers {
		header.Set(k, v)
	}
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     header,
	}
}

func getReq(ctx context.Context) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, "https://example.com", nil)
}

func fastPolicy(attempts int) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = attempts
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	p.Jitter = 0
	return p
}

func TestDoWithRetrySuccess(t *testing.T) {
	client, _ := newMockClient([]*http.Response{newMockResponse(200, `{"success": true}`, nil)}, nil)

	resp, body, err := DoWithRetry(context.Background(), client, getReq, fastPolicy(3))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected status code 200, got %d", resp.StatusCode)
	}
	if string(body) != `{"success": true}` {
		t.Errorf("Expected body %q, got %q", `{"success": true}`, string(body))
	}
}

func TestDoWithRetryBuildReqError(t *testing.T) {
	client, _ := newMockClient(nil, nil)

	buildReq := func(ctx context.Context) (*http.Request, error) {
		return nil, errors.New("request build error")
	}

	_, _, err := DoWithRetry(context.Background(), client, buildReq, fastPolicy(3))
	if err == nil || !strings.Contains(err.Error(), "request build error") {
		t.Errorf("Expected request build error, got %v", err)
	}
}

func TestDoWithRetryNonRetryableError(t *testing.T) {
	client, rt := newMockClient([]*http.Response{nil}, []error{errors.New("non-retryable error")})

	_, _, err := DoWithRetry(context.Background(), client, getReq, fastPolicy(3))
	if err == nil || !strings.Contains(err.Error(), "non-retryable error") {
		t.Errorf("Expected non-retryable error, got %v", err)
	}
	if rt.calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rt.calls())
	}
}

func TestDoWithRetryRetryableStatuses(t *testing.T) {
	for _, status := range []int{403, 408, 409, 425, 429, 500, 502, 503, 504} {
		client, rt := newMockClient([]*http.Response{
			newMockResponse(status, `{"error": "try again"}`, map[string]string{"Retry-After": "1"}),
			newMockResponse(200, `{"success": true}`, nil),
		}, nil)

		resp, body, err := DoWithRetry(context.Background(), client, getReq, fastPolicy(3))
		if err != nil {
			t.Errorf("status %d: expected no error after retry, got %v", status, err)
			continue
		}
		if resp.StatusCode != 200 || string(body) != `{"success": true}` {
			t.Errorf("status %d: unexpected final response %d %q", status, resp.StatusCode, body)
		}
		if rt.calls() != 2 {
			t.Errorf("status %d: expected 2 calls, got %d", status, rt.calls())
		}
	}
}

func TestDoWithRetryNonRetryableStatusAbortsImmediately(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(404, `not found`, nil),
		newMockResponse(200, `{}`, nil),
	}, nil)

	_, _, err := DoWithRetry(context.Background(), client, getReq, fastPolicy(5))

	var herr *HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("Expected *HTTPError, got %v", err)
	}
	if herr.StatusCode != 404 || herr.Retryable {
		t.Errorf("unexpected error %+v", herr)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("non-retryable status must not be reported as exhausted retries")
	}
	if rt.calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rt.calls())
	}
}

func TestDoWithRetryMaxAttemptsExceeded(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(500, `{"error": "server error"}`, nil),
		newMockResponse(502, `{"error": "bad gateway"}`, nil),
		newMockResponse(503, `{"error": "unavailable"}`, nil),
	}, nil)

	_, _, err := DoWithRetry(context.Background(), client, getReq, fastPolicy(3))
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Expected ErrRetriesExhausted, got %v", err)
	}
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != 503 {
		t.Errorf("Expected last HTTPError with 503, got %v", err)
	}
	if rt.calls() != 3 {
		t.Errorf("Expected 3 calls, got %d", rt.calls())
	}
}

func TestDoWithRetryTimeoutIsRetryable(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	buildReq := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}

	_, body, err := DoWithRetry(context.Background(), client, buildReq, fastPolicy(3))
	if err != nil {
		t.Fatalf("Expected success after timeout retry, got %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("Expected body ok, got %q", body)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("Expected 2 hits, got %d", hits)
	}
}

func TestDoWithRetryContextCancellation(t *testing.T) {
	client, _ := newMockClient([]*http.Response{
		newMockResponse(503, `{}`, nil),
		newMockResponse(200, `{}`, nil),
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := fastPolicy(3)
	p.BaseDelay = time.Second
	p.MaxDelay = time.Second

	_, _, err := DoWithRetry(ctx, client, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, "https://example.com", nil)
	}, p)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDoJSON(t *testing.T) {
	client, _ := newMockClient([]*http.Response{newMockResponse(200, `{"currentPage": 2}`, nil)}, nil)

	var out struct {
		CurrentPage int `json:"currentPage"`
	}
	if err := DoJSON(context.Background(), client, getReq, &out, fastPolicy(1)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.CurrentPage != 2 {
		t.Errorf("Expected currentPage 2, got %d", out.CurrentPage)
	}

	client, _ = newMockClient([]*http.Response{newMockResponse(200, `<html>`, nil)}, nil)
	err := DoJSON(context.Background(), client, getReq, &out, fastPolicy(1))
	if err == nil || !strings.Contains(err.Error(), "json parse error") {
		t.Errorf("Expected json parse error, got %v", err)
	}

	client, _ = newMockClient([]*http.Response{newMockResponse(200, `whatever`, nil)}, nil)
	if err := DoJSON(context.Background(), client, getReq, nil, fastPolicy(1)); err != nil {
		t.Errorf("Expected nil error for nil output, got %v", err)
	}
}

func TestReadBodyDecodesBrotliAndGzip(t *testing.T) {
	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(`{"enc":"br"}`))
	_ = bw.Close()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(`{"enc":"gzip"}`))
	_ = gw.Close()

	cases := []struct {
		encoding string
		body     []byte
		want     string
	}{
		{"br", br.Bytes(), `{"enc":"br"}`},
		{"gzip", gz.Bytes(), `{"enc":"gzip"}`},
		{"", []byte(`{"enc":"none"}`), `{"enc":"none"}`},
	}
	for _, tc := range cases {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{tc.encoding}},
			Body:   io.NopCloser(bytes.NewReader(tc.body)),
		}
		got, err := readBody(resp)
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.encoding, err)
			continue
		}
		if string(got) != tc.want {
			t.Errorf("%q: got %q want %q", tc.encoding, got, tc.want)
		}
	}
}

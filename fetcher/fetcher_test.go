package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.BackoffStep = time.Millisecond
	opts.Timeout = time.Second
	return opts
}

func TestUserAgentAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("FAIL: Expected test-agent got %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("FAIL: Expected header not sent")
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.UserAgent = "test-agent"
	opts.Headers = map[string]string{"X-Api-Key": "secret"}

	out, err := NewClient(opts).Text(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello" {
		t.Errorf("FAIL: Expected 'hello' got '%s'", out)
	}
}

func TestDefaultUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("FAIL: Expected default UA got %q", r.Header.Get("User-Agent"))
		}
	}))
	defer srv.Close()

	_, err := NewClient(Options{}).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
}

func TestRandomUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("FAIL: no User-Agent sent")
		}
	}))
	defer srv.Close()

	opts := testOptions()
	opts.RandomUserAgent = true
	_, err := NewClient(opts).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
}

func TestRetryServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var retries int32
	client := NewClient(testOptions())
	client.LogCallback = func(format string, a ...interface{}) {
		atomic.AddInt32(&retries, 1)
	}

	_, err := client.Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("FAIL: Expected an error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("FAIL: Expected a 503 StatusError got %v", err)
	}
	if hits != DefaultRetries+1 {
		t.Errorf("FAIL: Expected %d attempts got %d", DefaultRetries+1, hits)
	}
	if retries != DefaultRetries {
		t.Errorf("FAIL: Expected %d retries logged got %d", DefaultRetries, retries)
	}
}

func TestRetryRecovers(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	var out struct {
		Value int `json:"value"`
	}
	err := NewClient(testOptions()).JSON(context.Background(), srv.URL, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 42 {
		t.Errorf("FAIL: Expected 42 got %d", out.Value)
	}
	if hits != 2 {
		t.Errorf("FAIL: Expected 2 attempts got %d", hits)
	}
}

func TestNoRetryNotFound(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(testOptions()).Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FAIL: Expected ErrNotFound got %v", err)
	}
	if hits != 1 {
		t.Errorf("FAIL: Expected a single attempt got %d", hits)
	}
}

func TestNoRetryBadRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(testOptions()).Get(context.Background(), srv.URL)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("FAIL: Expected a 400 StatusError got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("FAIL: 400 should not match ErrNotFound")
	}
	if hits != 1 {
		t.Errorf("FAIL: Expected a single attempt got %d", hits)
	}
}

func TestTimeout(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	opts.Retries = 1

	_, err := NewClient(opts).Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("FAIL: Expected ErrTimeout got %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("FAIL: Expected 2 attempts got %d", hits)
	}
}

func TestCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(testOptions()).Get(ctx, srv.URL)
	if err == nil {
		t.Errorf("FAIL: Expected an error on a canceled context")
	}
}

func TestLinearBackoff(t *testing.T) {
	step := 250 * time.Millisecond
	for i, want := range []time.Duration{250, 500, 750} {
		got := LinearBackoff(step, 0, i, nil)
		if got != want*time.Millisecond {
			t.Errorf("FAIL attempt %d: Expected %v got %v", i, want*time.Millisecond, got)
		}
	}
	if LinearBackoff(step, time.Second, 10, nil) != time.Second {
		t.Errorf("FAIL: backoff was not capped")
	}
}

func TestRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	opts := testOptions()
	opts.RateLimit = 20

	client := NewClient(opts)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), srv.URL)
		if err != nil {
			t.Fatal(err)
		}
	}
	// Burst of one, then one token every 50ms
	if time.Since(start) < 90*time.Millisecond {
		t.Errorf("FAIL: requests were not rate limited")
	}
}

func TestRetryStalledBody(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Timeout = 100 * time.Millisecond
	opts.Retries = 2

	out, err := NewClient(opts).Text(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if out != "ok" {
		t.Errorf("FAIL: Expected 'ok' got %q", out)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("FAIL: Expected 2 attempts got %d", hits)
	}
}

func TestRetryTruncatedJSON(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Write([]byte(`{"value": 4`))
			return
		}
		w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	var out struct {
		Value int `json:"value"`
	}
	err := NewClient(testOptions()).JSON(context.Background(), srv.URL, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 42 || hits != 2 {
		t.Errorf("FAIL: Expected 42 after 2 attempts got %d after %d", out.Value, hits)
	}
}

func TestStalledBodyGivesUp(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	opts.Retries = 1

	_, err := NewClient(opts).Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("FAIL: Expected ErrTimeout got %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("FAIL: Expected 2 attempts got %d", hits)
	}
}

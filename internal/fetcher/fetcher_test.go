package fetcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// scriptedSource returns the queued errors in order, then succeeds.
type scriptedSource struct {
	mu    sync.Mutex
	calls int
	errs  []error
	every error // returned on every call when set
}

func (s *scriptedSource) Fetch(_ context.Context, id, target string) (*types.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.every != nil {
		return nil, s.every
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &types.Content{ID: id, URL: target, StatusCode: 200, Body: []byte("ok")}, nil
}

func (s *scriptedSource) Close() error { return nil }
func (s *scriptedSource) Type() string { return "scripted" }

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func testPolicy() Policy {
	return PolicyFromConfig(config.DefaultConfig().Retry)
}

func TestRetryCapIsExact(t *testing.T) {
	src := &scriptedSource{every: types.Transient("https://x/a", 503, errors.New("unavailable"))}
	rec := &sleepRecorder{}
	f := NewFetcher(src, testPolicy(), testLogger, WithSleep(rec.sleep))

	res := f.Fetch(context.Background(), types.WorkItem{ID: "https://x/a"})

	if src.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", src.calls)
	}
	if res.Kind != types.FetchTransient {
		t.Errorf("expected transient result, got %s", res.Kind)
	}
	if res.Attempts != 3 {
		t.Errorf("expected attempts=3, got %d", res.Attempts)
	}
	if !errors.Is(res.Err, types.ErrMaxRetries) {
		t.Errorf("expected ErrMaxRetries, got %v", res.Err)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), rec.delays)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("backoff %d: expected %s, got %s", i, want[i], rec.delays[i])
		}
	}
}

func TestPermanentIsNotRetried(t *testing.T) {
	src := &scriptedSource{every: types.Permanent("https://x/missing", 404, errors.New("HTTP 404"))}
	f := NewFetcher(src, testPolicy(), testLogger, WithSleep((&sleepRecorder{}).sleep))

	res := f.Fetch(context.Background(), types.WorkItem{ID: "https://x/missing"})
	if src.calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", src.calls)
	}
	if res.Kind != types.FetchPermanent {
		t.Errorf("expected permanent result, got %s", res.Kind)
	}
}

func TestTransientThenSuccess(t *testing.T) {
	hinted := types.Transient("https://x/a", 429, errors.New("slow down"))
	hinted.RetryAfter = 30 * time.Second
	src := &scriptedSource{errs: []error{hinted}}
	rec := &sleepRecorder{}
	f := NewFetcher(src, testPolicy(), testLogger, WithSleep(rec.sleep))

	res := f.Fetch(context.Background(), types.WorkItem{ID: "https://x/a"})
	if !res.OK() {
		t.Fatalf("expected success, got %s: %v", res.Kind, res.Err)
	}
	if res.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", res.Attempts)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 30*time.Second {
		t.Errorf("retry hint should win over backoff, got %v", rec.delays)
	}
}

func TestMalformedIdentifierIsPermanent(t *testing.T) {
	src := &scriptedSource{}
	f := NewFetcher(src, testPolicy(), testLogger)

	res := f.Fetch(context.Background(), types.WorkItem{ID: "not a url"})
	if res.Kind != types.FetchPermanent {
		t.Fatalf("expected permanent, got %s", res.Kind)
	}
	if !errors.Is(res.Err, types.ErrInvalidIdentifier) {
		t.Errorf("expected ErrInvalidIdentifier, got %v", res.Err)
	}
	if src.calls != 0 {
		t.Errorf("source should not be called, got %d calls", src.calls)
	}
}

func TestResolverTemplate(t *testing.T) {
	r := Resolver{Template: "https://api.example.com/v2/product/{id}/"}
	got, err := r.Resolve("12345")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://api.example.com/v2/product/12345/" {
		t.Errorf("unexpected target %q", got)
	}
	got, err = r.Resolve("https://x/a")
	if err != nil || got != "https://x/a" {
		t.Errorf("URL identifiers pass through, got %q, %v", got, err)
	}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{Attempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 12 * time.Second}
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 12 * time.Second},
		{4, 12 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.failures); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.failures, got, tt.want)
		}
	}
	fixed := FixedPolicy(3, 5*time.Second)
	if fixed.Delay(3) != 5*time.Second {
		t.Errorf("fixed policy should not grow, got %s", fixed.Delay(3))
	}
}

func TestThrottleSpacesSameHost(t *testing.T) {
	th := NewThrottle(time.Second, false)
	rec := &sleepRecorder{}
	th.sleep = rec.sleep

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx, "x.test"); err != nil {
			t.Fatal(err)
		}
	}
	if err := th.Wait(ctx, "y.test"); err != nil {
		t.Fatal(err)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("expected 2 waits for the repeated host, got %v", rec.delays)
	}
	for _, d := range rec.delays {
		if d <= 0 || d > time.Second {
			t.Errorf("unexpected wait %s", d)
		}
	}
}

func TestThrottleMeasuresFromRequestEnd(t *testing.T) {
	th := NewThrottle(time.Second, false)
	rec := &sleepRecorder{}
	th.sleep = rec.sleep
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return clock }

	ctx := context.Background()
	if err := th.Wait(ctx, "x.test"); err != nil {
		t.Fatal(err)
	}
	// A slow response: 5s pass before the request completes.
	clock = clock.Add(5 * time.Second)
	th.Done("x.test")
	clock = clock.Add(200 * time.Millisecond)

	if err := th.Wait(ctx, "x.test"); err != nil {
		t.Fatal(err)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 800*time.Millisecond {
		t.Errorf("expected an 800ms wait after the slow request, got %v", rec.delays)
	}

	var none *Throttle
	none.Done("x.test")
}

func TestHTTPSourceClassification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><h1>Hello</h1></body></html>"))
	})
	mux.HandleFunc("/br", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte(`{"id": 7}`))
		bw.Close()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/limited", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := NewHTTPSource(config.DefaultConfig(), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	ctx := context.Background()

	c, err := src.Fetch(ctx, "ok", srv.URL+"/ok")
	if err != nil {
		t.Fatalf("ok: %v", err)
	}
	if !bytes.Contains(c.Body, []byte("Hello")) {
		t.Errorf("unexpected body %q", c.Body)
	}

	c, err = src.Fetch(ctx, "br", srv.URL+"/br")
	if err != nil {
		t.Fatalf("br: %v", err)
	}
	if string(c.Body) != `{"id": 7}` || !c.IsJSON() {
		t.Errorf("brotli body not decoded: %q", c.Body)
	}

	tests := []struct {
		path       string
		retryable  bool
		status     int
		retryAfter time.Duration
	}{
		{"/missing", false, 404, 0},
		{"/down", true, 503, 0},
		{"/limited", true, 429, 7 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := src.Fetch(ctx, tt.path, srv.URL+tt.path)
			var fe *types.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if fe.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", fe.Retryable, tt.retryable)
			}
			if fe.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", fe.StatusCode, tt.status)
			}
			if fe.RetryAfter != tt.retryAfter {
				t.Errorf("retry after = %s, want %s", fe.RetryAfter, tt.retryAfter)
			}
		})
	}
}

func TestHTTPSourceCancelledIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	src, _ := NewHTTPSource(config.DefaultConfig(), testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Fetch(ctx, "x", srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if types.IsRetryable(err) {
		t.Error("caller cancellation must not be retryable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter(""); got != 5*time.Second {
		t.Errorf("default: %s", got)
	}
	if got := parseRetryAfter("600"); got != 120*time.Second {
		t.Errorf("cap: %s", got)
	}
	if got := parseRetryAfter("garbage"); got != 5*time.Second {
		t.Errorf("garbage: %s", got)
	}
}

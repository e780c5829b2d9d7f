package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"kwbot/internal/alert"
	logx "kwbot/pkg/logx"
)

func TestMetricsObserve(t *testing.T) {
	t.Parallel()

	m := NewMetrics(func() (int, int) { return 3, 16 }, func() int { return 42 })
	m.ObserveEvaluation(alert.Summary{Hits: 2, Dispatched: 1, Excluded: 1}, time.Millisecond)
	m.ObserveResult(alert.Result{Outcome: alert.OutcomeSent})
	m.ObserveResult(alert.Result{Outcome: alert.OutcomeSent})
	m.ObserveResult(alert.Result{Outcome: alert.OutcomeExcluded})
	m.ObserveCommand("kw.add", nil)
	m.ObserveMaintenance("compact", time.Second, errors.New("locked"))

	if got := testutil.ToFloat64(m.evaluations); got != 1 {
		t.Fatalf("evaluations = %v", got)
	}
	if got := testutil.ToFloat64(m.hits); got != 2 {
		t.Fatalf("hits = %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("sent")); got != 2 {
		t.Fatalf("sent = %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("dropped")); got != 0 {
		t.Fatalf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.maintenance.WithLabelValues("compact", "error")); got != 1 {
		t.Fatalf("maintenance errors = %v", got)
	}

	expected := `
# HELP kwbot_notifier_queue_depth Alerts waiting for a delivery worker.
# TYPE kwbot_notifier_queue_depth gauge
kwbot_notifier_queue_depth 3
# HELP kwbot_keywords_indexed Keyword registrations held in the in-memory index.
# TYPE kwbot_keywords_indexed gauge
kwbot_keywords_indexed 42
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"kwbot_notifier_queue_depth", "kwbot_keywords_indexed"); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerAuth(t *testing.T) {
	t.Parallel()

	s := NewServer(ServerConfig{}, NewMetrics(nil, nil), nil, logx.Nop())
	h := s.Handler("s3cret")

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "no token", target: "/healthz", want: http.StatusUnauthorized},
		{name: "bad bearer", target: "/healthz", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "bearer", target: "/healthz", header: "Bearer s3cret", want: http.StatusOK},
		{name: "query", target: "/metrics?token=s3cret", want: http.StatusOK},
		{name: "bad query", target: "/metrics?token=x", header: "Bearer s3cret", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	var healthErr error
	s := NewServer(ServerConfig{}, nil, func() error { return healthErr }, logx.Nop())
	h := s.Handler("")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthy: %d %q", rec.Code, rec.Body.String())
	}

	healthErr = errors.New("poller down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without collector = %d", rec.Code)
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	s := NewServer(ServerConfig{Enabled: true, Addr: "127.0.0.1:0"}, NewMetrics(nil, nil), nil, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(context.Background()) })

	var addr string
	for addr == "" {
		if ctx.Err() != nil {
			t.Fatal("server did not bind")
		}
		addr = s.Addr()
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "kwbot_evaluations_total") {
		t.Fatal("metrics output missing kwbot_evaluations_total")
	}

	s.Reconfigure(ctx, ServerConfig{})
	if s.Addr() != "" {
		t.Fatal("server still bound after disable")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.2:80":    false,
		"bogus":          false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestResyncEndpoint(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := NewServer(ServerConfig{}, nil, nil, logx.Nop())
	s.SetResync(func(context.Context) error {
		if calls.Add(1) > 1 {
			return errors.New("store closed")
		}
		return nil
	})
	ts := httptest.NewServer(s.Handler("secret"))
	defer ts.Close()
	addr := strings.TrimPrefix(ts.URL, "http://")
	ctx := context.Background()

	resp, err := http.Get(ts.URL + "/resync?token=secret")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed || calls.Load() != 0 {
		t.Fatalf("GET status=%d calls=%d", resp.StatusCode, calls.Load())
	}

	if err := RequestResync(ctx, ServerConfig{Enabled: true, Addr: addr}); err == nil {
		t.Fatal("expected unauthorized error without token")
	}
	if err := RequestResync(ctx, ServerConfig{Enabled: true, Addr: addr, Token: "secret"}); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d", calls.Load())
	}
	if err := RequestResync(ctx, ServerConfig{Enabled: true, Addr: addr, Token: "secret"}); err == nil || !strings.Contains(err.Error(), "store closed") {
		t.Fatalf("err=%v", err)
	}
	if err := RequestResync(ctx, ServerConfig{}); !errors.Is(err, ErrServerDisabled) {
		t.Fatalf("disabled err=%v", err)
	}
}

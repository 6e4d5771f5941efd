package observability

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Done.Add(3)
	m.Relevant.Add(2)
	m.ActiveWorkers.Add(1)

	srv := httptest.NewServer(m.Handler("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		"# TYPE gleaner_items_done_total counter",
		"gleaner_items_done_total 3",
		"gleaner_items_relevant_total 2",
		"# TYPE gleaner_active_workers gauge",
		"gleaner_active_workers 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", health.StatusCode)
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Skipped.Add(4)
	snap := m.Snapshot()
	if snap["skipped"] != 4 {
		t.Errorf("skipped = %d, want 4", snap["skipped"])
	}
	if snap["done"] != 0 {
		t.Errorf("done = %d, want 0", snap["done"])
	}
}

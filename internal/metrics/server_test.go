package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"voiceloop/internal/domain"
)

func startTestServer(t *testing.T, statusFn func() domain.Status) (*Server, string) {
	t.Helper()

	registry := prometheus.NewRegistry()
	m := New(registry)
	m.TurnsStarted.Inc()

	server := NewServer("127.0.0.1:0", statusFn, registry)
	if err := server.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server, "http://" + server.Addr()
}

func TestServerHealthEndpoint(t *testing.T) {
	t.Parallel()

	_, base := startTestServer(t, func() domain.Status { return domain.Status{} })

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("undecodable health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health payload: %v", body)
	}
}

func TestServerStatusEndpoint(t *testing.T) {
	t.Parallel()

	status := domain.Status{
		State:     domain.CaptureStateCapturing,
		SessionID: "sess-9",
		Active:    true,
	}
	_, base := startTestServer(t, func() domain.Status { return status })

	resp, err := http.Get(base + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	var got domain.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("undecodable status body: %v", err)
	}
	if got.State != domain.CaptureStateCapturing || got.SessionID != "sess-9" || !got.Active {
		t.Fatalf("unexpected status payload: %+v", got)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	_, base := startTestServer(t, func() domain.Status { return domain.Status{} })

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "voiceloop_turns_started_total 1") {
		t.Fatalf("expected turn counter in scrape output:\n%s", body)
	}
}

func TestServerStartRejectsBadAddress(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	server := NewServer("definitely-not-an-address", func() domain.Status { return domain.Status{} }, registry)
	if err := server.Start(); err == nil {
		t.Fatalf("expected bind error")
	}
}

func TestMetricsRegistriesAreIndependent(t *testing.T) {
	t.Parallel()

	first := New(prometheus.NewRegistry())
	second := New(prometheus.NewRegistry())

	first.TurnsStarted.Inc()
	first.TurnsStarted.Inc()
	second.TurnsStarted.Inc()

	if got := testutil.ToFloat64(first.TurnsStarted); got != 2 {
		t.Fatalf("first registry counter: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(second.TurnsStarted); got != 1 {
		t.Fatalf("second registry counter: got %v, want 1", got)
	}
}

package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EventRouted("message")
	m.EventRouted("message")
	m.EventRouted("invite")
	m.ActionFinished("send-reaction", OutcomeCompensated)
	m.GapDropped()
	m.Snapshot("save", nil)
	m.Snapshot("save", errors.New("disk full"))

	if got := testutil.ToFloat64(m.events.WithLabelValues("message")); got != 2 {
		t.Errorf("message events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.actions.WithLabelValues("send-reaction", OutcomeCompensated)); got != 1 {
		t.Errorf("compensated actions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.gaps); got != 1 {
		t.Errorf("gaps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.snapshots.WithLabelValues("save", "error")); got != 1 {
		t.Errorf("failed saves = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.EventRouted("message")
	m.ActionFinished("x", OutcomeCommitted)
	m.GapDropped()
	m.Reconnected()
	m.Snapshot("load", nil)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Reconnected()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "chatsync_stream_reconnects_total 1") {
		t.Fatalf("unexpected exposition:\n%s", body)
	}
}

func TestBusDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	var n uint64 = 3
	m.BusDrops(func() uint64 { return n })

	want := "# HELP chatsync_bus_dropped_total Bus events not delivered because a subscriber buffer was full.\n# TYPE chatsync_bus_dropped_total counter\nchatsync_bus_dropped_total 3\n"
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "chatsync_bus_dropped_total"); err != nil {
		t.Error(err)
	}

	var nilMetrics *Metrics
	nilMetrics.BusDrops(func() uint64 { return 0 })
}

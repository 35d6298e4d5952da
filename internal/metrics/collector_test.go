package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter_SameSeriesShared(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("x_total", "help", Labels("channel", "discord"))
	b := c.Counter("x_total", "help", Labels("channel", "discord"))
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Errorf("expected 3, got %d", a.Value())
	}
}

func TestLabels_Escapes(t *testing.T) {
	got := Labels("a", `x"y`, "b", "line\nbreak")
	want := `a="x\"y",b="line\nbreak"`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestHistogram_AddsInfBucket(t *testing.T) {
	c := NewMetricsCollector()
	h := c.Histogram("lat_seconds", "latency", "", []float64{1, 0.1})
	h.Observe(0.05)
	h.Observe(50)

	out := c.Render()
	for _, line := range []string{
		`lat_seconds_bucket{le="0.1"} 1`,
		`lat_seconds_bucket{le="1"} 1`,
		`lat_seconds_bucket{le="+Inf"} 2`,
		`lat_seconds_count 2`,
	} {
		if !strings.Contains(out, line) {
			t.Errorf("missing %q in:\n%s", line, out)
		}
	}
}

func TestGateway_RecordsSeries(t *testing.T) {
	c := NewMetricsCollector()
	g := NewGateway(c)
	g.WebhookReceived("facebook")
	g.WebhookRejected("facebook")
	g.EventsProcessed("facebook", 3)
	g.SendCompleted("discord", "success", 120*time.Millisecond)
	g.RateLimitWait(2 * time.Second)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	out := rec.Body.String()

	for _, line := range []string{
		`botgateway_webhooks_total{channel="facebook"} 1`,
		`botgateway_webhooks_rejected_total{channel="facebook"} 1`,
		`botgateway_events_total{channel="facebook"} 3`,
		`botgateway_sends_total{channel="discord",result="success"} 1`,
		`botgateway_send_latency_seconds_bucket{channel="discord",le="0.25"} 1`,
		`botgateway_ratelimit_waits_total 1`,
		"# TYPE botgateway_send_latency_seconds histogram",
	} {
		if !strings.Contains(out, line) {
			t.Errorf("missing %q", line)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %s", ct)
	}
}

func TestGateway_NilIsNoop(t *testing.T) {
	var g *Gateway
	g.WebhookReceived("x")
	g.SendCompleted("x", "error", time.Second)
	g.RateLimitWait(time.Second)
}

package metrics

import "time"

const (
	webhooksTotal      = "botgateway_webhooks_total"
	webhooksRejected   = "botgateway_webhooks_rejected_total"
	eventsTotal        = "botgateway_events_total"
	sendsTotal         = "botgateway_sends_total"
	rateLimitWaits     = "botgateway_ratelimit_waits_total"
	rateLimitWaitTime  = "botgateway_ratelimit_wait_seconds"
	sendLatencySeconds = "botgateway_send_latency_seconds"
)

var (
	sendLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	waitBuckets        = []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60}
)

// Gateway records gateway traffic on a collector. A nil *Gateway records
// nothing.
type Gateway struct {
	c *MetricsCollector
}

// NewGateway binds gateway metrics to c, or to the process-wide Collector
// when c is nil.
func NewGateway(c *MetricsCollector) *Gateway {
	if c == nil {
		c = Collector
	}
	return &Gateway{c: c}
}

func (g *Gateway) WebhookReceived(channel string) {
	if g == nil {
		return
	}
	g.c.Counter(webhooksTotal, "Webhook deliveries received", Labels("channel", channel)).Inc()
}

func (g *Gateway) WebhookRejected(channel string) {
	if g == nil {
		return
	}
	g.c.Counter(webhooksRejected, "Webhook deliveries that failed verification", Labels("channel", channel)).Inc()
}

func (g *Gateway) EventsProcessed(channel string, n int) {
	if g == nil || n == 0 {
		return
	}
	g.c.Counter(eventsTotal, "Normalized inbound events", Labels("channel", channel)).Add(int64(n))
}

// SendCompleted records one outbound send. result is success, rejected or
// error.
func (g *Gateway) SendCompleted(channel, result string, elapsed time.Duration) {
	if g == nil {
		return
	}
	g.c.Counter(sendsTotal, "Outbound sends by result", Labels("channel", channel, "result", result)).Inc()
	g.c.Histogram(sendLatencySeconds, "Outbound send latency in seconds", Labels("channel", channel), sendLatencyBuckets).
		Observe(elapsed.Seconds())
}

// RateLimitWait records a send held back by the rate limiter.
func (g *Gateway) RateLimitWait(d time.Duration) {
	if g == nil {
		return
	}
	g.c.Counter(rateLimitWaits, "Sends delayed by the rate limiter", "").Inc()
	g.c.Histogram(rateLimitWaitTime, "Rate limiter delay in seconds", "", waitBuckets).Observe(d.Seconds())
}

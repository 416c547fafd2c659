package relay

import (
	"sync"
	"time"
)

const latencySampleWindow = 1000

// ShopStats is a point-in-time view of a single shop's counters.
type ShopStats struct {
	Received     int64   `json:"received"`
	Forwarded    int64   `json:"forwarded"`
	Failed       int64   `json:"failed"`
	Retried      int64   `json:"retried"`
	Dead         int64   `json:"dead"`
	Duplicates   int64   `json:"duplicates"`
	RateLimited  int64   `json:"rate_limited"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type shopCounters struct {
	received    int64
	forwarded   int64
	failed      int64
	retried     int64
	dead        int64
	duplicates  int64
	rateLimited int64

	// rolling window of the most recent forward latencies
	latencies []time.Duration
}

func (c *shopCounters) observeLatency(d time.Duration) {
	if len(c.latencies) >= latencySampleWindow {
		c.latencies = c.latencies[1:]
	}
	c.latencies = append(c.latencies, d)
}

func (c *shopCounters) avgLatencyMs() float64 {
	if len(c.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range c.latencies {
		total += d
	}
	return float64(total.Milliseconds()) / float64(len(c.latencies))
}

func (c *shopCounters) snapshot() ShopStats {
	return ShopStats{
		Received:     c.received,
		Forwarded:    c.forwarded,
		Failed:       c.failed,
		Retried:      c.retried,
		Dead:         c.dead,
		Duplicates:   c.duplicates,
		RateLimited:  c.rateLimited,
		AvgLatencyMs: c.avgLatencyMs(),
	}
}

// Recorder tracks pipeline counters globally and per shop, and mirrors
// them to Prometheus.
type Recorder struct {
	mu     sync.Mutex
	global shopCounters
	shops  map[string]*shopCounters

	prom *promMetrics
}

func NewRecorder() *Recorder {
	return &Recorder{
		shops: make(map[string]*shopCounters),
		prom:  getPromMetrics(),
	}
}

func (r *Recorder) shop(domain string) *shopCounters {
	c, ok := r.shops[domain]
	if !ok {
		c = &shopCounters{}
		r.shops[domain] = c
	}
	return c
}

func (r *Recorder) RecordReceived(shop string) {
	r.mu.Lock()
	r.global.received++
	r.shop(shop).received++
	r.mu.Unlock()
	r.prom.receivedTotal.WithLabelValues(shop).Inc()
}

func (r *Recorder) RecordForwarded(shop string, latency time.Duration) {
	r.mu.Lock()
	r.global.forwarded++
	r.global.observeLatency(latency)
	c := r.shop(shop)
	c.forwarded++
	c.observeLatency(latency)
	r.mu.Unlock()
	r.prom.forwardedTotal.WithLabelValues(shop).Inc()
	r.prom.forwardLatency.WithLabelValues(shop, "success").Observe(latency.Seconds())
}

func (r *Recorder) RecordFailed(shop string, latency time.Duration) {
	r.mu.Lock()
	r.global.failed++
	r.shop(shop).failed++
	r.mu.Unlock()
	r.prom.failedTotal.WithLabelValues(shop).Inc()
	r.prom.forwardLatency.WithLabelValues(shop, "failure").Observe(latency.Seconds())
}

func (r *Recorder) RecordRetried(shop string) {
	r.mu.Lock()
	r.global.retried++
	r.shop(shop).retried++
	r.mu.Unlock()
	r.prom.retriedTotal.WithLabelValues(shop).Inc()
}

func (r *Recorder) RecordDead(shop string) {
	r.mu.Lock()
	r.global.dead++
	r.shop(shop).dead++
	r.mu.Unlock()
	r.prom.deadTotal.WithLabelValues(shop).Inc()
}

func (r *Recorder) RecordDuplicate(shop string) {
	r.mu.Lock()
	r.global.duplicates++
	r.shop(shop).duplicates++
	r.mu.Unlock()
	r.prom.duplicateTotal.WithLabelValues(shop).Inc()
}

func (r *Recorder) RecordRateLimited(shop string) {
	r.mu.Lock()
	r.global.rateLimited++
	r.shop(shop).rateLimited++
	r.mu.Unlock()
	r.prom.rateLimitedTotal.WithLabelValues(shop).Inc()
}

func (r *Recorder) ObserveQueueDepth(n int) {
	r.prom.queueDepth.Set(float64(n))
}

func (r *Recorder) ObserveDLQDepth(n int) {
	r.prom.dlqDepth.Set(float64(n))
}

func (r *Recorder) ObserveBreaker(state BreakerState) {
	if state == BreakerOpen {
		r.prom.breakerState.Set(1)
	} else {
		r.prom.breakerState.Set(0)
	}
}

// Global returns the aggregate counters across all shops.
func (r *Recorder) Global() ShopStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.global.snapshot()
}

// Shop returns the counters for a single shop. The second return value
// is false when the shop has never been seen.
func (r *Recorder) Shop(domain string) (ShopStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.shops[domain]
	if !ok {
		return ShopStats{}, false
	}
	return c.snapshot(), true
}

// Shops returns a snapshot of every shop's counters keyed by domain.
func (r *Recorder) Shops() map[string]ShopStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ShopStats, len(r.shops))
	for domain, c := range r.shops {
		out[domain] = c.snapshot()
	}
	return out
}

package relay

import (
	"context"
	"time"
)

// Monitor periodically reports pipeline health and warns on queue
// buildup, parked dead letters and an open circuit breaker.
type Monitor struct {
	queue    *Queue
	dlq      *DeadLetterQueue
	breaker  *CircuitBreaker
	recorder *Recorder
	opts     MonitorOptions
}

func NewMonitor(queue *Queue, dlq *DeadLetterQueue, breaker *CircuitBreaker, recorder *Recorder, opts MonitorOptions) *Monitor {
	opts.setDefaults()
	if opts.Logger == nil {
		opts.Logger = logrusNop()
	}
	return &Monitor{
		queue:    queue,
		dlq:      dlq,
		breaker:  breaker,
		recorder: recorder,
		opts:     opts,
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.observe()
		}
	}
}

func (m *Monitor) observe() {
	depth := m.queue.Len()
	dead := m.dlq.Len()
	state := m.breaker.State()
	stats := m.recorder.Global()

	m.recorder.ObserveQueueDepth(depth)
	m.recorder.ObserveDLQDepth(dead)
	m.recorder.ObserveBreaker(state)

	entry := m.opts.Logger.WithFields(map[string]any{
		"queue_depth":    depth,
		"dlq_depth":      dead,
		"breaker":        state.String(),
		"received":       stats.Received,
		"forwarded":      stats.Forwarded,
		"failed":         stats.Failed,
		"dead":           stats.Dead,
		"avg_latency_ms": stats.AvgLatencyMs,
	})

	entry.Info("relay: pipeline status")

	if depth > m.opts.QueueWarnThreshold {
		entry.Warn("relay: queue depth above threshold")
	}
	if dead > 0 {
		entry.Warn("relay: dead letter queue is not empty")
	}
	if state == BreakerOpen {
		entry.Warn("relay: circuit breaker is open")
	}
}

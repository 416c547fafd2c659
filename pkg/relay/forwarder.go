package relay

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Forwarder drains the queue in batches and dispatches events to the
// core service, retrying with exponential backoff and parking exhausted
// events in the dead letter queue.
type Forwarder struct {
	queue      *Queue
	breaker    *CircuitBreaker
	dlq        *DeadLetterQueue
	dispatcher Dispatcher
	recorder   *Recorder
	opts       ForwarderOptions
}

func NewForwarder(
	queue *Queue,
	breaker *CircuitBreaker,
	dlq *DeadLetterQueue,
	dispatcher Dispatcher,
	recorder *Recorder,
	opts ForwarderOptions,
) (*Forwarder, error) {
	if queue == nil {
		return nil, invalidConfig("queue is required")
	}
	if breaker == nil {
		return nil, invalidConfig("breaker is required")
	}
	if dlq == nil {
		return nil, invalidConfig("dlq is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	if recorder == nil {
		return nil, invalidConfig("recorder is required")
	}

	opts.setDefaults()

	f := &Forwarder{
		queue:      queue,
		breaker:    breaker,
		dlq:        dlq,
		dispatcher: dispatcher,
		recorder:   recorder,
		opts:       opts,
	}
	if f.opts.Logger == nil {
		f.opts.Logger = logrusNop()
	}
	return f, nil
}

// Run drains the queue until the context is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		processed, err := f.processOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			f.opts.Logger.WithError(err).Warn("relay: process tick failed")
			if sleepErr := sleepCtx(ctx, f.opts.ErrorSleep); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if processed == 0 {
			if sleepErr := sleepCtx(ctx, f.opts.IdleSleep); sleepErr != nil {
				return sleepErr
			}
		}
	}
}

// processOnce claims one batch and dispatches it, events in parallel.
// It returns the number of events it attempted.
func (f *Forwarder) processOnce(ctx context.Context) (int, error) {
	if f.breaker.State() == BreakerOpen {
		f.recorder.ObserveBreaker(BreakerOpen)
		if err := sleepCtx(ctx, f.opts.ErrorSleep); err != nil {
			return 0, err
		}
		return 0, nil
	}

	batch := f.opts.BatchSize
	if f.breaker.State() == BreakerHalfOpen {
		// A single trial decides whether the destination recovered.
		batch = 1
	}

	claimed := f.queue.Claim(time.Now(), batch)
	if len(claimed) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, ev := range claimed {
		wg.Add(1)
		go func(ev QueuedEvent) {
			defer wg.Done()
			f.dispatchOne(ctx, ev)
		}(ev)
	}
	wg.Wait()

	f.recorder.ObserveQueueDepth(f.queue.Len())
	f.recorder.ObserveDLQDepth(f.dlq.Len())
	f.recorder.ObserveBreaker(f.breaker.State())

	return len(claimed), nil
}

func (f *Forwarder) dispatchOne(ctx context.Context, ev QueuedEvent) {
	if !f.breaker.Allow() {
		// Claimed before the breaker tripped. Put it back untouched.
		f.queue.Requeue(ev, time.Now().Add(f.opts.ErrorSleep))
		return
	}

	ev.Attempts++

	dispatchCtx := ctx
	var cancel func()
	if f.opts.DispatchTimeout > 0 {
		dispatchCtx, cancel = context.WithTimeout(ctx, f.opts.DispatchTimeout)
	}

	start := time.Now()
	err := f.dispatcher.Dispatch(dispatchCtx, ev)
	if cancel != nil {
		cancel()
	}
	latency := time.Since(start)

	if err == nil {
		f.breaker.RecordSuccess()
		f.recorder.RecordForwarded(ev.ShopDomain, latency)
		return
	}

	f.breaker.RecordFailure()
	f.recorder.RecordFailed(ev.ShopDomain, latency)
	ev.LastError = truncateError(err, f.opts.LastErrorMaxLen)

	fields := map[string]any{
		"event_id":   ev.ID,
		"event_type": ev.EventType,
		"shop":       ev.ShopDomain,
		"attempts":   ev.Attempts,
	}

	if ev.Attempts >= f.opts.MaxRetries {
		f.recorder.RecordDead(ev.ShopDomain)
		f.dlq.Add(ev, ev.LastError)
		f.opts.Logger.WithError(err).WithFields(fields).Error("relay: event exhausted retries, moved to DLQ")
		return
	}

	f.recorder.RecordRetried(ev.ShopDomain)
	next := time.Now().Add(backoff(ev.Attempts, f.opts.BaseDelay, f.opts.MaxBackoff) + jitter(f.opts.Rand, f.opts.JitterMax))
	f.queue.Requeue(ev, next)
	f.opts.Logger.WithError(err).WithFields(fields).Warn("relay: dispatch failed, requeued")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

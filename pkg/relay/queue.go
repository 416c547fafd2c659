package relay

import (
	"sync"
	"time"
)

type queueItem struct {
	event       QueuedEvent
	availableAt time.Time
}

// Queue is a bounded in-memory event queue. Requeued events carry an
// availability time so retries respect their backoff delay.
type Queue struct {
	mu      sync.Mutex
	items   []queueItem
	maxSize int
}

func NewQueue(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Queue{maxSize: maxSize}
}

// Enqueue appends a new event. It returns ErrQueueFull when the queue is
// at capacity so callers can shed load instead of growing unbounded.
func (q *Queue) Enqueue(ev QueuedEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.maxSize {
		return ErrQueueFull
	}
	q.items = append(q.items, queueItem{event: ev, availableAt: time.Now()})
	return nil
}

// Requeue puts a failed event back with a future availability time.
// Retries go to the front so that once their backoff elapses they are
// serviced before later arrivals. Requeue never rejects: dropping an
// admitted event would lose data.
func (q *Queue) Requeue(ev QueuedEvent, availableAt time.Time) {
	q.mu.Lock()
	q.items = append([]queueItem{{event: ev, availableAt: availableAt}}, q.items...)
	q.mu.Unlock()
}

// Claim removes and returns up to batch events whose availability time
// has passed, preserving enqueue order.
func (q *Queue) Claim(now time.Time, batch int) []QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if batch <= 0 || len(q.items) == 0 {
		return nil
	}

	var claimed []QueuedEvent
	remaining := q.items[:0]
	for _, it := range q.items {
		if len(claimed) < batch && !now.Before(it.availableAt) {
			claimed = append(claimed, it.event)
			continue
		}
		remaining = append(remaining, it)
	}
	q.items = remaining
	return claimed
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

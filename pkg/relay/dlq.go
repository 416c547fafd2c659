package relay

import (
	"sync"
	"time"
)

// DeadEvent is an event that exhausted its retry budget.
type DeadEvent struct {
	Event     QueuedEvent
	LastError string
	DeadAt    time.Time
}

// DeadLetterQueue collects exhausted events for inspection and manual
// replay.
type DeadLetterQueue struct {
	mu    sync.Mutex
	items []DeadEvent
}

func NewDeadLetterQueue() *DeadLetterQueue {
	return &DeadLetterQueue{}
}

func (d *DeadLetterQueue) Add(ev QueuedEvent, lastError string) {
	d.mu.Lock()
	d.items = append(d.items, DeadEvent{
		Event:     ev,
		LastError: lastError,
		DeadAt:    time.Now(),
	})
	d.mu.Unlock()
}

func (d *DeadLetterQueue) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Items returns a snapshot copy of the dead events.
func (d *DeadLetterQueue) Items() []DeadEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadEvent, len(d.items))
	copy(out, d.items)
	return out
}

// Take removes and returns the dead event with the given ID. It returns
// ErrNotFound when no such event is parked.
func (d *DeadLetterQueue) Take(id string) (DeadEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, it := range d.items {
		if it.Event.ID == id {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return it, nil
		}
	}
	return DeadEvent{}, ErrNotFound
}

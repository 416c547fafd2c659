package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueuedEvent is a webhook delivery admitted into the pipeline and
// awaiting forwarding to the core service.
type QueuedEvent struct {
	ID         string
	EventType  string
	StoreID    string
	ShopDomain string
	OccurredAt time.Time
	Payload    json.RawMessage
	Attempts   int
	EnqueuedAt time.Time
	LastError  string
}

// NewEventID builds a unique, human-scannable event identifier.
func NewEventID(eventType, storeID string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%d-%s", eventType, storeID, now.UnixMilli(), uuid.NewString()[:8])
}

// Dispatcher delivers a single event to its destination. Implementations
// must be safe for concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev QueuedEvent) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, ev QueuedEvent) error

func (f DispatcherFunc) Dispatch(ctx context.Context, ev QueuedEvent) error {
	return f(ctx, ev)
}

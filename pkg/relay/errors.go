package relay

import "github.com/pkg/errors"

var (
	ErrQueueFull   = errors.New("relay: event queue is full")
	ErrBreakerOpen = errors.New("relay: circuit breaker is open")
	ErrNotFound    = errors.New("relay: event not found")
)

func invalidConfig(msg string) error {
	return errors.New("relay: invalid configuration: " + msg)
}

package bus

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned while the breaker is rejecting publishes. The
// dispatcher marks the affected rows FAILED with a backoff instead of
// hammering a broker that is already down.
var ErrBreakerOpen = errors.New("bus: circuit breaker open")

// Breaker wraps a Client with a circuit breaker. Five consecutive publish
// failures open the circuit for thirty seconds.
type Breaker struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps inner.
func WithBreaker(inner Client) *Breaker {
	return &Breaker{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "event-bus",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (b *Breaker) Publish(ctx context.Context, topic, key string, payload []byte) (PublishResult, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.inner.Publish(ctx, topic, key, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return PublishResult{}, ErrBreakerOpen
		}
		return PublishResult{}, err
	}
	return res.(PublishResult), nil
}

func (b *Breaker) Close() error { return b.inner.Close() }

package channel

import (
	"context"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/pkg/circuitbreaker"
)

type breakerChannel struct {
	next Channel
	cb   *circuitbreaker.CircuitBreaker
}

// WithBreaker fails fast while the provider behind next keeps failing.
func WithBreaker(next Channel, cb *circuitbreaker.CircuitBreaker) Channel {
	return &breakerChannel{next: next, cb: cb}
}

func (b *breakerChannel) Kind() model.NotificationType {
	return b.next.Kind()
}

func (b *breakerChannel) Send(ctx context.Context, to, subject, body string) error {
	return b.cb.Execute(func() error {
		return b.next.Send(ctx, to, subject, body)
	})
}

// Package channel holds the delivery channels a notification can go out
// through. A channel reports success with a nil error; a non-nil error is
// the delivery failure reason that gets recorded on the notification.
package channel

import (
	"context"
	"fmt"

	"github.com/jwalitptl/notification-service/internal/model"
)

type Channel interface {
	Send(ctx context.Context, to, subject, body string) error
	Kind() model.NotificationType
}

// Registry maps a notification type to the channel that delivers it.
type Registry map[model.NotificationType]Channel

func NewRegistry(channels ...Channel) Registry {
	r := make(Registry, len(channels))
	for _, ch := range channels {
		r[ch.Kind()] = ch
	}
	return r
}

func (r Registry) Get(t model.NotificationType) (Channel, error) {
	ch, ok := r[t]
	if !ok {
		return nil, fmt.Errorf("unsupported notification type: %s", t)
	}
	return ch, nil
}

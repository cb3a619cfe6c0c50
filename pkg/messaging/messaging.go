package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jwalitptl/notification-service/internal/model"
)

// ErrDecode marks a message body that is not a valid event envelope.
// Such messages are rejected without requeue.
var ErrDecode = errors.New("malformed event message")

// Handler processes one decoded event. A non-nil error rejects the message.
type Handler interface {
	Handle(ctx context.Context, evt model.Event) error
}

type HandlerFunc func(ctx context.Context, evt model.Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt model.Event) error {
	return f(ctx, evt)
}

// Consumer streams events from a broker into a Handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context) error
	Close() error
}

type envelope struct {
	EventType model.EventType `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// DecodeEvent parses {"event_type": ..., "data": {...}}. Numbers in data are
// kept as json.Number. An absent or null data decodes to an empty map.
func DecodeEvent(body []byte) (model.Event, error) {
	var env envelope
	if err := decode(body, &env); err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	evt := model.Event{Type: env.EventType, Data: map[string]interface{}{}}
	raw := bytes.TrimSpace(env.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return evt, nil
	}
	if raw[0] != '{' {
		return model.Event{}, fmt.Errorf("%w: data must be an object", ErrDecode)
	}
	if err := decode(raw, &evt.Data); err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return evt, nil
}

func decode(b []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after top-level value")
	}
	return nil
}

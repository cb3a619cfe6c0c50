package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-service/internal/model"
)

func TestDecodeEvent(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"event_type":"order.confirmed","data":{"order_id":42,"order_total":100.5,"customer_name":"Jo"}}`))
	require.NoError(t, err)
	assert.Equal(t, model.EventOrderConfirmed, evt.Type)
	assert.Equal(t, json.Number("42"), evt.Data["order_id"])
	assert.Equal(t, json.Number("100.5"), evt.Data["order_total"])
	assert.Equal(t, "Jo", evt.Data["customer_name"])
}

func TestDecodeEventDefaultsData(t *testing.T) {
	for _, body := range []string{
		`{"event_type":"order.delivered"}`,
		`{"event_type":"order.delivered","data":null}`,
	} {
		evt, err := DecodeEvent([]byte(body))
		require.NoError(t, err, body)
		assert.NotNil(t, evt.Data)
		assert.Empty(t, evt.Data)
	}
}

func TestDecodeEventErrors(t *testing.T) {
	tests := map[string]string{
		"not json":        `{not json`,
		"array body":      `[1,2,3]`,
		"data is array":   `{"event_type":"order.confirmed","data":[1]}`,
		"data is string":  `{"event_type":"order.confirmed","data":"x"}`,
		"type not string": `{"event_type":5,"data":{}}`,
		"empty":           ``,
		"trailing text":   `{"event_type":"order.cancelled","data":{"order_id":1}} not json`,
		"two objects":     `{"event_type":"order.cancelled","data":{}}{"event_type":"x"}`,
		"trailing data":   `{"event_type":"order.cancelled","data":{"order_id":1} x}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(body))
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestDecodeEventAllowsTrailingWhitespace(t *testing.T) {
	evt, err := DecodeEvent([]byte("{\"event_type\":\"order.cancelled\",\"data\":{\"order_id\":1}}\n  "))
	require.NoError(t, err)
	assert.Equal(t, model.EventOrderCancelled, evt.Type)
}

func TestHandlerFunc(t *testing.T) {
	var got model.EventType
	h := HandlerFunc(func(_ context.Context, evt model.Event) error {
		got = evt.Type
		return nil
	})
	require.NoError(t, h.Handle(context.Background(), model.Event{Type: model.EventPaymentFailed}))
	assert.Equal(t, model.EventPaymentFailed, got)
}

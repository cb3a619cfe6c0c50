// Package formatter renders the subject and body for each event type.
// It has no side effects.
package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"text/template"

	"github.com/jwalitptl/notification-service/internal/model"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrUnknownEvent = errors.New("no template for event type")
)

// MissingFieldError names the payload field that was absent or null.
type MissingFieldError struct {
	EventType model.EventType
	Field     string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s: %q", e.EventType, ErrMissingField, e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

// Content is the rendered output for one event.
type Content struct {
	Subject string
	Body    string
	// SMS is the short text for events that also go out by SMS.
	SMS string
}

type layout struct {
	subject  *template.Template
	body     *template.Template
	sms      *template.Template
	required []string
	defaults map[string]string
}

var layouts = map[model.EventType]*layout{
	model.EventOrderConfirmed: {
		subject:  mustParse("order.confirmed.subject", orderConfirmedSubject),
		body:     mustParse("order.confirmed.body", orderConfirmedBody),
		required: []string{"order_id", "customer_name", "order_total", "item_count"},
		defaults: map[string]string{"tracking_url": "N/A"},
	},
	model.EventOrderCancelled: {
		subject:  mustParse("order.cancelled.subject", orderCancelledSubject),
		body:     mustParse("order.cancelled.body", orderCancelledBody),
		required: []string{"order_id", "customer_name"},
		defaults: map[string]string{"reason": "Customer request"},
	},
	model.EventOrderDelivered: {
		subject:  mustParse("order.delivered.subject", orderDeliveredSubject),
		body:     mustParse("order.delivered.body", orderDeliveredBody),
		defaults: map[string]string{"order_id": "N/A", "delivered_at": "Today"},
	},
	model.EventPaymentSucceeded: {
		subject:  mustParse("payment.succeeded.subject", paymentSucceededSubject),
		body:     mustParse("payment.succeeded.body", paymentSucceededBody),
		required: []string{"payment_id", "order_id", "amount", "method", "reference"},
	},
	model.EventPaymentFailed: {
		subject:  mustParse("payment.failed.subject", paymentFailedSubject),
		body:     mustParse("payment.failed.body", paymentFailedBody),
		defaults: map[string]string{"order_id": "N/A", "amount": "N/A", "reason": "Unknown error"},
	},
	model.EventPaymentRefunded: {
		subject:  mustParse("payment.refunded.subject", paymentRefundedSubject),
		body:     mustParse("payment.refunded.body", paymentRefundedBody),
		defaults: map[string]string{"order_id": "N/A", "refund_amount": "N/A", "reason": "Order cancellation"},
	},
	model.EventShipmentShipped: {
		subject:  mustParse("shipment.shipped.subject", shipmentShippedSubject),
		body:     mustParse("shipment.shipped.body", shipmentShippedBody),
		sms:      mustParse("shipment.shipped.sms", shipmentShippedSMS),
		required: []string{"order_id", "carrier", "tracking_no"},
		defaults: map[string]string{"expected_delivery": "2-3 business days", "tracking_url": "N/A"},
	},
}

func init() {
	layouts[model.EventShipmentDelivered] = layouts[model.EventOrderDelivered]
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Parse(text))
}

// Format renders the content for eventType from payload.
func Format(eventType model.EventType, payload map[string]interface{}) (Content, error) {
	s, ok := layouts[eventType]
	if !ok {
		return Content{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
	}

	for _, field := range s.required {
		if v, ok := payload[field]; !ok || v == nil {
			return Content{}, &MissingFieldError{EventType: eventType, Field: field}
		}
	}

	values := make(map[string]string, len(payload)+len(s.defaults))
	for k, v := range payload {
		if v != nil {
			values[k] = Stringify(v)
		}
	}
	for k, def := range s.defaults {
		if _, ok := values[k]; !ok {
			values[k] = def
		}
	}

	var (
		out Content
		err error
	)
	if out.Subject, err = render(s.subject, values); err != nil {
		return Content{}, err
	}
	if out.Body, err = render(s.body, values); err != nil {
		return Content{}, err
	}
	if s.sms != nil {
		if out.SMS, err = render(s.sms, values); err != nil {
			return Content{}, err
		}
	}
	return out, nil
}

func render(t *template.Template, values map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, values); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// Stringify renders a decoded JSON value the way it appeared on the wire.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

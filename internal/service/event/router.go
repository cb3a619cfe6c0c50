package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/service/formatter"
	"github.com/jwalitptl/notification-service/internal/service/notification"
	"github.com/jwalitptl/notification-service/pkg/dedup"
	"github.com/jwalitptl/notification-service/pkg/logger"
	"github.com/jwalitptl/notification-service/pkg/metrics"
)

var ErrInvalidPayload = errors.New("invalid event payload")

type handlerFunc func(ctx context.Context, evt model.Event) error

// Router turns decoded bus events into notifications.
type Router struct {
	notifications notification.Service
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

func NewRouter(svc notification.Service, log *logger.Logger, m *metrics.Metrics) *Router {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Router{
		notifications: svc,
		logger:        log.WithFields(map[string]interface{}{"component": "router"}),
		metrics:       m,
	}
}

// Handle routes evt to its handler. Unknown event types are logged and
// dropped without error.
func (r *Router) Handle(ctx context.Context, evt model.Event) error {
	h, ok := r.handlerFor(evt.Type)
	if !ok {
		r.metrics.RoutingMisses.WithLabelValues(string(evt.Type)).Inc()
		r.logger.Warn("Unhandled event type", "event_type", string(evt.Type))
		return nil
	}
	if evt.Data == nil {
		evt.Data = map[string]interface{}{}
	}

	err := h(ctx, evt)
	if errors.Is(err, notification.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", evt.Type, err)
	}
	return nil
}

func (r *Router) handlerFor(t model.EventType) (handlerFunc, bool) {
	switch t {
	case model.EventOrderConfirmed, model.EventOrderCancelled,
		model.EventPaymentSucceeded, model.EventPaymentFailed, model.EventPaymentRefunded:
		return r.handleEmail, true
	case model.EventOrderDelivered, model.EventShipmentDelivered:
		return r.handleDelivered, true
	case model.EventShipmentShipped:
		return r.handleShipmentShipped, true
	}
	return nil, false
}

func (r *Router) handleEmail(ctx context.Context, evt model.Event) error {
	req, _, err := r.buildRequest(evt, evt.Type)
	if err != nil {
		return err
	}
	_, err = r.notifications.Dispatch(ctx, req)
	return err
}

// shipment.delivered is recorded as order.delivered.
func (r *Router) handleDelivered(ctx context.Context, evt model.Event) error {
	req, _, err := r.buildRequest(evt, model.EventOrderDelivered)
	if err != nil {
		return err
	}
	_, err = r.notifications.Dispatch(ctx, req)
	return err
}

func (r *Router) handleShipmentShipped(ctx context.Context, evt model.Event) error {
	req, content, err := r.buildRequest(evt, evt.Type)
	if err != nil {
		return err
	}
	_, err = r.notifications.DispatchMulti(ctx, req,
		notification.Delivery{Channel: model.NotificationTypeEmail, Body: content.Body},
		notification.Delivery{Channel: model.NotificationTypeSMS, Body: content.SMS},
	)
	return err
}

// RetryPlan rebuilds the deliveries the router dispatched a record with, so
// a retry reaches the same channels. shipment.shipped records get their SMS
// text re-rendered from the stored payload.
func RetryPlan(n *model.Notification) ([]notification.Delivery, error) {
	primary := notification.Delivery{Channel: n.NotificationType, Body: n.Message}
	if n.EventType != model.EventShipmentShipped {
		return []notification.Delivery{primary}, nil
	}

	content, err := formatter.Format(n.EventType, map[string]interface{}(n.Metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild SMS content: %w", err)
	}
	return []notification.Delivery{
		{Channel: model.NotificationTypeEmail, Body: n.Message},
		{Channel: model.NotificationTypeSMS, Body: content.SMS},
	}, nil
}

func (r *Router) buildRequest(evt model.Event, recorded model.EventType) (notification.DispatchRequest, formatter.Content, error) {
	content, err := formatter.Format(evt.Type, evt.Data)
	if err != nil {
		return notification.DispatchRequest{}, content, err
	}

	req := notification.DispatchRequest{
		RecipientName:  stringField(evt.Data, "customer_name"),
		RecipientEmail: optionalString(evt.Data, "customer_email"),
		Type:           model.NotificationTypeEmail,
		EventType:      recorded,
		Subject:        content.Subject,
		Message:        content.Body,
		Metadata:       model.JSONMap(evt.Data),
	}
	if recorded == model.EventOrderDelivered || recorded == model.EventShipmentShipped {
		req.RecipientPhone = optionalString(evt.Data, "customer_phone")
	}

	if req.OrderID, err = idField(evt.Data, "order_id"); err != nil {
		return req, content, err
	}
	if strings.HasPrefix(string(evt.Type), "payment.") {
		if req.PaymentID, err = idField(evt.Data, "payment_id"); err != nil {
			return req, content, err
		}
	}
	if evt.Type == model.EventShipmentShipped {
		if req.ShipmentID, err = idField(evt.Data, "shipment_id"); err != nil {
			return req, content, err
		}
	}

	if req.DedupKey, err = dedup.Key(string(evt.Type), correlation(req), evt.Data); err != nil {
		return req, content, err
	}
	return req, content, nil
}

func correlation(req notification.DispatchRequest) string {
	parts := make([]string, 0, 3)
	for _, id := range []*int64{req.OrderID, req.PaymentID, req.ShipmentID} {
		if id == nil {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, strconv.FormatInt(*id, 10))
	}
	return strings.Join(parts, "/")
}

func stringField(data map[string]interface{}, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	return formatter.Stringify(v)
}

func optionalString(data map[string]interface{}, key string) *string {
	s := stringField(data, key)
	if s == "" {
		return nil
	}
	return &s
}

// idField reads an integer correlation id. Absent or null yields nil.
func idField(data map[string]interface{}, key string) (*int64, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, nil
	}

	var (
		id  int64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		id, err = t.Int64()
	case float64:
		id = int64(t)
		if float64(id) != t {
			err = fmt.Errorf("not an integer")
		}
	case int:
		id = int64(t)
	case int64:
		id = t
	case string:
		id, err = strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	default:
		err = fmt.Errorf("unexpected type %T", v)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
	}
	return &id, nil
}

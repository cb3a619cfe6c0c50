package model

// EventType is a routing key on the bus. The set is closed.
type EventType string

const (
	EventOrderConfirmed    EventType = "order.confirmed"
	EventOrderCancelled    EventType = "order.cancelled"
	EventOrderDelivered    EventType = "order.delivered"
	EventPaymentSucceeded  EventType = "payment.succeeded"
	EventPaymentFailed     EventType = "payment.failed"
	EventPaymentRefunded   EventType = "payment.refunded"
	EventShipmentShipped   EventType = "shipment.shipped"
	EventShipmentDelivered EventType = "shipment.delivered"
)

// EventTypes returns the catalog in binding order.
func EventTypes() []EventType {
	return []EventType{
		EventOrderConfirmed,
		EventOrderCancelled,
		EventOrderDelivered,
		EventPaymentSucceeded,
		EventPaymentFailed,
		EventPaymentRefunded,
		EventShipmentShipped,
		EventShipmentDelivered,
	}
}

func (t EventType) Valid() bool {
	for _, et := range EventTypes() {
		if et == t {
			return true
		}
	}
	return false
}

// Event is a decoded message from the bus.
type Event struct {
	Type EventType              `json:"event_type"`
	Data map[string]interface{} `json:"data"`
}

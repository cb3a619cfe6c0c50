package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "PENDING"
	NotificationStatusSent      NotificationStatus = "SENT"
	NotificationStatusFailed    NotificationStatus = "FAILED"
	NotificationStatusDelivered NotificationStatus = "DELIVERED"
)

func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationStatusPending, NotificationStatusSent, NotificationStatusFailed, NotificationStatusDelivered:
		return true
	}
	return false
}

type NotificationType string

const (
	NotificationTypeEmail NotificationType = "EMAIL"
	NotificationTypeSMS   NotificationType = "SMS"
	NotificationTypePush  NotificationType = "PUSH"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeEmail, NotificationTypeSMS, NotificationTypePush:
		return true
	}
	return false
}

const (
	DefaultMaxRetries    = 3
	DefaultRecipientName = "Customer"
	MaxSubjectLength     = 500
)

// Notification is one attempted delivery (or several, for multi-channel
// events) and its outcome.
type Notification struct {
	NotificationID uuid.UUID `json:"notification_id" db:"notification_id"`

	RecipientName  string  `json:"recipient_name" db:"recipient_name"`
	RecipientEmail *string `json:"recipient_email,omitempty" db:"recipient_email"`
	RecipientPhone *string `json:"recipient_phone,omitempty" db:"recipient_phone"`

	NotificationType NotificationType `json:"notification_type" db:"notification_type"`
	EventType        EventType        `json:"event_type" db:"event_type"`

	Subject string `json:"subject" db:"subject"`
	Message string `json:"message" db:"message"`

	OrderID    *int64 `json:"order_id,omitempty" db:"order_id"`
	PaymentID  *int64 `json:"payment_id,omitempty" db:"payment_id"`
	ShipmentID *int64 `json:"shipment_id,omitempty" db:"shipment_id"`

	Metadata JSONMap `json:"metadata" db:"metadata"`
	DedupKey *string `json:"dedup_key,omitempty" db:"dedup_key"`

	Status       NotificationStatus `json:"status" db:"status"`
	ErrorMessage *string            `json:"error_message,omitempty" db:"error_message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`

	RetryCount int `json:"retry_count" db:"retry_count"`
	MaxRetries int `json:"max_retries" db:"max_retries"`
}

// CanRetry reports whether a retry may be attempted.
func (n *Notification) CanRetry() bool {
	return n.Status == NotificationStatusFailed && n.RetryCount < n.MaxRetries
}

// Destination returns the recipient field matching t, or "" when absent.
func (n *Notification) Destination(t NotificationType) string {
	switch t {
	case NotificationTypeEmail:
		if n.RecipientEmail != nil {
			return *n.RecipientEmail
		}
	case NotificationTypeSMS:
		if n.RecipientPhone != nil {
			return *n.RecipientPhone
		}
	}
	return ""
}

func (n *Notification) MarkSent(at time.Time) {
	n.Status = NotificationStatusSent
	n.SentAt = &at
	n.ErrorMessage = nil
}

func (n *Notification) MarkFailed(reason string) {
	n.Status = NotificationStatusFailed
	n.ErrorMessage = &reason
}

// Clone returns a deep copy; stores hand out copies so callers cannot
// mutate stored state.
func (n *Notification) Clone() *Notification {
	c := *n
	c.RecipientEmail = clonePtr(n.RecipientEmail)
	c.RecipientPhone = clonePtr(n.RecipientPhone)
	c.OrderID = clonePtr(n.OrderID)
	c.PaymentID = clonePtr(n.PaymentID)
	c.ShipmentID = clonePtr(n.ShipmentID)
	c.DedupKey = clonePtr(n.DedupKey)
	c.ErrorMessage = clonePtr(n.ErrorMessage)
	c.SentAt = clonePtr(n.SentAt)
	c.DeliveredAt = clonePtr(n.DeliveredAt)
	if n.Metadata != nil {
		c.Metadata = make(JSONMap, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// NotificationFilter narrows List and Count. Zero values match everything.
type NotificationFilter struct {
	Type          NotificationType   `form:"type"`
	EventType     EventType          `form:"event"`
	Status        NotificationStatus `form:"status"`
	OrderID       *int64             `form:"order_id"`
	RetryableOnly bool               `form:"-"`
}

// Matches applies the filter in memory.
func (f NotificationFilter) Matches(n *Notification) bool {
	if f.Type != "" && n.NotificationType != f.Type {
		return false
	}
	if f.EventType != "" && n.EventType != f.EventType {
		return false
	}
	if f.Status != "" && n.Status != f.Status {
		return false
	}
	if f.OrderID != nil && (n.OrderID == nil || *n.OrderID != *f.OrderID) {
		return false
	}
	if f.RetryableOnly && !n.CanRetry() {
		return false
	}
	return true
}

type NotificationStats struct {
	Total   int64            `json:"total"`
	Sent    int64            `json:"sent"`
	Failed  int64            `json:"failed"`
	Pending int64            `json:"pending"`
	ByType  map[string]int64 `json:"by_type"`
	ByEvent map[string]int64 `json:"by_event"`
}

package mongo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/repository"
)

func TestDocRoundTrip(t *testing.T) {
	email := "a@b.com"
	order := int64(42)
	sent := time.Now().UTC()
	n := &model.Notification{
		NotificationID:   uuid.New(),
		RecipientName:    "Jo",
		RecipientEmail:   &email,
		NotificationType: model.NotificationTypeEmail,
		EventType:        model.EventOrderConfirmed,
		OrderID:          &order,
		Metadata:         model.JSONMap{"order_id": json.Number("42"), "order_total": json.Number("99.5")},
		Status:           model.NotificationStatusSent,
		SentAt:           &sent,
		MaxRetries:       3,
	}

	doc := toDoc(n)
	assert.Equal(t, n.NotificationID.String(), doc.NotificationID)
	assert.Equal(t, int64(42), doc.Metadata["order_id"])
	assert.Equal(t, 99.5, doc.Metadata["order_total"])

	back, err := fromDoc(doc)
	require.NoError(t, err)
	assert.Equal(t, n.NotificationID, back.NotificationID)
	assert.Equal(t, model.NotificationStatusSent, back.Status)
	assert.Equal(t, int64(42), back.Metadata["order_id"])
}

func TestFromDocRejectsBadID(t *testing.T) {
	_, err := fromDoc(&notificationDoc{NotificationID: "nope"})
	assert.Error(t, err)
}

func TestFromBSONFlattensNestedDocuments(t *testing.T) {
	v := fromBSON(bson.M{"items": bson.A{bson.D{{Key: "sku", Value: "X1"}}}})
	m := v.(map[string]interface{})
	items := m["items"].([]interface{})
	assert.Equal(t, map[string]interface{}{"sku": "X1"}, items[0])
}

func TestBuildFilter(t *testing.T) {
	order := int64(7)
	f := buildFilter(model.NotificationFilter{Type: model.NotificationTypeSMS, OrderID: &order})
	assert.Equal(t, bson.M{"notification_type": "SMS", "order_id": int64(7)}, f)

	f = buildFilter(model.NotificationFilter{RetryableOnly: true})
	assert.Equal(t, "FAILED", f["status"])
	assert.Contains(t, f, "$expr")
}

func TestGuardFilter(t *testing.T) {
	id := uuid.New()

	f := guardFilter(id, repository.Precondition{Status: model.NotificationStatusFailed})
	assert.Equal(t, bson.M{"notification_id": id.String(), "status": "FAILED"}, f)

	prev := 2
	f = guardFilter(id, repository.Precondition{Status: model.NotificationStatusFailed, RetryCount: &prev})
	assert.Equal(t, bson.M{"notification_id": id.String(), "status": "FAILED", "retry_count": 2}, f)
}

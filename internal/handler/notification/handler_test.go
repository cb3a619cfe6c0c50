package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/repository/memory"
	notificationService "github.com/jwalitptl/notification-service/internal/service/notification"
	"github.com/jwalitptl/notification-service/pkg/channel"
	"github.com/jwalitptl/notification-service/pkg/logger"
)

type stubChannel struct {
	kind model.NotificationType
	err  error
}

func (c *stubChannel) Kind() model.NotificationType { return c.kind }

func (c *stubChannel) Send(context.Context, string, string, string) error { return c.err }

type envelope struct {
	Status  string          `json:"status"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	router *gin.Engine
	email  *stubChannel
	sms    *stubChannel
	svc    notificationService.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	a := &testAPI{
		email: &stubChannel{kind: model.NotificationTypeEmail},
		sms:   &stubChannel{kind: model.NotificationTypeSMS},
	}
	a.svc = notificationService.NewService(memory.NewNotificationRepository(),
		channel.NewRegistry(a.email, a.sms), nil, notificationService.Config{MaxRetries: 3}, logger.Nop(), nil)

	a.router = gin.New()
	NewHandler(a.svc, logger.Nop()).RegisterRoutes(a.router.Group("/api/v1"))
	return a
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func emailBody() map[string]interface{} {
	return map[string]interface{}{
		"notification_type": "EMAIL",
		"event_type":        "order.confirmed",
		"recipient_name":    "Jo",
		"recipient_email":   "a@b.com",
		"subject":           "Order Confirmation - Order #42",
		"message":           "Thanks",
		"order_id":          42,
	}
}

func decodeNotification(t *testing.T, raw json.RawMessage) model.Notification {
	t.Helper()
	var n model.Notification
	require.NoError(t, json.Unmarshal(raw, &n))
	return n
}

func TestSendNotification(t *testing.T) {
	a := newTestAPI(t)

	w, env := a.do(t, http.MethodPost, "/api/v1/notifications/send", emailBody())
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Notification sent successfully", env.Message)

	n := decodeNotification(t, env.Data)
	assert.Equal(t, model.NotificationStatusSent, n.Status)
	assert.Equal(t, int64(42), *n.OrderID)
	assert.NotEqual(t, uuid.Nil, n.NotificationID)
}

func TestSendNotificationDeliveryFailure(t *testing.T) {
	a := newTestAPI(t)
	a.email.err = errors.New("Email delivery failed - recipient inbox full")

	w, env := a.do(t, http.MethodPost, "/api/v1/notifications/send", emailBody())
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "send_failed", env.Error)
	assert.Equal(t, "Email delivery failed - recipient inbox full", env.Message)
	assert.Equal(t, model.NotificationStatusFailed, decodeNotification(t, env.Data).Status)
}

func TestSendNotificationValidation(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		want   string
	}{
		{"email required for EMAIL", func(b map[string]interface{}) { delete(b, "recipient_email") }, "recipient_email is required for EMAIL notifications"},
		{"phone required for SMS", func(b map[string]interface{}) { b["notification_type"] = "SMS" }, "recipient_phone is required for SMS notifications"},
		{"bad email", func(b map[string]interface{}) { b["recipient_email"] = "nope" }, "valid email"},
		{"bad phone", func(b map[string]interface{}) { b["recipient_phone"] = "call me" }, "valid phone"},
		{"unknown event", func(b map[string]interface{}) { b["event_type"] = "user.registered" }, "not a known event type"},
		{"unknown type", func(b map[string]interface{}) { b["notification_type"] = "FAX" }, "not a valid notification type"},
		{"missing subject", func(b map[string]interface{}) { delete(b, "subject") }, "subject is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := emailBody()
			tt.mutate(body)
			w, env := a.do(t, http.MethodPost, "/api/v1/notifications/send", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation_error", env.Error)
			assert.Contains(t, env.Message, tt.want)
		})
	}
}

func TestSendSMS(t *testing.T) {
	a := newTestAPI(t)
	body := emailBody()
	body["notification_type"] = "SMS"
	body["recipient_phone"] = "+919876543210"

	w, env := a.do(t, http.MethodPost, "/api/v1/notifications/send", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, model.NotificationTypeSMS, decodeNotification(t, env.Data).NotificationType)
}

func TestGetNotification(t *testing.T) {
	a := newTestAPI(t)
	_, created := a.do(t, http.MethodPost, "/api/v1/notifications/send", emailBody())
	id := decodeNotification(t, created.Data).NotificationID

	w, env := a.do(t, http.MethodGet, "/api/v1/notifications/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decodeNotification(t, env.Data).NotificationID)

	w, env = a.do(t, http.MethodGet, "/api/v1/notifications/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", env.Error)

	w, _ = a.do(t, http.MethodGet, "/api/v1/notifications/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryNotification(t *testing.T) {
	a := newTestAPI(t)
	a.email.err = errors.New("inbox full")
	_, created := a.do(t, http.MethodPost, "/api/v1/notifications/send", emailBody())
	id := decodeNotification(t, created.Data).NotificationID

	a.email.err = nil
	w, env := a.do(t, http.MethodPost, "/api/v1/notifications/"+id.String()+"/retry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Retry completed", env.Message)
	n := decodeNotification(t, env.Data)
	assert.Equal(t, model.NotificationStatusSent, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	assert.Nil(t, n.ErrorMessage)

	// SENT is terminal
	w, env = a.do(t, http.MethodPost, "/api/v1/notifications/"+id.String()+"/retry", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "cannot_retry", env.Error)

	w, _ = a.do(t, http.MethodPost, "/api/v1/notifications/"+uuid.NewString()+"/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListNotifications(t *testing.T) {
	a := newTestAPI(t)
	for i := 0; i < 3; i++ {
		a.do(t, http.MethodPost, "/api/v1/notifications/send", emailBody())
	}
	sms := emailBody()
	sms["notification_type"] = "SMS"
	sms["recipient_phone"] = "+919876543210"
	sms["order_id"] = 7
	a.do(t, http.MethodPost, "/api/v1/notifications/send", sms)

	var list listResponse

	w, env := a.do(t, http.MethodGet, "/api/v1/notifications?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(4), list.Count)
	assert.Len(t, list.Results, 2)
	assert.Equal(t, 2, list.PageSize)

	w, env = a.do(t, http.MethodGet, "/api/v1/notifications?type=sms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(1), list.Count)

	w, env = a.do(t, http.MethodGet, "/api/v1/notifications?order_id=42&status=SENT", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(3), list.Count)
	assert.Equal(t, 20, list.PageSize)

	w, _ = a.do(t, http.MethodGet, "/api/v1/notifications?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, http.MethodGet, "/api/v1/notifications?order_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStats(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/v1/notifications/send", emailBody())
	a.email.err = errors.New("inbox full")
	a.do(t, http.MethodPost, "/api/v1/notifications/send", emailBody())

	w, env := a.do(t, http.MethodGet, "/api/v1/notifications/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats model.NotificationStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2), stats.ByType["EMAIL"])
	assert.Equal(t, int64(2), stats.ByEvent["order.confirmed"])
}

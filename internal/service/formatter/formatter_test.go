package formatter

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-service/internal/model"
)

func TestOrderConfirmed(t *testing.T) {
	out, err := Format(model.EventOrderConfirmed, map[string]interface{}{
		"order_id":      json.Number("42"),
		"customer_name": "Jo",
		"order_total":   json.Number("100"),
		"item_count":    json.Number("2"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Order Confirmation - Order #42", out.Subject)
	assert.Contains(t, out.Body, "Dear Jo,")
	assert.Contains(t, out.Body, "- Order Total: ₹100")
	assert.Contains(t, out.Body, "- Items: 2 item(s)")
	assert.Contains(t, out.Body, "Track your order: N/A")
	assert.Contains(t, out.Body, "ECI E-commerce Team")
	assert.Empty(t, out.SMS)
}

func TestMissingRequiredField(t *testing.T) {
	_, err := Format(model.EventOrderConfirmed, map[string]interface{}{
		"order_id":      42,
		"customer_name": "Jo",
		"order_total":   nil,
		"item_count":    2,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))

	var mf *MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "order_total", mf.Field)
}

// A present-but-null required field is rejected the same way as an absent
// one rather than rendered as a placeholder.
func TestNullRequiredFieldIsMissing(t *testing.T) {
	payload := map[string]interface{}{
		"order_id":    7,
		"carrier":     nil,
		"tracking_no": "BD1",
	}
	_, err := Format(model.EventShipmentShipped, payload)

	var mf *MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "carrier", mf.Field)
	assert.Equal(t, model.EventShipmentShipped, mf.EventType)
}

func TestRequiredFieldsPerEvent(t *testing.T) {
	cases := map[model.EventType]string{
		model.EventOrderCancelled:   "order_id",
		model.EventPaymentSucceeded: "payment_id",
		model.EventShipmentShipped:  "order_id",
	}
	for et, field := range cases {
		_, err := Format(et, map[string]interface{}{})
		var mf *MissingFieldError
		require.ErrorAs(t, err, &mf, et)
		assert.Equal(t, field, mf.Field, et)
	}
}

func TestDefaultsApplied(t *testing.T) {
	out, err := Format(model.EventOrderCancelled, map[string]interface{}{"order_id": 7, "customer_name": "Ann"})
	require.NoError(t, err)
	assert.Contains(t, out.Body, "Cancellation Reason: Customer request")

	out, err = Format(model.EventPaymentFailed, map[string]interface{}{"order_id": 7})
	require.NoError(t, err)
	assert.Equal(t, "Payment Failed - Order #7", out.Subject)
	assert.Contains(t, out.Body, "Amount: ₹N/A")
	assert.Contains(t, out.Body, "Reason: Unknown error")

	out, err = Format(model.EventPaymentRefunded, map[string]interface{}{"refund_amount": 99.5})
	require.NoError(t, err)
	assert.Equal(t, "Refund Processed - Order #N/A", out.Subject)
	assert.Contains(t, out.Body, "Refund Amount: ₹99.5")
	assert.Contains(t, out.Body, "Reason: Order cancellation")
}

func TestShipmentShippedHasSMS(t *testing.T) {
	out, err := Format(model.EventShipmentShipped, map[string]interface{}{
		"order_id":    json.Number("42"),
		"carrier":     "BlueDart",
		"tracking_no": "BD123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your Order has been Shipped - Order #42", out.Subject)
	assert.Contains(t, out.Body, "Expected Delivery: 2-3 business days")
	assert.Equal(t, "Your order #42 has been shipped via BlueDart. Track: BD123", out.SMS)
}

func TestShipmentDeliveredUsesOrderDeliveredTemplate(t *testing.T) {
	payload := map[string]interface{}{"order_id": 5, "delivered_at": "2024-01-02"}

	a, err := Format(model.EventShipmentDelivered, payload)
	require.NoError(t, err)
	b, err := Format(model.EventOrderDelivered, payload)
	require.NoError(t, err)
	assert.Equal(t, b, a)
	assert.Contains(t, a.Body, "Delivered At: 2024-01-02")
}

func TestEveryCatalogEntryHasTemplate(t *testing.T) {
	for _, et := range model.EventTypes() {
		_, ok := layouts[et]
		assert.True(t, ok, et)
	}
	_, err := Format("order.returned", nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "42", Stringify(json.Number("42")))
	assert.Equal(t, "100.5", Stringify(100.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, `["a"]`, Stringify([]interface{}{"a"}))
}

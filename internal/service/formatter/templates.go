package formatter

const signature = `Best regards,
ECI E-commerce Team`

const (
	orderConfirmedSubject = `Order Confirmation - Order #{{.order_id}}`
	orderConfirmedBody    = `Dear {{.customer_name}},

Thank you for your order!

Order Details:
- Order ID: {{.order_id}}
- Order Total: ₹{{.order_total}}
- Items: {{.item_count}} item(s)

Your order is being processed and you will receive a shipping confirmation soon.

Track your order: {{.tracking_url}}

Thank you for shopping with us!

` + signature

	orderCancelledSubject = `Order Cancelled - Order #{{.order_id}}`
	orderCancelledBody    = `Dear {{.customer_name}},

Your order has been cancelled as requested.

Order Details:
- Order ID: {{.order_id}}
- Cancellation Reason: {{.reason}}

If you paid for this order, a refund will be processed within 5-7 business days.

If you have any questions, please contact our support team.

` + signature

	orderDeliveredSubject = `Order Delivered - Order #{{.order_id}}`
	orderDeliveredBody    = `Dear Customer,

Your order has been successfully delivered!

Order ID: {{.order_id}}
Delivered At: {{.delivered_at}}

Thank you for shopping with us!

` + signature

	paymentSucceededSubject = `Payment Successful - Order #{{.order_id}}`
	paymentSucceededBody    = `Dear Customer,

Your payment has been processed successfully!

Payment Details:
- Payment ID: {{.payment_id}}
- Order ID: {{.order_id}}
- Amount: ₹{{.amount}}
- Method: {{.method}}
- Reference: {{.reference}}

Your order will be shipped soon.

Thank you!

` + signature

	paymentFailedSubject = `Payment Failed - Order #{{.order_id}}`
	paymentFailedBody    = `Dear Customer,

Your payment could not be processed.

Order ID: {{.order_id}}
Amount: ₹{{.amount}}
Reason: {{.reason}}

Please try again or use a different payment method.

` + signature

	paymentRefundedSubject = `Refund Processed - Order #{{.order_id}}`
	paymentRefundedBody    = `Dear Customer,

Your refund has been processed successfully!

Order ID: {{.order_id}}
Refund Amount: ₹{{.refund_amount}}
Reason: {{.reason}}

The amount will be credited to your original payment method within 5-7 business days.

` + signature

	shipmentShippedSubject = `Your Order has been Shipped - Order #{{.order_id}}`
	shipmentShippedBody    = `Dear Customer,

Good news! Your order has been shipped.

Shipment Details:
- Order ID: {{.order_id}}
- Carrier: {{.carrier}}
- Tracking Number: {{.tracking_no}}
- Expected Delivery: {{.expected_delivery}}

Track your shipment: {{.tracking_url}}

Thank you for your patience!

` + signature

	shipmentShippedSMS = `Your order #{{.order_id}} has been shipped via {{.carrier}}. Track: {{.tracking_no}}`
)

package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/pkg/circuitbreaker"
	"github.com/jwalitptl/notification-service/pkg/logger"
)

func TestSimulatedOutcomeFollowsRoll(t *testing.T) {
	cfg := DefaultEmailSimulation()
	cfg.Latency = 0

	ok := NewSimulated(model.NotificationTypeEmail, cfg, logger.Nop()).WithRand(func() float64 { return 0.5 })
	assert.NoError(t, ok.Send(context.Background(), "a@b.com", "s", "b"))

	bad := NewSimulated(model.NotificationTypeEmail, cfg, logger.Nop()).WithRand(func() float64 { return 0.01 })
	err := bad.Send(context.Background(), "a@b.com", "s", "b")
	require.Error(t, err)
	assert.Equal(t, "Email delivery failed - recipient inbox full", err.Error())
}

func TestSimulatedSMSDefaults(t *testing.T) {
	cfg := DefaultSMSSimulation()
	assert.Equal(t, 0.10, cfg.FailureRate)
	assert.Equal(t, 300*time.Millisecond, cfg.Latency)

	cfg.Latency = 0
	sms := NewSimulated(model.NotificationTypeSMS, cfg, logger.Nop()).WithRand(func() float64 { return 0.05 })
	assert.EqualError(t, sms.Send(context.Background(), "+911234567890", "", "hi"), "SMS delivery failed - invalid phone number")
	assert.Equal(t, model.NotificationTypeSMS, sms.Kind())
}

func TestSimulatedLatencyHonoursContext(t *testing.T) {
	cfg := SimulatedConfig{Latency: time.Hour}
	ch := NewSimulated(model.NotificationTypeEmail, cfg, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ch.Send(ctx, "a@b.com", "s", "b"), context.Canceled)
}

func TestRegistry(t *testing.T) {
	email := NewSimulated(model.NotificationTypeEmail, SimulatedConfig{}, logger.Nop())
	reg := NewRegistry(email)

	got, err := reg.Get(model.NotificationTypeEmail)
	require.NoError(t, err)
	assert.Same(t, email, got)

	_, err = reg.Get(model.NotificationTypePush)
	assert.EqualError(t, err, "unsupported notification type: PUSH")
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestSMTPSend(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTP{from: "noreply@shop.test", dialer: d}

	require.NoError(t, s.Send(context.Background(), "a@b.com", "Order Confirmation", "body"))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"a@b.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Order Confirmation"}, d.sent[0].GetHeader("Subject"))

	d.err = errors.New("connection refused")
	assert.ErrorContains(t, s.Send(context.Background(), "a@b.com", "s", "b"), "connection refused")
}

func TestNewSMTPRequiresHost(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{From: "x@y.z"})
	assert.Error(t, err)
}

type fakePostmark struct {
	got  postmark.Email
	resp postmark.EmailResponse
	err  error
}

func (f *fakePostmark) SendEmail(_ context.Context, e postmark.Email) (postmark.EmailResponse, error) {
	f.got = e
	return f.resp, f.err
}

func TestPostmarkSend(t *testing.T) {
	fake := &fakePostmark{}
	p := &Postmark{client: fake, cfg: PostmarkConfig{From: "noreply@shop.test", Tag: "notification"}}

	require.NoError(t, p.Send(context.Background(), "a@b.com", "Subject", "Body"))
	assert.Equal(t, "a@b.com", fake.got.To)
	assert.Equal(t, "Body", fake.got.TextBody)
	assert.Equal(t, "notification", fake.got.Tag)

	fake.resp = postmark.EmailResponse{ErrorCode: 406, Message: "Inactive recipient"}
	assert.EqualError(t, p.Send(context.Background(), "a@b.com", "s", "b"), "postmark error: 406 - Inactive recipient")
}

type countingChannel struct {
	calls int
	err   error
}

func (c *countingChannel) Kind() model.NotificationType { return model.NotificationTypeEmail }

func (c *countingChannel) Send(context.Context, string, string, string) error {
	c.calls++
	return c.err
}

func TestWithBreakerShortCircuits(t *testing.T) {
	inner := &countingChannel{err: errors.New("provider down")}
	ch := WithBreaker(inner, circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name: "email", MaxFailures: 1, Timeout: time.Minute,
	}))

	assert.Error(t, ch.Send(context.Background(), "a@b.com", "s", "b"))
	assert.ErrorIs(t, ch.Send(context.Background(), "a@b.com", "s", "b"), circuitbreaker.ErrOpen)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, model.NotificationTypeEmail, ch.Kind())
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/repository"
	"github.com/jwalitptl/notification-service/internal/repository/memory"
	"github.com/jwalitptl/notification-service/internal/service/notification"
	"github.com/jwalitptl/notification-service/pkg/channel"
	"github.com/jwalitptl/notification-service/pkg/logger"
	"github.com/jwalitptl/notification-service/pkg/metrics"
)

// toggleChannel fails while failing is true.
type toggleChannel struct {
	failing bool
	sends   int
}

func (c *toggleChannel) Kind() model.NotificationType { return model.NotificationTypeEmail }

func (c *toggleChannel) Send(context.Context, string, string, string) error {
	c.sends++
	if c.failing {
		return errors.New("Email delivery failed - recipient inbox full")
	}
	return nil
}

func setup(t *testing.T, maxRetries int) (notification.Service, repository.NotificationRepository, *toggleChannel) {
	t.Helper()
	repo := memory.NewNotificationRepository()
	ch := &toggleChannel{failing: true}
	svc := notification.NewService(repo, channel.NewRegistry(ch), nil,
		notification.Config{MaxRetries: maxRetries}, logger.Nop(), nil)
	return svc, repo, ch
}

func failedRecord(t *testing.T, svc notification.Service) *model.Notification {
	t.Helper()
	email := "a@b.com"
	n, err := svc.Dispatch(context.Background(), notification.DispatchRequest{
		RecipientEmail: &email,
		Type:           model.NotificationTypeEmail,
		EventType:      model.EventOrderConfirmed,
		Subject:        "s",
		Message:        "m",
	})
	require.NoError(t, err)
	require.Equal(t, model.NotificationStatusFailed, n.Status)
	return n
}

func newSweeper(svc notification.Service, batch int) *RetrySweeper {
	return NewRetrySweeper(svc, RetrySweeperConfig{Interval: time.Hour, BatchSize: batch},
		logger.Nop(), metrics.New("test", prometheus.NewRegistry()))
}

func TestSweepRetriesFailedRecords(t *testing.T) {
	svc, repo, ch := setup(t, 3)
	a := failedRecord(t, svc)
	b := failedRecord(t, svc)

	ch.failing = false
	sent, err := newSweeper(svc, 10).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	for _, id := range []*model.Notification{a, b} {
		got, err := repo.GetByNotificationID(context.Background(), id.NotificationID)
		require.NoError(t, err)
		assert.Equal(t, model.NotificationStatusSent, got.Status)
		assert.Equal(t, 1, got.RetryCount)
	}
}

func TestSweepStopsAtRetryCap(t *testing.T) {
	svc, repo, ch := setup(t, 2)
	n := failedRecord(t, svc)
	w := newSweeper(svc, 10)

	for i := 0; i < 4; i++ {
		sent, err := w.Sweep(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sent)
	}

	got, err := repo.GetByNotificationID(context.Background(), n.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusFailed, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	// one initial attempt plus two retries
	assert.Equal(t, 3, ch.sends)
}

func TestSweepHonoursBatchSize(t *testing.T) {
	svc, _, ch := setup(t, 3)
	for i := 0; i < 3; i++ {
		failedRecord(t, svc)
	}
	ch.failing = false

	sent, err := newSweeper(svc, 2).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestStartStopsOnCancel(t *testing.T) {
	svc, _, _ := setup(t, 3)
	w := NewRetrySweeper(svc, RetrySweeperConfig{Interval: time.Millisecond, BatchSize: 1}, logger.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNewRetrySweeperValidatesConfig(t *testing.T) {
	svc, _, _ := setup(t, 3)
	assert.Panics(t, func() { NewRetrySweeper(svc, RetrySweeperConfig{BatchSize: 1}, logger.Nop(), nil) })
	assert.Panics(t, func() { NewRetrySweeper(svc, RetrySweeperConfig{Interval: time.Second}, logger.Nop(), nil) })
}

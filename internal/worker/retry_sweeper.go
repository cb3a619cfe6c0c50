package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/service/notification"
	"github.com/jwalitptl/notification-service/pkg/logger"
	"github.com/jwalitptl/notification-service/pkg/metrics"
)

type RetrySweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// RetrySweeper periodically re-attempts FAILED notifications that still
// have retries left.
type RetrySweeper struct {
	service notification.Service
	config  RetrySweeperConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewRetrySweeper(
	service notification.Service,
	config RetrySweeperConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *RetrySweeper {
	if config.Interval <= 0 {
		panic("Interval must be greater than 0")
	}
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &RetrySweeper{
		service: service,
		config:  config,
		logger:  log.WithFields(map[string]interface{}{"component": "retry-sweeper"}),
		metrics: m,
	}
}

// Start blocks until ctx is done.
func (w *RetrySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("Starting retry sweeper", "interval", w.config.Interval.String(), "batch_size", w.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down retry sweeper")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error(err, "Retry sweep failed")
			}
		}
	}
}

// Sweep retries one batch and returns how many records ended up SENT.
func (w *RetrySweeper) Sweep(ctx context.Context) (int, error) {
	batch, err := w.service.ListRetryable(ctx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list retryable notifications: %w", err)
	}
	w.metrics.RetrySweepLength.Observe(float64(len(batch)))

	sent := 0
	for _, n := range batch {
		if ctx.Err() != nil {
			return sent, nil
		}

		res, err := w.service.Retry(ctx, n.NotificationID)
		switch {
		case errors.Is(err, notification.ErrNotRetryable), errors.Is(err, notification.ErrNotFound):
			// changed underneath us since the listing
			continue
		case err != nil:
			w.logger.Error(err, "Failed to retry notification", "notification_id", n.NotificationID.String())
			continue
		}
		if res.Status == model.NotificationStatusSent {
			sent++
		}
	}

	if len(batch) > 0 {
		w.logger.Info("Retry sweep finished", "candidates", len(batch), "sent", sent)
	}
	return sent, nil
}

package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/repository"
	"github.com/jwalitptl/notification-service/pkg/channel"
	"github.com/jwalitptl/notification-service/pkg/dedup"
	apperrors "github.com/jwalitptl/notification-service/pkg/errors"
	"github.com/jwalitptl/notification-service/pkg/logger"
	"github.com/jwalitptl/notification-service/pkg/metrics"
)

var (
	ErrNotFound     = apperrors.NewNotFound("notification", nil)
	ErrNotRetryable = apperrors.NewNotRetryable("notification cannot be retried")
	ErrDuplicate    = apperrors.NewConflict("duplicate event", nil)
)

// commitAttempts bounds how often a successful retry re-reads a record
// that a newer retry claimed while the send was in flight.
const commitAttempts = 3

type Config struct {
	MaxRetries int
	// SendTimeout bounds a single channel call. Zero means no bound.
	SendTimeout time.Duration
	// RetryPlan rebuilds the deliveries a record was dispatched with. Nil
	// retries the record's own type with its stored message.
	RetryPlan func(n *model.Notification) ([]Delivery, error)
}

// DispatchRequest describes one notification to create and send.
type DispatchRequest struct {
	RecipientName  string
	RecipientEmail *string
	RecipientPhone *string

	Type      model.NotificationType
	EventType model.EventType
	Subject   string
	Message   string

	OrderID    *int64
	PaymentID  *int64
	ShipmentID *int64
	Metadata   model.JSONMap

	// DedupKey, when set, is checked against the dedup guard before
	// anything is sent.
	DedupKey string
}

// Delivery is one channel attempt inside a multi-channel dispatch.
type Delivery struct {
	Channel model.NotificationType
	Body    string
}

type Service interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*model.Notification, error)
	DispatchMulti(ctx context.Context, req DispatchRequest, deliveries ...Delivery) (*model.Notification, error)
	Retry(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	List(ctx context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.Notification, int64, error)
	ListRetryable(ctx context.Context, limit int) ([]*model.Notification, error)
	Stats(ctx context.Context) (*model.NotificationStats, error)
}

type service struct {
	repo     repository.NotificationRepository
	channels channel.Registry
	guard    dedup.Guard
	config   Config
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(
	repo repository.NotificationRepository,
	channels channel.Registry,
	guard dedup.Guard,
	config Config,
	log *logger.Logger,
	m *metrics.Metrics,
) Service {
	if config.MaxRetries <= 0 {
		config.MaxRetries = model.DefaultMaxRetries
	}
	if guard == nil {
		guard = dedup.Noop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &service{
		repo:     repo,
		channels: channels,
		guard:    guard,
		config:   config,
		logger:   log.WithFields(map[string]interface{}{"component": "notification"}),
		metrics:  m,
		now:      time.Now,
	}
}

func (s *service) Dispatch(ctx context.Context, req DispatchRequest) (*model.Notification, error) {
	return s.DispatchMulti(ctx, req, Delivery{Channel: req.Type, Body: req.Message})
}

// DispatchMulti creates one record and attempts every listed delivery.
// The record is SENT if any attempt succeeds and FAILED only if every
// attempted delivery failed. Deliveries whose recipient field is absent
// are skipped. When nothing was attempted a single-channel record stays
// PENDING, while a multi-channel record is FAILED.
func (s *service) DispatchMulti(ctx context.Context, req DispatchRequest, deliveries ...Delivery) (*model.Notification, error) {
	if len(deliveries) == 0 {
		deliveries = []Delivery{{Channel: req.Type, Body: req.Message}}
	}

	if req.DedupKey != "" {
		ok, err := s.guard.Acquire(ctx, req.DedupKey)
		if err != nil {
			return nil, fmt.Errorf("dedup check failed: %w", err)
		}
		if !ok {
			s.metrics.DuplicateEvents.WithLabelValues(string(req.EventType)).Inc()
			s.logger.Info("Duplicate event skipped", "event_type", string(req.EventType), "dedup_key", req.DedupKey)
			return nil, ErrDuplicate
		}
	}

	n := s.newRecord(req)
	res := s.deliver(ctx, n, deliveries)

	switch {
	case res.sent:
	case res.attempted > 0:
		n.MarkFailed(strings.Join(res.failures, "; "))
	case len(deliveries) == 1:
		s.logger.Warn("No deliverable recipient, notification left pending",
			"notification_id", n.NotificationID.String(),
			"event_type", string(n.EventType))
	default:
		n.MarkFailed(strings.Join(res.skipped, "; "))
	}

	if err := s.repo.Create(ctx, n); err != nil {
		if req.DedupKey != "" {
			if relErr := s.guard.Release(ctx, req.DedupKey); relErr != nil {
				s.logger.Error(relErr, "Failed to release dedup key", "dedup_key", req.DedupKey)
			}
		}
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	s.metrics.Notifications.WithLabelValues(string(n.EventType), string(n.Status)).Inc()
	s.logger.Info("Notification dispatched",
		"notification_id", n.NotificationID.String(),
		"event_type", string(n.EventType),
		"status", string(n.Status))

	return n, nil
}

type deliveryResult struct {
	sent      bool
	attempted int
	failures  []string
	skipped   []string
}

// deliver attempts each delivery in order. The first success marks n SENT;
// the remaining channels are still attempted.
func (s *service) deliver(ctx context.Context, n *model.Notification, deliveries []Delivery) deliveryResult {
	var res deliveryResult
	for _, d := range deliveries {
		ch, err := s.channels.Get(d.Channel)
		if err != nil {
			res.attempted++
			res.failures = append(res.failures, s.describe(d.Channel, err, len(deliveries)))
			continue
		}

		to := n.Destination(d.Channel)
		if to == "" {
			s.logger.Warn("No recipient for channel, delivery skipped",
				"notification_id", n.NotificationID.String(),
				"event_type", string(n.EventType),
				"channel", string(d.Channel))
			res.skipped = append(res.skipped, s.describe(d.Channel, fmt.Errorf("no recipient for %s", d.Channel), len(deliveries)))
			continue
		}

		res.attempted++
		if err := s.send(ctx, ch, to, n.Subject, d.Body); err != nil {
			res.failures = append(res.failures, s.describe(d.Channel, err, len(deliveries)))
			continue
		}
		if !res.sent {
			res.sent = true
			n.MarkSent(s.now())
		}
	}
	return res
}

// Retry claims the next attempt by bumping retry_count while the stored
// record is still FAILED at the count that was read, then re-sends. A lost
// claim means another retry got there first and yields ErrNotRetryable.
func (s *service) Retry(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !n.CanRetry() {
		return nil, fmt.Errorf("%w: status %s, retry %d of %d", ErrNotRetryable, n.Status, n.RetryCount, n.MaxRetries)
	}

	prev := n.RetryCount
	n.RetryCount++
	err = s.repo.UpdateIf(ctx, n, repository.Precondition{Status: model.NotificationStatusFailed, RetryCount: &prev})
	switch {
	case errors.Is(err, repository.ErrConflict):
		return nil, fmt.Errorf("%w: retry %d already claimed", ErrNotRetryable, n.RetryCount)
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to claim retry: %w", err)
	}
	claimed := n.RetryCount

	var res deliveryResult
	deliveries, err := s.retryDeliveries(n)
	if err != nil {
		res.failures = []string{err.Error()}
	} else {
		res = s.deliver(ctx, n, deliveries)
	}
	switch {
	case res.sent:
	case len(res.failures) > 0:
		n.MarkFailed(strings.Join(res.failures, "; "))
	default:
		n.MarkFailed(strings.Join(res.skipped, "; "))
	}

	n, err = s.commitRetry(ctx, n, claimed)
	if err != nil {
		return nil, err
	}

	s.metrics.RetryAttempts.WithLabelValues(string(n.Status)).Inc()
	s.logger.Info("Notification retried",
		"notification_id", n.NotificationID.String(),
		"retry_count", n.RetryCount,
		"status", string(n.Status))

	return n, nil
}

func (s *service) retryDeliveries(n *model.Notification) ([]Delivery, error) {
	if s.config.RetryPlan != nil {
		return s.config.RetryPlan(n)
	}
	return []Delivery{{Channel: n.NotificationType, Body: n.Message}}, nil
}

// commitRetry stores the outcome of the attempt claimed at retry count
// claimed. If a newer retry claimed the record meanwhile, a failure yields
// to it, while a success is still recorded on top of the newer claim. SENT
// is never overwritten.
func (s *service) commitRetry(ctx context.Context, n *model.Notification, claimed int) (*model.Notification, error) {
	err := s.repo.UpdateIf(ctx, n, repository.Precondition{Status: model.NotificationStatusFailed, RetryCount: &claimed})
	for i := 0; errors.Is(err, repository.ErrConflict) && i < commitAttempts; i++ {
		current, getErr := s.Get(ctx, n.NotificationID)
		if getErr != nil {
			return nil, getErr
		}
		if n.Status != model.NotificationStatusSent || current.Status != model.NotificationStatusFailed {
			s.logger.Warn("Retry outcome superseded by a newer attempt",
				"notification_id", n.NotificationID.String(),
				"attempt_status", string(n.Status),
				"stored_status", string(current.Status))
			return current, nil
		}

		count := current.RetryCount
		current.MarkSent(*n.SentAt)
		n = current
		err = s.repo.UpdateIf(ctx, n, repository.Precondition{Status: model.NotificationStatusFailed, RetryCount: &count})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}
	return n, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.GetByNotificationID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (s *service) List(ctx context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.Notification, int64, error) {
	items, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *service) ListRetryable(ctx context.Context, limit int) ([]*model.Notification, error) {
	return s.repo.List(ctx, model.NotificationFilter{RetryableOnly: true}, model.Pagination{Page: 1, PageSize: limit})
}

func (s *service) Stats(ctx context.Context) (*model.NotificationStats, error) {
	stats := &model.NotificationStats{
		ByType:  map[string]int64{},
		ByEvent: map[string]int64{},
	}

	var err error
	if stats.Total, err = s.repo.Count(ctx, model.NotificationFilter{}); err != nil {
		return nil, err
	}
	counts := []struct {
		dst    *int64
		status model.NotificationStatus
	}{
		{&stats.Sent, model.NotificationStatusSent},
		{&stats.Failed, model.NotificationStatusFailed},
		{&stats.Pending, model.NotificationStatusPending},
	}
	for _, c := range counts {
		if *c.dst, err = s.repo.Count(ctx, model.NotificationFilter{Status: c.status}); err != nil {
			return nil, err
		}
	}

	for _, t := range []model.NotificationType{model.NotificationTypeEmail, model.NotificationTypeSMS, model.NotificationTypePush} {
		n, err := s.repo.Count(ctx, model.NotificationFilter{Type: t})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			stats.ByType[string(t)] = n
		}
	}
	for _, et := range model.EventTypes() {
		n, err := s.repo.Count(ctx, model.NotificationFilter{EventType: et})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			stats.ByEvent[string(et)] = n
		}
	}

	return stats, nil
}

func (s *service) newRecord(req DispatchRequest) *model.Notification {
	name := req.RecipientName
	if name == "" {
		name = model.DefaultRecipientName
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = model.JSONMap{}
	}
	n := &model.Notification{
		NotificationID:   uuid.New(),
		RecipientName:    name,
		RecipientEmail:   nonEmpty(req.RecipientEmail),
		RecipientPhone:   nonEmpty(req.RecipientPhone),
		NotificationType: req.Type,
		EventType:        req.EventType,
		Subject:          truncate(req.Subject, model.MaxSubjectLength),
		Message:          req.Message,
		OrderID:          req.OrderID,
		PaymentID:        req.PaymentID,
		ShipmentID:       req.ShipmentID,
		Metadata:         metadata,
		Status:           model.NotificationStatusPending,
		CreatedAt:        s.now(),
		MaxRetries:       s.config.MaxRetries,
	}
	if req.DedupKey != "" {
		key := req.DedupKey
		n.DedupKey = &key
	}
	return n
}

func (s *service) send(ctx context.Context, ch channel.Channel, to, subject, body string) error {
	if s.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SendTimeout)
		defer cancel()
	}

	start := time.Now()
	err := ch.Send(ctx, to, subject, body)

	status := "success"
	if err != nil {
		status = "failure"
	}
	kind := string(ch.Kind())
	s.metrics.Deliveries.WithLabelValues(kind, status).Inc()
	s.metrics.DeliveryLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	return err
}

// describe prefixes the channel name when more than one channel is in play,
// so a combined failure says which channel failed how.
func (s *service) describe(t model.NotificationType, err error, deliveries int) string {
	if deliveries == 1 {
		return err.Error()
	}
	return strings.ToLower(string(t)) + ": " + err.Error()
}

func nonEmpty(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/repository"
)

const uniqueViolation = "23505"

const notificationColumns = `notification_id, recipient_name, recipient_email, recipient_phone,
	notification_type, event_type, subject, message, order_id, payment_id, shipment_id,
	metadata, dedup_key, status, error_message, created_at, sent_at, delivered_at,
	retry_count, max_retries`

type notificationRepository struct {
	*BaseRepository
}

func NewNotificationRepository(base *BaseRepository) repository.NotificationRepository {
	return &notificationRepository{
		BaseRepository: base,
	}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) (err error) {
	defer r.track("create")(&err)

	query := `INSERT INTO notifications (` + notificationColumns + `) VALUES (
		:notification_id, :recipient_name, :recipient_email, :recipient_phone,
		:notification_type, :event_type, :subject, :message, :order_id, :payment_id, :shipment_id,
		:metadata, :dedup_key, :status, :error_message, :created_at, :sent_at, :delivered_at,
		:retry_count, :max_retries)`

	if _, err = r.db.NamedExecContext(ctx, query, n); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) GetByNotificationID(ctx context.Context, id uuid.UUID) (_ *model.Notification, err error) {
	defer r.track("get")(&err)

	var n model.Notification
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE notification_id = $1`
	if err = r.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

const updateSet = `UPDATE notifications SET
		recipient_name = :recipient_name,
		recipient_email = :recipient_email,
		recipient_phone = :recipient_phone,
		subject = :subject,
		message = :message,
		metadata = :metadata,
		status = :status,
		error_message = :error_message,
		sent_at = :sent_at,
		delivered_at = :delivered_at,
		retry_count = :retry_count,
		max_retries = :max_retries
		WHERE notification_id = :notification_id`

func (r *notificationRepository) Update(ctx context.Context, n *model.Notification) (err error) {
	defer r.track("update")(&err)

	res, err := r.db.NamedExecContext(ctx, updateSet, n)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// guardedNotification carries the expected stored values next to the new ones.
type guardedNotification struct {
	*model.Notification
	ExpectedStatus     model.NotificationStatus `db:"expected_status"`
	ExpectedRetryCount int                      `db:"expected_retry_count"`
}

func guardedUpdateQuery(cond repository.Precondition) string {
	q := updateSet + ` AND status = :expected_status`
	if cond.RetryCount != nil {
		q += ` AND retry_count = :expected_retry_count`
	}
	return q
}

func (r *notificationRepository) UpdateIf(ctx context.Context, n *model.Notification, cond repository.Precondition) (err error) {
	defer r.track("update_if")(&err)

	arg := guardedNotification{Notification: n, ExpectedStatus: cond.Status}
	if cond.RetryCount != nil {
		arg.ExpectedRetryCount = *cond.RetryCount
	}

	res, err := r.db.NamedExecContext(ctx, guardedUpdateQuery(cond), arg)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err = r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM notifications WHERE notification_id = $1)`, n.NotificationID); err != nil {
		return fmt.Errorf("failed to check notification: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *notificationRepository) List(ctx context.Context, filter model.NotificationFilter, page model.Pagination) (_ []*model.Notification, err error) {
	defer r.track("list")(&err)

	page = page.Normalize()
	where, args := buildWhere(filter)
	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM notifications%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, where, len(args)-1, len(args))

	notifications := make([]*model.Notification, 0)
	if err = r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) Count(ctx context.Context, filter model.NotificationFilter) (_ int64, err error) {
	defer r.track("count")(&err)

	where, args := buildWhere(filter)
	var total int64
	if err = r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return total, nil
}

func (r *notificationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *notificationRepository) Close() error {
	return r.db.Close()
}

func buildWhere(f model.NotificationFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Type != "" {
		add("notification_type = $%d", string(f.Type))
	}
	if f.EventType != "" {
		add("event_type = $%d", string(f.EventType))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.OrderID != nil {
		add("order_id = $%d", *f.OrderID)
	}
	if f.RetryableOnly {
		conds = append(conds, fmt.Sprintf("status = '%s' AND retry_count < max_retries", model.NotificationStatusFailed))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

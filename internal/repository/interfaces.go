package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-service/internal/model"
)

var (
	ErrNotFound      = errors.New("notification not found")
	ErrAlreadyExists = errors.New("notification already exists")
	// ErrConflict means the stored record no longer matches the precondition
	// of a conditional update.
	ErrConflict = errors.New("notification changed concurrently")
)

// Precondition guards UpdateIf. Status must match the stored status;
// RetryCount, when set, must match the stored retry count.
type Precondition struct {
	Status     model.NotificationStatus
	RetryCount *int
}

// Holds reports whether n satisfies the precondition.
func (p Precondition) Holds(n *model.Notification) bool {
	if n.Status != p.Status {
		return false
	}
	return p.RetryCount == nil || n.RetryCount == *p.RetryCount
}

// NotificationRepository persists notification records. Update replaces a
// whole record atomically; there are no cross-record transactions.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	GetByNotificationID(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	Update(ctx context.Context, n *model.Notification) error
	// UpdateIf replaces the record only while the stored copy satisfies cond,
	// returning ErrConflict otherwise. The check and the write are atomic.
	UpdateIf(ctx context.Context, n *model.Notification, cond Precondition) error
	// List returns matching records newest first.
	List(ctx context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.Notification, error)
	Count(ctx context.Context, filter model.NotificationFilter) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/repository"
)

type notificationRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*model.Notification
}

// NewNotificationRepository returns a process-local store.
func NewNotificationRepository() repository.NotificationRepository {
	return &notificationRepository{records: make(map[uuid.UUID]*model.Notification)}
}

func (r *notificationRepository) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[n.NotificationID]; ok {
		return repository.ErrAlreadyExists
	}
	r.records[n.NotificationID] = n.Clone()
	return nil
}

func (r *notificationRepository) GetByNotificationID(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return n.Clone(), nil
}

func (r *notificationRepository) Update(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[n.NotificationID]; !ok {
		return repository.ErrNotFound
	}
	r.records[n.NotificationID] = n.Clone()
	return nil
}

func (r *notificationRepository) UpdateIf(_ context.Context, n *model.Notification, cond repository.Precondition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[n.NotificationID]
	if !ok {
		return repository.ErrNotFound
	}
	if !cond.Holds(stored) {
		return repository.ErrConflict
	}
	r.records[n.NotificationID] = n.Clone()
	return nil
}

func (r *notificationRepository) List(_ context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.Notification, error) {
	r.mu.RLock()
	matched := make([]*model.Notification, 0)
	for _, n := range r.records {
		if filter.Matches(n) {
			matched = append(matched, n.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page = page.Normalize()
	start := page.Offset()
	if start >= len(matched) {
		return []*model.Notification{}, nil
	}
	end := start + page.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (r *notificationRepository) Count(_ context.Context, filter model.NotificationFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, n := range r.records {
		if filter.Matches(n) {
			total++
		}
	}
	return total, nil
}

func (r *notificationRepository) Ping(context.Context) error {
	return nil
}

func (r *notificationRepository) Close() error {
	return nil
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/repository"
)

func newRecord(created time.Time, status model.NotificationStatus) *model.Notification {
	return &model.Notification{
		NotificationID:   uuid.New(),
		RecipientName:    "Jo",
		NotificationType: model.NotificationTypeEmail,
		EventType:        model.EventOrderConfirmed,
		Status:           status,
		CreatedAt:        created,
		MaxRetries:       3,
	}
}

func TestCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	n := newRecord(time.Now(), model.NotificationStatusPending)

	require.NoError(t, repo.Create(ctx, n))
	assert.ErrorIs(t, repo.Create(ctx, n), repository.ErrAlreadyExists)

	got, err := repo.GetByNotificationID(ctx, n.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, n.NotificationID, got.NotificationID)

	got.Status = model.NotificationStatusSent
	stored, _ := repo.GetByNotificationID(ctx, n.NotificationID)
	assert.Equal(t, model.NotificationStatusPending, stored.Status, "returned records are copies")

	require.NoError(t, repo.Update(ctx, got))
	stored, _ = repo.GetByNotificationID(ctx, n.NotificationID)
	assert.Equal(t, model.NotificationStatusSent, stored.Status)

	_, err = repo.GetByNotificationID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, newRecord(time.Now(), model.NotificationStatusSent)), repository.ErrNotFound)
}

func TestUpdateIfComparesStoredState(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	n := newRecord(time.Now(), model.NotificationStatusFailed)
	require.NoError(t, repo.Create(ctx, n))

	prev := 0
	claim := n.Clone()
	claim.RetryCount = 1
	require.NoError(t, repo.UpdateIf(ctx, claim, repository.Precondition{Status: model.NotificationStatusFailed, RetryCount: &prev}))

	// same expected count again loses
	again := n.Clone()
	again.RetryCount = 1
	assert.ErrorIs(t, repo.UpdateIf(ctx, again, repository.Precondition{Status: model.NotificationStatusFailed, RetryCount: &prev}),
		repository.ErrConflict)

	sent := claim.Clone()
	sent.MarkSent(time.Now())
	require.NoError(t, repo.UpdateIf(ctx, sent, repository.Precondition{Status: model.NotificationStatusFailed}))

	failed := claim.Clone()
	failed.MarkFailed("late")
	assert.ErrorIs(t, repo.UpdateIf(ctx, failed, repository.Precondition{Status: model.NotificationStatusFailed}),
		repository.ErrConflict)

	stored, err := repo.GetByNotificationID(ctx, n.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusSent, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	assert.ErrorIs(t, repo.UpdateIf(ctx, newRecord(time.Now(), model.NotificationStatusFailed),
		repository.Precondition{Status: model.NotificationStatusFailed}), repository.ErrNotFound)
}

func TestListOrdersNewestFirstAndPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newRecord(base.Add(time.Duration(i)*time.Minute), model.NotificationStatusFailed)))
	}
	require.NoError(t, repo.Create(ctx, newRecord(base, model.NotificationStatusSent)))

	page, err := repo.List(ctx, model.NotificationFilter{Status: model.NotificationStatusFailed}, model.Pagination{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))
	assert.Equal(t, base.Add(4*time.Minute), page[0].CreatedAt)

	last, err := repo.List(ctx, model.NotificationFilter{Status: model.NotificationStatusFailed}, model.Pagination{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, last, 1)

	empty, err := repo.List(ctx, model.NotificationFilter{}, model.Pagination{Page: 10, PageSize: 20})
	require.NoError(t, err)
	assert.Empty(t, empty)

	count, err := repo.Count(ctx, model.NotificationFilter{Status: model.NotificationStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

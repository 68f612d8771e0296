package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunhub/volunhub-api/internal/models"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
)

type mockNotificationRepo struct {
	notifications []models.Notification
	read          map[string]time.Time
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	notification.ID = "n1"
	m.notifications = append(m.notifications, *notification)
	return nil
}

func (m *mockNotificationRepo) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	var out []models.Notification
	for _, n := range m.notifications {
		if n.RecipientID == filter.RecipientID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error) {
	for _, n := range m.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			if m.read == nil {
				m.read = make(map[string]time.Time)
			}
			m.read[id] = at
			return true, nil
		}
	}
	return false, nil
}

func (m *mockNotificationRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []models.Notification
	var removed int64
	for _, n := range m.notifications {
		if n.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return removed, nil
}

func TestDispatchPersistsEventForRecipient(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := NewNotificationService(repo, nil, true)

	err := svc.Dispatch(context.Background(), models.Event{
		Type:        models.NotificationEnrollmentApproved,
		RecipientID: "v1",
		Payload:     map[string]interface{}{"project_id": "p1"},
	})

	require.NoError(t, err)
	require.Len(t, repo.notifications, 1)
	assert.Equal(t, models.NotificationEnrollmentApproved, repo.notifications[0].Type)
	assert.Equal(t, "v1", repo.notifications[0].RecipientID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(repo.notifications[0].Payload, &payload))
	assert.Equal(t, "p1", payload["project_id"])
}

func TestDispatchDisabledIsNoOp(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := NewNotificationService(repo, nil, false)

	err := svc.Dispatch(context.Background(), models.Event{
		Type:        models.NotificationGoalCompleted,
		RecipientID: "v1",
	})

	require.NoError(t, err)
	assert.Empty(t, repo.notifications)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	repo := &mockNotificationRepo{notifications: []models.Notification{
		{ID: "n1", RecipientID: "v1", Type: models.NotificationEnrollmentApproved},
	}}
	svc := NewNotificationService(repo, nil, true)

	require.NoError(t, svc.MarkRead(context.Background(), models.Actor{ID: "v1"}, "n1"))

	// Another recipient cannot mark someone else's notification.
	err := svc.MarkRead(context.Background(), models.Actor{ID: "v2"}, "n1")
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestPruneRemovesOldNotifications(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &mockNotificationRepo{notifications: []models.Notification{
		{ID: "n1", RecipientID: "v1", CreatedAt: now.AddDate(0, 0, -100)},
		{ID: "n2", RecipientID: "v1", CreatedAt: now.AddDate(0, 0, -5)},
	}}
	svc := NewNotificationService(repo, nil, true)
	svc.now = func() time.Time { return now }

	removed, err := svc.Prune(context.Background(), 30)

	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	require.Len(t, repo.notifications, 1)
	assert.Equal(t, "n2", repo.notifications[0].ID)

	removed, err = svc.Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

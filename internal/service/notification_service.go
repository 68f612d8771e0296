package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/volunhub/volunhub-api/internal/models"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationService is the dispatcher the core pushes typed events to.
// It records each event for its recipient; how and whether anything is
// delivered beyond that is a collaborator concern.
type NotificationService struct {
	repo    notificationRepository
	logger  *zap.Logger
	enabled bool
	now     func() time.Time
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(repo notificationRepository, logger *zap.Logger, enabled bool) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger, enabled: enabled, now: time.Now}
}

// Dispatch records a typed event for its recipient.
func (s *NotificationService) Dispatch(ctx context.Context, event models.Event) error {
	if !s.enabled {
		return nil
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode notification payload")
	}
	notification := &models.Notification{
		RecipientID: event.RecipientID,
		Type:        event.Type,
		Payload:     payload,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record notification")
	}
	s.logger.Info("notification dispatched",
		zap.String("type", string(event.Type)),
		zap.String("recipient_id", event.RecipientID))
	return nil
}

// List returns a recipient's notifications with pagination metadata.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkRead stamps a notification as read for the acting recipient.
func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, notificationID string) error {
	ok, err := s.repo.MarkRead(ctx, notificationID, actor.ID, s.now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// Prune removes notifications older than the retention window.
func (s *NotificationService) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prune notifications")
	}
	if removed > 0 {
		s.logger.Info("notifications pruned", zap.Int64("removed", removed))
	}
	return removed, nil
}

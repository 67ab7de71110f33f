package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type notificationRepository interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// NotificationService serves each user's inbox.
type NotificationService struct {
	notifications notificationRepository
	logger        *zap.Logger
}

// NewNotificationService constructs the notification service.
func NewNotificationService(notifications notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifications: notifications, logger: logger}
}

// InboxRequest filters the inbox listing.
type InboxRequest struct {
	Category string
	Unread   bool
	Page     int
	PageSize int
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor Actor, req InboxRequest) ([]models.NotificationDetail, *models.Pagination, error) {
	filter := models.NotificationFilter{
		UserID:   actor.ID,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.Category != "" {
		category := models.NotificationCategory(strings.ToLower(req.Category))
		switch category {
		case models.NotificationAttendance, models.NotificationCommunication, models.NotificationCitation:
			filter.Category = &category
		default:
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid notification category")
		}
	}
	if req.Unread {
		unread := true
		filter.Unread = &unread
	}

	notifications, total, err := s.notifications.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UnreadCount returns the number of unread notifications for the actor.
func (s *NotificationService) UnreadCount(ctx context.Context, actor Actor) (int, error) {
	count, err := s.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead flips one of the actor's notifications read. Unknown ids and
// other users' notifications both come back not found.
func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, id string) (*models.Notification, error) {
	updated, err := s.notifications.MarkRead(ctx, id, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if updated == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return updated, nil
}

// MarkAllRead flips every unread notification for the actor.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor Actor) (int64, error) {
	affected, err := s.notifications.MarkAllRead(ctx, actor.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return affected, nil
}

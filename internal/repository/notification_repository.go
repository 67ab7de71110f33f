package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/aprendesoft/colegio-api/internal/models"
)

type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, user_id, category, title, body, read, read_at, priority,
	sender_id, student_id, meeting_date, meeting_time, location, created_at`

// CreateTx inserts a notification, usable inside the attendance transaction
// so an aborted roster write leaves no orphan alerts behind.
func (r *NotificationRepository) CreateTx(ctx context.Context, q sqlx.ExtContext, n *models.Notification) (*models.Notification, error) {
	query := `INSERT INTO notifications
			(user_id, category, title, body, priority, sender_id, student_id, meeting_date, meeting_time, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + notificationColumns
	var created models.Notification
	err := sqlx.GetContext(ctx, q, &created, query,
		n.UserID, n.Category, n.Title, n.Body, n.Priority,
		n.SenderID, n.StudentID, n.MeetingDate, n.MeetingTime, n.Location)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return &created, nil
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	return r.CreateTx(ctx, r.db, n)
}

// List pages through a user's inbox, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, int, error) {
	conditions := []string{"n.user_id = $1"}
	args := []interface{}{filter.UserID}
	idx := 2

	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("n.category = $%d", idx))
		args = append(args, *filter.Category)
		idx++
	}
	if filter.Unread != nil && *filter.Unread {
		conditions = append(conditions, "n.read = FALSE")
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM notifications n WHERE %s`, where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	query := fmt.Sprintf(`SELECT n.id, n.user_id, n.category, n.title, n.body, n.read, n.read_at,
			n.priority, n.sender_id, n.student_id, n.meeting_date, n.meeting_time,
			n.location, n.created_at,
			u.first_name || ' ' || u.last_name AS sender_name, u.role AS sender_role
		FROM notifications n
		LEFT JOIN users u ON u.id = n.sender_id
		WHERE %s
		ORDER BY n.created_at DESC
		LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, pageSize, (page-1)*pageSize)

	var notifications []models.NotificationDetail
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, total, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flips one notification read, scoped to the owner so a user cannot
// mark someone else's.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) (*models.Notification, error) {
	query := `UPDATE notifications SET read = TRUE, read_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns
	var updated models.Notification
	if err := r.db.GetContext(ctx, &updated, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return &updated, nil
}

// MarkAllRead flips every unread notification for the user.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE, read_at = NOW() WHERE user_id = $1 AND read = FALSE`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return affected, nil
}

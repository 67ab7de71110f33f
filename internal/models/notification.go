package models

import "time"

// NotificationCategory groups notifications by origin.
type NotificationCategory string

const (
	NotificationAttendance    NotificationCategory = "attendance"
	NotificationCommunication NotificationCategory = "communication"
	NotificationCitation      NotificationCategory = "citation"
)

// NotificationPriority orders notifications for display.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Valid returns true when the priority is a supported value.
func (p NotificationPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Notification is a message delivered to one recipient user. Rows are only
// ever mutated to flip the read flag.
type Notification struct {
	ID          string               `db:"id" json:"id"`
	UserID      string               `db:"user_id" json:"user_id"`
	Category    NotificationCategory `db:"category" json:"category"`
	Title       string               `db:"title" json:"title"`
	Body        string               `db:"body" json:"body"`
	Read        bool                 `db:"read" json:"read"`
	ReadAt      *time.Time           `db:"read_at" json:"read_at,omitempty"`
	Priority    NotificationPriority `db:"priority" json:"priority"`
	SenderID    *string              `db:"sender_id" json:"sender_id,omitempty"`
	StudentID   *string              `db:"student_id" json:"student_id,omitempty"`
	MeetingDate *time.Time           `db:"meeting_date" json:"meeting_date,omitempty"`
	MeetingTime *string              `db:"meeting_time" json:"meeting_time,omitempty"`
	Location    *string              `db:"location" json:"location,omitempty"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
}

// NotificationFilter scopes inbox listing.
type NotificationFilter struct {
	UserID   string
	Category *NotificationCategory
	Unread   *bool
	Page     int
	PageSize int
}

// NotificationDetail joins a notification with its sender identity.
type NotificationDetail struct {
	Notification
	SenderName *string   `db:"sender_name" json:"sender_name,omitempty"`
	SenderRole *UserRole `db:"sender_role" json:"sender_role,omitempty"`
}

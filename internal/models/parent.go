package models

import "time"

// ParentLink authorizes a parent account to view and act on a student's
// records. Final shape: at most one parent per student, a parent may link to
// many students.
type ParentLink struct {
	ID           string  `db:"id" json:"id"`
	ParentID     string  `db:"parent_id" json:"parent_id"`
	StudentID    string  `db:"student_id" json:"student_id"`
	Relationship *string `db:"relationship" json:"relationship,omitempty"`
}

// InvitationStatus tracks the parent invitation lifecycle.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// ParentInvitation is an emailed code a parent redeems to create an account
// linked to a student.
type ParentInvitation struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	ParentEmail string           `db:"parent_email" json:"parent_email"`
	Code        string           `db:"code" json:"code"`
	Status      InvitationStatus `db:"status" json:"status"`
	SentAt      time.Time        `db:"sent_at" json:"sent_at"`
	ExpiresAt   *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
}

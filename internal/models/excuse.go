package models

import "time"

// ExcuseStatus represents the excuse request state machine. Transitions are
// one-way: pending may move to approved or rejected, both terminal.
type ExcuseStatus string

const (
	ExcuseStatusPending  ExcuseStatus = "pending"
	ExcuseStatusApproved ExcuseStatus = "approved"
	ExcuseStatusRejected ExcuseStatus = "rejected"
)

// Valid returns true when the status is a supported value.
func (s ExcuseStatus) Valid() bool {
	switch s {
	case ExcuseStatusPending, ExcuseStatusApproved, ExcuseStatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions.
func (s ExcuseStatus) Terminal() bool {
	return s == ExcuseStatusApproved || s == ExcuseStatusRejected
}

// ExcuseRequest is a petition to retroactively mark a date range excused.
type ExcuseRequest struct {
	ID          string       `db:"id" json:"id"`
	StudentID   string       `db:"student_id" json:"student_id"`
	CourseID    string       `db:"course_id" json:"course_id"`
	SubjectID   *string      `db:"subject_id" json:"subject_id,omitempty"`
	StartDate   time.Time    `db:"start_date" json:"start_date"`
	EndDate     time.Time    `db:"end_date" json:"end_date"`
	Motive      string       `db:"motive" json:"motive"`
	Attachment  *string      `db:"attachment" json:"attachment,omitempty"`
	Status      ExcuseStatus `db:"status" json:"status"`
	ReviewNotes *string      `db:"review_notes" json:"review_notes,omitempty"`
	RequestedBy string       `db:"requested_by" json:"requested_by"`
	ReviewedBy  *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// ExcuseFilter scopes listing per the caller's role.
type ExcuseFilter struct {
	StudentID  string
	StudentIDs []string
	CourseID   string
	TeacherID  string
	Status     *ExcuseStatus
	Page       int
	PageSize   int
}

package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's status for one class-day. At most one row
// exists per (student, course, subject, date); a NULL subject is its own key
// value.
type AttendanceRecord struct {
	ID                string           `db:"id" json:"id"`
	StudentID         string           `db:"student_id" json:"student_id"`
	CourseID          string           `db:"course_id" json:"course_id"`
	SubjectID         *string          `db:"subject_id" json:"subject_id,omitempty"`
	Date              time.Time        `db:"date" json:"date"`
	Status            AttendanceStatus `db:"status" json:"status"`
	ArrivalTime       *string          `db:"arrival_time" json:"arrival_time,omitempty"`
	Notes             *string          `db:"notes" json:"notes,omitempty"`
	Justification     *string          `db:"justification" json:"justification,omitempty"`
	JustificationFile *string          `db:"justification_file" json:"justification_file,omitempty"`
	RecordedBy        string           `db:"recorded_by" json:"recorded_by"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail joins the record with student and recorder identity.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentFirstName string  `db:"student_first_name" json:"student_first_name"`
	StudentLastName  string  `db:"student_last_name" json:"student_last_name"`
	StudentEmail     string  `db:"student_email" json:"student_email"`
	RecorderName     *string `db:"recorder_name" json:"recorder_name,omitempty"`
}

// AttendanceUpdate is a partial edit; only non-nil fields change.
type AttendanceUpdate struct {
	Status        *AttendanceStatus
	ArrivalTime   *string
	Notes         *string
	Justification *string
}

// AttendanceFilter scopes history queries.
type AttendanceFilter struct {
	StudentID string
	CourseID  string
	SubjectID *string
	DateFrom  *time.Time
	DateTo    *time.Time
	Status    *AttendanceStatus
}

// AttendanceStats aggregates a set of records into the derived statistics
// returned with a student history.
type AttendanceStats struct {
	TotalSessions int     `json:"total_sessions"`
	Present       int     `json:"present"`
	Absent        int     `json:"absent"`
	Late          int     `json:"late"`
	Excused       int     `json:"excused"`
	Percent       float64 `json:"percent"`
}

// RosterEntry is one line of the take-roll view: an enrolled student merged
// with any existing record for the date. Unrecorded students default to a
// non-persisted "present" placeholder.
type RosterEntry struct {
	StudentID   string           `json:"student_id"`
	FirstName   string           `json:"first_name"`
	LastName    string           `json:"last_name"`
	Status      AttendanceStatus `json:"status"`
	Recorded    bool             `json:"recorded"`
	RecordID    *string          `json:"record_id,omitempty"`
	ArrivalTime *string          `json:"arrival_time,omitempty"`
	Notes       *string          `json:"notes,omitempty"`
}

// CourseDayBreakdown aggregates one course day by status.
type CourseDayBreakdown struct {
	Date    time.Time `db:"date" json:"date"`
	Present int       `db:"present" json:"present"`
	Absent  int       `db:"absent" json:"absent"`
	Late    int       `db:"late" json:"late"`
	Excused int       `db:"excused" json:"excused"`
	Total   int       `db:"total" json:"total"`
}

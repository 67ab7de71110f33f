package models

import "time"

// PerformanceBucket classifies a student's attendance percentage.
type PerformanceBucket string

const (
	BucketGood    PerformanceBucket = "good"
	BucketRegular PerformanceBucket = "regular"
	BucketPoor    PerformanceBucket = "poor"
)

// StudentReportRow is one student's aggregate line in a course report.
type StudentReportRow struct {
	StudentID string            `db:"student_id" json:"student_id"`
	FirstName string            `db:"first_name" json:"first_name"`
	LastName  string            `db:"last_name" json:"last_name"`
	Present   int               `db:"present" json:"present"`
	Absent    int               `db:"absent" json:"absent"`
	Late      int               `db:"late" json:"late"`
	Excused   int               `db:"excused" json:"excused"`
	Total     int               `db:"total" json:"total"`
	Percent   float64           `db:"-" json:"percent"`
	Bucket    PerformanceBucket `db:"-" json:"bucket"`
}

// CourseReport is the full aggregate a teacher or admin pulls for a course
// over a date range: one line per enrolled student plus a by-status breakdown
// of every recorded day.
type CourseReport struct {
	CourseID    string               `json:"course_id"`
	CourseName  string               `json:"course_name"`
	SubjectID   *string              `json:"subject_id,omitempty"`
	DateFrom    time.Time            `json:"date_from"`
	DateTo      time.Time            `json:"date_to"`
	Students    []StudentReportRow   `json:"students"`
	Days        []CourseDayBreakdown `json:"days"`
	AveragePct  float64              `json:"average_percent"`
	BelowTarget int                  `json:"below_target"`
	GeneratedAt time.Time            `json:"generated_at"`
}

package models

import "time"

// CourseGrade enumerates the named grade levels a course belongs to.
type CourseGrade string

const (
	GradePrejardin  CourseGrade = "prejardin"
	GradeJardin     CourseGrade = "jardin"
	GradePreescolar CourseGrade = "preescolar"
	GradePrimero    CourseGrade = "primero"
	GradeSegundo    CourseGrade = "segundo"
	GradeTercero    CourseGrade = "tercero"
	GradeCuarto     CourseGrade = "cuarto"
	GradeQuinto     CourseGrade = "quinto"
)

// Valid returns true when the grade is a supported value.
func (g CourseGrade) Valid() bool {
	switch g {
	case GradePrejardin, GradeJardin, GradePreescolar, GradePrimero,
		GradeSegundo, GradeTercero, GradeCuarto, GradeQuinto:
		return true
	default:
		return false
	}
}

// Course represents a course group with an assigned homeroom teacher.
type Course struct {
	ID        string      `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Grade     CourseGrade `db:"grade" json:"grade"`
	Section   string      `db:"section" json:"section"`
	Year      int         `db:"year" json:"year"`
	TeacherID *string     `db:"teacher_id" json:"teacher_id,omitempty"`
	Active    bool        `db:"active" json:"active"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// Label renders the course for notification wording, e.g. "primero A - Matemáticas".
func (c *Course) Label() string {
	return string(c.Grade) + " " + c.Section + " - " + c.Name
}

// Subject is a teaching subject attached to a course.
type Subject struct {
	ID        string  `db:"id" json:"id"`
	CourseID  string  `db:"course_id" json:"course_id"`
	Name      string  `db:"name" json:"name"`
	Code      string  `db:"code" json:"code"`
	TeacherID *string `db:"teacher_id" json:"teacher_id,omitempty"`
}

// EnrollmentStatus marks whether an enrollment is active.
type EnrollmentStatus string

const (
	EnrollmentActive   EnrollmentStatus = "active"
	EnrollmentInactive EnrollmentStatus = "inactive"
)

// Enrollment links a student to a course.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Status     EnrollmentStatus `db:"status" json:"status"`
}

// EnrolledStudent is an enrollment joined with student identity, used by the
// take-roll view.
type EnrolledStudent struct {
	StudentID string `db:"student_id" json:"student_id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Email     string `db:"email" json:"email"`
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aprendesoft/colegio-api/internal/models"
)

type EnrollmentRepository struct {
	db *sqlx.DB
}

func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ActiveStudents returns the course roster ordered by surname then name, the
// order teachers call the roll in.
func (r *EnrollmentRepository) ActiveStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error) {
	var students []models.EnrolledStudent
	query := `SELECT u.id AS student_id, u.first_name, u.last_name, u.email
		FROM enrollments e
		JOIN users u ON u.id = e.student_id
		WHERE e.course_id = $1 AND e.status = 'active' AND u.active = TRUE
		ORDER BY u.last_name, u.first_name`
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// IsEnrolled reports whether the student has an active enrollment in the
// course.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	var enrolled bool
	query := `SELECT EXISTS (
		SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = 'active'
	)`
	if err := r.db.GetContext(ctx, &enrolled, query, studentID, courseID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}

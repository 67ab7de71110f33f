package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aprendesoft/colegio-api/internal/models"
)

type CourseRepository struct {
	db *sqlx.DB
}

func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var c models.Course
	query := `SELECT id, name, grade, section, teacher_id, year, active, created_at, updated_at
		FROM courses WHERE id = $1`
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &c, nil
}

func (r *CourseRepository) FindSubject(ctx context.Context, id string) (*models.Subject, error) {
	var s models.Subject
	query := `SELECT id, course_id, name, code, teacher_id FROM subjects WHERE id = $1`
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find subject by id: %w", err)
	}
	return &s, nil
}

// TeacherOwnsCourse reports whether the teacher directs the course or teaches
// at least one of its subjects.
func (r *CourseRepository) TeacherOwnsCourse(ctx context.Context, teacherID, courseID string) (bool, error) {
	var owns bool
	query := `SELECT EXISTS (
		SELECT 1 FROM courses WHERE id = $1 AND teacher_id = $2
		UNION
		SELECT 1 FROM subjects WHERE course_id = $1 AND teacher_id = $2
	)`
	if err := r.db.GetContext(ctx, &owns, query, courseID, teacherID); err != nil {
		return false, fmt.Errorf("check course ownership: %w", err)
	}
	return owns, nil
}

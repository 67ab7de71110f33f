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

type ExcuseRepository struct {
	db *sqlx.DB
}

func NewExcuseRepository(db *sqlx.DB) *ExcuseRepository {
	return &ExcuseRepository{db: db}
}

const excuseColumns = `id, student_id, course_id, subject_id, start_date, end_date, motive,
	attachment, status, review_notes, requested_by, reviewed_by, created_at, updated_at`

func (r *ExcuseRepository) Create(ctx context.Context, e *models.ExcuseRequest) (*models.ExcuseRequest, error) {
	query := `INSERT INTO excuse_requests
			(student_id, course_id, subject_id, start_date, end_date, motive, attachment, status, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
		RETURNING ` + excuseColumns
	var created models.ExcuseRequest
	err := r.db.GetContext(ctx, &created, query,
		e.StudentID, e.CourseID, e.SubjectID, e.StartDate, e.EndDate,
		e.Motive, e.Attachment, e.RequestedBy)
	if err != nil {
		return nil, fmt.Errorf("create excuse request: %w", err)
	}
	return &created, nil
}

func (r *ExcuseRepository) FindByID(ctx context.Context, id string) (*models.ExcuseRequest, error) {
	var e models.ExcuseRequest
	query := `SELECT ` + excuseColumns + ` FROM excuse_requests WHERE id = $1`
	if err := r.db.GetContext(ctx, &e, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find excuse request: %w", err)
	}
	return &e, nil
}

// DecideTx resolves a pending request. The WHERE clause guards the one-way
// transition: a request already decided is not touched and the caller sees
// zero rows.
func (r *ExcuseRepository) DecideTx(ctx context.Context, q sqlx.ExtContext, id string, status models.ExcuseStatus, reviewNotes *string, reviewerID string) (*models.ExcuseRequest, error) {
	query := `UPDATE excuse_requests
		SET status = $2, review_notes = $3, reviewed_by = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + excuseColumns
	var updated models.ExcuseRequest
	if err := sqlx.GetContext(ctx, q, &updated, query, id, status, reviewNotes, reviewerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("decide excuse request: %w", err)
	}
	return &updated, nil
}

// List pages through excuse requests scoped by the filter, newest first.
func (r *ExcuseRepository) List(ctx context.Context, filter models.ExcuseFilter) ([]models.ExcuseRequest, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	idx := 1

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", idx))
		args = append(args, filter.StudentID)
		idx++
	}
	if len(filter.StudentIDs) > 0 {
		placeholders := make([]string, len(filter.StudentIDs))
		for i, id := range filter.StudentIDs {
			placeholders[i] = fmt.Sprintf("$%d", idx)
			args = append(args, id)
			idx++
		}
		conditions = append(conditions, fmt.Sprintf("e.student_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", idx))
		args = append(args, filter.CourseID)
		idx++
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf(`e.course_id IN (
			SELECT id FROM courses WHERE teacher_id = $%d
			UNION SELECT course_id FROM subjects WHERE teacher_id = $%d)`, idx, idx))
		args = append(args, filter.TeacherID)
		idx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", idx))
		args = append(args, *filter.Status)
		idx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM excuse_requests e WHERE %s`, where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count excuse requests: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.subject_id, e.start_date,
			e.end_date, e.motive, e.attachment, e.status, e.review_notes,
			e.requested_by, e.reviewed_by, e.created_at, e.updated_at
		FROM excuse_requests e
		WHERE %s
		ORDER BY e.created_at DESC
		LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, pageSize, (page-1)*pageSize)

	var requests []models.ExcuseRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list excuse requests: %w", err)
	}
	return requests, total, nil
}

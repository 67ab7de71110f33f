package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aprendesoft/colegio-api/internal/models"
)

type PolicyRepository struct {
	db *sqlx.DB
}

func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

const policyColumns = `id, course_id, notice_threshold, alert_threshold, minimum_percent,
	notify_parents, notify_every_absence, created_at, updated_at`

// FindByCourse returns the course policy, or nil when the course still runs
// on defaults.
func (r *PolicyRepository) FindByCourse(ctx context.Context, courseID string) (*models.AttendancePolicy, error) {
	var p models.AttendancePolicy
	query := `SELECT ` + policyColumns + ` FROM attendance_policies WHERE course_id = $1`
	if err := r.db.GetContext(ctx, &p, query, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attendance policy: %w", err)
	}
	return &p, nil
}

// Upsert writes the course policy, creating the row on first configuration.
func (r *PolicyRepository) Upsert(ctx context.Context, p *models.AttendancePolicy) (*models.AttendancePolicy, error) {
	query := `INSERT INTO attendance_policies
			(course_id, notice_threshold, alert_threshold, minimum_percent, notify_parents, notify_every_absence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (course_id) DO UPDATE SET
			notice_threshold = EXCLUDED.notice_threshold,
			alert_threshold = EXCLUDED.alert_threshold,
			minimum_percent = EXCLUDED.minimum_percent,
			notify_parents = EXCLUDED.notify_parents,
			notify_every_absence = EXCLUDED.notify_every_absence,
			updated_at = NOW()
		RETURNING ` + policyColumns
	var saved models.AttendancePolicy
	err := r.db.GetContext(ctx, &saved, query,
		p.CourseID, p.NoticeThreshold, p.AlertThreshold, p.MinimumPercent,
		p.NotifyParents, p.NotifyEveryAbsence)
	if err != nil {
		return nil, fmt.Errorf("upsert attendance policy: %w", err)
	}
	return &saved, nil
}

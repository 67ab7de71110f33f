package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aprendesoft/colegio-api/internal/models"
)

type AttendanceRepository struct {
	db *sqlx.DB
}

func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// UpsertTx writes one attendance record, overwriting any existing row for the
// same (student, course, subject, date) key. A NULL subject collapses to the
// empty string in the conflict target so daily and per-subject records never
// collide.
func (r *AttendanceRepository) UpsertTx(ctx context.Context, q sqlx.ExtContext, rec *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	query := `INSERT INTO attendance_records
			(student_id, course_id, subject_id, date, status, arrival_time, notes, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, course_id, (COALESCE(subject_id::text, '')), date)
		DO UPDATE SET
			status = EXCLUDED.status,
			arrival_time = EXCLUDED.arrival_time,
			notes = EXCLUDED.notes,
			recorded_by = EXCLUDED.recorded_by,
			updated_at = NOW()
		RETURNING id, student_id, course_id, subject_id, date, status, arrival_time, notes,
			justification, justification_file, recorded_by, created_at, updated_at`
	var saved models.AttendanceRecord
	err := sqlx.GetContext(ctx, q, &saved, query,
		rec.StudentID, rec.CourseID, rec.SubjectID, rec.Date,
		rec.Status, rec.ArrivalTime, rec.Notes, rec.RecordedBy)
	if err != nil {
		return nil, fmt.Errorf("upsert attendance record: %w", err)
	}
	return &saved, nil
}

// ListForDateTx returns the raw records for one course day, keyed lookups for
// the roster merge and the re-submission diff.
func (r *AttendanceRepository) ListForDateTx(ctx context.Context, q sqlx.ExtContext, courseID string, subjectID *string, date time.Time) ([]models.AttendanceRecord, error) {
	query := `SELECT id, student_id, course_id, subject_id, date, status, arrival_time, notes,
			justification, justification_file, recorded_by, created_at, updated_at
		FROM attendance_records
		WHERE course_id = $1 AND COALESCE(subject_id::text, '') = COALESCE($2, '') AND date = $3`
	var records []models.AttendanceRecord
	if err := sqlx.SelectContext(ctx, q, &records, query, courseID, subjectID, date); err != nil {
		return nil, fmt.Errorf("list attendance for date: %w", err)
	}
	return records, nil
}

// ListForDate is the non-transactional variant used by the take-roll view.
func (r *AttendanceRepository) ListForDate(ctx context.Context, courseID string, subjectID *string, date time.Time) ([]models.AttendanceRecord, error) {
	return r.ListForDateTx(ctx, r.db, courseID, subjectID, date)
}

// CountAbsencesTx counts the student's lifetime unexcused absences in the
// course, across all subjects. Run inside the same transaction as the upsert
// so the count the notifier sees includes the row just written.
func (r *AttendanceRepository) CountAbsencesTx(ctx context.Context, q sqlx.ExtContext, studentID, courseID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM attendance_records
		WHERE student_id = $1 AND course_id = $2 AND status = 'absent'`
	if err := sqlx.GetContext(ctx, q, &count, query, studentID, courseID); err != nil {
		return 0, fmt.Errorf("count absences: %w", err)
	}
	return count, nil
}

func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecordDetail, error) {
	var rec models.AttendanceRecordDetail
	query := `SELECT a.id, a.student_id, a.course_id, a.subject_id, a.date, a.status,
			a.arrival_time, a.notes, a.justification, a.justification_file,
			a.recorded_by, a.created_at, a.updated_at,
			s.first_name AS student_first_name, s.last_name AS student_last_name,
			s.email AS student_email,
			t.first_name || ' ' || t.last_name AS recorder_name
		FROM attendance_records a
		JOIN users s ON s.id = a.student_id
		LEFT JOIN users t ON t.id = a.recorded_by
		WHERE a.id = $1`
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &rec, nil
}

// Update applies a partial edit to one record. Only non-nil fields change.
func (r *AttendanceRepository) Update(ctx context.Context, id string, upd models.AttendanceUpdate) (*models.AttendanceRecord, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{}
	idx := 1

	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if upd.ArrivalTime != nil {
		sets = append(sets, fmt.Sprintf("arrival_time = $%d", idx))
		args = append(args, *upd.ArrivalTime)
		idx++
	}
	if upd.Notes != nil {
		sets = append(sets, fmt.Sprintf("notes = $%d", idx))
		args = append(args, *upd.Notes)
		idx++
	}
	if upd.Justification != nil {
		sets = append(sets, fmt.Sprintf("justification = $%d", idx))
		args = append(args, *upd.Justification)
		idx++
	}

	query := fmt.Sprintf(`UPDATE attendance_records SET %s WHERE id = $%d
		RETURNING id, student_id, course_id, subject_id, date, status, arrival_time, notes,
			justification, justification_file, recorded_by, created_at, updated_at`,
		strings.Join(sets, ", "), idx)
	args = append(args, id)

	var updated models.AttendanceRecord
	if err := r.db.GetContext(ctx, &updated, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update attendance record: %w", err)
	}
	return &updated, nil
}

// Justify flips the record to excused and stores the inline justification.
func (r *AttendanceRepository) Justify(ctx context.Context, id, justification string, filePath *string) (*models.AttendanceRecord, error) {
	query := `UPDATE attendance_records
		SET status = 'excused', justification = $2, justification_file = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, student_id, course_id, subject_id, date, status, arrival_time, notes,
			justification, justification_file, recorded_by, created_at, updated_at`
	var updated models.AttendanceRecord
	if err := r.db.GetContext(ctx, &updated, query, id, justification, filePath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("justify attendance record: %w", err)
	}
	return &updated, nil
}

// UpsertExcusedTx writes an excused record for one day, creating the row if
// the day was never recorded and overwriting whatever status it held if it
// was. Used when an excuse request is approved.
func (r *AttendanceRepository) UpsertExcusedTx(ctx context.Context, q sqlx.ExtContext, studentID, courseID string, subjectID *string, date time.Time, justification, recordedBy string) (*models.AttendanceRecord, error) {
	query := `INSERT INTO attendance_records
			(student_id, course_id, subject_id, date, status, justification, recorded_by)
		VALUES ($1, $2, $3, $4, 'excused', $5, $6)
		ON CONFLICT (student_id, course_id, (COALESCE(subject_id::text, '')), date)
		DO UPDATE SET
			status = 'excused',
			justification = EXCLUDED.justification,
			recorded_by = EXCLUDED.recorded_by,
			updated_at = NOW()
		RETURNING id, student_id, course_id, subject_id, date, status, arrival_time, notes,
			justification, justification_file, recorded_by, created_at, updated_at`
	var saved models.AttendanceRecord
	err := sqlx.GetContext(ctx, q, &saved, query,
		studentID, courseID, subjectID, date, justification, recordedBy)
	if err != nil {
		return nil, fmt.Errorf("upsert excused record: %w", err)
	}
	return &saved, nil
}

// ListByCourseDate returns the day's records with student identity, ordered
// by surname.
func (r *AttendanceRepository) ListByCourseDate(ctx context.Context, courseID string, subjectID *string, date time.Time) ([]models.AttendanceRecordDetail, error) {
	query := `SELECT a.id, a.student_id, a.course_id, a.subject_id, a.date, a.status,
			a.arrival_time, a.notes, a.justification, a.justification_file,
			a.recorded_by, a.created_at, a.updated_at,
			s.first_name AS student_first_name, s.last_name AS student_last_name,
			s.email AS student_email,
			t.first_name || ' ' || t.last_name AS recorder_name
		FROM attendance_records a
		JOIN users s ON s.id = a.student_id
		LEFT JOIN users t ON t.id = a.recorded_by
		WHERE a.course_id = $1 AND COALESCE(a.subject_id::text, '') = COALESCE($2, '') AND a.date = $3
		ORDER BY s.last_name, s.first_name`
	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, courseID, subjectID, date); err != nil {
		return nil, fmt.Errorf("list attendance by course and date: %w", err)
	}
	return records, nil
}

// StudentHistory returns a student's records filtered by course, subject,
// date range and status, newest first.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error) {
	conditions := []string{"a.student_id = $1"}
	args := []interface{}{filter.StudentID}
	idx := 2

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("a.course_id = $%d", idx))
		args = append(args, filter.CourseID)
		idx++
	}
	if filter.SubjectID != nil {
		conditions = append(conditions, fmt.Sprintf("COALESCE(a.subject_id::text, '') = $%d", idx))
		args = append(args, *filter.SubjectID)
		idx++
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", idx))
		args = append(args, *filter.DateFrom)
		idx++
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", idx))
		args = append(args, *filter.DateTo)
		idx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", idx))
		args = append(args, *filter.Status)
		idx++
	}

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.course_id, a.subject_id, a.date, a.status,
			a.arrival_time, a.notes, a.justification, a.justification_file,
			a.recorded_by, a.created_at, a.updated_at,
			s.first_name AS student_first_name, s.last_name AS student_last_name,
			s.email AS student_email,
			t.first_name || ' ' || t.last_name AS recorder_name
		FROM attendance_records a
		JOIN users s ON s.id = a.student_id
		LEFT JOIN users t ON t.id = a.recorded_by
		WHERE %s
		ORDER BY a.date DESC`, strings.Join(conditions, " AND "))

	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list student history: %w", err)
	}
	return records, nil
}

// CourseReportRows aggregates per-student counts for a course over a date
// range, optionally narrowed to one subject. Students with no records in the
// range still appear with zeros.
func (r *AttendanceRepository) CourseReportRows(ctx context.Context, courseID string, subjectID *string, from, to time.Time) ([]models.StudentReportRow, error) {
	join := ` LEFT JOIN attendance_records a
			ON a.student_id = u.id AND a.course_id = e.course_id
			AND a.date BETWEEN $2 AND $3`
	args := []interface{}{courseID, from, to}
	if subjectID != nil {
		join += ` AND a.subject_id = $4`
		args = append(args, *subjectID)
	}
	query := `SELECT u.id AS student_id, u.first_name, u.last_name,
			COUNT(*) FILTER (WHERE a.status = 'present') AS present,
			COUNT(*) FILTER (WHERE a.status = 'absent') AS absent,
			COUNT(*) FILTER (WHERE a.status = 'late') AS late,
			COUNT(*) FILTER (WHERE a.status = 'excused') AS excused,
			COUNT(a.id) AS total
		FROM enrollments e
		JOIN users u ON u.id = e.student_id` + join + `
		WHERE e.course_id = $1 AND e.status = 'active'
		GROUP BY u.id, u.first_name, u.last_name
		ORDER BY u.last_name, u.first_name`
	var rows []models.StudentReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("course report rows: %w", err)
	}
	return rows, nil
}

// CourseDayRows aggregates recorded statuses per class day for a course over
// a date range, optionally narrowed to one subject. Days without records do
// not appear.
func (r *AttendanceRepository) CourseDayRows(ctx context.Context, courseID string, subjectID *string, from, to time.Time) ([]models.CourseDayBreakdown, error) {
	query := `SELECT a.date,
			COUNT(*) FILTER (WHERE a.status = 'present') AS present,
			COUNT(*) FILTER (WHERE a.status = 'absent') AS absent,
			COUNT(*) FILTER (WHERE a.status = 'late') AS late,
			COUNT(*) FILTER (WHERE a.status = 'excused') AS excused,
			COUNT(*) AS total
		FROM attendance_records a
		WHERE a.course_id = $1 AND a.date BETWEEN $2 AND $3`
	args := []interface{}{courseID, from, to}
	if subjectID != nil {
		query += ` AND a.subject_id = $4`
		args = append(args, *subjectID)
	}
	query += ` GROUP BY a.date ORDER BY a.date`
	var days []models.CourseDayBreakdown
	if err := r.db.SelectContext(ctx, &days, query, args...); err != nil {
		return nil, fmt.Errorf("course day rows: %w", err)
	}
	return days, nil
}

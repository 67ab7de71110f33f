package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprendesoft/colegio-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var attendanceColumns = []string{
	"id", "student_id", "course_id", "subject_id", "date", "status", "arrival_time", "notes",
	"justification", "justification_file", "recorded_by", "created_at", "updated_at",
}

func attendanceRow(id, studentID string, status models.AttendanceStatus, date time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(attendanceColumns).
		AddRow(id, studentID, "course-1", nil, date, status, nil, nil, nil, nil, "teacher-1", now, now)
}

func TestAttendanceRepositoryUpsertTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO attendance_records`).
		WithArgs("student-1", "course-1", nil, date, models.AttendanceStatusAbsent, nil, nil, "teacher-1").
		WillReturnRows(attendanceRow("rec-1", "student-1", models.AttendanceStatusAbsent, date))

	saved, err := repo.UpsertTx(context.Background(), db, &models.AttendanceRecord{
		StudentID:  "student-1",
		CourseID:   "course-1",
		Date:       date,
		Status:     models.AttendanceStatusAbsent,
		RecordedBy: "teacher-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", saved.ID)
	assert.Equal(t, models.AttendanceStatusAbsent, saved.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountAbsences(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM attendance_records`).
		WithArgs("student-1", "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountAbsencesTx(context.Background(), db, "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(`FROM attendance_records a`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(attendanceColumns))

	rec, err := repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpdateStatusOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	status := models.AttendanceStatusLate

	mock.ExpectQuery(`UPDATE attendance_records SET updated_at = NOW\(\), status = \$1 WHERE id = \$2`).
		WithArgs(status, "rec-1").
		WillReturnRows(attendanceRow("rec-1", "student-1", status, date))

	updated, err := repo.Update(context.Background(), "rec-1", models.AttendanceUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, status, updated.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpsertExcusedTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO attendance_records`).
		WithArgs("student-1", "course-1", nil, date, "Incapacidad médica", "teacher-1").
		WillReturnRows(attendanceRow("rec-1", "student-1", models.AttendanceStatusExcused, date))

	saved, err := repo.UpsertExcusedTx(context.Background(), db,
		"student-1", "course-1", nil, date, "Incapacidad médica", "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusExcused, saved.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCourseReportRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"student_id", "first_name", "last_name", "present", "absent", "late", "excused", "total"}).
		AddRow("s1", "Ana", "García", 8, 2, 0, 0, 10).
		AddRow("s2", "Luis", "Pérez", 0, 0, 0, 0, 0)
	mock.ExpectQuery(`FROM enrollments e`).
		WithArgs("course-1", from, to).
		WillReturnRows(rows)

	report, err := repo.CourseReportRows(context.Background(), "course-1", nil, from, to)
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, 8, report[0].Present)
	assert.Equal(t, 0, report[1].Total, "students without records still appear")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCourseReportRowsSubjectScoped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	subjectID := "subject-1"

	mock.ExpectQuery(`AND a\.subject_id = \$4`).
		WithArgs("course-1", from, to, subjectID).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "first_name", "last_name", "present", "absent", "late", "excused", "total"}))

	_, err := repo.CourseReportRows(context.Background(), "course-1", &subjectID, from, to)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCourseDayRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"date", "present", "absent", "late", "excused", "total"}).
		AddRow(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 18, 2, 0, 0, 20).
		AddRow(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), 17, 1, 2, 0, 20)
	mock.ExpectQuery(`BETWEEN \$2 AND \$3 GROUP BY a\.date ORDER BY a\.date`).
		WithArgs("course-1", from, to).
		WillReturnRows(rows)

	days, err := repo.CourseDayRows(context.Background(), "course-1", nil, from, to)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, 2, days[0].Absent)
	assert.Equal(t, 2, days[1].Late)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentHistoryFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	status := models.AttendanceStatusAbsent

	detailColumns := append(append([]string{}, attendanceColumns...),
		"student_first_name", "student_last_name", "student_email", "recorder_name")
	now := time.Now()
	rows := sqlmock.NewRows(detailColumns).
		AddRow("rec-1", "student-1", "course-1", nil, now, status, nil, nil, nil, nil,
			"teacher-1", now, now, "Ana", "García", "ana@example.com", "Pedro Ruiz")

	mock.ExpectQuery(`a\.student_id = \$1 AND a\.course_id = \$2 AND a\.status = \$3`).
		WithArgs("student-1", "course-1", status).
		WillReturnRows(rows)

	records, err := repo.StudentHistory(context.Background(), models.AttendanceFilter{
		StudentID: "student-1",
		CourseID:  "course-1",
		Status:    &status,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Ana", records[0].StudentFirstName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprendesoft/colegio-api/internal/models"
)

var excuseTestColumns = []string{
	"id", "student_id", "course_id", "subject_id", "start_date", "end_date", "motive",
	"attachment", "status", "review_notes", "requested_by", "reviewed_by", "created_at", "updated_at",
}

func excuseRow(id string, status models.ExcuseStatus, start, end time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(excuseTestColumns).
		AddRow(id, "student-1", "course-1", nil, start, end, "Incapacidad médica",
			nil, status, nil, "parent-1", nil, now, now)
}

func TestExcuseRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExcuseRepository(db)
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)

	mock.ExpectQuery(`INSERT INTO excuse_requests`).
		WithArgs("student-1", "course-1", nil, start, end, "Incapacidad médica", nil, "parent-1").
		WillReturnRows(excuseRow("excuse-1", models.ExcuseStatusPending, start, end))

	created, err := repo.Create(context.Background(), &models.ExcuseRequest{
		StudentID:   "student-1",
		CourseID:    "course-1",
		StartDate:   start,
		EndDate:     end,
		Motive:      "Incapacidad médica",
		RequestedBy: "parent-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "excuse-1", created.ID)
	assert.Equal(t, models.ExcuseStatusPending, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExcuseRepositoryDecideTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExcuseRepository(db)
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE excuse_requests SET status = \$2.+WHERE id = \$1 AND status = 'pending'`).
		WithArgs("excuse-1", models.ExcuseStatusApproved, nil, "teacher-1").
		WillReturnRows(excuseRow("excuse-1", models.ExcuseStatusApproved, start, start))

	decided, err := repo.DecideTx(context.Background(), db, "excuse-1", models.ExcuseStatusApproved, nil, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExcuseStatusApproved, decided.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExcuseRepositoryDecideTxAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExcuseRepository(db)

	mock.ExpectQuery(`UPDATE excuse_requests SET status = \$2`).
		WithArgs("excuse-1", models.ExcuseStatusRejected, nil, "teacher-1").
		WillReturnRows(sqlmock.NewRows(excuseTestColumns))

	decided, err := repo.DecideTx(context.Background(), db, "excuse-1", models.ExcuseStatusRejected, nil, "teacher-1")
	require.NoError(t, err)
	assert.Nil(t, decided, "the pending guard leaves decided requests untouched")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExcuseRepositoryListByStudents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExcuseRepository(db)
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM excuse_requests e WHERE 1=1 AND e\.student_id IN \(\$1, \$2\)`).
		WithArgs("s1", "s2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM excuse_requests e WHERE 1=1 AND e\.student_id IN \(\$1, \$2\) ORDER BY e\.created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("s1", "s2", 20, 0).
		WillReturnRows(excuseRow("excuse-1", models.ExcuseStatusPending, start, start))

	requests, total, err := repo.List(context.Background(), models.ExcuseFilter{
		StudentIDs: []string{"s1", "s2"},
	})
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExcuseRepositoryListTeacherScope(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExcuseRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM excuse_requests e WHERE 1=1 AND e\.course_id IN \(`).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM excuse_requests e WHERE 1=1 AND e\.course_id IN \(`).
		WithArgs("teacher-1", 20, 0).
		WillReturnRows(sqlmock.NewRows(excuseTestColumns))

	requests, total, err := repo.List(context.Background(), models.ExcuseFilter{TeacherID: "teacher-1"})
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

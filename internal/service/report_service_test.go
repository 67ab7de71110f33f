package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
	"github.com/aprendesoft/colegio-api/pkg/config"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type mockReportReader struct {
	rows        []models.StudentReportRow
	days        []models.CourseDayBreakdown
	lastSubject *string
}

func (m *mockReportReader) CourseReportRows(ctx context.Context, courseID string, subjectID *string, from, to time.Time) ([]models.StudentReportRow, error) {
	m.lastSubject = subjectID
	return m.rows, nil
}

func (m *mockReportReader) CourseDayRows(ctx context.Context, courseID string, subjectID *string, from, to time.Time) ([]models.CourseDayBreakdown, error) {
	return m.days, nil
}

func newReportFixture(rows []models.StudentReportRow) (*ReportService, *mockReportReader) {
	courses := &mockCourseRepo{
		courses: map[string]*models.Course{
			testCourseID: {ID: testCourseID, Name: "Matemáticas", Grade: models.GradePrimero, Section: "A", Active: true},
		},
		subjects: map[string]*models.Subject{
			testSubjectID: {ID: testSubjectID, CourseID: testCourseID, Name: "Matemáticas", Code: "MAT"},
		},
		owners: map[string]bool{testTeacherID + ":" + testCourseID: true},
	}
	cfg := defaultAttendanceConfig()
	notifier := NewAbsenceNotifier(&mockParentLinks{}, &mockNotificationWriter{}, cfg, nil, zap.NewNop())
	reader := &mockReportReader{rows: rows}
	svc := NewReportService(
		reader, courses, &mockPolicyRepo{}, notifier,
		nil, cfg, config.ReportsConfig{CacheTTL: time.Minute}, zap.NewNop(),
	)
	return svc, reader
}

func TestCourseReportBucketsAndAverage(t *testing.T) {
	svc, _ := newReportFixture([]models.StudentReportRow{
		{StudentID: "s1", FirstName: "Ana", LastName: "García", Present: 8, Absent: 2, Total: 10},
		{StudentID: "s2", FirstName: "Luis", LastName: "Pérez", Present: 5, Late: 1, Absent: 4, Total: 10},
		{StudentID: "s3", FirstName: "Eva", LastName: "Ruiz", Present: 5, Absent: 5, Total: 10},
	})

	report, err := svc.CourseReport(context.Background(), teacherActor(), testCourseID, "", "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.Len(t, report.Students, 3)

	assert.Equal(t, 80.0, report.Students[0].Percent)
	assert.Equal(t, models.BucketGood, report.Students[0].Bucket)

	assert.Equal(t, 60.0, report.Students[1].Percent)
	assert.Equal(t, models.BucketRegular, report.Students[1].Bucket)

	assert.Equal(t, 50.0, report.Students[2].Percent)
	assert.Equal(t, models.BucketPoor, report.Students[2].Bucket)

	assert.Equal(t, 63.33, report.AveragePct)
	// 60 and 50 fall under the default 75% floor
	assert.Equal(t, 2, report.BelowTarget)
}

func TestCourseReportDayBreakdown(t *testing.T) {
	svc, reader := newReportFixture([]models.StudentReportRow{
		{StudentID: "s1", FirstName: "Ana", LastName: "García", Present: 2, Absent: 1, Total: 3},
	})
	day1 := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	reader.days = []models.CourseDayBreakdown{
		{Date: day1, Present: 18, Absent: 2, Total: 20},
		{Date: day2, Present: 17, Absent: 1, Late: 2, Total: 20},
	}

	report, err := svc.CourseReport(context.Background(), teacherActor(), testCourseID, "", "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.Len(t, report.Days, 2)
	assert.Equal(t, day1, report.Days[0].Date)
	assert.Equal(t, 2, report.Days[0].Absent)
	assert.Equal(t, 2, report.Days[1].Late)
	assert.Nil(t, report.SubjectID)
}

func TestCourseReportSubjectFilter(t *testing.T) {
	svc, reader := newReportFixture(nil)

	report, err := svc.CourseReport(context.Background(), teacherActor(), testCourseID, testSubjectID, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.NotNil(t, reader.lastSubject)
	assert.Equal(t, testSubjectID, *reader.lastSubject)
	require.NotNil(t, report.SubjectID)
	assert.Equal(t, testSubjectID, *report.SubjectID)
}

func TestCourseReportSubjectFromAnotherCourse(t *testing.T) {
	svc, _ := newReportFixture(nil)

	// a valid-looking subject id that the course does not own
	_, err := svc.CourseReport(context.Background(), teacherActor(), testCourseID, testStudentID, "2026-03-01", "2026-03-31")
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestCourseReportStudentWithoutSessions(t *testing.T) {
	svc, _ := newReportFixture([]models.StudentReportRow{
		{StudentID: "s1", FirstName: "Ana", LastName: "García", Total: 0},
	})

	report, err := svc.CourseReport(context.Background(), teacherActor(), testCourseID, "", "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.Students[0].Percent)
	assert.Equal(t, models.BucketPoor, report.Students[0].Bucket)
}

func TestCourseReportForbiddenForStudents(t *testing.T) {
	svc, _ := newReportFixture(nil)

	_, err := svc.CourseReport(context.Background(),
		Actor{ID: testStudentID, Role: models.RoleStudent}, testCourseID, "", "", "")
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestExportCourseReportCSV(t *testing.T) {
	svc, _ := newReportFixture([]models.StudentReportRow{
		{StudentID: "s1", FirstName: "Ana", LastName: "García", Present: 8, Absent: 2, Total: 10},
	})

	out, contentType, err := svc.ExportCourseReport(context.Background(), teacherActor(),
		testCourseID, "", "2026-03-01", "2026-03-31", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	body := string(out)
	assert.True(t, strings.Contains(body, "Estudiante"))
	assert.True(t, strings.Contains(body, "García, Ana"))
	assert.True(t, strings.Contains(body, "80.00"))
}

func TestExportCourseReportUnknownFormat(t *testing.T) {
	svc, _ := newReportFixture(nil)

	_, _, err := svc.ExportCourseReport(context.Background(), teacherActor(),
		testCourseID, "", "", "", "xlsx")
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestResolveRangeDefaultsToCurrentMonth(t *testing.T) {
	now := time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC)

	from, to, err := resolveRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC), to)
}

func TestResolveRangePartialBounds(t *testing.T) {
	now := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)

	from, to, err := resolveRange("2026-02-10", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), to)

	from, to, err = resolveRange("", "2026-04-20", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, time.April, 20, 0, 0, 0, 0, time.UTC), to)
}

func TestResolveRangeInverted(t *testing.T) {
	_, _, err := resolveRange("2026-03-10", "2026-03-01", time.Now())
	assertAppError(t, err, appErrors.ErrValidation)
}

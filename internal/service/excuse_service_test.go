package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type mockExcuseRepo struct {
	items      map[string]*models.ExcuseRequest
	created    []models.ExcuseRequest
	listResult []models.ExcuseRequest
	listTotal  int
	lastFilter models.ExcuseFilter
	decideNil  bool
}

func (m *mockExcuseRepo) Create(ctx context.Context, e *models.ExcuseRequest) (*models.ExcuseRequest, error) {
	cp := *e
	cp.ID = "excuse-1"
	cp.Status = models.ExcuseStatusPending
	m.created = append(m.created, cp)
	return &cp, nil
}

func (m *mockExcuseRepo) FindByID(ctx context.Context, id string) (*models.ExcuseRequest, error) {
	if e, ok := m.items[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *mockExcuseRepo) DecideTx(ctx context.Context, q sqlx.ExtContext, id string, status models.ExcuseStatus, reviewNotes *string, reviewerID string) (*models.ExcuseRequest, error) {
	if m.decideNil {
		return nil, nil
	}
	e, ok := m.items[id]
	if !ok || e.Status != models.ExcuseStatusPending {
		return nil, nil
	}
	e.Status = status
	e.ReviewNotes = reviewNotes
	e.ReviewedBy = &reviewerID
	cp := *e
	return &cp, nil
}

func (m *mockExcuseRepo) List(ctx context.Context, filter models.ExcuseFilter) ([]models.ExcuseRequest, int, error) {
	m.lastFilter = filter
	return m.listResult, m.listTotal, nil
}

type excuseFixture struct {
	svc         *ExcuseService
	excuses     *mockExcuseRepo
	attendance  *mockAttendanceRepo
	courses     *mockCourseRepo
	enrollments *mockEnrollmentRepo
	parents     *mockParentLinks
}

func newExcuseFixture() *excuseFixture {
	f := &excuseFixture{
		excuses:    &mockExcuseRepo{items: map[string]*models.ExcuseRequest{}},
		attendance: &mockAttendanceRepo{counts: map[string]int{}},
		courses: &mockCourseRepo{
			courses: map[string]*models.Course{
				testCourseID: {ID: testCourseID, Name: "Matemáticas", Grade: models.GradePrimero, Section: "A", Active: true},
			},
			owners: map[string]bool{testTeacherID + ":" + testCourseID: true},
		},
		enrollments: &mockEnrollmentRepo{students: []models.EnrolledStudent{
			{StudentID: testStudentID, FirstName: "Ana", LastName: "García"},
		}},
		parents: &mockParentLinks{
			links: map[string][]string{testParentID: {testStudentID}},
			byParent: map[string][]models.User{
				testParentID: {{ID: testStudentID, Role: models.RoleStudent}},
			},
		},
	}
	f.svc = NewExcuseService(f.excuses, f.attendance, f.courses, f.enrollments, f.parents, &mockTxRunner{}, nil, zap.NewNop())
	return f
}

func pendingExcuse(days int) *models.ExcuseRequest {
	start, _ := time.Parse("2006-01-02", "2026-03-09")
	return &models.ExcuseRequest{
		ID: "excuse-1", StudentID: testStudentID, CourseID: testCourseID,
		StartDate: start, EndDate: start.AddDate(0, 0, days-1),
		Motive: "Incapacidad médica", Status: models.ExcuseStatusPending,
		RequestedBy: testParentID,
	}
}

func TestFileExcuseDefaultsEndDate(t *testing.T) {
	f := newExcuseFixture()

	created, err := f.svc.File(context.Background(), Actor{ID: testStudentID, Role: models.RoleStudent},
		FileExcuseRequest{
			StudentID: testStudentID,
			CourseID:  testCourseID,
			StartDate: "2026-03-09",
			Motive:    "Cita médica",
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExcuseStatusPending, created.Status)
	assert.Equal(t, created.StartDate, created.EndDate)
}

func TestFileExcuseStudentForAnother(t *testing.T) {
	f := newExcuseFixture()

	_, err := f.svc.File(context.Background(), Actor{ID: testStudent2, Role: models.RoleStudent},
		FileExcuseRequest{
			StudentID: testStudentID,
			CourseID:  testCourseID,
			StartDate: "2026-03-09",
			Motive:    "Cita médica",
		}, nil)
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestFileExcuseParentNotLinked(t *testing.T) {
	f := newExcuseFixture()

	_, err := f.svc.File(context.Background(), Actor{ID: testParentID, Role: models.RoleParent},
		FileExcuseRequest{
			StudentID: testStudent2,
			CourseID:  testCourseID,
			StartDate: "2026-03-09",
			Motive:    "Cita médica",
		}, nil)
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestFileExcuseInvertedRange(t *testing.T) {
	f := newExcuseFixture()

	_, err := f.svc.File(context.Background(), Actor{ID: testStudentID, Role: models.RoleStudent},
		FileExcuseRequest{
			StudentID: testStudentID,
			CourseID:  testCourseID,
			StartDate: "2026-03-09",
			EndDate:   "2026-03-08",
			Motive:    "Cita médica",
		}, nil)
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestFileExcuseUnenrolledStudent(t *testing.T) {
	f := newExcuseFixture()
	f.enrollments.students = nil

	_, err := f.svc.File(context.Background(), teacherActor(),
		FileExcuseRequest{
			StudentID: testStudentID,
			CourseID:  testCourseID,
			StartDate: "2026-03-09",
			Motive:    "Cita médica",
		}, nil)
	assertAppError(t, err, appErrors.ErrValidation)
	assert.Nil(t, f.excuses.created)
}

func TestDecideApprovalWritesExcusedRange(t *testing.T) {
	f := newExcuseFixture()
	f.excuses.items["excuse-1"] = pendingExcuse(3)

	decided, err := f.svc.Decide(context.Background(), teacherActor(), "excuse-1",
		DecideExcuseRequest{Status: "approved"})
	require.NoError(t, err)
	assert.Equal(t, models.ExcuseStatusApproved, decided.Status)
	require.NotNil(t, decided.ReviewedBy)
	assert.Equal(t, testTeacherID, *decided.ReviewedBy)

	// one excused upsert per calendar day, weekends included
	require.Len(t, f.attendance.excusedUpserts, 3)
	for i, day := range f.attendance.excusedUpserts {
		assert.Equal(t, decided.StartDate.AddDate(0, 0, i), day)
	}
}

func TestDecideRejectionTouchesNoAttendance(t *testing.T) {
	f := newExcuseFixture()
	f.excuses.items["excuse-1"] = pendingExcuse(3)

	decided, err := f.svc.Decide(context.Background(), teacherActor(), "excuse-1",
		DecideExcuseRequest{Status: "rejected"})
	require.NoError(t, err)
	assert.Equal(t, models.ExcuseStatusRejected, decided.Status)
	assert.Empty(t, f.attendance.excusedUpserts)
}

func TestDecideAlreadyDecided(t *testing.T) {
	f := newExcuseFixture()
	excuse := pendingExcuse(1)
	excuse.Status = models.ExcuseStatusApproved
	f.excuses.items["excuse-1"] = excuse

	_, err := f.svc.Decide(context.Background(), teacherActor(), "excuse-1",
		DecideExcuseRequest{Status: "rejected"})
	assertAppError(t, err, appErrors.ErrConflict)
}

func TestDecideLostRace(t *testing.T) {
	f := newExcuseFixture()
	f.excuses.items["excuse-1"] = pendingExcuse(1)
	f.excuses.decideNil = true

	_, err := f.svc.Decide(context.Background(), teacherActor(), "excuse-1",
		DecideExcuseRequest{Status: "approved"})
	assertAppError(t, err, appErrors.ErrConflict)
	assert.Empty(t, f.attendance.excusedUpserts)
}

func TestDecideTeacherNotOwner(t *testing.T) {
	f := newExcuseFixture()
	f.excuses.items["excuse-1"] = pendingExcuse(1)
	f.courses.owners = map[string]bool{}

	_, err := f.svc.Decide(context.Background(), teacherActor(), "excuse-1",
		DecideExcuseRequest{Status: "approved"})
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestDecideInvalidStatus(t *testing.T) {
	f := newExcuseFixture()
	f.excuses.items["excuse-1"] = pendingExcuse(1)

	_, err := f.svc.Decide(context.Background(), teacherActor(), "excuse-1",
		DecideExcuseRequest{Status: "pending"})
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestListScopesByRole(t *testing.T) {
	f := newExcuseFixture()

	_, _, err := f.svc.List(context.Background(), Actor{ID: testStudentID, Role: models.RoleStudent}, ExcuseListRequest{})
	require.NoError(t, err)
	assert.Equal(t, testStudentID, f.excuses.lastFilter.StudentID)

	_, _, err = f.svc.List(context.Background(), teacherActor(), ExcuseListRequest{})
	require.NoError(t, err)
	assert.Equal(t, testTeacherID, f.excuses.lastFilter.TeacherID)

	_, _, err = f.svc.List(context.Background(), Actor{ID: testParentID, Role: models.RoleParent}, ExcuseListRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{testStudentID}, f.excuses.lastFilter.StudentIDs)
	assert.Empty(t, f.excuses.lastFilter.StudentID)
}

func TestListParentWithoutChildren(t *testing.T) {
	f := newExcuseFixture()
	f.parents.byParent = map[string][]models.User{}

	requests, pagination, err := f.svc.List(context.Background(),
		Actor{ID: testParentID, Role: models.RoleParent}, ExcuseListRequest{PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.Equal(t, 0, pagination.TotalCount)
}

func TestListInvalidStatusFilter(t *testing.T) {
	f := newExcuseFixture()

	_, _, err := f.svc.List(context.Background(), teacherActor(), ExcuseListRequest{Status: "maybe"})
	assertAppError(t, err, appErrors.ErrValidation)
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type excuseRepository interface {
	Create(ctx context.Context, e *models.ExcuseRequest) (*models.ExcuseRequest, error)
	FindByID(ctx context.Context, id string) (*models.ExcuseRequest, error)
	DecideTx(ctx context.Context, q sqlx.ExtContext, id string, status models.ExcuseStatus, reviewNotes *string, reviewerID string) (*models.ExcuseRequest, error)
	List(ctx context.Context, filter models.ExcuseFilter) ([]models.ExcuseRequest, int, error)
}

type excuseAttendanceWriter interface {
	UpsertExcusedTx(ctx context.Context, q sqlx.ExtContext, studentID, courseID string, subjectID *string, date time.Time, justification, recordedBy string) (*models.AttendanceRecord, error)
}

type parentReader interface {
	IsLinked(ctx context.Context, parentID, studentID string) (bool, error)
	StudentsOf(ctx context.Context, parentID string) ([]models.User, error)
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

// ExcuseService runs the excuse request workflow: file, list, decide.
type ExcuseService struct {
	excuses     excuseRepository
	attendance  excuseAttendanceWriter
	courses     courseReader
	enrollments enrollmentChecker
	parents     parentReader
	tx          transactor
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewExcuseService constructs the excuse service.
func NewExcuseService(
	excuses excuseRepository,
	attendance excuseAttendanceWriter,
	courses courseReader,
	enrollments enrollmentChecker,
	parents parentReader,
	tx transactor,
	validate *validator.Validate,
	logger *zap.Logger,
) *ExcuseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcuseService{
		excuses:     excuses,
		attendance:  attendance,
		courses:     courses,
		enrollments: enrollments,
		parents:     parents,
		tx:          tx,
		validator:   validate,
		logger:      logger,
	}
}

// FileExcuseRequest opens a petition for a date range. A single-day excuse
// omits end_date.
type FileExcuseRequest struct {
	StudentID string  `json:"student_id" validate:"required,uuid"`
	CourseID  string  `json:"course_id" validate:"required,uuid"`
	SubjectID *string `json:"subject_id" validate:"omitempty,uuid"`
	StartDate string  `json:"start_date" validate:"required"`
	EndDate   string  `json:"end_date"`
	Motive    string  `json:"motive" validate:"required,min=3"`
}

// File creates a pending excuse request. Parents may file for their linked
// children, students only for themselves.
func (s *ExcuseService) File(ctx context.Context, actor Actor, req FileExcuseRequest, attachment *string) (*models.ExcuseRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid excuse payload")
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start date, expected YYYY-MM-DD")
	}
	end := start
	if req.EndDate != "" {
		end, err = time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end date, expected YYYY-MM-DD")
		}
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}

	switch actor.Role {
	case models.RoleAdmin, models.RoleTeacher:
	case models.RoleStudent:
		if actor.ID != req.StudentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only file their own excuses")
		}
	case models.RoleParent:
		linked, err := s.parents.IsLinked(ctx, actor.ID, req.StudentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check parent link")
		}
		if !linked {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "parent is not linked to the student")
		}
	default:
		return nil, appErrors.ErrForbidden
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	enrolled, err := s.enrollments.IsEnrolled(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in the course")
	}

	created, err := s.excuses.Create(ctx, &models.ExcuseRequest{
		StudentID:   req.StudentID,
		CourseID:    req.CourseID,
		SubjectID:   req.SubjectID,
		StartDate:   start,
		EndDate:     end,
		Motive:      strings.TrimSpace(req.Motive),
		Attachment:  attachment,
		RequestedBy: actor.ID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create excuse request")
	}
	return created, nil
}

// ExcuseListRequest filters the excuse listing.
type ExcuseListRequest struct {
	StudentID string
	CourseID  string
	Status    string
	Page      int
	PageSize  int
}

// List returns excuse requests scoped to what the actor may see: admins see
// everything, teachers their courses, parents their linked children,
// students their own.
func (s *ExcuseService) List(ctx context.Context, actor Actor, req ExcuseListRequest) ([]models.ExcuseRequest, *models.Pagination, error) {
	filter := models.ExcuseFilter{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if req.Status != "" {
		status := models.ExcuseStatus(strings.ToLower(req.Status))
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid excuse status filter")
		}
		filter.Status = &status
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
	case models.RoleStudent:
		filter.StudentID = actor.ID
	case models.RoleParent:
		children, err := s.parents.StudentsOf(ctx, actor.ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked students")
		}
		if len(children) == 0 {
			return []models.ExcuseRequest{}, &models.Pagination{Page: 1, PageSize: req.PageSize, TotalCount: 0}, nil
		}
		ids := make([]string, len(children))
		for i, child := range children {
			ids[i] = child.ID
		}
		filter.StudentID = ""
		filter.StudentIDs = ids
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	requests, total, err := s.excuses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list excuse requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// DecideExcuseRequest resolves a pending excuse.
type DecideExcuseRequest struct {
	Status      string  `json:"status" validate:"required"`
	ReviewNotes *string `json:"review_notes"`
}

// Decide approves or rejects a pending request. Approval writes an excused
// record for every calendar day in the range, in the same transaction as the
// status change; a rejection touches no attendance rows. Decided requests
// are immutable.
func (s *ExcuseService) Decide(ctx context.Context, actor Actor, id string, req DecideExcuseRequest) (*models.ExcuseRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	status := models.ExcuseStatus(strings.ToLower(req.Status))
	if status != models.ExcuseStatusApproved && status != models.ExcuseStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be approved or rejected")
	}

	excuse, err := s.excuses.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load excuse request")
	}
	if excuse == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "excuse request not found")
	}
	if excuse.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "excuse request already decided")
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleTeacher:
		owns, err := s.courses.TeacherOwnsCourse(ctx, actor.ID, excuse.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ownership")
		}
		if !owns {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "course does not belong to teacher")
		}
	default:
		return nil, appErrors.ErrForbidden
	}

	var decided *models.ExcuseRequest
	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		updated, err := s.excuses.DecideTx(ctx, tx, id, status, req.ReviewNotes, actor.ID)
		if err != nil {
			return err
		}
		if updated == nil {
			// lost the race to another reviewer
			return appErrors.Clone(appErrors.ErrConflict, "excuse request already decided")
		}
		decided = updated

		if status != models.ExcuseStatusApproved {
			return nil
		}
		for day := updated.StartDate; !day.After(updated.EndDate); day = day.AddDate(0, 0, 1) {
			if _, err := s.attendance.UpsertExcusedTx(ctx, tx,
				updated.StudentID, updated.CourseID, updated.SubjectID,
				day, updated.Motive, actor.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide excuse request")
	}
	return decided, nil
}

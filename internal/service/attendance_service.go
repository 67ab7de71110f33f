package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type attendanceRepository interface {
	UpsertTx(ctx context.Context, q sqlx.ExtContext, rec *models.AttendanceRecord) (*models.AttendanceRecord, error)
	ListForDateTx(ctx context.Context, q sqlx.ExtContext, courseID string, subjectID *string, date time.Time) ([]models.AttendanceRecord, error)
	ListForDate(ctx context.Context, courseID string, subjectID *string, date time.Time) ([]models.AttendanceRecord, error)
	CountAbsencesTx(ctx context.Context, q sqlx.ExtContext, studentID, courseID string) (int, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceRecordDetail, error)
	Update(ctx context.Context, id string, upd models.AttendanceUpdate) (*models.AttendanceRecord, error)
	Justify(ctx context.Context, id, justification string, filePath *string) (*models.AttendanceRecord, error)
	ListByCourseDate(ctx context.Context, courseID string, subjectID *string, date time.Time) ([]models.AttendanceRecordDetail, error)
	StudentHistory(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindSubject(ctx context.Context, id string) (*models.Subject, error)
	TeacherOwnsCourse(ctx context.Context, teacherID, courseID string) (bool, error)
}

type enrollmentReader interface {
	ActiveStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error)
}

type policyRepository interface {
	FindByCourse(ctx context.Context, courseID string) (*models.AttendancePolicy, error)
	Upsert(ctx context.Context, p *models.AttendancePolicy) (*models.AttendancePolicy, error)
}

type parentAuthz interface {
	IsLinked(ctx context.Context, parentID, studentID string) (bool, error)
}

type transactor interface {
	RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type thresholdNotifier interface {
	EffectivePolicy(courseID string, stored *models.AttendancePolicy) *models.AttendancePolicy
	AbsenceRecorded(ctx context.Context, q sqlx.ExtContext, student *models.User, course *models.Course, policy *models.AttendancePolicy, count int) (*OutboundEmail, error)
}

type emailRelay interface {
	Enqueue(email OutboundEmail)
}

// AttendanceService coordinates the roster, record and policy workflows.
type AttendanceService struct {
	records     attendanceRepository
	courses     courseReader
	enrollments enrollmentReader
	policies    policyRepository
	parents     parentAuthz
	tx          transactor
	notifier    thresholdNotifier
	relay       emailRelay
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(
	records attendanceRepository,
	courses courseReader,
	enrollments enrollmentReader,
	policies policyRepository,
	parents parentAuthz,
	tx transactor,
	notifier thresholdNotifier,
	relay emailRelay,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{
		records:     records,
		courses:     courses,
		enrollments: enrollments,
		policies:    policies,
		parents:     parents,
		tx:          tx,
		notifier:    notifier,
		relay:       relay,
		validator:   validate,
		logger:      logger,
	}
	_ = svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// RosterEntryRequest is one student's line in a roster submission.
type RosterEntryRequest struct {
	StudentID   string  `json:"student_id" validate:"required,uuid"`
	Status      string  `json:"status" validate:"required,attendance_status"`
	ArrivalTime *string `json:"arrival_time"`
	Notes       *string `json:"notes"`
}

// TakeRosterRequest records attendance for a course on one date. Resubmitting
// the same day overwrites the previous statuses.
type TakeRosterRequest struct {
	CourseID  string               `json:"course_id" validate:"required,uuid"`
	SubjectID *string              `json:"subject_id" validate:"omitempty,uuid"`
	Date      string               `json:"date" validate:"required"`
	Entries   []RosterEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

// RosterResult summarises a roster submission.
type RosterResult struct {
	Records  []models.AttendanceRecord `json:"records"`
	Notified int                       `json:"notified"`
}

// TakeRoster validates and persists a full roster in one transaction, running
// the absence notifier for every student that becomes absent.
func (s *AttendanceService) TakeRoster(ctx context.Context, actor Actor, req TakeRosterRequest) (*RosterResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}

	course, err := s.authorizeCourse(ctx, actor, req.CourseID)
	if err != nil {
		return nil, err
	}
	if req.SubjectID != nil {
		subject, err := s.courses.FindSubject(ctx, *req.SubjectID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		if subject == nil || subject.CourseID != course.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject does not belong to course")
		}
	}

	roster, err := s.enrollments.ActiveStudents(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	enrolled := make(map[string]models.EnrolledStudent, len(roster))
	for _, st := range roster {
		enrolled[st.StudentID] = st
	}

	seen := make(map[string]struct{}, len(req.Entries))
	for _, entry := range req.Entries {
		if _, dup := seen[entry.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate student in roster payload")
		}
		seen[entry.StudentID] = struct{}{}
		if _, ok := enrolled[entry.StudentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in the course")
		}
	}

	stored, err := s.policies.FindByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance policy")
	}
	policy := s.notifier.EffectivePolicy(course.ID, stored)

	var (
		result RosterResult
		emails []OutboundEmail
	)
	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.records.ListForDateTx(ctx, tx, course.ID, req.SubjectID, date)
		if err != nil {
			return err
		}
		prior := make(map[string]models.AttendanceRecord, len(existing))
		for _, rec := range existing {
			prior[rec.StudentID] = rec
		}

		for _, entry := range req.Entries {
			status := models.AttendanceStatus(strings.ToLower(entry.Status))
			saved, err := s.records.UpsertTx(ctx, tx, &models.AttendanceRecord{
				StudentID:   entry.StudentID,
				CourseID:    course.ID,
				SubjectID:   req.SubjectID,
				Date:        date,
				Status:      status,
				ArrivalTime: entry.ArrivalTime,
				Notes:       entry.Notes,
				RecordedBy:  actor.ID,
			})
			if err != nil {
				return err
			}
			result.Records = append(result.Records, *saved)

			if status != models.AttendanceStatusAbsent {
				continue
			}
			if before, had := prior[entry.StudentID]; had && before.Status == models.AttendanceStatusAbsent {
				continue
			}

			count, err := s.records.CountAbsencesTx(ctx, tx, entry.StudentID, course.ID)
			if err != nil {
				return err
			}
			info := enrolled[entry.StudentID]
			student := &models.User{
				ID:        info.StudentID,
				FirstName: info.FirstName,
				LastName:  info.LastName,
				Email:     info.Email,
			}
			email, err := s.notifier.AbsenceRecorded(ctx, tx, student, course, policy, count)
			if err != nil {
				s.logger.Sugar().Errorw("absence notifier failed",
					"student_id", entry.StudentID, "course_id", course.ID, "error", err)
				continue
			}
			if email != nil {
				emails = append(emails, *email)
				result.Notified++
			}
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save roster")
	}

	for _, email := range emails {
		s.relay.Enqueue(email)
	}
	return &result, nil
}

// GetRecord loads one record with the caller's visibility enforced.
func (s *AttendanceService) GetRecord(ctx context.Context, actor Actor, id string) (*models.AttendanceRecordDetail, error) {
	rec, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if rec == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	if err := s.authorizeRecordRead(ctx, actor, &rec.AttendanceRecord); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateRecordRequest edits a single record in place.
type UpdateRecordRequest struct {
	Status        *string `json:"status" validate:"omitempty,attendance_status"`
	ArrivalTime   *string `json:"arrival_time"`
	Notes         *string `json:"notes"`
	Justification *string `json:"justification"`
}

// UpdateRecord applies a partial edit. Only course owners and admins may
// rewrite history.
func (s *AttendanceService) UpdateRecord(ctx context.Context, actor Actor, id string, req UpdateRecordRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	rec, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if rec == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	if _, err := s.authorizeCourse(ctx, actor, rec.CourseID); err != nil {
		return nil, err
	}

	upd := models.AttendanceUpdate{
		ArrivalTime:   req.ArrivalTime,
		Notes:         req.Notes,
		Justification: req.Justification,
	}
	if req.Status != nil {
		status := models.AttendanceStatus(strings.ToLower(*req.Status))
		upd.Status = &status
	}
	updated, err := s.records.Update(ctx, id, upd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update record")
	}
	if updated == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	return updated, nil
}

// ListByCourseDate returns the day's records with student identity.
func (s *AttendanceService) ListByCourseDate(ctx context.Context, courseID string, subjectID *string, dateStr string) ([]models.AttendanceRecordDetail, error) {
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	records, err := s.records.ListByCourseDate(ctx, courseID, subjectID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// Planilla builds the take-roll view: every active student, merged with any
// record already stored for the date. Students without a record come back as
// a non-persisted "present" so the teacher only flips the exceptions.
func (s *AttendanceService) Planilla(ctx context.Context, actor Actor, courseID string, subjectID *string, dateStr string) ([]models.RosterEntry, error) {
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	course, err := s.authorizeCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	roster, err := s.enrollments.ActiveStudents(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	records, err := s.records.ListForDate(ctx, course.ID, subjectID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	recorded := make(map[string]models.AttendanceRecord, len(records))
	for _, rec := range records {
		recorded[rec.StudentID] = rec
	}

	entries := make([]models.RosterEntry, 0, len(roster))
	for _, st := range roster {
		entry := models.RosterEntry{
			StudentID: st.StudentID,
			FirstName: st.FirstName,
			LastName:  st.LastName,
			Status:    models.AttendanceStatusPresent,
		}
		if rec, ok := recorded[st.StudentID]; ok {
			entry.Status = rec.Status
			entry.Recorded = true
			entry.RecordID = &rec.ID
			entry.ArrivalTime = rec.ArrivalTime
			entry.Notes = rec.Notes
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// StudentHistoryResult bundles records with derived statistics.
type StudentHistoryResult struct {
	Records []models.AttendanceRecordDetail `json:"records"`
	Stats   models.AttendanceStats          `json:"stats"`
}

// StudentHistory returns a student's records and attendance statistics.
// Students see only their own history; parents only their linked children's.
func (s *AttendanceService) StudentHistory(ctx context.Context, actor Actor, filter models.AttendanceFilter) (*StudentHistoryResult, error) {
	if err := s.authorizeStudentRead(ctx, actor, filter.StudentID); err != nil {
		return nil, err
	}
	records, err := s.records.StudentHistory(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return &StudentHistoryResult{Records: records, Stats: computeStats(records)}, nil
}

// JustifyRequest attaches an inline justification to an absence.
type JustifyRequest struct {
	Justification string `json:"justification" validate:"required,min=3"`
}

// Justify flips a record to excused with a justification, optionally storing
// a supporting attachment path.
func (s *AttendanceService) Justify(ctx context.Context, actor Actor, id string, req JustifyRequest, filePath *string) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "justification required")
	}
	rec, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if rec == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	if err := s.authorizeJustify(ctx, actor, &rec.AttendanceRecord); err != nil {
		return nil, err
	}

	updated, err := s.records.Justify(ctx, id, req.Justification, filePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to justify record")
	}
	if updated == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	return updated, nil
}

// GetPolicy returns the course policy, falling back to defaults when none is
// stored.
func (s *AttendanceService) GetPolicy(ctx context.Context, courseID string) (*models.AttendancePolicy, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	stored, err := s.policies.FindByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load policy")
	}
	return s.notifier.EffectivePolicy(courseID, stored), nil
}

// UpdatePolicyRequest upserts a course's notification configuration. Omitted
// fields keep their current (or default) values.
type UpdatePolicyRequest struct {
	NoticeThreshold    *int     `json:"notice_threshold" validate:"omitempty,min=1"`
	AlertThreshold     *int     `json:"alert_threshold" validate:"omitempty,min=1"`
	MinimumPercent     *float64 `json:"minimum_percent" validate:"omitempty,min=0,max=100"`
	NotifyParents      *bool    `json:"notify_parents"`
	NotifyEveryAbsence *bool    `json:"notify_every_absence"`
}

// UpdatePolicy merges the request over the effective policy and stores it.
// The notice threshold may never exceed the alert threshold.
func (s *AttendanceService) UpdatePolicy(ctx context.Context, actor Actor, courseID string, req UpdatePolicyRequest) (*models.AttendancePolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid policy payload")
	}
	if _, err := s.authorizeCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}
	stored, err := s.policies.FindByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load policy")
	}
	policy := s.notifier.EffectivePolicy(courseID, stored)

	if req.NoticeThreshold != nil {
		policy.NoticeThreshold = *req.NoticeThreshold
	}
	if req.AlertThreshold != nil {
		policy.AlertThreshold = *req.AlertThreshold
	}
	if req.MinimumPercent != nil {
		policy.MinimumPercent = *req.MinimumPercent
	}
	if req.NotifyParents != nil {
		policy.NotifyParents = *req.NotifyParents
	}
	if req.NotifyEveryAbsence != nil {
		policy.NotifyEveryAbsence = *req.NotifyEveryAbsence
	}
	if policy.NoticeThreshold > policy.AlertThreshold {
		return nil, appErrors.Clone(appErrors.ErrValidation, "notice threshold cannot exceed alert threshold")
	}

	saved, err := s.policies.Upsert(ctx, policy)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save policy")
	}
	return saved, nil
}

// authorizeCourse loads the course and checks the actor may manage it.
func (s *AttendanceService) authorizeCourse(ctx context.Context, actor Actor, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	switch actor.Role {
	case models.RoleAdmin:
		return course, nil
	case models.RoleTeacher:
		owns, err := s.courses.TeacherOwnsCourse(ctx, actor.ID, courseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ownership")
		}
		if !owns {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "course does not belong to teacher")
		}
		return course, nil
	default:
		return nil, appErrors.ErrForbidden
	}
}

func (s *AttendanceService) authorizeRecordRead(ctx context.Context, actor Actor, rec *models.AttendanceRecord) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleTeacher:
		return nil
	case models.RoleStudent:
		if actor.ID == rec.StudentID {
			return nil
		}
	case models.RoleParent:
		linked, err := s.parents.IsLinked(ctx, actor.ID, rec.StudentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check parent link")
		}
		if linked {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

func (s *AttendanceService) authorizeStudentRead(ctx context.Context, actor Actor, studentID string) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleTeacher:
		return nil
	case models.RoleStudent:
		if actor.ID == studentID {
			return nil
		}
	case models.RoleParent:
		linked, err := s.parents.IsLinked(ctx, actor.ID, studentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check parent link")
		}
		if linked {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

func (s *AttendanceService) authorizeJustify(ctx context.Context, actor Actor, rec *models.AttendanceRecord) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleTeacher:
		return nil
	case models.RoleParent:
		linked, err := s.parents.IsLinked(ctx, actor.ID, rec.StudentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check parent link")
		}
		if linked {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

// computeStats derives attendance statistics. Present and late both count as
// attended; an empty history yields zero percent.
func computeStats(records []models.AttendanceRecordDetail) models.AttendanceStats {
	stats := models.AttendanceStats{TotalSessions: len(records)}
	for _, rec := range records {
		switch rec.Status {
		case models.AttendanceStatusPresent:
			stats.Present++
		case models.AttendanceStatusAbsent:
			stats.Absent++
		case models.AttendanceStatusLate:
			stats.Late++
		case models.AttendanceStatusExcused:
			stats.Excused++
		}
	}
	if stats.TotalSessions > 0 {
		stats.Percent = roundPercent(float64(stats.Present+stats.Late) / float64(stats.TotalSessions) * 100)
	}
	return stats
}

func roundPercent(p float64) float64 {
	return math.Round(p*100) / 100
}

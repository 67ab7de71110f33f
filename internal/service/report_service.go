package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
	"github.com/aprendesoft/colegio-api/pkg/config"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
	"github.com/aprendesoft/colegio-api/pkg/export"
)

type reportAttendanceReader interface {
	CourseReportRows(ctx context.Context, courseID string, subjectID *string, from, to time.Time) ([]models.StudentReportRow, error)
	CourseDayRows(ctx context.Context, courseID string, subjectID *string, from, to time.Time) ([]models.CourseDayBreakdown, error)
}

// ReportService builds per-course attendance aggregates with a short redis
// cache in front of the heavier query.
type ReportService struct {
	attendance reportAttendanceReader
	courses    courseReader
	policies   policyRepository
	notifier   thresholdNotifier
	cache      *redis.Client
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	attCfg     config.AttendanceConfig
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewReportService constructs the report service. A nil redis client disables
// caching.
func NewReportService(
	attendance reportAttendanceReader,
	courses courseReader,
	policies policyRepository,
	notifier thresholdNotifier,
	cache *redis.Client,
	attCfg config.AttendanceConfig,
	reportsCfg config.ReportsConfig,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		attendance: attendance,
		courses:    courses,
		policies:   policies,
		notifier:   notifier,
		cache:      cache,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		attCfg:     attCfg,
		cacheTTL:   reportsCfg.CacheTTL,
		logger:     logger,
	}
}

// CourseReport aggregates attendance per student and per day over the range,
// optionally narrowed to one subject. Empty range bounds default to the
// current month.
func (s *ReportService) CourseReport(ctx context.Context, actor Actor, courseID, subjectStr, fromStr, toStr string) (*models.CourseReport, error) {
	from, to, err := resolveRange(fromStr, toStr, time.Now())
	if err != nil {
		return nil, err
	}

	course, err := s.authorizeCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	var subjectID *string
	if subjectStr != "" {
		subject, err := s.courses.FindSubject(ctx, subjectStr)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		if subject == nil || subject.CourseID != courseID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject does not belong to the course")
		}
		subjectID = &subject.ID
	}

	cacheKey := fmt.Sprintf("report:course:%s:%s:%s:%s", courseID, subjectStr, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if cached := s.fromCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	rows, err := s.attendance.CourseReportRows(ctx, courseID, subjectID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build report")
	}
	days, err := s.attendance.CourseDayRows(ctx, courseID, subjectID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build day breakdown")
	}

	stored, err := s.policies.FindByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load policy")
	}
	policy := s.notifier.EffectivePolicy(courseID, stored)

	report := &models.CourseReport{
		CourseID:    courseID,
		CourseName:  course.Label(),
		SubjectID:   subjectID,
		DateFrom:    from,
		DateTo:      to,
		Students:    rows,
		Days:        days,
		GeneratedAt: time.Now().UTC(),
	}
	var sum float64
	for i := range report.Students {
		row := &report.Students[i]
		if row.Total > 0 {
			row.Percent = roundPercent(float64(row.Present+row.Late) / float64(row.Total) * 100)
		}
		row.Bucket = s.bucketFor(row.Percent)
		sum += row.Percent
		if row.Percent < policy.MinimumPercent {
			report.BelowTarget++
		}
	}
	if len(report.Students) > 0 {
		report.AveragePct = roundPercent(sum / float64(len(report.Students)))
	}

	s.toCache(ctx, cacheKey, report)
	return report, nil
}

// ExportCourseReport renders the report as csv or pdf.
func (s *ReportService) ExportCourseReport(ctx context.Context, actor Actor, courseID, subjectStr, fromStr, toStr, format string) ([]byte, string, error) {
	report, err := s.CourseReport(ctx, actor, courseID, subjectStr, fromStr, toStr)
	if err != nil {
		return nil, "", err
	}

	headers := []string{"Estudiante", "Presente", "Ausente", "Tarde", "Excusado", "Total", "Porcentaje", "Desempeño"}
	rows := make([]map[string]string, len(report.Students))
	for i, st := range report.Students {
		rows[i] = map[string]string{
			"Estudiante": st.LastName + ", " + st.FirstName,
			"Presente":   strconv.Itoa(st.Present),
			"Ausente":    strconv.Itoa(st.Absent),
			"Tarde":      strconv.Itoa(st.Late),
			"Excusado":   strconv.Itoa(st.Excused),
			"Total":      strconv.Itoa(st.Total),
			"Porcentaje": fmt.Sprintf("%.2f", st.Percent),
			"Desempeño":  string(st.Bucket),
		}
	}
	data := export.Dataset{Headers: headers, Rows: rows}

	switch format {
	case "csv":
		out, err := s.csv.Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return out, "text/csv", nil
	case "pdf":
		title := fmt.Sprintf("Reporte de asistencia - %s", report.CourseName)
		out, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return out, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *ReportService) bucketFor(percent float64) models.PerformanceBucket {
	switch {
	case percent >= s.attCfg.GoodPercent:
		return models.BucketGood
	case percent >= s.attCfg.RegularPercent:
		return models.BucketRegular
	default:
		return models.BucketPoor
	}
}

func (s *ReportService) authorizeCourse(ctx context.Context, actor Actor, courseID string) (*models.Course, error) {
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

func (s *ReportService) fromCache(ctx context.Context, key string) *models.CourseReport {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Sugar().Warnw("report cache read failed", "key", key, "error", err)
		}
		return nil
	}
	var report models.CourseReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil
	}
	return &report
}

func (s *ReportService) toCache(ctx context.Context, key string, report *models.CourseReport) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Sugar().Warnw("report cache write failed", "key", key, "error", err)
	}
}

// resolveRange parses the optional bounds, defaulting to the current month.
func resolveRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error

	if fromStr == "" && toStr == "" {
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, -1)
		return from, to, nil
	}
	if fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return from, to, appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD")
		}
	}
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return from, to, appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD")
		}
	}
	if fromStr == "" {
		from = time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if toStr == "" {
		to = time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
	}
	if to.Before(from) {
		return from, to, appErrors.Clone(appErrors.ErrValidation, "to date precedes from date")
	}
	return from, to, nil
}

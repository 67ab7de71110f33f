package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
	"github.com/aprendesoft/colegio-api/pkg/config"
)

type parentLookup interface {
	ParentOfTx(ctx context.Context, q sqlx.ExtContext, studentID string) (*models.User, error)
}

type notificationWriter interface {
	CreateTx(ctx context.Context, q sqlx.ExtContext, n *models.Notification) (*models.Notification, error)
}

// AbsenceNotifier evaluates a student's absence count against the course
// policy and notifies the linked parent when a threshold is hit.
//
// Threshold comparison is exact equality: the alert fires on the absence that
// makes the count equal the alert threshold, the notice on the one that makes
// it equal the notice threshold, and nothing in between. With
// notify_every_absence on, absences outside both thresholds produce a
// low-priority notification.
type AbsenceNotifier struct {
	parents       parentLookup
	notifications notificationWriter
	cfg           config.AttendanceConfig
	metrics       *MetricsService
	logger        *zap.Logger
}

// NewAbsenceNotifier constructs the notifier. A nil metrics service disables
// instrumentation.
func NewAbsenceNotifier(parents parentLookup, notifications notificationWriter, cfg config.AttendanceConfig, metrics *MetricsService, logger *zap.Logger) *AbsenceNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AbsenceNotifier{parents: parents, notifications: notifications, cfg: cfg, metrics: metrics, logger: logger}
}

// EffectivePolicy fills missing policy values from the configured defaults.
func (n *AbsenceNotifier) EffectivePolicy(courseID string, stored *models.AttendancePolicy) *models.AttendancePolicy {
	if stored != nil {
		return stored
	}
	return models.DefaultPolicy(courseID,
		n.cfg.DefaultNoticeThreshold,
		n.cfg.DefaultAlertThreshold,
		n.cfg.DefaultMinimumPercent)
}

// AbsenceRecorded runs the threshold check for one newly absent student
// inside the caller's transaction. The returned email, if any, must be
// relayed only after the transaction commits.
func (n *AbsenceNotifier) AbsenceRecorded(ctx context.Context, q sqlx.ExtContext, student *models.User, course *models.Course, policy *models.AttendancePolicy, count int) (*OutboundEmail, error) {
	if policy == nil || !policy.NotifyParents {
		return nil, nil
	}

	var (
		priority models.NotificationPriority
		title    string
		body     string
	)
	switch {
	case count == policy.AlertThreshold:
		priority = models.PriorityUrgent
		title = "Alerta de inasistencias"
		body = fmt.Sprintf("%s acumula %d inasistencias en %s. Se requiere atención inmediata.",
			student.FullName(), count, course.Label())
	case count == policy.NoticeThreshold:
		priority = models.PriorityMedium
		title = "Aviso de inasistencias"
		body = fmt.Sprintf("%s acumula %d inasistencias en %s.",
			student.FullName(), count, course.Label())
	case policy.NotifyEveryAbsence:
		priority = models.PriorityLow
		title = "Inasistencia registrada"
		body = fmt.Sprintf("Se registró una inasistencia de %s en %s. Total acumulado: %d.",
			student.FullName(), course.Label(), count)
	default:
		return nil, nil
	}

	parent, err := n.parents.ParentOfTx(ctx, q, student.ID)
	if err != nil {
		return nil, fmt.Errorf("look up parent: %w", err)
	}
	if parent == nil {
		n.logger.Sugar().Debugw("absence threshold hit but student has no linked parent",
			"student_id", student.ID, "course_id", course.ID, "count", count)
		return nil, nil
	}

	if _, err := n.notifications.CreateTx(ctx, q, &models.Notification{
		UserID:    parent.ID,
		Category:  models.NotificationAttendance,
		Title:     title,
		Body:      body,
		Priority:  priority,
		StudentID: &student.ID,
	}); err != nil {
		return nil, fmt.Errorf("write notification: %w", err)
	}
	n.metrics.ParentAlerted(string(priority))

	if parent.Email == "" {
		n.logger.Sugar().Debugw("linked parent has no email address, skipping relay",
			"parent_id", parent.ID, "student_id", student.ID)
		return nil, nil
	}

	return &OutboundEmail{
		ToName:    parent.FullName(),
		ToAddress: parent.Email,
		Subject:   title,
		Body:      body,
	}, nil
}

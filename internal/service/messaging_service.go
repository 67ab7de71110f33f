package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type notificationCreator interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
}

type recipientResolver interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type studentParentLookup interface {
	ParentOf(ctx context.Context, studentID string) (*models.User, error)
}

// MessagingService sends staff-originated communications and citations. Both
// land in the recipient's notification inbox and go out by email relay.
type MessagingService struct {
	notifications notificationCreator
	users         recipientResolver
	parents       studentParentLookup
	relay         emailRelay
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewMessagingService constructs the messaging service.
func NewMessagingService(
	notifications notificationCreator,
	users recipientResolver,
	parents studentParentLookup,
	relay emailRelay,
	validate *validator.Validate,
	logger *zap.Logger,
) *MessagingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &MessagingService{
		notifications: notifications,
		users:         users,
		parents:       parents,
		relay:         relay,
		validator:     validate,
		logger:        logger,
	}
	_ = svc.validator.RegisterValidation("notification_priority", func(fl validator.FieldLevel) bool {
		return models.NotificationPriority(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// SendCommunicationRequest targets either a specific user or the linked
// parent of a student; exactly one of the two must be set.
type SendCommunicationRequest struct {
	RecipientID *string `json:"recipient_id" validate:"omitempty,uuid"`
	StudentID   *string `json:"student_id" validate:"omitempty,uuid"`
	Title       string  `json:"title" validate:"required,min=3"`
	Body        string  `json:"body" validate:"required,min=3"`
	Priority    string  `json:"priority" validate:"omitempty,notification_priority"`
}

// SendCommunication delivers a message to the resolved recipient.
func (s *MessagingService) SendCommunication(ctx context.Context, actor Actor, req SendCommunicationRequest) (*models.Notification, error) {
	if !actor.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid communication payload")
	}
	if (req.RecipientID == nil) == (req.StudentID == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of recipient_id or student_id is required")
	}

	recipient, studentID, err := s.resolveRecipient(ctx, req.RecipientID, req.StudentID)
	if err != nil {
		return nil, err
	}

	priority := models.PriorityMedium
	if req.Priority != "" {
		priority = models.NotificationPriority(strings.ToLower(req.Priority))
	}

	created, err := s.notifications.Create(ctx, &models.Notification{
		UserID:    recipient.ID,
		Category:  models.NotificationCommunication,
		Title:     req.Title,
		Body:      req.Body,
		Priority:  priority,
		SenderID:  &actor.ID,
		StudentID: studentID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create communication")
	}

	s.relay.Enqueue(OutboundEmail{
		ToName:    recipient.FullName(),
		ToAddress: recipient.Email,
		Subject:   req.Title,
		Body:      req.Body,
	})
	return created, nil
}

// SendCitationRequest summons a student's parent to a meeting.
type SendCitationRequest struct {
	StudentID   string  `json:"student_id" validate:"required,uuid"`
	Motive      string  `json:"motive" validate:"required,min=3"`
	MeetingDate string  `json:"meeting_date" validate:"required"`
	MeetingTime string  `json:"meeting_time" validate:"required"`
	Location    *string `json:"location"`
}

// SendCitation notifies the student's linked parent of a required meeting.
func (s *MessagingService) SendCitation(ctx context.Context, actor Actor, req SendCitationRequest) (*models.Notification, error) {
	if !actor.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid citation payload")
	}
	meetingDate, err := time.Parse("2006-01-02", req.MeetingDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid meeting date, expected YYYY-MM-DD")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student == nil || student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	parent, err := s.parents.ParentOf(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}
	if parent == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no linked parent")
	}

	title := "Citación"
	body := fmt.Sprintf("Se le cita por el estudiante %s. Motivo: %s. Fecha: %s %s.",
		student.FullName(), req.Motive, req.MeetingDate, req.MeetingTime)
	if req.Location != nil && *req.Location != "" {
		body += " Lugar: " + *req.Location + "."
	}

	created, err := s.notifications.Create(ctx, &models.Notification{
		UserID:      parent.ID,
		Category:    models.NotificationCitation,
		Title:       title,
		Body:        body,
		Priority:    models.PriorityHigh,
		SenderID:    &actor.ID,
		StudentID:   &student.ID,
		MeetingDate: &meetingDate,
		MeetingTime: &req.MeetingTime,
		Location:    req.Location,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create citation")
	}

	s.relay.Enqueue(OutboundEmail{
		ToName:    parent.FullName(),
		ToAddress: parent.Email,
		Subject:   title,
		Body:      body,
	})
	return created, nil
}

func (s *MessagingService) resolveRecipient(ctx context.Context, recipientID, studentID *string) (*models.User, *string, error) {
	if recipientID != nil {
		user, err := s.users.FindByID(ctx, *recipientID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipient")
		}
		if user == nil {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
		}
		return user, nil, nil
	}

	parent, err := s.parents.ParentOf(ctx, *studentID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}
	if parent == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student has no linked parent")
	}
	return parent, studentID, nil
}

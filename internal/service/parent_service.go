package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/aprendesoft/colegio-api/internal/models"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type parentRepository interface {
	Link(ctx context.Context, parentID, studentID string, relationship *string) (*models.ParentLink, error)
	LinkTx(ctx context.Context, q sqlx.ExtContext, parentID, studentID string, relationship *string) (*models.ParentLink, error)
	Unlink(ctx context.Context, parentID, studentID string) (bool, error)
	ParentOf(ctx context.Context, studentID string) (*models.User, error)
	StudentsOf(ctx context.Context, parentID string) ([]models.User, error)
	CreateInvitation(ctx context.Context, inv *models.ParentInvitation) (*models.ParentInvitation, error)
	FindPendingInvitation(ctx context.Context, code string) (*models.ParentInvitation, error)
	AcceptInvitationTx(ctx context.Context, q sqlx.ExtContext, id string) error
	CreateUserTx(ctx context.Context, q sqlx.ExtContext, u *models.User) (*models.User, error)
}

type parentUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// ParentService manages parent↔student links and the invitation flow.
type ParentService struct {
	links     parentRepository
	users     parentUserReader
	tx        transactor
	relay     emailRelay
	validator *validator.Validate
	logger    *zap.Logger
}

// NewParentService constructs the parent service.
func NewParentService(
	links parentRepository,
	users parentUserReader,
	tx transactor,
	relay emailRelay,
	validate *validator.Validate,
	logger *zap.Logger,
) *ParentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParentService{
		links:     links,
		users:     users,
		tx:        tx,
		relay:     relay,
		validator: validate,
		logger:    logger,
	}
}

// AssignRequest links a parent account to a student.
type AssignRequest struct {
	ParentID     string  `json:"parent_id" validate:"required,uuid"`
	StudentID    string  `json:"student_id" validate:"required,uuid"`
	Relationship *string `json:"relationship"`
}

// Assign links a parent to a student. A student keeps at most one parent; a
// new assignment replaces any existing link.
func (s *ParentService) Assign(ctx context.Context, actor Actor, req AssignRequest) (*models.ParentLink, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	parent, err := s.users.FindByID(ctx, req.ParentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}
	if parent == nil || parent.Role != models.RoleParent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "parent account not found")
	}
	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student == nil || student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student account not found")
	}

	link, err := s.links.Link(ctx, req.ParentID, req.StudentID, req.Relationship)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link parent")
	}
	return link, nil
}

// UnassignRequest removes a parent↔student link.
type UnassignRequest struct {
	ParentID  string `json:"parent_id" validate:"required,uuid"`
	StudentID string `json:"student_id" validate:"required,uuid"`
}

// Unassign removes the link between a parent and a student.
func (s *ParentService) Unassign(ctx context.Context, actor Actor, req UnassignRequest) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	removed, err := s.links.Unlink(ctx, req.ParentID, req.StudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlink parent")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "parent link not found")
	}
	return nil
}

// ParentOfStudent returns the parent linked to a student.
func (s *ParentService) ParentOfStudent(ctx context.Context, actor Actor, studentID string) (*models.User, error) {
	if !actor.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	parent, err := s.links.ParentOf(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}
	if parent == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no linked parent")
	}
	return parent, nil
}

// InviteRequest emails an invitation code to a future parent account.
type InviteRequest struct {
	StudentID   string `json:"student_id" validate:"required,uuid"`
	ParentEmail string `json:"parent_email" validate:"required,email"`
}

// Invite creates an invitation code and emails it. Codes expire after a week.
func (s *ParentService) Invite(ctx context.Context, actor Actor, req InviteRequest) (*models.ParentInvitation, error) {
	if !actor.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invitation payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student == nil || student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	code, err := invitationCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}
	expires := time.Now().AddDate(0, 0, 7)
	created, err := s.links.CreateInvitation(ctx, &models.ParentInvitation{
		StudentID:   req.StudentID,
		ParentEmail: strings.ToLower(req.ParentEmail),
		Code:        code,
		ExpiresAt:   &expires,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invitation")
	}

	s.relay.Enqueue(OutboundEmail{
		ToName:    req.ParentEmail,
		ToAddress: req.ParentEmail,
		Subject:   "Invitación a AprendeSoft",
		Body: fmt.Sprintf("Ha sido invitado a seguir la asistencia de %s. Use el código %s para crear su cuenta.",
			student.FullName(), code),
	})
	return created, nil
}

// AcceptInvitationRequest redeems an invitation code into a parent account.
type AcceptInvitationRequest struct {
	Code      string  `json:"code" validate:"required"`
	FirstName string  `json:"first_name" validate:"required,min=2"`
	LastName  string  `json:"last_name" validate:"required,min=2"`
	Password  string  `json:"password" validate:"required,min=8"`
	Phone     *string `json:"phone"`
}

// AcceptInvitation creates the parent account, links it to the student and
// consumes the code, all in one transaction.
func (s *ParentService) AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid acceptance payload")
	}

	inv, err := s.links.FindPendingInvitation(ctx, req.Code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up invitation")
	}
	if inv == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "invitation code is invalid or expired")
	}

	existing, err := s.users.FindByEmail(ctx, inv.ParentEmail)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up account")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an account with the invited email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	var parent *models.User
	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		created, err := s.links.CreateUserTx(ctx, tx, &models.User{
			Email:        inv.ParentEmail,
			PasswordHash: string(hash),
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         models.RoleParent,
			Phone:        req.Phone,
		})
		if err != nil {
			return err
		}
		if _, err := s.links.LinkTx(ctx, tx, created.ID, inv.StudentID, nil); err != nil {
			return err
		}
		if err := s.links.AcceptInvitationTx(ctx, tx, inv.ID); err != nil {
			return err
		}
		parent = created
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept invitation")
	}
	return parent, nil
}

// StudentsOfParent lists the students linked to the calling parent.
func (s *ParentService) StudentsOfParent(ctx context.Context, actor Actor) ([]models.User, error) {
	if actor.Role != models.RoleParent {
		return nil, appErrors.ErrForbidden
	}
	students, err := s.links.StudentsOf(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// invitationCode generates an 8-character uppercase code.
func invitationCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aprendesoft/colegio-api/internal/models"
)

type ParentRepository struct {
	db *sqlx.DB
}

func NewParentRepository(db *sqlx.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

// Link assigns a parent to a student. The unique index on student_id makes a
// second assignment replace the first.
func (r *ParentRepository) Link(ctx context.Context, parentID, studentID string, relationship *string) (*models.ParentLink, error) {
	query := `INSERT INTO parent_links (parent_id, student_id, relationship)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			relationship = EXCLUDED.relationship
		RETURNING id, parent_id, student_id, relationship`
	var link models.ParentLink
	if err := r.db.GetContext(ctx, &link, query, parentID, studentID, relationship); err != nil {
		return nil, fmt.Errorf("link parent: %w", err)
	}
	return &link, nil
}

func (r *ParentRepository) Unlink(ctx context.Context, parentID, studentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM parent_links WHERE parent_id = $1 AND student_id = $2`,
		parentID, studentID)
	if err != nil {
		return false, fmt.Errorf("unlink parent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlink parent: %w", err)
	}
	return affected > 0, nil
}

// ParentOf returns the parent user linked to the student, or nil when the
// student has none.
func (r *ParentRepository) ParentOf(ctx context.Context, studentID string) (*models.User, error) {
	var u models.User
	query := `SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role,
			u.active, u.phone, u.created_at, u.updated_at
		FROM parent_links pl
		JOIN users u ON u.id = pl.parent_id
		WHERE pl.student_id = $1 AND u.active = TRUE`
	if err := r.db.GetContext(ctx, &u, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find parent of student: %w", err)
	}
	return &u, nil
}

// ParentOfTx is the transactional variant used by the absence notifier.
func (r *ParentRepository) ParentOfTx(ctx context.Context, q sqlx.ExtContext, studentID string) (*models.User, error) {
	var u models.User
	query := `SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role,
			u.active, u.phone, u.created_at, u.updated_at
		FROM parent_links pl
		JOIN users u ON u.id = pl.parent_id
		WHERE pl.student_id = $1 AND u.active = TRUE`
	if err := sqlx.GetContext(ctx, q, &u, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find parent of student: %w", err)
	}
	return &u, nil
}

// StudentsOf returns the students linked to a parent account.
func (r *ParentRepository) StudentsOf(ctx context.Context, parentID string) ([]models.User, error) {
	var students []models.User
	query := `SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role,
			u.active, u.phone, u.created_at, u.updated_at
		FROM parent_links pl
		JOIN users u ON u.id = pl.student_id
		WHERE pl.parent_id = $1
		ORDER BY u.last_name, u.first_name`
	if err := r.db.SelectContext(ctx, &students, query, parentID); err != nil {
		return nil, fmt.Errorf("list students of parent: %w", err)
	}
	return students, nil
}

// IsLinked reports whether the parent is authorized for the student.
func (r *ParentRepository) IsLinked(ctx context.Context, parentID, studentID string) (bool, error) {
	var linked bool
	query := `SELECT EXISTS (SELECT 1 FROM parent_links WHERE parent_id = $1 AND student_id = $2)`
	if err := r.db.GetContext(ctx, &linked, query, parentID, studentID); err != nil {
		return false, fmt.Errorf("check parent link: %w", err)
	}
	return linked, nil
}

func (r *ParentRepository) CreateInvitation(ctx context.Context, inv *models.ParentInvitation) (*models.ParentInvitation, error) {
	query := `INSERT INTO parent_invitations (student_id, parent_email, code, status, expires_at)
		VALUES ($1, $2, $3, 'pending', $4)
		RETURNING id, student_id, parent_email, code, status, sent_at, expires_at`
	var created models.ParentInvitation
	err := r.db.GetContext(ctx, &created, query,
		inv.StudentID, inv.ParentEmail, inv.Code, inv.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("create parent invitation: %w", err)
	}
	return &created, nil
}

// FindPendingInvitation resolves an unexpired pending invitation by code.
func (r *ParentRepository) FindPendingInvitation(ctx context.Context, code string) (*models.ParentInvitation, error) {
	var inv models.ParentInvitation
	query := `SELECT id, student_id, parent_email, code, status, sent_at, expires_at
		FROM parent_invitations
		WHERE code = $1 AND status = 'pending' AND (expires_at IS NULL OR expires_at > NOW())`
	if err := r.db.GetContext(ctx, &inv, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find parent invitation: %w", err)
	}
	return &inv, nil
}

func (r *ParentRepository) AcceptInvitationTx(ctx context.Context, q sqlx.ExtContext, id string) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE parent_invitations SET status = 'accepted' WHERE id = $1`, id); err != nil {
		return fmt.Errorf("accept parent invitation: %w", err)
	}
	return nil
}

// CreateUserTx inserts the parent account inside the acceptance transaction.
func (r *ParentRepository) CreateUserTx(ctx context.Context, q sqlx.ExtContext, u *models.User) (*models.User, error) {
	query := `INSERT INTO users (email, password_hash, first_name, last_name, role, active, phone)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING id, email, password_hash, first_name, last_name, role, active, phone, created_at, updated_at`
	var created models.User
	err := sqlx.GetContext(ctx, q, &created, query,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.Phone)
	if err != nil {
		return nil, fmt.Errorf("create parent user: %w", err)
	}
	return &created, nil
}

// LinkTx is the transactional variant of Link.
func (r *ParentRepository) LinkTx(ctx context.Context, q sqlx.ExtContext, parentID, studentID string, relationship *string) (*models.ParentLink, error) {
	query := `INSERT INTO parent_links (parent_id, student_id, relationship)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			relationship = EXCLUDED.relationship
		RETURNING id, parent_id, student_id, relationship`
	var link models.ParentLink
	if err := sqlx.GetContext(ctx, q, &link, query, parentID, studentID, relationship); err != nil {
		return nil, fmt.Errorf("link parent: %w", err)
	}
	return &link, nil
}

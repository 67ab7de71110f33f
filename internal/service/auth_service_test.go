package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/aprendesoft/colegio-api/internal/models"
	"github.com/aprendesoft/colegio-api/pkg/config"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type mockUserRepo struct {
	users map[string]*models.User
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

type mockTokenRepo struct {
	stored map[string]*models.RefreshToken
}

func (m *mockTokenRepo) Store(ctx context.Context, t *models.RefreshToken) error {
	if m.stored == nil {
		m.stored = make(map[string]*models.RefreshToken)
	}
	cp := *t
	m.stored[t.TokenHash] = &cp
	return nil
}

func (m *mockTokenRepo) Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	if t, ok := m.stored[tokenHash]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *mockTokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	now := time.Now()
	for _, t := range m.stored {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *mockTokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	if t, ok := m.stored[tokenHash]; ok && t.RevokedAt == nil {
		now := time.Now()
		t.RevokedAt = &now
	}
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *mockUserRepo, *mockTokenRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secreto123"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &mockUserRepo{users: map[string]*models.User{
		"ana@example.com": {
			ID: testStudentID, Email: "ana@example.com", PasswordHash: string(hash),
			FirstName: "Ana", LastName: "García", Role: models.RoleStudent, Active: true,
		},
	}}
	tokens := &mockTokenRepo{}
	cfg := config.JWTConfig{
		Secret:            "test_secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
		Issuer:            "colegio-api",
	}
	return NewAuthService(users, tokens, cfg, nil, zap.NewNop()), users, tokens
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "ana@example.com", Password: "secreto123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "Ana García", resp.User.FullName)
	assert.Len(t, tokens.stored, 1)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testStudentID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "ana@example.com", Password: "otra",
	})
	assertAppError(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "nadie@example.com", Password: "secreto123",
	})
	assertAppError(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	users.users["ana@example.com"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "ana@example.com", Password: "secreto123",
	})
	assertAppError(t, err, appErrors.ErrInactiveAccount)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "ana@example.com", Password: "secreto123",
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.Len(t, tokens.stored, 2)

	// the presented token was revoked during rotation
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	assertAppError(t, err, appErrors.ErrUnauthorized)
}

func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "ana@example.com", Password: "secreto123",
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)

	// replaying the rotated-out token invalidates every open session
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	assertAppError(t, err, appErrors.ErrUnauthorized)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{
		RefreshToken: refreshed.RefreshToken,
	})
	assertAppError(t, err, appErrors.ErrUnauthorized)
	for _, stored := range tokens.stored {
		assert.NotNil(t, stored.RevokedAt)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "ana@example.com", Password: "secreto123",
	})
	require.NoError(t, err)

	for _, stored := range tokens.stored {
		stored.ExpiresAt = time.Now().Add(-time.Minute)
	}
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	assertAppError(t, err, appErrors.ErrUnauthorized)
}

func TestValidateTokenRejectsForgedSignature(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	other := NewAuthService(&mockUserRepo{}, &mockTokenRepo{}, config.JWTConfig{
		Secret: "another_secret", Expiration: time.Hour, RefreshExpiration: time.Hour,
	}, nil, zap.NewNop())

	forged, err := other.issueTokens(context.Background(), &models.User{
		ID: testStudentID, Email: "ana@example.com", Role: models.RoleStudent, Active: true,
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(forged.AccessToken)
	assertAppError(t, err, appErrors.ErrUnauthorized)
}

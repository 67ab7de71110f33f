package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprendesoft/colegio-api/internal/models"
)

func TestTokenRepositoryStoreAndFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)
	expires := time.Now().Add(24 * time.Hour)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs("user-1", "hash-1", expires).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Store(context.Background(), &models.RefreshToken{
		UserID: "user-1", TokenHash: "hash-1", ExpiresAt: expires,
	})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"}).
		AddRow("tok-1", "user-1", "hash-1", expires, nil, time.Now())
	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash = \$1`).
		WithArgs("hash-1").
		WillReturnRows(rows)

	stored, err := repo.Find(context.Background(), "hash-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Usable(time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryFindMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash = \$1`).
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"}))

	stored, err := repo.Find(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRevoke(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at = NOW\(\) WHERE token_hash = \$1 AND revoked_at IS NULL`).
		WithArgs("hash-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Revoke(context.Background(), "hash-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

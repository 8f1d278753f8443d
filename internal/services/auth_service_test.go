package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/haszKEJL/Projekt-PAI/internal/db/models"
)

func newTestAuthService(t *testing.T) (*AuthService, *gorm.DB) {
	t.Helper()
	database := newTestDB(t)
	return NewAuthService(database, "test-secret", time.Hour, 4, zap.NewNop()), database
}

func seedUser(t *testing.T, auth *AuthService, database *gorm.DB, username, password string, role models.UserRole, active bool) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		ActiveStatus: active,
	}
	require.NoError(t, database.Create(user).Error)
	if !active {
		// Zero-valued fields with a column default are skipped on insert,
		// so the flag has to be lowered explicitly.
		require.NoError(t, database.Model(user).Update("active_status", false).Error)
	}
	return user
}

func TestAuthenticate(t *testing.T) {
	auth, database := newTestAuthService(t)
	ctx := context.Background()
	seedUser(t, auth, database, "alice", "correct-horse", models.RoleUser, true)

	user, err := auth.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = auth.Authenticate(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Authenticate(ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateInactiveUser(t *testing.T) {
	auth, database := newTestAuthService(t)
	seedUser(t, auth, database, "ghost", "password", models.RoleUser, false)

	_, err := auth.Authenticate(context.Background(), "ghost", "password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenRoundtrip(t *testing.T) {
	auth, database := newTestAuthService(t)
	ctx := context.Background()
	user := seedUser(t, auth, database, "admin", "password", models.RoleAdmin, true)

	token, err := auth.IssueToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := auth.ParseToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "admin", parsed.Username)
	assert.Equal(t, models.RoleAdmin, parsed.Role)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth, _ := newTestAuthService(t)

	_, err := auth.ParseToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.ParseToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	database := newTestDB(t)
	auth := NewAuthService(database, "test-secret", -time.Hour, 4, zap.NewNop())
	user := seedUser(t, auth, database, "late", "password", models.RoleUser, true)

	token, err := auth.IssueToken(user)
	require.NoError(t, err)

	_, err = auth.ParseToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	database := newTestDB(t)
	issuer := NewAuthService(database, "secret-one", time.Hour, 4, zap.NewNop())
	verifier := NewAuthService(database, "secret-two", time.Hour, 4, zap.NewNop())
	user := seedUser(t, issuer, database, "crosswise", "password", models.RoleUser, true)

	token, err := issuer.IssueToken(user)
	require.NoError(t, err)

	_, err = verifier.ParseToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenForDeactivatedUser(t *testing.T) {
	auth, database := newTestAuthService(t)
	user := seedUser(t, auth, database, "revoked", "password", models.RoleUser, true)

	token, err := auth.IssueToken(user)
	require.NoError(t, err)

	require.NoError(t, database.Model(user).Update("active_status", false).Error)

	_, err = auth.ParseToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

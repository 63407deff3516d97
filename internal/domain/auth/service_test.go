package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recuento/internal/core/apperror"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("secreta123")
	require.NoError(t, err)
	users := []User{{ID: "u1", Username: "almacen", PasswordHash: hash}}
	jwtSvc := NewJWTService(DefaultJWTConfig("test-secret"))
	return NewService(users, jwtSvc, DefaultServiceConfig())
}

func TestLogin_Success(t *testing.T) {
	svc := newTestService(t)

	tok, err := svc.Login(context.Background(), Credentials{Username: "almacen", Password: "secreta123"})
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.True(t, tok.ExpiresAt.After(time.Now()))
}

func TestLogin_TokenCarriesUserContext(t *testing.T) {
	svc := newTestService(t)
	jwtSvc := NewJWTService(DefaultJWTConfig("test-secret"))

	tok, err := svc.Login(context.Background(), Credentials{Username: "almacen", Password: "secreta123"})
	require.NoError(t, err)

	user, err := jwtSvc.ValidateToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
	assert.Equal(t, "almacen", user.Username)
	assert.NotEmpty(t, user.SessionID)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Login(context.Background(), Credentials{Username: "almacen", Password: "nope"})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeUnauthorized, appErr.Code)
}

func TestLogin_UnknownUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Login(context.Background(), Credentials{Username: "nadie", Password: "secreta123"})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeUnauthorized, appErr.Code)
}

func TestLogin_EmptyCredentials(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Login(context.Background(), Credentials{})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < DefaultServiceConfig().MaxLoginAttempts; i++ {
		_, err := svc.Login(ctx, Credentials{Username: "almacen", Password: "nope"})
		require.Error(t, err)
	}

	// Even the right password is rejected while locked.
	_, err := svc.Login(ctx, Credentials{Username: "almacen", Password: "secreta123"})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)
}

func TestValidateToken_RejectsTamperedSecret(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("secret-a"))
	verifier := NewJWTService(DefaultJWTConfig("secret-b"))

	tok, _, err := issuer.GenerateAccessToken("u1", "almacen", "s1")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(tok)
	assert.Error(t, err)
}

func TestValidateToken_RejectsGarbage(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}

package service

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/ledger/memory"
	"github.com/avolkov/bankcore/internal/middleware"
	"github.com/avolkov/bankcore/internal/models"
)

func TestRegisterAndLogin(t *testing.T) {
	store := memory.NewStore()
	cfg := testConfig()
	svc := NewUserService(store, testLogger(), cfg)

	user, err := svc.Register(context.Background(), "alice", "alice@example.com", "s3cret-pass", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, user.Role)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	tokenString, err := svc.Login(context.Background(), "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	claims := &middleware.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "1", claims.Subject)
	assert.Equal(t, string(models.RoleCustomer), claims.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	store := memory.NewStore()
	svc := NewUserService(store, testLogger(), testConfig())

	_, err := svc.Register(context.Background(), "alice", "alice@example.com", "s3cret-pass", "")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice@example.com", "wrong")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = svc.Login(context.Background(), "nobody@example.com", "s3cret-pass")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	store := memory.NewStore()
	svc := NewUserService(store, testLogger(), testConfig())

	_, err := svc.Register(context.Background(), "alice", "alice@example.com", "s3cret-pass", "")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "alice2", "alice@example.com", "other-pass", "")
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

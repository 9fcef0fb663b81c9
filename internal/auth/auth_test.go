package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/store"
	"github.com/sujalbistaa/entrenous/internal/testutil"
)

func newService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.EmailLookupPepper = "test-pepper"
	svc := NewService(store.New(testutil.NewDB(t), testutil.NewBox(t)), &cfg)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, " Alice@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.NotContains(t, user.EmailLookup, "alice")

	_, err = svc.Register(ctx, "alice@example.com", "another one")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	tok, err := svc.Login(ctx, "ALICE@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, user.ID, tok.UserID)

	id, err := svc.ValidateToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, err = svc.Login(ctx, "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "no-at-sign", "long enough")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Register(ctx, "a@b.c", "short")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestChangePassword(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "bob@example.com", "first password")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong", "second password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "first password", "second password"))
	_, err = svc.Login(ctx, "bob@example.com", "first password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Login(ctx, "bob@example.com", "second password")
	assert.NoError(t, err)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := newService(t)
	now := time.Now()
	svc.now = func() time.Time { return now }

	tok, err := svc.IssueToken(42)
	require.NoError(t, err)

	_, err = svc.ValidateToken(tok.AccessToken + "x")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	now = now.Add(svc.ttl + time.Minute)
	_, err = svc.ValidateToken(tok.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized, "expired")

	now = time.Now()
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(svc.secret)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized, "wrong issuer")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "42", Issuer: svc.issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(none)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized, "alg none")
}

func TestEmailLookupIsStable(t *testing.T) {
	svc := newService(t)
	assert.Equal(t, svc.EmailLookup("A@B.com"), svc.EmailLookup(" a@b.com"))
	assert.Len(t, svc.EmailLookup("a@b.com"), 64)
}

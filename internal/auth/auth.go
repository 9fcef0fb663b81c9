// Package auth issues and validates the opaque bearer credential that
// identifies a caller. Email addresses are stored only as a keyed lookup hash.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/logger"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/store"
)

const (
	minEmailLength    = 3
	maxEmailLength    = 254
	minPasswordLength = 8
	maxPasswordLength = 128
)

var errInvalidCredentials = apperr.Unauthorized("invalid credentials")

type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id uint) (*models.User, error)
	UserByEmailLookup(ctx context.Context, lookup string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id uint, hash string) error
}

type Token struct {
	UserID      uint      `json:"-"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Service struct {
	store  Store
	secret []byte
	pepper []byte
	issuer string
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

func NewService(s Store, cfg *config.Config) *Service {
	return &Service{
		store:  s,
		secret: []byte(cfg.JWTSecret),
		pepper: []byte(cfg.EmailLookupPepper),
		issuer: cfg.JWTIssuer,
		ttl:    cfg.AccessTokenTTL,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// EmailLookup returns the keyed hash stored in place of the address.
func (s *Service) EmailLookup(email string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if n := utf8.RuneCountInString(email); n < minEmailLength || n > maxEmailLength || !strings.Contains(email, "@") {
		return nil, apperr.Validation("email", "invalid email")
	}
	if err := validatePassword("password", password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	user := &models.User{EmailLookup: s.EmailLookup(email), PasswordHash: string(hash)}
	err = s.store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Conflict("account")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	logger.Log.Info("User registered", logger.WithUserID(user.ID))
	return user, nil
}

// Login checks credentials and issues an access token. Unknown emails and
// wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	user, err := s.store.UserByEmailLookup(ctx, s.EmailLookup(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errInvalidCredentials
	}
	return s.IssueToken(user.ID)
}

// ChangePassword rotates the credential hash, the only mutable part of a user.
func (s *Service) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	if err := validatePassword("new_password", next); err != nil {
		return err
	}
	user, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return errInvalidCredentials
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return errInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.store.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return apperr.Internal(err)
	}
	logger.Log.Info("Password rotated", logger.WithUserID(userID))
	return nil
}

func (s *Service) IssueToken(userID uint) (*Token, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Token{UserID: userID, AccessToken: signed, TokenType: "bearer", ExpiresAt: expires.UTC()}, nil
}

// ValidateToken resolves a bearer token to a user id.
func (s *Service) ValidateToken(tokenString string) (uint, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		logger.Log.Debug("Rejected bearer token", zap.Error(err))
		return 0, apperr.Unauthorized("invalid token")
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Unauthorized("invalid token")
	}
	return uint(id), nil
}

func validatePassword(field, password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		return apperr.Validation(field, "password is too short")
	}
	if n > maxPasswordLength {
		return apperr.Validation(field, "password is too long")
	}
	return nil
}

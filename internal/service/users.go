package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/config"
	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/middleware"
	"github.com/avolkov/bankcore/internal/models"
)

// UserService handles registration, authentication and user lookup.
type UserService struct {
	store ledger.Store
	log   *logrus.Logger
	cfg   *config.Config
}

// NewUserService initializes a new user service
func NewUserService(store ledger.Store, log *logrus.Logger, cfg *config.Config) *UserService {
	return &UserService{store: store, log: log, cfg: cfg}
}

// Register creates a new user with hashed password
func (s *UserService) Register(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if role == "" {
		role = models.RoleCustomer
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: string(hashedPassword),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return "", apperr.New(apperr.KindForbidden, "invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", apperr.New(apperr.KindForbidden, "invalid credentials")
	}

	claims := middleware.Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return tokenString, nil
}

// FindByID looks up a user; account creation uses it to confirm the owning
// user exists.
func (s *UserService) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.store.UserByID(ctx, id)
}

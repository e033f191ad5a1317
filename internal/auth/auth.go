// Package auth resolves bearer credentials to user identities and
// handles registration and login. Password hashing is an explicit step
// of these use cases, never an implicit persistence hook.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/store"
)

// ErrInvalidCredentials is the uniform failure for every
// authentication problem: missing token, bad signature, expired token,
// unknown user, wrong password. Callers are never told which.
var ErrInvalidCredentials = errors.New("invalid credentials")

const tokenTTL = 24 * time.Hour

// Claims is the JWT payload issued at login.
type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// Service issues and verifies credentials.
type Service struct {
	logger *slog.Logger
	db     *gorm.DB
	secret []byte
	issuer string
}

// NewService creates a new Service.
func NewService(logger *slog.Logger, db *gorm.DB, secret string) (*Service, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}

	return &Service{
		logger: logger,
		db:     db,
		secret: []byte(secret),
		issuer: "homesense-backend",
	}, nil
}

// HashPassword bcrypt-hashes a plaintext password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password cannot be empty", store.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RegisterParams describes a new account.
type RegisterParams struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// Register creates a user with an explicitly hashed credential. A
// taken email fails with Conflict.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*store.User, error) {
	if p.Email == "" || !strings.Contains(p.Email, "@") {
		return nil, fmt.Errorf("%w: invalid email", store.ErrInvalidInput)
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	var existing store.User
	err = s.db.WithContext(ctx).Where("email = ?", p.Email).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: email already registered", store.ErrConflict)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	user := store.User{
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: hash,
		PhoneNumber:  p.Phone,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return &user, nil
}

// Login verifies email and password and returns a signed token. Any
// failure is ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, *store.User, error) {
	var user store.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return token, &user, nil
}

// GenerateToken issues an HS256 token for the user, valid for 24h.
func (s *Service) GenerateToken(userID uint) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token and returns the user id it carries.
func (s *Service) ParseToken(tokenString string) (uint, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidCredentials
	}
	return claims.UserID, nil
}

// ResolveBearer resolves an Authorization header value to the user it
// identifies.
func (s *Service) ResolveBearer(ctx context.Context, header string) (*store.User, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, ErrInvalidCredentials
	}

	userID, err := s.ParseToken(strings.TrimPrefix(header, prefix))
	if err != nil {
		return nil, err
	}

	var user store.User
	err = s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

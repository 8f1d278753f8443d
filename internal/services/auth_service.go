package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/haszKEJL/Projekt-PAI/internal/db/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// AuthService authenticates users and issues stateless HS256 bearer tokens.
type AuthService struct {
	db         *gorm.DB
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	logger     *zap.Logger
}

func NewAuthService(database *gorm.DB, secret string, ttl time.Duration, bcryptCost int, logger *zap.Logger) *AuthService {
	return &AuthService{
		db:         database,
		secret:     []byte(secret),
		ttl:        ttl,
		bcryptCost: bcryptCost,
		logger:     logger.With(zap.String("service", "auth_service")),
	}
}

func (as *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := as.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !user.ActiveStatus {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	as.db.WithContext(ctx).Model(&user).Update("last_login", time.Now())

	as.logger.Info("User authenticated",
		zap.String("username", user.Username),
		zap.Uint("user_id", user.ID),
	)
	return &user, nil
}

func (as *AuthService) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.Username,
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(as.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(as.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a bearer token and loads the user it names.
func (as *AuthService) ParseToken(ctx context.Context, tokenString string) (*models.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return as.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	username, _ := claims["sub"].(string)
	if username == "" {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := as.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, ErrInvalidToken
	}
	if !user.ActiveStatus {
		return nil, ErrInvalidToken
	}
	return &user, nil
}

// HashPassword produces the stored bcrypt hash for a password.
func (as *AuthService) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), as.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Roles carried in the session token.
const (
	RoleAnnotator = "annotator"
	RoleAdmin     = "admin"
)

var (
	// ErrInvalidCredentials means the submitted passphrase matched neither
	// the annotator nor the admin password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims is the JWT payload for a gated session.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService implements the shared-passphrase gate. The submitted secret
// is compared in constant time and never stored or logged; on success the
// caller gets a signed token carrying only a role.
type AuthService struct {
	appPassword   string
	adminPassword string
	secret        []byte
	tokenTTL      time.Duration
	logger        *zap.Logger
}

// NewAuthService creates the gate from configured passphrases.
func NewAuthService(appPassword, adminPassword, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		appPassword:   appPassword,
		adminPassword: adminPassword,
		secret:        []byte(jwtSecret),
		tokenTTL:      tokenTTL,
		logger:        logger,
	}
}

// Login checks the passphrase and issues a session token. The admin
// passphrase grants the admin role; the app passphrase grants annotator.
func (s *AuthService) Login(password string) (string, time.Time, error) {
	role := ""
	switch {
	case s.adminPassword != "" && subtle.ConstantTimeCompare([]byte(password), []byte(s.adminPassword)) == 1:
		role = RoleAdmin
	case s.appPassword != "" && subtle.ConstantTimeCompare([]byte(password), []byte(s.appPassword)) == 1:
		role = RoleAnnotator
	default:
		return "", time.Time{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.tokenTTL)

	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("Login succeeded", zap.String("role", role))

	return signed, expiresAt, nil
}

// Secret exposes the signing key to the auth middleware.
func (s *AuthService) Secret() []byte {
	return s.secret
}

package jwt

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// JWTClaims represents the claims in a JWT token
type JWTClaims struct {
	UserID   uint   `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service issues and validates session tokens
type Service struct {
	secretKey string
	expiry    time.Duration
}

// NewService creates a new JWT service
func NewService(secretKey string, expiry time.Duration) *Service {
	if secretKey == "" {
		secretKey = getSecretKey()
	}

	if expiry == 0 {
		expiry = 24 * time.Hour // Default to 24 hours
	}

	return &Service{
		secretKey: secretKey,
		expiry:    expiry,
	}
}

// GenerateToken generates a new JWT token for a user
func (s *Service) GenerateToken(userID uint, email, username string) (string, error) {
	now := time.Now()

	claims := &JWTClaims{
		UserID:   userID,
		Email:    email,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	// Parse the token
	token, err := jwt.ParseWithClaims(
		tokenString,
		&JWTClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(s.secretKey), nil
		},
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	// Extract claims
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Expiry returns the configured token lifetime
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// getSecretKey gets the JWT secret key from environment variables
func getSecretKey() string {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		// Fallback to a default secret for development (not recommended for production)
		secret = "devJwtSecretDoNotUseInProduction"
	}
	return secret
}

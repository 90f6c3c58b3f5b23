package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
)

const bcryptCost = 12

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// HashPassword returns the bcrypt hash stored in users.json.
func HashPassword(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("auth: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("auth: bcrypt: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// IsPasswordHash reports whether stored already looks like a bcrypt hash.
// Older users.json files hold plaintext passwords.
func IsPasswordHash(stored string) bool {
	if !strings.HasPrefix(stored, "$2") {
		return false
	}
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// Claims is the JWT payload of a logged-in portal user.
type Claims struct {
	Username string      `json:"usr"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal returns the caller identity carried by the token.
func (c *Claims) Principal() models.Principal {
	return models.Principal{UserID: c.Subject, Username: c.Username, Role: c.Role}
}

// IssueJWT signs a session token for a user.
func IssueJWT(secret string, p models.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: p.Username,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   p.UserID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyJWT validates a JWT and returns the claims.
func VerifyJWT(secret, tokenStr string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: jwt verify: %w", err)
	}
	if !claims.Role.Valid() || claims.Username == "" {
		return nil, fmt.Errorf("auth: jwt verify: malformed claims")
	}
	return &claims, nil
}

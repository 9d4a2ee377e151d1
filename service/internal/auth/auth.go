// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature, expiry or
	// subject checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrWrongPassword is returned when a game password does not match.
	ErrWrongPassword = errors.New("wrong game password")
)

const issuer = "palace"

// Claims identifies a player. The subject is the player id.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// PlayerID parses the subject claim.
func (c Claims) PlayerID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Issuer signs and verifies player tokens with an HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer for secret. A non-positive ttl issues tokens
// that never expire.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a new player id and a signed token for it.
func (i *Issuer) Issue(name string) (uuid.UUID, string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, "", err
	}
	tok, err := i.IssueFor(id, name)
	return id, tok, err
}

// IssueFor signs a token for an existing player id.
func (i *Issuer) IssueFor(id uuid.UUID, name string) (string, error) {
	now := i.now()
	claims := Claims{
		Name: strings.TrimSpace(name),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.String(),
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}

// Verify checks the token and returns its claims.
func (i *Issuer) Verify(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := claims.PlayerID(); err != nil {
		return Claims{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// HashPassword hashes a game password for storage.
func HashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword compares pw against a hash from HashPassword. An empty hash
// means the game has no password and accepts anything.
func CheckPassword(hash, pw string) error {
	if hash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

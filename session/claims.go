package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the user's role as carried in the access token.
type Role string

const (
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
	RoleAdmin     Role = "admin"
)

// ParseRole validates a raw role claim.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleStudent, RoleProfessor, RoleAdmin:
		return Role(raw), nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Errors returned by DecodeAccessToken. Any of them means the token is
// unusable and should be treated exactly like an absent token.
var (
	ErrTokenMalformed = errors.New("malformed access token")
	ErrTokenExpired   = errors.New("access token expired")
	ErrTokenNoRole    = errors.New("access token carries no usable role")
)

// Claims is the access-token payload issued by the backend.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// User is the identity derived from a decoded access token.
type User struct {
	ID    string
	Email string
	Name  string
	Role  Role
}

// DecodeAccessToken decodes the access token's claims and validates its
// lifetime against the expiry safety buffer: a token expiring within
// buffer counts as already expired, so it gets refreshed before it dies
// mid-request.
//
// The client holds no verification key (tokens are signed server-side), so
// the signature is not checked here; the backend rejects forged tokens
// with a 401 and the claims are only used for display and routing.
func DecodeAccessToken(raw string, buffer time.Duration) (*User, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}

	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry claim", ErrTokenMalformed)
	}
	if !time.Now().Add(buffer).Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenNoRole, err)
	}

	return &User{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  role,
	}, nil
}

package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Role of an authenticated caller.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// Principal is the caller an operation runs on behalf of. For admins the
// subject is also the administrative scope that owns classes.
type Principal struct {
	ID   string
	Role Role
}

// AdminScope returns the owning-administrator id the principal may act for.
func (p Principal) AdminScope() (string, bool) {
	if p.Role != RoleAdmin || p.ID == "" {
		return "", false
	}
	return p.ID, true
}

// Claims represents JWT payload. Tokens are minted by the identity
// service; only typ "access" is accepted here.
type Claims struct {
	Role      Role   `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Principal extracts the caller from verified claims.
func (c Claims) Principal() Principal {
	return Principal{ID: c.Subject, Role: c.Role}
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("missing subject")
	}
	return *claims, nil
}

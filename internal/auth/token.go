package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken  = errors.New("authorization header is missing")
	ErrMalformed     = errors.New("authorization header format must be 'Bearer {token}'")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Claims is what handlers need from an access token.
type Claims struct {
	UserID int64
	Email  string
	Roles  []string
}

func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Verifier turns a raw bearer token into claims.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMalformed
	}

	return parts[1], nil
}

// ClaimsFromMap reads the user id from 'sub' and the roles from either a
// 'roles' claim or Keycloak's realm_access.roles.
func ClaimsFromMap(m map[string]interface{}) (Claims, error) {
	sub, _ := m["sub"].(string)
	if sub == "" {
		return Claims{}, fmt.Errorf("%w: subject claim not found", ErrInvalidClaims)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: subject %q is not a user id", ErrInvalidClaims, sub)
	}

	c := Claims{UserID: userID}
	c.Email, _ = m["email"].(string)
	c.Roles = stringList(m["roles"])
	if realm, ok := m["realm_access"].(map[string]interface{}); ok {
		c.Roles = append(c.Roles, stringList(realm["roles"])...)
	}
	return c, nil
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// UnverifiedVerifier parses the JWT without checking its signature. It is
// only wired when AUTH_ENABLED is false, for local development.
type UnverifiedVerifier struct{}

func (UnverifiedVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	if rawToken == "" {
		return Claims{}, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidClaims
	}
	return ClaimsFromMap(claims)
}

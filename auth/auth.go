// Package auth checks sign-in credentials and issues the session tokens the
// API and WebSocket layers authenticate with.
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Sign-in and token sentinel errors. Used by both the api and ws packages.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid session token")
)

const sessionTokenTTL = 24 * time.Hour

// CheckCredentials returns the canonical username when the pair matches a
// configured user. Usernames compare case-insensitively; passwords exactly.
func CheckCredentials(users map[string]string, username, password string) (string, error) {
	want := strings.ToLower(strings.TrimSpace(username))
	for u, p := range users {
		if strings.ToLower(u) == want && p == password {
			return u, nil
		}
	}
	return "", ErrInvalidCredentials
}

// Signer issues and verifies HS256 session tokens bound to a session id.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer from the configured session secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Issue returns a signed token carrying the username and session id.
func (s *Signer) Issue(username, sessionID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"sid": sessionID,
		"iat": now.Unix(),
		"exp": now.Add(sessionTokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses a session token and returns the username and session id.
func (s *Signer) Verify(tokenString string) (username, sessionID string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidToken
	}
	username, _ = claims["sub"].(string)
	sessionID, _ = claims["sid"].(string)
	if username == "" || sessionID == "" {
		return "", "", ErrInvalidToken
	}
	return username, sessionID, nil
}

// ValidateExternalToken validates a JWT from an external identity provider
// using its JWKS endpoint and returns the claims. baseURL comes from
// AUTH_BASE_URL; sign-in with provider tokens is disabled when it is unset.
func ValidateExternalToken(baseURL, tokenString string) (jwt.MapClaims, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("AUTH_BASE_URL is not set")
	}
	jwksURL := baseURL + "/.well-known/jwks.json"

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	expectedIssuer := u.Scheme + "://" + u.Host

	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(tokenString, jwks.Keyfunc,
		jwt.WithIssuer(expectedIssuer),
		jwt.WithValidMethods([]string{"EdDSA", "RS256"}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// UsernameFromClaims returns a display username from external IdP claims:
// the "name" claim, falling back to "sub".
func UsernameFromClaims(claims jwt.MapClaims) string {
	if name, _ := claims["name"].(string); strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		return sub
	}
	return ""
}

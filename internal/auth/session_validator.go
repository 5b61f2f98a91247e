package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	ErrMissingIssuer        = errors.New("auth: issuer required")
	ErrMissingCookieName    = errors.New("auth: cookie name required")
	ErrMissingToken         = errors.New("auth: session token required")
	ErrInvalidToken         = errors.New("auth: invalid session token")
	ErrExpiredToken         = errors.New("auth: session token expired")
	ErrMissingSubject       = errors.New("auth: session subject required")
)

// SessionClaims is the session JWT payload. UserID may carry a "provider:subject" pair.
type SessionClaims struct {
	UserID          string   `json:"user_id"`
	UserEmail       string   `json:"user_email"`
	UserDisplayName string   `json:"user_display_name,omitempty"`
	UserAvatarURL   string   `json:"user_avatar_url,omitempty"`
	UserRoles       []string `json:"user_roles,omitempty"`
	jwt.RegisteredClaims
}

type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator checks HS256 session tokens presented as a cookie or a bearer header.
type SessionValidator struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	clock         func() time.Time
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingCookieName
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		clock:         clock,
	}, nil
}

func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken parses and verifies a signed session token.
func (v *SessionValidator) ValidateToken(raw string) (SessionClaims, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return SessionClaims{}, ErrMissingToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.signingSecret, nil },
		jwt.WithTimeFunc(v.clock),
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return SessionClaims{}, ErrExpiredToken
	case err != nil:
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case parsed == nil || !parsed.Valid:
		return SessionClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" && strings.TrimSpace(claims.UserID) == "" {
		return SessionClaims{}, ErrMissingSubject
	}
	return *claims, nil
}

// ValidateRequest reads the session cookie, falling back to an Authorization bearer token.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	token, ok := RequestToken(r, v.cookieName)
	if !ok {
		return SessionClaims{}, ErrMissingToken
	}
	return v.ValidateToken(token)
}

// RequestToken extracts the raw session token from the named cookie or the bearer header.
func RequestToken(r *http.Request, cookieName string) (string, bool) {
	if r == nil {
		return "", false
	}
	if cookie, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return cookie.Value, true
	}
	header := r.Header.Get("Authorization")
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):]), true
	}
	return "", false
}

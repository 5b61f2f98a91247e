package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 12 * time.Hour

var errMissingUserID = errors.New("auth: user id required")

type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer mints session tokens accepted by SessionValidator. Operators use it to create
// tokens for local development and service accounts.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// TokenRequest describes the session to mint.
type TokenRequest struct {
	UserID      string
	Email       string
	DisplayName string
	Roles       []string
}

// Issue signs a session token and returns it with its expiry.
func (i *TokenIssuer) Issue(request TokenRequest) (string, time.Time, error) {
	userID := strings.TrimSpace(request.UserID)
	if userID == "" {
		return "", time.Time{}, errMissingUserID
	}
	tokenID, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, err
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	claims := SessionClaims{
		UserID:          userID,
		UserEmail:       strings.TrimSpace(request.Email),
		UserDisplayName: strings.TrimSpace(request.DisplayName),
		UserRoles:       append([]string(nil), request.Roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew = "users.service.new"
	opResolve    = "users.resolve"
	opGrant      = "users.grant_admin"
	opRevoke     = "users.revoke_admin"
	opIsAdmin    = "users.is_admin"

	defaultProvider = "default"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	errMissingDatabase = errors.New("users: database connection required")
	noOpLogger         = zap.NewNop()
)

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service resolves session claims into principals: it keeps the canonical id mapping and the
// admin role table.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", apperr.ErrValidation, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// ResolvePrincipal maps validated claims to a Principal with a canonical user id. The admin flag
// is set by an admin role claim or by a row in the role table.
func (s *Service) ResolvePrincipal(ctx context.Context, claims auth.SessionClaims) (auth.Principal, error) {
	userID, err := s.ResolveCanonicalUserID(ctx, claims)
	if err != nil {
		return auth.Principal{}, err
	}
	principal := auth.PrincipalFromClaims(claims)
	principal.UID = userID
	if !principal.Admin {
		admin, err := s.IsAdmin(ctx, userID)
		if err != nil {
			return auth.Principal{}, err
		}
		principal.Admin = admin
	}
	return principal, nil
}

// ResolveCanonicalUserID returns the canonical id for the claims, creating the identity mapping
// the first time a provider and subject pair is seen.
func (s *Service) ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return "", apperr.New(opResolve, "invalid_identity", apperr.ErrValidation, ErrInvalidIdentity)
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if userID, ok := cached.(string); ok {
			return userID, nil
		}
	}

	db := s.db.WithContext(ctx)
	var identity Identity
	err := db.Where("provider = ? AND subject = ?", provider, subject).First(&identity).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			UserID:      subject,
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			LastSeenAt:  s.now(),
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&identity).Error; err != nil {
			s.logError(opResolve, "create_failed", err, zap.String("subject", subject))
			return "", apperr.New(opResolve, "create_failed", apperr.ErrPersistence, err)
		}
	case err != nil:
		s.logError(opResolve, "lookup_failed", err, zap.String("subject", subject))
		return "", apperr.New(opResolve, "lookup_failed", apperr.ErrPersistence, err)
	default:
		updates := map[string]any{"last_seen_at": s.now()}
		if email := normalize(claims.UserEmail); email != "" && email != identity.Email {
			updates["user_email"] = email
		}
		if display := normalize(claims.UserDisplayName); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
		}
		if err := db.Model(&Identity{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).Error; err != nil {
			s.logError(opResolve, "touch_failed", err, zap.String("subject", subject))
		}
	}

	s.cache.Store(cacheKey, identity.UserID)
	return identity.UserID, nil
}

// IsAdmin reports whether the role table grants admin to userID.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Role{}).
		Where("user_id = ? AND role = ?", normalize(userID), auth.RoleAdmin).
		Count(&count).Error
	if err != nil {
		s.logError(opIsAdmin, "lookup_failed", err, zap.String("user_id", userID))
		return false, apperr.New(opIsAdmin, "lookup_failed", apperr.ErrPersistence, err)
	}
	return count > 0, nil
}

// GrantAdmin records the admin role for userID. Granting twice is a no-op.
func (s *Service) GrantAdmin(ctx context.Context, userID string) error {
	userID = normalize(userID)
	if userID == "" {
		return apperr.New(opGrant, "missing_user_id", apperr.ErrValidation, ErrInvalidIdentity)
	}
	role := Role{UserID: userID, Role: auth.RoleAdmin, GrantedAt: s.now().UTC()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error; err != nil {
		s.logError(opGrant, "write_failed", err, zap.String("user_id", userID))
		return apperr.New(opGrant, "write_failed", apperr.ErrPersistence, err)
	}
	s.logger.Info("admin role granted", zap.String("user_id", userID))
	return nil
}

// RevokeAdmin removes the admin role from userID.
func (s *Service) RevokeAdmin(ctx context.Context, userID string) error {
	userID = normalize(userID)
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, auth.RoleAdmin).
		Delete(&Role{}).Error
	if err != nil {
		s.logError(opRevoke, "write_failed", err, zap.String("user_id", userID))
		return apperr.New(opRevoke, "write_failed", apperr.ErrPersistence, err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	base := []zap.Field{zap.String("operation", operation), zap.String("reason", reason), zap.Error(err)}
	s.logger.Error("user directory failure", append(base, fields...)...)
}

// deriveProviderSubject splits "provider:subject" user ids and falls back to the registered
// subject, then the email.
func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)

	if raw := normalize(claims.UserID); raw != "" {
		if head, tail, found := strings.Cut(raw, ":"); found && normalize(head) != "" && normalize(tail) != "" {
			provider = normalize(head)
			subject = normalize(tail)
		} else if subject == "" || !found {
			subject = raw
		}
	}
	if subject == "" {
		subject = normalize(claims.UserEmail)
	}
	return provider, subject
}

package documents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"go.jetify.com/typeid/v2"
	"go.uber.org/zap"
)

const (
	opServiceNew = "documents.service.new"
	opSave       = "documents.save"
	opLoad       = "documents.load"
	opDelete     = "documents.delete"
	opAuthorize  = "documents.authorize"
	opListOwned  = "documents.list_owned"
	opListPublic = "documents.list_public"
	opListAll    = "documents.list_all"
)

const (
	eventIDPrefix    = "evt"
	templateIDPrefix = "tpl"
)

var (
	errMissingStore     = errors.New("document store is required")
	errUnauthenticated  = errors.New("authenticated user required")
	errNotOwner         = errors.New("caller does not own the document")
	errAdminRequired    = errors.New("admin role required")
	errMissingTitle     = errors.New("event title is required")
	errInvalidPIN       = errors.New("private documents need a 4-6 digit pin")
	errMissingID        = errors.New("document id is required")
	errDocumentNotFound = errors.New("document not found")
	noOpLogger          = zap.NewNop()
)

// Notifier is told about every committed save.
type Notifier interface {
	DocumentSaved(doc Document)
}

// IDProvider issues document ids for a kind.
type IDProvider interface {
	NewID(kind Kind) string
}

type typeIDProvider struct{}

func (typeIDProvider) NewID(kind Kind) string {
	prefix := eventIDPrefix
	if kind == KindTemplate {
		prefix = templateIDPrefix
	}
	return typeid.MustGenerate(prefix).String()
}

type ServiceConfig struct {
	Store      Store
	Clock      func() time.Time
	IDProvider IDProvider
	Notifier   Notifier
	Logger     *zap.Logger
}

// Service is the persistence adapter: it validates, authorises and writes whole documents.
type Service struct {
	store      Store
	clock      func() time.Time
	idProvider IDProvider
	notifier   Notifier
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, apperr.New(opServiceNew, "missing_store", apperr.ErrValidation, errMissingStore)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = typeIDProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:      cfg.Store,
		clock:      clock,
		idProvider: idProvider,
		notifier:   cfg.Notifier,
		logger:     logger,
	}, nil
}

// Save creates doc when it has no id and overwrites it by id otherwise. Validation and
// permission failures return before any write.
func (s *Service) Save(ctx context.Context, principal auth.Principal, doc Document) (Document, error) {
	if !principal.Authenticated() {
		return Document{}, apperr.New(opSave, "unauthenticated", apperr.ErrPermissionDenied, errUnauthenticated)
	}

	kind, err := ParseKind(string(doc.Kind))
	if err != nil {
		return Document{}, apperr.New(opSave, "invalid_kind", apperr.ErrValidation, err)
	}
	doc.Kind = kind
	doc.Event.Title = strings.TrimSpace(doc.Event.Title)
	if doc.Event.Title == "" {
		return Document{}, apperr.New(opSave, "missing_title", apperr.ErrValidation, errMissingTitle)
	}
	if doc.Visibility.IsPublic {
		doc.Visibility.PIN = ""
	} else if !ValidPIN(doc.Visibility.PIN) {
		return Document{}, apperr.New(opSave, "invalid_pin", apperr.ErrValidation, errInvalidPIN)
	}
	if err := checkElements(doc.Elements); err != nil {
		return Document{}, apperr.New(opSave, "invalid_elements", apperr.ErrValidation, err)
	}
	if kind == KindTemplate && !principal.Admin {
		return Document{}, apperr.New(opSave, "admin_required", apperr.ErrPermissionDenied, errAdminRequired)
	}

	now := s.clock().UTC().Truncate(time.Millisecond)
	doc.UpdatedAt = now

	if strings.TrimSpace(doc.ID) == "" {
		doc.ID = s.idProvider.NewID(kind)
		doc.OwnerID = principal.UID
		doc.CreatedAt = now
		if err := s.store.Create(ctx, doc); err != nil {
			s.logError(opSave, "create_failed", err, zap.String("document_id", doc.ID))
			return Document{}, apperr.New(opSave, "create_failed", apperr.ErrPersistence, err)
		}
	} else {
		existing, err := s.store.Fetch(ctx, doc.ID)
		if errors.Is(err, ErrRecordNotFound) {
			return Document{}, apperr.New(opSave, "not_found", apperr.ErrNotFound, errDocumentNotFound)
		}
		if err != nil {
			s.logError(opSave, "fetch_failed", err, zap.String("document_id", doc.ID))
			return Document{}, apperr.New(opSave, "fetch_failed", apperr.ErrPersistence, err)
		}
		if !principal.CanModify(existing.OwnerID) {
			return Document{}, apperr.New(opSave, "not_owner", apperr.ErrPermissionDenied, errNotOwner)
		}
		doc.OwnerID = existing.OwnerID
		doc.CreatedAt = existing.CreatedAt
		if err := s.store.Overwrite(ctx, doc); err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return Document{}, apperr.New(opSave, "not_found", apperr.ErrNotFound, errDocumentNotFound)
			}
			s.logError(opSave, "overwrite_failed", err, zap.String("document_id", doc.ID))
			return Document{}, apperr.New(opSave, "overwrite_failed", apperr.ErrPersistence, err)
		}
	}

	if s.notifier != nil {
		s.notifier.DocumentSaved(doc)
	}
	s.logger.Info("document saved",
		zap.String("document_id", doc.ID),
		zap.String("kind", string(doc.Kind)),
		zap.Int("elements", len(doc.Elements)))
	return doc, nil
}

// Load fetches a document. Edit permission is checked separately with Authorize.
func (s *Service) Load(ctx context.Context, id string) (Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Document{}, apperr.New(opLoad, "missing_id", apperr.ErrValidation, errMissingID)
	}
	doc, err := s.store.Fetch(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return Document{}, apperr.New(opLoad, "not_found", apperr.ErrNotFound, errDocumentNotFound)
	}
	if err != nil {
		s.logError(opLoad, "fetch_failed", err, zap.String("document_id", id))
		return Document{}, apperr.New(opLoad, "fetch_failed", apperr.ErrPersistence, err)
	}
	return doc, nil
}

// Authorize checks that principal may edit doc.
func (s *Service) Authorize(principal auth.Principal, doc Document) error {
	if !principal.Authenticated() {
		return apperr.New(opAuthorize, "unauthenticated", apperr.ErrPermissionDenied, errUnauthenticated)
	}
	if !principal.CanModify(doc.OwnerID) {
		return apperr.New(opAuthorize, "not_owner", apperr.ErrPermissionDenied, errNotOwner)
	}
	return nil
}

// LoadForEdit fetches a document and checks edit permission.
func (s *Service) LoadForEdit(ctx context.Context, principal auth.Principal, id string) (Document, error) {
	if !principal.Authenticated() {
		return Document{}, apperr.New(opAuthorize, "unauthenticated", apperr.ErrPermissionDenied, errUnauthenticated)
	}
	doc, err := s.Load(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if err := s.Authorize(principal, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Delete removes a document. Deleting a missing id succeeds.
func (s *Service) Delete(ctx context.Context, principal auth.Principal, id string) error {
	if !principal.Authenticated() {
		return apperr.New(opDelete, "unauthenticated", apperr.ErrPermissionDenied, errUnauthenticated)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.New(opDelete, "missing_id", apperr.ErrValidation, errMissingID)
	}
	existing, err := s.store.Fetch(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		s.logError(opDelete, "fetch_failed", err, zap.String("document_id", id))
		return apperr.New(opDelete, "fetch_failed", apperr.ErrPersistence, err)
	}
	if !principal.CanModify(existing.OwnerID) {
		return apperr.New(opDelete, "not_owner", apperr.ErrPermissionDenied, errNotOwner)
	}
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrRecordNotFound) {
		s.logError(opDelete, "delete_failed", err, zap.String("document_id", id))
		return apperr.New(opDelete, "delete_failed", apperr.ErrPersistence, err)
	}
	s.logger.Info("document deleted", zap.String("document_id", id), zap.String("actor", principal.UID))
	return nil
}

// ListOwned returns the principal's documents, newest first.
func (s *Service) ListOwned(ctx context.Context, principal auth.Principal) ([]Document, error) {
	if !principal.Authenticated() {
		return nil, apperr.New(opListOwned, "unauthenticated", apperr.ErrPermissionDenied, errUnauthenticated)
	}
	docs, err := s.store.ListByOwner(ctx, principal.UID)
	if err != nil {
		s.logError(opListOwned, "query_failed", err, zap.String("user_id", principal.UID))
		return nil, apperr.New(opListOwned, "query_failed", apperr.ErrPersistence, err)
	}
	return docs, nil
}

// ListPublic returns public documents of kind, newest first.
func (s *Service) ListPublic(ctx context.Context, kind Kind) ([]Document, error) {
	docs, err := s.store.ListPublic(ctx, kind)
	if err != nil {
		s.logError(opListPublic, "query_failed", err, zap.String("kind", string(kind)))
		return nil, apperr.New(opListPublic, "query_failed", apperr.ErrPersistence, err)
	}
	return docs, nil
}

// ListAll returns every document for moderation. Only admins may call it.
func (s *Service) ListAll(ctx context.Context, principal auth.Principal) ([]Document, error) {
	if !principal.Authenticated() || !principal.Admin {
		return nil, apperr.New(opListAll, "admin_required", apperr.ErrPermissionDenied, errAdminRequired)
	}
	docs, err := s.store.ListAll(ctx)
	if err != nil {
		s.logError(opListAll, "query_failed", err)
		return nil, apperr.New(opListAll, "query_failed", apperr.ErrPersistence, err)
	}
	return docs, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("documents service error", attrs...)
}

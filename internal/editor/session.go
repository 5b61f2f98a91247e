package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/imaging"
	"go.uber.org/zap"
)

const (
	opSessionNew = "editor.session.new"
	opSave       = "editor.save"
	opImage      = "editor.image"
)

var (
	errMissingPersister = errors.New("document persister is required")
	errMissingDocument  = errors.New("profile edits an existing document")
	errAdminRequired    = errors.New("admin role required")
	errNotOwner         = errors.New("caller does not own the document")
	errNoImagePending   = errors.New("no image placement pending")
	noOpLogger          = zap.NewNop()
)

// Persister saves documents. *documents.Service implements it.
type Persister interface {
	Save(ctx context.Context, principal auth.Principal, doc documents.Document) (documents.Document, error)
}

type SessionConfig struct {
	ID          string
	Profile     Profile
	Principal   auth.Principal
	Document    *documents.Document
	Template    *documents.Document
	Persister   Persister
	Blobs       imaging.BlobStore
	ShareOrigin string
	IDs         elements.IDSource
	Clock       func() time.Time
	Logger      *zap.Logger
}

// SaveResult is returned by OnSave. ShareURL is empty when the profile does not share.
type SaveResult struct {
	DocumentID string `json:"documentId"`
	ShareURL   string `json:"shareUrl,omitempty"`
}

// View is a full read-only snapshot of the session.
type View struct {
	ID           string               `json:"id"`
	Profile      Profile              `json:"profile"`
	Capabilities canvas.Capabilities  `json:"capabilities"`
	DocumentID   string               `json:"documentId,omitempty"`
	Event        documents.EventData  `json:"eventData"`
	Visibility   documents.Visibility `json:"visibility"`
	Elements     []elements.Element   `json:"elements"`
	State        canvas.State         `json:"state"`
	SelectedID   string               `json:"selectedId,omitempty"`
	Viewport     geometry.Viewport    `json:"viewport"`
	Bounds       geometry.Bounds      `json:"bounds"`
	Image        *imaging.Snapshot    `json:"image,omitempty"`
}

// Session is one open editor. Its methods are safe for concurrent use; commands are applied one
// at a time.
type Session struct {
	id          string
	profile     Profile
	principal   auth.Principal
	persister   Persister
	blobs       imaging.BlobStore
	shareOrigin string
	clock       func() time.Time
	logger      *zap.Logger

	mu          sync.Mutex
	surface     *canvas.Surface
	changes     []canvas.Change
	documentID  string
	event       documents.EventData
	visibility  documents.Visibility
	baseline    []elements.Element
	acquisition *imaging.Acquisition
	lastActive  time.Time
}

func NewSession(cfg SessionConfig) (*Session, error) {
	profile, err := ParseProfile(string(cfg.Profile))
	if err != nil {
		return nil, apperr.New(opSessionNew, "unknown_profile", apperr.ErrValidation, err)
	}
	if cfg.Persister == nil {
		return nil, apperr.New(opSessionNew, "missing_persister", apperr.ErrValidation, errMissingPersister)
	}
	if !cfg.Principal.Authenticated() {
		return nil, apperr.New(opSessionNew, "unauthenticated", apperr.ErrPermissionDenied, errors.New("authenticated user required"))
	}
	if profile.RequiresAdmin() && !cfg.Principal.Admin {
		return nil, apperr.New(opSessionNew, "admin_required", apperr.ErrPermissionDenied, errAdminRequired)
	}
	if profile.RequiresDocument() && cfg.Document == nil {
		return nil, apperr.New(opSessionNew, "missing_document", apperr.ErrValidation, errMissingDocument)
	}
	if cfg.Document != nil && !cfg.Principal.CanModify(cfg.Document.OwnerID) {
		return nil, apperr.New(opSessionNew, "not_owner", apperr.ErrPermissionDenied, errNotOwner)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	session := &Session{
		id:          cfg.ID,
		profile:     profile,
		principal:   cfg.Principal,
		persister:   cfg.Persister,
		blobs:       cfg.Blobs,
		shareOrigin: cfg.ShareOrigin,
		clock:       clock,
		logger:      logger,
		visibility:  documents.Visibility{IsPublic: true},
		lastActive:  clock(),
	}
	surface, err := canvas.NewSurface(canvas.Options{
		Capabilities: profile.Capabilities(),
		IDs:          cfg.IDs,
		Listener:     session.record,
	})
	if err != nil {
		return nil, err
	}
	session.surface = surface

	source := cfg.Document
	if source == nil {
		source = cfg.Template
	}
	if source != nil {
		if err := surface.Replace(source.Elements); err != nil {
			return nil, err
		}
	}
	if cfg.Document != nil {
		session.documentID = cfg.Document.ID
		session.event = cfg.Document.Event
		session.visibility = cfg.Document.Visibility
	}
	session.baseline = surface.Elements()
	session.changes = nil
	return session, nil
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Profile() Profile          { return s.profile }
func (s *Session) Principal() auth.Principal { return s.principal }

// LastActive returns when the session last handled a call.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// View returns a snapshot of the whole session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Apply executes one command against the surface.
func (s *Session) Apply(cmd Command) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.changes = nil

	result, err := s.apply(cmd)
	if err != nil {
		return Result{}, err
	}
	result.Changes = s.changes
	if result.Changes == nil {
		result.Changes = []canvas.Change{}
	}
	result.State = s.surface.State()
	result.SelectedID = s.surface.SelectedID()
	result.Viewport = s.surface.Viewport()
	s.changes = nil
	return result, nil
}

// AcquireURL resolves a typed image URL and places the pending image element. confirmed must be
// true for URLs without an image extension.
func (s *Session) AcquireURL(ctx context.Context, raw string, confirmed bool) (imaging.Result, string, error) {
	acquisition, err := s.beginImage(imaging.MethodURL)
	if err != nil {
		return imaging.Result{}, "", err
	}
	if err := acquisition.SubmitURL(raw); err != nil {
		return imaging.Result{}, "", err
	}
	return s.finishImage(ctx, acquisition, confirmed)
}

// AcquireFile resolves an uploaded image file and places the pending image element.
func (s *Session) AcquireFile(ctx context.Context, file imaging.File) (imaging.Result, string, error) {
	acquisition, err := s.beginImage(imaging.MethodFile)
	if err != nil {
		return imaging.Result{}, "", err
	}
	if err := acquisition.SubmitFile(file); err != nil {
		return imaging.Result{}, "", err
	}
	return s.finishImage(ctx, acquisition, false)
}

func (s *Session) beginImage(method imaging.Method) (*imaging.Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if _, pending := s.surface.PendingImage(); !pending {
		return nil, apperr.New(opImage, "no_pending_placement", apperr.ErrValidation, errNoImagePending)
	}
	if s.acquisition == nil {
		s.acquisition = imaging.NewAcquisition(imaging.AcquisitionConfig{
			Principal: s.principal,
			Blobs:     s.blobs,
			Clock:     s.clock,
			Logger:    s.logger,
		})
	}
	if err := s.acquisition.Open(method); err != nil {
		return nil, err
	}
	return s.acquisition, nil
}

// finishImage runs the resolve step without holding the session lock so that a cancelTool
// command can abort an upload in flight.
func (s *Session) finishImage(ctx context.Context, acquisition *imaging.Acquisition, confirmed bool) (imaging.Result, string, error) {
	result, err := acquisition.Resolve(ctx, confirmed)
	if err != nil {
		return imaging.Result{}, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.changes = nil
	elementID, err := s.surface.PlaceImage(result.ImageURL)
	acquisition.Cancel()
	if err != nil {
		return imaging.Result{}, "", err
	}
	return result, elementID, nil
}

// OnSave serialises the canvas with the event metadata and persists it. On failure the canvas
// and the session's document binding are left exactly as they were.
func (s *Session) OnSave(ctx context.Context, event documents.EventData, visibility documents.Visibility) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	capabilities := s.surface.Capabilities()
	if !capabilities.AllowPrivacy {
		visibility = documents.Visibility{IsPublic: true}
	}
	doc := documents.Serialize(s.surface.Elements(), event, visibility)
	doc.ID = s.documentID
	doc.Kind = s.profile.DocumentKind()

	saved, err := s.persister.Save(ctx, s.principal, doc)
	if err != nil {
		s.logger.Warn("editor save failed",
			zap.String("operation", opSave),
			zap.String("session_id", s.id),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err))
		return SaveResult{}, err
	}

	s.documentID = saved.ID
	s.event = saved.Event
	s.visibility = saved.Visibility
	s.baseline = saved.Elements

	result := SaveResult{DocumentID: saved.ID}
	if capabilities.AllowShare && s.shareOrigin != "" {
		link, err := documents.ShareLink(s.shareOrigin, saved, documents.ShareOptions{})
		if err != nil {
			return SaveResult{}, apperr.New(opSave, "share_link_failed", apperr.ErrValidation, fmt.Errorf("share link: %w", err))
		}
		result.ShareURL = link
	}
	return result, nil
}

// OnCancel discards unsaved edits by restoring the last loaded or saved element list.
func (s *Session) OnCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.acquisition != nil {
		s.acquisition.Cancel()
	}
	if err := s.surface.Replace(s.baseline); err != nil {
		s.logger.Error("editor cancel restore failed", zap.String("session_id", s.id), zap.Error(err))
	}
	s.changes = nil
}

// Close aborts any image acquisition in flight.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquisition != nil {
		s.acquisition.Cancel()
	}
}

func (s *Session) viewLocked() View {
	view := View{
		ID:           s.id,
		Profile:      s.profile,
		Capabilities: s.surface.Capabilities(),
		DocumentID:   s.documentID,
		Event:        s.event,
		Visibility:   s.visibility,
		Elements:     s.surface.Elements(),
		State:        s.surface.State(),
		SelectedID:   s.surface.SelectedID(),
		Viewport:     s.surface.Viewport(),
		Bounds:       s.surface.Bounds(),
	}
	if s.acquisition != nil {
		snapshot := s.acquisition.Snapshot()
		if snapshot.Phase != imaging.PhaseClosed {
			view.Image = &snapshot
		}
	}
	return view
}

func (s *Session) record(change canvas.Change) {
	s.changes = append(s.changes, change)
}

func (s *Session) touchLocked() {
	s.lastActive = s.clock()
}

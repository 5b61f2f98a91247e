package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/imaging"
)

var (
	owner    = auth.Principal{UID: "user-owner", Email: "owner@example.com"}
	stranger = auth.Principal{UID: "user-stranger"}
	admin    = auth.Principal{UID: "user-admin", Admin: true}
)

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() string {
	s.next++
	return fmt.Sprintf("el_%d", s.next)
}

// memoryPersister assigns ids on first save and remembers every saved document.
type memoryPersister struct {
	mu    sync.Mutex
	saved []documents.Document
	err   error
}

func (p *memoryPersister) Save(_ context.Context, principal auth.Principal, doc documents.Document) (documents.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return documents.Document{}, p.err
	}
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("evt_%d", len(p.saved)+1)
		doc.OwnerID = principal.UID
	}
	if doc.Visibility.IsPublic {
		doc.Visibility.PIN = ""
	}
	p.saved = append(p.saved, doc)
	return doc, nil
}

func (p *memoryPersister) last() documents.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[len(p.saved)-1]
}

type blockingBlobs struct {
	started chan struct{}
}

func (b *blockingBlobs) Put(ctx context.Context, _, _ string, _ []byte, _ func(float64)) (string, error) {
	close(b.started)
	<-ctx.Done()
	return "", ctx.Err()
}

type staticBlobs struct {
	url string
}

func (b staticBlobs) Put(_ context.Context, objectPath, _ string, _ []byte, progress func(float64)) (string, error) {
	progress(100)
	return b.url + "/" + objectPath, nil
}

func newTestSession(t *testing.T, cfg SessionConfig) (*Session, *memoryPersister) {
	t.Helper()
	persister := &memoryPersister{}
	if cfg.Persister == nil {
		cfg.Persister = persister
	}
	if cfg.Principal == (auth.Principal{}) {
		cfg.Principal = owner
	}
	if cfg.IDs == nil {
		cfg.IDs = &sequenceIDs{}
	}
	if cfg.ID == "" {
		cfg.ID = "ses_test"
	}
	session, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return session, persister
}

func mustApply(t *testing.T, session *Session, cmd Command) Result {
	t.Helper()
	result, err := session.Apply(cmd)
	if err != nil {
		t.Fatalf("apply %s failed: %v", cmd.Op, err)
	}
	return result
}

func createRectangle(t *testing.T, session *Session, at geometry.Point) string {
	t.Helper()
	mustApply(t, session, Command{Op: OpSelectTool, Tool: elements.KindRectangle})
	result := mustApply(t, session, Command{Op: OpPointerDown, Pointer: at})
	if result.Outcome == nil || result.Outcome.Action != canvas.ActionCreated {
		t.Fatalf("expected rectangle creation, got %+v", result.Outcome)
	}
	return result.ElementID
}

func TestNewSessionEnforcesProfileRules(t *testing.T) {
	persister := &memoryPersister{}
	existing := documents.Document{ID: "evt_1", OwnerID: owner.UID, Kind: documents.KindEvent}

	testCases := []struct {
		name   string
		cfg    SessionConfig
		kind   error
		reason string
	}{
		{name: "unknown profile", cfg: SessionConfig{Profile: "kiosk", Principal: owner, Persister: persister}, kind: apperr.ErrValidation, reason: "unknown_profile"},
		{name: "missing persister", cfg: SessionConfig{Principal: owner}, kind: apperr.ErrValidation, reason: "missing_persister"},
		{name: "anonymous", cfg: SessionConfig{Persister: persister}, kind: apperr.ErrPermissionDenied, reason: "unauthenticated"},
		{name: "template without admin", cfg: SessionConfig{Profile: ProfileTemplate, Principal: owner, Persister: persister}, kind: apperr.ErrPermissionDenied, reason: "admin_required"},
		{name: "event edit without document", cfg: SessionConfig{Profile: ProfileEventEdit, Principal: owner, Persister: persister}, kind: apperr.ErrValidation, reason: "missing_document"},
		{name: "event edit of foreign document", cfg: SessionConfig{Profile: ProfileEventEdit, Principal: stranger, Persister: persister, Document: &existing}, kind: apperr.ErrPermissionDenied, reason: "not_owner"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewSession(testCase.cfg)
			if !errors.Is(err, testCase.kind) {
				t.Fatalf("expected %v, got %v", testCase.kind, err)
			}
			if reason := apperr.ReasonOf(err); reason != testCase.reason {
				t.Fatalf("expected reason %q, got %q", testCase.reason, reason)
			}
		})
	}
}

func TestNewSessionLoadsDocument(t *testing.T) {
	bounds := geometry.DefaultBounds()
	ids := &sequenceIDs{}
	text := elements.New(elements.KindText, geometry.Point{X: 50, Y: 60}, bounds, ids)
	doc := documents.Document{
		ID:         "evt_9",
		Kind:       documents.KindEvent,
		OwnerID:    owner.UID,
		Elements:   []elements.Element{elements.NewBackground(bounds), text},
		Event:      documents.EventData{Title: "Picnic"},
		Visibility: documents.Visibility{PIN: "1234"},
	}
	session, _ := newTestSession(t, SessionConfig{Profile: ProfileEventEdit, Document: &doc})

	view := session.View()
	if view.DocumentID != "evt_9" || view.Event.Title != "Picnic" {
		t.Fatalf("unexpected view binding: %+v", view)
	}
	if len(view.Elements) != 2 || view.Elements[1].ID != text.ID {
		t.Fatalf("expected loaded elements, got %+v", view.Elements)
	}
	if view.Visibility.PIN != "1234" || view.Visibility.IsPublic {
		t.Fatalf("expected private visibility, got %+v", view.Visibility)
	}
}

func TestStartFromTemplateCopiesElementsOnly(t *testing.T) {
	bounds := geometry.DefaultBounds()
	template := documents.Document{
		ID:       "tpl_1",
		Kind:     documents.KindTemplate,
		OwnerID:  admin.UID,
		Elements: []elements.Element{elements.New(elements.KindCircle, geometry.Point{X: 10, Y: 10}, bounds, &sequenceIDs{})},
		Event:    documents.EventData{Title: "Template"},
	}
	session, persister := newTestSession(t, SessionConfig{Template: &template})

	view := session.View()
	if view.DocumentID != "" {
		t.Fatalf("template sessions must save a new document, got id %q", view.DocumentID)
	}
	if len(view.Elements) != 2 || !view.Elements[0].IsBackground() {
		t.Fatalf("expected background plus template circle, got %+v", view.Elements)
	}

	saved, err := session.OnSave(context.Background(), documents.EventData{Title: "Mine"}, documents.Visibility{IsPublic: true})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.DocumentID == "tpl_1" || persister.last().Kind != documents.KindEvent {
		t.Fatalf("expected a fresh event, got %+v", persister.last())
	}
}

func TestApplyCreatesAndReportsChanges(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{})

	mustApply(t, session, Command{Op: OpSelectTool, Tool: elements.KindText})
	result := mustApply(t, session, Command{Op: OpPointerDown, Pointer: geometry.Point{X: 120, Y: 80}})

	if !result.Changed || result.Outcome.Action != canvas.ActionCreated {
		t.Fatalf("expected creation, got %+v", result)
	}
	if result.State.Mode != canvas.ModeIdle {
		t.Fatalf("expected idle after creation, got %s", result.State.Mode)
	}
	if result.SelectedID != result.ElementID {
		t.Fatalf("expected new element selected, got %q", result.SelectedID)
	}
	var added bool
	for _, change := range result.Changes {
		if change.Kind == canvas.ChangeAdded && change.ElementID == result.ElementID {
			added = true
		}
	}
	if !added {
		t.Fatalf("expected added change, got %+v", result.Changes)
	}

	element, _ := findElement(session.View().Elements, result.ElementID)
	if element.Frame.X != 120 || element.Frame.Y != 80 {
		t.Fatalf("expected element at press point, got %+v", element.Frame)
	}
}

func TestApplyDragAndResize(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{})
	id := createRectangle(t, session, geometry.Point{X: 100, Y: 100})

	mustApply(t, session, Command{Op: OpPointerDownElement, ElementID: id, Pointer: geometry.Point{X: 110, Y: 110}})
	move := mustApply(t, session, Command{Op: OpPointerMove, Pointer: geometry.Point{X: 160, Y: 130}})
	if move.Frame == nil || move.Frame.X != 150 || move.Frame.Y != 120 {
		t.Fatalf("unexpected drag frame: %+v", move.Frame)
	}
	up := mustApply(t, session, Command{Op: OpPointerUp})
	if up.State.Mode != canvas.ModeIdle {
		t.Fatalf("expected idle after pointer up, got %s", up.State.Mode)
	}

	before, _ := findElement(session.View().Elements, id)
	mustApply(t, session, Command{Op: OpPointerDownHandle, ElementID: id, Corner: geometry.CornerSouthEast, Pointer: geometry.Point{X: 0, Y: 0}})
	resize := mustApply(t, session, Command{Op: OpPointerMove, Pointer: geometry.Point{X: 30, Y: 40}})
	if resize.Frame.Width != before.Frame.Width+30 || resize.Frame.Height != before.Frame.Height+40 {
		t.Fatalf("unexpected resize frame: %+v from %+v", resize.Frame, before.Frame)
	}
	mustApply(t, session, Command{Op: OpPointerUp})

	stale := mustApply(t, session, Command{Op: OpPointerMove, Pointer: geometry.Point{X: 500, Y: 500}})
	if stale.Changed {
		t.Fatal("pointer move outside a gesture must not change anything")
	}
}

func TestApplyEditingCommands(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{})
	first := createRectangle(t, session, geometry.Point{X: 10, Y: 10})
	second := createRectangle(t, session, geometry.Point{X: 300, Y: 300})

	opacity := 0.5
	update := mustApply(t, session, Command{Op: OpUpdate, ElementID: first, Patch: &elements.Patch{Opacity: &opacity}})
	if !update.Changed {
		t.Fatal("expected update to change the element")
	}

	duplicate := mustApply(t, session, Command{Op: OpDuplicate, ElementID: first})
	if !duplicate.Changed || duplicate.ElementID == first || duplicate.SelectedID != duplicate.ElementID {
		t.Fatalf("unexpected duplicate result: %+v", duplicate)
	}

	if mustApply(t, session, Command{Op: OpSendBackward, ElementID: first}).Changed {
		t.Fatal("element directly above the background cannot move backward")
	}
	if !mustApply(t, session, Command{Op: OpBringForward, ElementID: first}).Changed {
		t.Fatal("expected bring forward to reorder")
	}
	order := session.View().Elements
	if order[1].ID != second || order[2].ID != first {
		t.Fatalf("unexpected order after bring forward: %s, %s", order[1].ID, order[2].ID)
	}

	mustApply(t, session, Command{Op: OpToggleLock, ElementID: first})
	locked, _ := findElement(session.View().Elements, first)
	if !locked.Locked {
		t.Fatal("expected element locked")
	}
	mustApply(t, session, Command{Op: OpToggleVisibility, ElementID: second})
	hidden, _ := findElement(session.View().Elements, second)
	if hidden.Visible {
		t.Fatal("expected element hidden")
	}

	if mustApply(t, session, Command{Op: OpDelete, ElementID: elements.BackgroundID}).Changed {
		t.Fatal("background must not be deletable")
	}
	if !mustApply(t, session, Command{Op: OpDelete, ElementID: first}).Changed {
		t.Fatal("locked elements remain deletable")
	}
	if _, ok := findElement(session.View().Elements, first); ok {
		t.Fatal("expected element removed")
	}

	mustApply(t, session, Command{Op: OpSelect, ElementID: second})
	cleared := mustApply(t, session, Command{Op: OpClearSelection})
	if cleared.SelectedID != "" || !cleared.Changed {
		t.Fatalf("expected selection cleared, got %+v", cleared)
	}
}

func TestApplyViewportCommands(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{})

	zoom := mustApply(t, session, Command{Op: OpSetZoom, Zoom: 5})
	if zoom.Viewport.Zoom != geometry.MaxZoom {
		t.Fatalf("expected zoom clamped to %v, got %v", geometry.MaxZoom, zoom.Viewport.Zoom)
	}
	grid := mustApply(t, session, Command{Op: OpSetGrid, GridSize: 25, Snap: true, ShowGrid: true})
	if grid.Viewport.GridSize != 25 || !grid.Viewport.SnapToGrid || !grid.Viewport.ShowGrid {
		t.Fatalf("unexpected viewport: %+v", grid.Viewport)
	}
}

func TestApplyRejectsInvalidCommands(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{})

	testCases := []struct {
		name string
		cmd  Command
	}{
		{name: "unknown op", cmd: Command{Op: "explode"}},
		{name: "unknown tool", cmd: Command{Op: OpSelectTool, Tool: "hexagon"}},
		{name: "update without patch", cmd: Command{Op: OpUpdate, ElementID: "el_1"}},
		{name: "place image without placement", cmd: Command{Op: OpPlaceImage, ImageURL: "https://example.com/a.png"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := session.Apply(testCase.cmd); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPlaceholderPatchRequiresTemplateProfile(t *testing.T) {
	placeholder := "guest_name"

	standalone, _ := newTestSession(t, SessionConfig{})
	mustApply(t, standalone, Command{Op: OpSelectTool, Tool: elements.KindText})
	created := mustApply(t, standalone, Command{Op: OpPointerDown, Pointer: geometry.Point{X: 10, Y: 10}})
	mustApply(t, standalone, Command{Op: OpUpdate, ElementID: created.ElementID, Patch: &elements.Patch{Placeholder: &placeholder}})
	element, _ := findElement(standalone.View().Elements, created.ElementID)
	if element.Placeholder != "" {
		t.Fatalf("standalone editor must not bind placeholders, got %q", element.Placeholder)
	}

	template, _ := newTestSession(t, SessionConfig{Profile: ProfileTemplate, Principal: admin})
	mustApply(t, template, Command{Op: OpSelectTool, Tool: elements.KindText})
	created = mustApply(t, template, Command{Op: OpPointerDown, Pointer: geometry.Point{X: 10, Y: 10}})
	mustApply(t, template, Command{Op: OpUpdate, ElementID: created.ElementID, Patch: &elements.Patch{Placeholder: &placeholder}})
	element, _ = findElement(template.View().Elements, created.ElementID)
	if element.Placeholder != placeholder {
		t.Fatalf("template editor should bind placeholder, got %q", element.Placeholder)
	}
}

func TestTemplatePlaceholderRestrictedToTextFieldTokens(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{Profile: ProfileTemplate, Principal: admin})
	rectangleID := createRectangle(t, session, geometry.Point{X: 200, Y: 200})
	mustApply(t, session, Command{Op: OpSelectTool, Tool: elements.KindText})
	label := mustApply(t, session, Command{Op: OpPointerDown, Pointer: geometry.Point{X: 10, Y: 10}})

	token := "guest_name"
	unknown := "credit_card"
	mustApply(t, session, Command{Op: OpUpdate, ElementID: rectangleID, Patch: &elements.Patch{Placeholder: &token}})
	mustApply(t, session, Command{Op: OpUpdate, ElementID: label.ElementID, Patch: &elements.Patch{Placeholder: &unknown}})

	view := session.View()
	if rectangle, _ := findElement(view.Elements, rectangleID); rectangle.Placeholder != "" {
		t.Fatalf("rectangle must not carry a placeholder, got %q", rectangle.Placeholder)
	}
	if text, _ := findElement(view.Elements, label.ElementID); text.Placeholder != "" {
		t.Fatalf("unknown field token bound: %q", text.Placeholder)
	}
}

func TestPlaceImageRejectsScriptURL(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{})
	mustApply(t, session, Command{Op: OpSelectTool, Tool: elements.KindImage})
	mustApply(t, session, Command{Op: OpPointerDown, Pointer: geometry.Point{X: 40, Y: 60}})
	before := len(session.View().Elements)

	_, err := session.Apply(Command{Op: OpPlaceImage, ImageURL: "javascript:alert(1)"})
	if !errors.Is(err, apperr.ErrValidation) || apperr.ReasonOf(err) != "invalid_image_url" {
		t.Fatalf("expected invalid_image_url, got %v", err)
	}
	if len(session.View().Elements) != before {
		t.Fatalf("script url must not create an element")
	}
	if _, err := session.Apply(Command{Op: OpPlaceImage, ImageURL: "https://cdn.example.com/a.png"}); err != nil {
		t.Fatalf("placement should stay pending after rejection: %v", err)
	}
}

func TestOnSaveCreatesThenOverwrites(t *testing.T) {
	session, persister := newTestSession(t, SessionConfig{ShareOrigin: "https://paperless.example"})
	createRectangle(t, session, geometry.Point{X: 40, Y: 40})

	event := documents.EventData{Title: "Birthday", Date: "2026-07-04"}
	first, err := session.OnSave(context.Background(), event, documents.Visibility{IsPublic: false, PIN: "4321"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if first.DocumentID != "evt_1" || first.ShareURL != "https://paperless.example/invite/evt_1" {
		t.Fatalf("unexpected save result: %+v", first)
	}
	saved := persister.last()
	if saved.Kind != documents.KindEvent || len(saved.Elements) != 2 || saved.Visibility.PIN != "4321" {
		t.Fatalf("unexpected saved document: %+v", saved)
	}

	createRectangle(t, session, geometry.Point{X: 200, Y: 200})
	second, err := session.OnSave(context.Background(), event, documents.Visibility{IsPublic: true})
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if second.DocumentID != first.DocumentID || persister.last().ID != first.DocumentID {
		t.Fatalf("expected overwrite of %s, got %+v", first.DocumentID, persister.last())
	}
	if len(persister.last().Elements) != 3 {
		t.Fatalf("expected three elements saved, got %d", len(persister.last().Elements))
	}
}

func TestOnSaveTemplateForcesPublicWithoutShare(t *testing.T) {
	session, persister := newTestSession(t, SessionConfig{Profile: ProfileTemplate, Principal: admin, ShareOrigin: "https://paperless.example"})

	result, err := session.OnSave(context.Background(), documents.EventData{Title: "Elegant"}, documents.Visibility{PIN: "9999"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if result.ShareURL != "" {
		t.Fatalf("template saves must not share, got %q", result.ShareURL)
	}
	saved := persister.last()
	if saved.Kind != documents.KindTemplate || !saved.Visibility.IsPublic || saved.Visibility.PIN != "" {
		t.Fatalf("unexpected template save: %+v", saved)
	}
}

func TestOnSaveFailureLeavesCanvasUntouched(t *testing.T) {
	persister := &memoryPersister{err: apperr.New("documents.save", "missing_title", apperr.ErrValidation, errors.New("title required"))}
	session, _ := newTestSession(t, SessionConfig{Persister: persister})
	id := createRectangle(t, session, geometry.Point{X: 40, Y: 40})
	before := session.View()

	if _, err := session.OnSave(context.Background(), documents.EventData{}, documents.Visibility{IsPublic: true}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	after := session.View()
	if after.DocumentID != "" || len(after.Elements) != len(before.Elements) || after.SelectedID != id {
		t.Fatalf("failed save altered the session: %+v", after)
	}
}

func TestOnCancelRestoresBaseline(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{})
	kept := createRectangle(t, session, geometry.Point{X: 40, Y: 40})
	if _, err := session.OnSave(context.Background(), documents.EventData{Title: "Brunch"}, documents.Visibility{IsPublic: true}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	createRectangle(t, session, geometry.Point{X: 300, Y: 300})
	mustApply(t, session, Command{Op: OpDelete, ElementID: kept})
	session.OnCancel()

	view := session.View()
	if len(view.Elements) != 2 || view.Elements[1].ID != kept {
		t.Fatalf("expected saved elements restored, got %+v", view.Elements)
	}
	if view.State.Mode != canvas.ModeIdle || view.SelectedID != "" {
		t.Fatalf("expected reset state, got %+v", view.State)
	}
}

func TestAcquireURLPlacesImage(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{})

	if _, _, err := session.AcquireURL(context.Background(), "https://example.com/a.png", false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error without pending placement, got %v", err)
	}

	mustApply(t, session, Command{Op: OpSelectTool, Tool: elements.KindImage})
	picker := mustApply(t, session, Command{Op: OpPointerDown, Pointer: geometry.Point{X: 70, Y: 90}})
	if picker.Outcome.Action != canvas.ActionOpenImagePicker {
		t.Fatalf("expected image picker, got %s", picker.Outcome.Action)
	}

	if _, _, err := session.AcquireURL(context.Background(), "https://example.com/photo", false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected confirmation requirement, got %v", err)
	}
	result, id, err := session.AcquireURL(context.Background(), "https://example.com/photo", true)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	element, ok := findElement(session.View().Elements, id)
	if !ok || element.Frame.X != 70 || element.Frame.Y != 90 {
		t.Fatalf("expected image at pending point, got %+v", element.Frame)
	}
	body, ok := element.Image()
	if !ok || body.ImageURL != result.ImageURL {
		t.Fatalf("unexpected image body: %+v", element.Body)
	}
	if view := session.View(); view.Image != nil || view.State.Mode != canvas.ModeIdle {
		t.Fatalf("expected acquisition closed and idle, got %+v", view.State)
	}
}

func TestAcquireFileUploadsForSignedInUser(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{
		Blobs: staticBlobs{url: "https://cdn.example.com"},
		Clock: func() time.Time { return time.UnixMilli(1700000000000) },
	})
	mustApply(t, session, Command{Op: OpSelectTool, Tool: elements.KindImage})
	mustApply(t, session, Command{Op: OpPointerDown, Pointer: geometry.Point{X: 10, Y: 10}})

	result, _, err := session.AcquireFile(context.Background(), imaging.File{Name: "a.png", ContentType: "image/png", Data: []byte("png-bytes")})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !result.Persisted || result.ImageURL != "https://cdn.example.com/images/user-owner/1700000000000.png" {
		t.Fatalf("unexpected upload result: %+v", result)
	}
}

func TestCancelToolAbortsUpload(t *testing.T) {
	blobs := &blockingBlobs{started: make(chan struct{})}
	session, _ := newTestSession(t, SessionConfig{Blobs: blobs})
	mustApply(t, session, Command{Op: OpSelectTool, Tool: elements.KindImage})
	mustApply(t, session, Command{Op: OpPointerDown, Pointer: geometry.Point{X: 10, Y: 10}})

	errs := make(chan error, 1)
	go func() {
		_, _, err := session.AcquireFile(context.Background(), imaging.File{Name: "a.png", ContentType: "image/png", Data: []byte("png")})
		errs <- err
	}()

	<-blobs.started
	mustApply(t, session, Command{Op: OpCancelTool})

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected canceled upload to fail")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not stop after cancel")
	}
	if len(session.View().Elements) != 1 {
		t.Fatal("canceled upload must not add an element")
	}
}

func findElement(list []elements.Element, id string) (elements.Element, bool) {
	for _, element := range list {
		if element.ID == id {
			return element, true
		}
	}
	return elements.Element{}, false
}

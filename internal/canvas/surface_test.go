package canvas

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
)

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() string {
	s.next++
	return fmt.Sprintf("el_%d", s.next)
}

type recordingListener struct {
	changes []Change
}

func (r *recordingListener) listen(change Change) {
	r.changes = append(r.changes, change)
}

func (r *recordingListener) count(kind ChangeKind) int {
	total := 0
	for _, change := range r.changes {
		if change.Kind == kind {
			total++
		}
	}
	return total
}

func newTestSurface(t *testing.T, caps Capabilities) (*Surface, *recordingListener) {
	t.Helper()
	recorder := &recordingListener{}
	surface, err := NewSurface(Options{Capabilities: caps, IDs: &sequenceIDs{}, Listener: recorder.listen})
	if err != nil {
		t.Fatalf("failed to create surface: %v", err)
	}
	return surface, recorder
}

func addRectangle(t *testing.T, surface *Surface, at geometry.Point) string {
	t.Helper()
	if err := surface.SelectTool(elements.KindRectangle); err != nil {
		t.Fatalf("select tool: %v", err)
	}
	outcome := surface.PointerDownBackground(at)
	if outcome.Action != ActionCreated {
		t.Fatalf("expected element creation, got %+v", outcome)
	}
	return outcome.ElementID
}

func TestNewSurfaceStartsWithBackground(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	list := surface.Elements()
	if len(list) != 1 || !list[0].IsBackground() {
		t.Fatalf("expected background only, got %+v", list)
	}
	if surface.State().Mode != ModeIdle || surface.SelectedID() != "" {
		t.Fatalf("expected idle without selection")
	}
}

func TestNewSurfaceRejectsNegativeBounds(t *testing.T) {
	_, err := NewSurface(Options{Bounds: geometry.Bounds{Width: -1, Height: 10}})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateAndPositionScenario(t *testing.T) {
	surface, recorder := newTestSurface(t, Capabilities{})
	id := addRectangle(t, surface, geometry.Point{X: 100, Y: 100})

	list := surface.Elements()
	if len(list) != 2 {
		t.Fatalf("expected two elements, got %d", len(list))
	}
	created := list[1]
	if created.ID != id || created.Kind != elements.KindRectangle || created.Locked {
		t.Fatalf("unexpected element %+v", created)
	}
	if created.Frame != (geometry.Rect{X: 100, Y: 100, Width: 150, Height: 100}) {
		t.Fatalf("unexpected frame %+v", created.Frame)
	}
	if surface.SelectedID() != id || surface.State().Mode != ModeIdle {
		t.Fatalf("expected new element selected and idle, got %q %+v", surface.SelectedID(), surface.State())
	}
	if recorder.count(ChangeAdded) != 1 {
		t.Fatalf("expected one added change, got %+v", recorder.changes)
	}
}

func TestBackgroundCannotBeDeleted(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	addRectangle(t, surface, geometry.Point{X: 10, Y: 10})
	before := surface.Len()
	if surface.DeleteElement(elements.BackgroundID) {
		t.Fatalf("background deletion reported success")
	}
	if surface.Len() != before {
		t.Fatalf("background deletion changed the list")
	}
	if surface.ToggleLock(elements.BackgroundID) {
		t.Fatalf("background lock must not toggle")
	}
	if _, ok := surface.DuplicateElement(elements.BackgroundID); ok {
		t.Fatalf("background must not be duplicated")
	}
}

func TestDeleteClearsSelection(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	id := addRectangle(t, surface, geometry.Point{X: 10, Y: 10})
	if !surface.DeleteElement(id) {
		t.Fatalf("expected deletion")
	}
	if surface.SelectedID() != "" {
		t.Fatalf("expected selection cleared")
	}
	if surface.DeleteElement(id) {
		t.Fatalf("second delete must report missing")
	}
}

func TestLockedElementIgnoresTranslateAndResize(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	id := addRectangle(t, surface, geometry.Point{X: 100, Y: 100})
	surface.ToggleLock(id)
	before, _ := surface.Element(id)

	corners := []geometry.Corner{geometry.CornerNorthWest, geometry.CornerNorthEast, geometry.CornerSouthWest, geometry.CornerSouthEast}
	deltas := []geometry.Point{{X: 50, Y: 50}, {X: -500, Y: 30}, {X: 1000, Y: -1000}}
	for _, delta := range deltas {
		if frame, _ := surface.Translate(id, delta); frame != before.Frame {
			t.Fatalf("locked translate moved element to %+v", frame)
		}
		for _, corner := range corners {
			if frame, _ := surface.Resize(id, corner, delta); frame != before.Frame {
				t.Fatalf("locked resize %s changed frame to %+v", corner, frame)
			}
		}
	}
}

func TestLockedResizeScenarioThroughHandles(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	id := addRectangle(t, surface, geometry.Point{X: 100, Y: 100})
	surface.ToggleLock(id)
	surface.Select(id)

	outcome := surface.PointerDownHandle(id, geometry.CornerSouthEast, geometry.Point{X: 250, Y: 200})
	if outcome.Action != ActionNone || surface.State().Mode != ModeIdle {
		t.Fatalf("locked element must not enter resizing, got %+v", surface.State())
	}
	surface.PointerMove(geometry.Point{X: 400, Y: 400})
	after, _ := surface.Element(id)
	if after.Frame != (geometry.Rect{X: 100, Y: 100, Width: 150, Height: 100}) {
		t.Fatalf("locked element changed: %+v", after.Frame)
	}
}

func TestDuplicateProducesUniqueID(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	id := addRectangle(t, surface, geometry.Point{X: 100, Y: 100})

	seen := map[string]bool{}
	for _, element := range surface.Elements() {
		seen[element.ID] = true
	}
	for range 5 {
		clone, ok := surface.DuplicateElement(id)
		if !ok {
			t.Fatalf("duplicate failed")
		}
		if seen[clone] {
			t.Fatalf("duplicate reused id %q", clone)
		}
		seen[clone] = true
		if surface.SelectedID() != clone {
			t.Fatalf("expected clone selected")
		}
	}
	clone, _ := surface.Element(surface.SelectedID())
	if clone.Frame.X <= 100 {
		t.Fatalf("expected offset clone, got %+v", clone.Frame)
	}
}

func TestDuplicateSkipsCollidingID(t *testing.T) {
	ids := &sequenceIDs{}
	surface, err := NewSurface(Options{IDs: ids})
	if err != nil {
		t.Fatalf("new surface: %v", err)
	}
	if err := surface.AddElement(elements.New(elements.KindText, geometry.Point{}, surface.Bounds(), &sequenceIDs{next: 0})); err != nil {
		t.Fatalf("add: %v", err)
	}
	clone, ok := surface.DuplicateElement("el_1")
	if !ok || clone == "el_1" {
		t.Fatalf("expected fresh clone id, got %q", clone)
	}
}

func TestUpdateElementMergesAndKeepsLock(t *testing.T) {
	surface, recorder := newTestSurface(t, Capabilities{})
	id := addRectangle(t, surface, geometry.Point{X: 10, Y: 10})
	color := "#ff0000"

	if !surface.UpdateElement(id, elements.Patch{BackgroundColor: &color}) {
		t.Fatalf("expected update")
	}
	updated, _ := surface.Element(id)
	shape, _ := updated.Shape()
	if shape.BackgroundColor != color || updated.Locked {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if surface.UpdateElement("missing", elements.Patch{BackgroundColor: &color}) {
		t.Fatalf("missing id must be a no-op")
	}
	if recorder.count(ChangeUpdated) != 1 {
		t.Fatalf("expected one update change, got %d", recorder.count(ChangeUpdated))
	}
}

func TestToggleVisibilityKeepsGeometry(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	id := addRectangle(t, surface, geometry.Point{X: 10, Y: 10})
	before, _ := surface.Element(id)
	surface.ToggleVisibility(id)
	after, _ := surface.Element(id)
	if after.Visible || after.Frame != before.Frame {
		t.Fatalf("unexpected visibility toggle result %+v", after)
	}
	if _, hit := surface.HitTest(geometry.Point{X: 20, Y: 20}); hit {
		t.Fatalf("hidden element must not be hit")
	}
}

func TestLayerOrderKeepsBackgroundAtBottom(t *testing.T) {
	surface, recorder := newTestSurface(t, Capabilities{})
	first := addRectangle(t, surface, geometry.Point{X: 10, Y: 10})
	second := addRectangle(t, surface, geometry.Point{X: 20, Y: 20})

	if surface.SendBackward(first) {
		t.Fatalf("element above background must not move below it")
	}
	if !surface.SendBackward(second) {
		t.Fatalf("expected send backward")
	}
	list := surface.Elements()
	if list[0].ID != elements.BackgroundID || list[1].ID != second || list[2].ID != first {
		t.Fatalf("unexpected order %v %v %v", list[0].ID, list[1].ID, list[2].ID)
	}
	if !surface.BringForward(second) || surface.BringForward(second) {
		t.Fatalf("expected one step forward then stop at the top")
	}
	if surface.BringForward(elements.BackgroundID) {
		t.Fatalf("background must stay at the bottom")
	}
	if recorder.count(ChangeReordered) != 2 {
		t.Fatalf("expected two reorder changes, got %d", recorder.count(ChangeReordered))
	}
}

func TestSetZoomClampsAndKeepsGeometry(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	id := addRectangle(t, surface, geometry.Point{X: 10, Y: 10})
	before, _ := surface.Element(id)
	if zoom := surface.SetZoom(5); zoom != geometry.MaxZoom {
		t.Fatalf("expected clamp to max, got %v", zoom)
	}
	after, _ := surface.Element(id)
	if after.Frame != before.Frame {
		t.Fatalf("zoom changed geometry")
	}
	view := surface.SetGrid(0, true, true)
	if view.GridSize != geometry.DefaultGridSize || !view.SnapToGrid || !view.ShowGrid {
		t.Fatalf("unexpected viewport %+v", view)
	}
}

func TestReplaceNormalisesBackground(t *testing.T) {
	surface, recorder := newTestSurface(t, Capabilities{})
	addRectangle(t, surface, geometry.Point{X: 10, Y: 10})

	ids := &sequenceIDs{next: 100}
	text := elements.New(elements.KindText, geometry.Point{X: 5, Y: 5}, surface.Bounds(), ids)
	background := elements.NewBackground(surface.Bounds())
	background.Locked = false
	background.Frame = geometry.Rect{X: 10, Y: 10, Width: 20, Height: 20}

	if err := surface.Replace([]elements.Element{text, background}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	list := surface.Elements()
	if len(list) != 2 || !list[0].IsBackground() || list[1].ID != text.ID {
		t.Fatalf("unexpected list after replace: %+v", list)
	}
	if !list[0].Locked || list[0].Frame != surface.Bounds().Full() {
		t.Fatalf("background not normalised: %+v", list[0])
	}
	if surface.SelectedID() != "" || recorder.count(ChangeReplaced) != 1 {
		t.Fatalf("expected selection reset and one replaced change")
	}

	if err := surface.Replace(nil); err != nil {
		t.Fatalf("replace empty: %v", err)
	}
	if surface.Len() != 1 {
		t.Fatalf("expected background to be restored")
	}
}

func TestReplaceRejectsDuplicateIDs(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	ids := &sequenceIDs{}
	id := addRectangle(t, surface, geometry.Point{X: 10, Y: 10})
	text := elements.New(elements.KindText, geometry.Point{}, surface.Bounds(), ids)
	twin := elements.New(elements.KindText, geometry.Point{}, surface.Bounds(), &sequenceIDs{})

	err := surface.Replace([]elements.Element{text, twin})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := surface.Element(id); !ok {
		t.Fatalf("failed replace must leave the list untouched")
	}
}

func TestAddElementRejectsDuplicateAndBackground(t *testing.T) {
	surface, _ := newTestSurface(t, Capabilities{})
	id := addRectangle(t, surface, geometry.Point{X: 10, Y: 10})
	existing, _ := surface.Element(id)

	if err := surface.AddElement(existing); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if err := surface.AddElement(elements.NewBackground(surface.Bounds())); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected background rejection, got %v", err)
	}
}

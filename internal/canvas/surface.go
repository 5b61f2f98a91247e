// Package canvas owns the live element list of one open document and routes pointer input
// through the tool and selection state machine.
//
// A Surface is single-writer: hosts serialise calls to it. No method performs I/O.
package canvas

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
)

const (
	opSurfaceNew = "canvas.surface.new"
	opAdd        = "canvas.add_element"
	opReplace    = "canvas.replace"
	opPlaceImage = "canvas.place_image"
	opSelectTool = "canvas.select_tool"
)

var (
	errInvalidBounds          = errors.New("canvas bounds must be positive")
	errDuplicateID            = errors.New("element id already present")
	errBackgroundTwin         = errors.New("background already present")
	errNoPendingImage         = errors.New("no image placement pending")
	errUnsupportedImageSource = errors.New("image source must be an http(s) or data url")
	errGestureActive          = errors.New("gesture in progress")
)

// Capabilities switch editor features per host.
type Capabilities struct {
	AllowShare        bool     `json:"allowShare"`
	AllowPrivacy      bool     `json:"allowPrivacy"`
	AllowPlaceholders bool     `json:"allowPlaceholders"`
	FieldSet          []string `json:"fieldSet,omitempty"`
}

// ChangeKind classifies a Change.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeUpdated   ChangeKind = "updated"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeReordered ChangeKind = "reordered"
	ChangeSelection ChangeKind = "selection"
	ChangeState     ChangeKind = "state"
	ChangeViewport  ChangeKind = "viewport"
	ChangeReplaced  ChangeKind = "replaced"
)

// Change tells the host which element needs re-rendering. ElementID is empty for surface-wide
// changes.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	ElementID string     `json:"elementId,omitempty"`
}

// Listener receives every Change synchronously.
type Listener func(Change)

// Options configures a Surface. Zero Bounds and Viewport fall back to the canonical defaults and
// a nil IDs falls back to TypeIDs.
type Options struct {
	Bounds       geometry.Bounds
	Viewport     geometry.Viewport
	Capabilities Capabilities
	IDs          elements.IDSource
	Listener     Listener
}

// Surface is the editor engine for one document.
type Surface struct {
	bounds       geometry.Bounds
	viewport     geometry.Viewport
	capabilities Capabilities
	ids          elements.IDSource
	listener     Listener

	elements []elements.Element
	selected string

	state        State
	gesture      gesture
	pendingImage *geometry.Point
}

// NewSurface returns a Surface holding only the background element.
func NewSurface(opts Options) (*Surface, error) {
	bounds := opts.Bounds
	if bounds == (geometry.Bounds{}) {
		bounds = geometry.DefaultBounds()
	}
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return nil, apperr.New(opSurfaceNew, "invalid_bounds", apperr.ErrValidation, errInvalidBounds)
	}
	if bounds.MinSize <= 0 {
		bounds.MinSize = geometry.MinElementSize
	}

	viewport := opts.Viewport
	if viewport == (geometry.Viewport{}) {
		viewport = geometry.DefaultViewport()
	}
	viewport.Zoom = geometry.ClampZoom(viewport.Zoom)

	ids := opts.IDs
	if ids == nil {
		ids = elements.NewTypeIDSource()
	}

	surface := &Surface{
		bounds:       bounds,
		viewport:     viewport,
		capabilities: opts.Capabilities,
		ids:          ids,
		listener:     opts.Listener,
		state:        State{Mode: ModeIdle},
	}
	surface.elements = []elements.Element{elements.NewBackground(bounds)}
	return surface, nil
}

// SetListener replaces the change listener. A nil listener silences notifications.
func (s *Surface) SetListener(listener Listener) {
	s.listener = listener
}

func (s *Surface) Bounds() geometry.Bounds     { return s.bounds }
func (s *Surface) Viewport() geometry.Viewport { return s.viewport }
func (s *Surface) Capabilities() Capabilities  { return s.capabilities }
func (s *Surface) State() State                { return s.state }
func (s *Surface) SelectedID() string          { return s.selected }
func (s *Surface) Len() int                    { return len(s.elements) }

// Elements returns a copy of the list in paint order, background first.
func (s *Surface) Elements() []elements.Element {
	out := make([]elements.Element, len(s.elements))
	copy(out, s.elements)
	return out
}

// Element looks up an element by id.
func (s *Surface) Element(id string) (elements.Element, bool) {
	index := s.indexOf(id)
	if index < 0 {
		return elements.Element{}, false
	}
	return s.elements[index], true
}

// Selected returns the selected element, if any.
func (s *Surface) Selected() (elements.Element, bool) {
	if s.selected == "" {
		return elements.Element{}, false
	}
	return s.Element(s.selected)
}

// AddElement appends e, selects it and exits any creation tool.
func (s *Surface) AddElement(e elements.Element) error {
	if err := e.Validate(); err != nil {
		return apperr.New(opAdd, "invalid_element", apperr.ErrValidation, err)
	}
	if e.IsBackground() {
		return apperr.New(opAdd, "background_present", apperr.ErrValidation, errBackgroundTwin)
	}
	if s.indexOf(e.ID) >= 0 {
		return apperr.New(opAdd, "duplicate_id", apperr.ErrValidation, fmt.Errorf("%w: %s", errDuplicateID, e.ID))
	}
	e.Frame = geometry.ClampRect(e.Frame, s.bounds)
	s.elements = append(s.elements, e)
	s.emit(Change{Kind: ChangeAdded, ElementID: e.ID})

	s.pendingImage = nil
	s.setState(State{Mode: ModeIdle})
	s.Select(e.ID)
	return nil
}

// UpdateElement merges patch into the element. It reports false when id is unknown.
func (s *Surface) UpdateElement(id string, patch elements.Patch) bool {
	index := s.indexOf(id)
	if index < 0 {
		return false
	}
	s.elements[index] = elements.ApplyPatch(s.elements[index], patch, s.patchOptions())
	s.emit(Change{Kind: ChangeUpdated, ElementID: id})
	return true
}

// DeleteElement removes the element. The background is never removed.
func (s *Surface) DeleteElement(id string) bool {
	index := s.indexOf(id)
	if index < 0 || s.elements[index].IsBackground() {
		return false
	}
	s.elements = append(s.elements[:index], s.elements[index+1:]...)
	if s.state.ElementID == id {
		s.endGesture()
	}
	s.emit(Change{Kind: ChangeDeleted, ElementID: id})
	if s.selected == id {
		s.ClearSelection()
	}
	return true
}

// ToggleLock flips the lock flag. The background stays locked.
func (s *Surface) ToggleLock(id string) bool {
	index := s.indexOf(id)
	if index < 0 || s.elements[index].IsBackground() {
		return false
	}
	s.elements[index].Locked = !s.elements[index].Locked
	if s.elements[index].Locked && s.state.ElementID == id {
		s.endGesture()
	}
	s.emit(Change{Kind: ChangeUpdated, ElementID: id})
	return true
}

// ToggleVisibility flips the visible flag without touching geometry or content.
func (s *Surface) ToggleVisibility(id string) bool {
	index := s.indexOf(id)
	if index < 0 {
		return false
	}
	s.elements[index].Visible = !s.elements[index].Visible
	s.emit(Change{Kind: ChangeUpdated, ElementID: id})
	return true
}

// DuplicateElement appends a clone of the element and selects it.
func (s *Surface) DuplicateElement(id string) (string, bool) {
	original, ok := s.Element(id)
	if !ok || original.IsBackground() {
		return "", false
	}
	duplicate := elements.Clone(original, s.bounds, s.ids)
	for s.indexOf(duplicate.ID) >= 0 {
		duplicate.ID = s.ids.NewID()
	}
	s.elements = append(s.elements, duplicate)
	s.emit(Change{Kind: ChangeAdded, ElementID: duplicate.ID})
	s.Select(duplicate.ID)
	return duplicate.ID, true
}

// Translate moves the element by a pointer-space delta in one step and returns its frame.
// Locked elements are left unchanged.
func (s *Surface) Translate(id string, delta geometry.Point) (geometry.Rect, bool) {
	index := s.indexOf(id)
	if index < 0 {
		return geometry.Rect{}, false
	}
	current := s.elements[index]
	if current.Locked {
		return current.Frame, true
	}
	return s.commitFrame(index, geometry.Translate(current.Frame, delta, s.viewport, s.bounds)), true
}

// Resize drags a corner of the element by a pointer-space delta in one step and returns its
// frame. Locked elements are left unchanged.
func (s *Surface) Resize(id string, corner geometry.Corner, delta geometry.Point) (geometry.Rect, bool) {
	index := s.indexOf(id)
	if index < 0 {
		return geometry.Rect{}, false
	}
	current := s.elements[index]
	if current.Locked || !corner.Valid() {
		return current.Frame, true
	}
	return s.commitFrame(index, geometry.Resize(current.Frame, corner, delta, s.viewport, s.bounds)), true
}

// Select marks id as the selected element.
func (s *Surface) Select(id string) bool {
	if s.indexOf(id) < 0 {
		return false
	}
	if s.selected != id {
		s.selected = id
		s.emit(Change{Kind: ChangeSelection, ElementID: id})
	}
	return true
}

// ClearSelection drops the selection.
func (s *Surface) ClearSelection() {
	if s.selected == "" {
		return
	}
	s.selected = ""
	s.emit(Change{Kind: ChangeSelection})
}

// BringForward moves the element one step towards the front.
func (s *Surface) BringForward(id string) bool {
	index := s.indexOf(id)
	if index < 0 || s.elements[index].IsBackground() || index == len(s.elements)-1 {
		return false
	}
	s.swap(index, index+1)
	s.emit(Change{Kind: ChangeReordered, ElementID: id})
	return true
}

// SendBackward moves the element one step towards the back. The background stays at the bottom.
func (s *Surface) SendBackward(id string) bool {
	index := s.indexOf(id)
	if index <= 0 || s.elements[index].IsBackground() || s.elements[index-1].IsBackground() {
		return false
	}
	s.swap(index, index-1)
	s.emit(Change{Kind: ChangeReordered, ElementID: id})
	return true
}

// SetZoom changes the display scale and returns the clamped value. Stored geometry is untouched.
func (s *Surface) SetZoom(zoom float64) float64 {
	s.viewport.Zoom = geometry.ClampZoom(zoom)
	s.emit(Change{Kind: ChangeViewport})
	return s.viewport.Zoom
}

// SetGrid updates grid pitch and flags. A non-positive size keeps the current pitch.
func (s *Surface) SetGrid(size float64, snap, show bool) geometry.Viewport {
	if size > 0 {
		s.viewport.GridSize = size
	}
	s.viewport.SnapToGrid = snap
	s.viewport.ShowGrid = show
	s.emit(Change{Kind: ChangeViewport})
	return s.viewport
}

// Replace swaps in a whole new list, as on load. Ids must be unique and the list may carry at
// most one background; a missing background is added and the background is normalised to the
// bottom of the stack, locked and covering the canvas. Selection and tool state reset.
func (s *Surface) Replace(list []elements.Element) error {
	seen := make(map[string]struct{}, len(list))
	next := make([]elements.Element, 0, len(list)+1)
	var background *elements.Element

	for _, element := range list {
		if err := element.Validate(); err != nil {
			return apperr.New(opReplace, "invalid_element", apperr.ErrValidation, err)
		}
		if _, duplicate := seen[element.ID]; duplicate {
			return apperr.New(opReplace, "duplicate_id", apperr.ErrValidation, fmt.Errorf("%w: %s", errDuplicateID, element.ID))
		}
		seen[element.ID] = struct{}{}
		if element.IsBackground() {
			normalised := element
			normalised.Locked = true
			normalised.Frame = s.bounds.Full()
			background = &normalised
			continue
		}
		next = append(next, element)
	}
	if background == nil {
		created := elements.NewBackground(s.bounds)
		background = &created
	}

	s.elements = append([]elements.Element{*background}, next...)
	s.selected = ""
	s.pendingImage = nil
	s.gesture = gesture{}
	s.state = State{Mode: ModeIdle}
	s.emit(Change{Kind: ChangeReplaced})
	return nil
}

func (s *Surface) patchOptions() elements.PatchOptions {
	return elements.PatchOptions{
		Bounds:            s.bounds,
		AllowPlaceholders: s.capabilities.AllowPlaceholders,
		FieldSet:          s.capabilities.FieldSet,
	}
}

func (s *Surface) commitFrame(index int, frame geometry.Rect) geometry.Rect {
	if s.elements[index].Frame == frame {
		return frame
	}
	s.elements[index].Frame = frame
	s.emit(Change{Kind: ChangeUpdated, ElementID: s.elements[index].ID})
	return frame
}

func (s *Surface) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for index := range s.elements {
		if s.elements[index].ID == id {
			return index
		}
	}
	return -1
}

func (s *Surface) swap(i, j int) {
	s.elements[i], s.elements[j] = s.elements[j], s.elements[i]
}

func (s *Surface) emit(change Change) {
	if s.listener != nil {
		s.listener(change)
	}
}

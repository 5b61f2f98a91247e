package canvas

import (
	"strings"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
)

// Mode is the state machine's current state.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeToolArmed Mode = "tool_armed"
	ModeDragging  Mode = "dragging"
	ModeResizing  Mode = "resizing"
)

// State is the current mode plus its payload: Tool for ModeToolArmed, ElementID for the gesture
// modes and Corner for ModeResizing.
type State struct {
	Mode      Mode            `json:"mode"`
	Tool      elements.Kind   `json:"tool,omitempty"`
	ElementID string          `json:"elementId,omitempty"`
	Corner    geometry.Corner `json:"corner,omitempty"`
}

// Action reports what a pointer-down did.
type Action string

const (
	ActionNone             Action = "none"
	ActionCreated          Action = "created"
	ActionSelected         Action = "selected"
	ActionSelectionCleared Action = "selection_cleared"
	ActionDragStarted      Action = "drag_started"
	ActionResizeStarted    Action = "resize_started"
	ActionOpenImagePicker  Action = "open_image_picker"
)

// Outcome is the result of a pointer-down. At is the canvas-space point when the press landed on
// the canvas background.
type Outcome struct {
	Action    Action         `json:"action"`
	ElementID string         `json:"elementId,omitempty"`
	At        geometry.Point `json:"at"`
}

// gesture pins the references every move is computed from.
type gesture struct {
	startFrame   geometry.Rect
	startPointer geometry.Point
}

// SelectTool arms a creation tool. It fails during a drag or resize.
func (s *Surface) SelectTool(kind elements.Kind) error {
	parsed, err := elements.ParseKind(string(kind))
	if err != nil {
		return apperr.New(opSelectTool, "unknown_tool", apperr.ErrValidation, err)
	}
	if s.gestureActive() {
		return apperr.New(opSelectTool, "gesture_active", apperr.ErrValidation, errGestureActive)
	}
	s.pendingImage = nil
	s.setState(State{Mode: ModeToolArmed, Tool: parsed})
	return nil
}

// CancelTool disarms the tool and discards any pending image placement.
func (s *Surface) CancelTool() {
	if s.state.Mode != ModeToolArmed {
		return
	}
	s.pendingImage = nil
	s.setState(State{Mode: ModeIdle})
}

// PendingImage returns where the next resolved image will be placed.
func (s *Surface) PendingImage() (geometry.Point, bool) {
	if s.pendingImage == nil {
		return geometry.Point{}, false
	}
	return *s.pendingImage, true
}

// HitTest returns the topmost visible element under the canvas-space point. The background is
// never hit.
func (s *Surface) HitTest(point geometry.Point) (string, bool) {
	for index := len(s.elements) - 1; index >= 0; index-- {
		element := s.elements[index]
		if element.IsBackground() || !element.Visible {
			continue
		}
		if element.Frame.Contains(point) {
			return element.ID, true
		}
	}
	return "", false
}

// PointerDown routes a screen-space press. origin is the canvas's screen position.
func (s *Surface) PointerDown(pointer, origin geometry.Point) Outcome {
	at := geometry.ScreenToCanvas(pointer, origin, s.viewport.Zoom)
	if id, ok := s.HitTest(at); ok {
		outcome := s.PointerDownElement(id, pointer)
		outcome.At = at
		return outcome
	}
	return s.PointerDownBackground(at)
}

// PointerDownBackground handles a press on empty canvas at a canvas-space point. An armed tool
// creates its element there; the image tool records the placement and asks for a source
// instead. Without a tool the selection is cleared.
func (s *Surface) PointerDownBackground(at geometry.Point) Outcome {
	switch s.state.Mode {
	case ModeToolArmed:
		if s.state.Tool == elements.KindImage {
			point := at
			s.pendingImage = &point
			return Outcome{Action: ActionOpenImagePicker, At: at}
		}
		element := elements.New(s.state.Tool, at, s.bounds, s.ids)
		if err := s.AddElement(element); err != nil {
			return Outcome{Action: ActionNone, At: at}
		}
		return Outcome{Action: ActionCreated, ElementID: element.ID, At: at}
	case ModeIdle:
		s.ClearSelection()
		return Outcome{Action: ActionSelectionCleared, At: at}
	default:
		return Outcome{Action: ActionNone, At: at}
	}
}

// PointerDownElement handles a press on an element. pointer is the screen-space position that
// anchors the drag. An armed tool is disarmed first. Locked elements are only selected.
func (s *Surface) PointerDownElement(id string, pointer geometry.Point) Outcome {
	if s.gestureActive() {
		return Outcome{Action: ActionNone}
	}
	element, ok := s.Element(id)
	if !ok {
		return Outcome{Action: ActionNone}
	}
	if s.state.Mode == ModeToolArmed {
		s.CancelTool()
	}
	if element.IsBackground() {
		s.ClearSelection()
		return Outcome{Action: ActionSelectionCleared}
	}
	s.Select(id)
	if element.Locked {
		return Outcome{Action: ActionSelected, ElementID: id}
	}
	s.gesture = gesture{startFrame: element.Frame, startPointer: pointer}
	s.setState(State{Mode: ModeDragging, ElementID: id})
	return Outcome{Action: ActionDragStarted, ElementID: id}
}

// PointerDownHandle starts a resize from a corner handle of the selected, unlocked element.
func (s *Surface) PointerDownHandle(id string, corner geometry.Corner, pointer geometry.Point) Outcome {
	if s.gestureActive() || s.selected != id || !corner.Valid() {
		return Outcome{Action: ActionNone}
	}
	element, ok := s.Element(id)
	if !ok || element.Locked {
		return Outcome{Action: ActionNone}
	}
	if s.state.Mode == ModeToolArmed {
		s.CancelTool()
	}
	s.gesture = gesture{startFrame: element.Frame, startPointer: pointer}
	s.setState(State{Mode: ModeResizing, ElementID: id, Corner: corner})
	return Outcome{Action: ActionResizeStarted, ElementID: id}
}

// PointerMove applies the active gesture for a screen-space pointer position. Geometry is
// always computed from the gesture's start frame and start pointer.
func (s *Surface) PointerMove(pointer geometry.Point) (geometry.Rect, bool) {
	if !s.gestureActive() {
		return geometry.Rect{}, false
	}
	index := s.indexOf(s.state.ElementID)
	if index < 0 || s.elements[index].Locked {
		s.endGesture()
		return geometry.Rect{}, false
	}

	delta := pointer.Sub(s.gesture.startPointer)
	var frame geometry.Rect
	if s.state.Mode == ModeDragging {
		frame = geometry.Translate(s.gesture.startFrame, delta, s.viewport, s.bounds)
	} else {
		frame = geometry.Resize(s.gesture.startFrame, s.state.Corner, delta, s.viewport, s.bounds)
	}
	return s.commitFrame(index, frame), true
}

// PointerUp ends any drag or resize, wherever the pointer was released.
func (s *Surface) PointerUp() {
	if s.gestureActive() {
		s.endGesture()
	}
}

// PlaceImage creates the image element at the pending placement once its source resolved.
func (s *Surface) PlaceImage(imageURL string) (string, error) {
	if s.state.Mode != ModeToolArmed || s.state.Tool != elements.KindImage || s.pendingImage == nil {
		return "", apperr.New(opPlaceImage, "no_pending_placement", apperr.ErrValidation, errNoPendingImage)
	}
	if !elements.ValidImageSource(imageURL) {
		return "", apperr.New(opPlaceImage, "invalid_image_url", apperr.ErrValidation, errUnsupportedImageSource)
	}
	imageURL = strings.TrimSpace(imageURL)
	element := elements.NewImage(imageURL, *s.pendingImage, s.bounds, s.ids)
	if err := s.AddElement(element); err != nil {
		return "", err
	}
	return element.ID, nil
}

func (s *Surface) gestureActive() bool {
	return s.state.Mode == ModeDragging || s.state.Mode == ModeResizing
}

func (s *Surface) endGesture() {
	s.gesture = gesture{}
	s.setState(State{Mode: ModeIdle})
}

func (s *Surface) setState(next State) {
	if s.state == next {
		return
	}
	s.state = next
	s.emit(Change{Kind: ChangeState})
}

package editor

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
)

const opApply = "editor.apply"

// Op names a command. The names are the host wire protocol.
type Op string

const (
	OpSelectTool         Op = "selectTool"
	OpCancelTool         Op = "cancelTool"
	OpPointerDown        Op = "pointerDown"
	OpPointerDownElement Op = "pointerDownElement"
	OpPointerDownHandle  Op = "pointerDownHandle"
	OpPointerMove        Op = "pointerMove"
	OpPointerUp          Op = "pointerUp"
	OpUpdate             Op = "update"
	OpDelete             Op = "delete"
	OpToggleLock         Op = "toggleLock"
	OpToggleVisibility   Op = "toggleVisibility"
	OpDuplicate          Op = "duplicate"
	OpBringForward       Op = "bringForward"
	OpSendBackward       Op = "sendBackward"
	OpSelect             Op = "select"
	OpClearSelection     Op = "clearSelection"
	OpSetZoom            Op = "setZoom"
	OpSetGrid            Op = "setGrid"
	OpPlaceImage         Op = "placeImage"
)

var errUnknownOp = errors.New("unknown command")

// Command is one host input. Only the fields the op needs are read.
type Command struct {
	Op        Op              `json:"op"`
	Tool      elements.Kind   `json:"tool,omitempty"`
	ElementID string          `json:"elementId,omitempty"`
	Corner    geometry.Corner `json:"corner,omitempty"`
	Pointer   geometry.Point  `json:"pointer"`
	Origin    geometry.Point  `json:"origin"`
	Patch     *elements.Patch `json:"patch,omitempty"`
	Zoom      float64         `json:"zoom,omitempty"`
	GridSize  float64         `json:"gridSize,omitempty"`
	Snap      bool            `json:"snap,omitempty"`
	ShowGrid  bool            `json:"showGrid,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
}

// Result reports what a command did. Changed is false when the command was a no-op, such as
// deleting the background or sending the bottom element backward.
type Result struct {
	Changed    bool              `json:"changed"`
	Outcome    *canvas.Outcome   `json:"outcome,omitempty"`
	ElementID  string            `json:"elementId,omitempty"`
	Frame      *geometry.Rect    `json:"frame,omitempty"`
	Changes    []canvas.Change   `json:"changes"`
	State      canvas.State      `json:"state"`
	SelectedID string            `json:"selectedId,omitempty"`
	Viewport   geometry.Viewport `json:"viewport"`
}

func (s *Session) apply(cmd Command) (Result, error) {
	surface := s.surface
	switch cmd.Op {
	case OpSelectTool:
		if err := surface.SelectTool(cmd.Tool); err != nil {
			return Result{}, err
		}
		if s.acquisition != nil {
			s.acquisition.Cancel()
		}
		return Result{Changed: true}, nil
	case OpCancelTool:
		if s.acquisition != nil {
			s.acquisition.Cancel()
		}
		surface.CancelTool()
		return Result{Changed: len(s.changes) > 0}, nil
	case OpPointerDown:
		return outcomeResult(surface.PointerDown(cmd.Pointer, cmd.Origin)), nil
	case OpPointerDownElement:
		return outcomeResult(surface.PointerDownElement(cmd.ElementID, cmd.Pointer)), nil
	case OpPointerDownHandle:
		return outcomeResult(surface.PointerDownHandle(cmd.ElementID, cmd.Corner, cmd.Pointer)), nil
	case OpPointerMove:
		frame, moved := surface.PointerMove(cmd.Pointer)
		result := Result{Changed: moved, ElementID: surface.State().ElementID}
		if moved {
			result.Frame = &frame
		}
		return result, nil
	case OpPointerUp:
		surface.PointerUp()
		return Result{Changed: len(s.changes) > 0}, nil
	case OpUpdate:
		if cmd.Patch == nil {
			return Result{}, apperr.New(opApply, "missing_patch", apperr.ErrValidation, errors.New("update requires a patch"))
		}
		return Result{Changed: surface.UpdateElement(cmd.ElementID, *cmd.Patch), ElementID: cmd.ElementID}, nil
	case OpDelete:
		return Result{Changed: surface.DeleteElement(cmd.ElementID), ElementID: cmd.ElementID}, nil
	case OpToggleLock:
		return Result{Changed: surface.ToggleLock(cmd.ElementID), ElementID: cmd.ElementID}, nil
	case OpToggleVisibility:
		return Result{Changed: surface.ToggleVisibility(cmd.ElementID), ElementID: cmd.ElementID}, nil
	case OpDuplicate:
		id, ok := surface.DuplicateElement(cmd.ElementID)
		return Result{Changed: ok, ElementID: id}, nil
	case OpBringForward:
		return Result{Changed: surface.BringForward(cmd.ElementID), ElementID: cmd.ElementID}, nil
	case OpSendBackward:
		return Result{Changed: surface.SendBackward(cmd.ElementID), ElementID: cmd.ElementID}, nil
	case OpSelect:
		return Result{Changed: surface.Select(cmd.ElementID), ElementID: cmd.ElementID}, nil
	case OpClearSelection:
		surface.ClearSelection()
		return Result{Changed: len(s.changes) > 0}, nil
	case OpSetZoom:
		surface.SetZoom(cmd.Zoom)
		return Result{Changed: true}, nil
	case OpSetGrid:
		surface.SetGrid(cmd.GridSize, cmd.Snap, cmd.ShowGrid)
		return Result{Changed: true}, nil
	case OpPlaceImage:
		id, err := surface.PlaceImage(cmd.ImageURL)
		if err != nil {
			return Result{}, err
		}
		if s.acquisition != nil {
			s.acquisition.Cancel()
		}
		return Result{Changed: true, ElementID: id}, nil
	default:
		return Result{}, apperr.New(opApply, "unknown_op", apperr.ErrValidation, fmt.Errorf("%w: %q", errUnknownOp, cmd.Op))
	}
}

func outcomeResult(outcome canvas.Outcome) Result {
	return Result{
		Changed:   outcome.Action != canvas.ActionNone,
		Outcome:   &outcome,
		ElementID: outcome.ElementID,
	}
}

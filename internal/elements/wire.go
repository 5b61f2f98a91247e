package elements

import (
	"encoding/json"
	"fmt"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
)

// Wire is the flat persisted shape of an element. Mandatory fields are pointers so that
// decoding can tell a missing field from a zero value.
type Wire struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
	Width       *float64 `json:"width"`
	Height      *float64 `json:"height"`
	Locked      *bool    `json:"locked"`
	Visible     *bool    `json:"visible,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
	Rotation    *float64 `json:"rotation,omitempty"`
	Placeholder *string  `json:"placeholder,omitempty"`

	Content    *string  `json:"content,omitempty"`
	FontSize   *float64 `json:"fontSize,omitempty"`
	FontFamily *string  `json:"fontFamily,omitempty"`
	FontWeight *string  `json:"fontWeight,omitempty"`
	TextAlign  *string  `json:"textAlign,omitempty"`
	Color      *string  `json:"color,omitempty"`

	BackgroundColor *string  `json:"bgColor,omitempty"`
	BorderColor     *string  `json:"borderColor,omitempty"`
	BorderWidth     *float64 `json:"borderWidth,omitempty"`
	BorderRadius    *float64 `json:"borderRadius,omitempty"`

	ImageURL    *string  `json:"imageUrl,omitempty"`
	StrokeWidth *float64 `json:"strokeWidth,omitempty"`
}

// ToWire flattens e. Common fields are always present; kind-specific fields are present for the
// kind that owns them.
func ToWire(e Element) Wire {
	wire := Wire{
		ID:       e.ID,
		Type:     string(e.Kind),
		X:        ptr(e.Frame.X),
		Y:        ptr(e.Frame.Y),
		Width:    ptr(e.Frame.Width),
		Height:   ptr(e.Frame.Height),
		Locked:   ptr(e.Locked),
		Visible:  ptr(e.Visible),
		Opacity:  ptr(e.Opacity),
		Rotation: ptr(e.Rotation),
	}
	if e.Placeholder != "" {
		wire.Placeholder = ptr(e.Placeholder)
	}

	switch body := e.Body.(type) {
	case TextBody:
		wire.Content = ptr(body.Content)
		wire.FontSize = ptr(body.FontSize)
		wire.FontFamily = ptr(body.FontFamily)
		wire.FontWeight = ptr(body.FontWeight)
		wire.TextAlign = ptr(body.TextAlign)
		wire.Color = ptr(body.Color)
	case ShapeBody:
		wire.BackgroundColor = ptr(body.BackgroundColor)
		wire.BorderColor = ptr(body.BorderColor)
		wire.BorderWidth = ptr(body.BorderWidth)
		wire.BorderRadius = ptr(body.BorderRadius)
	case ImageBody:
		wire.ImageURL = ptr(body.ImageURL)
		wire.BorderRadius = ptr(body.BorderRadius)
	case LineBody:
		wire.Color = ptr(body.Color)
		wire.StrokeWidth = ptr(body.StrokeWidth)
	}
	return wire
}

// FromWire rebuilds the tagged union. It fails when a mandatory field is missing or the type
// is unknown; optional fields fall back to the kind defaults, except visible which defaults to
// true.
func FromWire(w Wire) (Element, error) {
	if w.ID == "" {
		return Element{}, fmt.Errorf("elements: id required")
	}
	kind, err := ParseKind(w.Type)
	if err != nil {
		return Element{}, err
	}
	if w.X == nil || w.Y == nil || w.Width == nil || w.Height == nil {
		return Element{}, fmt.Errorf("elements: element %s missing geometry", w.ID)
	}
	if w.Locked == nil {
		return Element{}, fmt.Errorf("elements: element %s missing locked flag", w.ID)
	}

	element := Element{
		ID:          w.ID,
		Kind:        kind,
		Frame:       geometry.Rect{X: *w.X, Y: *w.Y, Width: *w.Width, Height: *w.Height},
		Locked:      *w.Locked,
		Visible:     valueOr(w.Visible, true),
		Opacity:     valueOr(w.Opacity, 1),
		Rotation:    valueOr(w.Rotation, 0),
		Placeholder: valueOr(w.Placeholder, ""),
	}

	switch defaults := defaultBody(kind).(type) {
	case TextBody:
		element.Body = TextBody{
			Content:    valueOr(w.Content, ""),
			FontSize:   valueOr(w.FontSize, defaults.FontSize),
			FontFamily: valueOr(w.FontFamily, defaults.FontFamily),
			FontWeight: valueOr(w.FontWeight, defaults.FontWeight),
			TextAlign:  valueOr(w.TextAlign, defaults.TextAlign),
			Color:      valueOr(w.Color, defaults.Color),
		}
	case ShapeBody:
		element.Body = ShapeBody{
			BackgroundColor: valueOr(w.BackgroundColor, defaults.BackgroundColor),
			BorderColor:     valueOr(w.BorderColor, defaults.BorderColor),
			BorderWidth:     valueOr(w.BorderWidth, defaults.BorderWidth),
			BorderRadius:    valueOr(w.BorderRadius, defaults.BorderRadius),
		}
	case ImageBody:
		element.Body = ImageBody{
			ImageURL:     valueOr(w.ImageURL, ""),
			BorderRadius: valueOr(w.BorderRadius, 0),
		}
	case LineBody:
		element.Body = LineBody{
			Color:       valueOr(w.Color, defaults.Color),
			StrokeWidth: valueOr(w.StrokeWidth, defaults.StrokeWidth),
		}
	}
	return element, nil
}

// MarshalJSON encodes the flat wire shape.
func (e Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToWire(e))
}

// UnmarshalJSON decodes the flat wire shape.
func (e *Element) UnmarshalJSON(data []byte) error {
	var wire Wire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	element, err := FromWire(wire)
	if err != nil {
		return err
	}
	*e = element
	return nil
}

func ptr[T any](value T) *T {
	return &value
}

func valueOr[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}
	return *value
}

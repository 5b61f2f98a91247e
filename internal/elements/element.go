// Package elements defines the placeable objects of an invitation canvas.
//
// In memory an Element is a tagged union: Kind selects which Body variant carries the
// kind-specific attributes. On the wire the element is a flat JSON object (see wire.go).
package elements

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
)

// Kind enumerates element variants.
type Kind string

const (
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
	KindLine      Kind = "line"
)

// BackgroundID identifies the locked full-canvas base layer.
const BackgroundID = "background"

// CloneOffset is how far a duplicate is shifted from its original on both axes.
const CloneOffset = 20.0

const (
	defaultTextContent     = "New text"
	defaultFontSize        = 16.0
	defaultFontFamily      = "Inter"
	defaultFontWeight      = "normal"
	defaultTextAlign       = "left"
	defaultTextColor       = "#1f2937"
	defaultShapeFill       = "#93c5fd"
	defaultShapeBorder     = "#1e3a8a"
	defaultLineColor       = "#111827"
	defaultLineStroke      = 2.0
	defaultBackgroundColor = "#ffffff"
)

// ParseKind validates a variant tag.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case KindText, KindImage, KindRectangle, KindCircle, KindLine:
		return kind, nil
	default:
		return "", fmt.Errorf("elements: unknown kind %q", raw)
	}
}

// Body is the kind-specific part of an element. The set of implementations is closed.
type Body interface {
	isBody()
}

// TextBody carries text-rendering attributes.
type TextBody struct {
	Content    string
	FontSize   float64
	FontFamily string
	FontWeight string
	TextAlign  string
	Color      string
}

// ShapeBody carries fill and border attributes for rectangles and circles.
type ShapeBody struct {
	BackgroundColor string
	BorderColor     string
	BorderWidth     float64
	BorderRadius    float64
}

// ImageBody carries the resolved image source: a remote URL or an embedded data URL.
type ImageBody struct {
	ImageURL     string
	BorderRadius float64
}

// LineBody carries stroke attributes.
type LineBody struct {
	Color       string
	StrokeWidth float64
}

func (TextBody) isBody()  {}
func (ShapeBody) isBody() {}
func (ImageBody) isBody() {}
func (LineBody) isBody()  {}

// Element is a single placeable object. Frame is expressed in canvas units.
type Element struct {
	ID          string
	Kind        Kind
	Frame       geometry.Rect
	Locked      bool
	Visible     bool
	Opacity     float64
	Rotation    float64
	Placeholder string
	Body        Body
}

// IsBackground reports whether e is the base layer.
func (e Element) IsBackground() bool {
	return e.ID == BackgroundID
}

// Text returns the text attributes when e is a text element.
func (e Element) Text() (TextBody, bool) {
	body, ok := e.Body.(TextBody)
	return body, ok
}

// Shape returns the fill attributes when e is a rectangle or circle.
func (e Element) Shape() (ShapeBody, bool) {
	body, ok := e.Body.(ShapeBody)
	return body, ok
}

// Image returns the image attributes when e is an image.
func (e Element) Image() (ImageBody, bool) {
	body, ok := e.Body.(ImageBody)
	return body, ok
}

// Line returns the stroke attributes when e is a line.
func (e Element) Line() (LineBody, bool) {
	body, ok := e.Body.(LineBody)
	return body, ok
}

// Validate checks the mandatory fields and that Body matches Kind.
func (e Element) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("elements: id required")
	}
	if _, err := ParseKind(string(e.Kind)); err != nil {
		return err
	}
	if !bodyMatches(e.Kind, e.Body) {
		return fmt.Errorf("elements: %s element %s has mismatched attributes", e.Kind, e.ID)
	}
	if image, ok := e.Body.(ImageBody); ok && image.ImageURL != "" && !ValidImageSource(image.ImageURL) {
		return fmt.Errorf("elements: image element %s has unsupported source", e.ID)
	}
	return nil
}

func bodyMatches(kind Kind, body Body) bool {
	switch body.(type) {
	case TextBody:
		return kind == KindText
	case ShapeBody:
		return kind == KindRectangle || kind == KindCircle
	case ImageBody:
		return kind == KindImage
	case LineBody:
		return kind == KindLine
	default:
		return false
	}
}

// defaultBody returns the attribute defaults for a kind.
func defaultBody(kind Kind) Body {
	switch kind {
	case KindText:
		return TextBody{
			Content:    defaultTextContent,
			FontSize:   defaultFontSize,
			FontFamily: defaultFontFamily,
			FontWeight: defaultFontWeight,
			TextAlign:  defaultTextAlign,
			Color:      defaultTextColor,
		}
	case KindRectangle:
		return ShapeBody{BackgroundColor: defaultShapeFill, BorderColor: defaultShapeBorder}
	case KindCircle:
		return ShapeBody{BackgroundColor: defaultShapeFill, BorderColor: defaultShapeBorder, BorderRadius: 50}
	case KindImage:
		return ImageBody{}
	case KindLine:
		return LineBody{Color: defaultLineColor, StrokeWidth: defaultLineStroke}
	default:
		return nil
	}
}

// DefaultSize returns the width and height a new element of kind starts with.
func DefaultSize(kind Kind) (float64, float64) {
	switch kind {
	case KindText:
		return 200, 40
	case KindRectangle:
		return 150, 100
	case KindCircle:
		return 100, 100
	case KindImage:
		return 200, 150
	case KindLine:
		return 200, 20
	default:
		return geometry.MinElementSize, geometry.MinElementSize
	}
}

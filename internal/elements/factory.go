package elements

import (
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
	"go.jetify.com/typeid/v2"
)

const elementIDPrefix = "el"

// IDSource issues element identifiers.
type IDSource interface {
	NewID() string
}

type typeIDSource struct {
	prefix string
}

// NewTypeIDSource returns an IDSource issuing TypeIDs such as "el_01h455vb4pex5vsknk084sn02q".
func NewTypeIDSource() IDSource {
	return typeIDSource{prefix: elementIDPrefix}
}

func (s typeIDSource) NewID() string {
	return typeid.MustGenerate(s.prefix).String()
}

// New creates an element of kind with its top-left at the position hint, clamped to bounds.
func New(kind Kind, at geometry.Point, bounds geometry.Bounds, ids IDSource) Element {
	width, height := DefaultSize(kind)
	return Element{
		ID:      ids.NewID(),
		Kind:    kind,
		Frame:   geometry.PlaceAt(at, width, height, bounds),
		Locked:  false,
		Visible: true,
		Opacity: 1,
		Body:    defaultBody(kind),
	}
}

// NewImage creates an image element already bound to a resolved source.
func NewImage(imageURL string, at geometry.Point, bounds geometry.Bounds, ids IDSource) Element {
	element := New(KindImage, at, bounds, ids)
	element.Body = ImageBody{ImageURL: imageURL}
	return element
}

// NewBackground creates the locked base layer covering the whole canvas.
func NewBackground(bounds geometry.Bounds) Element {
	return Element{
		ID:      BackgroundID,
		Kind:    KindRectangle,
		Frame:   bounds.Full(),
		Locked:  true,
		Visible: true,
		Opacity: 1,
		Body:    ShapeBody{BackgroundColor: defaultBackgroundColor},
	}
}

// Clone duplicates e under a new id, shifted by CloneOffset and kept inside bounds.
func Clone(e Element, bounds geometry.Bounds, ids IDSource) Element {
	duplicate := e
	duplicate.ID = ids.NewID()
	duplicate.Frame = geometry.ClampRect(geometry.Rect{
		X:      e.Frame.X + CloneOffset,
		Y:      e.Frame.Y + CloneOffset,
		Width:  e.Frame.Width,
		Height: e.Frame.Height,
	}, bounds)
	return duplicate
}

// Package geometry holds the pure canvas-space math used by the editor: zoom conversion,
// drag translation, corner resize, grid snapping and boundary clamping.
package geometry

import (
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultCanvasWidth is the logical width of an invitation canvas.
	DefaultCanvasWidth = 800.0
	// DefaultCanvasHeight is the logical height of an invitation canvas.
	DefaultCanvasHeight = 1000.0
	// MinElementSize floors element width and height.
	MinElementSize = 20.0
	// DefaultGridSize is the snapping grid pitch in canvas units.
	DefaultGridSize = 10.0
	// MinZoom and MaxZoom bound the display scale.
	MinZoom = 0.25
	MaxZoom = 2.0
)

// Point is a position or delta. Its space (screen or canvas) depends on the caller.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+other.
func (p Point) Add(other Point) Point {
	return Point{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns p-other.
func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

// Rect is an axis-aligned box in canvas space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 {
	return r.X + r.Width
}

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 {
	return r.Y + r.Height
}

// Origin returns the top-left corner.
func (r Rect) Origin() Point {
	return Point{X: r.X, Y: r.Y}
}

// Contains reports whether the point lies inside the rect, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// IsEmpty reports whether the rect has zero or negative area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Bounds describes the canvas extent and the minimum element size.
type Bounds struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	MinSize float64 `json:"minSize"`
}

// DefaultBounds returns the canonical 800x1000 canvas.
func DefaultBounds() Bounds {
	return Bounds{Width: DefaultCanvasWidth, Height: DefaultCanvasHeight, MinSize: MinElementSize}
}

// Full returns the rect covering the whole canvas.
func (b Bounds) Full() Rect {
	return Rect{X: 0, Y: 0, Width: b.Width, Height: b.Height}
}

// minSize never exceeds the canvas itself.
func (b Bounds) minSize() (float64, float64) {
	minimum := b.MinSize
	if minimum <= 0 {
		minimum = MinElementSize
	}
	return math.Min(minimum, b.Width), math.Min(minimum, b.Height)
}

// Viewport carries display-only state. It never changes stored geometry.
type Viewport struct {
	Zoom       float64 `json:"zoom"`
	GridSize   float64 `json:"gridSize"`
	SnapToGrid bool    `json:"snapToGrid"`
	ShowGrid   bool    `json:"showGrid"`
}

// DefaultViewport returns zoom 1 with a visible-off, snap-off 10 unit grid.
func DefaultViewport() Viewport {
	return Viewport{Zoom: 1, GridSize: DefaultGridSize}
}

// Corner names a resize handle.
type Corner string

const (
	CornerNorthWest Corner = "nw"
	CornerNorthEast Corner = "ne"
	CornerSouthWest Corner = "sw"
	CornerSouthEast Corner = "se"
)

// ParseCorner validates a handle name.
func ParseCorner(raw string) (Corner, error) {
	corner := Corner(strings.ToLower(strings.TrimSpace(raw)))
	if !corner.Valid() {
		return "", fmt.Errorf("geometry: unknown corner %q", raw)
	}
	return corner, nil
}

// Valid reports whether the corner is one of the four handles.
func (c Corner) Valid() bool {
	switch c {
	case CornerNorthWest, CornerNorthEast, CornerSouthWest, CornerSouthEast:
		return true
	default:
		return false
	}
}

// ClampZoom pins a zoom factor into [MinZoom, MaxZoom]. Non-positive values mean 1.
func ClampZoom(zoom float64) float64 {
	if zoom <= 0 || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		return 1
	}
	return clamp(zoom, MinZoom, MaxZoom)
}

// ScreenToCanvas converts a pointer position to canvas space: (pointer - origin) / zoom.
func ScreenToCanvas(pointer, origin Point, zoom float64) Point {
	z := ClampZoom(zoom)
	return Point{X: (pointer.X - origin.X) / z, Y: (pointer.Y - origin.Y) / z}
}

// CanvasDelta converts a pointer-space delta to canvas space. Non-finite components do not move.
func CanvasDelta(delta Point, zoom float64) Point {
	z := ClampZoom(zoom)
	return Point{X: finiteOrZero(delta.X) / z, Y: finiteOrZero(delta.Y) / z}
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrZero(v float64) float64 {
	if !Finite(v) {
		return 0
	}
	return v
}

// Snap rounds value to the nearest multiple of grid. A non-positive grid disables snapping.
func Snap(value, grid float64) float64 {
	if grid <= 0 {
		return value
	}
	return math.Round(value/grid) * grid
}

// ClampRect floors the size at the minimum, truncates it to the canvas and then moves the box
// so that it lies inside the canvas.
func ClampRect(r Rect, b Bounds) Rect {
	minWidth, minHeight := b.minSize()
	width := clamp(r.Width, minWidth, b.Width)
	height := clamp(r.Height, minHeight, b.Height)
	return Rect{
		X:      clamp(r.X, 0, b.Width-width),
		Y:      clamp(r.Y, 0, b.Height-height),
		Width:  width,
		Height: height,
	}
}

// PlaceAt positions a box of the given size with its top-left at point, clamped to the canvas.
func PlaceAt(point Point, width, height float64, b Bounds) Rect {
	return ClampRect(Rect{X: point.X, Y: point.Y, Width: width, Height: height}, b)
}

// Translate moves start by the pointer delta divided by zoom, snaps the resulting position when
// the viewport asks for it, and keeps the box inside the canvas.
func Translate(start Rect, delta Point, view Viewport, b Bounds) Rect {
	base := ClampRect(start, b)
	d := CanvasDelta(delta, view.Zoom)
	x := base.X + d.X
	y := base.Y + d.Y
	if view.SnapToGrid {
		x = Snap(x, view.GridSize)
		y = Snap(y, view.GridSize)
	}
	return Rect{
		X:      clamp(x, 0, b.Width-base.Width),
		Y:      clamp(y, 0, b.Height-base.Height),
		Width:  base.Width,
		Height: base.Height,
	}
}

// Resize drags one corner of start by the pointer delta divided by zoom. The two edges opposite
// the corner stay fixed, the size never drops below the minimum and never flips sign, and moving
// edges stop at the canvas boundary.
func Resize(start Rect, corner Corner, delta Point, view Viewport, b Bounds) Rect {
	if !corner.Valid() {
		return start
	}
	base := ClampRect(start, b)
	d := CanvasDelta(delta, view.Zoom)
	minWidth, minHeight := b.minSize()

	left, top, right, bottom := base.X, base.Y, base.Right(), base.Bottom()

	switch corner {
	case CornerNorthWest, CornerSouthWest:
		left = clamp(left+d.X, 0, right-minWidth)
	case CornerNorthEast, CornerSouthEast:
		right = clamp(right+d.X, left+minWidth, b.Width)
	}
	switch corner {
	case CornerNorthWest, CornerNorthEast:
		top = clamp(top+d.Y, 0, bottom-minHeight)
	case CornerSouthWest, CornerSouthEast:
		bottom = clamp(bottom+d.Y, top+minHeight, b.Height)
	}

	return ClampRect(Rect{X: left, Y: top, Width: right - left, Height: bottom - top}, b)
}

// clamp pins v into [low, high]; when high < low the low bound wins. NaN maps to low.
func clamp(v, low, high float64) float64 {
	if math.IsNaN(v) {
		return low
	}
	if v > high {
		v = high
	}
	if v < low {
		v = low
	}
	return v
}

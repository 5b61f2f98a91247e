package render

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
)

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func rgbAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func shape(id string, frame geometry.Rect, fill string) elements.Element {
	return elements.Element{
		ID:      id,
		Kind:    elements.KindRectangle,
		Frame:   frame,
		Visible: true,
		Opacity: 1,
		Body:    elements.ShapeBody{BackgroundColor: fill},
	}
}

func TestPNGPaintsVisibleElementsInOrder(t *testing.T) {
	bounds := geometry.DefaultBounds()
	hidden := shape("hidden", geometry.Rect{X: 400, Y: 400, Width: 100, Height: 100}, "#00ff00")
	hidden.Visible = false
	list := []elements.Element{
		elements.NewBackground(bounds),
		shape("red", geometry.Rect{X: 100, Y: 100, Width: 100, Height: 100}, "#ff0000"),
		shape("blue", geometry.Rect{X: 150, Y: 150, Width: 100, Height: 100}, "#0000ff"),
		hidden,
	}

	data, err := PNG(list, bounds, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decodePNG(t, data)
	if img.Bounds().Dx() != 800 || img.Bounds().Dy() != 1000 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
	if r, g, b := rgbAt(img, 120, 120); r != 255 || g != 0 || b != 0 {
		t.Fatalf("expected red, got %d %d %d", r, g, b)
	}
	if r, g, b := rgbAt(img, 175, 175); r != 0 || g != 0 || b != 255 {
		t.Fatalf("expected blue on top, got %d %d %d", r, g, b)
	}
	if r, g, b := rgbAt(img, 450, 450); r != 255 || g != 255 || b != 255 {
		t.Fatalf("hidden element must not paint, got %d %d %d", r, g, b)
	}
}

func TestPNGScalesOutput(t *testing.T) {
	data, err := PNG(nil, geometry.DefaultBounds(), Options{Scale: 0.5})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decodePNG(t, data)
	if img.Bounds().Dx() != 400 || img.Bounds().Dy() != 500 {
		t.Fatalf("unexpected scaled size %v", img.Bounds())
	}
}

func TestPNGEmbedsDataURLImage(t *testing.T) {
	source := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		for y := range 4 {
			source.Set(x, y, color.NRGBA{R: 10, G: 200, B: 30, A: 255})
		}
	}
	var encoded bytes.Buffer
	if err := png.Encode(&encoded, source); err != nil {
		t.Fatalf("encode source: %v", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(encoded.Bytes())
	element := elements.NewImage(dataURL, geometry.Point{X: 300, Y: 300}, geometry.DefaultBounds(), fixedID("img"))

	data, err := PNG([]elements.Element{element}, geometry.DefaultBounds(), Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r, g, b := rgbAt(decodePNG(t, data), 350, 350); !near(r, 10) || !near(g, 200) || !near(b, 30) {
		t.Fatalf("expected embedded image pixels, got %d %d %d", r, g, b)
	}
}

func TestPNGRendersTextAndLines(t *testing.T) {
	bounds := geometry.DefaultBounds()
	ids := fixedID("t")
	text := elements.New(elements.KindText, geometry.Point{X: 10, Y: 10}, bounds, ids)
	line := elements.New(elements.KindLine, geometry.Point{X: 10, Y: 500}, bounds, fixedID("l"))
	remote := elements.NewImage("https://cdn.example.com/a.png", geometry.Point{X: 500, Y: 500}, bounds, fixedID("r"))
	remote.Rotation = 30

	if _, err := PNG([]elements.Element{text, line, remote}, bounds, Options{Scale: 2}); err != nil {
		t.Fatalf("render: %v", err)
	}
}

func TestPNGRejectsEmptyBounds(t *testing.T) {
	if _, err := PNG(nil, geometry.Bounds{}, Options{}); err == nil {
		t.Fatalf("expected bounds error")
	}
}

func TestParseColor(t *testing.T) {
	if c := parseColor("#fff", 1); c != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("unexpected short hex %+v", c)
	}
	if c := parseColor("1e3a8a", 0.5); c.R != 0x1e || c.G != 0x3a || c.B != 0x8a || c.A != 127 {
		t.Fatalf("unexpected hex %+v", c)
	}
	if c := parseColor("blue", 1); c != (color.NRGBA{A: 255}) {
		t.Fatalf("expected black fallback, got %+v", c)
	}
}

func near(got, want uint8) bool {
	diff := int(got) - int(want)
	return diff >= -2 && diff <= 2
}

type fixedID string

func (f fixedID) NewID() string { return string(f) }

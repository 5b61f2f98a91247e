// Package render paints a canvas element list to a PNG for sharing and previews.
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	maxScale          = 4.0
	textLineSpacing   = 1.25
	placeholderFill   = "#e5e7eb"
	placeholderBorder = "#9ca3af"
)

var errInvalidBounds = errors.New("render: canvas bounds must be positive")

// Options tunes the output. Scale multiplies the canvas size and defaults to 1.
type Options struct {
	Scale float64
}

// PNG paints the visible elements in list order and returns the encoded image.
func PNG(list []elements.Element, bounds geometry.Bounds, opts Options) ([]byte, error) {
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return nil, errInvalidBounds
	}
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	scale = min(scale, maxScale)

	dc := gg.NewContext(int(bounds.Width*scale), int(bounds.Height*scale))
	dc.SetColor(color.White)
	dc.Clear()
	dc.Scale(scale, scale)

	p := &painter{dc: dc, faces: map[faceKey]font.Face{}}
	for _, element := range list {
		if !element.Visible || element.Frame.IsEmpty() {
			continue
		}
		if err := p.paint(element); err != nil {
			return nil, fmt.Errorf("render: element %s: %w", element.ID, err)
		}
	}

	var buffer bytes.Buffer
	if err := dc.EncodePNG(&buffer); err != nil {
		return nil, fmt.Errorf("render: encode: %w", err)
	}
	return buffer.Bytes(), nil
}

// painter holds per-render state. Font faces are not safe for concurrent use, so each render
// builds its own.
type painter struct {
	dc    *gg.Context
	faces map[faceKey]font.Face
}

func (p *painter) paint(element elements.Element) error {
	dc := p.dc
	frame := element.Frame
	opacity := element.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}

	dc.Push()
	defer dc.Pop()
	if element.Rotation != 0 {
		dc.RotateAbout(gg.Radians(element.Rotation), frame.X+frame.Width/2, frame.Y+frame.Height/2)
	}

	switch body := element.Body.(type) {
	case elements.ShapeBody:
		paintShape(dc, element.Kind, frame, body, opacity)
	case elements.TextBody:
		return p.paintText(frame, body, opacity)
	case elements.ImageBody:
		paintImage(dc, frame, body, opacity)
	case elements.LineBody:
		y := frame.Y + frame.Height/2
		dc.SetColor(parseColor(body.Color, opacity))
		dc.SetLineWidth(max(body.StrokeWidth, 1))
		dc.DrawLine(frame.X, y, frame.Right(), y)
		dc.Stroke()
	}
	return nil
}

func paintShape(dc *gg.Context, kind elements.Kind, frame geometry.Rect, body elements.ShapeBody, opacity float64) {
	outline := func() {
		if kind == elements.KindCircle {
			dc.DrawEllipse(frame.X+frame.Width/2, frame.Y+frame.Height/2, frame.Width/2, frame.Height/2)
			return
		}
		dc.DrawRoundedRectangle(frame.X, frame.Y, frame.Width, frame.Height, body.BorderRadius)
	}
	if body.BackgroundColor != "" {
		outline()
		dc.SetColor(parseColor(body.BackgroundColor, opacity))
		dc.Fill()
	}
	if body.BorderWidth > 0 && body.BorderColor != "" {
		outline()
		dc.SetColor(parseColor(body.BorderColor, opacity))
		dc.SetLineWidth(body.BorderWidth)
		dc.Stroke()
	}
}

func (p *painter) paintText(frame geometry.Rect, body elements.TextBody, opacity float64) error {
	dc := p.dc
	face, err := p.fontFace(body.FontWeight, body.FontSize)
	if err != nil {
		return err
	}
	dc.SetFontFace(face)
	dc.SetColor(parseColor(body.Color, opacity))

	align, ax := gg.AlignLeft, 0.0
	switch body.TextAlign {
	case "center":
		align, ax = gg.AlignCenter, 0.5
	case "right":
		align, ax = gg.AlignRight, 1
	}
	dc.DrawStringWrapped(body.Content, frame.X+frame.Width*ax, frame.Y, ax, 0, frame.Width, textLineSpacing, align)
	return nil
}

func paintImage(dc *gg.Context, frame geometry.Rect, body elements.ImageBody, opacity float64) {
	src, ok := decodeDataURL(body.ImageURL)
	if !ok {
		dc.DrawRoundedRectangle(frame.X, frame.Y, frame.Width, frame.Height, body.BorderRadius)
		dc.SetColor(parseColor(placeholderFill, opacity))
		dc.FillPreserve()
		dc.SetColor(parseColor(placeholderBorder, opacity))
		dc.SetLineWidth(1)
		dc.Stroke()
		return
	}

	width, height := max(int(frame.Width), 1), max(int(frame.Height), 1)
	scaled := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)
	if opacity < 1 {
		fade(scaled, opacity)
	}
	if body.BorderRadius > 0 {
		dc.DrawRoundedRectangle(frame.X, frame.Y, frame.Width, frame.Height, body.BorderRadius)
		dc.Clip()
	}
	dc.DrawImage(scaled, int(frame.X), int(frame.Y))
	dc.ResetClip()
}

func decodeDataURL(raw string) (image.Image, bool) {
	const prefix = "data:"
	if !strings.HasPrefix(raw, prefix) {
		return nil, false
	}
	meta, payload, found := strings.Cut(strings.TrimPrefix(raw, prefix), ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	return img, true
}

func fade(img *image.NRGBA, opacity float64) {
	for index := 3; index < len(img.Pix); index += 4 {
		img.Pix[index] = uint8(float64(img.Pix[index]) * opacity)
	}
}

// parseColor reads #rgb or #rrggbb. Anything else falls back to black.
func parseColor(hex string, opacity float64) color.NRGBA {
	value := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(value) == 3 {
		value = string([]byte{value[0], value[0], value[1], value[1], value[2], value[2]})
	}
	alpha := uint8(255 * opacity)
	if len(value) != 6 {
		return color.NRGBA{A: alpha}
	}
	parsed, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return color.NRGBA{A: alpha}
	}
	return color.NRGBA{R: uint8(parsed >> 16), G: uint8(parsed >> 8), B: uint8(parsed), A: alpha}
}

type faceKey struct {
	bold bool
	size float64
}

var (
	fontsOnce   sync.Once
	regularFont *truetype.Font
	boldFont    *truetype.Font
	fontsErr    error
)

func (p *painter) fontFace(weight string, size float64) (font.Face, error) {
	fontsOnce.Do(func() {
		regularFont, fontsErr = truetype.Parse(goregular.TTF)
		if fontsErr != nil {
			return
		}
		boldFont, fontsErr = truetype.Parse(gobold.TTF)
	})
	if fontsErr != nil {
		return nil, fmt.Errorf("parse font: %w", fontsErr)
	}
	if size <= 0 {
		size = 16
	}
	key := faceKey{bold: isBold(weight), size: size}
	if face, ok := p.faces[key]; ok {
		return face, nil
	}
	ttf := regularFont
	if key.bold {
		ttf = boldFont
	}
	face := truetype.NewFace(ttf, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
	p.faces[key] = face
	return face, nil
}

func isBold(weight string) bool {
	switch strings.TrimSpace(strings.ToLower(weight)) {
	case "bold", "bolder", "600", "700", "800", "900":
		return true
	default:
		return false
	}
}

package elements

import (
	"math"
	"net/url"
	"slices"
	"strings"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
)

const dataImagePrefix = "data:image/"

// Patch is a partial attribute update. Nil fields are left untouched. Lock state is not part of
// a patch; it only changes through an explicit toggle.
type Patch struct {
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
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

// TouchesGeometry reports whether the patch changes position or size.
func (p Patch) TouchesGeometry() bool {
	return p.X != nil || p.Y != nil || p.Width != nil || p.Height != nil
}

// PatchOptions controls which parts of a patch may apply.
type PatchOptions struct {
	Bounds            geometry.Bounds
	AllowPlaceholders bool
	// FieldSet lists the placeholder tokens text elements may bind to.
	FieldSet []string
}

// ValidImageSource reports whether raw is an absolute http(s) URL with a host or an image data
// URL.
func ValidImageSource(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) >= len(dataImagePrefix) && strings.EqualFold(trimmed[:len(dataImagePrefix)], dataImagePrefix) {
		return true
	}
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// placeholderAllowed accepts clearing and tokens from the field set, on text elements only.
func placeholderAllowed(e Element, token string, opts PatchOptions) bool {
	if !opts.AllowPlaceholders {
		return false
	}
	if token == "" {
		return true
	}
	return e.Kind == KindText && slices.Contains(opts.FieldSet, token)
}

// ApplyPatch merges patch into e. Fields that do not belong to e's kind are ignored, as are
// non-finite numbers, image sources that are not http(s) or data URLs, and placeholder tokens
// outside opts.FieldSet. Geometry changes are ignored for locked elements and clamped into the
// canvas otherwise.
func ApplyPatch(e Element, patch Patch, opts PatchOptions) Element {
	updated := e

	if patch.TouchesGeometry() && !e.Locked {
		frame := e.Frame
		assignFinite(&frame.X, patch.X)
		assignFinite(&frame.Y, patch.Y)
		assignFinite(&frame.Width, patch.Width)
		assignFinite(&frame.Height, patch.Height)
		updated.Frame = geometry.ClampRect(frame, opts.Bounds)
	}
	if patch.Opacity != nil && geometry.Finite(*patch.Opacity) {
		updated.Opacity = math.Max(0, math.Min(1, *patch.Opacity))
	}
	assignFinite(&updated.Rotation, patch.Rotation)
	if patch.Placeholder != nil {
		token := strings.TrimSpace(*patch.Placeholder)
		if placeholderAllowed(e, token, opts) {
			updated.Placeholder = token
		}
	}

	switch body := e.Body.(type) {
	case TextBody:
		assign(&body.Content, patch.Content)
		if patch.FontSize != nil && *patch.FontSize > 0 && geometry.Finite(*patch.FontSize) {
			body.FontSize = *patch.FontSize
		}
		assign(&body.FontFamily, patch.FontFamily)
		assign(&body.FontWeight, patch.FontWeight)
		assign(&body.TextAlign, patch.TextAlign)
		assign(&body.Color, patch.Color)
		updated.Body = body
	case ShapeBody:
		assign(&body.BackgroundColor, patch.BackgroundColor)
		assign(&body.BorderColor, patch.BorderColor)
		assignNonNegative(&body.BorderWidth, patch.BorderWidth)
		assignNonNegative(&body.BorderRadius, patch.BorderRadius)
		updated.Body = body
	case ImageBody:
		if patch.ImageURL != nil && ValidImageSource(*patch.ImageURL) {
			body.ImageURL = strings.TrimSpace(*patch.ImageURL)
		}
		assignNonNegative(&body.BorderRadius, patch.BorderRadius)
		updated.Body = body
	case LineBody:
		assign(&body.Color, patch.Color)
		assignNonNegative(&body.StrokeWidth, patch.StrokeWidth)
		updated.Body = body
	}

	return updated
}

func assign[T any](target *T, value *T) {
	if value != nil {
		*target = *value
	}
}

func assignFinite(target *float64, value *float64) {
	if value != nil && geometry.Finite(*value) {
		*target = *value
	}
}

func assignNonNegative(target *float64, value *float64) {
	if value != nil && *value >= 0 && geometry.Finite(*value) {
		*target = *value
	}
}

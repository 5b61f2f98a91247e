// Package documents persists invitation canvases: the element list together with event metadata
// and visibility settings.
package documents

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
)

// Kind distinguishes end-user invitations from admin-authored templates.
type Kind string

const (
	KindEvent    Kind = "event"
	KindTemplate Kind = "template"
)

// ParseKind validates a document kind. Empty means event.
func ParseKind(raw string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "":
		return KindEvent, nil
	case KindEvent, KindTemplate:
		return kind, nil
	default:
		return "", fmt.Errorf("documents: unknown kind %q", raw)
	}
}

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// EventData is the invitation metadata shown next to the canvas.
type EventData struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
}

// Visibility controls who can view the rendered invitation. PIN only matters when IsPublic is
// false.
type Visibility struct {
	IsPublic bool   `json:"isPublic"`
	PIN      string `json:"pin,omitempty"`
}

// ValidPIN reports whether pin is 4 to 6 digits.
func ValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// Document is the persisted unit.
type Document struct {
	ID         string
	Kind       Kind
	Elements   []elements.Element
	Event      EventData
	Visibility Visibility
	OwnerID    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Serialize assembles a document from the live canvas state. The element list is copied
// verbatim, background included.
func Serialize(list []elements.Element, event EventData, visibility Visibility) Document {
	copied := make([]elements.Element, len(list))
	copy(copied, list)
	return Document{
		Kind:       KindEvent,
		Elements:   copied,
		Event:      event,
		Visibility: visibility,
	}
}

// persistedDocument is the stored layout.
type persistedDocument struct {
	ID         string             `json:"id,omitempty"`
	Kind       Kind               `json:"kind"`
	Elements   []elements.Element `json:"elements"`
	EventData  EventData          `json:"eventData"`
	IsPublic   bool               `json:"isPublic"`
	PrivatePin *string            `json:"privatePin"`
	CreatedBy  string             `json:"createdBy"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// MarshalJSON encodes the stored layout. privatePin is null for public documents.
func (d Document) MarshalJSON() ([]byte, error) {
	list := d.Elements
	if list == nil {
		list = []elements.Element{}
	}
	persisted := persistedDocument{
		ID:        d.ID,
		Kind:      d.Kind,
		Elements:  list,
		EventData: d.Event,
		IsPublic:  d.Visibility.IsPublic,
		CreatedBy: d.OwnerID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if !d.Visibility.IsPublic {
		pin := d.Visibility.PIN
		persisted.PrivatePin = &pin
	}
	return json.Marshal(persisted)
}

// UnmarshalJSON decodes the stored layout.
func (d *Document) UnmarshalJSON(data []byte) error {
	var persisted persistedDocument
	if err := json.Unmarshal(data, &persisted); err != nil {
		return err
	}
	kind, err := ParseKind(string(persisted.Kind))
	if err != nil {
		return err
	}
	*d = Document{
		ID:         persisted.ID,
		Kind:       kind,
		Elements:   persisted.Elements,
		Event:      persisted.EventData,
		Visibility: Visibility{IsPublic: persisted.IsPublic},
		OwnerID:    persisted.CreatedBy,
		CreatedAt:  persisted.CreatedAt,
		UpdatedAt:  persisted.UpdatedAt,
	}
	if d.Elements == nil {
		d.Elements = []elements.Element{}
	}
	if !persisted.IsPublic && persisted.PrivatePin != nil {
		d.Visibility.PIN = *persisted.PrivatePin
	}
	return nil
}

// Encode renders the stored layout.
func Encode(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}

// Decode parses the stored layout.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// checkElements enforces unique ids and at most one background.
func checkElements(list []elements.Element) error {
	seen := make(map[string]struct{}, len(list))
	backgrounds := 0
	for _, element := range list {
		if err := element.Validate(); err != nil {
			return err
		}
		if _, duplicate := seen[element.ID]; duplicate {
			return fmt.Errorf("documents: duplicate element id %s", element.ID)
		}
		seen[element.ID] = struct{}{}
		if element.IsBackground() {
			backgrounds++
		}
	}
	if backgrounds > 1 {
		return fmt.Errorf("documents: %d background elements", backgrounds)
	}
	return nil
}

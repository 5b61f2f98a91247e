// Package editor hosts the canvas engine for the three editing shells: the standalone invitation
// editor, the admin template builder and the post-creation event editor.
package editor

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
)

// Profile selects a host shell.
type Profile string

const (
	ProfileStandalone Profile = "standalone"
	ProfileTemplate   Profile = "template"
	ProfileEventEdit  Profile = "event-edit"
)

// TemplateFields are the placeholder tokens templates may bind text elements to.
var TemplateFields = []string{"guest_name", "event_title", "event_date", "event_time", "event_location", "event_description"}

func ParseProfile(raw string) (Profile, error) {
	switch profile := Profile(strings.ToLower(strings.TrimSpace(raw))); profile {
	case "":
		return ProfileStandalone, nil
	case ProfileStandalone, ProfileTemplate, ProfileEventEdit:
		return profile, nil
	default:
		return "", fmt.Errorf("editor: unknown profile %q", raw)
	}
}

// Capabilities returns the feature switches for the profile.
func (p Profile) Capabilities() canvas.Capabilities {
	switch p {
	case ProfileTemplate:
		return canvas.Capabilities{
			AllowPlaceholders: true,
			FieldSet:          append([]string(nil), TemplateFields...),
		}
	default:
		return canvas.Capabilities{AllowShare: true, AllowPrivacy: true}
	}
}

// DocumentKind is the kind of document the profile saves.
func (p Profile) DocumentKind() documents.Kind {
	if p == ProfileTemplate {
		return documents.KindTemplate
	}
	return documents.KindEvent
}

// RequiresDocument reports whether the profile only edits an existing document.
func (p Profile) RequiresDocument() bool {
	return p == ProfileEventEdit
}

// RequiresAdmin reports whether only admins may open the profile.
func (p Profile) RequiresAdmin() bool {
	return p == ProfileTemplate
}

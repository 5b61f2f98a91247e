package documents

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// SharePath selects the viewer route a link points at.
type SharePath string

const (
	SharePathInvite SharePath = "invite"
	SharePathEvent  SharePath = "event"
)

// DefaultQRSize is the edge length in pixels of generated QR codes.
const DefaultQRSize = 256

var errMissingOrigin = errors.New("share origin is required")

// ShareOptions tunes ShareLink.
type ShareOptions struct {
	Path     SharePath
	EmbedPIN bool
}

// ShareLink returns {origin}/{path}/{id}, with ?pin= appended for private documents when asked.
func ShareLink(origin string, doc Document, opts ShareOptions) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", errMissingOrigin
	}
	if strings.TrimSpace(doc.ID) == "" {
		return "", errMissingID
	}
	path := opts.Path
	if path == "" {
		path = SharePathInvite
	}
	if path != SharePathInvite && path != SharePathEvent {
		return "", fmt.Errorf("documents: unknown share path %q", path)
	}

	link, err := url.JoinPath(origin, string(path), doc.ID)
	if err != nil {
		return "", fmt.Errorf("documents: invalid origin: %w", err)
	}
	if opts.EmbedPIN && !doc.Visibility.IsPublic && doc.Visibility.PIN != "" {
		link += "?" + url.Values{"pin": {doc.Visibility.PIN}}.Encode()
	}
	return link, nil
}

// QRCode encodes link as a PNG. A non-positive size means DefaultQRSize.
func QRCode(link string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(link, qrcode.Medium, size)
}

// VerifyPIN gates display of a private document. It is not access control: the document store
// does not enforce it.
func VerifyPIN(doc Document, pin string) bool {
	if doc.Visibility.IsPublic {
		return true
	}
	expected := doc.Visibility.PIN
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(pin))) == 1
}

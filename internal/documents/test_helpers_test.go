package documents

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceElementIDs struct {
	next int
}

func (s *sequenceElementIDs) NewID() string {
	s.next++
	return fmt.Sprintf("el_%d", s.next)
}

type sequenceDocumentIDs struct {
	next int
}

func (s *sequenceDocumentIDs) NewID(kind Kind) string {
	s.next++
	return fmt.Sprintf("%s_%d", kind, s.next)
}

type recordingNotifier struct {
	saved []Document
}

func (n *recordingNotifier) DocumentSaved(doc Document) {
	n.saved = append(n.saved, doc)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) Create(context.Context, Document) error    { return f.err }
func (f failingStore) Overwrite(context.Context, Document) error { return f.err }

var errStoreUnavailable = errors.New("store unavailable")

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "documents.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	store, err := NewGormStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func newTestService(t *testing.T, store Store) (*Service, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	service, err := NewService(ServiceConfig{
		Store:      store,
		Clock:      func() time.Time { return clock },
		IDProvider: &sequenceDocumentIDs{},
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, notifier
}

func sampleElements() []elements.Element {
	bounds := geometry.DefaultBounds()
	ids := &sequenceElementIDs{}
	locked := elements.New(elements.KindText, geometry.Point{X: 40, Y: 40}, bounds, ids)
	locked.Locked = true
	hidden := elements.New(elements.KindCircle, geometry.Point{X: 300, Y: 300}, bounds, ids)
	hidden.Visible = false
	return []elements.Element{
		elements.NewBackground(bounds),
		locked,
		elements.New(elements.KindRectangle, geometry.Point{X: 100, Y: 100}, bounds, ids),
		hidden,
		elements.NewImage("https://cdn.example.com/party.png", geometry.Point{X: 400, Y: 20}, bounds, ids),
	}
}

func sampleDocument() Document {
	return Serialize(sampleElements(), EventData{
		Title:    "Garden party",
		Date:     "2026-06-01",
		Time:     "18:00",
		Location: "Back yard",
	}, Visibility{IsPublic: true})
}

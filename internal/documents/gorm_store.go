package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("database handle is required")

// Record is the relational row behind a Document. Elements and event data are JSON columns.
type Record struct {
	ID              string         `gorm:"column:id;primaryKey;size:190;not null"`
	Kind            string         `gorm:"column:kind;size:32;not null;index:idx_documents_kind_public,priority:1"`
	OwnerID         string         `gorm:"column:owner_id;size:190;not null;index"`
	Title           string         `gorm:"column:title;not null"`
	Elements        datatypes.JSON `gorm:"column:elements;not null"`
	EventData       datatypes.JSON `gorm:"column:event_data;not null"`
	IsPublic        bool           `gorm:"column:is_public;not null;index:idx_documents_kind_public,priority:2"`
	PrivatePin      *string        `gorm:"column:private_pin;size:6"`
	CreatedAtMillis int64          `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis int64          `gorm:"column:updated_at_ms;not null"`
}

func (Record) TableName() string {
	return "documents"
}

// GormStore keeps documents in any gorm dialect; the server uses SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open, migrated database handle.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Create(ctx context.Context, doc Document) error {
	record, err := toRecord(doc)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

func (s *GormStore) Overwrite(ctx context.Context, doc Document) error {
	record, err := toRecord(doc)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", record.ID).
		Select("*").
		Omit("id").
		Updates(&record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) Fetch(ctx context.Context, id string) (Document, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrRecordNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return fromRecord(record)
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Record{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) ListByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	var records []Record
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at_ms DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return fromRecords(records)
}

func (s *GormStore) ListPublic(ctx context.Context, kind Kind) ([]Document, error) {
	var records []Record
	if err := s.db.WithContext(ctx).
		Where("kind = ? AND is_public = ?", string(kind), true).
		Order("updated_at_ms DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return fromRecords(records)
}

func (s *GormStore) ListAll(ctx context.Context) ([]Document, error) {
	var records []Record
	if err := s.db.WithContext(ctx).Order("updated_at_ms DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return fromRecords(records)
}

func toRecord(doc Document) (Record, error) {
	list := doc.Elements
	if list == nil {
		list = []elements.Element{}
	}
	elementsJSON, err := json.Marshal(list)
	if err != nil {
		return Record{}, fmt.Errorf("encode elements: %w", err)
	}
	eventJSON, err := json.Marshal(doc.Event)
	if err != nil {
		return Record{}, fmt.Errorf("encode event data: %w", err)
	}
	record := Record{
		ID:              doc.ID,
		Kind:            string(doc.Kind),
		OwnerID:         doc.OwnerID,
		Title:           doc.Event.Title,
		Elements:        datatypes.JSON(elementsJSON),
		EventData:       datatypes.JSON(eventJSON),
		IsPublic:        doc.Visibility.IsPublic,
		CreatedAtMillis: doc.CreatedAt.UnixMilli(),
		UpdatedAtMillis: doc.UpdatedAt.UnixMilli(),
	}
	if !doc.Visibility.IsPublic {
		pin := doc.Visibility.PIN
		record.PrivatePin = &pin
	}
	return record, nil
}

func fromRecord(record Record) (Document, error) {
	var list []elements.Element
	if err := json.Unmarshal(record.Elements, &list); err != nil {
		return Document{}, fmt.Errorf("decode elements of %s: %w", record.ID, err)
	}
	if list == nil {
		list = []elements.Element{}
	}
	var event EventData
	if err := json.Unmarshal(record.EventData, &event); err != nil {
		return Document{}, fmt.Errorf("decode event data of %s: %w", record.ID, err)
	}
	kind, err := ParseKind(record.Kind)
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		ID:         record.ID,
		Kind:       kind,
		Elements:   list,
		Event:      event,
		Visibility: Visibility{IsPublic: record.IsPublic},
		OwnerID:    record.OwnerID,
		CreatedAt:  time.UnixMilli(record.CreatedAtMillis).UTC(),
		UpdatedAt:  time.UnixMilli(record.UpdatedAtMillis).UTC(),
	}
	if !record.IsPublic && record.PrivatePin != nil {
		doc.Visibility.PIN = *record.PrivatePin
	}
	return doc, nil
}

func fromRecords(records []Record) ([]Document, error) {
	docs := make([]Document, 0, len(records))
	for _, record := range records {
		doc, err := fromRecord(record)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

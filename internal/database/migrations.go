package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationDefaultDocumentKind = "2026-05-12_default_document_kind"
	migrationClearPublicPins     = "2026-06-03_clear_public_pins"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var migrations = []migrationDefinition{
	{name: migrationDefaultDocumentKind, apply: defaultDocumentKind},
	{name: migrationClearPublicPins, apply: clearPublicPins},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// defaultDocumentKind marks rows written before templates existed as events.
func defaultDocumentKind(db *gorm.DB) error {
	return db.Model(&documents.Record{}).
		Where("kind = '' OR kind IS NULL").
		Update("kind", string(documents.KindEvent)).Error
}

// clearPublicPins drops PINs left on documents that were switched to public.
func clearPublicPins(db *gorm.DB) error {
	return db.Model(&documents.Record{}).
		Where("is_public = ? AND private_pin IS NOT NULL", true).
		Update("private_pin", nil).Error
}

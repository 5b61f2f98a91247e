package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsLegacyRows(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "migration.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&documents.Record{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	pin := "1234"
	legacy := []documents.Record{
		{ID: "evt_old", Kind: "", OwnerID: "u1", Title: "Old", Elements: []byte("[]"), EventData: []byte("{}"), IsPublic: false, PrivatePin: &pin},
		{ID: "evt_public", Kind: "event", OwnerID: "u1", Title: "Public", Elements: []byte("[]"), EventData: []byte("{}"), IsPublic: true, PrivatePin: &pin},
	}
	if err := db.Create(&legacy).Error; err != nil {
		t.Fatalf("failed to insert legacy rows: %v", err)
	}

	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	var old, public documents.Record
	if err := db.Where("id = ?", "evt_old").Take(&old).Error; err != nil {
		t.Fatalf("failed to reload row: %v", err)
	}
	if old.Kind != string(documents.KindEvent) || old.PrivatePin == nil {
		t.Fatalf("unexpected legacy row after migration: %+v", old)
	}
	if err := db.Where("id = ?", "evt_public").Take(&public).Error; err != nil {
		t.Fatalf("failed to reload row: %v", err)
	}
	if public.PrivatePin != nil {
		t.Fatalf("expected public pin cleared, got %q", *public.PrivatePin)
	}

	var count int64
	db.Model(&migrationRecord{}).Count(&count)
	if count != int64(len(migrations)) {
		t.Fatalf("expected %d migration records, got %d", len(migrations), count)
	}
	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("re-running migrations failed: %v", err)
	}
}

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	handles, err := Open(context.Background(), Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "paperless.db")}, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer handles.Close()

	for _, table := range []string{"documents", "user_identities", "user_roles", "db_migrations"} {
		if !handles.DB.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
	store, err := handles.DocumentStore()
	if err != nil {
		t.Fatalf("document store failed: %v", err)
	}
	if _, ok := store.(*documents.GormStore); !ok {
		t.Fatalf("expected gorm store for sqlite, got %T", store)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "oracle"}, nil); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(context.Background(), Config{Driver: DriverPostgres}, nil); err == nil {
		t.Fatal("expected missing dsn error")
	}
}

// Package database opens the relational store and brings its schema up to date.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	errMissingPath = errors.New("database path is required")
	errMissingDSN  = errors.New("database dsn is required")
)

type Config struct {
	Driver   string
	Path     string
	DSN      string
	MaxConns int32
}

// Handles are the open connections. Pool is set only for PostgreSQL and shares its connections
// with DB.
type Handles struct {
	DB   *gorm.DB
	Pool *pgxpool.Pool
}

// DocumentStore returns the store matching the driver: pgx for PostgreSQL, gorm otherwise.
func (h *Handles) DocumentStore() (documents.Store, error) {
	if h.Pool != nil {
		return documents.NewPostgresStore(h.Pool)
	}
	return documents.NewGormStore(h.DB)
}

// Close releases every connection.
func (h *Handles) Close() {
	if sqlDB, err := h.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if h.Pool != nil {
		h.Pool.Close()
	}
}

// Open connects with the configured driver and applies migrations.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Handles, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		handles *Handles
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSQLite, "":
		handles, err = openSQLite(cfg.Path)
	case DriverPostgres:
		handles, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("database: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(handles.DB, logger); err != nil {
		handles.Close()
		return nil, err
	}
	logger.Info("database initialized", zap.String("driver", cfg.Driver))
	return handles, nil
}

// Migrate creates the tables and runs the one-off data migrations that have not run yet.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&documents.Record{}, &users.Identity{}, &users.Role{}, &migrationRecord{}); err != nil {
		return fmt.Errorf("database: auto migrate: %w", err)
	}
	return applyMigrations(db, logger)
}

func openSQLite(path string) (*Handles, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errMissingPath
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &Handles{DB: db}, nil
}

func openPostgres(ctx context.Context, cfg Config) (*Handles, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errMissingDSN
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("database: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Handles{DB: db, Pool: pool}, nil
}

package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the documents table used by PostgresStore.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	owner_id      TEXT NOT NULL,
	title         TEXT NOT NULL,
	elements      JSONB NOT NULL,
	event_data    JSONB NOT NULL,
	is_public     BOOLEAN NOT NULL,
	private_pin   TEXT,
	created_at_ms BIGINT NOT NULL,
	updated_at_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents (owner_id);
CREATE INDEX IF NOT EXISTS idx_documents_kind_public ON documents (kind, is_public);
`

const documentColumns = `id, kind, owner_id, title, elements, event_data, is_public, private_pin, created_at_ms, updated_at_ms`

// PostgresStore keeps documents in PostgreSQL with JSONB element lists.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errMissingDatabase
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the table and indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, PostgresSchema)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, doc Document) error {
	record, err := toRecord(doc)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.Kind, record.OwnerID, record.Title, []byte(record.Elements), []byte(record.EventData),
		record.IsPublic, record.PrivatePin, record.CreatedAtMillis, record.UpdatedAtMillis,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Overwrite(ctx context.Context, doc Document) error {
	record, err := toRecord(doc)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET kind = $2, owner_id = $3, title = $4, elements = $5, event_data = $6,
			is_public = $7, private_pin = $8, created_at_ms = $9, updated_at_ms = $10
		WHERE id = $1`,
		record.ID, record.Kind, record.OwnerID, record.Title, []byte(record.Elements), []byte(record.EventData),
		record.IsPublic, record.PrivatePin, record.CreatedAtMillis, record.UpdatedAtMillis,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PostgresStore) Fetch(ctx context.Context, id string) (Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrRecordNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("select document: %w", err)
	}
	return fromRecord(record)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	return s.list(ctx, `SELECT `+documentColumns+` FROM documents WHERE owner_id = $1 ORDER BY updated_at_ms DESC`, ownerID)
}

func (s *PostgresStore) ListPublic(ctx context.Context, kind Kind) ([]Document, error) {
	return s.list(ctx, `SELECT `+documentColumns+` FROM documents WHERE kind = $1 AND is_public ORDER BY updated_at_ms DESC`, string(kind))
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Document, error) {
	return s.list(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY updated_at_ms DESC`)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return fromRecords(records)
}

func scanRecord(row pgx.Row) (Record, error) {
	var record Record
	var elementsJSON, eventJSON []byte
	err := row.Scan(
		&record.ID, &record.Kind, &record.OwnerID, &record.Title, &elementsJSON, &eventJSON,
		&record.IsPublic, &record.PrivatePin, &record.CreatedAtMillis, &record.UpdatedAtMillis,
	)
	if err != nil {
		return Record{}, err
	}
	record.Elements = elementsJSON
	record.EventData = eventJSON
	return record, nil
}

package documents

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned by stores when no document matches the id.
var ErrRecordNotFound = errors.New("documents: record not found")

// Store is the document store collaborator. Writes are whole-document.
type Store interface {
	Create(ctx context.Context, doc Document) error
	Overwrite(ctx context.Context, doc Document) error
	Fetch(ctx context.Context, id string) (Document, error)
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]Document, error)
	ListPublic(ctx context.Context, kind Kind) ([]Document, error)
	ListAll(ctx context.Context) ([]Document, error)
}

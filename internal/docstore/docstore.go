package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrExists   = errors.New("document already exists")
)

// Write is one element of an atomic batch. Fields are merged into the
// target document; the document must already exist.
type Write struct {
	Collection string
	ID         string
	Fields     map[string]any
}

// Store is the capability surface this service needs from the backing
// document database.
type Store interface {
	// Get returns the raw document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	// GetAll returns every document in a collection, in no particular order.
	GetAll(ctx context.Context, collection string) ([]json.RawMessage, error)
	// Add creates a document. Returns ErrExists if the id is taken.
	Add(ctx context.Context, collection, id string, doc any) error
	// Update merges fields into an existing document, or ErrNotFound.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document. Removing a missing document is a no-op.
	Delete(ctx context.Context, collection, id string) error
	// ApplyBatch commits every write or none of them.
	ApplyBatch(ctx context.Context, writes []Write) error
}

// Watcher is implemented by stores that can push per-document updates to
// local subscribers.
type Watcher interface {
	// Watch registers fn for every committed change to the document.
	// The returned cancel func tears the registration down; calling it
	// more than once is a no-op.
	Watch(ctx context.Context, collection, id string, fn func(doc json.RawMessage)) (cancel func(), err error)
}

package docstore

import (
	"context"
	"encoding/json"
)

// DocumentStore is the document database as seen by the service layer.
// Consumers should depend on this interface rather than *Store.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Set(ctx context.Context, collection, id string, body json.RawMessage) (bool, error)
	Create(ctx context.Context, collection, id string, body json.RawMessage) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, opts ListOptions) ([]Document, error)
	Subscribe(collection, id string, fn func(Snapshot)) (unsubscribe func())
	InspectSchema(ctx context.Context, collection string, sample int) (*SchemaReport, error)
}

// Verify *Store satisfies DocumentStore at compile time.
var _ DocumentStore = (*Store)(nil)

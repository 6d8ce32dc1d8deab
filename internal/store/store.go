// Package store persists token and collection metadata records. The core
// depends only on the Store interface so callers can bring their own backend;
// the Postgres implementation in this package is the default.
package store

import (
	"context"

	"github.com/1001-digital/ponder-artifacts/internal/models"
)

// Store is the durable key-value table for metadata records. Get methods
// return (nil, nil) when no record exists for the key; Upsert methods replace
// every non-key field unconditionally, creating the row when absent.
type Store interface {
	GetToken(ctx context.Context, collection, tokenID string) (*models.TokenRecord, error)
	UpsertToken(ctx context.Context, record *models.TokenRecord) error

	GetCollection(ctx context.Context, address string) (*models.CollectionRecord, error)
	UpsertCollection(ctx context.Context, record *models.CollectionRecord) error
}

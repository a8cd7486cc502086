// Package storage defines the object store interface used for document
// uploads and ledger maintenance. The abstraction keeps the engine
// independent of a specific backend; production uses Google Cloud Storage,
// tests use the in-memory implementation.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the minimal blob surface the engine needs: upload, text
// download, existence, server-side copy (used for ledger backups), delete and
// prefix listing. Implementations must provide read-after-write consistency
// for blobs written by the same process.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)

	// URI returns the canonical URI for a key, e.g. gs://bucket/key.
	URI(key string) string
}

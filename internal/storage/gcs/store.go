// Package gcs provides an ObjectStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/openparl/stenosync/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// Store implements storage.ObjectStore on a GCS bucket. Authentication is
// handled via Application Default Credentials.
type Store struct {
	client *gstorage.Client
	bucket string
}

// New creates a GCS-backed store and verifies the bucket is reachable, so a
// misconfigured run fails at startup rather than mid-sweep.
func New(ctx context.Context, client *gstorage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		return nil, fmt.Errorf("get bucket %q attributes: %w", cfg.Bucket, err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data and returns the gs:// URI.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		closeErr := w.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object %s: %w (close writer: %v)", key, err, closeErr)
		}
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", key, err)
	}
	return s.URI(key), nil
}

// Get downloads the full object.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("open reader for %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Exists checks object presence via an attrs call.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gstorage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", key, err)
}

// Copy performs a server-side copy within the bucket.
func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	bkt := s.client.Bucket(s.bucket)
	src := bkt.Object(srcKey)
	if _, err := bkt.Object(dstKey).CopierFrom(src).Run(ctx); err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("copy %s to %s: %w", srcKey, dstKey, err)
	}
	return nil
}

// Delete removes the object.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// List returns all keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gstorage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list prefix %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// URI returns the canonical gs:// URI for a key.
func (s *Store) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

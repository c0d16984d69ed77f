package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when nothing is stored under the key
var ErrNotFound = errors.New("state blob not found")

// BlobStore keeps opaque state blobs by key
type BlobStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

var (
	_ BlobStore = (*Database)(nil)
	_ BlobStore = (*GCSStore)(nil)
)

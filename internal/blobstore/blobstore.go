// Package blobstore implements the Blob Adapter: content storage for
// compiled WASM activity modules, addressed by the blob_path recorded
// on each ActivityDefinition.
package blobstore

import "context"

// Store is the Blob Adapter contract (spec §4.2).
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

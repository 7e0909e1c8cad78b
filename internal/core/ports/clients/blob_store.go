package clients

import "context"

// BlobStore stores receipt bytes and hands back an opaque location string.
// The expense core never inspects locations; it only passes them between the
// store and the extraction provider.
type BlobStore interface {
	// Put stores data under the given key and returns the location to keep on
	// the expense.
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)

	// Get fetches the bytes previously stored at location.
	Get(ctx context.Context, location string) ([]byte, error)
}

package interfaces

import "context"

// KeyValueStore defines the interface for the text store stories persist to
type KeyValueStore interface {
	// Get returns the value for key, or an error wrapping storage.ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set creates or replaces the value for key
	Set(ctx context.Context, key, value string) error

	// Update replaces the value for an existing key with fn(current) as one
	// atomic read-modify-write. A missing key wraps storage.ErrNotFound and
	// fn is not called.
	Update(ctx context.Context, key string, fn func(current string) (string, error)) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Scan returns every key/value pair whose key starts with prefix
	Scan(ctx context.Context, prefix string) (map[string]string, error)

	// Close releases the underlying connection
	Close() error
}

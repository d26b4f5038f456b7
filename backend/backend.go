// Package backend provides the storage primitive the cache store is built on.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the backend.
var ErrNotFound = errors.New("not found")

// Info describes a stored entry.
type Info struct {
	Size    int64
	ModTime time.Time
}

// Backend defines the interface for storage backends. Keys are
// slash-separated relative paths. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Write stores data at the given key, overwriting any existing entry.
	// The new entry must become visible atomically.
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves the data at the given key.
	// Returns ErrNotFound if the key does not exist.
	Read(ctx context.Context, key string) ([]byte, error)

	// Delete removes data at the given key.
	// Returns nil if the key does not exist (idempotent).
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Stat returns size and modification time for the given key.
	// Returns ErrNotFound if the key does not exist.
	Stat(ctx context.Context, key string) (Info, error)
}

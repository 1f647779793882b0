// Package kvstore persists opaque blobs under string keys.
package kvstore

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Read when no value is stored under the key.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// Store defines the persisted key-value operations the history layer relies on.
type Store interface {
	// Read returns the value stored under key, or ErrKeyNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write replaces the value stored under key.
	Write(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

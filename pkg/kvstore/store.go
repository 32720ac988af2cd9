// Package kvstore persists opaque snapshot blobs under namespaced keys so the
// storage medium can change without touching the cart or favorites logic.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when nothing is stored under the namespace.
var ErrNotFound = errors.New("kvstore: namespace not found")

// KeyValueStore is the durable local persistence surface.
type KeyValueStore interface {
	Get(ctx context.Context, namespace string) ([]byte, error)
	Set(ctx context.Context, namespace string, value []byte) error
}

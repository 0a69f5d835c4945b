// Package kv is the small persistent key-value store the explainer keeps its
// history in. Keys are paths such as Key{"history", "inputs"}.
//
// Badger is the on-disk implementation; Memory backs tests and runs that
// should not touch the disk.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded form.
const Separator = ":"

// Key is a hierarchical path. Segments must be non-empty and must not contain
// Separator.
type Key []string

// String returns the encoded form of the key.
func (k Key) String() string {
	return strings.Join(k, Separator)
}

func (k Key) encode() ([]byte, error) {
	if len(k) == 0 {
		return nil, errors.New("kv: empty key")
	}
	for i, seg := range k {
		if seg == "" || strings.Contains(seg, Separator) {
			return nil, fmt.Errorf("kv: invalid key segment %d %q", i, seg)
		}
	}
	return []byte(k.String()), nil
}

// Store is a key-value store.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// Close releases the store.
	Close() error
}

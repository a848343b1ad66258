// Package store persists harvest checkpoints and directory grants.
//
// Everything sits on a small namespaced key-value primitive with three
// backends: local files (default), PostgreSQL (package db) and Redis (package
// cache). Documents are JSON; an absent key reads as nil with no error.
package store

import (
	"context"
	"fmt"
	"regexp"
)

// Namespaces and fixed keys.
const (
	NamespaceState   = "state"
	NamespaceHandles = "handles"

	CheckpointKey = "auto_update_state"
)

// KV is a namespaced byte store. Get returns (nil, nil) for a missing key and
// Delete of a missing key is not an error.
type KV interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateKey rejects names that could escape a namespace.
func ValidateKey(namespace, key string) error {
	if !keyPattern.MatchString(namespace) || namespace == "." || namespace == ".." {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

// Package staging owns the temporary resources a job works on: inputs
// materialized from inline or remote refs and the output artifact a
// transformer writes. Every resource is named {role}_{correlationID}{ext}
// so concurrent jobs never collide, even on identical payloads.
package staging

import (
	"context"
	"io"
)

// Resource is a handle to one staged entry. Path is set only when the
// backing store is directory-backed; command transformers require it.
type Resource struct {
	Key  string
	Path string
	Size int64
}

// Store is the staging backend. Put refuses duplicate keys: a key
// collision means a correlation id was reused, which is a bug upstream.
type Store interface {
	// Allocate names a resource without creating its backing entry.
	// Transformers write the entry themselves.
	Allocate(key string) Resource
	Put(ctx context.Context, key string, body io.Reader) (Resource, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Resource, error)
	// Remove destroys the entry. Removing a key that was allocated but
	// never written is not an error.
	Remove(ctx context.Context, key string) error
}

// ResourceKey builds the canonical staged name for a role within one
// job: {role}_{correlationID}{ext}.
func ResourceKey(role, correlationID, ext string) string {
	return role + "_" + correlationID + ext
}

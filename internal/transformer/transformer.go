// Package transformer defines the execution boundary the gateway binds
// to. Transformers are opaque, slow and allowed to crash; the dispatch
// layer owns result classification, slots and cleanup.
package transformer

import (
	"context"

	"github.com/lensworks/mediagate/internal/staging"
)

// Invocation hands a transformer everything it may touch: staged
// inputs by role, the pre-allocated output resource, and the store
// they live in.
type Invocation struct {
	JobID   string
	Inputs  map[string]staging.Resource
	Output  staging.Resource
	Staging staging.Store
}

// Transformer runs one transformation. Success means a nil error AND a
// written, non-empty output resource; the caller verifies the output
// after the call. The diagnostics string carries whatever the
// transformer printed and comes back on both paths.
type Transformer interface {
	Transform(ctx context.Context, inv Invocation) (diagnostics string, err error)
}

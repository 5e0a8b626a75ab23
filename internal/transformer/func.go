package transformer

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Func runs a transformation in-process. The adapter reads every input
// out of staging, applies fn, and writes the result to the output
// resource, so in-process and subprocess transformers are
// interchangeable to the dispatch layer.
type Func struct {
	fn func(ctx context.Context, inputs map[string][]byte) ([]byte, error)
}

func NewFunc(fn func(ctx context.Context, inputs map[string][]byte) ([]byte, error)) *Func {
	return &Func{fn: fn}
}

func (f *Func) Transform(ctx context.Context, inv Invocation) (string, error) {
	inputs := make(map[string][]byte, len(inv.Inputs))
	for role, res := range inv.Inputs {
		rc, err := inv.Staging.Open(ctx, res.Key)
		if err != nil {
			return "", fmt.Errorf("read input %s: %w", role, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("read input %s: %w", role, err)
		}
		inputs[role] = data
	}

	result, err := f.fn(ctx, inputs)
	if err != nil {
		return "", err
	}
	if _, err := inv.Staging.Put(ctx, inv.Output.Key, bytes.NewReader(result)); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return "", nil
}

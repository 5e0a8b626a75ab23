// Package registry maps operation names to their input contract and
// bound transformer. The dispatch layer stays generic: adding an
// operation is registration only.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lensworks/mediagate/internal/domain"
	"github.com/lensworks/mediagate/internal/transformer"
)

// Operation describes one callable transformation: the input roles a
// request must provide, the artifact the transformer emits, and the
// transformer itself.
type Operation struct {
	Name        string
	InputRoles  []string
	InputExt    string
	OutputExt   string
	MediaType   string
	Transformer transformer.Transformer
}

func (o Operation) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return errors.New("operation name is required")
	}
	if len(o.InputRoles) == 0 {
		return fmt.Errorf("operation %s: input roles are required", o.Name)
	}
	seen := make(map[string]struct{}, len(o.InputRoles))
	for _, role := range o.InputRoles {
		r := strings.TrimSpace(role)
		if r == "" {
			return fmt.Errorf("operation %s: blank input role", o.Name)
		}
		if _, ok := seen[r]; ok {
			return fmt.Errorf("operation %s: duplicate input role %q", o.Name, r)
		}
		seen[r] = struct{}{}
	}
	if o.Transformer == nil {
		return fmt.Errorf("operation %s: transformer is required", o.Name)
	}
	return nil
}

type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

func New() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

func (r *Registry) Register(op Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if op.InputExt == "" {
		op.InputExt = ".png"
	}
	if op.OutputExt == "" {
		op.OutputExt = ".png"
	}
	if op.MediaType == "" {
		op.MediaType = "image/png"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ops[op.Name]; ok {
		return fmt.Errorf("operation %s already registered", op.Name)
	}
	r.ops[op.Name] = op
	return nil
}

func (r *Registry) Resolve(name string) (Operation, error) {
	r.mu.RLock()
	op, ok := r.ops[name]
	r.mu.RUnlock()
	if !ok {
		return Operation{}, fmt.Errorf("%w: %q", domain.ErrUnknownOperation, name)
	}
	return op, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

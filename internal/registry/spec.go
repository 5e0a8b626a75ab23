package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lensworks/mediagate/internal/transformer"
)

const SpecSchemaV1 = "mediagate.ops.v1"

// Spec is the declarative operations file. Each entry binds a name to
// a subprocess command template; {role} placeholders resolve to staged
// input paths and {output} to the output path at run time.
type Spec struct {
	Schema     string   `json:"schema" yaml:"schema"`
	Operations []OpSpec `json:"operations" yaml:"operations"`
}

type OpSpec struct {
	Name      string   `json:"name" yaml:"name"`
	Inputs    []string `json:"inputs" yaml:"inputs"`
	InputExt  string   `json:"input_ext,omitempty" yaml:"input_ext,omitempty"`
	OutputExt string   `json:"output_ext,omitempty" yaml:"output_ext,omitempty"`
	MediaType string   `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	Command   []string `json:"command" yaml:"command"`
	WorkDir   string   `json:"workdir,omitempty" yaml:"workdir,omitempty"`
}

func ParseSpec(input []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(input, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Schema) != SpecSchemaV1 {
		return fmt.Errorf("spec.schema must be %q", SpecSchemaV1)
	}
	if len(s.Operations) == 0 {
		return errors.New("spec.operations must be non-empty")
	}

	seen := make(map[string]struct{}, len(s.Operations))
	for i, op := range s.Operations {
		name := strings.TrimSpace(op.Name)
		if name == "" {
			return fmt.Errorf("spec.operations[%d].name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("spec.operations[%d].name must be unique (duplicate %q)", i, name)
		}
		seen[name] = struct{}{}

		if len(op.Inputs) == 0 {
			return fmt.Errorf("spec.operations[%d].inputs must be non-empty", i)
		}
		roles := make(map[string]struct{}, len(op.Inputs))
		for j, role := range op.Inputs {
			r := strings.TrimSpace(role)
			if r == "" {
				return fmt.Errorf("spec.operations[%d].inputs[%d] is required", i, j)
			}
			if _, ok := roles[r]; ok {
				return fmt.Errorf("spec.operations[%d].inputs[%d] must be unique (duplicate %q)", i, j, r)
			}
			roles[r] = struct{}{}
		}

		if len(op.Command) == 0 {
			return fmt.Errorf("spec.operations[%d].command must be non-empty", i)
		}
		if strings.TrimSpace(op.Command[0]) == "" {
			return fmt.Errorf("spec.operations[%d].command[0] is required", i)
		}
		if !commandMentions(op.Command, "{output}") {
			return fmt.Errorf("spec.operations[%d].command must reference {output}", i)
		}
	}
	return nil
}

func commandMentions(command []string, placeholder string) bool {
	for _, arg := range command {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}

// Build turns a parsed spec into registrable operations backed by
// command transformers.
func (s Spec) Build() ([]Operation, error) {
	ops := make([]Operation, 0, len(s.Operations))
	for i, op := range s.Operations {
		cmd, err := transformer.NewCommand(op.Command, op.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("spec.operations[%d]: %w", i, err)
		}
		ops = append(ops, Operation{
			Name:        strings.TrimSpace(op.Name),
			InputRoles:  trimAll(op.Inputs),
			InputExt:    strings.TrimSpace(op.InputExt),
			OutputExt:   strings.TrimSpace(op.OutputExt),
			MediaType:   strings.TrimSpace(op.MediaType),
			Transformer: cmd,
		})
	}
	return ops, nil
}

// LoadFile parses an operations file and registers everything in it.
func LoadFile(r *Registry, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read spec: %w", err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return err
	}
	ops, err := spec.Build()
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			return err
		}
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

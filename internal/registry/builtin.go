package registry

// The built-in operations mirror the deployment this gateway grew out
// of: a GPU face compositor and a background remover, both subprocess
// backed. An operations file replaces them wholesale.
var builtinSpec = []byte(`schema: mediagate.ops.v1
operations:
  - name: composite
    inputs: [source, target]
    command:
      - python
      - facefusion.py
      - headless-run
      - --source-path
      - "{source}"
      - --target-path
      - "{target}"
      - --output-path
      - "{output}"
      - --execution-providers=cuda
  - name: remove-background
    inputs: [source]
    command:
      - rembg
      - i
      - "{source}"
      - "{output}"
`)

// RegisterBuiltins loads the default operation set into r.
func RegisterBuiltins(r *Registry) error {
	spec, err := ParseSpec(builtinSpec)
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

package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validSpecYAML = `schema: mediagate.ops.v1
operations:
  - name: composite
    inputs: [source, target]
    command: ["python", "facefusion.py", "headless-run", "--source-path", "{source}", "--target-path", "{target}", "--output-path", "{output}"]
  - name: grayscale
    inputs: [source]
    output_ext: .jpg
    media_type: image/jpeg
    command: ["convert", "{source}", "-colorspace", "Gray", "{output}"]
`

func TestParseSpec_Valid(t *testing.T) {
	spec, err := ParseSpec([]byte(validSpecYAML))
	if err != nil {
		t.Fatalf("ParseSpec() err=%v", err)
	}
	if len(spec.Operations) != 2 {
		t.Fatalf("operations=%d, want 2", len(spec.Operations))
	}

	ops, err := spec.Build()
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if ops[0].Name != "composite" {
		t.Fatalf("ops[0].Name=%q", ops[0].Name)
	}
	if len(ops[0].InputRoles) != 2 {
		t.Fatalf("ops[0].InputRoles=%v", ops[0].InputRoles)
	}
	if ops[1].OutputExt != ".jpg" || ops[1].MediaType != "image/jpeg" {
		t.Fatalf("ops[1] artifact fields: %+v", ops[1])
	}
}

func TestParseSpec_RejectsWrongSchema(t *testing.T) {
	_, err := ParseSpec([]byte("schema: mediagate.ops.v2\noperations:\n  - name: x\n    inputs: [source]\n    command: [\"x\", \"{output}\"]\n"))
	if err == nil || !strings.Contains(err.Error(), "spec.schema") {
		t.Fatalf("ParseSpec() err=%v, want schema error", err)
	}
}

func TestParseSpec_IndexedErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "schema: mediagate.ops.v1\noperations:\n  - inputs: [source]\n    command: [\"x\", \"{output}\"]\n",
			want: "spec.operations[0].name",
		},
		{
			name: "duplicate name",
			yaml: "schema: mediagate.ops.v1\noperations:\n  - name: a\n    inputs: [source]\n    command: [\"x\", \"{output}\"]\n  - name: a\n    inputs: [source]\n    command: [\"x\", \"{output}\"]\n",
			want: "spec.operations[1].name must be unique",
		},
		{
			name: "no inputs",
			yaml: "schema: mediagate.ops.v1\noperations:\n  - name: a\n    inputs: []\n    command: [\"x\", \"{output}\"]\n",
			want: "spec.operations[0].inputs",
		},
		{
			name: "duplicate input",
			yaml: "schema: mediagate.ops.v1\noperations:\n  - name: a\n    inputs: [source, source]\n    command: [\"x\", \"{output}\"]\n",
			want: "spec.operations[0].inputs[1]",
		},
		{
			name: "no command",
			yaml: "schema: mediagate.ops.v1\noperations:\n  - name: a\n    inputs: [source]\n",
			want: "spec.operations[0].command",
		},
		{
			name: "command without output",
			yaml: "schema: mediagate.ops.v1\noperations:\n  - name: a\n    inputs: [source]\n    command: [\"x\", \"{source}\"]\n",
			want: "must reference {output}",
		},
	}

	for _, tc := range cases {
		_, err := ParseSpec([]byte(tc.yaml))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err=%v, want %q", tc.name, err, tc.want)
		}
	}
}

func TestLoadFile_RegistersOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.yaml")
	if err := os.WriteFile(path, []byte(validSpecYAML), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	r := New()
	if err := LoadFile(r, path); err != nil {
		t.Fatalf("LoadFile() err=%v", err)
	}
	if _, err := r.Resolve("grayscale"); err != nil {
		t.Fatalf("Resolve() err=%v", err)
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	r := New()
	if err := LoadFile(r, filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("LoadFile() expected error")
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := New()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins() err=%v", err)
	}

	op, err := r.Resolve("composite")
	if err != nil {
		t.Fatalf("Resolve(composite) err=%v", err)
	}
	want := []string{"source", "target"}
	if len(op.InputRoles) != 2 || op.InputRoles[0] != want[0] || op.InputRoles[1] != want[1] {
		t.Fatalf("composite roles=%v, want %v", op.InputRoles, want)
	}
	if _, err := r.Resolve("remove-background"); err != nil {
		t.Fatalf("Resolve(remove-background) err=%v", err)
	}
}

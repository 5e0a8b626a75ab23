package transformer

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lensworks/mediagate/internal/staging"
)

func commandFixture(t *testing.T) (*staging.DirStore, Invocation) {
	t.Helper()
	store, err := staging.NewDirStore(staging.DirConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewDirStore() err=%v", err)
	}
	ctx := context.Background()
	source, err := store.Put(ctx, "source_job1.png", strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("Put() err=%v", err)
	}
	inv := Invocation{
		JobID:   "job1",
		Inputs:  map[string]staging.Resource{"source": source},
		Output:  store.Allocate("output_job1.png"),
		Staging: store,
	}
	return store, inv
}

func TestCommand_ExpandsPlaceholdersAndRuns(t *testing.T) {
	store, inv := commandFixture(t)

	cmd, err := NewCommand([]string{"/bin/sh", "-c", "cat {source} > {output}"}, "")
	if err != nil {
		t.Fatalf("NewCommand() err=%v", err)
	}
	if _, err := cmd.Transform(context.Background(), inv); err != nil {
		t.Fatalf("Transform() err=%v", err)
	}

	res, err := store.Stat(context.Background(), inv.Output.Key)
	if err != nil {
		t.Fatalf("Stat() err=%v", err)
	}
	if res.Size != int64(len("pixels")) {
		t.Fatalf("output size=%d, want %d", res.Size, len("pixels"))
	}
}

func TestCommand_CapturesDiagnosticsOnFailure(t *testing.T) {
	_, inv := commandFixture(t)

	cmd, err := NewCommand([]string{"/bin/sh", "-c", "echo model load failed >&2; exit 3"}, "")
	if err != nil {
		t.Fatalf("NewCommand() err=%v", err)
	}
	diagnostics, err := cmd.Transform(context.Background(), inv)
	if err == nil {
		t.Fatalf("Transform() expected error")
	}
	if !strings.Contains(diagnostics, "model load failed") {
		t.Fatalf("diagnostics=%q, want stderr capture", diagnostics)
	}
}

func TestCommand_ContextCancelKillsProcess(t *testing.T) {
	_, inv := commandFixture(t)

	cmd, err := NewCommand([]string{"/bin/sh", "-c", "sleep 30"}, "")
	if err != nil {
		t.Fatalf("NewCommand() err=%v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = cmd.Transform(ctx, inv)
	if err == nil {
		t.Fatalf("Transform() expected error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Transform() took %v, kill did not land", elapsed)
	}
}

func TestCommand_RejectsUnknownPlaceholder(t *testing.T) {
	_, inv := commandFixture(t)

	cmd, err := NewCommand([]string{"/bin/sh", "-c", "cat {target} > {output}"}, "")
	if err != nil {
		t.Fatalf("NewCommand() err=%v", err)
	}
	if _, err := cmd.Transform(context.Background(), inv); err == nil || !strings.Contains(err.Error(), "{target}") {
		t.Fatalf("Transform() err=%v, want unknown placeholder", err)
	}
}

func TestCommand_RequiresFilesystemStaging(t *testing.T) {
	mem := staging.NewMemStore()
	res, err := mem.Put(context.Background(), "source_job1.png", strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("Put() err=%v", err)
	}
	inv := Invocation{
		JobID:   "job1",
		Inputs:  map[string]staging.Resource{"source": res},
		Output:  mem.Allocate("output_job1.png"),
		Staging: mem,
	}

	cmd, err := NewCommand([]string{"/bin/sh", "-c", "cat {source} > {output}"}, "")
	if err != nil {
		t.Fatalf("NewCommand() err=%v", err)
	}
	if _, err := cmd.Transform(context.Background(), inv); err == nil {
		t.Fatalf("Transform() expected error for memory staging")
	}
}

func TestNewCommand_RequiresArgv(t *testing.T) {
	if _, err := NewCommand(nil, ""); err == nil {
		t.Fatalf("NewCommand(nil) expected error")
	}
	if _, err := NewCommand([]string{" "}, ""); err == nil {
		t.Fatalf("NewCommand(blank) expected error")
	}
}

func TestTail_TruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("x", diagnosticsTailBytes+100) + "END"
	got := tail(long)
	if len(got) != diagnosticsTailBytes {
		t.Fatalf("tail() len=%d, want %d", len(got), diagnosticsTailBytes)
	}
	if !strings.HasSuffix(got, "END") {
		t.Fatalf("tail() should keep the end of the output")
	}
}

func TestFunc_RoundTrip(t *testing.T) {
	mem := staging.NewMemStore()
	ctx := context.Background()
	source, err := mem.Put(ctx, "source_job1.png", strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	upper := NewFunc(func(ctx context.Context, inputs map[string][]byte) ([]byte, error) {
		return []byte(strings.ToUpper(string(inputs["source"]))), nil
	})
	inv := Invocation{
		JobID:   "job1",
		Inputs:  map[string]staging.Resource{"source": source},
		Output:  mem.Allocate("output_job1.png"),
		Staging: mem,
	}
	if _, err := upper.Transform(ctx, inv); err != nil {
		t.Fatalf("Transform() err=%v", err)
	}

	rc, err := mem.Open(ctx, "output_job1.png")
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	defer rc.Close()
	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	if string(buf[:n]) != "PIXELS" {
		t.Fatalf("output=%q, want PIXELS", buf[:n])
	}
}

func TestMain(m *testing.M) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		// Subprocess cases need a POSIX shell.
		os.Exit(0)
	}
	os.Exit(m.Run())
}

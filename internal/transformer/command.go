package transformer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

const diagnosticsTailBytes = 4096

var placeholderPattern = regexp.MustCompile(`\{[a-z][a-z0-9_-]*\}`)

// Command runs a transformation as a subprocess. Argv elements may
// embed {role} placeholders for staged input paths and {output} for
// the output path; the subprocess writes the output file itself.
// Context cancellation kills the process.
type Command struct {
	Argv []string
	Dir  string
}

func NewCommand(argv []string, dir string) (*Command, error) {
	if len(argv) == 0 {
		return nil, errors.New("argv is required")
	}
	if strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("argv[0] is required")
	}
	return &Command{Argv: argv, Dir: dir}, nil
}

func (c *Command) Transform(ctx context.Context, inv Invocation) (string, error) {
	argv, err := c.expand(inv)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.Dir
	out, err := cmd.CombinedOutput()
	diagnostics := tail(string(out))
	if err != nil {
		return diagnostics, fmt.Errorf("run %s: %w", argv[0], err)
	}
	return diagnostics, nil
}

func (c *Command) expand(inv Invocation) ([]string, error) {
	pairs := make([]string, 0, 2*(len(inv.Inputs)+1))
	for role, res := range inv.Inputs {
		if res.Path == "" {
			return nil, fmt.Errorf("input %s requires filesystem staging", role)
		}
		pairs = append(pairs, "{"+role+"}", res.Path)
	}
	if inv.Output.Path == "" {
		return nil, errors.New("output requires filesystem staging")
	}
	pairs = append(pairs, "{output}", inv.Output.Path)

	replacer := strings.NewReplacer(pairs...)
	argv := make([]string, len(c.Argv))
	for i, arg := range c.Argv {
		expanded := replacer.Replace(arg)
		if leftover := placeholderPattern.FindString(expanded); leftover != "" {
			return nil, fmt.Errorf("argv[%d] references unknown placeholder %s", i, leftover)
		}
		argv[i] = expanded
	}
	return argv, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= diagnosticsTailBytes {
		return s
	}
	return s[len(s)-diagnosticsTailBytes:]
}

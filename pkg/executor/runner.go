package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Command is one external process invocation.
type Command struct {
	// Program is the binary to run.
	Program string

	// Args are the program arguments.
	Args []string

	// Env holds additional environment variables as KEY=VALUE pairs,
	// appended to the inherited environment.
	Env []string

	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// CommandRunner starts a process and collects its combined output. The
// local implementation runs on this machine; the SSH transport provides a
// remote one. Implementations must honor context cancellation by
// terminating the process.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (exitCode int, output []byte, err error)
}

// LocalRunner executes commands on the local machine.
type LocalRunner struct{}

// Run implements CommandRunner. A nonzero exit is reported through
// exitCode, not err; err means the process could not run at all.
func (LocalRunner) Run(ctx context.Context, cmd Command) (int, []byte, error) {
	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var output bytes.Buffer
	c.Stdout = &output
	c.Stderr = &output

	err := c.Run()
	if err == nil {
		return 0, output.Bytes(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), output.Bytes(), nil
	}
	return -1, output.Bytes(), fmt.Errorf("failed to execute %s: %w", cmd.Program, err)
}

package ssh

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/proofrun/proofrun/pkg/executor"
)

// Runner executes engine commands on the remote control point. It
// implements executor.CommandRunner, so the engine executor is oblivious to
// whether the process runs locally or over SSH.
type Runner struct {
	client *Client
}

// NewRunner creates a command runner bound to an SSH client.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// Run implements executor.CommandRunner. A nonzero remote exit is reported
// through exitCode, not err; err means the command could not run at all.
func (r *Runner) Run(ctx context.Context, cmd executor.Command) (int, []byte, error) {
	sshClient, err := r.client.sshClient()
	if err != nil {
		return -1, nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return -1, nil, &TransportError{Op: "exec", Err: err, IsTemporary: true}
	}
	defer session.Close()

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	line := commandLine(cmd)
	r.client.logger.WithField("command", line).Debug("executing remote command")

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(line)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		// Context cancelled, try to stop the remote process
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		runErr = ctx.Err()
	case runErr = <-doneChan:
	}

	if runErr == nil {
		return 0, output.Bytes(), nil
	}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitStatus(), output.Bytes(), nil
	}
	return -1, output.Bytes(), &TransportError{Op: "exec", Err: runErr, IsTemporary: true}
}

// commandLine renders an executor.Command as a shell command line. Env
// assignments lead the command so they apply to the remote process only.
func commandLine(cmd executor.Command) string {
	var parts []string
	if cmd.Dir != "" {
		parts = append(parts, "cd", quote(cmd.Dir), "&&")
	}
	for _, kv := range cmd.Env {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		parts = append(parts, key+"="+quote(value))
	}
	parts = append(parts, quote(cmd.Program))
	for _, arg := range cmd.Args {
		parts = append(parts, quote(arg))
	}
	return strings.Join(parts, " ")
}

// quote single-quotes a string for POSIX shells.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'`$\\&|;<>()*?[]#~%{}!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

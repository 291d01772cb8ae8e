package ssh

import (
	"errors"
	"testing"

	"github.com/proofrun/proofrun/pkg/executor"
)

func TestCommandLine(t *testing.T) {
	tests := []struct {
		name string
		cmd  executor.Command
		want string
	}{
		{
			name: "bare command",
			cmd:  executor.Command{Program: "ansible-playbook", Args: []string{"site.yml"}},
			want: "ansible-playbook site.yml",
		},
		{
			name: "working directory",
			cmd: executor.Command{
				Program: "ansible-playbook",
				Args:    []string{"site.yml"},
				Dir:     "/tmp/proofrun/run-1/project",
			},
			want: "cd /tmp/proofrun/run-1/project && ansible-playbook site.yml",
		},
		{
			name: "environment variables lead the command",
			cmd: executor.Command{
				Program: "ansible-playbook",
				Args:    []string{"-i", "inventory.ini", "site.yml"},
				Env:     []string{"ANSIBLE_STDOUT_CALLBACK=json"},
			},
			want: "ANSIBLE_STDOUT_CALLBACK=json ansible-playbook -i inventory.ini site.yml",
		},
		{
			name: "arguments with spaces are quoted",
			cmd: executor.Command{
				Program: "ansible-playbook",
				Args:    []string{"--limit", "web servers", "site.yml"},
			},
			want: "ansible-playbook --limit 'web servers' site.yml",
		},
		{
			name: "single quotes are escaped",
			cmd: executor.Command{
				Program: "echo",
				Args:    []string{"it's"},
			},
			want: `echo 'it'\''s'`,
		},
		{
			name: "malformed env entry is skipped",
			cmd: executor.Command{
				Program: "true",
				Env:     []string{"NOEQUALS"},
			},
			want: "true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commandLine(tt.cmd)
			if got != tt.want {
				t.Errorf("commandLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"", "''"},
		{"with space", "'with space'"},
		{"a$b", "'a$b'"},
		{"semi;colon", "'semi;colon'"},
		{"path/to/file.yml", "path/to/file.yml"},
	}

	for _, tt := range tests {
		if got := quote(tt.in); got != tt.want {
			t.Errorf("quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunnerNotConnected(t *testing.T) {
	keyPath := writeTestKey(t)

	cfg := DefaultConfig("cp1.example.com", "deploy")
	cfg.PrivateKeyPath = keyPath

	client, err := NewClient(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	runner := NewRunner(client)
	exitCode, _, err := runner.Run(t.Context(), executor.Command{Program: "true"})
	if err == nil {
		t.Fatal("Run() on a disconnected client should fail")
	}
	if exitCode != -1 {
		t.Errorf("exit code = %d, want -1", exitCode)
	}

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("error should be a TransportError, got %T", err)
	}
}

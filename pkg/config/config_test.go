package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Binary != "ansible-playbook" {
		t.Errorf("Engine.Binary = %q", cfg.Engine.Binary)
	}
	if cfg.Runs.Depth != "all" {
		t.Errorf("Runs.Depth = %q, want all", cfg.Runs.Depth)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "proofrun.yaml", `
logging:
  level: debug
  format: json
engine:
  binary: /usr/local/bin/ansible-playbook
runs:
  depth: syntax
  stage_timeouts:
    apply: 10m
ssh:
  enabled: true
  host: control.example.com
  user: deploy
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Runs.Depth != "syntax" {
		t.Errorf("Runs.Depth = %q", cfg.Runs.Depth)
	}
	if cfg.Runs.StageTimeouts["apply"] != 10*time.Minute {
		t.Errorf("apply timeout = %s", cfg.Runs.StageTimeouts["apply"])
	}
	if cfg.SSH.Port != 22 {
		t.Errorf("SSH.Port = %d, want default 22", cfg.SSH.Port)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad depth", "runs:\n  depth: everything\n"},
		{"ssh without host", "ssh:\n  enabled: true\n  user: deploy\n"},
		{"upload with scheme", "upload:\n  endpoint: http://minio:9000\n  access_key: a\n  secret_key: b\n  bucket: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "proofrun.yaml", tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() accepted an invalid config")
			}
		})
	}
}

func TestTelemetryMapping(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "warn"
	cfg.Metrics.Enabled = true

	tc := cfg.Telemetry("1.2.3")
	if tc.ServiceName != "proofrun" || tc.ServiceVersion != "1.2.3" {
		t.Errorf("service identity = %s/%s", tc.ServiceName, tc.ServiceVersion)
	}
	if tc.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", tc.Logging.Level)
	}
	if !tc.Metrics.Enabled {
		t.Error("metrics enablement not mapped")
	}
}

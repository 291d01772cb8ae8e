package bundle

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return logger
}

// seedRunDir lays out a run directory the way a finished run leaves it.
func seedRunDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{"project", "logs"} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", sub, err)
		}
	}
	files := map[string]string{
		"project/site.yml":        "---\n- hosts: all\n",
		"logs/01_syntax.log":      "playbook: site.yml\n",
		"logs/02_apply.log":       `{"stats":{"web1":{"changed":1}}}` + "\n",
		"logs/03_idempotency.log": `{"stats":{"web1":{"changed":0}}}` + "\n",
		"summary.json":            `{"run_id":"x"}` + "\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestCreateArchivesEverything(t *testing.T) {
	dir := seedRunDir(t)
	bundlePath := filepath.Join(dir, "bundle.zip")

	if err := NewBundler(testLogger(t)).Create(dir, bundlePath); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	names, err := List(bundlePath)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	sort.Strings(names)

	want := []string{
		"logs/01_syntax.log",
		"logs/02_apply.log",
		"logs/03_idempotency.log",
		"project/site.yml",
		"summary.json",
	}
	if len(names) != len(want) {
		t.Fatalf("bundle entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestCreateExcludesItself(t *testing.T) {
	dir := seedRunDir(t)
	bundlePath := filepath.Join(dir, "bundle.zip")
	b := NewBundler(testLogger(t))

	if err := b.Create(dir, bundlePath); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	// Re-bundling an already-bundled directory must not nest archives.
	if err := b.Create(dir, bundlePath); err != nil {
		t.Fatalf("second Create() error = %v", err)
	}

	names, err := List(bundlePath)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, name := range names {
		if name == "bundle.zip" {
			t.Error("bundle contains itself")
		}
	}
}

func TestCreateFailurePreservesLogs(t *testing.T) {
	dir := seedRunDir(t)
	bundlePath := filepath.Join(dir, "missing", "deep", "bundle.zip")

	err := NewBundler(testLogger(t)).Create(dir, bundlePath)
	if err == nil {
		t.Fatal("Create() into a missing directory succeeded")
	}
	if !run.IsBundlingError(err) {
		t.Errorf("error = %v, want a bundling error", err)
	}

	// The evidence is untouched.
	if _, statErr := os.Stat(filepath.Join(dir, "logs", "02_apply.log")); statErr != nil {
		t.Errorf("apply log lost after bundling failure: %v", statErr)
	}
}

func TestCreateRejectsNonDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := NewBundler(testLogger(t)).Create(file, file+".zip")
	if !run.IsBundlingError(err) {
		t.Errorf("error = %v, want a bundling error", err)
	}
}

func TestUploadConfigValidate(t *testing.T) {
	valid := UploadConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Bucket:    "bundles",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*UploadConfig)
	}{
		{"scheme in endpoint", func(c *UploadConfig) { c.Endpoint = "http://localhost:9000" }},
		{"missing credentials", func(c *UploadConfig) { c.AccessKey = "" }},
		{"missing bucket", func(c *UploadConfig) { c.Bucket = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted a bad config")
			}
		})
	}
}

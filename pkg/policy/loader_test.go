package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const reloadRego = `# Flags manifests that pin the latest tag.
package proofrun.rules.latesttag

import rego.v1

warn contains finding if {
	contains(input.artifact.content, ":latest")
	finding := {
		"message": "image pinned to the latest tag",
		"severity": "warning",
	}
}
`

func TestLoadFromPathsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "latest_tag.rego"), []byte(reloadRego), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(testLogger(t))
	rules, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("len(rules) = %d, want 1", len(rules))
	}
	if rules[0].Name != "latest_tag" {
		t.Errorf("rule name = %q", rules[0].Name)
	}
	if rules[0].Description == "" {
		t.Error("description not extracted from the comment header")
	}
}

func TestWatchReloadsOnRuleChange(t *testing.T) {
	dir := t.TempDir()

	reloaded := make(chan []Rule, 1)
	loader := NewLoader(testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	err := loader.Watch(ctx, []string{dir}, func(rules []Rule) error {
		select {
		case reloaded <- rules:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "latest_tag.rego"), []byte(reloadRego), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case rules := <-reloaded:
		if len(rules) != 1 || rules[0].Name != "latest_tag" {
			t.Errorf("reloaded rules = %+v", rules)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("rule change never triggered a reload")
	}
}

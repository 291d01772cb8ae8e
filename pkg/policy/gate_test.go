package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
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

func newGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(testLogger(t))
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	return g
}

// playbookInput builds a well-formed playbook evaluation input.
func playbookInput(plays []interface{}) Input {
	return Input{
		Artifact: ArtifactInput{
			Name:     "install_nginx",
			Kind:     "config-playbook",
			Content:  "---\n- hosts: web\n",
			Document: plays,
		},
		Targets: []string{"web1", "web2"},
		Depth:   "all",
	}
}

func TestEvaluateCleanPlaybook(t *testing.T) {
	g := newGate(t)

	input := playbookInput([]interface{}{
		map[string]interface{}{
			"name":  "install nginx",
			"hosts": "web",
			"tasks": []interface{}{
				map[string]interface{}{"name": "install", "apt": map[string]interface{}{"name": "nginx"}},
			},
		},
	})

	result, err := g.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("clean playbook denied: %+v", result.Violations)
	}
	if len(result.EvaluatedRules) != len(BuiltinRules()) {
		t.Errorf("evaluated %d rules, want %d", len(result.EvaluatedRules), len(BuiltinRules()))
	}
}

func TestEvaluateEmptyArtifactDenied(t *testing.T) {
	g := newGate(t)

	input := Input{
		Artifact: ArtifactInput{Name: "empty", Kind: "config-playbook", Content: "   \n"},
	}

	result, err := g.Evaluate(context.Background(), input)
	if err == nil {
		t.Fatal("Evaluate() allowed an empty artifact")
	}
	if !run.IsPolicyError(err) {
		t.Errorf("error = %v, want a policy error", err)
	}
	if result.Allowed {
		t.Error("result.Allowed = true for a denied artifact")
	}
}

func TestEvaluateMissingHostsDenied(t *testing.T) {
	g := newGate(t)

	input := playbookInput([]interface{}{
		map[string]interface{}{
			"name":  "no hosts",
			"tasks": []interface{}{},
		},
	})

	result, err := g.Evaluate(context.Background(), input)
	if err == nil {
		t.Fatal("Evaluate() allowed a play without hosts")
	}
	found := false
	for _, v := range result.Violations {
		if v.Rule == "playbook-hosts-required" {
			found = true
		}
	}
	if !found {
		t.Errorf("violations = %+v, missing the hosts rule", result.Violations)
	}
}

func TestEvaluateDestructiveShellDenied(t *testing.T) {
	g := newGate(t)

	input := playbookInput([]interface{}{
		map[string]interface{}{
			"name":  "cleanup",
			"hosts": "all",
			"tasks": []interface{}{
				map[string]interface{}{"name": "wipe", "shell": "rm -rf / --no-preserve-root"},
			},
		},
	})

	_, err := g.Evaluate(context.Background(), input)
	if !run.IsPolicyError(err) {
		t.Errorf("error = %v, want a policy denial for the destructive task", err)
	}
}

func TestEvaluateWideFleetWarns(t *testing.T) {
	g := newGate(t)

	targets := make([]string, 25)
	for i := range targets {
		targets[i] = "host"
	}
	input := playbookInput([]interface{}{
		map[string]interface{}{"name": "p", "hosts": "all", "tasks": []interface{}{}},
	})
	input.Targets = targets

	result, err := g.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Error("fleet-size finding must warn, not block")
	}
	if len(result.Warnings) == 0 {
		t.Error("no warning recorded for a 25-host run")
	}
}

func TestEvaluateUnnamedPlayWarns(t *testing.T) {
	g := newGate(t)

	input := playbookInput([]interface{}{
		map[string]interface{}{"hosts": "web", "tasks": []interface{}{}},
	})

	result, err := g.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Error("unnamed play produced no warning")
	}
}

func TestEvaluateRawShellWarnsWithoutBlocking(t *testing.T) {
	g := newGate(t)

	input := playbookInput([]interface{}{
		map[string]interface{}{
			"name":  "restart nginx",
			"hosts": "web",
			"tasks": []interface{}{
				map[string]interface{}{"name": "restart", "shell": "systemctl restart nginx"},
			},
		},
	})

	result, err := g.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("lint findings must warn, not block: %+v", result.Violations)
	}

	var rawShell, noBecome bool
	for _, w := range result.Warnings {
		if strings.Contains(w.Message, "raw shell") {
			rawShell = true
		}
		if strings.Contains(w.Message, "without become") {
			noBecome = true
		}
	}
	if !rawShell {
		t.Errorf("warnings = %+v, missing the raw shell finding", result.Warnings)
	}
	if !noBecome {
		t.Errorf("warnings = %+v, missing the become finding", result.Warnings)
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	g := newGate(t)

	dir := t.TempDir()
	rulePath := filepath.Join(dir, "no_manifest.rego")
	rego := `# Denies cluster manifests outright.
package proofrun.rules.nomanifest

import rego.v1

deny contains violation if {
	input.artifact.kind == "cluster-manifest"
	violation := {
		"message": "cluster manifests are not allowed here",
		"severity": "error",
	}
}
`
	if err := os.WriteFile(rulePath, []byte(rego), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := g.LoadRules(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}

	rule, err := g.GetRule("no_manifest")
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if rule.Description == "" {
		t.Error("rule description not extracted from the comment header")
	}

	input := Input{
		Artifact: ArtifactInput{
			Name:     "cluster",
			Kind:     "cluster-manifest",
			Content:  "apiVersion: v1\n",
			Document: map[string]interface{}{"apiVersion": "v1"},
		},
	}
	if _, err := g.Evaluate(context.Background(), input); err == nil {
		t.Error("loaded rule did not fire")
	}
}

func TestApplyRulesReplacesByName(t *testing.T) {
	g := newGate(t)

	rego := `package proofrun.rules.block

import rego.v1

deny contains violation if {
	input.artifact.kind == "stack-template"
	violation := {"message": "templates blocked", "severity": "error"}
}
`
	rule := Rule{Name: "block-templates", Rego: rego, Severity: SeverityError, Enabled: true}
	if err := g.ApplyRules([]Rule{rule}); err != nil {
		t.Fatalf("ApplyRules() error = %v", err)
	}

	input := Input{
		Artifact: ArtifactInput{
			Name:     "vpc",
			Kind:     "stack-template",
			Content:  "{}",
			Document: map[string]interface{}{},
		},
	}
	if _, err := g.Evaluate(context.Background(), input); err == nil {
		t.Fatal("applied rule did not fire")
	}

	// A second apply with the same name swaps the rule body in place.
	rule.Rego = `package proofrun.rules.block

import rego.v1

deny contains violation if {
	false
	violation := {"message": "never", "severity": "error"}
}
`
	if err := g.ApplyRules([]Rule{rule}); err != nil {
		t.Fatalf("ApplyRules() error = %v", err)
	}
	if _, err := g.Evaluate(context.Background(), input); err != nil {
		t.Errorf("replaced rule still fired: %v", err)
	}
}

func TestSetEnabled(t *testing.T) {
	g := newGate(t)

	if err := g.SetEnabled("playbook-hosts-required", false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	input := playbookInput([]interface{}{
		map[string]interface{}{"name": "no hosts", "tasks": []interface{}{}},
	})
	if _, err := g.Evaluate(context.Background(), input); err != nil {
		t.Errorf("disabled rule still fired: %v", err)
	}

	if err := g.SetEnabled("missing-rule", true); err == nil {
		t.Error("SetEnabled() accepted an unknown rule")
	}
}

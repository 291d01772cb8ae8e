package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// Gate evaluates generated artifacts against Rego rules before any
// stage is allowed to run.
type Gate struct {
	mu     sync.RWMutex
	rules  map[string]*compiledRule
	logger *telemetry.Logger
}

// compiledRule pairs a rule with its parsed module.
type compiledRule struct {
	rule     *Rule
	module   *ast.Module
	compiled time.Time
}

// NewGate creates a gate preloaded with the built-in rules.
func NewGate(logger *telemetry.Logger) (*Gate, error) {
	g := &Gate{
		rules:  make(map[string]*compiledRule),
		logger: logger.NewComponentLogger("policy-gate"),
	}

	for _, rule := range BuiltinRules() {
		r := rule
		if err := g.compileAndStore(&r); err != nil {
			return nil, fmt.Errorf("failed to compile built-in rule %s: %w", r.Name, err)
		}
	}

	g.logger.Infof("loaded %d built-in rules", len(g.rules))
	return g, nil
}

// Evaluate runs every enabled rule against the input. A blocking
// violation is returned to the caller as a policy error; warnings ride
// along in the result either way.
func (g *Gate) Evaluate(ctx context.Context, input Input) (*GateResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start := time.Now()
	if input.Timestamp.IsZero() {
		input.Timestamp = start
	}

	result := &GateResult{
		Allowed:        true,
		EvaluatedRules: make([]string, 0, len(g.rules)),
	}

	for _, cr := range g.rules {
		if !cr.rule.Enabled {
			continue
		}
		result.EvaluatedRules = append(result.EvaluatedRules, cr.rule.Name)

		findings, err := g.evaluateRule(ctx, cr, input)
		if err != nil {
			// A broken rule must not block valid artifacts silently;
			// surface it as a warning on the result.
			g.logger.WithField("rule", cr.rule.Name).WithError(err).
				Error("rule evaluation failed")
			result.Warnings = append(result.Warnings, Violation{
				Rule:       cr.rule.Name,
				Message:    fmt.Sprintf("rule evaluation failed: %v", err),
				Severity:   SeverityWarning,
				DetectedAt: time.Now(),
			})
			continue
		}

		for _, v := range findings {
			if v.Severity.Blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.EvaluatedAt = time.Now()
	result.Duration = time.Since(start)

	g.logger.WithField("artifact", input.Artifact.Name).
		WithField("violations", len(result.Violations)).
		WithField("warnings", len(result.Warnings)).
		Debugf("gate evaluation completed in %s", result.Duration)

	if !result.Allowed {
		return result, run.NewPolicyError(
			fmt.Sprintf("artifact %s denied by %d rule violation(s)", input.Artifact.Name, len(result.Violations)), nil)
	}
	return result, nil
}

// evaluateRule queries one rule's deny and warn sets.
func (g *Gate) evaluateRule(ctx context.Context, cr *compiledRule, input Input) ([]Violation, error) {
	pkg := packageName(cr.rule.Rego)

	var findings []Violation
	for _, query := range []struct {
		path     string
		severity Severity
	}{
		{fmt.Sprintf("data.%s.deny", pkg), cr.rule.Severity},
		{fmt.Sprintf("data.%s.warn", pkg), SeverityWarning},
	} {
		r := rego.New(
			rego.Module(cr.rule.Name, cr.rule.Rego),
			rego.Query(query.path),
			rego.Input(input),
		)

		results, err := r.Eval(ctx)
		if err != nil {
			return nil, fmt.Errorf("rule evaluation error: %w", err)
		}

		for _, res := range results {
			for _, expr := range res.Expressions {
				set, ok := expr.Value.([]interface{})
				if !ok {
					continue
				}
				for _, finding := range set {
					findings = append(findings, g.violation(cr.rule, query.severity, finding))
				}
			}
		}
	}

	return findings, nil
}

// violation shapes one Rego finding into a Violation.
func (g *Gate) violation(rule *Rule, severity Severity, finding interface{}) Violation {
	v := Violation{
		Rule:       rule.Name,
		Severity:   severity,
		DetectedAt: time.Now(),
	}

	switch f := finding.(type) {
	case string:
		v.Message = f
	case map[string]interface{}:
		if msg, ok := f["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := f["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", finding)
	}

	return v
}

// packageName extracts the package path from Rego source.
func packageName(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "proofrun.rules"
}

// compileAndStore parses a rule and registers it.
func (g *Gate) compileAndStore(rule *Rule) error {
	module, err := ast.ParseModule(rule.Name, rule.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse rule: %w", err)
	}

	g.rules[rule.Name] = &compiledRule{
		rule:     rule,
		module:   module,
		compiled: time.Now(),
	}
	return nil
}

// LoadRules loads additional rules from files or directories and
// registers them alongside the built-ins.
func (g *Gate) LoadRules(ctx context.Context, paths []string) error {
	loader := NewLoader(g.logger)
	rules, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	if err := g.ApplyRules(rules); err != nil {
		return err
	}
	g.logger.Infof("loaded %d rules from %d path(s)", len(rules), len(paths))
	return nil
}

// ApplyRules compiles and registers the given rules, replacing any
// registered rule with the same name. Runs in flight keep evaluating
// against the set they started with.
func (g *Gate) ApplyRules(rules []Rule) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range rules {
		if err := g.compileAndStore(&rules[i]); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rules[i].Name, err)
		}
	}
	return nil
}

// GetRule returns a registered rule by name.
func (g *Gate) GetRule(name string) (*Rule, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cr, ok := g.rules[name]
	if !ok {
		return nil, fmt.Errorf("rule not found: %s", name)
	}
	return cr.rule, nil
}

// ListRules returns all registered rules.
func (g *Gate) ListRules() []Rule {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rules := make([]Rule, 0, len(g.rules))
	for _, cr := range g.rules {
		rules = append(rules, *cr.rule)
	}
	return rules
}

// SetEnabled toggles a rule.
func (g *Gate) SetEnabled(name string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cr, ok := g.rules[name]
	if !ok {
		return fmt.Errorf("rule not found: %s", name)
	}
	cr.rule.Enabled = enabled
	return nil
}

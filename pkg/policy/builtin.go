package policy

// BuiltinRules returns the rules every gate starts with. They guard the
// pipeline against obviously unsafe generated artifacts without trying
// to judge artifact semantics.
func BuiltinRules() []Rule {
	return []Rule{
		artifactNonEmptyRule(),
		playbookHostsRule(),
		playbookShellDangerRule(),
		playbookLintRule(),
		targetFleetSizeRule(),
	}
}

// artifactNonEmptyRule rejects artifacts with no usable content.
func artifactNonEmptyRule() Rule {
	return Rule{
		Name:        "artifact-nonempty",
		Description: "Rejects artifacts whose content is empty or failed to parse",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"artifact", "shape"},
		Rego: `package proofrun.rules.nonempty

import rego.v1

deny contains violation if {
	trim_space(input.artifact.content) == ""
	violation := {
		"message": sprintf("artifact %s has no content", [input.artifact.name]),
		"severity": "error",
	}
}

deny contains violation if {
	trim_space(input.artifact.content) != ""
	not input.artifact.document
	violation := {
		"message": sprintf("artifact %s did not parse as a structured document", [input.artifact.name]),
		"severity": "error",
	}
}
`,
	}
}

// playbookHostsRule requires every play to declare its hosts.
func playbookHostsRule() Rule {
	return Rule{
		Name:        "playbook-hosts-required",
		Description: "Every play in a configuration playbook must declare a hosts pattern",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"playbook", "shape"},
		Rego: `package proofrun.rules.hosts

import rego.v1

deny contains violation if {
	input.artifact.kind == "config-playbook"
	some i
	play := input.artifact.document[i]
	not play.hosts
	violation := {
		"message": sprintf("play %d declares no hosts", [i]),
		"severity": "error",
	}
}

warn contains finding if {
	input.artifact.kind == "config-playbook"
	some i
	play := input.artifact.document[i]
	not play.name
	finding := sprintf("play %d has no name", [i])
}
`,
	}
}

// playbookShellDangerRule flags raw shell tasks with destructive
// commands. Generated text reaching for rm -rf deserves a human look
// before it touches a fleet.
func playbookShellDangerRule() Rule {
	return Rule{
		Name:        "playbook-shell-danger",
		Description: "Blocks raw shell or command tasks containing destructive patterns",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"playbook", "safety"},
		Rego: `package proofrun.rules.shell

import rego.v1

dangerous_patterns := ["rm -rf /", "mkfs", "dd if=", ":(){"]

shell_modules := {"shell", "command", "ansible.builtin.shell", "ansible.builtin.command"}

deny contains violation if {
	input.artifact.kind == "config-playbook"
	some play in input.artifact.document
	some task in play.tasks
	some module in shell_modules
	cmd := task[module]
	is_string(cmd)
	some pattern in dangerous_patterns
	contains(cmd, pattern)
	violation := {
		"message": sprintf("task %s runs a destructive command (%s)", [object.get(task, "name", "unnamed"), pattern]),
		"severity": "critical",
	}
}
`,
	}
}

// playbookLintRule surfaces style findings that usually indicate a sloppy
// generated playbook: raw shell/command tasks where a module would do, and
// tasks that look privileged without declaring become.
func playbookLintRule() Rule {
	return Rule{
		Name:        "playbook-lint",
		Description: "Warns on raw shell/command usage and privileged-looking tasks without become",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"playbook", "lint"},
		Rego: `package proofrun.rules.lint

import rego.v1

shell_modules := {"shell", "command", "ansible.builtin.shell", "ansible.builtin.command"}

privileged_markers := ["systemctl", "apt", "apt-get", "yum", "dnf", "useradd", "usermod"]

warn contains finding if {
	input.artifact.kind == "config-playbook"
	some play in input.artifact.document
	some task in play.tasks
	some module in shell_modules
	task[module]
	finding := sprintf("task %s uses raw %s; prefer a dedicated module", [object.get(task, "name", "unnamed"), module])
}

warn contains finding if {
	input.artifact.kind == "config-playbook"
	some play in input.artifact.document
	not play.become
	some task in play.tasks
	not task.become
	some module in shell_modules
	cmd := task[module]
	is_string(cmd)
	some marker in privileged_markers
	startswith(cmd, marker)
	finding := sprintf("task %s runs %s without become", [object.get(task, "name", "unnamed"), marker])
}
`,
	}
}

// targetFleetSizeRule warns on unusually wide blast radius.
func targetFleetSizeRule() Rule {
	return Rule{
		Name:        "target-fleet-size",
		Description: "Warns when a generated artifact targets a large fleet in one run",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"inventory", "safety"},
		Rego: `package proofrun.rules.fleet

import rego.v1

warn contains finding if {
	count(input.targets) > 20
	finding := sprintf("run targets %d hosts; consider a staged rollout", [count(input.targets)])
}
`,
	}
}

package artifact

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sanitize cleans raw model output into a bare document: markdown code
// fences are stripped and any leading prose before a YAML document marker
// is dropped. The result is trimmed and newline-terminated.
func Sanitize(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.TrimSpace(text)

	text = stripFences(text)

	// Models often preface the document with an explanation. When a YAML
	// document marker line appears, everything before it is prose.
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			if i > 0 {
				text = strings.Join(lines[i:], "\n")
			}
			break
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return text + "\n"
}

// stripFences removes surrounding markdown code fences, tolerating a
// language tag on the opening fence and both backtick and tilde fences.
func stripFences(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// play mirrors the minimal structure of one play in a playbook document.
// Task and role entries stay opaque; only their presence matters here.
type play struct {
	Hosts string        `yaml:"hosts"`
	Tasks []interface{} `yaml:"tasks"`
	Roles []interface{} `yaml:"roles"`
}

// CheckShape performs the structural check appropriate for the artifact
// kind. Playbooks must be a top-level list of plays, each naming hosts and
// carrying tasks or roles. Manifests and templates only need to parse as
// YAML/JSON; their semantics belong to the executor.
func (a *Artifact) CheckShape() error {
	switch a.Kind {
	case KindPlaybook:
		return checkPlaybookShape(a.Content)
	case KindManifest, KindTemplate:
		var doc interface{}
		if err := yaml.Unmarshal([]byte(a.Content), &doc); err != nil {
			return fmt.Errorf("artifact does not parse as a structured document: %w", err)
		}
		return nil
	default:
		return a.Kind.Validate()
	}
}

func checkPlaybookShape(content string) error {
	var plays []play
	if err := yaml.Unmarshal([]byte(content), &plays); err != nil {
		return fmt.Errorf("playbook is not a top-level list of plays: %w", err)
	}
	if len(plays) == 0 {
		return fmt.Errorf("playbook contains no plays")
	}
	for i, p := range plays {
		if strings.TrimSpace(p.Hosts) == "" {
			return fmt.Errorf("play %d does not declare hosts", i+1)
		}
		if len(p.Tasks) == 0 && len(p.Roles) == 0 {
			return fmt.Errorf("play %d has neither tasks nor roles", i+1)
		}
	}
	return nil
}

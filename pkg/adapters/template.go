package adapters

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/proofrun/proofrun/pkg/contract"
	"github.com/proofrun/proofrun/pkg/run"
)

const templateKind = "template"

// TemplateAdapter deploys a named infrastructure stack template at the
// control point. The spec is a template file path or inline JSON. A stack
// is one unit; a template that does not parse as a JSON object fails the
// whole operation.
type TemplateAdapter struct {
	store *StateStore
}

// NewTemplateAdapter creates the template.deploy adapter.
func NewTemplateAdapter(store *StateStore) *TemplateAdapter {
	return &TemplateAdapter{store: store}
}

// Name implements Adapter.
func (a *TemplateAdapter) Name() string {
	return "template.deploy"
}

// Invoke deploys the template under the given stack name.
func (a *TemplateAdapter) Invoke(ctx context.Context, mode run.Mode, name, spec string) (contract.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(spec) == "" {
		return failure(), nil
	}

	content, err := resolveTemplateContent(spec)
	if err != nil {
		return failure(), nil
	}

	canonical, ok := canonicalTemplate(content)
	if !ok {
		return failure(), nil
	}

	if mode == run.ModeValidate {
		// Validation only checks template shape, never pending changes.
		return contract.New(contract.ControlPoint, run.TargetStats{}), nil
	}

	current, exists, err := a.store.Get(templateKind, name)
	if err != nil {
		return failure(), err
	}
	if exists && current == canonical {
		return outcome(false), nil
	}

	if mode == run.ModeApply {
		if err := a.store.Put(templateKind, name, canonical); err != nil {
			return failure(), err
		}
	}
	return outcome(true), nil
}

// resolveTemplateContent loads the spec from disk when it names a file,
// otherwise treats it as inline template text.
func resolveTemplateContent(spec string) (string, error) {
	trimmed := strings.TrimSpace(spec)
	if info, err := os.Stat(trimmed); err == nil && !info.IsDir() {
		data, err := os.ReadFile(trimmed)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return trimmed, nil
}

// canonicalTemplate parses the template and re-serializes it so that
// formatting differences do not register as changes.
func canonicalTemplate(content string) (string, bool) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return "", false
	}
	if len(doc) == 0 {
		return "", false
	}
	canonical, err := json.Marshal(doc)
	if err != nil {
		return "", false
	}
	return string(canonical), true
}

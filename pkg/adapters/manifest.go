package adapters

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/proofrun/proofrun/pkg/contract"
	"github.com/proofrun/proofrun/pkg/run"
)

const manifestKind = "manifest"

// ManifestAdapter applies a named multi-document resource manifest at the
// control point. The spec is a manifest file path or inline YAML. Documents
// are applied independently: one bad document among good ones yields the
// partial-success shape changed=1, failed=1.
type ManifestAdapter struct {
	store *StateStore
}

// NewManifestAdapter creates the manifest.apply adapter.
func NewManifestAdapter(store *StateStore) *ManifestAdapter {
	return &ManifestAdapter{store: store}
}

// Name implements Adapter.
func (a *ManifestAdapter) Name() string {
	return "manifest.apply"
}

// Invoke applies the manifest under the given release name.
func (a *ManifestAdapter) Invoke(ctx context.Context, mode run.Mode, name, spec string) (contract.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(spec) == "" {
		return failure(), nil
	}

	content, err := resolveManifestContent(spec)
	if err != nil {
		return failure(), nil
	}

	docs := splitDocuments(content)
	if len(docs) == 0 {
		return failure(), nil
	}

	var changed, failed bool
	for i, doc := range docs {
		if !parsesAsMapping(doc) {
			failed = true
			continue
		}

		key := fmt.Sprintf("%s/%d", name, i)
		current, exists, err := a.store.Get(manifestKind, key)
		if err != nil {
			return failure(), err
		}
		if exists && current == doc {
			continue
		}

		changed = true
		if mode == run.ModeApply {
			if err := a.store.Put(manifestKind, key, doc); err != nil {
				return failure(), err
			}
		}
	}

	if mode == run.ModeValidate {
		// Validation only reports parse failures, never pending changes.
		return contract.New(contract.ControlPoint, run.TargetStats{Failed: failed}), nil
	}
	return contract.New(contract.ControlPoint, run.TargetStats{Changed: changed, Failed: failed}), nil
}

// resolveManifestContent loads the spec from disk when it names a file,
// otherwise treats it as inline manifest text.
func resolveManifestContent(spec string) (string, error) {
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

// splitDocuments splits multi-document YAML on document markers.
func splitDocuments(content string) []string {
	var docs []string
	for _, part := range strings.Split(content, "\n---") {
		doc := strings.TrimSpace(strings.TrimPrefix(part, "---"))
		if doc != "" {
			docs = append(docs, doc)
		}
	}
	return docs
}

func parsesAsMapping(doc string) bool {
	var out map[string]interface{}
	if err := yaml.Unmarshal([]byte(doc), &out); err != nil {
		return false
	}
	return len(out) > 0
}

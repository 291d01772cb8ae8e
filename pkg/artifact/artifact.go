// Package artifact defines the generated infrastructure-as-code document
// the pipeline verifies, the sanitization applied to raw model output, and
// the Generator boundary behind which artifact production lives. The
// pipeline reads artifacts and persists them into the run directory; it
// never interprets their content beyond a structural shape check.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Kind declares what sort of document an artifact is. The kind selects the
// executor backend and the file extension; content stays opaque.
type Kind string

const (
	// KindPlaybook is a configuration-management playbook.
	KindPlaybook Kind = "config-playbook"

	// KindManifest is a cluster resource manifest.
	KindManifest Kind = "cluster-manifest"

	// KindTemplate is an infrastructure stack template.
	KindTemplate Kind = "stack-template"
)

// Validate checks if the kind is supported.
func (k Kind) Validate() error {
	switch k {
	case KindPlaybook, KindManifest, KindTemplate:
		return nil
	default:
		return fmt.Errorf("invalid artifact kind: %s", k)
	}
}

// Extension returns the file extension used when persisting the artifact.
func (k Kind) Extension() string {
	switch k {
	case KindTemplate:
		return ".json"
	default:
		return ".yml"
	}
}

// Artifact is an opaque generated document plus its declared kind and a
// base name used when persisting it. The caller owns the content; the
// pipeline only reads it.
type Artifact struct {
	// Name is the slugified base name, without extension.
	Name string `json:"name"`

	// Kind declares the document type.
	Kind Kind `json:"kind"`

	// Content is the document text.
	Content string `json:"content"`
}

// Validate checks the artifact is complete enough to persist.
func (a *Artifact) Validate() error {
	if strings.TrimSpace(a.Content) == "" {
		return fmt.Errorf("artifact has empty content")
	}
	return a.Kind.Validate()
}

// FileName returns the artifact's file name within a project directory.
func (a *Artifact) FileName() string {
	name := a.Name
	if name == "" {
		name = "artifact"
	}
	return name + a.Kind.Extension()
}

// Preview returns the first n lines of the content for display.
func (a *Artifact) Preview(n int) string {
	lines := strings.Split(a.Content, "\n")
	if len(lines) <= n {
		return a.Content
	}
	return strings.Join(lines[:n], "\n") + "\n..."
}

// Slugify derives a filesystem-safe base name from free text. Runs of
// non-alphanumeric characters collapse to single underscores.
func Slugify(text string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return "artifact"
	}
	const maxSlug = 48
	if len(slug) > maxSlug {
		slug = strings.Trim(slug[:maxSlug], "_")
	}
	return slug
}

// Write persists the artifact into dir atomically (temp file plus rename)
// and returns the final path. When a file with the artifact's name already
// exists, a numeric suffix is appended rather than overwriting evidence
// from an earlier generation.
func (a *Artifact) Write(dir string) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	path, err := uniquePath(dir, a.FileName())
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(a.Content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to finalize artifact file: %w", err)
	}
	return path, nil
}

// uniquePath finds an unused file name in dir, appending _2, _3, ... to the
// base name when needed.
func uniquePath(dir, fileName string) (string, error) {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)

	for i := 1; i <= 1000; i++ {
		name := fileName
		if i > 1 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil && !os.IsExist(err) {
			return "", fmt.Errorf("failed to probe artifact path %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("could not find a free artifact name for %s in %s", fileName, dir)
}

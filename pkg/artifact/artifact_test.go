package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

const validPlaybook = `---
- hosts: all
  become: true
  tasks:
    - name: install nginx
      package:
        name: nginx
        state: present
`

func TestKindValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		wantErr bool
	}{
		{"playbook", KindPlaybook, false},
		{"manifest", KindManifest, false},
		{"template", KindTemplate, false},
		{"unknown", Kind("terraform"), true},
		{"empty", Kind(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.kind.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Kind.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Install Nginx on web servers", "install_nginx_on_web_servers"},
		{"  deploy: v2.1!  ", "deploy_v2_1"},
		{"***", "artifact"},
		{"", "artifact"},
		{"UPPER case", "upper_case"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	a := &Artifact{Name: "install_nginx", Kind: KindPlaybook, Content: validPlaybook}

	path, err := a.Write(dir)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if filepath.Base(path) != "install_nginx.yml" {
		t.Errorf("Write() path = %q, want install_nginx.yml", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != validPlaybook {
		t.Error("Write() content does not match artifact content")
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("project dir has %d entries after write, want 1", len(entries))
	}
}

func TestWriteUniqueNames(t *testing.T) {
	dir := t.TempDir()
	a := &Artifact{Name: "deploy", Kind: KindPlaybook, Content: validPlaybook}

	first, err := a.Write(dir)
	if err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	second, err := a.Write(dir)
	if err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	if first == second {
		t.Fatal("second Write() overwrote the first artifact")
	}
	if filepath.Base(second) != "deploy_2.yml" {
		t.Errorf("second Write() = %q, want deploy_2.yml", second)
	}
}

func TestWriteRejectsEmptyContent(t *testing.T) {
	a := &Artifact{Name: "empty", Kind: KindPlaybook, Content: "   \n"}
	if _, err := a.Write(t.TempDir()); err == nil {
		t.Error("Write() accepted an empty artifact")
	}
}

func TestPreview(t *testing.T) {
	a := &Artifact{Name: "x", Kind: KindPlaybook, Content: "a\nb\nc\nd\n"}
	got := a.Preview(2)
	if got != "a\nb\n..." {
		t.Errorf("Preview(2) = %q", got)
	}
}

package inventory

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/proofrun/proofrun/pkg/run"
)

const twoHostText = "[web]\nweb1 ansible_user=deploy\nweb2\n"

// writeInventoryFile drops inventory text into a temp file and returns its path.
func writeInventoryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts.ini")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write inventory file: %v", err)
	}
	return path
}

func TestResolveShapesAgree(t *testing.T) {
	// The same two hosts through every supported spec shape must produce
	// the same canonical host set.
	path := writeInventoryFile(t, "web1\nweb2\n")

	tests := []struct {
		name string
		spec Spec
	}{
		{"csv", Spec{Text: "web1,web2"}},
		{"file path", Spec{Text: path}},
		{"literal payload", Spec{Text: "web1\nweb2\n", LiteralPayload: true}},
		{"inline text", Spec{Text: "[all]\nweb1\nweb2\n"}},
	}

	want := []string{"web1", "web2"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := Resolve(tt.spec)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := inv.Hosts(); !reflect.DeepEqual(got, want) {
				t.Errorf("Hosts() = %v, want %v", got, want)
			}
		})
	}
}

func TestResolvePrecedencePathBeatsCSV(t *testing.T) {
	// A spec that is simultaneously an existing path and a comma-split
	// candidate must resolve as a path.
	dir := t.TempDir()
	path := filepath.Join(dir, "a,b")
	if err := os.WriteFile(path, []byte("filehost\n"), 0600); err != nil {
		t.Fatalf("failed to write inventory file: %v", err)
	}

	inv, err := Resolve(Spec{Text: path})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := inv.Hosts(); !reflect.DeepEqual(got, []string{"filehost"}) {
		t.Errorf("Hosts() = %v, want the file contents, not a CSV split", got)
	}
}

func TestResolveLiteralPayloadBeatsPath(t *testing.T) {
	// Literal payload must never be interpreted as a path, even if a file
	// with that exact name exists.
	dir := t.TempDir()
	path := filepath.Join(dir, "payload")
	if err := os.WriteFile(path, []byte("otherhost\n"), 0600); err != nil {
		t.Fatalf("failed to write decoy file: %v", err)
	}

	t.Chdir(dir)
	inv, err := Resolve(Spec{Text: "payload", LiteralPayload: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := inv.Hosts(); !reflect.DeepEqual(got, []string{"payload"}) {
		t.Errorf("Hosts() = %v, want literal content parsed as a host line", got)
	}
}

func TestResolveGroupsAndVars(t *testing.T) {
	inv, err := Resolve(Spec{Text: twoHostText, LiteralPayload: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if !reflect.DeepEqual(inv.GroupNames(), []string{"web"}) {
		t.Errorf("GroupNames() = %v, want [web]", inv.GroupNames())
	}
	if got := inv.Vars["web1"]["ansible_user"]; got != "deploy" {
		t.Errorf("web1 ansible_user = %q, want deploy", got)
	}
	if len(inv.Vars["web2"]) != 0 {
		t.Errorf("web2 vars = %v, want none", inv.Vars["web2"])
	}
}

func TestResolveCSVSynthesizesConnectionVars(t *testing.T) {
	inv, err := Resolve(Spec{
		Text:           "web1, web2",
		DefaultUser:    "deploy",
		PrivateKeyFile: "/keys/id_ed25519",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	for _, host := range []string{"web1", "web2"} {
		vars := inv.Vars[host]
		if vars["ansible_user"] != "deploy" {
			t.Errorf("%s ansible_user = %q, want deploy", host, vars["ansible_user"])
		}
		if vars["ansible_ssh_private_key_file"] != "/keys/id_ed25519" {
			t.Errorf("%s key file = %q", host, vars["ansible_ssh_private_key_file"])
		}
	}
}

func TestResolveBracketedHostPatternStaysCSV(t *testing.T) {
	// A range pattern like web[1:3] carries brackets without being a
	// group header; the spec is still a flat host list.
	inv, err := Resolve(Spec{Text: "web[1:3],db[1:2]"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if !reflect.DeepEqual(inv.GroupNames(), []string{GroupAll}) {
		t.Errorf("GroupNames() = %v, want [%s]", inv.GroupNames(), GroupAll)
	}
	if got := inv.Hosts(); !reflect.DeepEqual(got, []string{"web[1:3]", "db[1:2]"}) {
		t.Errorf("Hosts() = %v", got)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"empty spec", Spec{Text: ""}},
		{"whitespace spec", Spec{Text: "   \n "}},
		{"only commas", Spec{Text: ",,,"}},
		{"malformed group header", Spec{Text: "[web\nweb1\n", LiteralPayload: true}},
		{"empty group name", Spec{Text: "[]\nweb1\n", LiteralPayload: true}},
		{"malformed host var", Spec{Text: "[web]\nweb1 =broken\n", LiteralPayload: true}},
		{"duplicate host", Spec{Text: "[a]\nweb1\n[b]\nweb1\n", LiteralPayload: true}},
		{"headers with no hosts", Spec{Text: "[web]\n[db]\n", LiteralPayload: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.spec)
			if err == nil {
				t.Fatal("Resolve() succeeded, want InventoryError")
			}
			if !run.IsInventoryError(err) {
				t.Errorf("Resolve() error = %v, want an inventory error", err)
			}
		})
	}
}

func TestRenderRoundTrip(t *testing.T) {
	inv, err := Resolve(Spec{Text: twoHostText, LiteralPayload: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	rendered := inv.Render()
	if !strings.Contains(rendered, "[web]") || !strings.Contains(rendered, "web1 ansible_user=deploy") {
		t.Errorf("Render() = %q, missing group or host vars", rendered)
	}

	again, err := Resolve(Spec{Text: rendered, LiteralPayload: true})
	if err != nil {
		t.Fatalf("Resolve(rendered) error = %v", err)
	}
	if !reflect.DeepEqual(again.Hosts(), inv.Hosts()) {
		t.Errorf("round trip hosts = %v, want %v", again.Hosts(), inv.Hosts())
	}
}

func TestWriteFile(t *testing.T) {
	inv, err := Resolve(Spec{Text: "web1,web2"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "inventory.ini")
	if err := inv.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("inventory file mode = %o, want 0600", perm)
	}
}

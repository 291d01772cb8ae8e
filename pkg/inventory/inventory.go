// Package inventory resolves caller-supplied target specifications into a
// canonical host/group form. Four spec shapes are supported, evaluated in a
// fixed precedence order: literal file payload, existing file path, inline
// group-header text, and a comma-separated host list. The ordering is a
// contract: a comma-separated string that also names an existing path
// resolves as a path.
package inventory

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/proofrun/proofrun/pkg/run"
)

// GroupAll is the group that receives hosts from flat comma-separated specs
// and hosts listed before any group header.
const GroupAll = "all"

// Spec is a caller-supplied target specification.
type Spec struct {
	// Text is the raw specification: inventory file content, a path, inline
	// inventory text, or a comma-separated host list.
	Text string

	// LiteralPayload marks Text as inventory file content to be parsed
	// directly, bypassing path and shape detection.
	LiteralPayload bool

	// DefaultUser, when set, is attached as the connection user to hosts
	// that do not declare one. Only applied to synthesized flat groups.
	DefaultUser string

	// PrivateKeyFile, when set, is attached as the connection key to hosts
	// that do not declare one. Only applied to synthesized flat groups.
	PrivateKeyFile string
}

// Inventory is the canonical resolved form. Hostnames are unique across the
// whole inventory; group membership preserves first-seen order.
type Inventory struct {
	// Groups maps group name to its ordered hosts.
	Groups map[string][]string

	// Vars maps hostname to its key/value host variables.
	Vars map[string]map[string]string

	groupOrder []string
}

// Resolve canonicalizes a target specification. An empty spec or an empty
// resolution is an inventory error, not an empty success.
func Resolve(spec Spec) (*Inventory, error) {
	text := strings.TrimSpace(spec.Text)
	if text == "" {
		return nil, run.NewInventoryError("empty target specification", nil)
	}

	// Rule 1: explicit literal payload.
	if spec.LiteralPayload {
		return parseText(text)
	}

	// Rule 2: an existing, readable file path.
	if info, err := os.Stat(text); err == nil && !info.IsDir() {
		data, err := os.ReadFile(text)
		if err != nil {
			return nil, run.NewInventoryError(fmt.Sprintf("unreadable inventory file %s", text), err)
		}
		return parseText(strings.TrimSpace(string(data)))
	}

	// Rule 3: inline inventory text with group headers.
	if hasGroupHeader(text) {
		return parseText(text)
	}

	// Rule 4: comma-separated host list, synthesized into one flat group.
	return parseHostList(text, spec.DefaultUser, spec.PrivateKeyFile)
}

// hasGroupHeader reports whether any line of the text is a [name] group
// header. A bracket inside a host pattern, as in "web[1:3]", is not a
// header; only a line shaped like a header routes the spec to the
// inventory text parser.
func hasGroupHeader(text string) bool {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") &&
			strings.TrimSpace(line[1:len(line)-1]) != "" {
			return true
		}
	}
	return false
}

// parseText parses inventory file content: group headers followed by host
// lines, optionally with key=value host variables. Hosts before the first
// header land in the "all" group.
func parseText(text string) (*Inventory, error) {
	inv := &Inventory{
		Groups: make(map[string][]string),
		Vars:   make(map[string]map[string]string),
	}

	group := GroupAll
	for lineno, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, run.NewInventoryError(
					fmt.Sprintf("line %d: malformed group header %q", lineno+1, line), nil)
			}
			group = strings.TrimSpace(line[1 : len(line)-1])
			if group == "" {
				return nil, run.NewInventoryError(
					fmt.Sprintf("line %d: empty group name", lineno+1), nil)
			}
			inv.ensureGroup(group)
			continue
		}

		host, vars, err := parseHostLine(line)
		if err != nil {
			return nil, run.NewInventoryError(fmt.Sprintf("line %d: %v", lineno+1, err), nil)
		}
		if err := inv.addHost(group, host, vars); err != nil {
			return nil, err
		}
	}

	if len(inv.Hosts()) == 0 {
		return nil, run.NewInventoryError("inventory resolved to zero hosts", nil)
	}
	return inv, nil
}

// parseHostList splits a comma-separated host list into the flat "all"
// group, attaching connection defaults when configured.
func parseHostList(text, user, keyFile string) (*Inventory, error) {
	inv := &Inventory{
		Groups: make(map[string][]string),
		Vars:   make(map[string]map[string]string),
	}

	for _, part := range strings.Split(text, ",") {
		host := strings.TrimSpace(part)
		if host == "" {
			continue
		}
		vars := map[string]string{}
		if user != "" {
			vars["ansible_user"] = user
		}
		if keyFile != "" {
			vars["ansible_ssh_private_key_file"] = keyFile
		}
		if err := inv.addHost(GroupAll, host, vars); err != nil {
			return nil, err
		}
	}

	if len(inv.Hosts()) == 0 {
		return nil, run.NewInventoryError("inventory resolved to zero hosts", nil)
	}
	return inv, nil
}

// parseHostLine splits "host key=value key=value" into its parts.
func parseHostLine(line string) (string, map[string]string, error) {
	fields := strings.Fields(line)
	host := fields[0]
	vars := make(map[string]string, len(fields)-1)
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("malformed host variable %q for host %s", f, host)
		}
		vars[key] = value
	}
	return host, vars, nil
}

func (inv *Inventory) ensureGroup(group string) {
	if _, ok := inv.Groups[group]; !ok {
		inv.Groups[group] = nil
		inv.groupOrder = append(inv.groupOrder, group)
	}
}

// addHost records a host in a group. Hostnames must be unique across the
// canonical inventory.
func (inv *Inventory) addHost(group, host string, vars map[string]string) error {
	if _, seen := inv.Vars[host]; seen {
		return run.NewInventoryError(fmt.Sprintf("duplicate host %s in inventory", host), nil)
	}
	inv.ensureGroup(group)
	inv.Groups[group] = append(inv.Groups[group], host)
	inv.Vars[host] = vars
	return nil
}

// Hosts returns all hostnames in group order.
func (inv *Inventory) Hosts() []string {
	var hosts []string
	for _, group := range inv.groupOrder {
		hosts = append(hosts, inv.Groups[group]...)
	}
	return hosts
}

// GroupNames returns the group names in first-seen order.
func (inv *Inventory) GroupNames() []string {
	out := make([]string, len(inv.groupOrder))
	copy(out, inv.groupOrder)
	return out
}

// Render serializes the canonical inventory back to inventory file text,
// suitable for handing to an engine executor. Host variables are emitted in
// sorted key order so the output is deterministic.
func (inv *Inventory) Render() string {
	var b strings.Builder
	for _, group := range inv.groupOrder {
		hosts := inv.Groups[group]
		if len(hosts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n", group)
		for _, host := range hosts {
			b.WriteString(host)
			vars := inv.Vars[host]
			keys := make([]string, 0, len(vars))
			for k := range vars {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%s", k, vars[k])
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// WriteFile renders the inventory to path with owner-only permissions, as
// host variables may carry connection details.
func (inv *Inventory) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(inv.Render()), 0600); err != nil {
		return run.NewInventoryError(fmt.Sprintf("failed to write inventory file %s", path), err)
	}
	return nil
}

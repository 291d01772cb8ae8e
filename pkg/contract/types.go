package contract

import (
	"fmt"

	"github.com/proofrun/proofrun/pkg/run"
)

// ControlPoint is the logical target key used by executors that act against
// a single API endpoint rather than a host fleet.
const ControlPoint = "localhost"

// Counters is the per-target section of the stats document. Each field is
// a 0/1 flag on the wire; changed and failed are independent.
type Counters struct {
	Changed     int `json:"changed"`
	Failed      int `json:"failed"`
	Unreachable int `json:"unreachable"`
}

// Validate checks that every counter is a 0/1 flag.
func (c Counters) Validate() error {
	for _, v := range []struct {
		name  string
		value int
	}{
		{"changed", c.Changed},
		{"failed", c.Failed},
		{"unreachable", c.Unreachable},
	} {
		if v.value != 0 && v.value != 1 {
			return fmt.Errorf("counter %q must be 0 or 1, got %d", v.name, v.value)
		}
	}
	return nil
}

// Stats converts the wire counters into the pipeline's boolean form.
func (c Counters) Stats() run.TargetStats {
	return run.TargetStats{
		Changed:     c.Changed != 0,
		Failed:      c.Failed != 0,
		Unreachable: c.Unreachable != 0,
	}
}

// Document is the structured result every executor emits exactly once.
type Document struct {
	Stats map[string]Counters `json:"stats"`
}

// New builds a single-target document from normalized stats.
func New(target string, st run.TargetStats) Document {
	c := Counters{}
	if st.Changed {
		c.Changed = 1
	}
	if st.Failed {
		c.Failed = 1
	}
	if st.Unreachable {
		c.Unreachable = 1
	}
	return Document{Stats: map[string]Counters{target: c}}
}

// Validate checks the document holds at least one target with 0/1 counters.
func (d Document) Validate() error {
	if len(d.Stats) == 0 {
		return fmt.Errorf("stats document has no targets")
	}
	for target, c := range d.Stats {
		if target == "" {
			return fmt.Errorf("stats document has an empty target key")
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("target %q: %w", target, err)
		}
	}
	return nil
}

// PerTarget converts the document into normalized per-target stats.
func (d Document) PerTarget() map[string]run.TargetStats {
	out := make(map[string]run.TargetStats, len(d.Stats))
	for target, c := range d.Stats {
		out[target] = c.Stats()
	}
	return out
}

// ExitCode returns the exit status the adapter contract mandates for this
// document: 0 when no target failed, 1 otherwise.
func (d Document) ExitCode() int {
	for _, c := range d.Stats {
		if c.Failed != 0 || c.Unreachable != 0 {
			return 1
		}
	}
	return 0
}

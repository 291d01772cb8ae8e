package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/proofrun/proofrun/pkg/run"
)

// Emit writes the document to w exactly once, newline-terminated. Adapters
// call this as their final act before exiting.
func Emit(w io.Writer, d Document) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("refusing to emit invalid stats document: %w", err)
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal stats document: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write stats document: %w", err)
	}
	return nil
}

// Parse decodes data as a strict stats document.
func Parse(data []byte) (Document, error) {
	var d Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&d); err != nil {
		return Document{}, fmt.Errorf("failed to unmarshal stats document: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Document{}, err
	}
	return d, nil
}

// engineCounters mirrors the per-host recap of a configuration-management
// engine's JSON callback. Counters are unbounded task counts there, and the
// failure key differs from the adapter contract.
type engineCounters struct {
	OK          int `json:"ok"`
	Changed     int `json:"changed"`
	Failed      int `json:"failed"`
	Failures    int `json:"failures"`
	Unreachable int `json:"unreachable"`
	Skipped     int `json:"skipped"`
	Rescued     int `json:"rescued"`
	Ignored     int `json:"ignored"`
}

func (c engineCounters) stats() run.TargetStats {
	return run.TargetStats{
		Changed:     c.Changed > 0,
		Failed:      c.Failed > 0 || c.Failures > 0,
		Unreachable: c.Unreachable > 0,
	}
}

type engineRecap struct {
	Stats map[string]engineCounters `json:"stats"`
}

// Normalize extracts per-target stats from raw executor output. It accepts
// both the exact adapter stats document and an engine JSON callback whose
// top-level "stats" object maps hosts to task counters. The last parseable
// stats object in the output wins, matching the one-document-per-invocation
// contract.
func Normalize(output []byte) (map[string]run.TargetStats, error) {
	// Fast path: the whole output is one stats-bearing JSON document.
	if stats, ok := tryRecap(bytes.TrimSpace(output)); ok {
		return stats, nil
	}

	// Otherwise the stream mixes progress lines, warnings, and the recap,
	// and engine callbacks pretty-print the recap across many lines. Try a
	// decode at every line-leading brace; the decoder consumes a complete
	// JSON value regardless of line breaks, so a successful decode also
	// tells us where to resume.
	var (
		found bool
		stats map[string]run.TargetStats
	)
	for offset := 0; offset < len(output); {
		rest := output[offset:]
		trimmed := bytes.TrimLeft(rest, " \t")
		if len(trimmed) == 0 || trimmed[0] != '{' {
			offset = nextLine(output, offset)
			continue
		}
		start := offset + len(rest) - len(trimmed)

		var recap engineRecap
		dec := json.NewDecoder(bytes.NewReader(output[start:]))
		if err := dec.Decode(&recap); err != nil {
			offset = nextLine(output, offset)
			continue
		}
		if s, ok := recapStats(recap); ok {
			stats = s
			found = true
		}
		offset = start + int(dec.InputOffset())
	}
	if !found {
		return nil, fmt.Errorf("no stats document found in executor output")
	}
	return stats, nil
}

// nextLine returns the offset just past the line containing offset.
func nextLine(data []byte, offset int) int {
	if i := bytes.IndexByte(data[offset:], '\n'); i >= 0 {
		return offset + i + 1
	}
	return len(data)
}

// tryRecap attempts to decode data as a stats-bearing JSON object.
func tryRecap(data []byte) (map[string]run.TargetStats, bool) {
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}
	var recap engineRecap
	if err := json.Unmarshal(data, &recap); err != nil {
		return nil, false
	}
	return recapStats(recap)
}

// recapStats converts a decoded recap into contract stats. An object
// without a populated stats map is not a recap.
func recapStats(recap engineRecap) (map[string]run.TargetStats, bool) {
	if len(recap.Stats) == 0 {
		return nil, false
	}
	out := make(map[string]run.TargetStats, len(recap.Stats))
	for target, c := range recap.Stats {
		if target == "" {
			return nil, false
		}
		out[target] = c.stats()
	}
	return out, true
}

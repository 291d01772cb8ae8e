// Package runctx owns per-run identity and the run directory lifecycle.
// Every component receives the RunContext as an explicit value; there is no
// process-wide run state.
package runctx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proofrun/proofrun/pkg/run"
)

// Fixed names inside a run directory. The layout is a contract:
// run_<id>/{project/<artifact-files>, logs/<NN>_<stage>.log, bundle.zip}.
const (
	ProjectDirName = "project"
	LogsDirName    = "logs"
	BundleName     = "bundle.zip"
	SummaryName    = "summary.json"
	JournalName    = "events.db"
	InventoryName  = "inventory.ini"
	runDirPrefix   = "run_"
	idSuffixLength = 6
	idTimeLayout   = "20060102_150405"
)

// RunContext identifies one run and owns its directory tree. The directory
// is created at run start and left behind for external garbage collection;
// this pipeline never deletes it.
type RunContext struct {
	// ID is the run identity: a second-resolution timestamp plus a random
	// hex suffix, collision-resistant across concurrent runs.
	ID string `json:"id"`

	// WorkDir is the absolute path of the run directory.
	WorkDir string `json:"work_dir"`

	// CreatedAt is when the run directory was allocated.
	CreatedAt time.Time `json:"created_at"`
}

// NewID generates a fresh run identity.
func NewID() string {
	now := time.Now()
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:idSuffixLength]
	return now.Format(idTimeLayout) + "-" + suffix
}

// New allocates a run directory under baseDir, including the project and
// logs subdirectories.
func New(baseDir string) (*RunContext, error) {
	return newWithID(baseDir, NewID())
}

func newWithID(baseDir, id string) (*RunContext, error) {
	workDir, err := filepath.Abs(filepath.Join(baseDir, runDirPrefix+id))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run directory: %w", err)
	}

	rc := &RunContext{
		ID:        id,
		WorkDir:   workDir,
		CreatedAt: time.Now(),
	}
	for _, dir := range []string{workDir, rc.ProjectDir(), rc.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
		}
	}
	return rc, nil
}

// Open attaches to an existing run directory, e.g. for re-bundling.
func Open(workDir string) (*RunContext, error) {
	info, err := os.Stat(workDir)
	if err != nil {
		return nil, fmt.Errorf("run directory %s: %w", workDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("run directory %s is not a directory", workDir)
	}

	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run directory: %w", err)
	}
	id := strings.TrimPrefix(filepath.Base(abs), runDirPrefix)
	return &RunContext{ID: id, WorkDir: abs, CreatedAt: info.ModTime()}, nil
}

// ProjectDir is where artifacts are persisted.
func (rc *RunContext) ProjectDir() string {
	return filepath.Join(rc.WorkDir, ProjectDirName)
}

// LogsDir is where per-stage logs are written.
func (rc *RunContext) LogsDir() string {
	return filepath.Join(rc.WorkDir, LogsDirName)
}

// LogPath returns the log file path for a stage, e.g. logs/01_syntax.log.
func (rc *RunContext) LogPath(stage run.Stage) string {
	return filepath.Join(rc.LogsDir(), stage.LogName())
}

// BundlePath is the deterministic location of the evidence archive.
func (rc *RunContext) BundlePath() string {
	return filepath.Join(rc.WorkDir, BundleName)
}

// SummaryPath is where the serialized run summary lives.
func (rc *RunContext) SummaryPath() string {
	return filepath.Join(rc.WorkDir, SummaryName)
}

// JournalPath is where the per-run event journal database lives.
func (rc *RunContext) JournalPath() string {
	return filepath.Join(rc.WorkDir, JournalName)
}

// InventoryPath is where a synthesized inventory file is written.
func (rc *RunContext) InventoryPath() string {
	return filepath.Join(rc.WorkDir, InventoryName)
}

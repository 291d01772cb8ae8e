// Package bundle archives one run's evidence (artifact, stage logs,
// summary) into a single compressed file, and optionally ships it to an
// object store.
package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// Bundler archives run directories.
type Bundler struct {
	logger *telemetry.Logger
}

// NewBundler creates a Bundler.
func NewBundler(logger *telemetry.Logger) *Bundler {
	return &Bundler{logger: logger.NewComponentLogger("bundler")}
}

// Create archives every file under runDir into a zip at bundlePath.
// The bundle itself is excluded when it lives inside runDir. A failure
// never removes anything already written — the per-stage logs stay
// inspectable in place.
func (b *Bundler) Create(runDir, bundlePath string) error {
	info, err := os.Stat(runDir)
	if err != nil {
		return run.NewBundlingError("run directory is not readable", err)
	}
	if !info.IsDir() {
		return run.NewBundlingError(fmt.Sprintf("%s is not a directory", runDir), nil)
	}

	// Write to a temporary name first so a torn archive never sits at
	// the bundle path.
	tmp, err := os.CreateTemp(filepath.Dir(bundlePath), ".bundle-*.zip")
	if err != nil {
		return run.NewBundlingError("cannot create archive", err)
	}
	tmpName := tmp.Name()

	if err := b.writeArchive(tmp, runDir, bundlePath); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return run.NewBundlingError("cannot finalize archive", err)
	}
	if err := os.Rename(tmpName, bundlePath); err != nil {
		os.Remove(tmpName)
		return run.NewBundlingError("cannot place archive", err)
	}

	b.logger.WithField("bundle", bundlePath).Info("run bundle written")
	return nil
}

// writeArchive streams runDir into w as a zip.
func (b *Bundler) writeArchive(w io.Writer, runDir, bundlePath string) error {
	zw := zip.NewWriter(w)

	absBundle, _ := filepath.Abs(bundlePath)
	walkErr := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absBundle {
			return nil
		}
		if strings.HasPrefix(filepath.Base(path), ".bundle-") {
			return nil
		}

		rel, err := filepath.Rel(runDir, path)
		if err != nil {
			return err
		}

		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, src)
		src.Close()
		return err
	})
	if walkErr != nil {
		zw.Close()
		return run.NewBundlingError("cannot archive run directory", walkErr)
	}

	if err := zw.Close(); err != nil {
		return run.NewBundlingError("cannot finalize archive", err)
	}
	return nil
}

// List returns the entry names inside a bundle, sorted as stored.
func List(bundlePath string) ([]string, error) {
	zr, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, run.NewBundlingError("cannot open bundle", err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/proofrun/proofrun/pkg/telemetry"
)

// Loader reads gate rules from .rego and .json files.
type Loader struct {
	logger  *telemetry.Logger
	cache   map[string]*Rule
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a rule loader.
func NewLoader(logger *telemetry.Logger) *Loader {
	return &Loader{
		logger: logger.NewComponentLogger("rule-loader"),
		cache:  make(map[string]*Rule),
	}
}

// LoadFromPaths loads rules from files or directories.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Rule, error) {
	var all []Rule
	for _, path := range paths {
		rules, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, rules...)
	}
	return all, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	rule, err := l.loadFromFile(path)
	if err != nil {
		return nil, err
	}
	return []Rule{*rule}, nil
}

// loadFromDirectory loads every rule file under dirPath. Unreadable
// files are skipped with a warning so one bad file cannot take the
// whole rule set down.
func (l *Loader) loadFromDirectory(_ context.Context, dirPath string) ([]Rule, error) {
	var rules []Rule

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".rego") && !strings.HasSuffix(path, ".json") {
			return nil
		}

		rule, err := l.loadFromFile(path)
		if err != nil {
			l.logger.WithField("path", path).WithError(err).
				Warn("failed to load rule file")
			return nil
		}
		rules = append(rules, *rule)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return rules, nil
}

func (l *Loader) loadFromFile(path string) (*Rule, error) {
	l.mu.RLock()
	if cached, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var rule *Rule
	switch {
	case strings.HasSuffix(path, ".rego"):
		rule = l.parseRegoFile(path, data)
	case strings.HasSuffix(path, ".json"):
		rule, err = parseJSONRule(data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported rule file type: %s", path)
	}

	l.mu.Lock()
	l.cache[path] = rule
	l.mu.Unlock()
	return rule, nil
}

// parseRegoFile wraps raw Rego in a Rule, pulling the description from
// leading comments.
func (l *Loader) parseRegoFile(path string, data []byte) *Rule {
	name := strings.TrimSuffix(filepath.Base(path), ".rego")
	return &Rule{
		Name:        name,
		Description: leadingComment(string(data)),
		Rego:        string(data),
		Severity:    SeverityWarning,
		Enabled:     true,
		Metadata:    map[string]interface{}{"source": path},
	}
}

func parseJSONRule(data []byte) (*Rule, error) {
	var rule Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("failed to parse JSON rule: %w", err)
	}
	if rule.Severity == "" {
		rule.Severity = SeverityWarning
	}
	return &rule, nil
}

// leadingComment collects the comment block at the top of a Rego file.
func leadingComment(content string) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			if comment != "" {
				if b.Len() > 0 {
					b.WriteString(" ")
				}
				b.WriteString(comment)
			}
		} else if trimmed != "" {
			break
		}
	}
	return b.String()
}

// Watch reloads rules when files under the given paths change. Reloads
// are debounced; reloadFn receives the full rule set each time.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Rule) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	l.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.WithField("path", path).WithError(err).
				Warn("failed to stat path for watching")
			continue
		}
		if info.IsDir() {
			if err := l.watchDirectory(path); err != nil {
				l.logger.WithField("path", path).WithError(err).
					Warn("failed to watch directory")
			}
		} else if err := watcher.Add(path); err != nil {
			l.logger.WithField("path", path).WithError(err).
				Warn("failed to watch file")
		}
	}

	go l.processEvents(ctx, paths, reloadFn)
	return nil
}

func (l *Loader) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

func (l *Loader) processEvents(ctx context.Context, paths []string, reloadFn func([]Rule) error) {
	var reloadTimer *time.Timer
	const reloadDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if l.watcher != nil {
				_ = l.watcher.Close()
			}
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".rego") && !strings.HasSuffix(event.Name, ".json") {
				continue
			}

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				rules, err := l.LoadFromPaths(ctx, paths)
				if err != nil {
					l.logger.WithError(err).Error("failed to reload rules")
					return
				}
				if err := reloadFn(rules); err != nil {
					l.logger.WithError(err).Error("failed to apply reloaded rules")
				}
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.WithError(err).Error("watcher error")
		}
	}
}

// StopWatching closes the file watcher.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

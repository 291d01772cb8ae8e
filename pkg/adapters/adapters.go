// Package adapters implements direct executors: isolated, single-purpose
// operations against one non-configuration-managed resource kind. Every
// adapter takes two positional inputs, a resource identity and a resource
// specification, and honors the stats contract: one document, per logical
// control point, changed and failed independent, exit 0 only when nothing
// failed. Missing or invalid inputs report failed=1 without attempting the
// operation.
//
// Adapter state lives in a file-backed control-point store so that two
// invocations in separate processes observe each other, which is what makes
// the idempotency re-check meaningful.
package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/proofrun/proofrun/pkg/contract"
	"github.com/proofrun/proofrun/pkg/run"
)

// Adapter performs one imperative operation against one resource kind.
type Adapter interface {
	// Name is the adapter's operation identifier, e.g. "network.ensure".
	Name() string

	// Invoke runs the operation. In run.ModeValidate and run.ModeCheck no
	// state may be mutated. The returned document always carries exactly
	// one control-point entry; errors are reserved for infrastructure
	// failures (state store unreadable), not operation outcomes.
	Invoke(ctx context.Context, mode run.Mode, name, spec string) (contract.Document, error)
}

// Registry holds the available adapters by operation name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// DefaultRegistry returns a registry with the built-in adapters wired to
// the given state store.
func DefaultRegistry(store *StateStore) *Registry {
	r := NewRegistry()
	// Registration of built-ins cannot collide.
	_ = r.Register(NewNetworkAdapter(store))
	_ = r.Register(NewManifestAdapter(store))
	_ = r.Register(NewTemplateAdapter(store))
	return r
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("adapter %s already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get retrieves an adapter by operation name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.adapters[name]
	if !exists {
		return nil, fmt.Errorf("adapter %s not found", name)
	}
	return a, nil
}

// List returns the registered operation names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// failure builds the stats document for a refused or failed operation.
func failure() contract.Document {
	return contract.New(contract.ControlPoint, run.TargetStats{Failed: true})
}

// outcome builds the stats document for a completed operation.
func outcome(changed bool) contract.Document {
	return contract.New(contract.ControlPoint, run.TargetStats{Changed: changed})
}

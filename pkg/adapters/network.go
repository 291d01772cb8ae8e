package adapters

import (
	"context"
	"net"
	"strings"

	"github.com/proofrun/proofrun/pkg/contract"
	"github.com/proofrun/proofrun/pkg/run"
)

const networkKind = "network"

// NetworkAdapter ensures a named network with a given address range exists
// at the control point. Re-ensuring an identical network is a no-op, which
// is what the idempotency stage verifies.
type NetworkAdapter struct {
	store *StateStore
}

// NewNetworkAdapter creates the network.ensure adapter.
func NewNetworkAdapter(store *StateStore) *NetworkAdapter {
	return &NetworkAdapter{store: store}
}

// Name implements Adapter.
func (a *NetworkAdapter) Name() string {
	return "network.ensure"
}

// Invoke ensures the network exists with the requested address range.
func (a *NetworkAdapter) Invoke(ctx context.Context, mode run.Mode, name, spec string) (contract.Document, error) {
	name = strings.TrimSpace(name)
	cidr := strings.TrimSpace(spec)

	// Missing or invalid inputs fail immediately, before any operation.
	if name == "" || cidr == "" {
		return failure(), nil
	}
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return failure(), nil
	}
	if mode == run.ModeValidate {
		return outcome(false), nil
	}

	current, exists, err := a.store.Get(networkKind, name)
	if err != nil {
		return failure(), err
	}
	if exists && current == cidr {
		return outcome(false), nil
	}

	// The network is absent or carries a different range: this is a change.
	if mode == run.ModeCheck {
		return outcome(true), nil
	}
	if err := a.store.Put(networkKind, name, cidr); err != nil {
		return failure(), err
	}
	return outcome(true), nil
}

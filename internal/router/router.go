// Package router resolves logical destination chain ids to transport-level
// chain names and counterpart contract addresses.
package router

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrArrayLengthMismatch rejects a configuration call whose parallel
	// arrays disagree in length. Nothing is applied in that case.
	ErrArrayLengthMismatch = errors.New("destination chain arrays must have the same length")

	// ErrUnknownDestinationChain is returned when a chain id has no
	// configured destination.
	ErrUnknownDestinationChain = errors.New("unknown destination chain")
)

// DestinationChain names the transport chain and the counterpart contract an
// attestation is delivered to.
type DestinationChain struct {
	Name string
	Addr common.Address
}

// Router is a single-writer chainID → destination map, mutated only through
// SetDestinationChains.
type Router struct {
	mu     sync.RWMutex
	chains map[uint64]DestinationChain
}

func New() *Router {
	return &Router{chains: make(map[uint64]DestinationChain)}
}

// SetDestinationChains replaces or augments the mapping entry-by-entry.
// All three arrays must have equal length; a mismatch rejects the whole call
// with no partial application. Last write wins per id.
func (r *Router) SetDestinationChains(ids []uint64, names []string, addrs []common.Address) error {
	if len(ids) != len(names) || len(ids) != len(addrs) {
		return ErrArrayLengthMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range ids {
		r.chains[id] = DestinationChain{Name: names[i], Addr: addrs[i]}
	}
	return nil
}

// Resolve looks up the destination for a chain id.
func (r *Router) Resolve(chainID uint64) (DestinationChain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dc, ok := r.chains[chainID]
	if !ok {
		return DestinationChain{}, ErrUnknownDestinationChain
	}
	return dc, nil
}

// Known reports whether a chain id is configured.
func (r *Router) Known(chainID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chains[chainID]
	return ok
}

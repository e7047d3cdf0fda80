// Package registry is the authoritative per-piece deal lifecycle store on the
// storage-ledger side of the relay.
package registry

import (
	"sync"

	"github.com/filecoin-project/go-state-types/abi"
)

// PieceStatus is the lifecycle state of a piece commitment. Transitions are
// monotonic: a piece never moves backwards, and nothing outside validated
// deal notifications advances it.
type PieceStatus uint8

const (
	StatusUndefined PieceStatus = iota
	StatusDealPublished
	StatusDealActivated
	StatusDealTerminated // reserved, not yet driven by any notification
)

func (s PieceStatus) String() string {
	switch s {
	case StatusUndefined:
		return "UNDEFINED"
	case StatusDealPublished:
		return "DEAL_PUBLISHED"
	case StatusDealActivated:
		return "DEAL_ACTIVATED"
	case StatusDealTerminated:
		return "DEAL_TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Entry is what the registry knows about a piece.
type Entry struct {
	DealID abi.DealID
	Status PieceStatus
}

// Registry maps piece commitments to deal ids and lifecycle status. It is a
// single-writer structure owned by the deal client; only Record mutates it.
type Registry struct {
	mu     sync.RWMutex
	pieces map[[32]byte]Entry
}

func New() *Registry {
	return &Registry{pieces: make(map[[32]byte]Entry)}
}

// Record applies a validated notification. A fresh commitment is stored with
// its deal id and the given status. A re-notification only advances status,
// never regresses it, and never rewrites the deal id bound on first sight.
// It returns the entry after the update.
func (r *Registry) Record(commP [32]byte, dealID abi.DealID, status PieceStatus) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pieces[commP]
	if !ok {
		e = Entry{DealID: dealID, Status: status}
		r.pieces[commP] = e
		return e
	}
	if status > e.Status {
		e.Status = status
		r.pieces[commP] = e
	}
	return e
}

// Get returns the entry for a piece, and whether it is known.
func (r *Registry) Get(commP [32]byte) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.pieces[commP]
	return e, ok
}

// Status returns the lifecycle status for a piece; unknown pieces are
// StatusUndefined.
func (r *Registry) Status(commP [32]byte) PieceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pieces[commP].Status
}

// Len reports how many pieces the registry tracks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pieces)
}

// Package gasfunds tracks per-provider prepaid balances used to pay for
// cross-chain attestation delivery.
package gasfunds

import (
	"errors"
	"math/big"
	"sync"
)

var (
	// ErrValueMismatch is returned when a credit's declared amount does not
	// equal the native value attached to the call. The ledger never trusts a
	// caller-supplied amount on its own.
	ErrValueMismatch = errors.New("credit amount does not match attached value")

	// ErrNegativeAmount rejects negative credits and debits outright.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Ledger is a single-writer balance map scoped to one relay instance. All
// mutation goes through Credit and Debit; balances can never go negative.
//
// Debit policy is advisory (cap-and-continue): a debit larger than the
// available balance drains the balance to zero and reports what was actually
// charged, rather than failing the call. Dispatch is never blocked on
// insufficient funds; covering the shortfall is the transport caller's
// problem.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]*big.Int
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]*big.Int)}
}

// Credit adds amount to the provider's balance. value is the native currency
// attached by the caller and must equal amount.
func (l *Ledger) Credit(provider string, amount, value *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Cmp(value) != 0 {
		return ErrValueMismatch
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[provider]
	if !ok {
		bal = new(big.Int)
		l.balances[provider] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// Debit charges up to amount against the provider's balance and returns the
// amount actually charged (min(amount, balance), never negative).
func (l *Ledger) Debit(provider string, amount *big.Int) (*big.Int, error) {
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[provider]
	if !ok || bal.Sign() == 0 {
		return new(big.Int), nil
	}

	charged := new(big.Int).Set(amount)
	if charged.Cmp(bal) > 0 {
		charged.Set(bal)
	}
	bal.Sub(bal, charged)
	return charged, nil
}

// Balance returns the provider's current prepaid balance.
func (l *Ledger) Balance(provider string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[provider]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

package gasfunds

import (
	"errors"
	"math/big"
	"testing"
)

const provider = "f01000"

// ── Credit ────────────────────────────────────────────────────────────────────

func TestCredit_IncreasesBalance(t *testing.T) {
	l := NewLedger()

	if err := l.Credit(provider, big.NewInt(100), big.NewInt(100)); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if got := l.Balance(provider); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("balance: got %s want 100", got)
	}

	if err := l.Credit(provider, big.NewInt(50), big.NewInt(50)); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if got := l.Balance(provider); got.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("balance after second credit: got %s want 150", got)
	}
}

func TestCredit_ValueMismatchRejected(t *testing.T) {
	l := NewLedger()

	err := l.Credit(provider, big.NewInt(100), big.NewInt(99))
	if !errors.Is(err, ErrValueMismatch) {
		t.Fatalf("expected ErrValueMismatch, got %v", err)
	}
	if got := l.Balance(provider); got.Sign() != 0 {
		t.Errorf("balance must be untouched after rejected credit, got %s", got)
	}
}

func TestCredit_NegativeRejected(t *testing.T) {
	l := NewLedger()
	err := l.Credit(provider, big.NewInt(-5), big.NewInt(-5))
	if !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestCredit_DoesNotMoveBetweenProviders(t *testing.T) {
	l := NewLedger()
	l.Credit("f01000", big.NewInt(100), big.NewInt(100)) //nolint:errcheck
	l.Credit("f02000", big.NewInt(30), big.NewInt(30))   //nolint:errcheck

	if got := l.Balance("f01000"); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("f01000 balance: got %s want 100", got)
	}
	if got := l.Balance("f02000"); got.Cmp(big.NewInt(30)) != 0 {
		t.Errorf("f02000 balance: got %s want 30", got)
	}
}

// ── Debit ─────────────────────────────────────────────────────────────────────

func TestDebit_WithinBalance(t *testing.T) {
	l := NewLedger()
	l.Credit(provider, big.NewInt(100), big.NewInt(100)) //nolint:errcheck

	charged, err := l.Debit(provider, big.NewInt(40))
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if charged.Cmp(big.NewInt(40)) != 0 {
		t.Errorf("charged: got %s want 40", charged)
	}
	if got := l.Balance(provider); got.Cmp(big.NewInt(60)) != 0 {
		t.Errorf("balance: got %s want 60", got)
	}
}

func TestDebit_CapsAtAvailable(t *testing.T) {
	l := NewLedger()
	l.Credit(provider, big.NewInt(100), big.NewInt(100)) //nolint:errcheck

	charged, err := l.Debit(provider, big.NewInt(250))
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if charged.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("charged: got %s want 100 (capped)", charged)
	}
	if got := l.Balance(provider); got.Sign() != 0 {
		t.Errorf("balance must floor at zero, got %s", got)
	}
}

func TestDebit_UnknownProvider(t *testing.T) {
	l := NewLedger()

	charged, err := l.Debit("f09999", big.NewInt(10))
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if charged.Sign() != 0 {
		t.Errorf("charged from empty balance: got %s want 0", charged)
	}
	if got := l.Balance("f09999"); got.Sign() != 0 {
		t.Errorf("balance: got %s want 0", got)
	}
}

func TestDebit_NeverNegative(t *testing.T) {
	l := NewLedger()
	l.Credit(provider, big.NewInt(7), big.NewInt(7)) //nolint:errcheck

	for i := 0; i < 5; i++ {
		if _, err := l.Debit(provider, big.NewInt(3)); err != nil {
			t.Fatalf("Debit #%d: %v", i, err)
		}
		if l.Balance(provider).Sign() < 0 {
			t.Fatalf("balance went negative after debit #%d", i)
		}
	}
	if got := l.Balance(provider); got.Sign() != 0 {
		t.Errorf("balance after draining: got %s want 0", got)
	}
}

func TestDebit_NegativeRejected(t *testing.T) {
	l := NewLedger()
	if _, err := l.Debit(provider, big.NewInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

// Balance must return a copy, not a live pointer into the ledger.
func TestBalance_IsACopy(t *testing.T) {
	l := NewLedger()
	l.Credit(provider, big.NewInt(100), big.NewInt(100)) //nolint:errcheck

	got := l.Balance(provider)
	got.SetInt64(0)

	if l.Balance(provider).Cmp(big.NewInt(100)) != 0 {
		t.Error("mutating a returned balance leaked into the ledger")
	}
}

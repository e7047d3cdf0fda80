package router

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	addrA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestSetDestinationChains_AndResolve(t *testing.T) {
	r := New()

	err := r.SetDestinationChains(
		[]uint64{1, 2},
		[]string{"ethereum", "polygon"},
		[]common.Address{addrA, addrB},
	)
	if err != nil {
		t.Fatalf("SetDestinationChains: %v", err)
	}

	dc, err := r.Resolve(1)
	if err != nil {
		t.Fatalf("Resolve(1): %v", err)
	}
	if dc.Name != "ethereum" || dc.Addr != addrA {
		t.Errorf("Resolve(1): got %+v", dc)
	}

	dc, err = r.Resolve(2)
	if err != nil {
		t.Fatalf("Resolve(2): %v", err)
	}
	if dc.Name != "polygon" || dc.Addr != addrB {
		t.Errorf("Resolve(2): got %+v", dc)
	}
}

func TestSetDestinationChains_LengthMismatch(t *testing.T) {
	r := New()

	cases := []struct {
		name  string
		ids   []uint64
		names []string
		addrs []common.Address
	}{
		{"short names", []uint64{1, 2}, []string{"a"}, []common.Address{addrA, addrB}},
		{"short addrs", []uint64{1, 2}, []string{"a", "b"}, []common.Address{addrA}},
		{"short ids", []uint64{1}, []string{"a", "b"}, []common.Address{addrA, addrB}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.SetDestinationChains(tc.ids, tc.names, tc.addrs)
			if !errors.Is(err, ErrArrayLengthMismatch) {
				t.Fatalf("expected ErrArrayLengthMismatch, got %v", err)
			}
		})
	}

	// Router must be wholly unchanged after rejected calls.
	if r.Known(1) || r.Known(2) {
		t.Error("rejected configuration leaked into the router")
	}
}

func TestResolve_Unknown(t *testing.T) {
	r := New()
	_, err := r.Resolve(99)
	if !errors.Is(err, ErrUnknownDestinationChain) {
		t.Fatalf("expected ErrUnknownDestinationChain, got %v", err)
	}
}

func TestSetDestinationChains_LastWriteWins(t *testing.T) {
	r := New()

	r.SetDestinationChains([]uint64{1}, []string{"ethereum"}, []common.Address{addrA}) //nolint:errcheck
	r.SetDestinationChains([]uint64{1}, []string{"linea"}, []common.Address{addrB})    //nolint:errcheck

	dc, err := r.Resolve(1)
	if err != nil {
		t.Fatal(err)
	}
	if dc.Name != "linea" || dc.Addr != addrB {
		t.Errorf("expected last write to win, got %+v", dc)
	}
}

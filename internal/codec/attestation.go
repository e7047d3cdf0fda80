package codec

import (
	"errors"
	"fmt"
	"math/big"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrMalformedAttestation is wrapped by every attestation decode failure.
var ErrMalformedAttestation = errors.New("malformed attestation payload")

// AuthenticateAck is the return value the market actor expects from the
// AuthenticateMessage method. The byte is fixed by the contract the relay
// replaces; it is returned verbatim regardless of params.
var AuthenticateAck = []byte{0x51}

// Attestation asserts, on the source ledger, that a piece reached a given
// deal status on the storage ledger. It is ABI-encoded for transport as
// tuple(bytes commP, int64 duration, uint64 FILID, uint256 status).
type Attestation struct {
	CommP    []byte
	Duration int64
	FILID    uint64
	Status   uint8
}

// attestationTuple is the ABI view of Attestation (status widens to uint256
// on the wire).
type attestationTuple struct {
	CommP    []byte
	Duration int64
	FILID    uint64
	Status   *big.Int
}

var attestationArgs = mustAttestationArgs()

func mustAttestationArgs() gethabi.Arguments {
	ty, err := gethabi.NewType("tuple", "", []gethabi.ArgumentMarshaling{
		{Name: "commP", Type: "bytes"},
		{Name: "duration", Type: "int64"},
		{Name: "FILID", Type: "uint64"},
		{Name: "status", Type: "uint256"},
	})
	if err != nil {
		panic(fmt.Sprintf("build attestation abi type: %v", err))
	}
	return gethabi.Arguments{{Name: "attestation", Type: ty}}
}

// EncodeAttestation packs an attestation into its cross-chain wire form.
func EncodeAttestation(a *Attestation) ([]byte, error) {
	packed, err := attestationArgs.Pack(attestationTuple{
		CommP:    a.CommP,
		Duration: a.Duration,
		FILID:    a.FILID,
		Status:   new(big.Int).SetUint64(uint64(a.Status)),
	})
	if err != nil {
		return nil, fmt.Errorf("pack attestation: %w", err)
	}
	return packed, nil
}

// DecodeAttestation unpacks a wire-form attestation. Any structural problem,
// including a status outside uint8 range, fails with ErrMalformedAttestation.
func DecodeAttestation(raw []byte) (*Attestation, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedAttestation)
	}
	vals, err := attestationArgs.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedAttestation, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("%w: expected a single tuple", ErrMalformedAttestation)
	}
	tup := *gethabi.ConvertType(vals[0], new(attestationTuple)).(*attestationTuple)
	if !tup.Status.IsUint64() || tup.Status.Uint64() > 255 {
		return nil, fmt.Errorf("%w: status %s out of range", ErrMalformedAttestation, tup.Status)
	}
	return &Attestation{
		CommP:    tup.CommP,
		Duration: tup.Duration,
		FILID:    tup.FILID,
		Status:   uint8(tup.Status.Uint64()),
	}, nil
}

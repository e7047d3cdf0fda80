// Package codec implements the wire formats crossing the relay's trust
// boundary: the CBOR deal-notification params emitted by the storage market
// actor, and the ABI-encoded attestation tuple carried over the bridge.
//
// Everything decoded here is attacker-controlled input. Decode failures are
// always explicit (ErrMalformedPayload / ErrMalformedAttestation) and never
// leave partially-populated results in the caller's hands.
package codec

import (
	"bytes"
	"errors"
	"io"
	"math/big"

	"github.com/filecoin-project/go-state-types/abi"
	markettypes "github.com/filecoin-project/go-state-types/builtin/v9/market"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

// ErrMalformedPayload is wrapped by every deal-notification decode failure,
// so callers can branch on decode errors without parsing messages.
var ErrMalformedPayload = errors.New("malformed deal notification payload")

// DealNotification is the decoded form of the params the market actor sends
// on MarketNotifyDeal: an outer 2-element CBOR array holding the serialized
// deal proposal and the on-chain deal id.
type DealNotification struct {
	Proposal markettypes.DealProposal
	DealID   abi.DealID
}

// DecodeDealNotification parses raw market-actor notification params.
// The outer arity is validated before any field is read, and every inner
// length is bounds-checked against the remaining buffer.
func DecodeDealNotification(raw []byte) (*DealNotification, error) {
	if len(raw) == 0 {
		return nil, xerrors.Errorf("%w: empty params", ErrMalformedPayload)
	}

	cr := cbg.NewCborReader(bytes.NewReader(raw))

	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return nil, xerrors.Errorf("%w: read outer header: %s", ErrMalformedPayload, err)
	}
	if maj != cbg.MajArray {
		return nil, xerrors.Errorf("%w: outer value is not an array (major type %d)", ErrMalformedPayload, maj)
	}
	if extra != 2 {
		return nil, xerrors.Errorf("%w: outer array has %d elements, want 2", ErrMalformedPayload, extra)
	}

	// element 0: serialized deal proposal (byte string)
	maj, extra, err = cr.ReadHeader()
	if err != nil {
		return nil, xerrors.Errorf("%w: read proposal header: %s", ErrMalformedPayload, err)
	}
	if maj != cbg.MajByteString {
		return nil, xerrors.Errorf("%w: proposal field is not a byte string (major type %d)", ErrMalformedPayload, maj)
	}
	if extra > cbg.ByteArrayMaxLen {
		return nil, xerrors.Errorf("%w: proposal byte string too large (%d)", ErrMalformedPayload, extra)
	}
	if uint64(len(raw)) < extra {
		// Declared length exceeds everything we were handed; fail before
		// attempting the read.
		return nil, xerrors.Errorf("%w: proposal length %d exceeds buffer", ErrMalformedPayload, extra)
	}
	propRaw := make([]byte, extra)
	if _, err := io.ReadFull(cr, propRaw); err != nil {
		return nil, xerrors.Errorf("%w: proposal truncated: %s", ErrMalformedPayload, err)
	}

	var prop markettypes.DealProposal
	if err := prop.UnmarshalCBOR(bytes.NewReader(propRaw)); err != nil {
		return nil, xerrors.Errorf("%w: decode proposal: %s", ErrMalformedPayload, err)
	}

	// element 1: deal id (unsigned int)
	maj, extra, err = cr.ReadHeader()
	if err != nil {
		return nil, xerrors.Errorf("%w: read deal id: %s", ErrMalformedPayload, err)
	}
	if maj != cbg.MajUnsignedInt {
		return nil, xerrors.Errorf("%w: deal id is not an unsigned int (major type %d)", ErrMalformedPayload, maj)
	}

	return &DealNotification{
		Proposal: prop,
		DealID:   abi.DealID(extra),
	}, nil
}

// EncodeDealNotification is the inverse of DecodeDealNotification. The relay
// itself never produces notifications; this exists for tooling and tests.
func EncodeDealNotification(n *DealNotification) ([]byte, error) {
	var propBuf bytes.Buffer
	if err := n.Proposal.MarshalCBOR(&propBuf); err != nil {
		return nil, xerrors.Errorf("marshal proposal: %w", err)
	}

	var out bytes.Buffer
	cw := cbg.NewCborWriter(&out)
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, 2); err != nil {
		return nil, err
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajByteString, uint64(propBuf.Len())); err != nil {
		return nil, err
	}
	if _, err := cw.Write(propBuf.Bytes()); err != nil {
		return nil, err
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(n.DealID)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DestinationChainID extracts the logical destination chain id embedded in a
// proposal label. Clients encode the target chain as a 32-byte big-endian
// integer label; string labels and other lengths do not resolve.
func DestinationChainID(label markettypes.DealLabel) (uint64, error) {
	lb, err := label.ToBytes()
	if err != nil {
		return 0, xerrors.Errorf("label is not a byte label: %w", err)
	}
	if len(lb) != 32 {
		return 0, xerrors.Errorf("label length %d, want 32-byte chain id", len(lb))
	}
	id := new(big.Int).SetBytes(lb)
	if !id.IsUint64() {
		return 0, xerrors.Errorf("label chain id overflows uint64")
	}
	return id.Uint64(), nil
}

// EncodeChainIDLabel builds the byte label clients attach to proposals to
// route the attestation, mirroring DestinationChainID.
func EncodeChainIDLabel(chainID uint64) (markettypes.DealLabel, error) {
	var buf [32]byte
	new(big.Int).SetUint64(chainID).FillBytes(buf[:])
	return markettypes.NewLabelFromBytes(buf[:])
}

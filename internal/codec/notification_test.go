package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	filbig "github.com/filecoin-project/go-state-types/big"
	markettypes "github.com/filecoin-project/go-state-types/builtin/v9/market"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// ── helpers ───────────────────────────────────────────────────────────────────

var testCommP = [32]byte{
	0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
	0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
	0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
	0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
}

func testProposal(t *testing.T, destChainID uint64) markettypes.DealProposal {
	t.Helper()

	pieceCid, err := PieceCommitmentCID(testCommP)
	if err != nil {
		t.Fatalf("PieceCommitmentCID: %v", err)
	}
	label, err := EncodeChainIDLabel(destChainID)
	if err != nil {
		t.Fatalf("EncodeChainIDLabel: %v", err)
	}
	client, err := address.NewIDAddress(1001)
	if err != nil {
		t.Fatal(err)
	}
	provider, err := address.NewIDAddress(1000)
	if err != nil {
		t.Fatal(err)
	}

	return markettypes.DealProposal{
		PieceCID:             pieceCid,
		PieceSize:            abi.PaddedPieceSize(2048),
		VerifiedDeal:         false,
		Client:               client,
		Provider:             provider,
		Label:                label,
		StartEpoch:           520000,
		EndEpoch:             1555200,
		StoragePricePerEpoch: filbig.NewInt(100_000_000_000),
		ProviderCollateral:   filbig.Zero(),
		ClientCollateral:     filbig.Zero(),
	}
}

func encodeNotification(t *testing.T, dealID abi.DealID, destChainID uint64) []byte {
	t.Helper()
	raw, err := EncodeDealNotification(&DealNotification{
		Proposal: testProposal(t, destChainID),
		DealID:   dealID,
	})
	if err != nil {
		t.Fatalf("EncodeDealNotification: %v", err)
	}
	return raw
}

// ── DecodeDealNotification: happy path ────────────────────────────────────────

func TestDecodeDealNotification_Roundtrip(t *testing.T) {
	raw := encodeNotification(t, 42, 1)

	got, err := DecodeDealNotification(raw)
	if err != nil {
		t.Fatalf("DecodeDealNotification: %v", err)
	}
	if got.DealID != 42 {
		t.Errorf("DealID: got %d want 42", got.DealID)
	}
	if got.Proposal.PieceSize != 2048 {
		t.Errorf("PieceSize: got %d want 2048", got.Proposal.PieceSize)
	}
	if got.Proposal.StartEpoch != 520000 || got.Proposal.EndEpoch != 1555200 {
		t.Errorf("epochs: got [%d, %d]", got.Proposal.StartEpoch, got.Proposal.EndEpoch)
	}
	if got.Proposal.VerifiedDeal {
		t.Error("VerifiedDeal: got true want false")
	}

	commP, err := PieceCommitment(got.Proposal.PieceCID)
	if err != nil {
		t.Fatalf("PieceCommitment: %v", err)
	}
	if commP != testCommP {
		t.Errorf("commP mismatch: got %x", commP)
	}

	chainID, err := DestinationChainID(got.Proposal.Label)
	if err != nil {
		t.Fatalf("DestinationChainID: %v", err)
	}
	if chainID != 1 {
		t.Errorf("chain id: got %d want 1", chainID)
	}
}

// ── DecodeDealNotification: malformed input ───────────────────────────────────

func TestDecodeDealNotification_Malformed(t *testing.T) {
	valid := encodeNotification(t, 1, 1)

	cases := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"zero length", []byte{}},
		{"not an array", []byte{0x01}},
		{"text instead of array", []byte{0x61, 0x41}},
		{"wrong outer arity (3)", []byte{0x83}},
		{"wrong outer arity (1)", []byte{0x81}},
		{"proposal not a byte string", []byte{0x82, 0x01, 0x02}},
		{"declared length exceeds buffer", []byte{0x82, 0x58, 0xFF, 0x01, 0x02}},
		{"truncated header", valid[:1]},
		{"truncated proposal", valid[:len(valid)/2]},
		{"missing deal id", valid[:len(valid)-1]},
		{"garbage proposal bytes", []byte{0x82, 0x43, 0xDE, 0xAD, 0xBF, 0x01}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeDealNotification(tc.raw)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("error does not wrap ErrMalformedPayload: %v", err)
			}
		})
	}
}

func TestDecodeDealNotification_DealIDWrongType(t *testing.T) {
	// Outer array of 2 with a valid proposal but a text deal id.
	var propBuf bytes.Buffer
	prop := testProposal(t, 1)
	if err := prop.MarshalCBOR(&propBuf); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cw := cbg.NewCborWriter(&out)
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, 2); err != nil {
		t.Fatal(err)
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajByteString, uint64(propBuf.Len())); err != nil {
		t.Fatal(err)
	}
	if _, err := cw.Write(propBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, 1); err != nil {
		t.Fatal(err)
	}
	out.WriteByte('x')

	_, err := DecodeDealNotification(out.Bytes())
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for text deal id, got %v", err)
	}
}

// ── DestinationChainID ────────────────────────────────────────────────────────

func TestDestinationChainID_StringLabelRejected(t *testing.T) {
	label, err := markettypes.NewLabelFromString("deal-123")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DestinationChainID(label); err == nil {
		t.Fatal("string label must not resolve to a chain id")
	}
}

func TestDestinationChainID_ShortLabelRejected(t *testing.T) {
	label, err := markettypes.NewLabelFromBytes([]byte{0x12, 0x34})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DestinationChainID(label); err == nil {
		t.Fatal("2-byte label must not resolve to a chain id")
	}
}

func TestChainIDLabel_Roundtrip(t *testing.T) {
	for _, id := range []uint64{0, 1, 314159, 1<<63 + 7} {
		label, err := EncodeChainIDLabel(id)
		if err != nil {
			t.Fatalf("EncodeChainIDLabel(%d): %v", id, err)
		}
		got, err := DestinationChainID(label)
		if err != nil {
			t.Fatalf("DestinationChainID(%d): %v", id, err)
		}
		if got != id {
			t.Errorf("roundtrip: got %d want %d", got, id)
		}
	}
}

package codec

import (
	commcid "github.com/filecoin-project/go-fil-commcid"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// PieceCommitment extracts the raw 32-byte piece commitment from a PieceCID.
// This is the identity the registry and attestations are keyed on.
func PieceCommitment(c cid.Cid) ([32]byte, error) {
	var commP [32]byte
	raw, err := commcid.CIDToPieceCommitmentV1(c)
	if err != nil {
		return commP, xerrors.Errorf("cid is not a piece commitment: %w", err)
	}
	if len(raw) != 32 {
		return commP, xerrors.Errorf("piece commitment is %d bytes, want 32", len(raw))
	}
	copy(commP[:], raw)
	return commP, nil
}

// PieceCommitmentCID is the inverse of PieceCommitment.
func PieceCommitmentCID(commP [32]byte) (cid.Cid, error) {
	return commcid.PieceCommitmentV1ToCID(commP[:])
}

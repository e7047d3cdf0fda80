// Package onramp manages data offers on the source-chain side: clients escrow
// payment for a piece, and storage attestations arriving through the oracle
// are recorded against the matching offers.
package onramp

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/filozone/onramp-relay/internal/codec"
)

// Redis key templates
const (
	offerKeyFmt      = "onramp:offer:%d"       // %d = offer id
	offerIDCounter   = "onramp:offer:next_id"
	offersByCommPFmt = "onramp:offers:commp:%s" // %s = hex commP, set of offer ids
	proofKeyFmt      = "onramp:proof:%s"        // %s = hex commP
)

var (
	// ErrAlreadySet guards the one-shot oracle binding.
	ErrAlreadySet = errors.New("oracle already set")

	// ErrOfferNotFound marks a lookup of an unknown offer id.
	ErrOfferNotFound = errors.New("offer not found")
)

// Offer is a client's request to have a piece stored, with the payment
// escrowed up front.
type Offer struct {
	ID       uint64
	CommP    []byte
	Size     uint64
	Location string
	Amount   *big.Int
	Token    common.Address
	Client   common.Address
}

// Proof is a storage attestation recorded against a piece commitment.
type Proof struct {
	CommP    []byte
	Duration int64
	DealID   uint64
	Status   uint8
}

// TokenTransfer moves ERC-20 payment between the offering client and the
// escrow. TransferFrom pulls payment in; Transfer sends it back out.
type TokenTransfer interface {
	TransferFrom(ctx context.Context, token common.Address, from common.Address, amount *big.Int) error
	Transfer(ctx context.Context, token common.Address, to common.Address, amount *big.Int) error
}

// OnRamp persists offers in Redis and consumes attestations forwarded by the
// oracle. It implements oracle.Receiver.
type OnRamp struct {
	rdb      *redis.Client
	transfer TokenTransfer
	log      *zap.Logger

	mu        sync.Mutex
	oracle    string
	oracleSet bool
}

func New(rdb *redis.Client, transfer TokenTransfer, log *zap.Logger) *OnRamp {
	return &OnRamp{
		rdb:      rdb,
		transfer: transfer,
		log:      log,
	}
}

// SetOracle binds the oracle identity allowed to feed attestations. One-shot.
func (r *OnRamp) SetOracle(addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.oracleSet {
		return ErrAlreadySet
	}
	r.oracle = addr
	r.oracleSet = true
	return nil
}

// Oracle returns the bound oracle identity, empty until SetOracle.
func (r *OnRamp) Oracle() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.oracle
}

// OfferData escrows the offer's payment and records the offer. The escrow
// transfer runs first; if it fails nothing is recorded. If the store fails
// after the escrow pulled payment, the payment is transferred back so the
// call either fully applies or fully reverts.
func (r *OnRamp) OfferData(ctx context.Context, sender common.Address, offer Offer) (uint64, error) {
	if err := r.transfer.TransferFrom(ctx, offer.Token, sender, offer.Amount); err != nil {
		return 0, fmt.Errorf("escrow payment: %w", err)
	}

	id, err := r.storeOffer(ctx, sender, &offer)
	if err != nil {
		if refundErr := r.transfer.Transfer(ctx, offer.Token, sender, offer.Amount); refundErr != nil {
			r.log.Error("onramp: refund escrow after store failure",
				zap.String("client", sender.Hex()),
				zap.String("amount", offer.Amount.String()),
				zap.Error(refundErr),
			)
		}
		return 0, err
	}

	r.log.Info("data ready",
		zap.Uint64("offer", id),
		zap.String("commp", hex.EncodeToString(offer.CommP)),
		zap.Uint64("size", offer.Size),
		zap.String("amount", offer.Amount.String()),
	)
	return id, nil
}

func (r *OnRamp) storeOffer(ctx context.Context, sender common.Address, offer *Offer) (uint64, error) {
	id, err := r.rdb.Incr(ctx, offerIDCounter).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate offer id: %w", err)
	}
	offer.ID = uint64(id)
	offer.Client = sender

	commPHex := hex.EncodeToString(offer.CommP)
	key := fmt.Sprintf(offerKeyFmt, offer.ID)
	if err := r.rdb.HSet(ctx, key,
		"id", offer.ID,
		"commp", commPHex,
		"size", offer.Size,
		"location", offer.Location,
		"amount", offer.Amount.String(),
		"token", offer.Token.Hex(),
		"client", offer.Client.Hex(),
	).Err(); err != nil {
		return 0, fmt.Errorf("store offer: %w", err)
	}
	if err := r.rdb.SAdd(ctx, fmt.Sprintf(offersByCommPFmt, commPHex), offer.ID).Err(); err != nil {
		return 0, fmt.Errorf("index offer: %w", err)
	}
	return offer.ID, nil
}

// GetOffer loads one offer by id.
func (r *OnRamp) GetOffer(ctx context.Context, id uint64) (*Offer, error) {
	vals, err := r.rdb.HGetAll(ctx, fmt.Sprintf(offerKeyFmt, id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrOfferNotFound, id)
	}
	return offerFromMap(vals)
}

// OffersForPiece returns the ids of all offers escrowed for a piece.
func (r *OnRamp) OffersForPiece(ctx context.Context, commP []byte) ([]uint64, error) {
	members, err := r.rdb.SMembers(ctx, fmt.Sprintf(offersByCommPFmt, hex.EncodeToString(commP))).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReceiveAttestation records a verified storage attestation against the piece
// it covers. Offers without a matching attestation stay pending; resolution
// of the escrowed payment happens out of band.
func (r *OnRamp) ReceiveAttestation(ctx context.Context, att *codec.Attestation) error {
	commPHex := hex.EncodeToString(att.CommP)
	key := fmt.Sprintf(proofKeyFmt, commPHex)
	if err := r.rdb.HSet(ctx, key,
		"commp", commPHex,
		"duration", att.Duration,
		"deal_id", att.FILID,
		"status", att.Status,
	).Err(); err != nil {
		return fmt.Errorf("store proof: %w", err)
	}

	ids, err := r.OffersForPiece(ctx, att.CommP)
	if err != nil {
		r.log.Error("onramp: lookup offers for piece", zap.String("commp", commPHex), zap.Error(err))
		ids = nil
	}

	r.log.Info("storage attested",
		zap.String("commp", commPHex),
		zap.Uint64("deal", att.FILID),
		zap.Uint8("status", att.Status),
		zap.Int("offers", len(ids)),
	)
	return nil
}

// ProofForPiece loads the recorded attestation for a piece, nil if none.
func (r *OnRamp) ProofForPiece(ctx context.Context, commP []byte) (*Proof, error) {
	vals, err := r.rdb.HGetAll(ctx, fmt.Sprintf(proofKeyFmt, hex.EncodeToString(commP))).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	rawCommP, err := hex.DecodeString(vals["commp"])
	if err != nil {
		return nil, fmt.Errorf("decode proof commp: %w", err)
	}
	duration, _ := strconv.ParseInt(vals["duration"], 10, 64)
	dealID, _ := strconv.ParseUint(vals["deal_id"], 10, 64)
	status, _ := strconv.ParseUint(vals["status"], 10, 8)
	return &Proof{
		CommP:    rawCommP,
		Duration: duration,
		DealID:   dealID,
		Status:   uint8(status),
	}, nil
}

func offerFromMap(m map[string]string) (*Offer, error) {
	id, err := strconv.ParseUint(m["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode offer id: %w", err)
	}
	commP, err := hex.DecodeString(m["commp"])
	if err != nil {
		return nil, fmt.Errorf("decode offer commp: %w", err)
	}
	size, _ := strconv.ParseUint(m["size"], 10, 64)
	amount, ok := new(big.Int).SetString(m["amount"], 10)
	if !ok {
		return nil, fmt.Errorf("decode offer amount %q", m["amount"])
	}
	return &Offer{
		ID:       id,
		CommP:    commP,
		Size:     size,
		Location: m["location"],
		Amount:   amount,
		Token:    common.HexToAddress(m["token"]),
		Client:   common.HexToAddress(m["client"]),
	}, nil
}

// Package dealclient implements the destination-ledger side of the relay: it
// authenticates market-actor method calls, drives the deal registry, debits
// prepaid gas funds, and dispatches attestations through the cross-chain
// transport.
package dealclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/exitcode"
	"go.uber.org/zap"

	"github.com/filozone/onramp-relay/internal/codec"
	"github.com/filozone/onramp-relay/internal/gasfunds"
	"github.com/filozone/onramp-relay/internal/registry"
	"github.com/filozone/onramp-relay/internal/router"
)

// FRC-42 method numbers of the two actor entry points the relay answers.
const (
	AuthenticateMessageMethodNum uint64 = 2643134072
	MarketNotifyDealMethodNum    uint64 = 4186741094
)

// DefaultMarketActor is the EVM framing of the f05 storage market actor.
var DefaultMarketActor = common.HexToAddress("0xfF00000000000000000000000000000000000005")

var (
	// ErrUnauthorizedCaller rejects deal notifications from anything but the
	// market actor.
	ErrUnauthorizedCaller = errors.New("caller is not the storage market actor")

	// ErrUnhandledMethod rejects method numbers outside the closed dispatch
	// set. Unknown methods are always a hard failure, never a no-op.
	ErrUnhandledMethod = errors.New("actor method is not handled")
)

// Transport accepts an attestation payload for cross-chain delivery. Once
// Dispatch returns nil the message is the transport's responsibility; the
// relay does not track delivery or confirmation.
type Transport interface {
	Dispatch(ctx context.Context, chainName string, destAddr common.Address, payload []byte, gasFee *big.Int) error
}

// pendingDispatch is an attestation whose relay step could not complete at
// notify time. The local registry update is already committed; only the
// dispatch is retried.
type pendingDispatch struct {
	att         codec.Attestation
	chainID     uint64
	provider    string
	declaredFee *big.Int // fee declared by the original call, debited on retry
	charged     *big.Int // non-nil once the ledger has been debited
}

// DealClient orchestrates the outbound half of the relay. The registry,
// ledger, and router it owns are mutated only through its operations.
type DealClient struct {
	registry    *registry.Registry
	ledger      *gasfunds.Ledger
	router      *router.Router
	transport   Transport
	marketActor common.Address
	log         *zap.Logger

	mu      sync.Mutex
	pending map[[32]byte]pendingDispatch
}

func New(reg *registry.Registry, ledger *gasfunds.Ledger, rt *router.Router, transport Transport, marketActor common.Address, log *zap.Logger) *DealClient {
	return &DealClient{
		registry:    reg,
		ledger:      ledger,
		router:      rt,
		transport:   transport,
		marketActor: marketActor,
		log:         log,
		pending:     make(map[[32]byte]pendingDispatch),
	}
}

// HandleActorMethod is the closed dispatch table over the recognized actor
// method numbers. AuthenticateMessage acks unconditionally; MarketNotifyDeal
// routes to NotifyDeal; everything else fails with ErrUnhandledMethod.
func (dc *DealClient) HandleActorMethod(ctx context.Context, caller common.Address, method uint64, value *big.Int, params []byte) ([]byte, error) {
	switch method {
	case AuthenticateMessageMethodNum:
		return codec.AuthenticateAck, nil
	case MarketNotifyDealMethodNum:
		if _, err := dc.NotifyDeal(ctx, caller, value, params); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: method %d", ErrUnhandledMethod, method)
	}
}

// NotifyDeal processes a market-actor deal notification:
// authenticate, decode, record, resolve, debit, dispatch.
//
// Decode failures leave every structure untouched. Once decoded, the registry
// update always commits; a failure to resolve the destination or to dispatch
// never rolls it back (the dispatch is queued for retry instead). The gas
// debit is advisory: the charge is capped at the provider's balance and the
// dispatch proceeds regardless.
func (dc *DealClient) NotifyDeal(ctx context.Context, caller common.Address, value *big.Int, params []byte) (registry.Entry, error) {
	if caller != dc.marketActor {
		return registry.Entry{}, fmt.Errorf("%w: %s", ErrUnauthorizedCaller, caller.Hex())
	}

	n, err := codec.DecodeDealNotification(params)
	if err != nil {
		return registry.Entry{}, err
	}
	commP, err := codec.PieceCommitment(n.Proposal.PieceCID)
	if err != nil {
		return registry.Entry{}, fmt.Errorf("%w: %s", codec.ErrMalformedPayload, err)
	}
	if value == nil {
		value = new(big.Int)
	}

	entry := dc.registry.Record(commP, n.DealID, registry.StatusDealPublished)

	att := codec.Attestation{
		CommP:    commP[:],
		Duration: int64(n.Proposal.EndEpoch - n.Proposal.StartEpoch),
		FILID:    uint64(entry.DealID),
		Status:   uint8(entry.Status),
	}
	provider := n.Proposal.Provider.String()

	chainID, err := codec.DestinationChainID(n.Proposal.Label)
	if err != nil {
		// The label carries no routable chain id; nothing to retry against.
		dc.log.Warn("deal notification has unroutable label",
			zap.String("piece", fmt.Sprintf("%x", commP)),
			zap.Uint64("deal", uint64(entry.DealID)),
			zap.Error(err),
		)
		return entry, fmt.Errorf("%w: %s", router.ErrUnknownDestinationChain, err)
	}

	dest, err := dc.router.Resolve(chainID)
	if err != nil {
		// Local state is kept; the dispatch is parked until the router
		// learns this chain.
		dc.park(commP, pendingDispatch{
			att:         att,
			chainID:     chainID,
			provider:    provider,
			declaredFee: new(big.Int).Set(value),
		})
		dc.log.Warn("destination chain not configured, dispatch parked",
			zap.Uint64("chain", chainID),
			zap.Uint64("deal", uint64(entry.DealID)),
		)
		return entry, err
	}

	charged, err := dc.ledger.Debit(provider, value)
	if err != nil {
		return entry, fmt.Errorf("debit gas funds: %w", err)
	}

	if err := dc.dispatch(ctx, dest, att, charged); err != nil {
		// Debit stands (advisory model); the paid fee rides along with the
		// parked dispatch so it is not charged twice on retry.
		dc.park(commP, pendingDispatch{
			att:         att,
			chainID:     chainID,
			provider:    provider,
			declaredFee: new(big.Int).Set(value),
			charged:     charged,
		})
		dc.log.Error("attestation dispatch failed, parked for retry",
			zap.Uint64("chain", chainID),
			zap.Uint64("deal", uint64(entry.DealID)),
			zap.Error(err),
		)
		return entry, fmt.Errorf("dispatch attestation: %w", err)
	}

	dc.log.Info("deal notification relayed",
		zap.String("piece", fmt.Sprintf("%x", commP)),
		zap.Uint64("deal", uint64(entry.DealID)),
		zap.Uint64("chain", chainID),
		zap.String("gas_charged", charged.String()),
	)
	return entry, nil
}

func (dc *DealClient) dispatch(ctx context.Context, dest router.DestinationChain, att codec.Attestation, gasFee *big.Int) error {
	payload, err := codec.EncodeAttestation(&att)
	if err != nil {
		return err
	}
	return dc.transport.Dispatch(ctx, dest.Name, dest.Addr, payload, gasFee)
}

func (dc *DealClient) park(commP [32]byte, p pendingDispatch) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.pending[commP] = p
}

// SetDestinationChains configures the router. All-or-nothing: a length
// mismatch rejects the whole call.
func (dc *DealClient) SetDestinationChains(ids []uint64, names []string, addrs []common.Address) error {
	return dc.router.SetDestinationChains(ids, names, addrs)
}

// AddGasFunds credits a provider's prepaid delivery balance. amount must
// equal the attached native value.
func (dc *DealClient) AddGasFunds(provider string, amount, value *big.Int) error {
	return dc.ledger.Credit(provider, amount, value)
}

// GasFunds returns a provider's current prepaid balance.
func (dc *DealClient) GasFunds(provider string) *big.Int {
	return dc.ledger.Balance(provider)
}

// PieceEntry exposes the registry entry for a piece commitment.
func (dc *DealClient) PieceEntry(commP [32]byte) (registry.Entry, bool) {
	return dc.registry.Get(commP)
}

// PieceStatus exposes the lifecycle status for a piece commitment.
func (dc *DealClient) PieceStatus(commP [32]byte) registry.PieceStatus {
	return dc.registry.Status(commP)
}

// PendingDispatches reports how many attestations are parked awaiting retry.
func (dc *DealClient) PendingDispatches() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.pending)
}

// ExitCode maps an operation error onto the actor-call return code surface.
func ExitCode(err error) exitcode.ExitCode {
	switch {
	case err == nil:
		return exitcode.Ok
	case errors.Is(err, ErrUnauthorizedCaller):
		return exitcode.ErrForbidden
	case errors.Is(err, codec.ErrMalformedPayload):
		return exitcode.ErrIllegalArgument
	case errors.Is(err, router.ErrUnknownDestinationChain):
		return exitcode.ErrNotFound
	case errors.Is(err, ErrUnhandledMethod):
		return exitcode.ErrUnhandledMessage
	default:
		return exitcode.ErrIllegalState
	}
}

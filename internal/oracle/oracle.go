// Package oracle implements the inbound relay endpoint: it verifies the
// origin and sender of cross-chain messages, drops replays, and forwards
// decoded attestations to the configured receiver.
package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/filozone/onramp-relay/internal/codec"
)

// Redis key templates
const (
	seenMessageKeyFmt = "oracle:seen:%s:%s"   // %s = origin chain, message id
	recordKeyFmt      = "oracle:record:%s:%s" // %s = origin chain, message id
	InboundQueueKey   = "oracle:inbound"
)

var (
	// ErrAlreadySet guards the one-shot sender/receiver binding.
	ErrAlreadySet = errors.New("sender and receiver already set")

	// ErrNotConfigured rejects messages arriving before the binding. Nothing
	// is trusted until an operator configures the oracle.
	ErrNotConfigured = errors.New("oracle sender and receiver not configured")

	// ErrUnsupportedOriginChain rejects messages from any chain other than
	// the accepted origin.
	ErrUnsupportedOriginChain = errors.New("unsupported origin chain")

	// ErrUntrustedSender rejects messages whose source address is not the
	// configured sender.
	ErrUntrustedSender = errors.New("untrusted sender")

	// ErrDuplicateMessage marks a replay of an already-processed message id.
	ErrDuplicateMessage = errors.New("duplicate message")
)

// Message is an inbound cross-chain delivery as handed over by the transport.
type Message struct {
	MessageID   string `json:"message_id"`
	SourceChain string `json:"source_chain"`
	SourceAddr  string `json:"source_address"`
	Payload     []byte `json:"payload"`
}

// Receiver consumes verified attestations. The oracle forwards only after
// every check has passed.
type Receiver interface {
	ReceiveAttestation(ctx context.Context, att *codec.Attestation) error
}

// Oracle is the trust boundary for inbound attestations. It accepts messages
// from exactly one origin chain and one sender contract, both fixed at
// configuration time.
type Oracle struct {
	rdb            *redis.Client
	acceptedOrigin string
	log            *zap.Logger

	mu         sync.Mutex
	sender     string
	receiver   Receiver
	configured bool
}

func New(rdb *redis.Client, acceptedOrigin string, log *zap.Logger) *Oracle {
	return &Oracle{
		rdb:            rdb,
		acceptedOrigin: acceptedOrigin,
		log:            log,
	}
}

// SetSenderReceiver binds the trusted source address and the local receiver.
// The binding is one-shot: a second call fails and changes nothing.
func (o *Oracle) SetSenderReceiver(sender string, receiver Receiver) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.configured {
		return ErrAlreadySet
	}
	o.sender = sender
	o.receiver = receiver
	o.configured = true
	return nil
}

// Execute verifies and forwards one inbound message. Check order: binding,
// origin chain, sender (case-insensitive hex compare), payload decode, replay.
// A duplicate message id is dropped after decode without touching the
// receiver.
func (o *Oracle) Execute(ctx context.Context, msg *Message) error {
	o.mu.Lock()
	configured, sender, receiver := o.configured, o.sender, o.receiver
	o.mu.Unlock()

	if !configured {
		return ErrNotConfigured
	}
	if msg.SourceChain != o.acceptedOrigin {
		return fmt.Errorf("%w: %q", ErrUnsupportedOriginChain, msg.SourceChain)
	}
	if !strings.EqualFold(msg.SourceAddr, sender) {
		return fmt.Errorf("%w: %s", ErrUntrustedSender, msg.SourceAddr)
	}

	att, err := codec.DecodeAttestation(msg.Payload)
	if err != nil {
		return err
	}

	seenKey := fmt.Sprintf(seenMessageKeyFmt, msg.SourceChain, msg.MessageID)
	fresh, err := o.rdb.SetNX(ctx, seenKey, 1, 0).Result()
	if err != nil {
		return fmt.Errorf("replay check: %w", err)
	}
	if !fresh {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.MessageID)
	}

	if err := receiver.ReceiveAttestation(ctx, att); err != nil {
		// Un-mark so a redelivery can retry the forward.
		if delErr := o.rdb.Del(ctx, seenKey).Err(); delErr != nil {
			o.log.Error("oracle: clear replay marker", zap.String("message", msg.MessageID), zap.Error(delErr))
		}
		return fmt.Errorf("forward attestation: %w", err)
	}

	// The accepted-attestation record keeps the origin identity alongside the
	// piece it attests, queryable after the fact.
	recordKey := fmt.Sprintf(recordKeyFmt, msg.SourceChain, msg.MessageID)
	if err := o.rdb.HSet(ctx, recordKey,
		"origin_chain", msg.SourceChain,
		"sender", msg.SourceAddr,
		"commp", hex.EncodeToString(att.CommP),
		"deal_id", att.FILID,
		"status", att.Status,
	).Err(); err != nil {
		o.log.Error("oracle: store attestation record", zap.String("message", msg.MessageID), zap.Error(err))
	}

	o.log.Info("attestation accepted",
		zap.String("message", msg.MessageID),
		zap.String("origin", msg.SourceChain),
		zap.String("sender", msg.SourceAddr),
		zap.String("commp", hex.EncodeToString(att.CommP)),
		zap.Uint64("deal", att.FILID),
		zap.Uint8("status", att.Status),
	)
	return nil
}

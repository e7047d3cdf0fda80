package oracle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/filozone/onramp-relay/internal/codec"
)

// ── helpers ───────────────────────────────────────────────────────────────────

const (
	testOrigin = "filecoin-2"
	testSender = "0xAbCd000000000000000000000000000000001234"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type captureReceiver struct {
	mu   sync.Mutex
	got  []*codec.Attestation
	fail error
}

func (c *captureReceiver) ReceiveAttestation(_ context.Context, att *codec.Attestation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.got = append(c.got, att)
	return nil
}

func (c *captureReceiver) received() []*codec.Attestation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*codec.Attestation, len(c.got))
	copy(out, c.got)
	return out
}

func testAttestationPayload(t *testing.T) []byte {
	t.Helper()
	commP := bytes.Repeat([]byte{0xAA}, 32)
	raw, err := codec.EncodeAttestation(&codec.Attestation{
		CommP:    commP,
		Duration: 1035200,
		FILID:    42,
		Status:   1,
	})
	if err != nil {
		t.Fatalf("EncodeAttestation: %v", err)
	}
	return raw
}

func configuredOracle(t *testing.T) (*Oracle, *captureReceiver, *redis.Client) {
	t.Helper()
	rdb := newTestRedis(t)
	o := New(rdb, testOrigin, zap.NewNop())
	rcv := &captureReceiver{}
	if err := o.SetSenderReceiver(testSender, rcv); err != nil {
		t.Fatalf("SetSenderReceiver: %v", err)
	}
	return o, rcv, rdb
}

func testMessage(t *testing.T, id string) *Message {
	t.Helper()
	return &Message{
		MessageID:   id,
		SourceChain: testOrigin,
		SourceAddr:  testSender,
		Payload:     testAttestationPayload(t),
	}
}

// ── SetSenderReceiver ─────────────────────────────────────────────────────────

func TestSetSenderReceiver_OneShot(t *testing.T) {
	o := New(newTestRedis(t), testOrigin, zap.NewNop())
	rcv := &captureReceiver{}

	if err := o.SetSenderReceiver(testSender, rcv); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := o.SetSenderReceiver("0x9999999999999999999999999999999999999999", rcv); !errors.Is(err, ErrAlreadySet) {
		t.Fatalf("second set: err = %v, want ErrAlreadySet", err)
	}

	// The original binding still holds.
	if err := o.Execute(context.Background(), testMessage(t, "m1")); err != nil {
		t.Fatalf("Execute after rejected rebind: %v", err)
	}
}

// ── Execute ───────────────────────────────────────────────────────────────────

func TestExecute_RejectsBeforeConfiguration(t *testing.T) {
	o := New(newTestRedis(t), testOrigin, zap.NewNop())

	err := o.Execute(context.Background(), testMessage(t, "m1"))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestExecute_RejectsWrongOrigin(t *testing.T) {
	o, rcv, _ := configuredOracle(t)

	msg := testMessage(t, "m1")
	msg.SourceChain = "ethereum-2"
	if err := o.Execute(context.Background(), msg); !errors.Is(err, ErrUnsupportedOriginChain) {
		t.Fatalf("err = %v, want ErrUnsupportedOriginChain", err)
	}
	if len(rcv.received()) != 0 {
		t.Fatal("receiver called for wrong origin")
	}
}

func TestExecute_RejectsUntrustedSender(t *testing.T) {
	o, rcv, _ := configuredOracle(t)

	msg := testMessage(t, "m1")
	msg.SourceAddr = "0x9999999999999999999999999999999999999999"
	if err := o.Execute(context.Background(), msg); !errors.Is(err, ErrUntrustedSender) {
		t.Fatalf("err = %v, want ErrUntrustedSender", err)
	}
	if len(rcv.received()) != 0 {
		t.Fatal("receiver called for untrusted sender")
	}
}

func TestExecute_SenderCompareIsCaseInsensitive(t *testing.T) {
	o, rcv, _ := configuredOracle(t)

	msg := testMessage(t, "m1")
	msg.SourceAddr = "0xabcd000000000000000000000000000000001234"
	if err := o.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rcv.received()) != 1 {
		t.Fatal("receiver not called")
	}
}

func TestExecute_RejectsMalformedPayload(t *testing.T) {
	o, rcv, _ := configuredOracle(t)

	msg := testMessage(t, "m1")
	msg.Payload = []byte{0x01, 0x02}
	if err := o.Execute(context.Background(), msg); !errors.Is(err, codec.ErrMalformedAttestation) {
		t.Fatalf("err = %v, want ErrMalformedAttestation", err)
	}
	if len(rcv.received()) != 0 {
		t.Fatal("receiver called for malformed payload")
	}
}

func TestExecute_ForwardsDecodedAttestation(t *testing.T) {
	o, rcv, _ := configuredOracle(t)

	if err := o.Execute(context.Background(), testMessage(t, "m1")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := rcv.received()
	if len(got) != 1 {
		t.Fatalf("received = %d, want 1", len(got))
	}
	att := got[0]
	if !bytes.Equal(att.CommP, bytes.Repeat([]byte{0xAA}, 32)) {
		t.Fatalf("commP = %x", att.CommP)
	}
	if att.Duration != 1035200 || att.FILID != 42 || att.Status != 1 {
		t.Fatalf("attestation = %+v", att)
	}
}

func TestExecute_PersistsOriginRecord(t *testing.T) {
	o, _, rdb := configuredOracle(t)
	ctx := context.Background()

	if err := o.Execute(ctx, testMessage(t, "m1")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	record, err := rdb.HGetAll(ctx, "oracle:record:"+testOrigin+":m1").Result()
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if len(record) == 0 {
		t.Fatal("attestation record not persisted")
	}
	if record["origin_chain"] != testOrigin {
		t.Errorf("origin_chain = %q, want %q", record["origin_chain"], testOrigin)
	}
	if record["sender"] != testSender {
		t.Errorf("sender = %q, want %q", record["sender"], testSender)
	}
	wantCommP := hex.EncodeToString(bytes.Repeat([]byte{0xAA}, 32))
	if record["commp"] != wantCommP {
		t.Errorf("commp = %q, want %q", record["commp"], wantCommP)
	}
	if record["deal_id"] != "42" || record["status"] != "1" {
		t.Errorf("record = %v", record)
	}
}

func TestExecute_DropsDuplicateMessageID(t *testing.T) {
	o, rcv, _ := configuredOracle(t)
	ctx := context.Background()

	if err := o.Execute(ctx, testMessage(t, "m1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := o.Execute(ctx, testMessage(t, "m1")); !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("redelivery: err = %v, want ErrDuplicateMessage", err)
	}
	if len(rcv.received()) != 1 {
		t.Fatalf("received = %d, want 1", len(rcv.received()))
	}

	// A distinct message id goes through.
	if err := o.Execute(ctx, testMessage(t, "m2")); err != nil {
		t.Fatalf("second message: %v", err)
	}
	if len(rcv.received()) != 2 {
		t.Fatalf("received = %d, want 2", len(rcv.received()))
	}
}

func TestExecute_ReceiverFailureAllowsRedelivery(t *testing.T) {
	o, rcv, _ := configuredOracle(t)
	ctx := context.Background()

	rcv.fail = errors.New("registry unavailable")
	if err := o.Execute(ctx, testMessage(t, "m1")); err == nil {
		t.Fatal("expected forward error")
	}

	// Redelivery of the same id succeeds once the receiver recovers.
	rcv.fail = nil
	if err := o.Execute(ctx, testMessage(t, "m1")); err != nil {
		t.Fatalf("redelivery after recovery: %v", err)
	}
	if len(rcv.received()) != 1 {
		t.Fatalf("received = %d, want 1", len(rcv.received()))
	}
}

// ── RunConsumer ───────────────────────────────────────────────────────────────

func TestRunConsumer_DrainsQueue(t *testing.T) {
	o, rcv, rdb := configuredOracle(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raw, err := json.Marshal(testMessage(t, "m1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := rdb.LPush(ctx, InboundQueueKey, raw).Err(); err != nil {
		t.Fatalf("LPush: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunConsumer(ctx, rdb, o, zap.NewNop())
	}()

	deadline := time.After(3 * time.Second)
	for len(rcv.received()) == 0 {
		select {
		case <-deadline:
			t.Fatal("consumer did not forward the message")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not stop on context cancel")
	}
}

package dealclient

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunRetrier periodically re-attempts parked attestation dispatches. A
// dispatch parks when its destination chain was unknown at notify time or the
// transport refused it; once the router learns the chain and the transport
// accepts, the entry is cleared.
func RunRetrier(ctx context.Context, dc *DealClient, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("dispatch retrier started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			log.Info("dispatch retrier stopped")
			return
		case <-ticker.C:
			dc.RetryPending(ctx)
		}
	}
}

// RetryPending walks the parked dispatches once. Entries whose destination is
// still unknown stay parked. The gas debit happens at most once per entry: a
// dispatch that already paid at notify time reuses that charge on retry.
func (dc *DealClient) RetryPending(ctx context.Context) {
	dc.mu.Lock()
	batch := make(map[[32]byte]pendingDispatch, len(dc.pending))
	for k, v := range dc.pending {
		batch[k] = v
	}
	dc.mu.Unlock()

	for commP, p := range batch {
		dest, err := dc.router.Resolve(p.chainID)
		if err != nil {
			continue
		}

		charged := p.charged
		if charged == nil {
			charged, err = dc.ledger.Debit(p.provider, p.declaredFee)
			if err != nil {
				dc.log.Error("retrier: debit gas funds",
					zap.String("provider", p.provider),
					zap.Error(err),
				)
				continue
			}
			p.charged = charged
			dc.park(commP, p)
		}

		if err := dc.dispatch(ctx, dest, p.att, charged); err != nil {
			dc.log.Error("retrier: dispatch attestation",
				zap.Uint64("chain", p.chainID),
				zap.Uint64("deal", p.att.FILID),
				zap.Error(err),
			)
			continue
		}

		dc.mu.Lock()
		delete(dc.pending, commP)
		dc.mu.Unlock()

		dc.log.Info("parked attestation dispatched",
			zap.Uint64("chain", p.chainID),
			zap.Uint64("deal", p.att.FILID),
		)
	}
}

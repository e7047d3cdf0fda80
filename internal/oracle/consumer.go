package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const blpopTimeout = 5 * time.Second

// RunConsumer is the inbound relay loop: BLPOP the delivery queue, verify,
// forward. Rejected messages are logged and dropped; the transport layer owns
// redelivery.
func RunConsumer(ctx context.Context, rdb *redis.Client, o *Oracle, log *zap.Logger) {
	log.Info("oracle consumer started", zap.String("queue", InboundQueueKey))

	for {
		if ctx.Err() != nil {
			log.Info("oracle consumer stopped")
			return
		}

		results, err := rdb.BLPop(ctx, blpopTimeout, InboundQueueKey).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Error("oracle consumer: BLPOP", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// results[0] = key, results[1] = value
		var msg Message
		if err := json.Unmarshal([]byte(results[1]), &msg); err != nil {
			log.Error("oracle consumer: unmarshal message", zap.String("raw", results[1]), zap.Error(err))
			continue
		}

		if err := o.Execute(ctx, &msg); err != nil {
			if errors.Is(err, ErrDuplicateMessage) {
				log.Debug("oracle consumer: duplicate dropped", zap.String("message", msg.MessageID))
				continue
			}
			log.Warn("oracle consumer: message rejected",
				zap.String("message", msg.MessageID),
				zap.String("origin", msg.SourceChain),
				zap.Error(err),
			)
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/filozone/onramp-relay/internal/api"
	"github.com/filozone/onramp-relay/internal/auth"
	"github.com/filozone/onramp-relay/internal/chain"
	"github.com/filozone/onramp-relay/internal/config"
	"github.com/filozone/onramp-relay/internal/dealclient"
	"github.com/filozone/onramp-relay/internal/gasfunds"
	"github.com/filozone/onramp-relay/internal/onramp"
	"github.com/filozone/onramp-relay/internal/oracle"
	"github.com/filozone/onramp-relay/internal/registry"
	"github.com/filozone/onramp-relay/internal/router"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Chain client (relay key + Axelar bindings) ────────────────────────────
	onchain, err := chain.NewClient(cfg)
	if err != nil {
		log.Fatal("chain client init failed", zap.Error(err))
	}

	// ── Relay components ──────────────────────────────────────────────────────
	dc := dealclient.New(
		registry.New(),
		gasfunds.NewLedger(),
		router.New(),
		chain.NewAxelarTransport(onchain, log),
		common.HexToAddress(cfg.Relay.MarketActor),
		log,
	)
	orc := oracle.New(rdb, cfg.Relay.AcceptedOrigin, log)
	ramp := onramp.New(rdb, onchain, log)

	// When the trusted sender is known at boot, bind it here. The binding is
	// one-shot either way: configured over the admin API or from the
	// environment, it cannot be re-pointed afterwards.
	if cfg.Relay.TrustedSender != "" {
		if err := orc.SetSenderReceiver(cfg.Relay.TrustedSender, ramp); err != nil {
			log.Fatal("bind oracle sender", zap.Error(err))
		}
	}

	// ── Goroutines ────────────────────────────────────────────────────────────
	retryInterval := time.Duration(cfg.Relay.RetryIntervalSec) * time.Second
	go dealclient.RunRetrier(ctx, dc, retryInterval, log)
	go oracle.RunConsumer(ctx, rdb, orc, log)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())

	adminAuth := auth.AdminOnly(rdb, common.HexToAddress(cfg.Relay.AdminAddress))
	api.NewHandler(dc, orc, ramp, log).Register(r, adminAuth)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dev0179/x402-data-utils/internal/config"
	"github.com/dev0179/x402-data-utils/internal/dataops"
	"github.com/dev0179/x402-data-utils/internal/invoice"
	"github.com/dev0179/x402-data-utils/internal/store"
	"github.com/dev0179/x402-data-utils/internal/wallet"
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

	// ── Invoice store (Redis if reachable, in-memory otherwise) ───────────────
	st := pickStore(ctx, cfg, log)

	// ── Wallet gate ───────────────────────────────────────────────────────────
	issuer := invoice.NewIssuer(cfg.Wallet.PayToAddress, cfg.InvoiceTTL(), st)
	verifier := wallet.NewVerifier(st)
	gate := wallet.NewGate(cfg.Wallet.RoutePrices, cfg.Wallet.PayToAddress, issuer, verifier, log)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.Use(gate.Middleware())
	dataops.NewHandler(log).Register(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("pay_to", cfg.Wallet.PayToAddress),
			zap.Int("ttl_seconds", cfg.Wallet.InvoiceTTLSeconds),
		)
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

// pickStore selects the invoice store backend. An unreachable Redis degrades
// to the in-memory store with a logged warning rather than failing startup;
// replay protection is then per-process only.
func pickStore(ctx context.Context, cfg *config.Config, log *zap.Logger) store.Store {
	if cfg.Redis.Addr == "" {
		log.Info("using in-memory invoice store")
		return store.NewMemoryStore()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, falling back to in-memory invoice store",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err),
		)
		return store.NewMemoryStore()
	}

	log.Info("using redis invoice store", zap.String("addr", cfg.Redis.Addr))
	return store.NewRedisStore(rdb)
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-payment-core/internal/config"
	"shop-payment-core/internal/domain/ports/adapter"
	gw "shop-payment-core/internal/infra/adapters/gateway"
	pg "shop-payment-core/internal/infra/db/postgres"
	"shop-payment-core/internal/infra/logging"
	"shop-payment-core/internal/infra/metrics"
	red "shop-payment-core/internal/infra/redis"
	"shop-payment-core/internal/infra/sched"
	"shop-payment-core/internal/infra/web"
	"shop-payment-core/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, sandbox hints)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	payRepo := pg.NewPaymentRepo(pool)
	orderRepo := pg.NewOrderRepo(pool)
	callbackRepo := pg.NewCallbackRepo(pool)
	auditRepo := pg.NewAuditRepo(pool, logger)
	tm := pg.NewTxManager(pool)

	// ---- Gateways ----
	var gateways []adapter.Gateway
	if cfg.Payment.ZarinPal.MerchantID != "" || cfg.Payment.ZarinPal.Sandbox {
		zp, err := gw.NewZarinPal(cfg.Payment.ZarinPal.MerchantID, cfg.Payment.ZarinPal.Sandbox, cfg.Payment.ZarinPal.AccessToken, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("zarinpal gateway init failed")
		}
		gateways = append(gateways, zp)
	}
	if cfg.Payment.Sep.TerminalID != "" || cfg.Payment.Sep.Sandbox {
		sep, err := gw.NewSep(cfg.Payment.Sep.TerminalID, cfg.Payment.Sep.Sandbox, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("sep gateway init failed")
		}
		gateways = append(gateways, sep)
	}
	registry := gw.NewRegistry(gateways...)
	if _, err := registry.Get(cfg.Payment.DefaultGateway); err != nil {
		logger.Fatal().Str("gateway", cfg.Payment.DefaultGateway).Msg("default gateway is not configured")
	}

	signer := web.NewStateTokenSigner(cfg.Payment.StateTokenSecret)

	// ---- Use cases ----
	payUC := usecase.NewPaymentUseCase(payRepo, orderRepo, registry, auditRepo, signer, tm, cfg.Payment, logger)

	// ---- Background workers ----
	sweeper := sched.NewExpirySweeper(cfg.Sweeper.Interval, payUC, locker, logger)
	go func() { _ = sweeper.Run(ctx) }()

	reconciler := sched.NewReconciler(payUC, payRepo, locker, cfg.Sweeper.Interval, cfg.Sweeper.ReconcileAfter, cfg.Sweeper.BatchSize, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- HTTP server ----
	server := web.NewServer(cfg.Server, payUC, callbackRepo, signer, rateLimiter, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/config"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/infra"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/repository"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/router"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/service"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Composition root ─────────────────────────────────────────────────────
	// Repositories and services are built once here: the batch service
	// serializes concurrent deductions per product and must be shared by the
	// HTTP surface and the background sweep.
	promoCB := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	promoClient := infra.NewPromoClient(cfg.PromoSidecarURL, promoCB)
	mailer := infra.NewMailer(cfg)
	dispatcher := worker.NewDispatcher(rdb)

	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	customerRepo := repository.NewCustomerRepository(db)

	authSvc := service.NewAuthService(userRepo, cfg)
	productSvc := service.NewProductService(productRepo)
	batchSvc := service.NewBatchService(productRepo, batchRepo, dispatcher, cfg.ExpiryAlertDays)
	loyaltySvc := service.NewLoyaltyService(customerRepo)
	saleSvc := service.NewSaleService(saleRepo, productRepo, batchSvc, loyaltySvc, promoClient, dispatcher)
	orderSvc := service.NewOrderService(orderRepo, productRepo, batchSvc, loyaltySvc, promoClient, dispatcher, cfg.DeliveryFee)

	// Async job consumers (notifications, receipt PDFs)
	handlers := worker.Handlers{
		worker.QueueNotifications: worker.NewNotificationWorker(mailer, rdb, cfg.OpsEmail).Process,
		worker.QueueReceipts:      worker.NewReceiptWorker(saleRepo, rdb, cfg.PDFStoragePath).Process,
	}
	worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, handlers)

	// Background expiry sweep: stalled orders + expired batches
	sweeper := worker.NewSweeper(orderSvc, batchSvc, orderRepo, cfg.SweepInterval(), cfg.OrderExpiryWindow())
	sweeper.Start(ctx)
	defer sweeper.Stop()

	r := router.New(cfg, db, rdb, promoClient, router.Services{
		Auth:    authSvc,
		Product: productSvc,
		Batch:   batchSvc,
		Sale:    saleSvc,
		Order:   orderSvc,
		Loyalty: loyaltySvc,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("PANN backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}

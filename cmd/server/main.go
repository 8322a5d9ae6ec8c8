package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-service/config"
	"booking-service/internal/api"
	"booking-service/internal/broker"
	"booking-service/internal/idempotency"
	"booking-service/internal/redisclient"
	"booking-service/internal/service"
	"booking-service/internal/store"
	"booking-service/internal/supplier"
	"booking-service/internal/util"
	"booking-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting booking service")

	tp, err := util.InitTracer("booking-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	registry := supplier.NewRegistry()
	registry.Register(supplier.NewSandboxAdapter("sandbox"), "sbx", "test")

	recorder := service.NewRecorder(db, eventPublisher)
	creditGuard := service.NewCreditGuard(db, redisClient)
	riskEngine := service.NewThresholdRiskEngine(
		cfg.Business.RiskReviewThreshold, cfg.Business.RiskBlockThreshold, 0)
	pricing := service.NewNightlyRatePricing(120_000, 10)
	coordinator := idempotency.NewCoordinator(db,
		time.Duration(cfg.Business.IdempotencyTTLHours)*time.Hour)

	bookingService := service.NewBookingService(db, pricing, coordinator, recorder)
	orchestrator := service.NewConfirmationOrchestrator(db, creditGuard, riskEngine,
		registry, recorder, db,
		time.Duration(cfg.Business.SupplierTimeoutSeconds)*time.Second)
	cancelService := service.NewCancelService(db, creditGuard, recorder)
	amendmentService := service.NewAmendmentService(db, db, pricing, creditGuard, recorder)
	refundService := service.NewRefundCaseService(db, recorder)

	ctx := context.Background()
	if orgs, err := db.ListCreditOrganizations(ctx); err != nil {
		log.Printf("Failed to list credit profiles for cache seeding: %v", err)
	} else {
		for _, org := range orgs {
			if err := creditGuard.SeedExposureCache(ctx, org); err != nil {
				log.Printf("Failed to seed exposure cache for %s: %v", org, err)
			}
		}
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	settlementConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.ConsumerGroup)
	settlementWorker := worker.NewSettlementWorker(settlementConsumer, orchestrator)
	go func() {
		if err := settlementWorker.Start(workerCtx); err != nil {
			log.Printf("Settlement worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	api.RegisterValidators()

	router := gin.Default()
	handler := api.NewHandler(bookingService, orchestrator, cancelService, amendmentService, refundService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	settlementWorker.Stop()

	log.Println("Server exited")
}

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

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/gateway"
	"storefront/internal/redisclient"
	"storefront/internal/remote"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("remote", cfg.Remote.BaseURL))

	tp, err := util.InitTracer("storefront", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer, cfg.Kafka.TopicCart, cfg.Kafka.TopicPayment)

	sessionStore := session.NewSessionStore(redisClient, cfg.Session.TTL)
	cartStore := session.NewCartStore(redisClient, cfg.Session.TTL)
	remoteClient := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout)
	esewa := gateway.New(gateway.Config{
		FormURL:     cfg.Gateway.FormURL,
		ProductCode: cfg.Gateway.ProductCode,
		SuccessURL:  cfg.Gateway.SuccessURL,
		FailureURL:  cfg.Gateway.FailureURL,
	})

	catalogService := service.NewCatalogService(remoteClient)
	cartService := service.NewCartService(cartStore, redisClient, catalogService, eventPublisher, cfg.Session.CartLockTTL)
	authService := service.NewAuthService(sessionStore, cartService, remoteClient)
	paymentService := service.NewPaymentService(
		db,
		sessionStore,
		cartService,
		redisClient,
		remoteClient,
		esewa,
		eventPublisher,
		time.Duration(cfg.Business.VerifyTimeoutSeconds)*time.Second,
		cfg.Business.VerifyClaimTTL,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	mirrorConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCart, cfg.Kafka.ConsumerGroup)
	mirrorWorker := worker.NewMirrorWorker(mirrorConsumer, sessionStore, cartStore, remoteClient)
	go func() {
		if err := mirrorWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Mirror worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(
		api.Config{
			CookieName:   cfg.Session.CookieName,
			LoginPath:    cfg.Server.LoginPath,
			SessionTTL:   cfg.Session.TTL,
			SecureCookie: cfg.Server.Env == "production",
		},
		authService,
		cartService,
		catalogService,
		paymentService,
		map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: otelhttp.NewHandler(router, "storefront"),
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := mirrorWorker.Stop(); err != nil {
		logger.Error("Error stopping mirror worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

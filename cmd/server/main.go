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

	"sinilikhain/config"
	"sinilikhain/internal/api"
	"sinilikhain/internal/auth"
	"sinilikhain/internal/bank"
	"sinilikhain/internal/broker"
	"sinilikhain/internal/redisclient"
	"sinilikhain/internal/service"
	"sinilikhain/internal/store"
	"sinilikhain/internal/uploads"
	"sinilikhain/internal/util"
	"sinilikhain/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting marketplace API")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint, cfg.Server.Env, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	eventPublisher := broker.NewEventPublisher(producer)

	var images uploads.Store
	uploadDir := ""
	if cfg.Uploads.S3Bucket != "" {
		images, err = uploads.NewS3Store(ctx, cfg.Uploads.S3Bucket, cfg.Uploads.S3PublicBaseURL)
		if err != nil {
			logger.Fatal("Failed to initialize S3 uploads", zap.Error(err))
		}
	} else {
		local, err := uploads.NewLocalStore(cfg.Uploads.Dir)
		if err != nil {
			logger.Fatal("Failed to initialize upload directory", zap.Error(err))
		}
		images, uploadDir = local, local.Dir()
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	bankClient := bank.NewClient(cfg.Bank.BaseURL, cfg.Bank.Timeout)

	productService := service.NewProductService(db, redisClient, eventPublisher, cfg.Business.CatalogCacheTTL)
	userService := service.NewUserService(db, tokens, redisClient)
	paymentService := service.NewPaymentService(db, db, bankClient, eventPublisher)
	orderService := service.NewOrderService(db, redisClient, redisClient, eventPublisher, paymentService, cfg.Business.IdempotencyTTL)
	statsService := service.NewStatsService(db)

	if err := userService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.Fatal("Failed to create bootstrap admin", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	statsConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	statsWorker := worker.NewStatsWorker(statsConsumer, statsService)
	go func() {
		if err := statsWorker.Start(workerCtx); err != nil {
			logger.Error("Stats worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(productService, userService, orderService, tokens, images)
	handler.UploadDir = uploadDir
	handler.AllowedOrigins = cfg.Server.AllowedOrigins
	handler.Checks = map[string]api.Pinger{"postgres": db, "redis": redisClient}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
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
	if err := statsWorker.Stop(); err != nil {
		logger.Warn("Failed to stop stats worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"notify-delivery-backend/config"
	"notify-delivery-backend/internal/api"
	"notify-delivery-backend/internal/db"
	"notify-delivery-backend/internal/gateway"
	"notify-delivery-backend/internal/model"
	"notify-delivery-backend/internal/notification"
	"notify-delivery-backend/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	logger := newLogger(os.Getenv("APP_ENV"))
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.String("path", configPath), zap.Error(err))
	}
	logger.Info("configuration loaded", zap.String("path", configPath))

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
		HTTPClient:      &http.Client{Timeout: cfg.Delivery.SendTimeout},
	}
	senders, err := newGatewayRouter(ctx, cfg.Push, webpushOptions, logger)
	if err != nil {
		logger.Fatal("failed to initialize push gateways", zap.Error(err))
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	appStore := store.NewGormStore(gormDB)

	pool := notification.NewWorkerPool(cfg.WorkerPool, logger.Named("pool"))
	pool.Start(ctx)

	policy := notification.RetryPolicyFromConfig(cfg.Delivery)
	deliverer := notification.NewDeliverer(appStore, senders, policy, logger.Named("deliverer"))
	service := notification.NewService(appStore, pool, deliverer, logger.Named("notify"))
	reconciler := notification.NewReconciler(appStore, service.Dispatch, policy, cfg.Reconcile, logger.Named("reconcile"))
	cleaner := notification.NewCleaner(appStore, cfg.Cleanup, logger.Named("cleanup"))

	scheduler := notification.NewScheduler(logger.Named("cron"))
	if *cfg.Reconcile.Enabled {
		if err := scheduler.Add("reconcile", cfg.Reconcile.Schedule, func(ctx context.Context) error {
			_, err := reconciler.Run(ctx)
			return err
		}); err != nil {
			logger.Fatal("invalid reconcile schedule", zap.Error(err))
		}
	}
	if *cfg.Cleanup.Enabled {
		if err := scheduler.Add("cleanup", cfg.Cleanup.Schedule, func(ctx context.Context) error {
			_, err := cleaner.Run(ctx)
			return err
		}); err != nil {
			logger.Fatal("invalid cleanup schedule", zap.Error(err))
		}
	}
	scheduler.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(api.Deps{
		Store:         appStore,
		Notifications: service,
		Reconciler:    reconciler,
		Cleaner:       cleaner,
		WebPush:       webpushOptions,
		Log:           logger.Named("http"),
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server),
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}
	// Deliveries still queued after the deadline stay PENDING for the next
	// reconciliation pass.
	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Warn("worker pool did not drain", zap.Error(err))
	}

	logger.Info("server gracefully stopped")
}

func newLogger(env string) *zap.Logger {
	var cfg zap.Config
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	return logger
}

// newGatewayRouter registers a sender for every gateway with credentials.
func newGatewayRouter(ctx context.Context, cfg config.PushConfig, webpushOptions *webpush.Options, logger *zap.Logger) (*gateway.Router, error) {
	router := gateway.NewRouter()

	if cfg.PublicKey != "" && cfg.PrivateKey != "" {
		router.Register(model.PlatformWebPush, gateway.NewWebPushSender(webpushOptions))
	} else {
		logger.Warn("VAPID keys not configured, web push disabled")
	}

	if cfg.FCMCredentialsFile != "" {
		fcm, err := gateway.NewFCMSender(ctx, cfg.FCMCredentialsFile)
		if err != nil {
			return nil, err
		}
		router.Register(model.PlatformFCM, fcm)
	}

	if cfg.SNSRegion != "" {
		sns, err := gateway.NewSNSSender(ctx, cfg.SNSRegion)
		if err != nil {
			return nil, err
		}
		router.Register(model.PlatformSNS, sns)
	}

	if len(router.Platforms()) == 0 {
		return nil, errors.New("no push gateway configured")
	}
	logger.Info("push gateways ready", zap.Any("platforms", router.Platforms()))
	return router, nil
}

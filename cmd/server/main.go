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

	"github.com/gin-gonic/gin"

	"github.com/daybook-io/daybook/internal/booking"
	"github.com/daybook-io/daybook/internal/checkout"
	"github.com/daybook-io/daybook/internal/giftcode"
	"github.com/daybook-io/daybook/internal/handler"
	"github.com/daybook-io/daybook/internal/ledger"
	"github.com/daybook-io/daybook/internal/notification"
	"github.com/daybook-io/daybook/internal/payment"
	"github.com/daybook-io/daybook/internal/repository"
	"github.com/daybook-io/daybook/internal/webhook"
	"github.com/daybook-io/daybook/internal/worker"
	"github.com/daybook-io/daybook/pkg/config"
	"github.com/daybook-io/daybook/pkg/database"
	"github.com/daybook-io/daybook/pkg/kafka"
	"github.com/daybook-io/daybook/pkg/logger"
	pkgredis "github.com/daybook-io/daybook/pkg/redis"
	"github.com/daybook-io/daybook/pkg/saga"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       "info",
		Environment: cfg.App.Environment,
		ServiceName: cfg.App.Name,
	}
	if cfg.App.Debug {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting daybook server...")

	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:       cfg.OTel.Enabled,
		ServiceName:   cfg.OTel.ServiceName,
		CollectorAddr: cfg.OTel.CollectorAddr,
		SampleRatio:   cfg.OTel.SampleRatio,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to initialize tracing: %v", err))
	}

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	var publisher notification.Publisher
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&kafka.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
			publisher = notification.NewNoOpPublisher()
		} else {
			publisher = notification.NewKafkaPublisher(producer, appLog)
			appLog.Info("Kafka event publisher connected")
		}
	} else {
		publisher = notification.NewNoOpPublisher()
	}
	defer publisher.Close()

	store := repository.NewSQLStore(db.Pool())

	// Capacity ledger backend is selected by configuration. The Redis
	// ledger needs its scripts pre-loaded and its availability keys warmed
	// from the database by the operator before it is authoritative.
	var capacity ledger.Ledger
	switch cfg.Booking.LedgerBackend {
	case "redis":
		redisLedger := ledger.NewRedisLedger(redisClient, appLog)
		if err := redisLedger.LoadScripts(ctx); err != nil {
			appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
		} else {
			appLog.Info("Lua scripts pre-loaded into Redis")
		}
		capacity = redisLedger
	case "fallback":
		capacity = ledger.NewFallbackLedger(ledger.NewSessionBalanceStore(store.Sessions()), appLog)
	default:
		capacity = ledger.NewPostgresLedger(store.Sessions(), appLog)
	}
	appLog.Info(fmt.Sprintf("Capacity ledger backend: %s", cfg.Booking.LedgerBackend))

	gateway, err := payment.NewStripeGateway(&payment.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Payment gateway init failed: %v", err))
	}

	orchestrator := saga.NewOrchestrator(&saga.OrchestratorConfig{
		Store: saga.NewRedisStore(redisClient.Client(), "daybook:saga", 24*time.Hour),
	})

	codeService := giftcode.NewService(store, appLog)
	bookingService := booking.NewService(store, capacity, codeService, publisher, appLog)
	checkoutService, err := checkout.NewService(
		store, capacity, codeService, gateway, orchestrator, publisher,
		checkout.Config{
			ReservationTTL:      cfg.Booking.ReservationTTL,
			DefaultCurrency:     cfg.Booking.DefaultCurrency,
			GiftOnlyRedirectURL: cfg.Stripe.SuccessURL,
		},
		appLog,
	)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Checkout service init failed: %v", err))
	}

	reconciler := webhook.NewReconciler(store, codeService, bookingService, publisher, redisClient, appLog)

	reaper := worker.NewReaper(store, bookingService, publisher, &worker.ReaperConfig{
		ScanInterval: cfg.Booking.ReaperInterval,
		BatchSize:    cfg.Booking.ReaperBatchSize,
	})
	if err := reaper.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Reaper start failed: %v", err))
	}
	defer reaper.Stop()

	checkoutHandler := handler.NewCheckoutHandler(checkoutService, codeService)
	bookingHandler := handler.NewBookingHandler(bookingService)
	webhookHandler := handler.NewWebhookHandler(gateway, reconciler)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", checkoutHandler.InitiateCheckout)
		v1.POST("/checkout/gift-only", checkoutHandler.CompleteGiftOnlyCheckout)
		v1.POST("/checkout/certificates", checkoutHandler.InitiateCertificateCheckout)
		v1.POST("/codes/validate", checkoutHandler.ValidateCode)

		bookings := v1.Group("/bookings")
		{
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.PATCH("/:id/people", bookingHandler.UpdatePeopleCount)
			bookings.POST("/:id/attendance", bookingHandler.MarkAttendance)
		}

		v1.POST("/webhooks/stripe", webhookHandler.HandleStripeWebhook)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLog.Info(fmt.Sprintf("Server listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Tracing shutdown failed: %v", err))
	}

	appLog.Info("Server exited gracefully")
}

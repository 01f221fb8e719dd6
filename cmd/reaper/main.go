// Standalone expiration reaper. The server runs one in-process; deployments
// that scale the API horizontally run this single instance instead so sweeps
// do not race each other.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daybook-io/daybook/internal/booking"
	"github.com/daybook-io/daybook/internal/giftcode"
	"github.com/daybook-io/daybook/internal/ledger"
	"github.com/daybook-io/daybook/internal/notification"
	"github.com/daybook-io/daybook/internal/repository"
	"github.com/daybook-io/daybook/internal/worker"
	"github.com/daybook-io/daybook/pkg/config"
	"github.com/daybook-io/daybook/pkg/database"
	"github.com/daybook-io/daybook/pkg/kafka"
	"github.com/daybook-io/daybook/pkg/logger"
	pkgredis "github.com/daybook-io/daybook/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       "info",
		Environment: cfg.App.Environment,
		ServiceName: cfg.App.Name + "-reaper",
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting expiration reaper...")

	ctx := context.Background()

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()

	store := repository.NewSQLStore(db.Pool())

	var capacity ledger.Ledger
	switch cfg.Booking.LedgerBackend {
	case "redis":
		redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
		}
		defer redisClient.Close()

		redisLedger := ledger.NewRedisLedger(redisClient, appLog)
		if err := redisLedger.LoadScripts(ctx); err != nil {
			appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
		}
		capacity = redisLedger
	case "fallback":
		capacity = ledger.NewFallbackLedger(ledger.NewSessionBalanceStore(store.Sessions()), appLog)
	default:
		capacity = ledger.NewPostgresLedger(store.Sessions(), appLog)
	}

	var publisher notification.Publisher
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&kafka.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID + "-reaper",
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
			publisher = notification.NewNoOpPublisher()
		} else {
			publisher = notification.NewKafkaPublisher(producer, appLog)
		}
	} else {
		publisher = notification.NewNoOpPublisher()
	}
	defer publisher.Close()

	codeService := giftcode.NewService(store, appLog)
	bookingService := booking.NewService(store, capacity, codeService, publisher, appLog)

	reaper := worker.NewReaper(store, bookingService, publisher, &worker.ReaperConfig{
		ScanInterval: cfg.Booking.ReaperInterval,
		BatchSize:    cfg.Booking.ReaperBatchSize,
	})
	if err := reaper.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Reaper start failed: %v", err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down reaper...")
	reaper.Stop()
	appLog.Info("Reaper exited gracefully")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"inboxpilot/internal/config"
	"inboxpilot/internal/mqhandler"
	"inboxpilot/internal/repository"
	"inboxpilot/pkg/db"
	"inboxpilot/pkg/logger"
	"inboxpilot/pkg/mq"
	"inboxpilot/pkg/otel"
	"inboxpilot/pkg/redis"
	"inboxpilot/pkg/util"
)

const (
	actionLogQueue      = "mailbox.action_log.q"
	actionLogRoutingKey = "mailbox.#"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_DIR"))
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log.Development)
	defer log.Sync()

	if cfg.MQ.URL == "" {
		log.Fatal("mq.url is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Otel.ServiceName += "-worker"
	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("OpenTelemetry init failed", zap.Error(err))
	}
	defer shutdownTracing()

	log.Info("Starting worker service...")

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, true, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	actionLogHandler := mqhandler.NewActionLogHandler(
		repository.NewActionLogRepository(dbConn),
		deduper,
		retryCounter,
		log,
	)

	log.Info("Init consumer: " + actionLogQueue)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, actionLogQueue, actionLogRoutingKey, log)
	if err != nil {
		log.Fatal("Action log consumer init failed", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(actionLogHandler.Handle)

	log.Info("Worker running")
	if err := consumer.StartConsuming(ctx); err != nil {
		log.Error("Action log consumer crashed", zap.Error(err))
	}
	log.Info("Worker stopped")
}

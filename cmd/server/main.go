package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"inboxpilot/internal/assistant"
	"inboxpilot/internal/auth"
	"inboxpilot/internal/config"
	"inboxpilot/internal/confirm"
	"inboxpilot/internal/handler"
	"inboxpilot/internal/httpserver"
	"inboxpilot/internal/intent"
	"inboxpilot/internal/llm"
	"inboxpilot/internal/mailbox"
	"inboxpilot/internal/repository"
	"inboxpilot/pkg/db"
	"inboxpilot/pkg/logger"
	"inboxpilot/pkg/mq"
	"inboxpilot/pkg/otel"
	"inboxpilot/pkg/outbox"
	"inboxpilot/pkg/redis"
	"inboxpilot/pkg/util"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_DIR"))
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log.Development)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("OpenTelemetry init failed", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	checks := map[string]httpserver.ReadinessCheck{
		"db":    dbConn.Ping,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	// 审计事件：outbox 落库 / 直接发 MQ / 不发
	var publisher assistant.Publisher = mq.NopPublisher{}
	if cfg.MQ.URL != "" {
		mqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer mqPublisher.Close()
		publisher = mqPublisher
		checks["mq"] = func(context.Context) error {
			if !mqPublisher.IsConnected() {
				return errors.New("mq connection closed")
			}
			return nil
		}

		if cfg.MQ.Outbox.Enabled {
			outboxRepo := outbox.NewRepository(dbConn)
			publisher = outbox.NewWriter(outboxRepo)

			dispatcher := outbox.NewDispatcher(outboxRepo, mqPublisher, log).
				WithInterval(cfg.MQ.Outbox.Interval).
				WithBatchSize(cfg.MQ.Outbox.BatchSize).
				WithMaxRetries(cfg.MQ.Outbox.MaxRetries)
			go dispatcher.Start(ctx)
		}
	} else {
		log.Warn("mq.url not set, mailbox audit events are disabled")
	}

	// Repositories
	sessionRepo := repository.NewSessionRepository(dbConn)

	// Services
	llmClient := llm.New(cfg.LLM, log)
	classifier := intent.NewClassifier(llmClient, cfg.Assistant.DefaultReadCount, cfg.Assistant.MaxReadCount, log)
	guard := confirm.NewGuard(
		cfg.Confirm.Enabled,
		cfg.Confirm.RequireToken,
		cfg.JWT.Secret,
		cfg.Confirm.TTL,
		util.NewDeduper(rdb, cfg.Confirm.TTL, false, log),
	)
	assistantService := assistant.NewService(
		classifier,
		llmClient,
		mailbox.NewGmailOpener(log),
		guard,
		publisher,
		cfg.Assistant.SummaryWorkers,
		log,
	)
	authService := auth.NewService(cfg.Google, cfg.JWT, sessionRepo, log)

	// Router
	router := httpserver.NewRouter(httpserver.Deps{
		Chat:     handler.NewChatHandler(assistantService, log),
		Auth:     handler.NewAuthHandler(authService, cfg.JWT, cfg.Frontend, log),
		Resolver: authService,
		JWT:      cfg.JWT,
		Frontend: cfg.Frontend,
		Checks:   checks,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting email assistant server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}

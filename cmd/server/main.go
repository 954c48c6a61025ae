package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"langexam/internal/config"
	"langexam/internal/db"
	"langexam/internal/grading"
	"langexam/internal/handlers"
	"langexam/internal/logging"
	"langexam/internal/payments"
	"langexam/internal/ratelimit"
	"langexam/internal/services"
	"langexam/internal/store"
	"langexam/internal/websocket"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, err := logging.NewLogger()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	users := store.NewUserStore(database)
	ledger := store.NewLedgerStore(database)
	sessions := store.NewSessionStore(database)
	content := store.NewContentStore(database)
	packs := store.NewPackStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	provider := payments.NewHTTPProvider(cfg.PaymentAPIURL, cfg.PaymentAPIKey)
	grader := grading.NewHTTPClient(cfg.GradingAPIURL, cfg.GradingAPIKey, cfg.GradingTimeout)
	limiter := ratelimit.NewLimiter(redisClient, 10, time.Minute)

	examService := services.NewExamService(txRunner, users, ledger, sessions, content, grader, hub, logger)
	billingService := services.NewBillingService(txRunner, users, ledger, packs, audit, provider, hub, logger, cfg.CheckoutReturnTo)

	handler := handlers.New(database, txRunner, cfg, logger, users, ledger, sessions, content, admin, audit, examService, billingService, hub, limiter)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("exam API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("shutdown error", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-enrollment-api/internal/repository"
	"github.com/noah-isme/uni-enrollment-api/internal/service"
	"github.com/noah-isme/uni-enrollment-api/pkg/config"
	"github.com/noah-isme/uni-enrollment-api/pkg/database"
	"github.com/noah-isme/uni-enrollment-api/pkg/logger"
	"github.com/noah-isme/uni-enrollment-api/pkg/mailer"
	"github.com/noah-isme/uni-enrollment-api/pkg/mq"
)

// notifier consumes enrollment status events from RabbitMQ and delivers them
// on the configured channels.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	mail, err := mailer.New(cfg.Mail, logr)
	if err != nil {
		logr.Fatal("mailer unavailable", zap.Error(err))
	}

	backend, err := mq.NewRabbitMQ(cfg.RabbitMQ, logr)
	if err != nil {
		logr.Fatal("rabbitmq unavailable", zap.Error(err))
	}
	broker := mq.New(backend)
	defer broker.Close()

	worker := service.NewNotificationWorker(mail, repository.NewNotificationRepository(db), cfg.Notifications.Channels, service.NewMetricsService(), logr)

	logr.Info("notifier consuming", zap.String("queue", cfg.Notifications.Queue), zap.Strings("channels", cfg.Notifications.Channels))
	if err := broker.Subscribe(ctx, cfg.Notifications.Queue, worker.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("subscription ended", zap.Error(err))
	}
	logr.Info("notifier stopped")
}

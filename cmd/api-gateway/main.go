package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/noah-isme/uni-enrollment-api/api/swagger"
	"github.com/noah-isme/uni-enrollment-api/internal/handler"
	"github.com/noah-isme/uni-enrollment-api/internal/repository"
	"github.com/noah-isme/uni-enrollment-api/internal/server"
	"github.com/noah-isme/uni-enrollment-api/internal/service"
	"github.com/noah-isme/uni-enrollment-api/pkg/cache"
	"github.com/noah-isme/uni-enrollment-api/pkg/config"
	"github.com/noah-isme/uni-enrollment-api/pkg/database"
	"github.com/noah-isme/uni-enrollment-api/pkg/jobs"
	"github.com/noah-isme/uni-enrollment-api/pkg/logger"
	"github.com/noah-isme/uni-enrollment-api/pkg/mailer"
	"github.com/noah-isme/uni-enrollment-api/pkg/mq"
	"github.com/noah-isme/uni-enrollment-api/pkg/validation"
)

// @title University Enrollment API
// @version 1.0.0
// @description Course registry and enrollment workflow with asynchronous student notifications.
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("redis unavailable", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validation.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	denylist := repository.NewTokenDenylist(redisClient)

	publisher, shutdownNotifier, err := buildPublisher(cfg, notificationRepo, metrics, logr)
	if err != nil {
		logr.Fatal("notification pipeline unavailable", zap.Error(err))
	}
	defer shutdownNotifier()

	authSvc := service.NewAuthService(userRepo, denylist, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, userRepo, publisher, metrics, validate, logr, service.EnrollmentPolicy{
		MaxPerStudent:         cfg.Enrollment.MaxPerStudent,
		AllowDecisionReversal: cfg.Enrollment.AllowDecisionReversal,
	})
	exportSvc := service.NewExportService(enrollmentRepo, nil, nil, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, logr)

	checks := map[string]handler.Pinger{"database": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	router := server.NewRouter(cfg, logr, metrics, server.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Course:        handler.NewCourseHandler(courseSvc),
		Enrollment:    handler.NewEnrollmentHandler(enrollmentSvc, exportSvc),
		Notification:  handler.NewNotificationHandler(notificationSvc),
		Metrics:       handler.NewMetricsHandler(metrics, checks),
		Authenticator: authSvc,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "notify_driver", cfg.Notifications.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildPublisher wires the configured notification driver. The memory driver
// delivers from an in-process worker pool; the rabbitmq driver only publishes
// and leaves delivery to cmd/notifier.
func buildPublisher(cfg *config.Config, store *repository.NotificationRepository, metrics *service.MetricsService, logr *zap.Logger) (service.EventPublisher, func(), error) {
	switch cfg.Notifications.Driver {
	case config.NotifyDriverRabbitMQ:
		backend, err := mq.NewRabbitMQ(cfg.RabbitMQ, logr)
		if err != nil {
			return nil, nil, err
		}
		broker := mq.New(backend)
		return service.NewBrokerDispatcher(broker, cfg.Notifications.Queue, cfg.Notifications.Channels, metrics), func() { _ = broker.Close() }, nil
	default:
		mail, err := mailer.New(cfg.Mail, logr)
		if err != nil {
			return nil, nil, err
		}
		worker := service.NewNotificationWorker(mail, store, cfg.Notifications.Channels, metrics, logr)
		queue := jobs.NewQueue("notifications", worker.HandleJob, jobs.QueueConfig{
			Workers:       cfg.Notifications.Workers,
			BufferSize:    cfg.Notifications.BufferSize,
			MaxRetries:    cfg.Notifications.MaxRetries,
			RetryDelay:    cfg.Notifications.RetryDelay,
			MaxRetryDelay: cfg.Notifications.MaxRetryDelay,
			OnGiveUp:      worker.HandleGiveUp,
			Logger:        logr,
		})
		// Workers keep consuming until the HTTP server has finished shutting down.
		queue.Start(context.Background())
		return service.NewQueueDispatcher(queue, cfg.Notifications.Channels, metrics), queue.Stop, nil
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/aprendesoft/colegio-api/api/swagger"
	"github.com/aprendesoft/colegio-api/internal/handler"
	"github.com/aprendesoft/colegio-api/internal/middleware"
	"github.com/aprendesoft/colegio-api/internal/repository"
	"github.com/aprendesoft/colegio-api/internal/service"
	"github.com/aprendesoft/colegio-api/pkg/cache"
	"github.com/aprendesoft/colegio-api/pkg/config"
	"github.com/aprendesoft/colegio-api/pkg/database"
	"github.com/aprendesoft/colegio-api/pkg/logger"
	"github.com/aprendesoft/colegio-api/pkg/mailer"
	corsmiddleware "github.com/aprendesoft/colegio-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aprendesoft/colegio-api/pkg/middleware/requestid"
	"github.com/aprendesoft/colegio-api/pkg/storage"
)

// @title Colegio API
// @version 1.0.0
// @description Backend de asistencia escolar: planillas, excusas, notificaciones y reportes.
// @BasePath /api/v1
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, report caching disabled", zap.Error(err))
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Fatal("failed to init upload storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	var mail mailer.Mailer
	if cfg.Mail.Enabled {
		mail = mailer.NewSendGridMailer(cfg.Mail)
	} else {
		mail = &mailer.NoopMailer{Logger: logr}
	}

	metricsSvc := service.NewMetricsService()
	relay := service.NewMailRelay(mail, cfg.Notifier, metricsSvc, logr)
	relayCtx, relayCancel := context.WithCancel(context.Background())
	relay.Start(relayCtx)
	defer relayCancel()
	defer relay.Stop()

	// repositories
	txRunner := repository.NewTxRunner(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	excuseRepo := repository.NewExcuseRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	parentRepo := repository.NewParentRepository(db)

	// services
	authSvc := service.NewAuthService(userRepo, tokenRepo, cfg.JWT, nil, logr)
	notifier := service.NewAbsenceNotifier(parentRepo, notificationRepo, cfg.Attendance, metricsSvc, logr)
	attendanceSvc := service.NewAttendanceService(
		attendanceRepo, courseRepo, enrollmentRepo, policyRepo, parentRepo,
		txRunner, notifier, relay, nil, logr,
	)
	excuseSvc := service.NewExcuseService(excuseRepo, attendanceRepo, courseRepo, enrollmentRepo, parentRepo, txRunner, nil, logr)
	reportSvc := service.NewReportService(
		attendanceRepo, courseRepo, policyRepo, notifier, redisClient,
		cfg.Attendance, cfg.Reports, logr,
	)
	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	messagingSvc := service.NewMessagingService(notificationRepo, userRepo, parentRepo, relay, nil, logr)
	parentSvc := service.NewParentService(parentRepo, userRepo, txRunner, relay, nil, logr)

	router := &handler.Router{
		Auth:          handler.NewAuthHandler(authSvc),
		Attendance:    handler.NewAttendanceHandler(attendanceSvc, metricsSvc, store, signer, cfg.Uploads.MaxFileSize),
		Excuses:       handler.NewExcuseHandler(excuseSvc, metricsSvc, store, cfg.Uploads.MaxFileSize),
		Reports:       handler.NewReportHandler(reportSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Messaging:     handler.NewMessagingHandler(messagingSvc),
		Parents:       handler.NewParentHandler(parentSvc),
		Attachments:   handler.NewAttachmentHandler(store, signer),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.Register(r, cfg.APIPrefix, authSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

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

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-fees-api/api/swagger"
	"github.com/noah-isme/sma-fees-api/internal/handler"
	"github.com/noah-isme/sma-fees-api/internal/middleware"
	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	"github.com/noah-isme/sma-fees-api/internal/service"
	"github.com/noah-isme/sma-fees-api/pkg/cache"
	"github.com/noah-isme/sma-fees-api/pkg/config"
	"github.com/noah-isme/sma-fees-api/pkg/database"
	"github.com/noah-isme/sma-fees-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-fees-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-fees-api/pkg/middleware/requestid"
)

// @title SMA Fees API
// @version 0.1.0
// @description Student fee billing ledger and reconciliation service
// @BasePath /
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, idempotency keys disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := service.NewValidator()
	metricsSvc := service.NewMetricsService()

	studentRepo := repository.NewStudentRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var idemRepo *repository.IdempotencyRepository
	if cfg.Idempotency.Enabled && redisClient != nil {
		idemRepo = repository.NewIdempotencyRepository(redisClient, cfg.Idempotency.TTL)
	} else {
		idemRepo = repository.NewIdempotencyRepository(nil, 0)
	}

	activitySvc := service.NewActivityService(auditRepo, logr, cfg.Audit.Workers, cfg.Audit.BufferSize, cfg.Audit.Enabled)
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	activitySvc.Start(rootCtx)
	defer activitySvc.Stop()

	authSvc := service.NewAuthService(cfg.JWT)
	issuanceSvc := service.NewIssuanceService(balanceRepo, studentRepo, idemRepo, metricsSvc, activitySvc, validate, logr)
	balanceSvc := service.NewBalanceService(balanceRepo, studentRepo, metricsSvc, activitySvc, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, balanceRepo, idemRepo, metricsSvc, activitySvc, cfg.Payments, validate, logr)
	reminderSvc := service.NewReminderService(balanceRepo, notificationRepo, metricsSvc, activitySvc, cfg.Reminders, logr)
	reconciliationSvc := service.NewReconciliationService(studentRepo, metricsSvc, activitySvc, logr)
	studentSvc := service.NewStudentService(studentRepo, activitySvc, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, activitySvc, logr)

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)
	balanceHandler := handler.NewBalanceHandler(balanceSvc, issuanceSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	reminderHandler := handler.NewReminderHandler(reminderSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, reconciliationSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCashier)
	admin := middleware.RequireRoles(models.RoleAdmin)

	balances := api.Group("/balances")
	{
		balances.GET("", balanceHandler.List)
		balances.GET("/:id", balanceHandler.Get)
		balances.POST("", staff, balanceHandler.Create)
		balances.POST("/bulk", admin, balanceHandler.BulkIssue)
		balances.PUT("/:id/cancel", admin, balanceHandler.Cancel)
	}

	payments := api.Group("/payments")
	{
		payments.GET("", paymentHandler.List)
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("", staff, paymentHandler.Process)
	}

	api.POST("/reminders/run", staff, reminderHandler.Run)

	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.PUT("/:id/read", notificationHandler.MarkRead)
	}

	students := api.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", admin, studentHandler.Create)
		if cfg.Reconciliation.Enabled {
			students.POST("/reconcile", admin, studentHandler.Reconcile)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/studyplanhq/studyplan-api/api/swagger"
	"github.com/studyplanhq/studyplan-api/internal/handler"
	"github.com/studyplanhq/studyplan-api/internal/middleware"
	"github.com/studyplanhq/studyplan-api/internal/repository"
	"github.com/studyplanhq/studyplan-api/internal/scheduler"
	"github.com/studyplanhq/studyplan-api/internal/service"
	"github.com/studyplanhq/studyplan-api/pkg/cache"
	"github.com/studyplanhq/studyplan-api/pkg/config"
	"github.com/studyplanhq/studyplan-api/pkg/database"
	"github.com/studyplanhq/studyplan-api/pkg/jobs"
	"github.com/studyplanhq/studyplan-api/pkg/logger"
	corsmiddleware "github.com/studyplanhq/studyplan-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studyplanhq/studyplan-api/pkg/middleware/requestid"
)

// @title Study Plan API
// @version 1.0.0
// @description Personalized study calendar engine: plan generation, spaced repetition and rescheduling
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, agenda caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	planRepo := repository.NewPlanRepository(db)
	themeRepo := repository.NewThemeRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	statRepo := repository.NewThemeStatRepository(db)
	jobRepo := repository.NewPlanJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	params := scheduler.Params{
		ReviewMultiplier:  cfg.Engine.ReviewMultiplier,
		InitialEase:       cfg.Engine.InitialEaseFactor,
		MinEase:           cfg.Engine.MinEaseFactor,
		FailedEasePenalty: cfg.Engine.FailedEasePenalty,
		SuccessRateWeight: cfg.Engine.SuccessRateWeight,
	}
	builder := scheduler.NewBuilder(params, cfg.Engine.MaxSessionHours, cfg.Engine.ExcessiveBufferRatio)

	planService := service.NewPlanService(
		planRepo, themeRepo, sessionRepo, statRepo, jobRepo,
		db, cacheRepo, metrics,
		service.PlanServiceConfig{Builder: builder, MaxPendingSessions: cfg.Engine.MaxPendingSessions},
		validate, logr,
	)
	sessionService := service.NewSessionService(
		sessionRepo, planRepo, statRepo, planService, db, cacheRepo, metrics,
		params, cfg.Engine.SkipRebalanceRatio, validate, logr,
	)
	agendaService := service.NewAgendaService(
		planRepo, sessionRepo, themeRepo, statRepo, cacheRepo, metrics,
		cfg.Agenda.CacheTTL, logr,
	)
	manualService := service.NewManualPlanService(
		planRepo, sessionRepo, themeRepo, db, cacheRepo,
		cfg.Engine.MaxPendingSessions, validate, logr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue("plan-engine", planService.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	planService.SetQueue(queue)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "metrics": metrics.Snapshot()})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	planHandler := handler.NewPlanHandler(planService, manualService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	agendaHandler := handler.NewAgendaHandler(agendaService)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Auth(cfg.JWT.Secret))
	{
		api.POST("/plans", planHandler.Create)
		api.GET("/plans/:id", planHandler.Get)
		api.GET("/plans/:id/jobs/:jobId", planHandler.GetJob)
		api.GET("/plans/:id/agenda", agendaHandler.Get)
		api.POST("/plans/:id/rebalance", planHandler.Rebalance)
		api.PUT("/plans/:id/sessions", planHandler.ApplyManual)
		api.POST("/plans/:id/archive", planHandler.Archive)
		api.GET("/plans/:id/stats", planHandler.Stats)
		api.GET("/plans/:id/theme-stats", planHandler.ThemeStats)

		api.POST("/sessions/:id/complete", sessionHandler.Complete)
		api.POST("/sessions/:id/skip", sessionHandler.Skip)
		api.POST("/sessions/:id/start", sessionHandler.Start)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Sugar().Warnw("redis close failed", "error", err)
	}
}

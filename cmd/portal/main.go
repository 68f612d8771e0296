package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/volunhub/volunhub-api/api/swagger"
	"github.com/volunhub/volunhub-api/internal/handler"
	"github.com/volunhub/volunhub-api/internal/middleware"
	"github.com/volunhub/volunhub-api/internal/models"
	"github.com/volunhub/volunhub-api/internal/repository"
	"github.com/volunhub/volunhub-api/internal/service"
	"github.com/volunhub/volunhub-api/pkg/cache"
	"github.com/volunhub/volunhub-api/pkg/config"
	"github.com/volunhub/volunhub-api/pkg/database"
	"github.com/volunhub/volunhub-api/pkg/jobs"
	"github.com/volunhub/volunhub-api/pkg/logger"
	corsmiddleware "github.com/volunhub/volunhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/volunhub/volunhub-api/pkg/middleware/requestid"
	"github.com/volunhub/volunhub-api/pkg/storage"
)

// @title VolunHub Portal API
// @version 1.0.0
// @description Enrollment lifecycle and hour accrual for community-service projects
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, progress caching disabled", "error", err)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Progress.CacheTTL, logr, cfg.Progress.CacheEnabled)
	}

	// Services.
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "volunhub-api",
		Audience:           []string{"volunhub-portal"},
	})

	gate := service.NewGate(cfg.Enrollment.AllowAdminRemoval)
	notificationSvc := service.NewNotificationService(notificationRepo, logr, cfg.Notifications.Enabled)
	hoursSvc := service.NewHoursService(activityRepo, enrollmentRepo, projectRepo, cacheSvc, cfg.Progress.CacheTTL, logr)

	enrollmentSvc := service.NewEnrollmentService(service.EnrollmentServiceParams{
		Repo:          enrollmentRepo,
		Projects:      projectRepo,
		Dispatcher:    notificationSvc,
		Progress:      hoursSvc,
		Gate:          gate,
		AllowResubmit: cfg.Enrollment.AllowResubmit,
		Validator:     validate,
		Logger:        logr,
	})

	activitySvc := service.NewActivityService(service.ActivityServiceParams{
		Repo:        activityRepo,
		Projects:    projectRepo,
		Enrollments: enrollmentRepo,
		Dispatcher:  notificationSvc,
		Progress:    hoursSvc,
		Gate:        gate,
		Validator:   validate,
		Logger:      logr,
	})

	projectSvc := service.NewProjectService(service.ProjectServiceParams{
		Repo:        projectRepo,
		Ledger:      activityRepo,
		Gate:        gate,
		Invalidator: hoursSvc,
		Validator:   validate,
		Logger:      logr,
	})

	var exportSvc *service.ExportService
	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("export storage init failed", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

		var queue *jobs.Queue
		exportSvc = service.NewExportService(service.ExportServiceParams{
			JobsRepo:  exportJobRepo,
			Hours:     hoursSvc,
			Users:     userRepo,
			Projects:  projectRepo,
			Store:     store,
			Signer:    signer,
			Queue:     queueHandle{queue: &queue},
			Metrics:   metricsSvc,
			Validator: validate,
			Logger:    logr,
			ResultTTL: cfg.Exports.ResultTTL,
		})
		queue = jobs.NewQueue("exports", exportSvc.Process, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportQueue = queue
		exportQueue.Start(context.Background())
		defer exportQueue.Stop()

		if err := exportSvc.Requeue(context.Background()); err != nil {
			logr.Sugar().Warnw("export requeue failed", "error", err)
		}
	}

	// Periodic maintenance: expired export artifacts and old
	// notifications.
	maintCtx, stopMaintenance := context.WithCancel(context.Background())
	defer stopMaintenance()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-maintCtx.Done():
				return
			case <-ticker.C:
				if exportSvc != nil {
					if err := exportSvc.Cleanup(maintCtx); err != nil {
						logr.Sugar().Warnw("export cleanup failed", "error", err)
					}
				}
				if _, err := notificationSvc.Prune(maintCtx, cfg.Notifications.RetentionDays); err != nil {
					logr.Sugar().Warnw("notification prune failed", "error", err)
				}
			}
		}
	}()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	projectHandler := handler.NewProjectHandler(projectSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, metricsSvc)
	activityHandler := handler.NewActivityHandler(activitySvc, metricsSvc)
	hoursHandler := handler.NewHoursHandler(hoursSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	admin := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	projects := api.Group("/projects", middleware.JWT(authSvc))
	{
		projects.GET("", projectHandler.List)
		projects.GET("/:id", projectHandler.Get)
		projects.POST("", admin,
			middleware.Audit(userRepo, models.AuditActionProjectCreate, "project"), projectHandler.Create)
		projects.PUT("/:id", admin,
			middleware.Audit(userRepo, models.AuditActionProjectUpdate, "project"), projectHandler.Update)
		projects.PUT("/:id/enrollment-window", admin,
			middleware.Audit(userRepo, models.AuditActionProjectUpdate, "project"), projectHandler.SetEnrollmentOpen)
		projects.DELETE("/:id", admin,
			middleware.Audit(userRepo, models.AuditActionProjectUpdate, "project"), projectHandler.Delete)

		projects.GET("/:id/activities", activityHandler.ListByProject)
		projects.GET("/:id/progress", hoursHandler.ProjectProgress)
		projects.GET("/:id/progress/:volunteerId", hoursHandler.VolunteerProgress)

		projects.GET("/:id/enrollments/:volunteerId/status", enrollmentHandler.Status)
		projects.DELETE("/:id/enrollments/:volunteerId",
			middleware.Audit(userRepo, models.AuditActionEnrollmentRemoval, "enrollment"), enrollmentHandler.Withdraw)
		projects.PUT("/:id/enrollments/:volunteerId/approve", admin,
			middleware.Audit(userRepo, models.AuditActionEnrollmentReview, "enrollment"), enrollmentHandler.Approve)
		projects.PUT("/:id/enrollments/:volunteerId/reject", admin,
			middleware.Audit(userRepo, models.AuditActionEnrollmentReview, "enrollment"), enrollmentHandler.Reject)
	}

	enrollments := api.Group("/enrollments", middleware.JWT(authSvc))
	{
		enrollments.GET("", admin, enrollmentHandler.List)
		enrollments.POST("", enrollmentHandler.Submit)
	}

	activities := api.Group("/activities", middleware.JWT(authSvc), admin)
	{
		activities.POST("",
			middleware.Audit(userRepo, models.AuditActionActivityMutate, "activity"), activityHandler.Add)
		activities.PUT("/:id",
			middleware.Audit(userRepo, models.AuditActionActivityMutate, "activity"), activityHandler.Edit)
		activities.DELETE("/:id",
			middleware.Audit(userRepo, models.AuditActionActivityMutate, "activity"), activityHandler.Remove)
		activities.PUT("/:id/certify",
			middleware.Audit(userRepo, models.AuditActionActivityCertify, "activity"), activityHandler.Certify)
	}

	volunteers := api.Group("/volunteers", middleware.JWT(authSvc))
	{
		volunteers.GET("/:volunteerId/hours",
			middleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin), "SELF"), hoursHandler.Summary)
	}

	notifications := api.Group("/notifications", middleware.JWT(authSvc))
	{
		notifications.GET("", notificationHandler.List)
		notifications.PUT("/:id/read", notificationHandler.MarkRead)
	}

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		exports := api.Group("/exports")
		{
			exports.POST("", middleware.JWT(authSvc), exportHandler.Create)
			exports.GET("/:id", middleware.JWT(authSvc), exportHandler.Get)
			// Downloads authenticate through the signed token itself.
			exports.GET("/download/:token", exportHandler.Download)
		}
	}

	api.GET("/admin/metrics", middleware.JWT(authSvc), admin, metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// queueHandle defers queue resolution so the export service and its
// queue can reference each other.
type queueHandle struct {
	queue **jobs.Queue
}

func (h queueHandle) Enqueue(job jobs.Job) error {
	if h.queue == nil || *h.queue == nil {
		return fmt.Errorf("export queue not ready")
	}
	return (*h.queue).Enqueue(job)
}

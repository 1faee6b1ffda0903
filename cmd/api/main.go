package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/fundeport/academy-api/api/swagger"
	"github.com/fundeport/academy-api/internal/handler"
	"github.com/fundeport/academy-api/internal/middleware"
	"github.com/fundeport/academy-api/internal/models"
	"github.com/fundeport/academy-api/internal/repository"
	"github.com/fundeport/academy-api/internal/service"
	"github.com/fundeport/academy-api/pkg/cache"
	"github.com/fundeport/academy-api/pkg/config"
	"github.com/fundeport/academy-api/pkg/database"
	"github.com/fundeport/academy-api/pkg/export"
	"github.com/fundeport/academy-api/pkg/logger"
	corsmiddleware "github.com/fundeport/academy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fundeport/academy-api/pkg/middleware/requestid"
	"github.com/fundeport/academy-api/pkg/storage"
)

// @title Academy API
// @version 1.0.0
// @description Academy administration backend: courses, sections, scheduling and enrollments
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Catalog.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, cacheRepo != nil)

	fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	resourceRepo := repository.NewResourceRepository(db)

	authSvc := service.NewAuthService(userRepo, cfg.JWT, validate, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, validate, logr)
	conflictSvc := service.NewScheduleConflictService(scheduleRepo, logr)
	sectionSvc := service.NewSectionService(sectionRepo, scheduleRepo, courseRepo, userRepo, conflictSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, sectionRepo, scheduleRepo, conflictSvc, cfg.Grading, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, sectionRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, enrollmentRepo, validate, logr)
	resourceSvc := service.NewResourceService(resourceRepo, sessionRepo, validate, logr)
	exportSvc := service.NewExportService(sectionRepo, enrollmentRepo, fileStore, signer,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
		logr, export.NewCSVExporter(), export.NewPDFExporter())

	authHandler := handler.NewAuthHandler(authSvc, cfg.Env == config.EnvProduction)
	userHandler := handler.NewUserHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc, enrollmentSvc, exportSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	resourceHandler := handler.NewResourceHandler(resourceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	exportHandler := handler.NewExportHandler(exportSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := string(models.RoleAdmin)
	teacher := string(models.RoleTeacher)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)

	// Download links carry their own signed, expiring token.
	api.GET("/exports/:token", exportHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/auth/change-password", authHandler.ChangePassword)

	users := authed.Group("/users")
	users.GET("", middleware.RBAC(admin), userHandler.List)
	users.POST("", middleware.RBAC(admin), userHandler.Create)
	users.GET("/:id", middleware.RBAC(admin, middleware.SelfRule), userHandler.Get)
	users.PUT("/:id", middleware.RBAC(admin), userHandler.Update)
	users.PATCH("/:id/status", middleware.RBAC(admin), userHandler.SetActive)

	courses := authed.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/:id", courseHandler.Get)
	courses.POST("", middleware.RBAC(admin), courseHandler.Create)
	courses.PUT("/:id", middleware.RBAC(admin), courseHandler.Update)
	courses.DELETE("/:id", middleware.RBAC(admin), courseHandler.Delete)

	sections := authed.Group("/sections")
	sections.GET("", sectionHandler.List)
	sections.GET("/:id", sectionHandler.Get)
	sections.POST("", middleware.RBAC(admin), sectionHandler.Create)
	sections.PUT("/:id", middleware.RBAC(admin), sectionHandler.Update)
	sections.PATCH("/:id/status", middleware.RBAC(admin), sectionHandler.SetActive)
	sections.DELETE("/:id", middleware.RBAC(admin), sectionHandler.Delete)
	sections.GET("/:id/roster", middleware.RBAC(admin, teacher), sectionHandler.Roster)
	sections.POST("/:id/export", middleware.RBAC(admin, teacher), sectionHandler.ExportRoster)
	sections.GET("/:id/sessions", sessionHandler.ListBySection)

	sessions := authed.Group("/sessions")
	sessions.GET("/:id", sessionHandler.Get)
	sessions.PATCH("/:id", middleware.RBAC(admin, teacher), sessionHandler.UpdateInfo)
	sessions.GET("/:id/attendance", middleware.RBAC(admin, teacher), attendanceHandler.Sheet)
	sessions.PUT("/:id/attendance", middleware.RBAC(admin, teacher), attendanceHandler.Record)
	sessions.POST("/:id/attendance/bulk", middleware.RBAC(admin, teacher), attendanceHandler.BulkRecord)
	sessions.GET("/:id/resources", resourceHandler.ListBySession)
	sessions.POST("/:id/resources", middleware.RBAC(admin, teacher), resourceHandler.Create)

	authed.DELETE("/resources/:id", middleware.RBAC(admin, teacher), resourceHandler.Delete)

	enrollments := authed.Group("/enrollments")
	enrollments.GET("", middleware.RBAC(admin, teacher), enrollmentHandler.List)
	enrollments.GET("/:id", middleware.RBAC(admin, teacher), enrollmentHandler.Get)
	enrollments.POST("", middleware.RBAC(admin), enrollmentHandler.Enroll)
	enrollments.POST("/withdraw", middleware.RBAC(admin), enrollmentHandler.Withdraw)
	enrollments.PATCH("/:id/grade", middleware.RBAC(admin, teacher), enrollmentHandler.AssignFinalGrade)

	authed.GET("/students/:id/enrollments", middleware.RBAC(admin, teacher, middleware.SelfRule), enrollmentHandler.StudentHistory)

	authed.GET("/metrics/snapshot", middleware.RBAC(admin), metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

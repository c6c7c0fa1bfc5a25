package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sabaq-dev/sabaq-api/internal/config"
	"github.com/sabaq-dev/sabaq-api/internal/database"
	"github.com/sabaq-dev/sabaq-api/internal/handler"
	"github.com/sabaq-dev/sabaq-api/internal/middleware"
	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
	"github.com/sabaq-dev/sabaq-api/internal/router"
	"github.com/sabaq-dev/sabaq-api/internal/service"
	"github.com/sabaq-dev/sabaq-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Course{},
		&models.SubjectGroup{},
		&models.CourseSection{},
		&models.Resource{},
		&models.Assignment{},
		&models.AssignmentAttachment{},
		&models.Test{},
		&models.Question{},
		&models.Option{},
		&models.Attempt{},
		&models.Answer{},
		&models.ActivityLog{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set, sync status caching disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	} else {
		logger.Warn().Msg("nats url not set, template events handled in-process")
	}

	var files service.FileStore
	if cfg.CloudinaryCloudName != "" {
		store, err := storage.New(storage.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create storage client: %v", err)
		}
		files = store
	} else {
		logger.Warn().Msg("cloudinary not configured, file uploads disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	courseRepo := repository.NewCourseRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	testRepo := repository.NewTestRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	syncRepo := repository.NewSyncRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activity := service.NewActivityService(activityRepo, logger)
	access := service.NewRoleAccessChecker("teacher", "admin")

	syncService := service.NewSyncService(syncRepo, courseRepo, sectionRepo, redisClient, cfg.SyncStatusCacheTTL, access, activity, logger)
	templateService := service.NewTemplateService(courseRepo, sectionRepo, syncService, natsConn, logger)
	courseService := service.NewCourseService(courseRepo, templateService, validate, activity, logger)
	sectionService := service.NewSectionService(sectionRepo, syncRepo, validate, activity, logger)
	resourceService := service.NewResourceService(resourceRepo, sectionRepo, syncRepo, templateService, files, validate, activity, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, sectionRepo, syncRepo, templateService, files, validate, activity, logger)
	testService := service.NewTestService(testRepo, attemptRepo, sectionRepo, syncRepo, validate, activity, logger)
	attemptService := service.NewAttemptService(attemptRepo, testRepo, activity, logger)
	linkService := service.NewLinkService(sectionRepo, resourceRepo, assignmentRepo, testRepo, activity, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	templateService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		CourseHandler:     handler.NewCourseHandler(courseService, validate, logger),
		SectionHandler:    handler.NewSectionHandler(sectionService, validate, logger),
		ResourceHandler:   handler.NewResourceHandler(resourceService, validate, logger),
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, validate, logger),
		TestHandler:       handler.NewTestHandler(testService, validate, logger),
		AttemptHandler:    handler.NewAttemptHandler(attemptService, validate, logger),
		SyncHandler:       handler.NewSyncHandler(syncService, linkService, validate, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(ctx, app)
}

func waitForShutdown(ctx context.Context, app *fiber.App) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}

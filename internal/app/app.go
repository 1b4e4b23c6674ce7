package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/handler"
	"github.com/noah-isme/tutor-scheduler-api/internal/repository"
	"github.com/noah-isme/tutor-scheduler-api/internal/service"
	"github.com/noah-isme/tutor-scheduler-api/pkg/cache"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	"github.com/noah-isme/tutor-scheduler-api/pkg/config"
	"github.com/noah-isme/tutor-scheduler-api/pkg/database"
	"github.com/noah-isme/tutor-scheduler-api/pkg/export"
	"github.com/noah-isme/tutor-scheduler-api/pkg/jobs"
	"github.com/noah-isme/tutor-scheduler-api/pkg/retry"
)

const cacheNamespace = "tutor-scheduler"

// App holds the wired scheduler services and the connections they share.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB          *sqlx.DB
	Redis       *redis.Client
	Transactor  *repository.Transactor
	CacheRepo   *repository.CacheRepository
	Notifier    *jobs.Queue
	Metrics     *service.MetricsService
	Auth        *service.AuthService
	Availability *service.AvailabilityService
	Bookings    *service.BookingService
	Recurring   *service.RecurringSlotService
	Generation  *service.LessonGenerationService
	Lessons     *service.LessonService
	Exports     *service.ExportService
}

// New connects to Postgres (and Redis when enabled) and wires every service.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, availability cache disabled", zap.Error(err))
		redisClient = nil
	}

	a := &App{Config: cfg, Logger: logger, DB: db, Redis: redisClient}
	a.wire()
	return a, nil
}

func (a *App) wire() {
	cfg := a.Config
	logger := a.Logger
	validate := validator.New()
	clk := clock.NewSystem(cfg.Scheduler.DefaultTimezone)
	retries := retry.FromConfig(cfg.Retry)
	policies := service.BookingPolicies{Write: retries.Critical, Read: retries.BestEffort}

	a.Metrics = service.NewMetricsService()
	a.Auth = service.NewAuthService(cfg.JWT.Secret, cacheNamespace)

	a.Transactor = repository.NewTransactor(a.DB)
	teachers := repository.NewTeacherRepository(a.DB)
	availability := repository.NewAvailabilityRepository(a.DB)
	blocked := repository.NewBlockedTimeRepository(a.DB)
	lessons := repository.NewLessonRepository(a.DB)
	slots := repository.NewRecurringSlotRepository(a.DB)
	subs := repository.NewSubscriptionRepository(a.DB)
	a.CacheRepo = repository.NewCacheRepository(a.Redis, cacheNamespace, logger)

	cacheSvc := service.NewCacheService(a.CacheRepo, a.Metrics, cfg.Scheduler.AvailabilityCacheTTL, logger, a.Redis != nil)

	worker := service.NewNotificationWorker(service.NewLogSender(logger), logger)
	a.Notifier = jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logger,
	})
	notifier := service.NewNotificationService(a.Notifier, logger)

	detector := service.NewConflictDetector(availability, blocked, lessons, clk, cfg.Scheduler.DefaultHorizonDays, cfg.Scheduler.DefaultMinNotice)
	creator := service.NewLessonCreator(detector, lessons, subs, a.Transactor, clk, logger)

	a.Availability = service.NewAvailabilityService(availability, blocked, teachers, a.Transactor, cacheSvc, clk, service.AvailabilityServiceConfig{
		ReadPolicy:   retries.BestEffort,
		StoreTimeout: cfg.Scheduler.StoreTimeout,
		CacheTTL:     cfg.Scheduler.AvailabilityCacheTTL,
	}, validate, logger)
	a.Bookings = service.NewBookingService(teachers, creator, notifier, a.Metrics, clk, policies, cfg.Scheduler.StoreTimeout, validate, logger)
	a.Recurring = service.NewRecurringSlotService(slots, subs, lessons, teachers, creator, a.Transactor, service.NewCancellationService(), notifier, a.Metrics, clk,
		service.RecurringSlotConfig{InitialWeeks: cfg.Scheduler.InitialWeeks, StoreTimeout: cfg.Scheduler.StoreTimeout, Policies: policies}, validate, logger)
	a.Generation = service.NewLessonGenerationService(slots, lessons, availability, blocked, teachers, creator, a.Metrics, clk,
		service.LessonGenerationConfig{HorizonWeeks: cfg.Scheduler.HorizonWeeks, StoreTimeout: cfg.Scheduler.StoreTimeout, Policies: policies}, logger)
	a.Lessons = service.NewLessonService(lessons, slots, subs, teachers, a.Transactor, a.Metrics, clk, policies, cfg.Scheduler.StoreTimeout, validate, logger)
	a.Exports = service.NewExportService(a.Lessons, logger, export.NewCSVExporter(), export.NewPDFExporter())
}

// Handlers builds the HTTP handlers over the wired services.
func (a *App) Handlers() handler.Handlers {
	return handler.Handlers{
		Bookings:     handler.NewBookingHandler(a.Bookings, a.Recurring),
		Lessons:      handler.NewLessonHandler(a.Lessons, a.Exports),
		Availability: handler.NewAvailabilityHandler(a.Availability),
		Jobs:         handler.NewJobHandler(a.Generation),
		Metrics: handler.NewMetricsHandler(a.Metrics, map[string]handler.Pinger{
			"postgres": a.Transactor,
			"redis":    a.CacheRepo,
		}),
	}
}

// Start launches background workers until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.Notifier.Start(ctx)
}

// Close stops workers and releases connections.
func (a *App) Close() {
	if a.Notifier != nil {
		a.Notifier.Stop()
	}
	if a.CacheRepo != nil {
		if err := a.CacheRepo.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("close postgres", zap.Error(err))
		}
	}
}

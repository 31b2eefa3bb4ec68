package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/stanstork/medequip-events/internal/alerting"
	"github.com/stanstork/medequip-events/internal/audit"
	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/config"
	"github.com/stanstork/medequip-events/internal/handlers"
	"github.com/stanstork/medequip-events/internal/metrics"
	"github.com/stanstork/medequip-events/internal/middleware"
	"github.com/stanstork/medequip-events/internal/migration"
	"github.com/stanstork/medequip-events/internal/notification"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/recipients"
	"github.com/stanstork/medequip-events/internal/repository"
	"github.com/stanstork/medequip-events/internal/routes"
	"github.com/stanstork/medequip-events/internal/scheduler"
	"github.com/stanstork/medequip-events/internal/temporal"
	"github.com/stanstork/medequip-events/internal/temporal/activities"
	"github.com/stanstork/medequip-events/internal/temporal/workflows"
)

// stores groups the persistence backends of the pipeline.
type stores struct {
	audit         repository.AuditRepository
	metrics       repository.MetricRepository
	alerts        repository.AlertRepository
	reminders     repository.ReminderRepository
	notifications repository.NotificationRepository
	directory     repository.DirectoryRepository
	failures      repository.FailureRepository
}

type application struct {
	config         *config.Config
	db             *sql.DB
	redis          *redis.Client
	temporalClient tc.Client
	stores         stores
	logger         zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// Load configuration.
	cfg := config.Load()

	app := &application{config: cfg, logger: logger}

	// Initialize database connection. Without a database URL the pipeline
	// runs on in-memory stores, which is only meant for local development.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to the database")
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to ping database")
		}
		migration.RunMigrations(cfg.DatabaseURL, logger)
		app.db = db
		app.stores = postgresStores(db)
	} else {
		logger.Warn().Msg("No database configured, using in-memory stores")
		app.stores = memoryStores()
	}

	// Initialize Redis, shared by cooldowns, rate limits, idempotency and broadcast.
	app.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer app.redis.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := app.redis.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping redis")
	}
	cancelPing()

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewLogAdapter(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()
	app.temporalClient = temporalClient

	runner, engine, dispatcher := app.buildPipeline()

	// Start the Temporal worker in a separate goroutine.
	temporalWorker := app.startTemporalWorker(runner, engine)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(dispatcher)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker)

	logger.Info().Msg("Application terminated.")
}

func postgresStores(db *sql.DB) stores {
	return stores{
		audit:         repository.NewAuditRepository(db),
		metrics:       repository.NewMetricRepository(db),
		alerts:        repository.NewAlertRepository(db),
		reminders:     repository.NewReminderRepository(db),
		notifications: repository.NewNotificationRepository(db),
		directory:     repository.NewDirectoryRepository(db),
		failures:      repository.NewFailureRepository(db),
	}
}

func memoryStores() stores {
	return stores{
		audit:         repository.NewMemoryAuditRepo(),
		metrics:       repository.NewMemoryMetricRepo(),
		alerts:        repository.NewMemoryAlertRepo(),
		reminders:     repository.NewMemoryReminderRepo(),
		notifications: repository.NewMemoryNotificationRepo(),
		directory:     repository.NewMemoryDirectory(),
		failures:      repository.NewMemoryFailureRepo(),
	}
}

// buildPipeline wires the consumers and the runner that executes them.
func (app *application) buildPipeline() (*pipeline.Runner, *alerting.Engine, *notification.Dispatcher) {
	cfg := app.config
	logger := app.logger
	store := cache.NewRedisStore(app.redis)
	claims := cache.NewClaimer(store, cfg.Pipeline.IdempotencyTTL)

	trends := metrics.NewTrendDetector(app.stores.metrics, metrics.TrendConfig{
		WindowDays:       cfg.Metrics.TrendWindowDays,
		MinPoints:        cfg.Metrics.TrendMinPoints,
		DefaultThreshold: cfg.Metrics.TrendDefaultThreshold,
		Thresholds:       cfg.Metrics.TrendThresholds,
	})
	engine := alerting.NewEngine(app.stores.alerts, app.stores.metrics, trends, store, alerting.Config{
		Cooldown:   cfg.Alerts.Cooldown,
		AlertTTL:   cfg.Alerts.AlertTTL,
		ClaimTTL:   cfg.Pipeline.IdempotencyTTL,
		Thresholds: cfg.Alerts.Thresholds,
	}, logger)

	var mail notification.Notifier
	if cfg.Email.Enabled() {
		mailer, err := notification.NewSMTPMailer(cfg.Email)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure mailer")
		}
		mail = notification.NewEmailNotifier(mailer, logger)
	} else {
		logger.Warn().Msg("SMTP not configured, mail channel disabled")
	}
	dispatcher := notification.NewDispatcher(
		app.stores.notifications,
		recipients.NewResolver(app.stores.directory, logger),
		notification.NewRateLimiter(store, cfg.Notifications.RateCaps),
		claims,
		notification.DispatcherConfig{
			Broadcast:   notification.NewBroadcastNotifier(store),
			Mail:        mail,
			AlwaysEmail: notification.ParseAlwaysEmail(cfg.Notifications.AlwaysEmail),
		},
		logger,
	)

	runner := pipeline.NewRunner(pipeline.DefaultRoutes(), map[pipeline.Kind]pipeline.Consumer{
		pipeline.KindAudit:    audit.NewWriter(app.stores.audit, logger),
		pipeline.KindMetrics:  metrics.NewAggregator(app.stores.metrics, claims, logger),
		pipeline.KindAlerts:   engine,
		pipeline.KindNotify:   dispatcher,
		pipeline.KindSchedule: scheduler.NewScheduler(app.stores.reminders, store, cfg.Scheduler.SLACacheTTL, logger),
	}, logger)

	return runner, engine, dispatcher
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(dispatcher *notification.Dispatcher) http.Handler {
	cfg := app.config
	logger := app.logger

	submitter := temporal.NewSubmitter(app.temporalClient, cfg.Temporal.TaskQueue, cfg.Pipeline.ProcessingTimeout, cfg.Pipeline.MaxAttempts, logger)

	checks := map[string]handlers.HealthCheck{
		"redis": func(ctx context.Context) error { return app.redis.Ping(ctx).Err() },
	}
	if app.db != nil {
		checks["postgres"] = app.db.PingContext
	}

	return routes.NewRouter(cfg.JWTSecret,
		handlers.NewHealthHandler(checks),
		handlers.NewEventHandler(submitter, logger),
		handlers.NewAlertHandler(app.stores.alerts, app.stores.failures, logger),
		handlers.NewNotificationHandler(dispatcher, logger),
	)
}

func (app *application) startTemporalWorker(runner *pipeline.Runner, engine *alerting.Engine) worker.Worker {
	logger := app.logger
	activityImpl := &activities.Activities{
		Handler:  runner,
		Failures: app.stores.failures,
		Alerter:  engine,
	}

	w := worker.New(app.temporalClient, app.config.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.EnvelopeWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Str("task_queue", app.config.Temporal.TaskQueue).Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker) {
	logger := app.logger
	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the Temporal worker; in-flight activities finish or are retried.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/makemykankotri/kankotri/internal/api"
	"github.com/makemykankotri/kankotri/internal/plugins"
	"github.com/makemykankotri/kankotri/internal/services"
	"github.com/makemykankotri/kankotri/pkg/cache"
	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/database"
	"github.com/makemykankotri/kankotri/pkg/database/migration"
	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/feature"
	"github.com/makemykankotri/kankotri/pkg/generator"
	"github.com/makemykankotri/kankotri/pkg/middleware"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/plugin"
	"github.com/makemykankotri/kankotri/pkg/render"
	"github.com/makemykankotri/kankotri/pkg/repository"
	"github.com/makemykankotri/kankotri/pkg/storage"
	"github.com/makemykankotri/kankotri/pkg/validation"

	// Import PostgreSQL driver
	_ "github.com/lib/pq"
)

// Command-line flags
var (
	skipMigration = flag.Bool("skip-migration", false, "Skip database migration on startup")
	migrateOnly   = flag.Bool("migrate", false, "Run database migrations and exit")
	healthCheck   = flag.Bool("health-check", false, "Run health check and exit")
)

func main() {
	flag.Parse()

	if *healthCheck {
		client := &http.Client{Timeout: 5 * time.Second}
		if err := checkHealth(client, healthCheckURL()); err != nil {
			log.Printf("Health check failed: %v", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := observability.NewStandardLogger("server", observability.ParseLogLevel(cfg.Observability.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingCfg := cfg.Observability.Tracing
	if tracingCfg.Environment == "" {
		tracingCfg.Environment = cfg.Environment
	}
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, logger)
	if err != nil {
		logger.Warn("Tracing disabled", map[string]interface{}{"error": err.Error()})
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	var (
		metricsClient  = observability.NewNoopMetricsClient()
		metricsHandler http.Handler
	)
	if cfg.Observability.Metrics.Enabled {
		prom := observability.NewPrometheusMetricsClient(cfg.Observability.Metrics.Namespace)
		metricsClient, metricsHandler = prom, prom.Handler()
	}
	defer metricsClient.Close()

	db, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if *migrateOnly || (cfg.Database.AutoMigrate && !*skipMigration && os.Getenv("SKIP_MIGRATIONS") != "true") {
		if err := runMigrations(ctx, db, cfg.Database, logger); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}
	if *migrateOnly {
		logger.Info("Migrations completed, exiting (--migrate flag)", nil)
		return
	}

	// Redis backs the template cache, flag persistence and the event stream.
	// Without it the server degrades to in-process state.
	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Cache)
		if err != nil {
			logger.Warn("Cache initialization failed, running without cache", map[string]interface{}{"error": err.Error()})
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	templateCache := cache.NewNoOpCache()
	var flagStore feature.Store = feature.NewMemoryStore()
	if redisClient != nil {
		templateCache, err = cache.NewMultiLevelCache(cache.NewRedisCache(redisClient, ""), cfg.Cache.LocalSize, cfg.Cache.TTL, metricsClient)
		if err != nil {
			log.Fatalf("Failed to initialize cache: %v", err)
		}
		flagStore = feature.NewRedisStore(redisClient, "")
	}
	defer templateCache.Close()

	bus := events.NewBus(logger, metricsClient)
	attachForwarders(ctx, cfg.Events, bus, redisClient, logger)

	validator, err := validation.New()
	if err != nil {
		log.Fatalf("Failed to compile schemas: %v", err)
	}
	sanitizer := render.NewSanitizer()
	renderer, err := render.NewHTMLRenderer(sanitizer)
	if err != nil {
		log.Fatalf("Failed to initialize renderer: %v", err)
	}

	assets, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		log.Fatalf("Failed to initialize asset storage: %v", err)
	}

	gen, err := generator.New(ctx, cfg.AI, logger, metricsClient)
	if err != nil {
		log.Fatalf("Failed to initialize content generator: %v", err)
	}

	flags := feature.New(flagStore, cfg.Features, logger)
	if err := flags.Load(ctx); err != nil {
		logger.Warn("Failed to load persisted feature flags", map[string]interface{}{"error": err.Error()})
	}

	registry := plugin.NewRegistry(bus, logger, metricsClient)
	manager := plugins.NewManager(registry, flags, bus, logger, plugins.Builtins(gen)...)
	if err := manager.Sync(ctx); err != nil {
		logger.Warn("Some plugins could not be enabled", map[string]interface{}{"error": err.Error()})
	}
	manager.Watch()
	defer func() {
		if err := registry.UnregisterAll(context.Background()); err != nil {
			logger.Warn("Failed to unregister plugins", map[string]interface{}{"error": err.Error()})
		}
	}()

	templates := services.NewTemplateService(
		repository.NewTemplateRepository(db, logger, metricsClient),
		templateCache, cfg.Cache.TTL, bus, validator, logger, metricsClient,
	)
	defer templates.Close()

	invitations := services.NewInvitationService(services.InvitationDeps{
		Templates: templates,
		Repo:      repository.NewInvitationRepository(db, logger, metricsClient),
		Renderer:  renderer,
		Sanitizer: sanitizer,
		Validator: validator,
		Flags:     flags,
		Registry:  registry,
		Bus:       bus,
		PublicURL: cfg.API.PublicURL,
		Logger:    logger,
		Metrics:   metricsClient,
	})

	editorService := services.NewEditorService(templates, bus, flags, cfg.Editor, nil, logger, metricsClient)
	go editorService.Run(ctx)

	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if redisClient != nil {
		checks["cache"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	server := api.NewServer(cfg.API, cfg.IsProduction(), api.Deps{
		Templates:      templates,
		Invitations:    invitations,
		Editor:         editorService,
		Assist:         services.NewAssistService(gen, registry, logger, metricsClient),
		Flags:          flags,
		Plugins:        registry,
		Assets:         assets,
		Validator:      validator,
		Verifier:       middleware.NewTokenVerifier(cfg.Auth),
		Checks:         checks,
		MetricsHandler: metricsHandler,
		Logger:         logger,
		Metrics:        metricsClient,
	})

	logger.Info("Server configuration", map[string]interface{}{
		"address":  cfg.API.ListenAddress,
		"env":      cfg.Environment,
		"storage":  cfg.Storage.Type,
		"cache":    redisClient != nil,
		"features": flags.All(),
	})

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Received shutdown signal", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	// Pending editor changes are written before the pool closes
	cancel()
	editorService.CloseAll(shutdownCtx)

	logger.Info("Server stopped gracefully", nil)
}

func runMigrations(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig, logger observability.Logger) error {
	manager, err := migration.NewManager(db, migration.Config{MigrationsPath: cfg.MigrationsPath}, logger)
	if err != nil {
		return err
	}
	logger.Info("Starting database migrations", map[string]interface{}{"path": cfg.MigrationsPath})
	return manager.Up(ctx)
}

// attachForwarders fans bus events out to the configured Redis stream and
// SQS queue
func attachForwarders(ctx context.Context, cfg config.EventsConfig, bus *events.Bus, redisClient *redis.Client, logger observability.Logger) {
	if cfg.RedisStream != "" {
		if redisClient == nil {
			logger.Warn("Redis stream forwarding needs the cache to be enabled", map[string]interface{}{"stream": cfg.RedisStream})
		} else {
			events.NewRedisStreamForwarder(redisClient, cfg.RedisStream, cfg.RedisStreamMax, logger).Attach(bus)
		}
	}

	if cfg.SQSQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SQSRegion))
		if err != nil {
			logger.Warn("SQS forwarding disabled", map[string]interface{}{"error": err.Error()})
			return
		}
		events.NewSQSForwarder(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, logger).Attach(bus)
	}
}

// healthCheckURL targets the local server, on PORT or 8080
func healthCheckURL() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

func checkHealth(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

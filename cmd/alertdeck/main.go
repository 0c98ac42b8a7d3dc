package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	"gorm.io/gorm/logger"

	"github.com/alertdeck/alertdeck/internal/alerts/adapters"
	"github.com/alertdeck/alertdeck/internal/chat"
	"github.com/alertdeck/alertdeck/internal/config"
	"github.com/alertdeck/alertdeck/internal/database"
	"github.com/alertdeck/alertdeck/internal/handlers"
	"github.com/alertdeck/alertdeck/internal/ingest"
	"github.com/alertdeck/alertdeck/internal/jobs"
	"github.com/alertdeck/alertdeck/internal/middleware"
	"github.com/alertdeck/alertdeck/internal/processor"
	"github.com/alertdeck/alertdeck/internal/rules"
	slackutil "github.com/alertdeck/alertdeck/internal/slack"
	"github.com/alertdeck/alertdeck/internal/store"
	"github.com/alertdeck/alertdeck/internal/workers"
)

// dbGuides feeds troubleshooting guides from the database into the chat
// mirror. Without a database every rule simply has no guide.
type dbGuides struct{}

func (dbGuides) Guide(ruleName string) (string, error) {
	if !database.Connected() {
		return "", nil
	}
	guide, err := database.GetGuide(ruleName)
	if err != nil {
		return "", err
	}
	if guide == nil {
		return "", nil
	}
	return guide.Content, nil
}

// rulesWithDefault overlays a synthesized "default" rule pointing at
// DEFAULT_CHANNEL when the config has no default entry of its own.
type rulesWithDefault struct {
	*rules.Service
	channel string
}

func (p rulesWithDefault) Lookup(name string) (rules.Rule, bool) {
	if rule, ok := p.Service.Lookup(name); ok {
		return rule, true
	}
	if name == "default" && p.channel != "" {
		return rules.Rule{ChannelID: p.channel}, true
	}
	return rules.Rule{}, false
}

// gormLogLevel maps the LOG_LEVEL env value to gorm's query logging.
func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info", "debug":
		return logger.Info
	default:
		return logger.Warn
	}
}

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting AlertDeck (%s)...", cfg.Environment)

	if cfg.SlackBotToken == "" {
		log.Fatalf("SLACK_BOT_TOKEN is not set")
	}

	// Initialize JWT authentication middleware for the admin API
	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           cfg.AuthEnabled(),
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: cfg.AdminPasswordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/alerts",
			"/alerts/*",
			"/auth/login",
		},
	})
	if cfg.AuthEnabled() {
		log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)
	} else {
		log.Printf("JWT authentication disabled (ADMIN_PASSWORD_HASH not set)")
	}

	// Initialize database connection (optional: audit log, guides and
	// persisted config all degrade gracefully without it)
	if cfg.DatabaseDSN != "" {
		if err := database.Connect(cfg.DatabaseDSN, gormLogLevel(cfg.LogLevel)); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := database.AutoMigrate(); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}
		log.Printf("Database connection established")
	} else {
		log.Printf("DATABASE_DSN not set, running without audit log and guides")
	}

	// Initialize the rules config service
	var configStore rules.Store
	if database.Connected() {
		configStore = database.NewConfigStore()
	}
	ruleService := rules.NewService(cfg.RulesFile, configStore)
	if err := ruleService.Bootstrap(); err != nil {
		log.Fatalf("Failed to load alert rules: %v", err)
	}
	ruleProvider := rulesWithDefault{Service: ruleService, channel: cfg.DefaultChannel}

	// Initialize incident and dedup stores
	var (
		dedup     store.DedupStore
		incidents store.IncidentStore
	)
	if cfg.RedisURL != "" {
		rdb, err := store.NewClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		dedup = store.NewRedisDedup(rdb)
		incidents = store.NewRedisIncidents(rdb)
		log.Printf("Using Redis incident state at %s", cfg.RedisURL)
	} else {
		dedup = store.NewMemoryDedup()
		incidents = store.NewMemoryIncidents()
		log.Printf("REDIS_URL not set, incident state is in-memory and lost on restart")
	}

	// Initialize Slack and the chat mirror
	slackManager, err := slackutil.NewManager(cfg.SlackBotToken, cfg.SlackAppToken)
	if err != nil {
		log.Fatalf("Failed to initialize Slack: %v", err)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	if err := slackManager.Start(ctx); err != nil {
		log.Fatalf("Failed to start Slack Socket Mode: %v", err)
	}
	log.Printf("Slack Socket Mode is ACTIVE")

	mirror := chat.NewMirror(slackManager.Client(), incidents, dedup, ruleProvider, dbGuides{})
	channelResolver := slackutil.NewChannelResolver(slackManager.Client())
	if cfg.SlackTeamID != "" {
		channelResolver.SetTeamID(cfg.SlackTeamID)
	}

	// Button clicks arrive over the socket and mutate the incident
	slackManager.SetInteractionHandler(func(callback slack.InteractionCallback) {
		for _, action := range callback.ActionCallback.BlockActions {
			if err := mirror.HandleAction(ctx, action.ActionID, action.Value, callback.User.ID); err != nil {
				log.Printf("Failed to handle %s for %s: %v", action.ActionID, action.Value, err)
			}
		}
	})

	proc := processor.New(ruleProvider, incidents, dedup, mirror, channelResolver)

	// Initialize the ingestion worker pool
	pool := workers.NewPool(cfg.WorkerCount, cfg.QueueDepth)
	log.Printf("Ingestion pool started with %d workers", cfg.WorkerCount)

	// Initialize Alert handler
	alertHandler := handlers.NewAlertHandler(pool, proc, "grafana")
	alertHandler.RegisterAdapter(adapters.NewWebhookAdapter("grafana", ruleProvider))
	alertHandler.RegisterAdapter(adapters.NewWebhookAdapter("alertmanager", ruleProvider))
	alertHandler.RegisterAdapter(adapters.NewSNSAdapter())
	log.Printf("Alert adapters registered: grafana, alertmanager, sns")

	// Initialize remaining handlers
	configHandler := handlers.NewConfigHandler(ruleService, channelResolver)
	guideHandler := handlers.NewGuideHandler()
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)
	httpHandler := handlers.NewHTTPHandler(alertHandler, configHandler, guideHandler, authHandler)

	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)

	// Wrap all routes: request IDs first, then CORS, then the bearer
	// token gate, then JWT for the admin endpoints
	ingestAuth := middleware.NewTokenAuth(cfg.IngestToken, "/health", "/metrics", "/auth/login")
	if ingestAuth.Enabled() {
		log.Printf("Bearer token authentication enabled")
	}
	corsMiddleware := middleware.NewCORSMiddleware(cfg.AllowedOrigins...)
	rootHandler := middleware.RequestIDMiddleware(
		corsMiddleware.Wrap(ingestAuth.Wrap(jwtAuthMiddleware.Wrap(mux))))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: rootHandler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Start background jobs
	stopJobs := make(chan struct{})

	escalator := jobs.NewEscalator(incidents, ruleProvider, mirror)
	go escalator.Start(ctx, jobs.EscalationInterval, stopJobs)

	reconciler := jobs.NewReconciler(incidents, slackManager.Client())
	go reconciler.Start(ctx, stopJobs)

	retention, err := database.ParseRetention(cfg.AuditRetention)
	if err != nil {
		log.Fatalf("Invalid AUDIT_RETENTION %q: %v", cfg.AuditRetention, err)
	}
	retentionJob := jobs.NewRetentionJob(retention)
	go retentionJob.Start(stopJobs)

	// Start the SQS poller when a queue is configured
	if cfg.SQSQueueURL != "" {
		sqsClient, err := ingest.NewSQSClient(ctx, cfg.SQSQueueURL)
		if err != nil {
			log.Fatalf("Failed to initialize SQS client: %v", err)
		}
		poller := ingest.NewSQSPoller(sqsClient, cfg.SQSQueueURL, adapters.NewSNSAdapter(), proc)
		go poller.Run(ctx)
		log.Printf("SQS poller started for %s", cfg.SQSQueueURL)
	}

	log.Println("AlertDeck is running! Press Ctrl+C to exit.")
	log.Printf("Alert webhook endpoint: http://localhost:%d/alerts/{source}", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, cleaning up...")

	close(stopJobs)
	ctxCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	// Drain in-flight alerts before dropping the Slack connection
	pool.Stop()
	slackManager.Stop()

	log.Println("Shutdown complete")
}

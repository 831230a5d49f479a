package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/events"
	"github.com/pulsewatch/pulsewatch/internal/handlers"
	"github.com/pulsewatch/pulsewatch/internal/jobs"
	"github.com/pulsewatch/pulsewatch/internal/middleware"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/services"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Pulsewatch alert engine...")

	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	authMiddleware := middleware.NewAuthMiddleware(&middleware.AuthConfig{
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/auth/login",
			"/api/metrics",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	if err := database.InitializeDefaults(); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}
	db := database.GetDB()

	// Escalation policy: seed the defaults, or load the configured file
	policyService := services.NewPolicyService(db)
	if cfg.EscalationPolicyFile != "" {
		if err := policyService.LoadFromFile(cfg.EscalationPolicyFile); err != nil {
			log.Fatalf("Failed to load escalation policy: %v", err)
		}
	} else if err := policyService.SeedDefaults(); err != nil {
		log.Fatalf("Failed to seed escalation rules: %v", err)
	}

	oncallService := services.NewOnCallService(db)

	// Notification dispatcher with all channels registered
	dispatcher := notify.NewDispatcher(db, oncallService,
		time.Duration(cfg.NotificationTimeoutSeconds)*time.Second)
	dispatcher.Register("push", notify.NewNtfyNotifier(nil))
	dispatcher.Register("email", notify.NewEmailNotifier())
	dispatcher.Register("slack", notify.NewSlackNotifier())
	dispatcher.Register("sms", notify.NewSMSNotifier(nil))
	log.Printf("Notification channels registered: push, email, slack, sms")

	// Event bus for the live alert stream
	bus := events.NewBus()

	// Core alert engine
	alertService := services.NewAlertService(db, policyService, dispatcher, bus)
	log.Printf("Alert engine initialized")

	// Metrics recorder feeding threshold breaches into the alert engine
	metricsService := services.NewMetricsService(db, alertService)

	// HTTP handlers
	mux := http.NewServeMux()
	handlers.NewHTTPHandler().SetupRoutes(mux)
	handlers.NewAuthHandler(authMiddleware).SetupRoutes(mux)
	handlers.NewAlertHandler(alertService).SetupRoutes(mux)
	handlers.NewAdminHandler(db, policyService, oncallService).SetupRoutes(mux)
	handlers.NewMetricsHandler(metricsService).SetupRoutes(mux)
	handlers.NewStreamHandler(bus).SetupRoutes(mux)

	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(authMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Background jobs
	stop := make(chan struct{})

	scheduler := jobs.NewEscalationScheduler(alertService)
	go scheduler.Start(time.Duration(cfg.EscalationIntervalSeconds)*time.Second, stop)
	log.Printf("Escalation scheduler running every %ds", cfg.EscalationIntervalSeconds)

	retention := jobs.NewRetentionJob(alertService, cfg.RetentionDays)
	go retention.Start(time.Hour, stop)
	log.Printf("Retention job running hourly (retention: %d days)", cfg.RetentionDays)

	log.Println("Pulsewatch is running! Press Ctrl+C to exit.")
	log.Printf("Alert API: http://localhost:%d/api/alerts", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	close(stop)

	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}

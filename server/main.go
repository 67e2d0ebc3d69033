package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/alyanaluz/gatekeeper/internal/api"
	"github.com/alyanaluz/gatekeeper/internal/api/handlers"
	"github.com/alyanaluz/gatekeeper/internal/api/middleware"
	"github.com/alyanaluz/gatekeeper/internal/auth"
	"github.com/alyanaluz/gatekeeper/internal/billing"
	"github.com/alyanaluz/gatekeeper/internal/config"
	"github.com/alyanaluz/gatekeeper/internal/domain/services"
	"github.com/alyanaluz/gatekeeper/internal/infrastructure/database/postgres"
	"github.com/alyanaluz/gatekeeper/internal/pkg/idgen"
	"github.com/alyanaluz/gatekeeper/internal/pkg/logger"
	"github.com/alyanaluz/gatekeeper/internal/session"
	"github.com/alyanaluz/gatekeeper/migrations"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		forceVersion  int
		configPath    string
		logLevel      string
		logFile       string
		logToStderr   bool
		alsoLogStderr bool
		logFormat     string
	)

	cmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Subscription-gated access server",
		Long:  "HTTP server that gates premium endpoints on billing entitlement",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return setupServerLogging(logLevel, logFile, logToStderr, alsoLogStderr, logFormat)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, forceVersion)
		},
	}

	cmd.Flags().IntVar(&forceVersion, "force-migration", -1, "Force migration version (use to fix dirty migration state)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (optional)")

	// Add logging flags
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Log file path (if specified, logs to file instead of stderr)")
	cmd.Flags().BoolVar(&logToStderr, "logtostderr", false, "Log to stderr (default behavior unless --log-file specified)")
	cmd.Flags().BoolVar(&alsoLogStderr, "alsologtostderr", false, "Log to both file and stderr")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "Log format (text, json)")

	return cmd
}

// setupServerLogging configures the global logger for the server
func setupServerLogging(logLevel, logFile string, logToStderr, alsoLogStderr bool, logFormat string) error {
	// Default to stderr logging unless file is specified
	if logFile == "" {
		logToStderr = true
	}

	cfg := logger.Config{
		Level:         logger.ParseLevel(logLevel),
		LogFile:       logFile,
		LogToStderr:   logToStderr,
		AlsoLogStderr: alsoLogStderr,
		Format:        logFormat,
	}

	globalLogger, err := logger.SetupLogger(cfg)
	if err != nil {
		return err
	}

	// Set as default logger
	slog.SetDefault(globalLogger)

	return nil
}

func runServer(configPath string, forceVersion int) error {
	log := slog.Default().With("component", "server")
	log.Info("Starting server initialization")

	// Local .env is a development convenience; absence is not an error
	if err := godotenv.Load(); err == nil {
		log.Info("Loaded environment from .env file")
	}

	// Initialize Snowflake ID generator (request IDs)
	if err := idgen.Initialize(1); err != nil {
		return fmt.Errorf("failed to initialize ID generator: %w", err)
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Info("Database configuration",
		"type", "PostgreSQL",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Database,
		"user", cfg.Database.Postgres.User)

	// Connect to PostgreSQL with retries (for Kubernetes startup)
	var pgConn *postgres.Connection
	maxRetries := 10
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		var err error
		pgConn, err = postgres.NewConnection(cfg.Database.Postgres.ConnectionString())
		if err == nil {
			log.Info("Successfully connected to PostgreSQL")
			break
		}

		if i < maxRetries-1 {
			log.Warn("Failed to connect to PostgreSQL",
				"attempt", i+1,
				"max_retries", maxRetries,
				"error", err,
				"retry_delay", retryDelay)
			time.Sleep(retryDelay)
			retryDelay *= 2 // Exponential backoff
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}
		} else {
			return fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", maxRetries, err)
		}
	}
	defer pgConn.Close()

	// Handle force migration if requested
	if forceVersion >= 0 {
		log.Info("Force setting migration version", "version", forceVersion)
		if err := pgConn.ForceMigrationVersion(migrations.FS, forceVersion); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
		log.Info("Migration version forced, exiting", "version", forceVersion)
		return nil
	}

	// Run migrations
	if err := pgConn.RunMigrations(migrations.FS); err != nil {
		return fmt.Errorf("failed to run PostgreSQL migrations: %w", err)
	}

	// Wire the billing provider and the entitlement pipeline
	provider := billing.NewStripeClient(cfg.Billing.StripeAPIKey)
	store := postgres.NewEntitlementRepository(pgConn.DB)
	reconciler := services.NewReconciler(store, provider)

	credentials, err := auth.NewCredentialManager([]byte(cfg.Auth.Credential.SigningSecret), cfg.Auth.Credential.Lifetime)
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	sessions := session.NewManager([]byte(cfg.Auth.Credential.SigningSecret))

	handler := handlers.New(
		reconciler,
		store,
		credentials,
		sessions,
		provider,
		cfg.Billing.StripeWebhookSecret,
		cfg.Billing.PortalReturnURL,
	)
	gate := middleware.NewAccessGate(credentials, sessions, reconciler)
	router := api.NewRouter(handler, gate)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Metrics on a separate listener so it is never exposed with the API
	metricsAddress := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.EffectiveMetricsPort())
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: metricsAddress, Handler: metricsMux}

	go func() {
		log.Info("Starting metrics server", "address", metricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case sig := <-stop:
		log.Info("Shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server shutdown failed", "error", err)
	}

	log.Info("Server stopped")
	return nil
}

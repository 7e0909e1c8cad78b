package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/expensio/expensio_backend/internal/adapters/blobstore"
	"github.com/expensio/expensio_backend/internal/adapters/classifier"
	"github.com/expensio/expensio_backend/internal/adapters/docai"
	"github.com/expensio/expensio_backend/internal/adapters/notifier"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/core/services"
	"github.com/expensio/expensio_backend/internal/handlers"
	"github.com/expensio/expensio_backend/internal/middleware"
	"github.com/expensio/expensio_backend/internal/platform/config"
	"github.com/expensio/expensio_backend/internal/platform/tasks"
	"github.com/expensio/expensio_backend/internal/repositories/database/pgsql"
	"github.com/expensio/expensio_backend/internal/utils"
	"github.com/expensio/expensio_backend/pkg/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const shutdownTimeout = 15 * time.Second

// @title Expensio Backend API
// @version 1.0
// @description Expense reimbursement backend with receipt extraction and assisted categorization.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @security BearerAuth
func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize database connection pool (for application use)
	dbPool, err := database.NewPgxPool(context.Background(), cfg.DatabaseURL, cfg.EnableDBCheck)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dbPool.Close()
	logger.Info("Database connection pool established.")

	if err := runMigrations(cfg, logger); err != nil {
		logger.Error("Failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Receipt blobs live on the local filesystem.
	blobs, err := blobstore.NewFileStore(cfg.BlobStoreDir)
	if err != nil {
		logger.Error("Failed to initialize blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The stub provider keeps local development working without a
	// document-understanding account.
	var provider clients.ExtractionProvider
	if cfg.DocAIEndpoint == "" {
		provider = docai.NewStubProvider(logger)
	} else {
		provider = docai.NewRemoteProvider(cfg.DocAIEndpoint, cfg.DocAIAPIKey, blobs)
	}

	classifierClient := classifier.NewClient(cfg.ClassifierURL, cfg.ClassifyTimeout, cfg.FeedbackTimeout, cfg.TrainTimeout)

	repos := pgsql.NewRepositoryProvider(dbPool)

	var notify clients.Notifier
	if cfg.SMTPHost == "" {
		notify = notifier.NewLogNotifier(logger)
	} else {
		notify = notifier.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, repos.UserRepo)
	}

	runner := tasks.NewRunner(4, 64, logger)

	container := services.NewServiceContainer(cfg, repos, provider, classifierClient, blobs, notify, runner)

	posthogClient := utils.InitializePosthogClient(cfg.PosthogAPIKey, logger)
	defer posthogClient.Close()

	r := gin.New()

	// Global middleware (logging, recovery, CORS, analytics)
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	r.Use(cors.New(corsConfig(cfg)))
	r.Use(middleware.PosthogMiddleware(posthogClient))

	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handlers.RegisterRoutes(r, cfg, container, dbPool)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background loops stop when the shutdown signal cancels ctx.
	go runExtractionSweeper(ctx, cfg, container.Extraction, logger)
	if cfg.RetrainEnabled {
		go runModelRetrainer(ctx, cfg, container.Categorizer, logger)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to run", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", slog.String("error", err.Error()))
	}
	// Drain queued extraction and categorization work before the pool closes.
	if err := runner.Close(shutdownCtx); err != nil {
		logger.Error("Task runner drain error", slog.String("error", err.Error()))
	}

	logger.Info("Server stopped.")
}

// runMigrations applies all pending "up" migrations before the server starts
// accepting traffic. It uses a temporary database/sql connection via the
// pgx stdlib driver so migrate stays compatible with the main pool.
func runMigrations(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Running database migrations...")

	migrationDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := migrationDB.Close(); cerr != nil {
			logger.Error("Error closing migration DB connection", slog.String("error", cerr.Error()))
		}
	}()
	if err := migrationDB.Ping(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return err
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return upErr
	}

	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		return sourceErr
	}
	if dbErr != nil {
		return dbErr
	}

	if upErr == migrate.ErrNoChange {
		logger.Info("No new migrations to apply.")
	} else {
		logger.Info("Database migrations applied successfully.")
	}
	return nil
}

// corsConfig builds the CORS policy from the configured origin list. A "*"
// entry allows all origins, which is the development default.
func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")

	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	return corsCfg
}

// runExtractionSweeper periodically retries failed extraction jobs that still
// have attempts left. Each tick is independent; a failed sweep waits for the
// next tick rather than retrying immediately.
func runExtractionSweeper(ctx context.Context, cfg *config.Config, extraction portssvc.ExtractionQueueSvc, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			retried, err := extraction.RetryFailedExtractions(ctx, cfg.SweepWindowHours, cfg.SweepBatchSize)
			if err != nil {
				logger.Error("Extraction retry sweep failed", slog.String("error", err.Error()))
				continue
			}
			if retried > 0 {
				logger.Info("Extraction retry sweep completed", slog.Int("retried", retried))
			}
		}
	}
}

// runModelRetrainer periodically retrains the classifier from recently
// finalized expenses. Skipped rounds (not enough samples) are logged and the
// previous model stays active.
func runModelRetrainer(ctx context.Context, cfg *config.Config, categorizer portssvc.CategorizerSvc, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.RetrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := categorizer.RetrainModel(ctx, cfg.RetrainWindowDays, cfg.RetrainMinSamples)
			if err != nil {
				logger.Error("Scheduled model retrain failed", slog.String("error", err.Error()))
				continue
			}
			if info == nil {
				logger.Info("Scheduled model retrain skipped, not enough samples")
				continue
			}
			logger.Info("Scheduled model retrain completed",
				slog.String("version", info.Version),
				slog.Float64("accuracy", info.Accuracy))
		}
	}
}

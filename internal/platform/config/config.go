package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool

	JWTSecret         string
	JWTExpiryDuration time.Duration
	JWTIssuer         string

	// Remote classifier service
	ClassifierURL   string
	ClassifyTimeout time.Duration
	FeedbackTimeout time.Duration
	TrainTimeout    time.Duration

	// Document-understanding provider; empty endpoint selects the stub.
	DocAIEndpoint string
	DocAIAPIKey   string

	// Receipt blob storage
	BlobStoreDir string

	// Extraction retry sweep
	SweepInterval         time.Duration
	SweepWindowHours      int
	SweepBatchSize        int
	MaxExtractionAttempts int

	// Periodic model retraining
	RetrainEnabled    bool
	RetrainInterval   time.Duration
	RetrainWindowDays int
	RetrainMinSamples int

	// Outbound notification email; empty host selects the log notifier.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	RateLimit          string // ulule/limiter format, e.g. "100-M"
	PosthogAPIKey      string
	CORSAllowedOrigins string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	viper.SetDefault("JWT_EXPIRY_DURATION", "1h")
	viper.SetDefault("JWT_ISSUER", "expensio-backend")
	viper.SetDefault("CLASSIFIER_URL", "http://localhost:5000")
	viper.SetDefault("CLASSIFY_TIMEOUT", "10s")
	viper.SetDefault("FEEDBACK_TIMEOUT", "5s")
	viper.SetDefault("TRAIN_TIMEOUT", "60s")
	viper.SetDefault("DOCAI_ENDPOINT", "")
	viper.SetDefault("DOCAI_API_KEY", "")
	viper.SetDefault("BLOB_STORE_DIR", "./uploads")
	viper.SetDefault("EXTRACTION_SWEEP_INTERVAL", "5m")
	viper.SetDefault("EXTRACTION_RETRY_WINDOW_HOURS", 24)
	viper.SetDefault("EXTRACTION_SWEEP_BATCH_SIZE", 10)
	viper.SetDefault("MAX_EXTRACTION_ATTEMPTS", 3)
	viper.SetDefault("RETRAIN_ENABLED", false)
	viper.SetDefault("RETRAIN_INTERVAL", "24h")
	viper.SetDefault("RETRAIN_WINDOW_DAYS", 90)
	viper.SetDefault("RETRAIN_MIN_SAMPLES", 10)
	viper.SetDefault("SMTP_HOST", "")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_USERNAME", "")
	viper.SetDefault("SMTP_PASSWORD", "")
	viper.SetDefault("SMTP_FROM", "no-reply@expensio.local")
	viper.SetDefault("RATE_LIMIT", "100-M")
	viper.SetDefault("POSTHOG_API_KEY", "")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "a-very-secret-key-should-be-longer-and-random" && cfg.IsProduction {
		log.Println("Warning: JWT_SECRET is using the default insecure key in production.")
	}
	cfg.JWTExpiryDuration = durationOrDefault("JWT_EXPIRY_DURATION", time.Hour)
	cfg.JWTIssuer = viper.GetString("JWT_ISSUER")

	cfg.ClassifierURL = viper.GetString("CLASSIFIER_URL")
	cfg.ClassifyTimeout = durationOrDefault("CLASSIFY_TIMEOUT", 10*time.Second)
	cfg.FeedbackTimeout = durationOrDefault("FEEDBACK_TIMEOUT", 5*time.Second)
	cfg.TrainTimeout = durationOrDefault("TRAIN_TIMEOUT", 60*time.Second)

	cfg.DocAIEndpoint = viper.GetString("DOCAI_ENDPOINT")
	cfg.DocAIAPIKey = viper.GetString("DOCAI_API_KEY")
	if cfg.DocAIEndpoint == "" {
		log.Println("Warning: DOCAI_ENDPOINT not set. Receipt extraction will use the deterministic stub provider.")
	}

	cfg.BlobStoreDir = viper.GetString("BLOB_STORE_DIR")

	cfg.SweepInterval = durationOrDefault("EXTRACTION_SWEEP_INTERVAL", 5*time.Minute)
	cfg.SweepWindowHours = viper.GetInt("EXTRACTION_RETRY_WINDOW_HOURS")
	cfg.SweepBatchSize = viper.GetInt("EXTRACTION_SWEEP_BATCH_SIZE")
	cfg.MaxExtractionAttempts = viper.GetInt("MAX_EXTRACTION_ATTEMPTS")

	cfg.RetrainEnabled = viper.GetBool("RETRAIN_ENABLED")
	cfg.RetrainInterval = durationOrDefault("RETRAIN_INTERVAL", 24*time.Hour)
	cfg.RetrainWindowDays = viper.GetInt("RETRAIN_WINDOW_DAYS")
	cfg.RetrainMinSamples = viper.GetInt("RETRAIN_MIN_SAMPLES")

	cfg.SMTPHost = viper.GetString("SMTP_HOST")
	cfg.SMTPPort = viper.GetInt("SMTP_PORT")
	cfg.SMTPUsername = viper.GetString("SMTP_USERNAME")
	cfg.SMTPPassword = viper.GetString("SMTP_PASSWORD")
	cfg.SMTPFrom = viper.GetString("SMTP_FROM")
	if cfg.SMTPHost == "" {
		log.Println("Warning: SMTP_HOST not set. Notifications will be logged instead of emailed.")
	}

	cfg.RateLimit = viper.GetString("RATE_LIMIT")
	cfg.PosthogAPIKey = viper.GetString("POSTHOG_API_KEY")
	cfg.CORSAllowedOrigins = viper.GetString("CORS_ALLOWED_ORIGINS")

	return cfg, nil
}

// durationOrDefault parses a duration config value (e.g., "60m", "1h"),
// falling back when unset or malformed.
func durationOrDefault(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, fallback.String())
		}
		return fallback
	}
	return d
}

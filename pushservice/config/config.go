package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	// Driver selects the directory implementation: "postgres" or
	// "firestore".
	Driver string
	DSN    string
}

type AuthConfig struct {
	JWTSecret string
	// RequireAuth rejects anonymous callers instead of letting them
	// through unauthenticated.
	RequireAuth bool
}

type FCMConfig struct {
	AndroidChannel     string
	SendTimeoutSeconds int
	// ServiceAccountJSON is the full service-account key. Populated from
	// the FIREBASE_SERVICE_ACCOUNT env var or the configured key file.
	ServiceAccountJSON []byte
	ServiceAccountFile string
}

// Config defines the *single*, authoritative configuration. It is built
// once at process start and passed by reference; no component reads the
// environment directly.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	TopicID                string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	FCM        FCMConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// PipelineEnabled reports whether the async ingestion path is configured.
func (c *Config) PipelineEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			cfg.NumPipelineWorkers = workers
		}
	}

	// Store overrides
	if val := os.Getenv("DATABASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "DATABASE_URL", "source", "env")
		cfg.Database.DSN = val
	}
	if val := os.Getenv("DATABASE_DRIVER"); val != "" {
		cfg.Database.Driver = val
	}

	// Redis overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Auth overrides
	if val := os.Getenv("JWT_SECRET"); val != "" {
		logger.Debug("Overriding config value", "key", "JWT_SECRET", "source", "env")
		cfg.Auth.JWTSecret = val
	}
	if val := os.Getenv("REQUIRE_AUTH"); val != "" {
		require, _ := strconv.ParseBool(val)
		cfg.Auth.RequireAuth = require
	}

	// FCM overrides
	if val := os.Getenv("FCM_ANDROID_CHANNEL"); val != "" {
		cfg.FCM.AndroidChannel = val
	}
	if val := os.Getenv("FCM_SEND_TIMEOUT_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			cfg.FCM.SendTimeoutSeconds = secs
		}
	}

	// Service-account key: env wins, then the configured key file.
	if val := os.Getenv("FIREBASE_SERVICE_ACCOUNT"); val != "" {
		logger.Debug("Overriding config value", "key", "FIREBASE_SERVICE_ACCOUNT", "source", "env")
		cfg.FCM.ServiceAccountJSON = []byte(val)
	} else if cfg.FCM.ServiceAccountFile != "" {
		raw, err := os.ReadFile(cfg.FCM.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read service account key file: %w", err)
		}
		cfg.FCM.ServiceAccountJSON = raw
	}

	// CORS overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// Final validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if len(cfg.FCM.ServiceAccountJSON) == 0 {
		return nil, fmt.Errorf("service account key is required (set FIREBASE_SERVICE_ACCOUNT or fcm.service_account_file)")
	}
	switch cfg.Database.Driver {
	case "", "postgres":
		cfg.Database.Driver = "postgres"
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("database DSN is required for the postgres driver (set via YAML or DATABASE_URL env var)")
		}
	case "firestore":
		// Firestore reuses ProjectID; no DSN needed.
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if cfg.Auth.RequireAuth && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("require_auth is enabled but no JWT secret is configured (set via YAML or JWT_SECRET env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

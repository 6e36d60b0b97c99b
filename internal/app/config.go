package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/testbridge-backend/internal/data/attachments"
	"github.com/yungbote/testbridge-backend/internal/data/db"
	"github.com/yungbote/testbridge-backend/internal/observability"
	"github.com/yungbote/testbridge-backend/internal/platform/envutil"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/platform/sendgrid"
)

type StorageConfig struct {
	Driver     string
	MediaRoot  string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	GCSBucket  string
}

type Config struct {
	LogMode string
	Port    string

	DB db.Config

	TokenTTL          time.Duration
	ArchiveSecret     string
	ArchivePreviewTTL time.Duration

	Storage     StorageConfig
	Thumbnails  []attachments.Resolution
	CORSOrigins []string

	RedisAddr    string
	RedisChannel string

	WorkerConcurrency     int
	TaskTimeout           time.Duration
	TaskMaxAttempts       int
	BulkNotifyInlineLimit int

	Otel           observability.OtelConfig
	MetricsEnabled bool

	SendGrid        sendgrid.Config
	SendGridEnabled bool
}

// ApplyConfigFile sets every key of the flat YAML map in path that is not
// already present in the environment.
func ApplyConfigFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for key, val := range values {
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" || val == nil {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		var s string
		switch v := val.(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			s = strings.Join(parts, ",")
		default:
			s = fmt.Sprint(v)
		}
		if err := os.Setenv(key, s); err != nil {
			return err
		}
	}
	return nil
}

func postgresDSN() string {
	if dsn := envutil.Str("DATABASE_DSN", ""); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		envutil.Str("POSTGRES_USER", "postgres"),
		envutil.Str("POSTGRES_PASSWORD", ""),
		envutil.Str("POSTGRES_HOST", "localhost"),
		envutil.Str("POSTGRES_PORT", "5432"),
		envutil.Str("POSTGRES_NAME", "testbridge"),
		envutil.Str("POSTGRES_SSLMODE", "disable"),
	)
}

func LoadConfig(log *logger.Logger) (Config, error) {
	if path := envutil.Str("CONFIG_FILE", ""); path != "" {
		if err := ApplyConfigFile(path); err != nil {
			return Config{}, err
		}
		log.Info("Config file applied", "path", path)
	}

	cfg := Config{
		LogMode: envutil.Str("LOG_MODE", "development"),
		Port:    envutil.Str("PORT", "8080"),
		DB: db.Config{
			Driver:       strings.ToLower(envutil.Str("DB_DRIVER", db.DriverPostgres)),
			SQLitePath:   envutil.Str("SQLITE_PATH", "testbridge.db"),
			MaxOpenConns: envutil.Int("DB_MAX_OPEN_CONNS", 20),
		},
		TokenTTL:          envutil.Duration("TOKEN_TTL", 24*time.Hour),
		ArchiveSecret:     envutil.Str("ARCHIVE_SECRET", ""),
		ArchivePreviewTTL: envutil.Duration("ARCHIVE_PREVIEW_TTL", 10*time.Minute),
		Storage: StorageConfig{
			Driver:     strings.ToLower(envutil.Str("BLOB_DRIVER", "fs")),
			MediaRoot:  envutil.Str("MEDIA_ROOT", "media"),
			S3Bucket:   envutil.Str("S3_BUCKET", ""),
			S3Region:   envutil.Str("S3_REGION", "us-east-1"),
			S3Endpoint: envutil.Str("S3_ENDPOINT", ""),
			GCSBucket:  envutil.Str("GCS_BUCKET", ""),
		},
		Thumbnails:            attachments.ParseResolutions(envutil.Str("THUMBNAIL_RESOLUTIONS", "32x32,64x64,128x128")),
		CORSOrigins:           envutil.List("CORS_ORIGINS", nil),
		RedisAddr:             envutil.Str("REDIS_ADDR", ""),
		RedisChannel:          envutil.Str("REDIS_CHANNEL", "testbridge.notifications"),
		WorkerConcurrency:     envutil.Int("WORKER_CONCURRENCY", 2),
		TaskTimeout:           envutil.Duration("TASK_TIMEOUT", time.Minute),
		TaskMaxAttempts:       envutil.Int("TASK_MAX_ATTEMPTS", 5),
		BulkNotifyInlineLimit: envutil.Int("BULK_NOTIFY_INLINE_LIMIT", 50),
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.Str("OTEL_SERVICE_NAME", "testbridge"),
			Environment: envutil.Str("OTEL_ENVIRONMENT", ""),
			Version:     envutil.Str("OTEL_SERVICE_VERSION", ""),
			Endpoint:    envutil.Str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(envutil.Str("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
		MetricsEnabled: envutil.Bool("METRICS_ENABLED", true),
		SendGrid: sendgrid.Config{
			APIKey:           envutil.Str("SENDGRID_API_KEY", ""),
			BaseURL:          envutil.Str("SENDGRID_BASE_URL", ""),
			DefaultFromEmail: envutil.Str("SENDGRID_FROM_EMAIL", ""),
			DefaultFromName:  envutil.Str("SENDGRID_FROM_NAME", "TestBridge"),
			Timeout:          envutil.Duration("SENDGRID_TIMEOUT", 30*time.Second),
		},
	}
	cfg.SendGridEnabled = cfg.SendGrid.APIKey != ""
	if cfg.DB.Driver == db.DriverPostgres {
		cfg.DB.DSN = postgresDSN()
	}

	if cfg.ArchiveSecret == "" {
		if !strings.EqualFold(cfg.LogMode, "development") {
			return Config{}, fmt.Errorf("ARCHIVE_SECRET is required outside development")
		}
		log.Warn("ARCHIVE_SECRET not set; using an insecure development secret")
		cfg.ArchiveSecret = "development-archive-secret"
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("TOKEN_TTL must be positive")
	}
	return cfg, nil
}

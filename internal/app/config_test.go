package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/db"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFileOverlayEnvWins(t *testing.T) {
	path := writeConfigFile(t, `
port: 9090
db_driver: sqlite
token_ttl: 2h
cors_origins:
  - https://a.example
  - https://b.example
worker_concurrency: 4
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("ARCHIVE_SECRET", "s")
	for _, k := range []string{"DB_DRIVER", "TOKEN_TTL", "CORS_ORIGINS", "WORKER_CONCURRENCY"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := LoadConfig(logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, db.DriverSQLite, cfg.DB.Driver)
	assert.Empty(t, cfg.DB.DSN)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LOG_MODE", "development")
	t.Setenv("ARCHIVE_SECRET", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("POSTGRES_HOST", "pg")
	t.Setenv("THUMBNAIL_RESOLUTIONS", "")
	t.Setenv("SENDGRID_API_KEY", "")

	cfg, err := LoadConfig(logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, db.DriverPostgres, cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "@pg:5432/")
	assert.NotEmpty(t, cfg.ArchiveSecret)
	assert.Len(t, cfg.Thumbnails, 3)
	assert.False(t, cfg.SendGridEnabled)
	assert.Equal(t, 10*time.Minute, cfg.ArchivePreviewTTL)
}

func TestLoadConfigRequiresArchiveSecretInProduction(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LOG_MODE", "production")
	t.Setenv("ARCHIVE_SECRET", "")

	_, err := LoadConfig(logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARCHIVE_SECRET")
}

func TestApplyConfigFileRejectsBadYAML(t *testing.T) {
	path := writeConfigFile(t, "port: [unterminated")
	assert.Error(t, ApplyConfigFile(path))
}

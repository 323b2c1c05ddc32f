package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8787, cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 30, cfg.RateLimit.Upload)
	assert.Equal(t, 20, cfg.RateLimit.Commit)
	assert.Equal(t, 10, cfg.RateLimit.Capture)
	assert.Equal(t, int64(25<<20), cfg.Transcription.MaxBytes)
	assert.Equal(t, 300.0, cfg.Pipeline.QueuedDurationThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Storage.UploadURLTTL)
	assert.Equal(t, "root:password@tcp(127.0.0.1:3306)/capture?charset=utf8mb4&loc=Local&parseTime=true", cfg.Database.DSNValue())
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URLValue())
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
port: 9000
env: production
allowed_origins: [" https://app.example.com ", ""]
database:
  driver: sqlite
  path: /var/lib/capture/capture.db
redis:
  url: cache:6380/2
storage:
  endpoint: https://s3.example.com/
  bucket: capture
  audio_bucket: capture-audio
  path_style: true
  upload_url_ttl: 5m
ai:
  providers:
    - id: main
      type: OpenAI
      api_key: sk-main
      default_model: gpt-4o-mini
    - id: claude
      type: Anthropic
      api_key: sk-ant
      enabled: false
  structure_model:
    provider_id: main
    model: gpt-4o
  timeout: 30s
transcription:
  language: en
rate_limit:
  window: 10s
  commit: 3
pipeline:
  queued_duration_threshold: 120
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/var/lib/capture/capture.db", cfg.Database.DSNValue())
	assert.Equal(t, "redis://cache:6380/2", cfg.Redis.URLValue())

	assert.Equal(t, "https://s3.example.com", cfg.Storage.Endpoint)
	assert.Equal(t, "capture-audio", cfg.Storage.AudioBucketName())
	assert.Equal(t, "capture", cfg.Storage.TextBucketName())
	assert.True(t, cfg.Storage.PathStyle)
	assert.Equal(t, 5*time.Minute, cfg.Storage.UploadURLTTL)

	require.Len(t, cfg.AI.Providers, 2)
	assert.True(t, cfg.AI.Providers[0].Enabled)
	assert.False(t, cfg.AI.Providers[1].Enabled)
	require.NotNil(t, cfg.AI.StructureModel)
	assert.Equal(t, "gpt-4o", cfg.AI.StructureModel.Model)
	assert.Nil(t, cfg.AI.RenderModel)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)

	assert.Equal(t, "en", cfg.Transcription.Language)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 3, cfg.RateLimit.Commit)
	assert.Equal(t, 30, cfg.RateLimit.Upload)
	assert.Equal(t, 120.0, cfg.Pipeline.QueuedDurationThreshold)
}

func TestLoadModelAssignments(t *testing.T) {
	path := writeConfig(t, `
ai:
  structure_model:
    provider_id: "  "
    model: " "
  render_model:
    provider_id: " main "
    model: " claude-3-5-haiku "
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Nil(t, cfg.AI.StructureModel)
	require.NotNil(t, cfg.AI.RenderModel)
	assert.Equal(t, AIModelAssignment{ProviderID: "main", Model: "claude-3-5-haiku"}, *cfg.AI.RenderModel)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "prot: 80\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prot")
}

func TestLoadValidationNamesKeyAndFile(t *testing.T) {
	path := writeConfig(t, "rate_limit:\n  upload: 0\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit.upload")
	assert.Contains(t, err.Error(), path)

	_, err = Load(writeConfig(t, "database:\n  driver: postgres\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")

	_, err = Load(writeConfig(t, "rate_limit:\n  window: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit.window")
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yml")

	_, err := Load(missing)
	require.Error(t, err)

	cfg, err := LoadOrDefault(missing)
	require.NoError(t, err)
	assert.Equal(t, 8787, cfg.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvJWTSecret, "from-env")
	t.Setenv(EnvDatabaseDSN, "user:pw@tcp(db:3306)/capture")
	t.Setenv(EnvRedisURL, "redis-host:6379/1")
	t.Setenv(EnvOpenAIAPIKey, "sk-env")
	t.Setenv(EnvS3SecretAccessKey, "s3-secret")

	cfg, err := Load(writeConfig(t, `
jwt_secret: from-file
ai:
  providers:
    - id: main
      type: OpenAI
    - id: claude
      type: Anthropic
`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "user:pw@tcp(db:3306)/capture", cfg.Database.DSNValue())
	assert.Equal(t, "redis://redis-host:6379/1", cfg.Redis.URLValue())
	assert.Equal(t, "sk-env", cfg.Transcription.APIKey)
	assert.Equal(t, "sk-env", cfg.AI.Providers[0].APIKey)
	assert.Empty(t, cfg.AI.Providers[1].APIKey)
	assert.Equal(t, "s3-secret", cfg.Storage.SecretAccessKey)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CAPTURE_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("CAPTURE_TEST_DOTENV", "")
	os.Unsetenv("CAPTURE_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("CAPTURE_TEST_DOTENV"))
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are ignored and variables
// already set are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %q: %w", file, err)
		}
	}
	return nil
}

func Load(configPath string) (*AppConfig, error) {
	return load(configPath, false)
}

// LoadOrDefault behaves like Load but returns defaults (plus environment
// overrides) when the file does not exist.
func LoadOrDefault(configPath string) (*AppConfig, error) {
	return load(configPath, true)
}

func load(configPath string, allowMissing bool) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		raw := rawAppConfig{}
		if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
		if err := applyRawAppConfig(&cfg, raw); err != nil {
			return nil, fmt.Errorf("%w in %q", err, path)
		}
	case allowMissing && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w in %q", err, path)
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:    defaultDBDriver,
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Storage: StorageConfig{
			Region:       defaultStorageRegion,
			UploadURLTTL: defaultUploadURLTTL,
		},
		AI: AIConfig{
			MaxOutputTokens: defaultAIMaxOutputTokens,
			Timeout:         defaultAITimeout,
		},
		Transcription: TranscriptionConfig{
			Model:    defaultTranscriptionModel,
			MaxBytes: defaultTranscriptionMaxBytes,
		},
		RateLimit: RateLimitConfig{
			Window:  defaultRateLimitWindow,
			Upload:  defaultUploadLimit,
			Commit:  defaultCommitLimit,
			Capture: defaultCaptureLimit,
		},
		Pipeline: PipelineConfig{
			QueuedDurationThreshold: defaultQueuedDurationThreshold,
			TextMaxBytes:            defaultTextMaxBytes,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	cfg.Env = normalizeEnv(cfg.Env)

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Temp); v != "" {
		cfg.Paths.Temp = v
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw.Database)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw.Redis)

	storage, err := applyRawStorageConfig(cfg.Storage, raw.Storage)
	if err != nil {
		return err
	}
	cfg.Storage = storage

	ai, err := applyRawAIConfig(cfg.AI, raw.AI)
	if err != nil {
		return err
	}
	cfg.AI = ai

	cfg.Transcription = applyRawTranscriptionConfig(cfg.Transcription, raw.Transcription)

	limits, err := applyRawRateLimitConfig(cfg.RateLimit, raw.RateLimit)
	if err != nil {
		return err
	}
	cfg.RateLimit = limits

	if raw.Pipeline.QueuedDurationThreshold != nil {
		cfg.Pipeline.QueuedDurationThreshold = *raw.Pipeline.QueuedDurationThreshold
	}
	if raw.Pipeline.TextMaxBytes != 0 {
		cfg.Pipeline.TextMaxBytes = raw.Pipeline.TextMaxBytes
	}
	return nil
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawDatabaseConfig) DatabaseRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Driver); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.URL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Path); v != "" {
		cfg.Path = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Username); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.ParseTime != nil {
		cfg.ParseTime = *raw.ParseTime
	}
	if v := strings.TrimSpace(raw.Loc); v != "" {
		cfg.Loc = v
	}
	if raw.Params != nil {
		cfg.Params = cleanParams(raw.Params)
	}

	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawRedisConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if raw.DB != nil {
		cfg.DB = *raw.DB
	}
	if raw.TLS != nil {
		cfg.TLS = *raw.TLS
	}
	if v := strings.TrimSpace(raw.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Params != nil {
		cfg.Params = cleanParams(raw.Params)
	}

	return normalizeRedisConfig(cfg)
}

func applyRawStorageConfig(current StorageConfig, raw rawStorageConfig) (StorageConfig, error) {
	cfg := current

	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		cfg.Endpoint = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(raw.Region); v != "" {
		cfg.Region = v
	}
	if v := strings.TrimSpace(raw.Bucket); v != "" {
		cfg.Bucket = v
	}
	if v := strings.TrimSpace(raw.AudioBucket); v != "" {
		cfg.AudioBucket = v
	}
	if v := strings.TrimSpace(raw.TextBucket); v != "" {
		cfg.TextBucket = v
	}
	if v := strings.TrimSpace(raw.AccessKeyID); v != "" {
		cfg.AccessKeyID = v
	}
	if v := strings.TrimSpace(raw.SecretAccessKey); v != "" {
		cfg.SecretAccessKey = v
	}
	if raw.PathStyle != nil {
		cfg.PathStyle = *raw.PathStyle
	}
	if v := strings.TrimSpace(raw.UploadURLTTL); v != "" {
		ttl, err := parseDuration("storage.upload_url_ttl", v)
		if err != nil {
			return cfg, err
		}
		cfg.UploadURLTTL = ttl
	}
	return cfg, nil
}

func applyRawAIConfig(current AIConfig, raw rawAIConfig) (AIConfig, error) {
	cfg := current

	if raw.Providers != nil {
		cfg.Providers = make([]AIProvider, 0, len(raw.Providers))
		for _, p := range raw.Providers {
			enabled := true
			if p.Enabled != nil {
				enabled = *p.Enabled
			}
			cfg.Providers = append(cfg.Providers, AIProvider{
				ID:           strings.TrimSpace(p.ID),
				Name:         strings.TrimSpace(p.Name),
				Type:         strings.TrimSpace(p.Type),
				APIKey:       strings.TrimSpace(p.APIKey),
				Endpoint:     strings.TrimSpace(p.Endpoint),
				DefaultModel: strings.TrimSpace(p.DefaultModel),
				Enabled:      enabled,
			})
		}
	}
	cfg.StructureModel = normalizeAssignment(raw.StructureModel, cfg.StructureModel)
	cfg.RenderModel = normalizeAssignment(raw.RenderModel, cfg.RenderModel)
	if raw.MaxOutputTokens != 0 {
		cfg.MaxOutputTokens = raw.MaxOutputTokens
	}
	if v := strings.TrimSpace(raw.Timeout); v != "" {
		timeout, err := parseDuration("ai.timeout", v)
		if err != nil {
			return cfg, err
		}
		cfg.Timeout = timeout
	}
	return cfg, nil
}

func applyRawTranscriptionConfig(current TranscriptionConfig, raw rawTranscriptionConfig) TranscriptionConfig {
	cfg := current
	if v := strings.TrimSpace(raw.APIKey); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(raw.Model); v != "" {
		cfg.Model = v
	}
	if raw.MaxBytes != 0 {
		cfg.MaxBytes = raw.MaxBytes
	}
	if v := strings.TrimSpace(raw.Language); v != "" {
		cfg.Language = v
	}
	return cfg
}

func applyRawRateLimitConfig(current RateLimitConfig, raw rawRateLimitConfig) (RateLimitConfig, error) {
	cfg := current
	if v := strings.TrimSpace(raw.Window); v != "" {
		window, err := parseDuration("rate_limit.window", v)
		if err != nil {
			return cfg, err
		}
		cfg.Window = window
	}
	if raw.Upload != nil {
		cfg.Upload = *raw.Upload
	}
	if raw.Commit != nil {
		cfg.Commit = *raw.Commit
	}
	if raw.Capture != nil {
		cfg.Capture = *raw.Capture
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q, expected a duration such as 60s", key, raw)
	}
	return d, nil
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	switch cfg.Database.Driver {
	case DriverMySQL:
		if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
			return fmt.Errorf("invalid database.port %d, expected 1-65535", cfg.Database.Port)
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("invalid database.driver %q, expected mysql or sqlite", cfg.Database.Driver)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	if cfg.Storage.UploadURLTTL <= 0 {
		return fmt.Errorf("invalid storage.upload_url_ttl %s, expected > 0", cfg.Storage.UploadURLTTL)
	}
	if cfg.Transcription.MaxBytes <= 0 {
		return fmt.Errorf("invalid transcription.max_bytes %d, expected > 0", cfg.Transcription.MaxBytes)
	}
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("invalid rate_limit.window %s, expected > 0", cfg.RateLimit.Window)
	}
	for key, limit := range map[string]int{
		"rate_limit.upload":  cfg.RateLimit.Upload,
		"rate_limit.commit":  cfg.RateLimit.Commit,
		"rate_limit.capture": cfg.RateLimit.Capture,
	} {
		if limit < 1 {
			return fmt.Errorf("invalid %s %d, expected >= 1", key, limit)
		}
	}
	if cfg.Pipeline.QueuedDurationThreshold < 0 {
		return fmt.Errorf("invalid pipeline.queued_duration_threshold %v, expected >= 0", cfg.Pipeline.QueuedDurationThreshold)
	}
	if cfg.Pipeline.TextMaxBytes <= 0 {
		return fmt.Errorf("invalid pipeline.text_max_bytes %d, expected > 0", cfg.Pipeline.TextMaxBytes)
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

func (c *AppConfig) LogDir() string {
	if c == nil {
		return runtimePath("", "logs")
	}
	return runtimePath(c.Paths.Logs, "logs")
}

// TempDir is where audio is staged for transcription; os.TempDir unless
// paths.temp is set.
func (c *AppConfig) TempDir() string {
	if c == nil || strings.TrimSpace(c.Paths.Temp) == "" {
		return os.TempDir()
	}
	return runtimePath(c.Paths.Temp, "tmp")
}

func (s StorageConfig) AudioBucketName() string {
	if s.AudioBucket != "" {
		return s.AudioBucket
	}
	return s.Bucket
}

func (s StorageConfig) TextBucketName() string {
	if s.TextBucket != "" {
		return s.TextBucket
	}
	return s.Bucket
}

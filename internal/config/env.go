package config

import (
	"os"
	"strings"
)

// Secrets may come from the environment (or .env) instead of the YAML file.
const (
	EnvJWTSecret         = "CAPTURE_JWT_SECRET"
	EnvDatabaseDSN       = "CAPTURE_DATABASE_DSN"
	EnvRedisURL          = "CAPTURE_REDIS_URL"
	EnvOpenAIAPIKey      = "CAPTURE_OPENAI_API_KEY"
	EnvS3AccessKeyID     = "CAPTURE_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "CAPTURE_S3_SECRET_ACCESS_KEY"
)

func applyEnvOverrides(cfg *AppConfig) {
	if v, ok := lookupEnv(EnvJWTSecret); ok {
		cfg.JWTSecret = v
	}
	if v, ok := lookupEnv(EnvDatabaseDSN); ok {
		cfg.Database.DSN = v
	}
	if v, ok := lookupEnv(EnvRedisURL); ok {
		cfg.Redis.URL = normalizeRedisRawURL(v)
	}
	if v, ok := lookupEnv(EnvOpenAIAPIKey); ok {
		cfg.Transcription.APIKey = v
		for i := range cfg.AI.Providers {
			if cfg.AI.Providers[i].APIKey == "" && isOpenAIType(cfg.AI.Providers[i].Type) {
				cfg.AI.Providers[i].APIKey = v
			}
		}
	}
	if v, ok := lookupEnv(EnvS3AccessKeyID); ok {
		cfg.Storage.AccessKeyID = v
	}
	if v, ok := lookupEnv(EnvS3SecretAccessKey); ok {
		cfg.Storage.SecretAccessKey = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func isOpenAIType(raw string) bool {
	t := strings.ToLower(strings.TrimSpace(raw))
	return t == "" || t == "openai"
}

package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 8787
	defaultEnv        = "development"

	defaultDBDriver   = DriverMySQL
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "capture"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultSQLitePath = "capture.db"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultStorageRegion = "us-east-1"
	defaultUploadURLTTL  = 15 * time.Minute

	defaultAIMaxOutputTokens = 1024
	defaultAITimeout         = 60 * time.Second

	defaultTranscriptionModel    = "whisper-1"
	defaultTranscriptionMaxBytes = int64(25 << 20)

	defaultRateLimitWindow = 60 * time.Second
	defaultUploadLimit     = 30
	defaultCommitLimit     = 20
	defaultCaptureLimit    = 10

	defaultQueuedDurationThreshold = 300.0
	defaultTextMaxBytes            = int64(5 << 20)
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

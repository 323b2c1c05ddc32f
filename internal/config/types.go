package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string // "development" | "production"
	AllowedOrigins []string
	JWTSecret      string
	Paths          RuntimePathsConfig
	Database       DatabaseRuntimeConfig
	Redis          RedisRuntimeConfig
	Storage        StorageConfig
	AI             AIConfig
	Transcription  TranscriptionConfig
	RateLimit      RateLimitConfig
	Pipeline       PipelineConfig
}

type DatabaseRuntimeConfig struct {
	Driver    string // mysql | sqlite
	DSN       string
	Path      string // sqlite file
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	Charset   string
	ParseTime bool
	Loc       string
	Params    map[string]string
}

type RedisRuntimeConfig struct {
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
	Scheme   string
	Params   map[string]string
}

type RuntimePathsConfig struct {
	Logs string
	Temp string
}

// StorageConfig addresses an S3-compatible object store.
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AudioBucket     string
	TextBucket      string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
	UploadURLTTL    time.Duration
}

type AIConfig struct {
	Providers       []AIProvider
	StructureModel  *AIModelAssignment
	RenderModel     *AIModelAssignment
	MaxOutputTokens int
	Timeout         time.Duration
}

type AIModelAssignment struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // OpenAI | OpenAI-Compatible | Anthropic | OpenRouter
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

type TranscriptionConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	MaxBytes int64
	Language string
}

// RateLimitConfig holds fixed-window ceilings per operation class.
type RateLimitConfig struct {
	Window  time.Duration
	Upload  int
	Commit  int
	Capture int
}

type PipelineConfig struct {
	// QueuedDurationThreshold is in seconds. Audio declared longer than this
	// is answered with 202 "queued" even though it already ran.
	QueuedDurationThreshold float64
	TextMaxBytes            int64
}

type rawAppConfig struct {
	Port               int                    `yaml:"port"`
	Env                string                 `yaml:"env"`
	AllowedOrigins     []string               `yaml:"allowed_origins"`
	CORSAllowedOrigins []string               `yaml:"cors_allowed_origins"`
	JWTSecret          string                 `yaml:"jwt_secret"`
	Paths              rawPathsConfig         `yaml:"paths"`
	Database           rawDatabaseConfig      `yaml:"database"`
	Redis              rawRedisConfig         `yaml:"redis"`
	Storage            rawStorageConfig       `yaml:"storage"`
	AI                 rawAIConfig            `yaml:"ai"`
	Transcription      rawTranscriptionConfig `yaml:"transcription"`
	RateLimit          rawRateLimitConfig     `yaml:"rate_limit"`
	Pipeline           rawPipelineConfig      `yaml:"pipeline"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
	Temp string `yaml:"temp"`
}

type rawDatabaseConfig struct {
	Driver    string            `yaml:"driver"`
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Path      string            `yaml:"path"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawStorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AudioBucket     string `yaml:"audio_bucket"`
	TextBucket      string `yaml:"text_bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       *bool  `yaml:"path_style"`
	UploadURLTTL    string `yaml:"upload_url_ttl"`
}

type rawAIConfig struct {
	Providers       []rawAIProvider    `yaml:"providers"`
	StructureModel  *AIModelAssignment `yaml:"structure_model"`
	RenderModel     *AIModelAssignment `yaml:"render_model"`
	MaxOutputTokens int                `yaml:"max_output_tokens"`
	Timeout         string             `yaml:"timeout"`
}

type rawAIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      *bool  `yaml:"enabled"`
}

type rawTranscriptionConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	MaxBytes int64  `yaml:"max_bytes"`
	Language string `yaml:"language"`
}

type rawRateLimitConfig struct {
	Window  string `yaml:"window"`
	Upload  *int   `yaml:"upload"`
	Commit  *int   `yaml:"commit"`
	Capture *int   `yaml:"capture"`
}

type rawPipelineConfig struct {
	QueuedDurationThreshold *float64 `yaml:"queued_duration_threshold"`
	TextMaxBytes            int64    `yaml:"text_max_bytes"`
}

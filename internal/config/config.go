package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Speech   SpeechConfig   `mapstructure:"speech" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Queue    QueueConfig    `mapstructure:"queue"`
}

// ServerConfig contains process-wide settings shared by every component.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains the broker/cache connection settings. An empty Addr
// is a supported configuration: the queue manager initializes in an
// unavailable state and callers must fall back to synchronous execution.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig contains all content-generation related settings.
type LLMConfig struct {
	GeminiAPIKey       string        `mapstructure:"gemini_api_key" validate:"required"`
	ModelName          string        `mapstructure:"model_name" validate:"required"`
	PromptTemplatePath string        `mapstructure:"prompt_template_path" validate:"required"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
}

// SpeechConfig contains all speech-synthesis related settings.
// ChunkByteLimit stays deliberately under the provider's hard per-request
// ceiling.
type SpeechConfig struct {
	LanguageCode   string        `mapstructure:"language_code" validate:"required"`
	VoiceName      string        `mapstructure:"voice_name"`
	SpeakingRate   float64       `mapstructure:"speaking_rate" validate:"gte=0,lte=4"`
	Pitch          float64       `mapstructure:"pitch" validate:"gte=-20,lte=20"`
	ChunkByteLimit int           `mapstructure:"chunk_byte_limit" validate:"required,gt=0"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
}

// StorageConfig contains object-storage settings. Backend selects the
// implementation: "gcs" for Google Cloud Storage, "filesystem" for local
// development.
type StorageConfig struct {
	Backend       string        `mapstructure:"backend" validate:"required,oneof=gcs filesystem"`
	Bucket        string        `mapstructure:"bucket" validate:"required_if=Backend gcs"`
	BasePath      string        `mapstructure:"base_path"`
	PublicURLBase string        `mapstructure:"public_url_base"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
}

// SMTPConfig contains outbound mail settings used by the email worker.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// QueueConfig contains job-queue tuning. Zero values fall back to the
// per-queue defaults defined in the queue package.
type QueueConfig struct {
	MaxAttempts            int           `mapstructure:"max_attempts"`
	BackoffBase            time.Duration `mapstructure:"backoff_base"`
	GenerationConcurrency  int           `mapstructure:"generation_concurrency"`
	NarrationConcurrency   int           `mapstructure:"narration_concurrency"`
	EmailConcurrency       int           `mapstructure:"email_concurrency"`
	ImageUploadConcurrency int           `mapstructure:"image_upload_concurrency"`
}

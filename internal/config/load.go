package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Look for an optional config.yaml in the working directory. A missing
	// file is not an error; environment variables alone are sufficient.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Configure environment variables with the CALLIOPE prefix.
	v.SetEnvPrefix("CALLIOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind critical environment variables. AutomaticEnv alone does
	// not surface nested keys that never appear in a config file.
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"server.log_level", "CALLIOPE_SERVER_LOG_LEVEL"},
		{"database.url", "CALLIOPE_DATABASE_URL"},
		{"redis.addr", "CALLIOPE_REDIS_ADDR"},
		{"redis.password", "CALLIOPE_REDIS_PASSWORD"},
		{"redis.db", "CALLIOPE_REDIS_DB"},
		{"llm.gemini_api_key", "CALLIOPE_LLM_GEMINI_API_KEY"},
		{"llm.model_name", "CALLIOPE_LLM_MODEL_NAME"},
		{"llm.prompt_template_path", "CALLIOPE_LLM_PROMPT_TEMPLATE_PATH"},
		{"speech.language_code", "CALLIOPE_SPEECH_LANGUAGE_CODE"},
		{"speech.voice_name", "CALLIOPE_SPEECH_VOICE_NAME"},
		{"storage.backend", "CALLIOPE_STORAGE_BACKEND"},
		{"storage.bucket", "CALLIOPE_STORAGE_BUCKET"},
		{"storage.base_path", "CALLIOPE_STORAGE_BASE_PATH"},
		{"storage.public_url_base", "CALLIOPE_STORAGE_PUBLIC_URL_BASE"},
		{"smtp.host", "CALLIOPE_SMTP_HOST"},
		{"smtp.port", "CALLIOPE_SMTP_PORT"},
		{"smtp.username", "CALLIOPE_SMTP_USERNAME"},
		{"smtp.password", "CALLIOPE_SMTP_PASSWORD"},
		{"smtp.from", "CALLIOPE_SMTP_FROM"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the default value for every setting that has a
// sensible one. Required secrets (database URL, API keys) have no defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.log_level", "info")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.prompt_template_path", "prompts/article.tmpl")
	v.SetDefault("llm.call_timeout", "120s")

	v.SetDefault("speech.language_code", "en-US")
	v.SetDefault("speech.speaking_rate", 1.0)
	v.SetDefault("speech.pitch", 0.0)
	v.SetDefault("speech.chunk_byte_limit", 4500)
	v.SetDefault("speech.call_timeout", "60s")

	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.base_path", "data/assets")
	v.SetDefault("storage.call_timeout", "60s")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base", "2s")
	v.SetDefault("queue.generation_concurrency", 2)
	v.SetDefault("queue.narration_concurrency", 2)
	v.SetDefault("queue.email_concurrency", 5)
	v.SetDefault("queue.image_upload_concurrency", 3)
}

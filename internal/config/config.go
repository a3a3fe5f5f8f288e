// Package config loads the daemon configuration from defaults, an optional
// config.yaml and NLUD_* environment variables, then validates it.
package config

import "time"

// Config defines the application configuration. Values can be set via
// environment variables prefixed with NLUD_ (e.g. NLUD_LOG_LEVEL) or through
// config.yaml.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Training  TrainingConfig  `mapstructure:"training"`
	Models    ModelsConfig    `mapstructure:"models"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Bots      []BotSeed       `mapstructure:"bots"     validate:"dive"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig points at the SQLite file holding bot configurations,
// models and training sessions.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// StorageConfig locates bot definition files. Each bot owns
// <bots_dir>/<bot_id>/{intents,entities}.
type StorageConfig struct {
	BotsDir string `mapstructure:"bots_dir" validate:"required"`
}

// EngineConfig describes the local NLU engine.
type EngineConfig struct {
	Version               string   `mapstructure:"version"                 validate:"required"`
	Languages             []string `mapstructure:"languages"               validate:"required,min=1,dive,required"`
	Classifier            string   `mapstructure:"classifier"              validate:"required,oneof=overlap gemini"`
	Dimensions            int      `mapstructure:"dimensions"              validate:"min=1"`
	Domain                string   `mapstructure:"domain"`
	LanguageServerVersion string   `mapstructure:"language_server_version"`
}

// GeminiConfig configures the optional Gemini intent classifier.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	ModelName         string        `mapstructure:"model_name"          validate:"required"`
	Temperature       float32       `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=0"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"min=1s,max=10m"`

	// BreakerMaxFailures consecutive failures stop Gemini calls for BreakerOpenTimeout.
	BreakerMaxFailures int           `mapstructure:"breaker_max_failures" validate:"min=1"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout" validate:"min=1s"`
}

// TrainingConfig controls the training queue.
type TrainingConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent" validate:"min=1,max=64"`
	AutoTrain     bool          `mapstructure:"auto_train"`
	Timeout       time.Duration `mapstructure:"timeout"        validate:"min=1s"`
}

// ModelsConfig controls model retention.
type ModelsConfig struct {
	KeepPerLanguage int `mapstructure:"keep_per_language" validate:"min=1"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig is the schedule of one periodic task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// TelegramConfig enables the admin bot when Token is set.
type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	AdminUserID int64  `mapstructure:"admin_user_id" validate:"required_with=Token"`
}

// BotSeed is a bot configuration declared in the config file. Seeds are
// written to the configuration store and mounted at startup.
type BotSeed struct {
	ID              string   `mapstructure:"id"               validate:"required"`
	Name            string   `mapstructure:"name"`
	DefaultLanguage string   `mapstructure:"default_language" validate:"required"`
	Languages       []string `mapstructure:"languages"        validate:"required,min=1,dive,required"`
	Seed            *int     `mapstructure:"seed"`
}

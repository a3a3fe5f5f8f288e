package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads and validates configuration from:
// 1. Default values
// 2. the config file at path (optional; "" looks for ./config.yaml)
// 3. NLUD_* environment variables
func Load(path string) (*Config, error) {
	startTime := time.Now()
	v := viper.New()
	setDefaults(v)

	if err := readConfig(v, path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	slog.Debug("configuration loaded",
		"config_file", v.ConfigFileUsed(),
		"engine_languages", cfg.Engine.Languages,
		"classifier", cfg.Engine.Classifier,
		"bots", len(cfg.Bots),
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NLUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Info("configuration file not found, using defaults")
			return nil
		}
		return fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
	}
	return nil
}

// setDefaults sets default values for optional configuration parameters
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", DefaultLogJSON)

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("storage.bots_dir", DefaultBotsDir)

	v.SetDefault("engine.version", DefaultEngineVersion)
	v.SetDefault("engine.languages", DefaultEngineLanguages)
	v.SetDefault("engine.classifier", DefaultEngineClassifier)
	v.SetDefault("engine.dimensions", DefaultEngineDimensions)
	v.SetDefault("engine.domain", DefaultEngineDomain)
	v.SetDefault("engine.language_server_version", DefaultLanguageServer)

	v.SetDefault("gemini.model_name", DefaultGeminiModel)
	v.SetDefault("gemini.temperature", DefaultGeminiTemperature)
	v.SetDefault("gemini.max_retries", DefaultGeminiMaxRetries)
	v.SetDefault("gemini.retry_delay_seconds", DefaultGeminiRetryDelaySeconds)
	v.SetDefault("gemini.timeout", DefaultGeminiTimeout)
	v.SetDefault("gemini.breaker_max_failures", DefaultGeminiBreakerFailures)
	v.SetDefault("gemini.breaker_open_timeout", DefaultGeminiBreakerOpen)

	v.SetDefault("training.max_concurrent", DefaultTrainingMaxConcurrent)
	v.SetDefault("training.auto_train", DefaultTrainingAutoTrain)
	v.SetDefault("training.timeout", DefaultTrainingTimeout)

	v.SetDefault("models.keep_per_language", DefaultModelsKeepPerLanguage)

	for name, task := range DefaultTasks {
		v.SetDefault("scheduler.tasks."+name+".enabled", task.Enabled)
		v.SetDefault("scheduler.tasks."+name+".schedule", task.Schedule)
	}
}

package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false

	DefaultDBPath  = "nlud.db"
	DefaultBotsDir = "data/bots"

	DefaultEngineVersion    = "1.0.0"
	DefaultEngineClassifier = "overlap"
	DefaultEngineDimensions = 300
	DefaultEngineDomain     = "bp"
	DefaultLanguageServer   = "1.0.0"

	DefaultGeminiModel             = "gemini-2.0-flash"
	DefaultGeminiTemperature       = 0.0
	DefaultGeminiMaxRetries        = 2
	DefaultGeminiRetryDelaySeconds = 2
	DefaultGeminiTimeout           = 30 * time.Second
	DefaultGeminiBreakerFailures   = 5
	DefaultGeminiBreakerOpen       = time.Minute

	DefaultTrainingMaxConcurrent = 2
	DefaultTrainingAutoTrain     = false
	DefaultTrainingTimeout       = 10 * time.Minute

	DefaultModelsKeepPerLanguage = 2
)

// DefaultEngineLanguages are the languages served when none are configured.
var DefaultEngineLanguages = []string{"en", "fr"}

// DefaultTasks are the scheduled tasks enabled out of the box.
var DefaultTasks = map[string]TaskConfig{
	"training_dispatch": {Enabled: true, Schedule: "*/5 * * * * *"},
	"model_pruning":     {Enabled: true, Schedule: "0 */30 * * * *"},
	"sql_maintenance":   {Enabled: true, Schedule: "0 0 4 * * *"},
}

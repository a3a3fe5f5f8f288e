package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrConfiguration wraps every error returned by Load.
var ErrConfiguration = errors.New("configuration error")

// Validate checks struct tags and the rules that span several sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Engine.Classifier == "gemini" && c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required when engine.classifier is gemini")
	}

	seen := make(map[string]struct{}, len(c.Bots))
	for _, b := range c.Bots {
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("bot %q is declared twice", b.ID)
		}
		seen[b.ID] = struct{}{}

		found := false
		for _, lang := range b.Languages {
			if lang == b.DefaultLanguage {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("bot %q: default language %q is not one of its languages", b.ID, b.DefaultLanguage)
		}
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" {
			return fmt.Errorf("scheduler task %q is enabled but has no schedule", name)
		}
	}

	return nil
}

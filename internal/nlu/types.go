// Package nlu holds the training definitions of a bot and the content-derived
// model identity computed from them.
package nlu

import "time"

// Slot is a named parameter of an intent, filled by one of its entities.
type Slot struct {
	Name     string   `json:"name"     yaml:"name"`
	Entities []string `json:"entities" yaml:"entities"`
}

// Intent is a class of user utterances. Utterances are keyed by language code.
type Intent struct {
	Name       string              `json:"name"       yaml:"name"`
	Contexts   []string            `json:"contexts"   yaml:"contexts"`
	Slots      []Slot              `json:"slots"      yaml:"slots"`
	Utterances map[string][]string `json:"utterances" yaml:"utterances"`
}

// Occurrence is one value of a list entity with its synonyms.
type Occurrence struct {
	Name     string   `json:"name"     yaml:"name"`
	Synonyms []string `json:"synonyms" yaml:"synonyms"`
}

// Entity types.
const (
	EntityTypeList    = "list"
	EntityTypePattern = "pattern"
	EntityTypeSystem  = "system"
)

// Entity is a custom entity definition.
type Entity struct {
	Name        string       `json:"name"                  yaml:"name"`
	Type        string       `json:"type"                  yaml:"type"`
	Occurrences []Occurrence `json:"occurrences,omitempty" yaml:"occurrences,omitempty"`
	Pattern     string       `json:"pattern,omitempty"     yaml:"pattern,omitempty"`
	Fuzzy       float64      `json:"fuzzy,omitempty"       yaml:"fuzzy,omitempty"`
	Examples    []string     `json:"examples,omitempty"    yaml:"examples,omitempty"`
}

// Definitions is what a bot's definitions repository provides.
type Definitions struct {
	Intents  []Intent `json:"intents"`
	Entities []Entity `json:"entities"`
}

// TrainingSet is the input of a training for one language.
type TrainingSet struct {
	Intents      []Intent `json:"intents"`
	Entities     []Entity `json:"entities"`
	LanguageCode string   `json:"languageCode"`
	Seed         int      `json:"seed"`
}

// LanguageServer describes the embedding source an engine trains with.
type LanguageServer struct {
	Dimensions int    `json:"dimensions"`
	Domain     string `json:"domain"`
	Version    string `json:"version"`
}

// Specifications fingerprint the training engine. Any change here
// invalidates every model trained before it.
type Specifications struct {
	EngineVersion  string         `json:"engineVersion"`
	LanguageServer LanguageServer `json:"languageServer"`
}

// Model is a trained artifact identified by its ModelID.
type Model struct {
	ID        ModelID
	BotID     string
	StartedAt time.Time
	Finished  time.Time
	Data      []byte
}

// IntentScore is one ranked intent of a prediction.
type IntentScore struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Prediction is the result of classifying an utterance.
type Prediction struct {
	Language string        `json:"language"`
	ModelID  string        `json:"modelId"`
	Intent   IntentScore   `json:"intent"`
	Ranking  []IntentScore `json:"ranking"`
}

// BotDefinition is the effective NLU setup of a mounted bot: the languages
// it serves (already restricted to the engine's) and its training seed.
type BotDefinition struct {
	BotID           string
	DefaultLanguage string
	Languages       []string
	Seed            int
}

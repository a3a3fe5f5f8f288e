// Package engine trains and serves NLU models. Models are addressed by the
// content-derived nlu.ModelID; an engine "has" a model once it is loaded.
package engine

import (
	"context"

	"github.com/edgard/nlud/internal/nlu"
)

// NoneIntent is predicted when no intent of the model matches.
const NoneIntent = "none"

// ProgressFunc receives training progress in [0, 1].
type ProgressFunc func(progress float64)

// Health reports the state of the engine.
type Health struct {
	IsEnabled      bool     `json:"isEnabled"`
	ValidLanguages []string `json:"validLanguages"`
}

// Engine is the NLU engine used by bots.
type Engine interface {
	// Specifications fingerprint the engine for model identity.
	Specifications() nlu.Specifications
	// Languages lists the language codes the engine can train.
	Languages() []string
	Health() Health

	// HasModel reports whether the model is loaded.
	HasModel(id nlu.ModelID) bool
	// Train trains a model from set. The model is returned but not loaded.
	Train(ctx context.Context, set nlu.TrainingSet, progress ProgressFunc) (*nlu.Model, error)
	// LoadModel loads the model, or takes another reference on it when a
	// model with the same id is already loaded.
	LoadModel(model *nlu.Model) error
	// RetainModel takes another reference on a loaded model and reports
	// whether it was loaded.
	RetainModel(id nlu.ModelID) bool
	// UnloadModel releases one reference and reports whether the model was
	// loaded. The model stays loaded until its last reference is released.
	UnloadModel(id nlu.ModelID) bool
	Predict(ctx context.Context, id nlu.ModelID, text string) (*nlu.Prediction, error)
}

// IntentExamples describes one candidate intent to a Classifier.
type IntentExamples struct {
	Name       string   `json:"name"`
	Utterances []string `json:"utterances"`
}

// ClassifyRequest asks a Classifier to pick the intent of Text.
type ClassifyRequest struct {
	Text     string
	Language string
	Intents  []IntentExamples
}

// Classifier picks the intent of an utterance among the intents of a model.
// It refines the token-overlap ranking of the Local engine.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (nlu.IntentScore, error)
}

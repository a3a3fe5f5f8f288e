package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/errs"
	"github.com/edgard/nlud/internal/logger"
	"github.com/edgard/nlud/internal/nlu"
)

const maxExamplesPerIntent = 5

// slotMarkup matches "[Paris](city)" in an utterance.
var slotMarkup = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// artifact is the serialized form of a trained model.
type artifact struct {
	Language string           `json:"language"`
	Intents  []artifactIntent `json:"intents"`
}

type artifactIntent struct {
	Name     string   `json:"name"`
	Tokens   []string `json:"tokens"`
	Examples []string `json:"examples"`
}

// loadedModel is shared by every bot holding the same ModelID. refs counts
// the holders; the model is dropped when the last one unloads it.
type loadedModel struct {
	id      nlu.ModelID
	intents []loadedIntent
	refs    int
}

type loadedIntent struct {
	name     string
	tokens   map[string]struct{}
	examples []string
}

// Local is an in-process engine ranking intents by token overlap with their
// training utterances. An optional Classifier refines the top choice.
type Local struct {
	specs      nlu.Specifications
	languages  []string
	classifier Classifier
	logger     *slog.Logger

	mu     sync.RWMutex
	models map[string]*loadedModel
}

// Option configures a Local engine.
type Option func(*Local)

// WithClassifier makes the engine ask c for the intent of each prediction.
func WithClassifier(c Classifier) Option {
	return func(l *Local) {
		l.classifier = c
	}
}

// NewLocal creates a Local engine from the engine configuration.
func NewLocal(cfg config.EngineConfig, log *slog.Logger, opts ...Option) *Local {
	if log == nil {
		log = logger.Discard()
	}

	l := &Local{
		specs: nlu.Specifications{
			EngineVersion: fmt.Sprintf("%s/%s", cfg.Version, cfg.Classifier),
			LanguageServer: nlu.LanguageServer{
				Dimensions: cfg.Dimensions,
				Domain:     cfg.Domain,
				Version:    cfg.LanguageServerVersion,
			},
		},
		languages: slices.Clone(cfg.Languages),
		logger:    log.With("component", "engine"),
		models:    make(map[string]*loadedModel),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ Engine = (*Local)(nil)

func (l *Local) Specifications() nlu.Specifications {
	return l.specs
}

func (l *Local) Languages() []string {
	return slices.Clone(l.languages)
}

func (l *Local) Health() Health {
	return Health{IsEnabled: true, ValidLanguages: l.Languages()}
}

func (l *Local) HasModel(id nlu.ModelID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.models[id.String()]
	return ok
}

// Train builds the token index of every intent with utterances in the set's
// language. Intents without such utterances are left out of the model.
func (l *Local) Train(ctx context.Context, set nlu.TrainingSet, progress ProgressFunc) (*nlu.Model, error) {
	if !slices.Contains(l.languages, set.LanguageCode) {
		return nil, errs.NewEngineError(fmt.Sprintf("language %q is not supported", set.LanguageCode), nil)
	}

	id, err := nlu.ComputeModelID(set, l.specs)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(float64) {}
	}

	started := time.Now().UTC()
	l.logger.DebugContext(ctx, "Training model", "model_id", id.String(), "intents", len(set.Intents))

	synonyms := listEntityTokens(set.Entities)
	out := artifact{Language: set.LanguageCode}

	progress(0)
	for i, intent := range set.Intents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		utterances := intent.Utterances[set.LanguageCode]
		if len(utterances) == 0 {
			progress(float64(i+1) / float64(len(set.Intents)))
			continue
		}

		tokens := make(map[string]struct{})
		for _, u := range utterances {
			for _, tok := range tokenize(stripSlotMarkup(u)) {
				tokens[tok] = struct{}{}
			}
		}
		for _, slot := range intent.Slots {
			for _, entity := range slot.Entities {
				for _, tok := range synonyms[entity] {
					tokens[tok] = struct{}{}
				}
			}
		}

		examples := make([]string, 0, maxExamplesPerIntent)
		for _, u := range utterances {
			if len(examples) == maxExamplesPerIntent {
				break
			}
			examples = append(examples, stripSlotMarkup(u))
		}

		sorted := make([]string, 0, len(tokens))
		for tok := range tokens {
			sorted = append(sorted, tok)
		}
		slices.Sort(sorted)

		out.Intents = append(out.Intents, artifactIntent{Name: intent.Name, Tokens: sorted, Examples: examples})
		progress(float64(i+1) / float64(len(set.Intents)))
	}
	slices.SortFunc(out.Intents, func(a, b artifactIntent) int { return strings.Compare(a.Name, b.Name) })
	progress(1)

	data, err := json.Marshal(out)
	if err != nil {
		return nil, errs.NewEngineError("failed to encode model", err)
	}

	return &nlu.Model{
		ID:        id,
		StartedAt: started,
		Finished:  time.Now().UTC(),
		Data:      data,
	}, nil
}

func (l *Local) LoadModel(model *nlu.Model) error {
	if model == nil {
		return errs.NewValidationError("cannot load nil model", nil)
	}

	var a artifact
	if err := json.Unmarshal(model.Data, &a); err != nil {
		return errs.NewEngineError(fmt.Sprintf("failed to decode model %s", model.ID), err)
	}
	if a.Language != model.ID.LanguageCode {
		return errs.NewEngineError(fmt.Sprintf("model %s holds language %q", model.ID, a.Language), nil)
	}

	loaded := &loadedModel{id: model.ID, intents: make([]loadedIntent, 0, len(a.Intents))}
	for _, in := range a.Intents {
		tokens := make(map[string]struct{}, len(in.Tokens))
		for _, tok := range in.Tokens {
			tokens[tok] = struct{}{}
		}
		loaded.intents = append(loaded.intents, loadedIntent{name: in.Name, tokens: tokens, examples: in.Examples})
	}

	key := model.ID.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.models[key]; ok {
		current.refs++
		return nil
	}
	loaded.refs = 1
	l.models[key] = loaded

	l.logger.Debug("Model loaded", "model_id", key, "intents", len(loaded.intents))
	return nil
}

func (l *Local) RetainModel(id nlu.ModelID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	model, ok := l.models[id.String()]
	if ok {
		model.refs++
	}
	return ok
}

func (l *Local) UnloadModel(id nlu.ModelID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := id.String()
	model, ok := l.models[key]
	if !ok {
		return false
	}
	model.refs--
	if model.refs > 0 {
		l.logger.Debug("Model still held", "model_id", key, "refs", model.refs)
		return true
	}
	delete(l.models, key)
	l.logger.Debug("Model unloaded", "model_id", key)
	return true
}

func (l *Local) Predict(ctx context.Context, id nlu.ModelID, text string) (*nlu.Prediction, error) {
	l.mu.RLock()
	model, ok := l.models[id.String()]
	l.mu.RUnlock()
	if !ok {
		return nil, errs.NewEngineError(fmt.Sprintf("model %s is not loaded", id), nil)
	}

	ranking := rank(model, tokenize(text))
	prediction := &nlu.Prediction{
		Language: id.LanguageCode,
		ModelID:  id.String(),
		Intent:   nlu.IntentScore{Name: NoneIntent, Confidence: 1},
		Ranking:  ranking,
	}
	if len(ranking) > 0 && ranking[0].Confidence > 0 {
		prediction.Intent = ranking[0]
	}

	if l.classifier != nil && len(model.intents) > 0 {
		req := ClassifyRequest{Text: text, Language: id.LanguageCode}
		for _, in := range model.intents {
			req.Intents = append(req.Intents, IntentExamples{Name: in.name, Utterances: in.examples})
		}
		choice, err := l.classifier.Classify(ctx, req)
		switch {
		case err != nil:
			l.logger.WarnContext(ctx, "Classifier failed, using overlap ranking", "model_id", id.String(), "error", err)
		case choice.Name == NoneIntent || model.hasIntent(choice.Name):
			prediction.Intent = choice
		default:
			l.logger.WarnContext(ctx, "Classifier chose an unknown intent", "model_id", id.String(), "intent", choice.Name)
		}
	}

	return prediction, nil
}

func (m *loadedModel) hasIntent(name string) bool {
	for _, in := range m.intents {
		if in.name == name {
			return true
		}
	}
	return false
}

// rank scores each intent by the share of query tokens it knows.
func rank(model *loadedModel, query []string) []nlu.IntentScore {
	distinct := make(map[string]struct{}, len(query))
	for _, tok := range query {
		distinct[tok] = struct{}{}
	}

	ranking := make([]nlu.IntentScore, 0, len(model.intents))
	for _, in := range model.intents {
		var matched int
		for tok := range distinct {
			if _, ok := in.tokens[tok]; ok {
				matched++
			}
		}
		var confidence float64
		if len(distinct) > 0 {
			confidence = float64(matched) / float64(len(distinct))
		}
		ranking = append(ranking, nlu.IntentScore{Name: in.name, Confidence: confidence})
	}

	slices.SortStableFunc(ranking, func(a, b nlu.IntentScore) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return strings.Compare(a.Name, b.Name)
		}
	})
	return ranking
}

func listEntityTokens(entities []nlu.Entity) map[string][]string {
	out := make(map[string][]string)
	for _, e := range entities {
		if e.Type != nlu.EntityTypeList {
			continue
		}
		for _, o := range e.Occurrences {
			out[e.Name] = append(out[e.Name], tokenize(o.Name)...)
			for _, s := range o.Synonyms {
				out[e.Name] = append(out[e.Name], tokenize(s)...)
			}
		}
	}
	return out
}

func stripSlotMarkup(utterance string) string {
	return slotMarkup.ReplaceAllString(utterance, "$1")
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

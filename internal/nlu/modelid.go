package nlu

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/edgard/nlud/internal/errs"
)

const (
	contentHashLen = 32
	specHashLen    = 16
)

// ErrInvalidTrainingSet is returned by ComputeModelID for malformed input.
var ErrInvalidTrainingSet = errors.New("invalid training set")

// ModelID identifies a model by the content it was trained from.
// Two training sets with equal content, language, seed and engine
// specifications always produce the same ModelID.
type ModelID struct {
	ContentHash       string
	SpecificationHash string
	LanguageCode      string
	Seed              int
}

// String renders the id as "<content>.<specifications>.<seed>.<language>".
func (id ModelID) String() string {
	return fmt.Sprintf("%s.%s.%d.%s", id.ContentHash, id.SpecificationHash, id.Seed, id.LanguageCode)
}

// IsZero reports whether id is the zero ModelID.
func (id ModelID) IsZero() bool {
	return id == ModelID{}
}

// ParseModelID parses the output of ModelID.String.
func ParseModelID(s string) (ModelID, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return ModelID{}, fmt.Errorf("malformed model id %q", s)
	}
	seed, err := strconv.Atoi(parts[2])
	if err != nil {
		return ModelID{}, fmt.Errorf("malformed model id %q: bad seed: %w", s, err)
	}
	id := ModelID{
		ContentHash:       parts[0],
		SpecificationHash: parts[1],
		Seed:              seed,
		LanguageCode:      parts[3],
	}
	if id.ContentHash == "" || id.SpecificationHash == "" || id.LanguageCode == "" {
		return ModelID{}, fmt.Errorf("malformed model id %q", s)
	}
	return id, nil
}

// ComputeModelID derives the identity of the model trained from set under
// the given engine specifications. Intents, entities and their inner lists
// are treated as sets: their order does not affect the result.
func ComputeModelID(set TrainingSet, specs Specifications) (ModelID, error) {
	if err := validate(set); err != nil {
		return ModelID{}, err
	}

	content, err := hashJSON(canonicalDefinitions(set))
	if err != nil {
		return ModelID{}, err
	}
	spec, err := hashJSON(specs)
	if err != nil {
		return ModelID{}, err
	}

	return ModelID{
		ContentHash:       content[:contentHashLen],
		SpecificationHash: spec[:specHashLen],
		LanguageCode:      set.LanguageCode,
		Seed:              set.Seed,
	}, nil
}

func validate(set TrainingSet) error {
	if set.LanguageCode == "" || strings.Contains(set.LanguageCode, ".") {
		return invalid("language code %q", set.LanguageCode)
	}
	seen := make(map[string]struct{}, len(set.Intents))
	for _, intent := range set.Intents {
		if intent.Name == "" {
			return invalid("intent with empty name")
		}
		if _, dup := seen[intent.Name]; dup {
			return invalid("duplicate intent %q", intent.Name)
		}
		seen[intent.Name] = struct{}{}
	}
	seen = make(map[string]struct{}, len(set.Entities))
	for _, entity := range set.Entities {
		if entity.Name == "" {
			return invalid("entity with empty name")
		}
		if _, dup := seen[entity.Name]; dup {
			return invalid("duplicate entity %q", entity.Name)
		}
		seen[entity.Name] = struct{}{}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errs.NewValidationError("cannot compute model id", fmt.Errorf("%w: %s", ErrInvalidTrainingSet, fmt.Sprintf(format, args...)))
}

// canonicalDefinitions returns a sorted deep copy of the set's definitions.
func canonicalDefinitions(set TrainingSet) Definitions {
	out := Definitions{
		Intents:  make([]Intent, 0, len(set.Intents)),
		Entities: make([]Entity, 0, len(set.Entities)),
	}

	for _, in := range set.Intents {
		c := Intent{
			Name:       in.Name,
			Contexts:   sortedCopy(in.Contexts),
			Slots:      make([]Slot, 0, len(in.Slots)),
			Utterances: make(map[string][]string, len(in.Utterances)),
		}
		for _, s := range in.Slots {
			c.Slots = append(c.Slots, Slot{Name: s.Name, Entities: sortedCopy(s.Entities)})
		}
		slices.SortFunc(c.Slots, func(a, b Slot) int {
			return cmp.Or(strings.Compare(a.Name, b.Name), slices.Compare(a.Entities, b.Entities))
		})
		for lang, utts := range in.Utterances {
			c.Utterances[lang] = sortedCopy(utts)
		}
		out.Intents = append(out.Intents, c)
	}
	slices.SortFunc(out.Intents, func(a, b Intent) int { return strings.Compare(a.Name, b.Name) })

	for _, en := range set.Entities {
		c := Entity{
			Name:        en.Name,
			Type:        en.Type,
			Occurrences: make([]Occurrence, 0, len(en.Occurrences)),
			Pattern:     en.Pattern,
			Fuzzy:       en.Fuzzy,
			Examples:    sortedCopy(en.Examples),
		}
		for _, o := range en.Occurrences {
			c.Occurrences = append(c.Occurrences, Occurrence{Name: o.Name, Synonyms: sortedCopy(o.Synonyms)})
		}
		slices.SortFunc(c.Occurrences, func(a, b Occurrence) int {
			return cmp.Or(strings.Compare(a.Name, b.Name), slices.Compare(a.Synonyms, b.Synonyms))
		})
		out.Entities = append(out.Entities, c)
	}
	slices.SortFunc(out.Entities, func(a, b Entity) int { return strings.Compare(a.Name, b.Name) })

	return out
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	slices.Sort(out)
	return out
}

// hashJSON hashes the JSON encoding of v. encoding/json emits struct fields in
// declaration order and map keys sorted, which makes the encoding canonical.
func hashJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errs.NewValidationError("failed to encode training input", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

package definitions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edgard/nlud/internal/errs"
	"github.com/edgard/nlud/internal/logger"
	"github.com/edgard/nlud/internal/nlu"
)

// Directory names holding definition files inside a bot directory.
const (
	IntentsDir  = "intents"
	EntitiesDir = "entities"
)

// Repository reads the training definitions of one bot from
// <botDir>/intents and <botDir>/entities. Files are JSON (*.json) or
// YAML (*.yaml, *.yml).
type Repository struct {
	dir    string
	logger *slog.Logger
}

// NewRepository returns a Repository scoped to botDir.
func NewRepository(botDir string, log *slog.Logger) *Repository {
	if log == nil {
		log = logger.Discard()
	}
	return &Repository{dir: botDir, logger: log.With("component", "definitions_repository")}
}

// Dir returns the bot directory.
func (r *Repository) Dir() string {
	return r.dir
}

// TrainDefinitions returns every intent and entity of the bot. A missing
// directory is an empty collection; a malformed file is an error.
func (r *Repository) TrainDefinitions(ctx context.Context) (nlu.Definitions, error) {
	var defs nlu.Definitions

	err := readAll(ctx, filepath.Join(r.dir, IntentsDir), func(name string, unmarshal unmarshalFunc) error {
		var intent nlu.Intent
		if err := unmarshal(&intent); err != nil {
			return err
		}
		if intent.Name == "" {
			intent.Name = name
		}
		defs.Intents = append(defs.Intents, intent)
		return nil
	})
	if err != nil {
		return nlu.Definitions{}, err
	}

	err = readAll(ctx, filepath.Join(r.dir, EntitiesDir), func(name string, unmarshal unmarshalFunc) error {
		var entity nlu.Entity
		if err := unmarshal(&entity); err != nil {
			return err
		}
		if entity.Name == "" {
			entity.Name = name
		}
		if entity.Type == "" {
			entity.Type = nlu.EntityTypeList
		}
		defs.Entities = append(defs.Entities, entity)
		return nil
	})
	if err != nil {
		return nlu.Definitions{}, err
	}

	r.logger.DebugContext(ctx, "Read definitions", "dir", r.dir, "intents", len(defs.Intents), "entities", len(defs.Entities))
	return defs, nil
}

type unmarshalFunc func(v any) error

// unmarshalers maps the supported file extensions to their decoders.
var unmarshalers = map[string]func(data []byte, v any) error{
	".json": json.Unmarshal,
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
}

// readAll calls decode for every definition file of dir. os.ReadDir sorts by name.
func readAll(ctx context.Context, dir string, decode func(name string, unmarshal unmarshalFunc) error) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		ext := filepath.Ext(entry.Name())
		decoder, ok := unmarshalers[ext]
		if entry.IsDir() || !ok {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		unmarshal := func(v any) error { return decoder(data, v) }
		if err := decode(strings.TrimSuffix(entry.Name(), ext), unmarshal); err != nil {
			return errs.NewValidationError(fmt.Sprintf("malformed definition file %s", path), err)
		}
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/nlud/internal/errs"
	"github.com/edgard/nlud/internal/logger"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
// Getters return nil, nil when the record does not exist.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	GetBotConfig(ctx context.Context, botID string) (*BotConfig, error)
	SaveBotConfig(ctx context.Context, cfg *BotConfig) error
	ListBotConfigs(ctx context.Context) ([]*BotConfig, error)
	DeleteBotConfig(ctx context.Context, botID string) error

	SaveModel(ctx context.Context, model *StoredModel) error
	GetModel(ctx context.Context, botID, modelID string) (*StoredModel, error)
	HasModel(ctx context.Context, botID, modelID string) (bool, error)
	// ListModels returns the models of a bot language, newest first. Artifacts are not loaded.
	ListModels(ctx context.Context, botID, language string) ([]*StoredModel, error)
	// PruneModels keeps the newest keep models of a bot language and deletes the rest.
	PruneModels(ctx context.Context, botID, language string, keep int) (int64, error)
	DeleteBotModels(ctx context.Context, botID string) error

	GetTrainingSession(ctx context.Context, botID, language string) (*TrainingSession, error)
	SaveTrainingSession(ctx context.Context, session *TrainingSession) error
	// ListTrainingSessions returns sessions in any of the given statuses, or all sessions if none are given.
	ListTrainingSessions(ctx context.Context, statuses ...string) ([]*TrainingSession, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, log *slog.Logger) Store {
	if log == nil {
		log = logger.Discard()
	}
	return &sqlxStore{
		db:     db,
		logger: log.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return errs.NewDatabaseError("failed to execute VACUUM", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

// --- Bot configurations ---

func (s *sqlxStore) GetBotConfig(ctx context.Context, botID string) (*BotConfig, error) {
	if botID == "" {
		return nil, errs.NewValidationError("bot id cannot be empty", nil)
	}

	var cfg BotConfig
	query := `SELECT id, name, default_language, languages, nlu_seed, created_at, updated_at
	          FROM bots WHERE id = ?`

	err := s.db.GetContext(ctx, &cfg, query, botID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No bot configuration found", "bot_id", botID)
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting bot configuration", "bot_id", botID, "error", err)
		return nil, errs.NewDatabaseError(fmt.Sprintf("failed to get configuration of bot %q", botID), err)
	}

	return &cfg, nil
}

// SaveBotConfig inserts or updates a bot configuration. CreatedAt is kept on update.
func (s *sqlxStore) SaveBotConfig(ctx context.Context, cfg *BotConfig) error {
	if cfg == nil {
		return errs.NewValidationError("cannot save nil bot configuration", nil)
	}
	if cfg.ID == "" || cfg.DefaultLanguage == "" {
		return errs.NewValidationError("bot configuration must have an id and a default language", nil)
	}

	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	query := `
        INSERT INTO bots (id, name, default_language, languages, nlu_seed, created_at, updated_at)
        VALUES (:id, :name, :default_language, :languages, :nlu_seed, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
            name = excluded.name,
            default_language = excluded.default_language,
            languages = excluded.languages,
            nlu_seed = excluded.nlu_seed,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, cfg); err != nil {
		s.logger.ErrorContext(ctx, "Error saving bot configuration", "bot_id", cfg.ID, "error", err)
		return errs.NewDatabaseError(fmt.Sprintf("failed to save configuration of bot %q", cfg.ID), err)
	}

	s.logger.DebugContext(ctx, "Saved bot configuration", "bot_id", cfg.ID, "languages", []string(cfg.Languages))
	return nil
}

func (s *sqlxStore) ListBotConfigs(ctx context.Context) ([]*BotConfig, error) {
	var cfgs []*BotConfig
	query := `SELECT id, name, default_language, languages, nlu_seed, created_at, updated_at
	          FROM bots ORDER BY id`
	if err := s.db.SelectContext(ctx, &cfgs, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing bot configurations", "error", err)
		return nil, errs.NewDatabaseError("failed to list bot configurations", err)
	}
	return cfgs, nil
}

func (s *sqlxStore) DeleteBotConfig(ctx context.Context, botID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE id = ?`, botID); err != nil {
		return errs.NewDatabaseError(fmt.Sprintf("failed to delete configuration of bot %q", botID), err)
	}
	return nil
}

// --- Models ---

func (s *sqlxStore) SaveModel(ctx context.Context, model *StoredModel) error {
	if model == nil {
		return errs.NewValidationError("cannot save nil model", nil)
	}
	if model.ID == "" || model.BotID == "" || model.Language == "" {
		return errs.NewValidationError("model must have an id, a bot id and a language", nil)
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO models (id, bot_id, language, content_hash, spec_hash, seed, artifact, started_at, finished_at, created_at)
        VALUES (:id, :bot_id, :language, :content_hash, :spec_hash, :seed, :artifact, :started_at, :finished_at, :created_at)
        ON CONFLICT (bot_id, id) DO UPDATE SET
            artifact = excluded.artifact,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at,
            created_at = excluded.created_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, model); err != nil {
		s.logger.ErrorContext(ctx, "Error saving model", "model_id", model.ID, "bot_id", model.BotID, "error", err)
		return errs.NewDatabaseError(fmt.Sprintf("failed to save model %s", model.ID), err)
	}

	s.logger.DebugContext(ctx, "Saved model", "model_id", model.ID, "bot_id", model.BotID, "size", len(model.Artifact))
	return nil
}

func (s *sqlxStore) GetModel(ctx context.Context, botID, modelID string) (*StoredModel, error) {
	var model StoredModel
	query := `SELECT id, bot_id, language, content_hash, spec_hash, seed, artifact, started_at, finished_at, created_at
	          FROM models WHERE bot_id = ? AND id = ?`

	err := s.db.GetContext(ctx, &model, query, botID, modelID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting model", "bot_id", botID, "model_id", modelID, "error", err)
		return nil, errs.NewDatabaseError(fmt.Sprintf("failed to get model %s", modelID), err)
	}
	return &model, nil
}

func (s *sqlxStore) HasModel(ctx context.Context, botID, modelID string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM models WHERE bot_id = ? AND id = ?`
	if err := s.db.GetContext(ctx, &count, query, botID, modelID); err != nil {
		return false, errs.NewDatabaseError(fmt.Sprintf("failed to look up model %s", modelID), err)
	}
	return count > 0, nil
}

func (s *sqlxStore) ListModels(ctx context.Context, botID, language string) ([]*StoredModel, error) {
	var models []*StoredModel
	query := `SELECT id, bot_id, language, content_hash, spec_hash, seed, started_at, finished_at, created_at
	          FROM models WHERE bot_id = ? AND language = ?
	          ORDER BY created_at DESC, id`
	if err := s.db.SelectContext(ctx, &models, query, botID, language); err != nil {
		s.logger.ErrorContext(ctx, "Error listing models", "bot_id", botID, "language", language, "error", err)
		return nil, errs.NewDatabaseError("failed to list models", err)
	}
	return models, nil
}

func (s *sqlxStore) PruneModels(ctx context.Context, botID, language string, keep int) (int64, error) {
	if keep < 0 {
		return 0, errs.NewValidationError("keep cannot be negative", nil)
	}

	query := `
        DELETE FROM models
        WHERE bot_id = ? AND language = ? AND id NOT IN (
            SELECT id FROM models WHERE bot_id = ? AND language = ?
            ORDER BY created_at DESC, id LIMIT ?
        );
    `
	result, err := s.db.ExecContext(ctx, query, botID, language, botID, language, keep)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning models", "bot_id", botID, "language", language, "error", err)
		return 0, errs.NewDatabaseError("failed to prune models", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected rows after pruning models", "error", err)
		return 0, nil
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "Pruned models", "bot_id", botID, "language", language, "deleted", deleted, "kept", keep)
	}
	return deleted, nil
}

func (s *sqlxStore) DeleteBotModels(ctx context.Context, botID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE bot_id = ?`, botID); err != nil {
		return errs.NewDatabaseError(fmt.Sprintf("failed to delete models of bot %q", botID), err)
	}
	return nil
}

// --- Training sessions ---

func (s *sqlxStore) GetTrainingSession(ctx context.Context, botID, language string) (*TrainingSession, error) {
	var session TrainingSession
	query := `SELECT id, bot_id, language, status, progress, error, created_at, updated_at
	          FROM training_sessions WHERE bot_id = ? AND language = ?`

	err := s.db.GetContext(ctx, &session, query, botID, language)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting training session", "bot_id", botID, "language", language, "error", err)
		return nil, errs.NewDatabaseError("failed to get training session", err)
	}
	return &session, nil
}

func (s *sqlxStore) SaveTrainingSession(ctx context.Context, session *TrainingSession) error {
	if session == nil {
		return errs.NewValidationError("cannot save nil training session", nil)
	}
	if session.BotID == "" || session.Language == "" || session.Status == "" {
		return errs.NewValidationError("training session must have a bot id, a language and a status", nil)
	}

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	query := `
        INSERT INTO training_sessions (id, bot_id, language, status, progress, error, created_at, updated_at)
        VALUES (:id, :bot_id, :language, :status, :progress, :error, :created_at, :updated_at)
        ON CONFLICT (bot_id, language) DO UPDATE SET
            id = excluded.id,
            status = excluded.status,
            progress = excluded.progress,
            error = excluded.error,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, session); err != nil {
		s.logger.ErrorContext(ctx, "Error saving training session",
			"bot_id", session.BotID, "language", session.Language, "status", session.Status, "error", err)
		return errs.NewDatabaseError("failed to save training session", err)
	}
	return nil
}

func (s *sqlxStore) ListTrainingSessions(ctx context.Context, statuses ...string) ([]*TrainingSession, error) {
	query := `SELECT id, bot_id, language, status, progress, error, created_at, updated_at
	          FROM training_sessions`
	var args []any
	if len(statuses) > 0 {
		var err error
		query, args, err = sqlx.In(query+` WHERE status IN (?)`, statuses)
		if err != nil {
			return nil, errs.NewValidationError("failed to build session query", err)
		}
	}
	query = s.db.Rebind(query + ` ORDER BY updated_at, bot_id, language`)

	var sessions []*TrainingSession
	if err := s.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		s.logger.ErrorContext(ctx, "Error listing training sessions", "statuses", strings.Join(statuses, ","), "error", err)
		return nil, errs.NewDatabaseError("failed to list training sessions", err)
	}
	return sessions, nil
}

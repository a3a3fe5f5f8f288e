package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/edgard/nlud/internal/bot"
	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/database"
	"github.com/edgard/nlud/internal/definitions"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/nlu"
)

// languageStatus describes the model state of one bot language.
type languageStatus struct {
	BotID    string `json:"botId"`
	Language string `json:"language"`
	ModelID  string `json:"modelId"`
	Stored   bool   `json:"stored"`
	Training string `json:"training"`
	Error    string `json:"error,omitempty"`
}

// StatusStore is the part of the store the status command reads.
type StatusStore interface {
	ListBotConfigs(ctx context.Context) ([]*database.BotConfig, error)
	HasModel(ctx context.Context, botID, modelID string) (bool, error)
	GetTrainingSession(ctx context.Context, botID, language string) (*database.TrainingSession, error)
}

// SpecSource provides what a model id is computed against.
type SpecSource interface {
	Specifications() nlu.Specifications
	Languages() []string
}

func statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest model id of every bot language and whether it is trained",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			db, err := database.NewDB(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.CloseDB(db)

			// Specifications come from configuration alone; no classifier needed.
			eng := engine.NewLocal(cfg.Engine, nil)
			rows, err := collectStatus(cmd.Context(), database.NewStore(db, nil), eng, cfg.Storage.BotsDir)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			renderStatus(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

// collectStatus computes the latest model id of every stored bot language
// served by the engine. Failures of one bot are reported in its rows.
func collectStatus(ctx context.Context, store StatusStore, specs SpecSource, botsDir string) ([]languageStatus, error) {
	configs, err := store.ListBotConfigs(ctx)
	if err != nil {
		return nil, err
	}

	var rows []languageStatus
	for _, botCfg := range configs {
		repo := definitions.NewRepository(filepath.Join(botsDir, botCfg.ID), nil)
		defs, defsErr := repo.TrainDefinitions(ctx)

		for _, lang := range botCfg.Languages {
			if !slices.Contains(specs.Languages(), lang) {
				continue
			}
			row := languageStatus{BotID: botCfg.ID, Language: lang, Training: "idle"}
			if defsErr != nil {
				row.Error = defsErr.Error()
				rows = append(rows, row)
				continue
			}

			id, err := nlu.ComputeModelID(nlu.TrainingSet{
				Intents:      defs.Intents,
				Entities:     defs.Entities,
				LanguageCode: lang,
				Seed:         bot.PickSeed(botCfg),
			}, specs.Specifications())
			if err != nil {
				row.Error = err.Error()
				rows = append(rows, row)
				continue
			}
			row.ModelID = id.String()

			if row.Stored, err = store.HasModel(ctx, row.BotID, row.ModelID); err != nil {
				return nil, err
			}
			session, err := store.GetTrainingSession(ctx, botCfg.ID, lang)
			if err != nil {
				return nil, err
			}
			if session != nil {
				row.Training = session.Status
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func renderStatus(w io.Writer, rows []languageStatus) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Bot", "Language", "Model", "Stored", "Training", "Error"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.BotID, r.Language, r.ModelID, r.Stored, r.Training, r.Error})
	}
	tw.Render()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
